package form

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/trezcool/forma/core/user"
)

func TestShowWhen_JSON(t *testing.T) {
	tests := []struct {
		name    string
		data    string
		want    ShowWhen
		wantErr bool
	}{
		{name: "string", data: `"persona_moral"`, want: ShowWhen{"persona_moral"}},
		{name: "list", data: `["telefono","whatsapp"]`, want: ShowWhen{"telefono", "whatsapp"}},
		{name: "bool", data: `true`, want: ShowWhen{"true"}},
		{name: "number", data: `12.5`, want: ShowWhen{"12.5"}},
		{name: "null", data: `null`, want: nil},
		{name: "object", data: `{"a":1}`, wantErr: true},
		{name: "nested list", data: `[["a"]]`, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var got ShowWhen
			err := json.Unmarshal([]byte(tt.data), &got)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}

	single, err := json.Marshal(Conditional{DependsOn: "a", ShowWhen: ShowWhen{"x"}})
	require.NoError(t, err)
	assert.JSONEq(t, `{"depends_on":"a","show_when":"x"}`, string(single))

	multi, err := json.Marshal(Conditional{DependsOn: "a", ShowWhen: ShowWhen{"x", "y"}})
	require.NoError(t, err)
	assert.JSONEq(t, `{"depends_on":"a","show_when":["x","y"]}`, string(multi))
}

func TestShowWhen_YAML(t *testing.T) {
	var c Conditional
	require.NoError(t, yaml.Unmarshal([]byte("depends_on: a\nshow_when: x\n"), &c))
	assert.Equal(t, ShowWhen{"x"}, c.ShowWhen)

	require.NoError(t, yaml.Unmarshal([]byte("depends_on: a\nshow_when: [x, y]\n"), &c))
	assert.Equal(t, ShowWhen{"x", "y"}, c.ShowWhen)

	assert.Error(t, yaml.Unmarshal([]byte("depends_on: a\nshow_when: {x: y}\n"), &c))
}

func TestPermissions(t *testing.T) {
	open := Permissions{}
	assert.True(t, open.AllowsView(user.RoleUser))
	assert.True(t, open.AllowsSubmit(""))

	wildcard := Permissions{CanView: []string{AnyRole}}
	assert.True(t, wildcard.AllowsView(""))

	restricted := Permissions{CanView: []string{user.RoleAdmin}, CanSubmit: []string{user.RoleAdmin, user.RoleCustomerSuccess}}
	assert.True(t, restricted.AllowsView(user.RoleAdmin))
	assert.False(t, restricted.AllowsView(user.RoleUser))
	assert.True(t, restricted.AllowsSubmit(user.RoleCustomerSuccess))
	assert.False(t, restricted.AllowsSubmit(""))
	assert.True(t, restricted.AllowsEdit(user.RoleUser), "no edit roles allows everyone")
}

func TestTemplate_PublicView(t *testing.T) {
	tmpl := Template{ID: "1", Slug: "s", CreatedBy: "u1", OrganizationID: "o1"}
	pub := tmpl.PublicView()
	assert.Empty(t, pub.CreatedBy)
	assert.Empty(t, pub.OrganizationID)
	assert.Equal(t, "u1", tmpl.CreatedBy, "original must be untouched")
}

func TestTemplate_Lookups(t *testing.T) {
	tmpl := loadSeed(t, "financial-onboarding")

	fld, ok := tmpl.Field("rfc_empresa")
	require.True(t, ok)
	assert.Equal(t, EndpointRFCData, fld.Autocomplete.APIEndpoint)
	assert.Equal(t, map[string]string{"razon_social": "razon_social"}, fld.Autocomplete.FieldMapping)

	_, ok = tmpl.Field("nope")
	assert.False(t, ok)

	ids := tmpl.FieldIDs()
	assert.Equal(t, "client_type", ids[0])
	assert.Equal(t, "telefono_contacto", ids[len(ids)-1])
}
