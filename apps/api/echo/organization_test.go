package echoapi_test

import (
	"context"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	echoapi "github.com/trezcool/forma/apps/api/echo"
	"github.com/trezcool/forma/core/moffin"
	"github.com/trezcool/forma/core/organization"
	"github.com/trezcool/forma/core/user"
	"github.com/trezcool/forma/testutil"
)

func TestOrganizationApi(t *testing.T) {
	app := setup(t)
	owner := testutil.CreateUser(t, app.Repos.Users, "Owner", "owner@example.com", pwd, user.RoleAdmin, "", true)
	outsider := testutil.CreateUser(t, app.Repos.Users, "Outsider", "outsider@example.com", pwd, "", "", true)
	ownerToken := app.token(t, owner)

	rec := app.serve(http.MethodPost, "/api/organizations", ownerToken, marshalObj(t, organization.NewOrganization{
		Name: " Acme Corp ", MoffinAPIKey: "client:secret",
	}))
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var org echoapi.OrganizationResponse
	decode(t, rec, &org)
	assert.Equal(t, "acme-corp", org.Slug)
	assert.Equal(t, "*********cret", org.MoffinAPIKey)
	assert.Equal(t, organization.DefaultMoffinBaseURL, org.MoffinBaseURL)

	stored, err := app.OrgSvc.GetByID(context.Background(), org.ID)
	require.NoError(t, err)
	member := testutil.CreateUser(t, app.Repos.Users, "Member", "member@example.com", pwd, "", org.ID, true)
	memberToken := app.token(t, member)
	path := "/api/organizations/" + org.ID

	app.run(t, []httpTest{
		{
			name: "duplicate slug", method: http.MethodPost, path: "/api/organizations", token: ownerToken,
			body:     []byte(`{"name": "Acme Corp"}`),
			wantCode: http.StatusBadRequest,
			wantData: marshalObj(t, map[string]string{"slug": organization.ErrSlugExists.Error()}),
		},
		{name: "list", path: "/api/organizations", token: memberToken, wantData: marshalList(t, echoapiOrg(stored))},
		{name: "outsiders see nothing", path: "/api/organizations", token: app.token(t, outsider), wantData: marshalList(t)},
		{name: "retrieve", path: path, token: memberToken, wantData: marshalObj(t, echoapiOrg(stored))},
		{name: "outsider retrieve", path: path, token: app.token(t, outsider), wantCode: http.StatusNotFound},
		{
			name: "members cannot manage", method: http.MethodPut, path: path, token: memberToken,
			body: []byte(`{"name": "Evil"}`), wantCode: http.StatusForbidden,
		},
		{
			name: "invalid key", method: http.MethodPut, path: path, token: ownerToken,
			body: []byte(`{"moffin_api_key": "no-separator"}`), wantCode: http.StatusBadRequest,
		},
	})

	rec = app.serve(http.MethodPut, path, ownerToken, []byte(`{"name": "Acme Inc"}`))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	decode(t, rec, &org)
	assert.Equal(t, "Acme Inc", org.Name)
	assert.Equal(t, "acme-corp", org.Slug, "slug is kept")

	rec = app.serve(http.MethodDelete, path, ownerToken)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	rec = app.serve(http.MethodGet, path, ownerToken)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func echoapiOrg(org organization.Organization) echoapi.OrganizationResponse {
	return echoapi.OrganizationResponse{Organization: org, MoffinAPIKey: org.MaskedAPIKey()}
}

func TestMoffinApi_forms(t *testing.T) {
	app := setup(t)
	owner := testutil.CreateUser(t, app.Repos.Users, "Owner", "owner@example.com", pwd, user.RoleAdmin, "", true)
	org := testutil.CreateOrganization(t, app.Repos.Organizations, "Acme", "client:secret", owner)
	member := testutil.CreateUser(t, app.Repos.Users, "Member", "member@example.com", pwd, "", org.ID, true)
	outsider := testutil.CreateUser(t, app.Repos.Users, "Outsider", "outsider@example.com", pwd, "", "", true)
	ownerToken := app.token(t, owner)

	nf := moffin.NewForm{Name: "Alta de Empresas", AccountType: "pm", OrganizationID: org.ID}
	app.run(t, []httpTest{
		{
			name: "members cannot create", method: http.MethodPost, path: "/api/moffin/forms",
			token: app.token(t, member), body: marshalObj(t, nf), wantCode: http.StatusForbidden,
		},
		{
			name: "outsiders cannot see the organization", method: http.MethodPost, path: "/api/moffin/forms",
			token: app.token(t, outsider), body: marshalObj(t, nf), wantCode: http.StatusNotFound,
		},
		{
			name: "invalid account type", method: http.MethodPost, path: "/api/moffin/forms", token: ownerToken,
			body:     marshalObj(t, moffin.NewForm{Name: "Alta", AccountType: "XX", OrganizationID: org.ID}),
			wantCode: http.StatusBadRequest,
			wantData: marshalObj(t, map[string]string{"account_type": "must be one of PF or PM"}),
		},
	})

	rec := app.serve(http.MethodPost, "/api/moffin/forms", ownerToken, marshalObj(t, nf))
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var f moffin.Form
	decode(t, rec, &f)
	assert.Equal(t, "alta-de-empresas", f.Slug)
	assert.Equal(t, "PM", f.AccountType)
	assert.Equal(t, "mf_alta-de-empresas", f.MoffinFormID)
	require.Len(t, app.Moffin.Creds, 1)
	assert.Equal(t, moffin.Credentials{
		BaseURL: organization.DefaultMoffinBaseURL, ClientID: "client", ClientSecret: "secret",
	}, app.Moffin.Creds[0])

	rec = app.serve(http.MethodPost, "/api/moffin/forms", ownerToken, marshalObj(t, nf))
	checkCodeAndData(t, httpTest{
		wantCode: http.StatusBadRequest,
		wantData: marshalObj(t, map[string]string{"slug": moffin.ErrSlugExists.Error()}),
	}, rec)

	app.run(t, []httpTest{
		{name: "members list", path: "/api/moffin/forms", token: app.token(t, member), wantData: marshalList(t, f)},
		{name: "no organization", path: "/api/moffin/forms", token: app.token(t, outsider), wantData: marshalList(t)},
		{
			name: "foreign organization", path: "/api/moffin/forms?organization_id=" + org.ID,
			token: app.token(t, outsider), wantCode: http.StatusNotFound,
		},
	})
}
