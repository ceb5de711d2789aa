package form_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/forma/core"
	"github.com/trezcool/forma/core/form"
	"github.com/trezcool/forma/core/session"
	"github.com/trezcool/forma/core/user"
	appfs "github.com/trezcool/forma/fs"
	"github.com/trezcool/forma/testutil"
)

func newTemplate(title string) form.NewTemplate {
	return form.NewTemplate{
		Title: title,
		Sections: []form.Section{{
			ID:    "general",
			Title: "General",
			Fields: []form.Field{
				{ID: "name", Type: form.FieldText, Label: "Name", Required: true},
			},
		}},
		Settings: form.Settings{AllowMultiSession: true, AllowEdit: true},
		IsPublic: true,
		Tags:     []string{"hr"},
	}
}

func TestService_Create_UniqueSlug(t *testing.T) {
	env := testutil.NewEnv(t)
	ctx := context.Background()
	owner := testutil.CreateUser(t, env.Repos.Users, "Owner", "owner@example.com", "", user.RoleAdmin, "", true)

	var slugs []string
	for i := 0; i < 3; i++ {
		nt := newTemplate("Alta de Empleados")
		require.NoError(t, nt.Validate(env.Validate))
		tmpl, err := env.FormSvc.Create(ctx, nt, owner)
		require.NoError(t, err)
		assert.Equal(t, owner.ID, tmpl.CreatedBy)
		slugs = append(slugs, tmpl.Slug)
	}
	assert.Equal(t, []string{"alta-de-empleados", "alta-de-empleados-1", "alta-de-empleados-2"}, slugs)

	nt := newTemplate("¿¡!?")
	require.NoError(t, nt.Validate(env.Validate))
	tmpl, err := env.FormSvc.Create(ctx, nt, owner)
	require.NoError(t, err)
	assert.Equal(t, "form", tmpl.Slug)
}

func TestService_UpdateAndDelete(t *testing.T) {
	env := testutil.NewEnv(t)
	ctx := context.Background()
	owner := testutil.CreateUser(t, env.Repos.Users, "Owner", "owner@example.com", "", user.RoleAdmin, "", true)

	nt := newTemplate("Encuesta")
	require.NoError(t, nt.Validate(env.Validate))
	tmpl, err := env.FormSvc.Create(ctx, nt, owner)
	require.NoError(t, err)

	nt = newTemplate("Encuesta anual")
	nt.Tags = []string{"survey"}
	require.NoError(t, nt.Validate(env.Validate))
	updated, err := env.FormSvc.Update(ctx, tmpl, nt)
	require.NoError(t, err)
	assert.Equal(t, "Encuesta anual", updated.Title)
	assert.Equal(t, tmpl.Slug, updated.Slug, "the slug never changes")
	assert.Equal(t, []string{"survey"}, updated.Tags)

	got, err := env.FormSvc.GetBySlug(ctx, " ENCUESTA ")
	require.NoError(t, err)
	assert.Equal(t, tmpl.ID, got.ID)

	// deleting a form removes its sessions
	view, err := env.SessionSvc.Start(ctx, got, user.User{})
	require.NoError(t, err)
	require.NoError(t, env.FormSvc.Delete(ctx, got))

	_, err = env.FormSvc.GetByID(ctx, got.ID)
	assert.True(t, core.IsNotFound(err))
	_, err = env.Repos.Sessions.GetSession(ctx, view.Session.ID)
	assert.Equal(t, session.ErrNotFound, err)
}

func TestService_Import(t *testing.T) {
	env := testutil.NewEnv(t)
	ctx := context.Background()
	owner := testutil.CreateUser(t, env.Repos.Users, "Owner", "owner@example.com", "", user.RoleAdmin, "", true)

	seeds, err := form.LoadSeeds(appfs.FS, "seeds")
	require.NoError(t, err)
	require.NotEmpty(t, seeds)

	for _, seed := range seeds {
		nt := seed.NewTemplate
		require.NoError(t, nt.Validate(env.Validate), seed.Slug)
		tmpl, created, err := env.FormSvc.Import(ctx, seed.Slug, nt, owner)
		require.NoError(t, err)
		assert.True(t, created)
		assert.Equal(t, seed.Slug, tmpl.Slug)
	}

	// importing again updates in place
	seed := seeds[0]
	nt := seed.NewTemplate
	nt.Title = "Renamed"
	require.NoError(t, nt.Validate(env.Validate))
	before, err := env.FormSvc.GetBySlug(ctx, seed.Slug)
	require.NoError(t, err)
	tmpl, created, err := env.FormSvc.Import(ctx, seed.Slug, nt, owner)
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, before.ID, tmpl.ID)
	assert.Equal(t, "Renamed", tmpl.Title)

	all, err := env.FormSvc.Query(ctx, nil, nil)
	require.NoError(t, err)
	assert.Len(t, all, len(seeds))

	_, _, err = env.FormSvc.Import(ctx, "  ", nt, owner)
	assert.Error(t, err)
}

func TestService_QueryForUser(t *testing.T) {
	env := testutil.NewEnv(t)
	ctx := context.Background()
	solo := testutil.CreateUser(t, env.Repos.Users, "Solo", "solo@example.com", "", user.RoleUser, "", true)
	org := testutil.CreateOrganization(t, env.Repos.Organizations, "Acme", "", solo)
	member1 := testutil.CreateUser(t, env.Repos.Users, "M1", "m1@example.com", "", user.RoleUser, org.ID, true)
	member2 := testutil.CreateUser(t, env.Repos.Users, "M2", "m2@example.com", "", user.RoleUser, org.ID, true)

	create := func(title string, owner user.User) form.Template {
		nt := newTemplate(title)
		require.NoError(t, nt.Validate(env.Validate))
		tmpl, err := env.FormSvc.Create(ctx, nt, owner)
		require.NoError(t, err)
		return tmpl
	}
	soloForm := create("Personal", solo)
	create("Equipo", member1)
	create("Ventas", member2)

	got, err := env.FormSvc.QueryForUser(ctx, solo, nil, nil)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, soloForm.ID, got[0].ID)

	got, err = env.FormSvc.QueryForUser(ctx, member2, nil, nil)
	require.NoError(t, err)
	assert.Len(t, got, 2, "members see the forms of their organization")

	got, err = env.FormSvc.QueryForUser(ctx, member2, &form.QueryFilter{Search: "vent"}, []core.DBOrdering{{Field: "title", Ascending: true}})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "Ventas", got[0].Title)
}

func TestService_Permissions(t *testing.T) {
	env := testutil.NewEnv(t)
	tmpl := form.Template{
		CreatedBy:      "owner",
		OrganizationID: "org",
		Permissions:    form.Permissions{CanEdit: []string{user.RoleCustomerSuccess}},
	}

	tests := []struct {
		name       string
		usr        user.User
		wantEdit   bool
		wantDelete bool
	}{
		{"owner", user.User{ID: "owner", Role: user.RoleUser}, true, true},
		{"org admin", user.User{ID: "a", Role: user.RoleAdmin, OrganizationID: "org"}, true, true},
		{"org customer success", user.User{ID: "b", Role: user.RoleCustomerSuccess, OrganizationID: "org"}, true, false},
		{"org user", user.User{ID: "c", Role: user.RoleUser, OrganizationID: "org"}, false, false},
		{"admin elsewhere", user.User{ID: "d", Role: user.RoleAdmin, OrganizationID: "other"}, false, false},
		{"admin without organization", user.User{ID: "e", Role: user.RoleAdmin}, false, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.wantEdit, env.FormSvc.CanEdit(tmpl, tt.usr))
			assert.Equal(t, tt.wantDelete, env.FormSvc.CanDelete(tmpl, tt.usr))
		})
	}
}
