package organization_test

import (
	"context"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/forma/core"
	"github.com/trezcool/forma/core/organization"
	"github.com/trezcool/forma/core/user"
	"github.com/trezcool/forma/testutil"
)

func TestService_Create(t *testing.T) {
	env := testutil.NewEnv(t)
	ctx := context.Background()
	owner := testutil.CreateUser(t, env.Repos.Users, "Owner", "owner@example.com", "", user.RoleAdmin, "", true)

	no := organization.NewOrganization{Name: "  Acme Corp ", MoffinAPIKey: "id:secret"}
	require.NoError(t, no.Validate(env.Validate))
	assert.Equal(t, "acme-corp", no.Slug)

	org, err := env.OrgSvc.Create(ctx, no, owner)
	require.NoError(t, err)
	assert.NotEmpty(t, org.ID)
	assert.Equal(t, "Acme Corp", org.Name)
	assert.Equal(t, organization.DefaultMoffinBaseURL, org.MoffinBaseURL)
	assert.True(t, org.IsActive)
	assert.Equal(t, "*****cret", org.MaskedAPIKey())

	owner, err = env.UserSvc.GetByID(ctx, owner.ID)
	require.NoError(t, err)
	assert.Equal(t, org.ID, owner.OrganizationID, "the owner joins the new organization")

	// slug taken: nothing is created
	_, err = env.OrgSvc.Create(ctx, no, owner)
	var vErr *core.ValidationError
	require.True(t, errors.As(err, &vErr))
	assert.Equal(t, []core.FieldError{{Field: "slug", Error: organization.ErrSlugExists.Error()}}, vErr.Fields)

	orgs, err := env.OrgSvc.QueryForUser(ctx, owner, nil)
	require.NoError(t, err)
	assert.Len(t, orgs, 1)

	// a second organization does not move the owner
	other, err := env.OrgSvc.Create(ctx, organization.NewOrganization{Name: "Globex", Slug: "globex"}, owner)
	require.NoError(t, err)
	owner, err = env.UserSvc.GetByID(ctx, owner.ID)
	require.NoError(t, err)
	assert.Equal(t, org.ID, owner.OrganizationID)

	orgs, err = env.OrgSvc.QueryForUser(ctx, owner, nil)
	require.NoError(t, err)
	require.Len(t, orgs, 2)
	assert.Equal(t, other.ID, orgs[0].ID, "newest first")

	_, err = env.OrgSvc.Deactivate(ctx, other)
	require.NoError(t, err)
	orgs, err = env.OrgSvc.QueryForUser(ctx, owner, nil)
	require.NoError(t, err)
	require.Len(t, orgs, 1, "inactive organizations are hidden")
	assert.Equal(t, org.ID, orgs[0].ID)
}

func TestNewOrganization_Validate(t *testing.T) {
	env := testutil.NewEnv(t)

	no := organization.NewOrganization{Name: "Acme", MoffinAPIKey: "no-secret", MoffinBaseURL: "not a url"}
	vErr, ok := core.TranslateValidationError(no.Validate(env.Validate), env.Translator)
	require.True(t, ok)
	got := make(map[string]string)
	for _, f := range vErr.Fields {
		got[f.Field] = f.Error
	}
	assert.Equal(t, "the Moffin API key must be formatted as client_id:client_secret", got["moffin_api_key"])
	assert.Contains(t, got, "moffin_base_url")
}

func TestService_Update(t *testing.T) {
	env := testutil.NewEnv(t)
	ctx := context.Background()
	owner := testutil.CreateUser(t, env.Repos.Users, "Owner", "owner@example.com", "", user.RoleAdmin, "", true)
	org := testutil.CreateOrganization(t, env.Repos.Organizations, "Acme", "id:secret", owner)

	uo := organization.UpdateOrganization{Name: " Acme Inc ", MoffinBaseURL: "https://sandbox.moffin.mx/"}
	require.NoError(t, uo.Validate(env.Validate))

	updated, err := env.OrgSvc.Update(ctx, org, uo)
	require.NoError(t, err)
	assert.Equal(t, "Acme Inc", updated.Name)
	assert.Equal(t, "https://sandbox.moffin.mx", updated.MoffinBaseURL)
	assert.Equal(t, "id:secret", updated.MoffinAPIKey, "an empty key keeps the stored one")
	assert.Equal(t, org.Slug, updated.Slug)
}

func TestService_Permissions(t *testing.T) {
	env := testutil.NewEnv(t)
	creator := testutil.CreateUser(t, env.Repos.Users, "Creator", "creator@example.com", "", user.RoleUser, "", true)
	org := testutil.CreateOrganization(t, env.Repos.Organizations, "Acme", "", creator)
	admin := testutil.CreateUser(t, env.Repos.Users, "Admin", "admin@example.com", "", user.RoleAdmin, org.ID, true)
	member := testutil.CreateUser(t, env.Repos.Users, "Member", "member@example.com", "", user.RoleUser, org.ID, true)
	outsider := testutil.CreateUser(t, env.Repos.Users, "Outsider", "outsider@example.com", "", user.RoleAdmin, "", true)

	tests := []struct {
		name       string
		usr        user.User
		wantView   bool
		wantManage bool
	}{
		{"creator", creator, true, true},
		{"admin member", admin, true, true},
		{"member", member, true, false},
		{"outsider admin", outsider, false, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.wantView, env.OrgSvc.CanView(org, tt.usr))
			assert.Equal(t, tt.wantManage, env.OrgSvc.CanManage(org, tt.usr))
		})
	}
}
