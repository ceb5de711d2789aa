package echoapi_test

import (
	"context"
	"net/http"
	"testing"

	"github.com/dgrijalva/jwt-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	echoapi "github.com/trezcool/forma/apps/api/echo"
	"github.com/trezcool/forma/core/user"
	"github.com/trezcool/forma/testutil"
)

const pwd = "Xk4!vTq9#z"

func TestUserApi_login(t *testing.T) {
	app := setup(t)
	testutil.CreateUser(t, app.Repos.Users, "Jane", "jane@example.com", pwd, "", "", true)
	testutil.CreateUser(t, app.Repos.Users, "N Dog", "ndog@example.com", pwd, "", "", false)

	app.run(t, []httpTest{
		{
			name: "missing credentials", method: http.MethodPost, path: "/api/users/login", body: []byte(`{}`),
			wantCode: http.StatusBadRequest,
			wantData: marshalObj(t, map[string]string{"email": "this field is required", "password": "this field is required"}),
		},
		{
			name: "unknown email", method: http.MethodPost, path: "/api/users/login",
			body:     marshalObj(t, echoapi.LoginRequest{Email: "joe@example.com", Password: pwd}),
			wantCode: http.StatusBadRequest, wantData: marshalObj(t, httpErr{Error: "authentication failed"}),
		},
		{
			name: "wrong password", method: http.MethodPost, path: "/api/users/login",
			body:     marshalObj(t, echoapi.LoginRequest{Email: "jane@example.com", Password: "nope"}),
			wantCode: http.StatusBadRequest, wantData: marshalObj(t, httpErr{Error: "authentication failed"}),
		},
		{
			name: "deactivated", method: http.MethodPost, path: "/api/users/login",
			body:     marshalObj(t, echoapi.LoginRequest{Email: "ndog@example.com", Password: pwd}),
			wantCode: http.StatusForbidden, wantData: marshalObj(t, httpErr{Error: "account deactivated"}),
		},
	})

	t.Run("success", func(t *testing.T) {
		rec := app.serve(http.MethodPost, "/api/users/login", "",
			marshalObj(t, echoapi.LoginRequest{Email: " JANE@example.com ", Password: pwd}))
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

		var resp echoapi.LoginResponse
		decode(t, rec, &resp)
		assert.Equal(t, "jane@example.com", resp.User.Email)
		assert.False(t, resp.User.LastLogin.IsZero())

		claims := new(echoapi.Claims)
		_, err := jwt.ParseWithClaims(resp.Token, claims, func(*jwt.Token) (interface{}, error) {
			return []byte(app.Conf.SecretKey), nil
		})
		require.NoError(t, err)
		assert.Equal(t, resp.User.ID, claims.Subject)
		assert.Equal(t, user.RoleUser, claims.Role)
		assert.Equal(t, claims.IssuedAt, claims.OrigIssuedAt)
	})
}

func TestUserApi_register(t *testing.T) {
	app := setup(t)
	existing := testutil.CreateUser(t, app.Repos.Users, "Jane", "jane@example.com", pwd, "", "", true)

	app.run(t, []httpTest{
		{
			name: "duplicate email", method: http.MethodPost, path: "/api/users/register",
			body: marshalObj(t, user.NewUser{
				Name: "Other", Email: existing.Email, Password: pwd, PasswordConfirm: pwd,
			}),
			wantCode: http.StatusBadRequest,
			wantData: marshalObj(t, map[string]string{"email": user.ErrEmailExists.Error()}),
		},
		{
			name: "invalid", method: http.MethodPost, path: "/api/users/register",
			body:     marshalObj(t, user.NewUser{Name: "Joe", Email: "joe", Password: pwd, PasswordConfirm: pwd}),
			wantCode: http.StatusBadRequest,
			wantData: marshalObj(t, map[string]string{"email": "email must be a valid email address"}),
		},
	})

	rec := app.serve(http.MethodPost, "/api/users/register", "", marshalObj(t, user.NewUser{
		Name: "Joe", Email: "joe@example.com", Password: pwd, PasswordConfirm: pwd, Role: user.RoleAdmin,
	}))
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var resp echoapi.LoginResponse
	decode(t, rec, &resp)
	assert.NotEmpty(t, resp.Token)
	assert.Equal(t, user.RoleUser, resp.User.Role, "registration always grants the user role")
}

func TestUserApi_passwordReset(t *testing.T) {
	app := setup(t)
	usr := testutil.CreateUser(t, app.Repos.Users, "Jane", "jane@example.com", pwd, "", "", true)
	success := echoapi.SuccessResponse{
		Success: "If the email address supplied is associated with an active account on this system, " +
			"an email will arrive in your inbox shortly with instructions to reset your password.",
	}

	app.run(t, []httpTest{
		{
			name: "invalid email", method: http.MethodPost, path: "/api/users/password-reset",
			body:     []byte(`{"email": "nope"}`),
			wantCode: http.StatusBadRequest,
			wantData: marshalObj(t, map[string]string{"email": "email must be a valid email address"}),
		},
		{
			name: "unknown email", method: http.MethodPost, path: "/api/users/password-reset",
			body: []byte(`{"email": "joe@example.com"}`), wantData: marshalObj(t, success),
		},
	})
	assert.Empty(t, app.Mail.SentMessages())

	rec := app.serve(http.MethodPost, "/api/users/password-reset", "", []byte(`{"email": "jane@example.com"}`))
	checkCodeAndData(t, httpTest{wantData: marshalObj(t, success)}, rec)
	require.Len(t, app.Mail.SentMessages(), 1)

	token, err := user.MakeToken(usr, app.Conf)
	require.NoError(t, err)
	confirm := user.ResetUserPassword{
		UID: user.EncodeUID(usr), Token: token, Password: "N3wPassw0rd!", PasswordConfirm: "N3wPassw0rd!",
	}

	rec = app.serve(http.MethodPost, "/api/users/password-reset-confirm", "", marshalObj(t, confirm))
	checkCodeAndData(t, httpTest{
		wantData: marshalObj(t, echoapi.SuccessResponse{Success: "Password has been reset with the new password."}),
	}, rec)

	// tokens are single use
	rec = app.serve(http.MethodPost, "/api/users/password-reset-confirm", "", marshalObj(t, confirm))
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = app.serve(http.MethodPost, "/api/users/login", "",
		marshalObj(t, echoapi.LoginRequest{Email: usr.Email, Password: "N3wPassw0rd!"}))
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestUserApi_me(t *testing.T) {
	app := setup(t)
	usr := testutil.CreateUser(t, app.Repos.Users, "Jane", "jane@example.com", pwd, "", "", true)
	cs := testutil.CreateUser(t, app.Repos.Users, "Support", "cs@example.com", pwd, user.RoleCustomerSuccess, "", true)
	admin := testutil.CreateUser(t, app.Repos.Users, "Admin", "admin@example.com", pwd, user.RoleAdmin, "", true)
	other := testutil.CreateUser(t, app.Repos.Users, "Other", "other@example.com", pwd, "", "", true)
	csToken := app.token(t, cs)

	app.run(t, []httpTest{
		{name: "auth required", path: "/api/users/me", wantCode: http.StatusUnauthorized, wantData: marshalObj(t, errMissingToken)},
		{
			name: "invalid token", path: "/api/users/me", token: "garbage",
			wantCode: http.StatusUnauthorized, wantData: marshalObj(t, httpErr{Error: "invalid or expired jwt"}),
		},
		{name: "me", path: "/api/users/me", token: app.token(t, usr), wantData: marshalObj(t, echoapi.MeResponse{User: usr})},
		{
			name: "users cannot impersonate", method: http.MethodPost, path: "/api/users/impersonate",
			token: app.token(t, usr), body: marshalObj(t, echoapi.ImpersonateRequest{UserID: other.ID}),
			wantCode: http.StatusForbidden, wantData: marshalObj(t, httpErr{Error: "permission denied"}),
		},
		{
			name: "cannot impersonate higher roles", method: http.MethodPost, path: "/api/users/impersonate",
			token: csToken, body: marshalObj(t, echoapi.ImpersonateRequest{UserID: admin.ID}),
			wantCode: http.StatusForbidden, wantData: marshalObj(t, httpErr{Error: "permission denied"}),
		},
		{
			name: "unknown user", method: http.MethodPost, path: "/api/users/impersonate",
			token: csToken, body: marshalObj(t, echoapi.ImpersonateRequest{UserID: "8a1b2c3d-0000-4000-8000-000000000000"}),
			wantCode: http.StatusNotFound, wantData: marshalObj(t, httpErr{Error: "not found"}),
		},
	})

	rec := app.serve(http.MethodPost, "/api/users/impersonate", csToken, marshalObj(t, echoapi.ImpersonateRequest{UserID: usr.ID}))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var resp echoapi.LoginResponse
	decode(t, rec, &resp)
	assert.Equal(t, usr.ID, resp.User.ID)

	rec = app.serve(http.MethodGet, "/api/users/me", resp.Token)
	checkCodeAndData(t, httpTest{wantData: marshalObj(t, echoapi.MeResponse{User: usr, Impersonator: &cs})}, rec)

	// impersonation does not chain, and survives a refresh
	rec = app.serve(http.MethodPost, "/api/users/impersonate", resp.Token, marshalObj(t, echoapi.ImpersonateRequest{UserID: other.ID}))
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = app.serve(http.MethodPost, "/api/users/token-refresh", resp.Token)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var refreshed echoapi.TokenResponse
	decode(t, rec, &refreshed)
	rec = app.serve(http.MethodGet, "/api/users/me", refreshed.Token)
	checkCodeAndData(t, httpTest{wantData: marshalObj(t, echoapi.MeResponse{User: usr, Impersonator: &cs})}, rec)
}

func TestUserApi_refreshExpired(t *testing.T) {
	app := setup(t)
	usr := testutil.CreateUser(t, app.Repos.Users, "Jane", "jane@example.com", pwd, "", "", true)

	claims := echoapi.GetUserClaims(app.Conf, usr, 1 /* origIat: long ago */)
	token, err := echoapi.GenerateToken(app.Conf, claims)
	require.NoError(t, err)

	rec := app.serve(http.MethodPost, "/api/users/token-refresh", token)
	checkCodeAndData(t, httpTest{wantCode: http.StatusForbidden, wantData: marshalObj(t, httpErr{Error: "refresh has expired"})}, rec)
}

func TestUserApi_admin(t *testing.T) {
	app := setup(t)
	ctx := context.Background()
	owner := testutil.CreateUser(t, app.Repos.Users, "Owner", "owner@example.com", pwd, user.RoleAdmin, "", true)
	org := testutil.CreateOrganization(t, app.Repos.Organizations, "Acme", "", owner)
	admin := testutil.CreateUser(t, app.Repos.Users, "Admin", "admin@example.com", pwd, user.RoleAdmin, org.ID, true)
	member := testutil.CreateUser(t, app.Repos.Users, "Member", "member@example.com", pwd, "", org.ID, true)
	outsider := testutil.CreateUser(t, app.Repos.Users, "Outsider", "outsider@example.com", pwd, "", "", true)
	adminToken := app.token(t, admin)

	app.run(t, []httpTest{
		{
			name: "admin required", path: "/api/users", token: app.token(t, member),
			wantCode: http.StatusForbidden, wantData: marshalObj(t, httpErr{Error: "permission denied"}),
		},
		{name: "org members only", path: "/api/users?ordering=name", token: adminToken, wantData: marshalList(t, admin, member)},
		{name: "search", path: "/api/users?search=MEM", token: adminToken, wantData: marshalList(t, member)},
		{name: "outsider is hidden", path: "/api/users/" + outsider.ID, token: adminToken, wantCode: http.StatusNotFound},
		{name: "retrieve", path: "/api/users/" + member.ID, token: adminToken, wantData: marshalObj(t, member)},
		{name: "users see themselves only", path: "/api/users/" + admin.ID, token: app.token(t, member), wantCode: http.StatusNotFound},
		{
			name: "users cannot change their role", method: http.MethodPut, path: "/api/users/" + member.ID,
			token: app.token(t, member), body: []byte(`{"role": "admin"}`),
			wantCode: http.StatusForbidden, wantData: marshalObj(t, httpErr{Error: "permission denied"}),
		},
		{
			name: "no suicide", method: http.MethodDelete, path: "/api/users/" + admin.ID, token: adminToken,
			wantCode: http.StatusForbidden, wantData: marshalObj(t, httpErr{Error: "permission denied"}),
		},
		{name: "roles", path: "/api/users/roles", wantData: marshalObj(t, user.Roles)},
	})

	rec := app.serve(http.MethodPost, "/api/users", adminToken, marshalObj(t, user.NewUser{
		Name: "Joe", Email: "joe@example.com", Password: pwd, PasswordConfirm: pwd, Role: user.RoleCustomerSuccess,
	}))
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var created user.User
	decode(t, rec, &created)
	assert.Equal(t, org.ID, created.OrganizationID, "admins create users in their organization")
	assert.Equal(t, user.RoleCustomerSuccess, created.Role)

	rec = app.serve(http.MethodPut, "/api/users/"+member.ID, app.token(t, member), []byte(`{"name": "Renamed"}`))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var updated user.User
	decode(t, rec, &updated)
	assert.Equal(t, "Renamed", updated.Name)

	rec = app.serve(http.MethodDelete, "/api/users/"+member.ID, adminToken)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	_, err := app.UserSvc.GetByID(ctx, member.ID)
	assert.Error(t, err)
}
