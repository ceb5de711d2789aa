package main

import (
	"bytes"
	"context"
	"database/sql"
	"fmt"
	"strconv"
	"testing"

	_ "github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/forma/core/user"
	"github.com/trezcool/forma/testutil"
)

const pwd = "Xk4!vTq9#z"

type testCLI struct {
	*commandLine
	env *testutil.Env
}

func setup(t *testing.T) testCLI {
	env := testutil.NewEnv(t)
	return testCLI{
		commandLine: &commandLine{
			usrRepo:    env.Repos.Users,
			formSvc:    env.FormSvc,
			validate:   env.Validate,
			translator: env.Translator,
			logger:     env.Logger,
			out:        new(bytes.Buffer),
		},
		env: env,
	}
}

// mockPasswords makes the password prompt answer pwds, in order.
func mockPasswords(t *testing.T, pwds ...string) {
	orig := readPasswordFunc
	t.Cleanup(func() { readPasswordFunc = orig })

	readPasswordFunc = func(fd int) ([]byte, error) {
		if len(pwds) == 0 {
			return nil, nil
		}
		pwd := pwds[0]
		pwds = pwds[1:]
		return []byte(pwd), nil
	}
}

type cliTest struct {
	name       string
	args       []string // without program name
	pwds       []string
	wantErr    error
	wantErrStr string
}

func (cli testCLI) runTests(t *testing.T, tests []cliTest, check func(t *testing.T, tt cliTest)) {
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mockPasswords(t, tt.pwds...)
			err := cli.run(tt.args)
			switch {
			case tt.wantErr != nil:
				assert.Equal(t, tt.wantErr, err)
			case tt.wantErrStr != "":
				if assert.Error(t, err) {
					assert.Contains(t, err.Error(), tt.wantErrStr)
				}
			default:
				require.NoError(t, err)
				if check != nil {
					check(t, tt)
				}
			}
		})
	}
}

func Test_commandLine_migrate(t *testing.T) {
	cli := setup(t)

	t.Run("memory storage", func(t *testing.T) {
		assert.Equal(t, errNoDatabase, cli.run([]string{"migrate", "up"}))
	})

	db, err := sql.Open("postgres", "postgres://localhost/forma_test?sslmode=disable")
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	cli.db = db

	var gotCmd string
	orig := gooseRunFunc
	t.Cleanup(func() { gooseRunFunc = orig })
	gooseRunFunc = func(_ context.Context, command string, _ *sql.DB, dir string, args ...string) error {
		gotCmd = command
		if dir != "migrations" {
			return fmt.Errorf("unexpected dir %q", dir)
		}
		switch command {
		case "up", "up-by-one", "down", "fix", "redo", "reset", "status", "version": // pass
		case "up-to", "down-to":
			if len(args) == 0 {
				return fmt.Errorf("%s must be of form: goose [OPTIONS] DRIVER DBSTRING %s VERSION", command, command)
			}
			if _, err := strconv.ParseInt(args[0], 10, 64); err != nil {
				return fmt.Errorf("version must be a number (got '%s')", args[0])
			}
		default:
			return fmt.Errorf("%q: no such command", command)
		}
		return nil
	}

	tests := []cliTest{
		{name: "no subcommand", args: []string{"migrate"}, wantErrStr: "requires at least 1 arg(s)"},
		{name: "unknown subcommand", args: []string{"migrate", "lol"}, wantErrStr: "\"lol\": no such command"},
		{name: "up-to: no args", args: []string{"migrate", "up-to"}, wantErrStr: "up-to must be of form"},
		{name: "up-to: non-int arg", args: []string{"migrate", "up-to", "lol"}, wantErrStr: "version must be a number (got 'lol')"},
		{name: "down-to: no args", args: []string{"migrate", "down-to"}, wantErrStr: "down-to must be of form"},
		{name: "up", args: []string{"migrate", "up"}},
		{name: "up-by-one", args: []string{"migrate", "up-by-one"}},
		{name: "up-to", args: []string{"migrate", "up-to", "2"}},
		{name: "down", args: []string{"migrate", "down"}},
		{name: "down-to", args: []string{"migrate", "down-to", "1"}},
		{name: "redo", args: []string{"migrate", "redo"}},
		{name: "reset", args: []string{"migrate", "reset"}},
		{name: "status", args: []string{"migrate", "status"}},
		{name: "version", args: []string{"migrate", "version"}},
		{name: "fix", args: []string{"migrate", "fix"}},
	}
	cli.runTests(t, tests, func(t *testing.T, tt cliTest) {
		assert.Equal(t, tt.args[1], gotCmd)
	})
}

func Test_commandLine_addUser(t *testing.T) {
	cli := setup(t)
	ctx := context.Background()

	tests := []cliTest{
		{name: "unknown command", args: []string{"lol"}, wantErrStr: "unknown command \"lol\""},
		{name: "missing flags", args: []string{"adduser"}, wantErrStr: "required flag(s)"},
		{name: "no password", args: []string{"adduser", "--name", "Admin", "--email", "admin@example.com"}, wantErr: errHelp},
		{
			name: "passwords mismatch", args: []string{"adduser", "--name", "Admin", "--email", "admin@example.com"},
			pwds: []string{pwd, pwd + "x"}, wantErrStr: "passwords do not match",
		},
		{
			name: "weak password", args: []string{"adduser", "--name", "Admin", "--email", "admin@example.com"},
			pwds: []string{"12345678", "12345678"}, wantErrStr: "password cannot be entirely numeric",
		},
		{
			name: "invalid role", args: []string{"adduser", "--name", "Admin", "--email", "admin@example.com", "--role", "boss"},
			pwds: []string{pwd, pwd}, wantErrStr: "invalid role",
		},
	}
	cli.runTests(t, tests, nil)

	mockPasswords(t, pwd, pwd)
	require.NoError(t, cli.run([]string{"adduser", "--name", " Admin ", "--email", "Admin@Example.com"}))
	created, err := cli.usrRepo.GetUser(ctx, user.GetFilter{Email: "admin@example.com"})
	require.NoError(t, err)
	assert.Equal(t, "Admin", created.Name)
	assert.Equal(t, user.RoleAdmin, created.Role)
	assert.True(t, created.IsActive)
	assert.NoError(t, created.CheckPassword(pwd))

	newPwd := "Zq7$mWp2!k"
	mockPasswords(t, newPwd, newPwd)
	require.NoError(t, cli.run([]string{
		"adduser", "--name", "Support", "--email", "admin@example.com", "--role", user.RoleCustomerSuccess,
	}))
	updated, err := cli.usrRepo.GetUser(ctx, user.GetFilter{Email: "admin@example.com"})
	require.NoError(t, err)
	assert.Equal(t, created.ID, updated.ID, "existing users are updated")
	assert.Equal(t, "Support", updated.Name)
	assert.Equal(t, user.RoleCustomerSuccess, updated.Role)
	assert.NoError(t, updated.CheckPassword(newPwd))
}

func Test_commandLine_resetPassword(t *testing.T) {
	cli := setup(t)
	usr := testutil.CreateUser(t, cli.usrRepo, "User", "user@example.com", pwd, "", "", true)

	tests := []cliTest{
		{name: "no email", args: []string{"resetpassword"}, wantErrStr: "required flag(s) \"email\" not set"},
		{name: "no password", args: []string{"resetpassword", "--email", usr.Email}, wantErr: errHelp},
		{name: "user not found", args: []string{"resetpassword", "--email", "lol@example.com"}, pwds: []string{pwd, pwd}, wantErr: user.ErrNotFound},
		{
			name: "too similar", args: []string{"resetpassword", "--email", usr.Email},
			pwds: []string{"User@example.com1", "User@example.com1"}, wantErrStr: "password cannot be similar to user attributes",
		},
		{name: "reset", args: []string{"resetpassword", "--email", usr.Email}, pwds: []string{"Zq7$mWp2!k", "Zq7$mWp2!k"}},
		{name: "reset with uppercase email", args: []string{"resetpassword", "--email", "USER@example.com"}, pwds: []string{"Rt5%nBv8&j", "Rt5%nBv8&j"}},
	}
	cli.runTests(t, tests, func(t *testing.T, tt cliTest) {
		refreshed, err := cli.usrRepo.GetUser(context.Background(), user.GetFilter{ID: usr.ID})
		require.NoError(t, err)
		assert.NoError(t, refreshed.CheckPassword(tt.pwds[0]))
		assert.NotEqual(t, usr.PasswordHash, refreshed.PasswordHash)
	})
}

func Test_commandLine_seedForms(t *testing.T) {
	cli := setup(t)
	ctx := context.Background()
	owner := testutil.CreateUser(t, cli.usrRepo, "Owner", "owner@example.com", pwd, user.RoleAdmin, "", true)

	tests := []cliTest{
		{name: "no owner", args: []string{"seedforms"}, wantErrStr: "required flag(s) \"owner\" not set"},
		{name: "owner not found", args: []string{"seedforms", "--owner", "lol@example.com"}, wantErr: user.ErrNotFound},
		{name: "unknown slug", args: []string{"seedforms", "--owner", owner.Email, "nope"}, wantErrStr: "no seed form matched"},
	}
	cli.runTests(t, tests, nil)

	require.NoError(t, cli.run([]string{"seedforms", "--owner", owner.Email, "financial-onboarding"}))
	templates, err := cli.formSvc.Query(ctx, nil, nil)
	require.NoError(t, err)
	require.Len(t, templates, 1)
	assert.Equal(t, "financial-onboarding", templates[0].Slug)
	assert.Equal(t, owner.ID, templates[0].CreatedBy)

	require.NoError(t, cli.run([]string{"seedforms", "--owner", owner.Email}))
	templates, err = cli.formSvc.Query(ctx, nil, nil)
	require.NoError(t, err)
	assert.Len(t, templates, 3, "existing forms are updated, not duplicated")
	assert.Contains(t, cli.out.(*bytes.Buffer).String(), "updated financial-onboarding")
}
