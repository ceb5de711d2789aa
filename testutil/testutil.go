// Package testutil wires the services on in-memory storage for tests.
package testutil

import (
	"context"
	"testing"
	"time"

	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"

	"github.com/trezcool/forma/core"
	"github.com/trezcool/forma/core/form"
	"github.com/trezcool/forma/core/moffin"
	"github.com/trezcool/forma/core/organization"
	"github.com/trezcool/forma/core/session"
	"github.com/trezcool/forma/core/user"
	appfs "github.com/trezcool/forma/fs"
	emailsvc "github.com/trezcool/forma/services/email"
	logsvc "github.com/trezcool/forma/services/logger"
	"github.com/trezcool/forma/storage"
)

type Env struct {
	Conf       *core.Config
	Logger     core.Logger
	Mail       *emailsvc.Mock
	Repos      *storage.Repositories
	Validate   *validator.Validate
	Translator ut.Translator
	Moffin     *FakeMoffin

	UserSvc    user.Service
	OrgSvc     organization.Service
	FormSvc    form.Service
	SessionSvc session.Service
	MoffinSvc  moffin.Service
}

// NewEnv returns services backed by a fresh in-memory database and a fake Moffin API.
func NewEnv(t testing.TB) *Env {
	t.Helper()

	conf := core.NewTestConfig()
	conf.Moffin.ClientID = "client"
	conf.Moffin.ClientSecret = "secret"

	logger := logsvc.NewNopLogger()
	mail := emailsvc.NewConsoleServiceMock(conf, logger)
	repos := storage.NewMemory()
	fake := NewFakeMoffin()

	validate, translator := core.NewValidator()
	user.RegisterValidators(validate, translator)
	organization.RegisterValidators(validate, translator)
	form.RegisterValidators(validate, translator)
	moffin.RegisterValidators(validate, translator)

	return &Env{
		Conf:       conf,
		Logger:     logger,
		Mail:       mail,
		Repos:      repos,
		Validate:   validate,
		Translator: translator,
		Moffin:     fake,
		UserSvc:    user.NewService(repos.Users, mail, conf),
		OrgSvc:     organization.NewService(repos.Tx, repos.Organizations, repos.Users),
		FormSvc:    form.NewService(repos.Tx, repos.Forms),
		SessionSvc: session.NewService(
			repos.Tx, repos.Sessions, repos.Submissions, repos.Events,
			repos.Forms, repos.Users, mail, logger, conf,
		),
		MoffinSvc: moffin.NewService(repos.Moffin, fake.Factory, conf),
	}
}

func CreateUser(
	t testing.TB,
	repo user.Repository,
	name, email, pwd, role, orgID string,
	isActive bool,
	createdAt ...time.Time,
) user.User {
	t.Helper()

	tstamp := time.Now().UTC()
	if len(createdAt) > 0 {
		tstamp = createdAt[0].UTC()
	}
	if role == "" {
		role = user.RoleUser
	}
	usr := user.User{
		Name:           name,
		Email:          email,
		Role:           role,
		OrganizationID: orgID,
		IsActive:       isActive,
		CreatedAt:      tstamp,
		UpdatedAt:      tstamp,
	}
	if pwd != "" {
		if err := usr.SetPassword(pwd); err != nil {
			t.Fatalf("CreateUser() failed: %v", err)
		}
	}
	usr, err := repo.CreateUser(context.Background(), usr)
	if err != nil {
		t.Fatalf("CreateUser() failed: %v", err)
	}
	return usr
}

func CreateOrganization(t testing.TB, repo organization.Repository, name, moffinKey string, owner user.User) organization.Organization {
	t.Helper()

	now := time.Now().UTC()
	org, err := repo.CreateOrganization(context.Background(), organization.Organization{
		Name:          name,
		Slug:          core.Slugify(name),
		MoffinAPIKey:  moffinKey,
		MoffinBaseURL: organization.DefaultMoffinBaseURL,
		IsActive:      true,
		CreatedBy:     owner.ID,
		CreatedAt:     now,
		UpdatedAt:     now,
	})
	if err != nil {
		t.Fatalf("CreateOrganization() failed: %v", err)
	}
	return org
}

// ImportSeed stores the embedded seed form slug, owned by owner.
func ImportSeed(t testing.TB, svc form.Service, validate *validator.Validate, slug string, owner user.User) form.Template {
	t.Helper()

	seeds, err := form.LoadSeeds(appfs.FS, "seeds")
	if err != nil {
		t.Fatalf("ImportSeed() failed: %v", err)
	}
	for _, seed := range seeds {
		if seed.Slug != slug {
			continue
		}
		nt := seed.NewTemplate
		if err = nt.Validate(validate); err != nil {
			t.Fatalf("ImportSeed(%s) failed: %v", slug, err)
		}
		tmpl, _, err := svc.Import(context.Background(), seed.Slug, nt, owner)
		if err != nil {
			t.Fatalf("ImportSeed(%s) failed: %v", slug, err)
		}
		return tmpl
	}
	t.Fatalf("ImportSeed(): unknown seed %q", slug)
	return form.Template{}
}
