package main

import (
	"context"
	"expvar"
	"fmt"
	"net/http"
	_ "net/http/pprof" // registers the /debug/pprof handlers
	"os"

	"github.com/pkg/errors"

	echoapi "github.com/trezcool/forma/apps/api/echo"
	"github.com/trezcool/forma/core"
	"github.com/trezcool/forma/core/form"
	"github.com/trezcool/forma/core/moffin"
	"github.com/trezcool/forma/core/organization"
	"github.com/trezcool/forma/core/session"
	"github.com/trezcool/forma/core/user"
	emailsvc "github.com/trezcool/forma/services/email"
	logsvc "github.com/trezcool/forma/services/logger"
	moffinsvc "github.com/trezcool/forma/services/moffin"
	"github.com/trezcool/forma/storage"
	"github.com/trezcool/forma/storage/database"
)

func main() {
	conf := core.NewConfig()

	zl, err := logsvc.NewZapLogger(conf)
	if err != nil {
		fmt.Fprintf(os.Stderr, "setting up logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = zl.Sync() }()

	logger := logsvc.NewRollbarLogger(zl, conf)
	logger.Enable(!conf.Debug && conf.RollbarToken != "")
	defer logger.Close()

	if err = run(conf, logger); err != nil {
		logger.Fatal("application error", err)
	}
}

func run(conf *core.Config, logger core.Logger) error {
	// =========================================================================
	// Set up Dependencies

	repos, err := setUpStorage(conf)
	if err != nil {
		return errors.Wrap(err, "setting up storage")
	}
	defer func() {
		if err := repos.Close(); err != nil {
			logger.Error("closing storage", err)
		}
	}()

	var mailSvc core.EmailService
	if conf.Debug {
		mailSvc = emailsvc.NewConsoleService(conf, logger)
	} else {
		mailSvc = emailsvc.NewSendgridService(conf, logger)
	}

	validate, translator := core.NewValidator()
	user.RegisterValidators(validate, translator)
	organization.RegisterValidators(validate, translator)
	form.RegisterValidators(validate, translator)
	moffin.RegisterValidators(validate, translator)

	deps := echoapi.Deps{
		Conf:       conf,
		Logger:     logger,
		Validate:   validate,
		Translator: translator,
		UserSvc:    user.NewService(repos.Users, mailSvc, conf),
		OrgSvc:     organization.NewService(repos.Tx, repos.Organizations, repos.Users),
		FormSvc:    form.NewService(repos.Tx, repos.Forms),
		SessionSvc: session.NewService(
			repos.Tx, repos.Sessions, repos.Submissions, repos.Events,
			repos.Forms, repos.Users, mailSvc, logger, conf,
		),
		MoffinSvc: moffin.NewService(repos.Moffin, moffinsvc.Factory(conf), conf),
	}

	logger.Info(fmt.Sprintf("Application initializing : version %q", conf.Build))
	defer logger.Info("Application stopped")

	// =========================================================================
	// Start Debug Service
	//
	// /debug/pprof - Added to the default mux by importing the net/http/pprof package.
	// /debug/vars - Added to the default mux by importing the expvar package.

	expvar.NewString("build").Set(conf.Build)
	expvar.NewString("env").Set(conf.Env)
	expvar.NewString("storage").Set(conf.Storage)

	if conf.Server.DebugAddress != "" {
		go func() {
			if err := http.ListenAndServe(conf.Server.DebugAddress, http.DefaultServeMux); err != nil {
				logger.Error(fmt.Sprintf("debug server closed: %v", err), err)
			}
		}()
	}

	// =========================================================================
	// Start API Service

	server := echoapi.NewServer(deps)
	go server.Start()

	// =========================================================================
	// Shutdown

	select {
	case err = <-server.Errors():
		return errors.Wrap(err, "server error")

	case sig := <-server.ShutdownSignal():
		logger.Info(fmt.Sprintf("%v: Start shutdown...", sig))

		// give outstanding requests a deadline for completion
		ctx, cancel := context.WithTimeout(context.Background(), conf.Server.ShutdownTimeout)
		defer cancel()

		// asking listener to shutdown and shed load
		if err = server.Shutdown(ctx); err != nil {
			logger.Error(fmt.Sprintf("could not stop server gracefully: %v", err), err)
			if err = server.Close(); err != nil {
				return errors.Wrap(err, "could not force stop server")
			}
		}
	}
	return nil
}

// setUpStorage creates and migrates the PostgreSQL database, unless memory storage is configured.
func setUpStorage(conf *core.Config) (*storage.Repositories, error) {
	ctx := context.Background()
	if conf.UseMemoryStorage() {
		return storage.NewMemory(), nil
	}

	if err := database.CreateIfNotExist(ctx, conf); err != nil {
		return nil, err
	}
	db, err := database.Open(ctx, conf)
	if err != nil {
		return nil, err
	}
	if err = database.Migrate(ctx, db); err != nil {
		_ = db.Close()
		return nil, err
	}
	return storage.NewDatabase(db), nil
}
