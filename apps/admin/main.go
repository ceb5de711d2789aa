package main

import (
	"context"
	"database/sql"
	"fmt"
	"os"

	"github.com/trezcool/forma/core"
	"github.com/trezcool/forma/core/form"
	"github.com/trezcool/forma/core/user"
	logsvc "github.com/trezcool/forma/services/logger"
	"github.com/trezcool/forma/storage"
	"github.com/trezcool/forma/storage/database"
)

func main() {
	os.Exit(run())
}

func run() int {
	conf := core.NewConfig()

	logger, err := logsvc.NewZapLogger(conf)
	if err != nil {
		fmt.Fprintf(os.Stderr, "setting up logger: %v\n", err)
		return 1
	}
	defer func() { _ = logger.Sync() }()

	// set up DB
	var (
		db    *sql.DB
		repos *storage.Repositories
	)
	if conf.UseMemoryStorage() {
		repos = storage.NewMemory()
	} else {
		ctx := context.Background()
		if err = database.CreateIfNotExist(ctx, conf); err != nil {
			logger.Error("creating database", err)
			return 1
		}
		sqlxDB, err := database.Open(ctx, conf)
		if err != nil {
			logger.Error("opening database", err)
			return 1
		}
		db = sqlxDB.DB
		repos = storage.NewDatabase(sqlxDB)
	}
	defer func() { _ = repos.Close() }()

	validate, translator := core.NewValidator()
	user.RegisterValidators(validate, translator)
	form.RegisterValidators(validate, translator)

	// start CLI
	cli := commandLine{
		db:         db,
		usrRepo:    repos.Users,
		formSvc:    form.NewService(repos.Tx, repos.Forms),
		validate:   validate,
		translator: translator,
		logger:     logger,
		out:        os.Stdout,
	}
	if err = cli.run(os.Args[1:]); err != nil {
		if err != errHelp {
			fmt.Fprintf(os.Stderr, "\nerror: %s\n", err)
		}
		return 1
	}
	return 0
}
