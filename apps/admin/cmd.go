package main

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"os"

	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/trezcool/forma/core"
	"github.com/trezcool/forma/core/form"
	"github.com/trezcool/forma/core/user"
)

var (
	readPasswordFunc = term.ReadPassword // mockable

	errHelp       = errors.New("help provided")
	errNoDatabase = errors.New("no database configured: set STORAGE=postgres")
)

type commandLine struct {
	db         *sql.DB // nil with memory storage
	usrRepo    user.Repository
	formSvc    form.Service
	validate   *validator.Validate
	translator ut.Translator
	logger     core.Logger
	out        io.Writer
}

func (cli *commandLine) rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "admin",
		Short:         "Forma administration commands",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.SetOut(cli.out)
	root.SetErr(cli.out)
	root.AddCommand(
		cli.migrateCmd(),
		cli.addUserCmd(),
		cli.resetPasswordCmd(),
		cli.seedFormsCmd(),
	)
	return root
}

func (cli *commandLine) run(args []string) error {
	root := cli.rootCmd()
	root.SetArgs(args)
	return root.ExecuteContext(context.Background())
}

// promptPassword reads a password, twice, without echoing it.
func (cli *commandLine) promptPassword(cmd *cobra.Command) (string, error) {
	read := func(prompt string) (string, error) {
		fmt.Fprint(cli.out, prompt)
		pwd, err := readPasswordFunc(int(os.Stdin.Fd()))
		fmt.Fprintln(cli.out)
		return string(pwd), err
	}

	pwd, err := read("Enter password: ")
	if err != nil {
		return "", errors.Wrap(err, "reading password")
	}
	if pwd == "" {
		_ = cmd.Usage()
		return "", errHelp
	}
	confirm, err := read("Confirm password: ")
	if err != nil {
		return "", errors.Wrap(err, "reading password")
	}
	if pwd != confirm {
		return "", errors.New("passwords do not match")
	}
	return pwd, nil
}

// validationError flattens translated validation errors into a single error.
func (cli *commandLine) validationError(err error) error {
	verr, ok := core.TranslateValidationError(err, cli.translator)
	if !ok || len(verr.Fields) == 0 {
		return err
	}
	msg := "invalid input:"
	for _, fe := range verr.Fields {
		msg += fmt.Sprintf(" %s: %s;", fe.Field, fe.Error)
	}
	return errors.New(msg)
}
