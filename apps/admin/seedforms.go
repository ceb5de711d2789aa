package main

import (
	"context"
	"fmt"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/trezcool/forma/core"
	"github.com/trezcool/forma/core/form"
	"github.com/trezcool/forma/core/user"
	appfs "github.com/trezcool/forma/fs"
)

func (cli *commandLine) seedFormsCmd() *cobra.Command {
	var owner string
	cmd := &cobra.Command{
		Use:   "seedforms [SLUG...]",
		Short: "Import the sample forms",
		Long:  "Create or update the sample forms shipped with the binary, all of them unless slugs are given.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return cli.seedForms(cmd.Context(), owner, args...)
		},
	}
	cmd.Flags().StringVar(&owner, "owner", "", "email of the user owning the forms, which belong to their organization")
	_ = cmd.MarkFlagRequired("owner")
	return cmd
}

func (cli *commandLine) seedForms(ctx context.Context, ownerEmail string, slugs ...string) error {
	owner, err := cli.usrRepo.GetUser(ctx, user.GetFilter{Email: core.CleanString(ownerEmail, true /* lower */)})
	if err != nil {
		return err
	}

	seeds, err := form.LoadSeeds(appfs.FS, "seeds")
	if err != nil {
		return err
	}
	var imported int
	for _, seed := range seeds {
		if len(slugs) > 0 && !core.StringInSlice(seed.Slug, slugs) {
			continue
		}
		nt := seed.NewTemplate
		if err = nt.Validate(cli.validate); err != nil {
			return errors.Wrapf(cli.validationError(err), "seed %s", seed.Slug)
		}
		t, created, err := cli.formSvc.Import(ctx, seed.Slug, nt, owner)
		if err != nil {
			return errors.Wrapf(err, "importing %s", seed.Slug)
		}
		action := "updated"
		if created {
			action = "created"
		}
		cli.logger.Info(fmt.Sprintf("form %s %s", t.Slug, action), map[string]interface{}{"form_id": t.ID})
		fmt.Fprintf(cli.out, "%s %s\n", action, t.Slug)
		imported++
	}
	if imported == 0 {
		return errors.New("no seed form matched")
	}
	return nil
}
