package main

import (
	"context"
	"fmt"
	"time"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/trezcool/forma/core"
	"github.com/trezcool/forma/core/user"
)

func (cli *commandLine) addUserCmd() *cobra.Command {
	var nu user.NewUser
	cmd := &cobra.Command{
		Use:   "adduser",
		Short: "Create a user or update an existing one",
		Long:  "Create a user, or update the name, role and password of the user with this email. The password is prompted.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			pwd, err := cli.promptPassword(cmd)
			if err != nil {
				return err
			}
			nu.Password, nu.PasswordConfirm = pwd, pwd

			usr, created, err := cli.addUser(cmd.Context(), nu)
			if err != nil {
				return err
			}
			action := "updated"
			if created {
				action = "created"
			}
			fmt.Fprintf(cli.out, "user %s %s (%s)\n", usr.Email, action, usr.Role)
			return nil
		},
	}
	cmd.Flags().StringVar(&nu.Email, "email", "", "the user's email")
	cmd.Flags().StringVar(&nu.Name, "name", "", "the user's name")
	cmd.Flags().StringVar(&nu.Role, "role", user.RoleAdmin, "the user's role")
	cmd.Flags().StringVar(&nu.OrganizationID, "org", "", "the ID of the user's organization")
	_ = cmd.MarkFlagRequired("email")
	_ = cmd.MarkFlagRequired("name")
	return cmd
}

// addUser updates or creates an active user.User.
func (cli *commandLine) addUser(ctx context.Context, nu user.NewUser) (user.User, bool, error) {
	nu.Name = core.CleanString(nu.Name)
	nu.Email = core.CleanString(nu.Email, true /* lower */)
	if err := cli.validate.Struct(nu); err != nil {
		return user.User{}, false, cli.validationError(err)
	}

	now := time.Now().UTC()
	usr, err := cli.usrRepo.GetUser(ctx, user.GetFilter{Email: nu.Email})
	created := core.IsNotFound(err)
	switch {
	case created:
		usr = user.User{Email: nu.Email, CreatedAt: now}
	case err != nil:
		return user.User{}, false, errors.Wrap(err, "getting user")
	}

	usr.Name = nu.Name
	usr.Role = nu.Role
	if nu.OrganizationID != "" {
		usr.OrganizationID = nu.OrganizationID
	}
	usr.IsActive = true
	usr.UpdatedAt = now
	if err = usr.SetPassword(nu.Password); err != nil {
		return user.User{}, false, err
	}
	usr, err = cli.usrRepo.UpdateOrCreateUser(ctx, usr)
	return usr, created, errors.Wrap(err, "saving user")
}
