package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"hfcloud/console/internal/app"
	"hfcloud/console/internal/models"
	"hfcloud/console/internal/users"
)

func newUserAddCommand() *cobra.Command {
	var input users.CreateInput
	var role string

	cmd := &cobra.Command{
		Use:   "useradd",
		Short: "Create an account directly in the datastore",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := loadConfig()
			if err != nil {
				return err
			}

			ctx := context.Background()
			a, err := app.New(ctx, cfg, logger)
			if err != nil {
				return err
			}
			defer a.Close()

			input.Role = models.UserRole(role)
			user, err := a.Users.Bootstrap(ctx, input)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "created %s (%s) id=%s\n", user.Username, user.Role, user.ID)
			return nil
		},
	}

	cmd.Flags().StringVarP(&input.Username, "username", "u", "", "Username")
	cmd.Flags().StringVarP(&input.Password, "password", "p", "", "Initial password")
	cmd.Flags().StringVar(&input.Email, "email", "", "Email address")
	cmd.Flags().StringVarP(&role, "role", "r", string(models.UserRoleUser), "Role: super_admin, admin or user")
	cmd.Flags().StringSliceVar(&input.RelatedProjects, "project", nil, "Related project (repeatable)")
	_ = cmd.MarkFlagRequired("username")
	_ = cmd.MarkFlagRequired("password")

	return cmd
}
