package main

import (
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"hfcloud/console/internal/models"
)

func newLoginCommand(opts *globalOptions) *cobra.Command {
	var username, password string

	cmd := &cobra.Command{
		Use:   "login",
		Short: "Sign in and remember the session on this machine",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			ac, err := openAuth(ctx, opts)
			if err != nil {
				return err
			}
			if user, ok := ac.User(); ok {
				return fmt.Errorf("already signed in as %s, run consolectl logout first", user.Username)
			}

			if password == "" {
				password, err = newSecretReader(cmd.InOrStdin(), cmd.ErrOrStderr()).read("Password: ")
				if err != nil {
					return err
				}
			}

			user, err := ac.Login(ctx, username, password)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "signed in as %s (%s)\n", user.Username, user.RoleLabel)
			return nil
		},
	}
	cmd.Flags().StringVarP(&username, "username", "u", "", "Username")
	cmd.Flags().StringVarP(&password, "password", "p", "", "Password (prompted when omitted)")
	_ = cmd.MarkFlagRequired("username")
	return cmd
}

func newLogoutCommand(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "End the current session",
		RunE: func(cmd *cobra.Command, args []string) error {
			ac, err := openAuth(cmd.Context(), opts)
			if err != nil {
				return err
			}
			if err := ac.Logout(cmd.Context()); err != nil {
				fmt.Fprintf(cmd.ErrOrStderr(), "warning: server logout failed: %v\n", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), "signed out")
			return nil
		},
	}
}

func newWhoamiCommand(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "whoami",
		Short: "Show the signed-in user and role",
		RunE: func(cmd *cobra.Command, args []string) error {
			ac, err := openAuth(cmd.Context(), opts)
			if err != nil {
				return err
			}
			if err := requireSignedIn(ac); err != nil {
				return err
			}

			me, err := ac.Me(cmd.Context())
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "user:     %s <%s>\n", me.User.Username, me.User.Email)
			fmt.Fprintf(out, "role:     %s\n", me.Permissions.Label)
			fmt.Fprintf(out, "session:  %s\n", me.SessionID)
			fmt.Fprintf(out, "devices:  up to %d\n", me.DeviceLimit)
			fmt.Fprintf(out, "manage users: %t, save config: %t\n", me.Permissions.CanManageUsers, me.Permissions.CanSaveConfig)
			return nil
		},
	}
}

func newSessionsCommand(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "sessions",
		Short: "List the live sessions of your account",
		RunE: func(cmd *cobra.Command, args []string) error {
			ac, err := openAuth(cmd.Context(), opts)
			if err != nil {
				return err
			}
			if err := requireSignedIn(ac); err != nil {
				return err
			}

			resp, err := ac.Sessions(cmd.Context())
			if err != nil {
				return err
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "\tSESSION\tDEVICE\tIP\tLAST ACTIVE")
			for _, s := range resp.Sessions {
				marker := ""
				if s.Current {
					marker = "*"
				}
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n", marker, s.ID, s.DeviceInfo, s.IPAddress, s.LastActivityAt.Local().Format(time.DateTime))
			}
			if err := w.Flush(); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%d of %d devices in use\n", len(resp.Sessions), resp.DeviceLimit)
			return nil
		},
	}
}

func newPasswdCommand(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "passwd",
		Short: "Change your password (signs out every device)",
		RunE: func(cmd *cobra.Command, args []string) error {
			ac, err := openAuth(cmd.Context(), opts)
			if err != nil {
				return err
			}
			if err := requireSignedIn(ac); err != nil {
				return err
			}

			secrets := newSecretReader(cmd.InOrStdin(), cmd.ErrOrStderr())
			oldPassword, err := secrets.read("Current password: ")
			if err != nil {
				return err
			}
			newPassword, err := secrets.read("New password: ")
			if err != nil {
				return err
			}
			confirm, err := secrets.read("Repeat new password: ")
			if err != nil {
				return err
			}
			if newPassword != confirm {
				return fmt.Errorf("passwords do not match")
			}

			if err := ac.ChangePassword(cmd.Context(), oldPassword, newPassword); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "password changed, every session was signed out; run consolectl login")
			return nil
		},
	}
}

func newConfigCommand(opts *globalOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Show or change the system configuration",
	}
	cmd.AddCommand(newConfigGetCommand(opts), newConfigSetCommand(opts))
	return cmd
}

func newConfigGetCommand(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "get",
		Short: "Print the system configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			ac, err := openAuth(cmd.Context(), opts)
			if err != nil {
				return err
			}
			cfg, source := ac.Config(cmd.Context())
			printConfig(cmd, cfg)
			fmt.Fprintf(cmd.OutOrStdout(), "(from %s)\n", source)
			return nil
		},
	}
}

func newConfigSetCommand(opts *globalOptions) *cobra.Command {
	var (
		systemName, logoURL, faviconURL, adminEmail, announcement string
		logoSize                                                  int
		maintenance                                               bool
	)

	cmd := &cobra.Command{
		Use:   "set",
		Short: "Change configuration fields (administrators only)",
		RunE: func(cmd *cobra.Command, args []string) error {
			flags := cmd.Flags()
			var patch models.ConfigPatch
			if flags.Changed("system-name") {
				patch.SystemName = &systemName
			}
			if flags.Changed("logo-url") {
				patch.LogoURL = &logoURL
			}
			if flags.Changed("logo-size") {
				patch.LogoSize = &logoSize
			}
			if flags.Changed("favicon-url") {
				patch.FaviconURL = &faviconURL
			}
			if flags.Changed("admin-email") {
				patch.AdminEmail = &adminEmail
			}
			if flags.Changed("announcement") {
				patch.Announcement = &announcement
			}
			if flags.Changed("maintenance") {
				patch.MaintenanceMode = &maintenance
			}
			if patch.Empty() {
				return fmt.Errorf("nothing to change, pass at least one field flag")
			}

			ac, err := openAuth(cmd.Context(), opts)
			if err != nil {
				return err
			}
			if err := requireSignedIn(ac); err != nil {
				return err
			}

			cfg, err := ac.SaveConfig(cmd.Context(), patch)
			if err != nil {
				return err
			}
			printConfig(cmd, cfg)
			return nil
		},
	}

	f := cmd.Flags()
	f.StringVar(&systemName, "system-name", "", "Display name / window title")
	f.StringVar(&logoURL, "logo-url", "", "Logo URL")
	f.IntVar(&logoSize, "logo-size", 32, "Logo size in pixels (16-128)")
	f.StringVar(&faviconURL, "favicon-url", "", "Favicon URL")
	f.StringVar(&adminEmail, "admin-email", "", "Administrator contact email")
	f.StringVar(&announcement, "announcement", "", "Announcement banner text")
	f.BoolVar(&maintenance, "maintenance", false, "Maintenance mode")
	return cmd
}

func printConfig(cmd *cobra.Command, cfg models.SystemConfig) {
	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	fmt.Fprintf(w, "systemName\t%s\n", cfg.SystemName)
	fmt.Fprintf(w, "logoUrl\t%s\n", cfg.LogoURL)
	fmt.Fprintf(w, "logoSize\t%d\n", cfg.LogoSize)
	fmt.Fprintf(w, "faviconUrl\t%s\n", cfg.FaviconURL)
	fmt.Fprintf(w, "adminEmail\t%s\n", cfg.AdminEmail)
	fmt.Fprintf(w, "announcement\t%s\n", cfg.Announcement)
	fmt.Fprintf(w, "maintenanceMode\t%t\n", cfg.MaintenanceMode)
	_ = w.Flush()
}
