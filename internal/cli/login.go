package cli

import (
	"errors"
	"fmt"
	"strings"

	"github.com/charmbracelet/huh"
	"github.com/spf13/cobra"

	"github.com/iliyamo/league-client/internal/guard"
	"github.com/iliyamo/league-client/internal/model"
)

// NewLoginCommand creates the login command.
func NewLoginCommand(opts *RootOptions) *cobra.Command {
	var creds model.Credentials

	cmd := &cobra.Command{
		Use:   "login",
		Short: "Sign in and store the session",
		Long: `Exchange email and password for a session credential and store it.

Missing flags are asked for interactively.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if creds.Email == "" || creds.Password == "" {
				if err := opts.prompt(&creds); err != nil {
					return err
				}
			}
			if err := opts.rt.App.Session.Login(cmd.Context(), creds); err != nil {
				return fmt.Errorf("login: %w", err)
			}
			return newPrinter(cmd, opts).identity(opts.rt.App.Session)
		},
	}

	cmd.Flags().StringVarP(&creds.Email, "email", "e", "", "account email")
	cmd.Flags().StringVarP(&creds.Password, "password", "p", "", "account password")

	return opts.route(cmd, guard.Route{Path: "/login", PublicOnly: true})
}

// promptCredentials asks for whatever is missing in c.
func promptCredentials(c *model.Credentials) error {
	var fields []huh.Field
	if c.Email == "" {
		fields = append(fields, huh.NewInput().
			Title("Email").
			Placeholder("you@example.com").
			Validate(func(s string) error {
				if !strings.Contains(s, "@") {
					return errors.New("enter an email address")
				}
				return nil
			}).
			Value(&c.Email))
	}
	if c.Password == "" {
		fields = append(fields, huh.NewInput().
			Title("Password").
			EchoMode(huh.EchoModePassword).
			Value(&c.Password))
	}

	if err := huh.NewForm(huh.NewGroup(fields...)).Run(); err != nil {
		return fmt.Errorf("prompt failed: %w", err)
	}
	return nil
}

// NewLogoutCommand creates the logout command.
func NewLogoutCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Sign out and forget the stored session",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			p := newPrinter(cmd, opts)
			st := opts.rt.App.Session.State()
			opts.rt.App.Session.Logout(cmd.Context())
			if st.Identity == nil {
				return p.line("Not signed in.")
			}
			return p.line(fmt.Sprintf("Signed out %s.", st.Identity.Email))
		},
	}
}

// NewWhoamiCommand creates the whoami command.
func NewWhoamiCommand(opts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "whoami",
		Short: "Show the signed-in account",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return newPrinter(cmd, opts).identity(opts.rt.App.Session)
		},
	}
	return opts.route(cmd, guard.Route{Path: "/me"})
}
