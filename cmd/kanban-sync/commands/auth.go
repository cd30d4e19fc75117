package commands

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"kanban-sync/gateway"
)

func loginCmd(a *app) *cobra.Command {
	var email, password string
	cmd := &cobra.Command{
		Use:   "login",
		Short: "Log in and store the token in the profile",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if email == "" || password == "" {
				return errors.New("--email and --password are required")
			}
			creds, err := a.gw.Login(cmd.Context(), email, password)
			if err != nil {
				return err
			}
			return a.storeCredentials(cmd, creds)
		},
	}
	cmd.Flags().StringVarP(&email, "email", "e", "", "Account email")
	cmd.Flags().StringVarP(&password, "password", "p", "", "Account password")
	return cmd
}

func signupCmd(a *app) *cobra.Command {
	var name, email, password string
	cmd := &cobra.Command{
		Use:   "signup",
		Short: "Create an account and store the token in the profile",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if name == "" || email == "" || password == "" {
				return errors.New("--name, --email and --password are required")
			}
			creds, err := a.gw.Signup(cmd.Context(), name, email, password)
			if err != nil {
				return err
			}
			return a.storeCredentials(cmd, creds)
		},
	}
	cmd.Flags().StringVarP(&name, "name", "n", "", "Display name")
	cmd.Flags().StringVarP(&email, "email", "e", "", "Account email")
	cmd.Flags().StringVarP(&password, "password", "p", "", "Account password")
	return cmd
}

func (a *app) storeCredentials(cmd *cobra.Command, creds gateway.Credentials) error {
	if err := a.cfg.SaveToken(creds.Token); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Logged in as %s <%s>\n", creds.User.Name, creds.User.Email)
	return nil
}
