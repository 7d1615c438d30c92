package main

import (
	"errors"
	"fmt"
	"strings"

	"github.com/charmbracelet/huh"
	"github.com/spf13/cobra"

	"github.com/nhle/mailsync/internal/credential"
	"github.com/nhle/mailsync/internal/model"
)

func newCredentialsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "credentials",
		Short: "Manage mailbox secrets in the system keyring",
	}
	cmd.AddCommand(newCredentialsSetCmd(), newCredentialsDeleteCmd())
	return cmd
}

func newCredentialsSetCmd() *cobra.Command {
	var withToken bool

	cmd := &cobra.Command{
		Use:   "set <mailbox>",
		Short: "Store the IMAP password (and Gmail refresh token) of a mailbox",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			o := optionsFrom(cmd)
			mc, ok := o.cfg.FindMailbox(args[0])
			if !ok {
				return fmt.Errorf("mailbox %q is not configured", args[0])
			}
			askToken := withToken || model.ProviderKind(mc.Provider) == model.ProviderGmail

			var password, token string
			fields := []huh.Field{
				huh.NewInput().
					Title("IMAP password").
					Description(fmt.Sprintf("Password of %s on %s", mc.Username, mc.Host)).
					EchoMode(huh.EchoModePassword).
					Value(&password).
					Validate(required("Password")),
			}
			if askToken {
				fields = append(fields, huh.NewInput().
					Title("Gmail refresh token").
					Description("OAuth refresh token with the gmail.modify scope").
					EchoMode(huh.EchoModePassword).
					Value(&token).
					Validate(required("Refresh token")))
			}
			if err := huh.NewForm(huh.NewGroup(fields...)).Run(); err != nil {
				return err
			}

			creds, err := credential.Open()
			if err != nil {
				return err
			}
			if err := creds.SetPassword(mc.ID, password); err != nil {
				return err
			}
			if askToken {
				if err := creds.SetRefreshToken(mc.ID, token); err != nil {
					return err
				}
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Stored credentials for %s\n", mc.ID)
			return nil
		},
	}
	cmd.Flags().BoolVar(&withToken, "refresh-token", false, "Also ask for a Gmail refresh token")
	return cmd
}

func newCredentialsDeleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <mailbox>",
		Short: "Remove the secrets of a mailbox",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			creds, err := credential.Open()
			if err != nil {
				return err
			}
			if err := creds.Delete(args[0]); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Deleted credentials for %s\n", args[0])
			return nil
		},
	}
}

func required(name string) func(string) error {
	return func(s string) error {
		if strings.TrimSpace(s) == "" {
			return errors.New(name + " is required")
		}
		return nil
	}
}
