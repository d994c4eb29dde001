package main

import (
	"fmt"
	"time"

	"github.com/jrsteele09/go-mail-oauth/azure"
	autherrors "github.com/jrsteele09/go-mail-oauth/internal/errors"
	"github.com/jrsteele09/go-mail-oauth/mail"
	"github.com/spf13/cobra"
)

func newAppTokenCmd(root *rootOptions) *cobra.Command {
	var mailbox string

	cmd := &cobra.Command{
		Use:   "app-token",
		Short: "Acquire an app-only token with the client credentials flow",
		Long: `Authenticates the application with its client secret. The tenant must be a
concrete tenant and the application needs the IMAP.AccessAsApp, POP.AccessAsApp
or full_access_as_app permission granted by an administrator.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg := root.cfg
			app := azure.AppCredentials{
				ClientID:     cfg.GetClientID(),
				ClientSecret: cfg.GetClientSecret(),
				TenantID:     cfg.GetTenantID(),
				Scopes:       cfg.GetAppScopes(),
				Authority:    cfg.GetAuthority(),
			}
			if azure.IsMultiTenant(app.TenantID) {
				return fmt.Errorf("%w: app-only tokens need a concrete tenant, not %q", autherrors.ErrConfiguration, app.TenantID)
			}

			token, err := app.AcquireToken(cmd.Context())
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Expires:    %s\n", token.Expiry.Format(time.RFC3339))
			fmt.Fprintf(out, "Access:     %s\n", token.AccessToken)

			if mailbox == "" {
				mailbox = cfg.GetMailbox()
			}
			if mailbox == "" {
				return nil
			}
			login, err := mail.NewAppLogin(mailbox, token)
			if err != nil {
				return err
			}
			sasl, err := login.SASLBase64()
			if err != nil {
				return err
			}
			fmt.Fprintf(out, "XOAUTH2:    %s\n", sasl)
			return nil
		},
	}
	cmd.Flags().StringVar(&mailbox, "mailbox", "", "mailbox to build the XOAUTH2 string for")
	return cmd
}
