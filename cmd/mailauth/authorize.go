package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"time"

	"github.com/jrsteele09/go-mail-oauth/azure"
	"github.com/jrsteele09/go-mail-oauth/flow"
	"github.com/jrsteele09/go-mail-oauth/flow/loopback"
	autherrors "github.com/jrsteele09/go-mail-oauth/internal/errors"
	"github.com/jrsteele09/go-mail-oauth/internal/utils"
	"github.com/jrsteele09/go-mail-oauth/mail"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

// openBrowser is replaced in tests.
var openBrowser loopback.Opener = loopback.OpenBrowser

type authorizeOptions struct {
	refresh   bool
	mailbox   string
	showToken bool
}

func newAuthorizeCmd(root *rootOptions) *cobra.Command {
	opts := &authorizeOptions{}

	cmd := &cobra.Command{
		Use:   "authorize",
		Short: "Sign in with the system browser and print the mail login",
		Long: `Opens the Microsoft sign-in page in the system browser and waits for the
redirect on a local listener. The redirect URI (default http://localhost) must
be registered for the application as a "Mobile and desktop applications"
platform.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runAuthorize(cmd, root, opts)
		},
	}
	cmd.Flags().BoolVar(&opts.refresh, "refresh", false, "redeem the refresh token once after signing in")
	cmd.Flags().StringVar(&opts.mailbox, "mailbox", "", "mailbox to log in to (default: the signed-in account)")
	cmd.Flags().BoolVar(&opts.showToken, "show-token", false, "print the access and refresh tokens")
	return cmd
}

func runAuthorize(cmd *cobra.Command, root *rootOptions, opts *authorizeOptions) error {
	cfg := root.cfg
	if cfg.GetClientID() == "" {
		return fmt.Errorf("%w: no client id configured, set MAILAUTH_CLIENT_ID", autherrors.ErrConfiguration)
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
	defer stop()
	ctx, cancel := context.WithTimeout(ctx, cfg.GetLoginTimeout())
	defer cancel()

	listener, err := loopback.Listen(cfg.GetRedirectURI(), loopback.WithOpener(openBrowser))
	if err != nil {
		return err
	}

	options := []azure.Option{azure.WithAuthority(cfg.GetAuthority())}
	if cfg.GetVerifyIDToken() {
		verifier, err := azure.NewIDTokenVerifier(context.WithoutCancel(ctx), cfg.GetAuthority(), cfg.GetTenantID(), cfg.GetClientID(), nil)
		if err != nil {
			_ = listener.Close()
			return err
		}
		options = append(options, azure.WithIDTokenVerifier(verifier))
	}

	manager, err := flow.NewManager(flow.Config{
		ClientID:    cfg.GetClientID(),
		TenantID:    cfg.GetTenantID(),
		PromptType:  cfg.GetPromptType(),
		RedirectURI: listener.RedirectURI(),
		Scopes:      cfg.GetScopes(),
	}, options...)
	if err != nil {
		_ = listener.Close()
		return err
	}

	fmt.Fprintf(cmd.ErrOrStderr(), "Waiting for sign-in on %s ...\n", listener.RedirectURI())
	creds, err := manager.Authorize(ctx, listener)
	if err != nil {
		return err
	}

	if opts.refresh {
		if err := creds.RefreshTokens(ctx); err != nil {
			return err
		}
		log.Info().Time("expiry", creds.Expiry()).Msg("Access token refreshed")
	}

	mailbox := opts.mailbox
	if mailbox == "" {
		mailbox = cfg.GetMailbox()
	}
	login, err := mail.NewLogin(creds, mailbox)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "User:       %s\n", login.UserName)
	fmt.Fprintf(out, "Name:       %s\n", utils.Value(creds.FullName()))
	fmt.Fprintf(out, "Expires:    %s\n", creds.Expiry().Format(time.RFC3339))
	if sasl, err := login.SASLBase64(); err == nil {
		fmt.Fprintf(out, "XOAUTH2:    %s\n", sasl)
	}
	if opts.showToken {
		fmt.Fprintf(out, "Access:     %s\n", login.AccessToken)
		fmt.Fprintf(out, "Refresh:    %s\n", utils.Value(creds.RefreshToken()))
	}
	return nil
}
