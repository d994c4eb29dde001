package main

import (
	"io"
	"os"
	"time"

	"github.com/jrsteele09/go-mail-oauth/internal/config"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

type rootOptions struct {
	configPath string
	verbose    bool
	noBanner   bool
	cfg        config.Config
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}

	cmd := &cobra.Command{
		Use:   "mailauth",
		Short: "Obtain Microsoft 365 OAuth2 tokens for IMAP, POP3, SMTP, EWS and Graph",
		Long: `mailauth signs a user in to the Microsoft identity platform with the
authorization code flow, or authenticates the application itself with the
client credentials flow, and prints what a mail client needs to log in.

Settings come from MAILAUTH_* environment variables layered over an optional
YAML file (--config or MAILAUTH_CONFIG).`,
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(opts.configPath)
			if err != nil {
				return err
			}
			opts.cfg = cfg
			setupLogging(cmd.ErrOrStderr(), cfg.GetLogLevel(), opts.verbose)
			if !opts.noBanner {
				displayAppname(cmd.ErrOrStderr(), cfg.GetAppName())
			}
			return nil
		},
	}

	cmd.PersistentFlags().StringVar(&opts.configPath, "config", "", "path to a YAML config file (default $"+config.ConfigFileEnvVar+")")
	cmd.PersistentFlags().BoolVarP(&opts.verbose, "verbose", "v", false, "enable debug logging")
	cmd.PersistentFlags().BoolVar(&opts.noBanner, "no-banner", false, "do not print the banner")

	cmd.AddCommand(
		newAuthorizeCmd(opts),
		newAppTokenCmd(opts),
		newXOAuth2Cmd(),
	)
	return cmd
}

func setupLogging(w io.Writer, level string, verbose bool) {
	lvl, err := zerolog.ParseLevel(level)
	if err != nil || lvl == zerolog.NoLevel {
		lvl = zerolog.InfoLevel
	}
	if verbose {
		lvl = zerolog.DebugLevel
	}
	zerolog.SetGlobalLevel(lvl)

	if f, ok := w.(*os.File); ok && f == os.Stderr {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: w, TimeFormat: time.Kitchen})
		return
	}
	log.Logger = log.Output(w)
}
