package main

import (
	"bufio"
	"errors"
	"fmt"
	"strings"

	autherrors "github.com/jrsteele09/go-mail-oauth/internal/errors"
	"github.com/jrsteele09/go-mail-oauth/mail"
	"github.com/spf13/cobra"
)

func newXOAuth2Cmd() *cobra.Command {
	var raw bool

	cmd := &cobra.Command{
		Use:   "xoauth2 <user> [access-token]",
		Short: "Print the SASL XOAUTH2 string for a user and access token",
		Long:  `Prints the base64 XOAUTH2 initial response. The token is read from stdin when it is not given.`,
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			user := args[0]
			var token string
			if len(args) == 2 {
				token = args[1]
			} else {
				line, err := bufio.NewReader(cmd.InOrStdin()).ReadString('\n')
				if err != nil && line == "" {
					return autherrors.Wrapf(err, "no access token given")
				}
				token = strings.TrimSpace(line)
			}
			if token == "" {
				return errors.New("no access token given")
			}

			if raw {
				fmt.Fprint(cmd.OutOrStdout(), mail.XOAuth2(user, token))
				return nil
			}
			fmt.Fprintln(cmd.OutOrStdout(), mail.XOAuth2Base64(user, token))
			return nil
		},
	}
	cmd.Flags().BoolVar(&raw, "raw", false, "print the string before base64 encoding")
	return cmd
}
