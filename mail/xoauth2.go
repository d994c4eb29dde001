// Package mail hands OAuth2 access tokens to IMAP, POP3 and SMTP clients,
// which authenticate with the SASL XOAUTH2 mechanism.
package mail

import (
	"encoding/base64"
	"errors"
	"net"
	"net/smtp"

	"github.com/rs/zerolog/log"
)

// Mechanism is the SASL mechanism name Exchange Online expects.
const Mechanism = "XOAUTH2"

// XOAuth2 returns the XOAUTH2 initial client response for user and accessToken.
func XOAuth2(user, accessToken string) string {
	return "user=" + user + "\x01auth=Bearer " + accessToken + "\x01\x01"
}

// XOAuth2Base64 returns XOAuth2 base64 encoded, as sent in IMAP "AUTHENTICATE XOAUTH2".
func XOAuth2Base64(user, accessToken string) string {
	return base64.StdEncoding.EncodeToString([]byte(XOAuth2(user, accessToken)))
}

type xoauth2Auth struct {
	user        string
	accessToken string
}

// SMTPAuth returns an smtp.Auth that authenticates with XOAUTH2. Like
// smtp.PlainAuth it refuses to send the token over an unencrypted connection
// to anything but localhost.
func SMTPAuth(user, accessToken string) smtp.Auth {
	return &xoauth2Auth{user: user, accessToken: accessToken}
}

func (a *xoauth2Auth) Start(server *smtp.ServerInfo) (string, []byte, error) {
	if !server.TLS && !isLocalhost(server.Name) {
		return "", nil, errors.New("unencrypted connection")
	}
	return Mechanism, []byte(XOAuth2(a.user, a.accessToken)), nil
}

// Next answers the JSON error challenge a server sends for a rejected token
// with an empty response, after which the server fails the exchange.
func (a *xoauth2Auth) Next(fromServer []byte, more bool) ([]byte, error) {
	if !more {
		return nil, nil
	}
	log.Debug().Str("user", a.user).Str("challenge", string(fromServer)).Msg("XOAUTH2 token rejected by server")
	return []byte{}, nil
}

func isLocalhost(name string) bool {
	if name == "localhost" {
		return true
	}
	ip := net.ParseIP(name)
	return ip != nil && ip.IsLoopback()
}
