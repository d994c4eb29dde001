package mail_test

import (
	"encoding/base64"
	"net"
	"net/smtp"
	"net/textproto"
	"strings"
	"testing"
	"time"

	"github.com/jrsteele09/go-mail-oauth/internal/errors"
	"github.com/jrsteele09/go-mail-oauth/internal/utils"
	"github.com/jrsteele09/go-mail-oauth/mail"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	xoauth2 "golang.org/x/oauth2"
)

func TestXOAuth2(t *testing.T) {
	require.Equal(t, "user=u@example.org\x01auth=Bearer A\x01\x01", mail.XOAuth2("u@example.org", "A"))
	require.Equal(t,
		"dXNlcj11QGV4YW1wbGUub3JnAWF1dGg9QmVhcmVyIEEBAQ==",
		mail.XOAuth2Base64("u@example.org", "A"))
}

func TestSMTPAuth_Start(t *testing.T) {
	auth := mail.SMTPAuth("u@example.org", "A")

	proto, resp, err := auth.Start(&smtp.ServerInfo{Name: "smtp.office365.com", TLS: true, Auth: []string{"LOGIN", "XOAUTH2"}})
	require.NoError(t, err)
	require.Equal(t, "XOAUTH2", proto)
	require.Equal(t, []byte(mail.XOAuth2("u@example.org", "A")), resp)

	_, _, err = auth.Start(&smtp.ServerInfo{Name: "smtp.office365.com"})
	require.Error(t, err, "token is not sent in clear text")

	_, _, err = auth.Start(&smtp.ServerInfo{Name: "127.0.0.1"})
	require.NoError(t, err)
}

func TestSMTPAuth_Next(t *testing.T) {
	auth := mail.SMTPAuth("u@example.org", "A")

	resp, err := auth.Next([]byte(`{"status":"401","schemes":"bearer","scope":"https://outlook.office365.com/SMTP.Send"}`), true)
	require.NoError(t, err)
	require.NotNil(t, resp)
	require.Empty(t, resp)

	resp, err = auth.Next(nil, false)
	require.NoError(t, err)
	require.Nil(t, resp)
}

// smtpServer plays the server side of an SMTP session up to AUTH.
func smtpServer(t *testing.T, conn net.Conn, accept bool) <-chan string {
	received := make(chan string, 1)
	go func() {
		defer conn.Close()
		defer close(received)
		tp := textproto.NewConn(conn)

		_ = tp.PrintfLine("220 localhost ESMTP ready")
		if line, err := tp.ReadLine(); err != nil || !strings.HasPrefix(line, "EHLO") {
			return
		}
		_ = tp.PrintfLine("250-localhost")
		_ = tp.PrintfLine("250 AUTH LOGIN XOAUTH2")

		line, err := tp.ReadLine()
		if err != nil {
			return
		}
		fields := strings.Fields(line)
		if !assert.Len(t, fields, 3) {
			return
		}
		decoded, _ := base64.StdEncoding.DecodeString(fields[2])
		received <- fields[0] + " " + fields[1] + " " + string(decoded)

		if accept {
			_ = tp.PrintfLine("235 2.7.0 Authentication successful")
			return
		}
		_ = tp.PrintfLine("334 %s", base64.StdEncoding.EncodeToString([]byte(`{"status":"401","schemes":"bearer"}`)))
		if _, err := tp.ReadLine(); err != nil {
			return
		}
		_ = tp.PrintfLine("535 5.7.3 Authentication unsuccessful")
		for {
			line, err := tp.ReadLine()
			if err != nil {
				return
			}
			switch line {
			case "*":
				_ = tp.PrintfLine("501 5.5.2 Authentication cancelled")
			case "QUIT":
				_ = tp.PrintfLine("221 2.0.0 Bye")
				return
			}
		}
	}()
	return received
}

func TestSMTPAuth_Session(t *testing.T) {
	for _, accept := range []bool{true, false} {
		t.Run(map[bool]string{true: "accepted", false: "rejected"}[accept], func(t *testing.T) {
			clientConn, serverConn := net.Pipe()
			received := smtpServer(t, serverConn, accept)

			c, err := smtp.NewClient(clientConn, "localhost")
			require.NoError(t, err)
			defer c.Close()

			err = c.Auth(mail.SMTPAuth("u@example.org", "A"))
			require.Equal(t, "AUTH XOAUTH2 user=u@example.org\x01auth=Bearer A\x01\x01", <-received)
			if accept {
				require.NoError(t, err)
			} else {
				require.Error(t, err)
			}
		})
	}
}

type fakeCredentials struct {
	accessToken string
	userName    *string
	expired     bool
}

func (f fakeCredentials) AccessToken() string { return f.accessToken }
func (f fakeCredentials) UserName() *string   { return f.userName }
func (f fakeCredentials) Expired() bool       { return f.expired }

func TestNewLogin(t *testing.T) {
	t.Run("user from id token", func(t *testing.T) {
		login, err := mail.NewLogin(fakeCredentials{accessToken: "A", userName: utils.Ptr("u@example.org")}, "")
		require.NoError(t, err)
		require.Equal(t, mail.Login{UserName: "u@example.org", AccessToken: "A"}, login)

		sasl, err := login.SASL()
		require.NoError(t, err)
		require.Equal(t, mail.XOAuth2("u@example.org", "A"), sasl)
		require.Equal(t, "Bearer A", login.Authorization())
	})

	t.Run("override", func(t *testing.T) {
		login, err := mail.NewLogin(fakeCredentials{accessToken: "A", userName: utils.Ptr("u@example.org")}, "shared@example.org")
		require.NoError(t, err)
		require.Equal(t, "shared@example.org", login.UserName)
	})

	t.Run("no user", func(t *testing.T) {
		login, err := mail.NewLogin(fakeCredentials{accessToken: "A"}, "")
		require.NoError(t, err)
		require.Equal(t, "Bearer A", login.Authorization())

		_, err = login.SASL()
		require.ErrorIs(t, err, errors.ErrConfiguration)
		_, err = login.SASLBase64()
		require.ErrorIs(t, err, errors.ErrConfiguration)
		_, err = login.SMTPAuth()
		require.ErrorIs(t, err, errors.ErrConfiguration)
	})

	t.Run("no token", func(t *testing.T) {
		_, err := mail.NewLogin(fakeCredentials{expired: true}, "u@example.org")
		require.ErrorIs(t, err, errors.ErrConfiguration)
	})

	t.Run("expired", func(t *testing.T) {
		_, err := mail.NewLogin(fakeCredentials{accessToken: "A", expired: true}, "u@example.org")
		require.ErrorIs(t, err, errors.ErrConfiguration)
	})
}

func TestNewAppLogin(t *testing.T) {
	login, err := mail.NewAppLogin("shared@example.org", &xoauth2.Token{AccessToken: "app", Expiry: time.Now().Add(time.Hour)})
	require.NoError(t, err)
	b64, err := login.SASLBase64()
	require.NoError(t, err)
	require.Equal(t, mail.XOAuth2Base64("shared@example.org", "app"), b64)

	_, err = mail.NewAppLogin("shared@example.org", nil)
	require.ErrorIs(t, err, errors.ErrConfiguration)

	_, err = mail.NewAppLogin("shared@example.org", &xoauth2.Token{AccessToken: "app", Expiry: time.Now().Add(-time.Minute)})
	require.ErrorIs(t, err, errors.ErrConfiguration)
}
