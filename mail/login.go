package mail

import (
	"fmt"
	"net/smtp"

	autherrors "github.com/jrsteele09/go-mail-oauth/internal/errors"
	xoauth2 "golang.org/x/oauth2"
)

// Credentials is the part of *azure.Credentials a mail login needs.
type Credentials interface {
	AccessToken() string
	UserName() *string
	Expired() bool
}

// Login is what a mail client is handed for an OAuth2 login.
type Login struct {
	// UserName is the mailbox; EWS and Graph clients can do without it.
	UserName    string
	AccessToken string
}

// NewLogin takes the access token from creds. The mailbox is user when given,
// otherwise the signed-in account's preferred_username.
func NewLogin(creds Credentials, user string) (Login, error) {
	accessToken := creds.AccessToken()
	if accessToken == "" {
		return Login{}, fmt.Errorf("%w: no access token, authorize first", autherrors.ErrConfiguration)
	}
	if creds.Expired() {
		return Login{}, fmt.Errorf("%w: access token has expired, refresh it first", autherrors.ErrConfiguration)
	}
	if user == "" && creds.UserName() != nil {
		user = *creds.UserName()
	}
	return Login{UserName: user, AccessToken: accessToken}, nil
}

// NewAppLogin builds a login for mailbox user from an app-only token.
func NewAppLogin(user string, token *xoauth2.Token) (Login, error) {
	if token == nil || token.AccessToken == "" {
		return Login{}, fmt.Errorf("%w: no access token", autherrors.ErrConfiguration)
	}
	if !token.Valid() {
		return Login{}, fmt.Errorf("%w: access token has expired", autherrors.ErrConfiguration)
	}
	return Login{UserName: user, AccessToken: token.AccessToken}, nil
}

func (l Login) requireUser() error {
	if l.UserName == "" {
		return fmt.Errorf("%w: mailbox user name is required for XOAUTH2", autherrors.ErrConfiguration)
	}
	return nil
}

// SASL returns the XOAUTH2 initial response.
func (l Login) SASL() (string, error) {
	if err := l.requireUser(); err != nil {
		return "", err
	}
	return XOAuth2(l.UserName, l.AccessToken), nil
}

// SASLBase64 returns the base64 encoded XOAUTH2 initial response.
func (l Login) SASLBase64() (string, error) {
	if err := l.requireUser(); err != nil {
		return "", err
	}
	return XOAuth2Base64(l.UserName, l.AccessToken), nil
}

// SMTPAuth returns the login as an smtp.Auth.
func (l Login) SMTPAuth() (smtp.Auth, error) {
	if err := l.requireUser(); err != nil {
		return nil, err
	}
	return SMTPAuth(l.UserName, l.AccessToken), nil
}

// Authorization returns the HTTP Authorization header value for EWS and Graph requests.
func (l Login) Authorization() string {
	return "Bearer " + l.AccessToken
}
