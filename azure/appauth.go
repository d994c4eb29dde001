package azure

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	autherrors "github.com/jrsteele09/go-mail-oauth/internal/errors"
	"github.com/rs/zerolog/log"
	xoauth2 "golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"
)

// AppCredentials authenticates the application itself (app-only access) with
// the client credentials grant. Mailbox access then depends on the
// application permissions granted to it by an administrator.
type AppCredentials struct {
	ClientID     string
	ClientSecret string
	// TenantID must be a concrete tenant; app-only tokens can't be issued by 'common'.
	TenantID string
	// Scopes is usually the single oauth2.ScopeAppDefault.
	Scopes []string
	// Authority defaults to DefaultAuthority.
	Authority string
	// HTTPClient defaults to http.DefaultClient.
	HTTPClient *http.Client
}

// Validate checks the required fields.
func (a AppCredentials) Validate() error {
	switch {
	case a.ClientID == "":
		return fmt.Errorf("%w: client id not specified", autherrors.ErrConfiguration)
	case a.ClientSecret == "":
		return fmt.Errorf("%w: client secret not specified", autherrors.ErrConfiguration)
	case a.TenantID == "":
		return fmt.Errorf("%w: tenant id not specified", autherrors.ErrConfiguration)
	case len(a.Scopes) == 0:
		return fmt.Errorf("%w: scopes not specified", autherrors.ErrConfiguration)
	}
	return nil
}

func (a AppCredentials) config() *clientcredentials.Config {
	return &clientcredentials.Config{
		ClientID:     a.ClientID,
		ClientSecret: a.ClientSecret,
		TokenURL:     Endpoint(a.Authority, a.TenantID).TokenURL,
		Scopes:       a.Scopes,
		AuthStyle:    xoauth2.AuthStyleInParams,
	}
}

func (a AppCredentials) context(ctx context.Context) context.Context {
	if a.HTTPClient != nil {
		return context.WithValue(ctx, xoauth2.HTTPClient, a.HTTPClient)
	}
	return ctx
}

// TokenSource returns a source that requests a new app-only token whenever the current one expires.
func (a AppCredentials) TokenSource(ctx context.Context) (xoauth2.TokenSource, error) {
	if err := a.Validate(); err != nil {
		return nil, err
	}
	return a.config().TokenSource(a.context(ctx)), nil
}

// AcquireToken requests one app-only access token.
func (a AppCredentials) AcquireToken(ctx context.Context) (*xoauth2.Token, error) {
	if err := a.Validate(); err != nil {
		return nil, err
	}

	token, err := a.config().Token(a.context(ctx))
	if err != nil {
		err = translateRetrieveError(err)
		log.Err(err).Str("client_id", a.ClientID).Str("tenant", a.TenantID).Msg("Failed to acquire app-only token")
		return nil, err
	}
	log.Debug().Str("client_id", a.ClientID).Time("expiry", token.Expiry).Msg("App-only token acquired")
	return token, nil
}

// translateRetrieveError maps a provider error body onto AuthError and a bare
// HTTP failure onto StatusError. Anything else is returned unchanged.
func translateRetrieveError(err error) error {
	var retrieveErr *xoauth2.RetrieveError
	if !errors.As(err, &retrieveErr) {
		return err
	}
	if retrieveErr.ErrorCode != "" {
		return autherrors.NewAuthError(retrieveErr.ErrorCode, retrieveErr.ErrorDescription)
	}
	statusErr := &autherrors.StatusError{Body: string(retrieveErr.Body)}
	if retrieveErr.Response != nil {
		statusErr.StatusCode = retrieveErr.Response.StatusCode
		statusErr.ContentType = retrieveErr.Response.Header.Get("Content-Type")
	}
	return statusErr
}
