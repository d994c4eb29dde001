package azure_test

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/jrsteele09/go-mail-oauth/azure"
	"github.com/jrsteele09/go-mail-oauth/internal/errors"
	"github.com/jrsteele09/go-mail-oauth/internal/identitytest"
	"github.com/jrsteele09/go-mail-oauth/oauth2"
	"github.com/stretchr/testify/require"
)

func appCredentials(p *identitytest.Provider) azure.AppCredentials {
	return azure.AppCredentials{
		ClientID:     identitytest.ClientID,
		ClientSecret: identitytest.ClientSecret,
		TenantID:     identitytest.TenantID,
		Scopes:       []string{oauth2.ScopeAppDefault},
		Authority:    p.URL(),
		HTTPClient:   p.Client(),
	}
}

func TestAppCredentials_AcquireToken(t *testing.T) {
	p := identitytest.New(t)

	token, err := appCredentials(p).AcquireToken(context.Background())
	require.NoError(t, err)
	require.NotEmpty(t, token.AccessToken)
	require.Equal(t, "Bearer", token.TokenType)
	require.WithinDuration(t, time.Now().Add(time.Hour), token.Expiry, time.Minute)

	requests := p.TokenRequests()
	require.Len(t, requests, 1)
	require.Equal(t, "client_credentials", requests[0].Get("grant_type"))
	require.Equal(t, identitytest.ClientSecret, requests[0].Get("client_secret"))
	require.Equal(t, oauth2.ScopeAppDefault, requests[0].Get("scope"))
}

func TestAppCredentials_TokenSource(t *testing.T) {
	p := identitytest.New(t)

	ts, err := appCredentials(p).TokenSource(context.Background())
	require.NoError(t, err)

	first, err := ts.Token()
	require.NoError(t, err)
	second, err := ts.Token()
	require.NoError(t, err)
	require.Equal(t, first.AccessToken, second.AccessToken, "valid token is reused")
	require.Len(t, p.TokenRequests(), 1)
}

func TestAppCredentials_Errors(t *testing.T) {
	p := identitytest.New(t)

	t.Run("wrong secret", func(t *testing.T) {
		app := appCredentials(p)
		app.ClientSecret = "nope"
		_, err := app.AcquireToken(context.Background())

		var authErr *errors.AuthError
		require.ErrorAs(t, err, &authErr)
		require.Equal(t, "invalid_client", authErr.Code)
	})

	t.Run("delegated scope", func(t *testing.T) {
		app := appCredentials(p)
		app.Scopes = []string{oauth2.ScopeIMAP}
		_, err := app.AcquireToken(context.Background())
		require.ErrorIs(t, err, errors.ErrAuth)
	})

	t.Run("plain http failure", func(t *testing.T) {
		p.FailNext(identitytest.Failure{Status: http.StatusServiceUnavailable, ContentType: "text/plain", Body: "down"})
		_, err := appCredentials(p).AcquireToken(context.Background())

		var statusErr *errors.StatusError
		require.ErrorAs(t, err, &statusErr)
		require.Equal(t, http.StatusServiceUnavailable, statusErr.StatusCode)
		require.True(t, errors.IsTransport(err))
	})

	missing := []struct {
		name   string
		mutate func(*azure.AppCredentials)
	}{
		{"client id", func(a *azure.AppCredentials) { a.ClientID = "" }},
		{"client secret", func(a *azure.AppCredentials) { a.ClientSecret = "" }},
		{"tenant id", func(a *azure.AppCredentials) { a.TenantID = "" }},
		{"scopes", func(a *azure.AppCredentials) { a.Scopes = nil }},
	}
	for _, tt := range missing {
		t.Run("missing "+tt.name, func(t *testing.T) {
			app := appCredentials(p)
			tt.mutate(&app)
			_, err := app.AcquireToken(context.Background())
			require.ErrorIs(t, err, errors.ErrConfiguration)

			_, err = app.TokenSource(context.Background())
			require.ErrorIs(t, err, errors.ErrConfiguration)
		})
	}
}
