package azure

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"slices"
	"strings"
	"time"

	autherrors "github.com/jrsteele09/go-mail-oauth/internal/errors"
	"github.com/jrsteele09/go-mail-oauth/internal/utils"
	"github.com/jrsteele09/go-mail-oauth/oauth2"
	"github.com/rs/zerolog/log"
)

const (
	contentTypeForm = "application/x-www-form-urlencoded"
	contentTypeJSON = "application/json"

	// maxResponseBytes bounds how much of a token endpoint response is read.
	maxResponseBytes = 1 << 20
)

// TokenGrant is what one successful call to the token endpoint yielded.
type TokenGrant struct {
	AccessToken  string
	RefreshToken *string
	ExpiresIn    time.Duration

	// Claims is set when "openid" was requested.
	Claims *IDTokenClaims

	UserName *string
	FullName *string
	Email    *string
}

// TokenExchanger talks to the token endpoint of one tenant.
type TokenExchanger struct {
	tokenEndpoint string
	httpClient    *http.Client
	verifier      IDTokenVerifier
}

// NewTokenExchanger creates an exchanger. A nil client means http.DefaultClient;
// a nil verifier means ID tokens are decoded without signature verification.
func NewTokenExchanger(tokenEndpoint string, httpClient *http.Client, verifier IDTokenVerifier) *TokenExchanger {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &TokenExchanger{
		tokenEndpoint: tokenEndpoint,
		httpClient:    httpClient,
		verifier:      verifier,
	}
}

// TokenEndpoint returns the URL tokens are requested from.
func (e *TokenExchanger) TokenEndpoint() string {
	return e.tokenEndpoint
}

// ExchangeCode redeems an authorization code. Which parts of the response are
// used depends on the requested scopes:
//   - offline_access: refresh_token
//   - openid: id_token (required), and with it
//   - profile: preferred_username and name
//   - email: email
func (e *TokenExchanger) ExchangeCode(ctx context.Context, authorizationCode string, scopes []string, redirectURI, clientID string) (*TokenGrant, error) {
	body := formBody(
		"grant_type", string(oauth2.AuthorizationCodeGrant),
		"code", authorizationCode,
		"scope", strings.Join(scopes, " "),
		"redirect_uri", redirectURI,
		"client_id", clientID,
	)

	resp, err := e.post(ctx, oauth2.AuthorizationCodeGrant, body)
	if err != nil {
		return nil, err
	}

	grant, err := grantFromResponse(resp)
	if err != nil {
		return nil, err
	}

	if slices.Contains(scopes, oauth2.ScopeOfflineAccess) {
		grant.RefreshToken = resp.RefreshToken
	}

	if !slices.Contains(scopes, oauth2.ScopeOpenID) {
		return grant, nil
	}

	rawIDToken := utils.Value(resp.IdToken)
	if rawIDToken == "" {
		return nil, autherrors.ErrMissingIDToken
	}
	if e.verifier != nil {
		if _, err := e.verifier.Verify(ctx, rawIDToken); err != nil {
			return nil, fmt.Errorf("%w: id_token verification failed: %w", autherrors.ErrProtocol, err)
		}
	}
	claims, err := ParseIDToken(rawIDToken)
	if err != nil {
		return nil, err
	}
	grant.Claims = claims

	if slices.Contains(scopes, oauth2.ScopeProfile) {
		grant.UserName = claims.PreferredUsername()
		grant.FullName = claims.Name()
	}
	if slices.Contains(scopes, oauth2.ScopeEmail) {
		grant.Email = claims.Email()
	}
	return grant, nil
}

// Refresh renews the access token. The provider rotates the refresh token on
// every call, so both tokens are taken from the response.
func (e *TokenExchanger) Refresh(ctx context.Context, refreshToken, clientID string) (*TokenGrant, error) {
	body := formBody(
		"grant_type", string(oauth2.RefreshTokenCodeGrant),
		"client_id", clientID,
		"refresh_token", refreshToken,
	)

	resp, err := e.post(ctx, oauth2.RefreshTokenCodeGrant, body)
	if err != nil {
		return nil, err
	}

	grant, err := grantFromResponse(resp)
	if err != nil {
		return nil, err
	}
	grant.RefreshToken = resp.RefreshToken
	return grant, nil
}

func grantFromResponse(resp *oauth2.TokenResponse) (*TokenGrant, error) {
	accessToken := utils.Value(resp.AccessToken)
	if accessToken == "" {
		return nil, autherrors.ErrMissingAccessToken
	}
	return &TokenGrant{
		AccessToken: accessToken,
		ExpiresIn:   time.Duration(resp.ExpiresIn) * time.Second,
	}, nil
}

// post sends an urlencoded body to the token endpoint and decodes the JSON reply.
// Errors from the HTTP client itself are returned as they are.
func (e *TokenExchanger) post(ctx context.Context, grant oauth2.GrantType, body string) (*oauth2.TokenResponse, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.tokenEndpoint, strings.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("%w: invalid token endpoint: %w", autherrors.ErrConfiguration, err)
	}
	req.Header.Set("Content-Type", contentTypeForm)
	req.Header.Set("Accept", contentTypeJSON)

	log.Debug().Str("grant_type", string(grant)).Str("endpoint", e.tokenEndpoint).Msg("Requesting tokens")

	resp, err := e.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, err
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, errorFromResponse(resp, data)
	}

	tokenResp, err := oauth2.ParseTokenResponse(data)
	if err != nil {
		return nil, fmt.Errorf("%w: unable to decode token response: %w", autherrors.ErrProtocol, err)
	}
	return tokenResp, nil
}

// errorFromResponse turns a JSON error object into an AuthError. Anything else
// is reported as the raw HTTP failure.
func errorFromResponse(resp *http.Response, data []byte) error {
	contentType := resp.Header.Get("Content-Type")
	statusErr := &autherrors.StatusError{
		StatusCode:  resp.StatusCode,
		ContentType: contentType,
		Body:        string(data),
	}
	if !strings.HasPrefix(contentType, contentTypeJSON) {
		return statusErr
	}

	errResp, err := oauth2.ParseErrorResponse(data)
	if err != nil || errResp.Error == "" {
		return statusErr
	}

	log.Warn().Int("status", resp.StatusCode).Str("error", errResp.Error).Msg("Token endpoint returned an error")
	return autherrors.NewAuthError(errResp.Error, errResp.ErrorDescription)
}
