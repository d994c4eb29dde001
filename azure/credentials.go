package azure

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"

	autherrors "github.com/jrsteele09/go-mail-oauth/internal/errors"
	"github.com/jrsteele09/go-mail-oauth/internal/utils"
	"github.com/jrsteele09/go-mail-oauth/oauth2"
	"github.com/rs/zerolog/log"
	xoauth2 "golang.org/x/oauth2"
)

// NowTimeFunc returns the current time. It can be overridden in tests.
var NowTimeFunc = time.Now

// expiryDelta is how early an access token is considered expired.
const expiryDelta = 10 * time.Second

// AuthorizationRequest holds what the user is asked to consent to.
type AuthorizationRequest struct {
	// ClientID is the application (client) ID assigned by the Azure portal's App registrations.
	// Required: Yes
	ClientID string

	// TenantID controls who can sign in: 'common', 'organizations', 'consumers', a domain or a GUID.
	// Required: Yes
	TenantID string

	// PromptType is the kind of login/consent dialog. Empty means DefaultPrompt.
	PromptType oauth2.PromptType

	// RedirectURI must exactly match one registered with the application.
	// Empty means DefaultRedirectURI.
	RedirectURI string

	// Scopes to consent to, e.g. "openid", "profile", "offline_access", oauth2.ScopeIMAP.
	// Required: Yes (nil is rejected)
	Scopes []string
}

// Validate checks the required fields and the prompt type.
func (r AuthorizationRequest) Validate() error {
	if r.ClientID == "" {
		return fmt.Errorf("%w: client id not specified", autherrors.ErrConfiguration)
	}
	if r.TenantID == "" {
		return fmt.Errorf("%w: tenant id not specified", autherrors.ErrConfiguration)
	}
	if r.Scopes == nil {
		return fmt.Errorf("%w: scopes not specified", autherrors.ErrConfiguration)
	}
	if !r.PromptType.Valid() {
		return fmt.Errorf("%w: unknown prompt type %q", autherrors.ErrConfiguration, r.PromptType)
	}
	return nil
}

// Credentials is the state of one authorization: the URL the user is sent to,
// the tokens obtained for them and the identity claims taken from the ID token.
// Token fields are only replaced after a successful exchange or refresh.
type Credentials struct {
	clientID         string
	scopes           []string
	redirectURI      string
	authorizationURI string
	exchanger        *TokenExchanger

	mu           sync.RWMutex
	accessToken  string
	refreshToken *string
	userName     *string
	fullName     *string
	email        *string
	expiry       time.Time
}

// NewCredentials validates req and builds its authorization URI. Nothing is sent over the network.
func NewCredentials(req AuthorizationRequest, opts ...Option) (*Credentials, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	o := newOptions(opts)

	redirectURI := req.RedirectURI
	if redirectURI == "" {
		redirectURI = DefaultRedirectURI
	}
	endpoint := Endpoint(o.authority, req.TenantID)

	c := &Credentials{
		clientID:    req.ClientID,
		scopes:      slices.Clone(req.Scopes),
		redirectURI: redirectURI,
		authorizationURI: fmt.Sprintf(
			"%s?client_id=%s&response_type=%s&response_mode=%s&redirect_uri=%s&scope=%s&prompt=%s",
			endpoint.AuthURL,
			req.ClientID,
			oauth2.CodeResponseType,
			oauth2.QueryResponseMode,
			escapeDataString(redirectURI),
			escapeDataString(strings.Join(req.Scopes, " ")),
			req.PromptType,
		),
		exchanger: NewTokenExchanger(endpoint.TokenURL, o.httpClient, o.verifier),
	}
	return c, nil
}

// AuthorizationURI is where the user gets directed to for authorization.
func (c *Credentials) AuthorizationURI() string {
	return c.authorizationURI
}

// RedirectURI is where the user's browser is redirected once authentication is over.
func (c *Credentials) RedirectURI() string {
	return c.redirectURI
}

// ClientID returns the application (client) ID.
func (c *Credentials) ClientID() string {
	return c.clientID
}

// Scopes returns a copy of the requested scopes.
func (c *Credentials) Scopes() []string {
	return slices.Clone(c.scopes)
}

// AccessToken is empty until ExchangeCodeForTokens succeeds.
func (c *Credentials) AccessToken() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.accessToken
}

// RefreshToken is only available when "offline_access" was requested.
func (c *Credentials) RefreshToken() *string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return clonePtr(c.refreshToken)
}

// UserName is only available when "openid" and "profile" were requested.
func (c *Credentials) UserName() *string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return clonePtr(c.userName)
}

// FullName is only available when "openid" and "profile" were requested.
func (c *Credentials) FullName() *string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return clonePtr(c.fullName)
}

// Email is only available when "openid" and "email" were requested.
func (c *Credentials) Email() *string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return clonePtr(c.email)
}

// Expiry is zero when the provider did not report expires_in.
func (c *Credentials) Expiry() time.Time {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.expiry
}

// Expired reports whether the access token is missing or about to expire.
func (c *Credentials) Expired() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.accessToken == "" {
		return true
	}
	if c.expiry.IsZero() {
		return false
	}
	return !NowTimeFunc().Add(expiryDelta).Before(c.expiry)
}

// Token returns the current tokens in x/oauth2 form.
func (c *Credentials) Token() *xoauth2.Token {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return &xoauth2.Token{
		AccessToken:  c.accessToken,
		TokenType:    "Bearer",
		RefreshToken: utils.Value(c.refreshToken),
		Expiry:       c.expiry,
	}
}

// ExchangeCodeForTokens redeems an authorization code for an access token and,
// depending on the requested scopes, a refresh token and identity claims.
func (c *Credentials) ExchangeCodeForTokens(ctx context.Context, authorizationCode string) error {
	grant, err := c.exchanger.ExchangeCode(ctx, authorizationCode, c.scopes, c.redirectURI, c.clientID)
	if err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.applyTokens(grant)
	if grant.RefreshToken != nil {
		c.refreshToken = grant.RefreshToken
	}
	if c.userName == nil {
		c.userName = grant.UserName
	}
	if c.fullName == nil {
		c.fullName = grant.FullName
	}
	if c.email == nil {
		c.email = grant.Email
	}
	log.Debug().Str("client_id", c.clientID).Str("user", utils.Value(c.userName)).Time("expiry", c.expiry).Msg("Authorization code redeemed")
	return nil
}

// RefreshTokens obtains a new access token using the refresh token.
// On failure the current tokens are left untouched.
func (c *Credentials) RefreshTokens(ctx context.Context) error {
	refreshToken := c.RefreshToken()
	if refreshToken == nil || *refreshToken == "" {
		return autherrors.ErrNoRefreshToken
	}

	grant, err := c.exchanger.Refresh(ctx, *refreshToken, c.clientID)
	if err != nil {
		log.Err(err).Str("client_id", c.clientID).Msg("Failed to refresh access token")
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.applyTokens(grant)
	if grant.RefreshToken != nil {
		c.refreshToken = grant.RefreshToken
	}
	log.Debug().Str("client_id", c.clientID).Time("expiry", c.expiry).Msg("Access token refreshed")
	return nil
}

// applyTokens must be called with mu held.
func (c *Credentials) applyTokens(grant *TokenGrant) {
	c.accessToken = grant.AccessToken
	if grant.ExpiresIn > 0 {
		c.expiry = NowTimeFunc().Add(grant.ExpiresIn)
	} else {
		c.expiry = time.Time{}
	}
}

func clonePtr(v *string) *string {
	if v == nil {
		return nil
	}
	return utils.Ptr(*v)
}
