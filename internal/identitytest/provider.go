// Package identitytest provides an in-process stand-in for the Microsoft
// identity platform v2.0 endpoints: authorize, token, OpenID discovery and
// signing keys. ID tokens are signed with a freshly generated RSA key.
package identitytest

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"slices"
	"strings"
	"sync"
	"testing"
	"time"

	jwtlib "github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

const (
	ClientID     = "11111111-2222-3333-4444-555555555555"
	ClientSecret = "test-client-secret"
	// TenantID is the concrete tenant users belong to; tokens carry it in "tid".
	TenantID = "9188040d-6c67-4c5b-b112-36a304b66dad"

	contentTypeJSON = "application/json; charset=utf-8"
)

// NowTimeFunc returns the current time. It can be overridden in tests.
var NowTimeFunc = time.Now

// User is the account that "signs in" at the authorize endpoint.
type User struct {
	ObjectID          string
	PreferredUsername string
	Name              string
	Email             string
}

// Failure is a canned token endpoint reply.
type Failure struct {
	Status      int
	ContentType string
	Body        string
}

type grant struct {
	clientID    string
	redirectURI string
	scopes      []string
}

// Provider serves the identity platform endpoints for any tenant path segment.
type Provider struct {
	server *httptest.Server
	keys   *KeyPair

	mu                  sync.Mutex
	user                User
	denyConsent         bool
	accessTokenLifetime time.Duration
	codes               map[string]grant
	refreshTokens       map[string]grant
	requests            []url.Values
	failures            []Failure
}

// New starts a provider that is shut down when the test ends.
func New(t testing.TB) *Provider {
	t.Helper()

	keys, err := GenerateKeyPair(uuid.NewString())
	require.NoError(t, err)

	p := &Provider{
		keys: keys,
		user: User{
			ObjectID:          uuid.NewString(),
			PreferredUsername: "u@example.org",
			Name:              "User Name",
			Email:             "user.name@example.org",
		},
		accessTokenLifetime: time.Hour,
		codes:               make(map[string]grant),
		refreshTokens:       make(map[string]grant),
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /{tenant}/oauth2/v2.0/authorize", p.authorize)
	mux.HandleFunc("POST /{tenant}/oauth2/v2.0/token", p.token)
	mux.HandleFunc("GET /{tenant}/v2.0/.well-known/openid-configuration", p.discovery)
	mux.HandleFunc("GET /{tenant}/discovery/v2.0/keys", p.jwks)

	p.server = httptest.NewServer(mux)
	t.Cleanup(p.server.Close)
	return p
}

// URL is the authority to hand to azure.WithAuthority.
func (p *Provider) URL() string {
	return p.server.URL
}

// Client returns an HTTP client for the provider's server.
func (p *Provider) Client() *http.Client {
	return p.server.Client()
}

// Keys returns the key ID tokens are signed with.
func (p *Provider) Keys() *KeyPair {
	return p.keys
}

// SetUser replaces the signed-in account.
func (p *Provider) SetUser(u User) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.user = u
}

// DenyConsent makes the authorize endpoint redirect with access_denied.
func (p *Provider) DenyConsent(deny bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.denyConsent = deny
}

// SetAccessTokenLifetime sets expires_in for subsequently issued tokens.
func (p *Provider) SetAccessTokenLifetime(d time.Duration) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.accessTokenLifetime = d
}

// FailNext queues replies that are sent instead of the next token responses.
func (p *Provider) FailNext(failures ...Failure) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.failures = append(p.failures, failures...)
}

// IssueCode registers an authorization code as if the user had consented.
func (p *Provider) IssueCode(clientID, redirectURI string, scopes []string) string {
	p.mu.Lock()
	defer p.mu.Unlock()
	code := "code-" + uuid.NewString()
	p.codes[code] = grant{clientID: clientID, redirectURI: redirectURI, scopes: slices.Clone(scopes)}
	return code
}

// TokenRequests returns the form bodies received by the token endpoint, in order.
func (p *Provider) TokenRequests() []url.Values {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]url.Values, len(p.requests))
	for i, r := range p.requests {
		out[i] = cloneValues(r)
	}
	return out
}

// Issuer returns the issuer the provider stamps into tokens for tenant.
func (p *Provider) Issuer(tenant string) string {
	return p.server.URL + "/" + tenant + "/v2.0"
}

// CreateIDToken signs an ID token for the current user, including the claims
// the requested scopes entitle the client to.
func (p *Provider) CreateIDToken(clientID string, scopes []string) (string, error) {
	p.mu.Lock()
	user := p.user
	p.mu.Unlock()

	now := NowTimeFunc()
	claims := jwtlib.MapClaims{
		"ver": "2.0",
		"iss": p.Issuer(TenantID),
		"sub": user.ObjectID,
		"aud": clientID,
		"oid": user.ObjectID,
		"tid": TenantID,
		"iat": now.Unix(),
		"nbf": now.Unix(),
		"exp": now.Add(time.Hour).Unix(),
	}
	if slices.Contains(scopes, "profile") {
		claims["preferred_username"] = user.PreferredUsername
		claims["name"] = user.Name
	}
	if slices.Contains(scopes, "email") && user.Email != "" {
		claims["email"] = user.Email
	}
	return p.keys.Sign(claims)
}

func (p *Provider) authorize(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	if q.Get("client_id") != ClientID {
		http.Error(w, "AADSTS700016: Application not found in the directory", http.StatusBadRequest)
		return
	}
	redirect, err := url.Parse(q.Get("redirect_uri"))
	if err != nil || q.Get("redirect_uri") == "" {
		http.Error(w, "AADSTS50011: The redirect URI specified in the request does not match", http.StatusBadRequest)
		return
	}

	p.mu.Lock()
	deny := p.denyConsent
	p.mu.Unlock()

	params := redirect.Query()
	switch {
	case q.Get("prompt") == "none":
		params.Set("error", "interaction_required")
		params.Set("error_description", "AADSTS50058: A silent sign-in request was sent but no user is signed in.")
	case deny:
		params.Set("error", "access_denied")
		params.Set("error_description", "The user has denied access to the scope requested by the client application.")
	default:
		params.Set("code", p.IssueCode(ClientID, redirect.String(), strings.Fields(q.Get("scope"))))
	}
	redirect.RawQuery = params.Encode()
	http.Redirect(w, r, redirect.String(), http.StatusFound)
}

func (p *Provider) token(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		writeJSONError(w, "invalid_request", "Failed to parse form data", http.StatusBadRequest)
		return
	}

	p.mu.Lock()
	p.requests = append(p.requests, cloneValues(r.PostForm))
	var failure *Failure
	if len(p.failures) > 0 {
		failure = &p.failures[0]
		p.failures = p.failures[1:]
	}
	p.mu.Unlock()

	if failure != nil {
		if failure.ContentType != "" {
			w.Header().Set("Content-Type", failure.ContentType)
		}
		w.WriteHeader(failure.Status)
		_, _ = w.Write([]byte(failure.Body))
		return
	}

	switch r.PostForm.Get("grant_type") {
	case "authorization_code":
		p.redeemCode(w, r.PostForm)
	case "refresh_token":
		p.redeemRefreshToken(w, r.PostForm)
	case "client_credentials":
		p.clientCredentials(w, r.PostForm)
	default:
		writeJSONError(w, "unsupported_grant_type", "AADSTS70003: The app requested an unsupported grant type.", http.StatusBadRequest)
	}
}

func (p *Provider) redeemCode(w http.ResponseWriter, form url.Values) {
	p.mu.Lock()
	g, ok := p.codes[form.Get("code")]
	delete(p.codes, form.Get("code"))
	p.mu.Unlock()

	switch {
	case !ok:
		writeJSONError(w, "invalid_grant", "AADSTS70008: The provided authorization code or refresh token has expired.", http.StatusBadRequest)
		return
	case g.clientID != form.Get("client_id"):
		writeJSONError(w, "invalid_client", "AADSTS700016: Application not found in the directory.", http.StatusBadRequest)
		return
	case g.redirectURI != form.Get("redirect_uri"):
		writeJSONError(w, "invalid_grant", "AADSTS50011: The redirect URI does not match the one used for the authorization code.", http.StatusBadRequest)
		return
	}

	g.scopes = strings.Fields(form.Get("scope"))
	p.writeTokens(w, g)
}

func (p *Provider) redeemRefreshToken(w http.ResponseWriter, form url.Values) {
	p.mu.Lock()
	g, ok := p.refreshTokens[form.Get("refresh_token")]
	delete(p.refreshTokens, form.Get("refresh_token"))
	p.mu.Unlock()

	if !ok || g.clientID != form.Get("client_id") {
		writeJSONError(w, "invalid_grant", "AADSTS700082: The refresh token has expired due to inactivity.", http.StatusBadRequest)
		return
	}
	p.writeTokens(w, g)
}

func (p *Provider) clientCredentials(w http.ResponseWriter, form url.Values) {
	if form.Get("client_id") != ClientID || form.Get("client_secret") != ClientSecret {
		writeJSONError(w, "invalid_client", "AADSTS7000215: Invalid client secret provided.", http.StatusUnauthorized)
		return
	}
	if !strings.HasSuffix(form.Get("scope"), "/.default") {
		writeJSONError(w, "invalid_scope", "AADSTS1002012: The provided value for scope is not valid.", http.StatusBadRequest)
		return
	}

	p.mu.Lock()
	lifetime := p.accessTokenLifetime
	p.mu.Unlock()

	writeJSON(w, map[string]any{
		"token_type":     "Bearer",
		"expires_in":     int64(lifetime.Seconds()),
		"ext_expires_in": int64(lifetime.Seconds()),
		"access_token":   "app-" + uuid.NewString(),
	})
}

// writeTokens issues what the real platform would: a refresh token only with
// offline_access and an ID token only with openid.
func (p *Provider) writeTokens(w http.ResponseWriter, g grant) {
	p.mu.Lock()
	lifetime := p.accessTokenLifetime
	p.mu.Unlock()

	resp := map[string]any{
		"token_type":     "Bearer",
		"scope":          strings.Join(g.scopes, " "),
		"expires_in":     int64(lifetime.Seconds()),
		"ext_expires_in": int64(lifetime.Seconds()),
		"access_token":   "at-" + uuid.NewString(),
	}

	if slices.Contains(g.scopes, "offline_access") {
		refreshToken := "rt-" + uuid.NewString()
		p.mu.Lock()
		p.refreshTokens[refreshToken] = g
		p.mu.Unlock()
		resp["refresh_token"] = refreshToken
	}

	if slices.Contains(g.scopes, "openid") {
		idToken, err := p.CreateIDToken(g.clientID, g.scopes)
		if err != nil {
			writeJSONError(w, "server_error", err.Error(), http.StatusInternalServerError)
			return
		}
		resp["id_token"] = idToken
	}

	writeJSON(w, resp)
}

func (p *Provider) discovery(w http.ResponseWriter, r *http.Request) {
	tenant := r.PathValue("tenant")
	issuer := p.Issuer(tenant)
	switch strings.ToLower(tenant) {
	case "common", "organizations", "consumers":
		issuer = p.Issuer("{tenantid}")
	}

	base := p.server.URL + "/" + tenant
	writeJSON(w, map[string]any{
		"issuer":                                issuer,
		"authorization_endpoint":                base + "/oauth2/v2.0/authorize",
		"token_endpoint":                        base + "/oauth2/v2.0/token",
		"jwks_uri":                              base + "/discovery/v2.0/keys",
		"response_types_supported":              []string{"code", "id_token", "code id_token", "id_token token"},
		"response_modes_supported":              []string{"query", "fragment", "form_post"},
		"subject_types_supported":               []string{"pairwise"},
		"id_token_signing_alg_values_supported": []string{RS256},
		"scopes_supported":                      []string{"openid", "profile", "email", "offline_access"},
	})
}

func (p *Provider) jwks(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, JWKS{Keys: []JWK{p.keys.ToJWK()}})
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", contentTypeJSON)
	w.Header().Set("Cache-Control", "no-store")
	_ = json.NewEncoder(w).Encode(v)
}

func writeJSONError(w http.ResponseWriter, errorCode, description string, statusCode int) {
	w.Header().Set("Content-Type", contentTypeJSON)
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(map[string]string{
		"error":             errorCode,
		"error_description": description,
	})
}

func cloneValues(v url.Values) url.Values {
	out := make(url.Values, len(v))
	for k, vals := range v {
		out[k] = slices.Clone(vals)
	}
	return out
}
