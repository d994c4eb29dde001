// Package azure implements the client side of the Microsoft identity platform
// v2.0 authorization code flow: authorization URL construction, redemption of
// the authorization code, refresh token renewal and ID token decoding. It also
// covers app-only access through the client credentials grant.
package azure

import (
	"net/http"
	"net/url"
	"strings"

	xoauth2 "golang.org/x/oauth2"
	"golang.org/x/oauth2/microsoft"
)

const (
	// DefaultAuthority is the Microsoft identity platform host.
	DefaultAuthority = "https://login.microsoftonline.com"

	// DefaultRedirectURI is the redirect URI for desktop and mobile applications with embedded browsers.
	DefaultRedirectURI = "https://login.microsoftonline.com/common/oauth2/nativeclient"

	// DefaultTenantID admits work and school accounts from any organization.
	DefaultTenantID = "organizations"
)

// Endpoint returns the authorize and token endpoints for a tenant.
// Allowed tenant values include 'common', 'organizations', 'consumers', a domain, or a GUID.
func Endpoint(authority, tenantID string) xoauth2.Endpoint {
	authority = strings.TrimSuffix(authority, "/")
	if authority == "" || authority == DefaultAuthority {
		return microsoft.AzureADEndpoint(tenantID)
	}
	return xoauth2.Endpoint{
		AuthURL:  authority + "/" + tenantID + "/oauth2/v2.0/authorize",
		TokenURL: authority + "/" + tenantID + "/oauth2/v2.0/token",
	}
}

type options struct {
	authority  string
	httpClient *http.Client
	verifier   IDTokenVerifier
}

// Option customises credentials created by NewCredentials.
type Option func(*options)

// WithAuthority points the flow at a different identity platform host, e.g. a national cloud.
func WithAuthority(authority string) Option {
	return func(o *options) {
		o.authority = strings.TrimSuffix(authority, "/")
	}
}

// WithHTTPClient sets the client used for token endpoint calls.
// No timeout is imposed by this package; set one on the client or the context.
func WithHTTPClient(client *http.Client) Option {
	return func(o *options) {
		o.httpClient = client
	}
}

// WithIDTokenVerifier makes the token exchange verify the ID token signature
// before any claim is read from it.
func WithIDTokenVerifier(verifier IDTokenVerifier) Option {
	return func(o *options) {
		o.verifier = verifier
	}
}

func newOptions(opts []Option) *options {
	o := &options{
		authority:  DefaultAuthority,
		httpClient: http.DefaultClient,
	}
	for _, opt := range opts {
		opt(o)
	}
	if o.httpClient == nil {
		o.httpClient = http.DefaultClient
	}
	return o
}

// escapeDataString percent-encodes everything but RFC 3986 unreserved characters.
// Spaces become %20 rather than '+'.
func escapeDataString(s string) string {
	return strings.ReplaceAll(url.QueryEscape(s), "+", "%20")
}

// formBody joins key/value pairs into an urlencoded body, preserving order.
func formBody(pairs ...string) string {
	var b strings.Builder
	for i := 0; i+1 < len(pairs); i += 2 {
		if i > 0 {
			b.WriteByte('&')
		}
		b.WriteString(pairs[i])
		b.WriteByte('=')
		b.WriteString(escapeDataString(pairs[i+1]))
	}
	return b.String()
}
