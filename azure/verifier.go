package azure

import (
	"context"
	"net/http"
	"strings"

	"github.com/coreos/go-oidc/v3/oidc"
	autherrors "github.com/jrsteele09/go-mail-oauth/internal/errors"
)

// IDTokenVerifier checks the signature and standard claims of a raw ID token.
// *oidc.IDTokenVerifier satisfies it.
type IDTokenVerifier interface {
	Verify(ctx context.Context, rawIDToken string) (*oidc.IDToken, error)
}

var _ IDTokenVerifier = (*oidc.IDTokenVerifier)(nil)

// IssuerURL returns the v2.0 issuer of a tenant.
func IssuerURL(authority, tenantID string) string {
	return strings.TrimSuffix(authority, "/") + "/" + tenantID + "/v2.0"
}

// IsMultiTenant reports whether tenantID names a group of tenants rather than one tenant.
func IsMultiTenant(tenantID string) bool {
	switch strings.ToLower(tenantID) {
	case "common", "organizations", "consumers":
		return true
	}
	return false
}

// NewIDTokenVerifier discovers the tenant's signing keys and returns a verifier
// bound to clientID. Keys are fetched lazily with ctx, so ctx must outlive the verifier.
// Multi-tenant authorities publish a templated issuer, so the issuer check is
// skipped for them and only signature, audience and expiry are enforced.
func NewIDTokenVerifier(ctx context.Context, authority, tenantID, clientID string, httpClient *http.Client) (*oidc.IDTokenVerifier, error) {
	if httpClient != nil {
		ctx = oidc.ClientContext(ctx, httpClient)
	}

	cfg := &oidc.Config{ClientID: clientID}
	if IsMultiTenant(tenantID) {
		ctx = oidc.InsecureIssuerURLContext(ctx, IssuerURL(authority, "{tenantid}"))
		cfg.SkipIssuerCheck = true
	}

	provider, err := oidc.NewProvider(ctx, IssuerURL(authority, tenantID))
	if err != nil {
		return nil, autherrors.Wrapf(err, "failed to create OIDC provider")
	}
	return provider.Verifier(cfg), nil
}
