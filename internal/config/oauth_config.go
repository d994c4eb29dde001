package config

import (
	"os"
	"slices"
	"time"

	"github.com/jrsteele09/go-mail-oauth/azure"
	"github.com/jrsteele09/go-mail-oauth/oauth2"
)

const (
	clientIDVar      = "MAILAUTH_CLIENT_ID"
	tenantIDVar      = "MAILAUTH_TENANT_ID"
	authorityVar     = "MAILAUTH_AUTHORITY"
	redirectURIVar   = "MAILAUTH_REDIRECT_URI"
	promptVar        = "MAILAUTH_PROMPT"
	scopesVar        = "MAILAUTH_SCOPES"
	loginTimeoutVar  = "MAILAUTH_LOGIN_TIMEOUT"
	verifyIDTokenVar = "MAILAUTH_VERIFY_ID_TOKEN"

	// DefaultRedirectURI is a loopback address; the port is picked when the listener starts.
	DefaultRedirectURI = "http://localhost"
)

var defaultScopes = []string{
	oauth2.ScopeOpenID,
	oauth2.ScopeProfile,
	oauth2.ScopeOfflineAccess,
	oauth2.ScopeIMAP,
}

type OAuth struct {
	file *File
}

var _ OAuthConfig = OAuth{}

func (o OAuth) GetClientID() string {
	return GetEnv(clientIDVar, o.file.ClientID)
}

func (o OAuth) GetTenantID() string {
	return GetEnv(tenantIDVar, orDefault(o.file.TenantID, azure.DefaultTenantID))
}

func (o OAuth) GetAuthority() string {
	return GetEnv(authorityVar, orDefault(o.file.Authority, azure.DefaultAuthority))
}

func (o OAuth) GetRedirectURI() string {
	return GetEnv(redirectURIVar, orDefault(o.file.RedirectURI, DefaultRedirectURI))
}

func (o OAuth) GetPromptType() oauth2.PromptType {
	// Set but empty selects oauth2.DefaultPrompt.
	if prompt, ok := os.LookupEnv(promptVar); ok {
		return oauth2.PromptType(prompt)
	}
	if o.file.Prompt != "" {
		return oauth2.PromptType(o.file.Prompt)
	}
	return oauth2.SelectAccountPrompt
}

func (o OAuth) GetScopes() []string {
	if len(o.file.Scopes) > 0 {
		return GetEnvList(scopesVar, slices.Clone(o.file.Scopes))
	}
	return GetEnvList(scopesVar, slices.Clone(defaultScopes))
}

func (o OAuth) GetLoginTimeout() time.Duration {
	return GetEnvDuration(loginTimeoutVar, orDefault(o.file.LoginTimeout, 5*time.Minute))
}

func (o OAuth) GetVerifyIDToken() bool {
	if o.file.VerifyIDToken != nil {
		return GetEnvBool(verifyIDTokenVar, *o.file.VerifyIDToken)
	}
	return GetEnvBool(verifyIDTokenVar, true)
}
