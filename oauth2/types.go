package oauth2

// ResponseType represents the OAuth 2.0 response type.
// Determines what is returned from the authorization endpoint.
type ResponseType string

const (
	// CodeResponseType indicates the authorization code flow.
	// The provider returns a short-lived code that is redeemed at the token endpoint.
	CodeResponseType ResponseType = "code"
)

// ResponseModeType denotes how the authorization response parameters are returned to the client.
type ResponseModeType string

const (
	// QueryResponseMode returns parameters in the URL query string.
	// Example: https://login.microsoftonline.com/common/oauth2/nativeclient?code=ABC123
	// This is the only mode a navigation observer can read without running script.
	QueryResponseMode ResponseModeType = "query"

	// FragmentResponseMode returns parameters in the URL fragment (after #).
	FragmentResponseMode ResponseModeType = "fragment"

	// FormPostResponseMode returns parameters via an auto-submitting HTML form.
	FormPostResponseMode ResponseModeType = "form_post"
)

// GrantType represents the OAuth 2.0 grant type used at the token endpoint.
type GrantType string

const (
	// AuthorizationCodeGrant exchanges an authorization code for tokens.
	// Body: grant_type, code, scope, redirect_uri, client_id
	AuthorizationCodeGrant GrantType = "authorization_code"

	// ClientCredentialsCodeGrant authenticates the application itself (app-only access).
	// Body: grant_type, client_id, client_secret, scope
	// Returns: access_token only
	ClientCredentialsCodeGrant GrantType = "client_credentials"

	// RefreshTokenCodeGrant exchanges a refresh token for new tokens.
	// Body: grant_type, client_id, refresh_token
	// Returns: new access_token and a rotated refresh_token
	RefreshTokenCodeGrant GrantType = "refresh_token"
)

// PromptType controls the interaction the identity provider forces on the user.
type PromptType string

const (
	// DefaultPrompt doesn't request credentials if the user is already signed on.
	DefaultPrompt PromptType = ""

	// LoginPrompt always requests credentials.
	LoginPrompt PromptType = "login"

	// NonePrompt never requests credentials. If the request can't be completed
	// silently the provider returns an "interaction_required" error.
	NonePrompt PromptType = "none"

	// ConsentPrompt asks the user to grant permissions to the app.
	ConsentPrompt PromptType = "consent"

	// SelectAccountPrompt asks the user to select the account to use.
	SelectAccountPrompt PromptType = "select_account"
)

// Valid reports whether p is one of the prompt values the provider accepts.
func (p PromptType) Valid() bool {
	switch p {
	case DefaultPrompt, LoginPrompt, NonePrompt, ConsentPrompt, SelectAccountPrompt:
		return true
	}
	return false
}

// Scopes understood by the token exchange and the mail collaborators.
const (
	// ScopeOpenID is needed to receive an id_token (and with it profile or email claims).
	ScopeOpenID = "openid"
	// ScopeProfile adds preferred_username and name to the id_token.
	ScopeProfile = "profile"
	// ScopeEmail adds email to the id_token.
	ScopeEmail = "email"
	// ScopeOfflineAccess makes the provider issue a refresh token.
	ScopeOfflineAccess = "offline_access"

	ScopeIMAP       = "https://outlook.office365.com/IMAP.AccessAsUser.All"
	ScopePOP        = "https://outlook.office365.com/POP.AccessAsUser.All"
	ScopeSMTP       = "https://outlook.office365.com/SMTP.Send"
	ScopeEWS        = "https://outlook.office365.com/EWS.AccessAsUser.All"
	ScopeGraphMail  = "https://graph.microsoft.com/Mail.Read"
	ScopeAppDefault = "https://outlook.office365.com/.default"
)
