package config

import (
	"slices"

	"github.com/jrsteele09/go-mail-oauth/oauth2"
)

const (
	clientSecretVar = "MAILAUTH_CLIENT_SECRET"
	appScopesVar    = "MAILAUTH_APP_SCOPES"
	mailboxVar      = "MAILAUTH_MAILBOX"
)

type App struct {
	file *File
}

var _ AppConfig = App{}

func (a App) GetClientSecret() string {
	return GetEnv(clientSecretVar, a.file.ClientSecret)
}

func (a App) GetAppScopes() []string {
	if len(a.file.AppScopes) > 0 {
		return GetEnvList(appScopesVar, slices.Clone(a.file.AppScopes))
	}
	return GetEnvList(appScopesVar, []string{oauth2.ScopeAppDefault})
}

// GetMailbox is the mailbox to log in to when it can't be taken from the ID token.
func (a App) GetMailbox() string {
	return GetEnv(mailboxVar, a.file.Mailbox)
}
