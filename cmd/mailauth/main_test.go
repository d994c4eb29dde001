package main

import (
	"bytes"
	"io"
	"net/http"
	"strings"
	"testing"

	"github.com/jrsteele09/go-mail-oauth/internal/errors"
	"github.com/jrsteele09/go-mail-oauth/internal/identitytest"
	"github.com/jrsteele09/go-mail-oauth/mail"
	"github.com/stretchr/testify/require"
)

func execute(t *testing.T, stdin string, args ...string) (string, string, error) {
	t.Helper()
	cmd := newRootCmd()
	var stdout, stderr bytes.Buffer
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	cmd.SetIn(strings.NewReader(stdin))
	cmd.SetArgs(args)
	err := cmd.Execute()
	return stdout.String(), stderr.String(), err
}

func providerEnv(t *testing.T, p *identitytest.Provider) {
	t.Helper()
	t.Setenv("MAILAUTH_CONFIG", "")
	t.Setenv("MAILAUTH_AUTHORITY", p.URL())
	t.Setenv("MAILAUTH_CLIENT_ID", identitytest.ClientID)
	t.Setenv("MAILAUTH_TENANT_ID", "organizations")
	t.Setenv("MAILAUTH_SCOPES", "")
	t.Setenv("MAILAUTH_MAILBOX", "")
	t.Setenv("MAILAUTH_LOG_LEVEL", "debug")
}

func TestXOAuth2Cmd(t *testing.T) {
	t.Setenv("MAILAUTH_CONFIG", "")

	stdout, stderr, err := execute(t, "", "--no-banner", "xoauth2", "u@example.org", "A")
	require.NoError(t, err)
	require.Equal(t, mail.XOAuth2Base64("u@example.org", "A")+"\n", stdout)
	require.NotContains(t, stderr, "A\x01")

	stdout, _, err = execute(t, "A\n", "--no-banner", "xoauth2", "--raw", "u@example.org")
	require.NoError(t, err)
	require.Equal(t, "user=u@example.org\x01auth=Bearer A\x01\x01", stdout)

	_, _, err = execute(t, "", "--no-banner", "xoauth2", "u@example.org")
	require.Error(t, err)
}

func TestBanner(t *testing.T) {
	t.Setenv("MAILAUTH_CONFIG", "")
	t.Setenv("MAILAUTH_APP_NAME", "mailauth")

	_, stderr, err := execute(t, "", "xoauth2", "u@example.org", "A")
	require.NoError(t, err)
	require.NotEmpty(t, strings.TrimSpace(stderr))
}

func TestAppTokenCmd(t *testing.T) {
	p := identitytest.New(t)
	providerEnv(t, p)
	t.Setenv("MAILAUTH_TENANT_ID", identitytest.TenantID)
	t.Setenv("MAILAUTH_CLIENT_SECRET", identitytest.ClientSecret)
	t.Setenv("MAILAUTH_APP_SCOPES", "")

	stdout, _, err := execute(t, "", "--no-banner", "app-token", "--mailbox", "shared@example.org")
	require.NoError(t, err)
	require.Contains(t, stdout, "Access:     app-")
	require.Contains(t, stdout, "XOAUTH2:    ")

	requests := p.TokenRequests()
	require.Len(t, requests, 1)
	require.Equal(t, "https://outlook.office365.com/.default", requests[0].Get("scope"))

	t.Run("multi-tenant authority", func(t *testing.T) {
		t.Setenv("MAILAUTH_TENANT_ID", "common")
		_, _, err := execute(t, "", "--no-banner", "app-token")
		require.ErrorIs(t, err, errors.ErrConfiguration)
	})

	t.Run("wrong secret", func(t *testing.T) {
		t.Setenv("MAILAUTH_CLIENT_SECRET", "wrong")
		_, _, err := execute(t, "", "--no-banner", "app-token")
		require.ErrorIs(t, err, errors.ErrAuth)
	})
}

func TestAuthorizeCmd(t *testing.T) {
	p := identitytest.New(t)
	providerEnv(t, p)
	t.Setenv("MAILAUTH_REDIRECT_URI", "http://127.0.0.1:0/callback")
	t.Setenv("MAILAUTH_VERIFY_ID_TOKEN", "true")
	t.Setenv("MAILAUTH_LOGIN_TIMEOUT", "30s")

	var opened string
	prev := openBrowser
	openBrowser = func(uri string) error {
		opened = uri
		resp, err := http.Get(uri)
		if err != nil {
			return err
		}
		defer resp.Body.Close()
		_, err = io.Copy(io.Discard, resp.Body)
		return err
	}
	t.Cleanup(func() { openBrowser = prev })

	stdout, stderr, err := execute(t, "", "--no-banner", "authorize", "--refresh", "--show-token")
	require.NoError(t, err, stderr)
	require.True(t, strings.HasPrefix(opened, p.URL()+"/organizations/oauth2/v2.0/authorize?client_id="+identitytest.ClientID))
	require.Contains(t, opened, "&prompt=select_account")

	require.Contains(t, stdout, "User:       u@example.org\n")
	require.Contains(t, stdout, "Name:       User Name\n")
	require.Contains(t, stdout, "XOAUTH2:    ")
	require.Contains(t, stdout, "Refresh:    rt-")
	require.Contains(t, stderr, "Waiting for sign-in on http://127.0.0.1:")

	requests := p.TokenRequests()
	require.Len(t, requests, 2)
	require.Equal(t, "authorization_code", requests[0].Get("grant_type"))
	require.Equal(t, "refresh_token", requests[1].Get("grant_type"))
}

func TestAuthorizeCmd_NoClientID(t *testing.T) {
	p := identitytest.New(t)
	providerEnv(t, p)
	t.Setenv("MAILAUTH_CLIENT_ID", "")

	_, _, err := execute(t, "", "--no-banner", "authorize")
	require.ErrorIs(t, err, errors.ErrConfiguration)
}
