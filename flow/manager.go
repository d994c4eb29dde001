package flow

import (
	"context"
	"fmt"
	"slices"
	"sync/atomic"

	"github.com/google/uuid"
	"github.com/jrsteele09/go-mail-oauth/azure"
	autherrors "github.com/jrsteele09/go-mail-oauth/internal/errors"
	"github.com/jrsteele09/go-mail-oauth/internal/utils"
	"github.com/jrsteele09/go-mail-oauth/oauth2"
	"github.com/rs/zerolog/log"
)

// Config describes the authorization request. Empty RedirectURI means
// azure.DefaultRedirectURI; empty PromptType lets the provider decide.
type Config struct {
	ClientID    string
	TenantID    string
	PromptType  oauth2.PromptType
	RedirectURI string
	Scopes      []string
}

func (c Config) request() azure.AuthorizationRequest {
	return azure.AuthorizationRequest{
		ClientID:    c.ClientID,
		TenantID:    c.TenantID,
		PromptType:  c.PromptType,
		RedirectURI: c.RedirectURI,
		Scopes:      slices.Clone(c.Scopes),
	}
}

// Manager runs a single authorization attempt. Create a new Manager for every attempt.
type Manager struct {
	cfg     Config
	opts    []azure.Option
	started atomic.Bool
}

// NewManager validates cfg. The options are passed on to azure.NewCredentials.
func NewManager(cfg Config, opts ...azure.Option) (*Manager, error) {
	if err := cfg.request().Validate(); err != nil {
		return nil, err
	}
	if cfg.RedirectURI != "" {
		if _, err := NewInterceptor(cfg.RedirectURI); err != nil {
			return nil, err
		}
	}
	return &Manager{cfg: cfg, opts: opts}, nil
}

// Authorization is an attempt in progress.
type Authorization struct {
	// ID identifies the attempt in log output.
	ID string

	credentials *azure.Credentials
	err         error
	done        chan struct{}
}

// Done is closed when the attempt has finished.
func (a *Authorization) Done() <-chan struct{} {
	return a.done
}

// Wait blocks until the attempt finishes or ctx is done. Cancelling ctx only
// stops waiting; cancel the context given to Start to abandon the attempt.
func (a *Authorization) Wait(ctx context.Context) (*azure.Credentials, error) {
	select {
	case <-a.done:
		return a.credentials, a.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Start sends nav to the authorization URI and returns without waiting for the user.
// It can be called once per Manager; later calls fail before touching nav.
func (m *Manager) Start(ctx context.Context, nav Navigator) (*Authorization, error) {
	if !m.started.CompareAndSwap(false, true) {
		return nil, autherrors.ErrSingleUse
	}

	creds, err := azure.NewCredentials(m.cfg.request(), m.opts...)
	if err != nil {
		return nil, err
	}
	interceptor, err := NewInterceptor(creds.RedirectURI())
	if err != nil {
		return nil, err
	}

	a := &Authorization{
		ID:   uuid.NewString(),
		done: make(chan struct{}),
	}
	log.Info().Str("attempt", a.ID).Str("client_id", m.cfg.ClientID).Str("tenant", m.cfg.TenantID).Msg("Starting authorization")

	go m.run(ctx, a, creds, interceptor, nav)
	return a, nil
}

// Authorize runs the attempt to completion.
func (m *Manager) Authorize(ctx context.Context, nav Navigator) (*azure.Credentials, error) {
	a, err := m.Start(ctx, nav)
	if err != nil {
		return nil, err
	}
	return a.Wait(ctx)
}

func (m *Manager) run(ctx context.Context, a *Authorization, creds *azure.Credentials, interceptor *Interceptor, nav Navigator) {
	defer close(a.done)

	interceptor.begin()
	if err := nav.Navigate(ctx, creds.AuthorizationURI(), interceptor); err != nil {
		interceptor.Fail(fmt.Errorf("%w: %w", autherrors.ErrUnreachableAuthority, err))
	}

	select {
	case <-interceptor.Done():
	case <-ctx.Done():
		interceptor.Fail(ctx.Err())
	}

	code, err := interceptor.Result()
	if err == nil {
		err = creds.ExchangeCodeForTokens(ctx, code)
	}

	if closeErr := nav.Close(); closeErr != nil {
		log.Warn().Err(closeErr).Str("attempt", a.ID).Msg("Failed to close browser surface")
	}

	if err != nil {
		log.Err(err).Str("attempt", a.ID).Msg("Authorization failed")
		a.err = err
		return
	}
	log.Info().Str("attempt", a.ID).Str("user", utils.Value(creds.UserName())).Msg("Authorization succeeded")
	a.credentials = creds
}
