// Package flow drives an interactive authorization code flow: it sends a
// browser surface to the authorization URI, watches the navigations it
// reports for the redirect back to the application and redeems the code.
package flow

import (
	"fmt"
	"net"
	"net/url"
	"strings"
	"sync"

	autherrors "github.com/jrsteele09/go-mail-oauth/internal/errors"
	"github.com/rs/zerolog/log"
)

// State is the progress of one authorization attempt.
type State int

const (
	Idle State = iota
	Navigating
	Succeeded
	Failed
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Navigating:
		return "navigating"
	case Succeeded:
		return "succeeded"
	case Failed:
		return "failed"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// Terminal reports whether no further transition can happen.
func (s State) Terminal() bool {
	return s == Succeeded || s == Failed
}

// Interceptor watches navigation events for the redirect URI and extracts the
// authorization code or error from it. Only the first terminal transition
// counts; every event after it is ignored.
type Interceptor struct {
	redirectURI string
	authority   string

	mu    sync.Mutex
	state State
	code  string
	err   error
	done  chan struct{}
}

// NewInterceptor creates an interceptor for the given redirect URI, which must be absolute.
func NewInterceptor(redirectURI string) (*Interceptor, error) {
	u, err := url.Parse(redirectURI)
	if err != nil || !u.IsAbs() || u.Host == "" {
		return nil, fmt.Errorf("%w: redirect uri %q is not an absolute URL", autherrors.ErrConfiguration, redirectURI)
	}
	return &Interceptor{
		redirectURI: redirectURI,
		authority:   authority(u),
		done:        make(chan struct{}),
	}, nil
}

// RedirectURI returns the URI the interceptor waits for.
func (i *Interceptor) RedirectURI() string {
	return i.redirectURI
}

// Navigated handles one navigation event and returns the resulting state.
func (i *Interceptor) Navigated(uri string) State {
	i.mu.Lock()
	defer i.mu.Unlock()

	if i.state.Terminal() {
		return i.state
	}
	i.state = Navigating

	u, err := url.Parse(uri)
	if err != nil || authority(u) != i.authority {
		log.Warn().Str("uri", redact(uri)).Str("expected", i.authority).Msg("Navigation left the expected authority")
		i.finish("", autherrors.ErrUnreachableAuthority)
		return i.state
	}

	query := u.Query()
	if query.Has("error") {
		i.finish("", autherrors.NewAuthError(query.Get("error"), query.Get("error_description")))
		return i.state
	}
	if code := query.Get("code"); code != "" {
		i.finish(code, nil)
		return i.state
	}

	log.Debug().Str("uri", redact(uri)).Msg("Intermediate navigation")
	return i.state
}

// Closed reports that the browser surface went away. It fails the attempt
// unless a terminal state was already reached.
func (i *Interceptor) Closed() {
	i.Fail(autherrors.ErrSurfaceClosed)
}

// Fail moves the interceptor to Failed with err. It returns false when a
// terminal state had already been reached.
func (i *Interceptor) Fail(err error) bool {
	i.mu.Lock()
	defer i.mu.Unlock()
	if i.state.Terminal() {
		return false
	}
	i.finish("", err)
	return true
}

// State returns the current state.
func (i *Interceptor) State() State {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.state
}

// Done is closed once a terminal state is reached.
func (i *Interceptor) Done() <-chan struct{} {
	return i.done
}

// Result returns the authorization code, or the error the attempt failed with.
// Before a terminal state both are empty.
func (i *Interceptor) Result() (string, error) {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.code, i.err
}

func (i *Interceptor) begin() {
	i.mu.Lock()
	defer i.mu.Unlock()
	if i.state == Idle {
		i.state = Navigating
	}
}

// finish must be called with mu held.
func (i *Interceptor) finish(code string, err error) {
	if err != nil {
		i.state = Failed
		i.err = err
	} else {
		i.state = Succeeded
		i.code = code
	}
	log.Debug().Stringer("state", i.state).Msg("Authorization reached terminal state")
	close(i.done)
}

// authority returns scheme://host[:port] in lower case, without the scheme's default port.
func authority(u *url.URL) string {
	scheme := strings.ToLower(u.Scheme)
	host := strings.ToLower(u.Hostname())
	port := u.Port()
	if (scheme == "http" && port == "80") || (scheme == "https" && port == "443") {
		port = ""
	}
	if port == "" {
		if strings.Contains(host, ":") {
			host = "[" + host + "]"
		}
		return scheme + "://" + host
	}
	return scheme + "://" + net.JoinHostPort(host, port)
}

// redact drops the query, which may carry an authorization code.
func redact(uri string) string {
	if i := strings.IndexAny(uri, "?#"); i >= 0 {
		return uri[:i]
	}
	return uri
}
