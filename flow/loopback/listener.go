// Package loopback is a flow.Navigator for native applications without an
// embedded browser. It opens the authorization URI in the system browser and
// receives the redirect on a local HTTP listener.
package loopback

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"html/template"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"sync"
	"time"

	"github.com/jrsteele09/go-mail-oauth/flow"
	autherrors "github.com/jrsteele09/go-mail-oauth/internal/errors"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"
)

// ShutdownTimeout bounds how long Close waits for in-flight page renders.
const ShutdownTimeout = 5 * time.Second

//go:embed templates/success.html
var successHTML string

//go:embed templates/error.html
var errorHTML string

var (
	successPage = template.Must(template.New("success").Parse(successHTML))
	errorPage   = template.Must(template.New("error").Parse(errorHTML))
)

// Opener shows uri to the user.
type Opener func(uri string) error

// Option configures a Listener.
type Option func(*Listener)

// WithOpener replaces OpenBrowser.
func WithOpener(opener Opener) Option {
	return func(l *Listener) {
		l.opener = opener
	}
}

// Listener serves the redirect URI on the loopback interface. It is good for one navigation.
type Listener struct {
	redirectURI string
	path        string
	opener      Opener

	listener net.Listener
	server   *http.Server
	group    errgroup.Group
	stop     chan struct{}

	mu        sync.Mutex
	observer  flow.Observer
	closeOnce sync.Once
	closeErr  error
}

// Listen binds to the host and port of redirectURI, which must be an http URL
// on localhost or a loopback address. Port 0 or no port picks a free port;
// RedirectURI then reports the one chosen.
func Listen(redirectURI string, opts ...Option) (*Listener, error) {
	u, err := url.Parse(redirectURI)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid redirect uri: %w", autherrors.ErrConfiguration, err)
	}
	if u.Scheme != "http" || !isLoopback(u.Hostname()) {
		return nil, fmt.Errorf("%w: redirect uri %q is not an http://localhost address", autherrors.ErrConfiguration, redirectURI)
	}

	port := u.Port()
	if port == "" {
		port = "0"
	}
	addr := net.JoinHostPort(u.Hostname(), port)
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, autherrors.Wrapf(err, "failed to start redirect listener on %s", addr)
	}
	u.Host = net.JoinHostPort(u.Hostname(), strconv.Itoa(ln.Addr().(*net.TCPAddr).Port))

	l := &Listener{
		redirectURI: u.String(),
		path:        u.Path,
		opener:      OpenBrowser,
		listener:    ln,
		stop:        make(chan struct{}),
	}
	if l.path == "" {
		l.path = "/"
	}
	for _, opt := range opts {
		opt(l)
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /", l.handleRedirect)
	l.server = &http.Server{
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return l, nil
}

// RedirectURI is the URI to register with the application and put in the authorization request.
func (l *Listener) RedirectURI() string {
	return l.redirectURI
}

// Navigate starts serving the redirect URI and opens uri in the browser. The
// listener stops serving when ctx is done.
func (l *Listener) Navigate(ctx context.Context, uri string, observer flow.Observer) error {
	l.mu.Lock()
	if l.observer != nil {
		l.mu.Unlock()
		return errors.New("redirect listener is already in use")
	}
	l.observer = observer
	l.mu.Unlock()

	l.group.Go(func() error {
		if err := l.server.Serve(l.listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			observer.Closed()
			return autherrors.Wrapf(err, "redirect listener failed")
		}
		return nil
	})
	l.group.Go(func() error {
		// Cancellation is reported by whoever owns ctx, not as a closed surface.
		select {
		case <-ctx.Done():
			l.shutdown()
		case <-l.stop:
		}
		return nil
	})

	log.Info().Str("redirect_uri", l.redirectURI).Msg("Opening browser for sign-in")
	return l.opener(uri)
}

// Close stops the listener and reports the surface as closed to the observer.
func (l *Listener) Close() error {
	l.closeOnce.Do(func() {
		close(l.stop)
		l.shutdown()
		l.closeErr = l.group.Wait()
		if observer := l.currentObserver(); observer != nil {
			observer.Closed()
		}
		log.Debug().Str("redirect_uri", l.redirectURI).Msg("Redirect listener closed")
	})
	return l.closeErr
}

func (l *Listener) shutdown() {
	ctx, cancel := context.WithTimeout(context.Background(), ShutdownTimeout)
	defer cancel()
	_ = l.server.Shutdown(ctx)
	_ = l.listener.Close()
}

func (l *Listener) currentObserver() flow.Observer {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.observer
}

func (l *Listener) handleRedirect(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != l.path {
		http.NotFound(w, r)
		return
	}
	observer := l.currentObserver()
	if observer == nil {
		http.Error(w, "No sign-in in progress", http.StatusConflict)
		return
	}

	state := observer.Navigated("http://" + r.Host + r.URL.RequestURI())

	w.Header().Set("X-Content-Type-Options", "nosniff")
	w.Header().Set("X-Frame-Options", "DENY")
	w.Header().Set("Content-Security-Policy", "default-src 'none'; style-src 'unsafe-inline'")
	w.Header().Set("Referrer-Policy", "no-referrer")
	w.Header().Set("Cache-Control", "no-store")

	var (
		page *template.Template
		data any
	)
	switch state {
	case flow.Succeeded:
		page = successPage
	case flow.Failed:
		query := r.URL.Query()
		page = errorPage
		data = map[string]string{
			"Error":       query.Get("error"),
			"Description": query.Get("error_description"),
		}
	default:
		http.Error(w, "The authorization response carries neither a code nor an error", http.StatusBadRequest)
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := page.Execute(w, data); err != nil {
		log.Err(err).Msg("Failed to render sign-in page")
	}
}

func isLoopback(host string) bool {
	if host == "localhost" {
		return true
	}
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}
