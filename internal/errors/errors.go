package errors

import (
	"errors"
	"fmt"
	"net"
	"net/url"
	"strings"
)

// Error taxonomy for an authorization attempt
var (
	// ErrConfiguration marks missing required settings or reuse of a single-use flow.
	ErrConfiguration = errors.New("configuration error")

	// ErrNavigation marks a browser surface that never produced a usable redirect.
	ErrNavigation = errors.New("navigation error")

	// ErrAuth marks an explicit error returned by the identity provider.
	ErrAuth = errors.New("authorization error")

	// ErrProtocol marks a token or ID token response that could not be understood.
	ErrProtocol = errors.New("protocol error")

	// ErrTransport marks a failure to talk to the token endpoint.
	ErrTransport = errors.New("transport error")
)

// Navigation failures
var (
	ErrUnreachableAuthority = fmt.Errorf("%w: unable to open authorization URL", ErrNavigation)
	ErrSurfaceClosed        = fmt.Errorf("%w: authentication window has been closed unexpectedly", ErrNavigation)
)

// Configuration failures
var (
	ErrSingleUse      = fmt.Errorf("%w: only one authentication request can be performed", ErrConfiguration)
	ErrNoRefreshToken = fmt.Errorf("%w: no refresh token available, request the offline_access scope", ErrConfiguration)
)

// Protocol failures
var (
	ErrMissingAccessToken = fmt.Errorf("%w: access_token missing from token response", ErrProtocol)
	ErrMissingIDToken     = fmt.Errorf("%w: id_token missing from token response", ErrProtocol)
	ErrJWTFormat          = fmt.Errorf("%w: Unexpected JWT token format.", ErrProtocol)
)

// AuthError is an error reported by the identity provider, either on the
// redirect (?error=...) or in a JSON body from the token endpoint.
type AuthError struct {
	Code        string
	Description string
}

// NewAuthError builds an AuthError, substituting a generic description when
// the provider supplied none.
func NewAuthError(code, description string) *AuthError {
	if description == "" {
		description = "Error '" + code + "'."
	}
	return &AuthError{Code: code, Description: description}
}

func (e *AuthError) Error() string {
	return e.Description
}

func (e *AuthError) Is(target error) bool {
	return target == ErrAuth
}

// StatusError is an HTTP failure from the token endpoint that did not carry a
// JSON error object.
type StatusError struct {
	StatusCode  int
	ContentType string
	Body        string
}

func (e *StatusError) Error() string {
	body := strings.TrimSpace(e.Body)
	if len(body) > 200 {
		body = body[:200] + "..."
	}
	if body == "" {
		return fmt.Sprintf("token endpoint returned HTTP %d", e.StatusCode)
	}
	return fmt.Sprintf("token endpoint returned HTTP %d: %s", e.StatusCode, body)
}

func (e *StatusError) Is(target error) bool {
	return target == ErrTransport
}

// IsTransport reports whether err is a network level failure, either a
// StatusError or an error raised by the HTTP client itself.
func IsTransport(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrTransport) {
		return true
	}
	var urlErr *url.Error
	if errors.As(err, &urlErr) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr)
}

// Wrapf prefixes err with a formatted context message. A nil err stays nil.
func Wrapf(err error, format string, args ...any) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf(format+": %w", append(args, err)...)
}
