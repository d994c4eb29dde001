package flow

import "context"

// Observer receives the navigation events of a browser surface.
// *Interceptor is the Observer used by Manager.
type Observer interface {
	// Navigated is called for every URI the surface lands on.
	Navigated(uri string) State
	// Closed is called when the surface goes away, whether or not the flow finished.
	Closed()
}

// Navigator is a user-facing browser surface: an embedded web view, or the
// system browser paired with a redirect listener.
type Navigator interface {
	// Navigate shows uri to the user and starts reporting events to observer.
	// It must not block until the user is done.
	Navigate(ctx context.Context, uri string, observer Observer) error
	// Close dismisses the surface.
	Close() error
}

var _ Observer = (*Interceptor)(nil)
