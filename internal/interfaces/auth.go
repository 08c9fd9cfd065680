package interfaces

import (
	"context"
	"net/http"
)

// SessionAuthenticator establishes and validates the forum session
type SessionAuthenticator interface {
	// EnsureSession restores or creates a logged-in session
	EnsureSession(ctx context.Context) error
	// Login performs a full credential login, retried per the shared policy
	Login(ctx context.Context) error
	// IsLoggedIn probes the home page for logged-in signals
	IsLoggedIn(ctx context.Context) (bool, error)
	// GetHTTPClient returns the client carrying the session cookies
	GetHTTPClient() *http.Client
}
