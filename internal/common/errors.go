package common

import (
	"errors"
	"fmt"
)

// Failure categories shared by every phase. Wrap them with fmt.Errorf("...: %w")
// and test with errors.Is.
var (
	// ErrTransientNetwork marks transport failures and unexpected HTTP status codes
	ErrTransientNetwork = errors.New("transient network error")
	// ErrMalformedResponse marks pages or payloads that no longer match the expected shape
	ErrMalformedResponse = errors.New("malformed response")
	// ErrStateDivergence marks an accepted action whose effect the server does not reflect
	ErrStateDivergence = errors.New("state divergence")
	// ErrConfiguration marks missing or invalid settings
	ErrConfiguration = errors.New("configuration error")
	// ErrCaptchaUnavailable is returned when the captcha could not be recognized after all attempts
	ErrCaptchaUnavailable = errors.New("captcha unavailable")
)

// AuthFailureKind distinguishes captcha rejections from credential rejections
type AuthFailureKind string

const (
	AuthFailureCaptcha     AuthFailureKind = "captcha"
	AuthFailureCredentials AuthFailureKind = "credentials"
	AuthFailureUnconfirmed AuthFailureKind = "unconfirmed"
)

// AuthenticationError is returned when the site rejects a login submission
type AuthenticationError struct {
	Kind    AuthFailureKind
	Message string
}

func (e *AuthenticationError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("authentication failed (%s)", e.Kind)
	}
	return fmt.Sprintf("authentication failed (%s): %s", e.Kind, e.Message)
}

// Permanent reports whether retrying cannot help: the site rejected the credentials themselves.
func (e *AuthenticationError) Permanent() bool {
	return e.Kind == AuthFailureCredentials
}

// permanentError wraps an error that must stop a retry loop immediately
type permanentError struct {
	err error
}

func (e *permanentError) Error() string { return e.err.Error() }
func (e *permanentError) Unwrap() error { return e.err }

// Permanent marks err as non-retryable. A nil err stays nil.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err: err}
}

// IsPermanent reports whether err (or anything it wraps) must not be retried
func IsPermanent(err error) bool {
	var pe *permanentError
	if errors.As(err, &pe) {
		return true
	}
	var ae *AuthenticationError
	if errors.As(err, &ae) {
		return ae.Permanent()
	}
	return errors.Is(err, ErrConfiguration)
}
