package models

import (
	"net/http"
	"time"
)

// StoredCookie is the on-disk form of one session cookie.
// Domain, path and expiry must be kept for the session to survive a restart.
type StoredCookie struct {
	Name    string `json:"name"`
	Value   string `json:"value"`
	Domain  string `json:"domain"`
	Path    string `json:"path"`
	Expires int64  `json:"expires"` // unix seconds, 0 = session cookie
	Secure  bool   `json:"secure"`
}

// NewStoredCookie converts an http.Cookie. A MaxAge takes precedence over Expires.
func NewStoredCookie(c *http.Cookie, now time.Time) StoredCookie {
	stored := StoredCookie{
		Name:   c.Name,
		Value:  c.Value,
		Domain: c.Domain,
		Path:   c.Path,
		Secure: c.Secure,
	}
	switch {
	case c.MaxAge > 0:
		stored.Expires = now.Add(time.Duration(c.MaxAge) * time.Second).Unix()
	case !c.Expires.IsZero():
		stored.Expires = c.Expires.Unix()
	}
	return stored
}

// HTTPCookie converts back to an http.Cookie for a cookie jar
func (c StoredCookie) HTTPCookie() *http.Cookie {
	cookie := &http.Cookie{
		Name:   c.Name,
		Value:  c.Value,
		Domain: c.Domain,
		Path:   c.Path,
		Secure: c.Secure,
	}
	if c.Expires > 0 {
		cookie.Expires = time.Unix(c.Expires, 0)
	}
	return cookie
}

// Expired reports whether the cookie carries an expiry that has passed
func (c StoredCookie) Expired(now time.Time) bool {
	return c.Expires > 0 && c.Expires <= now.Unix()
}

// Session is the persisted authenticated context of one forum account
type Session struct {
	Cookies []StoredCookie
	// Legacy is true when the session was restored from the flat name→value
	// file shape, which carries no domain, path or expiry.
	Legacy bool
}
