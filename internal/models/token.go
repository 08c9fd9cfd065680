package models

import "time"

// OAuthToken is the cached OCR access token. ExpiresTime is an absolute unix
// instant that already includes the early-renewal margin.
type OAuthToken struct {
	AccessToken string  `json:"access_token"`
	ExpiresTime float64 `json:"expires_time"`
}

// Valid reports whether the token is usable at now
func (t *OAuthToken) Valid(now time.Time) bool {
	if t == nil || t.AccessToken == "" {
		return false
	}
	return t.ExpiresTime > float64(now.UnixNano())/float64(time.Second)
}

// Expiry returns ExpiresTime as a time.Time
func (t *OAuthToken) Expiry() time.Time {
	sec := int64(t.ExpiresTime)
	nsec := int64((t.ExpiresTime - float64(sec)) * float64(time.Second))
	return time.Unix(sec, nsec)
}
