package httpclient

import (
	"fmt"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/ternarybob/fnsign/internal/common"
	"github.com/ternarybob/fnsign/internal/models"
	"golang.org/x/net/publicsuffix"
	"golang.org/x/time/rate"
)

// NewDefaultHTTPClient creates a simple HTTP client with a timeout
func NewDefaultHTTPClient(timeout time.Duration) *http.Client {
	return &http.Client{
		Timeout: timeout,
	}
}

// NewSessionClient creates the browser-like client used for every forum request:
// a recording cookie jar, default headers and optional request pacing.
func NewSessionClient(site common.SiteConfig) (*http.Client, *SessionJar, error) {
	jar, err := NewSessionJar()
	if err != nil {
		return nil, nil, err
	}

	headers := http.Header{}
	if site.UserAgent != "" {
		headers.Set("User-Agent", site.UserAgent)
	}
	headers.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,image/webp,*/*;q=0.8")
	if site.AcceptLanguage != "" {
		headers.Set("Accept-Language", site.AcceptLanguage)
	}

	transport := &headerTransport{
		base:    http.DefaultTransport,
		headers: headers,
	}
	if site.RequestsPerSecond > 0 {
		transport.limiter = rate.NewLimiter(rate.Limit(site.RequestsPerSecond), 1)
	}

	client := &http.Client{
		Jar:       jar,
		Transport: transport,
		Timeout:   common.Duration(site.RequestTimeout, 30*time.Second),
	}

	return client, jar, nil
}

// headerTransport adds default headers without overriding per-request ones
type headerTransport struct {
	base    http.RoundTripper
	headers http.Header
	limiter *rate.Limiter
}

func (t *headerTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	if t.limiter != nil {
		if err := t.limiter.Wait(req.Context()); err != nil {
			return nil, err
		}
	}

	req = req.Clone(req.Context())
	for name, values := range t.headers {
		if req.Header.Get(name) == "" {
			req.Header[name] = values
		}
	}
	return t.base.RoundTrip(req)
}

// SessionJar is a cookie jar that also remembers the attributes of every cookie
// it accepts, since http.CookieJar only hands back names and values.
type SessionJar struct {
	jar     *cookiejar.Jar
	mu      sync.Mutex
	cookies map[string]models.StoredCookie
	now     func() time.Time
}

// NewSessionJar creates an empty jar using the public suffix list
func NewSessionJar() (*SessionJar, error) {
	jar, err := cookiejar.New(&cookiejar.Options{PublicSuffixList: publicsuffix.List})
	if err != nil {
		return nil, fmt.Errorf("failed to create cookie jar: %w", err)
	}
	return &SessionJar{
		jar:     jar,
		cookies: make(map[string]models.StoredCookie),
		now:     time.Now,
	}, nil
}

// SetCookies implements http.CookieJar
func (j *SessionJar) SetCookies(u *url.URL, cookies []*http.Cookie) {
	j.jar.SetCookies(u, cookies)

	j.mu.Lock()
	defer j.mu.Unlock()

	now := j.now()
	for _, c := range cookies {
		stored := models.NewStoredCookie(c, now)
		if stored.Domain == "" {
			stored.Domain = u.Hostname()
		}
		if stored.Path == "" {
			stored.Path = "/"
		}

		key := cookieKey(stored)
		if c.MaxAge < 0 || stored.Expired(now) {
			delete(j.cookies, key)
			continue
		}
		j.cookies[key] = stored
	}
}

// Cookies implements http.CookieJar
func (j *SessionJar) Cookies(u *url.URL) []*http.Cookie {
	return j.jar.Cookies(u)
}

// Snapshot returns the live cookies with their attributes, in a stable order
func (j *SessionJar) Snapshot() []models.StoredCookie {
	j.mu.Lock()
	defer j.mu.Unlock()

	now := j.now()
	result := make([]models.StoredCookie, 0, len(j.cookies))
	for _, cookie := range j.cookies {
		if !cookie.Expired(now) {
			result = append(result, cookie)
		}
	}
	sort.Slice(result, func(a, b int) bool {
		return cookieKey(result[a]) < cookieKey(result[b])
	})
	return result
}

// Restore seeds the jar with stored cookies. Cookies are grouped by domain and
// set against a URL on that domain so the jar accepts them; cookies without a
// domain (legacy cache shape) are bound to the site host.
func (j *SessionJar) Restore(baseURL *url.URL, cookies []models.StoredCookie) {
	cookiesByDomain := make(map[string][]*http.Cookie)
	for _, c := range cookies {
		domain := strings.TrimPrefix(c.Domain, ".")
		if domain == "" {
			domain = baseURL.Hostname()
		}
		cookiesByDomain[domain] = append(cookiesByDomain[domain], c.HTTPCookie())
	}

	for domain, domainCookies := range cookiesByDomain {
		domainURL := &url.URL{Scheme: baseURL.Scheme, Host: domain, Path: "/"}
		if domain == baseURL.Hostname() {
			domainURL.Host = baseURL.Host // keep the port
		}
		j.SetCookies(domainURL, domainCookies)
	}
}

func cookieKey(c models.StoredCookie) string {
	return strings.TrimPrefix(c.Domain, ".") + "|" + c.Path + "|" + c.Name
}
