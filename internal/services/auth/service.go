// Package auth establishes the forum session: cached cookies when they still
// work, otherwise a captcha-assisted credential login.
package auth

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/fnsign/internal/common"
	"github.com/ternarybob/fnsign/internal/httpclient"
	"github.com/ternarybob/fnsign/internal/interfaces"
	"github.com/ternarybob/fnsign/internal/models"
)

// cookieLifetime asks the forum to keep the login for 30 days
const cookieLifetime = "2592000"

// Service implements interfaces.SessionAuthenticator
type Service struct {
	site    common.SiteConfig
	account common.AccountConfig
	ci      bool

	client *http.Client
	jar    *httpclient.SessionJar
	solver interfaces.CaptchaSolver
	cache  interfaces.CredentialCache

	retry       common.RetryPolicy
	settleDelay time.Duration
	logger      arbor.ILogger
}

// NewService creates the session authenticator. client and jar must come from
// httpclient.NewSessionClient and are shared with the other forum components.
func NewService(
	config *common.Config,
	client *http.Client,
	jar *httpclient.SessionJar,
	solver interfaces.CaptchaSolver,
	cache interfaces.CredentialCache,
	logger arbor.ILogger,
) *Service {
	return &Service{
		site:        config.Site,
		account:     config.Account,
		ci:          config.CI,
		client:      client,
		jar:         jar,
		solver:      solver,
		cache:       cache,
		retry:       common.NewRetryPolicy(config.Retry),
		settleDelay: common.Duration(config.Site.SettleDelay, time.Second),
		logger:      logger,
	}
}

// GetHTTPClient returns the client carrying the session cookies
func (s *Service) GetHTTPClient() *http.Client {
	return s.client
}

// EnsureSession restores the cached session when it is still valid and logs in otherwise.
// In CI the cache is bypassed and a fresh login is forced.
func (s *Service) EnsureSession(ctx context.Context) error {
	if s.ci {
		s.logger.Info().Msg("CI environment detected, skipping cached cookies and logging in")
		return s.Login(ctx)
	}

	session, ok := s.cache.LoadSession(ctx)
	if !ok {
		s.logger.Info().Msg("No cached session, logging in")
		return s.Login(ctx)
	}

	baseURL, err := url.Parse(s.site.BaseURL)
	if err != nil {
		return fmt.Errorf("%w: invalid base_url: %v", common.ErrConfiguration, err)
	}
	s.jar.Restore(baseURL, session.Cookies)
	s.logger.Info().
		Int("cookies", len(session.Cookies)).
		Bool("legacy", session.Legacy).
		Msg("Restored cached cookies")

	loggedIn, err := s.IsLoggedIn(ctx)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		s.logger.Warn().Err(err).Msg("Session probe failed, logging in")
		return s.Login(ctx)
	}
	if !loggedIn {
		s.logger.Info().Msg("Cached cookies are no longer valid, logging in")
		return s.Login(ctx)
	}

	s.logger.Info().Msg("Cached session is valid")
	if session.Legacy {
		// Rewrite the old flat file in the full per-cookie shape
		s.saveSession(ctx)
	}
	return nil
}

// IsLoggedIn fetches the home page and looks for logged-in signals
func (s *Service) IsLoggedIn(ctx context.Context) (bool, error) {
	page, err := httpclient.Get(ctx, s.client, s.site.BaseURL)
	if err != nil {
		return false, err
	}
	if !page.OK() {
		return false, fmt.Errorf("%w: home page status %d", common.ErrTransientNetwork, page.StatusCode)
	}

	doc, err := page.Document()
	if err != nil {
		return false, err
	}

	result := loggedIn(doc, page.Text(), s.account.Username)
	s.logger.Debug().Bool("logged_in", result).Msg("Login state probed")
	return result, nil
}

// Login performs a credential login, retried under the shared policy.
// A credential rejection stops the retries immediately.
func (s *Service) Login(ctx context.Context) error {
	err := s.retry.Do(ctx, s.logger, "login", func(attempt int) error {
		return s.attemptLogin(ctx, attempt)
	})
	if err != nil {
		return fmt.Errorf("login failed: %w", err)
	}

	s.logger.Info().Str("username", s.account.Username).Msg("Login successful")
	if !s.ci {
		s.saveSession(ctx)
	}
	return nil
}

func (s *Service) attemptLogin(ctx context.Context, attempt int) error {
	page, err := httpclient.Get(ctx, s.client, s.site.LoginURL())
	if err != nil {
		return err
	}
	if !page.OK() {
		return fmt.Errorf("%w: login page status %d", common.ErrTransientNetwork, page.StatusCode)
	}

	doc, err := page.Document()
	if err != nil {
		return err
	}

	form, strategy, err := parseLoginForm(doc, s.site)
	if err != nil {
		return err
	}
	s.logger.Info().
		Int("attempt", attempt).
		Str("form_id", form.FormID).
		Str("action", form.Action).
		Str("matched_by", strategy).
		Bool("captcha", form.Captcha != nil).
		Msg("Login form found")

	payload := s.buildPayload(form)

	if form.Captcha != nil {
		text, err := s.solver.Solve(ctx, form.Captcha.ImageURL)
		if err != nil {
			return err
		}
		payload.Set("seccodeverify", text)
		payload.Set("seccodehash", form.Captcha.Hash)
	}

	submitURL := s.submitURL(form.Action)
	header := http.Header{}
	header.Set("Origin", strings.TrimRight(s.site.BaseURL, "/"))
	header.Set("Referer", s.site.LoginURL())
	header.Set("Upgrade-Insecure-Requests", "1")

	s.logger.Debug().
		Str("url", submitURL).
		Str("payload", redactPayload(payload, form).Encode()).
		Msg("Submitting login")

	resp, err := httpclient.PostForm(ctx, s.client, submitURL, payload, header)
	if err != nil {
		return err
	}
	body := resp.Text()
	s.logger.Debug().
		Int("status", resp.StatusCode).
		Str("body", truncate(body, 300)).
		Msg("Login response received")

	switch classifyLoginResponse(body) {
	case outcomeCaptchaRejected:
		return &common.AuthenticationError{Kind: common.AuthFailureCaptcha, Message: "captcha rejected"}
	case outcomeCredentialsRejected:
		return &common.AuthenticationError{Kind: common.AuthFailureCredentials, Message: truncate(body, 300)}
	case outcomeSucceeded:
		s.logger.Debug().Msg("Success marker found in login response")
		return nil
	}

	// No marker either way: give the cookies a moment, then ask the home page
	if err := common.Sleep(ctx, s.settleDelay); err != nil {
		return err
	}
	ok, err := s.IsLoggedIn(ctx)
	if err != nil {
		return err
	}
	if !ok {
		return &common.AuthenticationError{Kind: common.AuthFailureUnconfirmed, Message: "login state not confirmed after submission"}
	}
	s.logger.Debug().Msg("Login confirmed by home page probe")
	return nil
}

func (s *Service) buildPayload(form *models.LoginForm) url.Values {
	payload := url.Values{}
	payload.Set("formhash", form.FormHash)
	payload.Set("referer", s.site.BaseURL)
	payload.Set("loginfield", "username")
	payload.Set("username", s.account.Username)
	payload.Set("password", s.account.Password)
	payload.Set("questionid", "0")
	payload.Set("answer", "")
	payload.Set("cookietime", cookieLifetime)
	payload.Set("loginsubmit", "true")

	if form.UsernameID != "" {
		payload.Set(form.UsernameID, s.account.Username)
	}
	if form.PasswordID != "" {
		payload.Set(form.PasswordID, s.account.Password)
	}
	return payload
}

// submitURL uses the form action only when it targets member.php on the site
// itself. Any other action falls back to the ajax login endpoint so the
// credentials never leave the site.
func (s *Service) submitURL(action string) string {
	fallback := s.site.LoginURL() + "&loginsubmit=yes&inajax=1"

	switch {
	case strings.HasPrefix(action, "member.php"):
		return s.site.Resolve(action)
	case strings.HasPrefix(action, "http://"), strings.HasPrefix(action, "https://"):
		if s.onSite(action) {
			return action
		}
		s.logger.Warn().Str("action", action).Msg("Ignoring off-site login form action")
		return fallback
	default:
		return fallback
	}
}

// onSite reports whether rawURL is the member.php endpoint on the configured host
func (s *Service) onSite(rawURL string) bool {
	target, err := url.Parse(rawURL)
	if err != nil {
		return false
	}
	base, err := url.Parse(s.site.BaseURL)
	if err != nil {
		return false
	}
	return strings.EqualFold(target.Host, base.Host) && target.Path == "/member.php"
}

func (s *Service) saveSession(ctx context.Context) {
	cookies := s.jar.Snapshot()
	if len(cookies) == 0 {
		s.logger.Warn().Msg("No cookies to save")
		return
	}
	if err := s.cache.SaveSession(ctx, &models.Session{Cookies: cookies}); err != nil {
		s.logger.Warn().Err(err).Msg("Failed to save session cookies")
		return
	}
	s.logger.Info().Int("cookies", len(cookies)).Msg("Session cookies saved")
}

func redactPayload(payload url.Values, form *models.LoginForm) url.Values {
	redacted := url.Values{}
	for key, values := range payload {
		redacted[key] = values
	}
	redacted.Set("password", "***")
	if form.PasswordID != "" {
		redacted.Set(form.PasswordID, "***")
	}
	return redacted
}

func truncate(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n]) + "..."
}
