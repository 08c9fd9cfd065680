package ocr

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/fnsign/internal/common"
	"github.com/ternarybob/fnsign/internal/httpclient"
	"github.com/ternarybob/fnsign/internal/interfaces"
	"github.com/ternarybob/fnsign/internal/models"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"
)

// defaultTokenLifetime applies when the token endpoint omits expires_in (Baidu issues 30-day tokens)
const defaultTokenLifetime = 30 * 24 * time.Hour

// TokenProvider issues OCR access tokens via the client-credentials grant and
// keeps them in the credential cache, renewing a margin before the real expiry.
type TokenProvider struct {
	config     clientcredentials.Config
	cache      interfaces.CredentialCache
	margin     time.Duration
	retry      common.RetryPolicy
	httpClient *http.Client
	logger     arbor.ILogger
	now        func() time.Time
}

// NewTokenProvider creates a token provider from configuration
func NewTokenProvider(config common.OCRConfig, retry common.RetryPolicy, cache interfaces.CredentialCache, logger arbor.ILogger) *TokenProvider {
	return &TokenProvider{
		config: clientcredentials.Config{
			ClientID:     config.APIKey,
			ClientSecret: config.SecretKey,
			TokenURL:     config.TokenURL,
			AuthStyle:    oauth2.AuthStyleInParams,
		},
		cache:      cache,
		margin:     common.Duration(config.TokenMargin, 24*time.Hour),
		retry:      retry,
		httpClient: httpclient.NewDefaultHTTPClient(common.Duration(config.RequestTimeout, 30*time.Second)),
		logger:     logger,
		now:        time.Now,
	}
}

// AccessToken returns a cached token when still fresh, otherwise fetches and caches a new one
func (p *TokenProvider) AccessToken(ctx context.Context) (string, error) {
	if cached, ok := p.cache.LoadToken(ctx); ok {
		p.logger.Debug().Msg("Using cached access_token")
		return cached.AccessToken, nil
	}

	if p.config.ClientID == "" || p.config.ClientSecret == "" {
		return "", fmt.Errorf("%w: OCR api_key/secret_key not set", common.ErrConfiguration)
	}

	var token *oauth2.Token
	err := p.retry.Do(ctx, p.logger, "ocr_token", func(attempt int) error {
		var err error
		token, err = p.fetch(ctx)
		return err
	})
	if err != nil {
		return "", fmt.Errorf("failed to obtain access_token: %w", err)
	}

	expiry := token.Expiry
	if expiry.IsZero() {
		expiry = p.now().Add(defaultTokenLifetime)
	}
	cached := &models.OAuthToken{
		AccessToken: token.AccessToken,
		ExpiresTime: float64(expiry.Add(-p.margin).UnixNano()) / float64(time.Second),
	}
	if err := p.cache.SaveToken(ctx, cached); err != nil {
		p.logger.Warn().Err(err).Msg("Failed to cache access_token")
	} else {
		p.logger.Info().Msg("access_token cached")
	}

	return token.AccessToken, nil
}

// Invalidate drops the cached token after the OCR service rejected it
func (p *TokenProvider) Invalidate(ctx context.Context) {
	if err := p.cache.SaveToken(ctx, &models.OAuthToken{}); err != nil {
		p.logger.Warn().Err(err).Msg("Failed to invalidate cached access_token")
	}
}

func (p *TokenProvider) fetch(ctx context.Context) (*oauth2.Token, error) {
	ctx = context.WithValue(ctx, oauth2.HTTPClient, p.httpClient)

	token, err := p.config.Token(ctx)
	if err != nil {
		var retrieveErr *oauth2.RetrieveError
		if errors.As(err, &retrieveErr) && retrieveErr.Response != nil &&
			retrieveErr.Response.StatusCode >= 400 && retrieveErr.Response.StatusCode < 500 {
			// Rejected client credentials will not succeed on retry
			return nil, common.Permanent(fmt.Errorf("%w: token endpoint rejected credentials: %v", common.ErrConfiguration, err))
		}
		return nil, fmt.Errorf("%w: token request failed: %v", common.ErrTransientNetwork, err)
	}
	if token.AccessToken == "" {
		return nil, fmt.Errorf("%w: token response without access_token", common.ErrMalformedResponse)
	}
	return token, nil
}
