// Package ocr provides a client for the Baidu general text recognition API.
package ocr

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/fnsign/internal/common"
	"github.com/ternarybob/fnsign/internal/httpclient"
	"golang.org/x/time/rate"
)

// Error codes meaning the access token is invalid or expired
var tokenErrorCodes = map[int]bool{110: true, 111: true}

// APIError represents an error code returned by the OCR API
type APIError struct {
	Code    int
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("ocr API error: %s (code %d)", e.Message, e.Code)
}

// AccessTokenSource supplies OCR access tokens
type AccessTokenSource interface {
	AccessToken(ctx context.Context) (string, error)
	Invalidate(ctx context.Context)
}

// Client recognizes text in images
type Client struct {
	recognizeURL string
	tokens       AccessTokenSource
	httpClient   *http.Client
	limiter      *rate.Limiter
	logger       arbor.ILogger
}

// NewClient creates an OCR client
func NewClient(config common.OCRConfig, tokens AccessTokenSource, logger arbor.ILogger) *Client {
	rps := config.RequestsPerSecond
	if rps <= 0 {
		rps = 2
	}
	return &Client{
		recognizeURL: config.RecognizeURL,
		tokens:       tokens,
		httpClient:   httpclient.NewDefaultHTTPClient(common.Duration(config.RequestTimeout, 30*time.Second)),
		limiter:      rate.NewLimiter(rate.Limit(rps), 1),
		logger:       logger,
	}
}

type recognizeResponse struct {
	WordsResult []struct {
		Words string `json:"words"`
	} `json:"words_result"`
	ErrorCode *int   `json:"error_code"`
	ErrorMsg  string `json:"error_msg"`
}

// Recognize returns the first recognized text span of image
func (c *Client) Recognize(ctx context.Context, image []byte) (string, error) {
	accessToken, err := c.tokens.AccessToken(ctx)
	if err != nil {
		return "", err
	}

	if err := c.limiter.Wait(ctx); err != nil {
		return "", err
	}

	endpoint, err := url.Parse(c.recognizeURL)
	if err != nil {
		return "", fmt.Errorf("%w: invalid recognize_url: %v", common.ErrConfiguration, err)
	}
	query := endpoint.Query()
	query.Set("access_token", accessToken)
	endpoint.RawQuery = query.Encode()

	form := url.Values{}
	form.Set("image", base64.StdEncoding.EncodeToString(image))
	form.Set("detect_direction", "false")
	form.Set("paragraph", "false")
	form.Set("probability", "false")

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint.String(), strings.NewReader(form.Encode()))
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("%w: ocr request failed: %v", common.ErrTransientNetwork, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return "", fmt.Errorf("%w: ocr status %d: %s", common.ErrTransientNetwork, resp.StatusCode, string(body))
	}

	var result recognizeResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return "", fmt.Errorf("%w: failed to decode ocr response: %v", common.ErrMalformedResponse, err)
	}

	switch {
	case len(result.WordsResult) > 0:
		return result.WordsResult[0].Words, nil
	case result.ErrorCode != nil:
		if tokenErrorCodes[*result.ErrorCode] {
			c.tokens.Invalidate(ctx)
		}
		return "", &APIError{Code: *result.ErrorCode, Message: result.ErrorMsg}
	default:
		return "", fmt.Errorf("%w: ocr response holds no words_result", common.ErrMalformedResponse)
	}
}
