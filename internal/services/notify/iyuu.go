// Package notify delivers the run outcome through the IYUU push service.
package notify

import (
	"context"
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
	"github.com/ternarybob/fnsign/internal/interfaces"
)

// APIError is a non-zero errcode returned by IYUU
type APIError struct {
	Code    int
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("iyuu error %d: %s", e.Code, e.Message)
}

// IYUUNotifier implements interfaces.Notifier
type IYUUNotifier struct {
	endpoint   string
	token      string
	configured bool
	httpClient *http.Client
	logger     arbor.ILogger
}

// NewIYUUNotifier creates a notifier from configuration
func NewIYUUNotifier(config common.NotifyConfig, logger arbor.ILogger) interfaces.Notifier {
	return &IYUUNotifier{
		endpoint:   strings.TrimRight(config.Endpoint, "/"),
		token:      config.IYUUToken,
		configured: config.HasNotifyToken(),
		httpClient: httpclient.NewDefaultHTTPClient(common.Duration(config.RequestTimeout, 10*time.Second)),
		logger:     logger,
	}
}

type sendResponse struct {
	ErrCode int    `json:"errcode"`
	ErrMsg  string `json:"errmsg"`
}

// Notify posts title and body. A missing or placeholder token is a configuration error.
func (n *IYUUNotifier) Notify(ctx context.Context, title, body string) error {
	if !n.configured {
		return fmt.Errorf("%w: IYUU token not set", common.ErrConfiguration)
	}

	form := url.Values{}
	form.Set("text", title)
	form.Set("desp", body)

	endpoint := fmt.Sprintf("%s/%s.send", n.endpoint, url.PathEscape(n.token))
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded; charset=UTF-8")

	resp, err := n.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: notification request failed: %v", common.ErrTransientNetwork, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return fmt.Errorf("%w: notification status %d: %s", common.ErrTransientNetwork, resp.StatusCode, string(data))
	}

	var result sendResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return fmt.Errorf("%w: failed to decode notification response: %v", common.ErrMalformedResponse, err)
	}
	if result.ErrCode != 0 {
		return &APIError{Code: result.ErrCode, Message: result.ErrMsg}
	}

	n.logger.Info().Str("title", title).Msg("Notification sent")
	return nil
}
