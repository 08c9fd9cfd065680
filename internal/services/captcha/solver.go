// Package captcha turns login captcha images into text using an OCR service.
package captcha

import (
	"context"
	"fmt"
	"net/http"
	"regexp"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/fnsign/internal/common"
	"github.com/ternarybob/fnsign/internal/httpclient"
	"github.com/ternarybob/fnsign/internal/interfaces"
)

// nonWord matches runs of anything outside the Unicode word classes:
// letters, digits, combining marks and connector punctuation (underscore included)
var nonWord = regexp.MustCompile(`[^\p{L}\p{N}\p{M}\p{Pc}]+`)

// Recognizer extracts text from an image
type Recognizer interface {
	Recognize(ctx context.Context, image []byte) (string, error)
}

// Solver implements interfaces.CaptchaSolver
type Solver struct {
	client     *http.Client
	recognizer Recognizer
	retry      common.RetryPolicy
	logger     arbor.ILogger
}

// NewSolver creates a captcha solver. client must be the session client so the
// image is fetched with the same cookies as the login page.
func NewSolver(client *http.Client, recognizer Recognizer, retry common.RetryPolicy, logger arbor.ILogger) interfaces.CaptchaSolver {
	return &Solver{
		client:     client,
		recognizer: recognizer,
		retry:      retry,
		logger:     logger,
	}
}

// Solve downloads the captcha image and returns its normalized text
func (s *Solver) Solve(ctx context.Context, imageURL string) (string, error) {
	var text string

	err := s.retry.Do(ctx, s.logger, "captcha", func(attempt int) error {
		page, err := httpclient.Get(ctx, s.client, imageURL)
		if err != nil {
			return err
		}
		if !page.OK() {
			return fmt.Errorf("%w: captcha image status %d", common.ErrTransientNetwork, page.StatusCode)
		}
		if len(page.Body) == 0 {
			return fmt.Errorf("%w: empty captcha image", common.ErrMalformedResponse)
		}

		raw, err := s.recognizer.Recognize(ctx, page.Body)
		if err != nil {
			return err
		}

		text = Normalize(raw)
		if text == "" {
			return fmt.Errorf("%w: recognized text %q is empty after normalization", common.ErrMalformedResponse, raw)
		}
		return nil
	})
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return "", ctxErr
		}
		return "", fmt.Errorf("%w: %w", common.ErrCaptchaUnavailable, err)
	}

	s.logger.Info().Str("captcha", text).Msg("Captcha recognized")
	return text, nil
}

// Normalize removes whitespace and non-word characters from recognized text
func Normalize(raw string) string {
	return nonWord.ReplaceAllString(raw, "")
}
