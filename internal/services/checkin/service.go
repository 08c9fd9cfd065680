// Package checkin reads and drives the daily check-in button of the sign page.
package checkin

import (
	"context"
	"fmt"
	"net/http"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/fnsign/internal/common"
	"github.com/ternarybob/fnsign/internal/httpclient"
	"github.com/ternarybob/fnsign/internal/interfaces"
	"github.com/ternarybob/fnsign/internal/models"
)

// Service implements interfaces.CheckinService
type Service struct {
	site   common.SiteConfig
	client *http.Client
	retry  common.RetryPolicy
	logger arbor.ILogger
}

// NewService creates the check-in service on top of an authenticated client
func NewService(config *common.Config, client *http.Client, logger arbor.ILogger) interfaces.CheckinService {
	return &Service{
		site:   config.Site,
		client: client,
		retry:  common.NewRetryPolicy(config.Retry),
		logger: logger,
	}
}

// QueryStatus reads the check-in button, retrying while the page is unreachable or lacks the button
func (s *Service) QueryStatus(ctx context.Context) (*models.SignStatus, error) {
	var status *models.SignStatus

	err := s.retry.Do(ctx, s.logger, "query_status", func(attempt int) error {
		var err error
		status, err = s.queryOnce(ctx)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to query check-in status: %w", err)
	}

	s.logger.Info().
		Str("label", status.Label).
		Str("state", string(status.State)).
		Bool("has_token", status.Token != "").
		Msg("Check-in status")
	return status, nil
}

func (s *Service) queryOnce(ctx context.Context) (*models.SignStatus, error) {
	page, err := httpclient.Get(ctx, s.client, s.site.SignURL())
	if err != nil {
		return nil, err
	}
	if !page.OK() {
		return nil, fmt.Errorf("%w: sign page status %d", common.ErrTransientNetwork, page.StatusCode)
	}

	doc, err := page.Document()
	if err != nil {
		return nil, err
	}

	status, ok := parseStatus(doc)
	if !ok {
		return nil, fmt.Errorf("%w: check-in button not found", common.ErrMalformedResponse)
	}
	if status.State == models.SignStatePending && status.Token == "" {
		return nil, fmt.Errorf("%w: check-in link carries no sign token", common.ErrMalformedResponse)
	}
	return status, nil
}

// PerformAction submits the check-in and confirms it took effect. Each attempt
// first reads the button: when it already shows completed the action is not sent again.
func (s *Service) PerformAction(ctx context.Context, token string) error {
	err := s.retry.Do(ctx, s.logger, "perform_action", func(attempt int) error {
		current, err := s.queryOnce(ctx)
		if err != nil {
			return err
		}
		if current.State == models.SignStateCompleted {
			s.logger.Info().Int("attempt", attempt).Msg("Check-in already completed, nothing to submit")
			return nil
		}
		if current.Token != "" {
			token = current.Token
		}

		page, err := httpclient.Get(ctx, s.client, s.site.SignURL()+"&sign="+token)
		if err != nil {
			return err
		}
		if !page.OK() {
			return fmt.Errorf("%w: check-in request status %d", common.ErrTransientNetwork, page.StatusCode)
		}

		after, err := s.queryOnce(ctx)
		if err != nil {
			return err
		}
		if after.State != models.SignStateCompleted {
			return fmt.Errorf("%w: check-in accepted but button still reads %q", common.ErrStateDivergence, after.Label)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("check-in failed: %w", err)
	}

	s.logger.Info().Msg("Check-in completed")
	return nil
}

// FetchSummary reads the statistics panel. A missing panel yields an empty summary.
func (s *Service) FetchSummary(ctx context.Context) models.SignSummary {
	var summary models.SignSummary

	err := s.retry.Do(ctx, s.logger, "fetch_summary", func(attempt int) error {
		page, err := httpclient.Get(ctx, s.client, s.site.SignURL())
		if err != nil {
			return err
		}
		if !page.OK() {
			return fmt.Errorf("%w: sign page status %d", common.ErrTransientNetwork, page.StatusCode)
		}

		doc, err := page.Document()
		if err != nil {
			return err
		}

		parsed, ok := parseSummary(doc)
		if !ok {
			return fmt.Errorf("%w: statistics panel not found", common.ErrMalformedResponse)
		}
		summary = parsed
		return nil
	})
	if err != nil {
		s.logger.Warn().Err(err).Msg("Check-in summary unavailable")
		return models.SignSummary{}
	}

	for _, entry := range summary {
		s.logger.Info().Str("label", entry.Label).Str("value", entry.Value).Msg("Check-in summary")
	}
	return summary
}
