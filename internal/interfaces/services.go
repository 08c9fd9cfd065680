package interfaces

import (
	"context"

	"github.com/ternarybob/fnsign/internal/models"
)

// CaptchaSolver turns a captcha image into its text
type CaptchaSolver interface {
	Solve(ctx context.Context, imageURL string) (string, error)
}

// CheckinService drives the daily check-in state machine
type CheckinService interface {
	QueryStatus(ctx context.Context) (*models.SignStatus, error)
	PerformAction(ctx context.Context, token string) error
	FetchSummary(ctx context.Context) models.SignSummary
}

// Notifier pushes the run outcome to the user
type Notifier interface {
	Notify(ctx context.Context, title, body string) error
}
