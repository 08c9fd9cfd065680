package interfaces

import (
	"context"

	"github.com/ternarybob/fnsign/internal/models"
)

// CredentialCache persists the forum session and the OCR access token between runs.
// Loads fail soft: any read or parse problem is logged and reported as absent.
type CredentialCache interface {
	// LoadSession returns the cached session, false when there is none or it cannot be read
	LoadSession(ctx context.Context) (*models.Session, bool)
	// SaveSession overwrites the cached session with the full per-cookie shape
	SaveSession(ctx context.Context, session *models.Session) error
	// LoadToken returns the cached OCR token, false when missing, unreadable or expired
	LoadToken(ctx context.Context) (*models.OAuthToken, bool)
	// SaveToken overwrites the cached OCR token
	SaveToken(ctx context.Context, token *models.OAuthToken) error
	Close() error
}
