package badger

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/fnsign/internal/interfaces"
	"github.com/ternarybob/fnsign/internal/models"
	"github.com/timshannon/badgerhold/v4"
)

const (
	sessionKey = "session"
	tokenKey   = "ocr_token"
)

type sessionRecord struct {
	Cookies   []models.StoredCookie
	Legacy    bool
	UpdatedAt time.Time
}

type tokenRecord struct {
	Token     models.OAuthToken
	UpdatedAt time.Time
}

// CredentialStorage implements interfaces.CredentialCache on Badger.
// Every write is a single transaction, so a record is either fully replaced or untouched.
type CredentialStorage struct {
	db     *BadgerDB
	logger arbor.ILogger
	now    func() time.Time
}

// NewCredentialStorage creates a Badger-backed credential cache
func NewCredentialStorage(db *BadgerDB, logger arbor.ILogger) interfaces.CredentialCache {
	return &CredentialStorage{
		db:     db,
		logger: logger,
		now:    time.Now,
	}
}

func (s *CredentialStorage) LoadSession(ctx context.Context) (*models.Session, bool) {
	var record sessionRecord
	if err := s.db.Store().Get(sessionKey, &record); err != nil {
		if !errors.Is(err, badgerhold.ErrNotFound) {
			s.logger.Error().Err(err).Msg("Failed to load session from badger")
		}
		return nil, false
	}

	now := s.now()
	cookies := make([]models.StoredCookie, 0, len(record.Cookies))
	for _, cookie := range record.Cookies {
		if !cookie.Expired(now) {
			cookies = append(cookies, cookie)
		}
	}
	if len(cookies) == 0 {
		return nil, false
	}

	s.logger.Info().Int("cookies", len(cookies)).Msg("Loaded cookies from badger")
	return &models.Session{Cookies: cookies, Legacy: record.Legacy}, true
}

func (s *CredentialStorage) SaveSession(ctx context.Context, session *models.Session) error {
	record := sessionRecord{UpdatedAt: s.now()}
	if session != nil {
		record.Cookies = append(record.Cookies, session.Cookies...)
	}
	if err := s.db.Store().Upsert(sessionKey, &record); err != nil {
		return fmt.Errorf("failed to store session: %w", err)
	}
	s.logger.Info().Int("cookies", len(record.Cookies)).Msg("Cookies saved to badger")
	return nil
}

func (s *CredentialStorage) LoadToken(ctx context.Context) (*models.OAuthToken, bool) {
	var record tokenRecord
	if err := s.db.Store().Get(tokenKey, &record); err != nil {
		if !errors.Is(err, badgerhold.ErrNotFound) {
			s.logger.Warn().Err(err).Msg("Failed to load token from badger")
		}
		return nil, false
	}
	if !record.Token.Valid(s.now()) {
		s.logger.Info().Msg("Cached access_token expired")
		return nil, false
	}
	token := record.Token
	return &token, true
}

func (s *CredentialStorage) SaveToken(ctx context.Context, token *models.OAuthToken) error {
	if token == nil {
		return fmt.Errorf("token is nil")
	}
	record := tokenRecord{Token: *token, UpdatedAt: s.now()}
	if err := s.db.Store().Upsert(tokenKey, &record); err != nil {
		return fmt.Errorf("failed to store token: %w", err)
	}
	return nil
}

func (s *CredentialStorage) Close() error {
	return s.db.Close()
}
