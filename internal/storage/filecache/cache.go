// Package filecache keeps the session cookies and the OCR token in two JSON files.
package filecache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/fnsign/internal/common"
	"github.com/ternarybob/fnsign/internal/interfaces"
	"github.com/ternarybob/fnsign/internal/models"
)

// Cache implements interfaces.CredentialCache on the local filesystem
type Cache struct {
	cookiePath string
	tokenPath  string
	logger     arbor.ILogger
	now        func() time.Time
}

// NewCache creates a file-backed credential cache
func NewCache(config common.StorageConfig, logger arbor.ILogger) interfaces.CredentialCache {
	return &Cache{
		cookiePath: config.CookiePath(),
		tokenPath:  config.TokenPath(),
		logger:     logger,
		now:        time.Now,
	}
}

// LoadSession reads the cookie file. Two shapes are accepted: a list of full
// cookie records, or the older flat {"name": "value"} map.
func (c *Cache) LoadSession(ctx context.Context) (*models.Session, bool) {
	data, err := os.ReadFile(c.cookiePath)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			c.logger.Debug().Str("path", c.cookiePath).Msg("No cookie file found")
		} else {
			c.logger.Error().Err(err).Str("path", c.cookiePath).Msg("Failed to read cookie file")
		}
		return nil, false
	}

	session, err := decodeSession(data, c.now())
	if err != nil {
		c.logger.Error().Err(err).Str("path", c.cookiePath).Msg("Failed to load cookies")
		return nil, false
	}
	if len(session.Cookies) == 0 {
		c.logger.Debug().Str("path", c.cookiePath).Msg("Cookie file holds no usable cookies")
		return nil, false
	}

	c.logger.Info().
		Int("cookies", len(session.Cookies)).
		Bool("legacy_format", session.Legacy).
		Msg("Loaded cookies from file")

	return session, true
}

func decodeSession(data []byte, now time.Time) (*models.Session, error) {
	var list []models.StoredCookie
	if err := json.Unmarshal(data, &list); err == nil {
		cookies := make([]models.StoredCookie, 0, len(list))
		for _, cookie := range list {
			if cookie.Name == "" || cookie.Expired(now) {
				continue
			}
			cookies = append(cookies, cookie)
		}
		return &models.Session{Cookies: cookies}, nil
	}

	var flat map[string]string
	if err := json.Unmarshal(data, &flat); err != nil {
		return nil, fmt.Errorf("unrecognized cookie file format: %w", err)
	}

	names := make([]string, 0, len(flat))
	for name := range flat {
		names = append(names, name)
	}
	sort.Strings(names)

	cookies := make([]models.StoredCookie, 0, len(names))
	for _, name := range names {
		cookies = append(cookies, models.StoredCookie{Name: name, Value: flat[name], Path: "/"})
	}
	return &models.Session{Cookies: cookies, Legacy: true}, nil
}

// SaveSession writes every cookie with its full attributes
func (c *Cache) SaveSession(ctx context.Context, session *models.Session) error {
	cookies := []models.StoredCookie{}
	if session != nil {
		cookies = append(cookies, session.Cookies...)
	}

	data, err := json.Marshal(cookies)
	if err != nil {
		return fmt.Errorf("failed to marshal cookies: %w", err)
	}
	if err := writeFileAtomic(c.cookiePath, data); err != nil {
		return fmt.Errorf("failed to save cookies: %w", err)
	}

	c.logger.Info().Int("cookies", len(cookies)).Str("path", c.cookiePath).Msg("Cookies saved to file")
	return nil
}

// LoadToken returns the cached token unless it is missing, unreadable or expired
func (c *Cache) LoadToken(ctx context.Context) (*models.OAuthToken, bool) {
	data, err := os.ReadFile(c.tokenPath)
	if err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			c.logger.Warn().Err(err).Str("path", c.tokenPath).Msg("Failed to read token cache")
		}
		return nil, false
	}

	var token models.OAuthToken
	if err := json.Unmarshal(data, &token); err != nil {
		c.logger.Warn().Err(err).Str("path", c.tokenPath).Msg("Failed to parse token cache")
		return nil, false
	}

	if !token.Valid(c.now()) {
		c.logger.Info().Msg("Cached access_token expired")
		return nil, false
	}

	return &token, true
}

// SaveToken overwrites the token cache
func (c *Cache) SaveToken(ctx context.Context, token *models.OAuthToken) error {
	if token == nil {
		return fmt.Errorf("token is nil")
	}
	data, err := json.Marshal(token)
	if err != nil {
		return fmt.Errorf("failed to marshal token: %w", err)
	}
	if err := writeFileAtomic(c.tokenPath, data); err != nil {
		return fmt.Errorf("failed to save token: %w", err)
	}
	c.logger.Debug().Str("path", c.tokenPath).Msg("access_token cached")
	return nil
}

// Close is a no-op for the file cache
func (c *Cache) Close() error {
	return nil
}

// writeFileAtomic replaces path with data so readers see either the old or the new content
func writeFileAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".tmp-*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName) // no-op after a successful rename

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := os.Chmod(tmpName, 0600); err != nil {
		return err
	}
	return os.Rename(tmpName, path)
}
