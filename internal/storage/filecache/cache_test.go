package filecache

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/fnsign/internal/common"
	"github.com/ternarybob/fnsign/internal/models"
)

var fixedNow = time.Date(2025, 6, 1, 8, 0, 0, 0, time.UTC)

func newTestCache(t *testing.T) (*Cache, string) {
	t.Helper()
	dir := t.TempDir()
	config := common.StorageConfig{Dir: dir, CookieFile: "cookies.json", TokenFile: "token_cache.json"}
	cache := NewCache(config, arbor.NewLogger()).(*Cache)
	cache.now = func() time.Time { return fixedNow }
	return cache, dir
}

func TestSession_RoundTripFullShape(t *testing.T) {
	cache, _ := newTestCache(t)
	ctx := context.Background()

	session := &models.Session{Cookies: []models.StoredCookie{
		{Name: "auth", Value: "abc", Domain: "club.fnnas.com", Path: "/", Expires: fixedNow.Add(30 * 24 * time.Hour).Unix(), Secure: true},
		{Name: "saltkey", Value: "xyz", Domain: ".fnnas.com", Path: "/", Expires: 0},
	}}

	require.NoError(t, cache.SaveSession(ctx, session))

	loaded, ok := cache.LoadSession(ctx)
	require.True(t, ok)
	assert.False(t, loaded.Legacy)
	assert.Equal(t, session.Cookies, loaded.Cookies)
}

func TestSession_LegacyFlatMap(t *testing.T) {
	cache, dir := newTestCache(t)
	ctx := context.Background()

	require.NoError(t, os.WriteFile(filepath.Join(dir, "cookies.json"), []byte(`{"saltkey":"xyz","auth":"abc"}`), 0600))

	loaded, ok := cache.LoadSession(ctx)
	require.True(t, ok)
	assert.True(t, loaded.Legacy)
	assert.Equal(t, []models.StoredCookie{
		{Name: "auth", Value: "abc", Path: "/"},
		{Name: "saltkey", Value: "xyz", Path: "/"},
	}, loaded.Cookies)

	// Saving rewrites the file in the full shape; reloading reproduces the same cookies
	require.NoError(t, cache.SaveSession(ctx, loaded))
	reloaded, ok := cache.LoadSession(ctx)
	require.True(t, ok)
	assert.False(t, reloaded.Legacy)
	assert.Equal(t, loaded.Cookies, reloaded.Cookies)
}

func TestSession_DropsExpiredCookies(t *testing.T) {
	cache, _ := newTestCache(t)
	ctx := context.Background()

	require.NoError(t, cache.SaveSession(ctx, &models.Session{Cookies: []models.StoredCookie{
		{Name: "old", Value: "1", Domain: "club.fnnas.com", Path: "/", Expires: fixedNow.Add(-time.Hour).Unix()},
		{Name: "new", Value: "2", Domain: "club.fnnas.com", Path: "/", Expires: fixedNow.Add(time.Hour).Unix()},
	}}))

	loaded, ok := cache.LoadSession(ctx)
	require.True(t, ok)
	require.Len(t, loaded.Cookies, 1)
	assert.Equal(t, "new", loaded.Cookies[0].Name)
}

func TestSession_AbsentCases(t *testing.T) {
	tests := []struct {
		name    string
		content *string
	}{
		{"missing file", nil},
		{"corrupt json", strPtr(`{not json`)},
		{"wrong type", strPtr(`42`)},
		{"empty list", strPtr(`[]`)},
		{"empty map", strPtr(`{}`)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cache, dir := newTestCache(t)
			if tt.content != nil {
				require.NoError(t, os.WriteFile(filepath.Join(dir, "cookies.json"), []byte(*tt.content), 0600))
			}

			session, ok := cache.LoadSession(context.Background())
			assert.False(t, ok)
			assert.Nil(t, session)
		})
	}
}

func TestToken_ExpiryPolicy(t *testing.T) {
	ctx := context.Background()

	t.Run("future token returned verbatim", func(t *testing.T) {
		cache, _ := newTestCache(t)
		token := &models.OAuthToken{AccessToken: "24.abc", ExpiresTime: float64(fixedNow.Add(time.Hour).Unix()) + 0.5}
		require.NoError(t, cache.SaveToken(ctx, token))

		loaded, ok := cache.LoadToken(ctx)
		require.True(t, ok)
		assert.Equal(t, token, loaded)
	})

	t.Run("past token never returned", func(t *testing.T) {
		cache, _ := newTestCache(t)
		require.NoError(t, cache.SaveToken(ctx, &models.OAuthToken{AccessToken: "24.old", ExpiresTime: float64(fixedNow.Add(-time.Second).Unix())}))

		loaded, ok := cache.LoadToken(ctx)
		assert.False(t, ok)
		assert.Nil(t, loaded)
	})

	t.Run("expiry equal to now is expired", func(t *testing.T) {
		cache, _ := newTestCache(t)
		require.NoError(t, cache.SaveToken(ctx, &models.OAuthToken{AccessToken: "24.edge", ExpiresTime: float64(fixedNow.Unix())}))

		_, ok := cache.LoadToken(ctx)
		assert.False(t, ok)
	})

	t.Run("unparsable cache", func(t *testing.T) {
		cache, dir := newTestCache(t)
		require.NoError(t, os.WriteFile(filepath.Join(dir, "token_cache.json"), []byte(`oops`), 0600))

		_, ok := cache.LoadToken(ctx)
		assert.False(t, ok)
	})
}

func TestWriteFileAtomic_LeavesNoTempFiles(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "nested", "cookies.json")

	require.NoError(t, writeFileAtomic(path, []byte(`[1]`)))
	require.NoError(t, writeFileAtomic(path, []byte(`[2]`)))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, `[2]`, string(data))

	entries, err := os.ReadDir(filepath.Dir(path))
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

func strPtr(s string) *string { return &s }
