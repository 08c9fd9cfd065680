package common

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"
)

// Placeholder values shipped in sample configs. A notification token equal to one
// of these is treated as unset.
var placeholderIYUUTokens = []string{
	"",
	"your_iyuu_token",
	"IYUU--------------------------------------------71",
}

// Config represents the application configuration
type Config struct {
	Environment string        `toml:"environment" yaml:"environment"` // "development" or "production"
	Site        SiteConfig    `toml:"site" yaml:"site"`
	Account     AccountConfig `toml:"account" yaml:"account"`
	OCR         OCRConfig     `toml:"ocr" yaml:"ocr"`
	Notify      NotifyConfig  `toml:"notify" yaml:"notify"`
	Storage     StorageConfig `toml:"storage" yaml:"storage"`
	Retry       RetryConfig   `toml:"retry" yaml:"retry"`
	Logging     LoggingConfig `toml:"logging" yaml:"logging"`

	// CI is detected from the environment (GITHUB_ACTIONS / CI) and never read from files.
	CI bool `toml:"-" yaml:"-"`
}

// SiteConfig describes the target forum
type SiteConfig struct {
	BaseURL           string  `toml:"base_url" yaml:"base_url" validate:"required,url"`
	LoginPath         string  `toml:"login_path" yaml:"login_path" validate:"required"`
	SignPath          string  `toml:"sign_path" yaml:"sign_path" validate:"required"`
	UserAgent         string  `toml:"user_agent" yaml:"user_agent"`
	AcceptLanguage    string  `toml:"accept_language" yaml:"accept_language"`
	RequestTimeout    string  `toml:"request_timeout" yaml:"request_timeout"`         // e.g. "30s"
	SettleDelay       string  `toml:"settle_delay" yaml:"settle_delay"`               // pause before re-verifying login state
	RequestsPerSecond float64 `toml:"requests_per_second" yaml:"requests_per_second"` // 0 disables pacing
}

// AccountConfig holds the forum credentials
type AccountConfig struct {
	Username string `toml:"username" yaml:"username" validate:"required"`
	Password string `toml:"password" yaml:"password" validate:"required"`
}

// OCRConfig holds the Baidu OCR client settings used for captcha recognition
type OCRConfig struct {
	APIKey            string  `toml:"api_key" yaml:"api_key"`
	SecretKey         string  `toml:"secret_key" yaml:"secret_key"`
	TokenURL          string  `toml:"token_url" yaml:"token_url" validate:"required,url"`
	RecognizeURL      string  `toml:"recognize_url" yaml:"recognize_url" validate:"required,url"`
	TokenMargin       string  `toml:"token_margin" yaml:"token_margin"` // renew this long before the real expiry
	RequestTimeout    string  `toml:"request_timeout" yaml:"request_timeout"`
	RequestsPerSecond float64 `toml:"requests_per_second" yaml:"requests_per_second"`
}

// NotifyConfig holds the IYUU push settings
type NotifyConfig struct {
	Enabled        bool   `toml:"enabled" yaml:"enabled"`
	IYUUToken      string `toml:"iyuu_token" yaml:"iyuu_token"`
	Endpoint       string `toml:"endpoint" yaml:"endpoint" validate:"required,url"`
	RequestTimeout string `toml:"request_timeout" yaml:"request_timeout"`
}

// StorageConfig selects where the session cookies and OCR token are cached
type StorageConfig struct {
	Type       string       `toml:"type" yaml:"type" validate:"oneof=file badger"`
	Dir        string       `toml:"dir" yaml:"dir" validate:"required"`
	CookieFile string       `toml:"cookie_file" yaml:"cookie_file" validate:"required"`
	TokenFile  string       `toml:"token_file" yaml:"token_file" validate:"required"`
	Badger     BadgerConfig `toml:"badger" yaml:"badger"`
}

// BadgerConfig represents BadgerDB-specific configuration
type BadgerConfig struct {
	Path string `toml:"path" yaml:"path"` // Database directory path
}

// RetryConfig is the shared bounded-retry policy applied to every phase
type RetryConfig struct {
	MaxAttempts int    `toml:"max_attempts" yaml:"max_attempts" validate:"min=1"`
	Delay       string `toml:"delay" yaml:"delay"` // fixed delay between attempts, e.g. "2s"
}

type LoggingConfig struct {
	Level      string   `toml:"level" yaml:"level"`             // "debug", "info", "warn", "error"
	Output     []string `toml:"output" yaml:"output"`           // "stdout", "file"
	TimeFormat string   `toml:"time_format" yaml:"time_format"` // default "15:04:05"
}

// NewDefaultConfig creates a configuration with default values
func NewDefaultConfig() *Config {
	return &Config{
		Environment: "production",
		Site: SiteConfig{
			BaseURL:           "https://club.fnnas.com/",
			LoginPath:         "member.php?mod=logging&action=login",
			SignPath:          "plugin.php?id=zqlj_sign",
			UserAgent:         "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/91.0.4472.124 Safari/537.36",
			AcceptLanguage:    "zh-CN,zh;q=0.9,en;q=0.8",
			RequestTimeout:    "30s",
			SettleDelay:       "1s",
			RequestsPerSecond: 0,
		},
		OCR: OCRConfig{
			TokenURL:          "https://aip.baidubce.com/oauth/2.0/token",
			RecognizeURL:      "https://aip.baidubce.com/rest/2.0/ocr/v1/accurate_basic",
			TokenMargin:       "24h",
			RequestTimeout:    "30s",
			RequestsPerSecond: 2, // Baidu free tier QPS
		},
		Notify: NotifyConfig{
			Enabled:        true,
			Endpoint:       "https://iyuu.cn",
			RequestTimeout: "10s",
		},
		Storage: StorageConfig{
			Type:       "file",
			Dir:        ".",
			CookieFile: "cookies.json",
			TokenFile:  "token_cache.json",
			Badger: BadgerConfig{
				Path: "./data/badger",
			},
		},
		Retry: RetryConfig{
			MaxAttempts: 3,
			Delay:       "2s",
		},
		Logging: LoggingConfig{
			Level:      "info",
			Output:     []string{"stdout", "file"},
			TimeFormat: "15:04:05",
		},
	}
}

// LoadFromFiles loads configuration with priority: default -> file1 -> file2 -> ... -> env.
// Files ending in .yaml/.yml are parsed as YAML, everything else as TOML.
func LoadFromFiles(paths ...string) (*Config, error) {
	config := NewDefaultConfig()

	for i, path := range paths {
		if path == "" {
			continue
		}

		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}

		switch strings.ToLower(filepath.Ext(path)) {
		case ".yaml", ".yml":
			err = yaml.Unmarshal(data, config)
		default:
			err = toml.Unmarshal(data, config)
		}
		if err != nil {
			return nil, fmt.Errorf("failed to parse config file %s (file %d of %d): %w", path, i+1, len(paths), err)
		}
	}

	applyEnvOverrides(config)

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrConfiguration, err)
	}

	return config, nil
}

// applyEnvOverrides applies environment variable overrides to config.
// The bare names (USERNAME, PASSWORD, API_KEY, SECRET_KEY, IYUU_TOKEN) are kept
// for compatibility with existing CI workflows; FNSIGN_* names win when both are set.
func applyEnvOverrides(config *Config) {
	if env := os.Getenv("FNSIGN_ENV"); env != "" {
		config.Environment = env
	}

	// Site
	if baseURL := os.Getenv("FNSIGN_BASE_URL"); baseURL != "" {
		config.Site.BaseURL = baseURL
	}
	if userAgent := os.Getenv("FNSIGN_USER_AGENT"); userAgent != "" {
		config.Site.UserAgent = userAgent
	}
	if timeout := os.Getenv("FNSIGN_REQUEST_TIMEOUT"); timeout != "" {
		if _, err := time.ParseDuration(timeout); err == nil {
			config.Site.RequestTimeout = timeout
		}
	}

	// Account
	if username := firstEnv("FNSIGN_USERNAME", "USERNAME"); username != "" {
		config.Account.Username = username
	}
	if password := firstEnv("FNSIGN_PASSWORD", "PASSWORD"); password != "" {
		config.Account.Password = password
	}

	// OCR
	if apiKey := firstEnv("FNSIGN_OCR_API_KEY", "API_KEY"); apiKey != "" {
		config.OCR.APIKey = apiKey
	}
	if secretKey := firstEnv("FNSIGN_OCR_SECRET_KEY", "SECRET_KEY"); secretKey != "" {
		config.OCR.SecretKey = secretKey
	}

	// Notification
	if token := firstEnv("FNSIGN_IYUU_TOKEN", "IYUU_TOKEN"); token != "" {
		config.Notify.IYUUToken = token
	}
	if enabled := os.Getenv("FNSIGN_NOTIFY_ENABLED"); enabled != "" {
		if e, err := strconv.ParseBool(enabled); err == nil {
			config.Notify.Enabled = e
		}
	}

	// Storage
	if storageType := os.Getenv("FNSIGN_STORAGE_TYPE"); storageType != "" {
		config.Storage.Type = storageType
	}
	if dataDir := os.Getenv("FNSIGN_DATA_DIR"); dataDir != "" {
		config.Storage.Dir = dataDir
	}
	if badgerPath := os.Getenv("FNSIGN_BADGER_PATH"); badgerPath != "" {
		config.Storage.Badger.Path = badgerPath
	}

	// Retry
	if maxAttempts := os.Getenv("FNSIGN_RETRY_MAX_ATTEMPTS"); maxAttempts != "" {
		if m, err := strconv.Atoi(maxAttempts); err == nil {
			config.Retry.MaxAttempts = m
		}
	}
	if delay := os.Getenv("FNSIGN_RETRY_DELAY"); delay != "" {
		if _, err := time.ParseDuration(delay); err == nil {
			config.Retry.Delay = delay
		}
	}

	// Logging
	if level := os.Getenv("FNSIGN_LOG_LEVEL"); level != "" {
		config.Logging.Level = level
	}
	if os.Getenv("DEBUG") == "1" {
		config.Logging.Level = "debug"
	}
	if output := os.Getenv("FNSIGN_LOG_OUTPUT"); output != "" {
		outputs := []string{}
		for _, o := range strings.Split(output, ",") {
			if trimmed := strings.TrimSpace(o); trimmed != "" {
				outputs = append(outputs, trimmed)
			}
		}
		if len(outputs) > 0 {
			config.Logging.Output = outputs
		}
	}

	config.CI = IsCIEnvironment()
}

func firstEnv(names ...string) string {
	for _, name := range names {
		if value := os.Getenv(name); value != "" {
			return value
		}
	}
	return ""
}

// IsCIEnvironment reports whether the process runs unattended under GitHub Actions
// or another CI system that sets CI=true.
func IsCIEnvironment() bool {
	if strings.EqualFold(os.Getenv("GITHUB_ACTIONS"), "true") {
		return true
	}
	return strings.EqualFold(os.Getenv("CI"), "true")
}

// Validate checks struct constraints and duration fields
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return err
	}

	durations := map[string]string{
		"site.request_timeout":   c.Site.RequestTimeout,
		"site.settle_delay":      c.Site.SettleDelay,
		"ocr.token_margin":       c.OCR.TokenMargin,
		"ocr.request_timeout":    c.OCR.RequestTimeout,
		"notify.request_timeout": c.Notify.RequestTimeout,
		"retry.delay":            c.Retry.Delay,
	}
	for field, value := range durations {
		if value == "" {
			continue
		}
		if _, err := time.ParseDuration(value); err != nil {
			return fmt.Errorf("invalid duration for %s: %q", field, value)
		}
	}

	return nil
}

// IsProduction returns true if the environment is set to production
func (c *Config) IsProduction() bool {
	env := strings.ToLower(strings.TrimSpace(c.Environment))
	return env == "production" || env == "prod"
}

// HasNotifyToken reports whether a usable (non-placeholder) IYUU token is configured
func (n NotifyConfig) HasNotifyToken() bool {
	token := strings.TrimSpace(n.IYUUToken)
	for _, placeholder := range placeholderIYUUTokens {
		if token == placeholder {
			return false
		}
	}
	return true
}

// CookiePath returns the full path of the session cookie cache
func (s StorageConfig) CookiePath() string {
	return filepath.Join(s.Dir, s.CookieFile)
}

// TokenPath returns the full path of the OCR token cache
func (s StorageConfig) TokenPath() string {
	return filepath.Join(s.Dir, s.TokenFile)
}

// Duration parses a duration string, falling back when empty or invalid.
// Config.Validate has already rejected malformed values by the time components read them.
func Duration(value string, fallback time.Duration) time.Duration {
	if value == "" {
		return fallback
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return fallback
	}
	return d
}

// DelayDuration returns the fixed pause between retry attempts
func (r RetryConfig) DelayDuration() time.Duration {
	return Duration(r.Delay, 2*time.Second)
}

// LoginURL returns the absolute login page URL
func (s SiteConfig) LoginURL() string {
	return s.Resolve(s.LoginPath)
}

// SignURL returns the absolute check-in page URL
func (s SiteConfig) SignURL() string {
	return s.Resolve(s.SignPath)
}

// Resolve joins a site-relative path onto the base URL. Absolute URLs pass through.
func (s SiteConfig) Resolve(path string) string {
	if strings.HasPrefix(path, "http://") || strings.HasPrefix(path, "https://") {
		return path
	}
	return strings.TrimRight(s.BaseURL, "/") + "/" + strings.TrimLeft(path, "/")
}
