package app

import (
	"context"
	"fmt"
	"net/http"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/fnsign/internal/common"
	"github.com/ternarybob/fnsign/internal/httpclient"
	"github.com/ternarybob/fnsign/internal/interfaces"
	"github.com/ternarybob/fnsign/internal/services/auth"
	"github.com/ternarybob/fnsign/internal/services/captcha"
	"github.com/ternarybob/fnsign/internal/services/checkin"
	"github.com/ternarybob/fnsign/internal/services/notify"
	"github.com/ternarybob/fnsign/internal/services/ocr"
	"github.com/ternarybob/fnsign/internal/services/runner"
	"github.com/ternarybob/fnsign/internal/storage"
)

// App holds all application components and dependencies
type App struct {
	Config *common.Config
	Logger arbor.ILogger
	RunID  string

	// Storage
	Cache interfaces.CredentialCache

	// Forum session shared by every forum-facing service
	SessionClient *http.Client
	SessionJar    *httpclient.SessionJar

	// OCR
	TokenProvider *ocr.TokenProvider
	OCRClient     *ocr.Client

	// Services
	CaptchaSolver  interfaces.CaptchaSolver
	AuthService    *auth.Service
	CheckinService interfaces.CheckinService
	Notifier       interfaces.Notifier
	Runner         *runner.Runner
}

// New initializes the application with all dependencies
func New(cfg *common.Config, logger arbor.ILogger, options runner.Options) (*App, error) {
	runID := common.NewRunID()
	app := &App{
		Config: cfg,
		Logger: logger.WithCorrelationId(runID),
		RunID:  runID,
	}

	if err := app.initStorage(); err != nil {
		return nil, fmt.Errorf("failed to initialize storage: %w", err)
	}

	if err := app.initServices(options); err != nil {
		app.Close()
		return nil, fmt.Errorf("failed to initialize services: %w", err)
	}

	app.Logger.Info().
		Str("storage", cfg.Storage.Type).
		Bool("ci", cfg.CI).
		Bool("notify", options.Notify).
		Msg("Application initialization complete")

	return app, nil
}

// initStorage opens the credential cache selected by configuration
func (a *App) initStorage() error {
	cache, err := storage.NewCredentialCache(a.Logger, a.Config)
	if err != nil {
		return err
	}
	a.Cache = cache

	a.Logger.Debug().
		Str("type", a.Config.Storage.Type).
		Str("dir", a.Config.Storage.Dir).
		Msg("Credential cache initialized")
	return nil
}

// initServices builds the services in dependency order:
// session client -> OCR -> captcha -> auth -> check-in -> notifier -> runner
func (a *App) initServices(options runner.Options) error {
	client, jar, err := httpclient.NewSessionClient(a.Config.Site)
	if err != nil {
		return err
	}
	a.SessionClient = client
	a.SessionJar = jar

	retry := common.NewRetryPolicy(a.Config.Retry)

	a.TokenProvider = ocr.NewTokenProvider(a.Config.OCR, retry, a.Cache, a.Logger)
	a.OCRClient = ocr.NewClient(a.Config.OCR, a.TokenProvider, a.Logger)
	a.CaptchaSolver = captcha.NewSolver(client, a.OCRClient, retry, a.Logger)

	a.AuthService = auth.NewService(a.Config, client, jar, a.CaptchaSolver, a.Cache, a.Logger)
	a.CheckinService = checkin.NewService(a.Config, a.AuthService.GetHTTPClient(), a.Logger)
	a.Notifier = notify.NewIYUUNotifier(a.Config.Notify, a.Logger)

	options.Notify = options.Notify && a.Config.Notify.Enabled
	a.Runner = runner.NewRunner(a.AuthService, a.CheckinService, a.Notifier, options, a.Logger)

	return nil
}

// Run executes one check-in run
func (a *App) Run(ctx context.Context) runner.Result {
	return a.Runner.Run(ctx)
}

// Close closes all application resources
func (a *App) Close() error {
	if a.Cache != nil {
		if err := a.Cache.Close(); err != nil {
			return fmt.Errorf("failed to close credential cache: %w", err)
		}
		a.Logger.Debug().Msg("Credential cache closed")
	}
	return nil
}
