package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/fnsign/internal/app"
	"github.com/ternarybob/fnsign/internal/common"
	"github.com/ternarybob/fnsign/internal/services/runner"
)

// configPaths is a custom flag type that allows multiple -config flags
type configPaths []string

func (c *configPaths) String() string {
	return fmt.Sprintf("%v", *c)
}

func (c *configPaths) Set(value string) error {
	*c = append(*c, value)
	return nil
}

var (
	configFiles  configPaths
	showVersion  = flag.Bool("version", false, "Print version information")
	showVersionV = flag.Bool("v", false, "Print version information (shorthand)")
	checkOnly    = flag.Bool("check", false, "Report the check-in status without acting or notifying")
	noNotify     = flag.Bool("no-notify", false, "Do not send the outcome notification")
)

func init() {
	flag.Var(&configFiles, "config", "Configuration file path (can be specified multiple times, later files override earlier ones)")
	flag.Var(&configFiles, "c", "Configuration file path (shorthand)")
}

func main() {
	os.Exit(run())
}

func run() int {
	common.InstallCrashHandler("")
	defer common.RecoverWithCrashFile()

	flag.Parse()

	if *showVersion || *showVersionV {
		fmt.Printf("FNSign version %s\n", common.GetFullVersion())
		return 0
	}

	// Auto-discover a config file in the working directory
	if len(configFiles) == 0 {
		if _, err := os.Stat("fnsign.toml"); err == nil {
			configFiles = append(configFiles, "fnsign.toml")
		}
	}

	// defaults -> file1 -> file2 -> ... -> env
	config, err := common.LoadFromFiles(configFiles...)
	if err != nil {
		tempLogger := arbor.NewLogger()
		tempLogger.Error().Strs("paths", configFiles).Err(err).Msg("Failed to load configuration")
		return 1
	}

	logger := common.SetupLogger(config)
	common.PrintBanner(config, logger)

	logger.Debug().
		Strs("config_files", configFiles).
		Str("base_url", config.Site.BaseURL).
		Str("storage_type", config.Storage.Type).
		Str("log_level", config.Logging.Level).
		Bool("notify_configured", config.Notify.HasNotifyToken()).
		Msg("Resolved configuration (sanitized)")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	application, err := app.New(config, logger, runner.Options{
		CheckOnly: *checkOnly,
		Notify:    !*noNotify,
	})
	if err != nil {
		logger.Error().Err(err).Msg("Failed to initialize application")
		return 1
	}
	defer application.Close()

	result := application.Run(ctx)

	if result.Outcome == runner.OutcomeChecked && result.Status != nil {
		fmt.Printf("Check-in status: %s (%s)\n", result.Status.State, result.Status.Label)
	}

	if !result.Success {
		application.Logger.Error().Str("outcome", string(result.Outcome)).Msg("===== Check-in run failed =====")
		return 1
	}
	application.Logger.Info().Str("outcome", string(result.Outcome)).Msg("===== Check-in run succeeded =====")
	return 0
}
