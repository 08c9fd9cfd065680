package common

import (
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/banner"
)

// PrintBanner displays the application banner and the resolved run mode
func PrintBanner(config *Config, logger arbor.ILogger) {
	banner.PrintSimple("FNSign", GetVersion())

	logger.Info().
		Str("version", GetFullVersion()).
		Str("site", config.Site.BaseURL).
		Str("storage", config.Storage.Type).
		Bool("ci", config.CI).
		Bool("production", config.IsProduction()).
		Msg("Check-in runner starting")
}
