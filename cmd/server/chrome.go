package main

import (
	"context"

	"github.com/ahrdadan/snapd/internal/browser"
	"github.com/ahrdadan/snapd/internal/config"
	"github.com/rs/zerolog"
)

// resolveChrome picks the Chromium binary to launch. When none is found the
// configured path is returned as-is and every capture fails at launch, while
// the rest of the API keeps serving.
func resolveChrome(ctx context.Context, cfg *config.Config, logger zerolog.Logger) string {
	bin, err := browser.ResolveBinary(ctx, browser.InstallOptions{
		Bin:      cfg.BrowserBin,
		Download: cfg.BrowserDownload,
		Revision: cfg.BrowserRevision,
	})
	if err != nil {
		logger.Warn().Err(err).Str("bin", cfg.BrowserBin).Msg("Chrome not found, screenshots will fail until it is installed")
		return cfg.BrowserBin
	}

	logger.Info().Str("bin", bin).Msg("Using Chrome")
	return bin
}
