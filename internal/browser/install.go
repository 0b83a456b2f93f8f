package browser

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/go-rod/rod/lib/launcher"
)

// ErrBinaryNotFound is returned when no Chromium binary is available and downloads are disabled.
var ErrBinaryNotFound = errors.New("chromium binary not found")

// InstallOptions controls how the Chromium binary is located.
type InstallOptions struct {
	Bin      string // preferred path, used as-is when it exists
	Download bool   // download a Chromium build when nothing is installed
	Revision int    // revision to download (0 uses rod's default)
}

// ResolveBinary returns the path of the Chromium binary to launch.
// Order: configured path, system install, download.
func ResolveBinary(ctx context.Context, opts InstallOptions) (string, error) {
	if opts.Bin != "" {
		if info, err := os.Stat(opts.Bin); err == nil && !info.IsDir() {
			return opts.Bin, nil
		}
	}

	if path, found := launcher.LookPath(); found {
		return path, nil
	}

	if !opts.Download {
		if opts.Bin != "" {
			return "", fmt.Errorf("%w: %s", ErrBinaryNotFound, opts.Bin)
		}
		return "", ErrBinaryNotFound
	}

	return InstallChrome(ctx, opts.Revision)
}

// InstallChrome downloads a Chromium build for the current OS/arch.
func InstallChrome(ctx context.Context, revision int) (string, error) {
	downloader := launcher.NewBrowser()
	downloader.Context = ctx
	if revision > 0 {
		downloader.Revision = revision
	}

	path, err := downloader.Get()
	if err != nil {
		return "", fmt.Errorf("failed to download chrome: %w", err)
	}

	return path, nil
}
