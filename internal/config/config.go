package config

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/ahrdadan/snapd/internal/browser"
	"github.com/ahrdadan/snapd/internal/capture"
	"github.com/ahrdadan/snapd/internal/events"
)

const (
	// Version is the current version of snapd
	Version = "1"
	// AppName is the application name
	AppName = "Screenshot API"
	// MaxBodySize caps request bodies (16 MiB)
	MaxBodySize = 16 * 1024 * 1024
)

// Config holds all configuration options for the server
type Config struct {
	// Server
	Host string
	Port int

	// Storage
	OutputDir      string
	CheckOutputDir bool // /status verifies the output dir is writable

	// Browser
	BrowserBin      string
	BrowserDownload bool
	BrowserRevision int
	WindowWidth     int
	WindowHeight    int

	// Capture timings
	PageLoadTimeout time.Duration
	ReadyTimeout    time.Duration
	SettleDelay     time.Duration

	// Events (NATS)
	NatsURL     string // empty disables publishing
	NatsSubject string

	// Logging
	LogLevel  string
	LogPretty bool

	// Flags
	ShowVersion bool
	ShowHelp    bool
}

// DefaultConfig returns the default configuration
func DefaultConfig() *Config {
	return &Config{
		Host:            "0.0.0.0",
		Port:            5000,
		OutputDir:       capture.DefaultOutputDir,
		CheckOutputDir:  true,
		BrowserBin:      "/usr/bin/chromium",
		BrowserDownload: false,
		BrowserRevision: 0,
		WindowWidth:     browser.DefaultWindowWidth,
		WindowHeight:    browser.DefaultWindowHeight,
		PageLoadTimeout: capture.DefaultPageLoadTimeout,
		ReadyTimeout:    capture.DefaultReadyTimeout,
		SettleDelay:     capture.DefaultSettleDelay,
		NatsURL:         "",
		NatsSubject:     events.DefaultSubject,
		LogLevel:        "debug",
		LogPretty:       false,
	}
}

// ParseFlags parses command line flags and returns the config
func ParseFlags() *Config {
	cfg, err := Parse(os.Args[1:], os.Stderr)
	if errors.Is(err, flag.ErrHelp) {
		os.Exit(0)
	}
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}
	return cfg
}

// Parse parses args into a config, validating and normalizing values
func Parse(args []string, output io.Writer) (*Config, error) {
	cfg := DefaultConfig()
	fs := flag.NewFlagSet(AppName, flag.ContinueOnError)
	fs.SetOutput(output)

	// Server flags
	fs.StringVar(&cfg.Host, "host", cfg.Host, "Host address to bind the server")
	fs.IntVar(&cfg.Port, "port", cfg.Port, "Port number for the server")

	// Storage flags
	fs.StringVar(&cfg.OutputDir, "output-dir", cfg.OutputDir, "Directory for saved screenshots")
	fs.BoolVar(&cfg.CheckOutputDir, "check-output-dir", cfg.CheckOutputDir, "Verify the output directory is writable on /status")

	// Browser flags
	fs.StringVar(&cfg.BrowserBin, "browser-bin", cfg.BrowserBin, "Path to the Chromium binary")
	fs.BoolVar(&cfg.BrowserDownload, "browser-download", cfg.BrowserDownload, "Download Chromium when no binary is found")
	fs.IntVar(&cfg.BrowserRevision, "browser-revision", cfg.BrowserRevision, "Chromium revision to download (0 uses default)")
	fs.IntVar(&cfg.WindowWidth, "window-width", cfg.WindowWidth, "Viewport width in pixels")
	fs.IntVar(&cfg.WindowHeight, "window-height", cfg.WindowHeight, "Viewport height in pixels")

	// Capture flags
	fs.DurationVar(&cfg.PageLoadTimeout, "page-load-timeout", cfg.PageLoadTimeout, "Navigation timeout")
	fs.DurationVar(&cfg.ReadyTimeout, "ready-timeout", cfg.ReadyTimeout, "Timeout waiting for document.readyState complete")
	fs.DurationVar(&cfg.SettleDelay, "settle-delay", cfg.SettleDelay, "Extra delay before the screenshot")

	// NATS flags
	fs.StringVar(&cfg.NatsURL, "nats-url", cfg.NatsURL, "NATS server URL for capture events (empty disables)")
	fs.StringVar(&cfg.NatsSubject, "nats-subject", cfg.NatsSubject, "NATS subject for capture events")

	// Logging flags
	fs.StringVar(&cfg.LogLevel, "log-level", cfg.LogLevel, "Log level (trace, debug, info, warn, error)")
	fs.BoolVar(&cfg.LogPretty, "log-pretty", cfg.LogPretty, "Human-readable console logs")

	// Other flags
	fs.BoolVar(&cfg.ShowVersion, "version", cfg.ShowVersion, "Show version information")
	fs.BoolVar(&cfg.ShowHelp, "help", cfg.ShowHelp, "Show help message")

	// Custom usage function
	fs.Usage = func() {
		PrintHelp(output)
	}

	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	// Validate
	if cfg.Port < 1 || cfg.Port > 65535 {
		return nil, fmt.Errorf("invalid port: %d", cfg.Port)
	}
	if cfg.WindowWidth < 1 {
		cfg.WindowWidth = browser.DefaultWindowWidth
	}
	if cfg.WindowHeight < 1 {
		cfg.WindowHeight = browser.DefaultWindowHeight
	}
	if cfg.PageLoadTimeout <= 0 {
		cfg.PageLoadTimeout = capture.DefaultPageLoadTimeout
	}
	if cfg.ReadyTimeout <= 0 {
		cfg.ReadyTimeout = capture.DefaultReadyTimeout
	}
	if cfg.SettleDelay < 0 {
		cfg.SettleDelay = 0
	}
	if cfg.NatsSubject == "" {
		cfg.NatsSubject = events.DefaultSubject
	}

	return cfg, nil
}

// Addr returns the listen address
func (c *Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// CaptureOptions returns the capture timings
func (c *Config) CaptureOptions() capture.Options {
	opts := capture.DefaultOptions()
	opts.PageLoadTimeout = c.PageLoadTimeout
	opts.ReadyTimeout = c.ReadyTimeout
	opts.SettleDelay = c.SettleDelay
	return opts
}

// PrintVersion prints version information
func PrintVersion(w io.Writer) {
	fmt.Fprintf(w, "%s v%s\n", AppName, Version)
}

// PrintHelp prints help information
func PrintHelp(w io.Writer) {
	d := DefaultConfig()
	fmt.Fprintf(w, `%s v%s

Usage:
  ./server [flags]

Server:
  --host               %s
  --port               %d

Storage:
  --output-dir         %s
  --check-output-dir   %v

Browser:
  --browser-bin        %s
  --browser-download   %v
  --browser-revision   %d
  --window-width       %d
  --window-height      %d

Capture:
  --page-load-timeout  %s
  --ready-timeout      %s
  --settle-delay       %s

Events (NATS):
  --nats-url           (disabled)
  --nats-subject       %s

Logging:
  --log-level          %s
  --log-pretty         %v

Other:
  --version            show version
  --help               show this help

`, AppName, Version,
		d.Host, d.Port,
		d.OutputDir, d.CheckOutputDir,
		d.BrowserBin, d.BrowserDownload, d.BrowserRevision, d.WindowWidth, d.WindowHeight,
		d.PageLoadTimeout, d.ReadyTimeout, d.SettleDelay,
		d.NatsSubject,
		d.LogLevel, d.LogPretty)
}

// HandleFlags handles version and help flags, exits if needed
func HandleFlags(cfg *Config) {
	if cfg.ShowVersion {
		PrintVersion(os.Stdout)
		os.Exit(0)
	}

	if cfg.ShowHelp {
		PrintHelp(os.Stdout)
		os.Exit(0)
	}
}
