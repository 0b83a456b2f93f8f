package browser

import (
	"context"
	"fmt"
	"sync"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/launcher/flags"
	"github.com/go-rod/rod/lib/proto"
)

// Default viewport dimensions
const (
	DefaultWindowWidth  = 1920
	DefaultWindowHeight = 1080
)

// chromeFlags are passed to every launched Chromium process.
var chromeFlags = []flags.Flag{
	"disable-dev-shm-usage",
	"disable-gpu",
	"disable-software-rasterizer",
	"disable-extensions",
}

// LaunchOptions configures each Chromium process started by ChromeLauncher.
type LaunchOptions struct {
	Bin          string
	WindowWidth  int
	WindowHeight int
}

// DefaultLaunchOptions returns default launch options
func DefaultLaunchOptions() LaunchOptions {
	return LaunchOptions{
		WindowWidth:  DefaultWindowWidth,
		WindowHeight: DefaultWindowHeight,
	}
}

// ChromeLauncher starts one headless Chromium process per session.
// Nothing is shared between sessions.
type ChromeLauncher struct {
	opts LaunchOptions
}

// NewChromeLauncher creates a new Chrome launcher.
func NewChromeLauncher(opts LaunchOptions) *ChromeLauncher {
	if opts.WindowWidth <= 0 {
		opts.WindowWidth = DefaultWindowWidth
	}
	if opts.WindowHeight <= 0 {
		opts.WindowHeight = DefaultWindowHeight
	}
	return &ChromeLauncher{opts: opts}
}

func (c *ChromeLauncher) newLauncher() *launcher.Launcher {
	l := launcher.New().
		Set(flags.Headless, "new").
		NoSandbox(true).
		Set("window-size", fmt.Sprintf("%d,%d", c.opts.WindowWidth, c.opts.WindowHeight)).
		Set("disable-features", "VizDisplayCompositor")

	for _, f := range chromeFlags {
		l.Set(f)
	}

	if c.opts.Bin != "" {
		l.Bin(c.opts.Bin)
	}
	return l
}

// Open launches Chromium, connects via CDP and opens a blank page sized to the viewport.
func (c *ChromeLauncher) Open(ctx context.Context) (Session, error) {
	l := c.newLauncher()

	wsURL, err := l.Launch()
	if err != nil {
		return nil, fmt.Errorf("failed to launch chrome: %w", err)
	}

	browser := rod.New().ControlURL(wsURL).Context(ctx)
	if err := browser.Connect(); err != nil {
		l.Kill()
		l.Cleanup()
		return nil, fmt.Errorf("failed to connect to chrome: %w", err)
	}

	s := &chromeSession{launcher: l, browser: browser}

	page, err := browser.Page(proto.TargetCreateTarget{})
	if err != nil {
		_ = s.Close()
		return nil, fmt.Errorf("failed to create new page: %w", err)
	}

	if err := page.SetViewport(&proto.EmulationSetDeviceMetricsOverride{
		Width:             c.opts.WindowWidth,
		Height:            c.opts.WindowHeight,
		DeviceScaleFactor: 1,
	}); err != nil {
		_ = s.Close()
		return nil, fmt.Errorf("failed to set viewport: %w", err)
	}

	s.page = page
	return s, nil
}

type chromeSession struct {
	launcher  *launcher.Launcher
	browser   *rod.Browser
	page      *rod.Page
	closeOnce sync.Once
	closeErr  error
}

// Navigate loads url and waits for the page's load event, both bounded by ctx.
func (s *chromeSession) Navigate(ctx context.Context, url string) error {
	p := s.page.Context(ctx)
	if err := p.Navigate(url); err != nil {
		return err
	}
	return p.WaitLoad()
}

func (s *chromeSession) ReadyState(ctx context.Context) (string, error) {
	res, err := s.page.Context(ctx).Eval(`() => document.readyState`)
	if err != nil {
		return "", err
	}
	return res.Value.Str(), nil
}

func (s *chromeSession) Screenshot(ctx context.Context) ([]byte, error) {
	return s.page.Context(ctx).Screenshot(false, &proto.PageCaptureScreenshot{
		Format: proto.PageCaptureScreenshotFormatPng,
	})
}

// Close closes the browser and kills the process, then removes its profile dir.
func (s *chromeSession) Close() error {
	s.closeOnce.Do(func() {
		if s.browser != nil {
			s.closeErr = s.browser.Close()
		}
		s.launcher.Kill()
		s.launcher.Cleanup()
	})
	return s.closeErr
}
