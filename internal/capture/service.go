// Package capture turns a URL into a PNG screenshot using one isolated
// headless browser session per call.
package capture

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ahrdadan/snapd/internal/browser"
	"github.com/ahrdadan/snapd/internal/events"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Default timings
const (
	DefaultPageLoadTimeout = 30 * time.Second
	DefaultReadyTimeout    = 10 * time.Second
	DefaultPollInterval    = 500 * time.Millisecond
	DefaultSettleDelay     = 2 * time.Second
)

const readyStateComplete = "complete"

var (
	// ErrNotReady is returned when the document never reaches readyState "complete"
	ErrNotReady = errors.New("page did not finish loading")
	// ErrEmptyScreenshot is returned when the browser produced no image data
	ErrEmptyScreenshot = errors.New("screenshot is empty")
	// ErrNoStore is returned when persistence is requested without a store
	ErrNoStore = errors.New("no output directory configured")
)

// Options holds capture timings
type Options struct {
	PageLoadTimeout time.Duration
	ReadyTimeout    time.Duration
	PollInterval    time.Duration
	SettleDelay     time.Duration
}

// DefaultOptions returns default capture options
func DefaultOptions() Options {
	return Options{
		PageLoadTimeout: DefaultPageLoadTimeout,
		ReadyTimeout:    DefaultReadyTimeout,
		PollInterval:    DefaultPollInterval,
		SettleDelay:     DefaultSettleDelay,
	}
}

// Request is a single capture request
type Request struct {
	URL     string
	Persist bool
}

// Result is a successful capture
type Result struct {
	ID        string
	Image     []byte
	SavedPath string
}

// Service captures screenshots
type Service struct {
	opener   browser.Opener
	store    *Store
	notifier events.Notifier
	opts     Options
	logger   zerolog.Logger
}

// NewService creates a new capture service. store and notifier may be nil.
func NewService(opener browser.Opener, store *Store, notifier events.Notifier, opts Options, logger zerolog.Logger) *Service {
	if opts.PollInterval <= 0 {
		opts.PollInterval = DefaultPollInterval
	}
	return &Service{
		opener:   opener,
		store:    store,
		notifier: notifier,
		opts:     opts,
		logger:   logger,
	}
}

// Capture renders req.URL in a fresh browser session and returns the viewport as PNG.
// The session is always closed before Capture returns. Any failure is returned as
// an error whose text describes the failing stage.
func (s *Service) Capture(ctx context.Context, req Request) (res *Result, err error) {
	id := uuid.NewString()
	start := time.Now()
	log := s.logger.With().Str("capture_id", id).Str("url", req.URL).Logger()

	defer func() {
		s.notify(id, req, res, err, start)
	}()

	log.Debug().Bool("persist", req.Persist).Msg("Taking screenshot")

	img, err := s.shoot(ctx, req.URL, log)
	if err != nil {
		log.Error().Err(err).Msg("Screenshot error")
		return nil, err
	}

	res = &Result{ID: id, Image: img}

	if req.Persist {
		if s.store == nil {
			return nil, ErrNoStore
		}
		path, err := s.store.Save(img)
		if err != nil {
			log.Error().Err(err).Msg("Failed to save screenshot")
			return nil, err
		}
		res.SavedPath = path
		log.Debug().Str("path", path).Int("size", len(img)).Msg("Screenshot saved")
	}

	log.Info().Int("size", len(img)).Dur("took", time.Since(start)).Msg("Screenshot taken")
	return res, nil
}

func (s *Service) shoot(ctx context.Context, url string, log zerolog.Logger) (img []byte, err error) {
	log.Debug().Msg("Starting browser")
	session, err := s.opener.Open(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to start browser: %w", err)
	}
	defer func() {
		if closeErr := session.Close(); closeErr != nil {
			log.Warn().Err(closeErr).Msg("Failed to close browser")
		}
	}()
	defer func() {
		if r := recover(); r != nil {
			img, err = nil, fmt.Errorf("browser panic: %v", r)
		}
	}()

	log.Debug().Msg("Loading page")
	navCtx, cancel := withTimeout(ctx, s.opts.PageLoadTimeout)
	err = session.Navigate(navCtx, url)
	cancel()
	if err != nil {
		return nil, fmt.Errorf("failed to navigate to %s: %w", url, err)
	}

	if err := s.waitReady(ctx, session); err != nil {
		return nil, err
	}

	if err := sleep(ctx, s.opts.SettleDelay); err != nil {
		return nil, err
	}

	img, err = session.Screenshot(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to take screenshot: %w", err)
	}
	if len(img) == 0 {
		return nil, ErrEmptyScreenshot
	}

	return img, nil
}

// waitReady polls document.readyState until it reports "complete" or the
// ready timeout expires. Evaluation errors are retried until the deadline.
func (s *Service) waitReady(ctx context.Context, session browser.Session) error {
	ctx, cancel := withTimeout(ctx, s.opts.ReadyTimeout)
	defer cancel()

	ticker := time.NewTicker(s.opts.PollInterval)
	defer ticker.Stop()

	for {
		state, err := session.ReadyState(ctx)
		if err == nil && state == readyStateComplete {
			return nil
		}

		select {
		case <-ctx.Done():
			if err != nil {
				return fmt.Errorf("%w within %v: %v", ErrNotReady, s.opts.ReadyTimeout, err)
			}
			return fmt.Errorf("%w within %v (readyState %q)", ErrNotReady, s.opts.ReadyTimeout, state)
		case <-ticker.C:
		}
	}
}

func (s *Service) notify(id string, req Request, res *Result, err error, start time.Time) {
	if s.notifier == nil {
		return
	}

	event := events.Event{
		ID:         id,
		URL:        req.URL,
		Status:     events.StatusSucceeded,
		DurationMs: time.Since(start).Milliseconds(),
		Time:       time.Now().UTC(),
	}
	if err != nil {
		event.Status = events.StatusFailed
		event.Error = err.Error()
	} else if res != nil {
		event.Size = len(res.Image)
		event.SavedPath = res.SavedPath
	}

	s.notifier.Notify(event)
}

func withTimeout(ctx context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	if timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, timeout)
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
