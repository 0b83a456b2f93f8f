package browser

import "context"

// Session is one isolated headless browser with a single page.
// Navigate returns once the page has fired its load event.
// Close must release the browser process and is safe to call more than once.
type Session interface {
	Navigate(ctx context.Context, url string) error
	ReadyState(ctx context.Context) (string, error)
	Screenshot(ctx context.Context) ([]byte, error)
	Close() error
}

// Opener starts a fresh Session per call.
type Opener interface {
	Open(ctx context.Context) (Session, error)
}
