package api_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"regexp"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/ahrdadan/snapd/internal/api"
	"github.com/ahrdadan/snapd/internal/browser"
	"github.com/ahrdadan/snapd/internal/capture"
	"github.com/ahrdadan/snapd/internal/events"
	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var pngHeader = []byte{0x89, 'P', 'N', 'G', '\r', '\n', 0x1a, '\n'}

func fakePNG() []byte {
	return append(append([]byte{}, pngHeader...), "fake image payload"...)
}

// mockCapturer records calls instead of driving a browser
type mockCapturer struct {
	mu       sync.Mutex
	requests []capture.Request
	result   *capture.Result
	err      error
}

func (m *mockCapturer) Capture(ctx context.Context, req capture.Request) (*capture.Result, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.requests = append(m.requests, req)
	if m.err != nil {
		return nil, m.err
	}
	return m.result, nil
}

func (m *mockCapturer) calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.requests)
}

type mockChecker struct {
	err error
}

func (m mockChecker) CheckWritable() error { return m.err }

func setupTestApp(capturer api.Capturer, checker api.OutputChecker) *fiber.App {
	app := api.NewApp()
	api.SetupRoutes(app, api.NewHandler(capturer, checker, zerolog.Nop()))
	return app
}

func postJSON(t *testing.T, app *fiber.App, body string) *http.Response {
	t.Helper()
	req := httptest.NewRequest("POST", "/screenshot", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	resp, err := app.Test(req, 5000)
	require.NoError(t, err)
	return resp
}

func decodeError(t *testing.T, resp *http.Response) api.ErrorResponse {
	t.Helper()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	var out api.ErrorResponse
	require.NoError(t, json.Unmarshal(body, &out), "body: %s", body)
	return out
}

func TestHome(t *testing.T) {
	app := setupTestApp(&mockCapturer{}, nil)

	resp, err := app.Test(httptest.NewRequest("GET", "/", nil))
	require.NoError(t, err)

	assert.Equal(t, 200, resp.StatusCode)
	body, _ := io.ReadAll(resp.Body)
	assert.JSONEq(t, `{"message":"Screenshot API is running"}`, string(body))
}

func TestPing(t *testing.T) {
	capturer := &mockCapturer{err: errors.New("boom")}
	app := setupTestApp(capturer, mockChecker{err: errors.New("read-only file system")})

	// a failing capture must not change /ping
	postJSON(t, app, `{"url":"https://example.com"}`)

	for i := 0; i < 2; i++ {
		resp, err := app.Test(httptest.NewRequest("GET", "/ping", nil))
		require.NoError(t, err)

		assert.Equal(t, 200, resp.StatusCode)
		body, _ := io.ReadAll(resp.Body)
		assert.Equal(t, "pong", string(body))
	}
}

func TestStatusReady(t *testing.T) {
	app := setupTestApp(&mockCapturer{}, mockChecker{})

	resp, err := app.Test(httptest.NewRequest("GET", "/status", nil))
	require.NoError(t, err)

	assert.Equal(t, 200, resp.StatusCode)
	assert.Equal(t, "*", resp.Header.Get("Access-Control-Allow-Origin"))

	var status api.StatusResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&status))
	assert.Equal(t, "ready", status.Status)
	assert.NotEmpty(t, status.Message)
	_, err = time.Parse(time.RFC3339, status.Time)
	assert.NoError(t, err)
}

func TestStatusWithoutChecker(t *testing.T) {
	app := setupTestApp(&mockCapturer{}, nil)

	resp, err := app.Test(httptest.NewRequest("GET", "/status", nil))
	require.NoError(t, err)
	assert.Equal(t, 200, resp.StatusCode)
}

func TestStatusOutputDirNotWritable(t *testing.T) {
	app := setupTestApp(&mockCapturer{}, mockChecker{err: errors.New("Screenshot directory /vm/screenshots is not writable")})

	resp, err := app.Test(httptest.NewRequest("GET", "/status", nil))
	require.NoError(t, err)

	assert.Equal(t, 500, resp.StatusCode)
	var status api.StatusResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&status))
	assert.Equal(t, "error", status.Status)
	assert.Contains(t, status.Message, "not writable")
	assert.Empty(t, status.Time)
}

func TestStatusWithStore(t *testing.T) {
	store := capture.NewStore(t.TempDir())
	app := setupTestApp(&mockCapturer{}, store)

	resp, err := app.Test(httptest.NewRequest("GET", "/status", nil))
	require.NoError(t, err)
	assert.Equal(t, 200, resp.StatusCode)
}

func TestScreenshotRequiresJSON(t *testing.T) {
	capturer := &mockCapturer{}
	app := setupTestApp(capturer, nil)

	tests := []struct {
		name        string
		contentType string
		body        string
	}{
		{"no content type", "", `{"url":"https://example.com"}`},
		{"form body", "application/x-www-form-urlencoded", "url=https://example.com"},
		{"plain text json", "text/plain", `{"url":"https://example.com"}`},
		{"non-application json suffix", "text/x+json", `{"url":"https://example.com"}`},
		{"invalid json", "application/json", `{invalid json}`},
		{"empty body", "application/json", ""},
		{"wrong field type", "application/json", `{"url": 42}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest("POST", "/screenshot", strings.NewReader(tt.body))
			if tt.contentType != "" {
				req.Header.Set("Content-Type", tt.contentType)
			}
			resp, err := app.Test(req)
			require.NoError(t, err)

			assert.Equal(t, 400, resp.StatusCode)
			assert.Equal(t, "Content-Type must be application/json", decodeError(t, resp).Error)
		})
	}
	assert.Equal(t, 0, capturer.calls())
}

func TestScreenshotAcceptsJSONVariants(t *testing.T) {
	for _, ct := range []string{
		"application/json",
		"application/json; charset=utf-8",
		"application/vnd.api+json",
		"application/merge-patch+json",
	} {
		t.Run(ct, func(t *testing.T) {
			capturer := &mockCapturer{result: &capture.Result{Image: fakePNG()}}
			app := setupTestApp(capturer, nil)

			req := httptest.NewRequest("POST", "/screenshot", strings.NewReader(`{"url":"https://example.com"}`))
			req.Header.Set("Content-Type", ct)
			resp, err := app.Test(req)
			require.NoError(t, err)

			assert.Equal(t, 200, resp.StatusCode)
			require.Equal(t, 1, capturer.calls())
			assert.Equal(t, "https://example.com", capturer.requests[0].URL)
		})
	}
}

func TestScreenshotMissingURL(t *testing.T) {
	capturer := &mockCapturer{}
	app := setupTestApp(capturer, nil)

	for _, body := range []string{`{}`, `{"save_file": true}`, `{"url": ""}`} {
		resp := postJSON(t, app, body)

		assert.Equal(t, 400, resp.StatusCode, body)
		assert.Equal(t, "URL is required", decodeError(t, resp).Error)
	}
	assert.Equal(t, 0, capturer.calls())
}

func TestScreenshotInvalidURL(t *testing.T) {
	capturer := &mockCapturer{}
	app := setupTestApp(capturer, nil)

	for _, u := range []string{
		"example.com",
		"ftp://example.com/file",
		"javascript:alert(1)",
		"file:///etc/passwd",
		"HTTPS://EXAMPLE.COM",
		"http://",
		" https://example.com",
	} {
		body, _ := json.Marshal(map[string]string{"url": u})
		resp := postJSON(t, app, string(body))

		assert.Equal(t, 400, resp.StatusCode, u)
		errResp := decodeError(t, resp)
		assert.True(t, strings.HasPrefix(errResp.Error, "Invalid URL"), u)
	}
	assert.Equal(t, 0, capturer.calls())
}

func TestScreenshotSuccess(t *testing.T) {
	capturer := &mockCapturer{result: &capture.Result{ID: "cap-1", Image: fakePNG()}}
	app := setupTestApp(capturer, nil)

	resp := postJSON(t, app, `{"url":"https://example.com"}`)

	assert.Equal(t, 200, resp.StatusCode)
	assert.Equal(t, "image/png", resp.Header.Get("Content-Type"))
	assert.True(t, strings.HasPrefix(resp.Header.Get("Content-Disposition"), "inline"))
	assert.Equal(t, "*", resp.Header.Get("Access-Control-Allow-Origin"))
	assert.Equal(t, "cap-1", resp.Header.Get("X-Capture-ID"))
	assert.NotEmpty(t, resp.Header.Get("X-Request-ID"))

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.NotEmpty(t, body)
	assert.True(t, bytes.HasPrefix(body, pngHeader))

	require.Equal(t, 1, capturer.calls())
	assert.Equal(t, capture.Request{URL: "https://example.com", Persist: false}, capturer.requests[0])
}

func TestScreenshotSaveFile(t *testing.T) {
	capturer := &mockCapturer{result: &capture.Result{
		Image:     fakePNG(),
		SavedPath: "/vm/screenshots/screenshot_20240309_140507.png",
	}}
	app := setupTestApp(capturer, nil)

	resp := postJSON(t, app, `{"url":"http://example.com/page?q=1","save_file":true}`)

	assert.Equal(t, 200, resp.StatusCode)
	assert.Equal(t, `inline; filename="screenshot_20240309_140507.png"`, resp.Header.Get("Content-Disposition"))
	require.Equal(t, 1, capturer.calls())
	assert.True(t, capturer.requests[0].Persist)
}

func TestScreenshotCaptureFailure(t *testing.T) {
	capturer := &mockCapturer{err: errors.New("failed to navigate to https://example.com: context deadline exceeded")}
	app := setupTestApp(capturer, nil)

	resp := postJSON(t, app, `{"url":"https://example.com"}`)

	assert.Equal(t, 500, resp.StatusCode)
	assert.Contains(t, resp.Header.Get("Content-Type"), "application/json")
	errResp := decodeError(t, resp)
	assert.Equal(t, "Failed to take screenshot", errResp.Error)
	assert.Contains(t, errResp.Details, "context deadline exceeded")
}

func TestRequestIDPropagated(t *testing.T) {
	app := setupTestApp(&mockCapturer{}, nil)

	req := httptest.NewRequest("GET", "/ping", nil)
	req.Header.Set("X-Request-ID", "req-123")
	resp, err := app.Test(req)
	require.NoError(t, err)

	assert.Equal(t, "req-123", resp.Header.Get("X-Request-ID"))
}

func TestUnknownRoute(t *testing.T) {
	app := setupTestApp(&mockCapturer{}, nil)

	resp, err := app.Test(httptest.NewRequest("GET", "/nope", nil))
	require.NoError(t, err)

	assert.Equal(t, 404, resp.StatusCode)
	assert.NotEmpty(t, decodeError(t, resp).Error)
}

func TestBodyLimit(t *testing.T) {
	capturer := &mockCapturer{}
	app := setupTestApp(capturer, nil)

	big := `{"url":"https://example.com","pad":"` + strings.Repeat("a", 16*1024*1024) + `"}`
	req := httptest.NewRequest("POST", "/screenshot", strings.NewReader(big))
	req.Header.Set("Content-Type", "application/json")

	// fasthttp rejects the body before any handler runs
	_, err := app.Test(req, 5000)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "body size exceeds")
	assert.Equal(t, 0, capturer.calls())
}

func TestBodyUnderLimit(t *testing.T) {
	capturer := &mockCapturer{result: &capture.Result{Image: fakePNG()}}
	app := setupTestApp(capturer, nil)

	padded := `{"url":"https://example.com","pad":"` + strings.Repeat("a", 1024*1024) + `"}`
	resp := postJSON(t, app, padded)

	assert.Equal(t, 200, resp.StatusCode)
	assert.Equal(t, 1, capturer.calls())
}

func TestEventsRequiresUpgrade(t *testing.T) {
	app := api.NewApp()
	api.SetupEventRoutes(app, events.NewHub())

	resp, err := app.Test(httptest.NewRequest("GET", "/events", nil))
	require.NoError(t, err)

	assert.Equal(t, fiber.StatusUpgradeRequired, resp.StatusCode)
}

// The following tests run the real capture service against a fake browser.

type fakeSession struct {
	navigateErr error
	mu          sync.Mutex
	closed      int
}

func (s *fakeSession) Navigate(ctx context.Context, url string) error { return s.navigateErr }

func (s *fakeSession) ReadyState(ctx context.Context) (string, error) { return "complete", nil }

func (s *fakeSession) Screenshot(ctx context.Context) ([]byte, error) { return fakePNG(), nil }

func (s *fakeSession) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed++
	return nil
}

type fakeOpener struct {
	mu       sync.Mutex
	sessions []*fakeSession
	navErr   error
}

func (o *fakeOpener) Open(ctx context.Context) (browser.Session, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	s := &fakeSession{navigateErr: o.navErr}
	o.sessions = append(o.sessions, s)
	return s, nil
}

func newServiceApp(t *testing.T, opener browser.Opener, dir string) *fiber.App {
	t.Helper()
	store := capture.NewStore(dir)
	svc := capture.NewService(opener, store, nil, capture.Options{
		PageLoadTimeout: time.Second,
		ReadyTimeout:    time.Second,
		PollInterval:    time.Millisecond,
	}, zerolog.Nop())
	return setupTestApp(svc, store)
}

func TestScreenshotNavigationTimeoutTearsDown(t *testing.T) {
	opener := &fakeOpener{navErr: context.DeadlineExceeded}
	app := newServiceApp(t, opener, t.TempDir())

	for i := 0; i < 3; i++ {
		resp := postJSON(t, app, `{"url":"https://example.com"}`)

		assert.Equal(t, 500, resp.StatusCode)
		errResp := decodeError(t, resp)
		assert.Equal(t, "Failed to take screenshot", errResp.Error)
		assert.NotEmpty(t, errResp.Details)
	}

	require.Len(t, opener.sessions, 3)
	for _, s := range opener.sessions {
		assert.Equal(t, 1, s.closed)
	}
}

func TestScreenshotInvalidURLSpawnsNoBrowser(t *testing.T) {
	opener := &fakeOpener{}
	app := newServiceApp(t, opener, t.TempDir())

	resp := postJSON(t, app, `{"url":"ftp://example.com"}`)

	assert.Equal(t, 400, resp.StatusCode)
	assert.Empty(t, opener.sessions)
}

func TestScreenshotPersistence(t *testing.T) {
	opener := &fakeOpener{}
	dir := t.TempDir()
	app := newServiceApp(t, opener, dir)

	resp := postJSON(t, app, `{"url":"https://example.com"}`)
	require.Equal(t, 200, resp.StatusCode)
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Empty(t, entries, "save_file=false must not write files")

	resp = postJSON(t, app, `{"url":"https://example.com","save_file":true}`)
	require.Equal(t, 200, resp.StatusCode)
	entries, err = os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Regexp(t, regexp.MustCompile(`^screenshot_\d{8}_\d{6}\.png$`), entries[0].Name())

	for _, s := range opener.sessions {
		assert.Equal(t, 1, s.closed)
	}
}
