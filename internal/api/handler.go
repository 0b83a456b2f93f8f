package api

import (
	"context"
	"errors"
	"mime"
	"net/url"
	"path/filepath"
	"strings"
	"time"

	"github.com/ahrdadan/snapd/internal/capture"
	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"
)

// Error messages returned to clients
const (
	msgContentType   = "Content-Type must be application/json"
	msgURLRequired   = "URL is required"
	msgInvalidURL    = "Invalid URL. Must start with http:// or https://"
	msgCaptureFailed = "Failed to take screenshot"
)

// Capturer takes screenshots
type Capturer interface {
	Capture(ctx context.Context, req capture.Request) (*capture.Result, error)
}

// OutputChecker verifies the screenshot output directory is usable
type OutputChecker interface {
	CheckWritable() error
}

// Handler handles API requests
type Handler struct {
	capturer Capturer
	checker  OutputChecker
	logger   zerolog.Logger
	now      func() time.Time
}

// NewHandler creates a new handler. A nil checker disables the /status directory check.
func NewHandler(capturer Capturer, checker OutputChecker, logger zerolog.Logger) *Handler {
	return &Handler{
		capturer: capturer,
		checker:  checker,
		logger:   logger,
		now:      time.Now,
	}
}

// ErrorResponse is the body of every error response
type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}

// StatusResponse is the body of /status
type StatusResponse struct {
	Status  string `json:"status"`
	Message string `json:"message"`
	Time    string `json:"time,omitempty"`
}

// ScreenshotRequest represents a screenshot request
type ScreenshotRequest struct {
	URL      string `json:"url"`
	SaveFile bool   `json:"save_file"`
}

// ErrorHandler is the custom error handler for Fiber
func ErrorHandler(c *fiber.Ctx, err error) error {
	code := fiber.StatusInternalServerError
	var e *fiber.Error
	if errors.As(err, &e) {
		code = e.Code
	}

	return c.Status(code).JSON(ErrorResponse{
		Error: err.Error(),
	})
}

// Home returns the service banner
func (h *Handler) Home(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{
		"message": "Screenshot API is running",
	})
}

// Ping always answers pong
func (h *Handler) Ping(c *fiber.Ctx) error {
	return c.SendString("pong")
}

// Status reports whether the API can accept screenshots
func (h *Handler) Status(c *fiber.Ctx) error {
	h.logger.Debug().Msg("Status check received")

	if h.checker != nil {
		if err := h.checker.CheckWritable(); err != nil {
			h.logger.Error().Err(err).Msg("Status check failed")
			return c.Status(fiber.StatusInternalServerError).JSON(StatusResponse{
				Status:  "error",
				Message: err.Error(),
			})
		}
	}

	c.Set(fiber.HeaderAccessControlAllowOrigin, "*")
	return c.JSON(StatusResponse{
		Status:  "ready",
		Message: "API is running",
		Time:    h.now().Format(time.RFC3339),
	})
}

// Screenshot takes a screenshot of the requested URL and returns it as PNG
func (h *Handler) Screenshot(c *fiber.Ctx) error {
	if !isJSON(c.Get(fiber.HeaderContentType)) {
		return fiber.NewError(fiber.StatusBadRequest, msgContentType)
	}

	var req ScreenshotRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, msgContentType)
	}

	if req.URL == "" {
		return fiber.NewError(fiber.StatusBadRequest, msgURLRequired)
	}

	if !validURL(req.URL) {
		return fiber.NewError(fiber.StatusBadRequest, msgInvalidURL)
	}

	log := h.logger.With().Str("url", req.URL).Interface("request_id", c.Locals(requestIDKey)).Logger()
	log.Info().Bool("save_file", req.SaveFile).Msg("Screenshot requested")

	// Captures are not tied to the client connection.
	res, err := h.capturer.Capture(context.Background(), capture.Request{
		URL:     req.URL,
		Persist: req.SaveFile,
	})
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(ErrorResponse{
			Error:   msgCaptureFailed,
			Details: err.Error(),
		})
	}

	disposition := "inline"
	if res.SavedPath != "" {
		disposition = `inline; filename="` + filepath.Base(res.SavedPath) + `"`
	}

	c.Set(fiber.HeaderContentType, "image/png")
	c.Set(fiber.HeaderContentDisposition, disposition)
	c.Set(fiber.HeaderAccessControlAllowOrigin, "*")
	if res.ID != "" {
		c.Set("X-Capture-ID", res.ID)
	}

	// The body is written by fasthttp after the handler returns.
	return c.Status(fiber.StatusOK).Send(res.Image)
}

func isJSON(contentType string) bool {
	if contentType == "" {
		return false
	}
	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return false
	}
	if mediaType == fiber.MIMEApplicationJSON {
		return true
	}
	return strings.HasPrefix(mediaType, "application/") && strings.HasSuffix(mediaType, "+json")
}

func validURL(raw string) bool {
	if !strings.HasPrefix(raw, "http://") && !strings.HasPrefix(raw, "https://") {
		return false
	}
	u, err := url.Parse(raw)
	return err == nil && u.Host != ""
}
