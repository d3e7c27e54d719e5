package api

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"go.uber.org/zap"

	"github.com/satriahrh/voicememo/domain"
	"github.com/satriahrh/voicememo/domain/entities"
	"github.com/satriahrh/voicememo/internal/auth"
	"github.com/satriahrh/voicememo/internal/pipeline"
	"github.com/satriahrh/voicememo/internal/websocket"
)

// ServiceName is reported by the health check
const ServiceName = "voicememo"

// AudioField is the multipart field carrying the recording
const AudioField = "audio"

// DefaultMaxUploadBytes is 25 MB
const DefaultMaxUploadBytes = 25 * 1024 * 1024

// Ingester stores an uploaded recording
type Ingester interface {
	Ingest(ctx context.Context, uploadPath string) (*entities.IngestResult, *pipeline.Run, error)
}

// Searcher searches with an uploaded recording
type Searcher interface {
	Search(ctx context.Context, uploadPath string) (*entities.SearchResult, *pipeline.Run, error)
}

// Options configures the voice routes
type Options struct {
	UploadDir      string
	MaxUploadBytes int64
	// Authenticator guards /api when set
	Authenticator *auth.Authenticator
	// Events serves GET /api/events when set
	Events *websocket.Hub
}

// Handler serves the voice API
type Handler struct {
	ingester Ingester
	searcher Searcher
	options  Options
	logger   *zap.Logger
}

// NewHandler creates the upload directory and a handler
func NewHandler(ingester Ingester, searcher Searcher, options Options, logger *zap.Logger) (*Handler, error) {
	if options.UploadDir == "" {
		return nil, fmt.Errorf("upload directory is required")
	}
	if options.MaxUploadBytes <= 0 {
		options.MaxUploadBytes = DefaultMaxUploadBytes
	}
	if err := os.MkdirAll(options.UploadDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create upload directory: %w", err)
	}
	return &Handler{
		ingester: ingester,
		searcher: searcher,
		options:  options,
		logger:   logger,
	}, nil
}

// InitRoutes initializes all API routes
func InitRoutes(e *echo.Echo, h *Handler) {
	e.HTTPErrorHandler = errorHandler(h.logger)

	// Health check
	e.GET("/health", func(c echo.Context) error {
		return c.JSON(http.StatusOK, HealthResponse{
			Status:  "ok",
			Service: ServiceName,
		})
	})

	// room for multipart framing on top of the file itself
	limit := h.options.MaxUploadBytes + 64*1024
	v1 := e.Group("/api", h.uploadLimit(limit))
	if h.options.Authenticator != nil {
		v1.Use(bearerAuth(h.options.Authenticator, h.logger))
	}

	v1.POST("/store", h.store)
	v1.POST("/search", h.search)
	if h.options.Events != nil {
		v1.GET("/events", func(c echo.Context) error {
			return websocket.HandleWebSocket(h.options.Events, c, h.logger)
		})
	}
}

func (h *Handler) store(c echo.Context) error {
	path, err := h.saveUpload(c)
	if err != nil {
		return h.fail(c, err, nil)
	}

	result, run, err := h.ingester.Ingest(c.Request().Context(), path)
	if err != nil {
		return h.fail(c, err, run)
	}

	return c.JSON(http.StatusOK, StoreResponse{
		Success:            true,
		ID:                 result.ID,
		Transcription:      result.Transcription,
		EmbeddingDimension: result.EmbeddingDimension,
	})
}

func (h *Handler) search(c echo.Context) error {
	path, err := h.saveUpload(c)
	if err != nil {
		return h.fail(c, err, nil)
	}

	result, run, err := h.searcher.Search(c.Request().Context(), path)
	if err != nil {
		return h.fail(c, err, run)
	}

	return c.JSON(http.StatusOK, SearchResponse{
		Success: true,
		Query:   result.Query,
		Results: result.Results,
	})
}

var extPattern = regexp.MustCompile(`^\.[A-Za-z0-9]{1,8}$`)

// saveUpload writes the audio field to a uniquely named file in the upload
// directory. The services own the file from then on.
func (h *Handler) saveUpload(c echo.Context) (string, error) {
	fh, err := c.FormFile(AudioField)
	if err != nil {
		if tooLarge(err) {
			return "", domain.E(domain.KindValidation, "upload", domain.ErrAudioTooLarge)
		}
		return "", domain.E(domain.KindValidation, "upload", domain.ErrNoAudio)
	}
	if fh.Size > h.options.MaxUploadBytes {
		return "", domain.E(domain.KindValidation, "upload", domain.ErrAudioTooLarge)
	}

	ext := strings.ToLower(filepath.Ext(filepath.Base(fh.Filename)))
	if !extPattern.MatchString(ext) {
		ext = ""
	}
	dst := filepath.Join(h.options.UploadDir, "audio-"+uuid.NewString()+ext)

	src, err := fh.Open()
	if err != nil {
		return "", fmt.Errorf("failed to open upload: %w", err)
	}
	defer src.Close()

	out, err := os.OpenFile(dst, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return "", fmt.Errorf("failed to create upload file: %w", err)
	}
	if _, err := io.Copy(out, src); err != nil {
		out.Close()
		os.Remove(dst)
		return "", fmt.Errorf("failed to save upload: %w", err)
	}
	if err := out.Close(); err != nil {
		os.Remove(dst)
		return "", fmt.Errorf("failed to save upload: %w", err)
	}

	h.logger.Info("Audio uploaded",
		zap.String("field", AudioField),
		zap.String("filename", fh.Filename),
		zap.Int64("size", fh.Size),
		zap.String("path", dst))
	return dst, nil
}

func tooLarge(err error) bool {
	var maxErr *http.MaxBytesError
	return errors.Is(err, echo.ErrStatusRequestEntityTooLarge) || errors.As(err, &maxErr)
}

// uploadLimit caps the request body and reports a rejected body the same
// way as any other failed upload
func (h *Handler) uploadLimit(limit int64) echo.MiddlewareFunc {
	bodyLimit := middleware.BodyLimit(strconv.FormatInt(limit, 10))
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		limited := bodyLimit(next)
		return func(c echo.Context) error {
			err := limited(c)
			if err != nil && tooLarge(err) && !c.Response().Committed {
				return h.fail(c, domain.E(domain.KindValidation, "upload", domain.ErrAudioTooLarge), nil)
			}
			return err
		}
	}
}

// fail writes the error body for a failed request. Every failure is a
// server error; the kind travels in the log fields and the trace.
func (h *Handler) fail(c echo.Context, err error, run *pipeline.Run) error {
	trace := ""
	if run != nil {
		trace = run.Trace()
	}
	status := http.StatusInternalServerError

	fields := []zap.Field{
		zap.String("kind", string(domain.KindOf(err))),
		zap.Int("status", status),
		zap.String("trace", trace),
		zap.Error(err),
	}
	if domain.IsKind(err, domain.KindValidation) {
		h.logger.Warn("Request rejected", fields...)
	} else {
		h.logger.Error("Request failed", fields...)
	}

	return c.JSON(status, ErrorResponse{Error: err.Error(), Stack: trace})
}

// errorHandler renders echo errors in the same body shape as pipeline errors
func errorHandler(logger *zap.Logger) echo.HTTPErrorHandler {
	return func(err error, c echo.Context) {
		if c.Response().Committed {
			return
		}

		status := http.StatusInternalServerError
		message := err.Error()
		var httpErr *echo.HTTPError
		if errors.As(err, &httpErr) {
			status = httpErr.Code
			message = fmt.Sprint(httpErr.Message)
		} else {
			logger.Error("Unhandled error", zap.Error(err))
		}

		if c.Request().Method == http.MethodHead {
			err = c.NoContent(status)
		} else {
			err = c.JSON(status, ErrorResponse{Error: message})
		}
		if err != nil {
			logger.Error("Failed to write error response", zap.Error(err))
		}
	}
}

// bearerAuth validates the client JWT in the Authorization header
func bearerAuth(authenticator *auth.Authenticator, logger *zap.Logger) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			// Extract JWT token from Authorization header only
			var token string
			authHeader := c.Request().Header.Get("Authorization")
			if len(authHeader) > 7 && authHeader[:7] == "Bearer " {
				token = authHeader[7:]
			}

			if token == "" {
				logger.Warn("Request rejected: missing token", zap.String("path", c.Path()))
				return echo.NewHTTPError(http.StatusUnauthorized, "JWT token is required in Authorization header")
			}

			claims, err := authenticator.ValidateToken(token)
			if err != nil {
				logger.Warn("Request rejected: invalid token", zap.Error(err))
				return echo.NewHTTPError(http.StatusUnauthorized, "Invalid or expired JWT token")
			}

			c.Set("client_id", claims.ClientID)
			return next(c)
		}
	}
}
