package transport

import (
	"context"
	"crypto/subtle"
	"errors"
	"io"
	"mime/multipart"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/JSFTI/bg-removal/internal/config"
	apperrors "github.com/JSFTI/bg-removal/internal/errors"
	"github.com/JSFTI/bg-removal/internal/logger"
	"github.com/JSFTI/bg-removal/internal/observer"
	"github.com/JSFTI/bg-removal/internal/service"
	"github.com/JSFTI/bg-removal/pkg/models"

	"github.com/gin-gonic/gin"
	"github.com/segmentio/ksuid"
	"github.com/sirupsen/logrus"
)

const (
	requestIDHeader      = "X-Request-ID"
	processingTimeHeader = "X-Processing-Time-Ms"
	requestIDKey         = "request_id"

	// room for multipart boundaries and part headers on top of the file itself
	multipartOverhead int64 = 1 << 20
)

// Handler serves the background-removal API
type Handler struct {
	svc     service.BackgroundRemovalService
	metrics *observer.MetricsObserver
	pool    *service.WorkerPool
	cfg     *config.Config
}

// NewHandler builds the gin engine. metrics and pool may be nil.
func NewHandler(
	svc service.BackgroundRemovalService,
	metrics *observer.MetricsObserver,
	pool *service.WorkerPool,
	cfg *config.Config,
) http.Handler {
	h := &Handler{svc: svc, metrics: metrics, pool: pool, cfg: cfg}

	r := gin.New()
	r.Use(
		gin.Recovery(),
		requestID(),
		requestLogger(),
		errorHandler(),
	)

	r.NoRoute(func(c *gin.Context) {
		respondError(c, apperrors.NewNotFoundError("route not found", nil))
	})

	r.GET("/", h.listDurations)
	r.GET("/health", h.healthCheck)
	r.POST("/bg-removal",
		bearerAuth(cfg.APIKey),
		requestSizeLimiter(cfg.MaxUploadSize+multipartOverhead),
		h.removeBackground,
	)

	return r
}

func (h *Handler) removeBackground(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), h.requestBudget())
	defer cancel()

	upload, err := readFirstFile(c.Request, h.cfg.MaxUploadSize)
	if err != nil {
		respondError(c, err)
		return
	}
	upload.RequestID = c.GetString(requestIDKey)

	logger.WithFields(logrus.Fields{
		"request_id":   upload.RequestID,
		"filename":     upload.Filename,
		"content_type": upload.ContentType,
		"size":         len(upload.Data),
	}).Debug("Processing background removal request")

	result, err := h.svc.RemoveBackground(ctx, *upload)
	if err != nil {
		respondError(c, err)
		return
	}

	c.Header(processingTimeHeader, strconv.FormatInt(result.Duration.Milliseconds(), 10))
	c.Data(http.StatusOK, "image/png", result.PNG)
}

// requestBudget is RequestTimeout, extended by ModelLoadTimeout while the
// model has not been provisioned yet.
func (h *Handler) requestBudget() time.Duration {
	if h.svc.Ready() {
		return h.cfg.RequestTimeout
	}
	return h.cfg.RequestTimeout + h.cfg.ModelLoadTimeout
}

// readFirstFile returns the first file part of a multipart body. At most
// limit+1 bytes are read so oversized files are still detected.
func readFirstFile(r *http.Request, limit int64) (*service.Upload, error) {
	mr, err := r.MultipartReader()
	if err != nil {
		return nil, apperrors.NewInvalidUploadError("expected a multipart/form-data body", err)
	}

	for {
		part, err := mr.NextPart()
		if errors.Is(err, io.EOF) {
			return nil, apperrors.NewInvalidUploadError("no file in request", nil)
		}
		if err != nil {
			return nil, bodyError(err)
		}
		if part.FileName() == "" {
			_ = part.Close()
			continue
		}
		return readPart(part, limit)
	}
}

func readPart(part *multipart.Part, limit int64) (*service.Upload, error) {
	defer part.Close()

	data, err := io.ReadAll(io.LimitReader(part, limit+1))
	if err != nil {
		return nil, bodyError(err)
	}
	return &service.Upload{
		Filename:    part.FileName(),
		ContentType: part.Header.Get("Content-Type"),
		Data:        data,
	}, nil
}

func bodyError(err error) error {
	var maxErr *http.MaxBytesError
	if errors.As(err, &maxErr) {
		return apperrors.NewInvalidUploadError("upload exceeds maximum size", err).
			WithStatus(http.StatusRequestEntityTooLarge)
	}
	return apperrors.NewInvalidUploadError("malformed multipart body", err)
}

func (h *Handler) listDurations(c *gin.Context) {
	durations, err := h.svc.ListDurations(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, durations)
}

func (h *Handler) healthCheck(c *gin.Context) {
	resp := models.HealthResponse{
		Status:     "available",
		Version:    "1.0.0",
		Time:       time.Now().UTC().Format(time.RFC3339),
		ModelReady: h.svc.Ready(),
	}
	if h.metrics != nil {
		m := h.metrics.GetMetrics()
		resp.Requests = &m
	}
	if h.pool != nil {
		s := h.pool.GetStats()
		resp.Workers = &s
	}
	c.JSON(http.StatusOK, resp)
}

// Middleware and helper functions
func requestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := strings.TrimSpace(c.GetHeader(requestIDHeader))
		if id == "" || len(id) > 64 {
			id = ksuid.New().String()
		}
		c.Set(requestIDKey, id)
		c.Header(requestIDHeader, id)
		c.Next()
	}
}

func requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		logger.WithFields(logrus.Fields{
			"request_id": c.GetString(requestIDKey),
			"method":     c.Request.Method,
			"path":       c.Request.URL.Path,
			"status":     c.Writer.Status(),
			"ip":         c.ClientIP(),
			"latency_ms": time.Since(start).Milliseconds(),
			"user_agent": c.Request.UserAgent(),
		}).Info("request")
	}
}

// bearerAuth rejects the request before its body is touched.
func bearerAuth(apiKey string) gin.HandlerFunc {
	expected := []byte(apiKey)
	return func(c *gin.Context) {
		token, ok := strings.CutPrefix(c.GetHeader("Authorization"), "Bearer ")
		if !ok || len(expected) == 0 || subtle.ConstantTimeCompare([]byte(strings.TrimSpace(token)), expected) != 1 {
			respondError(c, apperrors.NewUnauthorizedError("missing or invalid API key", nil))
			return
		}
		c.Next()
	}
}

func requestSizeLimiter(maxBytes int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxBytes)
		c.Next()
	}
}

func errorHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if len(c.Errors) > 0 && !c.Writer.Written() {
			respondError(c, c.Errors.Last().Err)
		}
	}
}

func determineStatusCode(err error) int {
	if appErr, ok := apperrors.As(err); ok {
		return appErr.StatusCode
	}

	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	case errors.Is(err, context.Canceled):
		return http.StatusRequestTimeout
	default:
		return http.StatusInternalServerError
	}
}

func respondError(c *gin.Context, err error) {
	code := determineStatusCode(err)
	resp := models.ErrorResponse{
		Error:     http.StatusText(code),
		Type:      string(apperrors.ErrorTypeInternal),
		Message:   "request processing failed",
		RequestID: c.GetString(requestIDKey),
	}
	if appErr, ok := apperrors.As(err); ok {
		resp.Type = string(appErr.Type)
		resp.Message = appErr.Message
	}

	entry := logger.WithError(err).WithFields(logrus.Fields{
		"request_id":  resp.RequestID,
		"status_code": code,
		"error_type":  resp.Type,
		"path":        c.Request.URL.Path,
		"method":      c.Request.Method,
		"ip":          c.ClientIP(),
	})
	if code >= http.StatusInternalServerError {
		entry.Error("Request failed")
	} else {
		entry.Warn("Request rejected")
	}

	c.AbortWithStatusJSON(code, resp)
}
