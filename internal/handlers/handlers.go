package handlers

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/example/vehicle-vision/internal/auth"
	"github.com/example/vehicle-vision/internal/logging"
	"github.com/example/vehicle-vision/internal/repository"
	"github.com/example/vehicle-vision/internal/usecase"
	"github.com/example/vehicle-vision/internal/vision"
)

const (
	// MaxUploadSize is the default limit on the uploaded image size.
	MaxUploadSize = 10 << 20
	// multipartOverhead leaves room for boundaries and part headers around the image.
	multipartOverhead = 64 << 10
	// maxMultipartMemory is the part of an upload kept in memory; the rest is
	// spooled to temporary files that are removed after each request.
	maxMultipartMemory = 1 << 20

	// statusClientClosedRequest is the non-standard code for a caller that went away.
	statusClientClosedRequest = 499

	defaultPageSize = 20
	maxPageSize     = 100
)

// AnalysisService is the use case surface the HTTP layer depends on.
type AnalysisService interface {
	AnalyzeImage(ctx context.Context, userID string, imageID *uint, imageBytes []byte) (*vision.AnalysisResult, error)
	GetResult(ctx context.Context, userID, requestID string) (*repository.AnalysisRecord, error)
	ListAnalyses(ctx context.Context, userID string, limit, offset int) (*usecase.AnalysisPage, error)
	GetDuplicateReport(ctx context.Context, userID, requestID string) (*usecase.DuplicateReport, error)
	GetMetricsSummary(ctx context.Context) (*usecase.MetricsSummary, error)
}

// Options tune the HTTP layer.
type Options struct {
	ServiceName    string
	ServiceVersion string
	Environment    string
	MaxUploadSize  int64
	RequestTimeout time.Duration
	Logger         *zap.Logger
}

type handler struct {
	svc     AnalysisService
	opts    Options
	started time.Time
	logger  *zap.Logger
}

// RegisterRoutes wires the HTTP handlers to the Gin router.
func RegisterRoutes(router *gin.Engine, svc AnalysisService, authMiddleware gin.HandlerFunc, opts Options) {
	if opts.MaxUploadSize <= 0 {
		opts.MaxUploadSize = MaxUploadSize
	}
	if opts.RequestTimeout <= 0 {
		opts.RequestTimeout = 30 * time.Second
	}
	if opts.ServiceName == "" {
		opts.ServiceName = "vehicle-vision-api"
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	h := &handler{svc: svc, opts: opts, started: time.Now(), logger: logger.Named("http")}

	router.GET("/health", h.health)

	api := router.Group("/", authMiddleware)
	api.POST("/analyze", h.analyze)
	api.GET("/analyses", h.list)
	api.GET("/analyses/:id", h.get)
	api.GET("/analyses/:id/duplicates", h.duplicates)
	api.GET("/metrics/summary", h.metrics)
}

func (h *handler) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":      "ok",
		"service":     h.opts.ServiceName,
		"version":     h.opts.ServiceVersion,
		"environment": h.opts.Environment,
		"timestamp":   time.Now().UTC().Format(time.RFC3339),
		"uptime":      time.Since(h.started).Round(time.Second).String(),
	})
}

func (h *handler) analyze(c *gin.Context) {
	userID, ok := auth.GetUserID(c.Request.Context())
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}

	limit := h.opts.MaxUploadSize + multipartOverhead
	if c.Request.ContentLength > limit {
		c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": "image exceeds maximum upload size"})
		return
	}
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, limit)

	if err := c.Request.ParseMultipartForm(maxMultipartMemory); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": "image exceeds maximum upload size"})
			return
		}
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid multipart form"})
		return
	}
	// Spooled parts live in temporary files until the form is removed.
	defer func() {
		if err := c.Request.MultipartForm.RemoveAll(); err != nil {
			h.logger.Warn("failed to remove upload spool", zap.Error(err))
		}
	}()

	imageID, err := parseImageID(c.Request.FormValue("image_id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "image_id must be a positive integer"})
		return
	}

	data, status, msg := readUpload(c, h.opts.MaxUploadSize)
	if status != 0 {
		c.JSON(status, gin.H{"error": msg})
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), h.opts.RequestTimeout)
	defer cancel()

	result, err := h.svc.AnalyzeImage(ctx, userID, imageID, data)
	if err != nil {
		h.writeAnalysisError(c, err)
		return
	}

	c.Header(logging.RequestIDHeader, result.RequestID)
	c.JSON(http.StatusOK, newAnalysisResponse(result, imageID, time.Now().UTC()))
}

func (h *handler) writeAnalysisError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, vision.ErrDecode):
		c.JSON(http.StatusBadRequest, gin.H{"error": "image could not be decoded"})
	case errors.Is(err, vision.ErrInvalidInput):
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": "image is empty, zero-sized or above the pixel limit"})
	case errors.Is(err, context.DeadlineExceeded):
		c.JSON(http.StatusGatewayTimeout, gin.H{"error": "analysis timed out"})
	case errors.Is(err, context.Canceled):
		h.logger.Info("analysis abandoned by client", zap.String("operation", logging.OperationOf(err)))
		c.JSON(statusClientClosedRequest, gin.H{"error": "request canceled"})
	default:
		h.logger.Error("analysis request failed",
			zap.Error(err),
			zap.String("operation", logging.OperationOf(err)),
		)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "analysis failed"})
	}
}

func (h *handler) get(c *gin.Context) {
	userID, _ := auth.GetUserID(c.Request.Context())
	requestID := c.Param("id")

	record, err := h.svc.GetResult(c.Request.Context(), userID, requestID)
	switch {
	case errors.Is(err, usecase.ErrStillProcessing):
		c.JSON(http.StatusAccepted, gin.H{"request_id": requestID, "status": "processing"})
		return
	case errors.Is(err, repository.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "result not found"})
		return
	case err != nil:
		h.logger.Error("failed to load result", zap.Error(err), zap.String("request_id", requestID))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load result"})
		return
	}

	c.JSON(http.StatusOK, newRecordResponse(record))
}

func (h *handler) list(c *gin.Context) {
	userID, _ := auth.GetUserID(c.Request.Context())

	limit, err := queryInt(c, "limit", defaultPageSize)
	if err != nil || limit <= 0 || limit > maxPageSize {
		c.JSON(http.StatusBadRequest, gin.H{"error": "limit must be between 1 and 100"})
		return
	}
	offset, err := queryInt(c, "offset", 0)
	if err != nil || offset < 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "offset must be a non-negative integer"})
		return
	}

	page, err := h.svc.ListAnalyses(c.Request.Context(), userID, limit, offset)
	if err != nil {
		h.logger.Error("failed to list analyses", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list analyses"})
		return
	}

	items := make([]analysisResponse, 0, len(page.Items))
	for _, record := range page.Items {
		items = append(items, newRecordResponse(record))
	}
	c.JSON(http.StatusOK, gin.H{
		"items":  items,
		"total":  page.Total,
		"limit":  page.Limit,
		"offset": page.Offset,
	})
}

func (h *handler) duplicates(c *gin.Context) {
	userID, _ := auth.GetUserID(c.Request.Context())
	requestID := c.Param("id")

	report, err := h.svc.GetDuplicateReport(c.Request.Context(), userID, requestID)
	switch {
	case errors.Is(err, repository.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "result not found"})
		return
	case err != nil:
		h.logger.Error("failed to build duplicate report", zap.Error(err), zap.String("request_id", requestID))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to build duplicate report"})
		return
	}

	duplicates := make([]analysisResponse, 0, len(report.Duplicates))
	for _, record := range report.Duplicates {
		duplicates = append(duplicates, newRecordResponse(record))
	}
	c.JSON(http.StatusOK, gin.H{
		"request_id": report.Request.RequestID,
		"sha1_hash":  report.Request.SHA1Hash,
		"duplicates": duplicates,
	})
}

func (h *handler) metrics(c *gin.Context) {
	summary, err := h.svc.GetMetricsSummary(c.Request.Context())
	if err != nil {
		h.logger.Error("failed to aggregate metrics", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to aggregate metrics"})
		return
	}
	c.JSON(http.StatusOK, summary)
}

func parseImageID(raw string) (*uint, error) {
	if raw == "" {
		return nil, nil
	}
	v, err := strconv.ParseUint(raw, 10, 32)
	if err != nil || v == 0 {
		return nil, errors.New("invalid image id")
	}
	id := uint(v)
	return &id, nil
}

func queryInt(c *gin.Context, key string, fallback int) (int, error) {
	raw := strings.TrimSpace(c.Query(key))
	if raw == "" {
		return fallback, nil
	}
	return strconv.Atoi(raw)
}
