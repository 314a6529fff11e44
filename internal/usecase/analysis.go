package usecase

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/example/vehicle-vision/internal/logging"
	"github.com/example/vehicle-vision/internal/repository"
	"github.com/example/vehicle-vision/internal/vision"
)

// ErrStillProcessing is returned by GetResult while an analysis has not finished.
var ErrStillProcessing = errors.New("analysis still processing")

const processingMarker = "processing"

// AnalysisRepository defines the persistence operations needed by the use case.
type AnalysisRepository interface {
	SaveAnalysis(ctx context.Context, record *repository.AnalysisRecord) error
	FindByRequestIDAndUser(ctx context.Context, requestID, userID string) (*repository.AnalysisRecord, error)
	FindDuplicatesByHash(ctx context.Context, userID, hash, excludeRequestID string) ([]*repository.AnalysisRecord, error)
	ListByUser(ctx context.Context, userID string, limit, offset int) ([]*repository.AnalysisRecord, int64, error)
	AggregateMetrics(ctx context.Context) (*repository.MetricsAggregation, error)
	CountByVehicleType(ctx context.Context) ([]repository.VehicleTypeCount, error)
}

// AnalysisUseCase encapsulates business logic for the vehicle analysis flow.
type AnalysisUseCase struct {
	repo           AnalysisRepository
	cache          Cache
	analyzer       Analyzer
	logger         *zap.Logger
	resultTTL      time.Duration
	retryAttempts  int
	initialBackoff time.Duration
	maxBackoff     time.Duration
	now            func() time.Time
	newRequestID   func() string
}

type cachedAnalysis struct {
	RequestID       string    `json:"request_id"`
	UserID          string    `json:"user_id"`
	ImageID         *uint     `json:"image_id,omitempty"`
	VehicleType     string    `json:"vehicle_type"`
	LicensePlate    string    `json:"license_plate"`
	ConfidenceScore float64   `json:"confidence_score"`
	DamageDetected  bool      `json:"damage_detected"`
	DamageDetails   *string   `json:"damage_details,omitempty"`
	Hash            string    `json:"sha1_hash"`
	ProcessingMs    float64   `json:"processing_ms"`
	ProcessedAt     time.Time `json:"processed_at"`
}

// DuplicateReport represents earlier analyses of the same image bytes.
type DuplicateReport struct {
	Request    *repository.AnalysisRecord
	Duplicates []*repository.AnalysisRecord
}

// AnalysisPage is one page of a user's analyses.
type AnalysisPage struct {
	Items  []*repository.AnalysisRecord
	Total  int64
	Limit  int
	Offset int
}

// NewAnalysisUseCase constructs a new use case instance.
func NewAnalysisUseCase(repo AnalysisRepository, cache Cache, analyzer Analyzer, resultTTL time.Duration, logger *zap.Logger) *AnalysisUseCase {
	return &AnalysisUseCase{
		repo:           repo,
		cache:          cache,
		analyzer:       analyzer,
		logger:         logger.Named("analysis_usecase"),
		resultTTL:      resultTTL,
		retryAttempts:  3,
		initialBackoff: 50 * time.Millisecond,
		maxBackoff:     time.Second,
		now:            time.Now,
		newRequestID:   uuid.NewString,
	}
}

// AnalyzeImage runs the analysis, persists it and caches it under a fresh request id.
func (uc *AnalysisUseCase) AnalyzeImage(ctx context.Context, userID string, imageID *uint, imageBytes []byte) (*vision.AnalysisResult, error) {
	requestID := uc.newRequestID()
	opLogger := logging.WithOperation(uc.logger, "usecase.analyze_image", requestID)

	cacheKey := resultCacheKey(requestID)
	if err := uc.withRedisRetry(ctx, requestID, "cache.set.processing", func() error {
		return uc.cache.Set(ctx, cacheKey, processingMarker, time.Minute)
	}); err != nil {
		opLogger.Error("failed to set processing flag", zap.Error(err))
		return nil, err
	}

	started := uc.now()
	result, err := uc.analyzer.Analyze(ctx, requestID, imageBytes)
	if err != nil {
		wrapped := logging.NewOperationError("usecase.analyze_image", requestID, err)
		if vision.IsClientError(err) {
			opLogger.Warn("image rejected", zap.Error(err))
		} else {
			opLogger.Error("analysis failed", zap.Error(wrapped))
		}
		uc.clearProcessing(ctx, requestID, cacheKey)
		return nil, wrapped
	}
	elapsed := uc.now().Sub(started)

	hash := sha1.Sum(imageBytes)
	record := &repository.AnalysisRecord{
		RequestID:       requestID,
		UserID:          userID,
		ImageID:         imageID,
		VehicleType:     string(result.VehicleType),
		LicensePlate:    result.LicensePlate,
		ConfidenceScore: result.ConfidenceScore,
		DamageDetected:  result.DamageDetected,
		DamageDetails:   result.DamageDetails,
		SHA1Hash:        hex.EncodeToString(hash[:]),
		ProcessingMs:    float64(elapsed) / float64(time.Millisecond),
		ProcessedAt:     uc.now().UTC(),
	}
	record.CreatedAt = record.ProcessedAt
	if err := uc.repo.SaveAnalysis(ctx, record); err != nil {
		wrapped := logging.NewOperationError("usecase.save_analysis", requestID, err)
		opLogger.Error("failed to persist analysis", zap.Error(wrapped))
		uc.clearProcessing(ctx, requestID, cacheKey)
		return nil, wrapped
	}

	serialized, err := json.Marshal(toCached(record))
	if err != nil {
		opLogger.Error("failed to serialize analysis", zap.Error(err))
		uc.clearProcessing(ctx, requestID, cacheKey)
		return nil, err
	}
	if err := uc.withRedisRetry(ctx, requestID, "cache.set.result", func() error {
		return uc.cache.Set(ctx, cacheKey, string(serialized), uc.resultTTL)
	}); err != nil {
		opLogger.Error("failed to cache analysis", zap.Error(err))
		return nil, err
	}

	opLogger.Info("analysis completed",
		zap.String("vehicle_type", record.VehicleType),
		zap.Float64("confidence", record.ConfidenceScore),
		zap.Bool("damage_detected", record.DamageDetected),
		zap.Duration("elapsed", elapsed),
	)
	return result, nil
}

// GetResult retrieves a cached analysis or loads it from persistence.
func (uc *AnalysisUseCase) GetResult(ctx context.Context, userID, requestID string) (*repository.AnalysisRecord, error) {
	opLogger := logging.WithOperation(uc.logger, "usecase.get_result", requestID)
	cached, err := uc.withRedisGet(ctx, requestID, "cache.get.result", resultCacheKey(requestID))
	switch {
	case err == nil && cached == processingMarker:
		return nil, ErrStillProcessing
	case err == nil:
		var payload cachedAnalysis
		if err := json.Unmarshal([]byte(cached), &payload); err != nil {
			opLogger.Warn("failed to decode cached result", zap.Error(err))
		} else if payload.UserID == userID {
			return fromCached(payload), nil
		}
	case !errors.Is(err, redis.Nil):
		opLogger.Warn("failed to read cache", zap.Error(err))
	}

	return uc.repo.FindByRequestIDAndUser(ctx, requestID, userID)
}

// ListAnalyses returns a page of the user's analyses, newest first.
func (uc *AnalysisUseCase) ListAnalyses(ctx context.Context, userID string, limit, offset int) (*AnalysisPage, error) {
	items, total, err := uc.repo.ListByUser(ctx, userID, limit, offset)
	if err != nil {
		return nil, err
	}
	return &AnalysisPage{Items: items, Total: total, Limit: limit, Offset: offset}, nil
}

// GetDuplicateReport lists the user's other analyses of the same image bytes.
func (uc *AnalysisUseCase) GetDuplicateReport(ctx context.Context, userID, requestID string) (*DuplicateReport, error) {
	record, err := uc.repo.FindByRequestIDAndUser(ctx, requestID, userID)
	if err != nil {
		return nil, err
	}

	duplicates, err := uc.repo.FindDuplicatesByHash(ctx, userID, record.SHA1Hash, record.RequestID)
	if err != nil {
		return nil, err
	}

	return &DuplicateReport{Request: record, Duplicates: duplicates}, nil
}

// clearProcessing drops the processing marker of a failed analysis. It runs
// even when ctx is already canceled.
func (uc *AnalysisUseCase) clearProcessing(ctx context.Context, requestID, cacheKey string) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 2*time.Second)
	defer cancel()
	if err := uc.withRedisRetry(ctx, requestID, "cache.delete.processing", func() error {
		return uc.cache.Delete(ctx, cacheKey)
	}); err != nil {
		logging.WithOperation(uc.logger, "usecase.analyze_image", requestID).
			Warn("failed to clear processing flag", zap.Error(err))
	}
}

func resultCacheKey(requestID string) string {
	return fmt.Sprintf("analysis:%s", requestID)
}

func toCached(r *repository.AnalysisRecord) cachedAnalysis {
	return cachedAnalysis{
		RequestID:       r.RequestID,
		UserID:          r.UserID,
		ImageID:         r.ImageID,
		VehicleType:     r.VehicleType,
		LicensePlate:    r.LicensePlate,
		ConfidenceScore: r.ConfidenceScore,
		DamageDetected:  r.DamageDetected,
		DamageDetails:   r.DamageDetails,
		Hash:            r.SHA1Hash,
		ProcessingMs:    r.ProcessingMs,
		ProcessedAt:     r.ProcessedAt,
	}
}

func fromCached(c cachedAnalysis) *repository.AnalysisRecord {
	return &repository.AnalysisRecord{
		RequestID:       c.RequestID,
		UserID:          c.UserID,
		ImageID:         c.ImageID,
		VehicleType:     c.VehicleType,
		LicensePlate:    c.LicensePlate,
		ConfidenceScore: c.ConfidenceScore,
		DamageDetected:  c.DamageDetected,
		DamageDetails:   c.DamageDetails,
		SHA1Hash:        c.Hash,
		ProcessingMs:    c.ProcessingMs,
		ProcessedAt:     c.ProcessedAt,
		CreatedAt:       c.ProcessedAt,
	}
}

func (uc *AnalysisUseCase) withRedisRetry(ctx context.Context, requestID, operation string, fn func() error) error {
	if uc.retryAttempts <= 1 {
		err := fn()
		return logging.NewOperationError(operation, requestID, err)
	}

	backoff := uc.initialBackoff
	opLogger := logging.WithOperation(uc.logger, operation, requestID)
	var err error
	for attempt := 0; attempt < uc.retryAttempts; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return logging.NewOperationError(operation, requestID, ctx.Err())
			case <-time.After(backoff):
			}
			if next := backoff * 2; next <= uc.maxBackoff {
				backoff = next
			}
		}

		err = fn()
		if err == nil {
			if attempt > 0 {
				opLogger.Info("redis operation succeeded after retry", zap.Int("attempt", attempt+1))
			}
			return nil
		}
		if errors.Is(err, redis.Nil) {
			return err
		}

		if !repository.IsTransientError(err) || attempt == uc.retryAttempts-1 {
			opLogger.Error("redis operation failed", zap.Error(err), zap.Int("attempt", attempt+1))
			return logging.NewOperationError(operation, requestID, err)
		}

		opLogger.Warn("transient redis error", zap.Error(err), zap.Int("attempt", attempt+1))
	}
	return logging.NewOperationError(operation, requestID, err)
}

func (uc *AnalysisUseCase) withRedisGet(ctx context.Context, requestID, operation, cacheKey string) (string, error) {
	var result string
	err := uc.withRedisRetry(ctx, requestID, operation, func() error {
		value, err := uc.cache.Get(ctx, cacheKey)
		if err != nil {
			return err
		}
		result = value
		return nil
	})
	if err != nil {
		return "", err
	}
	return result, nil
}
