package repository

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/example/vehicle-vision/internal/logging"
)

// ErrNotFound is returned when no analysis matches the lookup.
var ErrNotFound = errors.New("analysis not found")

// AnalysisRecord represents a persisted vehicle analysis.
type AnalysisRecord struct {
	ID              uint      `gorm:"primaryKey"`
	RequestID       string    `gorm:"column:request_id;uniqueIndex;size:64"`
	UserID          string    `gorm:"column:user_id;index;size:64"`
	ImageID         *uint     `gorm:"column:image_id"`
	VehicleType     string    `gorm:"column:vehicle_type;size:32;not null"`
	LicensePlate    string    `gorm:"column:license_plate;size:16;not null"`
	ConfidenceScore float64   `gorm:"column:confidence_score;not null"`
	DamageDetected  bool      `gorm:"column:damage_detected;not null;default:false"`
	DamageDetails   *string   `gorm:"column:damage_details;type:text"`
	SHA1Hash        string    `gorm:"column:sha1_hash;index;size:40"`
	ProcessingMs    float64   `gorm:"column:processing_ms"`
	ProcessedAt     time.Time `gorm:"column:processed_at"`
	CreatedAt       time.Time `gorm:"column:created_at"`
}

// TableName overrides the default table name.
func (AnalysisRecord) TableName() string {
	return "vehicle_analyses"
}

// MetricsAggregation holds raw aggregates over all analyses.
type MetricsAggregation struct {
	TotalCount                 int64
	DamageCount                int64
	AverageConfidence          float64
	AverageProcessingLatencyMs float64
}

// VehicleTypeCount is the number of analyses per vehicle category.
type VehicleTypeCount struct {
	VehicleType string
	Count       int64
}

// AnalysisRepository provides persistence APIs for vehicle analyses.
type AnalysisRepository struct {
	db             *gorm.DB
	logger         *zap.Logger
	retryAttempts  int
	initialBackoff time.Duration
	maxBackoff     time.Duration
}

// NewAnalysisRepository creates a new repository instance.
func NewAnalysisRepository(db *gorm.DB, logger *zap.Logger) *AnalysisRepository {
	return &AnalysisRepository{
		db:             db,
		logger:         logger.Named("analysis_repository"),
		retryAttempts:  3,
		initialBackoff: 50 * time.Millisecond,
		maxBackoff:     time.Second,
	}
}

// AutoMigrate ensures the schema is available.
func (r *AnalysisRepository) AutoMigrate(ctx context.Context) error {
	return r.executeWithRetry(ctx, "repository.auto_migrate", "", func() error {
		return r.db.WithContext(ctx).AutoMigrate(&AnalysisRecord{})
	})
}

// SaveAnalysis persists an analysis record.
func (r *AnalysisRepository) SaveAnalysis(ctx context.Context, record *AnalysisRecord) error {
	return r.executeWithRetry(ctx, "repository.save_analysis", record.RequestID, func() error {
		return r.db.WithContext(ctx).Create(record).Error
	})
}

// FindByRequestIDAndUser retrieves the analysis matching the request and owner.
func (r *AnalysisRepository) FindByRequestIDAndUser(ctx context.Context, requestID, userID string) (*AnalysisRecord, error) {
	var record AnalysisRecord
	err := r.executeWithRetry(ctx, "repository.find_analysis", requestID, func() error {
		return r.db.WithContext(ctx).First(&record, "request_id = ? AND user_id = ?", requestID, userID).Error
	})
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, logging.NewOperationError("repository.find_analysis", requestID, ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return &record, nil
}

// FindDuplicatesByHash lists the owner's other analyses of byte-identical images.
func (r *AnalysisRepository) FindDuplicatesByHash(ctx context.Context, userID, hash, excludeRequestID string) ([]*AnalysisRecord, error) {
	var records []*AnalysisRecord
	err := r.executeWithRetry(ctx, "repository.find_duplicates", excludeRequestID, func() error {
		return r.db.WithContext(ctx).
			Where("user_id = ? AND sha1_hash = ? AND request_id <> ?", userID, hash, excludeRequestID).
			Order("created_at DESC").
			Find(&records).Error
	})
	if err != nil {
		return nil, err
	}
	return records, nil
}

// ListByUser pages through the owner's analyses, newest first.
func (r *AnalysisRepository) ListByUser(ctx context.Context, userID string, limit, offset int) ([]*AnalysisRecord, int64, error) {
	var (
		records []*AnalysisRecord
		total   int64
	)
	err := r.executeWithRetry(ctx, "repository.list_analyses", "", func() error {
		query := r.db.WithContext(ctx).Model(&AnalysisRecord{}).Where("user_id = ?", userID)
		if err := query.Count(&total).Error; err != nil {
			return err
		}
		return query.Order("created_at DESC").Limit(limit).Offset(offset).Find(&records).Error
	})
	if err != nil {
		return nil, 0, err
	}
	return records, total, nil
}

// AggregateMetrics computes totals and averages across all analyses.
func (r *AnalysisRepository) AggregateMetrics(ctx context.Context) (*MetricsAggregation, error) {
	var row struct {
		TotalCount    int64
		DamageCount   int64
		AvgConfidence *float64
		AvgProcessing *float64
	}
	err := r.executeWithRetry(ctx, "repository.aggregate_metrics", "", func() error {
		return r.db.WithContext(ctx).Model(&AnalysisRecord{}).
			Select("COUNT(*) AS total_count, " +
				"COALESCE(SUM(CASE WHEN damage_detected THEN 1 ELSE 0 END), 0) AS damage_count, " +
				"AVG(confidence_score) AS avg_confidence, " +
				"AVG(processing_ms) AS avg_processing").
			Scan(&row).Error
	})
	if err != nil {
		return nil, err
	}

	agg := &MetricsAggregation{TotalCount: row.TotalCount, DamageCount: row.DamageCount}
	if row.AvgConfidence != nil {
		agg.AverageConfidence = *row.AvgConfidence
	}
	if row.AvgProcessing != nil {
		agg.AverageProcessingLatencyMs = *row.AvgProcessing
	}
	return agg, nil
}

// CountByVehicleType groups analyses by category.
func (r *AnalysisRepository) CountByVehicleType(ctx context.Context) ([]VehicleTypeCount, error) {
	var counts []VehicleTypeCount
	err := r.executeWithRetry(ctx, "repository.count_by_vehicle_type", "", func() error {
		return r.db.WithContext(ctx).Model(&AnalysisRecord{}).
			Select("vehicle_type, COUNT(*) AS count").
			Group("vehicle_type").
			Order("vehicle_type").
			Scan(&counts).Error
	})
	if err != nil {
		return nil, err
	}
	return counts, nil
}

func (r *AnalysisRepository) executeWithRetry(ctx context.Context, operation, requestID string, fn func() error) error {
	backoff := r.initialBackoff
	opLogger := logging.WithOperation(r.logger, operation, requestID)
	attempts := r.retryAttempts
	if attempts < 1 {
		attempts = 1
	}

	var err error
	for attempt := 0; attempt < attempts; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return logging.NewOperationError(operation, requestID, ctx.Err())
			case <-time.After(backoff):
			}
			if next := backoff * 2; next <= r.maxBackoff {
				backoff = next
			}
		}

		err = fn()
		if err == nil {
			if attempt > 0 {
				opLogger.Info("database operation succeeded after retry", zap.Int("attempt", attempt+1))
			}
			return nil
		}
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return err
		}
		if !IsTransientError(err) || attempt == attempts-1 {
			opLogger.Error("database operation failed", zap.Error(err), zap.Int("attempt", attempt+1))
			return logging.NewOperationError(operation, requestID, err)
		}
		opLogger.Warn("transient database error", zap.Error(err), zap.Int("attempt", attempt+1))
	}
	return logging.NewOperationError(operation, requestID, err)
}

// IsTransientError reports whether err is a timeout or temporary failure worth retrying.
func IsTransientError(err error) bool {
	if err == nil {
		return false
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}

	var netErr interface{ Timeout() bool }
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}

	var temporary interface{ Temporary() bool }
	if errors.As(err, &temporary) && temporary.Temporary() {
		return true
	}

	return false
}
