package usecase

import "context"

// MetricsSummary represents aggregated analysis insights.
type MetricsSummary struct {
	TotalAnalyses              int64            `json:"total_analyses"`
	DamagedVehicles            int64            `json:"damaged_vehicles"`
	DamageRate                 float64          `json:"damage_rate"`
	AverageConfidence          float64          `json:"average_confidence"`
	AverageProcessingLatencyMs float64          `json:"average_processing_latency_ms"`
	VehicleTypes               map[string]int64 `json:"vehicle_types"`
}

// GetMetricsSummary aggregates analysis metrics from persisted records.
func (uc *AnalysisUseCase) GetMetricsSummary(ctx context.Context) (*MetricsSummary, error) {
	aggregation, err := uc.repo.AggregateMetrics(ctx)
	if err != nil {
		return nil, err
	}
	counts, err := uc.repo.CountByVehicleType(ctx)
	if err != nil {
		return nil, err
	}

	summary := &MetricsSummary{
		TotalAnalyses:              aggregation.TotalCount,
		DamagedVehicles:            aggregation.DamageCount,
		AverageConfidence:          aggregation.AverageConfidence,
		AverageProcessingLatencyMs: aggregation.AverageProcessingLatencyMs,
		VehicleTypes:               make(map[string]int64, len(counts)),
	}
	for _, c := range counts {
		summary.VehicleTypes[c.VehicleType] = c.Count
	}

	if aggregation.TotalCount > 0 {
		summary.DamageRate = float64(aggregation.DamageCount) / float64(aggregation.TotalCount)
	}

	return summary, nil
}
