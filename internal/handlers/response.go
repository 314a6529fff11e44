package handlers

import (
	"time"

	"github.com/example/vehicle-vision/internal/repository"
	"github.com/example/vehicle-vision/internal/vision"
)

// analysisResponse is the JSON shape of one analysis. The plate is always a
// synthesized placeholder and is labelled as such.
type analysisResponse struct {
	RequestID                 string    `json:"request_id"`
	ImageID                   *uint     `json:"image_id,omitempty"`
	VehicleType               string    `json:"vehicle_type"`
	LicensePlatePlaceholder   string    `json:"license_plate_placeholder"`
	LicensePlateIsPlaceholder bool      `json:"license_plate_is_placeholder"`
	ConfidenceScore           float64   `json:"confidence_score"`
	DamageDetected            bool      `json:"damage_detected"`
	DamageDetails             *string   `json:"damage_details,omitempty"`
	ProcessedAt               time.Time `json:"processed_at"`
}

func newAnalysisResponse(r *vision.AnalysisResult, imageID *uint, processedAt time.Time) analysisResponse {
	return analysisResponse{
		RequestID:                 r.RequestID,
		ImageID:                   imageID,
		VehicleType:               string(r.VehicleType),
		LicensePlatePlaceholder:   r.LicensePlate,
		LicensePlateIsPlaceholder: true,
		ConfidenceScore:           r.ConfidenceScore,
		DamageDetected:            r.DamageDetected,
		DamageDetails:             r.DamageDetails,
		ProcessedAt:               processedAt,
	}
}

func newRecordResponse(r *repository.AnalysisRecord) analysisResponse {
	return analysisResponse{
		RequestID:                 r.RequestID,
		ImageID:                   r.ImageID,
		VehicleType:               r.VehicleType,
		LicensePlatePlaceholder:   r.LicensePlate,
		LicensePlateIsPlaceholder: true,
		ConfidenceScore:           r.ConfidenceScore,
		DamageDetected:            r.DamageDetected,
		DamageDetails:             r.DamageDetails,
		ProcessedAt:               r.ProcessedAt,
	}
}
