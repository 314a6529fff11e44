// Package vision turns vehicle photographs into a heuristic assessment: a
// category with a simulated confidence, a damage flag and a placeholder plate.
//
// Every decision is a fixed function of a small feature vector, so the same
// image bytes always produce the same category, confidence and damage verdict.
// Only the numeric suffix of the placeholder plate may vary between calls.
package vision

import (
	"errors"
	"fmt"
	"math/rand"

	"golang.org/x/sync/errgroup"
)

// AnalysisResult is the assessment of one image.
type AnalysisResult struct {
	RequestID   string      `json:"request_id"`
	VehicleType VehicleType `json:"vehicle_type"`
	// LicensePlate is a synthesized placeholder, never a recognised plate.
	LicensePlate    string        `json:"license_plate_placeholder"`
	ConfidenceScore float64       `json:"confidence_score"`
	DamageDetected  bool          `json:"damage_detected"`
	DamageDetails   *string       `json:"damage_details,omitempty"`
	Features        FeatureVector `json:"features"`
	Format          string        `json:"format"`
}

// Validate checks the invariants every produced result must satisfy.
func (r *AnalysisResult) Validate() error {
	switch {
	case r.VehicleType == "":
		return errors.New("empty vehicle type")
	case !(r.ConfidenceScore > 0 && r.ConfidenceScore < 1):
		return fmt.Errorf("confidence %v outside (0,1)", r.ConfidenceScore)
	case r.DamageDetected != (r.DamageDetails != nil):
		return errors.New("damage details inconsistent with damage flag")
	case !PlatePattern.MatchString(r.LicensePlate):
		return fmt.Errorf("placeholder plate %q has wrong shape", r.LicensePlate)
	}
	return nil
}

// Analyzer sequences decoding, feature extraction, classification, damage
// assessment and plate synthesis. It holds no per-request state and is safe
// for concurrent use.
type Analyzer struct {
	extractor  FeatureExtractor
	classifier Classifier
	damage     *DamageAssessor
	plates     *PlateSynthesizer
	maxPixels  int64
}

// Option configures an Analyzer.
type Option func(*Analyzer)

// WithExtractor replaces the default luminance extractor.
func WithExtractor(e FeatureExtractor) Option {
	return func(a *Analyzer) { a.extractor = e }
}

// WithClassifier replaces the default heuristic classifier.
func WithClassifier(c Classifier) Option {
	return func(a *Analyzer) { a.classifier = c }
}

// WithDamageAssessor replaces the default damage thresholds.
func WithDamageAssessor(d *DamageAssessor) Option {
	return func(a *Analyzer) { a.damage = d }
}

// WithPlateSource fixes the random source of the placeholder plate suffix.
func WithPlateSource(src rand.Source) Option {
	return func(a *Analyzer) { a.plates = NewPlateSynthesizer(src) }
}

// WithMaxPixels changes the decoded image size limit. n <= 0 disables it.
func WithMaxPixels(n int64) Option {
	return func(a *Analyzer) { a.maxPixels = n }
}

// NewAnalyzer builds an Analyzer with the default pipeline, adjusted by opts.
func NewAnalyzer(opts ...Option) *Analyzer {
	a := &Analyzer{
		extractor:  DefaultLuminanceExtractor(),
		classifier: NewHeuristicClassifier(DefaultEdgeRatioThreshold),
		damage:     NewDamageAssessor(DefaultBrightnessThreshold),
		maxPixels:  DefaultMaxPixels,
	}
	for _, opt := range opts {
		opt(a)
	}
	if a.plates == nil {
		a.plates = NewPlateSynthesizer(nil)
	}
	return a
}

// Analyze assesses imageBytes. It returns either a complete result or one of
// DecodeError, InvalidInputError or InternalError.
func (a *Analyzer) Analyze(imageBytes []byte, requestID string) (*AnalysisResult, error) {
	if len(imageBytes) == 0 {
		return nil, &InvalidInputError{Reason: "empty image payload"}
	}

	img, format, err := DecodeLimited(imageBytes, a.maxPixels)
	if err != nil {
		return nil, err
	}

	var features FeatureVector
	if err := guard("extract", func() (err error) {
		features, err = a.extractor.Extract(img)
		return err
	}); err != nil {
		return nil, err
	}

	var (
		classification ClassificationResult
		damage         DamageAssessment
		g              errgroup.Group
	)
	g.Go(func() error {
		return guard("classify", func() error {
			classification = a.classifier.Classify(features)
			return nil
		})
	})
	g.Go(func() error {
		return guard("assess_damage", func() error {
			damage = a.damage.Assess(features)
			return nil
		})
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	var plate string
	if err := guard("synthesize_plate", func() error {
		plate = a.plates.Synthesize(img, PlateRegion)
		return nil
	}); err != nil {
		return nil, err
	}

	result := &AnalysisResult{
		RequestID:       requestID,
		VehicleType:     classification.VehicleType,
		LicensePlate:    plate,
		ConfidenceScore: classification.Confidence,
		DamageDetected:  damage.Detected,
		DamageDetails:   damage.Details,
		Features:        features,
		Format:          format,
	}
	if err := result.Validate(); err != nil {
		return nil, &InternalError{Stage: "assemble", Err: err}
	}
	return result, nil
}

// guard runs fn, converting panics and untyped errors into InternalError.
func guard(stage string, fn func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = &InternalError{Stage: stage, Err: fmt.Errorf("panic: %v", r)}
		}
	}()
	if ferr := fn(); ferr != nil {
		if IsClientError(ferr) || errors.Is(ferr, ErrInternal) {
			return ferr
		}
		return &InternalError{Stage: stage, Err: ferr}
	}
	return nil
}
