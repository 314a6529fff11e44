package vision

// VehicleType is the category label produced by a Classifier.
type VehicleType string

const (
	Sedan      VehicleType = "Sedan"
	SUV        VehicleType = "SUV"
	Pickup     VehicleType = "Pickup"
	Van        VehicleType = "Van"
	Truck      VehicleType = "Truck"
	Motorcycle VehicleType = "Motorcycle"
)

// ClassificationResult pairs a category with its confidence.
//
// Confidence is the adjusted likelihood taken from a fixed score table. It is a
// simulated score for ranking, not a calibrated probability.
type ClassificationResult struct {
	VehicleType VehicleType `json:"vehicle_type"`
	Confidence  float64     `json:"confidence"`
}

// Classifier maps a feature vector to a category. Implementations must be
// deterministic and must always return a result.
type Classifier interface {
	Classify(features FeatureVector) ClassificationResult
}

// Confidence is clamped into this open-interval-safe band.
const (
	MinConfidence = 0.01
	MaxConfidence = 0.99
)

// Likelihood is one row of the heuristic score table. When Adjusted is set the
// row's value depends on the edge ratio: Low applies below the threshold and High
// above it. Exactly on the threshold the row takes Low for an edge-favoured
// category and High for a smoothness-favoured one, so neither gets the bonus.
type Likelihood struct {
	Type         VehicleType
	Base         float64
	Adjusted     bool
	FavoursEdges bool
	Low          float64
	High         float64
}

// HeuristicClassifier scores categories with a fixed likelihood table and picks
// the highest. Ties go to the row listed first.
type HeuristicClassifier struct {
	EdgeThreshold float64
	Table         []Likelihood
}

// DefaultEdgeRatioThreshold separates smooth from detailed silhouettes.
const DefaultEdgeRatioThreshold = 0.2

// NewHeuristicClassifier returns the classifier with the standard table:
//
//	Sedan       0.7 below the edge threshold, 0.3 otherwise
//	SUV         0.8 above the edge threshold, 0.4 otherwise
//	Pickup      0.2
//	Van         0.1
//	Truck       0.05
//	Motorcycle  0.01
//
// Sedan therefore wins at 0.7 on smooth images and SUV at 0.8 on detailed ones.
func NewHeuristicClassifier(edgeThreshold float64) *HeuristicClassifier {
	return &HeuristicClassifier{
		EdgeThreshold: edgeThreshold,
		Table: []Likelihood{
			{Type: Sedan, Adjusted: true, FavoursEdges: false, Low: 0.7, High: 0.3},
			{Type: SUV, Adjusted: true, FavoursEdges: true, Low: 0.4, High: 0.8},
			{Type: Pickup, Base: 0.2},
			{Type: Van, Base: 0.1},
			{Type: Truck, Base: 0.05},
			{Type: Motorcycle, Base: 0.01},
		},
	}
}

// Classify implements Classifier.
func (c *HeuristicClassifier) Classify(features FeatureVector) ClassificationResult {
	best := ClassificationResult{VehicleType: Sedan, Confidence: MinConfidence}
	found := false
	for _, row := range c.Table {
		score := c.score(row, features.EdgeRatio)
		if !found || score > best.Confidence {
			best = ClassificationResult{VehicleType: row.Type, Confidence: score}
			found = true
		}
	}
	best.Confidence = clampConfidence(best.Confidence)
	return best
}

func (c *HeuristicClassifier) score(row Likelihood, edgeRatio float64) float64 {
	if !row.Adjusted {
		return row.Base
	}
	switch {
	case edgeRatio > c.EdgeThreshold:
		return row.High
	case edgeRatio < c.EdgeThreshold:
		return row.Low
	case row.FavoursEdges:
		return row.Low
	default:
		return row.High
	}
}

func clampConfidence(v float64) float64 {
	if v != v || v < MinConfidence {
		return MinConfidence
	}
	if v > MaxConfidence {
		return MaxConfidence
	}
	return v
}
