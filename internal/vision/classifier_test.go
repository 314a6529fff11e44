package vision

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestHeuristicClassifier(t *testing.T) {
	c := NewHeuristicClassifier(DefaultEdgeRatioThreshold)

	tests := []struct {
		name       string
		edgeRatio  float64
		wantType   VehicleType
		confidence float64
	}{
		{name: "smooth favours sedan", edgeRatio: 0.05, wantType: Sedan, confidence: 0.7},
		{name: "detailed favours suv", edgeRatio: 0.45, wantType: SUV, confidence: 0.8},
		{name: "on threshold", edgeRatio: DefaultEdgeRatioThreshold, wantType: SUV, confidence: 0.4},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := c.Classify(FeatureVector{EdgeRatio: tt.edgeRatio, WidthOverHeight: 1.5})
			require.Equal(t, tt.wantType, got.VehicleType)
			require.InDelta(t, tt.confidence, got.Confidence, 1e-9)
		})
	}
}

func TestHeuristicClassifierRepeatable(t *testing.T) {
	c := NewHeuristicClassifier(DefaultEdgeRatioThreshold)
	f := FeatureVector{WidthOverHeight: 1.33, EdgeRatio: 0.13, DarkRatio: 0.2, MeanBrightness: 120}
	first := c.Classify(f)
	for i := 0; i < 10; i++ {
		require.Equal(t, first, c.Classify(f))
	}
}

func TestHeuristicClassifierTieGoesToFirstRow(t *testing.T) {
	c := &HeuristicClassifier{
		EdgeThreshold: 0.2,
		Table: []Likelihood{
			{Type: Van, Base: 0.5},
			{Type: Truck, Base: 0.5},
		},
	}
	require.Equal(t, Van, c.Classify(FeatureVector{}).VehicleType)
}

func TestHeuristicClassifierFallsBackAndClamps(t *testing.T) {
	empty := &HeuristicClassifier{EdgeThreshold: 0.2}
	got := empty.Classify(FeatureVector{})
	require.Equal(t, Sedan, got.VehicleType)
	require.Equal(t, MinConfidence, got.Confidence)

	loud := &HeuristicClassifier{Table: []Likelihood{{Type: Pickup, Base: 3}}}
	require.Equal(t, MaxConfidence, loud.Classify(FeatureVector{}).Confidence)
}
