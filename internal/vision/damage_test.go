package vision

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestAssessDamage(t *testing.T) {
	tests := []struct {
		name     string
		features FeatureVector
		detected bool
		details  string
	}{
		{name: "bright", features: FeatureVector{MeanBrightness: 230, DarkRatio: 0}},
		{name: "on threshold", features: FeatureVector{MeanBrightness: DefaultBrightnessThreshold}},
		{name: "very dark", features: FeatureVector{MeanBrightness: 10, DarkRatio: 0.95}, detected: true, details: "Extensive dark regions detected, possible major body damage"},
		{name: "partly dark", features: FeatureVector{MeanBrightness: 80, DarkRatio: 0.4}, detected: true, details: "Possible scratches or dents detected"},
		{name: "dim", features: FeatureVector{MeanBrightness: 95, DarkRatio: 0.05}, detected: true, details: "Low visibility, possible damage on the left side"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := AssessDamage(tt.features)
			require.Equal(t, tt.detected, got.Detected)
			if !tt.detected {
				require.Nil(t, got.Details)
				return
			}
			require.NotNil(t, got.Details)
			require.Equal(t, tt.details, *got.Details)
		})
	}
}

func TestDamageAssessorWithoutNotes(t *testing.T) {
	a := &DamageAssessor{BrightnessThreshold: 50}
	got := a.Assess(FeatureVector{MeanBrightness: 10})
	require.True(t, got.Detected)
	require.NotEmpty(t, *got.Details)
}
