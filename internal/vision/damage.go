package vision

// DamageAssessment flags possible damage. Details is non-nil iff Detected.
type DamageAssessment struct {
	Detected bool    `json:"detected"`
	Details  *string `json:"details,omitempty"`
}

// DefaultBrightnessThreshold is the mean luminance below which damage is flagged.
const DefaultBrightnessThreshold = 100.0

// DamageNote is one human-readable note, used when the dark ratio reaches MinDarkRatio.
type DamageNote struct {
	MinDarkRatio float64
	Text         string
}

// DamageAssessor flags images whose mean brightness falls below a threshold,
// reading dark or obscured regions as a sign of damage.
type DamageAssessor struct {
	BrightnessThreshold float64
	// Notes are checked in order; the first whose MinDarkRatio is met wins.
	Notes []DamageNote
}

// NewDamageAssessor returns an assessor with the standard note buckets.
func NewDamageAssessor(brightnessThreshold float64) *DamageAssessor {
	return &DamageAssessor{
		BrightnessThreshold: brightnessThreshold,
		Notes: []DamageNote{
			{MinDarkRatio: 0.6, Text: "Extensive dark regions detected, possible major body damage"},
			{MinDarkRatio: 0.3, Text: "Possible scratches or dents detected"},
			{MinDarkRatio: 0, Text: "Low visibility, possible damage on the left side"},
		},
	}
}

// AssessDamage runs the assessor with DefaultBrightnessThreshold.
func AssessDamage(features FeatureVector) DamageAssessment {
	return NewDamageAssessor(DefaultBrightnessThreshold).Assess(features)
}

// Assess returns the damage verdict for features.
func (a *DamageAssessor) Assess(features FeatureVector) DamageAssessment {
	if features.MeanBrightness >= a.BrightnessThreshold {
		return DamageAssessment{}
	}
	note := "Possible damage detected"
	for _, n := range a.Notes {
		if features.DarkRatio >= n.MinDarkRatio {
			note = n.Text
			break
		}
	}
	return DamageAssessment{Detected: true, Details: &note}
}
