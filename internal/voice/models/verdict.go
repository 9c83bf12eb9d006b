package models

import "time"

// Detection is the raw answer of the biometric provider's synthetic-audio detector.
type Detection struct {
	IsSynthetic       bool
	Score             float64
	WatermarkDetected bool
}

// InBounds reports whether the provider's score is a probability.
func (d Detection) InBounds() bool {
	return d.Score >= 0 && d.Score <= 1
}

// DetectionVerdict is the transient outcome of one audit.
type DetectionVerdict struct {
	IsSynthetic       bool      `json:"is_synthetic"`
	ConfidenceScore   float64   `json:"confidence_score"`
	WatermarkDetected bool      `json:"watermark_detected"`
	AuditedAt         time.Time `json:"audited_at"`
}

// Label is the user-facing classification of the audited asset.
func (v DetectionVerdict) Label() string {
	if v.IsSynthetic {
		return "synthetic"
	}
	return "authentic"
}
