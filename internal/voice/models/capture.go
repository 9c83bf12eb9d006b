package models

import (
	"time"

	id "voiceid/pkg/domain"
)

// CaptureSource identifies how a CaptureSession's payload was acquired.
type CaptureSource string

const (
	CaptureSourceUploaded CaptureSource = "uploaded"
	CaptureSourceRecorded CaptureSource = "recorded"
)

func (s CaptureSource) IsValid() bool {
	return s == CaptureSourceUploaded || s == CaptureSourceRecorded
}

// CaptureSession is an in-memory audio payload pending registration or audit.
type CaptureSession struct {
	ID          id.CaptureID
	Source      CaptureSource
	Payload     []byte
	FileName    string
	Duration    time.Duration
	DeviceLabel string
	CreatedAt   time.Time
}

// DisplayName is the name sent to the biometric provider when cloning.
func (c CaptureSession) DisplayName() string {
	if c.FileName != "" {
		return c.FileName
	}
	return "voice-" + c.ID.String()[:8]
}

// CaptureSummary is the payload-free view returned to clients.
type CaptureSummary struct {
	ID          string        `json:"id"`
	Source      CaptureSource `json:"source"`
	FileName    string        `json:"file_name,omitempty"`
	SizeBytes   int           `json:"size_bytes"`
	DurationSec int           `json:"duration_seconds,omitempty"`
	DeviceLabel string        `json:"device,omitempty"`
}

func (c CaptureSession) Summary() CaptureSummary {
	return CaptureSummary{
		ID:          c.ID.String(),
		Source:      c.Source,
		FileName:    c.FileName,
		SizeBytes:   len(c.Payload),
		DurationSec: int(c.Duration / time.Second),
		DeviceLabel: c.DeviceLabel,
	}
}
