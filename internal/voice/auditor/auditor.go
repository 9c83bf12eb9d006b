// Package auditor runs one-shot synthetic-audio scans.
package auditor

import (
	"context"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"

	"voiceid/internal/platform/metrics"
	"voiceid/internal/voice/models"
	"voiceid/internal/voice/ports"
	id "voiceid/pkg/domain"
	dErrors "voiceid/pkg/domain-errors"
	"voiceid/pkg/platform/audit"
	"voiceid/pkg/platform/clock"
)

type AuditPublisher interface {
	Emit(ctx context.Context, event audit.Event) error
}

// Auditor admits one scan at a time. A scan requested while another runs is
// rejected with busy, never queued. A provider failure is an error, never a
// default verdict.
type Auditor struct {
	userID      id.UserID
	detector    ports.BiometricProvider
	sched       clock.Scheduler
	inflight    *semaphore.Weighted
	callTimeout time.Duration

	logger         *slog.Logger
	metrics        *metrics.Metrics
	auditPublisher AuditPublisher

	mu      sync.Mutex
	verdict *models.DetectionVerdict
}

type Option func(*Auditor)

func WithLogger(logger *slog.Logger) Option {
	return func(a *Auditor) {
		a.logger = logger
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(a *Auditor) {
		a.metrics = m
	}
}

func WithAuditPublisher(publisher AuditPublisher) Option {
	return func(a *Auditor) {
		a.auditPublisher = publisher
	}
}

func WithCallTimeout(d time.Duration) Option {
	return func(a *Auditor) {
		a.callTimeout = d
	}
}

func New(userID id.UserID, detector ports.BiometricProvider, sched clock.Scheduler, opts ...Option) *Auditor {
	a := &Auditor{
		userID:      userID,
		detector:    detector,
		sched:       sched,
		inflight:    semaphore.NewWeighted(1),
		callTimeout: 30 * time.Second,
		logger:      slog.Default(),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Audit scores payload. The previous verdict is discarded as soon as a scan starts.
func (a *Auditor) Audit(ctx context.Context, payload []byte) (models.DetectionVerdict, error) {
	if len(payload) == 0 {
		return models.DetectionVerdict{}, dErrors.New(dErrors.CodeInputMissing, "select audio to audit")
	}
	if !a.inflight.TryAcquire(1) {
		a.metrics.IncAudit("busy")
		return models.DetectionVerdict{}, dErrors.New(dErrors.CodeBusy, "an audit is already running")
	}
	defer a.inflight.Release(1)

	a.mu.Lock()
	a.verdict = nil
	a.mu.Unlock()

	callCtx := ctx
	if a.callTimeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, a.callTimeout)
		defer cancel()
	}

	detection, err := a.detector.Detect(callCtx, payload)
	if err != nil {
		a.metrics.IncAudit("failed")
		a.logger.ErrorContext(ctx, "audit failed", "user_id", a.userID.String(), "error", err)
		if dErrors.HasCode(err, dErrors.CodeProviderUnavailable) {
			return models.DetectionVerdict{}, err
		}
		return models.DetectionVerdict{}, dErrors.Wrap(err, dErrors.CodeProviderUnavailable, "detector unavailable")
	}
	if !detection.InBounds() {
		a.metrics.IncAudit("failed")
		a.logger.ErrorContext(ctx, "detector returned out-of-range score",
			"user_id", a.userID.String(),
			"score", detection.Score,
		)
		return models.DetectionVerdict{}, dErrors.New(dErrors.CodeProviderUnavailable, "detector returned an invalid score")
	}

	verdict := models.DetectionVerdict{
		IsSynthetic:       detection.IsSynthetic,
		ConfidenceScore:   detection.Score,
		WatermarkDetected: detection.WatermarkDetected,
		AuditedAt:         a.sched.Now(),
	}
	a.mu.Lock()
	a.verdict = &verdict
	a.mu.Unlock()

	a.metrics.IncAudit(verdict.Label())
	a.logAudit(ctx, verdict, len(payload))
	return verdict, nil
}

// Last returns the verdict of the most recent completed scan.
func (a *Auditor) Last() (models.DetectionVerdict, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.verdict == nil {
		return models.DetectionVerdict{}, false
	}
	return *a.verdict, true
}

func (a *Auditor) logAudit(ctx context.Context, verdict models.DetectionVerdict, size int) {
	a.logger.InfoContext(ctx, string(audit.EventAudioAudited),
		"event", string(audit.EventAudioAudited),
		"log_type", "audit",
		"user_id", a.userID.String(),
		"verdict", verdict.Label(),
		"score", verdict.ConfidenceScore,
		"watermark", verdict.WatermarkDetected,
		"size_bytes", size,
	)
	if a.auditPublisher == nil {
		return
	}
	_ = a.auditPublisher.Emit(ctx, audit.Event{
		UserID:   a.userID,
		Subject:  "audio:" + strconv.Itoa(size),
		Action:   string(audit.EventAudioAudited),
		Decision: verdict.Label(),
		Reason:   strconv.FormatFloat(verdict.ConfidenceScore, 'f', 2, 64),
	})
}
