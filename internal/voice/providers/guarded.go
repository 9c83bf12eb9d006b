// Package providers adapts external collaborators for the voice pipeline.
package providers

import (
	"context"
	"log/slog"

	"voiceid/internal/platform/metrics"
	"voiceid/internal/voice/models"
	"voiceid/internal/voice/ports"
	dErrors "voiceid/pkg/domain-errors"
	"voiceid/pkg/platform/circuit"
)

// GuardedBiometric fails fast with provider_unavailable while the breaker is
// open instead of waiting on a provider that keeps failing.
type GuardedBiometric struct {
	next    ports.BiometricProvider
	breaker *circuit.Breaker
	logger  *slog.Logger
	metrics *metrics.Metrics
}

type Option func(*GuardedBiometric)

func WithLogger(logger *slog.Logger) Option {
	return func(g *GuardedBiometric) {
		g.logger = logger
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(g *GuardedBiometric) {
		g.metrics = m
	}
}

func NewGuardedBiometric(next ports.BiometricProvider, breaker *circuit.Breaker, opts ...Option) *GuardedBiometric {
	g := &GuardedBiometric{next: next, breaker: breaker, logger: slog.Default()}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

func (g *GuardedBiometric) CreateClone(ctx context.Context, displayName string) (string, error) {
	if !g.breaker.Allow() {
		return "", g.openError()
	}
	cloneID, err := g.next.CreateClone(ctx, displayName)
	g.record(ctx, "create_clone", err)
	if err != nil {
		return "", err
	}
	return cloneID, nil
}

func (g *GuardedBiometric) Detect(ctx context.Context, payload []byte) (models.Detection, error) {
	if !g.breaker.Allow() {
		return models.Detection{}, g.openError()
	}
	detection, err := g.next.Detect(ctx, payload)
	g.record(ctx, "detect", err)
	if err != nil {
		return models.Detection{}, err
	}
	return detection, nil
}

func (g *GuardedBiometric) record(ctx context.Context, op string, err error) {
	if err == nil {
		if _, change := g.breaker.RecordSuccess(); change.Closed {
			g.metrics.SetCircuitOpen(false)
			g.logger.InfoContext(ctx, "biometric circuit closed", "breaker", g.breaker.Name())
		}
		return
	}
	// A caller giving up is not a provider fault.
	if ctx.Err() != nil && !dErrors.HasCode(err, dErrors.CodeProviderUnavailable) {
		return
	}
	if _, change := g.breaker.RecordFailure(); change.Opened {
		g.metrics.SetCircuitOpen(true)
		g.logger.WarnContext(ctx, "biometric circuit opened",
			"breaker", g.breaker.Name(),
			"op", op,
			"error", err,
		)
	}
}

func (g *GuardedBiometric) openError() error {
	return dErrors.New(dErrors.CodeProviderUnavailable, "biometric provider is temporarily unavailable")
}
