// Package simulated provides stand-in collaborators for local runs: a
// biometric provider with a random detector and a ledger that mints
// immediately. Identifiers and hashes come from the injected capabilities.
package simulated

import (
	"context"
	"math/rand/v2"
	"sync"
	"time"

	"voiceid/internal/voice/models"
	"voiceid/internal/voice/ports"
	dErrors "voiceid/pkg/domain-errors"
	"voiceid/pkg/platform/clock"
)

// Biometric clones instantly after an optional latency and scores audio at
// random. Scores are uniformly distributed in [0,1); above 0.5 is synthetic.
type Biometric struct {
	ids     ports.IDGenerator
	sched   clock.Scheduler
	latency time.Duration

	mu  sync.Mutex
	rng *rand.Rand
}

type BiometricOption func(*Biometric)

func WithLatency(d time.Duration) BiometricOption {
	return func(b *Biometric) {
		b.latency = d
	}
}

// WithRand fixes the detector's randomness.
func WithRand(rng *rand.Rand) BiometricOption {
	return func(b *Biometric) {
		b.rng = rng
	}
}

func NewBiometric(ids ports.IDGenerator, sched clock.Scheduler, opts ...BiometricOption) *Biometric {
	b := &Biometric{
		ids:   ids,
		sched: sched,
		rng:   rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64())),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

func (b *Biometric) CreateClone(ctx context.Context, displayName string) (string, error) {
	if displayName == "" {
		return "", dErrors.New(dErrors.CodeProviderUnavailable, "clone needs a display name")
	}
	if err := b.sched.Sleep(ctx, b.latency); err != nil {
		return "", dErrors.Wrap(err, dErrors.CodeProviderUnavailable, "clone request timed out")
	}
	return b.ids.NewID("clone"), nil
}

func (b *Biometric) Detect(ctx context.Context, payload []byte) (models.Detection, error) {
	if len(payload) == 0 {
		return models.Detection{}, dErrors.New(dErrors.CodeProviderUnavailable, "nothing to analyze")
	}
	if err := b.sched.Sleep(ctx, b.latency); err != nil {
		return models.Detection{}, dErrors.Wrap(err, dErrors.CodeProviderUnavailable, "detection timed out")
	}

	b.mu.Lock()
	score := b.rng.Float64()
	watermark := b.rng.IntN(4) == 0
	b.mu.Unlock()

	return models.Detection{
		IsSynthetic:       score > 0.5,
		Score:             score,
		WatermarkDetected: watermark,
	}, nil
}
