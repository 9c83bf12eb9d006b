package providers

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/suite"
	"go.uber.org/mock/gomock"

	"voiceid/internal/platform/metrics"
	"voiceid/internal/voice/models"
	"voiceid/internal/voice/ports/mocks"
	dErrors "voiceid/pkg/domain-errors"
	"voiceid/pkg/platform/circuit"
)

type GuardedBiometricSuite struct {
	suite.Suite
	ctx     context.Context
	ctrl    *gomock.Controller
	next    *mocks.MockBiometricProvider
	now     time.Time
	metrics *metrics.Metrics
	guarded *GuardedBiometric
}

func TestGuardedBiometricSuite(t *testing.T) {
	suite.Run(t, new(GuardedBiometricSuite))
}

func (s *GuardedBiometricSuite) SetupTest() {
	s.ctx = context.Background()
	s.ctrl = gomock.NewController(s.T())
	s.next = mocks.NewMockBiometricProvider(s.ctrl)
	s.now = time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)
	s.metrics = metrics.NewWithRegisterer(prometheus.NewRegistry())
	breaker := circuit.New("biometric",
		circuit.WithFailureThreshold(2),
		circuit.WithSuccessThreshold(1),
		circuit.WithCooldown(time.Minute),
		circuit.WithClock(func() time.Time { return s.now }),
	)
	s.guarded = NewGuardedBiometric(s.next, breaker, WithMetrics(s.metrics))
}

func (s *GuardedBiometricSuite) TearDownTest() {
	s.ctrl.Finish()
}

func (s *GuardedBiometricSuite) TestOpensAndRecovers() {
	s.next.EXPECT().CreateClone(gomock.Any(), "a").Return("", errors.New("down")).Times(2)

	for range 2 {
		_, err := s.guarded.CreateClone(s.ctx, "a")
		s.Error(err)
	}
	s.Equal(1.0, testutil.ToFloat64(s.metrics.BiometricCircuitOpen))

	s.Run("open circuit fails fast", func() {
		_, err := s.guarded.Detect(s.ctx, []byte("clip"))
		s.True(dErrors.HasCode(err, dErrors.CodeProviderUnavailable))
	})

	s.Run("probe after cooldown closes it", func() {
		s.now = s.now.Add(2 * time.Minute)
		s.next.EXPECT().Detect(gomock.Any(), gomock.Any()).Return(models.Detection{Score: 0.3}, nil)
		detection, err := s.guarded.Detect(s.ctx, []byte("clip"))
		s.Require().NoError(err)
		s.Equal(0.3, detection.Score)
		s.Equal(0.0, testutil.ToFloat64(s.metrics.BiometricCircuitOpen))
	})
}

func (s *GuardedBiometricSuite) TestCallerCancellationIsNotAFault() {
	ctx, cancel := context.WithCancel(s.ctx)
	cancel()
	s.next.EXPECT().CreateClone(gomock.Any(), gomock.Any()).Return("", context.Canceled).Times(3)

	for range 3 {
		_, err := s.guarded.CreateClone(ctx, "a")
		s.ErrorIs(err, context.Canceled)
	}
	s.Equal(0.0, testutil.ToFloat64(s.metrics.BiometricCircuitOpen))
}
