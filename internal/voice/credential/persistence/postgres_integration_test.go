//go:build integration

package persistence

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"voiceid/internal/voice/ports"
	"voiceid/pkg/platform/clock"
	"voiceid/pkg/testutil/containers"
)

type PostgresSuite struct {
	backendContract
	pg    *containers.PostgresContainer
	clock *clock.Manual
}

func TestPostgresSuite(t *testing.T) {
	suite.Run(t, new(PostgresSuite))
}

func (s *PostgresSuite) SetupSuite() {
	s.pg = containers.GetManager().GetPostgres(s.T())
	s.Require().NoError(NewPostgres(s.pg.DB, clock.NewReal()).EnsureSchema(context.Background()))
}

func (s *PostgresSuite) SetupTest() {
	s.ctx = context.Background()
	s.Require().NoError(s.pg.Truncate(s.ctx, "voice_credentials"))
	s.clock = clock.NewManual(time.Now())
	s.newBackend = func() ports.PersistenceService {
		return NewPostgres(s.pg.DB, s.clock, WithPollInterval(time.Second))
	}
	// Polls fire only when the manual clock advances.
	s.settle = func() { s.clock.Advance(time.Second) }
}
