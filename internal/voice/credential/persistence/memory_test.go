package persistence

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/suite"

	"voiceid/internal/voice/models"
	"voiceid/internal/voice/ports"
	id "voiceid/pkg/domain"
)

type MemorySuite struct {
	backendContract
}

func TestMemorySuite(t *testing.T) {
	suite.Run(t, new(MemorySuite))
}

func (s *MemorySuite) SetupTest() {
	s.ctx = context.Background()
	s.newBackend = func() ports.PersistenceService { return NewMemory() }
}

func (s *MemorySuite) TestUnsubscribeStopsDelivery() {
	backend := NewMemory()
	owner := id.UserID(uuid.New())
	feed := &feedRecorder{}

	unsubscribe, err := backend.Subscribe(s.ctx, owner, feed.record)
	s.Require().NoError(err)
	unsubscribe()
	unsubscribe()

	s.Require().NoError(backend.Save(s.ctx, owner, newCredential(owner, "SOL-2001")))
	s.Equal(1, feed.count())
}

func (s *MemorySuite) TestListReturnsCopy() {
	backend := NewMemory()
	owner := id.UserID(uuid.New())
	s.Require().NoError(backend.Save(s.ctx, owner, newCredential(owner, "SOL-3001")))

	list, err := backend.List(s.ctx, owner)
	s.Require().NoError(err)
	list[0].Status = models.CredentialStatusRevoked

	again, err := backend.List(s.ctx, owner)
	s.Require().NoError(err)
	s.Equal(models.CredentialStatusActive, again[0].Status)
}
