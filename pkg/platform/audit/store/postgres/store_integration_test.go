//go:build integration

package postgres

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/suite"

	id "voiceid/pkg/domain"
	audit "voiceid/pkg/platform/audit"
	"voiceid/pkg/testutil/containers"
)

type StoreSuite struct {
	suite.Suite
	pg    *containers.PostgresContainer
	store *Store
}

func TestStoreSuite(t *testing.T) {
	suite.Run(t, new(StoreSuite))
}

func (s *StoreSuite) SetupSuite() {
	s.pg = containers.GetManager().GetPostgres(s.T())
	s.store = New(s.pg.DB)
	s.Require().NoError(s.store.EnsureSchema(context.Background()))
}

func (s *StoreSuite) SetupTest() {
	s.Require().NoError(s.pg.Truncate(context.Background(), "voice_audit_events"))
}

func (s *StoreSuite) TestAppendAndListByUser() {
	ctx := context.Background()
	user := id.UserID(uuid.New())
	other := id.UserID(uuid.New())
	at := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

	s.Require().NoError(s.store.Append(ctx, audit.Event{
		Timestamp: at,
		UserID:    user,
		Subject:   "SOL-4821",
		Action:    string(audit.EventVoiceRegistered),
		ActorID:   "0xA11CE",
	}))
	s.Require().NoError(s.store.Append(ctx, audit.Event{
		Timestamp: at.Add(time.Minute),
		UserID:    user,
		Subject:   "SOL-4821",
		Action:    string(audit.EventCredentialRevoked),
	}))
	s.Require().NoError(s.store.Append(ctx, audit.Event{
		Timestamp: at,
		UserID:    other,
		Action:    string(audit.EventAudioAudited),
	}))

	events, err := s.store.ListByUser(ctx, user)
	s.Require().NoError(err)
	s.Require().Len(events, 2)
	s.Equal(string(audit.EventVoiceRegistered), events[0].Action)
	s.Equal(audit.CategoryCompliance, events[0].Category)
	s.Equal("0xA11CE", events[0].ActorID)
	s.Equal(user, events[0].UserID)
	s.True(at.Equal(events[0].Timestamp))
	s.Equal(string(audit.EventCredentialRevoked), events[1].Action)
}

func (s *StoreSuite) TestCategoryDerivedFromAction() {
	ctx := context.Background()
	user := id.UserID(uuid.New())
	s.Require().NoError(s.store.Append(ctx, audit.Event{
		UserID:   user,
		Category: audit.CategoryCompliance,
		Action:   string(audit.EventRegistrationFailed),
	}))

	events, err := s.store.ListByUser(ctx, user)
	s.Require().NoError(err)
	s.Require().Len(events, 1)
	s.Equal(audit.CategoryOperations, events[0].Category)
	s.False(events[0].Timestamp.IsZero())
}
