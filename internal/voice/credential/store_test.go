package credential

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/suite"
	"go.uber.org/mock/gomock"

	"voiceid/internal/voice/models"
	"voiceid/internal/voice/ports/mocks"
	id "voiceid/pkg/domain"
	dErrors "voiceid/pkg/domain-errors"
	"voiceid/pkg/platform/sentinel"
)

// Justification: optimistic overlay, rollback and monotonic feed merge are
// consistency properties of the view, independent of any persistence backend.
type StoreSuite struct {
	suite.Suite
	ctx         context.Context
	ctrl        *gomock.Controller
	persistence *mocks.MockPersistenceService
	userID      id.UserID
	store       *Store
	feed        func([]models.VoiceCredential)
}

func TestStoreSuite(t *testing.T) {
	suite.Run(t, new(StoreSuite))
}

func (s *StoreSuite) SetupTest() {
	s.ctx = context.Background()
	s.ctrl = gomock.NewController(s.T())
	s.persistence = mocks.NewMockPersistenceService(s.ctrl)
	s.userID = id.UserID(uuid.New())
	s.store = NewStore(s.persistence, s.userID)
	s.feed = nil
}

func (s *StoreSuite) TearDownTest() {
	s.ctrl.Finish()
}

func (s *StoreSuite) credential(token string, status models.CredentialStatus) models.VoiceCredential {
	return models.VoiceCredential{
		TokenID:  id.TokenID(token),
		VoiceID:  id.VoiceID("voice-" + token),
		OwnerID:  s.userID,
		Network:  "Solana",
		MintDate: time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC),
		Status:   status,
	}
}

func (s *StoreSuite) subscribe() {
	s.persistence.EXPECT().Subscribe(gomock.Any(), s.userID, gomock.Any()).
		DoAndReturn(func(_ context.Context, _ id.UserID, onChange func([]models.VoiceCredential)) (func(), error) {
			s.feed = onChange
			return func() {}, nil
		})
	s.Require().NoError(s.store.Subscribe(s.ctx))
}

func (s *StoreSuite) TestSave() {
	cred := s.credential("SOL-4821", models.CredentialStatusActive)

	s.Run("first save persists and appends", func() {
		s.persistence.EXPECT().Save(gomock.Any(), s.userID, cred).Return(nil)
		s.Require().NoError(s.store.Save(s.ctx, cred))
		s.Len(s.store.List(), 1)
	})

	s.Run("duplicate token id is a no-op", func() {
		s.Require().NoError(s.store.Save(s.ctx, cred))
		s.Len(s.store.List(), 1)
	})

	s.Run("failed save leaves the view unchanged", func() {
		other := s.credential("SOL-4822", models.CredentialStatusActive)
		s.persistence.EXPECT().Save(gomock.Any(), s.userID, other).Return(errors.New("connection reset"))
		err := s.store.Save(s.ctx, other)
		s.True(dErrors.HasCode(err, dErrors.CodeNetworkError))
		s.False(s.store.Has(other.TokenID))
	})

	s.Run("credential of another user is forbidden", func() {
		foreign := s.credential("SOL-9", models.CredentialStatusActive)
		foreign.OwnerID = id.UserID(uuid.New())
		s.True(dErrors.HasCode(s.store.Save(s.ctx, foreign), dErrors.CodeForbidden))
	})

	s.Run("incomplete credential is an invariant violation", func() {
		s.True(dErrors.HasCode(s.store.Save(s.ctx, models.VoiceCredential{OwnerID: s.userID}), dErrors.CodeInvariantViolation))
	})
}

func (s *StoreSuite) TestSetStatus_Optimistic() {
	s.subscribe()
	s.feed([]models.VoiceCredential{s.credential("SOL-4821", models.CredentialStatusActive)})
	token := id.TokenID("SOL-4821")

	s.persistence.EXPECT().SetStatus(gomock.Any(), token, models.CredentialStatusRevoked).
		DoAndReturn(func(context.Context, id.TokenID, models.CredentialStatus) error {
			seen, _ := s.store.Get(token)
			s.Equal(models.CredentialStatusRevoked, seen.Status, "view updates before persistence confirms")
			confirmed, _ := s.store.Confirmed(token)
			s.Equal(models.CredentialStatusActive, confirmed.Status)
			return nil
		})

	s.Require().NoError(s.store.SetStatus(s.ctx, token, models.CredentialStatusRevoked))
	confirmed, _ := s.store.Confirmed(token)
	s.Equal(models.CredentialStatusRevoked, confirmed.Status)

	s.Run("same status is a no-op without a persistence call", func() {
		s.Require().NoError(s.store.SetStatus(s.ctx, token, models.CredentialStatusRevoked))
	})

	s.Run("revoked never becomes active", func() {
		err := s.store.SetStatus(s.ctx, token, models.CredentialStatusActive)
		s.True(dErrors.HasCode(err, dErrors.CodeInvariantViolation))
	})
}

func (s *StoreSuite) TestSetStatus_RollbackOnFailure() {
	s.subscribe()
	s.feed([]models.VoiceCredential{s.credential("SOL-4821", models.CredentialStatusActive)})
	token := id.TokenID("SOL-4821")

	s.Run("conflict rolls back", func() {
		s.persistence.EXPECT().SetStatus(gomock.Any(), token, models.CredentialStatusRevoked).
			Return(fmt.Errorf("version mismatch: %w", sentinel.ErrConflict))

		err := s.store.SetStatus(s.ctx, token, models.CredentialStatusRevoked)
		s.True(dErrors.HasCode(err, dErrors.CodeWriteConflict))

		cred, _ := s.store.Get(token)
		s.Equal(models.CredentialStatusActive, cred.Status)
	})

	s.Run("network error rolls back", func() {
		s.persistence.EXPECT().SetStatus(gomock.Any(), token, models.CredentialStatusRevoked).
			Return(context.DeadlineExceeded)

		err := s.store.SetStatus(s.ctx, token, models.CredentialStatusRevoked)
		s.True(dErrors.HasCode(err, dErrors.CodeNetworkError))
		s.Equal(models.CredentialStatusActive, s.store.List()[0].Status)
	})

	s.Run("unknown token", func() {
		err := s.store.SetStatus(s.ctx, "SOL-0", models.CredentialStatusRevoked)
		s.True(dErrors.HasCode(err, dErrors.CodeNotFound))
	})
}

func (s *StoreSuite) TestFeedMergeIsMonotonic() {
	s.subscribe()
	s.feed([]models.VoiceCredential{
		s.credential("SOL-1", models.CredentialStatusRevoked),
		s.credential("SOL-2", models.CredentialStatusActive),
	})

	// A stale list still reporting SOL-1 active and missing SOL-2.
	s.feed([]models.VoiceCredential{s.credential("SOL-1", models.CredentialStatusActive)})

	list := s.store.List()
	s.Require().Len(list, 2, "known credentials are never dropped")
	s.Equal(models.CredentialStatusRevoked, list[0].Status)
	s.Equal(id.TokenID("SOL-2"), list[1].TokenID)

	s.Run("foreign and malformed entries are ignored", func() {
		foreign := s.credential("SOL-3", models.CredentialStatusActive)
		foreign.OwnerID = id.UserID(uuid.New())
		s.feed([]models.VoiceCredential{foreign, {OwnerID: s.userID}, s.credential("SOL-4", "paused")})
		s.Len(s.store.List(), 2)
	})

	s.Run("feed cannot rewrite immutable fields", func() {
		tampered := s.credential("SOL-2", models.CredentialStatusActive)
		tampered.Network = "Ethereum"
		s.feed([]models.VoiceCredential{tampered})
		got, _ := s.store.Get("SOL-2")
		s.Equal("Solana", got.Network)
	})
}

func (s *StoreSuite) TestSubscribeOnceAndClose() {
	unsubscribed := 0
	s.persistence.EXPECT().Subscribe(gomock.Any(), s.userID, gomock.Any()).
		Return(func() { unsubscribed++ }, nil).Times(1)

	s.Require().NoError(s.store.Subscribe(s.ctx))
	s.Require().NoError(s.store.Subscribe(s.ctx))
	s.store.Close()
	s.store.Close()
	s.Equal(1, unsubscribed)
}

func (s *StoreSuite) TestSubscribeFailure() {
	s.persistence.EXPECT().Subscribe(gomock.Any(), s.userID, gomock.Any()).
		Return(nil, errors.New("dial tcp: refused"))
	s.True(dErrors.HasCode(s.store.Subscribe(s.ctx), dErrors.CodeNetworkError))
}

func (s *StoreSuite) TestConcurrentSetStatusIsSerialized() {
	s.subscribe()
	s.feed([]models.VoiceCredential{s.credential("SOL-4821", models.CredentialStatusActive)})
	token := id.TokenID("SOL-4821")

	// Only the first caller reaches persistence; the rest observe the
	// confirmed revoked status under the token lock and return early.
	s.persistence.EXPECT().SetStatus(gomock.Any(), token, models.CredentialStatusRevoked).Return(nil).Times(1)

	var wg sync.WaitGroup
	for range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			s.NoError(s.store.SetStatus(s.ctx, token, models.CredentialStatusRevoked))
		}()
	}
	wg.Wait()

	cred, _ := s.store.Get(token)
	s.Equal(models.CredentialStatusRevoked, cred.Status)
}
