package persistence

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/suite"

	"voiceid/internal/voice/models"
	"voiceid/internal/voice/ports"
	id "voiceid/pkg/domain"
	"voiceid/pkg/platform/sentinel"
)

// backendContract holds the behavior every backend shares. Backend suites embed
// it and set newBackend plus an optional settle func for asynchronous feeds.
type backendContract struct {
	suite.Suite
	ctx        context.Context
	newBackend func() ports.PersistenceService
	settle     func()
}

type feedRecorder struct {
	mu    sync.Mutex
	lists [][]models.VoiceCredential
}

func (f *feedRecorder) record(list []models.VoiceCredential) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lists = append(f.lists, list)
}

func (f *feedRecorder) last() []models.VoiceCredential {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.lists) == 0 {
		return nil
	}
	return f.lists[len(f.lists)-1]
}

func (f *feedRecorder) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.lists)
}

func newCredential(owner id.UserID, token string) models.VoiceCredential {
	return models.VoiceCredential{
		TokenID:         id.TokenID(token),
		VoiceID:         id.VoiceID("voice-" + token),
		OwnerID:         owner,
		SignerAddress:   id.SignerAddress("0xSIGNER"),
		FingerprintHash: "a1b2c3",
		ContractAddress: "VoiceReg1stry",
		TransactionHash: "tx-" + token,
		Network:         "Solana",
		MintDate:        time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC),
		Status:          models.CredentialStatusActive,
	}
}

func (s *backendContract) waitFor(cond func() bool) {
	if s.settle == nil {
		s.Require().True(cond())
		return
	}
	s.Require().Eventually(func() bool {
		s.settle()
		return cond()
	}, 5*time.Second, 20*time.Millisecond)
}

func (s *backendContract) TestSaveAndFeed() {
	backend := s.newBackend()
	owner := id.UserID(uuid.New())
	feed := &feedRecorder{}

	unsubscribe, err := backend.Subscribe(s.ctx, owner, feed.record)
	s.Require().NoError(err)
	defer unsubscribe()
	s.Require().GreaterOrEqual(feed.count(), 1, "initial list is delivered on subscribe")
	s.Empty(feed.last())

	s.Require().NoError(backend.Save(s.ctx, owner, newCredential(owner, "SOL-1001")))
	s.Require().NoError(backend.Save(s.ctx, owner, newCredential(owner, "SOL-1002")))

	s.waitFor(func() bool { return len(feed.last()) == 2 })
	list := feed.last()
	s.Equal(id.TokenID("SOL-1001"), list[0].TokenID)
	s.Equal(id.TokenID("SOL-1002"), list[1].TokenID)
	s.Equal(owner, list[0].OwnerID)
}

func (s *backendContract) TestSaveDuplicate() {
	backend := s.newBackend()
	owner := id.UserID(uuid.New())
	cred := newCredential(owner, "SOL-"+uuid.NewString()[:8])

	s.Require().NoError(backend.Save(s.ctx, owner, cred))

	s.Run("same record is a no-op", func() {
		s.NoError(backend.Save(s.ctx, owner, cred))
	})

	s.Run("different record under the same token conflicts", func() {
		other := cred
		other.VoiceID = "voice-other"
		err := backend.Save(s.ctx, owner, other)
		s.ErrorIs(err, sentinel.ErrConflict)
	})
}

func (s *backendContract) TestSetStatus() {
	backend := s.newBackend()
	owner := id.UserID(uuid.New())
	cred := newCredential(owner, "SOL-"+uuid.NewString()[:8])
	s.Require().NoError(backend.Save(s.ctx, owner, cred))

	feed := &feedRecorder{}
	unsubscribe, err := backend.Subscribe(s.ctx, owner, feed.record)
	s.Require().NoError(err)
	defer unsubscribe()

	s.Run("unknown token", func() {
		err := backend.SetStatus(s.ctx, "SOL-missing", models.CredentialStatusRevoked)
		s.ErrorIs(err, sentinel.ErrNotFound)
	})

	s.Run("revoke is delivered", func() {
		s.Require().NoError(backend.SetStatus(s.ctx, cred.TokenID, models.CredentialStatusRevoked))
		s.waitFor(func() bool {
			list := feed.last()
			return len(list) == 1 && list[0].IsRevoked()
		})
	})

	s.Run("repeat revoke is a no-op", func() {
		s.NoError(backend.SetStatus(s.ctx, cred.TokenID, models.CredentialStatusRevoked))
	})

	s.Run("reactivation is refused", func() {
		err := backend.SetStatus(s.ctx, cred.TokenID, models.CredentialStatusActive)
		s.ErrorIs(err, sentinel.ErrInvalidState)
	})
}

func (s *backendContract) TestFeedIsPerUser() {
	backend := s.newBackend()
	alice := id.UserID(uuid.New())
	bob := id.UserID(uuid.New())

	aliceFeed := &feedRecorder{}
	unsubscribe, err := backend.Subscribe(s.ctx, alice, aliceFeed.record)
	s.Require().NoError(err)
	defer unsubscribe()

	s.Require().NoError(backend.Save(s.ctx, bob, newCredential(bob, "SOL-"+uuid.NewString()[:8])))
	s.Require().NoError(backend.Save(s.ctx, alice, newCredential(alice, "SOL-"+uuid.NewString()[:8])))

	s.waitFor(func() bool { return len(aliceFeed.last()) == 1 })
	s.Equal(alice, aliceFeed.last()[0].OwnerID)
}
