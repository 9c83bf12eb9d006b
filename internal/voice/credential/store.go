// Package credential holds a user's voice credentials and applies lifecycle changes.
//
// Store is the session's view over the PersistenceService. It keeps two layers:
// the last state confirmed by persistence, and a pending overlay for status
// changes awaiting confirmation. Readers see the overlay (optimistic update);
// a failed write drops the overlay entry, which restores the confirmed value.
//
// Feed updates replace the list but merge monotonically: a credential already
// known as revoked is never shown as active again, and known credentials are
// never dropped because revocation is a tombstone.
package credential

import (
	"context"
	"errors"
	"hash/fnv"
	"log/slog"
	"sync"

	"voiceid/internal/voice/models"
	"voiceid/internal/voice/ports"
	id "voiceid/pkg/domain"
	dErrors "voiceid/pkg/domain-errors"
	"voiceid/pkg/platform/sentinel"
)

// numTokenShards bounds the per-token locks that serialize SetStatus.
const numTokenShards = 32

type Store struct {
	persistence ports.PersistenceService
	userID      id.UserID
	logger      *slog.Logger

	mu          sync.RWMutex
	confirmed   map[id.TokenID]models.VoiceCredential
	order       []id.TokenID
	pending     map[id.TokenID]models.CredentialStatus
	unsubscribe func()

	shards [numTokenShards]sync.Mutex
}

type Option func(*Store)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Store) {
		s.logger = logger
	}
}

func NewStore(persistence ports.PersistenceService, userID id.UserID, opts ...Option) *Store {
	s := &Store{
		persistence: persistence,
		userID:      userID,
		logger:      slog.Default(),
		confirmed:   make(map[id.TokenID]models.VoiceCredential),
		pending:     make(map[id.TokenID]models.CredentialStatus),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Subscribe registers the live feed for the store's user. Calling it again
// while subscribed is a no-op.
func (s *Store) Subscribe(ctx context.Context) error {
	s.mu.Lock()
	subscribed := s.unsubscribe != nil
	s.mu.Unlock()
	if subscribed {
		return nil
	}

	unsubscribe, err := s.persistence.Subscribe(ctx, s.userID, s.apply)
	if err != nil {
		return persistenceError(err, "failed to subscribe to credentials")
	}

	s.mu.Lock()
	if s.unsubscribe != nil {
		s.mu.Unlock()
		unsubscribe()
		return nil
	}
	s.unsubscribe = unsubscribe
	s.mu.Unlock()
	return nil
}

// Close detaches the live feed.
func (s *Store) Close() {
	s.mu.Lock()
	unsubscribe := s.unsubscribe
	s.unsubscribe = nil
	s.mu.Unlock()
	if unsubscribe != nil {
		unsubscribe()
	}
}

// Save writes a freshly minted credential. A token id already in the view is a no-op.
func (s *Store) Save(ctx context.Context, credential models.VoiceCredential) error {
	if err := credential.Validate(); err != nil {
		return err
	}
	if credential.OwnerID != s.userID {
		return dErrors.New(dErrors.CodeForbidden, "credential belongs to another user")
	}

	lock := s.lockFor(credential.TokenID)
	lock.Lock()
	defer lock.Unlock()

	if s.Has(credential.TokenID) {
		return nil
	}
	if err := s.persistence.Save(ctx, s.userID, credential); err != nil {
		if errors.Is(err, sentinel.ErrConflict) && s.Has(credential.TokenID) {
			// The feed delivered our own write first.
			return nil
		}
		return persistenceError(err, "failed to save credential")
	}

	s.mu.Lock()
	s.insertLocked(credential)
	s.mu.Unlock()
	return nil
}

// SetStatus applies a lifecycle change optimistically and rolls it back if
// persistence rejects it. Calls for the same token are serialized.
func (s *Store) SetStatus(ctx context.Context, tokenID id.TokenID, status models.CredentialStatus) error {
	lock := s.lockFor(tokenID)
	lock.Lock()
	defer lock.Unlock()

	s.mu.Lock()
	current, ok := s.confirmed[tokenID]
	if !ok {
		s.mu.Unlock()
		return dErrors.New(dErrors.CodeNotFound, "credential not found")
	}
	if current.Status == status {
		s.mu.Unlock()
		return nil
	}
	if err := current.CanTransitionTo(status); err != nil {
		s.mu.Unlock()
		return err
	}
	s.pending[tokenID] = status
	s.mu.Unlock()

	err := s.persistence.SetStatus(ctx, tokenID, status)

	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.pending, tokenID)
	if err != nil {
		s.logger.WarnContext(ctx, "credential status change rolled back",
			"user_id", s.userID.String(),
			"token_id", tokenID.String(),
			"status", status.String(),
			"error", err,
		)
		return persistenceError(err, "failed to update credential status")
	}
	confirmed := s.confirmed[tokenID]
	confirmed.Status = models.MergeStatus(confirmed.Status, status)
	s.confirmed[tokenID] = confirmed
	return nil
}

// Get returns the credential as the user currently sees it.
func (s *Store) Get(tokenID id.TokenID) (models.VoiceCredential, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	credential, ok := s.confirmed[tokenID]
	if !ok {
		return models.VoiceCredential{}, false
	}
	if status, pending := s.pending[tokenID]; pending {
		credential.Status = status
	}
	return credential, true
}

// Confirmed returns the last value persistence acknowledged, ignoring pending changes.
func (s *Store) Confirmed(tokenID id.TokenID) (models.VoiceCredential, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	credential, ok := s.confirmed[tokenID]
	return credential, ok
}

func (s *Store) Has(tokenID id.TokenID) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.confirmed[tokenID]
	return ok
}

// List returns credentials in the order they were first seen.
func (s *Store) List() []models.VoiceCredential {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]models.VoiceCredential, 0, len(s.order))
	for _, tokenID := range s.order {
		credential := s.confirmed[tokenID]
		if status, pending := s.pending[tokenID]; pending {
			credential.Status = status
		}
		out = append(out, credential)
	}
	return out
}

func (s *Store) apply(incoming []models.VoiceCredential) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, credential := range incoming {
		if credential.TokenID.IsNil() || credential.OwnerID != s.userID {
			continue
		}
		known, ok := s.confirmed[credential.TokenID]
		if !ok {
			if !credential.Status.IsValid() {
				continue
			}
			s.insertLocked(credential)
			continue
		}
		// Only status changes after mint.
		known.Status = models.MergeStatus(known.Status, credential.Status)
		s.confirmed[credential.TokenID] = known
	}
}

func (s *Store) insertLocked(credential models.VoiceCredential) {
	if _, ok := s.confirmed[credential.TokenID]; ok {
		return
	}
	s.confirmed[credential.TokenID] = credential
	s.order = append(s.order, credential.TokenID)
}

func (s *Store) lockFor(tokenID id.TokenID) *sync.Mutex {
	h := fnv.New32a()
	_, _ = h.Write([]byte(tokenID))
	return &s.shards[h.Sum32()%numTokenShards]
}

// persistenceError translates persistence failures into the write_conflict /
// network_error taxonomy. Errors that already carry one of those codes pass through.
func persistenceError(err error, msg string) error {
	switch {
	case dErrors.HasCode(err, dErrors.CodeWriteConflict), dErrors.HasCode(err, dErrors.CodeNetworkError):
		return err
	case errors.Is(err, sentinel.ErrConflict), errors.Is(err, sentinel.ErrInvalidState):
		return dErrors.Wrap(err, dErrors.CodeWriteConflict, msg)
	case errors.Is(err, sentinel.ErrNotFound):
		return dErrors.Wrap(err, dErrors.CodeNotFound, msg)
	default:
		return dErrors.Wrap(err, dErrors.CodeNetworkError, msg)
	}
}
