// Package persistence implements ports.PersistenceService over memory, Redis and Postgres.
//
// Every backend streams the owner's full credential list to subscribers after
// each change (replace-the-list semantics). Errors are sentinel facts:
// ErrNotFound for unknown tokens, ErrConflict for a token id reused by a
// different record or a lost optimistic transaction, ErrInvalidState for a
// transition the lifecycle forbids. Anything else is a transport failure.
package persistence

import (
	"context"
	"fmt"
	"sync"

	"voiceid/internal/voice/models"
	id "voiceid/pkg/domain"
	"voiceid/pkg/platform/sentinel"
)

// Memory keeps credentials in process. Subscribers are called synchronously
// after each write, outside the store lock.
type Memory struct {
	mu      sync.RWMutex
	records map[id.TokenID]models.VoiceCredential
	byUser  map[id.UserID][]id.TokenID
	subs    map[id.UserID]map[int]func([]models.VoiceCredential)
	nextSub int
}

func NewMemory() *Memory {
	return &Memory{
		records: make(map[id.TokenID]models.VoiceCredential),
		byUser:  make(map[id.UserID][]id.TokenID),
		subs:    make(map[id.UserID]map[int]func([]models.VoiceCredential)),
	}
}

func (m *Memory) Save(_ context.Context, userID id.UserID, credential models.VoiceCredential) error {
	m.mu.Lock()
	if existing, ok := m.records[credential.TokenID]; ok {
		m.mu.Unlock()
		if sameRecord(existing, userID, credential) {
			return nil
		}
		return fmt.Errorf("token %s already registered: %w", credential.TokenID, sentinel.ErrConflict)
	}
	credential.OwnerID = userID
	m.records[credential.TokenID] = credential
	m.byUser[userID] = append(m.byUser[userID], credential.TokenID)
	list, fns := m.snapshotLocked(userID)
	m.mu.Unlock()

	deliver(fns, list)
	return nil
}

func (m *Memory) SetStatus(_ context.Context, tokenID id.TokenID, status models.CredentialStatus) error {
	m.mu.Lock()
	credential, ok := m.records[tokenID]
	if !ok {
		m.mu.Unlock()
		return fmt.Errorf("token %s: %w", tokenID, sentinel.ErrNotFound)
	}
	if err := credential.CanTransitionTo(status); err != nil {
		m.mu.Unlock()
		return fmt.Errorf("token %s: %v: %w", tokenID, err, sentinel.ErrInvalidState)
	}
	if credential.Status == status {
		m.mu.Unlock()
		return nil
	}
	credential.Status = status
	m.records[tokenID] = credential
	list, fns := m.snapshotLocked(credential.OwnerID)
	m.mu.Unlock()

	deliver(fns, list)
	return nil
}

// Subscribe delivers the current list immediately, then after every change.
func (m *Memory) Subscribe(_ context.Context, userID id.UserID, onChange func([]models.VoiceCredential)) (func(), error) {
	m.mu.Lock()
	m.nextSub++
	subID := m.nextSub
	if m.subs[userID] == nil {
		m.subs[userID] = make(map[int]func([]models.VoiceCredential))
	}
	m.subs[userID][subID] = onChange
	list := m.listLocked(userID)
	m.mu.Unlock()

	onChange(list)

	var once sync.Once
	return func() {
		once.Do(func() {
			m.mu.Lock()
			defer m.mu.Unlock()
			delete(m.subs[userID], subID)
			if len(m.subs[userID]) == 0 {
				delete(m.subs, userID)
			}
		})
	}, nil
}

// List returns the user's credentials in insertion order.
func (m *Memory) List(_ context.Context, userID id.UserID) ([]models.VoiceCredential, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.listLocked(userID), nil
}

func (m *Memory) listLocked(userID id.UserID) []models.VoiceCredential {
	tokens := m.byUser[userID]
	out := make([]models.VoiceCredential, 0, len(tokens))
	for _, tokenID := range tokens {
		out = append(out, m.records[tokenID])
	}
	return out
}

func (m *Memory) snapshotLocked(userID id.UserID) ([]models.VoiceCredential, []func([]models.VoiceCredential)) {
	subs := m.subs[userID]
	if len(subs) == 0 {
		return nil, nil
	}
	fns := make([]func([]models.VoiceCredential), 0, len(subs))
	for _, fn := range subs {
		fns = append(fns, fn)
	}
	return m.listLocked(userID), fns
}

func deliver(fns []func([]models.VoiceCredential), list []models.VoiceCredential) {
	for _, fn := range fns {
		fn(list)
	}
}

// sameRecord reports whether a repeated save carries the record already stored.
func sameRecord(existing models.VoiceCredential, userID id.UserID, incoming models.VoiceCredential) bool {
	return existing.OwnerID == userID && existing.VoiceID == incoming.VoiceID
}
