package memory

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	id "voiceid/pkg/domain"
	audit "voiceid/pkg/platform/audit"
)

func TestBoundedStore_DropsOldest(t *testing.T) {
	ctx := context.Background()
	store := NewBoundedStore(2)
	userID := id.UserID(uuid.New())

	for _, action := range []audit.AuditEvent{audit.EventWalletConnected, audit.EventVoiceRegistered, audit.EventCredentialRevoked} {
		require.NoError(t, store.Append(ctx, audit.Event{UserID: userID, Action: string(action)}))
	}

	events, err := store.ListByUser(ctx, userID)
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.Equal(t, string(audit.EventVoiceRegistered), events[0].Action)
	assert.Equal(t, string(audit.EventCredentialRevoked), events[1].Action)
}

func TestInMemoryStore_IsolatesUsers(t *testing.T) {
	ctx := context.Background()
	store := NewInMemoryStore()
	alice := id.UserID(uuid.New())
	bob := id.UserID(uuid.New())

	require.NoError(t, store.Append(ctx, audit.Event{UserID: alice, Action: string(audit.EventAudioAudited)}))

	events, err := store.ListByUser(ctx, bob)
	require.NoError(t, err)
	assert.Empty(t, events)

	store.Clear()
	events, err = store.ListByUser(ctx, alice)
	require.NoError(t, err)
	assert.Empty(t, events)
}
