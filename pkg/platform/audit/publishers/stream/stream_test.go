package stream

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	id "voiceid/pkg/domain"
	audit "voiceid/pkg/platform/audit"
)

type fakeProducer struct {
	key, value []byte
	err        error
}

func (f *fakeProducer) Produce(_ context.Context, key, value []byte) error {
	f.key, f.value = key, value
	return f.err
}

func TestForward_KeysByUser(t *testing.T) {
	producer := &fakeProducer{}
	userID := id.UserID(uuid.New())

	err := New(producer).Forward(context.Background(), audit.Event{
		UserID:  userID,
		Action:  string(audit.EventCredentialRevoked),
		Subject: "SOL-4821",
	})
	require.NoError(t, err)

	assert.Equal(t, userID.String(), string(producer.key))
	var decoded map[string]any
	require.NoError(t, json.Unmarshal(producer.value, &decoded))
	assert.Equal(t, "credential_revoked", decoded["action"])
	assert.Equal(t, "SOL-4821", decoded["subject"])
}

func TestForward_WrapsProducerError(t *testing.T) {
	boom := errors.New("not enough replicas")
	err := New(&fakeProducer{err: boom}).Forward(context.Background(), audit.Event{Action: "x"})
	assert.ErrorIs(t, err, boom)
}
