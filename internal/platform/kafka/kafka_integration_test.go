//go:build integration

package kafka

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"github.com/twmb/franz-go/pkg/kgo"

	"voiceid/internal/platform/config"
	id "voiceid/pkg/domain"
	audit "voiceid/pkg/platform/audit"
	"voiceid/pkg/platform/audit/publishers/stream"
	"voiceid/pkg/testutil/containers"
)

func TestProducer_AuditStream(t *testing.T) {
	rp := containers.GetManager().GetRedpanda(t)
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	topic := "voiceid.audit." + uuid.NewString()[:8]
	producer, err := New(ctx, config.KafkaConfig{
		Brokers:    []string{rp.Broker},
		AuditTopic: topic,
		ClientID:   "voiceid-test",
	})
	require.NoError(t, err)
	require.NotNil(t, producer)
	defer producer.Close()

	require.NoError(t, producer.EnsureTopic(ctx, 1))
	require.NoError(t, producer.EnsureTopic(ctx, 1), "existing topic is not an error")
	require.NoError(t, producer.Health(ctx))

	user := id.UserID(uuid.New())
	sink := stream.New(producer)
	require.NoError(t, sink.Forward(ctx, audit.Event{
		UserID:  user,
		Subject: "SOL-4821",
		Action:  string(audit.EventVoiceRegistered),
	}))

	consumer, err := kgo.NewClient(
		kgo.SeedBrokers(rp.Broker),
		kgo.ConsumeTopics(topic),
		kgo.ConsumeResetOffset(kgo.NewOffset().AtStart()),
	)
	require.NoError(t, err)
	defer consumer.Close()

	fetches := consumer.PollRecords(ctx, 1)
	require.Empty(t, fetches.Errors())
	records := fetches.Records()
	require.Len(t, records, 1)
	require.Equal(t, user.String(), string(records[0].Key))

	var got audit.Event
	require.NoError(t, json.Unmarshal(records[0].Value, &got))
	require.Equal(t, string(audit.EventVoiceRegistered), got.Action)
	require.Equal(t, user, got.UserID)
}

func TestNew_NoBrokersDisablesStream(t *testing.T) {
	producer, err := New(context.Background(), config.KafkaConfig{})
	require.NoError(t, err)
	require.Nil(t, producer)
}
