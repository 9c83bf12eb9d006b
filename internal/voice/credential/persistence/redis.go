package persistence

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/redis/go-redis/v9"

	"voiceid/internal/voice/models"
	id "voiceid/pkg/domain"
	"voiceid/pkg/platform/sentinel"
)

const (
	credentialKeyPrefix = "voiceid:credential:"
	userIndexKeyPrefix  = "voiceid:user:"
	changeChannelPrefix = "voiceid:credentials:changed:"
)

func credentialKey(tokenID id.TokenID) string { return credentialKeyPrefix + tokenID.String() }
func userIndexKey(userID id.UserID) string { return userIndexKeyPrefix + userID.String() + ":credentials" }
func changeChannel(userID id.UserID) string { return changeChannelPrefix + userID.String() }

// Redis stores each credential as JSON under its token key with a per-user
// index list. Writes run in WATCH/MULTI transactions and publish a change
// notice on the owner's channel; subscribers reload the full list on notice.
type Redis struct {
	client *redis.Client
	logger *slog.Logger
}

type RedisOption func(*Redis)

func WithRedisLogger(logger *slog.Logger) RedisOption {
	return func(r *Redis) {
		r.logger = logger
	}
}

func NewRedis(client *redis.Client, opts ...RedisOption) *Redis {
	r := &Redis{client: client, logger: slog.Default()}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

func (r *Redis) Save(ctx context.Context, userID id.UserID, credential models.VoiceCredential) error {
	credential.OwnerID = userID
	payload, err := json.Marshal(credential)
	if err != nil {
		return fmt.Errorf("marshal credential: %w", err)
	}
	key := credentialKey(credential.TokenID)

	var duplicate bool
	err = r.client.Watch(ctx, func(tx *redis.Tx) error {
		existing, err := loadCredential(ctx, tx, key)
		if err != nil && !errors.Is(err, sentinel.ErrNotFound) {
			return err
		}
		if err == nil {
			if !sameRecord(existing, userID, credential) {
				return fmt.Errorf("token %s already registered: %w", credential.TokenID, sentinel.ErrConflict)
			}
			duplicate = true
			return nil
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, payload, 0)
			pipe.RPush(ctx, userIndexKey(userID), credential.TokenID.String())
			return nil
		})
		return err
	}, key)
	if err != nil {
		return translateRedisError(err)
	}
	if duplicate {
		return nil
	}
	r.publish(ctx, userID)
	return nil
}

func (r *Redis) SetStatus(ctx context.Context, tokenID id.TokenID, status models.CredentialStatus) error {
	key := credentialKey(tokenID)
	var owner id.UserID
	var changed bool
	err := r.client.Watch(ctx, func(tx *redis.Tx) error {
		credential, err := loadCredential(ctx, tx, key)
		if err != nil {
			return err
		}
		if err := credential.CanTransitionTo(status); err != nil {
			return fmt.Errorf("token %s: %v: %w", tokenID, err, sentinel.ErrInvalidState)
		}
		owner = credential.OwnerID
		if credential.Status == status {
			return nil
		}
		credential.Status = status
		payload, err := json.Marshal(credential)
		if err != nil {
			return fmt.Errorf("marshal credential: %w", err)
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, payload, 0)
			return nil
		})
		changed = err == nil
		return err
	}, key)
	if err != nil {
		return translateRedisError(err)
	}
	if changed {
		r.publish(ctx, owner)
	}
	return nil
}

// Subscribe confirms the channel subscription, delivers the current list, and
// then reloads and delivers on every change notice until unsubscribed.
func (r *Redis) Subscribe(ctx context.Context, userID id.UserID, onChange func([]models.VoiceCredential)) (func(), error) {
	subCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	pubsub := r.client.Subscribe(subCtx, changeChannel(userID))
	if _, err := pubsub.Receive(ctx); err != nil {
		cancel()
		_ = pubsub.Close()
		return nil, fmt.Errorf("subscribe to credential changes: %w", err)
	}

	list, err := r.List(ctx, userID)
	if err != nil {
		cancel()
		_ = pubsub.Close()
		return nil, err
	}
	onChange(list)

	done := make(chan struct{})
	go func() {
		defer close(done)
		for range pubsub.Channel() {
			list, err := r.List(subCtx, userID)
			if err != nil {
				if subCtx.Err() == nil {
					r.logger.WarnContext(subCtx, "failed to reload credentials after change notice",
						"user_id", userID.String(), "error", err)
				}
				continue
			}
			onChange(list)
		}
	}()

	var once sync.Once
	return func() {
		once.Do(func() {
			cancel()
			_ = pubsub.Close()
			<-done
		})
	}, nil
}

// List loads the user's credentials in insertion order.
func (r *Redis) List(ctx context.Context, userID id.UserID) ([]models.VoiceCredential, error) {
	tokens, err := r.client.LRange(ctx, userIndexKey(userID), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("load credential index: %w", err)
	}
	if len(tokens) == 0 {
		return []models.VoiceCredential{}, nil
	}
	keys := make([]string, len(tokens))
	for i, token := range tokens {
		keys[i] = credentialKeyPrefix + token
	}
	values, err := r.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("load credentials: %w", err)
	}
	out := make([]models.VoiceCredential, 0, len(values))
	for i, v := range values {
		raw, ok := v.(string)
		if !ok {
			continue
		}
		var credential models.VoiceCredential
		if err := json.Unmarshal([]byte(raw), &credential); err != nil {
			r.logger.WarnContext(ctx, "skipping unreadable credential", "key", keys[i], "error", err)
			continue
		}
		out = append(out, credential)
	}
	return out, nil
}

func (r *Redis) publish(ctx context.Context, userID id.UserID) {
	// Subscribers reload on notice; a lost notice is repaired by the next one.
	if err := r.client.Publish(ctx, changeChannel(userID), "changed").Err(); err != nil {
		r.logger.WarnContext(ctx, "failed to publish credential change",
			"user_id", userID.String(), "error", err)
	}
}

func loadCredential(ctx context.Context, tx *redis.Tx, key string) (models.VoiceCredential, error) {
	raw, err := tx.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return models.VoiceCredential{}, fmt.Errorf("%s: %w", key, sentinel.ErrNotFound)
	}
	if err != nil {
		return models.VoiceCredential{}, err
	}
	var credential models.VoiceCredential
	if err := json.Unmarshal(raw, &credential); err != nil {
		return models.VoiceCredential{}, fmt.Errorf("decode %s: %w", key, err)
	}
	return credential, nil
}

func translateRedisError(err error) error {
	if errors.Is(err, redis.TxFailedErr) {
		return fmt.Errorf("concurrent credential update: %w", sentinel.ErrConflict)
	}
	return err
}
