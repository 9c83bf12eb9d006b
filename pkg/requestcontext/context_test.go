package requestcontext

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"

	id "voiceid/pkg/domain"
)

func TestAccessors(t *testing.T) {
	ctx := context.Background()

	t.Run("zero values when unset", func(t *testing.T) {
		assert.True(t, UserID(ctx).IsNil())
		assert.Empty(t, RequestID(ctx))
		assert.Empty(t, ClientIP(ctx))
		assert.WithinDuration(t, time.Now(), Now(ctx), time.Second)
	})

	t.Run("round trip", func(t *testing.T) {
		userID := id.UserID(uuid.New())
		at := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)
		ctx := WithUserID(ctx, userID)
		ctx = WithRequestID(ctx, "req-1")
		ctx = WithClientMetadata(ctx, "10.0.0.1", "curl/8")
		ctx = WithTime(ctx, at)

		assert.Equal(t, userID, UserID(ctx))
		assert.Equal(t, "req-1", RequestID(ctx))
		assert.Equal(t, "10.0.0.1", ClientIP(ctx))
		assert.Equal(t, "curl/8", UserAgent(ctx))
		assert.Equal(t, at, Now(ctx))
	})
}
