package logqueue

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shinmentakezo07/shinway-sub001/common/redis"
)

func setupRedis(t *testing.T) {
	t.Helper()
	server := miniredis.RunT(t)
	redis.SetForTesting(goredis.NewClient(&goredis.Options{Addr: server.Addr()}))
	t.Cleanup(func() { redis.SetForTesting(nil) })
}

func TestPublishAndDrain(t *testing.T) {
	setupRedis(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		Publish(ctx, &Envelope{
			RequestID:    "req-1",
			UsedProvider: "groq",
			UsedModel:    "llama-3.3-70b",
			PromptTokens: 10,
			OutputTokens: 5,
		})
	}

	var drained []Envelope
	n := DrainOnce(ctx, func(ctx context.Context, batch []Envelope) error {
		drained = append(drained, batch...)
		return nil
	})
	assert.Equal(t, 3, n)
	require.Len(t, drained, 3)
	assert.Equal(t, "groq", drained[0].UsedProvider)

	// Queue is now empty.
	assert.Zero(t, DrainOnce(ctx, func(context.Context, []Envelope) error { return nil }))
}

func TestDrainBatchCap(t *testing.T) {
	setupRedis(t)
	ctx := context.Background()

	for i := 0; i < 15; i++ {
		Publish(ctx, &Envelope{RequestID: "r"})
	}

	count := func(context.Context, []Envelope) error { return nil }
	assert.Equal(t, 10, DrainOnce(ctx, count))
	assert.Equal(t, 5, DrainOnce(ctx, count))
}

func TestPublishWithoutRedisIsNoop(t *testing.T) {
	redis.SetForTesting(nil)
	Publish(context.Background(), &Envelope{RequestID: "r"})
	assert.Zero(t, DrainOnce(context.Background(), func(context.Context, []Envelope) error { return nil }))
}
