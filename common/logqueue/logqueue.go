// Package logqueue is the async usage-log pipeline: request handlers LPUSH
// envelopes onto a redis list and a background consumer drains them in small
// batches into persistent storage. Producers never block the request path.
package logqueue

import (
	"context"
	"encoding/json"
	"time"

	"github.com/Laisky/errors/v2"
	"github.com/Laisky/zap"
	goredis "github.com/go-redis/redis/v8"

	"github.com/shinmentakezo07/shinway-sub001/common/config"
	"github.com/shinmentakezo07/shinway-sub001/common/logger"
	"github.com/shinmentakezo07/shinway-sub001/common/redis"
)

// batchSize caps how many envelopes one consumer pass pops.
const batchSize = 10

// pollInterval is the consumer sleep when the queue is empty.
const pollInterval = time.Second

// Envelope is one usage log record in flight.
type Envelope struct {
	RequestID      string  `json:"request_id"`
	OrganizationID string  `json:"organization_id"`
	ProjectID      string  `json:"project_id"`
	APIKeyID       string  `json:"api_key_id,omitempty"`
	UsedProvider   string  `json:"used_provider"`
	UsedModel      string  `json:"used_model"`
	RequestedModel string  `json:"requested_model"`
	PromptTokens   int     `json:"prompt_tokens"`
	OutputTokens   int     `json:"output_tokens"`
	CachedTokens   int     `json:"cached_tokens,omitempty"`
	Cost           float64 `json:"cost"`
	CacheHit       bool    `json:"cache_hit,omitempty"`
	BYOK           bool    `json:"byok,omitempty"`
	Stream         bool    `json:"stream,omitempty"`
	StatusCode     int     `json:"status_code"`
	ErrorType      string  `json:"error_type,omitempty"`
	LatencyMS      int64   `json:"latency_ms"`
	CreatedAt      int64   `json:"created_at"`
}

// QueueName is the env-scoped redis list.
func QueueName() string {
	return config.LogQueueName()
}

// Publish enqueues one envelope. Failures are logged and dropped; envelopes
// are derivable from the transaction ledger, losing one is acceptable.
func Publish(ctx context.Context, envelope *Envelope) {
	if !redis.Enabled() {
		return
	}
	payload, err := json.Marshal(envelope)
	if err != nil {
		logger.Logger.Warn("marshal log envelope", zap.Error(err))
		return
	}
	if err := redis.Client().LPush(ctx, QueueName(), payload).Err(); err != nil {
		logger.Logger.Warn("enqueue log envelope",
			zap.String("request_id", envelope.RequestID), zap.Error(err))
	}
}

// Depth returns how many envelopes are waiting in the queue.
func Depth(ctx context.Context) (int64, error) {
	if !redis.Enabled() {
		return 0, nil
	}
	n, err := redis.Client().LLen(ctx, QueueName()).Result()
	if err != nil {
		return 0, errors.Wrap(err, "measure log queue depth")
	}
	return n, nil
}

// Handler persists one drained batch.
type Handler func(ctx context.Context, batch []Envelope) error

// Consume drains the queue until ctx is cancelled, then performs one final
// drain so shutdown flushes whatever is left.
func Consume(ctx context.Context, handle Handler) {
	if !redis.Enabled() {
		return
	}
	for {
		select {
		case <-ctx.Done():
			flushCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			DrainOnce(flushCtx, handle)
			cancel()
			return
		default:
		}
		if n := DrainOnce(ctx, handle); n == 0 {
			select {
			case <-ctx.Done():
			case <-time.After(pollInterval):
			}
		}
	}
}

// DrainOnce pops and handles at most one batch, returning how many envelopes
// it processed.
func DrainOnce(ctx context.Context, handle Handler) int {
	if !redis.Enabled() {
		return 0
	}
	payloads, err := redis.Client().LPopCount(ctx, QueueName(), batchSize).Result()
	if err != nil {
		if err != goredis.Nil && ctx.Err() == nil {
			logger.Logger.Warn("pop log envelopes", zap.Error(err))
		}
		return 0
	}

	batch := make([]Envelope, 0, len(payloads))
	for _, payload := range payloads {
		var envelope Envelope
		if err := json.Unmarshal([]byte(payload), &envelope); err != nil {
			logger.Logger.Warn("skip malformed log envelope", zap.Error(err))
			continue
		}
		batch = append(batch, envelope)
	}
	if len(batch) == 0 {
		return 0
	}
	if err := handle(ctx, batch); err != nil {
		// The batch is lost; acceptable per the queue contract.
		logger.Logger.Error("persist log batch", zap.Int("size", len(batch)), zap.Error(err))
	}
	return len(batch)
}
