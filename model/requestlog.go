package model

import (
	"context"

	"github.com/Laisky/errors/v2"

	"github.com/shinmentakezo07/shinway-sub001/common/logqueue"
)

// RequestLog is one persisted usage record, written in batches by the log
// queue consumer. Unlike the ledger it is best-effort: a lost batch is
// recoverable from transactions and upstream logs.
type RequestLog struct {
	ID             int    `json:"id"`
	RequestID      string `json:"request_id" gorm:"size:64;index"`
	OrganizationID string `json:"organization_id" gorm:"size:64;index"`
	ProjectID      string `json:"project_id" gorm:"size:64;index"`
	APIKeyID       string `json:"api_key_id" gorm:"size:64"`

	UsedProvider   string `json:"used_provider" gorm:"size:32"`
	UsedModel      string `json:"used_model" gorm:"size:128"`
	RequestedModel string `json:"requested_model" gorm:"size:128"`

	PromptTokens int     `json:"prompt_tokens"`
	OutputTokens int     `json:"output_tokens"`
	CachedTokens int     `json:"cached_tokens"`
	CostUSD      float64 `json:"cost_usd"`

	CacheHit   bool   `json:"cache_hit"`
	BYOK       bool   `json:"byok"`
	Stream     bool   `json:"stream"`
	StatusCode int    `json:"status_code"`
	ErrorType  string `json:"error_type" gorm:"size:64"`
	LatencyMS  int64  `json:"latency_ms"`

	CreatedAt int64 `json:"created_at" gorm:"bigint;index"`
}

// InsertLogBatch persists one drained queue batch. It is the logqueue.Handler
// wired at boot.
func InsertLogBatch(ctx context.Context, batch []logqueue.Envelope) error {
	if len(batch) == 0 {
		return nil
	}
	rows := make([]RequestLog, 0, len(batch))
	for i := range batch {
		rows = append(rows, logFromEnvelope(&batch[i]))
	}
	err := DB.WithContext(ctx).Create(&rows).Error
	return errors.Wrap(err, "insert log batch")
}

func logFromEnvelope(e *logqueue.Envelope) RequestLog {
	return RequestLog{
		RequestID:      e.RequestID,
		OrganizationID: e.OrganizationID,
		ProjectID:      e.ProjectID,
		APIKeyID:       e.APIKeyID,
		UsedProvider:   e.UsedProvider,
		UsedModel:      e.UsedModel,
		RequestedModel: e.RequestedModel,
		PromptTokens:   e.PromptTokens,
		OutputTokens:   e.OutputTokens,
		CachedTokens:   e.CachedTokens,
		CostUSD:        e.Cost,
		CacheHit:       e.CacheHit,
		BYOK:           e.BYOK,
		Stream:         e.Stream,
		StatusCode:     e.StatusCode,
		ErrorType:      e.ErrorType,
		LatencyMS:      e.LatencyMS,
		CreatedAt:      e.CreatedAt,
	}
}
