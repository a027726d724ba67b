// Package controller owns the public edge handlers: the failover relay loop,
// the model catalog, the Stripe webhook, and health.
package controller

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	gmw "github.com/Laisky/gin-middlewares/v7"
	"github.com/Laisky/zap"
	"github.com/gin-gonic/gin"

	"github.com/shinmentakezo07/shinway-sub001/common/config"
	"github.com/shinmentakezo07/shinway-sub001/common/ctxkey"
	"github.com/shinmentakezo07/shinway-sub001/common/logqueue"
	"github.com/shinmentakezo07/shinway-sub001/middleware"
	"github.com/shinmentakezo07/shinway-sub001/model"
	"github.com/shinmentakezo07/shinway-sub001/monitor"
	"github.com/shinmentakezo07/shinway-sub001/relay/billing"
	relaycontroller "github.com/shinmentakezo07/shinway-sub001/relay/controller"
	"github.com/shinmentakezo07/shinway-sub001/relay/meta"
	relaymodel "github.com/shinmentakezo07/shinway-sub001/relay/model"
	"github.com/shinmentakezo07/shinway-sub001/relay/providerid"
	"github.com/shinmentakezo07/shinway-sub001/relay/registry"
	"github.com/shinmentakezo07/shinway-sub001/relay/relaymode"
)

// Relay drives one request through the candidate list: translate, send,
// translate back, and on eligible failures advance to the next candidate.
// Once any canonical byte reached the client, failover is over.
func Relay(c *gin.Context) {
	lg := gmw.GetLogger(c)
	started := time.Now()

	candidates := middleware.CandidatesFromContext(c)
	if len(candidates) == 0 {
		middleware.AbortWithError(c, relaymodel.NewError(http.StatusServiceUnavailable,
			relaymodel.ErrorTypeNoEligible,
			fmt.Errorf("no routing candidates"), "no_eligible_provider"))
		return
	}
	if c.GetBool(ctxkey.NoFallback) {
		candidates = candidates[:1]
	}

	var lastErr *relaymodel.ErrorWithStatusCode
	for i := range candidates {
		cand := &candidates[i]
		c.Set(ctxkey.CandidateIndex, i)

		bizErr, cred := attemptCandidate(c, cand)
		if bizErr == nil {
			finishSuccess(c, cand, started)
			return
		}
		lastErr = bizErr

		if c.GetBool(ctxkey.FirstByteSent) {
			// Mid-stream failure: terminate the stream in-band.
			lg.Warn("stream failed after first byte",
				zap.String("provider", string(cand.Mapping.Provider)),
				zap.String("error", bizErr.String()))
			writeTerminalError(c, bizErr)
			finishFailure(c, cand, bizErr, started)
			return
		}

		if bizErr.IsAuthLike() {
			if cand.BYOK {
				// The organization's own key failed; that is their error to see.
				break
			}
			if cred != nil {
				if err := model.DegradeCredential(cred.ID); err != nil {
					lg.Warn("degrade credential", zap.Error(err))
				}
				monitor.CredentialDegraded(string(cand.Mapping.Provider))
			}
			continue
		}
		if !bizErr.IsTransient() {
			break
		}
		lg.Info("attempt failed, trying next candidate",
			zap.String("provider", string(cand.Mapping.Provider)),
			zap.Int("status", bizErr.StatusCode))
	}

	finishFailure(c, nil, lastErr, started)
	lastErr.Error.Message = fmt.Sprintf("%s (request id: %s)",
		lastErr.Error.Message, c.GetString(ctxkey.RequestId))
	middleware.AbortWithError(c, lastErr)
}

// attemptCandidate runs one candidate, including at most one in-place retry
// when the provider answers 429 with a short Retry-After hint.
func attemptCandidate(c *gin.Context, cand *registry.Candidate) (*relaymodel.ErrorWithStatusCode, *model.ProviderCredential) {
	m := buildAttemptMeta(c, cand)
	cred, credErr := applyCredential(m, cand)
	if credErr != nil {
		return credErr, nil
	}

	bizErr := runHelper(c, m)
	if bizErr != nil && bizErr.StatusCode == http.StatusTooManyRequests &&
		!c.GetBool(ctxkey.FirstByteSent) {
		if wait := time.Duration(bizErr.RetryAfter) * time.Second; wait > 0 && wait <= config.RetryAfterInPlaceMax {
			time.Sleep(wait)
			bizErr = runHelper(c, m)
		}
	}
	return bizErr, cred
}

func runHelper(c *gin.Context, m *meta.Meta) *relaymodel.ErrorWithStatusCode {
	if m.Mode == relaymode.ImagesGenerations {
		return relaycontroller.RelayImageHelper(c, m)
	}
	return relaycontroller.RelayTextHelper(c, m)
}

// buildAttemptMeta makes a fresh Meta for one candidate so translators never
// see another attempt's provider fields.
func buildAttemptMeta(c *gin.Context, cand *registry.Candidate) *meta.Meta {
	m := meta.GetByContext(c)
	m.Provider = cand.Mapping.Provider
	m.Model = cand.Model
	m.Mapping = cand.Mapping
	m.ActualModelName = upstreamModelName(cand)
	if def, ok := providerid.Get(cand.Mapping.Provider); ok {
		m.BaseURL = def.BaseURL
	}
	return m
}

// upstreamModelName strips the "provider/" prefix from catalog model names
// that carry one (Together, Inference.net).
func upstreamModelName(cand *registry.Candidate) string {
	name := cand.Mapping.ModelName
	if def, ok := providerid.Get(cand.Mapping.Provider); ok && def.StripPrefix {
		name = strings.TrimPrefix(name, string(cand.Mapping.Provider)+"/")
	}
	return name
}

func finishSuccess(c *gin.Context, cand *registry.Candidate, started time.Time) {
	lg := gmw.GetLogger(c)

	var usage *relaymodel.Usage
	if v, ok := c.Get(ctxkey.Usage); ok {
		usage, _ = v.(*relaymodel.Usage)
	}
	cost := billing.Charge(cand.Mapping, billing.CostInput{
		Usage:          usage,
		ImageCount:     c.GetInt(ctxkey.ImageCount),
		WebSearchCalls: c.GetInt(ctxkey.WebSearchCalls),
	})

	m := metaFromContext(c)
	// BYOK attempts ride the organization's own provider account; only
	// managed-credential usage decrements credits.
	if config.Hosted && cost > 0 && m != nil && !m.BYOK {
		if err := model.ChargeUsage(m.OrganizationID, m.RequestID, cost); err != nil {
			// Delivery already succeeded; a ledger failure is an alert, not a
			// client error.
			lg.Error("charge usage", zap.Error(err), zap.String("request_id", m.RequestID))
			monitor.LedgerFailure()
		}
	}
	monitor.RelayRequest(string(cand.Mapping.Provider), cand.Model.ID, http.StatusOK, time.Since(started))
	publishEnvelope(c, cand, usage, cost, http.StatusOK, "", started)
}

func finishFailure(c *gin.Context, cand *registry.Candidate, bizErr *relaymodel.ErrorWithStatusCode, started time.Time) {
	provider := ""
	modelID := c.GetString(ctxkey.RequestModel)
	if cand != nil {
		provider = string(cand.Mapping.Provider)
		modelID = cand.Model.ID
	}
	monitor.RelayRequest(provider, modelID, bizErr.StatusCode, time.Since(started))
	publishEnvelope(c, cand, nil, 0, bizErr.StatusCode, string(bizErr.Type), started)
}

func metaFromContext(c *gin.Context) *meta.Meta {
	if v, ok := c.Get(ctxkey.Meta); ok {
		if m, ok := v.(*meta.Meta); ok {
			return m
		}
	}
	return nil
}

func publishEnvelope(c *gin.Context, cand *registry.Candidate, usage *relaymodel.Usage, cost float64, status int, errorType string, started time.Time) {
	stream := false
	if m := metaFromContext(c); m != nil {
		stream = m.IsStream
	}
	envelope := &logqueue.Envelope{
		RequestID:      c.GetString(ctxkey.RequestId),
		RequestedModel: c.GetString(ctxkey.RequestModel),
		Stream:         stream,
		CacheHit:       c.GetBool(ctxkey.CacheHit),
		Cost:           cost,
		StatusCode:     status,
		ErrorType:      errorType,
		LatencyMS:      time.Since(started).Milliseconds(),
		CreatedAt:      time.Now().UnixMilli(),
	}
	if org := middleware.OrganizationFromContext(c); org != nil {
		envelope.OrganizationID = org.ID
	}
	if project := middleware.ProjectFromContext(c); project != nil {
		envelope.ProjectID = project.ID
	}
	if key := middleware.ApiKeyFromContext(c); key != nil {
		envelope.APIKeyID = key.ID
	}
	if cand != nil {
		envelope.UsedProvider = string(cand.Mapping.Provider)
		envelope.UsedModel = cand.Mapping.ModelName
		envelope.BYOK = cand.BYOK
	}
	if usage != nil {
		envelope.PromptTokens = usage.PromptTokens
		envelope.OutputTokens = usage.CompletionTokens
		envelope.CachedTokens = usage.CachedPromptTokens
	}
	logqueue.Publish(gmw.Ctx(c), envelope)
}

// writeTerminalError emits the in-band error chunk for failures after the
// first byte, followed by the stream terminator.
func writeTerminalError(c *gin.Context, bizErr *relaymodel.ErrorWithStatusCode) {
	chunk := map[string]any{
		"id":      "chatcmpl-" + c.GetString(ctxkey.RequestId),
		"object":  "chat.completion.chunk",
		"created": time.Now().Unix(),
		"model":   c.GetString(ctxkey.RequestModel),
		"choices": []map[string]any{
			{"index": 0, "delta": map[string]any{}, "finish_reason": "error"},
		},
		"error": bizErr.Error,
	}
	payload, err := json.Marshal(chunk)
	if err != nil {
		return
	}
	_, _ = c.Writer.WriteString("data: " + string(payload) + "\n\n")
	_, _ = c.Writer.WriteString("data: [DONE]\n\n")
	c.Writer.Flush()
}
