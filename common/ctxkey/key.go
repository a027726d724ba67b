// Package ctxkey catalogs the gin context keys shared across middleware,
// controllers, and adaptors.
package ctxkey

import "github.com/gin-gonic/gin"

const (
	// RequestId is the per-request unique identifier, set by the request-id
	// middleware and echoed in error payloads and usage envelopes.
	RequestId = "X-Shinway-Request-Id"

	// ApiKey holds the authenticated *model.ApiKey.
	// Set in: middleware/auth.TokenAuth. Read in: relay controllers, billing.
	ApiKey = "api_key"

	// Organization holds the resolved *model.Organization for the caller.
	Organization = "organization"

	// Project holds the resolved *model.Project for the caller.
	Project = "project"

	// RequestModel is the model id exactly as the client requested it
	// (possibly provider-prefixed, possibly "auto"). Never mutated; provider
	// model renames live on relay meta, not here.
	RequestModel = "request_model"

	// Candidates is the ordered []registry.Candidate produced by the
	// distributor for this request. The failover loop consumes it in order.
	Candidates = "route_candidates"

	// CandidateIndex is the index of the attempt currently being served.
	CandidateIndex = "route_candidate_index"

	// NoFallback marks that provider failover is disabled for this request
	// (x-no-fallback header, pinned provider, or NO_FALLBACK env).
	NoFallback = "no_fallback"

	// GitHubToken carries the x-github-token header for Copilot-style BYO
	// passthrough headers on OpenAI-compatible providers.
	GitHubToken = "github_token"

	// FirstByteSent flips to true once any canonical chunk reached the
	// client; failover is forbidden afterwards.
	FirstByteSent = "first_byte_sent"

	// ConvertedRequest holds the provider-native request body after
	// translation, for debug logging and adaptors that sign the payload.
	ConvertedRequest = "converted_request"

	// Meta holds the per-attempt *meta.Meta.
	Meta = "relay_meta"

	// Usage holds the final *relaymodel.Usage once the response translator
	// finished, for the ledger.
	Usage = "relay_usage"

	// CacheHit marks that the upstream reported cached prompt tokens > 0.
	CacheHit = "cache_hit"

	// WebSearchCalls counts billable web-search invocations for this request.
	WebSearchCalls = "web_search_calls"

	// ImageCount counts generated images for per-image billing.
	ImageCount = "image_count"

	// KeyRequestBody caches the raw request body bytes for reuse between the
	// normalizer and the per-attempt translators.
	KeyRequestBody = gin.BodyBytesKey

	// ClientRequestPayloadLogged dedups the inbound payload debug log.
	ClientRequestPayloadLogged = "client_request_payload_logged"

	// CustomEndpoint marks the attempt as targeting a user-configured
	// OpenAI-compatible endpoint; such requests use the SSRF-guarded client.
	CustomEndpoint = "custom_endpoint"
)
