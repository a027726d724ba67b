// Package openai_compatible implements the shared request/response handling
// for every provider that speaks the OpenAI chat wire format. Provider
// packages with quirks embed Adaptor and override the hooks they need.
package openai_compatible

import (
	"encoding/json"
	"io"
	"net/http"
	"strings"

	"github.com/Laisky/errors/v2"

	relaymodel "github.com/shinmentakezo07/shinway-sub001/relay/model"
)

// ChatCompletionsPath is the OpenAI-compatible chat endpoint path.
const ChatCompletionsPath = "/v1/chat/completions"

// ImagesGenerationsPath is the OpenAI-compatible image endpoint path.
const ImagesGenerationsPath = "/v1/images/generations"

// GetFullRequestURL joins the provider base URL with the request path,
// deduplicating a trailing /v1 on the base.
func GetFullRequestURL(baseURL, requestPath string) string {
	base := strings.TrimSuffix(baseURL, "/")
	if strings.HasSuffix(base, "/v1") && strings.HasPrefix(requestPath, "/v1/") {
		base = strings.TrimSuffix(base, "/v1")
	}
	return base + requestPath
}

// upstreamErrorPayload is the OpenAI-style error envelope.
type upstreamErrorPayload struct {
	Error struct {
		Message string `json:"message"`
		Type    string `json:"type"`
		Param   string `json:"param"`
		Code    any    `json:"code"`
	} `json:"error"`
}

// ErrorHandler drains a non-2xx upstream response into the canonical error
// shape, classifying it transient or permanent by status.
func ErrorHandler(resp *http.Response, provider string) *relaymodel.ErrorWithStatusCode {
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return relaymodel.WrapUpstreamError(resp.StatusCode, provider,
			errors.Wrap(err, "read upstream error body"))
	}

	message := strings.TrimSpace(string(body))
	var payload upstreamErrorPayload
	if jsonErr := json.Unmarshal(body, &payload); jsonErr == nil && payload.Error.Message != "" {
		message = payload.Error.Message
	}
	if message == "" {
		message = http.StatusText(resp.StatusCode)
	}

	relayErr := relaymodel.WrapUpstreamError(resp.StatusCode, provider, errors.New(message))
	relayErr.RetryAfter = parseRetryAfter(resp.Header.Get("Retry-After"))
	return relayErr
}

// parseRetryAfter reads a seconds-valued Retry-After header; 0 means absent
// or unparseable.
func parseRetryAfter(value string) int {
	value = strings.TrimSpace(value)
	if value == "" {
		return 0
	}
	seconds := 0
	for _, r := range value {
		if r < '0' || r > '9' {
			return 0
		}
		seconds = seconds*10 + int(r-'0')
	}
	return seconds
}
