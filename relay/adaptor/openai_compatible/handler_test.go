package openai_compatible

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	relaymodel "github.com/shinmentakezo07/shinway-sub001/relay/model"
)

func newTestContext(t *testing.T) (*gin.Context, *httptest.ResponseRecorder) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	recorder := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(recorder)
	c.Request = httptest.NewRequest(http.MethodPost, ChatCompletionsPath, nil)
	return c, recorder
}

func upstreamResponse(status int, body string) *http.Response {
	return &http.Response{
		StatusCode: status,
		Header:     http.Header{},
		Body:       io.NopCloser(strings.NewReader(body)),
	}
}

func TestGetFullRequestURL(t *testing.T) {
	assert.Equal(t, "https://api.groq.com/openai/v1/chat/completions",
		GetFullRequestURL("https://api.groq.com/openai", ChatCompletionsPath))
	// A trailing /v1 on the base is not doubled.
	assert.Equal(t, "https://example.com/v1/chat/completions",
		GetFullRequestURL("https://example.com/v1", ChatCompletionsPath))
	assert.Equal(t, "https://example.com/v1/chat/completions",
		GetFullRequestURL("https://example.com/v1/", ChatCompletionsPath))
}

func TestHandlerRenamesModelAndKeepsUsage(t *testing.T) {
	c, recorder := newTestContext(t)

	body := `{"id":"cmpl-1","object":"chat.completion","created":1,"model":"llama-3.3-70b-versatile",
		"choices":[{"index":0,"message":{"role":"assistant","content":"hi"},"finish_reason":"stop"}],
		"usage":{"prompt_tokens":10,"completion_tokens":2,"total_tokens":12}}`
	relayErr, usage := Handler(c, upstreamResponse(http.StatusOK, body), 10, "llama-3.3-70b")
	require.Nil(t, relayErr)
	require.NotNil(t, usage)
	assert.Equal(t, 12, usage.TotalTokens)

	var out relaymodel.TextResponse
	require.NoError(t, json.Unmarshal(recorder.Body.Bytes(), &out))
	assert.Equal(t, "llama-3.3-70b", out.Model)
	assert.Equal(t, "hi", out.Choices[0].Message.StringContent())
}

func TestHandlerSynthesizesUsage(t *testing.T) {
	c, _ := newTestContext(t)

	body := `{"id":"cmpl-2","object":"chat.completion","created":1,"model":"m",
		"choices":[{"index":0,"message":{"role":"assistant","content":"hello world"},"finish_reason":"stop"}]}`
	relayErr, usage := Handler(c, upstreamResponse(http.StatusOK, body), 7, "m")
	require.Nil(t, relayErr)
	require.NotNil(t, usage)
	assert.Equal(t, 7, usage.PromptTokens)
	assert.Greater(t, usage.CompletionTokens, 0)
	assert.Equal(t, usage.PromptTokens+usage.CompletionTokens, usage.TotalTokens)
}

func TestHandlerLiftsCitations(t *testing.T) {
	c, recorder := newTestContext(t)

	body := `{"id":"cmpl-3","object":"chat.completion","created":1,"model":"sonar-pro",
		"citations":["https://example.com/a"],
		"choices":[{"index":0,"message":{"role":"assistant","content":"answer"},"finish_reason":"stop"}],
		"usage":{"prompt_tokens":1,"completion_tokens":1,"total_tokens":2}}`
	relayErr, _ := Handler(c, upstreamResponse(http.StatusOK, body), 1, "sonar-pro")
	require.Nil(t, relayErr)

	var out relaymodel.TextResponse
	require.NoError(t, json.Unmarshal(recorder.Body.Bytes(), &out))
	require.Len(t, out.Choices[0].Citations, 1)
	assert.Equal(t, "https://example.com/a", out.Choices[0].Citations[0].URL)
}

func TestStreamHandlerTerminalUsageChunk(t *testing.T) {
	c, recorder := newTestContext(t)

	var sse bytes.Buffer
	sse.WriteString(`data: {"id":"c1","object":"chat.completion.chunk","created":1,"model":"up","choices":[{"index":0,"delta":{"role":"assistant","content":"hel"}}]}` + "\n\n")
	sse.WriteString(`data: {"id":"c1","object":"chat.completion.chunk","created":1,"model":"up","choices":[{"index":0,"delta":{"content":"lo"},"finish_reason":"stop"}]}` + "\n\n")
	sse.WriteString("data: [DONE]\n\n")

	relayErr, usage := StreamHandler(c, upstreamResponse(http.StatusOK, sse.String()), 5, "down")
	require.Nil(t, relayErr)
	require.NotNil(t, usage)
	assert.Equal(t, 5, usage.PromptTokens)

	lines := parseDataLines(t, recorder.Body.String())
	require.GreaterOrEqual(t, len(lines), 3)
	assert.Equal(t, "[DONE]", lines[len(lines)-1])

	// Every content chunk uses the caller's model id.
	var first relaymodel.ChatCompletionsStreamResponse
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &first))
	assert.Equal(t, "down", first.Model)
	assert.Nil(t, first.Usage)

	// The last data chunk before [DONE] carries the usage block.
	var terminal relaymodel.ChatCompletionsStreamResponse
	require.NoError(t, json.Unmarshal([]byte(lines[len(lines)-2]), &terminal))
	require.NotNil(t, terminal.Usage)
	assert.Equal(t, terminal.Usage.PromptTokens+terminal.Usage.CompletionTokens, terminal.Usage.TotalTokens)
}

func TestStreamHandlerPrefersUpstreamUsage(t *testing.T) {
	c, recorder := newTestContext(t)

	var sse bytes.Buffer
	sse.WriteString(`data: {"id":"c2","object":"chat.completion.chunk","created":1,"model":"up","choices":[{"index":0,"delta":{"content":"x"},"finish_reason":"stop"}]}` + "\n\n")
	sse.WriteString(`data: {"id":"c2","object":"chat.completion.chunk","created":1,"model":"up","choices":[],"usage":{"prompt_tokens":42,"completion_tokens":7,"total_tokens":49}}` + "\n\n")
	sse.WriteString("data: [DONE]\n\n")

	relayErr, usage := StreamHandler(c, upstreamResponse(http.StatusOK, sse.String()), 5, "down")
	require.Nil(t, relayErr)
	require.NotNil(t, usage)
	assert.Equal(t, 42, usage.PromptTokens)
	assert.Equal(t, 7, usage.CompletionTokens)

	lines := parseDataLines(t, recorder.Body.String())
	var terminal relaymodel.ChatCompletionsStreamResponse
	require.NoError(t, json.Unmarshal([]byte(lines[len(lines)-2]), &terminal))
	require.NotNil(t, terminal.Usage)
	assert.Equal(t, 49, terminal.Usage.TotalTokens)
}

func TestErrorHandler(t *testing.T) {
	resp := upstreamResponse(http.StatusTooManyRequests, `{"error":{"message":"slow down","type":"rate_limit"}}`)
	resp.Header.Set("Retry-After", "2")
	relayErr := ErrorHandler(resp, "groq")
	require.NotNil(t, relayErr)
	assert.Equal(t, http.StatusTooManyRequests, relayErr.StatusCode)
	assert.Equal(t, relaymodel.ErrorTypeTooManyRequests, relayErr.Type)
	assert.Equal(t, 2, relayErr.RetryAfter)
	assert.Contains(t, relayErr.Message, "slow down")

	relayErr = ErrorHandler(upstreamResponse(http.StatusServiceUnavailable, "upstream down"), "groq")
	assert.Equal(t, relaymodel.ErrorTypeUpstreamTransient, relayErr.Type)
	assert.True(t, relayErr.IsTransient())
}

func parseDataLines(t *testing.T, body string) []string {
	t.Helper()
	var out []string
	for _, line := range strings.Split(body, "\n") {
		if strings.HasPrefix(line, dataPrefix) {
			out = append(out, strings.TrimSpace(line[len(dataPrefix):]))
		}
	}
	require.NotEmpty(t, out)
	return out
}
