package openai

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shinmentakezo07/shinway-sub001/relay/adaptor/openai_compatible"
	"github.com/shinmentakezo07/shinway-sub001/relay/meta"
	relaymodel "github.com/shinmentakezo07/shinway-sub001/relay/model"
	"github.com/shinmentakezo07/shinway-sub001/relay/registry"
	"github.com/shinmentakezo07/shinway-sub001/relay/relaymode"
)

func testContext(t *testing.T) *gin.Context {
	t.Helper()
	gin.SetMode(gin.TestMode)
	c, _ := gin.CreateTestContext(httptest.NewRecorder())
	c.Request = httptest.NewRequest(http.MethodPost, "/v1/chat/completions", nil)
	return c
}

func TestConvertRequestReasoningFamily(t *testing.T) {
	a := NewAdaptor()
	temp := 0.2
	req := &relaymodel.GeneralOpenAIRequest{
		Model:       "gpt-5",
		MaxTokens:   512,
		Temperature: &temp,
		Messages:    []relaymodel.Message{{Role: "user", Content: "hi"}},
	}
	converted, err := a.ConvertRequest(testContext(t), relaymode.ChatCompletions, req)
	require.NoError(t, err)
	out := converted.(*relaymodel.GeneralOpenAIRequest)

	assert.Zero(t, out.MaxTokens)
	assert.Equal(t, 512, out.MaxCompletionTokens)
	require.NotNil(t, out.Temperature)
	assert.Equal(t, 1.0, *out.Temperature)
	assert.Nil(t, out.TopP)
}

func TestConvertRequestSearchModel(t *testing.T) {
	a := NewAdaptor()
	temp := 0.7
	req := &relaymodel.GeneralOpenAIRequest{
		Model:       "gpt-4o-mini-search-preview",
		Temperature: &temp,
		WebSearch:   &relaymodel.WebSearchOptions{Enabled: true, SearchContextSize: "high"},
		Messages:    []relaymodel.Message{{Role: "user", Content: "news?"}},
	}
	converted, err := a.ConvertRequest(testContext(t), relaymode.ChatCompletions, req)
	require.NoError(t, err)
	out, ok := converted.(*searchChatRequest)
	require.True(t, ok)

	assert.Nil(t, out.Temperature)
	require.NotNil(t, out.WebSearchOptions)
	assert.Equal(t, "high", out.WebSearchOptions.SearchContextSize)
}

func TestConvertToResponsesRequest(t *testing.T) {
	effort := relaymodel.ReasoningEffortHigh
	req := &relaymodel.GeneralOpenAIRequest{
		Model:           "gpt-5-pro",
		MaxTokens:       1000,
		ReasoningEffort: &effort,
		Messages: []relaymodel.Message{
			{Role: "system", Content: "be terse"},
			{Role: "user", Content: "question"},
		},
		Tools: []relaymodel.Tool{{
			Type:     relaymodel.ToolTypeFunction,
			Function: &relaymodel.Function{Name: "lookup", Parameters: map[string]any{"type": "object"}},
		}},
		ResponseFormat: &relaymodel.ResponseFormat{
			Type:       "json_schema",
			JsonSchema: &relaymodel.JSONSchema{Name: "answer", Schema: map[string]any{"type": "object"}},
		},
	}
	out := convertToResponsesRequest(req)

	assert.Equal(t, "be terse", out.Instructions)
	assert.Equal(t, 1000, out.MaxOutputTokens)
	require.NotNil(t, out.Reasoning)
	assert.Equal(t, "high", out.Reasoning.Effort)
	assert.Equal(t, "detailed", out.Reasoning.Summary)
	require.Len(t, out.Input, 1)
	assert.Equal(t, "user", out.Input[0].Role)
	assert.Equal(t, "input_text", out.Input[0].Content[0].Type)
	require.Len(t, out.Tools, 1)
	assert.Equal(t, "lookup", out.Tools[0].Name)
	require.NotNil(t, out.Text)
	assert.Equal(t, "json_schema", out.Text.Format.Type)
}

// Reasoning is always present on Responses API requests: gpt-5-pro defaults
// to high, other models to medium, and the summary is always detailed.
func TestConvertToResponsesRequestDefaultReasoning(t *testing.T) {
	out := convertToResponsesRequest(&relaymodel.GeneralOpenAIRequest{
		Model:    "gpt-5-pro",
		Messages: []relaymodel.Message{{Role: "user", Content: "hi"}},
	})
	require.NotNil(t, out.Reasoning)
	assert.Equal(t, "high", out.Reasoning.Effort)
	assert.Equal(t, "detailed", out.Reasoning.Summary)

	out = convertToResponsesRequest(&relaymodel.GeneralOpenAIRequest{
		Model:    "o3-deep-research",
		Messages: []relaymodel.Message{{Role: "user", Content: "hi"}},
	})
	require.NotNil(t, out.Reasoning)
	assert.Equal(t, "medium", out.Reasoning.Effort)
	assert.Equal(t, "detailed", out.Reasoning.Summary)
}

// The Responses API has no tool role; tool results come back as user input.
func TestConvertToResponsesRequestToolRole(t *testing.T) {
	out := convertToResponsesRequest(&relaymodel.GeneralOpenAIRequest{
		Model: "gpt-5-pro",
		Messages: []relaymodel.Message{
			{Role: "user", Content: "weather?"},
			{Role: "tool", ToolCallId: "call_1", Content: "sunny"},
		},
	})
	require.Len(t, out.Input, 2)
	assert.Equal(t, "user", out.Input[1].Role)
	assert.Equal(t, "sunny", out.Input[1].Content[0].Text)
}

func TestGetRequestURLResponsesModels(t *testing.T) {
	a := NewAdaptor()
	m := &meta.Meta{
		Mode:            relaymode.ChatCompletions,
		BaseURL:         "https://api.openai.com",
		ActualModelName: "gpt-5-pro",
	}
	url, err := a.GetRequestURL(m)
	require.NoError(t, err)
	assert.Equal(t, "https://api.openai.com/v1/responses", url)

	m.ActualModelName = "gpt-5"
	url, err = a.GetRequestURL(m)
	require.NoError(t, err)
	assert.Equal(t, "https://api.openai.com"+openai_compatible.ChatCompletionsPath, url)
}

// The registry mapping, not the model name, decides whether a model speaks
// the Responses API.
func TestResponsesAPIKeyedOnMapping(t *testing.T) {
	a := NewAdaptor()
	m := &meta.Meta{
		Mode:            relaymode.ChatCompletions,
		BaseURL:         "https://api.openai.com",
		ActualModelName: "o3-deep-research",
		Mapping:         &registry.ProviderMapping{SupportsResponsesAPI: true},
	}
	url, err := a.GetRequestURL(m)
	require.NoError(t, err)
	assert.Equal(t, "https://api.openai.com/v1/responses", url)

	a.Init(m)
	converted, err := a.ConvertRequest(testContext(t), relaymode.ChatCompletions, &relaymodel.GeneralOpenAIRequest{
		Model:    "o3-deep-research",
		Messages: []relaymodel.Message{{Role: "user", Content: "hi"}},
	})
	require.NoError(t, err)
	_, ok := converted.(*responsesRequest)
	assert.True(t, ok)

	// A mapping that says no keeps the model on chat completions even when
	// the name would qualify.
	m.Mapping = &registry.ProviderMapping{}
	m.ActualModelName = "gpt-5-pro"
	url, err = a.GetRequestURL(m)
	require.NoError(t, err)
	assert.Equal(t, "https://api.openai.com"+openai_compatible.ChatCompletionsPath, url)
}

// Search-capable chat models outside the -search-preview family carry the
// search intent as a web_search tool entry.
func TestConvertRequestEmitsWebSearchTool(t *testing.T) {
	a := NewAdaptor()
	req := &relaymodel.GeneralOpenAIRequest{
		Model:     "gpt-4o",
		WebSearch: &relaymodel.WebSearchOptions{Enabled: true, MaxUses: 2},
		Tools: []relaymodel.Tool{{
			Type:     relaymodel.ToolTypeFunction,
			Function: &relaymodel.Function{Name: "lookup", Parameters: map[string]any{"type": "object"}},
		}},
		Messages: []relaymodel.Message{{Role: "user", Content: "news?"}},
	}
	converted, err := a.ConvertRequest(testContext(t), relaymode.ChatCompletions, req)
	require.NoError(t, err)
	out := converted.(*relaymodel.GeneralOpenAIRequest)

	search := relaymodel.WebSearchTool(out.Tools)
	require.NotNil(t, search)
	assert.Equal(t, 2, search.MaxUses)
	require.Len(t, relaymodel.FunctionTools(out.Tools), 1)
	assert.Nil(t, out.WebSearch)
}
