package zai

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shinmentakezo07/shinway-sub001/relay/meta"
	relaymodel "github.com/shinmentakezo07/shinway-sub001/relay/model"
	"github.com/shinmentakezo07/shinway-sub001/relay/relaymode"
)

func TestConvertRequestThinkingAndSearch(t *testing.T) {
	effort := relaymodel.ReasoningEffortMedium
	request := &relaymodel.GeneralOpenAIRequest{
		Model:           "glm-4.6",
		ReasoningEffort: &effort,
		WebSearch:       &relaymodel.WebSearchOptions{Enabled: true},
		Messages:        []relaymodel.Message{{Role: "user", Content: "latest news"}},
	}
	converted, err := NewAdaptor().ConvertRequest(nil, relaymode.ChatCompletions, request)
	require.NoError(t, err)

	encoded, err := json.Marshal(converted)
	require.NoError(t, err)

	var body map[string]any
	require.NoError(t, json.Unmarshal(encoded, &body))

	thinking := body["thinking"].(map[string]any)
	assert.Equal(t, "enabled", thinking["type"])
	assert.NotContains(t, body, "reasoning_effort")

	tools := body["tools"].([]any)
	require.Len(t, tools, 1)
	search := tools[0].(map[string]any)
	assert.Equal(t, "web_search", search["type"])
	webSearch := search["web_search"].(map[string]any)
	assert.Equal(t, true, webSearch["enable"])
	assert.Equal(t, "search-prime", webSearch["search_engine"])
}

func TestConvertRequestCogViewBecomesImageGen(t *testing.T) {
	request := &relaymodel.GeneralOpenAIRequest{
		Model: "cogview-4",
		Messages: []relaymodel.Message{
			{Role: "user", Content: "first idea"},
			{Role: "assistant", Content: "sure"},
			{Role: "user", Content: "a red fox in snow"},
		},
	}
	converted, err := NewAdaptor().ConvertRequest(nil, relaymode.ChatCompletions, request)
	require.NoError(t, err)

	imageGen, ok := converted.(*imageGenRequest)
	require.True(t, ok)
	assert.Equal(t, "cogview-4", imageGen.Model)
	assert.Equal(t, "a red fox in snow", imageGen.Prompt)
}

func TestGetRequestURL(t *testing.T) {
	adaptor := NewAdaptor()

	url, err := adaptor.GetRequestURL(&meta.Meta{
		Mode:            relaymode.ChatCompletions,
		BaseURL:         "https://api.z.ai/api/paas",
		ActualModelName: "glm-4.6",
	})
	require.NoError(t, err)
	assert.Equal(t, "https://api.z.ai/api/paas/v4/chat/completions", url)

	url, err = adaptor.GetRequestURL(&meta.Meta{
		Mode:            relaymode.ChatCompletions,
		BaseURL:         "https://api.z.ai/api/paas",
		ActualModelName: "cogview-4",
	})
	require.NoError(t, err)
	assert.Equal(t, "https://api.z.ai/api/paas/v4/images/generations", url)
}
