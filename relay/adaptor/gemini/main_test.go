package gemini

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	relaymodel "github.com/shinmentakezo07/shinway-sub001/relay/model"
)

func TestCleanSchema(t *testing.T) {
	schema := map[string]any{
		"$schema":              "http://json-schema.org/draft-07/schema#",
		"type":                 "object",
		"additionalProperties": false,
		"strict":               true,
		"required":             []any{"city"},
		"properties": map[string]any{
			"city": map[string]any{
				"type":                 "string",
				"description":          "City name",
				"additionalProperties": false,
			},
			"days": map[string]any{
				"type":    "integer",
				"minimum": 1.0,
			},
		},
	}

	cleaned, ok := CleanSchema(schema).(map[string]any)
	require.True(t, ok)

	assert.Equal(t, "OBJECT", cleaned["type"])
	assert.NotContains(t, cleaned, "$schema")
	assert.NotContains(t, cleaned, "additionalProperties")
	assert.NotContains(t, cleaned, "strict")

	props := cleaned["properties"].(map[string]any)
	city := props["city"].(map[string]any)
	assert.Equal(t, "STRING", city["type"])
	assert.Equal(t, "City name", city["description"])
	assert.NotContains(t, city, "additionalProperties")

	days := props["days"].(map[string]any)
	assert.Equal(t, "INTEGER", days["type"])
	assert.Equal(t, 1.0, days["minimum"])
}

func TestConvertRequestSystemInstruction(t *testing.T) {
	request := &relaymodel.GeneralOpenAIRequest{
		Model: "gemini-2.5-flash",
		Messages: []relaymodel.Message{
			{Role: "system", Content: "answer briefly"},
			{Role: "user", Content: "hi"},
		},
	}
	geminiRequest := ConvertRequest(request, true)

	require.NotNil(t, geminiRequest.SystemInstruction)
	assert.Equal(t, "answer briefly", geminiRequest.SystemInstruction.Parts[0].Text)
	require.Len(t, geminiRequest.Contents, 1)
	assert.Equal(t, "user", geminiRequest.Contents[0].Role)

	// Every safety category is fully opened.
	require.Len(t, geminiRequest.SafetySettings, len(safetyCategories))
	for _, setting := range geminiRequest.SafetySettings {
		assert.Equal(t, "BLOCK_NONE", setting.Threshold)
	}
}

func TestConvertRequestNoSystemRoleSupport(t *testing.T) {
	request := &relaymodel.GeneralOpenAIRequest{
		Model: "gemma-3-27b-it",
		Messages: []relaymodel.Message{
			{Role: "system", Content: "answer briefly"},
			{Role: "user", Content: "hi"},
		},
	}
	geminiRequest := ConvertRequest(request, false)

	assert.Nil(t, geminiRequest.SystemInstruction)
	require.Len(t, geminiRequest.Contents, 3)
	assert.Equal(t, "user", geminiRequest.Contents[0].Role)
	assert.Equal(t, "model", geminiRequest.Contents[1].Role)
	assert.Equal(t, "Okay", geminiRequest.Contents[1].Parts[0].Text)
}

func TestConvertRequestThinkingBudgets(t *testing.T) {
	for effort, want := range map[string]int{
		relaymodel.ReasoningEffortMinimal: 512,
		relaymodel.ReasoningEffortLow:     2048,
		relaymodel.ReasoningEffortMedium:  8192,
		relaymodel.ReasoningEffortHigh:    24576,
	} {
		effort := effort
		request := &relaymodel.GeneralOpenAIRequest{
			Model:           "gemini-2.5-pro",
			ReasoningEffort: &effort,
			Messages:        []relaymodel.Message{{Role: "user", Content: "think"}},
		}
		geminiRequest := ConvertRequest(request, true)
		require.NotNil(t, geminiRequest.GenerationConfig.ThinkingConfig, "effort %s", effort)
		assert.Equal(t, want, geminiRequest.GenerationConfig.ThinkingConfig.ThinkingBudget, "effort %s", effort)
	}
}

func TestConvertRequestResponseSchema(t *testing.T) {
	request := &relaymodel.GeneralOpenAIRequest{
		Model: "gemini-2.5-flash",
		ResponseFormat: &relaymodel.ResponseFormat{
			Type: "json_schema",
			JsonSchema: &relaymodel.JSONSchema{
				Name: "result",
				Schema: map[string]any{
					"type":                 "object",
					"additionalProperties": false,
					"properties":           map[string]any{"ok": map[string]any{"type": "boolean"}},
				},
			},
		},
		Messages: []relaymodel.Message{{Role: "user", Content: "ok?"}},
	}
	geminiRequest := ConvertRequest(request, true)

	assert.Equal(t, "application/json", geminiRequest.GenerationConfig.ResponseMimeType)
	schema := geminiRequest.GenerationConfig.ResponseSchema.(map[string]any)
	assert.Equal(t, "OBJECT", schema["type"])
	assert.NotContains(t, schema, "additionalProperties")
}

func TestConvertRequestTools(t *testing.T) {
	request := &relaymodel.GeneralOpenAIRequest{
		Model: "gemini-2.5-flash",
		Tools: []relaymodel.Tool{{
			Type: relaymodel.ToolTypeFunction,
			Function: &relaymodel.Function{
				Name: "get_weather",
				Parameters: map[string]any{
					"type":                 "object",
					"additionalProperties": false,
				},
			},
		}},
		WebSearch: &relaymodel.WebSearchOptions{Enabled: true},
		Messages:  []relaymodel.Message{{Role: "user", Content: "weather"}},
	}
	geminiRequest := ConvertRequest(request, true)

	require.Len(t, geminiRequest.Tools, 2)
	require.Len(t, geminiRequest.Tools[0].FunctionDeclarations, 1)
	params := geminiRequest.Tools[0].FunctionDeclarations[0].Parameters.(map[string]any)
	assert.NotContains(t, params, "additionalProperties")
	assert.NotNil(t, geminiRequest.Tools[1].GoogleSearch)
}

func TestConvertRequestImageModel(t *testing.T) {
	temp := 0.9
	request := &relaymodel.GeneralOpenAIRequest{
		Model:       "gemini-2.5-flash-image",
		Temperature: &temp,
		ImageConfig: &relaymodel.ImageConfig{AspectRatio: "16:9"},
		Messages:    []relaymodel.Message{{Role: "user", Content: "a cat"}},
	}
	geminiRequest := ConvertRequest(request, true)

	assert.Nil(t, geminiRequest.GenerationConfig.Temperature)
	assert.Equal(t, []string{"TEXT", "IMAGE"}, geminiRequest.GenerationConfig.ResponseModalities)
	require.NotNil(t, geminiRequest.GenerationConfig.ImageConfig)
	assert.Equal(t, "16:9", geminiRequest.GenerationConfig.ImageConfig.AspectRatio)
}

func TestResponseGemini2OpenAI(t *testing.T) {
	response := &ChatResponse{
		Candidates: []ChatCandidate{{
			Content: ChatContent{
				Role: "model",
				Parts: []Part{
					{Text: "thinking...", Thought: true},
					{Text: "It is sunny."},
				},
			},
			FinishReason: "STOP",
		}},
		UsageMetadata: &UsageMetadata{
			PromptTokenCount:     9,
			CandidatesTokenCount: 4,
			ThoughtsTokenCount:   2,
		},
	}
	converted := responseGemini2OpenAI(response, "gemini-2.5-pro")

	require.Len(t, converted.Choices, 1)
	assert.Equal(t, "It is sunny.", converted.Choices[0].Message.StringContent())
	assert.Equal(t, "thinking...", converted.Choices[0].Message.ReasoningContent)
	assert.Equal(t, 9, converted.Usage.PromptTokens)
	assert.Equal(t, 6, converted.Usage.CompletionTokens)
	assert.Equal(t, 2, converted.Usage.ReasoningTokens)
}
