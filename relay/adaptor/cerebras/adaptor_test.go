package cerebras

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	relaymodel "github.com/shinmentakezo07/shinway-sub001/relay/model"
	"github.com/shinmentakezo07/shinway-sub001/relay/relaymode"
)

func TestConvertRequestForcesStrict(t *testing.T) {
	request := &relaymodel.GeneralOpenAIRequest{
		Model: "llama-3.3-70b",
		Tools: []relaymodel.Tool{{
			Type: relaymodel.ToolTypeFunction,
			Function: &relaymodel.Function{
				Name:       "get_weather",
				Parameters: map[string]any{"type": "object"},
			},
		}},
		ResponseFormat: &relaymodel.ResponseFormat{
			Type:       "json_schema",
			JsonSchema: &relaymodel.JSONSchema{Name: "result"},
		},
		Messages: []relaymodel.Message{{Role: "user", Content: "hi"}},
	}
	_, err := NewAdaptor().ConvertRequest(nil, relaymode.ChatCompletions, request)
	require.NoError(t, err)

	require.NotNil(t, request.Tools[0].Function.Strict)
	assert.True(t, *request.Tools[0].Function.Strict)
	require.NotNil(t, request.ResponseFormat.JsonSchema.Strict)
	assert.True(t, *request.ResponseFormat.JsonSchema.Strict)
}
