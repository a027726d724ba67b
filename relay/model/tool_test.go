package model

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFunctionTools(t *testing.T) {
	tools := []Tool{
		{Type: ToolTypeFunction, Function: &Function{Name: "get_weather"}},
		{Type: ToolTypeWebSearch, MaxUses: 3},
		{Type: ToolTypeFunction}, // malformed: no function body
	}

	fns := FunctionTools(tools)
	require.Len(t, fns, 1)
	assert.Equal(t, "get_weather", fns[0].Function.Name)
}

func TestWebSearchTool(t *testing.T) {
	assert.Nil(t, WebSearchTool(nil))

	tools := []Tool{
		{Type: ToolTypeFunction, Function: &Function{Name: "f"}},
		{Type: ToolTypeWebSearch, MaxUses: 5},
	}
	ws := WebSearchTool(tools)
	require.NotNil(t, ws)
	assert.Equal(t, 5, ws.MaxUses)
}

func TestToolCallIndexRoundTrip(t *testing.T) {
	// Streaming deltas carry an index; whole calls omit it.
	index := 2
	delta := ToolCall{
		Index:    &index,
		Id:       "call_1",
		Type:     ToolTypeFunction,
		Function: FunctionCall{Name: "get_weather", Arguments: `{"location":`},
	}
	data, err := json.Marshal(delta)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"index":2`)

	var parsed ToolCall
	require.NoError(t, json.Unmarshal(data, &parsed))
	require.NotNil(t, parsed.Index)
	assert.Equal(t, 2, *parsed.Index)

	whole := ToolCall{Id: "call_2", Type: ToolTypeFunction,
		Function: FunctionCall{Name: "f", Arguments: "{}"}}
	data, err = json.Marshal(whole)
	require.NoError(t, err)
	assert.NotContains(t, string(data), "index")
}
