package aws

import (
	"strings"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	relaymodel "github.com/shinmentakezo07/shinway-sub001/relay/model"
)

func TestConvertRequestSystemAndCachePoints(t *testing.T) {
	request := &relaymodel.GeneralOpenAIRequest{
		Model: "claude-sonnet-4-5",
		Messages: []relaymodel.Message{
			{Role: "system", Content: strings.Repeat("s", 6000)},
			{Role: "user", Content: strings.Repeat("u", 5000)},
		},
	}
	params, err := ConvertRequest(request, "anthropic.claude-sonnet-4-5-20250929-v1:0", 1024)
	require.NoError(t, err)

	assert.Equal(t, "anthropic.claude-sonnet-4-5-20250929-v1:0", params.ModelID)

	// System text plus one cachePoint directly behind it.
	require.Len(t, params.System, 2)
	_, ok := params.System[0].(*types.SystemContentBlockMemberText)
	require.True(t, ok)
	_, ok = params.System[1].(*types.SystemContentBlockMemberCachePoint)
	require.True(t, ok)

	// The long user message gets the second marker, appended after its text.
	require.Len(t, params.Messages, 1)
	content := params.Messages[0].Content
	require.Len(t, content, 2)
	_, ok = content[1].(*types.ContentBlockMemberCachePoint)
	require.True(t, ok)
}

func TestConvertRequestShortMessagesGetNoCachePoints(t *testing.T) {
	request := &relaymodel.GeneralOpenAIRequest{
		Model: "claude-sonnet-4-5",
		Messages: []relaymodel.Message{
			{Role: "system", Content: "brief"},
			{Role: "user", Content: "hi"},
		},
	}
	params, err := ConvertRequest(request, "anthropic.claude-sonnet-4-5-20250929-v1:0", 1024)
	require.NoError(t, err)

	require.Len(t, params.System, 1)
	require.Len(t, params.Messages, 1)
	assert.Len(t, params.Messages[0].Content, 1)
}

func TestConvertRequestToolsAndToolChoice(t *testing.T) {
	request := &relaymodel.GeneralOpenAIRequest{
		Model: "claude-sonnet-4-5",
		Tools: []relaymodel.Tool{
			{
				Type: relaymodel.ToolTypeFunction,
				Function: &relaymodel.Function{
					Name:        "get_weather",
					Description: "look up the weather",
					Parameters:  map[string]any{"type": "object"},
				},
			},
			{Type: relaymodel.ToolTypeWebSearch},
		},
		ToolChoice: "required",
		Messages:   []relaymodel.Message{{Role: "user", Content: "weather in Oslo"}},
	}
	params, err := ConvertRequest(request, "model-id", 1024)
	require.NoError(t, err)

	require.NotNil(t, params.ToolConfig)
	// web_search has no Bedrock surface; only the function tool survives.
	require.Len(t, params.ToolConfig.Tools, 1)
	spec, ok := params.ToolConfig.Tools[0].(*types.ToolMemberToolSpec)
	require.True(t, ok)
	assert.Equal(t, "get_weather", aws.ToString(spec.Value.Name))

	_, ok = params.ToolConfig.ToolChoice.(*types.ToolChoiceMemberAny)
	assert.True(t, ok)
}

func TestConvertRequestToolResultAndAlternation(t *testing.T) {
	request := &relaymodel.GeneralOpenAIRequest{
		Model: "claude-sonnet-4-5",
		Messages: []relaymodel.Message{
			{Role: "user", Content: "weather in Oslo"},
			{Role: "assistant", ToolCalls: []relaymodel.ToolCall{{
				Id:       "call_1",
				Type:     "function",
				Function: relaymodel.FunctionCall{Name: "get_weather", Arguments: `{"city":"Oslo"}`},
			}}},
			{Role: "tool", ToolCallId: "call_1", Content: "8C, clear"},
			{Role: "user", Content: "and tomorrow?"},
		},
	}
	params, err := ConvertRequest(request, "model-id", 1024)
	require.NoError(t, err)

	// tool result folds into the same user turn as the follow-up question.
	require.Len(t, params.Messages, 3)
	assert.Equal(t, types.ConversationRoleUser, params.Messages[0].Role)
	assert.Equal(t, types.ConversationRoleAssistant, params.Messages[1].Role)
	assert.Equal(t, types.ConversationRoleUser, params.Messages[2].Role)

	toolUse, ok := params.Messages[1].Content[0].(*types.ContentBlockMemberToolUse)
	require.True(t, ok)
	assert.Equal(t, "call_1", aws.ToString(toolUse.Value.ToolUseId))

	require.Len(t, params.Messages[2].Content, 2)
	toolResult, ok := params.Messages[2].Content[0].(*types.ContentBlockMemberToolResult)
	require.True(t, ok)
	assert.Equal(t, "call_1", aws.ToString(toolResult.Value.ToolUseId))
}

func TestConvertRequestThinking(t *testing.T) {
	effort := relaymodel.ReasoningEffortHigh
	temp := 0.7
	request := &relaymodel.GeneralOpenAIRequest{
		Model:           "claude-sonnet-4-5",
		MaxTokens:       16000,
		Temperature:     &temp,
		ReasoningEffort: &effort,
		Messages:        []relaymodel.Message{{Role: "user", Content: "think hard"}},
	}
	params, err := ConvertRequest(request, "model-id", 1024)
	require.NoError(t, err)

	require.NotNil(t, params.AdditionalFields)
	thinking := params.AdditionalFields["thinking"].(map[string]any)
	assert.Equal(t, 4000, thinking["budget_tokens"])
	// Thinking drops sampling overrides.
	assert.Nil(t, params.InferenceConfig.Temperature)
}

func TestThinkingRaisesMaxTokens(t *testing.T) {
	effort := relaymodel.ReasoningEffortHigh
	request := &relaymodel.GeneralOpenAIRequest{
		Model:           "claude-sonnet-4-5",
		MaxTokens:       1500,
		ReasoningEffort: &effort,
		Messages:        []relaymodel.Message{{Role: "user", Content: "think hard"}},
	}
	params, err := ConvertRequest(request, "model-id", 1024)
	require.NoError(t, err)

	// The budget stays fixed; a tight max_tokens grows to make room for the
	// answer on top of it.
	thinking := params.AdditionalFields["thinking"].(map[string]any)
	assert.Equal(t, 4000, thinking["budget_tokens"])
	assert.Equal(t, int32(5000), *params.InferenceConfig.MaxTokens)
}

// Several text blocks that are long in aggregate but short individually earn
// no cachePoint; the threshold applies per block.
func TestCachePointPerBlockThreshold(t *testing.T) {
	medium := strings.Repeat("m", 3000)
	request := &relaymodel.GeneralOpenAIRequest{
		Model: "claude-sonnet-4-5",
		Messages: []relaymodel.Message{
			{Role: "user", Content: medium},
			{Role: "assistant", Content: "ok"},
			{Role: "user", Content: medium},
		},
	}
	params, err := ConvertRequest(request, "model-id", 1024)
	require.NoError(t, err)

	for _, msg := range params.Messages {
		for _, block := range msg.Content {
			_, ok := block.(*types.ContentBlockMemberCachePoint)
			assert.False(t, ok)
		}
	}
}

// Markers claim in request order and respect the shared cap.
func TestCachePointOrderAndCap(t *testing.T) {
	long := strings.Repeat("c", 4096)
	messages := []relaymodel.Message{{Role: "system", Content: long}}
	roles := []string{"user", "assistant", "user", "assistant", "user"}
	for _, role := range roles {
		messages = append(messages, relaymodel.Message{Role: role, Content: long})
	}
	params, err := ConvertRequest(&relaymodel.GeneralOpenAIRequest{
		Model:    "claude-sonnet-4-5",
		Messages: messages,
	}, "model-id", 1024)
	require.NoError(t, err)

	points := 0
	for _, block := range params.System {
		if _, ok := block.(*types.SystemContentBlockMemberCachePoint); ok {
			points++
		}
	}
	perMessage := make([]int, len(params.Messages))
	for i, msg := range params.Messages {
		for _, block := range msg.Content {
			if _, ok := block.(*types.ContentBlockMemberCachePoint); ok {
				points++
				perMessage[i]++
			}
		}
	}
	assert.Equal(t, 4, points)
	// The earliest turns win; the last two qualifying blocks go unmarked.
	assert.Equal(t, []int{1, 1, 1, 0, 0}, perMessage)
}

func TestStopReasonBedrock2OpenAI(t *testing.T) {
	assert.Equal(t, relaymodel.FinishReasonStop, stopReasonBedrock2OpenAI(types.StopReasonEndTurn))
	assert.Equal(t, relaymodel.FinishReasonLength, stopReasonBedrock2OpenAI(types.StopReasonMaxTokens))
	assert.Equal(t, relaymodel.FinishReasonToolCalls, stopReasonBedrock2OpenAI(types.StopReasonToolUse))
}

func TestUsageBedrock2OpenAI(t *testing.T) {
	usage := usageBedrock2OpenAI(&types.TokenUsage{
		InputTokens:           aws.Int32(10),
		OutputTokens:          aws.Int32(5),
		TotalTokens:           aws.Int32(15),
		CacheReadInputTokens:  aws.Int32(4),
		CacheWriteInputTokens: aws.Int32(2),
	})
	require.NotNil(t, usage)
	assert.Equal(t, 16, usage.PromptTokens)
	assert.Equal(t, 5, usage.CompletionTokens)
	assert.Equal(t, 21, usage.TotalTokens)
	assert.Equal(t, 4, usage.CachedPromptTokens)
}

func TestTranslateStreamEventSequence(t *testing.T) {
	state := &streamState{toolIndex: -1, finish: relaymodel.FinishReasonStop}

	delta := translateStreamEvent(&types.ConverseStreamOutputMemberMessageStart{
		Value: types.MessageStartEvent{Role: types.ConversationRoleAssistant},
	}, state)
	require.NotNil(t, delta)
	assert.Equal(t, relaymodel.RoleAssistant, delta.Role)

	delta = translateStreamEvent(&types.ConverseStreamOutputMemberContentBlockDelta{
		Value: types.ContentBlockDeltaEvent{
			Delta: &types.ContentBlockDeltaMemberText{Value: "Hello"},
		},
	}, state)
	require.NotNil(t, delta)
	assert.Equal(t, "Hello", delta.Content)

	delta = translateStreamEvent(&types.ConverseStreamOutputMemberContentBlockStart{
		Value: types.ContentBlockStartEvent{
			Start: &types.ContentBlockStartMemberToolUse{
				Value: types.ToolUseBlockStart{ToolUseId: aws.String("call_1"), Name: aws.String("get_weather")},
			},
		},
	}, state)
	require.NotNil(t, delta)
	require.Len(t, delta.ToolCalls, 1)
	assert.Equal(t, "get_weather", delta.ToolCalls[0].Function.Name)

	delta = translateStreamEvent(&types.ConverseStreamOutputMemberMessageStop{
		Value: types.MessageStopEvent{StopReason: types.StopReasonMaxTokens},
	}, state)
	assert.Nil(t, delta)
	assert.Equal(t, relaymodel.FinishReasonLength, state.finish)

	delta = translateStreamEvent(&types.ConverseStreamOutputMemberMetadata{
		Value: types.ConverseStreamMetadataEvent{
			Usage: &types.TokenUsage{InputTokens: aws.Int32(7), OutputTokens: aws.Int32(3), TotalTokens: aws.Int32(10)},
		},
	}, state)
	assert.Nil(t, delta)
	assert.Equal(t, 7, state.usage.PromptTokens)
	assert.Equal(t, 3, state.usage.CompletionTokens)
}
