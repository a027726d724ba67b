// Package aws serves Anthropic models hosted on AWS Bedrock through the
// Converse API. Bedrock is not plain HTTP: requests are signed and shipped by
// the AWS SDK, so this adaptor converts to SDK types instead of a JSON body
// and drives Converse / ConverseStream itself.
package aws

import (
	"encoding/base64"
	"encoding/json"
	"net/http"
	"strconv"
	"strings"

	"github.com/Laisky/errors/v2"
	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime/types"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime/document"
	"github.com/gin-gonic/gin"

	"github.com/shinmentakezo07/shinway-sub001/common/config"
	"github.com/shinmentakezo07/shinway-sub001/common/helper"
	relaymodel "github.com/shinmentakezo07/shinway-sub001/relay/model"
)

// thinking budgets mirror the direct Anthropic channel; Bedrock forwards them
// through additionalModelRequestFields.
const (
	thinkingBudgetLow    = 1024
	thinkingBudgetMedium = 2000
	thinkingBudgetHigh   = 4000
)

// ConverseParams is the converted request, carried from ConvertRequest to
// DoResponse through the gin context.
type ConverseParams struct {
	ModelID          string
	Messages         []types.Message
	System           []types.SystemContentBlock
	InferenceConfig  *types.InferenceConfiguration
	ToolConfig       *types.ToolConfiguration
	AdditionalFields map[string]any
	Stream           bool
}

func (p *ConverseParams) converseInput() *bedrockruntime.ConverseInput {
	input := &bedrockruntime.ConverseInput{
		ModelId:         aws.String(p.ModelID),
		Messages:        p.Messages,
		System:          p.System,
		InferenceConfig: p.InferenceConfig,
		ToolConfig:      p.ToolConfig,
	}
	if len(p.AdditionalFields) > 0 {
		input.AdditionalModelRequestFields = document.NewLazyDocument(p.AdditionalFields)
	}
	return input
}

func (p *ConverseParams) converseStreamInput() *bedrockruntime.ConverseStreamInput {
	input := &bedrockruntime.ConverseStreamInput{
		ModelId:         aws.String(p.ModelID),
		Messages:        p.Messages,
		System:          p.System,
		InferenceConfig: p.InferenceConfig,
		ToolConfig:      p.ToolConfig,
	}
	if len(p.AdditionalFields) > 0 {
		input.AdditionalModelRequestFields = document.NewLazyDocument(p.AdditionalFields)
	}
	return input
}

// ConvertRequest maps the canonical chat request onto Converse SDK types.
// minCacheableTokens governs where cachePoint blocks are inserted.
func ConvertRequest(textRequest *relaymodel.GeneralOpenAIRequest, modelID string, minCacheableTokens int) (*ConverseParams, error) {
	maxTokens := textRequest.MaxTokens
	if maxTokens == 0 {
		maxTokens = config.DefaultMaxTokens
	}

	inference := &types.InferenceConfiguration{
		MaxTokens: aws.Int32(int32(maxTokens)),
	}
	if textRequest.Temperature != nil {
		inference.Temperature = aws.Float32(float32(*textRequest.Temperature))
	}
	if textRequest.TopP != nil {
		inference.TopP = aws.Float32(float32(*textRequest.TopP))
	}
	switch stop := textRequest.Stop.(type) {
	case string:
		inference.StopSequences = []string{stop}
	case []any:
		for _, s := range stop {
			if str, ok := s.(string); ok {
				inference.StopSequences = append(inference.StopSequences, str)
			}
		}
	}

	params := &ConverseParams{
		ModelID:         modelID,
		InferenceConfig: inference,
		Stream:          textRequest.Stream,
	}

	if textRequest.ReasoningEffort != nil {
		if budget := thinkingBudget(*textRequest.ReasoningEffort); budget > 0 {
			params.AdditionalFields = map[string]any{
				"thinking": map[string]any{"type": "enabled", "budget_tokens": budget},
			}
			// maxTokens caps thinking and output together; grow it so the
			// budget leaves room for the answer.
			if maxTokens < budget+1000 {
				maxTokens = budget + 1000
				inference.MaxTokens = aws.Int32(int32(maxTokens))
			}
			// Thinking rejects sampling overrides.
			inference.Temperature = nil
			inference.TopP = nil
		}
	}

	if toolConfig, err := convertTools(textRequest); err != nil {
		return nil, err
	} else if toolConfig != nil {
		params.ToolConfig = toolConfig
	}

	cachePoints := cachePointBudget{
		threshold: minCacheableTokens * 4,
		remaining: config.AnthropicMaxCachePoints,
	}

	var systemSegments []string
	for _, message := range textRequest.Messages {
		if message.Role == relaymodel.RoleSystem {
			systemSegments = append(systemSegments, message.StringContent())
			continue
		}
		converted, err := convertMessage(message)
		if err != nil {
			return nil, err
		}
		params.Messages = appendMessage(params.Messages, converted)
	}
	for _, segment := range systemSegments {
		params.System = append(params.System, &types.SystemContentBlockMemberText{Value: segment})
		if cachePoints.claim(len(segment)) {
			params.System = append(params.System, &types.SystemContentBlockMemberCachePoint{
				Value: types.CachePointBlock{Type: types.CachePointTypeDefault},
			})
		}
	}
	applyMessageCachePoints(params.Messages, &cachePoints)

	if len(params.Messages) == 0 {
		return nil, errors.New("no convertible messages in request")
	}
	return params, nil
}

func thinkingBudget(effort string) int {
	switch effort {
	case relaymodel.ReasoningEffortLow:
		return thinkingBudgetLow
	case relaymodel.ReasoningEffortMedium:
		return thinkingBudgetMedium
	case relaymodel.ReasoningEffortHigh:
		return thinkingBudgetHigh
	default:
		return 0
	}
}

// cachePointBudget enforces the shared marker cap and length threshold.
type cachePointBudget struct {
	threshold int
	remaining int
}

func (b *cachePointBudget) claim(chars int) bool {
	if b.remaining <= 0 || chars < b.threshold {
		return false
	}
	b.remaining--
	return true
}

// applyMessageCachePoints walks message content in request order, inserting a
// cachePoint after each text block long enough to be worth caching on its own.
func applyMessageCachePoints(messages []types.Message, budget *cachePointBudget) {
	for i := range messages {
		if budget.remaining == 0 {
			return
		}
		content := make([]types.ContentBlock, 0, len(messages[i].Content))
		for _, block := range messages[i].Content {
			content = append(content, block)
			if text, ok := block.(*types.ContentBlockMemberText); ok && budget.claim(len(text.Value)) {
				content = append(content, &types.ContentBlockMemberCachePoint{
					Value: types.CachePointBlock{Type: types.CachePointTypeDefault},
				})
			}
		}
		messages[i].Content = content
	}
}

// appendMessage merges consecutive same-role turns; Converse requires strict
// user/assistant alternation.
func appendMessage(messages []types.Message, next *types.Message) []types.Message {
	if next == nil {
		return messages
	}
	if n := len(messages); n > 0 && messages[n-1].Role == next.Role {
		messages[n-1].Content = append(messages[n-1].Content, next.Content...)
		return messages
	}
	return append(messages, *next)
}

func convertMessage(message relaymodel.Message) (*types.Message, error) {
	if message.Role == relaymodel.RoleTool {
		result := types.ToolResultBlock{
			ToolUseId: aws.String(message.ToolCallId),
			Content: []types.ToolResultContentBlock{
				&types.ToolResultContentBlockMemberText{Value: message.StringContent()},
			},
		}
		return &types.Message{
			Role:    types.ConversationRoleUser,
			Content: []types.ContentBlock{&types.ContentBlockMemberToolResult{Value: result}},
		}, nil
	}

	role := types.ConversationRoleUser
	if message.Role == relaymodel.RoleAssistant {
		role = types.ConversationRoleAssistant
	}

	var blocks []types.ContentBlock
	for _, part := range message.ParseContent() {
		switch part.Type {
		case relaymodel.ContentTypeText:
			if part.Text != nil && *part.Text != "" {
				blocks = append(blocks, &types.ContentBlockMemberText{Value: *part.Text})
			}
		case relaymodel.ContentTypeImageURL:
			if part.ImageURL == nil {
				continue
			}
			image, err := imageBlockFromURL(part.ImageURL.Url)
			if err != nil {
				return nil, err
			}
			blocks = append(blocks, &types.ContentBlockMemberImage{Value: *image})
		}
	}
	for _, call := range message.ToolCalls {
		input, err := toolInputDocument(call.Function.Arguments)
		if err != nil {
			return nil, err
		}
		blocks = append(blocks, &types.ContentBlockMemberToolUse{Value: types.ToolUseBlock{
			ToolUseId: aws.String(call.Id),
			Name:      aws.String(call.Function.Name),
			Input:     input,
		}})
	}
	if len(blocks) == 0 {
		return nil, nil
	}
	return &types.Message{Role: role, Content: blocks}, nil
}

// imageBlockFromURL accepts data URLs only; Bedrock wants raw bytes, not
// remote references.
func imageBlockFromURL(url string) (*types.ImageBlock, error) {
	if !strings.HasPrefix(url, "data:") {
		return nil, errors.New("bedrock images must be data URLs")
	}
	mime, payload, found := strings.Cut(strings.TrimPrefix(url, "data:"), ";base64,")
	if !found {
		return nil, errors.New("malformed image data URL")
	}
	raw, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return nil, errors.Wrap(err, "decode image data URL")
	}

	var format types.ImageFormat
	switch mime {
	case "image/png":
		format = types.ImageFormatPng
	case "image/jpeg":
		format = types.ImageFormatJpeg
	case "image/gif":
		format = types.ImageFormatGif
	case "image/webp":
		format = types.ImageFormatWebp
	default:
		return nil, errors.Errorf("unsupported image mime type %q", mime)
	}
	return &types.ImageBlock{
		Format: format,
		Source: &types.ImageSourceMemberBytes{Value: raw},
	}, nil
}

func toolInputDocument(arguments string) (document.Interface, error) {
	if arguments == "" {
		return document.NewLazyDocument(map[string]any{}), nil
	}
	var parsed map[string]any
	if err := json.Unmarshal([]byte(arguments), &parsed); err != nil {
		return nil, errors.Wrap(err, "parse tool call arguments")
	}
	return document.NewLazyDocument(parsed), nil
}

func convertTools(textRequest *relaymodel.GeneralOpenAIRequest) (*types.ToolConfiguration, error) {
	functionTools := relaymodel.FunctionTools(textRequest.Tools)
	if len(functionTools) == 0 {
		return nil, nil
	}

	toolConfig := &types.ToolConfiguration{}
	for _, tool := range functionTools {
		if tool.Function == nil {
			continue
		}
		spec := types.ToolSpecification{
			Name:        aws.String(tool.Function.Name),
			Description: aws.String(tool.Function.Description),
			InputSchema: &types.ToolInputSchemaMemberJson{
				Value: document.NewLazyDocument(tool.Function.Parameters),
			},
		}
		toolConfig.Tools = append(toolConfig.Tools, &types.ToolMemberToolSpec{Value: spec})
	}
	if len(toolConfig.Tools) == 0 {
		return nil, nil
	}

	switch choice := textRequest.ToolChoice.(type) {
	case string:
		if choice == "required" {
			toolConfig.ToolChoice = &types.ToolChoiceMemberAny{Value: types.AnyToolChoice{}}
		}
	case map[string]any:
		if function, ok := choice["function"].(map[string]any); ok {
			if name, ok := function["name"].(string); ok && name != "" {
				toolConfig.ToolChoice = &types.ToolChoiceMemberTool{
					Value: types.SpecificToolChoice{Name: aws.String(name)},
				}
			}
		}
	}
	return toolConfig, nil
}

func stopReasonBedrock2OpenAI(reason types.StopReason) string {
	switch reason {
	case types.StopReasonEndTurn, types.StopReasonStopSequence:
		return relaymodel.FinishReasonStop
	case types.StopReasonMaxTokens:
		return relaymodel.FinishReasonLength
	case types.StopReasonToolUse:
		return relaymodel.FinishReasonToolCalls
	case types.StopReasonContentFiltered:
		return relaymodel.FinishReasonContentFilter
	default:
		return relaymodel.FinishReasonStop
	}
}

// usageBedrock2OpenAI folds cache read/write tokens into prompt tokens the
// same way the direct Anthropic channel does.
func usageBedrock2OpenAI(u *types.TokenUsage) *relaymodel.Usage {
	if u == nil {
		return nil
	}
	cacheRead := int(aws.ToInt32(u.CacheReadInputTokens))
	cacheWrite := int(aws.ToInt32(u.CacheWriteInputTokens))
	usage := &relaymodel.Usage{
		PromptTokens:       int(aws.ToInt32(u.InputTokens)) + cacheRead + cacheWrite,
		CompletionTokens:   int(aws.ToInt32(u.OutputTokens)),
		CachedPromptTokens: cacheRead,
	}
	usage.TotalTokens = usage.PromptTokens + usage.CompletionTokens
	return usage
}

// responseBedrock2OpenAI converts a Converse result to the canonical shape.
func responseBedrock2OpenAI(output *bedrockruntime.ConverseOutput, modelName string) (*relaymodel.TextResponse, error) {
	choice := relaymodel.TextResponseChoice{
		Message:      relaymodel.Message{Role: relaymodel.RoleAssistant},
		FinishReason: stopReasonBedrock2OpenAI(output.StopReason),
	}

	message, ok := output.Output.(*types.ConverseOutputMemberMessage)
	if !ok {
		return nil, errors.New("converse output carries no message")
	}
	var contentParts []string
	for _, block := range message.Value.Content {
		switch value := block.(type) {
		case *types.ContentBlockMemberText:
			contentParts = append(contentParts, value.Value)
		case *types.ContentBlockMemberReasoningContent:
			if text, ok := value.Value.(*types.ReasoningContentBlockMemberReasoningText); ok && text.Value.Text != nil {
				choice.Message.ReasoningContent += *text.Value.Text
			}
		case *types.ContentBlockMemberToolUse:
			arguments := "{}"
			if value.Value.Input != nil {
				if raw, err := value.Value.Input.MarshalSmithyDocument(); err == nil {
					arguments = string(raw)
				}
			}
			choice.Message.ToolCalls = append(choice.Message.ToolCalls, relaymodel.ToolCall{
				Id:   aws.ToString(value.Value.ToolUseId),
				Type: "function",
				Function: relaymodel.FunctionCall{
					Name:      aws.ToString(value.Value.Name),
					Arguments: arguments,
				},
			})
		}
	}
	choice.Message.Content = strings.Join(contentParts, "")

	usage := usageBedrock2OpenAI(output.Usage)
	if usage == nil {
		usage = &relaymodel.Usage{}
	}
	return &relaymodel.TextResponse{
		Id:      "chatcmpl-" + helper.GenRequestID(),
		Object:  "chat.completion",
		Created: helper.GetTimestamp(),
		Model:   modelName,
		Choices: []relaymodel.TextResponseChoice{choice},
		Usage:   *usage,
	}, nil
}

// wrapSDKError maps Bedrock SDK failures onto canonical gateway errors with
// failover-relevant status codes.
func wrapSDKError(err error) *relaymodel.ErrorWithStatusCode {
	var (
		throttled   *types.ThrottlingException
		validation  *types.ValidationException
		denied      *types.AccessDeniedException
		notFound    *types.ResourceNotFoundException
		timeout     *types.ModelTimeoutException
		unavailable *types.ServiceUnavailableException
		notReady    *types.ModelNotReadyException
		internal    *types.InternalServerException
	)
	switch {
	case errors.As(err, &throttled):
		return relaymodel.WrapUpstreamError(http.StatusTooManyRequests, "aws-bedrock", err)
	case errors.As(err, &validation):
		return relaymodel.NewError(http.StatusBadRequest, relaymodel.ErrorTypeInvalidRequest,
			err, "upstream_validation_failed")
	case errors.As(err, &denied):
		return relaymodel.WrapUpstreamError(http.StatusUnauthorized, "aws-bedrock", err)
	case errors.As(err, &notFound):
		return relaymodel.WrapUpstreamError(http.StatusNotFound, "aws-bedrock", err)
	case errors.As(err, &timeout), errors.As(err, &unavailable), errors.As(err, &notReady):
		return relaymodel.WrapUpstreamError(http.StatusServiceUnavailable, "aws-bedrock", err)
	case errors.As(err, &internal):
		return relaymodel.WrapUpstreamError(http.StatusBadGateway, "aws-bedrock", err)
	default:
		return relaymodel.WrapUpstreamError(http.StatusBadGateway, "aws-bedrock",
			errors.Wrap(err, "converse"))
	}
}

// Handler runs a non-streaming Converse call and writes the canonical
// response.
func Handler(c *gin.Context, client *bedrockruntime.Client, params *ConverseParams, modelName string) (*relaymodel.ErrorWithStatusCode, *relaymodel.Usage) {
	output, err := client.Converse(c.Request.Context(), params.converseInput())
	if err != nil {
		return wrapSDKError(err), nil
	}

	converted, err := responseBedrock2OpenAI(output, modelName)
	if err != nil {
		return relaymodel.WrapUpstreamError(http.StatusBadGateway, "aws-bedrock", err), nil
	}
	out, err := json.Marshal(converted)
	if err != nil {
		return relaymodel.NewError(http.StatusInternalServerError, relaymodel.ErrorTypeInternal,
			errors.Wrap(err, "marshal converted response"), "marshal_response_body_failed"), nil
	}
	c.Writer.Header().Set("Content-Type", "application/json")
	c.Writer.Header().Set("Content-Length", strconv.Itoa(len(out)))
	c.Writer.WriteHeader(http.StatusOK)
	if _, err = c.Writer.Write(out); err != nil {
		return relaymodel.NewError(http.StatusInternalServerError, relaymodel.ErrorTypeInternal,
			errors.Wrap(err, "write response"), "write_response_failed"), nil
	}
	return nil, &converted.Usage
}

// streamState accumulates per-stream translation state.
type streamState struct {
	id        string
	created   int64
	usage     relaymodel.Usage
	toolIndex int
	finish    string
}

// translateStreamEvent folds one ConverseStream event into state and returns
// the delta to forward, if any.
func translateStreamEvent(event types.ConverseStreamOutput, state *streamState) *relaymodel.StreamDelta {
	switch value := event.(type) {
	case *types.ConverseStreamOutputMemberMessageStart:
		return &relaymodel.StreamDelta{Role: relaymodel.RoleAssistant}

	case *types.ConverseStreamOutputMemberContentBlockStart:
		toolUse, ok := value.Value.Start.(*types.ContentBlockStartMemberToolUse)
		if !ok {
			return nil
		}
		state.toolIndex++
		idx := state.toolIndex
		return &relaymodel.StreamDelta{ToolCalls: []relaymodel.ToolCall{{
			Index:    &idx,
			Id:       aws.ToString(toolUse.Value.ToolUseId),
			Type:     "function",
			Function: relaymodel.FunctionCall{Name: aws.ToString(toolUse.Value.Name)},
		}}}

	case *types.ConverseStreamOutputMemberContentBlockDelta:
		switch delta := value.Value.Delta.(type) {
		case *types.ContentBlockDeltaMemberText:
			return &relaymodel.StreamDelta{Content: delta.Value}
		case *types.ContentBlockDeltaMemberReasoningContent:
			if text, ok := delta.Value.(*types.ReasoningContentBlockDeltaMemberText); ok {
				return &relaymodel.StreamDelta{ReasoningContent: text.Value}
			}
		case *types.ContentBlockDeltaMemberToolUse:
			if state.toolIndex < 0 {
				return nil
			}
			idx := state.toolIndex
			return &relaymodel.StreamDelta{ToolCalls: []relaymodel.ToolCall{{
				Index:    &idx,
				Function: relaymodel.FunctionCall{Arguments: aws.ToString(delta.Value.Input)},
			}}}
		}
		return nil

	case *types.ConverseStreamOutputMemberMessageStop:
		state.finish = stopReasonBedrock2OpenAI(value.Value.StopReason)
		return nil

	case *types.ConverseStreamOutputMemberMetadata:
		if u := usageBedrock2OpenAI(value.Value.Usage); u != nil {
			state.usage = *u
		}
		return nil
	}
	return nil
}
