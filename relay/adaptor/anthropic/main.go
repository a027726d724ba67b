package anthropic

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/Laisky/errors/v2"
	gmw "github.com/Laisky/gin-middlewares/v7"
	"github.com/Laisky/zap"
	"github.com/gin-gonic/gin"

	"github.com/shinmentakezo07/shinway-sub001/common"
	"github.com/shinmentakezo07/shinway-sub001/common/config"
	"github.com/shinmentakezo07/shinway-sub001/common/ctxkey"
	"github.com/shinmentakezo07/shinway-sub001/common/helper"
	"github.com/shinmentakezo07/shinway-sub001/relay/meta"
	relaymodel "github.com/shinmentakezo07/shinway-sub001/relay/model"
)

// Thinking budgets by requested reasoning effort.
const (
	thinkingBudgetLow    = 1024
	thinkingBudgetMedium = 2000
	thinkingBudgetHigh   = 4000
)

// ConvertRequest maps the canonical chat request onto the Messages API:
// system messages lift into the system field, tool messages become
// tool_result blocks, reasoning effort selects a thinking budget.
func ConvertRequest(c *gin.Context, textRequest *relaymodel.GeneralOpenAIRequest, minCacheableTokens int) (*Request, error) {
	claudeRequest := &Request{
		Model:       textRequest.Model,
		MaxTokens:   textRequest.MaxTokens,
		Temperature: textRequest.Temperature,
		TopP:        textRequest.TopP,
		Stream:      textRequest.Stream,
		ToolChoice:  textRequest.ToolChoice,
	}
	if claudeRequest.MaxTokens == 0 {
		claudeRequest.MaxTokens = config.DefaultMaxTokens
	}
	switch stop := textRequest.Stop.(type) {
	case string:
		claudeRequest.StopSequences = []string{stop}
	case []any:
		for _, s := range stop {
			if str, ok := s.(string); ok {
				claudeRequest.StopSequences = append(claudeRequest.StopSequences, str)
			}
		}
	}

	for _, tool := range relaymodel.FunctionTools(textRequest.Tools) {
		claudeRequest.Tools = append(claudeRequest.Tools, Tool{
			Name:        tool.Function.Name,
			Description: tool.Function.Description,
			InputSchema: tool.Function.Parameters,
		})
	}
	if textRequest.WantsWebSearch() {
		claudeRequest.Tools = append(claudeRequest.Tools, buildWebSearchTool(textRequest))
	}

	if textRequest.ReasoningEffort != nil {
		if budget := thinkingBudget(*textRequest.ReasoningEffort); budget > 0 {
			claudeRequest.Thinking = &Thinking{Type: "enabled", BudgetTokens: budget}
			// max_tokens caps thinking and output together; grow it so the
			// budget leaves room for the answer.
			if claudeRequest.MaxTokens < budget+1000 {
				claudeRequest.MaxTokens = budget + 1000
			}
			// Extended thinking rejects sampling overrides.
			claudeRequest.Temperature = nil
			claudeRequest.TopP = nil
		}
	}

	for _, message := range textRequest.Messages {
		if message.Role == relaymodel.RoleSystem {
			claudeRequest.System = append(claudeRequest.System, Content{
				Type: "text",
				Text: message.StringContent(),
			})
			continue
		}
		converted, err := convertMessage(message)
		if err != nil {
			return nil, err
		}
		if converted != nil {
			claudeRequest.Messages = append(claudeRequest.Messages, *converted)
		}
	}

	applyCacheControl(claudeRequest, minCacheableTokens)
	return claudeRequest, nil
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

func buildWebSearchTool(textRequest *relaymodel.GeneralOpenAIRequest) Tool {
	tool := Tool{Type: "web_search_20250305", Name: "web_search"}
	opts := textRequest.WebSearch
	if opts == nil {
		if t := relaymodel.WebSearchTool(textRequest.Tools); t != nil && t.MaxUses > 0 {
			tool.MaxUses = t.MaxUses
		}
		return tool
	}
	tool.MaxUses = opts.MaxUses
	if loc := opts.UserLocation; loc != nil {
		tool.UserLocation = &UserLocation{
			Type:     "approximate",
			City:     loc.City,
			Region:   loc.Region,
			Country:  loc.Country,
			Timezone: loc.Timezone,
		}
	}
	return tool
}

func convertMessage(message relaymodel.Message) (*Message, error) {
	if message.Role == relaymodel.RoleTool {
		return &Message{
			Role: relaymodel.RoleUser,
			Content: []Content{{
				Type:      "tool_result",
				ToolUseId: message.ToolCallId,
				Content:   message.StringContent(),
			}},
		}, nil
	}

	converted := &Message{Role: message.Role}
	for _, part := range message.ParseContent() {
		switch part.Type {
		case relaymodel.ContentTypeText:
			if part.Text != nil {
				converted.Content = append(converted.Content, Content{Type: "text", Text: *part.Text})
			}
		case relaymodel.ContentTypeImageURL:
			if part.ImageURL == nil {
				continue
			}
			source, err := imageSourceFromURL(part.ImageURL.Url)
			if err != nil {
				return nil, err
			}
			converted.Content = append(converted.Content, Content{Type: "image", Source: source})
		case relaymodel.ContentTypeImage:
			if part.Image != nil {
				converted.Content = append(converted.Content, Content{Type: "image", Source: &ImageSource{
					Type:      "base64",
					MediaType: part.Image.MediaType,
					Data:      part.Image.Data,
				}})
			}
		}
	}
	for _, call := range message.ToolCalls {
		var input any
		if call.Function.Arguments != "" {
			if err := json.Unmarshal([]byte(call.Function.Arguments), &input); err != nil {
				input = map[string]any{}
			}
		}
		converted.Content = append(converted.Content, Content{
			Type:  "tool_use",
			Id:    call.Id,
			Name:  call.Function.Name,
			Input: input,
		})
	}
	if len(converted.Content) == 0 {
		return nil, nil
	}
	return converted, nil
}

// imageSourceFromURL accepts data URLs (base64 source) and https URLs.
func imageSourceFromURL(url string) (*ImageSource, error) {
	if strings.HasPrefix(url, "data:") {
		header, data, found := strings.Cut(url, ",")
		if !found {
			return nil, errors.Errorf("malformed data url")
		}
		mediaType := strings.TrimSuffix(strings.TrimPrefix(header, "data:"), ";base64")
		return &ImageSource{Type: "base64", MediaType: mediaType, Data: data}, nil
	}
	return &ImageSource{Type: "url", URL: url}, nil
}

func stopReasonClaude2OpenAI(reason string) string {
	switch reason {
	case "end_turn", "stop_sequence", "pause_turn":
		return relaymodel.FinishReasonStop
	case "max_tokens":
		return relaymodel.FinishReasonLength
	case "tool_use":
		return relaymodel.FinishReasonToolCalls
	case "refusal":
		return relaymodel.FinishReasonContentFilter
	default:
		return relaymodel.FinishReasonStop
	}
}

func usageClaude2OpenAI(u *Usage) *relaymodel.Usage {
	if u == nil {
		return nil
	}
	// Anthropic reports cache reads outside input_tokens; the canonical shape
	// counts them as cached prompt tokens inside the prompt total.
	promptTokens := u.InputTokens + u.CacheReadInputTokens + u.CacheCreationInputTokens
	usage := &relaymodel.Usage{
		PromptTokens:       promptTokens,
		CompletionTokens:   u.OutputTokens,
		CachedPromptTokens: u.CacheReadInputTokens,
		TotalTokens:        promptTokens + u.OutputTokens,
	}
	return usage
}

// ResponseClaude2OpenAI converts a non-streaming Messages result to the
// canonical completion.
func ResponseClaude2OpenAI(claudeResponse *Response, modelName string) *relaymodel.TextResponse {
	choice := relaymodel.TextResponseChoice{
		FinishReason: stopReasonClaude2OpenAI(claudeResponse.StopReason),
	}
	choice.Message.Role = relaymodel.RoleAssistant

	var text, reasoning strings.Builder
	for _, block := range claudeResponse.Content {
		switch block.Type {
		case "text":
			text.WriteString(block.Text)
			for _, cite := range block.Citations {
				choice.Citations = append(choice.Citations, relaymodel.Citation{
					URL:     cite.URL,
					Title:   cite.Title,
					Snippet: cite.Cited,
				})
			}
		case "thinking":
			reasoning.WriteString(block.Thinking)
		case "tool_use":
			arguments, _ := json.Marshal(block.Input)
			choice.Message.ToolCalls = append(choice.Message.ToolCalls, relaymodel.ToolCall{
				Id:       block.Id,
				Type:     "function",
				Function: relaymodel.FunctionCall{Name: block.Name, Arguments: string(arguments)},
			})
		}
	}
	choice.Message.Content = text.String()
	choice.Message.ReasoningContent = reasoning.String()

	usage := usageClaude2OpenAI(&claudeResponse.Usage)
	return &relaymodel.TextResponse{
		Id:      fmt.Sprintf("chatcmpl-%s", claudeResponse.Id),
		Object:  "chat.completion",
		Created: helper.GetTimestamp(),
		Model:   modelName,
		Choices: []relaymodel.TextResponseChoice{choice},
		Usage:   *usage,
	}
}

// Handler relays a non-streaming Messages response.
func Handler(c *gin.Context, resp *http.Response, m *meta.Meta) (*relaymodel.ErrorWithStatusCode, *relaymodel.Usage) {
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return relaymodel.NewError(http.StatusInternalServerError, relaymodel.ErrorTypeInternal,
			errors.Wrap(err, "read upstream response"), "read_response_body_failed"), nil
	}
	_ = resp.Body.Close()

	var claudeResponse Response
	if err = json.Unmarshal(body, &claudeResponse); err != nil {
		return relaymodel.NewError(http.StatusInternalServerError, relaymodel.ErrorTypeInternal,
			errors.Wrap(err, "unmarshal upstream response"), "unmarshal_response_body_failed"), nil
	}
	if claudeResponse.Error != nil {
		return relaymodel.WrapUpstreamError(resp.StatusCode, "anthropic",
			errors.Errorf("%s: %s", claudeResponse.Error.Type, claudeResponse.Error.Message)), nil
	}

	converted := ResponseClaude2OpenAI(&claudeResponse, m.OriginModelName)
	out, err := json.Marshal(converted)
	if err != nil {
		return relaymodel.NewError(http.StatusInternalServerError, relaymodel.ErrorTypeInternal,
			errors.Wrap(err, "marshal converted response"), "marshal_response_body_failed"), nil
	}
	c.Writer.Header().Set("Content-Type", "application/json")
	c.Writer.Header().Set("Content-Length", strconv.Itoa(len(out)))
	c.Writer.WriteHeader(resp.StatusCode)
	if _, err = io.Copy(c.Writer, bytes.NewReader(out)); err != nil {
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
	blockType map[int]string
	finish    string
	citations []relaymodel.Citation
}

// StreamHandler translates Messages SSE events into canonical chunks.
func StreamHandler(c *gin.Context, resp *http.Response, m *meta.Meta) (*relaymodel.ErrorWithStatusCode, *relaymodel.Usage) {
	logger := gmw.GetLogger(c)
	common.SetEventStreamHeaders(c)
	defer func() { _ = resp.Body.Close() }()

	scanner := helper.NewSSEScanner(resp.Body)

	state := &streamState{
		id:        "chatcmpl-" + helper.GenRequestID(),
		created:   helper.GetTimestamp(),
		toolIndex: -1,
		blockType: map[int]string{},
		finish:    relaymodel.FinishReasonStop,
	}

	for scanner.Scan() {
		line := scanner.Text()
		if !strings.HasPrefix(line, "data: ") {
			continue
		}
		var event StreamResponse
		if err := json.Unmarshal([]byte(strings.TrimSpace(line[len("data: "):])), &event); err != nil {
			logger.Warn("skip malformed stream event", zap.Error(err))
			continue
		}
		if event.Type == "error" && event.Error != nil {
			if sent, _ := c.Get(ctxkey.FirstByteSent); sent != true {
				return relaymodel.WrapUpstreamError(http.StatusBadGateway, "anthropic",
					errors.Errorf("%s: %s", event.Error.Type, event.Error.Message)), nil
			}
			logger.Warn("upstream stream error after first byte",
				zap.String("type", event.Error.Type), zap.String("message", event.Error.Message))
			break
		}

		if delta := translateStreamEvent(&event, state); delta != nil {
			chunk := &relaymodel.ChatCompletionsStreamResponse{
				Id:      state.id,
				Object:  "chat.completion.chunk",
				Created: state.created,
				Model:   m.OriginModelName,
				Choices: []relaymodel.ChatCompletionsStreamResponseChoice{{Delta: *delta}},
			}
			if encoded, err := json.Marshal(chunk); err == nil {
				_, _ = c.Writer.WriteString("data: " + string(encoded) + "\n\n")
				c.Writer.Flush()
				c.Set(ctxkey.FirstByteSent, true)
			}
		}
		if event.Type == "message_stop" {
			break
		}
	}
	if err := scanner.Err(); err != nil {
		if sent, _ := c.Get(ctxkey.FirstByteSent); sent != true {
			return relaymodel.NewError(http.StatusBadGateway, relaymodel.ErrorTypeUpstreamTransient,
				errors.Wrap(err, "read upstream stream"), "stream_read_failed"), nil
		}
		logger.Warn("upstream stream truncated", zap.Error(err))
	}

	if len(state.citations) > 0 {
		cited := &relaymodel.ChatCompletionsStreamResponse{
			Id:      state.id,
			Object:  "chat.completion.chunk",
			Created: state.created,
			Model:   m.OriginModelName,
			Choices: []relaymodel.ChatCompletionsStreamResponseChoice{{Citations: state.citations}},
		}
		if encoded, err := json.Marshal(cited); err == nil {
			_, _ = c.Writer.WriteString("data: " + string(encoded) + "\n\n")
			c.Writer.Flush()
		}
	}

	state.usage.Normalize()
	terminal := &relaymodel.ChatCompletionsStreamResponse{
		Id:      state.id,
		Object:  "chat.completion.chunk",
		Created: state.created,
		Model:   m.OriginModelName,
		Choices: []relaymodel.ChatCompletionsStreamResponseChoice{{FinishReason: &state.finish}},
		Usage:   &state.usage,
	}
	if encoded, err := json.Marshal(terminal); err == nil {
		_, _ = c.Writer.WriteString("data: " + string(encoded) + "\n\n")
	}
	_, _ = c.Writer.WriteString("data: [DONE]\n\n")
	c.Writer.Flush()
	return nil, &state.usage
}

// translateStreamEvent folds one upstream event into state and returns the
// delta to forward, if any.
func translateStreamEvent(event *StreamResponse, state *streamState) *relaymodel.StreamDelta {
	switch event.Type {
	case "message_start":
		if event.Message != nil {
			if event.Message.Id != "" {
				state.id = "chatcmpl-" + event.Message.Id
			}
			if u := usageClaude2OpenAI(&event.Message.Usage); u != nil {
				state.usage.PromptTokens = u.PromptTokens
				state.usage.CachedPromptTokens = u.CachedPromptTokens
			}
		}
		return &relaymodel.StreamDelta{Role: relaymodel.RoleAssistant}

	case "content_block_start":
		if event.ContentBlock == nil {
			return nil
		}
		state.blockType[event.Index] = event.ContentBlock.Type
		switch event.ContentBlock.Type {
		case "tool_use":
			state.toolIndex++
			idx := state.toolIndex
			return &relaymodel.StreamDelta{ToolCalls: []relaymodel.ToolCall{{
				Index:    &idx,
				Id:       event.ContentBlock.Id,
				Type:     "function",
				Function: relaymodel.FunctionCall{Name: event.ContentBlock.Name},
			}}}
		case "thinking":
			if event.ContentBlock.Thinking != "" {
				return &relaymodel.StreamDelta{ReasoningContent: event.ContentBlock.Thinking}
			}
		case "text":
			if event.ContentBlock.Text != "" {
				return &relaymodel.StreamDelta{Content: event.ContentBlock.Text}
			}
		}
		return nil

	case "content_block_delta":
		if event.Delta == nil {
			return nil
		}
		switch event.Delta.Type {
		case "text_delta":
			return &relaymodel.StreamDelta{Content: event.Delta.Text}
		case "thinking_delta":
			return &relaymodel.StreamDelta{ReasoningContent: event.Delta.Thinking}
		case "input_json_delta":
			if state.toolIndex < 0 {
				return nil
			}
			idx := state.toolIndex
			return &relaymodel.StreamDelta{ToolCalls: []relaymodel.ToolCall{{
				Index:    &idx,
				Function: relaymodel.FunctionCall{Arguments: event.Delta.PartialJSON},
			}}}
		case "citations_delta":
			// Citations collect across the stream and flush as one final
			// array before the terminal usage chunk.
			if cite := event.Delta.Citation; cite != nil {
				state.citations = append(state.citations, relaymodel.Citation{
					URL:     cite.URL,
					Title:   cite.Title,
					Snippet: cite.Cited,
				})
			}
			return nil
		}
		return nil

	case "message_delta":
		if event.Usage != nil {
			state.usage.CompletionTokens = event.Usage.OutputTokens
		}
		if event.Delta != nil && event.Delta.StopReason != nil {
			state.finish = stopReasonClaude2OpenAI(*event.Delta.StopReason)
		}
		return nil
	}
	return nil
}
