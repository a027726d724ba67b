package openai

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/Laisky/errors/v2"
	gmw "github.com/Laisky/gin-middlewares/v7"
	"github.com/Laisky/zap"
	"github.com/gin-gonic/gin"

	"github.com/shinmentakezo07/shinway-sub001/common"
	"github.com/shinmentakezo07/shinway-sub001/common/ctxkey"
	"github.com/shinmentakezo07/shinway-sub001/common/helper"
	"github.com/shinmentakezo07/shinway-sub001/relay/meta"
	relaymodel "github.com/shinmentakezo07/shinway-sub001/relay/model"
)

// responsesRequest is the /v1/responses request body.
type responsesRequest struct {
	Model           string              `json:"model"`
	Input           []responsesMessage  `json:"input"`
	Instructions    string              `json:"instructions,omitempty"`
	MaxOutputTokens int                 `json:"max_output_tokens,omitempty"`
	Reasoning       *responsesReasoning `json:"reasoning,omitempty"`
	Stream          bool                `json:"stream,omitempty"`
	Text            *responsesText      `json:"text,omitempty"`
	Tools           []responsesTool     `json:"tools,omitempty"`
	ToolChoice      any                 `json:"tool_choice,omitempty"`
}

type responsesMessage struct {
	Role    string             `json:"role"`
	Content []responsesContent `json:"content"`
}

type responsesContent struct {
	Type     string `json:"type"`
	Text     string `json:"text,omitempty"`
	ImageURL string `json:"image_url,omitempty"`
}

type responsesReasoning struct {
	Effort  string `json:"effort,omitempty"`
	Summary string `json:"summary,omitempty"`
}

type responsesText struct {
	Format *responsesTextFormat `json:"format,omitempty"`
}

type responsesTextFormat struct {
	Type   string         `json:"type"`
	Name   string         `json:"name,omitempty"`
	Schema map[string]any `json:"schema,omitempty"`
	Strict *bool          `json:"strict,omitempty"`
}

// responsesTool flattens the chat-completions function wrapper.
type responsesTool struct {
	Type        string `json:"type"`
	Name        string `json:"name,omitempty"`
	Description string `json:"description,omitempty"`
	Parameters  any    `json:"parameters,omitempty"`
}

// convertToResponsesRequest maps the canonical chat request onto the
// Responses API: system messages become instructions, content parts become
// input_text/input_image, function tools flatten.
func convertToResponsesRequest(request *relaymodel.GeneralOpenAIRequest) *responsesRequest {
	out := &responsesRequest{
		Model:           request.Model,
		MaxOutputTokens: request.MaxCompletionTokens,
		Stream:          request.Stream,
		ToolChoice:      request.ToolChoice,
	}
	if out.MaxOutputTokens == 0 {
		out.MaxOutputTokens = request.MaxTokens
	}
	// Reasoning is always on for Responses API models; gpt-5-pro defaults
	// high, the rest medium.
	effort := relaymodel.ReasoningEffortMedium
	if strings.HasPrefix(request.Model, "gpt-5-pro") {
		effort = relaymodel.ReasoningEffortHigh
	}
	if request.ReasoningEffort != nil {
		effort = *request.ReasoningEffort
	}
	out.Reasoning = &responsesReasoning{Effort: effort, Summary: "detailed"}

	var instructions []string
	for _, msg := range request.Messages {
		if msg.Role == relaymodel.RoleSystem {
			instructions = append(instructions, msg.StringContent())
			continue
		}
		role := msg.Role
		if role == relaymodel.RoleTool {
			// The Responses API has no tool role; results go back as user
			// input.
			role = relaymodel.RoleUser
		}
		converted := responsesMessage{Role: role}
		for _, part := range msg.ParseContent() {
			switch part.Type {
			case relaymodel.ContentTypeText:
				if part.Text != nil {
					converted.Content = append(converted.Content, responsesContent{Type: "input_text", Text: *part.Text})
				}
			case relaymodel.ContentTypeImageURL:
				if part.ImageURL != nil {
					converted.Content = append(converted.Content, responsesContent{Type: "input_image", ImageURL: part.ImageURL.Url})
				}
			}
		}
		if msg.Role == relaymodel.RoleAssistant {
			for i := range converted.Content {
				converted.Content[i].Type = "output_text"
			}
		}
		if len(converted.Content) > 0 {
			out.Input = append(out.Input, converted)
		}
	}
	out.Instructions = strings.Join(instructions, "\n\n")

	for _, tool := range relaymodel.FunctionTools(request.Tools) {
		out.Tools = append(out.Tools, responsesTool{
			Type:        "function",
			Name:        tool.Function.Name,
			Description: tool.Function.Description,
			Parameters:  tool.Function.Parameters,
		})
	}
	if request.WantsWebSearch() {
		out.Tools = append(out.Tools, responsesTool{Type: "web_search"})
	}

	if request.ResponseFormat != nil {
		switch request.ResponseFormat.Type {
		case "json_schema":
			if schema := request.ResponseFormat.JsonSchema; schema != nil {
				out.Text = &responsesText{Format: &responsesTextFormat{
					Type: "json_schema", Name: schema.Name, Schema: schema.Schema, Strict: schema.Strict,
				}}
			}
		case "json_object":
			out.Text = &responsesText{Format: &responsesTextFormat{Type: "json_object"}}
		}
	}
	return out
}

// responsesResponse is the /v1/responses result envelope.
type responsesResponse struct {
	ID        string            `json:"id"`
	Object    string            `json:"object"`
	CreatedAt int64             `json:"created_at"`
	Model     string            `json:"model"`
	Status    string            `json:"status"`
	Output    []responsesOutput `json:"output"`
	Usage     *responsesUsage   `json:"usage"`
	Error     *struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

type responsesOutput struct {
	Type    string `json:"type"`
	Role    string `json:"role,omitempty"`
	Content []struct {
		Type string `json:"type"`
		Text string `json:"text,omitempty"`
	} `json:"content,omitempty"`

	// function_call outputs.
	CallID    string `json:"call_id,omitempty"`
	Name      string `json:"name,omitempty"`
	Arguments string `json:"arguments,omitempty"`
}

type responsesUsage struct {
	InputTokens        int `json:"input_tokens"`
	OutputTokens       int `json:"output_tokens"`
	TotalTokens        int `json:"total_tokens"`
	InputTokensDetails struct {
		CachedTokens int `json:"cached_tokens"`
	} `json:"input_tokens_details"`
	OutputTokensDetails struct {
		ReasoningTokens int `json:"reasoning_tokens"`
	} `json:"output_tokens_details"`
}

func (u *responsesUsage) toCanonical() *relaymodel.Usage {
	if u == nil {
		return nil
	}
	usage := &relaymodel.Usage{
		PromptTokens:       u.InputTokens,
		CompletionTokens:   u.OutputTokens,
		TotalTokens:        u.TotalTokens,
		CachedPromptTokens: u.InputTokensDetails.CachedTokens,
		ReasoningTokens:    u.OutputTokensDetails.ReasoningTokens,
	}
	usage.Normalize()
	return usage
}

// responsesHandler converts a non-streaming Responses API result back to the
// chat completion shape.
func responsesHandler(c *gin.Context, resp *http.Response, meta *meta.Meta) (*relaymodel.ErrorWithStatusCode, *relaymodel.Usage) {
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return relaymodel.NewError(http.StatusInternalServerError, relaymodel.ErrorTypeInternal,
			errors.Wrap(err, "read responses api body"), "read_response_body_failed"), nil
	}
	_ = resp.Body.Close()

	var parsed responsesResponse
	if err = json.Unmarshal(body, &parsed); err != nil {
		return relaymodel.NewError(http.StatusInternalServerError, relaymodel.ErrorTypeInternal,
			errors.Wrap(err, "unmarshal responses api body"), "unmarshal_response_body_failed"), nil
	}
	if parsed.Error != nil {
		return relaymodel.WrapUpstreamError(resp.StatusCode, string(meta.Provider),
			errors.New(parsed.Error.Message)), nil
	}

	choice := relaymodel.TextResponseChoice{FinishReason: relaymodel.FinishReasonStop}
	choice.Message.Role = relaymodel.RoleAssistant
	var text strings.Builder
	for _, output := range parsed.Output {
		switch output.Type {
		case "message":
			for _, content := range output.Content {
				if content.Type == "output_text" {
					text.WriteString(content.Text)
				}
			}
		case "function_call":
			choice.Message.ToolCalls = append(choice.Message.ToolCalls, relaymodel.ToolCall{
				Id:   output.CallID,
				Type: "function",
				Function: relaymodel.FunctionCall{
					Name:      output.Name,
					Arguments: output.Arguments,
				},
			})
			choice.FinishReason = relaymodel.FinishReasonToolCalls
		}
	}
	choice.Message.Content = text.String()
	if parsed.Status == "incomplete" {
		choice.FinishReason = relaymodel.FinishReasonLength
	}

	usage := parsed.Usage.toCanonical()
	if usage == nil {
		usage = &relaymodel.Usage{PromptTokens: meta.PromptTokens}
	}
	converted := relaymodel.TextResponse{
		Id:      parsed.ID,
		Object:  "chat.completion",
		Created: parsed.CreatedAt,
		Model:   meta.OriginModelName,
		Choices: []relaymodel.TextResponseChoice{choice},
		Usage:   *usage,
	}

	out, err := json.Marshal(&converted)
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
	return nil, usage
}

// responsesStreamEvent is one SSE data payload from /v1/responses.
type responsesStreamEvent struct {
	Type     string             `json:"type"`
	Delta    string             `json:"delta,omitempty"`
	ItemID   string             `json:"item_id,omitempty"`
	Response *responsesResponse `json:"response,omitempty"`
	Item     *responsesOutput   `json:"item,omitempty"`
}

// responsesStreamHandler converts Responses API SSE events into canonical
// chat completion chunks.
func responsesStreamHandler(c *gin.Context, resp *http.Response, meta *meta.Meta) (*relaymodel.ErrorWithStatusCode, *relaymodel.Usage) {
	logger := gmw.GetLogger(c)
	common.SetEventStreamHeaders(c)
	defer func() { _ = resp.Body.Close() }()

	scanner := helper.NewSSEScanner(resp.Body)

	var (
		usage     *relaymodel.Usage
		streamID  = helper.GenRequestID()
		created   = helper.GetTimestamp()
		toolIndex = -1
	)

	emit := func(delta relaymodel.StreamDelta, finish *string) {
		chunk := &relaymodel.ChatCompletionsStreamResponse{
			Id:      "chatcmpl-" + streamID,
			Object:  "chat.completion.chunk",
			Created: created,
			Model:   meta.OriginModelName,
			Choices: []relaymodel.ChatCompletionsStreamResponseChoice{{
				Delta:        delta,
				FinishReason: finish,
			}},
		}
		encoded, err := json.Marshal(chunk)
		if err != nil {
			logger.Warn("marshal converted chunk failed", zap.Error(err))
			return
		}
		_, _ = c.Writer.WriteString("data: " + string(encoded) + "\n\n")
		c.Writer.Flush()
		c.Set(ctxkey.FirstByteSent, true)
	}

	for scanner.Scan() {
		line := scanner.Text()
		if !strings.HasPrefix(line, "data: ") {
			continue
		}
		payload := strings.TrimSpace(line[len("data: "):])
		if payload == "[DONE]" {
			break
		}
		var event responsesStreamEvent
		if err := json.Unmarshal([]byte(payload), &event); err != nil {
			logger.Warn("skip malformed responses event", zap.Error(err))
			continue
		}

		switch event.Type {
		case "response.output_text.delta":
			emit(relaymodel.StreamDelta{Role: relaymodel.RoleAssistant, Content: event.Delta}, nil)
		case "response.reasoning_summary_text.delta":
			emit(relaymodel.StreamDelta{Role: relaymodel.RoleAssistant, ReasoningContent: event.Delta}, nil)
		case "response.output_item.added":
			if event.Item != nil && event.Item.Type == "function_call" {
				toolIndex++
				idx := toolIndex
				emit(relaymodel.StreamDelta{
					Role: relaymodel.RoleAssistant,
					ToolCalls: []relaymodel.ToolCall{{
						Index: &idx,
						Id:    event.Item.CallID,
						Type:  "function",
						Function: relaymodel.FunctionCall{
							Name: event.Item.Name,
						},
					}},
				}, nil)
			}
		case "response.function_call_arguments.delta":
			if toolIndex >= 0 {
				idx := toolIndex
				emit(relaymodel.StreamDelta{
					ToolCalls: []relaymodel.ToolCall{{
						Index:    &idx,
						Function: relaymodel.FunctionCall{Arguments: event.Delta},
					}},
				}, nil)
			}
		case "response.completed", "response.incomplete":
			if event.Response != nil {
				usage = event.Response.Usage.toCanonical()
			}
		}
	}
	if err := scanner.Err(); err != nil {
		logger.Warn("responses stream truncated", zap.Error(err))
	}

	if usage == nil {
		usage = &relaymodel.Usage{PromptTokens: meta.PromptTokens}
		usage.Normalize()
	}
	finish := relaymodel.FinishReasonStop
	if toolIndex >= 0 {
		finish = relaymodel.FinishReasonToolCalls
	}
	terminal := &relaymodel.ChatCompletionsStreamResponse{
		Id:      "chatcmpl-" + streamID,
		Object:  "chat.completion.chunk",
		Created: created,
		Model:   meta.OriginModelName,
		Choices: []relaymodel.ChatCompletionsStreamResponseChoice{{
			FinishReason: &finish,
		}},
		Usage: usage,
	}
	if encoded, err := json.Marshal(terminal); err == nil {
		_, _ = c.Writer.WriteString("data: " + string(encoded) + "\n\n")
	}
	_, _ = c.Writer.WriteString("data: [DONE]\n\n")
	c.Writer.Flush()
	return nil, usage
}
