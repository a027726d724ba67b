// Package gemini translates canonical requests for the Google AI Studio and
// Vertex generateContent APIs: schema cleanup, thinking budgets, safety
// settings, search grounding, and image output.
package gemini

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
	"github.com/shinmentakezo07/shinway-sub001/common/config"
	"github.com/shinmentakezo07/shinway-sub001/common/ctxkey"
	"github.com/shinmentakezo07/shinway-sub001/common/helper"
	"github.com/shinmentakezo07/shinway-sub001/relay/meta"
	relaymodel "github.com/shinmentakezo07/shinway-sub001/relay/model"
)

// safetyThreshold disables Gemini's category filters; moderation is the
// caller's responsibility at the edge.
const safetyThreshold = "BLOCK_NONE"

var safetyCategories = []string{
	"HARM_CATEGORY_HARASSMENT",
	"HARM_CATEGORY_HATE_SPEECH",
	"HARM_CATEGORY_SEXUALLY_EXPLICIT",
	"HARM_CATEGORY_DANGEROUS_CONTENT",
	"HARM_CATEGORY_CIVIC_INTEGRITY",
}

// Thinking budgets by requested reasoning effort.
var thinkingBudgets = map[string]int{
	relaymodel.ReasoningEffortMinimal: 512,
	relaymodel.ReasoningEffortLow:     2048,
	relaymodel.ReasoningEffortMedium:  8192,
	relaymodel.ReasoningEffortHigh:    24576,
}

// geminiSupportedSchemaFields is the allow-list for response and parameter
// schemas; everything else (additionalProperties, $schema, strict, ...) is
// dropped.
var geminiSupportedSchemaFields = map[string]bool{
	"anyOf": true, "enum": true, "format": true, "items": true,
	"maximum": true, "maxItems": true, "minimum": true, "minItems": true,
	"nullable": true, "properties": true, "propertyOrdering": true,
	"required": true, "type": true, "description": true,
}

var geminiTypeMapping = map[string]string{
	"object": "OBJECT", "array": "ARRAY", "string": "STRING",
	"number": "NUMBER", "integer": "INTEGER", "boolean": "BOOLEAN", "null": "NULL",
}

// CleanSchema rewrites a JSON schema into Gemini's dialect: unsupported
// fields are dropped and type names are uppercased, recursively.
func CleanSchema(schema any) any {
	switch v := schema.(type) {
	case map[string]any:
		cleaned := make(map[string]any, len(v))
		for key, value := range v {
			if !geminiSupportedSchemaFields[key] {
				continue
			}
			switch key {
			case "type":
				if typeStr, ok := value.(string); ok {
					if mapped, exists := geminiTypeMapping[strings.ToLower(typeStr)]; exists {
						cleaned[key] = mapped
					} else {
						cleaned[key] = strings.ToUpper(typeStr)
					}
				} else {
					cleaned[key] = value
				}
			case "properties":
				if props, ok := value.(map[string]any); ok {
					cleanedProps := make(map[string]any, len(props))
					for propKey, propValue := range props {
						cleanedProps[propKey] = CleanSchema(propValue)
					}
					cleaned[key] = cleanedProps
				} else {
					cleaned[key] = value
				}
			default:
				cleaned[key] = CleanSchema(value)
			}
		}
		return cleaned
	case []any:
		cleaned := make([]any, len(v))
		for i, item := range v {
			cleaned[i] = CleanSchema(item)
		}
		return cleaned
	default:
		return v
	}
}

func isImageModel(modelName string) bool {
	return strings.Contains(strings.ToLower(modelName), "-image")
}

// ConvertRequest maps the canonical chat request onto generateContent.
func ConvertRequest(textRequest *relaymodel.GeneralOpenAIRequest, supportsSystemRole bool) *ChatRequest {
	geminiRequest := ChatRequest{
		Contents: make([]ChatContent, 0, len(textRequest.Messages)),
		GenerationConfig: ChatGenerationConfig{
			Temperature:     textRequest.Temperature,
			TopP:            textRequest.TopP,
			MaxOutputTokens: textRequest.MaxTokens,
			Seed:            textRequest.Seed,
		},
	}
	for _, category := range safetyCategories {
		geminiRequest.SafetySettings = append(geminiRequest.SafetySettings, ChatSafetySettings{
			Category:  category,
			Threshold: safetyThreshold,
		})
	}
	if geminiRequest.GenerationConfig.MaxOutputTokens == 0 {
		geminiRequest.GenerationConfig.MaxOutputTokens = config.DefaultMaxTokens
	}
	switch stop := textRequest.Stop.(type) {
	case string:
		geminiRequest.GenerationConfig.StopSequences = []string{stop}
	case []any:
		for _, s := range stop {
			if str, ok := s.(string); ok {
				geminiRequest.GenerationConfig.StopSequences = append(geminiRequest.GenerationConfig.StopSequences, str)
			}
		}
	}

	if textRequest.ResponseFormat != nil {
		switch textRequest.ResponseFormat.Type {
		case "json_object":
			geminiRequest.GenerationConfig.ResponseMimeType = "application/json"
		case "json_schema":
			geminiRequest.GenerationConfig.ResponseMimeType = "application/json"
			if schema := textRequest.ResponseFormat.JsonSchema; schema != nil {
				geminiRequest.GenerationConfig.ResponseSchema = CleanSchema(map[string]any(schema.Schema))
			}
		}
	}

	if textRequest.ReasoningEffort != nil {
		if budget, ok := thinkingBudgets[*textRequest.ReasoningEffort]; ok {
			geminiRequest.GenerationConfig.ThinkingConfig = &ThinkingConfig{
				ThinkingBudget:  budget,
				IncludeThoughts: true,
			}
		}
	}

	if isImageModel(textRequest.Model) {
		geminiRequest.GenerationConfig.Temperature = nil
		geminiRequest.GenerationConfig.TopP = nil
		geminiRequest.GenerationConfig.ResponseModalities = []string{"TEXT", "IMAGE"}
		if cfg := textRequest.ImageConfig; cfg != nil {
			geminiRequest.GenerationConfig.ImageConfig = &ImageConfig{
				AspectRatio: cfg.AspectRatio,
				ImageSize:   cfg.ImageSize,
			}
		}
	}

	if fns := relaymodel.FunctionTools(textRequest.Tools); len(fns) > 0 {
		declarations := make([]FunctionDeclaration, 0, len(fns))
		for _, tool := range fns {
			declarations = append(declarations, FunctionDeclaration{
				Name:        tool.Function.Name,
				Description: tool.Function.Description,
				Parameters:  CleanSchema(tool.Function.Parameters),
			})
		}
		geminiRequest.Tools = append(geminiRequest.Tools, ChatTools{FunctionDeclarations: declarations})
	}
	if textRequest.WantsWebSearch() {
		geminiRequest.Tools = append(geminiRequest.Tools, ChatTools{GoogleSearch: &GoogleSearch{}})
	}
	if cfg := convertToolChoice(textRequest.ToolChoice); cfg != nil {
		geminiRequest.ToolConfig = cfg
	}

	appendMessages(&geminiRequest, textRequest, supportsSystemRole)
	return &geminiRequest
}

func convertToolChoice(toolChoice any) *ToolConfig {
	switch choice := toolChoice.(type) {
	case string:
		switch choice {
		case "none":
			return &ToolConfig{FunctionCallingConfig: FunctionCallingConfig{Mode: "NONE"}}
		case "required":
			return &ToolConfig{FunctionCallingConfig: FunctionCallingConfig{Mode: "ANY"}}
		case "auto":
			return &ToolConfig{FunctionCallingConfig: FunctionCallingConfig{Mode: "AUTO"}}
		}
	case map[string]any:
		if fn, ok := choice["function"].(map[string]any); ok {
			if name, ok := fn["name"].(string); ok && name != "" {
				return &ToolConfig{FunctionCallingConfig: FunctionCallingConfig{
					Mode:                 "ANY",
					AllowedFunctionNames: []string{name},
				}}
			}
		}
	}
	return nil
}

func appendMessages(geminiRequest *ChatRequest, textRequest *relaymodel.GeneralOpenAIRequest, supportsSystemRole bool) {
	for _, message := range textRequest.Messages {
		var parts []Part
		for _, part := range message.ParseContent() {
			switch part.Type {
			case relaymodel.ContentTypeText:
				if part.Text != nil && *part.Text != "" {
					parts = append(parts, Part{Text: *part.Text})
				}
			case relaymodel.ContentTypeImageURL:
				if part.ImageURL == nil {
					continue
				}
				if inline := inlineDataFromURL(part.ImageURL.Url); inline != nil {
					parts = append(parts, Part{InlineData: inline})
				}
			case relaymodel.ContentTypeImage:
				if part.Image != nil {
					parts = append(parts, Part{InlineData: &InlineData{
						MimeType: part.Image.MediaType,
						Data:     part.Image.Data,
					}})
				}
			}
		}
		for _, call := range message.ToolCalls {
			var args any
			if err := json.Unmarshal([]byte(call.Function.Arguments), &args); err != nil {
				args = call.Function.Arguments
			}
			parts = append(parts, Part{FunctionCall: &FunctionCall{
				FunctionName: call.Function.Name,
				Arguments:    args,
			}})
		}
		if message.Role == relaymodel.RoleTool {
			parts = []Part{{FunctionResponse: &FunctionResponse{
				Name:     message.ToolCallId,
				Response: map[string]any{"content": message.StringContent()},
			}}}
		}
		if len(parts) == 0 {
			// Gemini rejects empty part lists.
			parts = []Part{{Text: " "}}
		}

		content := ChatContent{Role: message.Role, Parts: parts}
		switch content.Role {
		case relaymodel.RoleAssistant:
			content.Role = "model"
		case relaymodel.RoleTool:
			content.Role = "user"
		case relaymodel.RoleSystem:
			if supportsSystemRole {
				content.Role = ""
				geminiRequest.SystemInstruction = &content
				continue
			}
			// Models without system_instruction get the prompt as a user
			// turn followed by a model ack to keep turn alternation valid.
			content.Role = "user"
			geminiRequest.Contents = append(geminiRequest.Contents, content,
				ChatContent{Role: "model", Parts: []Part{{Text: "Okay"}}})
			continue
		}
		geminiRequest.Contents = append(geminiRequest.Contents, content)
	}
}

// inlineDataFromURL converts a data URL to inline data. Remote URLs are not
// fetched here; the normalizer inlines them beforehand.
func inlineDataFromURL(url string) *InlineData {
	if !strings.HasPrefix(url, "data:") {
		return nil
	}
	header, data, found := strings.Cut(url, ",")
	if !found {
		return nil
	}
	mimeType := strings.TrimSuffix(strings.TrimPrefix(header, "data:"), ";base64")
	return &InlineData{MimeType: mimeType, Data: data}
}

func finishReasonGemini2OpenAI(reason string) string {
	switch reason {
	case "STOP":
		return relaymodel.FinishReasonStop
	case "MAX_TOKENS":
		return relaymodel.FinishReasonLength
	case "SAFETY", "RECITATION", "PROHIBITED_CONTENT", "BLOCKLIST":
		return relaymodel.FinishReasonContentFilter
	default:
		return relaymodel.FinishReasonStop
	}
}

func usageGemini2OpenAI(metadata *UsageMetadata) *relaymodel.Usage {
	if metadata == nil {
		return nil
	}
	usage := &relaymodel.Usage{
		PromptTokens:       metadata.PromptTokenCount,
		CompletionTokens:   metadata.CandidatesTokenCount + metadata.ThoughtsTokenCount,
		CachedPromptTokens: metadata.CachedContentTokenCount,
		ReasoningTokens:    metadata.ThoughtsTokenCount,
	}
	usage.TotalTokens = usage.PromptTokens + usage.CompletionTokens
	return usage
}

func citationsFromGrounding(metadata *GroundingMetadata) []relaymodel.Citation {
	if metadata == nil {
		return nil
	}
	var cites []relaymodel.Citation
	for _, chunk := range metadata.GroundingChunks {
		if chunk.Web != nil {
			cites = append(cites, relaymodel.Citation{URL: chunk.Web.URI, Title: chunk.Web.Title})
		}
	}
	return cites
}

// responseGemini2OpenAI converts a full generateContent result.
func responseGemini2OpenAI(response *ChatResponse, modelName string) *relaymodel.TextResponse {
	converted := &relaymodel.TextResponse{
		Id:      "chatcmpl-" + helper.GenRequestID(),
		Object:  "chat.completion",
		Created: helper.GetTimestamp(),
		Model:   modelName,
	}
	for i, candidate := range response.Candidates {
		choice := relaymodel.TextResponseChoice{
			Index:        i,
			FinishReason: finishReasonGemini2OpenAI(candidate.FinishReason),
			Citations:    citationsFromGrounding(candidate.GroundingMetadata),
		}
		choice.Message.Role = relaymodel.RoleAssistant

		var text, reasoning strings.Builder
		for _, part := range candidate.Content.Parts {
			switch {
			case part.FunctionCall != nil:
				arguments, _ := json.Marshal(part.FunctionCall.Arguments)
				choice.Message.ToolCalls = append(choice.Message.ToolCalls, relaymodel.ToolCall{
					Id:   "call_" + helper.GenRequestID(),
					Type: "function",
					Function: relaymodel.FunctionCall{
						Name:      part.FunctionCall.FunctionName,
						Arguments: string(arguments),
					},
				})
				choice.FinishReason = relaymodel.FinishReasonToolCalls
			case part.InlineData != nil:
				text.WriteString("![image](data:" + part.InlineData.MimeType + ";base64," + part.InlineData.Data + ")")
			case part.Thought:
				reasoning.WriteString(part.Text)
			default:
				text.WriteString(part.Text)
			}
		}
		choice.Message.Content = text.String()
		choice.Message.ReasoningContent = reasoning.String()
		converted.Choices = append(converted.Choices, choice)
	}
	if usage := usageGemini2OpenAI(response.UsageMetadata); usage != nil {
		converted.Usage = *usage
	}
	return converted
}

// Handler relays a non-streaming generateContent response.
func Handler(c *gin.Context, resp *http.Response, m *meta.Meta) (*relaymodel.ErrorWithStatusCode, *relaymodel.Usage) {
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return relaymodel.NewError(http.StatusInternalServerError, relaymodel.ErrorTypeInternal,
			errors.Wrap(err, "read upstream response"), "read_response_body_failed"), nil
	}
	_ = resp.Body.Close()

	var geminiResponse ChatResponse
	if err = json.Unmarshal(body, &geminiResponse); err != nil {
		return relaymodel.NewError(http.StatusInternalServerError, relaymodel.ErrorTypeInternal,
			errors.Wrap(err, "unmarshal upstream response"), "unmarshal_response_body_failed"), nil
	}
	if geminiResponse.Error != nil {
		return relaymodel.WrapUpstreamError(resp.StatusCode, "gemini",
			errors.Errorf("%s: %s", geminiResponse.Error.Status, geminiResponse.Error.Message)), nil
	}
	if len(geminiResponse.Candidates) == 0 {
		return relaymodel.WrapUpstreamError(http.StatusBadGateway, "gemini",
			errors.New("no candidates returned")), nil
	}

	converted := responseGemini2OpenAI(&geminiResponse, m.OriginModelName)
	if converted.Usage.TotalTokens == 0 {
		converted.Usage = relaymodel.Usage{
			PromptTokens: m.PromptTokens,
			TotalTokens:  m.PromptTokens,
		}
	}
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

// StreamHandler translates streamGenerateContent SSE chunks into canonical
// stream chunks.
func StreamHandler(c *gin.Context, resp *http.Response, m *meta.Meta) (*relaymodel.ErrorWithStatusCode, *relaymodel.Usage) {
	logger := gmw.GetLogger(c)
	common.SetEventStreamHeaders(c)
	defer func() { _ = resp.Body.Close() }()

	scanner := helper.NewSSEScanner(resp.Body)

	var (
		usage     relaymodel.Usage
		streamID  = "chatcmpl-" + helper.GenRequestID()
		created   = helper.GetTimestamp()
		toolIndex = -1
		finish    = relaymodel.FinishReasonStop
	)

	for scanner.Scan() {
		line := scanner.Text()
		if !strings.HasPrefix(line, "data: ") {
			continue
		}
		var geminiResponse ChatResponse
		if err := json.Unmarshal([]byte(strings.TrimSpace(line[len("data: "):])), &geminiResponse); err != nil {
			logger.Warn("skip malformed stream chunk", zap.Error(err))
			continue
		}
		if geminiResponse.Error != nil {
			if sent, _ := c.Get(ctxkey.FirstByteSent); sent != true {
				return relaymodel.WrapUpstreamError(http.StatusBadGateway, "gemini",
					errors.Errorf("%s: %s", geminiResponse.Error.Status, geminiResponse.Error.Message)), nil
			}
			break
		}
		if u := usageGemini2OpenAI(geminiResponse.UsageMetadata); u != nil && u.TotalTokens > 0 {
			usage = *u
		}

		for _, candidate := range geminiResponse.Candidates {
			if candidate.FinishReason != "" {
				finish = finishReasonGemini2OpenAI(candidate.FinishReason)
			}
			for _, part := range candidate.Content.Parts {
				delta := relaymodel.StreamDelta{Role: relaymodel.RoleAssistant}
				switch {
				case part.FunctionCall != nil:
					toolIndex++
					idx := toolIndex
					arguments, _ := json.Marshal(part.FunctionCall.Arguments)
					delta.ToolCalls = []relaymodel.ToolCall{{
						Index: &idx,
						Id:    "call_" + helper.GenRequestID(),
						Type:  "function",
						Function: relaymodel.FunctionCall{
							Name:      part.FunctionCall.FunctionName,
							Arguments: string(arguments),
						},
					}}
					finish = relaymodel.FinishReasonToolCalls
				case part.InlineData != nil:
					delta.Content = "![image](data:" + part.InlineData.MimeType + ";base64," + part.InlineData.Data + ")"
				case part.Thought:
					delta.ReasoningContent = part.Text
				default:
					if part.Text == "" {
						continue
					}
					delta.Content = part.Text
				}

				chunk := &relaymodel.ChatCompletionsStreamResponse{
					Id:      streamID,
					Object:  "chat.completion.chunk",
					Created: created,
					Model:   m.OriginModelName,
					Choices: []relaymodel.ChatCompletionsStreamResponseChoice{{
						Delta:     delta,
						Citations: citationsFromGrounding(candidate.GroundingMetadata),
					}},
				}
				if encoded, err := json.Marshal(chunk); err == nil {
					_, _ = c.Writer.WriteString("data: " + string(encoded) + "\n\n")
					c.Writer.Flush()
					c.Set(ctxkey.FirstByteSent, true)
				}
			}
		}
	}
	if err := scanner.Err(); err != nil {
		if sent, _ := c.Get(ctxkey.FirstByteSent); sent != true {
			return relaymodel.NewError(http.StatusBadGateway, relaymodel.ErrorTypeUpstreamTransient,
				errors.Wrap(err, "read upstream stream"), "stream_read_failed"), nil
		}
		logger.Warn("upstream stream truncated", zap.Error(err))
	}

	if usage.TotalTokens == 0 {
		usage.PromptTokens = m.PromptTokens
		usage.TotalTokens = m.PromptTokens
	}
	terminal := &relaymodel.ChatCompletionsStreamResponse{
		Id:      streamID,
		Object:  "chat.completion.chunk",
		Created: created,
		Model:   m.OriginModelName,
		Choices: []relaymodel.ChatCompletionsStreamResponseChoice{{FinishReason: &finish}},
		Usage:   &usage,
	}
	if encoded, err := json.Marshal(terminal); err == nil {
		_, _ = c.Writer.WriteString("data: " + string(encoded) + "\n\n")
	}
	_, _ = c.Writer.WriteString("data: [DONE]\n\n")
	c.Writer.Flush()
	return nil, &usage
}
