package model

import "encoding/json"

// Message roles accepted at the public edge.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleTool      = "tool"
)

// Content part types.
const (
	ContentTypeText       = "text"
	ContentTypeImageURL   = "image_url"
	ContentTypeImage      = "image"
	ContentTypeToolUse    = "tool_use"
	ContentTypeToolResult = "tool_result"
)

// Message is one canonical chat message. Content is either a plain string or
// an ordered []MessageContent; ParseContent normalizes both shapes.
type Message struct {
	Role             string     `json:"role,omitempty"`
	Content          any        `json:"content,omitempty"`
	ReasoningContent string     `json:"reasoning_content,omitempty"`
	Name             *string    `json:"name,omitempty"`
	ToolCalls        []ToolCall `json:"tool_calls,omitempty"`
	ToolCallId       string     `json:"tool_call_id,omitempty"`
}

// MessageContent is a single ordered content part.
type MessageContent struct {
	Type     string        `json:"type,omitempty"`
	Text     *string       `json:"text,omitempty"`
	ImageURL *ImageURL     `json:"image_url,omitempty"`
	Image    *InlineImage  `json:"image,omitempty"`
	ToolUse  *ToolCall     `json:"tool_use,omitempty"`
	Result   *ToolResultIn `json:"tool_result,omitempty"`
}

// ImageURL carries a remote or data-URL image reference.
type ImageURL struct {
	Url    string `json:"url,omitempty"`
	Detail string `json:"detail,omitempty"`
}

// InlineImage carries a base64 image payload with its media type.
type InlineImage struct {
	MediaType string `json:"media_type,omitempty"`
	Data      string `json:"data,omitempty"`
}

// ToolResultIn is an inbound tool_result content part.
type ToolResultIn struct {
	ToolCallId string `json:"tool_call_id,omitempty"`
	Content    string `json:"content,omitempty"`
	IsError    bool   `json:"is_error,omitempty"`
}

// IsStringContent reports whether Content is the plain-string shape.
func (m Message) IsStringContent() bool {
	_, ok := m.Content.(string)
	return ok
}

// StringContent flattens the message content to text. Part lists concatenate
// their text parts in order; non-text parts contribute nothing.
func (m Message) StringContent() string {
	if content, ok := m.Content.(string); ok {
		return content
	}

	var sb []byte
	for _, part := range m.ParseContent() {
		if part.Type == ContentTypeText && part.Text != nil {
			sb = append(sb, *part.Text...)
		}
	}
	return string(sb)
}

// ParseContent returns the ordered content parts regardless of which JSON
// shape the caller used.
func (m Message) ParseContent() []MessageContent {
	switch typed := m.Content.(type) {
	case nil:
		return nil
	case string:
		text := typed
		return []MessageContent{{Type: ContentTypeText, Text: &text}}
	case []MessageContent:
		return typed
	case []any:
		parts := make([]MessageContent, 0, len(typed))
		for _, raw := range typed {
			encoded, err := json.Marshal(raw)
			if err != nil {
				continue
			}
			var part MessageContent
			if err = json.Unmarshal(encoded, &part); err != nil {
				continue
			}
			if part.Type == "" && part.Text != nil {
				part.Type = ContentTypeText
			}
			if part.Type == "" && part.ImageURL != nil {
				part.Type = ContentTypeImageURL
			}
			parts = append(parts, part)
		}
		return parts
	default:
		return nil
	}
}
