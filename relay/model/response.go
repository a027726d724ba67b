package model

// Finish reasons surfaced in the canonical shape.
const (
	FinishReasonStop          = "stop"
	FinishReasonLength        = "length"
	FinishReasonToolCalls     = "tool_calls"
	FinishReasonContentFilter = "content_filter"
	FinishReasonError         = "error"
)

// TextResponse is the canonical non-streaming chat completion.
type TextResponse struct {
	Id      string               `json:"id"`
	Object  string               `json:"object"`
	Created int64                `json:"created"`
	Model   string               `json:"model"`
	Choices []TextResponseChoice `json:"choices"`
	Usage   Usage                `json:"usage"`
}

// TextResponseChoice is one completion choice.
type TextResponseChoice struct {
	Index        int        `json:"index"`
	Message      Message    `json:"message"`
	FinishReason string     `json:"finish_reason"`
	Citations    []Citation `json:"citations,omitempty"`
}

// Citation references a web-search source used by the completion.
type Citation struct {
	URL     string `json:"url"`
	Title   string `json:"title,omitempty"`
	Snippet string `json:"snippet,omitempty"`
}

// ChatCompletionsStreamResponse is one canonical SSE chunk. The final chunk
// of every stream carries a non-nil Usage.
type ChatCompletionsStreamResponse struct {
	Id      string                                `json:"id"`
	Object  string                                `json:"object"`
	Created int64                                 `json:"created"`
	Model   string                                `json:"model"`
	Choices []ChatCompletionsStreamResponseChoice `json:"choices"`
	Usage   *Usage                                `json:"usage,omitempty"`
	Error   *Error                                `json:"error,omitempty"`
}

// ChatCompletionsStreamResponseChoice is one streamed choice delta.
type ChatCompletionsStreamResponseChoice struct {
	Index        int         `json:"index"`
	Delta        StreamDelta `json:"delta"`
	FinishReason *string     `json:"finish_reason,omitempty"`
	Citations    []Citation  `json:"citations,omitempty"`
}

// StreamDelta carries incremental message content.
type StreamDelta struct {
	Role             string     `json:"role,omitempty"`
	Content          string     `json:"content,omitempty"`
	ReasoningContent string     `json:"reasoning_content,omitempty"`
	ToolCalls        []ToolCall `json:"tool_calls,omitempty"`
}

// ImageResponse is the canonical image generation result.
type ImageResponse struct {
	Created int64       `json:"created"`
	Data    []ImageData `json:"data"`
	Usage   *Usage      `json:"usage,omitempty"`
}

// ImageData is one generated image, URL or base64.
type ImageData struct {
	URL           string `json:"url,omitempty"`
	B64JSON       string `json:"b64_json,omitempty"`
	RevisedPrompt string `json:"revised_prompt,omitempty"`
}
