package anthropic

// Request is the Anthropic Messages API request body.
type Request struct {
	Model         string    `json:"model"`
	System        []Content `json:"system,omitempty"`
	Messages      []Message `json:"messages"`
	MaxTokens     int       `json:"max_tokens"`
	Temperature   *float64  `json:"temperature,omitempty"`
	TopP          *float64  `json:"top_p,omitempty"`
	StopSequences []string  `json:"stop_sequences,omitempty"`
	Stream        bool      `json:"stream,omitempty"`
	Tools         []Tool    `json:"tools,omitempty"`
	ToolChoice    any       `json:"tool_choice,omitempty"`
	Thinking      *Thinking `json:"thinking,omitempty"`
}

type Message struct {
	Role    string    `json:"role"`
	Content []Content `json:"content"`
}

// Content is one Anthropic content block, request or response side.
type Content struct {
	Type string `json:"type"`
	Text string `json:"text,omitempty"`

	Source *ImageSource `json:"source,omitempty"`

	// tool_use blocks.
	Id    string `json:"id,omitempty"`
	Name  string `json:"name,omitempty"`
	Input any    `json:"input,omitempty"`

	// tool_result blocks.
	ToolUseId string `json:"tool_use_id,omitempty"`
	Content   any    `json:"content,omitempty"`
	IsError   bool   `json:"is_error,omitempty"`

	// thinking blocks.
	Thinking  string `json:"thinking,omitempty"`
	Signature string `json:"signature,omitempty"`

	CacheControl *CacheControl `json:"cache_control,omitempty"`

	// Web search result citations.
	Citations []ResponseCitation `json:"citations,omitempty"`
}

type ImageSource struct {
	Type      string `json:"type"`
	MediaType string `json:"media_type,omitempty"`
	Data      string `json:"data,omitempty"`
	URL       string `json:"url,omitempty"`
}

// CacheControl marks a block as a prompt-cache breakpoint.
type CacheControl struct {
	Type string `json:"type"`
}

// Tool is either a function tool (Name+InputSchema) or a server tool like
// web_search_20250305 (Type+Name).
type Tool struct {
	Type        string `json:"type,omitempty"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	InputSchema any    `json:"input_schema,omitempty"`

	// web_search server tool tuning.
	MaxUses      int           `json:"max_uses,omitempty"`
	UserLocation *UserLocation `json:"user_location,omitempty"`
}

type UserLocation struct {
	Type     string `json:"type"`
	City     string `json:"city,omitempty"`
	Region   string `json:"region,omitempty"`
	Country  string `json:"country,omitempty"`
	Timezone string `json:"timezone,omitempty"`
}

// Thinking enables extended thinking with a token budget.
type Thinking struct {
	Type         string `json:"type"`
	BudgetTokens int    `json:"budget_tokens,omitempty"`
}

// Response is the non-streaming Messages API result.
type Response struct {
	Id         string    `json:"id"`
	Type       string    `json:"type"`
	Role       string    `json:"role"`
	Model      string    `json:"model"`
	Content    []Content `json:"content"`
	StopReason string    `json:"stop_reason"`
	Usage      Usage     `json:"usage"`

	Error *Error `json:"error,omitempty"`
}

type Error struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

type Usage struct {
	InputTokens              int `json:"input_tokens"`
	OutputTokens             int `json:"output_tokens"`
	CacheCreationInputTokens int `json:"cache_creation_input_tokens"`
	CacheReadInputTokens     int `json:"cache_read_input_tokens"`
}

// ResponseCitation is a web-search citation attached to a text block.
type ResponseCitation struct {
	Type  string `json:"type"`
	URL   string `json:"url,omitempty"`
	Title string `json:"title,omitempty"`
	Cited string `json:"cited_text,omitempty"`
}

// StreamResponse is one Messages API SSE event.
type StreamResponse struct {
	Type         string    `json:"type"`
	Index        int       `json:"index,omitempty"`
	Message      *Response `json:"message,omitempty"`
	ContentBlock *Content  `json:"content_block,omitempty"`
	Delta        *Delta    `json:"delta,omitempty"`
	Usage        *Usage    `json:"usage,omitempty"`
	Error        *Error    `json:"error,omitempty"`
	RequestId    string    `json:"request_id,omitempty"`
}

// Delta carries incremental block or message updates.
type Delta struct {
	Type        string  `json:"type,omitempty"`
	Text        string  `json:"text,omitempty"`
	Thinking    string  `json:"thinking,omitempty"`
	Signature   string  `json:"signature,omitempty"`
	PartialJSON string  `json:"partial_json,omitempty"`
	StopReason  *string `json:"stop_reason,omitempty"`

	// citations_delta.
	Citation *ResponseCitation `json:"citation,omitempty"`
}
