package model

import (
	"encoding/json"

	"github.com/Laisky/errors/v2"
)

// Reasoning effort levels accepted at the edge.
const (
	ReasoningEffortMinimal = "minimal"
	ReasoningEffortLow     = "low"
	ReasoningEffortMedium  = "medium"
	ReasoningEffortHigh    = "high"
)

// GeneralOpenAIRequest is the canonical OpenAI-compatible chat request. The
// normalizer produces it; every translator consumes it.
type GeneralOpenAIRequest struct {
	Model    string    `json:"model"`
	Messages []Message `json:"messages"`

	Tools      []Tool `json:"tools,omitempty"`
	ToolChoice any    `json:"tool_choice,omitempty"`

	ResponseFormat *ResponseFormat `json:"response_format,omitempty"`

	Temperature *float64 `json:"temperature,omitempty"`
	TopP        *float64 `json:"top_p,omitempty"`
	MaxTokens   int      `json:"max_tokens,omitempty"`

	// MaxCompletionTokens replaces max_tokens on reasoning-family models.
	MaxCompletionTokens int `json:"max_completion_tokens,omitempty"`

	FrequencyPenalty *float64 `json:"frequency_penalty,omitempty"`
	PresencePenalty  *float64 `json:"presence_penalty,omitempty"`
	N                *int     `json:"n,omitempty"`
	Stop             any      `json:"stop,omitempty"`
	Seed             *int64   `json:"seed,omitempty"`

	Stream        bool           `json:"stream,omitempty"`
	StreamOptions *StreamOptions `json:"stream_options,omitempty"`

	ReasoningEffort *string `json:"reasoning_effort,omitempty"`

	// WebSearch accepts `true` or an options object.
	WebSearch *WebSearchOptions `json:"web_search,omitempty"`

	ImageConfig *ImageConfig `json:"image_config,omitempty"`

	User string `json:"user,omitempty"`
}

// StreamOptions mirrors OpenAI's stream_options.
type StreamOptions struct {
	IncludeUsage bool `json:"include_usage,omitempty"`
}

// ResponseFormat selects plain text, json_object, or json_schema output.
type ResponseFormat struct {
	Type       string      `json:"type"`
	JsonSchema *JSONSchema `json:"json_schema,omitempty"`
}

// JSONSchema is the json_schema response format payload.
type JSONSchema struct {
	Name   string         `json:"name"`
	Schema map[string]any `json:"schema,omitempty"`
	Strict *bool          `json:"strict,omitempty"`
}

// WebSearchOptions carries search tuning. The wire shape is either a bare
// boolean or the full object; UnmarshalJSON accepts both.
type WebSearchOptions struct {
	Enabled           bool          `json:"-"`
	UserLocation      *UserLocation `json:"user_location,omitempty"`
	SearchContextSize string        `json:"search_context_size,omitempty"`
	MaxUses           int           `json:"max_uses,omitempty"`
}

// UserLocation approximates the caller's location for search grounding.
type UserLocation struct {
	Type        string `json:"type,omitempty"`
	City        string `json:"city,omitempty"`
	Region      string `json:"region,omitempty"`
	Country     string `json:"country,omitempty"`
	Timezone    string `json:"timezone,omitempty"`
	Approximate any    `json:"approximate,omitempty"`
}

func (w *WebSearchOptions) UnmarshalJSON(data []byte) error {
	var enabled bool
	if err := json.Unmarshal(data, &enabled); err == nil {
		w.Enabled = enabled
		return nil
	}

	type alias WebSearchOptions
	var parsed alias
	if err := json.Unmarshal(data, &parsed); err != nil {
		return errors.Wrap(err, "web_search must be a boolean or an options object")
	}
	*w = WebSearchOptions(parsed)
	w.Enabled = true
	return nil
}

// ImageConfig tunes image generation for models with image output.
type ImageConfig struct {
	AspectRatio string `json:"aspect_ratio,omitempty"`
	ImageSize   string `json:"image_size,omitempty"`
	N           int    `json:"n,omitempty"`
	Seed        *int64 `json:"seed,omitempty"`
}

// WantsWebSearch reports whether the request asked for search, via the
// web_search field or a web_search tool.
func (r *GeneralOpenAIRequest) WantsWebSearch() bool {
	if r.WebSearch != nil && r.WebSearch.Enabled {
		return true
	}
	return WebSearchTool(r.Tools) != nil
}

// WantsImageOutput reports whether the request asked for image generation.
func (r *GeneralOpenAIRequest) WantsImageOutput() bool {
	return r.ImageConfig != nil
}

// WantsTools reports whether the request carries function tools.
func (r *GeneralOpenAIRequest) WantsTools() bool {
	return len(FunctionTools(r.Tools)) > 0
}

// WantsVision reports whether any message carries image content.
func (r *GeneralOpenAIRequest) WantsVision() bool {
	for i := range r.Messages {
		for _, part := range r.Messages[i].ParseContent() {
			if part.Type == ContentTypeImageURL || part.Type == ContentTypeImage {
				return true
			}
		}
	}
	return false
}

// ImageRequest is the /v1/images/generations body.
type ImageRequest struct {
	Prompt string `json:"prompt"`
	Model  string `json:"model"`
	Size   string `json:"size,omitempty"`
	N      int    `json:"n,omitempty"`
	Seed   *int64 `json:"seed,omitempty"`
}
