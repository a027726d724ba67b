package model

// Usage is the canonical token accounting block. CachedPromptTokens counts
// prompt tokens served from the provider's prompt cache; they are a subset of
// PromptTokens and are priced at the mapping's cached input rate.
type Usage struct {
	PromptTokens       int `json:"prompt_tokens"`
	CompletionTokens   int `json:"completion_tokens"`
	CachedPromptTokens int `json:"cached_prompt_tokens,omitempty"`
	TotalTokens        int `json:"total_tokens"`
	ReasoningTokens    int `json:"reasoning_tokens,omitempty"`

	// PromptTokensDetails mirrors OpenAI's nested shape on the wire.
	PromptTokensDetails *PromptTokensDetails `json:"prompt_tokens_details,omitempty"`

	// CompletionTokensDetails mirrors OpenAI's nested shape on the wire.
	CompletionTokensDetails *CompletionTokensDetails `json:"completion_tokens_details,omitempty"`
}

type PromptTokensDetails struct {
	CachedTokens int `json:"cached_tokens,omitempty"`
	AudioTokens  int `json:"audio_tokens,omitempty"`
}

type CompletionTokensDetails struct {
	ReasoningTokens int `json:"reasoning_tokens,omitempty"`
}

// Normalize fills derived fields: lifts nested details into the flat columns
// and recomputes TotalTokens.
func (u *Usage) Normalize() {
	if u == nil {
		return
	}
	if u.PromptTokensDetails != nil && u.CachedPromptTokens == 0 {
		u.CachedPromptTokens = u.PromptTokensDetails.CachedTokens
	}
	if u.CompletionTokensDetails != nil && u.ReasoningTokens == 0 {
		u.ReasoningTokens = u.CompletionTokensDetails.ReasoningTokens
	}
	if u.TotalTokens == 0 {
		u.TotalTokens = u.PromptTokens + u.CompletionTokens
	}
}

// Add accumulates another usage block (used when summing streamed deltas).
func (u *Usage) Add(other *Usage) {
	if other == nil {
		return
	}
	u.PromptTokens += other.PromptTokens
	u.CompletionTokens += other.CompletionTokens
	u.CachedPromptTokens += other.CachedPromptTokens
	u.ReasoningTokens += other.ReasoningTokens
	u.TotalTokens = u.PromptTokens + u.CompletionTokens
}
