package registry

import "github.com/shinmentakezo07/shinway-sub001/relay/providerid"

// AutoModelID routes by price/stability/availability instead of a fixed model.
const AutoModelID = "auto"

var noSystemRole = false

// models is the compiled catalog, preferred provider first per model.
// Prices are USD per million tokens.
var models = []ModelDefinition{
	{
		ID:     "gpt-4o",
		Family: "gpt-4o",
		Name:   "GPT-4o",
		Output: []string{OutputText},
		Providers: []ProviderMapping{
			{
				Provider: providerid.OpenAI, ModelName: "gpt-4o",
				ContextSize: 128_000, MaxOutput: 16_384,
				InputPrice: 2.5, OutputPrice: 10, CachedInputPrice: 1.25,
				Streaming: true, Vision: true, Tools: true, JSONOutput: true, JSONOutputSchema: true,
			},
		},
	},
	{
		ID:     "gpt-4o-mini",
		Family: "gpt-4o",
		Name:   "GPT-4o mini",
		Output: []string{OutputText},
		Providers: []ProviderMapping{
			{
				Provider: providerid.OpenAI, ModelName: "gpt-4o-mini",
				ContextSize: 128_000, MaxOutput: 16_384,
				InputPrice: 0.15, OutputPrice: 0.6, CachedInputPrice: 0.075,
				Streaming: true, Vision: true, Tools: true, JSONOutput: true, JSONOutputSchema: true,
			},
		},
	},
	{
		ID:     "gpt-4o-mini-search-preview",
		Family: "gpt-4o",
		Name:   "GPT-4o mini Search",
		Output: []string{OutputText},
		Providers: []ProviderMapping{
			{
				Provider: providerid.OpenAI, ModelName: "gpt-4o-mini-search-preview",
				ContextSize: 128_000, MaxOutput: 16_384,
				InputPrice: 0.15, OutputPrice: 0.6,
				WebSearchPrice: 27.5,
				Streaming:      true, Tools: true, JSONOutput: true, WebSearch: true,
			},
		},
	},
	{
		ID:     "gpt-5",
		Family: "gpt-5",
		Name:   "GPT-5",
		Output: []string{OutputText},
		Providers: []ProviderMapping{
			{
				Provider: providerid.OpenAI, ModelName: "gpt-5",
				ContextSize: 400_000, MaxOutput: 128_000,
				InputPrice: 1.25, OutputPrice: 10, CachedInputPrice: 0.125,
				Streaming: true, Vision: true, Tools: true, Reasoning: true,
				JSONOutput: true, JSONOutputSchema: true, WebSearch: true,
				SupportsResponsesAPI: true,
			},
		},
	},
	{
		ID:     "gpt-5-mini",
		Family: "gpt-5",
		Name:   "GPT-5 mini",
		Output: []string{OutputText},
		Providers: []ProviderMapping{
			{
				Provider: providerid.OpenAI, ModelName: "gpt-5-mini",
				ContextSize: 400_000, MaxOutput: 128_000,
				InputPrice: 0.25, OutputPrice: 2, CachedInputPrice: 0.025,
				Streaming: true, Vision: true, Tools: true, Reasoning: true,
				JSONOutput: true, JSONOutputSchema: true,
				SupportsResponsesAPI: true,
			},
		},
	},
	{
		ID:     "gpt-5-pro",
		Family: "gpt-5",
		Name:   "GPT-5 Pro",
		Output: []string{OutputText},
		Providers: []ProviderMapping{
			{
				Provider: providerid.OpenAI, ModelName: "gpt-5-pro",
				ContextSize: 400_000, MaxOutput: 272_000,
				InputPrice: 15, OutputPrice: 120,
				Streaming: true, Vision: true, Tools: true, Reasoning: true,
				JSONOutput: true, JSONOutputSchema: true,
				SupportsResponsesAPI: true,
			},
		},
	},
	{
		ID:      "claude-sonnet-4-5",
		Family:  "claude",
		Name:    "Claude Sonnet 4.5",
		Aliases: []string{"claude-sonnet-4.5"},
		Output:  []string{OutputText},
		Providers: []ProviderMapping{
			{
				Provider: providerid.Anthropic, ModelName: "claude-sonnet-4-5",
				ContextSize: 200_000, MaxOutput: 64_000,
				InputPrice: 3, OutputPrice: 15, CachedInputPrice: 0.3,
				WebSearchPrice: 10,
				Streaming:      true, Vision: true, Tools: true, Reasoning: true,
				JSONOutput: true, WebSearch: true,
			},
			{
				Provider: providerid.AWSBedrock, ModelName: "anthropic.claude-sonnet-4-5-20250929-v1:0",
				ContextSize: 200_000, MaxOutput: 64_000,
				InputPrice: 3, OutputPrice: 15, CachedInputPrice: 0.3,
				Streaming: true, Vision: true, Tools: true, Reasoning: true,
			},
		},
	},
	{
		ID:      "claude-opus-4-1",
		Family:  "claude",
		Name:    "Claude Opus 4.1",
		Aliases: []string{"claude-opus-4.1"},
		Output:  []string{OutputText},
		Providers: []ProviderMapping{
			{
				Provider: providerid.Anthropic, ModelName: "claude-opus-4-1",
				ContextSize: 200_000, MaxOutput: 32_000,
				InputPrice: 15, OutputPrice: 75, CachedInputPrice: 1.5,
				Streaming: true, Vision: true, Tools: true, Reasoning: true, JSONOutput: true,
			},
			{
				Provider: providerid.AWSBedrock, ModelName: "anthropic.claude-opus-4-1-20250805-v1:0",
				ContextSize: 200_000, MaxOutput: 32_000,
				InputPrice: 15, OutputPrice: 75, CachedInputPrice: 1.5,
				Streaming: true, Vision: true, Tools: true, Reasoning: true,
			},
		},
	},
	{
		ID:      "claude-haiku-3-5",
		Family:  "claude",
		Name:    "Claude Haiku 3.5",
		Aliases: []string{"claude-3-5-haiku"},
		Output:  []string{OutputText},
		Providers: []ProviderMapping{
			{
				Provider: providerid.Anthropic, ModelName: "claude-3-5-haiku-latest",
				ContextSize: 200_000, MaxOutput: 8_192,
				InputPrice: 0.8, OutputPrice: 4, CachedInputPrice: 0.08,
				Streaming: true, Vision: true, Tools: true, JSONOutput: true,
			},
		},
	},
	{
		ID:     "gemini-2.5-pro",
		Family: "gemini",
		Name:   "Gemini 2.5 Pro",
		Output: []string{OutputText},
		Providers: []ProviderMapping{
			{
				Provider: providerid.GoogleAI, ModelName: "gemini-2.5-pro",
				ContextSize: 1_048_576, MaxOutput: 65_536,
				InputPrice: 1.25, OutputPrice: 10, CachedInputPrice: 0.31,
				PricingTiers: []PricingTier{
					{UpToTokens: 200_000, InputPrice: 1.25, OutputPrice: 10},
					{InputPrice: 2.5, OutputPrice: 15},
				},
				Streaming: true, Vision: true, Tools: true, Reasoning: true,
				JSONOutput: true, JSONOutputSchema: true, WebSearch: true,
			},
			{
				Provider: providerid.Vertex, ModelName: "gemini-2.5-pro",
				ContextSize: 1_048_576, MaxOutput: 65_536,
				InputPrice: 1.25, OutputPrice: 10, CachedInputPrice: 0.31,
				PricingTiers: []PricingTier{
					{UpToTokens: 200_000, InputPrice: 1.25, OutputPrice: 10},
					{InputPrice: 2.5, OutputPrice: 15},
				},
				Streaming: true, Vision: true, Tools: true, Reasoning: true,
				JSONOutput: true, JSONOutputSchema: true,
			},
		},
	},
	{
		ID:     "gemini-2.5-flash",
		Family: "gemini",
		Name:   "Gemini 2.5 Flash",
		Output: []string{OutputText},
		Providers: []ProviderMapping{
			{
				Provider: providerid.GoogleAI, ModelName: "gemini-2.5-flash",
				ContextSize: 1_048_576, MaxOutput: 65_536,
				InputPrice: 0.3, OutputPrice: 2.5, CachedInputPrice: 0.075,
				Streaming: true, Vision: true, Tools: true, Reasoning: true,
				JSONOutput: true, JSONOutputSchema: true, WebSearch: true,
			},
			{
				Provider: providerid.Vertex, ModelName: "gemini-2.5-flash",
				ContextSize: 1_048_576, MaxOutput: 65_536,
				InputPrice: 0.3, OutputPrice: 2.5, CachedInputPrice: 0.075,
				Streaming: true, Vision: true, Tools: true, Reasoning: true,
				JSONOutput: true, JSONOutputSchema: true,
			},
		},
	},
	{
		ID:     "gemini-2.5-flash-image",
		Family: "gemini",
		Name:   "Gemini 2.5 Flash Image",
		Output: []string{OutputText, OutputImage},
		Providers: []ProviderMapping{
			{
				Provider: providerid.GoogleAI, ModelName: "gemini-2.5-flash-image",
				ContextSize: 32_768, MaxOutput: 8_192,
				InputPrice: 0.3, OutputPrice: 2.5, ImageOutputPrice: 0.039,
				Streaming: true, Vision: true,
			},
		},
	},
	{
		ID:        "llama-3.3-70b",
		Family:    "llama",
		Name:      "Llama 3.3 70B",
		Aliases:   []string{"llama-3.3-70b-instruct"},
		Output:    []string{OutputText},
		Stability: StabilityStable,
		Providers: []ProviderMapping{
			{
				Provider: providerid.Groq, ModelName: "llama-3.3-70b-versatile",
				ContextSize: 131_072, MaxOutput: 32_768,
				InputPrice: 0.59, OutputPrice: 0.79,
				Streaming: true, Tools: true, JSONOutput: true,
			},
			{
				Provider: providerid.Cerebras, ModelName: "llama-3.3-70b",
				ContextSize: 131_072, MaxOutput: 32_768,
				InputPrice: 0.85, OutputPrice: 1.2,
				Streaming: true, Tools: true, JSONOutput: true, JSONOutputSchema: true,
			},
			{
				Provider: providerid.Together, ModelName: "together/meta-llama/Llama-3.3-70B-Instruct-Turbo",
				ContextSize: 131_072, MaxOutput: 32_768,
				InputPrice: 0.88, OutputPrice: 0.88,
				Streaming: true, Tools: true, JSONOutput: true,
			},
			{
				Provider: providerid.Novita, ModelName: "meta-llama/llama-3.3-70b-instruct",
				ContextSize: 131_072, MaxOutput: 32_768,
				InputPrice: 0.39, OutputPrice: 0.39, Discount: 0.1,
				Streaming: true, JSONOutput: true,
				Stability: StabilityBeta,
			},
			{
				Provider: providerid.Nebius, ModelName: "meta-llama/Llama-3.3-70B-Instruct",
				ContextSize: 131_072, MaxOutput: 32_768,
				InputPrice: 0.25, OutputPrice: 0.75,
				Streaming: true, JSONOutput: true,
				Stability: StabilityBeta,
			},
		},
	},
	{
		ID:     "deepseek-chat",
		Family: "deepseek",
		Name:   "DeepSeek V3.2",
		Output: []string{OutputText},
		Providers: []ProviderMapping{
			{
				Provider: providerid.DeepSeek, ModelName: "deepseek-chat",
				ContextSize: 131_072, MaxOutput: 8_192,
				InputPrice: 0.28, OutputPrice: 0.42, CachedInputPrice: 0.028,
				Streaming: true, Tools: true, JSONOutput: true,
			},
			{
				Provider: providerid.InferenceNet, ModelName: "inference-net/deepseek/deepseek-v3.2",
				ContextSize: 131_072, MaxOutput: 8_192,
				InputPrice: 0.25, OutputPrice: 0.38,
				Streaming: true, JSONOutput: true,
				Stability: StabilityBeta,
			},
		},
	},
	{
		ID:     "deepseek-reasoner",
		Family: "deepseek",
		Name:   "DeepSeek Reasoner",
		Output: []string{OutputText},
		Providers: []ProviderMapping{
			{
				Provider: providerid.DeepSeek, ModelName: "deepseek-reasoner",
				ContextSize: 131_072, MaxOutput: 65_536,
				InputPrice: 0.28, OutputPrice: 0.42, CachedInputPrice: 0.028,
				Streaming: true, Reasoning: true, JSONOutput: true,
			},
		},
	},
	{
		ID:     "grok-4",
		Family: "grok",
		Name:   "Grok 4",
		Output: []string{OutputText},
		Providers: []ProviderMapping{
			{
				Provider: providerid.XAI, ModelName: "grok-4",
				ContextSize: 256_000, MaxOutput: 64_000,
				InputPrice: 3, OutputPrice: 15, CachedInputPrice: 0.75,
				Streaming: true, Vision: true, Tools: true, Reasoning: true,
				JSONOutput: true, JSONOutputSchema: true, WebSearch: true,
			},
		},
	},
	{
		ID:     "glm-4.6",
		Family: "glm",
		Name:   "GLM 4.6",
		Output: []string{OutputText},
		Providers: []ProviderMapping{
			{
				Provider: providerid.ZAI, ModelName: "glm-4.6",
				ContextSize: 200_000, MaxOutput: 128_000,
				InputPrice: 0.6, OutputPrice: 2.2, CachedInputPrice: 0.11,
				Streaming: true, Tools: true, Reasoning: true, JSONOutput: true, WebSearch: true,
			},
			{
				Provider: providerid.Novita, ModelName: "zai-org/glm-4.6",
				ContextSize: 200_000, MaxOutput: 128_000,
				InputPrice: 0.45, OutputPrice: 1.8,
				Streaming: true, JSONOutput: true,
				Stability: StabilityBeta,
			},
		},
	},
	{
		ID:     "cogview-4",
		Family: "glm",
		Name:   "CogView 4",
		Output: []string{OutputImage},
		Providers: []ProviderMapping{
			{
				Provider: providerid.ZAI, ModelName: "cogview-4-250304",
				ContextSize: 4_096, MaxOutput: 0,
				ImageOutputPrice: 0.014,
			},
		},
	},
	{
		ID:      "qwen3-235b",
		Family:  "qwen",
		Name:    "Qwen3 235B",
		Aliases: []string{"qwen3-235b-a22b"},
		Output:  []string{OutputText},
		Providers: []ProviderMapping{
			{
				Provider: providerid.Alibaba, ModelName: "qwen3-235b-a22b-instruct-2507",
				ContextSize: 262_144, MaxOutput: 32_768,
				InputPrice: 0.7, OutputPrice: 2.8,
				PricingTiers: []PricingTier{
					{UpToTokens: 131_072, InputPrice: 0.7, OutputPrice: 2.8},
					{InputPrice: 1.4, OutputPrice: 5.6},
				},
				Streaming: true, Tools: true, JSONOutput: true,
			},
			{
				Provider: providerid.Together, ModelName: "together/Qwen/Qwen3-235B-A22B-Instruct-2507-tput",
				ContextSize: 262_144, MaxOutput: 32_768,
				InputPrice: 0.2, OutputPrice: 0.6,
				Streaming: true, JSONOutput: true,
				Stability: StabilityBeta,
			},
		},
	},
	{
		ID:     "qwen-image",
		Family: "qwen",
		Name:   "Qwen Image",
		Output: []string{OutputImage},
		Providers: []ProviderMapping{
			{
				Provider: providerid.Alibaba, ModelName: "qwen-image",
				ContextSize: 4_096, MaxOutput: 0,
				ImageOutputPrice: 0.035,
			},
		},
	},
	{
		ID:      "kimi-k2",
		Family:  "kimi",
		Name:    "Kimi K2",
		Aliases: []string{"kimi-k2-instruct"},
		Output:  []string{OutputText},
		Providers: []ProviderMapping{
			{
				Provider: providerid.Moonshot, ModelName: "kimi-k2-0905-preview",
				ContextSize: 262_144, MaxOutput: 32_768,
				InputPrice: 0.6, OutputPrice: 2.5, CachedInputPrice: 0.15,
				Streaming: true, Tools: true, JSONOutput: true,
			},
			{
				Provider: providerid.Groq, ModelName: "moonshotai/kimi-k2-instruct-0905",
				ContextSize: 262_144, MaxOutput: 16_384,
				InputPrice: 1, OutputPrice: 3,
				Streaming: true, Tools: true, JSONOutput: true,
				Stability: StabilityBeta,
			},
		},
	},
	{
		ID:     "sonar-pro",
		Family: "sonar",
		Name:   "Perplexity Sonar Pro",
		Output: []string{OutputText},
		Providers: []ProviderMapping{
			{
				Provider: providerid.Perplexity, ModelName: "sonar-pro",
				ContextSize: 200_000, MaxOutput: 8_192,
				InputPrice: 3, OutputPrice: 15, RequestPrice: 0.006,
				Streaming: true, JSONOutput: true, WebSearch: true,
			},
		},
	},
	{
		ID:        "gemma-3-27b",
		Family:    "gemma",
		Name:      "Gemma 3 27B",
		Free:      true,
		Stability: StabilityExperimental,
		Output:    []string{OutputText},
		// Gemma endpoints reject system-role messages.
		SupportsSystemRole: &noSystemRole,
		Providers: []ProviderMapping{
			{
				Provider: providerid.GoogleAI, ModelName: "gemma-3-27b-it",
				ContextSize: 131_072, MaxOutput: 8_192,
				Streaming: true,
			},
		},
	},
}

// Models returns the full catalog in registry order.
func Models() []ModelDefinition {
	return models
}
