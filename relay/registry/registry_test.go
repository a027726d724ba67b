package registry

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	relaymodel "github.com/shinmentakezo07/shinway-sub001/relay/model"
	"github.com/shinmentakezo07/shinway-sub001/relay/providerid"
)

func TestSplitProviderPrefix(t *testing.T) {
	pid, rest := SplitProviderPrefix("anthropic/claude-sonnet-4-5")
	assert.Equal(t, providerid.Anthropic, pid)
	assert.Equal(t, "claude-sonnet-4-5", rest)

	// Unknown prefixes stay part of the model id.
	pid, rest = SplitProviderPrefix("meta-llama/llama-3.3-70b-instruct")
	assert.Equal(t, providerid.ID(""), pid)
	assert.Equal(t, "meta-llama/llama-3.3-70b-instruct", rest)

	pid, rest = SplitProviderPrefix("gpt-4o")
	assert.Equal(t, providerid.ID(""), pid)
	assert.Equal(t, "gpt-4o", rest)
}

func TestResolve(t *testing.T) {
	def, pinned, ok := Resolve("claude-sonnet-4-5")
	require.True(t, ok)
	assert.Equal(t, "claude-sonnet-4-5", def.ID)
	assert.Empty(t, pinned)

	// Alias.
	def, _, ok = Resolve("claude-sonnet-4.5")
	require.True(t, ok)
	assert.Equal(t, "claude-sonnet-4-5", def.ID)

	// Provider-side model name without a pin.
	def, _, ok = Resolve("llama-3.3-70b-versatile")
	require.True(t, ok)
	assert.Equal(t, "llama-3.3-70b", def.ID)

	// Pinned with the provider's own model name.
	def, pinned, ok = Resolve("aws-bedrock/anthropic.claude-sonnet-4-5-20250929-v1:0")
	require.True(t, ok)
	assert.Equal(t, "claude-sonnet-4-5", def.ID)
	assert.Equal(t, providerid.AWSBedrock, pinned)

	_, _, ok = Resolve("does-not-exist")
	assert.False(t, ok)
}

func TestTierFor(t *testing.T) {
	def, _, ok := Resolve("gemini-2.5-pro")
	require.True(t, ok)
	pm := def.Providers[0]
	require.Len(t, pm.PricingTiers, 2)

	low := pm.TierFor(100_000)
	require.NotNil(t, low)
	assert.InDelta(t, 1.25, low.InputPrice, 1e-9)

	high := pm.TierFor(300_000)
	require.NotNil(t, high)
	assert.InDelta(t, 2.5, high.InputPrice, 1e-9)

	flat, _, ok := Resolve("gpt-4o")
	require.True(t, ok)
	assert.Nil(t, flat.Providers[0].TierFor(1_000_000))
}

func TestCandidatesOrdering(t *testing.T) {
	cands, relayErr := Candidates(RouteRequest{ModelID: "llama-3.3-70b"})
	require.Nil(t, relayErr)
	require.NotEmpty(t, cands)

	// Stable mappings come before beta ones regardless of price.
	sawBeta := false
	for _, c := range cands {
		stability := c.Model.MappingStability(c.Mapping)
		if stability == StabilityBeta {
			sawBeta = true
		} else if sawBeta {
			t.Fatalf("stable mapping %s sorted after a beta mapping", c.Mapping.Provider)
		}
	}

	// Within a stability class, the cheaper mapping routes first.
	assert.Equal(t, providerid.Groq, cands[0].Mapping.Provider)
}

func TestCandidatesBYOKFirst(t *testing.T) {
	cands, relayErr := Candidates(RouteRequest{
		ModelID:       "llama-3.3-70b",
		BYOKProviders: map[providerid.ID]bool{providerid.Together: true},
	})
	require.Nil(t, relayErr)
	require.NotEmpty(t, cands)
	assert.Equal(t, providerid.Together, cands[0].Mapping.Provider)
	assert.True(t, cands[0].BYOK)
}

func TestCandidatesPinned(t *testing.T) {
	cands, relayErr := Candidates(RouteRequest{ModelID: "cerebras/llama-3.3-70b"})
	require.Nil(t, relayErr)
	require.Len(t, cands, 1)
	assert.Equal(t, providerid.Cerebras, cands[0].Mapping.Provider)
}

func TestCandidatesCapabilityFilter(t *testing.T) {
	cands, relayErr := Candidates(RouteRequest{
		ModelID: "llama-3.3-70b",
		Require: []Capability{CapTools},
	})
	require.Nil(t, relayErr)
	for _, c := range cands {
		assert.True(t, c.Mapping.Tools, "provider %s lacks tools", c.Mapping.Provider)
	}
}

func TestCandidatesDegraded(t *testing.T) {
	cands, relayErr := Candidates(RouteRequest{
		ModelID:  "deepseek-chat",
		Degraded: map[providerid.ID]bool{providerid.DeepSeek: true},
	})
	require.Nil(t, relayErr)
	for _, c := range cands {
		assert.NotEqual(t, providerid.DeepSeek, c.Mapping.Provider)
	}

	// BYOK credentials are unaffected by managed-credential cooldown.
	cands, relayErr = Candidates(RouteRequest{
		ModelID:       "deepseek-chat",
		Degraded:      map[providerid.ID]bool{providerid.DeepSeek: true},
		BYOKProviders: map[providerid.ID]bool{providerid.DeepSeek: true},
	})
	require.Nil(t, relayErr)
	assert.Equal(t, providerid.DeepSeek, cands[0].Mapping.Provider)
}

func TestCandidatesNoEligible(t *testing.T) {
	_, relayErr := Candidates(RouteRequest{ModelID: "nope-1"})
	require.NotNil(t, relayErr)
	assert.Equal(t, http.StatusNotFound, relayErr.StatusCode)

	// A known model with every mapping filtered out is a routing failure,
	// not a lookup failure.
	_, relayErr = Candidates(RouteRequest{
		ModelID:  "grok-4",
		Degraded: map[providerid.ID]bool{providerid.XAI: true},
	})
	require.NotNil(t, relayErr)
	assert.Equal(t, relaymodel.ErrorTypeNoEligible, relayErr.Type)
	assert.Equal(t, http.StatusServiceUnavailable, relayErr.StatusCode)
}

func TestRequiredCapabilities(t *testing.T) {
	effort := relaymodel.ReasoningEffortHigh
	caps := RequiredCapabilities(&relaymodel.GeneralOpenAIRequest{
		Stream: true,
		Tools: []relaymodel.Tool{{
			Type:     relaymodel.ToolTypeFunction,
			Function: &relaymodel.Function{Name: "lookup"},
		}},
		WebSearch:       &relaymodel.WebSearchOptions{Enabled: true},
		ReasoningEffort: &effort,
		ResponseFormat:  &relaymodel.ResponseFormat{Type: "json_schema"},
		Messages: []relaymodel.Message{{Role: "user", Content: []any{
			map[string]any{"type": "image_url", "image_url": map[string]any{"url": "https://example.com/a.png"}},
		}}},
	})
	assert.ElementsMatch(t, []Capability{
		CapStreaming, CapVision, CapTools, CapWebSearch, CapReasoning, CapJSONOutputSchema,
	}, caps)

	// A plain request demands nothing.
	assert.Empty(t, RequiredCapabilities(&relaymodel.GeneralOpenAIRequest{
		Messages: []relaymodel.Message{{Role: "user", Content: "hi"}},
	}))
}

func TestCandidatesAuto(t *testing.T) {
	cands, relayErr := Candidates(RouteRequest{ModelID: AutoModelID})
	require.Nil(t, relayErr)
	require.NotEmpty(t, cands)
	for _, c := range cands {
		assert.True(t, c.Model.OutputsText())
	}
}
