// Package registry is the compiled model/provider catalog: model definitions,
// provider mappings, pricing, and capability metadata. It is immutable after
// process start and is the single source of truth for pricing.
package registry

import (
	"strings"

	"github.com/shinmentakezo07/shinway-sub001/relay/providerid"
)

// Stability grades a model or mapping.
type Stability string

const (
	StabilityStable       Stability = "stable"
	StabilityBeta         Stability = "beta"
	StabilityUnstable     Stability = "unstable"
	StabilityExperimental Stability = "experimental"
)

// stabilityRank orders stabilities for routing; lower routes first.
func stabilityRank(s Stability) int {
	switch s {
	case StabilityStable, "":
		return 0
	case StabilityBeta:
		return 1
	default:
		return 2
	}
}

// Output kinds a model can produce.
const (
	OutputText  = "text"
	OutputImage = "image"
)

// Capability names checked by the router.
type Capability string

const (
	CapStreaming        Capability = "streaming"
	CapVision           Capability = "vision"
	CapTools            Capability = "tools"
	CapReasoning        Capability = "reasoning"
	CapJSONOutput       Capability = "jsonOutput"
	CapJSONOutputSchema Capability = "jsonOutputSchema"
	CapWebSearch        Capability = "webSearch"
	CapImageGen         Capability = "imageGen"
)

// PricingTier prices a request whose prompt+completion token total falls at
// or below UpToTokens. Tiers are ordered ascending; the last tier of a
// mapping is unbounded (UpToTokens == 0).
type PricingTier struct {
	UpToTokens  int
	InputPrice  float64
	OutputPrice float64
}

// ProviderMapping binds a model to one provider. Prices are USD per million
// tokens unless stated otherwise.
type ProviderMapping struct {
	Provider  providerid.ID
	ModelName string

	ContextSize int
	MaxOutput   int

	InputPrice       float64
	OutputPrice      float64
	CachedInputPrice float64
	ImageOutputPrice float64 // USD per image
	RequestPrice     float64 // USD per request surcharge
	WebSearchPrice   float64 // USD per 1k searches

	Discount     float64 // 0..1, multiplicative off the final charge
	PricingTiers []PricingTier

	Streaming        bool
	Vision           bool
	Tools            bool
	Reasoning        bool
	JSONOutput       bool
	JSONOutputSchema bool
	WebSearch        bool

	SupportsResponsesAPI bool

	// MinCacheableTokens gates cache-point insertion; 0 means the default of
	// 1024 tokens.
	MinCacheableTokens int

	Stability Stability
}

// ModelDefinition is one catalog row. Providers are ordered preferred-first.
type ModelDefinition struct {
	ID      string
	Family  string
	Name    string
	Aliases []string

	SupportsSystemRole *bool // nil means true
	Output             []string
	Free               bool
	Stability          Stability
	PublishedAt        string

	Providers []ProviderMapping
}

// SystemRoleSupported resolves the default-true tri-state.
func (m *ModelDefinition) SystemRoleSupported() bool {
	return m.SupportsSystemRole == nil || *m.SupportsSystemRole
}

// OutputsImage reports whether the model can produce image output.
func (m *ModelDefinition) OutputsImage() bool {
	for _, out := range m.Output {
		if out == OutputImage {
			return true
		}
	}
	return false
}

// OutputsText reports whether the model can produce text output.
func (m *ModelDefinition) OutputsText() bool {
	if len(m.Output) == 0 {
		return true
	}
	for _, out := range m.Output {
		if out == OutputText {
			return true
		}
	}
	return false
}

// MappingStability resolves the per-mapping override against the model's.
func (m *ModelDefinition) MappingStability(pm *ProviderMapping) Stability {
	if pm.Stability != "" {
		return pm.Stability
	}
	if m.Stability != "" {
		return m.Stability
	}
	return StabilityStable
}

// Has reports whether the mapping offers the capability.
func (pm *ProviderMapping) Has(cap Capability) bool {
	switch cap {
	case CapStreaming:
		return pm.Streaming
	case CapVision:
		return pm.Vision
	case CapTools:
		return pm.Tools
	case CapReasoning:
		return pm.Reasoning
	case CapJSONOutput:
		return pm.JSONOutput
	case CapJSONOutputSchema:
		return pm.JSONOutputSchema
	case CapWebSearch:
		return pm.WebSearch
	case CapImageGen:
		return pm.ImageOutputPrice > 0
	default:
		return false
	}
}

// EffectivePrice is the discounted input+output price used for routing order.
func (pm *ProviderMapping) EffectivePrice() float64 {
	price := pm.InputPrice + pm.OutputPrice
	if len(pm.PricingTiers) > 0 {
		price = pm.PricingTiers[0].InputPrice + pm.PricingTiers[0].OutputPrice
	}
	if pm.Discount > 0 && pm.Discount < 1 {
		price *= 1 - pm.Discount
	}
	return price
}

// TierFor selects the pricing tier covering totalTokens, or nil when the
// mapping has no tiers.
func (pm *ProviderMapping) TierFor(totalTokens int) *PricingTier {
	if len(pm.PricingTiers) == 0 {
		return nil
	}
	for i := range pm.PricingTiers {
		tier := &pm.PricingTiers[i]
		if tier.UpToTokens == 0 || totalTokens <= tier.UpToTokens {
			return tier
		}
	}
	return &pm.PricingTiers[len(pm.PricingTiers)-1]
}

// MinCacheableTokensOrDefault applies the 1024-token default.
func (pm *ProviderMapping) MinCacheableTokensOrDefault() int {
	if pm.MinCacheableTokens > 0 {
		return pm.MinCacheableTokens
	}
	return 1024
}

// SplitProviderPrefix splits "provider/model" when the prefix names a known
// provider; otherwise it returns ("", id).
func SplitProviderPrefix(id string) (providerid.ID, string) {
	before, after, found := strings.Cut(id, "/")
	if !found {
		return "", id
	}
	pid := providerid.ID(before)
	if !providerid.Known(pid) {
		return "", id
	}
	return pid, after
}
