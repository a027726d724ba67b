package billing

import (
	relaymodel "github.com/shinmentakezo07/shinway-sub001/relay/model"
	"github.com/shinmentakezo07/shinway-sub001/relay/registry"
)

const tokensPerPriceUnit = 1_000_000

// CostInput collects the billable quantities of one completed request.
type CostInput struct {
	Usage          *relaymodel.Usage
	ImageCount     int
	WebSearchCalls int
}

// Charge computes the USD cost of a completed request against a mapping.
//
// Token prices are USD per million tokens. Cached prompt tokens bill at the
// cached rate; the remainder of the prompt bills at the (possibly tiered)
// input rate. Image output, per-request surcharge, and web-search calls are
// flat adders. Discount applies multiplicatively at the end.
func Charge(pm *registry.ProviderMapping, in CostInput) float64 {
	if pm == nil || in.Usage == nil {
		return 0
	}
	usage := in.Usage

	inputPrice := pm.InputPrice
	outputPrice := pm.OutputPrice
	if tier := pm.TierFor(usage.PromptTokens + usage.CompletionTokens); tier != nil {
		inputPrice = tier.InputPrice
		outputPrice = tier.OutputPrice
	}

	cached := usage.CachedPromptTokens
	if cached > usage.PromptTokens {
		cached = usage.PromptTokens
	}
	uncached := usage.PromptTokens - cached

	charge := float64(uncached) * inputPrice / tokensPerPriceUnit
	charge += float64(cached) * pm.CachedInputPrice / tokensPerPriceUnit
	charge += float64(usage.CompletionTokens) * outputPrice / tokensPerPriceUnit
	if pm.ImageOutputPrice > 0 && in.ImageCount > 0 {
		charge += float64(in.ImageCount) * pm.ImageOutputPrice
	}
	if pm.RequestPrice > 0 {
		charge += pm.RequestPrice
	}
	if pm.WebSearchPrice > 0 && in.WebSearchCalls > 0 {
		// WebSearchPrice is USD per thousand calls.
		charge += float64(in.WebSearchCalls) * pm.WebSearchPrice / 1000
	}

	if pm.Discount > 0 && pm.Discount < 1 {
		charge *= 1 - pm.Discount
	}
	return charge
}
