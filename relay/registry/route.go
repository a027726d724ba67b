package registry

import (
	"net/http"
	"sort"

	"github.com/Laisky/errors/v2"

	relaymodel "github.com/shinmentakezo07/shinway-sub001/relay/model"
	"github.com/shinmentakezo07/shinway-sub001/relay/providerid"
)

// Candidate is one routable (model, provider) attempt, in failover order.
type Candidate struct {
	Model   *ModelDefinition
	Mapping *ProviderMapping

	// BYOK is true when the organization supplies its own credential for
	// this provider; such candidates sort ahead of managed ones.
	BYOK bool
}

// RouteRequest carries everything candidate ordering depends on.
type RouteRequest struct {
	ModelID string

	// Require drops mappings missing any of these capabilities.
	Require []Capability

	// BYOKProviders is the set of providers the organization has configured
	// its own credentials for.
	BYOKProviders map[providerid.ID]bool

	// Degraded excludes providers whose managed credential is cooling down.
	// BYOK candidates ignore it.
	Degraded map[providerid.ID]bool
}

// autoPool lists the models the "auto" alias routes across. All entries are
// stable text models with managed credentials.
var autoPool = []string{"gpt-4o-mini", "gemini-2.5-flash", "llama-3.3-70b", "deepseek-chat"}

// Candidates resolves the requested model and returns attempts in failover
// order: BYOK first, then stability, then effective price, then registry
// order. A pinned "provider/" prefix restricts to that provider.
func Candidates(req RouteRequest) ([]Candidate, *relaymodel.ErrorWithStatusCode) {
	var pool []Candidate

	if req.ModelID == AutoModelID {
		for _, id := range autoPool {
			def, ok := byID[id]
			if !ok {
				continue
			}
			pool = append(pool, collect(def, "", req)...)
		}
	} else {
		def, pinned, ok := Resolve(req.ModelID)
		if !ok {
			return nil, relaymodel.NewError(http.StatusNotFound, relaymodel.ErrorTypeInvalidRequest,
				errors.Errorf("model %q not found", req.ModelID), "model_not_found")
		}
		pool = collect(def, pinned, req)
	}

	if len(pool) == 0 {
		return nil, relaymodel.NewError(http.StatusServiceUnavailable, relaymodel.ErrorTypeNoEligible,
			errors.Errorf("no eligible provider for model %q", req.ModelID), "no_eligible_provider")
	}

	sort.SliceStable(pool, func(i, j int) bool {
		a, b := pool[i], pool[j]
		if a.BYOK != b.BYOK {
			return a.BYOK
		}
		ar := stabilityRank(a.Model.MappingStability(a.Mapping))
		br := stabilityRank(b.Model.MappingStability(b.Mapping))
		if ar != br {
			return ar < br
		}
		ap, bp := a.Mapping.EffectivePrice(), b.Mapping.EffectivePrice()
		if ap != bp {
			return ap < bp
		}
		return false // stable sort keeps registry order
	})
	return pool, nil
}

func collect(def *ModelDefinition, pinned providerid.ID, req RouteRequest) []Candidate {
	var out []Candidate
mapping:
	for _, pm := range Mappings(def, pinned) {
		for _, cap := range req.Require {
			if !pm.Has(cap) {
				continue mapping
			}
		}
		byok := req.BYOKProviders[pm.Provider]
		if !byok && req.Degraded[pm.Provider] {
			continue
		}
		out = append(out, Candidate{Model: def, Mapping: pm, BYOK: byok})
	}
	return out
}
