package registry

import "github.com/shinmentakezo07/shinway-sub001/relay/providerid"

var (
	byID        = map[string]*ModelDefinition{}
	byAlias     = map[string]*ModelDefinition{}
	byModelName = map[string]*ModelDefinition{}
)

func init() {
	for i := range models {
		def := &models[i]
		byID[def.ID] = def
		for _, alias := range def.Aliases {
			if _, dup := byAlias[alias]; !dup {
				byAlias[alias] = def
			}
		}
		for j := range def.Providers {
			name := def.Providers[j].ModelName
			if _, dup := byModelName[name]; !dup {
				byModelName[name] = def
			}
		}
	}
}

// FindModel resolves an unprefixed model id: exact catalog id first, then
// aliases, then any provider-side model name.
func FindModel(id string) (*ModelDefinition, bool) {
	if def, ok := byID[id]; ok {
		return def, true
	}
	if def, ok := byAlias[id]; ok {
		return def, true
	}
	if def, ok := byModelName[id]; ok {
		return def, true
	}
	return nil, false
}

// Resolve splits an optional "provider/" pin off the requested id and looks
// the remainder up in the catalog. A pinned id only matches the model's
// catalog id or aliases, never another provider's model name.
func Resolve(requested string) (def *ModelDefinition, pinned providerid.ID, ok bool) {
	pinned, rest := SplitProviderPrefix(requested)
	if pinned == "" {
		def, ok = FindModel(requested)
		return def, "", ok
	}
	if def, ok = byID[rest]; ok {
		return def, pinned, true
	}
	if def, ok = byAlias[rest]; ok {
		return def, pinned, true
	}
	// Pinned requests may also use the provider's own model name, e.g.
	// "aws-bedrock/anthropic.claude-sonnet-4-5-20250929-v1:0".
	if def, ok = byModelName[rest]; ok {
		for i := range def.Providers {
			if def.Providers[i].Provider == pinned {
				return def, pinned, true
			}
		}
	}
	return nil, "", false
}

// Mappings returns the model's provider mappings, restricted to the pinned
// provider when one is given.
func Mappings(def *ModelDefinition, pinned providerid.ID) []*ProviderMapping {
	out := make([]*ProviderMapping, 0, len(def.Providers))
	for i := range def.Providers {
		pm := &def.Providers[i]
		if pinned != "" && pm.Provider != pinned {
			continue
		}
		out = append(out, pm)
	}
	return out
}
