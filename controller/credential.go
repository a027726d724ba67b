package controller

import (
	"net/http"

	"github.com/Laisky/errors/v2"

	"github.com/shinmentakezo07/shinway-sub001/common/config"
	"github.com/shinmentakezo07/shinway-sub001/model"
	"github.com/shinmentakezo07/shinway-sub001/relay/meta"
	relaymodel "github.com/shinmentakezo07/shinway-sub001/relay/model"
	"github.com/shinmentakezo07/shinway-sub001/relay/providerid"
	"github.com/shinmentakezo07/shinway-sub001/relay/registry"
)

// managedAPIKey returns the process-wide credential for a provider, sourced
// from the environment at boot.
func managedAPIKey(provider providerid.ID) string {
	switch provider {
	case providerid.OpenAI:
		return config.OpenAIAPIKey
	case providerid.Anthropic:
		return config.AnthropicAPIKey
	case providerid.GoogleAI:
		return config.GoogleAIAPIKey
	case providerid.Cerebras:
		return config.CerebrasAPIKey
	case providerid.Together:
		return config.TogetherAPIKey
	case providerid.DeepSeek:
		return config.DeepSeekAPIKey
	case providerid.XAI:
		return config.XAIAPIKey
	case providerid.Groq:
		return config.GroqAPIKey
	case providerid.ZAI:
		return config.ZAIAPIKey
	case providerid.Alibaba:
		return config.AlibabaAPIKey
	case providerid.InferenceNet:
		return config.InferenceNetAPIKey
	case providerid.Perplexity:
		return config.PerplexityAPIKey
	case providerid.Novita:
		return config.NovitaAPIKey
	case providerid.Nebius:
		return config.NebiusAPIKey
	case providerid.Moonshot:
		return config.MoonshotAPIKey
	default:
		return ""
	}
}

// applyCredential fills the attempt's credential fields. BYOK candidates use
// the organization's stored credential; managed candidates use a usable pool
// entry when one exists, else the process-wide environment credential. The
// returned credential is non-nil only for database-backed entries, so the
// failover loop can degrade it on auth failures.
func applyCredential(m *meta.Meta, cand *registry.Candidate) (*model.ProviderCredential, *relaymodel.ErrorWithStatusCode) {
	provider := cand.Mapping.Provider

	if cand.BYOK {
		creds, err := model.GetCredentialsForProvider(provider, m.OrganizationID)
		if err == nil {
			for _, cred := range creds {
				if !cred.Managed() && cred.Usable() {
					fillFromStored(m, cred)
					m.BYOK = true
					return cred, nil
				}
			}
		}
		return nil, relaymodel.NewError(http.StatusUnauthorized, relaymodel.ErrorTypeUnauthorized,
			errors.Errorf("no usable credential for provider %s", provider), "missing_byok_credential")
	}

	if creds, err := model.GetCredentialsForProvider(provider, ""); err == nil {
		for _, cred := range creds {
			if cred.Managed() && cred.Usable() {
				fillFromStored(m, cred)
				return cred, nil
			}
		}
	}

	switch provider {
	case providerid.AWSBedrock:
		if config.AWSAccessKeyID == "" {
			break
		}
		m.AWSRegion = config.AWSRegion
		m.AWSAccessKey = config.AWSAccessKeyID
		m.AWSSecretKey = config.AWSSecretAccessKey
		return nil, nil
	case providerid.Vertex:
		if config.VertexProjectID == "" {
			break
		}
		m.VertexProjectID = config.VertexProjectID
		m.VertexRegion = config.VertexRegion
		return nil, nil
	default:
		if key := managedAPIKey(provider); key != "" {
			m.APIKey = key
			return nil, nil
		}
	}

	return nil, relaymodel.NewError(http.StatusServiceUnavailable, relaymodel.ErrorTypeNoEligible,
		errors.Errorf("provider %s has no configured credential", provider), "no_credential")
}

func fillFromStored(m *meta.Meta, cred *model.ProviderCredential) {
	m.APIKey = cred.APIKey
	if cred.BaseURL != "" {
		m.BaseURL = cred.BaseURL
	}
	m.AWSRegion = cred.AWSRegion
	m.AWSAccessKey = cred.AWSAccessKey
	m.AWSSecretKey = cred.AWSSecretKey
	m.VertexProjectID = cred.VertexProjectID
	m.VertexRegion = cred.VertexRegion
}
