package controller

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/Laisky/errors/v2"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shinmentakezo07/shinway-sub001/common/config"
	"github.com/shinmentakezo07/shinway-sub001/common/ctxkey"
	"github.com/shinmentakezo07/shinway-sub001/model"
	"github.com/shinmentakezo07/shinway-sub001/relay/meta"
	relaymodel "github.com/shinmentakezo07/shinway-sub001/relay/model"
	"github.com/shinmentakezo07/shinway-sub001/relay/providerid"
	"github.com/shinmentakezo07/shinway-sub001/relay/registry"
)

func chatTestContext(t *testing.T) (*gin.Context, *httptest.ResponseRecorder) {
	t.Helper()
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest(http.MethodPost, "/v1/chat/completions",
		strings.NewReader(`{"model":"gpt-4o-mini","messages":[{"role":"user","content":"hi"}]}`))
	c.Set(ctxkey.RequestId, "req-test")
	c.Set(ctxkey.RequestModel, "gpt-4o-mini")
	return c, w
}

func TestUpstreamModelName(t *testing.T) {
	together := &registry.ProviderMapping{
		Provider:  providerid.Together,
		ModelName: "together/meta-llama/Llama-3.3-70B-Instruct-Turbo",
	}
	assert.Equal(t, "meta-llama/Llama-3.3-70B-Instruct-Turbo",
		upstreamModelName(&registry.Candidate{Mapping: together}))

	openai := &registry.ProviderMapping{
		Provider:  providerid.OpenAI,
		ModelName: "gpt-4o-mini",
	}
	assert.Equal(t, "gpt-4o-mini", upstreamModelName(&registry.Candidate{Mapping: openai}))
}

func TestApplyCredentialBYOK(t *testing.T) {
	setupTestDB(t)
	require.NoError(t, model.DB.Create(&model.ProviderCredential{
		ID: "cred-1", OrganizationID: "org-1", Provider: string(providerid.OpenAI),
		APIKey: "sk-byok", Active: true,
	}).Error)

	cand := &registry.Candidate{
		Mapping: &registry.ProviderMapping{Provider: providerid.OpenAI},
		BYOK:    true,
	}
	m := &meta.Meta{OrganizationID: "org-1"}
	cred, relayErr := applyCredential(m, cand)
	require.Nil(t, relayErr)
	require.NotNil(t, cred)
	assert.Equal(t, "cred-1", cred.ID)
	assert.Equal(t, "sk-byok", m.APIKey)
	assert.True(t, m.BYOK)
}

func TestApplyCredentialBYOKMissing(t *testing.T) {
	setupTestDB(t)

	cand := &registry.Candidate{
		Mapping: &registry.ProviderMapping{Provider: providerid.OpenAI},
		BYOK:    true,
	}
	m := &meta.Meta{OrganizationID: "org-1"}
	cred, relayErr := applyCredential(m, cand)
	assert.Nil(t, cred)
	require.NotNil(t, relayErr)
	assert.Equal(t, http.StatusUnauthorized, relayErr.StatusCode)
	assert.Equal(t, "missing_byok_credential", relayErr.Code)
}

func TestApplyCredentialManagedPool(t *testing.T) {
	setupTestDB(t)
	require.NoError(t, model.DB.Create(&model.ProviderCredential{
		ID: "cred-pool", OrganizationID: "", Provider: string(providerid.OpenAI),
		APIKey: "sk-pool", Active: true,
	}).Error)

	cand := &registry.Candidate{
		Mapping: &registry.ProviderMapping{Provider: providerid.OpenAI},
	}
	m := &meta.Meta{}
	cred, relayErr := applyCredential(m, cand)
	require.Nil(t, relayErr)
	require.NotNil(t, cred)
	assert.Equal(t, "sk-pool", m.APIKey)
	assert.False(t, m.BYOK)
}

func TestApplyCredentialEnvFallback(t *testing.T) {
	setupTestDB(t)
	prev := config.OpenAIAPIKey
	config.OpenAIAPIKey = "sk-env"
	t.Cleanup(func() { config.OpenAIAPIKey = prev })

	cand := &registry.Candidate{
		Mapping: &registry.ProviderMapping{Provider: providerid.OpenAI},
	}
	m := &meta.Meta{}
	cred, relayErr := applyCredential(m, cand)
	require.Nil(t, relayErr)
	assert.Nil(t, cred) // env credentials are never degraded
	assert.Equal(t, "sk-env", m.APIKey)
}

func TestApplyCredentialNoneConfigured(t *testing.T) {
	setupTestDB(t)
	prev := config.NovitaAPIKey
	config.NovitaAPIKey = ""
	t.Cleanup(func() { config.NovitaAPIKey = prev })

	cand := &registry.Candidate{
		Mapping: &registry.ProviderMapping{Provider: providerid.Novita},
	}
	cred, relayErr := applyCredential(&meta.Meta{}, cand)
	assert.Nil(t, cred)
	require.NotNil(t, relayErr)
	assert.Equal(t, http.StatusServiceUnavailable, relayErr.StatusCode)
	assert.Equal(t, "no_credential", relayErr.Code)
}

func TestRelayWithoutCandidates(t *testing.T) {
	setupTestDB(t)
	c, w := chatTestContext(t)
	Relay(c)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Contains(t, w.Body.String(), "no_eligible_provider")
}

func TestRelayExhaustsCandidatesWithoutCredentials(t *testing.T) {
	setupTestDB(t)
	prev := config.NovitaAPIKey
	config.NovitaAPIKey = ""
	t.Cleanup(func() { config.NovitaAPIKey = prev })

	def := &registry.ModelDefinition{ID: "gpt-4o-mini"}
	c, w := chatTestContext(t)
	c.Set(ctxkey.Candidates, []registry.Candidate{
		{Model: def, Mapping: &registry.ProviderMapping{Provider: providerid.Novita, ModelName: "gpt-4o-mini"}},
	})
	Relay(c)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Contains(t, w.Body.String(), "no_credential")
	assert.Contains(t, w.Body.String(), "request id: req-test")
}

func TestWriteTerminalError(t *testing.T) {
	c, w := chatTestContext(t)
	bizErr := relaymodel.NewError(http.StatusBadGateway,
		relaymodel.ErrorTypeUpstreamTransient, errors.New("upstream reset"), "upstream_error")
	writeTerminalError(c, bizErr)

	body := w.Body.String()
	require.True(t, strings.HasPrefix(body, "data: "))
	assert.True(t, strings.HasSuffix(body, "data: [DONE]\n\n"))

	first := strings.TrimPrefix(strings.SplitN(body, "\n", 2)[0], "data: ")
	var chunk map[string]any
	require.NoError(t, json.Unmarshal([]byte(first), &chunk))
	assert.Equal(t, "chatcmpl-req-test", chunk["id"])
	choices := chunk["choices"].([]any)
	require.Len(t, choices, 1)
	assert.Equal(t, "error", choices[0].(map[string]any)["finish_reason"])
	assert.NotNil(t, chunk["error"])
}

func TestListModelsIncludesAuto(t *testing.T) {
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest(http.MethodGet, "/v1/models", nil)
	ListModels(c)
	require.Equal(t, http.StatusOK, w.Code)

	var list OpenAIModelList
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &list))
	assert.Equal(t, "list", list.Object)

	ids := make(map[string]bool, len(list.Data))
	for _, m := range list.Data {
		ids[m.ID] = true
	}
	assert.True(t, ids[registry.AutoModelID])
	assert.True(t, ids["gpt-4o-mini"])
	assert.True(t, ids["claude-sonnet-4-5"])
}
