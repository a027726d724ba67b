package middleware

import (
	"net/http"
	"strings"

	"github.com/Laisky/errors/v2"
	gmw "github.com/Laisky/gin-middlewares/v7"
	"github.com/Laisky/zap"
	"github.com/gin-gonic/gin"

	"github.com/shinmentakezo07/shinway-sub001/common"
	"github.com/shinmentakezo07/shinway-sub001/common/config"
	"github.com/shinmentakezo07/shinway-sub001/common/ctxkey"
	"github.com/shinmentakezo07/shinway-sub001/model"
	relaymodel "github.com/shinmentakezo07/shinway-sub001/relay/model"
	"github.com/shinmentakezo07/shinway-sub001/relay/registry"
	"github.com/shinmentakezo07/shinway-sub001/relay/relaymode"
)

// ModelRequest is the minimal body shape the distributor needs.
type ModelRequest struct {
	Model string `json:"model" form:"model"`
}

// Distribute resolves the requested model into an ordered candidate list and
// stores it for the failover controller. It runs after TokenAuth and
// RateLimit, so the organization context is always present.
func Distribute() gin.HandlerFunc {
	return func(c *gin.Context) {
		lg := gmw.GetLogger(c)
		org := OrganizationFromContext(c)
		project := ProjectFromContext(c)
		if org == nil || project == nil {
			AbortWithError(c, relaymodel.NewError(http.StatusUnauthorized,
				relaymodel.ErrorTypeUnauthorized,
				errors.New("request is not authenticated"), "missing_auth_context"))
			return
		}

		var req ModelRequest
		if err := common.UnmarshalBodyReusable(c, &req); err != nil {
			AbortWithError(c, relaymodel.NewError(http.StatusBadRequest,
				relaymodel.ErrorTypeInvalidRequest,
				errors.Wrap(err, "parse request body"), "invalid_request_body"))
			return
		}
		if req.Model == "" {
			AbortWithError(c, relaymodel.NewError(http.StatusBadRequest,
				relaymodel.ErrorTypeInvalidRequest,
				errors.New("model is required"), "missing_model"))
			return
		}
		c.Set(ctxkey.RequestModel, req.Model)

		if noFallback(c) {
			c.Set(ctxkey.NoFallback, true)
		}

		if token := c.GetHeader("x-github-token"); token != "" {
			c.Set(ctxkey.GitHubToken, token)
		}

		byok := map[string]bool{}
		route := registry.RouteRequest{ModelID: req.Model}
		if relaymode.GetByPath(c.Request.URL.Path) == relaymode.ImagesGenerations {
			route.Require = append(route.Require, registry.CapImageGen)
		} else {
			var chatReq relaymodel.GeneralOpenAIRequest
			if err := common.UnmarshalBodyReusable(c, &chatReq); err == nil {
				route.Require = registry.RequiredCapabilities(&chatReq)
			}
		}
		if org.BYOKEnabled && project.PrefersBYOK() {
			providers, err := model.GetBYOKProviders(org.ID)
			if err != nil {
				lg.Warn("list byok providers", zap.Error(err))
			} else {
				route.BYOKProviders = providers
				for id := range providers {
					byok[string(id)] = true
				}
			}
		}
		if degraded, err := model.DegradedManagedProviders(); err != nil {
			lg.Warn("list degraded providers", zap.Error(err))
		} else {
			route.Degraded = degraded
		}

		candidates, routeErr := registry.Candidates(route)
		if routeErr != nil {
			AbortWithError(c, routeErr)
			return
		}

		filtered := candidates[:0]
		for _, cand := range candidates {
			if !org.ProviderAllowed(cand.Mapping.Provider) {
				continue
			}
			// BYOK-only projects never fall through to managed credentials.
			if project.Mode == model.ProjectModeBYOK && !cand.BYOK {
				continue
			}
			filtered = append(filtered, cand)
		}
		if len(filtered) == 0 {
			AbortWithError(c, relaymodel.NewError(http.StatusServiceUnavailable,
				relaymodel.ErrorTypeNoEligible,
				errors.Errorf("no eligible provider for model %q", req.Model),
				"no_eligible_provider"))
			return
		}

		// Hosted mode requires credits unless every attempt rides the
		// organization's own keys.
		if config.Hosted && !org.HasCredits() && !allBYOK(filtered) {
			AbortWithError(c, relaymodel.NewError(http.StatusForbidden,
				relaymodel.ErrorTypeForbidden,
				errors.New("insufficient credits"), "insufficient_credits"))
			return
		}

		lg.Debug("routed model",
			zap.String("model", req.Model),
			zap.Int("candidates", len(filtered)),
			zap.Bool("byok", len(byok) > 0),
		)
		c.Set(ctxkey.Candidates, filtered)
		c.Next()
	}
}

func noFallback(c *gin.Context) bool {
	if config.NoFallback {
		return true
	}
	return strings.EqualFold(c.GetHeader("x-no-fallback"), "true")
}

func allBYOK(candidates []registry.Candidate) bool {
	for _, cand := range candidates {
		if !cand.BYOK {
			return false
		}
	}
	return true
}

// CandidatesFromContext returns the distributor's routing result.
func CandidatesFromContext(c *gin.Context) []registry.Candidate {
	if v, ok := c.Get(ctxkey.Candidates); ok {
		if list, ok := v.([]registry.Candidate); ok {
			return list
		}
	}
	return nil
}
