package middleware

import (
	"net/http"
	"strings"

	"github.com/Laisky/errors/v2"
	"github.com/gin-gonic/gin"

	"github.com/shinmentakezo07/shinway-sub001/common/ctxkey"
	"github.com/shinmentakezo07/shinway-sub001/model"
	relaymodel "github.com/shinmentakezo07/shinway-sub001/relay/model"
)

// extractToken pulls the API key from `Authorization: Bearer <key>` or the
// `x-api-key` header; Anthropic-native SDKs send the latter.
func extractToken(c *gin.Context) string {
	auth := c.GetHeader("Authorization")
	if after, ok := strings.CutPrefix(auth, "Bearer "); ok {
		return strings.TrimSpace(after)
	}
	if auth != "" {
		return strings.TrimSpace(auth)
	}
	return strings.TrimSpace(c.GetHeader("x-api-key"))
}

// TokenAuth authenticates the request and loads its organization and project
// into the context. Every relay route sits behind it.
func TokenAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		token := extractToken(c)
		if token == "" {
			AbortWithError(c, relaymodel.NewError(http.StatusUnauthorized,
				relaymodel.ErrorTypeUnauthorized,
				errors.New("missing API key"), "missing_api_key"))
			return
		}

		key, err := model.GetApiKeyByToken(token)
		if err != nil {
			AbortWithError(c, relaymodel.NewError(http.StatusUnauthorized,
				relaymodel.ErrorTypeUnauthorized,
				errors.New("invalid API key"), "invalid_api_key"))
			return
		}
		if !key.Active() {
			AbortWithError(c, relaymodel.NewError(http.StatusUnauthorized,
				relaymodel.ErrorTypeUnauthorized,
				errors.New("API key is disabled"), "inactive_api_key"))
			return
		}

		project, err := model.GetProjectByID(key.ProjectID)
		if err != nil {
			AbortWithError(c, relaymodel.NewError(http.StatusUnauthorized,
				relaymodel.ErrorTypeUnauthorized,
				errors.New("project not found for API key"), "invalid_api_key"))
			return
		}
		org, err := model.GetOrganizationByID(project.OrganizationID)
		if err != nil {
			AbortWithError(c, relaymodel.NewError(http.StatusUnauthorized,
				relaymodel.ErrorTypeUnauthorized,
				errors.New("organization not found for API key"), "invalid_api_key"))
			return
		}

		c.Set(ctxkey.ApiKey, key)
		c.Set(ctxkey.Project, project)
		c.Set(ctxkey.Organization, org)
		go key.TouchLastUsed()
		c.Next()
	}
}

// OrganizationFromContext returns the authenticated organization, nil when the
// route is unauthenticated.
func OrganizationFromContext(c *gin.Context) *model.Organization {
	if v, ok := c.Get(ctxkey.Organization); ok {
		if org, ok := v.(*model.Organization); ok {
			return org
		}
	}
	return nil
}

// ProjectFromContext returns the authenticated project, nil when absent.
func ProjectFromContext(c *gin.Context) *model.Project {
	if v, ok := c.Get(ctxkey.Project); ok {
		if project, ok := v.(*model.Project); ok {
			return project
		}
	}
	return nil
}

// ApiKeyFromContext returns the authenticated key, nil when absent.
func ApiKeyFromContext(c *gin.Context) *model.ApiKey {
	if v, ok := c.Get(ctxkey.ApiKey); ok {
		if key, ok := v.(*model.ApiKey); ok {
			return key
		}
	}
	return nil
}
