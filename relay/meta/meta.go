// Package meta carries the per-attempt relay state threaded through the
// translator strategies. A fresh Meta is built for every failover attempt so
// translators never see another candidate's provider fields.
package meta

import (
	"github.com/gin-gonic/gin"

	"github.com/shinmentakezo07/shinway-sub001/common/ctxkey"
	"github.com/shinmentakezo07/shinway-sub001/model"
	"github.com/shinmentakezo07/shinway-sub001/relay/providerid"
	"github.com/shinmentakezo07/shinway-sub001/relay/registry"
	"github.com/shinmentakezo07/shinway-sub001/relay/relaymode"
)

type Meta struct {
	Mode int

	Provider providerid.ID
	Model    *registry.ModelDefinition
	Mapping  *registry.ProviderMapping

	// BaseURL is the provider endpoint root; custom OpenAI-compatible
	// endpoints override the compiled-in default.
	BaseURL string

	// APIKey is the credential for this attempt; BYOK marks it as the
	// organization's own key (auth failures then surface instead of
	// triggering failover).
	APIKey string
	BYOK   bool

	// AWS SigV4 / Vertex fields, set only for those providers.
	AWSRegion       string
	AWSAccessKey    string
	AWSSecretKey    string
	VertexProjectID string
	VertexRegion    string

	// OriginModelName is what the caller asked for; ActualModelName is the
	// provider-side name sent upstream.
	OriginModelName string
	ActualModelName string

	RequestURLPath string
	IsStream       bool
	PromptTokens   int

	OrganizationID string
	ProjectID      string
	RequestID      string
}

// GetByContext builds the attempt-independent part of Meta from the request
// context; the failover controller fills the candidate fields per attempt.
func GetByContext(c *gin.Context) *Meta {
	m := &Meta{
		Mode:            relaymode.GetByPath(c.Request.URL.Path),
		RequestURLPath:  c.Request.URL.String(),
		OriginModelName: c.GetString(ctxkey.RequestModel),
		RequestID:       c.GetString(ctxkey.RequestId),
	}
	if v, ok := c.Get(ctxkey.Organization); ok {
		if org, ok := v.(*model.Organization); ok {
			m.OrganizationID = org.ID
		}
	}
	if v, ok := c.Get(ctxkey.Project); ok {
		if project, ok := v.(*model.Project); ok {
			m.ProjectID = project.ID
		}
	}
	return m
}
