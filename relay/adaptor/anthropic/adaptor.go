// Package anthropic translates canonical requests to the Anthropic Messages
// API, including prompt-cache breakpoints, extended thinking, and the
// web_search server tool.
package anthropic

import (
	"io"
	"net/http"

	"github.com/Laisky/errors/v2"
	"github.com/gin-gonic/gin"

	"github.com/shinmentakezo07/shinway-sub001/common/ctxkey"
	"github.com/shinmentakezo07/shinway-sub001/relay/adaptor"
	"github.com/shinmentakezo07/shinway-sub001/relay/meta"
	"github.com/shinmentakezo07/shinway-sub001/relay/model"
)

const anthropicVersion = "2023-06-01"

type Adaptor struct{}

var _ adaptor.Adaptor = (*Adaptor)(nil)

func (a *Adaptor) Init(meta *meta.Meta) {}

func (a *Adaptor) GetChannelName() string {
	return "anthropic"
}

func (a *Adaptor) GetRequestURL(meta *meta.Meta) (string, error) {
	return meta.BaseURL + "/v1/messages", nil
}

func (a *Adaptor) SetupRequestHeader(c *gin.Context, req *http.Request, meta *meta.Meta) error {
	adaptor.SetupCommonRequestHeader(c, req, meta)
	req.Header.Set("x-api-key", meta.APIKey)
	req.Header.Set("anthropic-version", anthropicVersion)
	return nil
}

func (a *Adaptor) ConvertRequest(c *gin.Context, relayMode int, request *model.GeneralOpenAIRequest) (any, error) {
	if request == nil {
		return nil, errors.New("request is nil")
	}
	minCacheable := 0
	if m, ok := c.Get(ctxkey.Meta); ok {
		if rm, ok := m.(*meta.Meta); ok && rm.Mapping != nil {
			minCacheable = rm.Mapping.MinCacheableTokensOrDefault()
		}
	}
	converted, err := ConvertRequest(c, request, minCacheable)
	if err != nil {
		return nil, errors.Wrap(err, "convert request to anthropic")
	}
	return converted, nil
}

func (a *Adaptor) ConvertImageRequest(c *gin.Context, request *model.ImageRequest) (any, error) {
	return nil, errors.New("anthropic does not support image generation")
}

func (a *Adaptor) DoRequest(c *gin.Context, meta *meta.Meta, requestBody io.Reader) (*http.Response, error) {
	return adaptor.DoRequestHelper(a, c, meta, requestBody)
}

func (a *Adaptor) DoResponse(c *gin.Context, resp *http.Response, meta *meta.Meta) (usage *model.Usage, relayErr *model.ErrorWithStatusCode) {
	if meta.IsStream {
		relayErr, usage = StreamHandler(c, resp, meta)
	} else {
		relayErr, usage = Handler(c, resp, meta)
	}
	return usage, relayErr
}
