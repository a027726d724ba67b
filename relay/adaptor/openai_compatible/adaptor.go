package openai_compatible

import (
	"io"
	"net/http"

	"github.com/Laisky/errors/v2"
	"github.com/gin-gonic/gin"

	"github.com/shinmentakezo07/shinway-sub001/common/ctxkey"
	"github.com/shinmentakezo07/shinway-sub001/relay/adaptor"
	"github.com/shinmentakezo07/shinway-sub001/relay/meta"
	"github.com/shinmentakezo07/shinway-sub001/relay/model"
	"github.com/shinmentakezo07/shinway-sub001/relay/relaymode"
)

// Adaptor is the stock translator for providers that speak the OpenAI wire
// format with bearer auth. Provider packages with quirks embed it and
// override individual hooks.
type Adaptor struct {
	ChannelName string
}

var _ adaptor.Adaptor = (*Adaptor)(nil)

func (a *Adaptor) Init(meta *meta.Meta) {}

func (a *Adaptor) GetChannelName() string {
	return a.ChannelName
}

func (a *Adaptor) GetRequestURL(meta *meta.Meta) (string, error) {
	switch meta.Mode {
	case relaymode.ImagesGenerations:
		return GetFullRequestURL(meta.BaseURL, ImagesGenerationsPath), nil
	default:
		return GetFullRequestURL(meta.BaseURL, ChatCompletionsPath), nil
	}
}

func (a *Adaptor) SetupRequestHeader(c *gin.Context, req *http.Request, meta *meta.Meta) error {
	adaptor.SetupCommonRequestHeader(c, req, meta)
	req.Header.Set("Authorization", "Bearer "+meta.APIKey)
	if token := c.GetString(ctxkey.GitHubToken); token != "" {
		req.Header.Set("x-github-token", token)
	}
	return nil
}

// ConvertRequest passes the canonical request through, dropping the
// gateway-only fields no OpenAI-compatible upstream understands.
func (a *Adaptor) ConvertRequest(c *gin.Context, relayMode int, request *model.GeneralOpenAIRequest) (any, error) {
	if request == nil {
		return nil, errors.New("request is nil")
	}
	request.WebSearch = nil
	request.ImageConfig = nil
	if request.Stream && request.StreamOptions == nil {
		// Ask for the usage block on the final chunk.
		request.StreamOptions = &model.StreamOptions{IncludeUsage: true}
	}
	return request, nil
}

func (a *Adaptor) ConvertImageRequest(c *gin.Context, request *model.ImageRequest) (any, error) {
	if request == nil {
		return nil, errors.New("request is nil")
	}
	return request, nil
}

func (a *Adaptor) DoRequest(c *gin.Context, meta *meta.Meta, requestBody io.Reader) (*http.Response, error) {
	return adaptor.DoRequestHelper(a, c, meta, requestBody)
}

func (a *Adaptor) DoResponse(c *gin.Context, resp *http.Response, meta *meta.Meta) (usage *model.Usage, relayErr *model.ErrorWithStatusCode) {
	if meta.Mode == relaymode.ImagesGenerations {
		return ImageHandler(c, resp)
	}
	if meta.IsStream {
		relayErr, usage = StreamHandler(c, resp, meta.PromptTokens, meta.OriginModelName)
	} else {
		relayErr, usage = Handler(c, resp, meta.PromptTokens, meta.OriginModelName)
	}
	return usage, relayErr
}
