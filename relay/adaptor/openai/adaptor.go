// Package openai translates canonical requests for the OpenAI platform:
// chat completions, the Responses API models, search-preview models, and
// image generation.
package openai

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/shinmentakezo07/shinway-sub001/relay/adaptor/openai_compatible"
	"github.com/shinmentakezo07/shinway-sub001/relay/meta"
	"github.com/shinmentakezo07/shinway-sub001/relay/model"
	"github.com/shinmentakezo07/shinway-sub001/relay/relaymode"
)

const responsesPath = "/v1/responses"

type Adaptor struct {
	openai_compatible.Adaptor
	meta *meta.Meta
}

func NewAdaptor() *Adaptor {
	return &Adaptor{Adaptor: openai_compatible.Adaptor{ChannelName: "openai"}}
}

func (a *Adaptor) Init(m *meta.Meta) {
	a.Adaptor.Init(m)
	a.meta = m
}

// usesResponsesAPI reports whether the model is only reachable through
// /v1/responses. The registry mapping decides; the model-name prefix covers
// calls that carry no mapping.
func usesResponsesAPI(m *meta.Meta, modelName string) bool {
	if m != nil && m.Mapping != nil {
		return m.Mapping.SupportsResponsesAPI
	}
	return strings.HasPrefix(modelName, "gpt-5-pro")
}

// isReasoningFamily covers the models that reject sampling params and use
// max_completion_tokens.
func isReasoningFamily(modelName string) bool {
	return strings.HasPrefix(modelName, "gpt-5") ||
		strings.HasPrefix(modelName, "o1") ||
		strings.HasPrefix(modelName, "o3") ||
		strings.HasPrefix(modelName, "o4")
}

// isSearchModel covers the -search-preview models with built-in browsing.
func isSearchModel(modelName string) bool {
	return strings.Contains(modelName, "-search-preview")
}

func (a *Adaptor) GetRequestURL(meta *meta.Meta) (string, error) {
	if meta.Mode == relaymode.ChatCompletions && usesResponsesAPI(meta, meta.ActualModelName) {
		return openai_compatible.GetFullRequestURL(meta.BaseURL, responsesPath), nil
	}
	return a.Adaptor.GetRequestURL(meta)
}

func (a *Adaptor) SetupRequestHeader(c *gin.Context, req *http.Request, meta *meta.Meta) error {
	if err := a.Adaptor.SetupRequestHeader(c, req, meta); err != nil {
		return err
	}
	if org := c.GetString("openai_organization"); org != "" {
		req.Header.Set("OpenAI-Organization", org)
	}
	return nil
}

func (a *Adaptor) ConvertRequest(c *gin.Context, relayMode int, request *model.GeneralOpenAIRequest) (any, error) {
	wantsSearch := request.WantsWebSearch()
	searchOpts := request.WebSearch

	converted, err := a.Adaptor.ConvertRequest(c, relayMode, request)
	if err != nil {
		return nil, err
	}
	request = converted.(*model.GeneralOpenAIRequest)

	if usesResponsesAPI(a.meta, request.Model) {
		return convertToResponsesRequest(request), nil
	}

	if isReasoningFamily(request.Model) {
		normalizeReasoningRequest(request)
	}

	if isSearchModel(request.Model) {
		return buildSearchRequest(request, searchOpts), nil
	}
	if wantsSearch {
		// Search-capable chat models browse through an explicit web_search
		// tool entry.
		searchTool := model.Tool{Type: model.ToolTypeWebSearch}
		if existing := model.WebSearchTool(request.Tools); existing != nil {
			searchTool.MaxUses = existing.MaxUses
		} else if searchOpts != nil {
			searchTool.MaxUses = searchOpts.MaxUses
		}
		request.Tools = append(model.FunctionTools(request.Tools), searchTool)
		request.WebSearch = nil
	}
	return request, nil
}

// normalizeReasoningRequest applies the reasoning-family parameter rules:
// max_tokens moves to max_completion_tokens and sampling is fixed upstream.
func normalizeReasoningRequest(request *model.GeneralOpenAIRequest) {
	request.MaxCompletionTokens = request.MaxTokens
	request.MaxTokens = 0
	one := 1.0
	request.Temperature = &one
	request.TopP = nil
	request.FrequencyPenalty = nil
	request.PresencePenalty = nil
}

// searchChatRequest is the chat request shape for -search-preview models:
// sampling params are rejected, web_search_options is required.
type searchChatRequest struct {
	model.GeneralOpenAIRequest
	WebSearchOptions *model.WebSearchOptions `json:"web_search_options,omitempty"`
}

func buildSearchRequest(request *model.GeneralOpenAIRequest, opts *model.WebSearchOptions) *searchChatRequest {
	request.Temperature = nil
	request.TopP = nil
	request.FrequencyPenalty = nil
	request.PresencePenalty = nil
	request.Tools = model.FunctionTools(request.Tools)
	if opts == nil {
		opts = &model.WebSearchOptions{Enabled: true}
	}
	return &searchChatRequest{GeneralOpenAIRequest: *request, WebSearchOptions: opts}
}

func (a *Adaptor) DoResponse(c *gin.Context, resp *http.Response, meta *meta.Meta) (usage *model.Usage, relayErr *model.ErrorWithStatusCode) {
	if meta.Mode == relaymode.ChatCompletions && usesResponsesAPI(meta, meta.ActualModelName) {
		if meta.IsStream {
			relayErr, usage = responsesStreamHandler(c, resp, meta)
		} else {
			relayErr, usage = responsesHandler(c, resp, meta)
		}
		return usage, relayErr
	}
	return a.Adaptor.DoResponse(c, resp, meta)
}
