// Package zai adapts the ZAI open platform. It speaks the OpenAI wire format
// on /v4 paths, with reasoning expressed as a thinking flag, search as the
// search-prime tool, and CogView image generation on its own endpoint.
package zai

import (
	"net/http"
	"strings"

	"github.com/Laisky/errors/v2"
	"github.com/gin-gonic/gin"

	"github.com/shinmentakezo07/shinway-sub001/relay/adaptor/openai_compatible"
	"github.com/shinmentakezo07/shinway-sub001/relay/meta"
	relaymodel "github.com/shinmentakezo07/shinway-sub001/relay/model"
	"github.com/shinmentakezo07/shinway-sub001/relay/relaymode"
)

type Adaptor struct {
	openai_compatible.Adaptor
}

func NewAdaptor() *Adaptor {
	return &Adaptor{openai_compatible.Adaptor{ChannelName: "zai"}}
}

func (a *Adaptor) GetRequestURL(meta *meta.Meta) (string, error) {
	switch {
	case meta.Mode == relaymode.ImagesGenerations || isImageModel(meta.ActualModelName):
		return meta.BaseURL + "/v4/images/generations", nil
	default:
		return meta.BaseURL + "/v4/chat/completions", nil
	}
}

func isImageModel(modelName string) bool {
	return strings.HasPrefix(modelName, "cogview")
}

// chatRequest extends the OpenAI shape with ZAI's thinking flag and tool
// schema. Tools shadows the embedded field so web_search renders natively.
type chatRequest struct {
	*relaymodel.GeneralOpenAIRequest
	Thinking *thinkingOption `json:"thinking,omitempty"`
	Tools    []tool          `json:"tools,omitempty"`
}

type thinkingOption struct {
	Type string `json:"type"`
}

type tool struct {
	Type      string               `json:"type"`
	Function  *relaymodel.Function `json:"function,omitempty"`
	WebSearch *webSearchTool       `json:"web_search,omitempty"`
}

type webSearchTool struct {
	Enable       bool   `json:"enable"`
	SearchEngine string `json:"search_engine"`
}

// imageGenRequest is the CogView generation body.
type imageGenRequest struct {
	Model  string `json:"model"`
	Prompt string `json:"prompt"`
	Size   string `json:"size,omitempty"`
	N      int    `json:"n,omitempty"`
}

func (a *Adaptor) ConvertRequest(c *gin.Context, relayMode int, request *relaymodel.GeneralOpenAIRequest) (any, error) {
	if request == nil {
		return nil, errors.New("request is nil")
	}
	// A chat-completions call aimed at CogView becomes an image generation.
	if isImageModel(request.Model) {
		return convertChatToImageGen(request)
	}

	wantsSearch := request.WantsWebSearch()
	converted := &chatRequest{GeneralOpenAIRequest: request}
	for _, fn := range relaymodel.FunctionTools(request.Tools) {
		converted.Tools = append(converted.Tools, tool{Type: relaymodel.ToolTypeFunction, Function: fn.Function})
	}
	if wantsSearch {
		converted.Tools = append(converted.Tools, tool{
			Type:      "web_search",
			WebSearch: &webSearchTool{Enable: true, SearchEngine: "search-prime"},
		})
	}
	if request.ReasoningEffort != nil {
		converted.Thinking = &thinkingOption{Type: "enabled"}
		request.ReasoningEffort = nil
	}
	request.WebSearch = nil
	request.ImageConfig = nil
	if request.Stream && request.StreamOptions == nil {
		request.StreamOptions = &relaymodel.StreamOptions{IncludeUsage: true}
	}
	return converted, nil
}

// convertChatToImageGen builds the prompt from the last user message's text
// parts.
func convertChatToImageGen(request *relaymodel.GeneralOpenAIRequest) (*imageGenRequest, error) {
	var prompt string
	for i := len(request.Messages) - 1; i >= 0; i-- {
		if request.Messages[i].Role != relaymodel.RoleUser {
			continue
		}
		var parts []string
		for _, part := range request.Messages[i].ParseContent() {
			if part.Type == relaymodel.ContentTypeText && part.Text != nil {
				parts = append(parts, *part.Text)
			}
		}
		prompt = strings.Join(parts, "\n")
		break
	}
	if prompt == "" {
		return nil, errors.New("no user prompt for image generation")
	}
	converted := &imageGenRequest{
		Model:  request.Model,
		Prompt: prompt,
	}
	if request.ImageConfig != nil {
		converted.Size = request.ImageConfig.ImageSize
		converted.N = request.ImageConfig.N
	}
	return converted, nil
}

// DoResponse routes CogView results through the image handler even when the
// request arrived on the chat surface.
func (a *Adaptor) DoResponse(c *gin.Context, resp *http.Response, meta *meta.Meta) (*relaymodel.Usage, *relaymodel.ErrorWithStatusCode) {
	if meta.Mode != relaymode.ImagesGenerations && isImageModel(meta.ActualModelName) {
		return openai_compatible.ImageHandler(c, resp)
	}
	return a.Adaptor.DoResponse(c, resp, meta)
}

func (a *Adaptor) ConvertImageRequest(c *gin.Context, request *relaymodel.ImageRequest) (any, error) {
	if request == nil {
		return nil, errors.New("request is nil")
	}
	converted := &imageGenRequest{
		Model:  request.Model,
		Prompt: request.Prompt,
		Size:   request.Size,
		N:      request.N,
	}
	return converted, nil
}
