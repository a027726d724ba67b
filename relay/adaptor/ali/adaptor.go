// Package ali adapts Alibaba DashScope. Chat goes through the
// compatible-mode OpenAI surface; image generation uses the native
// multimodal-generation endpoint and shape.
package ali

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/Laisky/errors/v2"
	"github.com/gin-gonic/gin"

	"github.com/shinmentakezo07/shinway-sub001/common/helper"
	"github.com/shinmentakezo07/shinway-sub001/relay/adaptor/openai_compatible"
	"github.com/shinmentakezo07/shinway-sub001/relay/meta"
	relaymodel "github.com/shinmentakezo07/shinway-sub001/relay/model"
	"github.com/shinmentakezo07/shinway-sub001/relay/relaymode"
)

type Adaptor struct {
	openai_compatible.Adaptor
}

func NewAdaptor() *Adaptor {
	return &Adaptor{openai_compatible.Adaptor{ChannelName: "alibaba"}}
}

func (a *Adaptor) GetRequestURL(meta *meta.Meta) (string, error) {
	switch meta.Mode {
	case relaymode.ImagesGenerations:
		return meta.BaseURL + "/api/v1/services/aigc/multimodal-generation/generation", nil
	default:
		return meta.BaseURL + "/compatible-mode/v1/chat/completions", nil
	}
}

// imageRequest is the DashScope multimodal-generation body.
type imageRequest struct {
	Model      string          `json:"model"`
	Input      imageInput      `json:"input"`
	Parameters imageParameters `json:"parameters"`
}

type imageInput struct {
	Messages []imageMessage `json:"messages"`
}

type imageMessage struct {
	Role    string         `json:"role"`
	Content []imageContent `json:"content"`
}

type imageContent struct {
	Text  string `json:"text,omitempty"`
	Image string `json:"image,omitempty"`
}

type imageParameters struct {
	Watermark bool   `json:"watermark"`
	Size      string `json:"size,omitempty"`
	N         int    `json:"n,omitempty"`
	Seed      *int64 `json:"seed,omitempty"`
}

func (a *Adaptor) ConvertImageRequest(c *gin.Context, request *relaymodel.ImageRequest) (any, error) {
	if request == nil {
		return nil, errors.New("request is nil")
	}
	converted := &imageRequest{
		Model: request.Model,
		Input: imageInput{
			Messages: []imageMessage{{
				Role:    relaymodel.RoleUser,
				Content: []imageContent{{Text: request.Prompt}},
			}},
		},
		Parameters: imageParameters{
			// DashScope writes "WxH" as "W*H".
			Size: strings.ReplaceAll(request.Size, "x", "*"),
			N:    request.N,
			Seed: request.Seed,
		},
	}
	return converted, nil
}

// imageResponse is the DashScope multimodal-generation result.
type imageResponse struct {
	Output struct {
		Choices []struct {
			Message struct {
				Content []imageContent `json:"content"`
			} `json:"message"`
		} `json:"choices"`
	} `json:"output"`
	Usage struct {
		ImageCount int `json:"image_count"`
	} `json:"usage"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (a *Adaptor) DoResponse(c *gin.Context, resp *http.Response, meta *meta.Meta) (*relaymodel.Usage, *relaymodel.ErrorWithStatusCode) {
	if meta.Mode == relaymode.ImagesGenerations {
		return imageHandler(c, resp)
	}
	return a.Adaptor.DoResponse(c, resp, meta)
}

// imageHandler converts the DashScope result to the OpenAI image shape.
func imageHandler(c *gin.Context, resp *http.Response) (*relaymodel.Usage, *relaymodel.ErrorWithStatusCode) {
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, relaymodel.NewError(http.StatusInternalServerError, relaymodel.ErrorTypeInternal,
			errors.Wrap(err, "read upstream image response"), "read_response_body_failed")
	}
	_ = resp.Body.Close()

	var upstream imageResponse
	if err = json.Unmarshal(body, &upstream); err != nil {
		return nil, relaymodel.NewError(http.StatusInternalServerError, relaymodel.ErrorTypeInternal,
			errors.Wrap(err, "unmarshal upstream image response"), "unmarshal_response_body_failed")
	}
	if upstream.Code != "" {
		return nil, relaymodel.WrapUpstreamError(resp.StatusCode, "alibaba",
			errors.Errorf("%s: %s", upstream.Code, upstream.Message))
	}

	converted := relaymodel.ImageResponse{Created: helper.GetTimestamp()}
	for _, choice := range upstream.Output.Choices {
		for _, content := range choice.Message.Content {
			if content.Image != "" {
				converted.Data = append(converted.Data, relaymodel.ImageData{URL: content.Image})
			}
		}
	}
	if len(converted.Data) == 0 {
		return nil, relaymodel.WrapUpstreamError(http.StatusBadGateway, "alibaba",
			errors.New("no image returned"))
	}
	usage := &relaymodel.Usage{}
	converted.Usage = usage

	out, err := json.Marshal(&converted)
	if err != nil {
		return nil, relaymodel.NewError(http.StatusInternalServerError, relaymodel.ErrorTypeInternal,
			errors.Wrap(err, "marshal image response"), "marshal_response_body_failed")
	}
	c.Writer.Header().Set("Content-Type", "application/json")
	c.Writer.Header().Set("Content-Length", strconv.Itoa(len(out)))
	c.Writer.WriteHeader(http.StatusOK)
	if _, err = io.Copy(c.Writer, bytes.NewReader(out)); err != nil {
		return nil, relaymodel.NewError(http.StatusInternalServerError, relaymodel.ErrorTypeInternal,
			errors.Wrap(err, "write image response"), "write_response_failed")
	}
	return usage, nil
}
