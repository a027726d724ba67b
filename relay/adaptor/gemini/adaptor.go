package gemini

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"

	"github.com/Laisky/errors/v2"
	"github.com/gin-gonic/gin"

	"github.com/shinmentakezo07/shinway-sub001/common/ctxkey"
	"github.com/shinmentakezo07/shinway-sub001/common/helper"
	"github.com/shinmentakezo07/shinway-sub001/relay/adaptor"
	"github.com/shinmentakezo07/shinway-sub001/relay/meta"
	relaymodel "github.com/shinmentakezo07/shinway-sub001/relay/model"
	"github.com/shinmentakezo07/shinway-sub001/relay/relaymode"
)

const apiVersion = "v1beta"

type Adaptor struct{}

var _ adaptor.Adaptor = (*Adaptor)(nil)

func (a *Adaptor) Init(meta *meta.Meta) {}

func (a *Adaptor) GetChannelName() string {
	return "google-ai-studio"
}

func (a *Adaptor) GetRequestURL(meta *meta.Meta) (string, error) {
	action := "generateContent"
	if meta.IsStream {
		action = "streamGenerateContent?alt=sse"
	}
	return fmt.Sprintf("%s/%s/models/%s:%s", meta.BaseURL, apiVersion, meta.ActualModelName, action), nil
}

func (a *Adaptor) SetupRequestHeader(c *gin.Context, req *http.Request, meta *meta.Meta) error {
	adaptor.SetupCommonRequestHeader(c, req, meta)
	req.Header.Set("x-goog-api-key", meta.APIKey)
	return nil
}

func (a *Adaptor) ConvertRequest(c *gin.Context, relayMode int, request *relaymodel.GeneralOpenAIRequest) (any, error) {
	if request == nil {
		return nil, errors.New("request is nil")
	}
	supportsSystemRole := true
	if m, ok := c.Get(ctxkey.Meta); ok {
		if rm, ok := m.(*meta.Meta); ok && rm.Model != nil {
			supportsSystemRole = rm.Model.SystemRoleSupported()
		}
	}
	return ConvertRequest(request, supportsSystemRole), nil
}

// ConvertImageRequest maps /v1/images/generations onto generateContent for
// the image-output Gemini models.
func (a *Adaptor) ConvertImageRequest(c *gin.Context, request *relaymodel.ImageRequest) (any, error) {
	if request == nil {
		return nil, errors.New("request is nil")
	}
	geminiRequest := &ChatRequest{
		Contents: []ChatContent{{
			Role:  "user",
			Parts: []Part{{Text: request.Prompt}},
		}},
		GenerationConfig: ChatGenerationConfig{
			ResponseModalities: []string{"TEXT", "IMAGE"},
			Seed:               request.Seed,
		},
	}
	if request.Size != "" {
		geminiRequest.GenerationConfig.ImageConfig = &ImageConfig{ImageSize: request.Size}
	}
	return geminiRequest, nil
}

func (a *Adaptor) DoRequest(c *gin.Context, meta *meta.Meta, requestBody io.Reader) (*http.Response, error) {
	return adaptor.DoRequestHelper(a, c, meta, requestBody)
}

func (a *Adaptor) DoResponse(c *gin.Context, resp *http.Response, meta *meta.Meta) (usage *relaymodel.Usage, relayErr *relaymodel.ErrorWithStatusCode) {
	if meta.Mode == relaymode.ImagesGenerations {
		return imageHandler(c, resp)
	}
	if meta.IsStream {
		relayErr, usage = StreamHandler(c, resp, meta)
	} else {
		relayErr, usage = Handler(c, resp, meta)
	}
	return usage, relayErr
}

// imageHandler converts generateContent inline images to the OpenAI image
// response shape.
func imageHandler(c *gin.Context, resp *http.Response) (*relaymodel.Usage, *relaymodel.ErrorWithStatusCode) {
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, relaymodel.NewError(http.StatusInternalServerError, relaymodel.ErrorTypeInternal,
			errors.Wrap(err, "read upstream image response"), "read_response_body_failed")
	}
	_ = resp.Body.Close()

	var geminiResponse ChatResponse
	if err = json.Unmarshal(body, &geminiResponse); err != nil {
		return nil, relaymodel.NewError(http.StatusInternalServerError, relaymodel.ErrorTypeInternal,
			errors.Wrap(err, "unmarshal upstream image response"), "unmarshal_response_body_failed")
	}
	if geminiResponse.Error != nil {
		return nil, relaymodel.WrapUpstreamError(resp.StatusCode, "gemini",
			errors.Errorf("%s: %s", geminiResponse.Error.Status, geminiResponse.Error.Message))
	}

	converted := relaymodel.ImageResponse{Created: helper.GetTimestamp()}
	for _, candidate := range geminiResponse.Candidates {
		for _, part := range candidate.Content.Parts {
			if part.InlineData != nil {
				converted.Data = append(converted.Data, relaymodel.ImageData{B64JSON: part.InlineData.Data})
			}
		}
	}
	if len(converted.Data) == 0 {
		return nil, relaymodel.WrapUpstreamError(http.StatusBadGateway, "gemini",
			errors.New("no image returned"))
	}
	usage := usageGemini2OpenAI(geminiResponse.UsageMetadata)
	if usage == nil {
		usage = &relaymodel.Usage{}
	}
	converted.Usage = usage

	out, err := json.Marshal(&converted)
	if err != nil {
		return nil, relaymodel.NewError(http.StatusInternalServerError, relaymodel.ErrorTypeInternal,
			errors.Wrap(err, "marshal image response"), "marshal_response_body_failed")
	}
	c.Writer.Header().Set("Content-Type", "application/json")
	c.Writer.Header().Set("Content-Length", strconv.Itoa(len(out)))
	c.Writer.WriteHeader(resp.StatusCode)
	if _, err = io.Copy(c.Writer, bytes.NewReader(out)); err != nil {
		return nil, relaymodel.NewError(http.StatusInternalServerError, relaymodel.ErrorTypeInternal,
			errors.Wrap(err, "write image response"), "write_response_failed")
	}
	return usage, nil
}
