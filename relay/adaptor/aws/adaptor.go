package aws

import (
	"context"
	"io"
	"net/http"

	"github.com/Laisky/errors/v2"
	gmw "github.com/Laisky/gin-middlewares/v7"
	"github.com/Laisky/zap"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	"github.com/gin-gonic/gin"

	"github.com/shinmentakezo07/shinway-sub001/common/ctxkey"
	"github.com/shinmentakezo07/shinway-sub001/relay/adaptor"
	"github.com/shinmentakezo07/shinway-sub001/relay/meta"
	relaymodel "github.com/shinmentakezo07/shinway-sub001/relay/model"
)

type Adaptor struct {
	client  *bedrockruntime.Client
	initErr error
}

var _ adaptor.Adaptor = (*Adaptor)(nil)

func (a *Adaptor) Init(m *meta.Meta) {
	if m.AWSRegion == "" || m.AWSAccessKey == "" || m.AWSSecretKey == "" {
		a.initErr = errors.New("bedrock credentials require region, access key, and secret key")
		return
	}
	cfg, err := awsconfig.LoadDefaultConfig(context.Background(),
		awsconfig.WithRegion(m.AWSRegion),
		awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(m.AWSAccessKey, m.AWSSecretKey, ""),
		),
	)
	if err != nil {
		a.initErr = errors.Wrap(err, "load bedrock config")
		return
	}
	a.client = bedrockruntime.NewFromConfig(cfg)
}

func (a *Adaptor) GetChannelName() string {
	return "aws-bedrock"
}

// GetRequestURL is nominal: the SDK resolves the endpoint from the region.
func (a *Adaptor) GetRequestURL(m *meta.Meta) (string, error) {
	return "", nil
}

func (a *Adaptor) SetupRequestHeader(c *gin.Context, req *http.Request, m *meta.Meta) error {
	return nil
}

func (a *Adaptor) ConvertRequest(c *gin.Context, relayMode int, request *relaymodel.GeneralOpenAIRequest) (any, error) {
	if request == nil {
		return nil, errors.New("request is nil")
	}
	minCacheable := 0
	modelID := request.Model
	if v, ok := c.Get(ctxkey.Meta); ok {
		if rm, ok := v.(*meta.Meta); ok {
			modelID = rm.ActualModelName
			if rm.Mapping != nil {
				minCacheable = rm.Mapping.MinCacheableTokensOrDefault()
			}
		}
	}
	params, err := ConvertRequest(request, modelID, minCacheable)
	if err != nil {
		return nil, errors.Wrap(err, "convert request for bedrock")
	}
	c.Set(ctxkey.ConvertedRequest, params)
	return params, nil
}

func (a *Adaptor) ConvertImageRequest(c *gin.Context, request *relaymodel.ImageRequest) (any, error) {
	return nil, errors.New("bedrock does not serve image generation")
}

// DoRequest is a no-op: Bedrock traffic goes through the SDK, not a raw HTTP
// round trip. DoResponse drives the call.
func (a *Adaptor) DoRequest(c *gin.Context, m *meta.Meta, requestBody io.Reader) (*http.Response, error) {
	if a.initErr != nil {
		return nil, a.initErr
	}
	gmw.GetLogger(c).Info("sending request to upstream provider",
		zap.String("provider", a.GetChannelName()),
		zap.String("region", m.AWSRegion),
		zap.String("model", m.ActualModelName),
	)
	return nil, nil
}

func (a *Adaptor) DoResponse(c *gin.Context, resp *http.Response, m *meta.Meta) (*relaymodel.Usage, *relaymodel.ErrorWithStatusCode) {
	if a.initErr != nil {
		return nil, relaymodel.NewError(http.StatusInternalServerError, relaymodel.ErrorTypeInternal,
			a.initErr, "bedrock_not_initialized")
	}
	v, ok := c.Get(ctxkey.ConvertedRequest)
	if !ok {
		return nil, relaymodel.NewError(http.StatusInternalServerError, relaymodel.ErrorTypeInternal,
			errors.New("converted bedrock request missing from context"), "bedrock_request_missing")
	}
	params, ok := v.(*ConverseParams)
	if !ok {
		return nil, relaymodel.NewError(http.StatusInternalServerError, relaymodel.ErrorTypeInternal,
			errors.New("unexpected converted request type"), "bedrock_request_missing")
	}

	var (
		usage    *relaymodel.Usage
		relayErr *relaymodel.ErrorWithStatusCode
	)
	if m.IsStream {
		relayErr, usage = StreamHandler(c, a.client, params, m.OriginModelName)
	} else {
		relayErr, usage = Handler(c, a.client, params, m.OriginModelName)
	}
	return usage, relayErr
}
