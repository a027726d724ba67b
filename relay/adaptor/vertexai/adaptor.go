// Package vertexai serves Gemini models through Google Vertex: the wire
// format is shared with the gemini package, only endpoint and authentication
// differ (service-account OAuth instead of API keys).
package vertexai

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"sync"

	"github.com/Laisky/errors/v2"
	"github.com/gin-gonic/gin"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"

	"github.com/shinmentakezo07/shinway-sub001/relay/adaptor"
	"github.com/shinmentakezo07/shinway-sub001/relay/adaptor/gemini"
	"github.com/shinmentakezo07/shinway-sub001/relay/meta"
	relaymodel "github.com/shinmentakezo07/shinway-sub001/relay/model"
)

const cloudPlatformScope = "https://www.googleapis.com/auth/cloud-platform"

// tokenSources caches one refreshing source per service-account key.
var (
	tokenSourcesMu sync.Mutex
	tokenSources   = map[string]oauth2.TokenSource{}
)

// accessToken exchanges the service-account JSON for a bearer token, reusing
// the cached source so refreshes amortize across requests.
func accessToken(ctx context.Context, credsJSON string) (string, error) {
	tokenSourcesMu.Lock()
	source, ok := tokenSources[credsJSON]
	if !ok {
		creds, err := google.CredentialsFromJSON(ctx, []byte(credsJSON), cloudPlatformScope)
		if err != nil {
			tokenSourcesMu.Unlock()
			return "", errors.Wrap(err, "parse vertex service account credentials")
		}
		source = creds.TokenSource
		tokenSources[credsJSON] = source
	}
	tokenSourcesMu.Unlock()

	token, err := source.Token()
	if err != nil {
		return "", errors.Wrap(err, "fetch vertex access token")
	}
	return token.AccessToken, nil
}

type Adaptor struct {
	gemini.Adaptor
}

var _ adaptor.Adaptor = (*Adaptor)(nil)

func (a *Adaptor) GetChannelName() string {
	return "vertex"
}

func (a *Adaptor) GetRequestURL(meta *meta.Meta) (string, error) {
	if meta.VertexProjectID == "" || meta.VertexRegion == "" {
		return "", errors.New("vertex project and region are required")
	}
	action := "generateContent"
	if meta.IsStream {
		action = "streamGenerateContent?alt=sse"
	}
	return fmt.Sprintf(
		"https://%s-aiplatform.googleapis.com/v1/projects/%s/locations/%s/publishers/google/models/%s:%s",
		meta.VertexRegion, meta.VertexProjectID, meta.VertexRegion, meta.ActualModelName, action,
	), nil
}

func (a *Adaptor) SetupRequestHeader(c *gin.Context, req *http.Request, meta *meta.Meta) error {
	adaptor.SetupCommonRequestHeader(c, req, meta)
	token, err := accessToken(c.Request.Context(), meta.APIKey)
	if err != nil {
		return errors.Wrap(err, "vertex auth")
	}
	req.Header.Set("Authorization", "Bearer "+token)
	return nil
}

func (a *Adaptor) DoRequest(c *gin.Context, meta *meta.Meta, requestBody io.Reader) (*http.Response, error) {
	return adaptor.DoRequestHelper(a, c, meta, requestBody)
}

func (a *Adaptor) ConvertImageRequest(c *gin.Context, request *relaymodel.ImageRequest) (any, error) {
	return a.Adaptor.ConvertImageRequest(c, request)
}
