// Package adaptor defines the per-provider translator strategy. Each provider
// package converts the canonical OpenAI-shaped request to its upstream wire
// format, sends it, and converts the response (streaming or not) back.
package adaptor

import (
	"context"
	"io"
	"net/http"

	"github.com/Laisky/errors/v2"
	"github.com/gin-gonic/gin"

	"github.com/shinmentakezo07/shinway-sub001/common/client"
	"github.com/shinmentakezo07/shinway-sub001/common/config"
	"github.com/shinmentakezo07/shinway-sub001/common/ctxkey"
	"github.com/shinmentakezo07/shinway-sub001/relay/meta"
	"github.com/shinmentakezo07/shinway-sub001/relay/model"
)

type Adaptor interface {
	Init(meta *meta.Meta)
	GetRequestURL(meta *meta.Meta) (string, error)
	SetupRequestHeader(c *gin.Context, req *http.Request, meta *meta.Meta) error
	ConvertRequest(c *gin.Context, relayMode int, request *model.GeneralOpenAIRequest) (any, error)
	ConvertImageRequest(c *gin.Context, request *model.ImageRequest) (any, error)
	DoRequest(c *gin.Context, meta *meta.Meta, requestBody io.Reader) (*http.Response, error)
	DoResponse(c *gin.Context, resp *http.Response, meta *meta.Meta) (usage *model.Usage, err *model.ErrorWithStatusCode)
	GetChannelName() string
}

// SetupCommonRequestHeader copies the headers every upstream gets: content
// type, accept, and the streaming accept hint.
func SetupCommonRequestHeader(c *gin.Context, req *http.Request, meta *meta.Meta) {
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", c.Request.Header.Get("Accept"))
	if meta.IsStream && c.Request.Header.Get("Accept") == "" {
		req.Header.Set("Accept", "text/event-stream")
	}
}

// DoRequestHelper builds and sends the upstream request through the adaptor's
// URL and header hooks. Every attempt runs under its own overall deadline;
// connect and first-byte limits live on the shared transports.
func DoRequestHelper(a Adaptor, c *gin.Context, meta *meta.Meta, requestBody io.Reader) (*http.Response, error) {
	fullRequestURL, err := a.GetRequestURL(meta)
	if err != nil {
		return nil, errors.Wrap(err, "get request url failed")
	}
	ctx, cancel := context.WithTimeout(c.Request.Context(), config.UpstreamAttemptTimeout)
	req, err := http.NewRequestWithContext(ctx, c.Request.Method, fullRequestURL, requestBody)
	if err != nil {
		cancel()
		return nil, errors.Wrap(err, "new request failed")
	}
	if err := a.SetupRequestHeader(c, req, meta); err != nil {
		cancel()
		return nil, errors.Wrap(err, "setup request header failed")
	}
	resp, err := DoRequest(c, req)
	if err != nil {
		cancel()
		return nil, errors.Wrap(err, "do request failed")
	}
	// The deadline keeps covering the body (streaming included) until the
	// response handler closes it.
	resp.Body = &deadlineBody{ReadCloser: resp.Body, cancel: cancel}
	return resp, nil
}

// deadlineBody releases the attempt's deadline context when the response body
// is closed.
type deadlineBody struct {
	io.ReadCloser
	cancel context.CancelFunc
}

func (b *deadlineBody) Close() error {
	err := b.ReadCloser.Close()
	b.cancel()
	return err
}

// DoRequest sends req on the shared relay client. Custom endpoints use the
// internal-address-blocking client instead.
func DoRequest(c *gin.Context, req *http.Request) (*http.Response, error) {
	httpClient := client.HTTPClient
	if custom, _ := c.Get(ctxkey.CustomEndpoint); custom == true {
		httpClient = client.UserEndpointHTTPClient
	}
	resp, err := httpClient.Do(req)
	if err != nil {
		return nil, errors.Wrap(err, "upstream request failed")
	}
	if resp == nil {
		return nil, errors.New("resp is nil")
	}
	_ = req.Body.Close()
	_ = c.Request.Body.Close()
	return resp, nil
}
