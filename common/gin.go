package common

import (
	"bytes"
	"encoding/json"
	"io"
	"reflect"
	"strings"

	"github.com/Laisky/errors/v2"
	gmw "github.com/Laisky/gin-middlewares/v7"
	"github.com/Laisky/zap"
	"github.com/gin-gonic/gin"

	"github.com/shinmentakezo07/shinway-sub001/common/config"
	"github.com/shinmentakezo07/shinway-sub001/common/ctxkey"
)

// DefaultLogBodyLimit caps how many payload bytes the debug log keeps.
const DefaultLogBodyLimit = 4096

// GetRequestBody reads and caches the request body so the failover loop can
// re-translate it for every candidate.
func GetRequestBody(c *gin.Context) (requestBody []byte, err error) {
	if cached, _ := c.Get(ctxkey.KeyRequestBody); cached != nil {
		return cached.([]byte), nil
	}
	requestBody, err = io.ReadAll(c.Request.Body)
	if err != nil {
		return nil, errors.Wrap(err, "read request body failed")
	}
	_ = c.Request.Body.Close()
	c.Set(ctxkey.KeyRequestBody, requestBody)
	return requestBody, nil
}

// UnmarshalBodyReusable unmarshals the request body into v while keeping the
// body reusable. JSON and form payloads are supported by Content-Type.
func UnmarshalBodyReusable(c *gin.Context, v any) error {
	requestBody, err := GetRequestBody(c)
	if err != nil {
		return errors.Wrap(err, "get request body failed")
	}
	if err = logClientRequestPayload(c, requestBody); err != nil {
		return errors.Wrap(err, "log client request payload failed")
	}

	if v == nil || reflect.TypeOf(v).Kind() != reflect.Ptr {
		return errors.Errorf("UnmarshalBodyReusable only accepts a pointer, got %v", reflect.TypeOf(v))
	}

	contentType := c.Request.Header.Get("Content-Type")
	if strings.HasPrefix(contentType, "application/json") {
		err = json.Unmarshal(requestBody, v)
	} else {
		c.Request.Body = io.NopCloser(bytes.NewBuffer(requestBody))
		err = c.ShouldBind(v)
	}
	if err != nil {
		return errors.Wrap(err, "unmarshal request body failed")
	}

	c.Request.Body = io.NopCloser(bytes.NewBuffer(requestBody))
	return nil
}

// logClientRequestPayload emits one DEBUG line per request with a truncated
// copy of the inbound payload.
func logClientRequestPayload(c *gin.Context, body []byte) error {
	if !config.DebugEnabled {
		return nil
	}
	if logged, ok := c.Get(ctxkey.ClientRequestPayloadLogged); ok {
		if flag, ok := logged.(bool); ok && flag {
			return nil
		}
	}
	c.Set(ctxkey.ClientRequestPayloadLogged, true)

	// Redact inline base64 (images, audio) before the payload hits the log.
	preview, truncated := SanitizePayloadForLogging(body, DefaultLogBodyLimit)
	gmw.GetLogger(c).Debug("client request payload",
		zap.ByteString("body", preview),
		zap.Bool("truncated", truncated),
		zap.Int("size", len(body)))
	return nil
}

// SetEventStreamHeaders configures the standard SSE response headers.
func SetEventStreamHeaders(c *gin.Context) {
	c.Writer.Header().Set("Content-Type", "text/event-stream")
	c.Writer.Header().Set("Cache-Control", "no-cache")
	c.Writer.Header().Set("Connection", "keep-alive")
	c.Writer.Header().Set("Transfer-Encoding", "chunked")
	c.Writer.Header().Set("X-Accel-Buffering", "no")
}
