// Package middleware holds the gin middleware chain for the public edge:
// request ids, authentication, rate limiting, and the provider distributor.
package middleware

import (
	gmw "github.com/Laisky/gin-middlewares/v7"
	gutils "github.com/Laisky/go-utils/v6"
	"github.com/Laisky/zap"
	"github.com/gin-gonic/gin"

	"github.com/shinmentakezo07/shinway-sub001/common/ctxkey"
	relaymodel "github.com/shinmentakezo07/shinway-sub001/relay/model"
)

// RequestId assigns every request a UUID7 id and echoes it in the response
// header so callers can correlate error reports.
func RequestId() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(ctxkey.RequestId)
		if id == "" {
			id = gutils.UUID7()
		}
		c.Set(ctxkey.RequestId, id)
		c.Header(ctxkey.RequestId, id)
		c.Next()
	}
}

// AbortWithError terminates the request with an OpenAI-compatible error
// payload and logs the failure with its request id.
func AbortWithError(c *gin.Context, e *relaymodel.ErrorWithStatusCode) {
	gmw.GetLogger(c).Warn("request aborted",
		zap.Int("status", e.StatusCode),
		zap.String("type", string(e.Type)),
		zap.String("message", e.Message),
	)
	c.JSON(e.StatusCode, gin.H{"error": e.Error})
	c.Abort()
}
