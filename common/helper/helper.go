package helper

import (
	"fmt"
	"strings"
	"time"

	gutils "github.com/Laisky/go-utils/v6"
	"github.com/gin-gonic/gin"
)

const (
	// RequestIdKey stores the gin context key used to persist the current request identifier.
	RequestIdKey = "X-Shinway-Request-Id"
)

// GetTimestamp returns the current unix timestamp in seconds.
func GetTimestamp() int64 {
	return time.Now().Unix()
}

// GenRequestID produces a time-ordered unique request identifier.
func GenRequestID() string {
	return gutils.UUID7()
}

// MessageWithRequestId appends the request id to a user-facing message.
func MessageWithRequestId(message string, id string) string {
	if id == "" {
		return message
	}
	return fmt.Sprintf("%s (request id: %s)", message, id)
}

// MaskAPIKey returns a masked version of an API key for safe logging.
// It shows the first 6 characters and last 4 characters, with "..." in between.
// For short keys (less than 12 chars), it returns "***" to avoid exposing too much.
func MaskAPIKey(key string) string {
	if len(key) < 12 {
		return "***"
	}
	return key[:6] + "..." + key[len(key)-4:]
}

// GetClientIP resolves the caller IP with the proxy-header precedence used by
// the signup limiter: cf-connecting-ip, then the first x-forwarded-for hop,
// then x-real-ip, then x-client-ip, falling back to "unknown".
func GetClientIP(c *gin.Context) string {
	if ip := strings.TrimSpace(c.GetHeader("cf-connecting-ip")); ip != "" {
		return ip
	}
	if xff := c.GetHeader("x-forwarded-for"); xff != "" {
		if first := strings.TrimSpace(strings.SplitN(xff, ",", 2)[0]); first != "" {
			return first
		}
	}
	if ip := strings.TrimSpace(c.GetHeader("x-real-ip")); ip != "" {
		return ip
	}
	if ip := strings.TrimSpace(c.GetHeader("x-client-ip")); ip != "" {
		return ip
	}
	return "unknown"
}

// RetryAfterMessage renders the user-facing "try again in Xh Ym" hint for 429s.
func RetryAfterMessage(wait time.Duration) string {
	if wait <= 0 {
		return "try again now"
	}
	wait = wait.Round(time.Second)
	hours := int(wait.Hours())
	minutes := int(wait.Minutes()) % 60
	switch {
	case hours > 0 && minutes > 0:
		return fmt.Sprintf("try again in %dh %dm", hours, minutes)
	case hours > 0:
		return fmt.Sprintf("try again in %dh", hours)
	case minutes > 0:
		return fmt.Sprintf("try again in %dm", minutes)
	default:
		return fmt.Sprintf("try again in %ds", int(wait.Seconds()))
	}
}
