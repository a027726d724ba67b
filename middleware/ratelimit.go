package middleware

import (
	"net/http"

	"github.com/Laisky/errors/v2"
	gmw "github.com/Laisky/gin-middlewares/v7"
	"github.com/gin-gonic/gin"

	"github.com/shinmentakezo07/shinway-sub001/common/config"
	"github.com/shinmentakezo07/shinway-sub001/common/helper"
	"github.com/shinmentakezo07/shinway-sub001/common/ratelimit"
	"github.com/shinmentakezo07/shinway-sub001/model"
	relaymodel "github.com/shinmentakezo07/shinway-sub001/relay/model"
)

// planRPM maps the organization's plan to its request budget per sliding
// minute. Zero means unlimited.
func planRPM(plan string) int {
	switch plan {
	case model.PlanPro:
		return config.RPMPro
	case model.PlanEnterprise:
		return config.RPMEnterprise
	default:
		return config.RPMFree
	}
}

// RateLimit throttles relay requests per organization with the sliding-window
// limiter. Runs after TokenAuth; unauthenticated routes use PublicRateLimit.
func RateLimit() gin.HandlerFunc {
	return func(c *gin.Context) {
		org := OrganizationFromContext(c)
		if org == nil {
			c.Next()
			return
		}
		maxReq := planRPM(org.Plan)
		if maxReq <= 0 {
			c.Next()
			return
		}

		res := ratelimit.CheckRateLimit(gmw.Ctx(c), "rl:org:"+org.ID, config.RateLimitWindow, maxReq)
		if !res.Allowed {
			c.Header("Retry-After", res.RetryAfterSeconds())
			AbortWithError(c, relaymodel.NewError(http.StatusTooManyRequests,
				relaymodel.ErrorTypeTooManyRequests,
				errors.Errorf("rate limit of %d requests per minute exceeded, %s",
					maxReq, helper.RetryAfterMessage(res.RetryAfter)),
				"rate_limit_exceeded"))
			return
		}
		c.Next()
	}
}

// PublicRateLimit throttles unauthenticated surfaces by caller IP.
func PublicRateLimit() gin.HandlerFunc {
	return func(c *gin.Context) {
		if config.RPMPublic <= 0 {
			c.Next()
			return
		}
		ip := helper.GetClientIP(c)
		res := ratelimit.CheckRateLimit(gmw.Ctx(c), "rl:ip:"+ip, config.RateLimitWindow, config.RPMPublic)
		if !res.Allowed {
			c.Header("Retry-After", res.RetryAfterSeconds())
			AbortWithError(c, relaymodel.NewError(http.StatusTooManyRequests,
				relaymodel.ErrorTypeTooManyRequests,
				errors.Errorf("rate limit exceeded, %s", helper.RetryAfterMessage(res.RetryAfter)),
				"rate_limit_exceeded"))
			return
		}
		c.Next()
	}
}
