package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/gin-gonic/gin"
	goredis "github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shinmentakezo07/shinway-sub001/common/config"
	"github.com/shinmentakezo07/shinway-sub001/common/ctxkey"
	"github.com/shinmentakezo07/shinway-sub001/common/redis"
	"github.com/shinmentakezo07/shinway-sub001/model"
)

func setupTestRedis(t *testing.T) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	redis.SetForTesting(client)
	t.Cleanup(func() { redis.SetForTesting(nil) })
}

func runRateLimit(t *testing.T, org *model.Organization) *httptest.ResponseRecorder {
	t.Helper()
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest(http.MethodPost, "/v1/chat/completions", nil)
	if org != nil {
		c.Set(ctxkey.Organization, org)
	}
	RateLimit()(c)
	return w
}

func TestRateLimitPerPlan(t *testing.T) {
	setupTestRedis(t)
	prev := config.RPMFree
	config.RPMFree = 2
	t.Cleanup(func() { config.RPMFree = prev })

	org := &model.Organization{ID: "org-rl", Plan: model.PlanFree}
	assert.Equal(t, http.StatusOK, runRateLimit(t, org).Code)
	assert.Equal(t, http.StatusOK, runRateLimit(t, org).Code)

	w := runRateLimit(t, org)
	require.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.NotEmpty(t, w.Header().Get("Retry-After"))
	assert.Contains(t, w.Body.String(), "rate_limit_exceeded")

	// Another organization has its own window.
	other := &model.Organization{ID: "org-other", Plan: model.PlanFree}
	assert.Equal(t, http.StatusOK, runRateLimit(t, other).Code)
}

func TestRateLimitUnlimitedPlan(t *testing.T) {
	setupTestRedis(t)
	prev := config.RPMEnterprise
	config.RPMEnterprise = 0
	t.Cleanup(func() { config.RPMEnterprise = prev })

	org := &model.Organization{ID: "org-ent", Plan: model.PlanEnterprise}
	for range 5 {
		assert.Equal(t, http.StatusOK, runRateLimit(t, org).Code)
	}
}

func TestRateLimitFailsOpenWithoutRedis(t *testing.T) {
	redis.SetForTesting(nil)
	prev := config.RPMFree
	config.RPMFree = 1
	t.Cleanup(func() { config.RPMFree = prev })

	org := &model.Organization{ID: "org-noredis", Plan: model.PlanFree}
	for range 3 {
		assert.Equal(t, http.StatusOK, runRateLimit(t, org).Code)
	}
}

func TestPublicRateLimitByIP(t *testing.T) {
	setupTestRedis(t)
	prev := config.RPMPublic
	config.RPMPublic = 1
	t.Cleanup(func() { config.RPMPublic = prev })

	run := func(ip string) *httptest.ResponseRecorder {
		w := httptest.NewRecorder()
		c, _ := gin.CreateTestContext(w)
		c.Request = httptest.NewRequest(http.MethodGet, "/v1/models", nil)
		c.Request.Header.Set("cf-connecting-ip", ip)
		PublicRateLimit()(c)
		return w
	}

	assert.Equal(t, http.StatusOK, run("1.2.3.4").Code)
	assert.Equal(t, http.StatusTooManyRequests, run("1.2.3.4").Code)
	assert.Equal(t, http.StatusOK, run("5.6.7.8").Code)
}
