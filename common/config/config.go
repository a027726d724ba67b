// Package config carries process-wide configuration resolved from environment
// variables. Values are read once at startup; the relay path treats them as
// immutable.
package config

import (
	"os"
	"strings"
	"time"

	"github.com/shinmentakezo07/shinway-sub001/common/env"
)

// GatewayEnv distinguishes prod/dev deployments. It selects the log queue name
// and redis key prefixes, mirroring NODE_ENV in the hosted stack.
var GatewayEnv = env.String("GATEWAY_ENV", "development")

// IsProd reports whether the gateway runs with production semantics.
var IsProd = GatewayEnv == "production"

// Hosted enables the hosted-mode checks (credits, subscriptions, plans).
// Self-hosted deployments run every organization as if it had boundless credits.
var Hosted = env.Bool("HOSTED", false)

var (
	APIURL     = env.String("API_URL", "http://localhost:4002")
	UIURL      = env.String("UI_URL", "http://localhost:3002")
	OriginURLs = strings.Split(env.String("ORIGIN_URLS", ""), ",")

	Port = env.String("PORT", "4002")

	AuthSecret = os.Getenv("AUTH_SECRET")
)

// Redis connection settings. RedisHost empty disables redis-backed features
// (rate limits fail open, log queue producers drop).
var (
	RedisHost     = env.String("REDIS_HOST", "")
	RedisPort     = env.String("REDIS_PORT", "6379")
	RedisPassword = os.Getenv("REDIS_PASSWORD")
)

// SQLDSN selects the relational store; empty falls back to a local sqlite file.
var (
	SQLDSN        = env.String("SQL_DSN", "")
	SQLitePath    = env.String("SQLITE_PATH", "shinway.db")
	RunMigrations = env.Bool("RUN_MIGRATIONS", true)
)

// HTTP server lifecycle.
var (
	KeepAliveTimeout    = time.Duration(env.Int("KEEP_ALIVE_TIMEOUT_S", 60)) * time.Second
	ShutdownGracePeriod = time.Duration(env.Int64("SHUTDOWN_GRACE_PERIOD_MS", 120_000)) * time.Millisecond
)

// Upstream transport deadlines: connect/first-byte 30s, whole attempt 10min.
var (
	UpstreamConnectTimeout = time.Duration(env.Int("UPSTREAM_CONNECT_TIMEOUT_S", 30)) * time.Second
	UpstreamAttemptTimeout = time.Duration(env.Int("UPSTREAM_ATTEMPT_TIMEOUT_S", 600)) * time.Second
)

// Failover knobs.
var (
	// NoFallback disables provider failover globally; the per-request
	// `x-no-fallback` header has the same effect for a single request.
	NoFallback = env.Bool("NO_FALLBACK", false)

	// RetryAfterInPlaceMax is the largest upstream Retry-After that is waited
	// out on the same provider; longer hints advance to the next candidate.
	RetryAfterInPlaceMax = 2 * time.Second

	// CredentialDegradeCooldown is how long a gateway-managed credential stays
	// out of rotation after an upstream auth failure.
	CredentialDegradeCooldown = time.Duration(env.Int("CREDENTIAL_DEGRADE_COOLDOWN_S", 300)) * time.Second
)

// Billing.
var (
	StripeWebhookSecret = os.Getenv("STRIPE_WEBHOOK_SECRET")

	// FirstTimeCreditBonusMultiplier scales the first completed credit top-up;
	// the granted bonus is min(base*(multiplier-1), FirstTimeCreditBonusCapUSD).
	FirstTimeCreditBonusMultiplier = env.Float64("FIRST_TIME_CREDIT_BONUS_MULTIPLIER", 1)
	FirstTimeCreditBonusCapUSD     = 50.0

	// LedgerRetryTimes bounds optimistic retries of the credit decrement +
	// log insert transaction on conflict.
	LedgerRetryTimes = 3
)

// Plan-dependent caps.
var (
	MaxInlineImageSizeMBFree = env.Int("MAX_IMAGE_SIZE_MB_FREE", 5)
	MaxInlineImageSizeMBPro  = env.Int("MAX_IMAGE_SIZE_MB_PRO", 20)
)

// Relay defaults.
var (
	DefaultMaxTokens = env.Int("DEFAULT_MAX_TOKENS", 4096)

	// AnthropicMaxCachePoints caps cache_control/cachePoint markers across
	// system and message blocks for Anthropic-family requests.
	AnthropicMaxCachePoints = 4

	// DefaultMinCacheableTokens is the mapping default when a provider mapping
	// does not override minCacheableTokens.
	DefaultMinCacheableTokens = 1024
)

// Edge rate limits: requests per sliding minute, by plan. Zero disables the
// limiter for that plan.
var (
	RateLimitWindow = time.Minute
	RPMFree         = env.Int("RPM_FREE", 60)
	RPMPro          = env.Int("RPM_PRO", 600)
	RPMEnterprise   = env.Int("RPM_ENTERPRISE", 0)
	RPMPublic       = env.Int("RPM_PUBLIC", 120)
)

// Signup limiter (exponential backoff keyed by caller IP).
var (
	SignupRateLimitBase = time.Duration(env.Int64("SIGNUP_RATE_LIMIT_BASE_MS", 60_000)) * time.Millisecond
	SignupRateLimitMax  = time.Duration(env.Int64("SIGNUP_RATE_LIMIT_MAX_MS", 24*3600*1000)) * time.Millisecond
)

// Observability.
var (
	DebugEnabled            = env.Bool("DEBUG", false)
	EnablePrometheusMetrics = env.Bool("ENABLE_METRICS", true)

	OpenTelemetryEnabled     = env.Bool("OTEL_ENABLED", false)
	OpenTelemetryEndpoint    = env.String("OTEL_EXPORTER_OTLP_ENDPOINT", "")
	OpenTelemetryInsecure    = env.Bool("OTEL_EXPORTER_OTLP_INSECURE", true)
	OpenTelemetryServiceName = env.String("OTEL_SERVICE_NAME", "shinway")
)

// Gateway-managed provider credentials. BYOK credentials live per-organization
// in the credential store; these are the process-wide fallbacks.
var (
	OpenAIAPIKey       = os.Getenv("OPENAI_API_KEY")
	AnthropicAPIKey    = os.Getenv("ANTHROPIC_API_KEY")
	GoogleAIAPIKey     = os.Getenv("GOOGLE_AI_STUDIO_API_KEY")
	VertexCredsJSON    = os.Getenv("VERTEX_CREDENTIALS_JSON")
	VertexProjectID    = os.Getenv("VERTEX_PROJECT_ID")
	VertexRegion       = env.String("VERTEX_REGION", "us-central1")
	AWSAccessKeyID     = os.Getenv("AWS_ACCESS_KEY_ID")
	AWSSecretAccessKey = os.Getenv("AWS_SECRET_ACCESS_KEY")
	AWSRegion          = env.String("AWS_REGION", "us-east-1")
	CerebrasAPIKey     = os.Getenv("CEREBRAS_API_KEY")
	TogetherAPIKey     = os.Getenv("TOGETHER_API_KEY")
	DeepSeekAPIKey     = os.Getenv("DEEPSEEK_API_KEY")
	XAIAPIKey          = os.Getenv("XAI_API_KEY")
	GroqAPIKey         = os.Getenv("GROQ_API_KEY")
	ZAIAPIKey          = os.Getenv("ZAI_API_KEY")
	AlibabaAPIKey      = os.Getenv("ALIBABA_API_KEY")
	InferenceNetAPIKey = os.Getenv("INFERENCE_NET_API_KEY")
	PerplexityAPIKey   = os.Getenv("PERPLEXITY_API_KEY")
	NovitaAPIKey       = os.Getenv("NOVITA_API_KEY")
	NebiusAPIKey       = os.Getenv("NEBIUS_API_KEY")
	MoonshotAPIKey     = os.Getenv("MOONSHOT_API_KEY")
)

// LogQueueName returns the env-scoped redis list carrying usage envelopes.
func LogQueueName() string {
	if IsProd {
		return "log_queue_production"
	}
	return "log_queue_" + GatewayEnv
}
