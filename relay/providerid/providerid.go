// Package providerid enumerates the upstream providers compiled into the
// gateway. Adding a provider means adding a definition here plus a translator
// strategy under relay/adaptor.
package providerid

// ID names one upstream provider. Model ids may be pinned to a provider with
// the "<id>/" prefix.
type ID string

const (
	OpenAI       ID = "openai"
	Anthropic    ID = "anthropic"
	GoogleAI     ID = "google-ai-studio"
	Vertex       ID = "vertex"
	AWSBedrock   ID = "aws-bedrock"
	Cerebras     ID = "cerebras"
	Together     ID = "together"
	DeepSeek     ID = "deepseek"
	XAI          ID = "xai"
	Groq         ID = "groq"
	ZAI          ID = "zai"
	Alibaba      ID = "alibaba"
	InferenceNet ID = "inference-net"
	Perplexity   ID = "perplexity"
	Novita       ID = "novita"
	Nebius       ID = "nebius"
	Moonshot     ID = "moonshot"

	// Custom marks user-configured OpenAI-compatible endpoints.
	Custom ID = "custom"
)

// CredentialKind selects how an attempt authenticates against the provider.
type CredentialKind int

const (
	CredentialBearer CredentialKind = iota
	CredentialAPIKeyHeader
	CredentialAWSSigV4
	CredentialGoogleServiceAccount
)

// Definition is the static description of one provider.
type Definition struct {
	ID         ID
	Name       string
	BaseURL    string
	Color      string
	Credential CredentialKind

	// StripPrefix removes the "<id>/" prefix from the model name before it is
	// sent upstream (Together and Inference.net reuse the prefixed id).
	StripPrefix bool
}

var definitions = map[ID]Definition{
	OpenAI:       {ID: OpenAI, Name: "OpenAI", BaseURL: "https://api.openai.com", Color: "#10a37f", Credential: CredentialBearer},
	Anthropic:    {ID: Anthropic, Name: "Anthropic", BaseURL: "https://api.anthropic.com", Color: "#d4a27f", Credential: CredentialAPIKeyHeader},
	GoogleAI:     {ID: GoogleAI, Name: "Google AI Studio", BaseURL: "https://generativelanguage.googleapis.com", Color: "#4285f4", Credential: CredentialAPIKeyHeader},
	Vertex:       {ID: Vertex, Name: "Google Vertex", BaseURL: "https://{region}-aiplatform.googleapis.com", Color: "#4285f4", Credential: CredentialGoogleServiceAccount},
	AWSBedrock:   {ID: AWSBedrock, Name: "AWS Bedrock", BaseURL: "https://bedrock-runtime.{region}.amazonaws.com", Color: "#ff9900", Credential: CredentialAWSSigV4},
	Cerebras:     {ID: Cerebras, Name: "Cerebras", BaseURL: "https://api.cerebras.ai", Color: "#f05a28", Credential: CredentialBearer},
	Together:     {ID: Together, Name: "Together", BaseURL: "https://api.together.xyz", Color: "#0f6fff", Credential: CredentialBearer, StripPrefix: true},
	DeepSeek:     {ID: DeepSeek, Name: "DeepSeek", BaseURL: "https://api.deepseek.com", Color: "#4d6bfe", Credential: CredentialBearer},
	XAI:          {ID: XAI, Name: "xAI", BaseURL: "https://api.x.ai", Color: "#000000", Credential: CredentialBearer},
	Groq:         {ID: Groq, Name: "Groq", BaseURL: "https://api.groq.com/openai", Color: "#f55036", Credential: CredentialBearer},
	ZAI:          {ID: ZAI, Name: "ZAI", BaseURL: "https://api.z.ai/api/paas", Color: "#3859ff", Credential: CredentialBearer},
	Alibaba:      {ID: Alibaba, Name: "Alibaba", BaseURL: "https://dashscope-intl.aliyuncs.com", Color: "#ff6a00", Credential: CredentialBearer},
	InferenceNet: {ID: InferenceNet, Name: "Inference.net", BaseURL: "https://api.inference.net", Color: "#111827", Credential: CredentialBearer, StripPrefix: true},
	Perplexity:   {ID: Perplexity, Name: "Perplexity", BaseURL: "https://api.perplexity.ai", Color: "#20808d", Credential: CredentialBearer},
	Novita:       {ID: Novita, Name: "Novita", BaseURL: "https://api.novita.ai/v3/openai", Color: "#6d28d9", Credential: CredentialBearer},
	Nebius:       {ID: Nebius, Name: "Nebius", BaseURL: "https://api.studio.nebius.ai", Color: "#00b3e3", Credential: CredentialBearer},
	Moonshot:     {ID: Moonshot, Name: "Moonshot", BaseURL: "https://api.moonshot.ai", Color: "#16161a", Credential: CredentialBearer},
	Custom:       {ID: Custom, Name: "OpenAI-compatible", BaseURL: "", Color: "#6b7280", Credential: CredentialBearer},
}

// Get returns the provider definition; ok is false for unknown ids.
func Get(id ID) (Definition, bool) {
	def, ok := definitions[id]
	return def, ok
}

// Known reports whether id names a compiled-in provider.
func Known(id ID) bool {
	_, ok := definitions[id]
	return ok
}

// All returns every compiled-in provider id in stable order.
func All() []ID {
	return []ID{
		OpenAI, Anthropic, GoogleAI, Vertex, AWSBedrock, Cerebras, Together,
		DeepSeek, XAI, Groq, ZAI, Alibaba, InferenceNet, Perplexity, Novita,
		Nebius, Moonshot, Custom,
	}
}
