// Package relay wires provider ids to their translation adaptors.
package relay

import (
	"github.com/shinmentakezo07/shinway-sub001/relay/adaptor"
	"github.com/shinmentakezo07/shinway-sub001/relay/adaptor/ali"
	"github.com/shinmentakezo07/shinway-sub001/relay/adaptor/anthropic"
	"github.com/shinmentakezo07/shinway-sub001/relay/adaptor/aws"
	"github.com/shinmentakezo07/shinway-sub001/relay/adaptor/cerebras"
	"github.com/shinmentakezo07/shinway-sub001/relay/adaptor/gemini"
	"github.com/shinmentakezo07/shinway-sub001/relay/adaptor/openai"
	"github.com/shinmentakezo07/shinway-sub001/relay/adaptor/openai_compatible"
	"github.com/shinmentakezo07/shinway-sub001/relay/adaptor/vertexai"
	"github.com/shinmentakezo07/shinway-sub001/relay/adaptor/zai"
	"github.com/shinmentakezo07/shinway-sub001/relay/providerid"
)

// GetAdaptor returns a fresh adaptor for the provider. Adaptors are cheap
// per-attempt values; stateful ones (Bedrock) initialize in Init.
func GetAdaptor(provider providerid.ID) adaptor.Adaptor {
	switch provider {
	case providerid.OpenAI:
		return openai.NewAdaptor()
	case providerid.Anthropic:
		return &anthropic.Adaptor{}
	case providerid.GoogleAI:
		return &gemini.Adaptor{}
	case providerid.Vertex:
		return &vertexai.Adaptor{}
	case providerid.AWSBedrock:
		return &aws.Adaptor{}
	case providerid.ZAI:
		return zai.NewAdaptor()
	case providerid.Alibaba:
		return ali.NewAdaptor()
	case providerid.Cerebras:
		return cerebras.NewAdaptor()
	default:
		// Everything else speaks the stock OpenAI wire format.
		return &openai_compatible.Adaptor{ChannelName: string(provider)}
	}
}
