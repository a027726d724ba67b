package relay

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shinmentakezo07/shinway-sub001/relay/providerid"
)

func TestGetAdaptorCoversAllProviders(t *testing.T) {
	for _, provider := range providerid.All() {
		a := GetAdaptor(provider)
		require.NotNil(t, a, "provider %s", provider)
		assert.NotEmpty(t, a.GetChannelName(), "provider %s", provider)
	}
}

func TestGetAdaptorChannelNames(t *testing.T) {
	assert.Equal(t, "openai", GetAdaptor(providerid.OpenAI).GetChannelName())
	assert.Equal(t, "anthropic", GetAdaptor(providerid.Anthropic).GetChannelName())
	assert.Equal(t, "aws-bedrock", GetAdaptor(providerid.AWSBedrock).GetChannelName())
	assert.Equal(t, "groq", GetAdaptor(providerid.Groq).GetChannelName())
}
