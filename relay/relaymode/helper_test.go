package relaymode

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestGetByPath(t *testing.T) {
	assert.Equal(t, ChatCompletions, GetByPath("/v1/chat/completions"))
	assert.Equal(t, ImagesGenerations, GetByPath("/v1/images/generations"))
	assert.Equal(t, Models, GetByPath("/v1/models"))
	assert.Equal(t, Unknown, GetByPath("/v1/embeddings"))
}

func TestString(t *testing.T) {
	assert.Equal(t, "chat", String(ChatCompletions))
	assert.Equal(t, "image_generation", String(ImagesGenerations))
	assert.Equal(t, "unknown", String(Unknown))
}
