package image

import (
	"encoding/base64"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMaxInlineImageBytesByPlan(t *testing.T) {
	assert.Equal(t, int64(5*1024*1024), MaxInlineImageBytes("free"))
	assert.Equal(t, int64(20*1024*1024), MaxInlineImageBytes("pro"))
	assert.Equal(t, int64(20*1024*1024), MaxInlineImageBytes("enterprise"))
	// Unknown plans get the conservative cap.
	assert.Equal(t, int64(5*1024*1024), MaxInlineImageBytes(""))
}

func TestValidateInlineBase64(t *testing.T) {
	small := base64.StdEncoding.EncodeToString(make([]byte, 1024))
	assert.NoError(t, ValidateInlineBase64(small, "free"))

	big := strings.Repeat("A", 8*1024*1024) // decodes to ~6MB
	require.Error(t, ValidateInlineBase64(big, "free"))
	assert.NoError(t, ValidateInlineBase64(big, "pro"))
}

func TestValidateDataURL(t *testing.T) {
	assert.NoError(t, ValidateDataURL("https://example.com/cat.png", "free"))
	assert.NoError(t, ValidateDataURL("data:image/png;base64,aGVsbG8=", "free"))
	assert.Error(t, ValidateDataURL("data:image/png,nope", "free"))
}
