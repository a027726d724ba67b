package anthropic

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// An Anthropic SSE error event must parse into StreamResponse with the error
// fields and the upstream request id intact, so the failover loop can decide
// whether the failure is transient.
func TestParseStreamErrorEvent(t *testing.T) {
	payload := `{"type":"error","error":{"details":null,"type":"overloaded_error","message":"Overloaded"},"request_id":"req_abc123"}`

	var sr StreamResponse
	require.NoError(t, json.Unmarshal([]byte(payload), &sr))

	assert.Equal(t, "error", sr.Type)
	assert.Equal(t, "overloaded_error", string(sr.Error.Type))
	assert.Equal(t, "Overloaded", sr.Error.Message)
	assert.Equal(t, "req_abc123", sr.RequestId)
}
