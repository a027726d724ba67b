package mcp

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// connect wires an in-memory MCP client session to the server under test.
func connect(t *testing.T, s *Server) *mcp.ClientSession {
	t.Helper()
	ctx := context.Background()
	serverTransport, clientTransport := mcp.NewInMemoryTransports()

	serverSession, err := s.server.Connect(ctx, serverTransport, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = serverSession.Close() })

	client := mcp.NewClient(&mcp.Implementation{Name: "test-client", Version: "0.0.1"}, nil)
	clientSession, err := client.Connect(ctx, clientTransport, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = clientSession.Close() })
	return clientSession
}

func resultText(t *testing.T, res *mcp.CallToolResult) string {
	t.Helper()
	require.NotEmpty(t, res.Content)
	text, ok := res.Content[0].(*mcp.TextContent)
	require.True(t, ok)
	return text.Text
}

func TestToolsRegistered(t *testing.T) {
	session := connect(t, NewServer("http://localhost:0", ""))

	tools, err := session.ListTools(context.Background(), nil)
	require.NoError(t, err)

	names := make(map[string]bool, len(tools.Tools))
	for _, tool := range tools.Tools {
		names[tool.Name] = true
	}
	for _, want := range []string{"chat", "generate-image", "list-models", "list-image-models"} {
		assert.True(t, names[want], "missing tool %s", want)
	}
}

func TestChatToolRelaysThroughEdge(t *testing.T) {
	var gotAuth string
	var gotBody map[string]any
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/v1/chat/completions", r.URL.Path)
		gotAuth = r.Header.Get("Authorization")
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))
		_ = json.NewEncoder(w).Encode(map[string]any{
			"choices": []map[string]any{
				{"message": map[string]any{"role": "assistant", "content": "hello back"}},
			},
		})
	}))
	defer ts.Close()

	session := connect(t, NewServer(ts.URL, "sk-test"))
	res, err := session.CallTool(context.Background(), &mcp.CallToolParams{
		Name: "chat",
		Arguments: map[string]any{
			"model":  "gpt-4o-mini",
			"prompt": "hi",
			"system": "be brief",
		},
	})
	require.NoError(t, err)
	assert.False(t, res.IsError)
	assert.Equal(t, "hello back", resultText(t, res))

	assert.Equal(t, "Bearer sk-test", gotAuth)
	assert.Equal(t, "gpt-4o-mini", gotBody["model"])
	messages := gotBody["messages"].([]any)
	require.Len(t, messages, 2)
	assert.Equal(t, "system", messages[0].(map[string]any)["role"])
}

func TestChatToolSurfacesEdgeError(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte(`{"error":{"message":"no eligible provider"}}`))
	}))
	defer ts.Close()

	session := connect(t, NewServer(ts.URL, "sk-test"))
	res, err := session.CallTool(context.Background(), &mcp.CallToolParams{
		Name:      "chat",
		Arguments: map[string]any{"model": "gpt-4o-mini", "prompt": "hi"},
	})
	require.NoError(t, err)
	assert.True(t, res.IsError)
	assert.Contains(t, resultText(t, res), "503")
}

func TestGenerateImageTool(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/v1/images/generations", r.URL.Path)
		_ = json.NewEncoder(w).Encode(map[string]any{
			"data": []map[string]any{{"url": "https://img.example/1.png"}},
		})
	}))
	defer ts.Close()

	session := connect(t, NewServer(ts.URL, "sk-test"))
	res, err := session.CallTool(context.Background(), &mcp.CallToolParams{
		Name:      "generate-image",
		Arguments: map[string]any{"model": "qwen-image", "prompt": "a lighthouse"},
	})
	require.NoError(t, err)
	assert.False(t, res.IsError)
	assert.Equal(t, "https://img.example/1.png", resultText(t, res))
}

func TestListModelsTools(t *testing.T) {
	session := connect(t, NewServer("http://localhost:0", ""))

	res, err := session.CallTool(context.Background(), &mcp.CallToolParams{Name: "list-models"})
	require.NoError(t, err)
	text := resultText(t, res)
	assert.Contains(t, text, "gpt-4o-mini")
	assert.NotContains(t, text, "qwen-image")

	res, err = session.CallTool(context.Background(), &mcp.CallToolParams{Name: "list-image-models"})
	require.NoError(t, err)
	text = resultText(t, res)
	assert.Contains(t, text, "qwen-image")
	assert.NotContains(t, text, `"id": "gpt-4o-mini"`)
}

func TestBearerToken(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/mcp", nil)
	req.Header.Set("Authorization", "Bearer sk-abc")
	assert.Equal(t, "sk-abc", bearerToken(req))

	req = httptest.NewRequest(http.MethodPost, "/mcp", nil)
	req.Header.Set("x-api-key", "sk-xyz")
	assert.Equal(t, "sk-xyz", bearerToken(req))
}
