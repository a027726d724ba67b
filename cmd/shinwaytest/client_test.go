package main

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	glog "github.com/Laisky/go-utils/v6/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLogger(t *testing.T) glog.Logger {
	logger, err := glog.NewConsoleWithName("shinway-test", glog.LevelError)
	require.NoError(t, err)
	return logger
}

func TestCollectStreamReply(t *testing.T) {
	stream := strings.Join([]string{
		`data: {"choices":[{"delta":{"content":"po"}}]}`,
		"",
		`data: {"choices":[{"delta":{"content":"ng"},"finish_reason":"stop"}]}`,
		"",
		"data: [DONE]",
		"",
	}, "\n")

	reply, err := collectStreamReply(strings.NewReader(stream))
	require.NoError(t, err)
	assert.Equal(t, "pong", reply)
}

func TestCollectStreamReplyInBandError(t *testing.T) {
	stream := strings.Join([]string{
		`data: {"choices":[{"delta":{"content":""},"finish_reason":"error"}]}`,
		"",
		"data: [DONE]",
		"",
	}, "\n")

	_, err := collectStreamReply(strings.NewReader(stream))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "in-band error")
}

func TestCollectStreamReplyEmpty(t *testing.T) {
	_, err := collectStreamReply(strings.NewReader("data: [DONE]\n\n"))
	require.Error(t, err)
}

func TestIsStreamTerminator(t *testing.T) {
	assert.True(t, isStreamTerminator("[DONE]"))
	assert.False(t, isStreamTerminator(`{"choices":[]}`))
}

func TestChatCommandNonStreaming(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/v1/chat/completions", r.URL.Path)
		require.Equal(t, "Bearer sk-test", r.Header.Get("Authorization"))

		var body map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "gpt-4o-mini", body["model"])

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"choices":[{"message":{"role":"assistant","content":"pong"}}]}`))
	}))
	defer server.Close()

	env := clientEnv{BaseURL: server.URL, Token: "sk-test"}
	err := chatCommand(context.Background(), testLogger(t), env,
		[]string{"-model", "gpt-4o-mini", "-prompt", "ping"})
	require.NoError(t, err)
}

func TestChatCommandSurfacesGatewayError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte(`{"error":{"message":"no eligible provider","type":"upstream_error"}}`))
	}))
	defer server.Close()

	env := clientEnv{BaseURL: server.URL, Token: "sk-test"}
	err := chatCommand(context.Background(), testLogger(t), env, []string{"-model", "auto"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "503")
	assert.Contains(t, err.Error(), "no eligible provider")
}

func TestModelsCommand(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/v1/models", r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"object":"list","data":[{"id":"auto","owned_by":"shinway"},{"id":"gpt-4o-mini","owned_by":"openai"}]}`))
	}))
	defer server.Close()

	env := clientEnv{BaseURL: server.URL}
	require.NoError(t, modelsCommand(context.Background(), testLogger(t), env))
}

func TestModelsCommandEmptyCatalog(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"object":"list","data":[]}`))
	}))
	defer server.Close()

	env := clientEnv{BaseURL: server.URL}
	err := modelsCommand(context.Background(), testLogger(t), env)
	require.Error(t, err)
}

func TestImageCommandRequiresModel(t *testing.T) {
	err := imageCommand(context.Background(), testLogger(t), clientEnv{BaseURL: "http://unused"}, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "-model")
}
