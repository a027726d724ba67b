package main

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/Laisky/errors/v2"
	glog "github.com/Laisky/go-utils/v6/log"
	"github.com/Laisky/zap"
)

const (
	defaultBaseURL = "http://localhost:3000"
	requestTimeout = 5 * time.Minute
)

// clientEnv carries the edge endpoint and credential the smoke commands use.
type clientEnv struct {
	BaseURL string
	Token   string
}

func clientEnvFromOS() clientEnv {
	base := strings.TrimSpace(os.Getenv("SHINWAY_BASE_URL"))
	if base == "" {
		base = defaultBaseURL
	}
	return clientEnv{
		BaseURL: strings.TrimSuffix(base, "/"),
		Token:   strings.TrimSpace(os.Getenv("SHINWAY_API_KEY")),
	}
}

func newHTTPClient() *http.Client {
	return &http.Client{Timeout: requestTimeout}
}

// chatCommand sends one chat completion and logs the reply. With -stream the
// reply is assembled from SSE deltas, which also verifies the edge keeps the
// stream unbuffered end to end.
func chatCommand(ctx context.Context, logger glog.Logger, env clientEnv, args []string) error {
	fs := flag.NewFlagSet("chat", flag.ContinueOnError)
	model := fs.String("model", "auto", "model id to request")
	prompt := fs.String("prompt", "Reply with the single word: pong", "user prompt")
	stream := fs.Bool("stream", false, "use a streaming completion")
	if err := fs.Parse(args); err != nil {
		return errors.Wrap(err, "parse chat flags")
	}

	body := map[string]any{
		"model": *model,
		"messages": []map[string]any{
			{"role": "user", "content": *prompt},
		},
		"stream": *stream,
	}

	start := time.Now()
	resp, err := postJSON(ctx, newHTTPClient(), env, "/v1/chat/completions", body)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()

	var reply string
	if *stream {
		reply, err = collectStreamReply(resp.Body)
	} else {
		reply, err = parseChatReply(resp.Body)
	}
	if err != nil {
		return err
	}

	logger.Info("chat completed",
		zap.String("model", *model),
		zap.Bool("stream", *stream),
		zap.Duration("elapsed", time.Since(start)),
		zap.String("reply", reply))
	return nil
}

// modelsCommand lists the catalog and logs one line per model.
func modelsCommand(ctx context.Context, logger glog.Logger, env clientEnv) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, env.BaseURL+"/v1/models", nil)
	if err != nil {
		return errors.Wrap(err, "build models request")
	}
	if env.Token != "" {
		req.Header.Set("Authorization", "Bearer "+env.Token)
	}

	resp, err := newHTTPClient().Do(req)
	if err != nil {
		return errors.Wrap(err, "list models")
	}
	defer func() { _ = resp.Body.Close() }()
	if err := requireSuccess(resp); err != nil {
		return err
	}

	var payload struct {
		Data []struct {
			ID      string `json:"id"`
			OwnedBy string `json:"owned_by"`
		} `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return errors.Wrap(err, "decode models response")
	}
	if len(payload.Data) == 0 {
		return errors.New("catalog is empty")
	}

	for _, m := range payload.Data {
		logger.Info("model", zap.String("id", m.ID), zap.String("owned_by", m.OwnedBy))
	}
	logger.Info("catalog listed", zap.Int("count", len(payload.Data)))
	return nil
}

// imageCommand generates one image and logs where the result landed.
func imageCommand(ctx context.Context, logger glog.Logger, env clientEnv, args []string) error {
	fs := flag.NewFlagSet("image", flag.ContinueOnError)
	model := fs.String("model", "", "image model id to request")
	prompt := fs.String("prompt", "a lighthouse at dusk, watercolor", "image prompt")
	size := fs.String("size", "1024x1024", "image size")
	if err := fs.Parse(args); err != nil {
		return errors.Wrap(err, "parse image flags")
	}
	if *model == "" {
		return errors.New("image requires -model")
	}

	body := map[string]any{
		"model":  *model,
		"prompt": *prompt,
		"size":   *size,
		"n":      1,
	}

	start := time.Now()
	resp, err := postJSON(ctx, newHTTPClient(), env, "/v1/images/generations", body)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()

	var payload struct {
		Data []struct {
			URL     string `json:"url"`
			B64JSON string `json:"b64_json"`
		} `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return errors.Wrap(err, "decode image response")
	}
	if len(payload.Data) == 0 {
		return errors.New("image response carried no data")
	}

	location := payload.Data[0].URL
	if location == "" {
		location = fmt.Sprintf("(inline base64, %d bytes)", len(payload.Data[0].B64JSON))
	}
	logger.Info("image generated",
		zap.String("model", *model),
		zap.Duration("elapsed", time.Since(start)),
		zap.String("result", location))
	return nil
}

// postJSON sends an authenticated POST and fails on non-2xx statuses with the
// response body included, so gateway error envelopes surface verbatim.
func postJSON(ctx context.Context, client *http.Client, env clientEnv, path string, body any) (*http.Response, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, errors.Wrap(err, "marshal request body")
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, env.BaseURL+path, bytes.NewReader(payload))
	if err != nil {
		return nil, errors.Wrapf(err, "build request for %s", path)
	}
	req.Header.Set("Content-Type", "application/json")
	if env.Token != "" {
		req.Header.Set("Authorization", "Bearer "+env.Token)
	}

	resp, err := client.Do(req)
	if err != nil {
		return nil, errors.Wrapf(err, "request %s", path)
	}
	if err := requireSuccess(resp); err != nil {
		return nil, err
	}
	return resp, nil
}

func requireSuccess(resp *http.Response) error {
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}
	defer func() { _ = resp.Body.Close() }()
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	return errors.Errorf("gateway returned %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
}

func parseChatReply(body io.Reader) (string, error) {
	var payload struct {
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
		} `json:"choices"`
	}
	if err := json.NewDecoder(body).Decode(&payload); err != nil {
		return "", errors.Wrap(err, "decode chat response")
	}
	if len(payload.Choices) == 0 {
		return "", errors.New("chat response carried no choices")
	}
	return payload.Choices[0].Message.Content, nil
}

// collectStreamReply assembles the assistant text from SSE delta chunks. A
// terminal chunk with finish_reason "error" means the failure happened after
// first byte and the stream is the only place it could be reported.
func collectStreamReply(body io.Reader) (string, error) {
	var reply strings.Builder
	scanner := bufio.NewScanner(body)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if !strings.HasPrefix(line, "data:") {
			continue
		}
		data := strings.TrimSpace(strings.TrimPrefix(line, "data:"))
		if isStreamTerminator(data) {
			break
		}

		var chunk struct {
			Choices []struct {
				Delta struct {
					Content string `json:"content"`
				} `json:"delta"`
				FinishReason *string `json:"finish_reason"`
			} `json:"choices"`
		}
		if err := json.Unmarshal([]byte(data), &chunk); err != nil {
			continue
		}
		for _, choice := range chunk.Choices {
			reply.WriteString(choice.Delta.Content)
			if choice.FinishReason != nil && *choice.FinishReason == "error" {
				return "", errors.Errorf("stream ended with in-band error: %s", data)
			}
		}
	}
	if err := scanner.Err(); err != nil {
		return "", errors.Wrap(err, "read stream")
	}
	if reply.Len() == 0 {
		return "", errors.New("stream produced no content")
	}
	return reply.String(), nil
}

func isStreamTerminator(data string) bool {
	return data == "[DONE]"
}
