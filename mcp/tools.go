package mcp

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/Laisky/errors/v2"
	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/shinmentakezo07/shinway-sub001/relay/registry"
)

// addTools registers the relay and catalog tools.
func (s *Server) addTools() {
	type ChatArgs struct {
		Model       string   `json:"model" jsonschema_description:"Model id or alias, or 'auto'" jsonschema_required:"true"`
		Prompt      string   `json:"prompt" jsonschema_description:"User message to send" jsonschema_required:"true"`
		System      string   `json:"system,omitempty" jsonschema_description:"Optional system prompt"`
		Temperature *float64 `json:"temperature,omitempty" jsonschema_description:"Sampling temperature between 0 and 2"`
		MaxTokens   *int     `json:"max_tokens,omitempty" jsonschema_description:"Maximum number of tokens to generate"`
	}

	mcp.AddTool(s.server, &mcp.Tool{
		Name:        "chat",
		Description: "Send a chat message through the gateway and return the model's reply.",
	}, func(ctx context.Context, req *mcp.CallToolRequest, args ChatArgs) (*mcp.CallToolResult, any, error) {
		var messages []map[string]any
		if args.System != "" {
			messages = append(messages, map[string]any{"role": "system", "content": args.System})
		}
		messages = append(messages, map[string]any{"role": "user", "content": args.Prompt})

		payload := map[string]any{
			"model":    args.Model,
			"messages": messages,
		}
		if args.Temperature != nil {
			payload["temperature"] = *args.Temperature
		}
		if args.MaxTokens != nil {
			payload["max_tokens"] = *args.MaxTokens
		}

		body, err := s.relayPost(ctx, "/v1/chat/completions", payload)
		if err != nil {
			return toolError(err), nil, nil
		}
		return textResult(chatReplyText(body)), nil, nil
	})

	type ImageArgs struct {
		Model  string `json:"model" jsonschema_description:"Image model id" jsonschema_required:"true"`
		Prompt string `json:"prompt" jsonschema_description:"Text description of the desired image" jsonschema_required:"true"`
		N      *int   `json:"n,omitempty" jsonschema_description:"Number of images to generate"`
		Size   string `json:"size,omitempty" jsonschema_description:"Size of generated images, e.g. 1024x1024"`
	}

	mcp.AddTool(s.server, &mcp.Tool{
		Name:        "generate-image",
		Description: "Generate images through the gateway and return their URLs or base64 payloads.",
	}, func(ctx context.Context, req *mcp.CallToolRequest, args ImageArgs) (*mcp.CallToolResult, any, error) {
		payload := map[string]any{
			"model":  args.Model,
			"prompt": args.Prompt,
		}
		if args.N != nil {
			payload["n"] = *args.N
		}
		if args.Size != "" {
			payload["size"] = args.Size
		}

		body, err := s.relayPost(ctx, "/v1/images/generations", payload)
		if err != nil {
			return toolError(err), nil, nil
		}
		return textResult(imageResultText(body)), nil, nil
	})

	mcp.AddTool(s.server, &mcp.Tool{
		Name:        "list-models",
		Description: "List the text models in the catalog with their providers and prices.",
	}, func(ctx context.Context, req *mcp.CallToolRequest, args struct{}) (*mcp.CallToolResult, any, error) {
		return textResult(catalogText(false)), nil, nil
	})

	mcp.AddTool(s.server, &mcp.Tool{
		Name:        "list-image-models",
		Description: "List the image-generation models in the catalog with their providers and prices.",
	}, func(ctx context.Context, req *mcp.CallToolRequest, args struct{}) (*mcp.CallToolResult, any, error) {
		return textResult(catalogText(true)), nil, nil
	})
}

// relayPost sends one JSON request to the gateway edge with the caller's
// bearer token and returns the response body.
func (s *Server) relayPost(ctx context.Context, path string, payload any) ([]byte, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, errors.Wrap(err, "marshal relay payload")
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return nil, errors.Wrap(err, "build relay request")
	}
	req.Header.Set("Content-Type", "application/json")
	if s.token != "" {
		req.Header.Set("Authorization", "Bearer "+s.token)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, errors.Wrap(err, "call gateway")
	}
	defer resp.Body.Close()

	out, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, errors.Wrap(err, "read gateway response")
	}
	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		return nil, errors.Errorf("gateway returned %d: %s", resp.StatusCode, strings.TrimSpace(string(out)))
	}
	return out, nil
}

// chatReplyText extracts the assistant reply; malformed bodies fall back to
// the raw JSON so the caller still sees what came back.
func chatReplyText(body []byte) string {
	var parsed struct {
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
		} `json:"choices"`
	}
	if err := json.Unmarshal(body, &parsed); err == nil &&
		len(parsed.Choices) > 0 && parsed.Choices[0].Message.Content != "" {
		return parsed.Choices[0].Message.Content
	}
	return string(body)
}

func imageResultText(body []byte) string {
	var parsed struct {
		Data []struct {
			URL     string `json:"url"`
			B64JSON string `json:"b64_json"`
		} `json:"data"`
	}
	if err := json.Unmarshal(body, &parsed); err != nil || len(parsed.Data) == 0 {
		return string(body)
	}
	var sb strings.Builder
	for i, img := range parsed.Data {
		if i > 0 {
			sb.WriteString("\n")
		}
		switch {
		case img.URL != "":
			sb.WriteString(img.URL)
		case img.B64JSON != "":
			fmt.Fprintf(&sb, "(base64 image, %d bytes)", len(img.B64JSON))
		}
	}
	return sb.String()
}

// catalogText renders the model catalog as JSON, one row per model.
func catalogText(imageOnly bool) string {
	type providerRow struct {
		Provider    string  `json:"provider"`
		InputPrice  float64 `json:"input_price,omitempty"`
		OutputPrice float64 `json:"output_price,omitempty"`
		ImagePrice  float64 `json:"image_price,omitempty"`
	}
	type modelRow struct {
		ID        string        `json:"id"`
		Family    string        `json:"family,omitempty"`
		Name      string        `json:"name,omitempty"`
		Providers []providerRow `json:"providers"`
	}

	catalog := registry.Models()
	rows := make([]modelRow, 0, len(catalog))
	for i := range catalog {
		def := &catalog[i]
		if imageOnly != def.OutputsImage() {
			continue
		}
		row := modelRow{ID: def.ID, Family: def.Family, Name: def.Name}
		for j := range def.Providers {
			pm := &def.Providers[j]
			row.Providers = append(row.Providers, providerRow{
				Provider:    string(pm.Provider),
				InputPrice:  pm.InputPrice,
				OutputPrice: pm.OutputPrice,
				ImagePrice:  pm.ImageOutputPrice,
			})
		}
		rows = append(rows, row)
	}

	out, err := json.MarshalIndent(rows, "", "  ")
	if err != nil {
		return "[]"
	}
	return string(out)
}

func textResult(text string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{&mcp.TextContent{Text: text}},
	}
}

func toolError(err error) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		IsError: true,
		Content: []mcp.Content{&mcp.TextContent{Text: err.Error()}},
	}
}
