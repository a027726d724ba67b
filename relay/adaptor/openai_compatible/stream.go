package openai_compatible

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/Laisky/errors/v2"
	gmw "github.com/Laisky/gin-middlewares/v7"
	"github.com/Laisky/zap"
	"github.com/gin-gonic/gin"

	"github.com/shinmentakezo07/shinway-sub001/common"
	"github.com/shinmentakezo07/shinway-sub001/common/ctxkey"
	"github.com/shinmentakezo07/shinway-sub001/common/helper"
	"github.com/shinmentakezo07/shinway-sub001/relay/billing"
	relaymodel "github.com/shinmentakezo07/shinway-sub001/relay/model"
)

const (
	dataPrefix = "data: "
	done       = "[DONE]"
)

// streamChunk is the upstream chunk with Perplexity-style citations attached.
type streamChunk struct {
	relaymodel.ChatCompletionsStreamResponse
	Citations []string `json:"citations,omitempty"`
}

// StreamHandler relays an SSE completion stream. Chunks are forwarded as
// they arrive with the model renamed to what the caller requested; the last
// data chunk before [DONE] always carries a usage block, synthesized from a
// token estimate when the upstream never reported one.
func StreamHandler(c *gin.Context, resp *http.Response, promptTokens int, modelName string) (*relaymodel.ErrorWithStatusCode, *relaymodel.Usage) {
	logger := gmw.GetLogger(c)
	common.SetEventStreamHeaders(c)
	defer func() { _ = resp.Body.Close() }()

	scanner := helper.NewSSEScanner(resp.Body)

	var (
		usage          *relaymodel.Usage
		completionText strings.Builder
		lastID         string
		lastCreated    int64
	)

	for scanner.Scan() {
		line := scanner.Text()
		if !strings.HasPrefix(line, dataPrefix) {
			continue
		}
		payload := strings.TrimSpace(line[len(dataPrefix):])
		if payload == done {
			break
		}

		var chunk streamChunk
		if err := json.Unmarshal([]byte(payload), &chunk); err != nil {
			logger.Warn("skip malformed stream chunk", zap.Error(err))
			continue
		}

		chunk.Model = modelName
		lastID = chunk.Id
		lastCreated = chunk.Created
		if chunk.Usage != nil {
			chunk.Usage.Normalize()
			usage = chunk.Usage
		}
		for i := range chunk.Choices {
			completionText.WriteString(chunk.Choices[i].Delta.Content)
			completionText.WriteString(chunk.Choices[i].Delta.ReasoningContent)
		}
		liftStreamCitations(&chunk)

		// Hold the upstream usage back; it is re-emitted on the terminal
		// chunk so clients see exactly one usage-bearing chunk.
		chunk.Usage = nil
		if err := writeChunk(c, &chunk.ChatCompletionsStreamResponse); err != nil {
			logger.Warn("write stream chunk failed", zap.Error(err))
			return nil, usage
		}
		c.Set(ctxkey.FirstByteSent, true)
	}

	if err := scanner.Err(); err != nil {
		// Post-first-byte transport errors cannot fail over; surface them as
		// a terminal error chunk if nothing was delivered yet.
		if sent, _ := c.Get(ctxkey.FirstByteSent); sent != true {
			return relaymodel.NewError(http.StatusBadGateway, relaymodel.ErrorTypeUpstreamTransient,
				errors.Wrap(err, "read upstream stream"), "stream_read_failed"), nil
		}
		logger.Warn("upstream stream truncated", zap.Error(err))
	}

	if usage == nil {
		completionTokens := billing.CountTokenText(completionText.String())
		usage = &relaymodel.Usage{
			PromptTokens:     promptTokens,
			CompletionTokens: completionTokens,
			TotalTokens:      promptTokens + completionTokens,
		}
	}

	terminal := &relaymodel.ChatCompletionsStreamResponse{
		Id:      lastID,
		Object:  "chat.completion.chunk",
		Created: lastCreated,
		Model:   modelName,
		Choices: []relaymodel.ChatCompletionsStreamResponseChoice{},
		Usage:   usage,
	}
	if err := writeChunk(c, terminal); err != nil {
		logger.Warn("write terminal usage chunk failed", zap.Error(err))
	}
	writeDone(c)

	return nil, usage
}

// liftStreamCitations moves a top-level citation list onto the first choice.
func liftStreamCitations(chunk *streamChunk) {
	if len(chunk.Citations) == 0 || len(chunk.Choices) == 0 {
		return
	}
	if len(chunk.Choices[0].Citations) > 0 {
		return
	}
	cites := make([]relaymodel.Citation, 0, len(chunk.Citations))
	for _, url := range chunk.Citations {
		cites = append(cites, relaymodel.Citation{URL: url})
	}
	chunk.Choices[0].Citations = cites
}

func writeChunk(c *gin.Context, chunk *relaymodel.ChatCompletionsStreamResponse) error {
	encoded, err := json.Marshal(chunk)
	if err != nil {
		return errors.Wrap(err, "marshal stream chunk")
	}
	if _, err = c.Writer.WriteString(dataPrefix + string(encoded) + "\n\n"); err != nil {
		return errors.Wrap(err, "write stream chunk")
	}
	c.Writer.Flush()
	return nil
}

func writeDone(c *gin.Context) {
	_, _ = c.Writer.WriteString(dataPrefix + done + "\n\n")
	c.Writer.Flush()
}
