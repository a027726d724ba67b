package aws

import (
	"encoding/json"

	gmw "github.com/Laisky/gin-middlewares/v7"
	"github.com/Laisky/zap"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	"github.com/gin-gonic/gin"

	"github.com/shinmentakezo07/shinway-sub001/common"
	"github.com/shinmentakezo07/shinway-sub001/common/ctxkey"
	"github.com/shinmentakezo07/shinway-sub001/common/helper"
	relaymodel "github.com/shinmentakezo07/shinway-sub001/relay/model"
)

// StreamHandler runs ConverseStream and translates its event stream into
// canonical SSE chunks. The terminal chunk always carries usage.
func StreamHandler(c *gin.Context, client *bedrockruntime.Client, params *ConverseParams, modelName string) (*relaymodel.ErrorWithStatusCode, *relaymodel.Usage) {
	logger := gmw.GetLogger(c)

	output, err := client.ConverseStream(c.Request.Context(), params.converseStreamInput())
	if err != nil {
		return wrapSDKError(err), nil
	}
	stream := output.GetStream()
	defer func() { _ = stream.Close() }()

	common.SetEventStreamHeaders(c)

	state := &streamState{
		id:        "chatcmpl-" + helper.GenRequestID(),
		created:   helper.GetTimestamp(),
		toolIndex: -1,
		finish:    relaymodel.FinishReasonStop,
	}

	for event := range stream.Events() {
		delta := translateStreamEvent(event, state)
		if delta == nil {
			continue
		}
		chunk := &relaymodel.ChatCompletionsStreamResponse{
			Id:      state.id,
			Object:  "chat.completion.chunk",
			Created: state.created,
			Model:   modelName,
			Choices: []relaymodel.ChatCompletionsStreamResponseChoice{{Delta: *delta}},
		}
		if encoded, err := json.Marshal(chunk); err == nil {
			_, _ = c.Writer.WriteString("data: " + string(encoded) + "\n\n")
			c.Writer.Flush()
			c.Set(ctxkey.FirstByteSent, true)
		}
	}
	if err := stream.Err(); err != nil {
		if sent, _ := c.Get(ctxkey.FirstByteSent); sent != true {
			return wrapSDKError(err), nil
		}
		logger.Warn("bedrock stream truncated", zap.Error(err))
	}

	state.usage.Normalize()
	terminal := &relaymodel.ChatCompletionsStreamResponse{
		Id:      state.id,
		Object:  "chat.completion.chunk",
		Created: state.created,
		Model:   modelName,
		Choices: []relaymodel.ChatCompletionsStreamResponseChoice{{FinishReason: &state.finish}},
		Usage:   &state.usage,
	}
	if encoded, err := json.Marshal(terminal); err == nil {
		_, _ = c.Writer.WriteString("data: " + string(encoded) + "\n\n")
	}
	_, _ = c.Writer.WriteString("data: [DONE]\n\n")
	c.Writer.Flush()
	return nil, &state.usage
}
