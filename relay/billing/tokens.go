// Package billing computes token counts and USD charges for relay attempts.
package billing

import (
	"fmt"
	"sync"

	"github.com/pkoukk/tiktoken-go"

	"github.com/shinmentakezo07/shinway-sub001/common/logger"
	"github.com/shinmentakezo07/shinway-sub001/relay/model"
)

var (
	encoderOnce sync.Once
	encoder     *tiktoken.Tiktoken
)

// getEncoder lazily loads the cl100k_base BPE. All catalog models share one
// encoding for estimation; exact counts come from upstream usage blocks.
func getEncoder() *tiktoken.Tiktoken {
	encoderOnce.Do(func() {
		enc, err := tiktoken.GetEncoding(tiktoken.MODEL_CL100K_BASE)
		if err != nil {
			logger.Logger.Error("load tiktoken encoding failed: " + err.Error())
			return
		}
		encoder = enc
	})
	return encoder
}

// CountTokenText estimates tokens in a plain string. Falls back to len/4 when
// the encoder is unavailable.
func CountTokenText(text string) int {
	enc := getEncoder()
	if enc == nil {
		return len(text) / 4
	}
	return len(enc.Encode(text, nil, nil))
}

// CountTokenMessages estimates prompt tokens for a message list using the
// OpenAI chat format overhead: 3 tokens per message, 1 per name, 3 for the
// assistant reply primer. Image parts are charged a flat estimate.
func CountTokenMessages(messages []model.Message) int {
	const (
		perMessage     = 3
		perName        = 1
		replyPrimer    = 3
		perImageTokens = 1000
	)

	tokens := replyPrimer
	for _, msg := range messages {
		tokens += perMessage
		tokens += CountTokenText(msg.Role)
		if msg.Name != nil {
			tokens += perName + CountTokenText(*msg.Name)
		}
		for _, part := range msg.ParseContent() {
			switch part.Type {
			case model.ContentTypeText:
				if part.Text != nil {
					tokens += CountTokenText(*part.Text)
				}
			case model.ContentTypeImageURL, model.ContentTypeImage:
				tokens += perImageTokens
			}
		}
		for _, call := range msg.ToolCalls {
			tokens += CountTokenText(call.Function.Name)
			tokens += CountTokenText(call.Function.Arguments)
		}
	}
	return tokens
}

// EstimatePromptTokens covers messages plus serialized tool definitions.
func EstimatePromptTokens(req *model.GeneralOpenAIRequest) int {
	tokens := CountTokenMessages(req.Messages)
	for _, tool := range req.Tools {
		if tool.Function != nil {
			tokens += CountTokenText(tool.Function.Name)
			tokens += CountTokenText(tool.Function.Description)
			tokens += CountTokenText(fmt.Sprintf("%v", tool.Function.Parameters))
		}
	}
	return tokens
}
