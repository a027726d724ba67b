package openai_compatible

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"strconv"

	"github.com/Laisky/errors/v2"
	"github.com/gin-gonic/gin"

	"github.com/shinmentakezo07/shinway-sub001/relay/billing"
	relaymodel "github.com/shinmentakezo07/shinway-sub001/relay/model"
)

// slimTextResponse is the upstream completion with an optional inline error.
// Some providers return HTTP 200 with an error envelope in the body.
type slimTextResponse struct {
	relaymodel.TextResponse
	Error relaymodel.Error `json:"error"`

	// Citations is Perplexity's top-level source list.
	Citations []string `json:"citations,omitempty"`
}

// Handler relays a non-streaming completion: parse, normalize usage, rename
// the model back to what the caller asked for, and re-serialize.
func Handler(c *gin.Context, resp *http.Response, promptTokens int, modelName string) (*relaymodel.ErrorWithStatusCode, *relaymodel.Usage) {
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return relaymodel.NewError(http.StatusInternalServerError, relaymodel.ErrorTypeInternal,
			errors.Wrap(err, "read upstream response"), "read_response_body_failed"), nil
	}
	_ = resp.Body.Close()

	var parsed slimTextResponse
	if err = json.Unmarshal(body, &parsed); err != nil {
		return relaymodel.NewError(http.StatusInternalServerError, relaymodel.ErrorTypeInternal,
			errors.Wrap(err, "unmarshal upstream response"), "unmarshal_response_body_failed"), nil
	}
	if parsed.Error.Type != "" || parsed.Error.Message != "" {
		return &relaymodel.ErrorWithStatusCode{
			Error:      parsed.Error,
			StatusCode: resp.StatusCode,
		}, nil
	}

	parsed.Usage.Normalize()
	if parsed.Usage.TotalTokens == 0 {
		completionTokens := 0
		for _, choice := range parsed.Choices {
			completionTokens += billing.CountTokenText(choice.Message.StringContent())
			completionTokens += billing.CountTokenText(choice.Message.ReasoningContent)
		}
		parsed.Usage = relaymodel.Usage{
			PromptTokens:     promptTokens,
			CompletionTokens: completionTokens,
			TotalTokens:      promptTokens + completionTokens,
		}
	}

	parsed.Model = modelName
	liftCitations(&parsed)

	out, err := json.Marshal(&parsed.TextResponse)
	if err != nil {
		return relaymodel.NewError(http.StatusInternalServerError, relaymodel.ErrorTypeInternal,
			errors.Wrap(err, "marshal relayed response"), "marshal_response_body_failed"), nil
	}

	c.Writer.Header().Set("Content-Type", "application/json")
	c.Writer.Header().Set("Content-Length", strconv.Itoa(len(out)))
	c.Writer.WriteHeader(resp.StatusCode)
	if _, err = io.Copy(c.Writer, bytes.NewReader(out)); err != nil {
		return relaymodel.NewError(http.StatusInternalServerError, relaymodel.ErrorTypeInternal,
			errors.Wrap(err, "write response"), "write_response_failed"), nil
	}
	return nil, &parsed.Usage
}

// liftCitations moves a Perplexity-style top-level citation list onto the
// first choice in the canonical shape.
func liftCitations(parsed *slimTextResponse) {
	if len(parsed.Citations) == 0 || len(parsed.Choices) == 0 {
		return
	}
	if len(parsed.Choices[0].Citations) > 0 {
		return
	}
	cites := make([]relaymodel.Citation, 0, len(parsed.Citations))
	for _, url := range parsed.Citations {
		cites = append(cites, relaymodel.Citation{URL: url})
	}
	parsed.Choices[0].Citations = cites
}
