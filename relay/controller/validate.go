// Package controller runs one relay attempt end to end: validate the
// canonical request, hand it to the provider translator, send it upstream,
// and translate the response back. The failover loop above it decides whether
// a failed attempt gets another candidate.
package controller

import (
	"net/http"

	"github.com/Laisky/errors/v2"

	"github.com/shinmentakezo07/shinway-sub001/common/image"
	relaymodel "github.com/shinmentakezo07/shinway-sub001/relay/model"
)

func clamp(v *float64, lo, hi float64) {
	if v == nil {
		return
	}
	if *v < lo {
		*v = lo
	}
	if *v > hi {
		*v = hi
	}
}

// validateTextRequest rejects malformed chat requests and clamps sampling
// parameters to provider-agnostic ranges. Translators apply any further
// per-provider clamping.
func validateTextRequest(req *relaymodel.GeneralOpenAIRequest, plan string) *relaymodel.ErrorWithStatusCode {
	if len(req.Messages) == 0 {
		return relaymodel.NewError(http.StatusBadRequest, relaymodel.ErrorTypeInvalidRequest,
			errors.New("messages must not be empty"), "missing_messages")
	}
	if req.MaxTokens < 0 {
		return relaymodel.NewError(http.StatusBadRequest, relaymodel.ErrorTypeInvalidRequest,
			errors.New("max_tokens must be non-negative"), "invalid_max_tokens")
	}
	if req.N != nil && (*req.N < 1 || *req.N > 8) {
		return relaymodel.NewError(http.StatusBadRequest, relaymodel.ErrorTypeInvalidRequest,
			errors.New("n must be between 1 and 8"), "invalid_n")
	}

	clamp(req.Temperature, 0, 2)
	clamp(req.TopP, 0, 1)
	clamp(req.FrequencyPenalty, -2, 2)
	clamp(req.PresencePenalty, -2, 2)

	for i := range req.Messages {
		for _, part := range req.Messages[i].ParseContent() {
			if part.Type != relaymodel.ContentTypeImageURL || part.ImageURL == nil {
				continue
			}
			if err := image.ValidateDataURL(part.ImageURL.Url, plan); err != nil {
				return relaymodel.NewError(http.StatusBadRequest, relaymodel.ErrorTypeInvalidRequest,
					err, "image_too_large")
			}
		}
	}
	return nil
}

// validateImageRequest rejects malformed image-generation requests.
func validateImageRequest(req *relaymodel.ImageRequest) *relaymodel.ErrorWithStatusCode {
	if req.Prompt == "" {
		return relaymodel.NewError(http.StatusBadRequest, relaymodel.ErrorTypeInvalidRequest,
			errors.New("prompt is required"), "missing_prompt")
	}
	if req.N < 0 || req.N > 10 {
		return relaymodel.NewError(http.StatusBadRequest, relaymodel.ErrorTypeInvalidRequest,
			errors.New("n must be between 1 and 10"), "invalid_n")
	}
	if req.N == 0 {
		req.N = 1
	}
	return nil
}
