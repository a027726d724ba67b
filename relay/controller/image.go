package controller

import (
	"net/http"

	"github.com/Laisky/errors/v2"
	"github.com/gin-gonic/gin"

	"github.com/shinmentakezo07/shinway-sub001/common"
	"github.com/shinmentakezo07/shinway-sub001/common/ctxkey"
	"github.com/shinmentakezo07/shinway-sub001/relay"
	"github.com/shinmentakezo07/shinway-sub001/relay/billing"
	"github.com/shinmentakezo07/shinway-sub001/relay/meta"
	relaymodel "github.com/shinmentakezo07/shinway-sub001/relay/model"
)

// RelayImageHelper runs one image-generation attempt against the candidate
// described by m.
func RelayImageHelper(c *gin.Context, m *meta.Meta) *relaymodel.ErrorWithStatusCode {
	imageRequest := &relaymodel.ImageRequest{}
	if err := common.UnmarshalBodyReusable(c, imageRequest); err != nil {
		return relaymodel.NewError(http.StatusBadRequest, relaymodel.ErrorTypeInvalidRequest,
			errors.Wrap(err, "parse image request"), "invalid_request_body")
	}
	if bizErr := validateImageRequest(imageRequest); bizErr != nil {
		return bizErr
	}

	m.PromptTokens = billing.CountTokenText(imageRequest.Prompt)
	imageRequest.Model = m.ActualModelName
	c.Set(ctxkey.Meta, m)
	c.Set(ctxkey.ImageCount, imageRequest.N)

	a := relay.GetAdaptor(m.Provider)
	if a == nil {
		return relaymodel.NewError(http.StatusInternalServerError, relaymodel.ErrorTypeInternal,
			errors.Errorf("no adaptor for provider %q", m.Provider), "no_adaptor")
	}
	a.Init(m)

	convertedRequest, err := a.ConvertImageRequest(c, imageRequest)
	if err != nil {
		return relaymodel.NewError(http.StatusBadRequest, relaymodel.ErrorTypeInvalidRequest,
			errors.Wrap(err, "convert image request"), "convert_failed")
	}

	resp, upstreamErr := sendConverted(c, a, m, convertedRequest)
	if upstreamErr != nil {
		return upstreamErr
	}

	usage, respErr := a.DoResponse(c, resp, m)
	if respErr != nil {
		return respErr
	}
	if usage == nil {
		// Image endpoints rarely report token usage; bill the prompt estimate
		// so the ledger still carries a row.
		usage = &relaymodel.Usage{PromptTokens: m.PromptTokens}
		usage.Normalize()
	}
	c.Set(ctxkey.Usage, usage)
	return nil
}
