package controller

import (
	"bytes"
	"encoding/json"
	"net/http"

	"github.com/Laisky/errors/v2"
	gmw "github.com/Laisky/gin-middlewares/v7"
	"github.com/Laisky/zap"
	"github.com/gin-gonic/gin"

	"github.com/shinmentakezo07/shinway-sub001/common"
	"github.com/shinmentakezo07/shinway-sub001/common/ctxkey"
	"github.com/shinmentakezo07/shinway-sub001/model"
	"github.com/shinmentakezo07/shinway-sub001/relay"
	"github.com/shinmentakezo07/shinway-sub001/relay/adaptor"
	"github.com/shinmentakezo07/shinway-sub001/relay/adaptor/openai_compatible"
	"github.com/shinmentakezo07/shinway-sub001/relay/billing"
	"github.com/shinmentakezo07/shinway-sub001/relay/meta"
	relaymodel "github.com/shinmentakezo07/shinway-sub001/relay/model"
)

func planFromContext(c *gin.Context) string {
	if v, ok := c.Get(ctxkey.Organization); ok {
		if org, ok := v.(*model.Organization); ok {
			return org.Plan
		}
	}
	return ""
}

// RelayTextHelper runs one chat-completion attempt against the candidate
// described by m. The body is re-read and re-translated on every attempt so
// each provider sees its own wire shape.
func RelayTextHelper(c *gin.Context, m *meta.Meta) *relaymodel.ErrorWithStatusCode {
	lg := gmw.GetLogger(c)

	textRequest := &relaymodel.GeneralOpenAIRequest{}
	if err := common.UnmarshalBodyReusable(c, textRequest); err != nil {
		return relaymodel.NewError(http.StatusBadRequest, relaymodel.ErrorTypeInvalidRequest,
			errors.Wrap(err, "parse chat request"), "invalid_request_body")
	}
	if bizErr := validateTextRequest(textRequest, planFromContext(c)); bizErr != nil {
		return bizErr
	}

	m.IsStream = textRequest.Stream
	m.PromptTokens = billing.EstimatePromptTokens(textRequest)
	// The upstream sees the provider-side model name, never the alias the
	// caller used.
	textRequest.Model = m.ActualModelName
	c.Set(ctxkey.Meta, m)
	if textRequest.WantsWebSearch() {
		c.Set(ctxkey.WebSearchCalls, 1)
	}

	a := relay.GetAdaptor(m.Provider)
	if a == nil {
		return relaymodel.NewError(http.StatusInternalServerError, relaymodel.ErrorTypeInternal,
			errors.Errorf("no adaptor for provider %q", m.Provider), "no_adaptor")
	}
	a.Init(m)

	convertedRequest, err := a.ConvertRequest(c, m.Mode, textRequest)
	if err != nil {
		return relaymodel.NewError(http.StatusBadRequest, relaymodel.ErrorTypeInvalidRequest,
			errors.Wrap(err, "convert request"), "convert_failed")
	}

	resp, upstreamErr := sendConverted(c, a, m, convertedRequest)
	if upstreamErr != nil {
		return upstreamErr
	}

	usage, respErr := a.DoResponse(c, resp, m)
	if respErr != nil {
		lg.Warn("upstream response failed",
			zap.String("provider", string(m.Provider)),
			zap.String("model", m.ActualModelName),
			zap.Int("status", respErr.StatusCode),
		)
		return respErr
	}

	if usage != nil {
		usage.Normalize()
		c.Set(ctxkey.Usage, usage)
		if usage.CachedPromptTokens > 0 {
			c.Set(ctxkey.CacheHit, true)
		}
	}
	return nil
}

// sendConverted marshals the translated request, sends it, and classifies
// non-2xx upstream answers. SDK-driven adaptors return a nil response here
// and perform their own transport inside DoResponse.
func sendConverted(c *gin.Context, a adaptor.Adaptor, m *meta.Meta, convertedRequest any) (*http.Response, *relaymodel.ErrorWithStatusCode) {
	var body *bytes.Reader
	if convertedRequest != nil {
		payload, err := json.Marshal(convertedRequest)
		if err != nil {
			return nil, relaymodel.NewError(http.StatusInternalServerError, relaymodel.ErrorTypeInternal,
				errors.Wrap(err, "marshal upstream request"), "marshal_failed")
		}
		body = bytes.NewReader(payload)
	} else {
		body = bytes.NewReader(nil)
	}

	resp, err := a.DoRequest(c, m, body)
	if err != nil {
		return nil, relaymodel.WrapUpstreamError(0, string(m.Provider), err)
	}
	if resp != nil && (resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices) {
		return nil, openai_compatible.ErrorHandler(resp, a.GetChannelName())
	}
	return resp, nil
}
