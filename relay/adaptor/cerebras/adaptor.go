// Package cerebras adapts the Cerebras inference cloud. The surface is plain
// OpenAI wire format except that structured outputs demand strict mode.
package cerebras

import (
	"github.com/gin-gonic/gin"

	"github.com/shinmentakezo07/shinway-sub001/relay/adaptor/openai_compatible"
	relaymodel "github.com/shinmentakezo07/shinway-sub001/relay/model"
)

type Adaptor struct {
	openai_compatible.Adaptor
}

func NewAdaptor() *Adaptor {
	return &Adaptor{openai_compatible.Adaptor{ChannelName: "cerebras"}}
}

func (a *Adaptor) ConvertRequest(c *gin.Context, relayMode int, request *relaymodel.GeneralOpenAIRequest) (any, error) {
	converted, err := a.Adaptor.ConvertRequest(c, relayMode, request)
	if err != nil {
		return nil, err
	}
	strict := true
	for i := range request.Tools {
		if request.Tools[i].Type == relaymodel.ToolTypeFunction && request.Tools[i].Function != nil {
			request.Tools[i].Function.Strict = &strict
		}
	}
	if request.ResponseFormat != nil && request.ResponseFormat.JsonSchema != nil {
		request.ResponseFormat.JsonSchema.Strict = &strict
	}
	return converted, nil
}
