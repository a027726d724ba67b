package registry

import (
	relaymodel "github.com/shinmentakezo07/shinway-sub001/relay/model"
)

// RequiredCapabilities derives the router's capability filter from a chat
// request: streaming, image parts, tools, search, reasoning, and structured
// output each demand a mapping that offers them.
func RequiredCapabilities(req *relaymodel.GeneralOpenAIRequest) []Capability {
	var caps []Capability
	if req.Stream {
		caps = append(caps, CapStreaming)
	}
	if req.WantsVision() {
		caps = append(caps, CapVision)
	}
	if req.WantsTools() {
		caps = append(caps, CapTools)
	}
	if req.WantsWebSearch() {
		caps = append(caps, CapWebSearch)
	}
	if req.WantsImageOutput() {
		caps = append(caps, CapImageGen)
	}
	if req.ReasoningEffort != nil {
		caps = append(caps, CapReasoning)
	}
	if format := req.ResponseFormat; format != nil {
		switch format.Type {
		case "json_object":
			caps = append(caps, CapJSONOutput)
		case "json_schema":
			caps = append(caps, CapJSONOutputSchema)
		}
	}
	return caps
}
