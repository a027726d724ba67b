package model

// Tool kinds carried in the canonical tools list. Only function tools are
// forwarded through the generic tools field; web_search translates to each
// provider's native search surface.
const (
	ToolTypeFunction  = "function"
	ToolTypeWebSearch = "web_search"
)

// Tool is one entry of the canonical `tools` array.
type Tool struct {
	Type     string    `json:"type"`
	Function *Function `json:"function,omitempty"`

	// Web-search tuning, honored when Type == web_search.
	MaxUses int `json:"max_uses,omitempty"`
}

// Function declares a callable tool.
type Function struct {
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	Parameters  any    `json:"parameters,omitempty"`
	Strict      *bool  `json:"strict,omitempty"`
}

// ToolCall is an assistant-emitted call, whole or as a streamed delta.
// Index is stable across deltas of the same call.
type ToolCall struct {
	Index    *int         `json:"index,omitempty"`
	Id       string       `json:"id,omitempty"`
	Type     string       `json:"type,omitempty"`
	Function FunctionCall `json:"function"`
}

// FunctionCall carries the call target and (possibly partial) arguments JSON.
type FunctionCall struct {
	Name      string `json:"name,omitempty"`
	Arguments string `json:"arguments"`
}

// FunctionTools filters the canonical tools down to function tools.
func FunctionTools(tools []Tool) []Tool {
	var fns []Tool
	for _, t := range tools {
		if t.Type == ToolTypeFunction && t.Function != nil {
			fns = append(fns, t)
		}
	}
	return fns
}

// WebSearchTool returns the first web_search tool, if any.
func WebSearchTool(tools []Tool) *Tool {
	for i := range tools {
		if tools[i].Type == ToolTypeWebSearch {
			return &tools[i]
		}
	}
	return nil
}
