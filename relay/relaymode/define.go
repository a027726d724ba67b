// Package relaymode enumerates the edge surfaces a relay attempt serves.
package relaymode

const (
	Unknown = iota
	ChatCompletions
	ImagesGenerations
	Models
)

func String(mode int) string {
	switch mode {
	case ChatCompletions:
		return "chat"
	case ImagesGenerations:
		return "image_generation"
	case Models:
		return "models"
	default:
		return "unknown"
	}
}

// GetByPath maps a request path to its relay mode.
func GetByPath(path string) int {
	switch path {
	case "/v1/chat/completions":
		return ChatCompletions
	case "/v1/images/generations":
		return ImagesGenerations
	case "/v1/models":
		return Models
	default:
		return Unknown
	}
}
