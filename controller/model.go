package controller

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/shinmentakezo07/shinway-sub001/relay/registry"
)

// OpenAIModel is one /v1/models row in OpenAI's list shape.
type OpenAIModel struct {
	ID      string `json:"id"`
	Object  string `json:"object"`
	Created int64  `json:"created"`
	OwnedBy string `json:"owned_by"`
}

// OpenAIModelList is the /v1/models envelope.
type OpenAIModelList struct {
	Object string        `json:"object"`
	Data   []OpenAIModel `json:"data"`
}

// modelCreatedAt is a fixed catalog timestamp; the compiled registry has no
// per-model creation time.
const modelCreatedAt = 1700000000

// ListModels serves the catalog in OpenAI's model-list shape. Every model is
// listed once under its canonical id regardless of how many providers back it.
func ListModels(c *gin.Context) {
	catalog := registry.Models()
	list := OpenAIModelList{Object: "list", Data: make([]OpenAIModel, 0, len(catalog)+1)}
	for i := range catalog {
		def := &catalog[i]
		ownedBy := def.Family
		if ownedBy == "" {
			ownedBy = "shinway"
		}
		list.Data = append(list.Data, OpenAIModel{
			ID:      def.ID,
			Object:  "model",
			Created: modelCreatedAt,
			OwnedBy: ownedBy,
		})
	}
	list.Data = append(list.Data, OpenAIModel{
		ID:      registry.AutoModelID,
		Object:  "model",
		Created: modelCreatedAt,
		OwnedBy: "shinway",
	})
	c.JSON(http.StatusOK, list)
}

// Health is the liveness probe.
func Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}
