package handler

import (
	"net/http"

	"dockhub/internal/microservices/websocket"

	"github.com/gin-gonic/gin"
)

// Publisher is the relay's fan-out as seen from the REST layer.
type Publisher interface {
	Publish(env websocket.Envelope) (int, error)
	Count() int
}

type EventHandler struct {
	publisher Publisher
}

func NewEventHandler(publisher Publisher) *EventHandler {
	return &EventHandler{publisher: publisher}
}

type publishRequest struct {
	Type string `json:"type" binding:"required"`
	Data struct {
		Message string `json:"message"`
	} `json:"data"`
}

// Publish relays a server-authorized event to every connected viewer
func (h *EventHandler) Publish(c *gin.Context) {
	var req publishRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request: " + err.Error()})
		return
	}

	env := websocket.Envelope{
		Type: req.Type,
		Data: websocket.EnvelopeData{Message: req.Data.Message},
	}
	receivers, err := h.publisher.Publish(env)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusAccepted, gin.H{
		"type":       env.Type,
		"recognized": env.Kind() != websocket.EventUnrecognized,
		"receivers":  receivers,
	})
}

// Kinds lists the event types dashboards know how to render
func (h *EventHandler) Kinds(c *gin.Context) {
	kinds := websocket.AllEventKinds()
	names := make([]string, 0, len(kinds))
	for _, k := range kinds {
		names = append(names, k.String())
	}
	c.JSON(http.StatusOK, gin.H{"kinds": names})
}

// Health reports liveness and the number of connected viewers
func (h *EventHandler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":     "ok",
		"ws_clients": h.publisher.Count(),
	})
}
