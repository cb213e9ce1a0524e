package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/your-org/coachwatch/internal/surveillance"
	"github.com/your-org/coachwatch/pkg/dto"
)

// Broadcaster pushes messages to live WebSocket clients.
type Broadcaster interface {
	Broadcast(msg dto.WSMessage)
}

type ZoneHandler struct {
	zones *surveillance.Zones
	hub   Broadcaster
}

func NewZoneHandler(zones *surveillance.Zones, hub Broadcaster) *ZoneHandler {
	return &ZoneHandler{zones: zones, hub: hub}
}

func (h *ZoneHandler) List(c *gin.Context) {
	states := h.zones.List()
	c.JSON(http.StatusOK, gin.H{"zones": states, "total": len(states)})
}

func (h *ZoneHandler) Get(c *gin.Context) {
	c.JSON(http.StatusOK, h.zones.Get(c.Param("id")))
}

func (h *ZoneHandler) Intrusions(c *gin.Context) {
	id := c.Param("id")
	c.JSON(http.StatusOK, gin.H{"zone_id": id, "intrusions": h.zones.Intrusions(id)})
}

func (h *ZoneHandler) Reset(c *gin.Context) {
	st := h.zones.Reset(c.Param("id"))
	h.publish(st)
	c.JSON(http.StatusOK, st)
}

func (h *ZoneHandler) ResetAll(c *gin.Context) {
	states := h.zones.ResetAll()
	for _, st := range states {
		h.publish(st)
	}
	c.JSON(http.StatusOK, dto.ResetAllResponse{Zones: len(states)})
}

func (h *ZoneHandler) publish(st surveillance.ZoneState) {
	if h.hub == nil {
		return
	}
	h.hub.Broadcast(dto.WSMessage{
		Type:      dto.WSTypeZoneState,
		ZoneID:    st.ZoneID,
		Timestamp: time.Now(),
		Data:      st,
	})
}
