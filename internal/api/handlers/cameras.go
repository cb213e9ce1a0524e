package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/your-org/coachwatch/internal/surveillance"
	"github.com/your-org/coachwatch/pkg/dto"
)

const (
	ModePreview    = "preview"
	ModeBackground = "background"
)

type CameraHandler struct {
	monitors        *surveillance.Monitors
	previewInterval time.Duration
	monitorInterval time.Duration
}

func NewCameraHandler(monitors *surveillance.Monitors, previewInterval, monitorInterval time.Duration) *CameraHandler {
	return &CameraHandler{
		monitors:        monitors,
		previewInterval: previewInterval,
		monitorInterval: monitorInterval,
	}
}

func (h *CameraHandler) List(c *gin.Context) {
	cams := h.monitors.List()
	c.JSON(http.StatusOK, gin.H{"cameras": cams, "total": len(cams)})
}

// Start points the camera at a zone. The first cycle runs before the
// response is written and is returned in it.
func (h *CameraHandler) Start(c *gin.Context) {
	var req dto.StartCameraRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	var interval time.Duration
	switch req.Mode {
	case ModePreview:
		interval = h.previewInterval
	case "", ModeBackground:
		interval = h.monitorInterval
	default:
		c.JSON(http.StatusBadRequest, gin.H{"error": "mode must be preview or background"})
		return
	}

	res, err := h.monitors.Start(c.Request.Context(), c.Param("id"), req.ZoneID, interval)
	if err != nil {
		respondError(c, err)
		return
	}

	resp := gin.H{
		"camera_id": c.Param("id"),
		"zone_id":   req.ZoneID,
		"interval":  interval.String(),
		"cycle":     res,
	}
	if res.Err != nil {
		resp["cycle_error"] = res.Err.Error()
	}
	c.JSON(http.StatusOK, resp)
}

func (h *CameraHandler) Stop(c *gin.Context) {
	if !h.monitors.Stop(c.Param("id")) {
		c.JSON(http.StatusNotFound, gin.H{"error": "camera not found"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "stopped"})
}
