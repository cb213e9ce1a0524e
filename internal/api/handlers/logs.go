package handlers

import (
	"context"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/your-org/coachwatch/internal/models"
)

// SecurityLogReader lists persisted security log entries.
type SecurityLogReader interface {
	ListSecurityLogs(ctx context.Context, location string, limit int) ([]models.SecurityLog, error)
}

type SecurityLogHandler struct {
	logs SecurityLogReader
}

func NewSecurityLogHandler(logs SecurityLogReader) *SecurityLogHandler {
	return &SecurityLogHandler{logs: logs}
}

func (h *SecurityLogHandler) List(c *gin.Context) {
	if h.logs == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "security log storage not configured"})
		return
	}

	limit := 0
	if s := c.Query("limit"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n < 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid limit"})
			return
		}
		limit = n
	}

	logs, err := h.logs.ListSecurityLogs(c.Request.Context(), c.Query("zone_id"), limit)
	if err != nil {
		respondError(c, err)
		return
	}
	if logs == nil {
		logs = []models.SecurityLog{}
	}
	c.JSON(http.StatusOK, gin.H{"logs": logs, "total": len(logs)})
}
