package dto

import (
	"time"

	"github.com/your-org/coachwatch/internal/identity"
)

// WebSocket message types.
const (
	WSTypeAlert     = "alert"
	WSTypeZoneState = "zone_state"
	WSTypeCycle     = "cycle"
)

// WSMessage is a WebSocket message for real-time delivery.
type WSMessage struct {
	Type      string      `json:"type"`
	ZoneID    string      `json:"zone_id"`
	Timestamp time.Time   `json:"timestamp"`
	Data      interface{} `json:"data,omitempty"`
}

type ErrorResponse struct {
	Error string `json:"error"`
}

type IdentityResponse struct {
	identity.Identity
	Embeddings int `json:"embeddings"`
}

type IdentityListResponse struct {
	Identities []IdentityResponse `json:"identities"`
	Total      int                `json:"total"`
	Embeddings int                `json:"embeddings"`
}

type EnrollResponse struct {
	IdentityID string `json:"identity_id"`
	Embeddings int    `json:"embeddings"`
	SourceKey  string `json:"source_key,omitempty"`
}

type ImportRequest struct {
	Records   []identity.Record `json:"records"`
	BackupKey string            `json:"backup_key"`
}

type ImportResponse struct {
	Imported int `json:"imported"`
	Failed   int `json:"failed"`
}

type BackupResponse struct {
	Key     string `json:"key"`
	Records int    `json:"records"`
}

type StartCameraRequest struct {
	ZoneID string `json:"zone_id" binding:"required"`
	Mode   string `json:"mode"` // preview | background
}

type ResetAllResponse struct {
	Zones int `json:"zones"`
}
