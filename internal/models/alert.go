package models

import (
	"time"

	"github.com/google/uuid"
)

type Severity string

const (
	SeverityHigh Severity = "high"
)

// Alert is raised for every accepted match against an identity that is not
// authorized to be in the zone.
type Alert struct {
	ID          uuid.UUID  `json:"id"`
	ZoneID      string     `json:"zone_id"`
	CameraID    string     `json:"camera_id,omitempty"`
	IdentityID  string     `json:"identity_id"`
	DisplayName string     `json:"display_name"`
	Role        string     `json:"role"`
	Distance    float64    `json:"distance"`
	BBox        [4]float32 `json:"bbox"` // x1, y1, x2, y2
	Severity    Severity   `json:"severity"`
	Message     string     `json:"message"`
	DetectedAt  time.Time  `json:"detected_at"`
}
