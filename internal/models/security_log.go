package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

type SecurityLogType string

const (
	SecurityLogIntrusion SecurityLogType = "intrusion"
	SecurityLogAlert     SecurityLogType = "alert"
	SecurityLogWarning   SecurityLogType = "warning"
	SecurityLogInfo      SecurityLogType = "info"
)

type SecurityLog struct {
	ID          uuid.UUID       `json:"id" db:"id"`
	Type        SecurityLogType `json:"type" db:"type"`
	Description string          `json:"description" db:"description"`
	Location    string          `json:"location" db:"location"` // zone id
	IdentityID  *string         `json:"identity_id,omitempty" db:"identity_id"`
	AlertID     *uuid.UUID      `json:"alert_id,omitempty" db:"alert_id"`
	CreatedAt   time.Time       `json:"created_at" db:"created_at"`
}

type NotificationType string

const (
	NotificationBooking  NotificationType = "booking"
	NotificationSecurity NotificationType = "security"
	NotificationSystem   NotificationType = "system"
	NotificationAlert    NotificationType = "alert"
)

type Notification struct {
	ID        uuid.UUID        `json:"id" db:"id"`
	Type      NotificationType `json:"type" db:"type"`
	Message   string           `json:"message" db:"message"`
	Data      json.RawMessage  `json:"data,omitempty" db:"data"`
	IsRead    bool             `json:"is_read" db:"is_read"`
	CreatedAt time.Time        `json:"created_at" db:"created_at"`
}
