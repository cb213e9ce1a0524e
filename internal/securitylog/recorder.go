// Package securitylog turns alerts into persistent security log entries and
// operator notifications.
package securitylog

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/your-org/coachwatch/internal/models"
	"github.com/your-org/coachwatch/internal/observability"
)

type Store interface {
	CreateSecurityLog(ctx context.Context, l *models.SecurityLog) (bool, error)
	CreateNotification(ctx context.Context, n *models.Notification) error
}

type Recorder struct {
	store Store
}

func NewRecorder(store Store) *Recorder {
	return &Recorder{store: store}
}

// Record writes one intrusion entry per alert and, the first time an alert is
// seen, a security notification. It has the shape of queue.AlertHandler.
func (r *Recorder) Record(ctx context.Context, a models.Alert) error {
	identityID := a.IdentityID
	alertID := a.ID
	entry := &models.SecurityLog{
		Type:        models.SecurityLogIntrusion,
		Description: describe(a),
		Location:    a.ZoneID,
		IdentityID:  &identityID,
		AlertID:     &alertID,
		CreatedAt:   a.DetectedAt,
	}

	inserted, err := r.store.CreateSecurityLog(ctx, entry)
	if err != nil {
		observability.AlertsPersisted.WithLabelValues("error").Inc()
		return err
	}
	if !inserted {
		observability.AlertsPersisted.WithLabelValues("duplicate").Inc()
		slog.Debug("alert already logged", "alert_id", a.ID)
		return nil
	}

	data, err := json.Marshal(a)
	if err != nil {
		return fmt.Errorf("marshal alert: %w", err)
	}
	if err := r.store.CreateNotification(ctx, &models.Notification{
		Type:    models.NotificationSecurity,
		Message: entry.Description,
		Data:    data,
	}); err != nil {
		// The log entry exists; a redelivery would be treated as a duplicate.
		slog.Error("create security notification", "alert_id", a.ID, "error", err)
	}

	observability.AlertsPersisted.WithLabelValues("stored").Inc()
	slog.Info("intrusion logged", "alert_id", a.ID, "zone_id", a.ZoneID, "identity_id", a.IdentityID)
	return nil
}

func describe(a models.Alert) string {
	if a.Message != "" {
		return a.Message
	}
	name := a.DisplayName
	if name == "" {
		name = a.IdentityID
	}
	return fmt.Sprintf("Unauthorized person %s detected in %s", name, a.ZoneID)
}
