package surveillance

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/your-org/coachwatch/internal/models"
	"github.com/your-org/coachwatch/internal/observability"
)

// ErrAlertContract is returned when Emit is handed a match that is not an
// accepted, unauthorized one.
var ErrAlertContract = errors.New("alert emitted for non-alerting match")

// Sink receives alerts. Delivery is best effort.
type Sink interface {
	Publish(ctx context.Context, zoneID string, alert models.Alert) error
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(ctx context.Context, zoneID string, alert models.Alert) error

func (f SinkFunc) Publish(ctx context.Context, zoneID string, alert models.Alert) error {
	return f(ctx, zoneID, alert)
}

// NamedSink labels a sink for logs and metrics.
type NamedSink struct {
	Name string
	Sink Sink
}

// Emitter turns unauthorized matches into alerts and hands them to every
// sink without waiting for delivery.
type Emitter struct {
	sinks   []NamedSink
	timeout time.Duration
	now     func() time.Time
	wg      sync.WaitGroup
}

func NewEmitter(timeout time.Duration, sinks ...NamedSink) *Emitter {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &Emitter{sinks: sinks, timeout: timeout, now: time.Now}
}

// Emit builds an alert for m and dispatches it asynchronously.
func (e *Emitter) Emit(zoneID string, m MatchResult) (models.Alert, error) {
	return e.emit(zoneID, "", m)
}

func (e *Emitter) emit(zoneID, cameraID string, m MatchResult) (models.Alert, error) {
	if !m.Unauthorized() {
		slog.Error("alert contract violated", "zone_id", zoneID, "accepted", m.Accepted, "has_identity", m.Identity != nil)
		return models.Alert{}, ErrAlertContract
	}

	alert := models.Alert{
		ID:          uuid.New(),
		ZoneID:      zoneID,
		CameraID:    cameraID,
		IdentityID:  m.Identity.ID,
		DisplayName: m.Identity.DisplayName,
		Role:        string(m.Identity.Role),
		Distance:    m.Distance,
		BBox:        m.BBox,
		Severity:    models.SeverityHigh,
		Message:     fmt.Sprintf("Unauthorized person detected in zone %s: %s", zoneID, m.Identity.DisplayName),
		DetectedAt:  e.now(),
	}

	for _, s := range e.sinks {
		e.wg.Add(1)
		go e.deliver(s, zoneID, alert)
	}
	return alert, nil
}

func (e *Emitter) deliver(s NamedSink, zoneID string, alert models.Alert) {
	defer e.wg.Done()

	ctx, cancel := context.WithTimeout(context.Background(), e.timeout)
	defer cancel()

	if err := s.Sink.Publish(ctx, zoneID, alert); err != nil {
		observability.AlertsEmitted.WithLabelValues(s.Name, "error").Inc()
		slog.Warn("alert delivery failed", "sink", s.Name, "zone_id", zoneID, "alert_id", alert.ID, "error", err)
		return
	}
	observability.AlertsEmitted.WithLabelValues(s.Name, "ok").Inc()
}

// Wait blocks until every in-flight delivery has returned.
func (e *Emitter) Wait() {
	e.wg.Wait()
}

// LogSink writes alerts to the structured log.
func LogSink() NamedSink {
	return NamedSink{
		Name: "log",
		Sink: SinkFunc(func(_ context.Context, zoneID string, a models.Alert) error {
			slog.Warn("SECURITY ALERT",
				"zone_id", zoneID,
				"identity_id", a.IdentityID,
				"display_name", a.DisplayName,
				"distance", a.Distance,
				"alert_id", a.ID,
			)
			return nil
		}),
	}
}
