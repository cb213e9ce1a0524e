// Package surveillance runs recognition cycles against live cameras and
// derives per-zone security posture from their outcomes.
package surveillance

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/your-org/coachwatch/internal/identity"
	"github.com/your-org/coachwatch/internal/models"
	"github.com/your-org/coachwatch/internal/observability"
)

var (
	// ErrDetectionUnavailable marks a cycle that could not observe the zone.
	ErrDetectionUnavailable = errors.New("detection unavailable")
	// ErrModelUnavailable is returned by Start when the detector never became ready.
	ErrModelUnavailable = errors.New("model unavailable")
)

// FrameSource hands out the most recent frame of a capture device.
type FrameSource interface {
	NextFrame(ctx context.Context) (models.Frame, error)
}

// FaceDetector finds faces in a frame and embeds each of them.
type FaceDetector interface {
	Detect(ctx context.Context, frame models.Frame) ([]models.DetectedFace, error)
}

// readiness is implemented by detectors whose model loads asynchronously.
type readiness interface {
	Ready(ctx context.Context) error
}

// MatchResult is the per-face outcome of one cycle.
type MatchResult struct {
	BBox     [4]float32         `json:"bbox"`
	Identity *identity.Identity `json:"identity,omitempty"`
	Distance float64            `json:"distance"`
	Accepted bool               `json:"accepted"`
}

// Unauthorized reports an accepted match against a non-authorized identity.
func (r MatchResult) Unauthorized() bool {
	return r.Accepted && r.Identity != nil && !r.Identity.Authorized
}

// CycleResult is what one detect -> embed -> match pass produced. A non-nil
// Err (always wrapping ErrDetectionUnavailable) means the zone could not be
// observed, which is different from observing it empty.
type CycleResult struct {
	ZoneID      string        `json:"zone_id"`
	CameraID    string        `json:"camera_id,omitempty"`
	FrameSeq    uint64        `json:"frame_seq"`
	Matches     []MatchResult `json:"matches"`
	CompletedAt time.Time     `json:"completed_at"`
	Err         error         `json:"-"`
}

// Degraded reports whether the cycle failed to observe the zone.
func (r CycleResult) Degraded() bool {
	return r.Err != nil
}

// Cycle performs a single recognition pass. It has no side effects beyond
// calling its collaborators.
type Cycle struct {
	cameraID string
	source   FrameSource
	detector FaceDetector
	matcher  *identity.Matcher
	now      func() time.Time
}

func NewCycle(cameraID string, source FrameSource, detector FaceDetector, matcher *identity.Matcher) *Cycle {
	return &Cycle{
		cameraID: cameraID,
		source:   source,
		detector: detector,
		matcher:  matcher,
		now:      time.Now,
	}
}

// Ready returns nil when the detector can serve requests.
func (c *Cycle) Ready(ctx context.Context) error {
	if r, ok := c.detector.(readiness); ok {
		return r.Ready(ctx)
	}
	return nil
}

// Run pulls a frame, detects faces and matches each one. Results keep the
// detector's order.
func (c *Cycle) Run(ctx context.Context, zoneID string) CycleResult {
	res := CycleResult{ZoneID: zoneID, CameraID: c.cameraID}

	start := time.Now()
	frame, err := c.source.NextFrame(ctx)
	if err != nil {
		res.Err = fmt.Errorf("%w: next frame: %v", ErrDetectionUnavailable, err)
		res.CompletedAt = c.now()
		return res
	}
	observability.InferenceDuration.WithLabelValues("capture").Observe(time.Since(start).Seconds())
	res.FrameSeq = frame.Seq

	start = time.Now()
	faces, err := c.detector.Detect(ctx, frame)
	if err != nil {
		res.Err = fmt.Errorf("%w: detect: %v", ErrDetectionUnavailable, err)
		res.CompletedAt = c.now()
		return res
	}
	observability.InferenceDuration.WithLabelValues("detect").Observe(time.Since(start).Seconds())

	start = time.Now()
	res.Matches = make([]MatchResult, 0, len(faces))
	for _, f := range faces {
		mr := MatchResult{BBox: f.BBox}
		m, err := c.matcher.Match(f.Embedding)
		if err != nil {
			// Integration fault for this face only; it stays unmatched.
			slog.Error("match face", "zone_id", zoneID, "camera_id", c.cameraID, "error", err)
		} else {
			mr.Identity = m.Identity
			mr.Distance = m.Distance
			mr.Accepted = m.Accepted
		}
		res.Matches = append(res.Matches, mr)
	}
	observability.InferenceDuration.WithLabelValues("match").Observe(time.Since(start).Seconds())

	res.CompletedAt = c.now()
	return res
}
