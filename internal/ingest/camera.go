// Package ingest captures frames from coach cameras and keeps the most recent
// one available to recognition cycles.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/your-org/coachwatch/internal/config"
	"github.com/your-org/coachwatch/internal/models"
	"github.com/your-org/coachwatch/internal/observability"
)

// ErrFrameUnavailable is returned when no sufficiently fresh frame arrives in
// time.
var ErrFrameUnavailable = errors.New("no fresh frame available")

// captureFunc runs one capture session, feeding frames to cb until it ends.
type captureFunc func(ctx context.Context, url string, fps, width int, cb FrameCallback) error

func ffmpegCapture(ctx context.Context, url string, fps, width int, cb FrameCallback) error {
	ex := &FFmpegExtractor{}
	defer ex.Stop()
	return ex.Run(ctx, url, fps, width, cb)
}

// CameraSource holds the latest frame of one camera.
type CameraSource struct {
	cfg     config.CameraConfig
	maxAge  time.Duration
	capture captureFunc
	now     func() time.Time

	mu     sync.Mutex
	latest models.Frame
	seq    uint64
	notify chan struct{} // closed and replaced on every new frame
}

// NewCameraSource returns a source for cam. Frames older than maxAge are not
// handed out.
func NewCameraSource(cam config.CameraConfig, maxAge time.Duration) *CameraSource {
	return &CameraSource{
		cfg:     cam,
		maxAge:  maxAge,
		capture: ffmpegCapture,
		now:     time.Now,
		notify:  make(chan struct{}),
	}
}

// ID returns the camera identifier.
func (s *CameraSource) ID() string { return s.cfg.ID }

// Run captures until ctx is cancelled, restarting the capture process with
// backoff whenever it exits.
func (s *CameraSource) Run(ctx context.Context) {
	log := slog.With("camera_id", s.cfg.ID)
	log.Info("camera capture started", "url", s.cfg.URL, "fps", s.cfg.FPS, "width", s.cfg.Width)

	for attempt := 0; ; attempt++ {
		if attempt > 0 {
			delay := backoff(attempt)
			log.Warn("restarting camera capture", "attempt", attempt, "delay", delay)
			select {
			case <-ctx.Done():
				log.Info("camera capture stopped")
				return
			case <-time.After(delay):
			}
			observability.CaptureRestarts.WithLabelValues(s.cfg.ID).Inc()
		}

		delivered := false
		err := s.capture(ctx, s.cfg.URL, s.cfg.FPS, s.cfg.Width, func(data []byte) {
			delivered = true
			s.publish(data)
		})
		if ctx.Err() != nil {
			log.Info("camera capture stopped")
			return
		}
		if delivered {
			attempt = 0
		}
		log.Error("camera capture ended", "error", err)
	}
}

func (s *CameraSource) publish(data []byte) {
	s.mu.Lock()
	s.seq++
	s.latest = models.Frame{
		CameraID:   s.cfg.ID,
		Seq:        s.seq,
		CapturedAt: s.now(),
		Data:       data,
	}
	close(s.notify)
	s.notify = make(chan struct{})
	s.mu.Unlock()

	observability.FramesCaptured.WithLabelValues(s.cfg.ID).Inc()
}

// NextFrame returns the latest frame if it is fresh, otherwise waits up to
// maxAge for a new one.
func (s *CameraSource) NextFrame(ctx context.Context) (models.Frame, error) {
	s.mu.Lock()
	frame, wait := s.latest, s.notify
	s.mu.Unlock()

	if frame.Seq > 0 && s.now().Sub(frame.CapturedAt) <= s.maxAge {
		return frame, nil
	}

	timer := time.NewTimer(s.maxAge)
	defer timer.Stop()

	select {
	case <-wait:
		s.mu.Lock()
		frame = s.latest
		s.mu.Unlock()
		return frame, nil
	case <-timer.C:
		return models.Frame{}, fmt.Errorf("%w: camera %s", ErrFrameUnavailable, s.cfg.ID)
	case <-ctx.Done():
		return models.Frame{}, ctx.Err()
	}
}

// Latest returns the most recent frame regardless of its age.
func (s *CameraSource) Latest() (models.Frame, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.latest, s.latest.Seq > 0
}
