package ingest

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/your-org/coachwatch/internal/config"
)

type activeCamera struct {
	source *CameraSource
	cancel context.CancelFunc
	done   chan struct{}
}

// Manager owns the capture loops of all configured cameras.
type Manager struct {
	maxAge time.Duration

	mu      sync.RWMutex
	cameras map[string]*activeCamera
}

func NewManager(frameMaxAge time.Duration) *Manager {
	return &Manager{
		maxAge:  frameMaxAge,
		cameras: make(map[string]*activeCamera),
	}
}

// Start begins capturing cam and returns its source. Starting a camera that
// is already running returns the existing source.
func (m *Manager) Start(ctx context.Context, cam config.CameraConfig) (*CameraSource, error) {
	if cam.ID == "" || cam.URL == "" {
		return nil, fmt.Errorf("camera needs id and url")
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if ac, ok := m.cameras[cam.ID]; ok {
		return ac.source, nil
	}

	src := NewCameraSource(cam, m.maxAge)
	m.launch(ctx, src)
	return src, nil
}

// launch must be called with m.mu held.
func (m *Manager) launch(ctx context.Context, src *CameraSource) {
	runCtx, cancel := context.WithCancel(ctx)
	ac := &activeCamera{source: src, cancel: cancel, done: make(chan struct{})}
	m.cameras[src.ID()] = ac

	go func() {
		defer close(ac.done)
		src.Run(runCtx)
	}()
}

// Get returns the source of a running camera.
func (m *Manager) Get(id string) (*CameraSource, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	ac, ok := m.cameras[id]
	if !ok {
		return nil, false
	}
	return ac.source, true
}

// IDs lists running cameras in order.
func (m *Manager) IDs() []string {
	m.mu.RLock()
	ids := make([]string, 0, len(m.cameras))
	for id := range m.cameras {
		ids = append(ids, id)
	}
	m.mu.RUnlock()
	sort.Strings(ids)
	return ids
}

// ActiveCount returns the number of running cameras.
func (m *Manager) ActiveCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.cameras)
}

// StopAll stops every capture loop and waits for them to exit.
func (m *Manager) StopAll() {
	m.mu.Lock()
	cams := m.cameras
	m.cameras = make(map[string]*activeCamera)
	m.mu.Unlock()

	for id, ac := range cams {
		ac.cancel()
		<-ac.done
		slog.Info("camera stopped", "camera_id", id)
	}
}
