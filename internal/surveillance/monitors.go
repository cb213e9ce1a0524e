package surveillance

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"
)

// ErrUnknownCamera is returned for a camera with no registered scheduler.
var ErrUnknownCamera = errors.New("unknown camera")

// Monitors owns one Scheduler per camera and keeps at most one active loop
// per zone across all of them.
type Monitors struct {
	mu         sync.Mutex
	schedulers map[string]*Scheduler
}

func NewMonitors() *Monitors {
	return &Monitors{schedulers: make(map[string]*Scheduler)}
}

// Add registers a scheduler under its camera id, replacing any previous one.
func (m *Monitors) Add(s *Scheduler) {
	m.mu.Lock()
	old := m.schedulers[s.CameraID()]
	m.schedulers[s.CameraID()] = s
	m.mu.Unlock()

	if old != nil && old != s {
		old.Close()
	}
}

func (m *Monitors) Get(cameraID string) (*Scheduler, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.schedulers[cameraID]
	return s, ok
}

// Start points cameraID at zoneID. A different camera already watching the
// zone is stopped first.
func (m *Monitors) Start(ctx context.Context, cameraID, zoneID string, interval time.Duration) (CycleResult, error) {
	m.mu.Lock()
	s, ok := m.schedulers[cameraID]
	var others []*Scheduler
	for id, o := range m.schedulers {
		if id != cameraID && o.Status().ZoneID == zoneID {
			others = append(others, o)
		}
	}
	m.mu.Unlock()

	if !ok {
		return CycleResult{}, fmt.Errorf("%w: %q", ErrUnknownCamera, cameraID)
	}
	for _, o := range others {
		o.Stop()
	}
	return s.Start(ctx, zoneID, interval)
}

// Stop halts cameraID's loop. It reports false for an unknown camera.
func (m *Monitors) Stop(cameraID string) bool {
	s, ok := m.Get(cameraID)
	if !ok {
		return false
	}
	s.Stop()
	return true
}

// List returns the status of every camera sorted by id.
func (m *Monitors) List() []Status {
	m.mu.Lock()
	all := make([]*Scheduler, 0, len(m.schedulers))
	for _, s := range m.schedulers {
		all = append(all, s)
	}
	m.mu.Unlock()

	out := make([]Status, 0, len(all))
	for _, s := range all {
		out = append(out, s.Status())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CameraID < out[j].CameraID })
	return out
}

// ActiveCount returns the number of running loops.
func (m *Monitors) ActiveCount() int {
	n := 0
	for _, st := range m.List() {
		if st.State == StateRunning {
			n++
		}
	}
	return n
}

// CloseAll stops every loop and waits for in-flight cycles.
func (m *Monitors) CloseAll() {
	m.mu.Lock()
	all := make([]*Scheduler, 0, len(m.schedulers))
	for _, s := range m.schedulers {
		all = append(all, s)
	}
	m.mu.Unlock()

	for _, s := range all {
		s.Close()
	}
}
