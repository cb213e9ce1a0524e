package surveillance

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/your-org/coachwatch/internal/models"
	"github.com/your-org/coachwatch/internal/observability"
)

type State string

const (
	StateIdle     State = "idle"
	StateStarting State = "starting"
	StateRunning  State = "running"
)

// Runner executes recognition cycles. *Cycle is the production implementation.
type Runner interface {
	Run(ctx context.Context, zoneID string) CycleResult
	Ready(ctx context.Context) error
}

// Update is published after every cycle that was applied to zone state.
type Update struct {
	State  ZoneState
	Result CycleResult
	Alerts []models.Alert
}

type SchedulerConfig struct {
	CameraID     string
	Interval     time.Duration // default cadence when Start is given none
	CycleTimeout time.Duration
	// OnUpdate, when set, is called synchronously after each applied cycle.
	OnUpdate func(Update)
}

// run is one Start..Stop lifetime of the loop.
type run struct {
	zoneID   string
	interval time.Duration
	cancel   context.CancelFunc
	loopDone chan struct{}
	busy     atomic.Bool

	applyMu sync.Mutex
	stopped bool
}

// Scheduler drives recognition cycles for one zone at a fixed cadence. At
// most one loop is active per Scheduler; starting again supersedes it.
type Scheduler struct {
	cfg     SchedulerConfig
	runner  Runner
	zones   *Zones
	emitter *Emitter

	mu       sync.Mutex // serializes Start and Stop
	cur      *run
	state    atomic.Value
	inflight sync.WaitGroup
}

func NewScheduler(cfg SchedulerConfig, runner Runner, zones *Zones, emitter *Emitter) *Scheduler {
	if cfg.Interval <= 0 {
		cfg.Interval = 5 * time.Second
	}
	if cfg.CycleTimeout <= 0 {
		cfg.CycleTimeout = 10 * time.Second
	}
	s := &Scheduler{cfg: cfg, runner: runner, zones: zones, emitter: emitter}
	s.state.Store(StateIdle)
	return s
}

// Status describes what the scheduler is doing.
type Status struct {
	CameraID string        `json:"camera_id"`
	State    State         `json:"state"`
	ZoneID   string        `json:"zone_id,omitempty"`
	Interval time.Duration `json:"interval"`
}

func (s *Scheduler) CameraID() string {
	return s.cfg.CameraID
}

func (s *Scheduler) State() State {
	return s.state.Load().(State)
}

func (s *Scheduler) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()

	st := Status{CameraID: s.cfg.CameraID, State: s.State()}
	if s.cur != nil {
		st.ZoneID = s.cur.zoneID
		st.Interval = s.cur.interval
	}
	return st
}

// Start begins monitoring zoneID. Any previous loop is stopped first. One
// cycle runs synchronously and its result is returned; subsequent cycles run
// every interval (the configured default when interval is zero).
//
// If the detector is not ready, Start fails with ErrModelUnavailable and the
// scheduler stays idle.
func (s *Scheduler) Start(ctx context.Context, zoneID string, interval time.Duration) (CycleResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.stopLocked()
	s.state.Store(StateStarting)

	if err := s.runner.Ready(ctx); err != nil {
		s.state.Store(StateIdle)
		return CycleResult{}, fmt.Errorf("%w: %v", ErrModelUnavailable, err)
	}

	if interval <= 0 {
		interval = s.cfg.Interval
	}
	loopCtx, cancel := context.WithCancel(context.Background())
	r := &run{
		zoneID:   zoneID,
		interval: interval,
		cancel:   cancel,
		loopDone: make(chan struct{}),
	}

	s.zones.SetMonitoring(zoneID, true)
	observability.ActiveMonitors.Inc()
	slog.Info("surveillance started", "camera_id", s.cfg.CameraID, "zone_id", zoneID, "interval", interval)

	r.busy.Store(true)
	first := s.execute(ctx, r)

	s.cur = r
	s.state.Store(StateRunning)
	go s.loop(loopCtx, r)

	return first, nil
}

// Stop cancels the schedule. A cycle already in flight may finish but its
// result is discarded. Stopping an idle scheduler is a no-op.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stopLocked()
}

// Close stops the loop and waits for in-flight cycles to return.
func (s *Scheduler) Close() {
	s.Stop()
	s.inflight.Wait()
}

func (s *Scheduler) stopLocked() {
	r := s.cur
	if r == nil {
		return
	}

	r.applyMu.Lock()
	r.stopped = true
	r.applyMu.Unlock()

	r.cancel()
	<-r.loopDone

	s.zones.SetMonitoring(r.zoneID, false)
	s.cur = nil
	s.state.Store(StateIdle)
	observability.ActiveMonitors.Dec()
	slog.Info("surveillance stopped", "camera_id", s.cfg.CameraID, "zone_id", r.zoneID)
}

func (s *Scheduler) loop(ctx context.Context, r *run) {
	defer close(r.loopDone)

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			// Drop the firing rather than queue it behind a slow cycle.
			if !r.busy.CompareAndSwap(false, true) {
				observability.CyclesSkipped.WithLabelValues(r.zoneID).Inc()
				slog.Debug("cycle skipped, previous still running", "camera_id", s.cfg.CameraID, "zone_id", r.zoneID)
				continue
			}
			s.inflight.Add(1)
			go func() {
				defer s.inflight.Done()
				s.execute(context.Background(), r)
			}()
		}
	}
}

// execute runs one cycle and applies it. busy must already be set; it is
// cleared only after the state update, so cycle N is applied before N+1 runs.
func (s *Scheduler) execute(ctx context.Context, r *run) CycleResult {
	defer r.busy.Store(false)

	cctx, cancel := context.WithTimeout(ctx, s.cfg.CycleTimeout)
	res := s.runner.Run(cctx, r.zoneID)
	cancel()

	s.apply(r, res)
	return res
}

func (s *Scheduler) apply(r *run, res CycleResult) {
	r.applyMu.Lock()
	defer r.applyMu.Unlock()

	if r.stopped {
		observability.CyclesTotal.WithLabelValues(r.zoneID, "discarded").Inc()
		slog.Debug("discarding cycle result after stop", "camera_id", s.cfg.CameraID, "zone_id", r.zoneID)
		return
	}

	state, hits := s.zones.Apply(res)

	if res.Degraded() {
		observability.CyclesTotal.WithLabelValues(r.zoneID, "degraded").Inc()
		slog.Warn("recognition cycle degraded", "camera_id", s.cfg.CameraID, "zone_id", r.zoneID, "error", res.Err)
	} else {
		observability.CyclesTotal.WithLabelValues(r.zoneID, "ok").Inc()
		observability.FacesDetected.WithLabelValues(r.zoneID).Add(float64(len(res.Matches)))
		for _, m := range res.Matches {
			if m.Accepted {
				observability.FacesMatched.WithLabelValues(r.zoneID).Inc()
			}
		}
		observability.UnauthorizedMatches.WithLabelValues(r.zoneID).Add(float64(len(hits)))
	}

	var alerts []models.Alert
	for _, h := range hits {
		a, err := s.emitter.emit(r.zoneID, s.cfg.CameraID, h)
		if err != nil {
			continue
		}
		alerts = append(alerts, a)
	}

	if s.cfg.OnUpdate != nil {
		s.cfg.OnUpdate(Update{State: state, Result: res, Alerts: alerts})
	}
}
