package surveillance

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const idle = time.Hour

func newTestScheduler(runner Runner, zones *Zones, sink *recordingSink) (*Scheduler, *Emitter) {
	e := NewEmitter(time.Second, NamedSink{Name: "rec", Sink: sink})
	s := NewScheduler(SchedulerConfig{CameraID: "cam-1", Interval: idle, CycleTimeout: time.Second}, runner, zones, e)
	return s, e
}

func TestSchedulerUnauthorizedPassengerScenario(t *testing.T) {
	det := &fakeDetector{}
	det.set(face(0, 0, 1))
	cycle := NewCycle("cam-1", &fakeSource{}, det, newMatcher(t))
	zones := NewZones(0)
	sink := &recordingSink{}
	s, e := newTestScheduler(cycle, zones, sink)

	res, err := s.Start(context.Background(), "A1", idle)
	require.NoError(t, err)
	require.False(t, res.Degraded())
	require.Len(t, res.Matches, 1)
	assert.Equal(t, StateRunning, s.State())

	st := zones.Get("A1")
	assert.Equal(t, 1, st.UnauthorizedCount)
	assert.Equal(t, 1, st.SecurityAlerts)
	assert.Equal(t, AlertHigh, st.AlertLevel)
	assert.True(t, st.MonitoringActive)

	e.Wait()
	alerts := sink.received()
	require.Len(t, alerts, 1)
	assert.Equal(t, "intruder-1", alerts[0].IdentityID)
	assert.Equal(t, "cam-1", alerts[0].CameraID)

	// Empty frame afterwards: the level holds.
	det.set()
	_, err = s.Start(context.Background(), "A1", idle)
	require.NoError(t, err)
	st = zones.Get("A1")
	assert.Equal(t, AlertHigh, st.AlertLevel)
	assert.Equal(t, 1, st.UnauthorizedCount)

	st = zones.Reset("A1")
	assert.Equal(t, AlertNormal, st.AlertLevel)
	assert.Zero(t, st.UnauthorizedCount)
	assert.True(t, st.MonitoringActive)

	s.Close()
	e.Wait()
	assert.False(t, zones.Get("A1").MonitoringActive)
	assert.Equal(t, StateIdle, s.State())
}

func TestSchedulerDegradedCycleKeepsCounts(t *testing.T) {
	src := &fakeSource{err: errCamera}
	cycle := NewCycle("cam-1", src, &fakeDetector{}, newMatcher(t))
	zones := NewZones(0)
	zones.Apply(CycleResult{ZoneID: "A1", CompletedAt: time.Now().Add(-time.Minute), Matches: []MatchResult{unauthorizedHit("u1")}})
	before := zones.Get("A1")

	s, e := newTestScheduler(cycle, zones, &recordingSink{})
	defer e.Wait()
	defer s.Close()

	res, err := s.Start(context.Background(), "A1", idle)
	require.NoError(t, err)
	assert.ErrorIs(t, res.Err, ErrDetectionUnavailable)

	st := zones.Get("A1")
	assert.True(t, st.Interrupted)
	assert.True(t, st.LastScanAt.After(before.LastScanAt))
	assert.Equal(t, before.UnauthorizedCount, st.UnauthorizedCount)
	assert.Equal(t, before.AlertLevel, st.AlertLevel)
}

func TestSchedulerModelUnavailable(t *testing.T) {
	runner := &stubRunner{ready: errors.New("model file missing")}
	zones := NewZones(0)
	s, _ := newTestScheduler(runner, zones, &recordingSink{})

	_, err := s.Start(context.Background(), "A1", idle)
	require.ErrorIs(t, err, ErrModelUnavailable)
	assert.Equal(t, StateIdle, s.State())
	assert.Zero(t, runner.n.Load())
	assert.False(t, zones.Get("A1").MonitoringActive)

	s.Close()
}

func TestSchedulerRestartSupersedesLoop(t *testing.T) {
	runner := &stubRunner{}
	zones := NewZones(0)
	s, e := newTestScheduler(runner, zones, &recordingSink{})
	defer e.Wait()

	_, err := s.Start(context.Background(), "A1", 5*time.Millisecond)
	require.NoError(t, err)
	require.Eventually(t, func() bool { return runner.callsFor("A1") >= 3 }, 2*time.Second, time.Millisecond)

	_, err = s.Start(context.Background(), "B1", 5*time.Millisecond)
	require.NoError(t, err)
	frozen := runner.callsFor("A1")

	require.Eventually(t, func() bool { return runner.callsFor("B1") >= 3 }, 2*time.Second, time.Millisecond)
	s.Close()

	// Any A1 cycle still in flight at restart may have been counted once.
	assert.LessOrEqual(t, runner.callsFor("A1"), frozen+1)
	assert.False(t, zones.Get("A1").MonitoringActive)
	assert.Equal(t, StateIdle, s.State())
}

func TestSchedulerStopDiscardsInFlightResult(t *testing.T) {
	runner := &stubRunner{
		gate:     make(chan struct{}),
		gateFrom: 2,
		entered:  make(chan struct{}, 1),
		result: func(n int, zoneID string) CycleResult {
			res := CycleResult{ZoneID: zoneID, CompletedAt: time.Now()}
			if n >= 2 {
				res.Matches = []MatchResult{unauthorizedHit("late")}
			}
			return res
		},
	}
	zones := NewZones(0)
	sink := &recordingSink{}
	s, e := newTestScheduler(runner, zones, sink)

	_, err := s.Start(context.Background(), "A1", 5*time.Millisecond)
	require.NoError(t, err)
	afterFirst := zones.Get("A1")

	waitSignal(t, runner.entered)
	s.Stop()
	close(runner.gate)
	s.Close()
	e.Wait()

	st := zones.Get("A1")
	assert.Equal(t, afterFirst.UnauthorizedCount, st.UnauthorizedCount)
	assert.Equal(t, afterFirst.AlertLevel, st.AlertLevel)
	assert.Equal(t, afterFirst.LastScanAt, st.LastScanAt)
	assert.False(t, st.MonitoringActive)
	assert.Empty(t, sink.received())
}

func TestSchedulerSkipsOverlappingFirings(t *testing.T) {
	runner := &stubRunner{
		gate:     make(chan struct{}),
		gateFrom: 2,
		entered:  make(chan struct{}, 1),
	}
	s, e := newTestScheduler(runner, NewZones(0), &recordingSink{})
	defer e.Wait()

	_, err := s.Start(context.Background(), "A1", 2*time.Millisecond)
	require.NoError(t, err)
	waitSignal(t, runner.entered)

	// Many ticks elapse while cycle 2 is blocked; none may start.
	time.Sleep(30 * time.Millisecond)
	assert.Equal(t, int32(2), runner.n.Load())

	close(runner.gate)
	s.Close()
}

func TestSchedulerAppliesCyclesInOrder(t *testing.T) {
	var (
		mu      sync.Mutex
		applied []uint64
	)
	runner := &stubRunner{
		result: func(n int, zoneID string) CycleResult {
			return CycleResult{ZoneID: zoneID, FrameSeq: uint64(n), CompletedAt: time.Now()}
		},
	}
	zones := NewZones(0)
	e := NewEmitter(time.Second)
	s := NewScheduler(SchedulerConfig{
		CameraID: "cam-1",
		OnUpdate: func(u Update) {
			mu.Lock()
			applied = append(applied, u.Result.FrameSeq)
			mu.Unlock()
		},
	}, runner, zones, e)

	_, err := s.Start(context.Background(), "A1", time.Millisecond)
	require.NoError(t, err)
	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(applied) >= 10
	}, 2*time.Second, time.Millisecond)
	s.Close()

	mu.Lock()
	defer mu.Unlock()
	for i := 1; i < len(applied); i++ {
		assert.Less(t, applied[i-1], applied[i])
	}
}

func TestSchedulerStopIsIdempotent(t *testing.T) {
	s, _ := newTestScheduler(&stubRunner{}, NewZones(0), &recordingSink{})
	s.Stop()
	s.Stop()
	assert.Equal(t, StateIdle, s.State())
}

func TestMonitorsOneLoopPerZone(t *testing.T) {
	zones := NewZones(0)
	e := NewEmitter(time.Second)
	m := NewMonitors()
	for _, id := range []string{"cam-1", "cam-2"} {
		m.Add(NewScheduler(SchedulerConfig{CameraID: id, Interval: idle}, &stubRunner{}, zones, e))
	}
	defer m.CloseAll()

	_, err := m.Start(context.Background(), "cam-1", "A1", 0)
	require.NoError(t, err)
	_, err = m.Start(context.Background(), "cam-2", "A1", 0)
	require.NoError(t, err)

	statuses := m.List()
	require.Len(t, statuses, 2)
	assert.Equal(t, StateIdle, statuses[0].State)
	assert.Equal(t, StateRunning, statuses[1].State)
	assert.Equal(t, "A1", statuses[1].ZoneID)
	assert.Equal(t, 1, m.ActiveCount())
	assert.True(t, zones.Get("A1").MonitoringActive)

	_, err = m.Start(context.Background(), "cam-9", "A1", 0)
	assert.Error(t, err)
	assert.False(t, m.Stop("cam-9"))
	assert.True(t, m.Stop("cam-2"))
	assert.False(t, zones.Get("A1").MonitoringActive)
}
