package surveillance

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestZonesStartNormal(t *testing.T) {
	z := NewZones(0)
	st := z.Get("ENGINE")
	assert.Equal(t, "ENGINE", st.ZoneID)
	assert.Equal(t, AlertNormal, st.AlertLevel)
	assert.Zero(t, st.UnauthorizedCount)
	assert.False(t, st.MonitoringActive)
}

func TestZonesApplyCountsUnauthorized(t *testing.T) {
	z := NewZones(0)
	at := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)
	authorized := unauthorizedHit("staff")
	authorized.Identity.Authorized = true

	st, hits := z.Apply(CycleResult{
		ZoneID:      "B1",
		CompletedAt: at,
		Matches: []MatchResult{
			unauthorizedHit("u1"),
			authorized,
			{Distance: 3},
			unauthorizedHit("u2"),
		},
	})
	assert.Len(t, hits, 2)
	assert.Equal(t, 2, st.UnauthorizedCount)
	assert.Equal(t, 1, st.SecurityAlerts)
	assert.Equal(t, AlertHigh, st.AlertLevel)
	assert.Equal(t, at, st.LastScanAt)
	assert.Len(t, st.LastMatches, 4)

	// Other zones are untouched.
	assert.Equal(t, AlertNormal, z.Get("A1").AlertLevel)
}

func TestZonesLevelDoesNotDecay(t *testing.T) {
	z := NewZones(0)
	z.Apply(CycleResult{ZoneID: "A1", CompletedAt: time.Now(), Matches: []MatchResult{unauthorizedHit("u1")}})

	st, hits := z.Apply(CycleResult{ZoneID: "A1", CompletedAt: time.Now()})
	assert.Empty(t, hits)
	assert.Equal(t, AlertHigh, st.AlertLevel)
	assert.Equal(t, 1, st.UnauthorizedCount)
	assert.Empty(t, st.LastMatches)
}

func TestZonesDegradedCycleOnlyTouchesScanTime(t *testing.T) {
	z := NewZones(0)
	z.Apply(CycleResult{ZoneID: "A1", CompletedAt: time.Now(), Matches: []MatchResult{unauthorizedHit("u1")}})
	before := z.Get("A1")

	at := before.LastScanAt.Add(time.Second)
	st, hits := z.Apply(CycleResult{ZoneID: "A1", CompletedAt: at, Err: ErrDetectionUnavailable})
	assert.Empty(t, hits)
	assert.True(t, st.Interrupted)
	assert.Equal(t, at, st.LastScanAt)
	assert.Equal(t, before.UnauthorizedCount, st.UnauthorizedCount)
	assert.Equal(t, before.SecurityAlerts, st.SecurityAlerts)
	assert.Equal(t, before.LastMatches, st.LastMatches)

	st, _ = z.Apply(CycleResult{ZoneID: "A1", CompletedAt: at.Add(time.Second)})
	assert.False(t, st.Interrupted)
}

func TestZonesResetKeepsMonitoring(t *testing.T) {
	z := NewZones(0)
	z.SetMonitoring("C1", true)
	z.Apply(CycleResult{ZoneID: "C1", CompletedAt: time.Now(), Matches: []MatchResult{unauthorizedHit("u1")}})

	st := z.Reset("C1")
	assert.Zero(t, st.UnauthorizedCount)
	assert.Zero(t, st.SecurityAlerts)
	assert.Equal(t, AlertNormal, st.AlertLevel)
	assert.True(t, st.MonitoringActive)
}

func TestZonesResetAll(t *testing.T) {
	z := NewZones(0)
	for _, id := range []string{"ENGINE", "A1", "B1"} {
		z.Apply(CycleResult{ZoneID: id, CompletedAt: time.Now(), Matches: []MatchResult{unauthorizedHit("u1")}})
	}
	states := z.ResetAll()
	require.Len(t, states, 3)
	for _, st := range z.List() {
		assert.Equal(t, AlertNormal, st.AlertLevel, st.ZoneID)
		assert.Zero(t, st.UnauthorizedCount, st.ZoneID)
	}
	assert.Equal(t, []string{"A1", "B1", "ENGINE"}, []string{states[0].ZoneID, states[1].ZoneID, states[2].ZoneID})
}

func TestZonesIntrusionLog(t *testing.T) {
	z := NewZones(3)
	base := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)
	for i, id := range []string{"u1", "u2", "u1", "u3", "u4"} {
		z.Apply(CycleResult{ZoneID: "A1", CompletedAt: base.Add(time.Duration(i) * time.Second), Matches: []MatchResult{unauthorizedHit(id)}})
	}

	log := z.Intrusions("A1")
	require.Len(t, log, 3)
	got := make([]string, 0, len(log))
	for _, in := range log {
		got = append(got, in.IdentityID)
	}
	assert.Equal(t, []string{"u4", "u3", "u1"}, got)
	assert.Equal(t, base.Add(2*time.Second), log[2].DetectedAt)

	// Count still reflects every hit.
	assert.Equal(t, 5, z.Get("A1").UnauthorizedCount)
}

func TestZonesConcurrentApply(t *testing.T) {
	z := NewZones(0)
	done := make(chan struct{})
	for i := 0; i < 4; i++ {
		go func(i int) {
			defer func() { done <- struct{}{} }()
			zoneID := fmt.Sprintf("Z%d", i)
			for j := 0; j < 100; j++ {
				z.Apply(CycleResult{ZoneID: zoneID, CompletedAt: time.Now(), Matches: []MatchResult{unauthorizedHit("u")}})
			}
		}(i)
	}
	for i := 0; i < 4; i++ {
		<-done
	}
	for _, st := range z.List() {
		assert.Equal(t, 100, st.UnauthorizedCount, st.ZoneID)
	}
}
