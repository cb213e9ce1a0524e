package surveillance

import (
	"sort"
	"sync"
	"time"
)

type AlertLevel string

const (
	AlertNormal   AlertLevel = "normal"
	AlertElevated AlertLevel = "elevated"
	AlertHigh     AlertLevel = "high"
)

// ZoneState is a point-in-time copy of one zone's security posture.
type ZoneState struct {
	ZoneID            string        `json:"zone_id"`
	UnauthorizedCount int           `json:"unauthorized_count"`
	SecurityAlerts    int           `json:"security_alerts"`
	AlertLevel        AlertLevel    `json:"alert_level"`
	LastScanAt        time.Time     `json:"last_scan_at"`
	MonitoringActive  bool          `json:"monitoring_active"`
	Interrupted       bool          `json:"processing_interrupted"`
	LastMatches       []MatchResult `json:"last_matches"`
}

// Intrusion is one entry of a zone's recent unauthorized detections.
type Intrusion struct {
	IdentityID  string    `json:"identity_id"`
	DisplayName string    `json:"display_name"`
	Distance    float64   `json:"distance"`
	DetectedAt  time.Time `json:"detected_at"`
}

type zone struct {
	mu         sync.Mutex
	state      ZoneState
	intrusions []Intrusion
}

// Zones holds the security state of every zone. Each zone has its own lock,
// so updates to different zones never wait on each other.
type Zones struct {
	mu      sync.RWMutex
	zones   map[string]*zone
	logSize int
}

const defaultIntrusionLogSize = 50

// NewZones creates an empty registry. logSize caps each zone's intrusion log.
func NewZones(logSize int) *Zones {
	if logSize <= 0 {
		logSize = defaultIntrusionLogSize
	}
	return &Zones{zones: make(map[string]*zone), logSize: logSize}
}

func (z *Zones) get(id string) *zone {
	z.mu.RLock()
	zn, ok := z.zones[id]
	z.mu.RUnlock()
	if ok {
		return zn
	}

	z.mu.Lock()
	defer z.mu.Unlock()
	if zn, ok := z.zones[id]; ok {
		return zn
	}
	zn = &zone{state: ZoneState{ZoneID: id, AlertLevel: AlertNormal}}
	z.zones[id] = zn
	return zn
}

// Get returns the zone's state, creating the zone on first reference.
func (z *Zones) Get(id string) ZoneState {
	zn := z.get(id)
	zn.mu.Lock()
	defer zn.mu.Unlock()
	return zn.snapshot()
}

// List returns all known zones sorted by id.
func (z *Zones) List() []ZoneState {
	z.mu.RLock()
	ids := make([]string, 0, len(z.zones))
	for id := range z.zones {
		ids = append(ids, id)
	}
	z.mu.RUnlock()
	sort.Strings(ids)

	out := make([]ZoneState, 0, len(ids))
	for _, id := range ids {
		out = append(out, z.Get(id))
	}
	return out
}

// Apply folds one completed cycle into its zone and returns the new state
// together with the unauthorized hits it contained.
//
// A degraded cycle only refreshes last_scan_at and raises the interrupted
// indicator. The alert level never decays on its own; only Reset lowers it.
func (z *Zones) Apply(res CycleResult) (ZoneState, []MatchResult) {
	zn := z.get(res.ZoneID)
	zn.mu.Lock()
	defer zn.mu.Unlock()

	zn.state.LastScanAt = res.CompletedAt
	if res.Degraded() {
		zn.state.Interrupted = true
		return zn.snapshot(), nil
	}
	zn.state.Interrupted = false
	zn.state.LastMatches = append([]MatchResult(nil), res.Matches...)

	var hits []MatchResult
	for _, m := range res.Matches {
		if !m.Unauthorized() {
			continue
		}
		zn.state.UnauthorizedCount++
		hits = append(hits, m)
		zn.logIntrusion(m, res.CompletedAt, z.logSize)
	}
	if len(hits) > 0 {
		zn.state.AlertLevel = AlertHigh
		zn.state.SecurityAlerts++
	}
	return zn.snapshot(), hits
}

// SetMonitoring flips the monitoring_active flag.
func (z *Zones) SetMonitoring(id string, active bool) {
	zn := z.get(id)
	zn.mu.Lock()
	zn.state.MonitoringActive = active
	zn.mu.Unlock()
}

// Reset zeroes the zone's counters and returns its level to normal. It does
// not touch monitoring_active.
func (z *Zones) Reset(id string) ZoneState {
	zn := z.get(id)
	zn.mu.Lock()
	defer zn.mu.Unlock()
	zn.state.UnauthorizedCount = 0
	zn.state.SecurityAlerts = 0
	zn.state.AlertLevel = AlertNormal
	return zn.snapshot()
}

// ResetAll resets every known zone.
func (z *Zones) ResetAll() []ZoneState {
	states := z.List()
	out := make([]ZoneState, 0, len(states))
	for _, st := range states {
		out = append(out, z.Reset(st.ZoneID))
	}
	return out
}

// Intrusions returns the zone's recent unauthorized detections, newest first.
func (z *Zones) Intrusions(id string) []Intrusion {
	zn := z.get(id)
	zn.mu.Lock()
	defer zn.mu.Unlock()
	return append([]Intrusion(nil), zn.intrusions...)
}

// logIntrusion keeps one entry per identity; a repeat sighting moves it to
// the front with the new time.
func (zn *zone) logIntrusion(m MatchResult, at time.Time, limit int) {
	entry := Intrusion{
		IdentityID:  m.Identity.ID,
		DisplayName: m.Identity.DisplayName,
		Distance:    m.Distance,
		DetectedAt:  at,
	}
	for i, in := range zn.intrusions {
		if in.IdentityID == entry.IdentityID {
			zn.intrusions = append(zn.intrusions[:i], zn.intrusions[i+1:]...)
			break
		}
	}
	zn.intrusions = append([]Intrusion{entry}, zn.intrusions...)
	if len(zn.intrusions) > limit {
		zn.intrusions = zn.intrusions[:limit]
	}
}

func (zn *zone) snapshot() ZoneState {
	st := zn.state
	st.LastMatches = append([]MatchResult(nil), zn.state.LastMatches...)
	return st
}
