package identity

import (
	"fmt"
	"math"
	"sync"
	"sync/atomic"
)

// DefaultThreshold is the Euclidean acceptance distance used when none is
// configured.
const DefaultThreshold = 0.6

type indexEntry struct {
	owner  *Identity
	vector []float32
}

// index is an immutable flat view of the store. A new one is built and
// swapped in on staleness; an index is never modified after publication.
type index struct {
	generation uint64
	entries    []indexEntry
}

// Match is the outcome of resolving one probe embedding.
type Match struct {
	Identity *Identity
	Distance float64
	Accepted bool
}

// Matcher performs brute-force nearest-neighbour classification against a
// Store. The enrolled population is small enough that a linear scan is the
// right tool.
type Matcher struct {
	store     *Store
	threshold float64

	current   atomic.Pointer[index]
	rebuildMu sync.Mutex
	rebuilds  atomic.Uint64
}

// NewMatcher creates a matcher. A non-positive threshold falls back to
// DefaultThreshold.
func NewMatcher(store *Store, threshold float64) *Matcher {
	if threshold <= 0 {
		threshold = DefaultThreshold
	}
	return &Matcher{store: store, threshold: threshold}
}

// Threshold returns the acceptance distance.
func (m *Matcher) Threshold() float64 {
	return m.threshold
}

// Match resolves the probe to the closest enrolled embedding. An empty store
// yields an unmatched result, not an error.
func (m *Matcher) Match(probe []float32) (Match, error) {
	if len(probe) != m.store.Dimension() {
		return Match{}, fmt.Errorf("%w: got %d, want %d", ErrInvalidEmbeddingDimension, len(probe), m.store.Dimension())
	}

	idx := m.index()
	if len(idx.entries) == 0 {
		return Match{}, nil
	}

	best := -1
	bestDist := math.Inf(1)
	for i, e := range idx.entries {
		// Strict comparison keeps the earliest entry on exact ties.
		if d := euclidean(probe, e.vector); d < bestDist {
			bestDist = d
			best = i
		}
	}

	if best < 0 {
		// NaN components never compare less than anything.
		return Match{}, nil
	}

	owner := *idx.entries[best].owner
	return Match{
		Identity: &owner,
		Distance: bestDist,
		Accepted: bestDist <= m.threshold,
	}, nil
}

// Rebuilds reports how many times the index has been rebuilt.
func (m *Matcher) Rebuilds() uint64 {
	return m.rebuilds.Load()
}

func (m *Matcher) index() *index {
	gen := m.store.Generation()
	if idx := m.current.Load(); idx != nil && idx.generation == gen {
		return idx
	}

	m.rebuildMu.Lock()
	defer m.rebuildMu.Unlock()

	// Another caller may have rebuilt while we waited.
	if idx := m.current.Load(); idx != nil && idx.generation == m.store.Generation() {
		return idx
	}
	idx := m.store.snapshot()
	m.current.Store(idx)
	m.rebuilds.Add(1)
	return idx
}

func euclidean(a, b []float32) float64 {
	var sum float64
	for i := range a {
		d := float64(a[i]) - float64(b[i])
		sum += d * d
	}
	return math.Sqrt(sum)
}
