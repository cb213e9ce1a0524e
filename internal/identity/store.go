package identity

import (
	"fmt"
	"sync"

	"github.com/google/uuid"
)

type enrollment struct {
	identity Identity
	vectors  [][]float32
}

// Store is the authoritative identity -> embeddings mapping. Identities keep
// their enrollment order, which fixes the scan order used by the Matcher.
type Store struct {
	dim int

	mu         sync.RWMutex
	order      []string
	byID       map[string]*enrollment
	embeddings int
	generation uint64
}

// NewStore creates an empty store for embeddings of the given dimension.
func NewStore(dim int) *Store {
	return &Store{
		dim:  dim,
		byID: make(map[string]*enrollment),
	}
}

// Dimension returns the fixed embedding length accepted by the store.
func (s *Store) Dimension() int {
	return s.dim
}

// Enroll creates the identity if its ID is unknown, or appends the embedding
// to the existing identity. An empty ID gets a generated one. Metadata of an
// existing identity is never changed by re-enrollment.
func (s *Store) Enroll(meta Identity, embedding []float32) (string, error) {
	if len(embedding) == 0 {
		return "", ErrNoFaceDetected
	}
	if len(embedding) != s.dim {
		return "", fmt.Errorf("%w: got %d, want %d", ErrInvalidEmbeddingDimension, len(embedding), s.dim)
	}
	role, err := ParseRole(string(meta.Role))
	if err != nil {
		return "", err
	}
	meta.Role = role
	if err := meta.Validate(); err != nil {
		return "", err
	}
	if meta.ID == "" {
		meta.ID = uuid.New().String()
	}

	vec := make([]float32, len(embedding))
	copy(vec, embedding)

	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.byID[meta.ID]
	if !ok {
		e = &enrollment{identity: meta}
		s.byID[meta.ID] = e
		s.order = append(s.order, meta.ID)
	}
	e.vectors = append(e.vectors, vec)
	s.embeddings++
	s.generation++

	return meta.ID, nil
}

// Remove deletes the identity and all of its embeddings. It reports whether
// anything was removed.
func (s *Store) Remove(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.byID[id]
	if !ok {
		return false
	}
	delete(s.byID, id)
	for i, oid := range s.order {
		if oid == id {
			s.order = append(s.order[:i:i], s.order[i+1:]...)
			break
		}
	}
	s.embeddings -= len(e.vectors)
	s.generation++
	return true
}

// Count returns the number of embeddings (not identities) held.
func (s *Store) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.embeddings
}

// Get returns the identity and its embedding count.
func (s *Store) Get(id string) (Identity, int, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	e, ok := s.byID[id]
	if !ok {
		return Identity{}, 0, false
	}
	return e.identity, len(e.vectors), true
}

// Summary is an identity together with how many samples it owns.
type Summary struct {
	Identity
	Embeddings int `json:"embeddings"`
}

// List returns all identities in enrollment order.
func (s *Store) List() []Summary {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]Summary, 0, len(s.order))
	for _, id := range s.order {
		e := s.byID[id]
		out = append(out, Summary{Identity: e.identity, Embeddings: len(e.vectors)})
	}
	return out
}

// Generation changes on every mutation. The Matcher compares it against the
// generation its index was built from.
func (s *Store) Generation() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.generation
}

// Load bulk-enrolls already decoded samples, e.g. rows restored from the
// database at startup. Invalid samples are skipped and counted.
func (s *Store) Load(samples []Sample) (loaded, failed int) {
	for _, smp := range samples {
		if _, err := s.Enroll(smp.Identity, smp.Vector); err != nil {
			failed++
			continue
		}
		loaded++
	}
	return loaded, failed
}

// Sample is one decoded embedding with its owner's metadata.
type Sample struct {
	Identity Identity
	Vector   []float32
}

// snapshot flattens the store in scan order. Called with no lock held.
func (s *Store) snapshot() *index {
	s.mu.RLock()
	defer s.mu.RUnlock()

	idx := &index{
		generation: s.generation,
		entries:    make([]indexEntry, 0, s.embeddings),
	}
	for _, id := range s.order {
		e := s.byID[id]
		owner := e.identity
		for _, v := range e.vectors {
			idx.entries = append(idx.entries, indexEntry{owner: &owner, vector: v})
		}
	}
	return idx
}
