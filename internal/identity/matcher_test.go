package identity

import (
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMatcherScenario(t *testing.T) {
	s := NewStore(2)
	_, err := s.Enroll(passenger("id-1", true), []float32{1.0, 0.0})
	require.NoError(t, err)
	m := NewMatcher(s, 0.5)

	got, err := m.Match([]float32{0.95, 0.05})
	require.NoError(t, err)
	require.NotNil(t, got.Identity)
	assert.Equal(t, "id-1", got.Identity.ID)
	assert.InDelta(t, 0.0707, got.Distance, 0.0001)
	assert.True(t, got.Accepted)

	got, err = m.Match([]float32{5.0, 5.0})
	require.NoError(t, err)
	assert.False(t, got.Accepted)
	assert.Greater(t, got.Distance, 0.5)
}

func TestMatcherIdenticalVectors(t *testing.T) {
	s := NewStore(3)
	_, err := s.Enroll(passenger("id-2", false), []float32{0.3, -0.2, 0.7})
	require.NoError(t, err)
	m := NewMatcher(s, 0.01)

	got, err := m.Match([]float32{0.3, -0.2, 0.7})
	require.NoError(t, err)
	assert.Equal(t, 0.0, got.Distance)
	assert.True(t, got.Accepted)
	assert.Equal(t, "id-2", got.Identity.ID)
}

func TestMatcherEmptyStore(t *testing.T) {
	m := NewMatcher(NewStore(2), 0.5)
	for _, probe := range [][]float32{{0, 0}, {1, 1}, {-3, 9}} {
		got, err := m.Match(probe)
		require.NoError(t, err)
		assert.Nil(t, got.Identity)
		assert.False(t, got.Accepted)
	}
}

func TestMatcherThresholdIsInclusive(t *testing.T) {
	s := NewStore(2)
	_, _ = s.Enroll(passenger("id-1", true), []float32{0, 0})
	m := NewMatcher(s, 0.5)

	got, err := m.Match([]float32{0.5, 0})
	require.NoError(t, err)
	assert.Equal(t, 0.5, got.Distance)
	assert.True(t, got.Accepted)
}

func TestMatcherTieBreaksOnScanOrder(t *testing.T) {
	s := NewStore(2)
	_, _ = s.Enroll(passenger("first", true), []float32{1, 0})
	_, _ = s.Enroll(passenger("second", false), []float32{-1, 0})
	m := NewMatcher(s, 2)

	for i := 0; i < 10; i++ {
		got, err := m.Match([]float32{0, 0})
		require.NoError(t, err)
		assert.Equal(t, "first", got.Identity.ID)
	}
}

func TestMatcherDimensionMismatch(t *testing.T) {
	m := NewMatcher(NewStore(2), 0.5)
	_, err := m.Match([]float32{1, 2, 3})
	assert.ErrorIs(t, err, ErrInvalidEmbeddingDimension)
}

func TestMatcherDefaultThreshold(t *testing.T) {
	m := NewMatcher(NewStore(2), 0)
	assert.Equal(t, DefaultThreshold, m.Threshold())
}

func TestMatcherRebuildsLazily(t *testing.T) {
	s := NewStore(2)
	_, _ = s.Enroll(passenger("id-1", true), []float32{1, 0})
	m := NewMatcher(s, 0.5)

	_, _ = m.Match([]float32{1, 0})
	_, _ = m.Match([]float32{1, 0})
	assert.Equal(t, uint64(1), m.Rebuilds())

	_, _ = s.Enroll(passenger("id-2", true), []float32{0, 1})
	got, err := m.Match([]float32{0, 1})
	require.NoError(t, err)
	assert.Equal(t, "id-2", got.Identity.ID)
	assert.Equal(t, uint64(2), m.Rebuilds())

	s.Remove("id-2")
	got, err = m.Match([]float32{0, 1})
	require.NoError(t, err)
	assert.Equal(t, "id-1", got.Identity.ID)
	assert.False(t, got.Accepted)
}

func TestMatcherNeverReturnsRemovedIdentity(t *testing.T) {
	s := NewStore(2)
	for i := 0; i < 50; i++ {
		_, err := s.Enroll(passenger(fmt.Sprintf("keep-%d", i), true), []float32{float32(i), 100})
		require.NoError(t, err)
	}
	_, err := s.Enroll(passenger("victim", false), []float32{0, 0})
	require.NoError(t, err)
	m := NewMatcher(s, 1)

	var wg sync.WaitGroup
	stop := make(chan struct{})
	for w := 0; w < 4; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				select {
				case <-stop:
					return
				default:
				}
				_, _ = m.Match([]float32{0, 0})
			}
		}()
	}

	require.True(t, s.Remove("victim"))
	for i := 0; i < 200; i++ {
		got, err := m.Match([]float32{0, 0})
		require.NoError(t, err)
		require.NotNil(t, got.Identity)
		require.NotEqual(t, "victim", got.Identity.ID)
	}
	close(stop)
	wg.Wait()
}

func TestMatcherResultIsACopy(t *testing.T) {
	s := NewStore(2)
	_, _ = s.Enroll(passenger("id-1", true), []float32{1, 0})
	m := NewMatcher(s, 0.5)

	got, _ := m.Match([]float32{1, 0})
	got.Identity.DisplayName = "tampered"

	again, _ := m.Match([]float32{1, 0})
	assert.Equal(t, "Passenger id-1", again.Identity.DisplayName)
}
