package surveillance

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/your-org/coachwatch/internal/identity"
)

func newMatcher(t *testing.T) *identity.Matcher {
	t.Helper()
	store := identity.NewStore(2)
	_, err := store.Enroll(identity.Identity{ID: "staff-1", DisplayName: "TTE Sharma", Authorized: true, Role: identity.RoleStaffExaminer}, []float32{1, 0})
	require.NoError(t, err)
	_, err = store.Enroll(identity.Identity{ID: "intruder-1", DisplayName: "Unknown Person", Role: identity.RolePassenger}, []float32{0, 1})
	require.NoError(t, err)
	return identity.NewMatcher(store, 0.5)
}

func TestCycleRunMatchesEveryFaceInOrder(t *testing.T) {
	det := &fakeDetector{}
	det.set(face(0, 0.9, 0.1), face(20, 0, 1), face(40, 5, 5))
	c := NewCycle("cam-1", &fakeSource{}, det, newMatcher(t))

	res := c.Run(context.Background(), "A1")
	require.False(t, res.Degraded())
	assert.Equal(t, "A1", res.ZoneID)
	assert.Equal(t, "cam-1", res.CameraID)
	assert.Equal(t, uint64(1), res.FrameSeq)
	assert.False(t, res.CompletedAt.IsZero())
	require.Len(t, res.Matches, 3)

	assert.Equal(t, float32(0), res.Matches[0].BBox[0])
	assert.True(t, res.Matches[0].Accepted)
	assert.Equal(t, "staff-1", res.Matches[0].Identity.ID)
	assert.False(t, res.Matches[0].Unauthorized())

	assert.Equal(t, float32(20), res.Matches[1].BBox[0])
	assert.True(t, res.Matches[1].Unauthorized())
	assert.InDelta(t, 0, res.Matches[1].Distance, 1e-9)

	assert.False(t, res.Matches[2].Accepted)
	assert.False(t, res.Matches[2].Unauthorized())
}

func TestCycleRunNoFacesIsNotDegraded(t *testing.T) {
	c := NewCycle("cam-1", &fakeSource{}, &fakeDetector{}, newMatcher(t))
	res := c.Run(context.Background(), "A1")
	assert.False(t, res.Degraded())
	assert.Empty(t, res.Matches)
}

func TestCycleRunDegraded(t *testing.T) {
	t.Run("frame unavailable", func(t *testing.T) {
		c := NewCycle("cam-1", &fakeSource{err: errCamera}, &fakeDetector{}, newMatcher(t))
		res := c.Run(context.Background(), "A1")
		require.True(t, res.Degraded())
		assert.ErrorIs(t, res.Err, ErrDetectionUnavailable)
		assert.False(t, res.CompletedAt.IsZero())
	})
	t.Run("detector failure", func(t *testing.T) {
		det := &fakeDetector{err: errors.New("inference failed")}
		c := NewCycle("cam-1", &fakeSource{}, det, newMatcher(t))
		res := c.Run(context.Background(), "A1")
		require.True(t, res.Degraded())
		assert.ErrorIs(t, res.Err, ErrDetectionUnavailable)
		assert.Empty(t, res.Matches)
	})
}

func TestCycleRunBadEmbeddingLeavesFaceUnmatched(t *testing.T) {
	det := &fakeDetector{}
	det.set(face(0, 1, 0, 0), face(20, 0, 1))
	c := NewCycle("cam-1", &fakeSource{}, det, newMatcher(t))

	res := c.Run(context.Background(), "A1")
	require.False(t, res.Degraded())
	require.Len(t, res.Matches, 2)
	assert.False(t, res.Matches[0].Accepted)
	assert.Nil(t, res.Matches[0].Identity)
	assert.True(t, res.Matches[1].Unauthorized())
}

func TestCycleReadyDelegatesToDetector(t *testing.T) {
	det := &fakeDetector{notReady: errors.New("loading")}
	c := NewCycle("cam-1", &fakeSource{}, det, newMatcher(t))
	assert.Error(t, c.Ready(context.Background()))

	det.notReady = nil
	assert.NoError(t, c.Ready(context.Background()))
}
