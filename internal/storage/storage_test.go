package storage

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestEnrollmentKeys(t *testing.T) {
	assert.Equal(t, "enrollments/p-1/", enrollmentPrefix("p-1"))
	assert.Equal(t, ".png", imageExt("image/png"))
	assert.Equal(t, ".jpg", imageExt("image/jpeg"))
	assert.Equal(t, ".jpg", imageExt(""))
}

func TestIsBackupKey(t *testing.T) {
	assert.True(t, isBackupKey("exports/roster_20260301T100000Z.json"))
	assert.False(t, isBackupKey("enrollments/p-1/a.jpg"))
	assert.False(t, isBackupKey("exports/../enrollments/x.json"))
	assert.False(t, isBackupKey("exports/nested/roster.json"))
	assert.False(t, isBackupKey("exports/roster.txt"))
}
