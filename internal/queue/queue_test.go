package queue

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/your-org/coachwatch/internal/models"
)

func TestAlertSubject(t *testing.T) {
	tests := map[string]string{
		"A1":        "alerts.A1",
		"ENGINE":    "alerts.ENGINE",
		"coach.b.1": "alerts.coach_b_1",
		"x >*":      "alerts.x___",
		"":          "alerts._",
	}
	for in, want := range tests {
		assert.Equal(t, want, AlertSubject(in), in)
	}
}

func TestDecodeAlert(t *testing.T) {
	a := models.Alert{
		ID:          uuid.New(),
		ZoneID:      "B1",
		IdentityID:  "intruder-1",
		DisplayName: "Unknown Person",
		Distance:    0.21,
		Severity:    models.SeverityHigh,
		DetectedAt:  time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC),
	}
	data, err := json.Marshal(a)
	require.NoError(t, err)

	got, err := DecodeAlert(data)
	require.NoError(t, err)
	assert.Equal(t, a, got)

	_, err = DecodeAlert([]byte("{"))
	assert.Error(t, err)
	_, err = DecodeAlert([]byte(`{"zone_id":"A1"}`))
	assert.Error(t, err)
}
