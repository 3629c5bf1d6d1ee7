package models_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/fleetline/voice-dispatch-api/models"
)

func TestCallStatus_TerminalStatesNeverRegress(t *testing.T) {
	terminals := []models.CallStatus{
		models.CallStatusCompleted,
		models.CallStatusFailed,
		models.CallStatusNoAnswer,
		models.CallStatusBusy,
	}
	all := []models.CallStatus{
		models.CallStatusPending,
		models.CallStatusRinging,
		models.CallStatusInProgress,
		models.CallStatusCompleted,
		models.CallStatusFailed,
		models.CallStatusNoAnswer,
		models.CallStatusBusy,
	}

	for _, from := range terminals {
		assert.True(t, from.Terminal())
		for _, to := range all {
			assert.False(t, from.CanTransitionTo(to),
				"terminal status %q must not transition to %q", from, to)
		}
	}
}

func TestCallStatus_ForwardTransitions(t *testing.T) {
	cases := []struct {
		from    models.CallStatus
		to      models.CallStatus
		allowed bool
	}{
		{models.CallStatusPending, models.CallStatusRinging, true},
		{models.CallStatusPending, models.CallStatusInProgress, true},
		{models.CallStatusPending, models.CallStatusCompleted, true},
		{models.CallStatusPending, models.CallStatusNoAnswer, true},
		{models.CallStatusRinging, models.CallStatusInProgress, true},
		{models.CallStatusRinging, models.CallStatusBusy, true},
		{models.CallStatusRinging, models.CallStatusPending, false},
		{models.CallStatusInProgress, models.CallStatusCompleted, true},
		{models.CallStatusInProgress, models.CallStatusFailed, true},
		{models.CallStatusInProgress, models.CallStatusRinging, false},
		{models.CallStatusInProgress, models.CallStatusPending, false},
		// re-applying the current status is a no-op, not a transition
		{models.CallStatusPending, models.CallStatusPending, false},
		{models.CallStatusInProgress, models.CallStatusInProgress, false},
		// unknown statuses are never reachable
		{models.CallStatusPending, models.CallStatus("exploded"), false},
	}

	for _, c := range cases {
		assert.Equal(t, c.allowed, c.from.CanTransitionTo(c.to),
			"%q -> %q", c.from, c.to)
	}
}

func TestStatusesThatReach(t *testing.T) {
	assert.ElementsMatch(t,
		[]models.CallStatus{models.CallStatusPending, models.CallStatusRinging},
		models.StatusesThatReach(models.CallStatusInProgress))

	assert.ElementsMatch(t,
		[]models.CallStatus{models.CallStatusPending, models.CallStatusRinging, models.CallStatusInProgress},
		models.StatusesThatReach(models.CallStatusCompleted))

	assert.ElementsMatch(t,
		[]models.CallStatus{models.CallStatusPending},
		models.StatusesThatReach(models.CallStatusRinging))

	assert.Empty(t, models.StatusesThatReach(models.CallStatusPending))
}
