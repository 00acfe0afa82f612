package voicehook

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/velora-app/velora/app/models"
)

func TestNormalize_NestedCallObject(t *testing.T) {
	raw := []byte(`{
		"event_id": "evt_1",
		"call": {
			"agent_id": "A1",
			"call_id": "C1",
			"started_at": "2026-03-02T10:00:00Z",
			"ended_at": "2026-03-02T10:03:30Z",
			"from_number": "+1 (555) 010-0199",
			"to_number": "555.010.0200",
			"outcome": "completed",
			"transcript": "hello",
			"recording_url": "https://recordings.example/c1.mp3"
		},
		"caller": { "name": "Ada Lovelace", "email": "ada@example.com" }
	}`)

	ev, err := Normalize(models.VoiceProviderRetell, raw, nil)
	assert.NoError(t, err)
	assert.Equal(t, "A1", ev.AgentID)
	assert.Equal(t, "C1", ev.CallID)
	assert.Equal(t, "evt_1", ev.EventID)
	assert.Equal(t, "+15550100199", ev.FromNumber)
	assert.Equal(t, "5550100200", ev.ToNumber)
	assert.Equal(t, "Ada Lovelace", ev.CallerName)
	assert.Equal(t, "ada@example.com", ev.CallerEmail)
	assert.Equal(t, models.CallOutcomeCompleted, ev.Outcome)
	assert.Equal(t, time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC), ev.StartedAt)
	if assert.NotNil(t, ev.EndedAt) {
		assert.Equal(t, time.Date(2026, 3, 2, 10, 3, 30, 0, time.UTC), *ev.EndedAt)
	}
}

func TestNormalize_FlatLegacyShape(t *testing.T) {
	raw := []byte(`{
		"agent_id": "A2",
		"callId": "C2",
		"startTime": 1767348000,
		"from": "+4930901820",
		"status": "user_hangup",
		"appointment_id": "42"
	}`)

	ev, err := Normalize(models.VoiceProviderVapi, raw, nil)
	assert.NoError(t, err)
	assert.Equal(t, "A2", ev.AgentID)
	assert.Equal(t, "C2", ev.CallID)
	assert.Equal(t, models.CallOutcomeFailed, ev.Outcome)
	assert.Equal(t, uint(42), ev.AppointmentID)
	assert.Equal(t, time.Unix(1767348000, 0).UTC(), ev.StartedAt)
}

// The probe order is provider-version compatibility: a nested call.agent_id
// must shadow a top-level agent_id, and call_id beats the generic id.
func TestNormalize_FirstMatchWins(t *testing.T) {
	raw := []byte(`{
		"agent_id": "outer",
		"id": "generic",
		"call_id": "C3",
		"call": { "agent_id": "inner", "call_id": "C-inner" }
	}`)

	ev, err := Normalize(models.VoiceProviderRetell, raw, nil)
	assert.NoError(t, err)
	assert.Equal(t, "inner", ev.AgentID)
	assert.Equal(t, "C-inner", ev.CallID)
}

func TestNormalize_AgentIDHeaderFallback(t *testing.T) {
	raw := []byte(`{"call_id":"C4"}`)

	ev, err := Normalize(models.VoiceProviderRetell, raw, map[string]string{"agent-id": "A4"})
	assert.NoError(t, err)
	assert.Equal(t, "A4", ev.AgentID)
}

func TestNormalize_MissingRequiredFields(t *testing.T) {
	_, err := Normalize(models.VoiceProviderRetell, []byte(`{"call_id":"C5"}`), nil)
	assert.ErrorIs(t, err, ErrMalformedPayload)

	_, err = Normalize(models.VoiceProviderRetell, []byte(`{"agent_id":"A5"}`), nil)
	assert.ErrorIs(t, err, ErrMalformedPayload)

	_, err = Normalize(models.VoiceProviderRetell, []byte(`[]`), nil)
	assert.ErrorIs(t, err, ErrMalformedPayload)
}

func TestNormalize_StartedAtDefaultsToIngestionTime(t *testing.T) {
	before := time.Now().UTC()
	ev, err := Normalize(models.VoiceProviderRetell, []byte(`{"agent_id":"A6","call_id":"C6"}`), nil)
	after := time.Now().UTC()

	assert.NoError(t, err)
	assert.False(t, ev.StartedAt.Before(before))
	assert.False(t, ev.StartedAt.After(after))
	assert.Nil(t, ev.EndedAt)
}

func TestMapOutcome(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{in: "no_answer", want: models.CallOutcomeNoAnswer},
		{in: "missed", want: models.CallOutcomeNoAnswer},
		{in: "busy", want: models.CallOutcomeBusy},
		{in: "registered_call_failed", want: models.CallOutcomeFailed},
		{in: "error", want: models.CallOutcomeFailed},
		{in: "user_hangup", want: models.CallOutcomeFailed},
		{in: "dropped", want: models.CallOutcomeFailed},
		{in: "cancelled", want: models.CallOutcomeCancelled},
		{in: "ended", want: models.CallOutcomeCompleted},
		{in: "", want: models.CallOutcomeCompleted},
	}

	for _, tt := range tests {
		if got := MapOutcome(tt.in); got != tt.want {
			t.Fatalf("MapOutcome(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
