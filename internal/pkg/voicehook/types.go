package voicehook

import (
	"errors"
	"strings"
	"time"

	"github.com/velora-app/velora/app/models"
)

// Hard-reject errors for the webhook path. Nothing is written when these
// fire; the HTTP layer maps them to 4xx so the provider stops retrying.
var (
	ErrUnknownAgent     = errors.New("voicehook: unknown or inactive agent")
	ErrInvalidSignature = errors.New("voicehook: webhook signature verification failed")
	ErrMalformedPayload = errors.New("voicehook: payload missing required field")
)

// NormalizedCallEvent is the provider-agnostic shape produced by Normalize
// and consumed by the reconciliation engine.
type NormalizedCallEvent struct {
	Provider string
	AgentID  string
	CallID   string
	EventID  string

	StartedAt time.Time
	EndedAt   *time.Time

	FromNumber  string // normalized
	ToNumber    string // normalized
	CallerName  string
	CallerEmail string

	Outcome       string
	Transcript    string
	RecordingURL  string
	Summary       string
	AppointmentID uint

	RawPayload []byte
}

// MapOutcome classifies a provider status keyword into a call outcome. The
// keyword table is fixed; unknown statuses count as completed calls.
func MapOutcome(raw string) string {
	s := strings.ToLower(strings.TrimSpace(raw))
	switch {
	case strings.Contains(s, "no_answer"), strings.Contains(s, "no-answer"), strings.Contains(s, "missed"):
		return models.CallOutcomeNoAnswer
	case strings.Contains(s, "busy"):
		return models.CallOutcomeBusy
	case strings.Contains(s, "fail"), strings.Contains(s, "error"), strings.Contains(s, "hangup"), strings.Contains(s, "dropped"):
		return models.CallOutcomeFailed
	case strings.Contains(s, "cancel"):
		return models.CallOutcomeCancelled
	default:
		return models.CallOutcomeCompleted
	}
}
