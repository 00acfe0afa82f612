package voicehook

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/velora-app/velora/internal/pkg/phone"
)

// Providers nest the same logical field under different keys across versions
// (`call.agent_id` vs top-level `agent_id` vs a header fallback). Each logical
// field probes an ordered list of candidate locations and the first present,
// non-empty value wins. The priority order encodes provider-version
// compatibility and must not be reordered.
var (
	agentIDPaths     = []string{"call.agent_id", "agent_id", "agentId"}
	callIDPaths      = []string{"call.call_id", "call_id", "callId", "id"}
	eventIDPaths     = []string{"event_id", "eventId", "delivery_id"}
	startedAtPaths   = []string{"call.started_at", "started_at", "start_time", "startTime"}
	endedAtPaths     = []string{"call.ended_at", "ended_at", "end_time", "endTime"}
	fromNumberPaths  = []string{"call.from_number", "from_number", "from", "caller.phone_number"}
	toNumberPaths    = []string{"call.to_number", "to_number", "to"}
	callerNamePaths  = []string{"caller.name", "customer_name", "name"}
	callerEmailPaths = []string{"caller.email", "customer_email", "email"}
	outcomePaths     = []string{"call.outcome", "outcome", "status", "call_status"}
	transcriptPaths  = []string{"call.transcript", "transcript"}
	recordingPaths   = []string{"call.recording_url", "recording_url", "recordingUrl"}
	summaryPaths     = []string{"call.summary", "summary", "call_analysis.summary"}
	apptIDPaths      = []string{"appointment_id", "appointmentId", "metadata.appointment_id"}
)

// agentIDHeader is the last-resort fallback when no payload location carries
// the agent id. The header name is provider-scoped by the HTTP layer and
// passed here already lowercased.
const agentIDHeader = "agent-id"

// Normalize extracts a canonical call event from a raw provider payload.
// Required fields are the agent id and the call id; a missing one rejects the
// delivery with ErrMalformedPayload before any database access. Everything
// else is optional and defaulted.
func Normalize(provider string, raw []byte, headers map[string]string) (*NormalizedCallEvent, error) {
	var doc map[string]interface{}
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("%w: body is not a JSON object", ErrMalformedPayload)
	}

	agentID := firstString(doc, agentIDPaths)
	if agentID == "" {
		agentID = strings.TrimSpace(headers[agentIDHeader])
	}
	if agentID == "" {
		return nil, fmt.Errorf("%w: agent id", ErrMalformedPayload)
	}

	callID := firstString(doc, callIDPaths)
	if callID == "" {
		return nil, fmt.Errorf("%w: call id", ErrMalformedPayload)
	}

	ev := &NormalizedCallEvent{
		Provider:     provider,
		AgentID:      agentID,
		CallID:       callID,
		EventID:      firstString(doc, eventIDPaths),
		FromNumber:   phone.Normalize(firstString(doc, fromNumberPaths)),
		ToNumber:     phone.Normalize(firstString(doc, toNumberPaths)),
		CallerName:   firstString(doc, callerNamePaths),
		CallerEmail:  firstString(doc, callerEmailPaths),
		Outcome:      MapOutcome(firstString(doc, outcomePaths)),
		Transcript:   firstString(doc, transcriptPaths),
		RecordingURL: firstString(doc, recordingPaths),
		Summary:      firstString(doc, summaryPaths),
		RawPayload:   raw,
	}

	if ts, ok := firstTime(doc, startedAtPaths); ok {
		ev.StartedAt = ts
	} else {
		// No usable start timestamp: fall back to ingestion time.
		ev.StartedAt = time.Now().UTC()
	}
	if ts, ok := firstTime(doc, endedAtPaths); ok {
		ev.EndedAt = &ts
	}

	if idStr := firstString(doc, apptIDPaths); idStr != "" {
		if id, err := strconv.ParseUint(idStr, 10, 32); err == nil {
			ev.AppointmentID = uint(id)
		}
	}

	return ev, nil
}

// firstString probes the candidate paths in order and returns the first
// present, non-empty string value.
func firstString(doc map[string]interface{}, paths []string) string {
	for _, path := range paths {
		if s := stringAt(doc, path); s != "" {
			return s
		}
	}
	return ""
}

// firstTime probes the candidate paths for an RFC3339 timestamp or unix
// seconds (providers send both).
func firstTime(doc map[string]interface{}, paths []string) (time.Time, bool) {
	for _, path := range paths {
		raw := valueAt(doc, path)
		if raw == nil {
			continue
		}
		switch v := raw.(type) {
		case string:
			s := strings.TrimSpace(v)
			if s == "" {
				continue
			}
			if ts, err := time.Parse(time.RFC3339, s); err == nil {
				return ts.UTC(), true
			}
			if secs, err := strconv.ParseInt(s, 10, 64); err == nil && secs > 0 {
				return unixLike(secs), true
			}
		case float64:
			if v > 0 {
				return unixLike(int64(v)), true
			}
		}
	}
	return time.Time{}, false
}

// unixLike accepts seconds or milliseconds since epoch; provider versions
// disagree here too.
func unixLike(v int64) time.Time {
	if v > 1e12 {
		return time.UnixMilli(v).UTC()
	}
	return time.Unix(v, 0).UTC()
}

// valueAt walks a dot-separated path through nested JSON objects.
func valueAt(doc map[string]interface{}, path string) interface{} {
	cur := interface{}(doc)
	for _, seg := range strings.Split(path, ".") {
		m, ok := cur.(map[string]interface{})
		if !ok {
			return nil
		}
		cur, ok = m[seg]
		if !ok {
			return nil
		}
	}
	return cur
}

// stringAt renders scalars at the path as strings; numbers are formatted
// without an exponent so numeric ids survive.
func stringAt(doc map[string]interface{}, path string) string {
	switch v := valueAt(doc, path).(type) {
	case string:
		return strings.TrimSpace(v)
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(v)
	default:
		return ""
	}
}
