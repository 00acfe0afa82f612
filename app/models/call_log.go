package models

import "time"

// Call outcomes, normalized from provider status keywords.
const (
	CallOutcomeCompleted = "COMPLETED"
	CallOutcomeNoAnswer  = "NO_ANSWER"
	CallOutcomeBusy      = "BUSY"
	CallOutcomeFailed    = "FAILED"
	CallOutcomeCancelled = "CANCELLED"
)

// CallLog stores one row per external call event. Webhook delivery is
// at-least-once, so the row is keyed by the provider-assigned call id and
// written with upsert semantics only.
type CallLog struct {
	ID             uint   `gorm:"primaryKey" json:"id"`
	OrganizationID uint   `gorm:"not null;index:ux_call_logs_org_provider_call,unique,priority:1" json:"organization_id"`
	Provider       string `gorm:"type:varchar(20);not null;index:ux_call_logs_org_provider_call,unique,priority:2" json:"provider"`
	ProviderCallID string `gorm:"type:varchar(191);not null;index:ux_call_logs_org_provider_call,unique,priority:3" json:"provider_call_id"`
	AgentID        string `gorm:"type:varchar(191);not null;index" json:"agent_id"`

	CustomerID    *uint  `gorm:"index" json:"customer_id,omitempty"`
	AppointmentID *uint  `gorm:"index" json:"appointment_id,omitempty"`
	FromNumber    string `gorm:"type:varchar(32);default:''" json:"from_number"`
	ToNumber      string `gorm:"type:varchar(32);default:''" json:"to_number"`
	CallerName    string `gorm:"type:varchar(200);default:''" json:"caller_name"`

	StartedAt       time.Time  `gorm:"type:timestamp;not null;index" json:"started_at"`
	EndedAt         *time.Time `gorm:"type:timestamp;default:null" json:"ended_at,omitempty"`
	DurationSeconds int        `gorm:"default:0" json:"duration_seconds"`
	Outcome         string     `gorm:"type:varchar(20);not null;default:'COMPLETED';index" json:"outcome"`

	Transcript     string `gorm:"type:longtext" json:"transcript"`
	RecordingURL   string `gorm:"type:varchar(500);default:''" json:"recording_url"`
	Summary        string `gorm:"type:text" json:"summary"`
	RawPayloadJSON string `gorm:"type:longtext" json:"raw_payload_json"`

	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}
