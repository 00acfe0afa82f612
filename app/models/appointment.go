package models

import "time"

// Appointment source tags.
const (
	AppointmentSourceLocal          = "local"
	AppointmentSourceCalendarImport = "calendar_import"
	AppointmentSourceVoice          = "voice"
)

// Appointment statuses.
const (
	AppointmentStatusScheduled = "scheduled"
	AppointmentStatusCancelled = "cancelled"
	AppointmentStatusCompleted = "completed"
)

// Appointment is a local booking record. Rows imported from a remote calendar
// as busy blocks carry no customer and Source=calendar_import.
//
// Invariant: a row with ExternalEventID set must also carry ExternalProvider.
// Pull-sync classification guarantees a remote event id maps onto at most one
// local row per org.
type Appointment struct {
	ID             uint   `gorm:"primaryKey" json:"id"`
	OrganizationID uint   `gorm:"not null;index;index:idx_appointments_external_event,priority:1" json:"organization_id"`
	CustomerID     *uint  `gorm:"index" json:"customer_id,omitempty"`
	ServiceName    string `gorm:"type:varchar(200);default:''" json:"service_name"`
	Notes          string `gorm:"type:text" json:"notes"`
	CustomerName   string `gorm:"type:varchar(200);default:''" json:"customer_name"`
	CustomerPhone  string `gorm:"type:varchar(32);default:''" json:"customer_phone"`
	CustomerEmail  string `gorm:"type:varchar(200);default:''" json:"customer_email"`

	StartsAt time.Time `gorm:"type:timestamp;not null;index" json:"starts_at"`
	EndsAt   time.Time `gorm:"type:timestamp;not null" json:"ends_at"`
	Status   string    `gorm:"type:varchar(32);not null;default:'scheduled';index" json:"status"`
	Source   string    `gorm:"type:varchar(32);not null;default:'local';index" json:"source"`

	// Calendar-sync provenance.
	ExternalProvider   string     `gorm:"type:varchar(20);default:'';index:idx_appointments_external_event,priority:2" json:"external_provider"`
	ExternalCalendarID string     `gorm:"type:varchar(255);default:''" json:"external_calendar_id"`
	ExternalEventID    string     `gorm:"type:varchar(255);default:'';index:idx_appointments_external_event,priority:3" json:"external_event_id"`
	SyncedAt           *time.Time `gorm:"type:timestamp;default:null" json:"synced_at,omitempty"`

	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

// IsBusyBlock reports whether the appointment is a placeholder imported from
// a foreign calendar event.
func (a *Appointment) IsBusyBlock() bool {
	return a.Source == AppointmentSourceCalendarImport
}
