package calendarsync

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/velora-app/velora/app/models"
	"github.com/velora-app/velora/internal/pkg/vault"
)

// Repository is the persistence surface calendar sync needs. The gorm
// implementation lives in repository.go; tests inject an in-memory fake.
type Repository interface {
	GetOrganization(orgID uint) (*models.Organization, error)
	GetAppointment(orgID, appointmentID uint) (*models.Appointment, error)
	FindAppointmentByRemoteEvent(orgID uint, provider, eventID string) (*models.Appointment, error)
	CreateAppointment(appt *models.Appointment) error
	SaveAppointment(appt *models.Appointment) error
	ListSyncEnabledOrgs() ([]SyncTarget, error)
}

// SyncTarget pairs an organization with the calendar it syncs against.
type SyncTarget struct {
	OrganizationID uint
	CalendarID     string
}

// StateTracker records sync outcomes on the per-org settings row.
// *syncstate.Tracker satisfies it.
type StateTracker interface {
	Settings(orgID uint) (*models.CalendarSyncSettings, error)
	RecordSyncSuccess(orgID uint, at time.Time) error
	RecordSyncError(orgID uint, message string) error
}

// CredentialSource issues authenticated HTTP clients for an organization.
// *vault.Service satisfies it.
type CredentialSource interface {
	GetValidCredential(ctx context.Context, orgID uint, provider string) (*vault.Credential, error)
	HTTPClient(ctx context.Context, orgID uint, provider string) (*http.Client, *vault.Credential, error)
}

// ClientFactory builds a remote calendar client for an organization. The
// default factory goes through the vault; tests swap in a fake.
type ClientFactory func(ctx context.Context, orgID uint) (Client, error)

// SyncResult is the outcome of a single push or pull operation. Sync never
// raises into its caller; failures travel inside the result and are mirrored
// onto the settings row by the state tracker.
type SyncResult struct {
	Operation      string
	OrganizationID uint
	CalendarID     string
	Created        int
	Updated        int
	Unchanged      int
	Skipped        bool
	Err            error
}

// Failed reports whether the operation ended in an error.
func (r SyncResult) Failed() bool {
	return r.Err != nil
}

// ConnectionStatus is the per-org calendar state exposed over the API.
type ConnectionStatus struct {
	Connected      bool       `json:"connected"`
	SyncEnabled    bool       `json:"sync_enabled"`
	AccountEmail   string     `json:"account_email,omitempty"`
	CalendarID     string     `json:"calendar_id,omitempty"`
	LastSyncAt     *time.Time `json:"last_sync_at,omitempty"`
	LastSyncError  string     `json:"last_sync_error,omitempty"`
	NeedsReconnect bool       `json:"needs_reconnect"`
}

// Service coordinates two-way sync between local appointments and the
// organization's connected calendar.
type Service struct {
	repo    Repository
	tracker StateTracker
	creds   CredentialSource
	clients ClientFactory
	now     func() time.Time
}

// NewService wires the default Google-backed client factory.
func NewService(repo Repository, tracker StateTracker, creds CredentialSource) *Service {
	s := &Service{
		repo:    repo,
		tracker: tracker,
		creds:   creds,
		now:     time.Now,
	}
	s.clients = func(ctx context.Context, orgID uint) (Client, error) {
		httpClient, _, err := creds.HTTPClient(ctx, orgID, models.CalendarProviderGoogle)
		if err != nil {
			return nil, err
		}
		return NewGoogleClient(ctx, httpClient)
	}
	return s
}

// Status combines the settings row with the credential state. A connected
// organization whose refresh token no longer works is flagged for reconnect
// rather than silently dropping out of sync.
func (s *Service) Status(ctx context.Context, orgID uint) (*ConnectionStatus, error) {
	settings, err := s.tracker.Settings(orgID)
	if err != nil {
		return nil, err
	}

	status := &ConnectionStatus{
		Connected:     settings.Connected,
		SyncEnabled:   settings.SyncEnabled,
		CalendarID:    settings.CalendarID,
		LastSyncAt:    settings.LastSyncAt,
		LastSyncError: settings.LastSyncError,
	}
	if !settings.Connected {
		return status, nil
	}

	cred, err := s.creds.GetValidCredential(ctx, orgID, models.CalendarProviderGoogle)
	switch {
	case err == nil:
		status.AccountEmail = cred.AccountEmail
	case errors.Is(err, vault.ErrAuthExpired), errors.Is(err, vault.ErrNotConnected):
		status.NeedsReconnect = true
	default:
		return nil, err
	}
	return status, nil
}

// ListCalendars returns the calendars the connected account can write to, for
// the settings picker.
func (s *Service) ListCalendars(ctx context.Context, orgID uint) ([]CalendarInfo, error) {
	client, err := s.clients(ctx, orgID)
	if err != nil {
		return nil, err
	}
	return client.ListCalendars(ctx)
}
