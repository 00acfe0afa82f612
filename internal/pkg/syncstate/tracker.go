package syncstate

import (
	"errors"
	"time"

	"gorm.io/gorm"

	"github.com/velora-app/velora/app/models"
)

// ErrConcurrentUpdate is returned when the optimistic-lock retry budget is
// exhausted. Callers treat it as transient.
var ErrConcurrentUpdate = errors.New("syncstate: settings row changed concurrently")

const updateAttempts = 2

// Repository is the persistence surface the tracker writes through.
type Repository interface {
	GetOrCreateSettings(orgID uint) (*models.CalendarSyncSettings, error)
	// UpdateSettingsVersioned applies the column updates only when the row
	// still carries lockVersion. Returns false when another writer got there
	// first.
	UpdateSettingsVersioned(orgID uint, lockVersion uint, cols map[string]interface{}) (bool, error)
}

// Tracker records per-org sync observability state (last success, last error)
// on the CalendarSyncSettings row. All writes are targeted column updates
// guarded by the row's lock_version, so concurrent writers touching unrelated
// columns cannot clobber each other.
type Tracker struct {
	repo Repository
}

func NewTracker(repo Repository) *Tracker {
	return &Tracker{repo: repo}
}

func NewTrackerFromDB(db *gorm.DB) *Tracker {
	return NewTracker(&gormRepository{db: db})
}

// Settings returns the org's sync settings, creating a disconnected default
// row on first access.
func (t *Tracker) Settings(orgID uint) (*models.CalendarSyncSettings, error) {
	return t.repo.GetOrCreateSettings(orgID)
}

// RecordSyncSuccess stamps a successful pull/push and clears the error note.
func (t *Tracker) RecordSyncSuccess(orgID uint, at time.Time) error {
	return t.update(orgID, map[string]interface{}{
		"last_sync_at":    at,
		"last_sync_error": "",
	})
}

// RecordSyncError stores a human-readable note for the last failed sync.
func (t *Tracker) RecordSyncError(orgID uint, msg string) error {
	return t.update(orgID, map[string]interface{}{
		"last_sync_error": msg,
	})
}

// RecordWebhookError stores the last webhook processing failure for the org.
func (t *Tracker) RecordWebhookError(orgID uint, msg string) error {
	return t.update(orgID, map[string]interface{}{
		"last_webhook_error": msg,
	})
}

// MarkConnected flips the connected flag after a completed OAuth handshake
// and enables sync by default.
func (t *Tracker) MarkConnected(orgID uint) error {
	return t.update(orgID, map[string]interface{}{
		"connected":    true,
		"sync_enabled": true,
	})
}

// MarkDisconnected clears connectivity after a disconnect or a revoked grant.
func (t *Tracker) MarkDisconnected(orgID uint) error {
	return t.update(orgID, map[string]interface{}{
		"connected":    false,
		"sync_enabled": false,
	})
}

// SetCalendar records the remote calendar chosen for the org.
func (t *Tracker) SetCalendar(orgID uint, calendarID string) error {
	return t.update(orgID, map[string]interface{}{
		"calendar_id": calendarID,
	})
}

func (t *Tracker) update(orgID uint, cols map[string]interface{}) error {
	for attempt := 0; attempt < updateAttempts; attempt++ {
		s, err := t.repo.GetOrCreateSettings(orgID)
		if err != nil {
			return err
		}
		applied, err := t.repo.UpdateSettingsVersioned(orgID, s.LockVersion, cols)
		if err != nil {
			return err
		}
		if applied {
			return nil
		}
		// Lost the race; re-read and try once more.
	}
	return ErrConcurrentUpdate
}

type gormRepository struct {
	db *gorm.DB
}

func (r *gormRepository) GetOrCreateSettings(orgID uint) (*models.CalendarSyncSettings, error) {
	return models.GetOrCreateCalendarSyncSettings(r.db, orgID)
}

func (r *gormRepository) UpdateSettingsVersioned(orgID uint, lockVersion uint, cols map[string]interface{}) (bool, error) {
	updates := make(map[string]interface{}, len(cols)+1)
	for k, v := range cols {
		updates[k] = v
	}
	updates["lock_version"] = lockVersion + 1

	res := r.db.Model(&models.CalendarSyncSettings{}).
		Where("organization_id = ? AND lock_version = ?", orgID, lockVersion).
		Updates(updates)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}
