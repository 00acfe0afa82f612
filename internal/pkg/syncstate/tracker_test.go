package syncstate

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/velora-app/velora/app/models"
)

// fakeRepo simulates versioned writes. contendFor makes the first N update
// attempts lose the optimistic lock, as if another writer bumped the row in
// between the read and the update.
type fakeRepo struct {
	settings   map[uint]*models.CalendarSyncSettings
	contendFor int
	updates    int
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{settings: make(map[uint]*models.CalendarSyncSettings)}
}

func (r *fakeRepo) GetOrCreateSettings(orgID uint) (*models.CalendarSyncSettings, error) {
	if s, ok := r.settings[orgID]; ok {
		cp := *s
		return &cp, nil
	}
	s := &models.CalendarSyncSettings{OrganizationID: orgID}
	r.settings[orgID] = s
	cp := *s
	return &cp, nil
}

func (r *fakeRepo) UpdateSettingsVersioned(orgID uint, lockVersion uint, cols map[string]interface{}) (bool, error) {
	r.updates++
	if r.contendFor > 0 {
		r.contendFor--
		r.settings[orgID].LockVersion++
		return false, nil
	}
	s := r.settings[orgID]
	if s.LockVersion != lockVersion {
		return false, nil
	}
	s.LockVersion = lockVersion + 1
	for col, v := range cols {
		switch col {
		case "last_sync_at":
			at := v.(time.Time)
			s.LastSyncAt = &at
		case "last_sync_error":
			s.LastSyncError = v.(string)
		case "last_webhook_error":
			s.LastWebhookError = v.(string)
		case "connected":
			s.Connected = v.(bool)
		case "sync_enabled":
			s.SyncEnabled = v.(bool)
		case "calendar_id":
			s.CalendarID = v.(string)
		}
	}
	return true, nil
}

func TestTrackerRecordsSuccessAndClearsError(t *testing.T) {
	repo := newFakeRepo()
	tr := NewTracker(repo)

	assert.NoError(t, tr.RecordSyncError(1, "calendar list: timeout"))
	at := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	assert.NoError(t, tr.RecordSyncSuccess(1, at))

	s, err := tr.Settings(1)
	assert.NoError(t, err)
	assert.Empty(t, s.LastSyncError)
	if assert.NotNil(t, s.LastSyncAt) {
		assert.Equal(t, at, *s.LastSyncAt)
	}
}

func TestTrackerRetriesLostOptimisticLock(t *testing.T) {
	repo := newFakeRepo()
	repo.contendFor = 1
	tr := NewTracker(repo)

	assert.NoError(t, tr.SetCalendar(1, "primary"))
	assert.Equal(t, 2, repo.updates, "lost first attempt must be retried once")
	s, _ := tr.Settings(1)
	assert.Equal(t, "primary", s.CalendarID)
}

func TestTrackerGivesUpAfterRetryBudget(t *testing.T) {
	repo := newFakeRepo()
	repo.contendFor = 2
	tr := NewTracker(repo)

	err := tr.RecordWebhookError(1, "reconcile failed")
	assert.ErrorIs(t, err, ErrConcurrentUpdate)
}

func TestTrackerConnectDisconnectFlags(t *testing.T) {
	repo := newFakeRepo()
	tr := NewTracker(repo)

	assert.NoError(t, tr.MarkConnected(1))
	s, _ := tr.Settings(1)
	assert.True(t, s.Connected)
	assert.True(t, s.SyncEnabled)

	assert.NoError(t, tr.MarkDisconnected(1))
	s, _ = tr.Settings(1)
	assert.False(t, s.Connected)
	assert.False(t, s.SyncEnabled)
}
