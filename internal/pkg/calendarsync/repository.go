package calendarsync

import (
	"gorm.io/gorm"

	"github.com/velora-app/velora/app/models"
)

type gormRepository struct {
	db *gorm.DB
}

// NewRepository returns the database-backed Repository.
func NewRepository(db *gorm.DB) Repository {
	return &gormRepository{db: db}
}

func (r *gormRepository) GetOrganization(orgID uint) (*models.Organization, error) {
	var org models.Organization
	if err := r.db.First(&org, orgID).Error; err != nil {
		return nil, err
	}
	return &org, nil
}

func (r *gormRepository) GetAppointment(orgID, appointmentID uint) (*models.Appointment, error) {
	var appt models.Appointment
	err := r.db.Where("id = ? AND organization_id = ?", appointmentID, orgID).First(&appt).Error
	if err != nil {
		return nil, err
	}
	return &appt, nil
}

func (r *gormRepository) FindAppointmentByRemoteEvent(orgID uint, provider, eventID string) (*models.Appointment, error) {
	var appt models.Appointment
	err := r.db.Where(
		"organization_id = ? AND external_provider = ? AND external_event_id = ?",
		orgID, provider, eventID,
	).First(&appt).Error
	if err != nil {
		return nil, err
	}
	return &appt, nil
}

func (r *gormRepository) CreateAppointment(appt *models.Appointment) error {
	return r.db.Create(appt).Error
}

func (r *gormRepository) SaveAppointment(appt *models.Appointment) error {
	return r.db.Save(appt).Error
}

func (r *gormRepository) ListSyncEnabledOrgs() ([]SyncTarget, error) {
	var rows []models.CalendarSyncSettings
	err := r.db.Where("connected = ? AND sync_enabled = ? AND calendar_id <> ''", true, true).
		Find(&rows).Error
	if err != nil {
		return nil, err
	}

	targets := make([]SyncTarget, 0, len(rows))
	for _, row := range rows {
		targets = append(targets, SyncTarget{
			OrganizationID: row.OrganizationID,
			CalendarID:     row.CalendarID,
		})
	}
	return targets, nil
}
