package voicehook

import (
	"context"
	"time"

	"github.com/velora-app/velora/app/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Repository provides DB operations used by the webhook service. Reconcile
// steps run against a TxRepository inside one transaction.
type Repository interface {
	GetActiveAgent(orgID uint, provider, agentID string) (*models.VoiceAgent, error)
	CreateWebhookEventIfNotExists(event *models.VoiceWebhookEvent) (bool, *models.VoiceWebhookEvent, error)
	MarkWebhookProcessed(id uint, processingError string) error
	InTransaction(ctx context.Context, fn func(tx TxRepository) error) error
}

// TxRepository is the slice of operations available inside a reconciliation
// transaction.
type TxRepository interface {
	FindCustomerByPhone(orgID uint, normalizedPhone string) (*models.Customer, error)
	CreateCustomer(c *models.Customer) error
	SaveCustomer(c *models.Customer) error
	GetAppointment(orgID, appointmentID uint) (*models.Appointment, error)
	SaveAppointment(a *models.Appointment) error
	UpsertCallLog(cl *models.CallLog) error
}

type gormRepository struct {
	db *gorm.DB
}

// NewRepository creates a webhook repository backed by GORM.
func NewRepository(db *gorm.DB) Repository {
	return &gormRepository{db: db}
}

func (r *gormRepository) GetActiveAgent(orgID uint, provider, agentID string) (*models.VoiceAgent, error) {
	var agent models.VoiceAgent
	err := r.db.
		Where("organization_id = ? AND provider = ? AND agent_id = ? AND is_active = ?", orgID, provider, agentID, true).
		First(&agent).Error
	if err != nil {
		return nil, err
	}
	return &agent, nil
}

func (r *gormRepository) CreateWebhookEventIfNotExists(event *models.VoiceWebhookEvent) (bool, *models.VoiceWebhookEvent, error) {
	tx := r.db.Clauses(clause.OnConflict{
		Columns: []clause.Column{
			{Name: "provider"},
			{Name: "provider_event_id"},
		},
		DoNothing: true,
	}).Create(event)
	if tx.Error != nil {
		return false, nil, tx.Error
	}

	created := tx.RowsAffected > 0
	var stored models.VoiceWebhookEvent
	if err := r.db.Where("provider = ? AND provider_event_id = ?", event.Provider, event.ProviderEventID).
		First(&stored).Error; err != nil {
		return false, nil, err
	}
	return created, &stored, nil
}

func (r *gormRepository) MarkWebhookProcessed(id uint, processingError string) error {
	now := time.Now()
	updates := map[string]interface{}{
		"processed_at":     &now,
		"processing_error": processingError,
	}
	return r.db.Model(&models.VoiceWebhookEvent{}).Where("id = ?", id).Updates(updates).Error
}

func (r *gormRepository) InTransaction(ctx context.Context, fn func(tx TxRepository) error) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&gormTxRepository{db: tx})
	})
}

type gormTxRepository struct {
	db *gorm.DB
}

func (r *gormTxRepository) FindCustomerByPhone(orgID uint, normalizedPhone string) (*models.Customer, error) {
	var c models.Customer
	err := r.db.Where("organization_id = ? AND phone = ?", orgID, normalizedPhone).First(&c).Error
	if err != nil {
		return nil, err
	}
	return &c, nil
}

func (r *gormTxRepository) CreateCustomer(c *models.Customer) error {
	return r.db.Create(c).Error
}

func (r *gormTxRepository) SaveCustomer(c *models.Customer) error {
	return r.db.Save(c).Error
}

func (r *gormTxRepository) GetAppointment(orgID, appointmentID uint) (*models.Appointment, error) {
	var a models.Appointment
	err := r.db.Where("id = ? AND organization_id = ?", appointmentID, orgID).First(&a).Error
	if err != nil {
		return nil, err
	}
	return &a, nil
}

func (r *gormTxRepository) SaveAppointment(a *models.Appointment) error {
	return r.db.Save(a).Error
}

// UpsertCallLog writes the call row idempotently, keyed by the unique
// (organization_id, provider, provider_call_id) index. A redelivery updates
// the existing row instead of duplicating it, which also makes concurrent
// duplicate deliveries safe (the constraint arbitrates, not check-then-insert).
func (r *gormTxRepository) UpsertCallLog(cl *models.CallLog) error {
	if err := r.db.Clauses(clause.OnConflict{
		Columns: []clause.Column{
			{Name: "organization_id"},
			{Name: "provider"},
			{Name: "provider_call_id"},
		},
		DoUpdates: clause.AssignmentColumns([]string{
			"agent_id",
			"customer_id",
			"appointment_id",
			"from_number",
			"to_number",
			"caller_name",
			"started_at",
			"ended_at",
			"duration_seconds",
			"outcome",
			"transcript",
			"recording_url",
			"summary",
			"raw_payload_json",
			"updated_at",
		}),
	}).Create(cl).Error; err != nil {
		return err
	}

	// Ensure ID is populated after upsert.
	return r.db.Where("organization_id = ? AND provider = ? AND provider_call_id = ?",
		cl.OrganizationID, cl.Provider, cl.ProviderCallID).First(cl).Error
}
