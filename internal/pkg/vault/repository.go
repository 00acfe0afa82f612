package vault

import (
	"github.com/velora-app/velora/app/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Repository provides DB operations used by the vault service.
type Repository interface {
	GetCredential(orgID uint, provider string) (*models.IntegrationCredential, error)
	UpsertCredential(row *models.IntegrationCredential) error
	SaveCredential(row *models.IntegrationCredential) error
	DeleteCredential(orgID uint, provider string) error
}

type gormRepository struct {
	db *gorm.DB
}

// NewRepository creates a vault repository backed by GORM.
func NewRepository(db *gorm.DB) Repository {
	return &gormRepository{db: db}
}

func (r *gormRepository) GetCredential(orgID uint, provider string) (*models.IntegrationCredential, error) {
	var row models.IntegrationCredential
	err := r.db.Where("organization_id = ? AND provider = ?", orgID, provider).First(&row).Error
	if err != nil {
		return nil, err
	}
	return &row, nil
}

func (r *gormRepository) UpsertCredential(row *models.IntegrationCredential) error {
	if err := r.db.Clauses(clause.OnConflict{
		Columns: []clause.Column{
			{Name: "organization_id"},
			{Name: "provider"},
		},
		DoUpdates: clause.AssignmentColumns([]string{
			"account_email",
			"access_token",
			"refresh_token",
			"token_expires_at",
			"updated_at",
		}),
	}).Create(row).Error; err != nil {
		return err
	}

	// Ensure ID is populated after upsert.
	return r.db.Where("organization_id = ? AND provider = ?", row.OrganizationID, row.Provider).
		First(row).Error
}

func (r *gormRepository) SaveCredential(row *models.IntegrationCredential) error {
	return r.db.Save(row).Error
}

func (r *gormRepository) DeleteCredential(orgID uint, provider string) error {
	return r.db.Where("organization_id = ? AND provider = ?", orgID, provider).
		Delete(&models.IntegrationCredential{}).Error
}
