package models

import "time"

// Calendar provider constants used across sync-related models.
const (
	CalendarProviderGoogle = "google"
)

// IntegrationCredential stores an org's OAuth grant for an external provider.
// Mutated only by the vault package, on connect or token refresh.
type IntegrationCredential struct {
	ID             uint       `gorm:"primaryKey" json:"id"`
	OrganizationID uint       `gorm:"not null;index:ux_integration_credentials_org_provider,unique,priority:1" json:"organization_id"`
	Provider       string     `gorm:"type:varchar(20);not null;index:ux_integration_credentials_org_provider,unique,priority:2" json:"provider"`
	AccountEmail   string     `gorm:"type:varchar(200);default:''" json:"account_email"`
	AccessToken    string     `gorm:"type:text" json:"-"`
	RefreshToken   string     `gorm:"type:text" json:"-"`
	TokenExpiresAt *time.Time `gorm:"type:timestamp;default:null" json:"token_expires_at,omitempty"`
	CreatedAt      time.Time  `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt      time.Time  `gorm:"autoUpdateTime" json:"updated_at"`
}
