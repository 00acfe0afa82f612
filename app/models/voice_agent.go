package models

import "time"

// Voice provider constants.
const (
	VoiceProviderRetell = "retell"
	VoiceProviderVapi   = "vapi"
)

// VoiceAgent is the trust anchor for inbound voice webhooks: one row per
// provider agent an org has registered, carrying the shared webhook secret.
//
// Secret rotation keeps the previous secret in place so deliveries signed
// with the old secret stay verifiable for a bounded grace window.
type VoiceAgent struct {
	ID             uint   `gorm:"primaryKey" json:"id"`
	OrganizationID uint   `gorm:"not null;index:ux_voice_agents_org_provider_agent,unique,priority:1" json:"organization_id"`
	Provider       string `gorm:"type:varchar(20);not null;index:ux_voice_agents_org_provider_agent,unique,priority:2" json:"provider"`
	AgentID        string `gorm:"type:varchar(191);not null;index:ux_voice_agents_org_provider_agent,unique,priority:3" json:"agent_id"`
	DisplayName    string `gorm:"type:varchar(200);default:''" json:"display_name"`
	IsActive       bool   `gorm:"default:true;index" json:"is_active"`

	Secret          string     `gorm:"type:varchar(255);not null" json:"-"`
	PreviousSecret  string     `gorm:"type:varchar(255);default:''" json:"-"`
	SecretRotatedAt *time.Time `gorm:"type:timestamp;default:null" json:"secret_rotated_at,omitempty"`

	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

// RotateSecret installs a new secret and preserves the old one for the
// verification grace window. Callers must persist the row afterwards.
func (a *VoiceAgent) RotateSecret(newSecret string) {
	now := time.Now()
	a.PreviousSecret = a.Secret
	a.Secret = newSecret
	a.SecretRotatedAt = &now
}
