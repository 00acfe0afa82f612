package models

import "time"

// Customer is deduplicated per org by normalized phone number. Name and email
// are optional and may be filled in later by webhook events.
type Customer struct {
	ID             uint      `gorm:"primaryKey" json:"id"`
	OrganizationID uint      `gorm:"not null;index:ux_customers_org_phone,unique,priority:1" json:"organization_id"`
	Phone          string    `gorm:"type:varchar(32);not null;index:ux_customers_org_phone,unique,priority:2" json:"phone"`
	Name           string    `gorm:"type:varchar(200);default:''" json:"name"`
	Email          string    `gorm:"type:varchar(200);default:''" json:"email"`
	CreatedAt      time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt      time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}
