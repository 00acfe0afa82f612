package models

import (
	"crypto/sha256"
	"encoding/hex"
	"time"
)

// Organization is the tenant root. Every synced entity is scoped to one org.
type Organization struct {
	ID           uint      `gorm:"primaryKey" json:"id"`
	Name         string    `gorm:"type:varchar(200);not null" json:"name"`
	ContactEmail string    `gorm:"type:varchar(200);default:''" json:"contact_email"`
	Timezone     string    `gorm:"type:varchar(64);not null;default:'UTC'" json:"timezone"`
	APIKeyHash   string    `gorm:"type:varchar(64);default:'';index" json:"-"`
	CreatedAt    time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt    time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

// HashAPIKey returns the hex SHA-256 of a raw API key. Only the hash is
// stored.
func HashAPIKey(key string) string {
	sum := sha256.Sum256([]byte(key))
	return hex.EncodeToString(sum[:])
}

// Location resolves the org timezone, falling back to UTC for bad values.
func (o *Organization) Location() *time.Location {
	if o == nil || o.Timezone == "" {
		return time.UTC
	}
	loc, err := time.LoadLocation(o.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}
