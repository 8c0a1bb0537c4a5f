package models

import "time"

const (
	DmsStatusConnected    = "connected"
	DmsStatusDisconnected = "disconnected"
	DmsStatusError        = "error"
)

// DmsConnection links an organization to its dealership-management system.
// AuthSecretRef holds the API key, AES-GCM encrypted when DMS_CREDENTIALS_KEY
// is configured.
type DmsConnection struct {
	ID                  uint       `gorm:"primary_key" json:"id"`
	OrganizationId      string     `gorm:"index;not null" json:"organization_id"`
	Provider            string     `gorm:"index;size:50;not null" json:"provider"`
	Status              string     `gorm:"size:20;not null" json:"status"`
	AuthType            string     `gorm:"size:20" json:"auth_type"`
	AuthSecretRef       string     `gorm:"type:text" json:"-"`
	DealerRef           string     `gorm:"size:100" json:"dealer_ref"`
	DealerName          string     `gorm:"size:255" json:"dealer_name"`
	LastImportAt        *time.Time `json:"last_import_at"`
	LastSuccessImportAt *time.Time `json:"last_success_import_at"`
	CreatedAt           time.Time  `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt           time.Time  `gorm:"autoUpdateTime" json:"updated_at"`
}
