package models

import "time"

// Customer owns vehicles within one organization. Rows created by the import
// engine carry the DMS identity (ExternalSource/ExternalId); rows created by
// advisors in the app get it backfilled on the first import match.
type Customer struct {
	ID             int       `gorm:"primary_key" json:"id"`
	OrganizationId string    `gorm:"index;not null" json:"organization_id"`
	ExternalId     string    `gorm:"index;size:128" json:"external_id"`
	ExternalSource string    `gorm:"size:50" json:"external_source"`
	FirstName      string    `gorm:"size:100" json:"first_name"`
	LastName       string    `gorm:"size:100" json:"last_name"`
	Email          string    `gorm:"size:100" json:"email"`
	Mobile         string    `gorm:"size:20" json:"mobile"`
	CreatedAt      time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt      time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}
