package models

import "time"

// Site is one physical workshop location under an organization. Imports may
// be scoped to a site; a nil site means organization-wide.
type Site struct {
	ID              int       `gorm:"primary_key" json:"id"`
	OrganizationId  string    `gorm:"index;not null" json:"organization_id"`
	Name            string    `gorm:"size:100;not null" json:"name" binding:"required"`
	ExternalSiteRef string    `gorm:"size:50" json:"external_site_ref"`
	IsActive        *bool     `gorm:"not null;default:true" json:"is_active"`
	CreatedAt       time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt       time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}
