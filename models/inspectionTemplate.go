package models

import "time"

// InspectionTemplate defines the checklist a health check is carried out
// against. Every health check the importer creates references one.
type InspectionTemplate struct {
	ID             int       `gorm:"primary_key" json:"id"`
	OrganizationId string    `gorm:"index;not null" json:"organization_id"`
	Name           string    `gorm:"size:100;not null" json:"name" binding:"required"`
	SectionsJSON   []byte    `gorm:"type:json" json:"sections"`
	IsActive       *bool     `gorm:"not null;default:true" json:"is_active"`
	CreatedAt      time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt      time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}
