package models

import (
	"time"

	"gorm.io/gorm"
)

const (
	HealthCheckStatusCreated   = "created"
	HealthCheckStatusInspected = "inspected"
	HealthCheckStatusQuoted    = "quoted"
	HealthCheckStatusClosed    = "closed"
)

// HealthCheck is one inspection job. (organization_id, external_source,
// external_id) is the idempotency anchor for imported checks: the importer
// never creates two rows for the same DMS booking.
type HealthCheck struct {
	ID             int            `gorm:"primary_key" json:"id"`
	OrganizationId string         `gorm:"index:idx_health_check_external,priority:1;not null" json:"organization_id"`
	SiteId         *int           `gorm:"index" json:"site_id"`
	CustomerId     int            `gorm:"index;not null" json:"customer_id"`
	VehicleId      int            `gorm:"index;not null" json:"vehicle_id"`
	TemplateId     int            `gorm:"not null" json:"template_id"`
	ExternalSource string         `gorm:"index:idx_health_check_external,priority:2;size:50" json:"external_source"`
	ExternalId     string         `gorm:"index:idx_health_check_external,priority:3;size:128" json:"external_id"`
	ImportBatchId  uint           `gorm:"index" json:"import_batch_id"`
	Status         string         `gorm:"size:20;not null;default:created" json:"status"`
	MileageIn      *int           `json:"mileage_in"`
	PromiseTime    *time.Time     `json:"promise_time"`
	Notes          string         `gorm:"type:text" json:"notes"`
	DeletedAt      gorm.DeletedAt `gorm:"index" json:"deleted_at"`
	CreatedAt      time.Time      `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt      time.Time      `gorm:"autoUpdateTime" json:"updated_at"`
}
