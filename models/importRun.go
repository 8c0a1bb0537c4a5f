package models

import (
	"encoding/json"
	"time"
)

const (
	DmsProviderDefault = "dms"
)

const (
	ImportRunStatusRunning   = "running"
	ImportRunStatusCompleted = "completed"
	ImportRunStatusPartial   = "partial"
	ImportRunStatusFailed    = "failed"
)

const (
	ImportTypeManual    = "manual"
	ImportTypeScheduled = "scheduled"
	ImportTypeTest      = "test"
)

// ImportRun is the audit record for one execution of the booking import for
// one organization and date. It is created with status=running, finalized
// exactly once, and never mutated afterwards.
type ImportRun struct {
	ID                  uint       `gorm:"primary_key" json:"id"`
	OrganizationId      string     `gorm:"index;not null" json:"organization_id"`
	SiteId              *int       `gorm:"index" json:"site_id"`
	ImportType          string     `gorm:"size:20;not null" json:"import_type"`
	ImportDate          string     `gorm:"index;size:10;not null" json:"import_date"`
	Status              string     `gorm:"size:20;not null" json:"status"`
	BookingsFound       int        `json:"bookings_found"`
	BookingsImported    int        `json:"bookings_imported"`
	BookingsSkipped     int        `json:"bookings_skipped"`
	BookingsFailed      int        `json:"bookings_failed"`
	CustomersCreated    int        `json:"customers_created"`
	VehiclesCreated     int        `json:"vehicles_created"`
	HealthChecksCreated int        `json:"health_checks_created"`
	ErrorsJSON          []byte     `gorm:"type:json" json:"errors"`
	TriggeredBy         string     `gorm:"size:100" json:"triggered_by"`
	StartedAt           time.Time  `json:"started_at"`
	CompletedAt         *time.Time `json:"completed_at"`
	CreatedAt           time.Time  `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt           time.Time  `gorm:"autoUpdateTime" json:"updated_at"`
}

// ImportRunError is one booking-scoped failure recorded against a run.
// BookingId is "system" for run-fatal errors.
type ImportRunError struct {
	BookingId string `json:"booking_id"`
	Message   string `json:"message"`
}

func EncodeImportRunErrors(errs []ImportRunError) []byte {
	if len(errs) == 0 {
		return nil
	}
	b, _ := json.Marshal(errs)
	return b
}

func DecodeImportRunErrors(raw []byte) []ImportRunError {
	if len(raw) == 0 {
		return nil
	}
	var errs []ImportRunError
	if err := json.Unmarshal(raw, &errs); err != nil {
		return nil
	}
	return errs
}
