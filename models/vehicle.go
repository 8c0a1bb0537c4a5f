package models

import "time"

// Vehicle belongs to a customer within one organization. Registration is
// stored upper-cased with whitespace stripped; VIN is stored upper-cased.
type Vehicle struct {
	ID             int       `gorm:"primary_key" json:"id"`
	OrganizationId string    `gorm:"index;not null" json:"organization_id"`
	CustomerId     int       `gorm:"index;not null" json:"customer_id"`
	ExternalId     string    `gorm:"index;size:128" json:"external_id"`
	ExternalSource string    `gorm:"size:50" json:"external_source"`
	Registration   string    `gorm:"index;size:20" json:"registration"`
	Vin            string    `gorm:"size:32" json:"vin"`
	Make           string    `gorm:"size:50" json:"make"`
	Model          string    `gorm:"size:50" json:"model"`
	Year           int       `gorm:"default:0" json:"year"`
	Color          string    `gorm:"size:30" json:"color"`
	FuelType       string    `gorm:"size:20" json:"fuel_type"`
	Mileage        int       `gorm:"default:0" json:"mileage"`
	CreatedAt      time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt      time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}
