package models

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/vhclabs/vhc_backend/config"
)

// Organization is the tenant: a dealer group or independent workshop chain.
// Import settings and the last-import cache live here so the admin dashboard
// can show sync health without touching import_runs.
type Organization struct {
	ID                    uuid.UUID       `gorm:"type:char(36);primary_key" json:"id"`
	Name                  string          `gorm:"size:100;not null" json:"name" binding:"required"`
	Email                 string          `gorm:"size:100" json:"email"`
	Phone                 string          `gorm:"size:20" json:"phone"`
	DefaultTemplateId     int             `gorm:"default:0" json:"default_template_id"`
	ServiceTypeFilterJSON []byte          `gorm:"type:json" json:"service_type_filter"`
	ImportUsageRate       decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"import_usage_rate"`
	LastImportAt          *time.Time      `json:"last_import_at"`
	LastImportStatus      string          `gorm:"size:20" json:"last_import_status"`
	LastImportError       string          `gorm:"type:text" json:"last_import_error"`
	IsActive              *bool           `gorm:"not null;default:true" json:"is_active"`
	CreatedAt             time.Time       `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt             time.Time       `gorm:"autoUpdateTime" json:"updated_at"`
}

type NewOrganization struct {
	Name  string `json:"name" binding:"required"`
	Email string `json:"email"`
	Phone string `json:"phone"`
}

func CreateOrganization(ctx context.Context, input *NewOrganization) (*Organization, error) {
	db := config.GetDB()
	if db == nil {
		return nil, errors.New("db is nil")
	}

	org := Organization{
		ID:    uuid.New(),
		Name:  input.Name,
		Email: input.Email,
		Phone: input.Phone,
	}
	if err := db.WithContext(ctx).Create(&org).Error; err != nil {
		return nil, err
	}
	return &org, nil
}

func GetOrganizationById(ctx context.Context, id string) (*Organization, error) {
	db := config.GetDB()
	if db == nil {
		return nil, errors.New("db is nil")
	}

	var org Organization
	if err := db.WithContext(ctx).Where("id = ?", id).Take(&org).Error; err != nil {
		return nil, err
	}
	return &org, nil
}

// ServiceTypeFilter decodes the configured DMS service-type filter.
// An empty or malformed value means "no filter".
func (o *Organization) ServiceTypeFilter() []string {
	if len(o.ServiceTypeFilterJSON) == 0 {
		return nil
	}
	var types []string
	if err := json.Unmarshal(o.ServiceTypeFilterJSON, &types); err != nil {
		return nil
	}
	return types
}

func EncodeServiceTypeFilter(types []string) []byte {
	if len(types) == 0 {
		return nil
	}
	b, _ := json.Marshal(types)
	return b
}
