package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// BillingUsage accumulates imported-check counts per billing period.
// Increments are best-effort: a failed write never affects an import run.
type BillingUsage struct {
	ID                   uint            `gorm:"primary_key" json:"id"`
	OrganizationId       string          `gorm:"uniqueIndex:idx_billing_usage_period,priority:1;not null" json:"organization_id"`
	PeriodKey            string          `gorm:"uniqueIndex:idx_billing_usage_period,priority:2;size:7;not null" json:"period_key"`
	HealthChecksImported int             `json:"health_checks_imported"`
	Amount               decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"amount"`
	CreatedAt            time.Time       `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt            time.Time       `gorm:"autoUpdateTime" json:"updated_at"`
}

// BillingPeriodKey is the usage bucket for a point in time, e.g. "2026-08".
func BillingPeriodKey(t time.Time) string {
	return t.UTC().Format("2006-01")
}
