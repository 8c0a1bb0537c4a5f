package dmssync

import (
	"context"
	"errors"
	"strings"

	"github.com/vhclabs/vhc_backend/models"
	"github.com/vhclabs/vhc_backend/utils"
	"gorm.io/gorm"
)

// runConfig is the effective configuration for one import run: decrypted
// credentials plus the template and service-type filter bookings map onto.
type runConfig struct {
	Org          *models.Organization
	Conn         *models.DmsConnection
	Creds        Credentials
	Template     *models.InspectionTemplate
	ServiceTypes []string
}

// resolveRunConfig is the only resolver whose failure is run-fatal. Every
// error it returns is a *ConfigurationError.
func (e *Engine) resolveRunConfig(ctx context.Context, organizationId string) (*runConfig, error) {
	var org models.Organization
	if err := e.db.WithContext(ctx).Where("id = ?", organizationId).Take(&org).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, &ConfigurationError{Reason: "organization not found"}
		}
		return nil, &ConfigurationError{Reason: "failed to load organization: " + err.Error()}
	}

	var conn models.DmsConnection
	err := e.db.WithContext(ctx).
		Where("organization_id = ? AND status = ?", organizationId, models.DmsStatusConnected).
		Take(&conn).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, &ConfigurationError{Reason: "dms is not connected for this organization"}
		}
		return nil, &ConfigurationError{Reason: "failed to load dms connection: " + err.Error()}
	}

	apiKey, err := utils.DecryptSecret(conn.AuthSecretRef)
	if err != nil {
		return nil, &ConfigurationError{Reason: "failed to decrypt dms credentials: " + err.Error()}
	}
	if strings.TrimSpace(apiKey) == "" {
		return nil, &ConfigurationError{Reason: "dms api key is empty"}
	}

	template, err := e.resolveTemplate(ctx, &org)
	if err != nil {
		return nil, err
	}

	return &runConfig{
		Org:          &org,
		Conn:         &conn,
		Creds:        Credentials{APIKey: apiKey, DealerRef: conn.DealerRef},
		Template:     template,
		ServiceTypes: org.ServiceTypeFilter(),
	}, nil
}

// resolveTemplate picks the organization's configured default template when it
// is still active, otherwise the oldest active template. No active template at
// all means no health check can be created for any booking.
func (e *Engine) resolveTemplate(ctx context.Context, org *models.Organization) (*models.InspectionTemplate, error) {
	if org.DefaultTemplateId > 0 {
		var template models.InspectionTemplate
		err := e.db.WithContext(ctx).
			Where("id = ? AND organization_id = ? AND is_active = ?", org.DefaultTemplateId, org.ID.String(), true).
			Take(&template).Error
		if err == nil {
			return &template, nil
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, &ConfigurationError{Reason: "failed to load default template: " + err.Error()}
		}
	}

	var template models.InspectionTemplate
	err := e.db.WithContext(ctx).
		Where("organization_id = ? AND is_active = ?", org.ID.String(), true).
		Order("id asc").
		First(&template).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, &ConfigurationError{Reason: "no active inspection template for this organization"}
		}
		return nil, &ConfigurationError{Reason: "failed to load inspection template: " + err.Error()}
	}
	return &template, nil
}
