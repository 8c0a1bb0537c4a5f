package dmssync

import (
	"context"
	"strings"
	"time"

	"github.com/vhclabs/vhc_backend/models"
)

// healthCheckExists reports whether a health check already exists for this
// booking's idempotency anchor. Soft-deleted checks do not count; a deleted
// check may legitimately be re-imported.
func (e *Engine) healthCheckExists(ctx context.Context, orgId, source, externalId string) (bool, error) {
	var count int64
	err := e.db.WithContext(ctx).Model(&models.HealthCheck{}).
		Where("organization_id = ? AND external_source = ? AND external_id = ?", orgId, source, externalId).
		Count(&count).Error
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

// createHealthCheck materializes one booking into a health check on the run's
// template. A booking with no usable time still gets a check; PromiseTime is
// simply left null.
func (e *Engine) createHealthCheck(ctx context.Context, cfg *runConfig, run *models.ImportRun, b *ExternalBooking, customer *models.Customer, vehicle *models.Vehicle) (*models.HealthCheck, error) {
	check := models.HealthCheck{
		OrganizationId: cfg.Org.ID.String(),
		SiteId:         run.SiteId,
		CustomerId:     customer.ID,
		VehicleId:      vehicle.ID,
		TemplateId:     cfg.Template.ID,
		ExternalSource: cfg.Conn.Provider,
		ExternalId:     strings.TrimSpace(b.BookingId),
		ImportBatchId:  run.ID,
		Status:         models.HealthCheckStatusCreated,
		PromiseTime:    parsePromiseTime(b.Date, b.Time),
		Notes:          strings.TrimSpace(b.Description),
	}
	if b.Mileage > 0 {
		mileage := b.Mileage
		check.MileageIn = &mileage
	}

	if err := e.db.WithContext(ctx).Create(&check).Error; err != nil {
		return nil, &EntityCreationError{Entity: "health check", Err: err}
	}
	return &check, nil
}

// parsePromiseTime combines the booking date and time into a promise time.
// Anything unparseable yields nil; a bad clock string never fails a booking.
func parsePromiseTime(date, clock string) *time.Time {
	date = strings.TrimSpace(date)
	clock = strings.TrimSpace(clock)
	if date == "" || clock == "" {
		return nil
	}
	for _, layout := range []string{"2006-01-02 15:04:05", "2006-01-02 15:04"} {
		if t, err := time.Parse(layout, date+" "+clock); err == nil {
			return &t
		}
	}
	return nil
}
