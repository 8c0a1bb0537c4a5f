package dmssync

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/bsm/redislock"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"github.com/vhclabs/vhc_backend/config"
	"github.com/vhclabs/vhc_backend/models"
	"gorm.io/gorm"
)

// Engine runs booking imports. One engine is safe for concurrent runs across
// organizations; concurrent runs for the same (organization, date) are
// serialized by a redis lock.
type Engine struct {
	db      *gorm.DB
	logger  *logrus.Logger
	adapter BookingAdapter
	locker  *redislock.Client
}

func NewEngine(db *gorm.DB, logger *logrus.Logger, adapter BookingAdapter, locker *redislock.Client) *Engine {
	return &Engine{
		db:      db,
		logger:  logger,
		adapter: adapter,
		locker:  locker,
	}
}

const importLockTTL = 10 * time.Minute

func importLockKey(organizationId, date string) string {
	return "dms-import:" + organizationId + ":" + date
}

// RunImport executes one import run end to end and returns the final result.
// A Go error is returned only when the run record itself could not be
// created or read; every run-level failure is recorded on the run and comes
// back as a result with status=failed.
func (e *Engine) RunImport(ctx context.Context, params ImportParams) (*ImportResult, error) {
	if strings.TrimSpace(params.OrganizationId) == "" {
		return nil, errors.New("organization id is required")
	}
	if params.Date == "" {
		params.Date = time.Now().Format("2006-01-02")
	}
	if _, err := time.Parse("2006-01-02", params.Date); err != nil {
		return nil, errors.New("date must be YYYY-MM-DD")
	}
	if params.ImportType == "" {
		params.ImportType = models.ImportTypeManual
	}

	run := models.ImportRun{
		OrganizationId: params.OrganizationId,
		SiteId:         params.SiteId,
		ImportType:     params.ImportType,
		ImportDate:     params.Date,
		Status:         models.ImportRunStatusRunning,
		TriggeredBy:    params.TriggeredBy,
		StartedAt:      time.Now(),
	}
	if err := e.db.WithContext(ctx).Create(&run).Error; err != nil {
		return nil, err
	}

	log := e.logger.WithFields(logrus.Fields{
		"module":          "dmssync",
		"run_id":          run.ID,
		"organization_id": params.OrganizationId,
		"import_date":     params.Date,
		"import_type":     params.ImportType,
	})
	log.Info("import run started")

	cfg, err := e.resolveRunConfig(ctx, params.OrganizationId)
	if err != nil {
		return e.failRun(ctx, &run, err)
	}

	if e.locker != nil {
		lock, lockErr := e.locker.Obtain(ctx, importLockKey(params.OrganizationId, params.Date), importLockTTL, nil)
		if lockErr != nil {
			if errors.Is(lockErr, redislock.ErrNotObtained) {
				return e.failRun(ctx, &run, errors.New("another import for this organization and date is already running"))
			}
			log.WithError(lockErr).Warn("import lock unavailable, proceeding without it")
		} else {
			defer lock.Release(context.WithoutCancel(ctx))
		}
	}

	opts := FetchOptions{ServiceTypes: cfg.ServiceTypes}
	if params.SiteId != nil {
		var site models.Site
		err := e.db.WithContext(ctx).
			Where("id = ? AND organization_id = ?", *params.SiteId, params.OrganizationId).
			Take(&site).Error
		if err != nil {
			return e.failRun(ctx, &run, &ConfigurationError{Reason: "site not found"})
		}
		opts.SiteRef = site.ExternalSiteRef
	}

	fetched := e.adapter.FetchBookings(ctx, cfg.Creds, params.Date, opts)
	if !fetched.Success {
		return e.failRun(ctx, &run, &AdapterError{Message: fetched.Error})
	}

	run.BookingsFound = len(fetched.Bookings)
	log.WithField("bookings_found", run.BookingsFound).Info("bookings fetched")

	state := resolveState{}
	var runErrors []models.ImportRunError

	for i := range fetched.Bookings {
		b := &fetched.Bookings[i]

		if skipBookingStatus(b.Status) {
			run.BookingsSkipped++
			continue
		}

		exists, err := e.healthCheckExists(ctx, params.OrganizationId, cfg.Conn.Provider, strings.TrimSpace(b.BookingId))
		if err != nil {
			runErrors = append(runErrors, models.ImportRunError{BookingId: b.BookingId, Message: err.Error()})
			run.BookingsFailed++
			continue
		}
		if exists {
			run.BookingsSkipped++
			continue
		}

		customer, err := e.resolveCustomer(ctx, cfg, b, &state)
		if err != nil {
			log.WithError(err).WithField("booking_id", b.BookingId).Warn("booking failed")
			runErrors = append(runErrors, models.ImportRunError{BookingId: b.BookingId, Message: err.Error()})
			run.BookingsFailed++
			continue
		}

		vehicle, err := e.resolveVehicle(ctx, cfg, b, customer, &state)
		if err != nil {
			log.WithError(err).WithField("booking_id", b.BookingId).Warn("booking failed")
			runErrors = append(runErrors, models.ImportRunError{BookingId: b.BookingId, Message: err.Error()})
			run.BookingsFailed++
			continue
		}

		if _, err := e.createHealthCheck(ctx, cfg, &run, b, customer, vehicle); err != nil {
			log.WithError(err).WithField("booking_id", b.BookingId).Warn("booking failed")
			runErrors = append(runErrors, models.ImportRunError{BookingId: b.BookingId, Message: err.Error()})
			run.BookingsFailed++
			continue
		}

		run.BookingsImported++
		run.HealthChecksCreated++
	}

	run.CustomersCreated = state.CustomersCreated
	run.VehiclesCreated = state.VehiclesCreated

	return e.finalizeRun(ctx, cfg, &run, runErrors)
}

// skipBookingStatus filters out bookings that no longer need a health check.
func skipBookingStatus(status string) bool {
	switch strings.ToLower(strings.TrimSpace(status)) {
	case "cancelled", "canceled", "completed":
		return true
	}
	return false
}

// failRun marks a still-running run as failed with a single system error.
// The guarded update keeps a run that was already finalized from flipping.
func (e *Engine) failRun(ctx context.Context, run *models.ImportRun, cause error) (*ImportResult, error) {
	now := time.Now()
	errs := []models.ImportRunError{{BookingId: "system", Message: cause.Error()}}

	updates := map[string]interface{}{
		"status":       models.ImportRunStatusFailed,
		"errors_json":  models.EncodeImportRunErrors(errs),
		"completed_at": &now,
	}
	err := e.db.WithContext(ctx).Model(&models.ImportRun{}).
		Where("id = ? AND status = ?", run.ID, models.ImportRunStatusRunning).
		Updates(updates).Error
	if err != nil {
		e.logger.WithError(err).WithField("run_id", run.ID).Error("failed to finalize failed run")
	}

	run.Status = models.ImportRunStatusFailed
	run.CompletedAt = &now

	e.updateOrganizationImportCache(ctx, run.OrganizationId, &now, models.ImportRunStatusFailed, cause.Error())

	e.logger.WithFields(logrus.Fields{
		"module": "dmssync",
		"run_id": run.ID,
		"error":  cause.Error(),
	}).Error("import run failed")

	return resultFromRun(run, errs), nil
}

// finalizeRun derives the terminal status from the counters, persists it and
// refreshes the organization's last-import cache and the connection
// timestamps. Usage tracking is best effort and never fails the run.
func (e *Engine) finalizeRun(ctx context.Context, cfg *runConfig, run *models.ImportRun, runErrors []models.ImportRunError) (*ImportResult, error) {
	status := models.ImportRunStatusCompleted
	if run.BookingsFailed > 0 {
		status = models.ImportRunStatusPartial
	}
	now := time.Now()

	updates := map[string]interface{}{
		"status":                status,
		"bookings_found":        run.BookingsFound,
		"bookings_imported":     run.BookingsImported,
		"bookings_skipped":      run.BookingsSkipped,
		"bookings_failed":       run.BookingsFailed,
		"customers_created":     run.CustomersCreated,
		"vehicles_created":      run.VehiclesCreated,
		"health_checks_created": run.HealthChecksCreated,
		"errors_json":           models.EncodeImportRunErrors(runErrors),
		"completed_at":          &now,
	}
	err := e.db.WithContext(ctx).Model(&models.ImportRun{}).
		Where("id = ? AND status = ?", run.ID, models.ImportRunStatusRunning).
		Updates(updates).Error
	if err != nil {
		return nil, err
	}

	run.Status = status
	run.CompletedAt = &now

	lastError := ""
	if len(runErrors) > 0 {
		lastError = runErrors[0].Message
	}
	e.updateOrganizationImportCache(ctx, run.OrganizationId, &now, status, lastError)

	connUpdates := map[string]interface{}{"last_import_at": &now}
	if status == models.ImportRunStatusCompleted {
		connUpdates["last_success_import_at"] = &now
	}
	if err := e.db.WithContext(ctx).Model(&models.DmsConnection{}).
		Where("id = ?", cfg.Conn.ID).Updates(connUpdates).Error; err != nil {
		e.logger.WithError(err).Warn("failed to update dms connection timestamps")
	}

	if run.HealthChecksCreated > 0 {
		if err := e.trackUsage(ctx, cfg.Org, now, run.HealthChecksCreated); err != nil {
			e.logger.WithError(err).WithFields(logrus.Fields{
				"module":          "dmssync",
				"organization_id": run.OrganizationId,
			}).Warn("failed to track import usage")
		}
	}

	e.logger.WithFields(logrus.Fields{
		"module":                "dmssync",
		"run_id":                run.ID,
		"status":                status,
		"bookings_found":        run.BookingsFound,
		"bookings_imported":     run.BookingsImported,
		"bookings_skipped":      run.BookingsSkipped,
		"bookings_failed":       run.BookingsFailed,
		"health_checks_created": run.HealthChecksCreated,
	}).Info("import run finished")

	return resultFromRun(run, runErrors), nil
}

func (e *Engine) updateOrganizationImportCache(ctx context.Context, organizationId string, at *time.Time, status, lastError string) {
	err := e.db.WithContext(ctx).Model(&models.Organization{}).
		Where("id = ?", organizationId).
		Updates(map[string]interface{}{
			"last_import_at":     at,
			"last_import_status": status,
			"last_import_error":  lastError,
		}).Error
	if err != nil {
		e.logger.WithError(err).WithField("organization_id", organizationId).Warn("failed to update organization import cache")
	}
}

// trackUsage increments the organization's billing bucket for the month the
// run finished in. The redis counter feeds the live dashboard; the row is
// the source of truth.
func (e *Engine) trackUsage(ctx context.Context, org *models.Organization, at time.Time, count int) error {
	periodKey := models.BillingPeriodKey(at)
	delta := org.ImportUsageRate.Mul(decimal.NewFromInt(int64(count)))

	var usage models.BillingUsage
	err := e.db.WithContext(ctx).
		Where("organization_id = ? AND period_key = ?", org.ID.String(), periodKey).
		Take(&usage).Error
	if err != nil {
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return err
		}
		usage = models.BillingUsage{
			OrganizationId:       org.ID.String(),
			PeriodKey:            periodKey,
			HealthChecksImported: count,
			Amount:               delta,
		}
		if err := e.db.WithContext(ctx).Create(&usage).Error; err != nil {
			return err
		}
	} else {
		err = e.db.WithContext(ctx).Model(&usage).Updates(map[string]interface{}{
			"health_checks_imported": gorm.Expr("health_checks_imported + ?", count),
			"amount":                 gorm.Expr("amount + ?", delta),
		}).Error
		if err != nil {
			return err
		}
	}

	if _, err := config.GetRedisCounter(ctx, "ImportRuns:"+org.ID.String()+":"+periodKey); err != nil {
		e.logger.WithError(err).Debug("import run counter unavailable")
	}
	return nil
}

func resultFromRun(run *models.ImportRun, errs []models.ImportRunError) *ImportResult {
	return &ImportResult{
		RunId:               run.ID,
		Status:              run.Status,
		BookingsFound:       run.BookingsFound,
		BookingsImported:    run.BookingsImported,
		BookingsSkipped:     run.BookingsSkipped,
		BookingsFailed:      run.BookingsFailed,
		CustomersCreated:    run.CustomersCreated,
		VehiclesCreated:     run.VehiclesCreated,
		HealthChecksCreated: run.HealthChecksCreated,
		Errors:              errs,
	}
}
