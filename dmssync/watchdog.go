package dmssync

import (
	"context"
	"os"
	"strconv"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/vhclabs/vhc_backend/config"
	"github.com/vhclabs/vhc_backend/models"
)

// SweepStaleRuns fails runs that have been running longer than olderThan.
// A crashed worker leaves its run in running forever otherwise, which blocks
// the dashboard and confuses retry decisions. Returns the number of runs
// marked failed.
func (e *Engine) SweepStaleRuns(ctx context.Context, olderThan time.Duration) (int, error) {
	cutoff := time.Now().Add(-olderThan)

	var stale []models.ImportRun
	err := e.db.WithContext(ctx).
		Where("status = ? AND started_at < ?", models.ImportRunStatusRunning, cutoff).
		Find(&stale).Error
	if err != nil {
		return 0, err
	}

	swept := 0
	for i := range stale {
		run := &stale[i]
		now := time.Now()

		errs := models.DecodeImportRunErrors(run.ErrorsJSON)
		errs = append(errs, models.ImportRunError{
			BookingId: "system",
			Message:   "run exceeded the stale threshold and was marked failed",
		})

		res := e.db.WithContext(ctx).Model(&models.ImportRun{}).
			Where("id = ? AND status = ?", run.ID, models.ImportRunStatusRunning).
			Updates(map[string]interface{}{
				"status":       models.ImportRunStatusFailed,
				"errors_json":  models.EncodeImportRunErrors(errs),
				"completed_at": &now,
			})
		if res.Error != nil {
			e.logger.WithError(res.Error).WithField("run_id", run.ID).Error("failed to mark stale run")
			continue
		}
		if res.RowsAffected == 0 {
			// finalized between the select and the update, leave it alone
			continue
		}

		e.updateOrganizationImportCache(ctx, run.OrganizationId, &now, models.ImportRunStatusFailed, "import run timed out")
		e.logger.WithFields(logrus.Fields{
			"module":          "dmssync",
			"run_id":          run.ID,
			"organization_id": run.OrganizationId,
			"started_at":      run.StartedAt,
		}).Warn("stale import run marked failed")
		swept++
	}
	return swept, nil
}

// StaleRunThreshold reads IMPORT_RUN_STALE_AFTER_MINUTES, default 60.
func StaleRunThreshold() time.Duration {
	minutes := 60
	if v := os.Getenv("IMPORT_RUN_STALE_AFTER_MINUTES"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			minutes = n
		}
	}
	return time.Duration(minutes) * time.Minute
}

// StartWatchdog sweeps stale runs on a ticker until ctx is cancelled.
func (e *Engine) StartWatchdog(ctx context.Context, interval time.Duration) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if _, err := e.SweepStaleRuns(ctx, StaleRunThreshold()); err != nil {
					config.LogError(e.logger, "dmssync", "StartWatchdog", "sweep stale runs", nil, err)
				}
			}
		}
	}()
}
