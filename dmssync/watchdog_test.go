package dmssync

import (
	"context"
	"testing"
	"time"

	"github.com/vhclabs/vhc_backend/models"
)

func TestSweepStaleRunsFailsOldRunningRuns(t *testing.T) {
	db := newTestDB(t)
	e := newTestEngine(t, db, &fakeAdapter{})
	org := seedOrganization(t, db)

	stale := models.ImportRun{
		OrganizationId: org.ID.String(),
		ImportType:     models.ImportTypeScheduled,
		ImportDate:     "2026-08-27",
		Status:         models.ImportRunStatusRunning,
		StartedAt:      time.Now().Add(-2 * time.Hour),
	}
	if err := db.Create(&stale).Error; err != nil {
		t.Fatalf("seed stale run: %v", err)
	}
	fresh := models.ImportRun{
		OrganizationId: org.ID.String(),
		ImportType:     models.ImportTypeManual,
		ImportDate:     "2026-08-28",
		Status:         models.ImportRunStatusRunning,
		StartedAt:      time.Now().Add(-5 * time.Minute),
	}
	if err := db.Create(&fresh).Error; err != nil {
		t.Fatalf("seed fresh run: %v", err)
	}

	swept, err := e.SweepStaleRuns(context.Background(), time.Hour)
	if err != nil {
		t.Fatalf("SweepStaleRuns: %v", err)
	}
	if swept != 1 {
		t.Fatalf("swept = %d, want 1", swept)
	}

	var staleAfter, freshAfter models.ImportRun
	if err := db.First(&staleAfter, stale.ID).Error; err != nil {
		t.Fatalf("load stale run: %v", err)
	}
	if staleAfter.Status != models.ImportRunStatusFailed || staleAfter.CompletedAt == nil {
		t.Fatalf("stale run not failed: status=%q completed_at=%v", staleAfter.Status, staleAfter.CompletedAt)
	}
	errs := models.DecodeImportRunErrors(staleAfter.ErrorsJSON)
	if len(errs) != 1 || errs[0].BookingId != "system" {
		t.Fatalf("stale run errors = %+v", errs)
	}
	if err := db.First(&freshAfter, fresh.ID).Error; err != nil {
		t.Fatalf("load fresh run: %v", err)
	}
	if freshAfter.Status != models.ImportRunStatusRunning {
		t.Fatalf("fresh run status = %q, want running", freshAfter.Status)
	}
}

func TestSweepStaleRunsLeavesFinishedRunsAlone(t *testing.T) {
	db := newTestDB(t)
	e := newTestEngine(t, db, &fakeAdapter{})
	org := seedOrganization(t, db)

	now := time.Now()
	finished := models.ImportRun{
		OrganizationId: org.ID.String(),
		ImportType:     models.ImportTypeManual,
		ImportDate:     "2026-08-27",
		Status:         models.ImportRunStatusCompleted,
		StartedAt:      now.Add(-3 * time.Hour),
		CompletedAt:    &now,
	}
	if err := db.Create(&finished).Error; err != nil {
		t.Fatalf("seed finished run: %v", err)
	}

	swept, err := e.SweepStaleRuns(context.Background(), time.Hour)
	if err != nil {
		t.Fatalf("SweepStaleRuns: %v", err)
	}
	if swept != 0 {
		t.Fatalf("swept = %d, want 0", swept)
	}

	var after models.ImportRun
	if err := db.First(&after, finished.ID).Error; err != nil {
		t.Fatalf("load run: %v", err)
	}
	if after.Status != models.ImportRunStatusCompleted {
		t.Fatalf("finished run status flipped to %q", after.Status)
	}
}

func TestStaleRunThresholdDefaultsAndOverrides(t *testing.T) {
	t.Setenv("IMPORT_RUN_STALE_AFTER_MINUTES", "")
	if got := StaleRunThreshold(); got != time.Hour {
		t.Fatalf("default threshold = %v, want 1h", got)
	}
	t.Setenv("IMPORT_RUN_STALE_AFTER_MINUTES", "15")
	if got := StaleRunThreshold(); got != 15*time.Minute {
		t.Fatalf("threshold = %v, want 15m", got)
	}
	t.Setenv("IMPORT_RUN_STALE_AFTER_MINUTES", "nope")
	if got := StaleRunThreshold(); got != time.Hour {
		t.Fatalf("threshold with bad value = %v, want 1h", got)
	}
}
