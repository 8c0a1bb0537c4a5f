package dmssync

import (
	"context"
	"testing"
	"time"

	"github.com/vhclabs/vhc_backend/models"
)

func TestHealthCheckExistsIgnoresSoftDeleted(t *testing.T) {
	db := newTestDB(t)
	e := newTestEngine(t, db, &fakeAdapter{})
	org := seedOrganization(t, db)
	cfg := testRunConfig(t, e, org)
	ctx := context.Background()

	customer := models.Customer{OrganizationId: org.ID.String(), FirstName: "Jo"}
	if err := db.Create(&customer).Error; err != nil {
		t.Fatalf("seed customer: %v", err)
	}
	vehicle := models.Vehicle{OrganizationId: org.ID.String(), CustomerId: customer.ID, Registration: "AB1CDE"}
	if err := db.Create(&vehicle).Error; err != nil {
		t.Fatalf("seed vehicle: %v", err)
	}
	check := models.HealthCheck{
		OrganizationId: org.ID.String(),
		CustomerId:     customer.ID,
		VehicleId:      vehicle.ID,
		TemplateId:     cfg.Template.ID,
		ExternalSource: models.DmsProviderDefault,
		ExternalId:     "B1",
		Status:         models.HealthCheckStatusCreated,
	}
	if err := db.Create(&check).Error; err != nil {
		t.Fatalf("seed health check: %v", err)
	}

	exists, err := e.healthCheckExists(ctx, org.ID.String(), models.DmsProviderDefault, "B1")
	if err != nil {
		t.Fatalf("healthCheckExists: %v", err)
	}
	if !exists {
		t.Fatal("expected existing health check to be found")
	}

	if err := db.Delete(&check).Error; err != nil {
		t.Fatalf("soft delete: %v", err)
	}
	exists, err = e.healthCheckExists(ctx, org.ID.String(), models.DmsProviderDefault, "B1")
	if err != nil {
		t.Fatalf("healthCheckExists: %v", err)
	}
	if exists {
		t.Fatal("soft-deleted health check should not block re-import")
	}
}

func TestCreateHealthCheckFieldMapping(t *testing.T) {
	db := newTestDB(t)
	e := newTestEngine(t, db, &fakeAdapter{})
	org := seedOrganization(t, db)
	cfg := testRunConfig(t, e, org)
	ctx := context.Background()

	customer := models.Customer{OrganizationId: org.ID.String(), FirstName: "Jo"}
	if err := db.Create(&customer).Error; err != nil {
		t.Fatalf("seed customer: %v", err)
	}
	vehicle := models.Vehicle{OrganizationId: org.ID.String(), CustomerId: customer.ID, Registration: "AB1CDE"}
	if err := db.Create(&vehicle).Error; err != nil {
		t.Fatalf("seed vehicle: %v", err)
	}
	run := models.ImportRun{
		OrganizationId: org.ID.String(),
		ImportType:     models.ImportTypeManual,
		ImportDate:     "2026-08-28",
		Status:         models.ImportRunStatusRunning,
		StartedAt:      time.Now(),
	}
	if err := db.Create(&run).Error; err != nil {
		t.Fatalf("seed run: %v", err)
	}

	b := sampleBooking("1")
	b.Description = "customer reports squeal from front brakes"

	check, err := e.createHealthCheck(ctx, cfg, &run, &b, &customer, &vehicle)
	if err != nil {
		t.Fatalf("createHealthCheck: %v", err)
	}
	if check.Status != models.HealthCheckStatusCreated {
		t.Fatalf("status = %q", check.Status)
	}
	if check.TemplateId != cfg.Template.ID {
		t.Fatalf("template = %d, want %d", check.TemplateId, cfg.Template.ID)
	}
	if check.ImportBatchId != run.ID {
		t.Fatalf("import batch = %d, want %d", check.ImportBatchId, run.ID)
	}
	if check.MileageIn == nil || *check.MileageIn != 42000 {
		t.Fatalf("mileage in = %v", check.MileageIn)
	}
	if check.PromiseTime == nil {
		t.Fatal("promise time should be set")
	}
	want := time.Date(2026, 8, 28, 9, 30, 0, 0, time.UTC)
	if !check.PromiseTime.Equal(want) {
		t.Fatalf("promise time = %v, want %v", check.PromiseTime, want)
	}
	if check.Notes != b.Description {
		t.Fatalf("notes = %q", check.Notes)
	}
}

func TestParsePromiseTime(t *testing.T) {
	cases := []struct {
		date, clock string
		want        *time.Time
	}{
		{"2026-08-28", "09:30", timePtr(time.Date(2026, 8, 28, 9, 30, 0, 0, time.UTC))},
		{"2026-08-28", "09:30:15", timePtr(time.Date(2026, 8, 28, 9, 30, 15, 0, time.UTC))},
		{"2026-08-28", "", nil},
		{"", "09:30", nil},
		{"2026-08-28", "half past nine", nil},
		{"not-a-date", "09:30", nil},
	}
	for _, tc := range cases {
		got := parsePromiseTime(tc.date, tc.clock)
		if tc.want == nil {
			if got != nil {
				t.Errorf("parsePromiseTime(%q, %q) = %v, want nil", tc.date, tc.clock, got)
			}
			continue
		}
		if got == nil || !got.Equal(*tc.want) {
			t.Errorf("parsePromiseTime(%q, %q) = %v, want %v", tc.date, tc.clock, got, tc.want)
		}
	}
}

func timePtr(t time.Time) *time.Time {
	return &t
}
