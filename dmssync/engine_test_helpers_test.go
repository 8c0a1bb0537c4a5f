package dmssync

import (
	"context"
	"encoding/json"
	"io"
	"testing"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/vhclabs/vhc_backend/models"
	"github.com/vhclabs/vhc_backend/utils"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// newTestDB opens a private in-memory database per test. A single connection
// keeps the :memory: database alive for the test's lifetime.
func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("sql db: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	err = db.AutoMigrate(
		&models.Organization{},
		&models.Site{},
		&models.User{},
		&models.Customer{},
		&models.Vehicle{},
		&models.InspectionTemplate{},
		&models.HealthCheck{},
		&models.ImportRun{},
		&models.DmsConnection{},
		&models.BillingUsage{},
	)
	if err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return db
}

func quietLogger() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}

type fakeAdapter struct {
	result FetchResult
	calls  int
}

func (f *fakeAdapter) FetchBookings(ctx context.Context, creds Credentials, date string, opts FetchOptions) FetchResult {
	f.calls++
	return f.result
}

func newTestEngine(t *testing.T, db *gorm.DB, adapter BookingAdapter) *Engine {
	t.Helper()
	return NewEngine(db, quietLogger(), adapter, nil)
}

// seedOrganization creates an organization with a connected DMS and one
// active template, the minimum config a run needs.
func seedOrganization(t *testing.T, db *gorm.DB) *models.Organization {
	t.Helper()

	sections, _ := json.Marshal([]string{"Tyres", "Brakes"})
	org := models.Organization{
		ID:   uuid.New(),
		Name: "Test Workshop",
	}
	if err := db.Create(&org).Error; err != nil {
		t.Fatalf("create organization: %v", err)
	}

	template := models.InspectionTemplate{
		OrganizationId: org.ID.String(),
		Name:           "Standard Check",
		SectionsJSON:   sections,
		IsActive:       utils.NewTrue(),
	}
	if err := db.Create(&template).Error; err != nil {
		t.Fatalf("create template: %v", err)
	}

	conn := models.DmsConnection{
		OrganizationId: org.ID.String(),
		Provider:       models.DmsProviderDefault,
		Status:         models.DmsStatusConnected,
		AuthType:       "api_key",
		AuthSecretRef:  "test-api-key",
		DealerRef:      "DLR-1",
	}
	if err := db.Create(&conn).Error; err != nil {
		t.Fatalf("create connection: %v", err)
	}
	return &org
}

func testRunConfig(t *testing.T, e *Engine, org *models.Organization) *runConfig {
	t.Helper()
	cfg, err := e.resolveRunConfig(context.Background(), org.ID.String())
	if err != nil {
		t.Fatalf("resolveRunConfig: %v", err)
	}
	return cfg
}

func sampleBooking(id string) ExternalBooking {
	return ExternalBooking{
		BookingId:         id,
		Status:            "booked",
		ServiceType:       "service",
		CustomerId:        "CUST-" + id,
		CustomerFirstName: "Jo",
		CustomerLastName:  "Driver",
		CustomerEmail:     "jo." + id + "@example.com",
		CustomerMobile:    "07700 90012" + id,
		VehicleId:         "VEH-" + id,
		VehicleReg:        "AB" + id + " CDE",
		VehicleVin:        "vin0000000000" + id,
		VehicleMake:       "Ford",
		VehicleModel:      "Focus",
		VehicleYear:       2019,
		Date:              "2026-08-28",
		Time:              "09:30",
		Mileage:           42000,
	}
}
