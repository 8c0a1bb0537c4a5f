package models

import (
	"log"

	"github.com/vhclabs/vhc_backend/config"
)

func MigrateTable() {
	db := config.GetDB()

	err := db.AutoMigrate(
		&Organization{}, &Site{}, &User{},
		&Customer{}, &Vehicle{},
		&InspectionTemplate{}, &HealthCheck{},
		&DmsConnection{}, &ImportRun{},
		&BillingUsage{},
	)
	if err != nil {
		log.Fatal(err)
	}
}
