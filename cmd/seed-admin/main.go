// seed-admin creates a development organization with an admin user and a
// starter inspection template, or resets the admin password if it exists.
//
// Usage (from backend directory):
//   DB_USER=... DB_PASSWORD=... DB_HOST=... DB_PORT=... DB_NAME=... go run ./cmd/seed-admin
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/vhclabs/vhc_backend/config"
	"github.com/vhclabs/vhc_backend/models"
	"github.com/vhclabs/vhc_backend/utils"
	"gorm.io/gorm"
)

const (
	adminUsername = "vhcAdmin"
	adminPassword = "Vhc@dmin2024"
	adminName     = "VHC Admin"
	orgName       = "Dev Workshop"
)

func main() {
	ctx := context.Background()
	config.ConnectDatabaseWithRetry()
	db := config.GetDB()
	if db == nil {
		fmt.Fprintln(os.Stderr, "database not initialized (config.GetDB returned nil). Set DB_* env vars.")
		os.Exit(1)
	}

	models.MigrateTable()

	var org models.Organization
	err := db.WithContext(ctx).Where("name = ?", orgName).First(&org).Error
	if err != nil {
		if err != gorm.ErrRecordNotFound {
			fmt.Fprintf(os.Stderr, "failed to lookup organization: %v\n", err)
			os.Exit(1)
		}
		created, err := models.CreateOrganization(ctx, &models.NewOrganization{Name: orgName})
		if err != nil {
			fmt.Fprintf(os.Stderr, "failed to create organization: %v\n", err)
			os.Exit(1)
		}
		org = *created
		fmt.Printf("Created organization: %s (%s)\n", org.Name, org.ID)
	}
	orgID := org.ID.String()

	var template models.InspectionTemplate
	err = db.WithContext(ctx).Where("organization_id = ?", orgID).First(&template).Error
	if err != nil {
		if err != gorm.ErrRecordNotFound {
			fmt.Fprintf(os.Stderr, "failed to lookup template: %v\n", err)
			os.Exit(1)
		}
		sections, _ := json.Marshal([]string{"Tyres", "Brakes", "Lights", "Fluids", "Battery"})
		template = models.InspectionTemplate{
			OrganizationId: orgID,
			Name:           "Standard Vehicle Health Check",
			SectionsJSON:   sections,
			IsActive:       utils.NewTrue(),
		}
		if err := db.WithContext(ctx).Create(&template).Error; err != nil {
			fmt.Fprintf(os.Stderr, "failed to create template: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("Created inspection template: %q (id=%d)\n", template.Name, template.ID)
	}

	if org.DefaultTemplateId == 0 {
		if err := db.WithContext(ctx).Model(&models.Organization{}).
			Where("id = ?", orgID).
			Update("default_template_id", template.ID).Error; err != nil {
			fmt.Fprintf(os.Stderr, "failed to set default template: %v\n", err)
			os.Exit(1)
		}
	}

	hashed, err := utils.HashPassword(adminPassword)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to hash password: %v\n", err)
		os.Exit(1)
	}
	hashedStr := string(hashed)

	var existing models.User
	err = db.WithContext(ctx).Where("username = ?", adminUsername).First(&existing).Error
	if err != nil {
		if err != gorm.ErrRecordNotFound {
			fmt.Fprintf(os.Stderr, "failed to lookup user: %v\n", err)
			os.Exit(1)
		}
		u := models.User{
			OrganizationId: orgID,
			Username:       adminUsername,
			Name:           adminName,
			Password:       hashedStr,
			Role:           models.UserRoleAdmin,
			IsActive:       utils.NewTrue(),
		}
		if err := db.WithContext(ctx).Create(&u).Error; err != nil {
			fmt.Fprintf(os.Stderr, "failed to create admin user: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("Created admin user: username=%q\n", adminUsername)
		return
	}

	if err := db.WithContext(ctx).Model(&models.User{}).Where("username = ?", adminUsername).Updates(map[string]any{
		"password":        hashedStr,
		"name":            adminName,
		"is_active":       utils.NewTrue(),
		"organization_id": orgID,
		"role":            models.UserRoleAdmin,
	}).Error; err != nil {
		fmt.Fprintf(os.Stderr, "failed to update admin user: %v\n", err)
		os.Exit(1)
	}
	_ = config.RemoveRedisKey("User:" + adminUsername)
	fmt.Printf("Updated admin user: username=%q\n", adminUsername)
}
