package models

import "time"

const (
	UserRoleAdmin = "admin"
	UserRoleStaff = "staff"
)

type User struct {
	ID             int       `gorm:"primary_key" json:"id"`
	OrganizationId string    `gorm:"index" json:"organization_id"`
	Username       string    `gorm:"size:100;not null;unique" json:"username" binding:"required"`
	Name           string    `gorm:"size:100;not null" json:"name" binding:"required"`
	Email          string    `gorm:"size:100" json:"email"`
	Mobile         string    `gorm:"size:20" json:"mobile"`
	Password       string    `gorm:"size:255;not null" json:"-"`
	Role           string    `gorm:"size:20;default:staff" json:"role"`
	IsActive       *bool     `gorm:"not null;default:true" json:"is_active"`
	CreatedAt      time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt      time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}
