// Package models contains the database records of the application,
// configured to work using GORM as the ORM.
package models

import (
	"time"
)

// Company represents a tenant in the database.
type Company struct {
	ID        uint   `gorm:"primaryKey"`
	Name      string `gorm:"size:32;not null;uniqueIndex"`
	FullName  string `gorm:"size:100;not null"`
	Code      string `gorm:"size:32;not null;uniqueIndex"`
	CreatedAt time.Time
}

// User represents an employee. The employee number is unique per company.
type User struct {
	ID           uint   `gorm:"primaryKey"`
	Email        string `gorm:"size:254;not null;uniqueIndex"`
	FirstName    string `gorm:"size:150;not null"`
	LastName     string `gorm:"size:150;not null"`
	PasswordHash string `gorm:"not null"`
	IsActive     bool   `gorm:"not null;default:true"`
	Role         string `gorm:"size:11;not null;default:viewer"`
	CompanyID    uint   `gorm:"not null;uniqueIndex:idx_company_employee"`
	EmployeeNum  int    `gorm:"not null;uniqueIndex:idx_company_employee;check:employee_num > 0"`
	Founder      bool   `gorm:"not null;default:false"`
	CreatedAt    time.Time

	Company Company `gorm:"foreignKey:CompanyID;constraint:OnDelete:CASCADE"`
}

// IDSequence stores the highest company-local identifier ever handed out for
// one kind of entity, so identifiers are not reused after deletions.
type IDSequence struct {
	CompanyID uint   `gorm:"primaryKey;autoIncrement:false"`
	Kind      string `gorm:"primaryKey;size:16"`
	LastValue int    `gorm:"not null"`
}
