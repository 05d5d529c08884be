// Package models defines the core domain models of the document catalog:
// tenants (Company), their employees (User) and the catalog entities that
// belong to a single company.
package models

import (
	"time"
)

// Role is the permission level of an employee within their company.
type Role string

const (
	RoleAdmin       Role = "admin"
	RoleContributor Role = "contributor"
	RoleViewer      Role = "viewer"
)

// Valid reports whether r is one of the known roles.
func (r Role) Valid() bool {
	switch r {
	case RoleAdmin, RoleContributor, RoleViewer:
		return true
	}
	return false
}

// Company is the tenancy root. Every other entity belongs to exactly one company.
type Company struct {
	// ID is the internal identifier.
	ID uint
	// Name is the short, lower-case name used in URLs and storage paths.
	Name string
	// FullName is the registered name of the company.
	FullName string
	// Code is the registration secret shared with people joining the company.
	Code string
	// CreatedAt records when the company registered.
	CreatedAt time.Time
}

// User is an employee of a company.
type User struct {
	ID           uint
	Email        string
	FirstName    string
	LastName     string
	PasswordHash string
	IsActive     bool
	Role         Role
	CompanyID    uint
	// EmployeeNum is unique within the company only.
	EmployeeNum int
	// Founder marks the user who registered the company. The founder always
	// stays an active admin.
	Founder   bool
	CreatedAt time.Time
}

// FullName returns "First Last".
func (u *User) FullName() string {
	return u.FirstName + " " + u.LastName
}

// NewCompany holds the data needed to register a company with its founding admin.
type NewCompany struct {
	Name         string `validate:"required,max=32,alphanum"`
	FullName     string `validate:"required,max=100"`
	Email        string `validate:"required,email,max=254"`
	FirstName    string `validate:"required,max=150"`
	LastName     string `validate:"required,max=150"`
	PasswordHash string `validate:"required"`
}

// NewUser holds the data needed to join an existing company with its code.
type NewUser struct {
	CompanyCode  string `validate:"required"`
	Email        string `validate:"required,email,max=254"`
	FirstName    string `validate:"required,max=150"`
	LastName     string `validate:"required,max=150"`
	PasswordHash string `validate:"required"`
}

// ProfileUpdate lets users change their own contact data.
// Pointer types are used to allow partial updates.
type ProfileUpdate struct {
	FirstName *string `validate:"omitempty,max=150"`
	LastName  *string `validate:"omitempty,max=150"`
	Email     *string `validate:"omitempty,email,max=254"`
}

// EmployeeUpdate is the admin view of a profile change.
type EmployeeUpdate struct {
	EmployeeNum int `validate:"required,min=1"`
	ProfileUpdate
	IsActive *bool
	Role     *Role
}
