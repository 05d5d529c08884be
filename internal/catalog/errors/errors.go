package errors

import (
	"fmt"
	"sort"
	"strings"
)

var (
	ErrNotFound         = fmt.Errorf("not found")
	ErrDuplicate        = fmt.Errorf("duplicate")
	ErrInvalidInput     = fmt.Errorf("invalid input")
	ErrPermissionDenied = fmt.Errorf("permission denied")
	ErrInactiveUser     = fmt.Errorf("account is blocked")
	// ErrStorage marks blob store failures. They are transient and the caller may retry.
	ErrStorage = fmt.Errorf("storage failure")
)

// ValidationError carries one message per offending input field.
type ValidationError struct {
	Fields map[string]string
}

func (v *ValidationError) Error() string {
	keys := make([]string, 0, len(v.Fields))
	for k := range v.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, k+": "+v.Fields[k])
	}
	return fmt.Sprintf("%s: %s", ErrInvalidInput, strings.Join(parts, "; "))
}

func (v *ValidationError) Unwrap() error { return ErrInvalidInput }

// Invalid builds a ValidationError for a single field.
func Invalid(field, msg string) error {
	return &ValidationError{Fields: map[string]string{field: msg}}
}

// DuplicateDocumentError reports a product, category and validity start
// combination that another document of the same company already uses.
type DuplicateDocumentError struct {
	CompanyDocumentID int
}

func (d *DuplicateDocumentError) Error() string {
	if d.CompanyDocumentID == 0 {
		return "a document with this product, category and validity start date already exists"
	}
	return fmt.Sprintf("document #%d is already associated with this product, category and validity start date",
		d.CompanyDocumentID)
}

func (d *DuplicateDocumentError) Unwrap() error { return ErrDuplicate }

// ConflictError reports a value that must be unique, such as a company name
// or an email address, and is already in use.
type ConflictError struct {
	Field   string
	Message string
}

func (c *ConflictError) Error() string {
	return fmt.Sprintf("%s: %s: %s", ErrDuplicate, c.Field, c.Message)
}

func (c *ConflictError) Unwrap() error { return ErrDuplicate }

// Conflict builds a ConflictError for field.
func Conflict(field, msg string) error {
	return &ConflictError{Field: field, Message: msg}
}
