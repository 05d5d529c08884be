package models

import (
	"fmt"
	"io"
	"time"
)

// DateLayout is the textual form of validity dates.
const DateLayout = "2006-01-02"

// Product is an insurance product of a company.
type Product struct {
	ID        uint
	CompanyID uint
	// CompanyProductID is the company-local identifier.
	CompanyProductID int
	Name             string
	// Model is the cash flow model code, e.g. TERM02.
	Model string
	// DocumentCount is filled by listings only.
	DocumentCount int64
}

func (p Product) String() string {
	return fmt.Sprintf("%s (%s)", p.Name, p.Model)
}

// Category groups documents by their kind, e.g. "Terms and conditions".
type Category struct {
	ID                uint
	CompanyID         uint
	CompanyCategoryID int
	Name              string
	DocumentCount     int64
}

func (c Category) String() string {
	return c.Name
}

// Document is a stored file describing one product in one category from a
// validity start date on.
type Document struct {
	ID                uint
	CompanyID         uint
	CompanyName       string
	CompanyDocumentID int
	Product           Product
	Category          Category
	ValidityStart     time.Time
	// File is the storage key, "{company}/{filename}".
	File        string
	Title       string
	Description string
	CreatedBy   User
	CreatedAt   time.Time
}

// Slug identifies the document across companies, e.g. "alpha-3".
func (d *Document) Slug() string {
	return fmt.Sprintf("%s-%d", d.CompanyName, d.CompanyDocumentID)
}

// History is one recorded change of a single document field.
type History struct {
	ID          uint
	DocumentID  uint
	Element     string
	ChangedFrom string
	ChangedTo   string
	ChangedBy   User
	ChangedAt   time.Time
}

// ProductInput is used to create or edit a product.
type ProductInput struct {
	Name  string `validate:"required,max=60"`
	Model string `validate:"required,max=20"`
}

// CategoryInput is used to create or edit a category.
type CategoryInput struct {
	Name string `validate:"required,max=100"`
}

// NewDocument describes a document upload. Product and category are
// addressed by their company-local identifiers.
type NewDocument struct {
	ProductID     int `validate:"required,min=1"`
	CategoryID    int `validate:"required,min=1"`
	ValidityStart time.Time
	FileName      string `validate:"required,max=200"`
	File          io.Reader
	Title         string `validate:"required,max=128"`
	Description   string
}

// DocumentUpdate represents the editable fields of a Document.
// Pointer types are used to allow partial updates. The stored file cannot be
// replaced; upload a new document and delete the old one instead.
type DocumentUpdate struct {
	CompanyDocumentID int `validate:"required,min=1"`
	ProductID         *int
	CategoryID        *int
	ValidityStart     *time.Time
	Title             *string `validate:"omitempty,min=1,max=128"`
	Description       *string
}

// DefaultPageSize is the number of documents on a listing page.
const DefaultPageSize = 5

// DocumentQuery filters a company's document listing. Zero values disable a filter.
type DocumentQuery struct {
	Phrase     string
	ProductID  int
	CategoryID int
	// Page is 1-based. Values below 1 select the first page, values past the
	// end select the last one.
	Page     int
	PageSize int
}

// DocumentPage is one page of a listing, newest documents first.
type DocumentPage struct {
	Documents  []Document
	Page       int
	TotalPages int
	Total      int64
}

// Download is an opened stored file.
type Download struct {
	Body        io.ReadCloser
	ContentType string
	FileName    string
}
