package models

import (
	"time"
)

type Product struct {
	ID               uint   `gorm:"primaryKey"`
	CompanyID        uint   `gorm:"not null;uniqueIndex:idx_company_product"`
	CompanyProductID int    `gorm:"not null;uniqueIndex:idx_company_product;check:company_product_id > 0"`
	Name             string `gorm:"size:60;not null"`
	Model            string `gorm:"size:20;not null"`

	Company Company `gorm:"foreignKey:CompanyID;constraint:OnDelete:CASCADE"`
}

type Category struct {
	ID                uint   `gorm:"primaryKey"`
	CompanyID         uint   `gorm:"not null;uniqueIndex:idx_company_category"`
	CompanyCategoryID int    `gorm:"not null;uniqueIndex:idx_company_category;check:company_category_id > 0"`
	Name              string `gorm:"size:100;not null"`

	Company Company `gorm:"foreignKey:CompanyID;constraint:OnDelete:CASCADE"`
}

// Document is unique per company on (product, category, validity start) and
// on the stored file path. ValidityStart is kept as an ISO date string so that
// equality and substring search behave the same on every dialect.
type Document struct {
	ID                uint   `gorm:"primaryKey"`
	CompanyID         uint   `gorm:"not null;uniqueIndex:idx_company_document;uniqueIndex:idx_document_triple;uniqueIndex:idx_document_file"`
	CompanyDocumentID int    `gorm:"not null;uniqueIndex:idx_company_document;check:company_document_id > 0"`
	ProductID         uint   `gorm:"not null;uniqueIndex:idx_document_triple"`
	CategoryID        uint   `gorm:"not null;uniqueIndex:idx_document_triple"`
	ValidityStart     string `gorm:"size:10;not null;uniqueIndex:idx_document_triple"`
	File              string `gorm:"size:255;not null;uniqueIndex:idx_document_file"`
	Title             string `gorm:"size:128;not null"`
	Description       string `gorm:"type:text;not null;default:''"`
	CreatedByID       uint   `gorm:"not null"`
	CreatedAt         time.Time

	Company   Company  `gorm:"foreignKey:CompanyID;constraint:OnDelete:CASCADE"`
	Product   Product  `gorm:"foreignKey:ProductID;constraint:OnDelete:CASCADE"`
	Category  Category `gorm:"foreignKey:CategoryID;constraint:OnDelete:CASCADE"`
	CreatedBy User     `gorm:"foreignKey:CreatedByID"`
}

// History is an append-only change record of a document.
type History struct {
	ID          uint   `gorm:"primaryKey"`
	DocumentID  uint   `gorm:"not null;index"`
	Element     string `gorm:"size:100;not null"`
	ChangedFrom string `gorm:"type:text;not null"`
	ChangedTo   string `gorm:"type:text;not null"`
	ChangedByID uint   `gorm:"not null"`
	ChangedAt   time.Time

	Document  Document `gorm:"foreignKey:DocumentID;constraint:OnDelete:CASCADE"`
	ChangedBy User     `gorm:"foreignKey:ChangedByID"`
}

// All lists every record in migration order.
func All() []interface{} {
	return []interface{}{
		&Company{},
		&User{},
		&IDSequence{},
		&Product{},
		&Category{},
		&Document{},
		&History{},
	}
}
