// Package history compares document versions and produces the audit trail
// entries for the fields that changed.
package history

import (
	"time"

	"github.com/gartstein/policydocs/internal/catalog/models"
)

// Element labels, in the order fields are compared.
const (
	ElementProduct     = "product"
	ElementCategory    = "document category"
	ElementValidFrom   = "valid from"
	ElementTitle       = "title"
	ElementDescription = "description"
)

// Snapshot is the display form of the tracked fields of a document. The
// product and category ids tell apart entities that display alike.
type Snapshot struct {
	ProductID   uint
	Product     string
	CategoryID  uint
	Category    string
	ValidFrom   string
	Title       string
	Description string
}

// Take captures the tracked fields of doc.
func Take(doc *models.Document) Snapshot {
	return Snapshot{
		ProductID:   doc.Product.ID,
		Product:     doc.Product.String(),
		CategoryID:  doc.Category.ID,
		Category:    doc.Category.String(),
		ValidFrom:   doc.ValidityStart.Format(models.DateLayout),
		Title:       doc.Title,
		Description: doc.Description,
	}
}

// Change is one differing field.
type Change struct {
	Element string
	From    string
	To      string
}

// Diff lists the changed fields of two snapshots in a fixed order. The
// description only counts when it was set before and after the edit.
func Diff(before, after Snapshot) []Change {
	var changes []Change
	record := func(element, from, to string, differ bool) {
		if differ {
			changes = append(changes, Change{Element: element, From: from, To: to})
		}
	}
	add := func(element, from, to string) {
		record(element, from, to, from != to)
	}

	record(ElementProduct, before.Product, after.Product,
		before.ProductID != after.ProductID || before.Product != after.Product)
	record(ElementCategory, before.Category, after.Category,
		before.CategoryID != after.CategoryID || before.Category != after.Category)
	add(ElementValidFrom, before.ValidFrom, after.ValidFrom)
	add(ElementTitle, before.Title, after.Title)
	if before.Description != "" && after.Description != "" {
		add(ElementDescription, before.Description, after.Description)
	}
	return changes
}

// Entries turns changes into history rows of one edit. Every row shares the
// editor and the timestamp.
func Entries(documentID uint, changes []Change, editor models.User, at time.Time) []models.History {
	entries := make([]models.History, 0, len(changes))
	for _, c := range changes {
		entries = append(entries, models.History{
			DocumentID:  documentID,
			Element:     c.Element,
			ChangedFrom: c.From,
			ChangedTo:   c.To,
			ChangedBy:   editor,
			ChangedAt:   at,
		})
	}
	return entries
}
