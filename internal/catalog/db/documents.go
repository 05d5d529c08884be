package db

import (
	"context"
	"time"

	dbm "github.com/gartstein/policydocs/internal/catalog/db/models"
	e "github.com/gartstein/policydocs/internal/catalog/errors"
	"github.com/gartstein/policydocs/internal/catalog/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ConflictingDocument returns the company-local id of the document that
// already uses product, category and validity start within the company, or
// 0 if there is none. excludeID skips the document being edited.
func (r *Repository) ConflictingDocument(
	ctx context.Context,
	companyID, productID, categoryID uint,
	validityStart time.Time,
	excludeID uint,
) (int, error) {
	var rec dbm.Document
	result := r.db.WithContext(ctx).
		Select("company_document_id").
		Where("company_id = ? AND product_id = ? AND category_id = ? AND validity_start = ? AND id <> ?",
			companyID, productID, categoryID, validityStart.Format(models.DateLayout), excludeID).
		Limit(1).
		Find(&rec)
	if result.Error != nil {
		return 0, result.Error
	}
	if result.RowsAffected == 0 {
		return 0, nil
	}
	return rec.CompanyDocumentID, nil
}

// FileOwner returns the company-local id of the company's document stored
// under path, or 0 if the path is free.
func (r *Repository) FileOwner(ctx context.Context, companyID uint, path string) (int, error) {
	var rec dbm.Document
	result := r.db.WithContext(ctx).
		Select("company_document_id").
		Where("company_id = ? AND file = ?", companyID, path).
		Limit(1).
		Find(&rec)
	if result.Error != nil {
		return 0, result.Error
	}
	if result.RowsAffected == 0 {
		return 0, nil
	}
	return rec.CompanyDocumentID, nil
}

func (r *Repository) CreateDocument(ctx context.Context, doc *models.Document) error {
	rec := fromDocument(doc)
	result := r.db.WithContext(ctx).Omit(clause.Associations).Create(rec)
	if result.Error != nil {
		return translate(result.Error)
	}
	doc.ID = rec.ID
	doc.CreatedAt = rec.CreatedAt
	return nil
}

func (r *Repository) preloadDocument(db *gorm.DB) *gorm.DB {
	return db.
		Preload("Company").
		Preload("Product").
		Preload("Category").
		Preload("CreatedBy")
}

// GetDocument finds a document by its company-local identifier.
func (r *Repository) GetDocument(ctx context.Context, companyID uint, companyDocumentID int) (*models.Document, error) {
	var rec dbm.Document
	result := r.preloadDocument(r.db.WithContext(ctx)).
		First(&rec, "company_id = ? AND company_document_id = ?", companyID, companyDocumentID)
	if result.Error != nil {
		return nil, translate(result.Error)
	}
	d := toDocument(&rec)
	return &d, nil
}

// UpdateDocument stores the editable fields of doc. The file column is never written.
func (r *Repository) UpdateDocument(ctx context.Context, doc *models.Document) error {
	result := r.db.WithContext(ctx).Model(&dbm.Document{}).
		Where("id = ?", doc.ID).
		Updates(map[string]interface{}{
			"product_id":     doc.Product.ID,
			"category_id":    doc.Category.ID,
			"validity_start": doc.ValidityStart.Format(models.DateLayout),
			"title":          doc.Title,
			"description":    doc.Description,
		})
	if result.Error != nil {
		return translate(result.Error)
	}
	if result.RowsAffected == 0 {
		return e.ErrNotFound
	}
	return nil
}

// DocumentsByProduct lists every document referencing the product.
func (r *Repository) DocumentsByProduct(ctx context.Context, productID uint) ([]models.Document, error) {
	return r.documentsWhere(ctx, "product_id = ?", productID)
}

// DocumentsByCategory lists every document referencing the category.
func (r *Repository) DocumentsByCategory(ctx context.Context, categoryID uint) ([]models.Document, error) {
	return r.documentsWhere(ctx, "category_id = ?", categoryID)
}

func (r *Repository) documentsWhere(ctx context.Context, query string, args ...interface{}) ([]models.Document, error) {
	var recs []dbm.Document
	if err := r.preloadDocument(r.db.WithContext(ctx)).
		Where(query, args...).
		Order("id").
		Find(&recs).Error; err != nil {
		return nil, err
	}
	docs := make([]models.Document, 0, len(recs))
	for i := range recs {
		docs = append(docs, toDocument(&recs[i]))
	}
	return docs, nil
}

// DeleteDocuments removes the documents and their history.
func (r *Repository) DeleteDocuments(ctx context.Context, ids ...uint) error {
	if len(ids) == 0 {
		return nil
	}
	db := r.db.WithContext(ctx)
	if err := db.Where("document_id IN ?", ids).Delete(&dbm.History{}).Error; err != nil {
		return err
	}
	result := db.Where("id IN ?", ids).Delete(&dbm.Document{})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected != int64(len(ids)) {
		return e.ErrNotFound
	}
	return nil
}

func (r *Repository) CreateHistory(ctx context.Context, entries []models.History) error {
	if len(entries) == 0 {
		return nil
	}
	recs := make([]dbm.History, 0, len(entries))
	for _, h := range entries {
		recs = append(recs, dbm.History{
			DocumentID:  h.DocumentID,
			Element:     h.Element,
			ChangedFrom: h.ChangedFrom,
			ChangedTo:   h.ChangedTo,
			ChangedByID: h.ChangedBy.ID,
			ChangedAt:   h.ChangedAt,
		})
	}
	return r.db.WithContext(ctx).Omit(clause.Associations).Create(&recs).Error
}

// ListHistory returns the document's changes, newest first.
func (r *Repository) ListHistory(ctx context.Context, documentID uint) ([]models.History, error) {
	var recs []dbm.History
	if err := r.db.WithContext(ctx).
		Preload("ChangedBy").
		Where("document_id = ?", documentID).
		Order("changed_at DESC, id DESC").
		Find(&recs).Error; err != nil {
		return nil, err
	}
	history := make([]models.History, 0, len(recs))
	for i := range recs {
		history = append(history, toHistory(&recs[i]))
	}
	return history, nil
}
