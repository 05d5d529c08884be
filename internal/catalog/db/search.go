package db

import (
	"context"
	"strconv"
	"strings"

	dbm "github.com/gartstein/policydocs/internal/catalog/db/models"
	"github.com/gartstein/policydocs/internal/catalog/models"
	"gorm.io/gorm"
)

// searchColumns are matched case-insensitively against the search phrase.
var searchColumns = []string{
	"CAST(documents.company_document_id AS TEXT)",
	"products.name",
	"products.model",
	"categories.name",
	"documents.validity_start",
	"documents.title",
	"documents.description",
	"documents.file",
	"users.first_name",
	"users.last_name",
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

// SearchDocuments lists one page of the company's documents, newest first.
// The phrase matches a document when any search column contains it; "#N"
// additionally matches the document whose company-local id is N. Product and
// category filters use company-local ids and narrow the result further.
func (r *Repository) SearchDocuments(ctx context.Context, companyID uint, q models.DocumentQuery) (*models.DocumentPage, error) {
	base := func() *gorm.DB {
		db := r.db.WithContext(ctx).Model(&dbm.Document{}).
			Joins("JOIN products ON products.id = documents.product_id").
			Joins("JOIN categories ON categories.id = documents.category_id").
			Joins("JOIN users ON users.id = documents.created_by_id").
			Where("documents.company_id = ?", companyID)
		if q.ProductID > 0 {
			db = db.Where("products.company_product_id = ?", q.ProductID)
		}
		if q.CategoryID > 0 {
			db = db.Where("categories.company_category_id = ?", q.CategoryID)
		}
		if phrase := strings.TrimSpace(q.Phrase); phrase != "" {
			db = db.Where(r.phraseCondition(phrase))
		}
		return db
	}

	var total int64
	if err := base().Count(&total).Error; err != nil {
		return nil, err
	}

	size := q.PageSize
	if size <= 0 {
		size = models.DefaultPageSize
	}
	totalPages := int((total + int64(size) - 1) / int64(size))
	if totalPages < 1 {
		totalPages = 1
	}
	page := q.Page
	if page < 1 {
		page = 1
	}
	if page > totalPages {
		page = totalPages
	}

	var recs []dbm.Document
	if err := r.preloadDocument(base()).
		Select("documents.*").
		Order("documents.id DESC").
		Limit(size).
		Offset((page - 1) * size).
		Find(&recs).Error; err != nil {
		return nil, err
	}

	docs := make([]models.Document, 0, len(recs))
	for i := range recs {
		docs = append(docs, toDocument(&recs[i]))
	}
	return &models.DocumentPage{
		Documents:  docs,
		Page:       page,
		TotalPages: totalPages,
		Total:      total,
	}, nil
}

func (r *Repository) phraseCondition(phrase string) *gorm.DB {
	cond := r.db.Session(&gorm.Session{NewDB: true})
	if id, ok := hashID(phrase); ok {
		return cond.Where("documents.company_document_id = ?", id)
	}
	pattern := "%" + likeEscaper.Replace(strings.ToLower(phrase)) + "%"
	for i, column := range searchColumns {
		expr := "LOWER(" + column + `) LIKE ? ESCAPE '\'`
		if i == 0 {
			cond = cond.Where(expr, pattern)
			continue
		}
		cond = cond.Or(expr, pattern)
	}
	return cond
}

// hashID parses "#12" style references. Such a phrase selects that document
// only and is not matched against the text columns.
func hashID(phrase string) (int, bool) {
	rest, found := strings.CutPrefix(phrase, "#")
	if !found {
		return 0, false
	}
	id, err := strconv.Atoi(strings.TrimSpace(rest))
	if err != nil || id < 1 {
		return 0, false
	}
	return id, true
}
