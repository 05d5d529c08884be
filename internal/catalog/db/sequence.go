package db

import (
	"context"
	"fmt"

	dbm "github.com/gartstein/policydocs/internal/catalog/db/models"
	e "github.com/gartstein/policydocs/internal/catalog/errors"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Kind names an entity that carries a company-local sequential identifier.
type Kind string

const (
	KindEmployee Kind = "employee"
	KindProduct  Kind = "product"
	KindCategory Kind = "category"
	KindDocument Kind = "document"
)

type sequenceTarget struct {
	model  interface{}
	column string
}

var sequenceTargets = map[Kind]sequenceTarget{
	KindEmployee: {model: &dbm.User{}, column: "employee_num"},
	KindProduct:  {model: &dbm.Product{}, column: "company_product_id"},
	KindCategory: {model: &dbm.Category{}, column: "company_category_id"},
	KindDocument: {model: &dbm.Document{}, column: "company_document_id"},
}

// NextID hands out the next company-local identifier of kind: one above both
// the highest identifier ever handed out and the highest one in use, starting
// at 1. Call it through the repository of the transaction that inserts the row;
// the sequence row update serializes concurrent callers.
func (r *Repository) NextID(ctx context.Context, companyID uint, kind Kind) (int, error) {
	target, ok := sequenceTargets[kind]
	if !ok {
		return 0, fmt.Errorf("%w: unknown identifier kind %q", e.ErrInvalidInput, kind)
	}
	db := r.db.WithContext(ctx)

	result := db.Model(&dbm.IDSequence{}).
		Where("company_id = ? AND kind = ?", companyID, string(kind)).
		Update("last_value", gorm.Expr("last_value + 1"))
	if result.Error != nil {
		return 0, fmt.Errorf("failed to advance %s sequence: %w", kind, result.Error)
	}

	var maxInUse int
	if err := db.Model(target.model).
		Where("company_id = ?", companyID).
		Select(fmt.Sprintf("COALESCE(MAX(%s), 0)", target.column)).
		Scan(&maxInUse).Error; err != nil {
		return 0, fmt.Errorf("failed to read highest %s id: %w", kind, err)
	}

	if result.RowsAffected == 0 {
		seq := dbm.IDSequence{CompanyID: companyID, Kind: string(kind), LastValue: maxInUse + 1}
		created := db.Clauses(clause.OnConflict{DoNothing: true}).Create(&seq)
		if created.Error != nil {
			return 0, translate(created.Error)
		}
		if created.RowsAffected == 1 {
			return seq.LastValue, nil
		}
		// Another transaction created the row first.
		return r.NextID(ctx, companyID, kind)
	}

	var seq dbm.IDSequence
	if err := db.First(&seq, "company_id = ? AND kind = ?", companyID, string(kind)).Error; err != nil {
		return 0, translate(err)
	}
	if seq.LastValue <= maxInUse {
		seq.LastValue = maxInUse + 1
		if err := db.Model(&dbm.IDSequence{}).
			Where("company_id = ? AND kind = ?", companyID, string(kind)).
			Update("last_value", seq.LastValue).Error; err != nil {
			return 0, err
		}
	}
	return seq.LastValue, nil
}
