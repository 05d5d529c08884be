package db

import (
	"context"

	dbm "github.com/gartstein/policydocs/internal/catalog/db/models"
	e "github.com/gartstein/policydocs/internal/catalog/errors"
	"github.com/gartstein/policydocs/internal/catalog/models"
	"gorm.io/gorm/clause"
)

func (r *Repository) CreateProduct(ctx context.Context, product *models.Product) error {
	rec := dbm.Product{
		CompanyID:        product.CompanyID,
		CompanyProductID: product.CompanyProductID,
		Name:             product.Name,
		Model:            product.Model,
	}
	result := r.db.WithContext(ctx).Omit(clause.Associations).Create(&rec)
	if result.Error != nil {
		return translate(result.Error)
	}
	product.ID = rec.ID
	return nil
}

// GetProduct finds a product by its company-local identifier. Products of
// other companies are reported as not found.
func (r *Repository) GetProduct(ctx context.Context, companyID uint, companyProductID int) (*models.Product, error) {
	var rec dbm.Product
	result := r.db.WithContext(ctx).
		First(&rec, "company_id = ? AND company_product_id = ?", companyID, companyProductID)
	if result.Error != nil {
		return nil, translate(result.Error)
	}
	p := toProduct(&rec)
	return &p, nil
}

func (r *Repository) UpdateProduct(ctx context.Context, product *models.Product) error {
	result := r.db.WithContext(ctx).Model(&dbm.Product{}).
		Where("id = ?", product.ID).
		Select("name", "model").
		Updates(&dbm.Product{Name: product.Name, Model: product.Model})
	if result.Error != nil {
		return translate(result.Error)
	}
	if result.RowsAffected == 0 {
		return e.ErrNotFound
	}
	return nil
}

func (r *Repository) DeleteProduct(ctx context.Context, id uint) error {
	result := r.db.WithContext(ctx).Delete(&dbm.Product{}, "id = ?", id)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return e.ErrNotFound
	}
	return nil
}

// ListProducts returns the company's products in creation order together with
// the number of documents attached to each.
func (r *Repository) ListProducts(ctx context.Context, companyID uint) ([]models.Product, error) {
	var recs []dbm.Product
	if err := r.db.WithContext(ctx).
		Where("company_id = ?", companyID).
		Order("id").
		Find(&recs).Error; err != nil {
		return nil, err
	}
	counts, err := r.documentCounts(ctx, companyID, "product_id")
	if err != nil {
		return nil, err
	}

	products := make([]models.Product, 0, len(recs))
	for i := range recs {
		p := toProduct(&recs[i])
		p.DocumentCount = counts[p.ID]
		products = append(products, p)
	}
	return products, nil
}

func (r *Repository) CreateCategory(ctx context.Context, category *models.Category) error {
	rec := dbm.Category{
		CompanyID:         category.CompanyID,
		CompanyCategoryID: category.CompanyCategoryID,
		Name:              category.Name,
	}
	result := r.db.WithContext(ctx).Omit(clause.Associations).Create(&rec)
	if result.Error != nil {
		return translate(result.Error)
	}
	category.ID = rec.ID
	return nil
}

func (r *Repository) GetCategory(ctx context.Context, companyID uint, companyCategoryID int) (*models.Category, error) {
	var rec dbm.Category
	result := r.db.WithContext(ctx).
		First(&rec, "company_id = ? AND company_category_id = ?", companyID, companyCategoryID)
	if result.Error != nil {
		return nil, translate(result.Error)
	}
	c := toCategory(&rec)
	return &c, nil
}

func (r *Repository) UpdateCategory(ctx context.Context, category *models.Category) error {
	result := r.db.WithContext(ctx).Model(&dbm.Category{}).
		Where("id = ?", category.ID).
		Update("name", category.Name)
	if result.Error != nil {
		return translate(result.Error)
	}
	if result.RowsAffected == 0 {
		return e.ErrNotFound
	}
	return nil
}

func (r *Repository) DeleteCategory(ctx context.Context, id uint) error {
	result := r.db.WithContext(ctx).Delete(&dbm.Category{}, "id = ?", id)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return e.ErrNotFound
	}
	return nil
}

func (r *Repository) ListCategories(ctx context.Context, companyID uint) ([]models.Category, error) {
	var recs []dbm.Category
	if err := r.db.WithContext(ctx).
		Where("company_id = ?", companyID).
		Order("id").
		Find(&recs).Error; err != nil {
		return nil, err
	}
	counts, err := r.documentCounts(ctx, companyID, "category_id")
	if err != nil {
		return nil, err
	}

	categories := make([]models.Category, 0, len(recs))
	for i := range recs {
		c := toCategory(&recs[i])
		c.DocumentCount = counts[c.ID]
		categories = append(categories, c)
	}
	return categories, nil
}

// documentCounts groups the company's documents by column.
func (r *Repository) documentCounts(ctx context.Context, companyID uint, column string) (map[uint]int64, error) {
	var rows []struct {
		OwnerID uint
		N       int64
	}
	if err := r.db.WithContext(ctx).Model(&dbm.Document{}).
		Select(column+" AS owner_id, COUNT(*) AS n").
		Where("company_id = ?", companyID).
		Group(column).
		Scan(&rows).Error; err != nil {
		return nil, err
	}
	counts := make(map[uint]int64, len(rows))
	for _, row := range rows {
		counts[row.OwnerID] = row.N
	}
	return counts, nil
}
