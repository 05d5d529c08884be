package controller

import (
	"context"
	"strings"

	"github.com/gartstein/policydocs/internal/catalog/auth"
	"github.com/gartstein/policydocs/internal/catalog/db"
	"github.com/gartstein/policydocs/internal/catalog/events"
	"github.com/gartstein/policydocs/internal/catalog/models"
	"go.uber.org/zap"
)

func (s *Service) ListProducts(ctx context.Context, caller *auth.Caller) ([]models.Product, error) {
	if err := auth.Authorize(caller, auth.ViewCatalog, caller.Company.ID); err != nil {
		return nil, err
	}
	products, err := s.repo.ListProducts(ctx, caller.Company.ID)
	if err != nil {
		return nil, wrap(err, "list products")
	}
	return products, nil
}

func (s *Service) GetProduct(ctx context.Context, caller *auth.Caller, id int) (*models.Product, error) {
	if err := auth.Authorize(caller, auth.ViewCatalog, caller.Company.ID); err != nil {
		return nil, err
	}
	product, err := s.repo.GetProduct(ctx, caller.Company.ID, id)
	if err != nil {
		return nil, wrap(err, "get product")
	}
	return product, nil
}

// CreateProduct adds a product with the next free company-local id.
func (s *Service) CreateProduct(ctx context.Context, caller *auth.Caller, in models.ProductInput) (*models.Product, error) {
	if err := auth.Authorize(caller, auth.ManageCatalog, caller.Company.ID); err != nil {
		return nil, err
	}
	in.Name, in.Model = strings.TrimSpace(in.Name), strings.TrimSpace(in.Model)
	if err := s.check(in); err != nil {
		return nil, err
	}

	product := &models.Product{CompanyID: caller.Company.ID, Name: in.Name, Model: in.Model}
	err := s.repo.WithTransaction(ctx, func(tx *db.Repository) error {
		id, err := tx.NextID(ctx, caller.Company.ID, db.KindProduct)
		if err != nil {
			return err
		}
		product.CompanyProductID = id
		return tx.CreateProduct(ctx, product)
	})
	if err != nil {
		return nil, wrap(err, "create product")
	}
	return product, nil
}

func (s *Service) EditProduct(ctx context.Context, caller *auth.Caller, id int, in models.ProductInput) (*models.Product, error) {
	if err := auth.Authorize(caller, auth.ManageCatalog, caller.Company.ID); err != nil {
		return nil, err
	}
	in.Name, in.Model = strings.TrimSpace(in.Name), strings.TrimSpace(in.Model)
	if err := s.check(in); err != nil {
		return nil, err
	}

	var product *models.Product
	err := s.repo.WithTransaction(ctx, func(tx *db.Repository) error {
		var err error
		product, err = tx.GetProduct(ctx, caller.Company.ID, id)
		if err != nil {
			return err
		}
		product.Name, product.Model = in.Name, in.Model
		return tx.UpdateProduct(ctx, product)
	})
	if err != nil {
		return nil, wrap(err, "edit product")
	}
	return product, nil
}

// DeleteProduct removes the product with every document filed under it,
// including their history and stored files.
func (s *Service) DeleteProduct(ctx context.Context, caller *auth.Caller, id int) error {
	if err := auth.Authorize(caller, auth.ManageCatalog, caller.Company.ID); err != nil {
		return err
	}

	var docs []models.Document
	err := s.repo.WithTransaction(ctx, func(tx *db.Repository) error {
		product, err := tx.GetProduct(ctx, caller.Company.ID, id)
		if err != nil {
			return err
		}
		docs, err = tx.DocumentsByProduct(ctx, product.ID)
		if err != nil {
			return err
		}
		if err := s.removeDocuments(ctx, tx, docs); err != nil {
			return err
		}
		return tx.DeleteProduct(ctx, product.ID)
	})
	if err != nil {
		return wrap(err, "delete product")
	}

	s.logger.Info("product deleted",
		zap.String("company", caller.Company.Name),
		zap.Int("product_id", id),
		zap.Int("documents", len(docs)),
	)
	s.publishDeleted(caller, events.ProductDeleted, id, docs)
	return nil
}

func (s *Service) ListCategories(ctx context.Context, caller *auth.Caller) ([]models.Category, error) {
	if err := auth.Authorize(caller, auth.ViewCatalog, caller.Company.ID); err != nil {
		return nil, err
	}
	categories, err := s.repo.ListCategories(ctx, caller.Company.ID)
	if err != nil {
		return nil, wrap(err, "list categories")
	}
	return categories, nil
}

func (s *Service) GetCategory(ctx context.Context, caller *auth.Caller, id int) (*models.Category, error) {
	if err := auth.Authorize(caller, auth.ViewCatalog, caller.Company.ID); err != nil {
		return nil, err
	}
	category, err := s.repo.GetCategory(ctx, caller.Company.ID, id)
	if err != nil {
		return nil, wrap(err, "get category")
	}
	return category, nil
}

func (s *Service) CreateCategory(ctx context.Context, caller *auth.Caller, in models.CategoryInput) (*models.Category, error) {
	if err := auth.Authorize(caller, auth.ManageCatalog, caller.Company.ID); err != nil {
		return nil, err
	}
	in.Name = strings.TrimSpace(in.Name)
	if err := s.check(in); err != nil {
		return nil, err
	}

	category := &models.Category{CompanyID: caller.Company.ID, Name: in.Name}
	err := s.repo.WithTransaction(ctx, func(tx *db.Repository) error {
		id, err := tx.NextID(ctx, caller.Company.ID, db.KindCategory)
		if err != nil {
			return err
		}
		category.CompanyCategoryID = id
		return tx.CreateCategory(ctx, category)
	})
	if err != nil {
		return nil, wrap(err, "create category")
	}
	return category, nil
}

func (s *Service) EditCategory(ctx context.Context, caller *auth.Caller, id int, in models.CategoryInput) (*models.Category, error) {
	if err := auth.Authorize(caller, auth.ManageCatalog, caller.Company.ID); err != nil {
		return nil, err
	}
	in.Name = strings.TrimSpace(in.Name)
	if err := s.check(in); err != nil {
		return nil, err
	}

	var category *models.Category
	err := s.repo.WithTransaction(ctx, func(tx *db.Repository) error {
		var err error
		category, err = tx.GetCategory(ctx, caller.Company.ID, id)
		if err != nil {
			return err
		}
		category.Name = in.Name
		return tx.UpdateCategory(ctx, category)
	})
	if err != nil {
		return nil, wrap(err, "edit category")
	}
	return category, nil
}

// DeleteCategory removes the category with every document filed under it.
func (s *Service) DeleteCategory(ctx context.Context, caller *auth.Caller, id int) error {
	if err := auth.Authorize(caller, auth.ManageCatalog, caller.Company.ID); err != nil {
		return err
	}

	var docs []models.Document
	err := s.repo.WithTransaction(ctx, func(tx *db.Repository) error {
		category, err := tx.GetCategory(ctx, caller.Company.ID, id)
		if err != nil {
			return err
		}
		docs, err = tx.DocumentsByCategory(ctx, category.ID)
		if err != nil {
			return err
		}
		if err := s.removeDocuments(ctx, tx, docs); err != nil {
			return err
		}
		return tx.DeleteCategory(ctx, category.ID)
	})
	if err != nil {
		return wrap(err, "delete category")
	}

	s.logger.Info("category deleted",
		zap.String("company", caller.Company.Name),
		zap.Int("category_id", id),
		zap.Int("documents", len(docs)),
	)
	s.publishDeleted(caller, events.CategoryDeleted, id, docs)
	return nil
}

// removeDocuments deletes the rows first and the files afterwards, so a file
// that cannot be removed rolls the rows back.
func (s *Service) removeDocuments(ctx context.Context, tx *db.Repository, docs []models.Document) error {
	if len(docs) == 0 {
		return nil
	}
	ids := make([]uint, 0, len(docs))
	for _, d := range docs {
		ids = append(ids, d.ID)
	}
	if err := tx.DeleteDocuments(ctx, ids...); err != nil {
		return err
	}
	for _, d := range docs {
		if err := s.store.Delete(ctx, d.File); err != nil {
			s.logger.Error("failed to delete stored file",
				zap.Error(err),
				zap.String("file", d.File),
			)
			return err
		}
	}
	return nil
}

func (s *Service) publishDeleted(caller *auth.Caller, eventType events.EventType, id int, docs []models.Document) {
	at := s.now()
	for _, d := range docs {
		s.producer.Produce(events.Event{
			Type:       events.DocumentDeleted,
			Company:    caller.Company.Name,
			EntityID:   d.CompanyDocumentID,
			Title:      d.Title,
			File:       d.File,
			ActorID:    caller.User.ID,
			OccurredAt: at,
		})
	}
	s.producer.Produce(events.Event{
		Type:       eventType,
		Company:    caller.Company.Name,
		EntityID:   id,
		ActorID:    caller.User.ID,
		OccurredAt: at,
	})
}
