package db

import (
	"time"

	dbm "github.com/gartstein/policydocs/internal/catalog/db/models"
	"github.com/gartstein/policydocs/internal/catalog/models"
)

func toCompany(c *dbm.Company) *models.Company {
	return &models.Company{
		ID:        c.ID,
		Name:      c.Name,
		FullName:  c.FullName,
		Code:      c.Code,
		CreatedAt: c.CreatedAt,
	}
}

func toUser(u *dbm.User) models.User {
	return models.User{
		ID:           u.ID,
		Email:        u.Email,
		FirstName:    u.FirstName,
		LastName:     u.LastName,
		PasswordHash: u.PasswordHash,
		IsActive:     u.IsActive,
		Role:         models.Role(u.Role),
		CompanyID:    u.CompanyID,
		EmployeeNum:  u.EmployeeNum,
		Founder:      u.Founder,
		CreatedAt:    u.CreatedAt,
	}
}

func fromUser(u *models.User) *dbm.User {
	return &dbm.User{
		ID:           u.ID,
		Email:        u.Email,
		FirstName:    u.FirstName,
		LastName:     u.LastName,
		PasswordHash: u.PasswordHash,
		IsActive:     u.IsActive,
		Role:         string(u.Role),
		CompanyID:    u.CompanyID,
		EmployeeNum:  u.EmployeeNum,
		Founder:      u.Founder,
		CreatedAt:    u.CreatedAt,
	}
}

func toProduct(p *dbm.Product) models.Product {
	return models.Product{
		ID:               p.ID,
		CompanyID:        p.CompanyID,
		CompanyProductID: p.CompanyProductID,
		Name:             p.Name,
		Model:            p.Model,
	}
}

func toCategory(c *dbm.Category) models.Category {
	return models.Category{
		ID:                c.ID,
		CompanyID:         c.CompanyID,
		CompanyCategoryID: c.CompanyCategoryID,
		Name:              c.Name,
	}
}

func toDocument(d *dbm.Document) models.Document {
	// Rows are only written through fromDocument, so the date always parses.
	validity, _ := time.Parse(models.DateLayout, d.ValidityStart)
	return models.Document{
		ID:                d.ID,
		CompanyID:         d.CompanyID,
		CompanyName:       d.Company.Name,
		CompanyDocumentID: d.CompanyDocumentID,
		Product:           toProduct(&d.Product),
		Category:          toCategory(&d.Category),
		ValidityStart:     validity,
		File:              d.File,
		Title:             d.Title,
		Description:       d.Description,
		CreatedBy:         toUser(&d.CreatedBy),
		CreatedAt:         d.CreatedAt,
	}
}

func fromDocument(d *models.Document) *dbm.Document {
	return &dbm.Document{
		ID:                d.ID,
		CompanyID:         d.CompanyID,
		CompanyDocumentID: d.CompanyDocumentID,
		ProductID:         d.Product.ID,
		CategoryID:        d.Category.ID,
		ValidityStart:     d.ValidityStart.Format(models.DateLayout),
		File:              d.File,
		Title:             d.Title,
		Description:       d.Description,
		CreatedByID:       d.CreatedBy.ID,
		CreatedAt:         d.CreatedAt,
	}
}

func toHistory(h *dbm.History) models.History {
	return models.History{
		ID:          h.ID,
		DocumentID:  h.DocumentID,
		Element:     h.Element,
		ChangedFrom: h.ChangedFrom,
		ChangedTo:   h.ChangedTo,
		ChangedBy:   toUser(&h.ChangedBy),
		ChangedAt:   h.ChangedAt,
	}
}
