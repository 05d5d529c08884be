package db

import (
	"context"
	"errors"

	dbm "github.com/gartstein/policydocs/internal/catalog/db/models"
	e "github.com/gartstein/policydocs/internal/catalog/errors"
	"github.com/gartstein/policydocs/internal/catalog/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

func (r *Repository) CreateCompany(ctx context.Context, company *models.Company) error {
	rec := dbm.Company{
		Name:     company.Name,
		FullName: company.FullName,
		Code:     company.Code,
	}
	result := r.db.WithContext(ctx).Create(&rec)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrDuplicatedKey) {
			return e.ErrDuplicate
		}
		return result.Error
	}
	company.ID = rec.ID
	company.CreatedAt = rec.CreatedAt
	return nil
}

func (r *Repository) GetCompany(ctx context.Context, id uint) (*models.Company, error) {
	var company dbm.Company
	result := r.db.WithContext(ctx).First(&company, "id = ?", id)
	if result.Error != nil {
		return nil, translate(result.Error)
	}
	return toCompany(&company), nil
}

func (r *Repository) GetCompanyByName(ctx context.Context, name string) (*models.Company, error) {
	var company dbm.Company
	result := r.db.WithContext(ctx).First(&company, "name = ?", name)
	if result.Error != nil {
		return nil, translate(result.Error)
	}
	return toCompany(&company), nil
}

func (r *Repository) GetCompanyByCode(ctx context.Context, code string) (*models.Company, error) {
	var company dbm.Company
	result := r.db.WithContext(ctx).First(&company, "code = ?", code)
	if result.Error != nil {
		return nil, translate(result.Error)
	}
	return toCompany(&company), nil
}

func (r *Repository) CompanyExistsByName(ctx context.Context, name string) (bool, error) {
	var count int64
	result := r.db.WithContext(ctx).Model(&dbm.Company{}).
		Where("name = ?", name).
		Limit(1).
		Count(&count)
	return count > 0, result.Error
}

func (r *Repository) CreateUser(ctx context.Context, user *models.User) error {
	rec := fromUser(user)
	result := r.db.WithContext(ctx).Omit(clause.Associations).Create(rec)
	if result.Error != nil {
		return translate(result.Error)
	}
	user.ID = rec.ID
	user.CreatedAt = rec.CreatedAt
	return nil
}

func (r *Repository) GetUser(ctx context.Context, id uint) (*models.User, error) {
	var user dbm.User
	result := r.db.WithContext(ctx).First(&user, "id = ?", id)
	if result.Error != nil {
		return nil, translate(result.Error)
	}
	u := toUser(&user)
	return &u, nil
}

// GetEmployee looks a user up by the company-local employee number.
func (r *Repository) GetEmployee(ctx context.Context, companyID uint, employeeNum int) (*models.User, error) {
	var user dbm.User
	result := r.db.WithContext(ctx).
		First(&user, "company_id = ? AND employee_num = ?", companyID, employeeNum)
	if result.Error != nil {
		return nil, translate(result.Error)
	}
	u := toUser(&user)
	return &u, nil
}

func (r *Repository) ListUsers(ctx context.Context, companyID uint) ([]models.User, error) {
	var recs []dbm.User
	result := r.db.WithContext(ctx).
		Where("company_id = ?", companyID).
		Order("employee_num").
		Find(&recs)
	if result.Error != nil {
		return nil, result.Error
	}
	users := make([]models.User, 0, len(recs))
	for i := range recs {
		users = append(users, toUser(&recs[i]))
	}
	return users, nil
}

// UpdateUser stores the mutable profile fields of user.
func (r *Repository) UpdateUser(ctx context.Context, user *models.User) error {
	result := r.db.WithContext(ctx).Model(&dbm.User{}).
		Where("id = ?", user.ID).
		Select("email", "first_name", "last_name", "is_active", "role").
		Updates(&dbm.User{
			Email:     user.Email,
			FirstName: user.FirstName,
			LastName:  user.LastName,
			IsActive:  user.IsActive,
			Role:      string(user.Role),
		})
	if result.Error != nil {
		return translate(result.Error)
	}
	if result.RowsAffected == 0 {
		return e.ErrNotFound
	}
	return nil
}

// EmailTaken reports whether another user than excludeID registered email.
func (r *Repository) EmailTaken(ctx context.Context, email string, excludeID uint) (bool, error) {
	var count int64
	result := r.db.WithContext(ctx).Model(&dbm.User{}).
		Where("LOWER(email) = LOWER(?) AND id <> ?", email, excludeID).
		Limit(1).
		Count(&count)
	return count > 0, result.Error
}
