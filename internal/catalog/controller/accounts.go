package controller

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/gartstein/policydocs/internal/catalog/auth"
	"github.com/gartstein/policydocs/internal/catalog/db"
	e "github.com/gartstein/policydocs/internal/catalog/errors"
	"github.com/gartstein/policydocs/internal/catalog/models"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// newCompanyCode returns a 32 character registration secret.
func newCompanyCode() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")
}

// RegisterCompany creates a company together with its founding admin, who
// becomes employee number 1.
func (s *Service) RegisterCompany(ctx context.Context, in models.NewCompany) (*models.Company, *models.User, error) {
	in.Name = strings.ToLower(strings.TrimSpace(in.Name))
	in.FullName = strings.TrimSpace(in.FullName)
	in.Email = strings.TrimSpace(in.Email)
	if err := s.check(in); err != nil {
		return nil, nil, err
	}

	company := &models.Company{Name: in.Name, FullName: in.FullName, Code: newCompanyCode()}
	founder := &models.User{
		Email:        in.Email,
		FirstName:    in.FirstName,
		LastName:     in.LastName,
		PasswordHash: in.PasswordHash,
		IsActive:     true,
		Role:         models.RoleAdmin,
		Founder:      true,
	}

	err := s.repo.WithTransaction(ctx, func(tx *db.Repository) error {
		exists, err := tx.CompanyExistsByName(ctx, company.Name)
		if err != nil {
			return err
		}
		if exists {
			return e.Conflict("name", "Company with this name already exists.")
		}
		if err := s.checkEmailFree(ctx, tx, founder.Email, 0); err != nil {
			return err
		}

		if err := tx.CreateCompany(ctx, company); err != nil {
			return err
		}
		founder.CompanyID = company.ID
		return s.addEmployee(ctx, tx, founder)
	})
	if err != nil {
		return nil, nil, wrap(err, "register company")
	}

	s.logger.Info("company registered",
		zap.String("company", company.Name),
		zap.Uint("founder_id", founder.ID),
	)
	return company, founder, nil
}

// RegisterUser lets a person join the company whose code they know. New
// employees start as viewers.
func (s *Service) RegisterUser(ctx context.Context, in models.NewUser) (*models.User, error) {
	in.CompanyCode = strings.TrimSpace(in.CompanyCode)
	in.Email = strings.TrimSpace(in.Email)
	if err := s.check(in); err != nil {
		return nil, err
	}

	user := &models.User{
		Email:        in.Email,
		FirstName:    in.FirstName,
		LastName:     in.LastName,
		PasswordHash: in.PasswordHash,
		IsActive:     true,
		Role:         models.RoleViewer,
	}
	err := s.repo.WithTransaction(ctx, func(tx *db.Repository) error {
		company, err := tx.GetCompanyByCode(ctx, in.CompanyCode)
		if err != nil {
			if errors.Is(err, e.ErrNotFound) {
				return e.Invalid("company_code", "Invalid company code.")
			}
			return err
		}
		if err := s.checkEmailFree(ctx, tx, user.Email, 0); err != nil {
			return err
		}
		user.CompanyID = company.ID
		return s.addEmployee(ctx, tx, user)
	})
	if err != nil {
		return nil, wrap(err, "register user")
	}

	s.logger.Info("user joined company",
		zap.Uint("user_id", user.ID),
		zap.Uint("company_id", user.CompanyID),
		zap.Int("employee_num", user.EmployeeNum),
	)
	return user, nil
}

// Bootstrap makes sure the administration company exists. It returns false
// when the company was already there.
func (s *Service) Bootstrap(ctx context.Context, in models.NewCompany) (*models.Company, bool, error) {
	company, err := s.repo.GetCompanyByName(ctx, strings.ToLower(in.Name))
	if err == nil {
		return company, false, nil
	}
	if !errors.Is(err, e.ErrNotFound) {
		return nil, false, fmt.Errorf("failed to look up company: %w", err)
	}
	company, _, err = s.RegisterCompany(ctx, in)
	if err != nil {
		return nil, false, err
	}
	return company, true, nil
}

func (s *Service) addEmployee(ctx context.Context, tx *db.Repository, user *models.User) error {
	num, err := tx.NextID(ctx, user.CompanyID, db.KindEmployee)
	if err != nil {
		return err
	}
	user.EmployeeNum = num
	if err := tx.CreateUser(ctx, user); err != nil {
		if errors.Is(err, e.ErrDuplicate) {
			return e.Conflict("email", "User with this email already exists.")
		}
		return err
	}
	return nil
}

func (s *Service) checkEmailFree(ctx context.Context, tx *db.Repository, email string, userID uint) error {
	taken, err := tx.EmailTaken(ctx, email, userID)
	if err != nil {
		return err
	}
	if taken {
		return e.Conflict("email", "User with this email already exists.")
	}
	return nil
}

// ListUsers returns the caller's colleagues ordered by employee number.
func (s *Service) ListUsers(ctx context.Context, caller *auth.Caller) ([]models.User, error) {
	if err := auth.Authorize(caller, auth.ViewUsers, caller.Company.ID); err != nil {
		return nil, err
	}
	users, err := s.repo.ListUsers(ctx, caller.Company.ID)
	if err != nil {
		return nil, wrap(err, "list users")
	}
	return users, nil
}

func (s *Service) GetEmployee(ctx context.Context, caller *auth.Caller, employeeNum int) (*models.User, error) {
	if err := auth.Authorize(caller, auth.ViewUsers, caller.Company.ID); err != nil {
		return nil, err
	}
	user, err := s.repo.GetEmployee(ctx, caller.Company.ID, employeeNum)
	if err != nil {
		return nil, wrap(err, "get employee")
	}
	return user, nil
}

// UpdateProfile changes the caller's own names and email. Role and active
// state cannot be changed this way.
func (s *Service) UpdateProfile(ctx context.Context, caller *auth.Caller, upd models.ProfileUpdate) (*models.User, error) {
	if err := auth.Authorize(caller, auth.EditOwnProfile, caller.Company.ID); err != nil {
		return nil, err
	}
	if err := normalizeProfile(&upd); err != nil {
		return nil, err
	}
	if err := s.check(upd); err != nil {
		return nil, err
	}

	var user *models.User
	err := s.repo.WithTransaction(ctx, func(tx *db.Repository) error {
		var err error
		user, err = tx.GetUser(ctx, caller.User.ID)
		if err != nil {
			return err
		}
		if err := s.applyProfile(ctx, tx, user, upd); err != nil {
			return err
		}
		return tx.UpdateUser(ctx, user)
	})
	if err != nil {
		return nil, wrap(err, "update profile")
	}
	return user, nil
}

// UpdateEmployee is the admin edit of a colleague: names, email, active state
// and role. The founder always stays an active admin.
func (s *Service) UpdateEmployee(ctx context.Context, caller *auth.Caller, upd models.EmployeeUpdate) (*models.User, error) {
	if err := auth.Authorize(caller, auth.ManageUsers, caller.Company.ID); err != nil {
		return nil, err
	}
	if err := normalizeProfile(&upd.ProfileUpdate); err != nil {
		return nil, err
	}
	if err := s.check(upd); err != nil {
		return nil, err
	}
	if upd.Role != nil && !upd.Role.Valid() {
		return nil, e.Invalid("role", fmt.Sprintf("%q is not one of the available choices.", *upd.Role))
	}

	var user *models.User
	err := s.repo.WithTransaction(ctx, func(tx *db.Repository) error {
		var err error
		user, err = tx.GetEmployee(ctx, caller.Company.ID, upd.EmployeeNum)
		if err != nil {
			return err
		}
		if user.Founder {
			fields := map[string]string{}
			if upd.IsActive != nil && !*upd.IsActive {
				fields["is_active"] = "The first user in the company must be active."
			}
			if upd.Role != nil && *upd.Role != models.RoleAdmin {
				fields["role"] = "The first user in the company must be an admin."
			}
			if len(fields) > 0 {
				return &e.ValidationError{Fields: fields}
			}
		}
		if err := s.applyProfile(ctx, tx, user, upd.ProfileUpdate); err != nil {
			return err
		}
		if upd.IsActive != nil {
			user.IsActive = *upd.IsActive
		}
		if upd.Role != nil {
			user.Role = *upd.Role
		}
		return tx.UpdateUser(ctx, user)
	})
	if err != nil {
		return nil, wrap(err, "update employee")
	}

	s.logger.Info("employee updated",
		zap.Uint("company_id", caller.Company.ID),
		zap.Int("employee_num", user.EmployeeNum),
		zap.Uint("admin_id", caller.User.ID),
	)
	return user, nil
}

func (s *Service) applyProfile(ctx context.Context, tx *db.Repository, user *models.User, upd models.ProfileUpdate) error {
	if upd.Email != nil && !strings.EqualFold(*upd.Email, user.Email) {
		if err := s.checkEmailFree(ctx, tx, *upd.Email, user.ID); err != nil {
			return err
		}
		user.Email = *upd.Email
	}
	if upd.FirstName != nil {
		user.FirstName = *upd.FirstName
	}
	if upd.LastName != nil {
		user.LastName = *upd.LastName
	}
	return nil
}

// normalizeProfile trims the set fields. Names and email may be changed but
// not cleared.
func normalizeProfile(upd *models.ProfileUpdate) error {
	fields := map[string]string{}
	for name, p := range map[string]*string{
		"first_name": upd.FirstName,
		"last_name":  upd.LastName,
		"email":      upd.Email,
	} {
		if p == nil {
			continue
		}
		*p = strings.TrimSpace(*p)
		if *p == "" {
			fields[name] = "This field is required."
		}
	}
	if len(fields) > 0 {
		return &e.ValidationError{Fields: fields}
	}
	return nil
}
