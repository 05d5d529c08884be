// Package controller implements the business logic of the document catalog:
// company registration and employees, the product and category catalog, and
// the document lifecycle with its change history. Every operation checks the
// caller's permissions, runs its writes in one database transaction and
// publishes an event once the change is committed.
package controller

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode"

	"github.com/gartstein/policydocs/internal/catalog/auth"
	"github.com/gartstein/policydocs/internal/catalog/db"
	e "github.com/gartstein/policydocs/internal/catalog/errors"
	"github.com/gartstein/policydocs/internal/catalog/events"
	"github.com/gartstein/policydocs/internal/catalog/models"
	"github.com/gartstein/policydocs/internal/catalog/storage"
	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"
)

type EventProducer interface {
	Produce(event events.Event)
}

// Repository defines the read side of the storage used outside transactions.
// Writes go through WithTransaction.
type Repository interface {
	GetCompany(ctx context.Context, id uint) (*models.Company, error)
	GetCompanyByName(ctx context.Context, name string) (*models.Company, error)
	GetUser(ctx context.Context, id uint) (*models.User, error)
	GetEmployee(ctx context.Context, companyID uint, employeeNum int) (*models.User, error)
	ListUsers(ctx context.Context, companyID uint) ([]models.User, error)
	GetProduct(ctx context.Context, companyID uint, companyProductID int) (*models.Product, error)
	ListProducts(ctx context.Context, companyID uint) ([]models.Product, error)
	GetCategory(ctx context.Context, companyID uint, companyCategoryID int) (*models.Category, error)
	ListCategories(ctx context.Context, companyID uint) ([]models.Category, error)
	GetDocument(ctx context.Context, companyID uint, companyDocumentID int) (*models.Document, error)
	SearchDocuments(ctx context.Context, companyID uint, q models.DocumentQuery) (*models.DocumentPage, error)
	ListHistory(ctx context.Context, documentID uint) ([]models.History, error)
	WithTransaction(ctx context.Context, fn func(repo *db.Repository) error) error
	Close() error
}

// Service provides the catalog operations.
type Service struct {
	repo     Repository
	store    storage.Store
	producer EventProducer
	logger   *zap.Logger
	validate *validator.Validate
	now      func() time.Time
}

// NewService constructs a Service with a repository, a blob store, an event
// producer, and a logger.
func NewService(repo Repository, store storage.Store, producer EventProducer, logger *zap.Logger) *Service {
	return &Service{
		repo:     repo,
		store:    store,
		producer: producer,
		logger:   logger.Named("catalog_service"),
		validate: validator.New(),
		now:      time.Now,
	}
}

// Caller resolves an authenticated user id into the caller of an operation.
// Blocked users are rejected.
func (s *Service) Caller(ctx context.Context, userID uint) (*auth.Caller, error) {
	user, err := s.repo.GetUser(ctx, userID)
	if err != nil {
		if errors.Is(err, e.ErrNotFound) {
			return nil, fmt.Errorf("%w: unknown user", e.ErrPermissionDenied)
		}
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	if !user.IsActive {
		return nil, e.ErrInactiveUser
	}
	company, err := s.repo.GetCompany(ctx, user.CompanyID)
	if err != nil {
		return nil, fmt.Errorf("failed to get company: %w", err)
	}
	return &auth.Caller{User: *user, Company: *company}, nil
}

// check validates input against its struct tags.
func (s *Service) check(input interface{}) error {
	err := s.validate.Struct(input)
	if err == nil {
		return nil
	}
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return fmt.Errorf("%w: %v", e.ErrInvalidInput, err)
	}
	verr := &e.ValidationError{Fields: make(map[string]string, len(fieldErrs))}
	for _, fe := range fieldErrs {
		verr.Fields[snakeCase(fe.Field())] = fieldMessage(fe)
	}
	return verr
}

func fieldMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "This field is required."
	case "max":
		return fmt.Sprintf("Ensure this value has at most %s characters.", fe.Param())
	case "min":
		return fmt.Sprintf("Ensure this value is at least %s.", fe.Param())
	case "email":
		return "Enter a valid email address."
	case "alphanum":
		return "Only letters and digits are allowed."
	}
	return fmt.Sprintf("Failed on the %q rule.", fe.Tag())
}

// snakeCase turns a Go field name such as CompanyDocumentID into company_document_id.
func snakeCase(name string) string {
	runes := []rune(name)
	var b strings.Builder
	for i, r := range runes {
		if unicode.IsUpper(r) && i > 0 {
			prevLower := unicode.IsLower(runes[i-1])
			nextLower := i+1 < len(runes) && unicode.IsLower(runes[i+1])
			if prevLower || (unicode.IsUpper(runes[i-1]) && nextLower) {
				b.WriteByte('_')
			}
		}
		b.WriteRune(unicode.ToLower(r))
	}
	return b.String()
}

// wrap adds context to unexpected errors and passes domain errors through.
func wrap(err error, action string) error {
	for _, known := range []error{
		e.ErrNotFound, e.ErrInvalidInput, e.ErrDuplicate,
		e.ErrPermissionDenied, e.ErrInactiveUser, e.ErrStorage,
	} {
		if errors.Is(err, known) {
			return err
		}
	}
	return fmt.Errorf("failed to %s: %w", action, err)
}
