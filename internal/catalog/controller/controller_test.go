package controller

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/gartstein/policydocs/internal/catalog/auth"
	"github.com/gartstein/policydocs/internal/catalog/db"
	e "github.com/gartstein/policydocs/internal/catalog/errors"
	"github.com/gartstein/policydocs/internal/catalog/events"
	"github.com/gartstein/policydocs/internal/catalog/models"
	"github.com/gartstein/policydocs/internal/catalog/storage"
	"github.com/gartstein/policydocs/internal/pkg/utils"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

var fixedNow = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

// MockProducer records produced events.
type MockProducer struct {
	mu     sync.Mutex
	events []events.Event
}

func (m *MockProducer) Produce(event events.Event) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, event)
}

func (m *MockProducer) Types() []events.EventType {
	m.mu.Lock()
	defer m.mu.Unlock()
	types := make([]events.EventType, 0, len(m.events))
	for _, ev := range m.events {
		types = append(types, ev.Type)
	}
	return types
}

func (m *MockProducer) Last() events.Event {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.events[len(m.events)-1]
}

type fixture struct {
	svc      *Service
	repo     *db.Repository
	store    storage.Store
	producer *MockProducer
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	dir := t.TempDir()
	repo, err := db.NewRepository(&db.Config{
		Driver: db.DriverSQLite,
		Path:   filepath.Join(dir, "catalog.db"),
	})
	require.NoError(t, err)
	t.Cleanup(func() { repo.Close() })

	store, err := storage.NewDiskStore(filepath.Join(dir, "files"))
	require.NoError(t, err)

	producer := &MockProducer{}
	svc := NewService(repo, store, producer, zaptest.NewLogger(t))
	svc.now = func() time.Time { return fixedNow }
	return &fixture{svc: svc, repo: repo, store: store, producer: producer}
}

// register creates a company and returns its founder as caller.
func (f *fixture) register(t *testing.T, name string) *auth.Caller {
	t.Helper()
	company, founder, err := f.svc.RegisterCompany(context.Background(), models.NewCompany{
		Name:         name,
		FullName:     name + " Insurance Ltd",
		Email:        name + "@example.com",
		FirstName:    "Founding",
		LastName:     "Admin",
		PasswordHash: "hash",
	})
	require.NoError(t, err)
	return &auth.Caller{User: *founder, Company: *company}
}

// join adds an employee with role to the admin's company.
func (f *fixture) join(t *testing.T, admin *auth.Caller, email string, role models.Role) *auth.Caller {
	t.Helper()
	ctx := context.Background()
	user, err := f.svc.RegisterUser(ctx, models.NewUser{
		CompanyCode:  admin.Company.Code,
		Email:        email,
		FirstName:    "Jane",
		LastName:     "Doe",
		PasswordHash: "hash",
	})
	require.NoError(t, err)
	if role != models.RoleViewer {
		user, err = f.svc.UpdateEmployee(ctx, admin, models.EmployeeUpdate{
			EmployeeNum: user.EmployeeNum,
			Role:        utils.Ptr(role),
		})
		require.NoError(t, err)
	}
	caller, err := f.svc.Caller(ctx, user.ID)
	require.NoError(t, err)
	return caller
}

func fieldError(t *testing.T, err error, field string) string {
	t.Helper()
	var verr *e.ValidationError
	require.True(t, errors.As(err, &verr), "expected a validation error, got %v", err)
	return verr.Fields[field]
}

// conflictField returns the field of a uniqueness conflict.
func conflictField(t *testing.T, err error) string {
	t.Helper()
	require.ErrorIs(t, err, e.ErrDuplicate)
	var cerr *e.ConflictError
	require.True(t, errors.As(err, &cerr), "expected a conflict error, got %v", err)
	return cerr.Field
}

func TestService_RegisterCompany(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	company, founder, err := f.svc.RegisterCompany(ctx, models.NewCompany{
		Name:         "Alpha",
		FullName:     "Alpha Insurance Ltd",
		Email:        "boss@alpha.com",
		FirstName:    "Ann",
		LastName:     "Boss",
		PasswordHash: "hash",
	})
	require.NoError(t, err)

	assert.Equal(t, "alpha", company.Name)
	assert.Len(t, company.Code, 32)
	assert.Equal(t, models.RoleAdmin, founder.Role)
	assert.True(t, founder.Founder)
	assert.True(t, founder.IsActive)
	assert.Equal(t, 1, founder.EmployeeNum)
	assert.Equal(t, company.ID, founder.CompanyID)

	t.Run("name taken", func(t *testing.T) {
		_, _, err := f.svc.RegisterCompany(ctx, models.NewCompany{
			Name: "ALPHA", FullName: "Other", Email: "x@y.com",
			FirstName: "X", LastName: "Y", PasswordHash: "hash",
		})
		assert.NotErrorIs(t, err, e.ErrInvalidInput)
		assert.Equal(t, "name", conflictField(t, err))
	})

	t.Run("email taken", func(t *testing.T) {
		_, _, err := f.svc.RegisterCompany(ctx, models.NewCompany{
			Name: "beta", FullName: "Beta", Email: "BOSS@alpha.com",
			FirstName: "X", LastName: "Y", PasswordHash: "hash",
		})
		assert.Equal(t, "email", conflictField(t, err))
	})

	t.Run("invalid input", func(t *testing.T) {
		_, _, err := f.svc.RegisterCompany(ctx, models.NewCompany{
			Name: "not a slug", Email: "nope",
		})
		assert.Equal(t, "Only letters and digits are allowed.", fieldError(t, err, "name"))
		assert.Equal(t, "Enter a valid email address.", fieldError(t, err, "email"))
		assert.Equal(t, "This field is required.", fieldError(t, err, "full_name"))
	})
}

func TestService_RegisterUser(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	admin := f.register(t, "alpha")

	user, err := f.svc.RegisterUser(ctx, models.NewUser{
		CompanyCode: admin.Company.Code, Email: "jane@alpha.com",
		FirstName: "Jane", LastName: "Doe", PasswordHash: "hash",
	})
	require.NoError(t, err)
	assert.Equal(t, models.RoleViewer, user.Role)
	assert.Equal(t, 2, user.EmployeeNum)
	assert.False(t, user.Founder)

	_, err = f.svc.RegisterUser(ctx, models.NewUser{
		CompanyCode: "wrong", Email: "joe@alpha.com",
		FirstName: "Joe", LastName: "Doe", PasswordHash: "hash",
	})
	assert.Equal(t, "Invalid company code.", fieldError(t, err, "company_code"))

	_, err = f.svc.RegisterUser(ctx, models.NewUser{
		CompanyCode: admin.Company.Code, Email: "jane@alpha.com",
		FirstName: "Jane", LastName: "Again", PasswordHash: "hash",
	})
	assert.Equal(t, "email", conflictField(t, err))
}

func TestService_EmployeeNumbersArePerCompany(t *testing.T) {
	f := newFixture(t)
	alpha := f.register(t, "alpha")
	beta := f.register(t, "beta")

	a2 := f.join(t, alpha, "a2@alpha.com", models.RoleViewer)
	b2 := f.join(t, beta, "b2@beta.com", models.RoleViewer)
	a3 := f.join(t, alpha, "a3@alpha.com", models.RoleViewer)

	assert.Equal(t, 2, a2.User.EmployeeNum)
	assert.Equal(t, 2, b2.User.EmployeeNum)
	assert.Equal(t, 3, a3.User.EmployeeNum)
}

func TestService_Caller(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	admin := f.register(t, "alpha")
	viewer := f.join(t, admin, "v@alpha.com", models.RoleViewer)

	caller, err := f.svc.Caller(ctx, viewer.User.ID)
	require.NoError(t, err)
	assert.Equal(t, "alpha", caller.Company.Name)

	_, err = f.svc.UpdateEmployee(ctx, admin, models.EmployeeUpdate{
		EmployeeNum: viewer.User.EmployeeNum,
		IsActive:    utils.Ptr(false),
	})
	require.NoError(t, err)

	_, err = f.svc.Caller(ctx, viewer.User.ID)
	assert.ErrorIs(t, err, e.ErrInactiveUser)

	_, err = f.svc.Caller(ctx, 999)
	assert.ErrorIs(t, err, e.ErrPermissionDenied)
}

func TestService_UpdateEmployee(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	admin := f.register(t, "alpha")
	viewer := f.join(t, admin, "v@alpha.com", models.RoleViewer)

	t.Run("founder stays an active admin", func(t *testing.T) {
		_, err := f.svc.UpdateEmployee(ctx, admin, models.EmployeeUpdate{
			EmployeeNum: 1,
			IsActive:    utils.Ptr(false),
			Role:        utils.Ptr(models.RoleViewer),
		})
		assert.Equal(t, "The first user in the company must be active.", fieldError(t, err, "is_active"))
		assert.Equal(t, "The first user in the company must be an admin.", fieldError(t, err, "role"))

		founder, err := f.svc.GetEmployee(ctx, admin, 1)
		require.NoError(t, err)
		assert.True(t, founder.IsActive)
		assert.Equal(t, models.RoleAdmin, founder.Role)
	})

	t.Run("founder names can change", func(t *testing.T) {
		user, err := f.svc.UpdateEmployee(ctx, admin, models.EmployeeUpdate{
			EmployeeNum:   1,
			ProfileUpdate: models.ProfileUpdate{LastName: utils.Ptr("Smith")},
		})
		require.NoError(t, err)
		assert.Equal(t, "Smith", user.LastName)
	})

	t.Run("promote viewer", func(t *testing.T) {
		user, err := f.svc.UpdateEmployee(ctx, admin, models.EmployeeUpdate{
			EmployeeNum: viewer.User.EmployeeNum,
			Role:        utils.Ptr(models.RoleContributor),
		})
		require.NoError(t, err)
		assert.Equal(t, models.RoleContributor, user.Role)
	})

	t.Run("unknown role", func(t *testing.T) {
		_, err := f.svc.UpdateEmployee(ctx, admin, models.EmployeeUpdate{
			EmployeeNum: viewer.User.EmployeeNum,
			Role:        utils.Ptr(models.Role("owner")),
		})
		assert.NotEmpty(t, fieldError(t, err, "role"))
	})

	t.Run("non admin is denied", func(t *testing.T) {
		_, err := f.svc.UpdateEmployee(ctx, viewer, models.EmployeeUpdate{
			EmployeeNum: 1,
			Role:        utils.Ptr(models.RoleViewer),
		})
		assert.ErrorIs(t, err, e.ErrPermissionDenied)
	})

	t.Run("employee of another company", func(t *testing.T) {
		other := f.register(t, "beta")
		_, err := f.svc.UpdateEmployee(ctx, other, models.EmployeeUpdate{
			EmployeeNum: viewer.User.EmployeeNum,
			IsActive:    utils.Ptr(false),
		})
		assert.ErrorIs(t, err, e.ErrNotFound)
	})
}

func TestService_UpdateProfile(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	admin := f.register(t, "alpha")
	viewer := f.join(t, admin, "v@alpha.com", models.RoleViewer)

	user, err := f.svc.UpdateProfile(ctx, viewer, models.ProfileUpdate{
		FirstName: utils.Ptr("  Vera "),
		Email:     utils.Ptr("vera@alpha.com"),
	})
	require.NoError(t, err)
	assert.Equal(t, "Vera", user.FirstName)
	assert.Equal(t, "Doe", user.LastName)
	assert.Equal(t, "vera@alpha.com", user.Email)
	assert.Equal(t, models.RoleViewer, user.Role)

	_, err = f.svc.UpdateProfile(ctx, viewer, models.ProfileUpdate{Email: utils.Ptr("alpha@example.com")})
	assert.Equal(t, "email", conflictField(t, err))

	_, err = f.svc.UpdateProfile(ctx, viewer, models.ProfileUpdate{LastName: utils.Ptr(" ")})
	assert.Equal(t, "This field is required.", fieldError(t, err, "last_name"))
}

func TestService_ListUsers(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	admin := f.register(t, "alpha")
	f.join(t, admin, "v@alpha.com", models.RoleViewer)
	f.register(t, "beta")

	users, err := f.svc.ListUsers(ctx, admin)
	require.NoError(t, err)
	require.Len(t, users, 2)
	assert.Equal(t, 1, users[0].EmployeeNum)
	assert.Equal(t, 2, users[1].EmployeeNum)
}

func TestService_Bootstrap(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	in := models.NewCompany{
		Name: "admin", FullName: "Administration", Email: "root@example.com",
		FirstName: "Root", LastName: "Admin", PasswordHash: "hash",
	}

	company, created, err := f.svc.Bootstrap(ctx, in)
	require.NoError(t, err)
	assert.True(t, created)

	again, created, err := f.svc.Bootstrap(ctx, in)
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, company.ID, again.ID)
}

func TestSnakeCase(t *testing.T) {
	assert.Equal(t, "company_document_id", snakeCase("CompanyDocumentID"))
	assert.Equal(t, "first_name", snakeCase("FirstName"))
	assert.Equal(t, "email", snakeCase("Email"))
}
