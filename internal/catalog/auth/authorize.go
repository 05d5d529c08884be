package auth

import (
	e "github.com/gartstein/policydocs/internal/catalog/errors"
	"github.com/gartstein/policydocs/internal/catalog/models"
)

// Caller is an authenticated, active user together with their company.
type Caller struct {
	User    models.User
	Company models.Company
}

// Operation is an action guarded by Authorize.
type Operation int

const (
	// ViewDocuments covers listing, reading, history and download.
	ViewDocuments Operation = iota
	ManageDocuments
	ViewCatalog
	ManageCatalog
	ViewUsers
	ManageUsers
	// EditOwnProfile lets every employee change their own contact data.
	EditOwnProfile
)

var operationNames = map[Operation]string{
	ViewDocuments:   "view documents",
	ManageDocuments: "manage documents",
	ViewCatalog:     "view catalog",
	ManageCatalog:   "manage catalog",
	ViewUsers:       "view users",
	ManageUsers:     "manage users",
	EditOwnProfile:  "edit own profile",
}

func (o Operation) String() string {
	if name, ok := operationNames[o]; ok {
		return name
	}
	return "unknown operation"
}

var (
	readOnly = []Operation{ViewDocuments, ViewCatalog, ViewUsers, EditOwnProfile}
	policies = map[models.Role]map[Operation]bool{
		models.RoleViewer:      allow(readOnly...),
		models.RoleContributor: allow(append([]Operation{ManageDocuments, ManageCatalog}, readOnly...)...),
		models.RoleAdmin:       allow(append([]Operation{ManageDocuments, ManageCatalog, ManageUsers}, readOnly...)...),
	}
)

func allow(ops ...Operation) map[Operation]bool {
	m := make(map[Operation]bool, len(ops))
	for _, op := range ops {
		m[op] = true
	}
	return m
}

// Authorize decides whether caller may perform op on data owned by
// companyID. Data of another company is reported as not found so that its
// existence is not revealed.
func Authorize(caller *Caller, op Operation, companyID uint) error {
	if caller == nil {
		return e.ErrPermissionDenied
	}
	if !caller.User.IsActive {
		return e.ErrInactiveUser
	}
	if caller.User.CompanyID != caller.Company.ID || caller.Company.ID != companyID {
		return e.ErrNotFound
	}
	if !policies[caller.User.Role][op] {
		return e.ErrPermissionDenied
	}
	return nil
}
