package handlers

import (
	"errors"
	"net/http"
	"time"

	e "github.com/gartstein/policydocs/internal/catalog/errors"
	"github.com/gartstein/policydocs/internal/catalog/filename"
	"github.com/gartstein/policydocs/internal/catalog/models"
	"go.uber.org/zap"
)

type companyDTO struct {
	Name      string    `json:"name"`
	FullName  string    `json:"full_name"`
	Code      string    `json:"code,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

type userDTO struct {
	EmployeeNum int    `json:"employee_num"`
	Email       string `json:"email"`
	FirstName   string `json:"first_name"`
	LastName    string `json:"last_name"`
	Role        string `json:"role"`
	IsActive    bool   `json:"is_active"`
	Founder     bool   `json:"founder"`
}

type productDTO struct {
	ID            int    `json:"id"`
	Name          string `json:"name"`
	Model         string `json:"model"`
	Display       string `json:"display"`
	DocumentCount *int64 `json:"document_count,omitempty"`
}

type categoryDTO struct {
	ID            int    `json:"id"`
	Name          string `json:"name"`
	DocumentCount *int64 `json:"document_count,omitempty"`
}

type documentDTO struct {
	ID            int         `json:"id"`
	Slug          string      `json:"slug"`
	Product       productDTO  `json:"product"`
	Category      categoryDTO `json:"category"`
	ValidityStart string      `json:"validity_start"`
	File          string      `json:"file"`
	Title         string      `json:"title"`
	Description   string      `json:"description"`
	CreatedBy     string      `json:"created_by"`
	CreatedAt     time.Time   `json:"created_at"`
}

type historyDTO struct {
	Element     string    `json:"element"`
	ChangedFrom string    `json:"changed_from"`
	ChangedTo   string    `json:"changed_to"`
	ChangedBy   string    `json:"changed_by"`
	ChangedAt   time.Time `json:"changed_at"`
}

type pageDTO struct {
	Documents  []documentDTO `json:"documents"`
	Page       int           `json:"page"`
	TotalPages int           `json:"total_pages"`
	Total      int64         `json:"total"`
}

type noticeDTO struct {
	Message               string `json:"message"`
	Sent                  string `json:"sent"`
	Stored                string `json:"stored"`
	ConflictingDocumentID int    `json:"conflicting_document_id,omitempty"`
}

type errorDTO struct {
	Error      string            `json:"error"`
	Fields     map[string]string `json:"fields,omitempty"`
	DocumentID int               `json:"document_id,omitempty"`
}

func toCompanyDTO(c *models.Company, withCode bool) companyDTO {
	dto := companyDTO{Name: c.Name, FullName: c.FullName, CreatedAt: c.CreatedAt}
	if withCode {
		dto.Code = c.Code
	}
	return dto
}

func toUserDTO(u *models.User) userDTO {
	return userDTO{
		EmployeeNum: u.EmployeeNum,
		Email:       u.Email,
		FirstName:   u.FirstName,
		LastName:    u.LastName,
		Role:        string(u.Role),
		IsActive:    u.IsActive,
		Founder:     u.Founder,
	}
}

func toUserDTOs(users []models.User) []userDTO {
	out := make([]userDTO, 0, len(users))
	for i := range users {
		out = append(out, toUserDTO(&users[i]))
	}
	return out
}

func toProductDTO(p *models.Product) productDTO {
	return productDTO{ID: p.CompanyProductID, Name: p.Name, Model: p.Model, Display: p.String()}
}

func toCategoryDTO(c *models.Category) categoryDTO {
	return categoryDTO{ID: c.CompanyCategoryID, Name: c.Name}
}

func toDocumentDTO(d *models.Document) documentDTO {
	return documentDTO{
		ID:            d.CompanyDocumentID,
		Slug:          d.Slug(),
		Product:       toProductDTO(&d.Product),
		Category:      toCategoryDTO(&d.Category),
		ValidityStart: d.ValidityStart.Format(models.DateLayout),
		File:          d.File,
		Title:         d.Title,
		Description:   d.Description,
		CreatedBy:     d.CreatedBy.FullName(),
		CreatedAt:     d.CreatedAt,
	}
}

func toPageDTO(p *models.DocumentPage) pageDTO {
	docs := make([]documentDTO, 0, len(p.Documents))
	for i := range p.Documents {
		docs = append(docs, toDocumentDTO(&p.Documents[i]))
	}
	return pageDTO{Documents: docs, Page: p.Page, TotalPages: p.TotalPages, Total: p.Total}
}

func toHistoryDTOs(entries []models.History) []historyDTO {
	out := make([]historyDTO, 0, len(entries))
	for _, h := range entries {
		out = append(out, historyDTO{
			Element:     h.Element,
			ChangedFrom: h.ChangedFrom,
			ChangedTo:   h.ChangedTo,
			ChangedBy:   h.ChangedBy.FullName(),
			ChangedAt:   h.ChangedAt,
		})
	}
	return out
}

func toNoticeDTO(n *filename.Notice) *noticeDTO {
	if n == nil {
		return nil
	}
	return &noticeDTO{
		Message:               n.Message(),
		Sent:                  n.Sent,
		Stored:                n.Stored,
		ConflictingDocumentID: n.ConflictingDocumentID,
	}
}

// mapServiceError maps domain or repository errors to an HTTP status and body.
func (h *Handler) mapServiceError(err error) (int, errorDTO) {
	body := errorDTO{Error: err.Error()}

	var verr *e.ValidationError
	var dup *e.DuplicateDocumentError
	var conflict *e.ConflictError
	switch {
	case errors.As(err, &verr):
		body.Fields = verr.Fields
		return http.StatusBadRequest, body
	case errors.As(err, &conflict):
		body.Fields = map[string]string{conflict.Field: conflict.Message}
		return http.StatusConflict, body
	case errors.As(err, &dup):
		body.DocumentID = dup.CompanyDocumentID
		return http.StatusConflict, body
	case errors.Is(err, e.ErrInvalidInput):
		return http.StatusBadRequest, body
	case errors.Is(err, e.ErrDuplicate):
		return http.StatusConflict, body
	case errors.Is(err, e.ErrNotFound):
		return http.StatusNotFound, body
	case errors.Is(err, e.ErrInactiveUser):
		return http.StatusUnauthorized, body
	case errors.Is(err, e.ErrPermissionDenied):
		return http.StatusForbidden, body
	case errors.Is(err, e.ErrStorage):
		h.logger.Warn("Storage unavailable", zap.Error(err))
		return http.StatusServiceUnavailable, errorDTO{Error: "storage temporarily unavailable"}
	default:
		h.logger.Error("Internal server error", zap.Error(err))
		return http.StatusInternalServerError, errorDTO{Error: "internal server error"}
	}
}
