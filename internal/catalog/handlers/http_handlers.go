package handlers

import (
	"context"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/gartstein/policydocs/internal/catalog/auth"
	e "github.com/gartstein/policydocs/internal/catalog/errors"
	"github.com/gartstein/policydocs/internal/catalog/filename"
	"github.com/gartstein/policydocs/internal/catalog/models"
	"github.com/grpc-ecosystem/grpc-gateway/v2/runtime"
	"go.uber.org/zap"
)

// maxUploadBytes bounds the multipart body of an upload.
const maxUploadBytes = 32 << 20

var marshaler = &runtime.JSONBuiltin{}

// CatalogController defines the business logic interface that the HTTP
// handlers invoke.
type CatalogController interface {
	Caller(ctx context.Context, userID uint) (*auth.Caller, error)

	RegisterCompany(ctx context.Context, in models.NewCompany) (*models.Company, *models.User, error)
	RegisterUser(ctx context.Context, in models.NewUser) (*models.User, error)
	ListUsers(ctx context.Context, caller *auth.Caller) ([]models.User, error)
	GetEmployee(ctx context.Context, caller *auth.Caller, employeeNum int) (*models.User, error)
	UpdateProfile(ctx context.Context, caller *auth.Caller, upd models.ProfileUpdate) (*models.User, error)
	UpdateEmployee(ctx context.Context, caller *auth.Caller, upd models.EmployeeUpdate) (*models.User, error)

	ListProducts(ctx context.Context, caller *auth.Caller) ([]models.Product, error)
	GetProduct(ctx context.Context, caller *auth.Caller, id int) (*models.Product, error)
	CreateProduct(ctx context.Context, caller *auth.Caller, in models.ProductInput) (*models.Product, error)
	EditProduct(ctx context.Context, caller *auth.Caller, id int, in models.ProductInput) (*models.Product, error)
	DeleteProduct(ctx context.Context, caller *auth.Caller, id int) error

	ListCategories(ctx context.Context, caller *auth.Caller) ([]models.Category, error)
	GetCategory(ctx context.Context, caller *auth.Caller, id int) (*models.Category, error)
	CreateCategory(ctx context.Context, caller *auth.Caller, in models.CategoryInput) (*models.Category, error)
	EditCategory(ctx context.Context, caller *auth.Caller, id int, in models.CategoryInput) (*models.Category, error)
	DeleteCategory(ctx context.Context, caller *auth.Caller, id int) error

	ListDocuments(ctx context.Context, caller *auth.Caller, q models.DocumentQuery) (*models.DocumentPage, error)
	GetDocument(ctx context.Context, caller *auth.Caller, id int) (*models.Document, error)
	CreateDocument(ctx context.Context, caller *auth.Caller, in models.NewDocument) (*models.Document, *filename.Notice, error)
	EditDocument(ctx context.Context, caller *auth.Caller, upd models.DocumentUpdate) (*models.Document, error)
	DeleteDocument(ctx context.Context, caller *auth.Caller, id int) error
	DocumentHistory(ctx context.Context, caller *auth.Caller, id int) ([]models.History, error)
	Download(ctx context.Context, caller *auth.Caller, id int) (*models.Download, error)
}

// Handler translates HTTP requests into controller calls.
type Handler struct {
	service   CatalogController
	jwtSecret string
	logger    *zap.Logger
}

// NewHandler constructs a Handler. jwtSecret signs the tokens handed out on
// registration.
func NewHandler(service CatalogController, jwtSecret string, logger *zap.Logger) *Handler {
	return &Handler{
		service:   service,
		jwtSecret: jwtSecret,
		logger:    logger.Named("http_handler"),
	}
}

type route struct {
	method  string
	pattern string
	handle  runtime.HandlerFunc
}

// Register adds every API route to mux.
func (h *Handler) Register(mux *runtime.ServeMux) error {
	routes := []route{
		{http.MethodPost, "/v1/companies", h.registerCompany},
		{http.MethodPost, "/v1/users", h.registerUser},
		{http.MethodGet, "/v1/users", h.authed(h.listUsers)},
		{http.MethodGet, "/v1/users/{num}", h.authed(h.getEmployee)},
		{http.MethodPatch, "/v1/users/{num}", h.authed(h.updateEmployee)},
		{http.MethodPatch, "/v1/profile", h.authed(h.updateProfile)},

		{http.MethodGet, "/v1/products", h.authed(h.listProducts)},
		{http.MethodPost, "/v1/products", h.authed(h.createProduct)},
		{http.MethodGet, "/v1/products/{id}", h.authed(h.getProduct)},
		{http.MethodPatch, "/v1/products/{id}", h.authed(h.editProduct)},
		{http.MethodDelete, "/v1/products/{id}", h.authed(h.deleteProduct)},

		{http.MethodGet, "/v1/categories", h.authed(h.listCategories)},
		{http.MethodPost, "/v1/categories", h.authed(h.createCategory)},
		{http.MethodGet, "/v1/categories/{id}", h.authed(h.getCategory)},
		{http.MethodPatch, "/v1/categories/{id}", h.authed(h.editCategory)},
		{http.MethodDelete, "/v1/categories/{id}", h.authed(h.deleteCategory)},

		{http.MethodGet, "/v1/documents", h.authed(h.listDocuments)},
		{http.MethodPost, "/v1/documents", h.authed(h.createDocument)},
		{http.MethodGet, "/v1/documents/{id}", h.authed(h.getDocument)},
		{http.MethodPatch, "/v1/documents/{id}", h.authed(h.editDocument)},
		{http.MethodDelete, "/v1/documents/{id}", h.authed(h.deleteDocument)},
		{http.MethodGet, "/v1/documents/{id}/history", h.authed(h.documentHistory)},
		{http.MethodGet, "/v1/documents/{id}/file", h.authed(h.download)},
	}
	for _, r := range routes {
		if err := mux.HandlePath(r.method, r.pattern, r.handle); err != nil {
			return fmt.Errorf("register %s %s: %w", r.method, r.pattern, err)
		}
	}
	return nil
}

type callerHandler func(w http.ResponseWriter, r *http.Request, caller *auth.Caller, params map[string]string)

// authed resolves the authenticated user into a caller before invoking next.
func (h *Handler) authed(next callerHandler) runtime.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request, params map[string]string) {
		userID, ok := auth.UserIDFromContext(r.Context())
		if !ok {
			writeJSON(w, http.StatusUnauthorized, errorDTO{Error: "authentication required"})
			return
		}
		caller, err := h.service.Caller(r.Context(), userID)
		if err != nil {
			h.writeError(w, err)
			return
		}
		next(w, r, caller, params)
	}
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	data, err := marshaler.Marshal(v)
	if err != nil {
		http.Error(w, "failed to encode response", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", marshaler.ContentType(v))
	w.WriteHeader(status)
	_, _ = w.Write(data)
}

func (h *Handler) writeError(w http.ResponseWriter, err error) {
	status, body := h.mapServiceError(err)
	writeJSON(w, status, body)
}

func decode(r *http.Request, v interface{}) error {
	if err := marshaler.NewDecoder(r.Body).Decode(v); err != nil {
		return fmt.Errorf("%w: malformed JSON body: %v", e.ErrInvalidInput, err)
	}
	return nil
}

func pathInt(params map[string]string, name string) (int, error) {
	n, err := strconv.Atoi(params[name])
	if err != nil || n < 1 {
		return 0, e.Invalid(name, "Enter a valid identifier.")
	}
	return n, nil
}

func queryInt(q url.Values, name string) (int, error) {
	raw := q.Get(name)
	if raw == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, e.Invalid(name, "Enter a whole number.")
	}
	return n, nil
}

func parseDate(field, raw string) (time.Time, error) {
	d, err := time.Parse(models.DateLayout, raw)
	if err != nil {
		return time.Time{}, e.Invalid(field, "Enter a valid date (YYYY-MM-DD).")
	}
	return d, nil
}

type registerCompanyRequest struct {
	Name         string `json:"name"`
	FullName     string `json:"full_name"`
	Email        string `json:"email"`
	FirstName    string `json:"first_name"`
	LastName     string `json:"last_name"`
	PasswordHash string `json:"password_hash"`
}

type registerUserRequest struct {
	CompanyCode  string `json:"company_code"`
	Email        string `json:"email"`
	FirstName    string `json:"first_name"`
	LastName     string `json:"last_name"`
	PasswordHash string `json:"password_hash"`
}

type profileRequest struct {
	FirstName *string `json:"first_name"`
	LastName  *string `json:"last_name"`
	Email     *string `json:"email"`
}

type employeeRequest struct {
	profileRequest
	IsActive *bool   `json:"is_active"`
	Role     *string `json:"role"`
}

type productRequest struct {
	Name  string `json:"name"`
	Model string `json:"model"`
}

type categoryRequest struct {
	Name string `json:"name"`
}

type documentUpdateRequest struct {
	ProductID     *int    `json:"product_id"`
	CategoryID    *int    `json:"category_id"`
	ValidityStart *string `json:"validity_start"`
	Title         *string `json:"title"`
	Description   *string `json:"description"`
}

func (h *Handler) registerCompany(w http.ResponseWriter, r *http.Request, _ map[string]string) {
	var req registerCompanyRequest
	if err := decode(r, &req); err != nil {
		h.writeError(w, err)
		return
	}
	company, founder, err := h.service.RegisterCompany(r.Context(), models.NewCompany(req))
	if err != nil {
		h.writeError(w, err)
		return
	}
	token, err := auth.GenerateToken(founder.ID, h.jwtSecret)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]interface{}{
		"company": toCompanyDTO(company, true),
		"user":    toUserDTO(founder),
		"token":   token,
	})
}

func (h *Handler) registerUser(w http.ResponseWriter, r *http.Request, _ map[string]string) {
	var req registerUserRequest
	if err := decode(r, &req); err != nil {
		h.writeError(w, err)
		return
	}
	user, err := h.service.RegisterUser(r.Context(), models.NewUser(req))
	if err != nil {
		h.writeError(w, err)
		return
	}
	token, err := auth.GenerateToken(user.ID, h.jwtSecret)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]interface{}{
		"user":  toUserDTO(user),
		"token": token,
	})
}

func (h *Handler) listUsers(w http.ResponseWriter, r *http.Request, caller *auth.Caller, _ map[string]string) {
	users, err := h.service.ListUsers(r.Context(), caller)
	if err != nil {
		h.writeError(w, err)
		return
	}
	company := toCompanyDTO(&caller.Company, caller.User.Role == models.RoleAdmin)
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"company": company,
		"users":   toUserDTOs(users),
	})
}

func (h *Handler) getEmployee(w http.ResponseWriter, r *http.Request, caller *auth.Caller, params map[string]string) {
	num, err := pathInt(params, "num")
	if err != nil {
		h.writeError(w, err)
		return
	}
	user, err := h.service.GetEmployee(r.Context(), caller, num)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toUserDTO(user))
}

func (h *Handler) updateEmployee(w http.ResponseWriter, r *http.Request, caller *auth.Caller, params map[string]string) {
	num, err := pathInt(params, "num")
	if err != nil {
		h.writeError(w, err)
		return
	}
	var req employeeRequest
	if err := decode(r, &req); err != nil {
		h.writeError(w, err)
		return
	}
	upd := models.EmployeeUpdate{
		EmployeeNum:   num,
		ProfileUpdate: models.ProfileUpdate(req.profileRequest),
		IsActive:      req.IsActive,
	}
	if req.Role != nil {
		role := models.Role(*req.Role)
		upd.Role = &role
	}
	user, err := h.service.UpdateEmployee(r.Context(), caller, upd)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toUserDTO(user))
}

func (h *Handler) updateProfile(w http.ResponseWriter, r *http.Request, caller *auth.Caller, _ map[string]string) {
	var req profileRequest
	if err := decode(r, &req); err != nil {
		h.writeError(w, err)
		return
	}
	user, err := h.service.UpdateProfile(r.Context(), caller, models.ProfileUpdate(req))
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toUserDTO(user))
}

func (h *Handler) listProducts(w http.ResponseWriter, r *http.Request, caller *auth.Caller, _ map[string]string) {
	products, err := h.service.ListProducts(r.Context(), caller)
	if err != nil {
		h.writeError(w, err)
		return
	}
	out := make([]productDTO, 0, len(products))
	for i := range products {
		dto := toProductDTO(&products[i])
		dto.DocumentCount = &products[i].DocumentCount
		out = append(out, dto)
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"products": out})
}

func (h *Handler) getProduct(w http.ResponseWriter, r *http.Request, caller *auth.Caller, params map[string]string) {
	id, err := pathInt(params, "id")
	if err != nil {
		h.writeError(w, err)
		return
	}
	product, err := h.service.GetProduct(r.Context(), caller, id)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toProductDTO(product))
}

func (h *Handler) createProduct(w http.ResponseWriter, r *http.Request, caller *auth.Caller, _ map[string]string) {
	var req productRequest
	if err := decode(r, &req); err != nil {
		h.writeError(w, err)
		return
	}
	product, err := h.service.CreateProduct(r.Context(), caller, models.ProductInput(req))
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toProductDTO(product))
}

func (h *Handler) editProduct(w http.ResponseWriter, r *http.Request, caller *auth.Caller, params map[string]string) {
	id, err := pathInt(params, "id")
	if err != nil {
		h.writeError(w, err)
		return
	}
	var req productRequest
	if err := decode(r, &req); err != nil {
		h.writeError(w, err)
		return
	}
	product, err := h.service.EditProduct(r.Context(), caller, id, models.ProductInput(req))
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toProductDTO(product))
}

func (h *Handler) deleteProduct(w http.ResponseWriter, r *http.Request, caller *auth.Caller, params map[string]string) {
	id, err := pathInt(params, "id")
	if err != nil {
		h.writeError(w, err)
		return
	}
	if err := h.service.DeleteProduct(r.Context(), caller, id); err != nil {
		h.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) listCategories(w http.ResponseWriter, r *http.Request, caller *auth.Caller, _ map[string]string) {
	categories, err := h.service.ListCategories(r.Context(), caller)
	if err != nil {
		h.writeError(w, err)
		return
	}
	out := make([]categoryDTO, 0, len(categories))
	for i := range categories {
		dto := toCategoryDTO(&categories[i])
		dto.DocumentCount = &categories[i].DocumentCount
		out = append(out, dto)
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"categories": out})
}

func (h *Handler) getCategory(w http.ResponseWriter, r *http.Request, caller *auth.Caller, params map[string]string) {
	id, err := pathInt(params, "id")
	if err != nil {
		h.writeError(w, err)
		return
	}
	category, err := h.service.GetCategory(r.Context(), caller, id)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toCategoryDTO(category))
}

func (h *Handler) createCategory(w http.ResponseWriter, r *http.Request, caller *auth.Caller, _ map[string]string) {
	var req categoryRequest
	if err := decode(r, &req); err != nil {
		h.writeError(w, err)
		return
	}
	category, err := h.service.CreateCategory(r.Context(), caller, models.CategoryInput(req))
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toCategoryDTO(category))
}

func (h *Handler) editCategory(w http.ResponseWriter, r *http.Request, caller *auth.Caller, params map[string]string) {
	id, err := pathInt(params, "id")
	if err != nil {
		h.writeError(w, err)
		return
	}
	var req categoryRequest
	if err := decode(r, &req); err != nil {
		h.writeError(w, err)
		return
	}
	category, err := h.service.EditCategory(r.Context(), caller, id, models.CategoryInput(req))
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toCategoryDTO(category))
}

func (h *Handler) deleteCategory(w http.ResponseWriter, r *http.Request, caller *auth.Caller, params map[string]string) {
	id, err := pathInt(params, "id")
	if err != nil {
		h.writeError(w, err)
		return
	}
	if err := h.service.DeleteCategory(r.Context(), caller, id); err != nil {
		h.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) listDocuments(w http.ResponseWriter, r *http.Request, caller *auth.Caller, _ map[string]string) {
	q := r.URL.Query()
	query := models.DocumentQuery{Phrase: q.Get("q")}
	var err error
	if query.ProductID, err = queryInt(q, "product"); err != nil {
		h.writeError(w, err)
		return
	}
	if query.CategoryID, err = queryInt(q, "category"); err != nil {
		h.writeError(w, err)
		return
	}
	// An unreadable page number shows the first page.
	query.Page, _ = queryInt(q, "page")

	page, err := h.service.ListDocuments(r.Context(), caller, query)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toPageDTO(page))
}

func (h *Handler) getDocument(w http.ResponseWriter, r *http.Request, caller *auth.Caller, params map[string]string) {
	id, err := pathInt(params, "id")
	if err != nil {
		h.writeError(w, err)
		return
	}
	doc, err := h.service.GetDocument(r.Context(), caller, id)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toDocumentDTO(doc))
}

// createDocument accepts a multipart form with the fields product_id,
// category_id, validity_start, title, description and the file part "file".
func (h *Handler) createDocument(w http.ResponseWriter, r *http.Request, caller *auth.Caller, _ map[string]string) {
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)
	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		h.writeError(w, fmt.Errorf("%w: malformed upload: %v", e.ErrInvalidInput, err))
		return
	}
	defer r.MultipartForm.RemoveAll()

	fields := map[string]string{}
	in := models.NewDocument{
		Title:       r.FormValue("title"),
		Description: r.FormValue("description"),
	}
	var err error
	if in.ProductID, err = strconv.Atoi(r.FormValue("product_id")); err != nil {
		fields["product_id"] = "Select a valid product."
	}
	if in.CategoryID, err = strconv.Atoi(r.FormValue("category_id")); err != nil {
		fields["category_id"] = "Select a valid category."
	}
	if raw := r.FormValue("validity_start"); raw != "" {
		if in.ValidityStart, err = parseDate("validity_start", raw); err != nil {
			fields["validity_start"] = "Enter a valid date (YYYY-MM-DD)."
		}
	}
	file, header, err := r.FormFile("file")
	if err != nil {
		fields["file"] = "This field is required."
	} else {
		defer file.Close()
		in.File = file
		in.FileName = header.Filename
	}
	if len(fields) > 0 {
		h.writeError(w, &e.ValidationError{Fields: fields})
		return
	}

	doc, notice, err := h.service.CreateDocument(r.Context(), caller, in)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]interface{}{
		"document": toDocumentDTO(doc),
		"notice":   toNoticeDTO(notice),
	})
}

func (h *Handler) editDocument(w http.ResponseWriter, r *http.Request, caller *auth.Caller, params map[string]string) {
	id, err := pathInt(params, "id")
	if err != nil {
		h.writeError(w, err)
		return
	}
	var req documentUpdateRequest
	if err := decode(r, &req); err != nil {
		h.writeError(w, err)
		return
	}
	upd := models.DocumentUpdate{
		CompanyDocumentID: id,
		ProductID:         req.ProductID,
		CategoryID:        req.CategoryID,
		Title:             req.Title,
		Description:       req.Description,
	}
	if req.ValidityStart != nil {
		d, err := parseDate("validity_start", *req.ValidityStart)
		if err != nil {
			h.writeError(w, err)
			return
		}
		upd.ValidityStart = &d
	}
	doc, err := h.service.EditDocument(r.Context(), caller, upd)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toDocumentDTO(doc))
}

func (h *Handler) deleteDocument(w http.ResponseWriter, r *http.Request, caller *auth.Caller, params map[string]string) {
	id, err := pathInt(params, "id")
	if err != nil {
		h.writeError(w, err)
		return
	}
	if err := h.service.DeleteDocument(r.Context(), caller, id); err != nil {
		h.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) documentHistory(w http.ResponseWriter, r *http.Request, caller *auth.Caller, params map[string]string) {
	id, err := pathInt(params, "id")
	if err != nil {
		h.writeError(w, err)
		return
	}
	entries, err := h.service.DocumentHistory(r.Context(), caller, id)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"history": toHistoryDTOs(entries)})
}

func (h *Handler) download(w http.ResponseWriter, r *http.Request, caller *auth.Caller, params map[string]string) {
	id, err := pathInt(params, "id")
	if err != nil {
		h.writeError(w, err)
		return
	}
	dl, err := h.service.Download(r.Context(), caller, id)
	if err != nil {
		h.writeError(w, err)
		return
	}
	defer dl.Body.Close()

	w.Header().Set("Content-Type", dl.ContentType)
	w.Header().Set("Content-Disposition", mime.FormatMediaType("attachment", map[string]string{"filename": dl.FileName}))
	w.WriteHeader(http.StatusOK)
	if _, err := io.Copy(w, dl.Body); err != nil && !errors.Is(err, context.Canceled) {
		h.logger.Warn("Download interrupted", zap.Error(err), zap.Int("document_id", id))
	}
}
