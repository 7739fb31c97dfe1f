// internal/app/features/products/handler.go
package products

import (
	"context"
	"errors"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/dalemusser/productcatalog/auth/apikey"
	"github.com/dalemusser/productcatalog/httputil"
	"github.com/dalemusser/productcatalog/internal/app/store/catalogdb"
	productstore "github.com/dalemusser/productcatalog/internal/app/store/products"
	"github.com/dalemusser/productcatalog/internal/domain/models"
	"github.com/go-chi/chi/v5"
	"go.mongodb.org/mongo-driver/bson"
	"go.uber.org/zap"
)

// productStore is the slice of the product store the handlers use.
type productStore interface {
	Create(ctx context.Context, p models.Product) (models.Product, error)
	Get(ctx context.Context, id string) (models.Product, error)
	List(ctx context.Context, opts productstore.ListOptions) (productstore.Page, error)
	Update(ctx context.Context, id string, p models.Product) (models.Product, error)
	Delete(ctx context.Context, id string) error
	All(ctx context.Context) ([]models.Product, error)
}

// Handler serves the /products API.
type Handler struct {
	store    productStore
	apiKey   string
	pageSize int
	logger   *zap.Logger
}

// NewHandler builds the product handlers. When apiKey is empty the
// mutating routes are open; pageSize <= 0 uses the store default.
func NewHandler(store productStore, apiKey string, pageSize int, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{store: store, apiKey: strings.TrimSpace(apiKey), pageSize: pageSize, logger: logger}
}

// Routes returns a router meant to be mounted at /products.
func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()

	r.Get("/", h.list)
	r.Get("/export.xlsx", h.exportXLSX)
	r.Get("/export.csv", h.exportCSV)
	r.Get("/{id}", h.get)

	r.Group(func(r chi.Router) {
		if h.apiKey != "" {
			r.Use(apikey.Require(h.apiKey, apikey.Options{Realm: "catalog"}, h.logger))
		}
		r.Post("/", h.create)
		r.Put("/{id}", h.update)
		r.Delete("/{id}", h.delete)
	})

	return r
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	opts := productstore.ListOptions{
		Type:  models.ProductType(strings.TrimSpace(q.Get("type"))),
		Query: q.Get("q"),
		After: q.Get("after"),
		Limit: h.pageSize,
	}
	if s := strings.TrimSpace(q.Get("limit")); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n <= 0 {
			httputil.JSONError(w, http.StatusBadRequest, "bad_request", "limit must be a positive integer")
			return
		}
		opts.Limit = n
	}

	page, err := h.store.List(r.Context(), opts)
	if err != nil {
		h.writeStoreError(w, r, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, page)
}

func (h *Handler) get(w http.ResponseWriter, r *http.Request) {
	p, err := h.store.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.writeStoreError(w, r, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, p)
}

func (h *Handler) create(w http.ResponseWriter, r *http.Request) {
	p, ok := h.bindProduct(w, r)
	if !ok {
		return
	}
	created, err := h.store.Create(r.Context(), p)
	if err != nil {
		h.writeStoreError(w, r, err)
		return
	}
	w.Header().Set("Location", "/products/"+url.PathEscape(created.ID.Hex()))
	httputil.WriteJSON(w, http.StatusCreated, created)
}

func (h *Handler) update(w http.ResponseWriter, r *http.Request) {
	p, ok := h.bindProduct(w, r)
	if !ok {
		return
	}
	updated, err := h.store.Update(r.Context(), chi.URLParam(r, "id"), p)
	if err != nil {
		h.writeStoreError(w, r, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, updated)
}

func (h *Handler) delete(w http.ResponseWriter, r *http.Request) {
	if err := h.store.Delete(r.Context(), chi.URLParam(r, "id")); err != nil {
		h.writeStoreError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// bindProduct decodes the body as a generic document and runs the products
// schema over it, so a client sees every missing, unknown or mistyped field
// at once. Any _id in the body is ignored.
func (h *Handler) bindProduct(w http.ResponseWriter, r *http.Request) (models.Product, bool) {
	var doc map[string]any
	if err := httputil.BindJSON(r, &doc); err != nil {
		httputil.JSONError(w, http.StatusBadRequest, "bad_request", err.Error())
		return models.Product{}, false
	}
	if doc == nil {
		httputil.JSONError(w, http.StatusBadRequest, "bad_request", "request body must be a JSON object")
		return models.Product{}, false
	}

	if err := catalogdb.ProductsSchema().Check(bson.M(doc)); err != nil {
		writeValidation(w, err)
		return models.Product{}, false
	}

	// Check guarantees the types below.
	return models.Product{
		Name:         doc["name"].(string),
		Position:     doc["position"].(string),
		Type:         models.ProductType(doc["type"].(string)),
		Description:  doc["description"].(string),
		SellingPrice: doc["selling_price"].(float64),
	}, true
}

func (h *Handler) writeStoreError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, productstore.ErrInvalid):
		writeValidation(w, err)
	case errors.Is(err, productstore.ErrInvalidID):
		httputil.JSONError(w, http.StatusBadRequest, "invalid_id", "product id must be a 24 character hex string")
	case errors.Is(err, productstore.ErrNotFound):
		httputil.JSONError(w, http.StatusNotFound, "not_found", "product not found")
	case errors.Is(err, productstore.ErrBadCursor), errors.Is(err, productstore.ErrBadType):
		httputil.JSONError(w, http.StatusBadRequest, "bad_request", err.Error())
	case errors.Is(err, productstore.ErrDuplicated):
		httputil.JSONError(w, http.StatusConflict, "conflict", "product already exists")
	default:
		h.logger.Error("product store failure",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Error(err))
		httputil.JSONError(w, http.StatusInternalServerError, "internal_error", "internal server error")
	}
}

// writeValidation answers 400, listing violations when the in-process
// schema check produced them.
func writeValidation(w http.ResponseWriter, err error) {
	var se *catalogdb.SchemaError
	if errors.As(err, &se) {
		httputil.JSONErrorDetails(w, http.StatusBadRequest, "validation_failed",
			"product failed validation", se.Violations)
		return
	}
	httputil.JSONError(w, http.StatusBadRequest, "validation_failed", "product failed validation")
}
