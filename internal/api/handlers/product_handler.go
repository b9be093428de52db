package handlers

import (
	"errors"
	"log/slog"
	"net/http"

	"pos-service/internal/models"
	"pos-service/internal/repository"
	"pos-service/internal/storage"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
)

type ProductHandler struct {
	repo  repository.ProductRepository
	files *storage.Store
}

func NewProductHandler(repo repository.ProductRepository, files *storage.Store) *ProductHandler {
	return &ProductHandler{repo: repo, files: files}
}

type productRequest struct {
	Name     string  `json:"name" validate:"required"`
	Price    float64 `json:"price" validate:"gte=0"`
	Stock    int     `json:"stock" validate:"gte=0"`
	Category string  `json:"category"`
	IsActive *bool   `json:"is_active"`
}

type productListResponse struct {
	Products []models.Product `json:"products"`
	Total    int              `json:"total"`
	Limit    int              `json:"limit"`
	Offset   int              `json:"offset"`
}

func (h *ProductHandler) GetByID(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_id", "invalid product id", nil)
		return
	}

	product, err := h.repo.GetByID(r.Context(), id)
	if err != nil {
		writeProductError(w, err, "failed to get product")
		return
	}

	writeJSON(w, http.StatusOK, product)
}

func (h *ProductHandler) List(w http.ResponseWriter, r *http.Request) {
	filter := repository.ProductFilter{
		Category: r.URL.Query().Get("category"),
		Search:   r.URL.Query().Get("search"),
		Limit:    queryInt(r, "limit", 50),
		Offset:   queryInt(r, "offset", 0),
	}
	if s := r.URL.Query().Get("is_active"); s != "" {
		active := s == "true"
		filter.IsActive = &active
	}

	products, total, err := h.repo.List(r.Context(), filter)
	if err != nil {
		slog.Error("failed to list products", "err", err)
		writeError(w, http.StatusInternalServerError, "internal_error", "failed to get products", nil)
		return
	}

	writeJSON(w, http.StatusOK, productListResponse{
		Products: products,
		Total:    total,
		Limit:    filter.Limit,
		Offset:   filter.Offset,
	})
}

// Categories returns the distinct categories of active products, for the
// storefront's filter dropdown.
func (h *ProductHandler) Categories(w http.ResponseWriter, r *http.Request) {
	categories, err := h.repo.Categories(r.Context())
	if err != nil {
		writeProductError(w, err, "failed to get categories")
		return
	}
	if categories == nil {
		categories = []string{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"categories": categories})
}

func (h *ProductHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req productRequest
	if ok := decodeJSON(w, r, &req); !ok {
		return
	}
	if err := validate.Struct(req); err != nil {
		writeError(w, http.StatusBadRequest, "validation_error", err.Error(), nil)
		return
	}

	p := models.Product{
		Name:     req.Name,
		Price:    req.Price,
		Stock:    req.Stock,
		Category: req.Category,
		IsActive: true,
	}
	if req.IsActive != nil {
		p.IsActive = *req.IsActive
	}

	if err := h.repo.Create(r.Context(), &p); err != nil {
		writeProductError(w, err, "failed to create product")
		return
	}

	w.Header().Set("Location", "/api/products/"+p.ID.String())
	writeJSON(w, http.StatusCreated, p)
}

func (h *ProductHandler) Update(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_id", "invalid product id", nil)
		return
	}

	var req productRequest
	if ok := decodeJSON(w, r, &req); !ok {
		return
	}
	if err := validate.Struct(req); err != nil {
		writeError(w, http.StatusBadRequest, "validation_error", err.Error(), nil)
		return
	}

	current, err := h.repo.GetByID(r.Context(), id)
	if err != nil {
		writeProductError(w, err, "failed to get product")
		return
	}

	p := models.Product{
		ID:       id,
		Name:     req.Name,
		Price:    req.Price,
		Stock:    req.Stock,
		Category: req.Category,
		ImageURL: current.ImageURL,
		IsActive: current.IsActive,
	}
	if req.IsActive != nil {
		p.IsActive = *req.IsActive
	}

	if err := h.repo.Update(r.Context(), &p); err != nil {
		writeProductError(w, err, "failed to update product")
		return
	}

	writeJSON(w, http.StatusOK, p)
}

// UploadImage replaces the product image, deleting the prior blob.
func (h *ProductHandler) UploadImage(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_id", "invalid product id", nil)
		return
	}

	product, err := h.repo.GetByID(r.Context(), id)
	if err != nil {
		writeProductError(w, err, "failed to get product")
		return
	}

	file, header, err := r.FormFile("image")
	if err != nil {
		writeError(w, http.StatusBadRequest, "validation_error", "image file is required", nil)
		return
	}
	defer file.Close()

	imageURL, err := h.files.Save("products", header.Filename, file)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_file", err.Error(), nil)
		return
	}

	oldURL := product.ImageURL
	product.ImageURL = imageURL
	if err := h.repo.Update(r.Context(), product); err != nil {
		if rmErr := h.files.Remove(imageURL); rmErr != nil {
			slog.Warn("failed to remove orphaned product image", "url", imageURL, "err", rmErr)
		}
		writeProductError(w, err, "failed to update product")
		return
	}

	if oldURL != "" {
		if err := h.files.Remove(oldURL); err != nil {
			slog.Warn("failed to remove replaced product image", "url", oldURL, "err", err)
		}
	}

	writeJSON(w, http.StatusOK, product)
}

func (h *ProductHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_id", "invalid product id", nil)
		return
	}

	product, err := h.repo.GetByID(r.Context(), id)
	if err != nil {
		writeProductError(w, err, "failed to get product")
		return
	}

	if err := h.repo.Delete(r.Context(), id); err != nil {
		writeProductError(w, err, "failed to delete product")
		return
	}

	if product.ImageURL != "" {
		if err := h.files.Remove(product.ImageURL); err != nil {
			slog.Warn("failed to remove product image", "url", product.ImageURL, "err", err)
		}
	}

	writeJSON(w, http.StatusNoContent, nil)
}

func writeProductError(w http.ResponseWriter, err error, fallback string) {
	switch {
	case errors.Is(err, repository.ErrNotFound):
		writeError(w, http.StatusNotFound, "not_found", "product not found", nil)
	case errors.Is(err, repository.ErrInvalidInput):
		writeError(w, http.StatusBadRequest, "invalid_input", err.Error(), nil)
	default:
		slog.Error(fallback, "err", err)
		writeError(w, http.StatusInternalServerError, "internal_error", fallback, nil)
	}
}
