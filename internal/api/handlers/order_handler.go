package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"pos-service/internal/models"
	"pos-service/internal/notify"
	"pos-service/internal/repository"
	"pos-service/internal/storage"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
)

var validate = validator.New()

// ProductInvalidator drops cached product entries whose stock an order
// transaction has changed.
type ProductInvalidator interface {
	InvalidateProduct(ctx context.Context, id uuid.UUID)
}

type OrderHandler struct {
	repo      repository.OrderRepository
	publisher notify.Publisher
	files     *storage.Store
	cache     ProductInvalidator
}

func NewOrderHandler(repo repository.OrderRepository, publisher notify.Publisher, files *storage.Store, cache ProductInvalidator) *OrderHandler {
	return &OrderHandler{repo: repo, publisher: publisher, files: files, cache: cache}
}

type createOrderItemRequest struct {
	ProductID string `json:"product_id" validate:"required,uuid"`
	Quantity  int    `json:"quantity" validate:"required,gt=0"`
}

type createOrderRequest struct {
	VisitorID       string                   `json:"visitor_id" validate:"required,uuid"`
	Items           []createOrderItemRequest `json:"items" validate:"required,min=1,dive"`
	TotalAmount     float64                  `json:"total_amount" validate:"required,gt=0"`
	PaymentProofURL string                   `json:"payment_proof_url,omitempty"`
}

// decodeMultipartOrder reads the order fields from a multipart form. The
// items field carries a JSON array, the rest are plain form values.
func decodeMultipartOrder(w http.ResponseWriter, r *http.Request, req *createOrderRequest) bool {
	if err := r.ParseMultipartForm(maxBodySize); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", "invalid multipart body", nil)
		return false
	}

	req.VisitorID = r.FormValue("visitor_id")
	if s := r.FormValue("total_amount"); s != "" {
		total, err := strconv.ParseFloat(s, 64)
		if err != nil {
			writeError(w, http.StatusBadRequest, "validation_error", "total_amount must be a number", nil)
			return false
		}
		req.TotalAmount = total
	}
	if s := r.FormValue("items"); s != "" {
		if err := json.Unmarshal([]byte(s), &req.Items); err != nil {
			writeError(w, http.StatusBadRequest, "validation_error", "items must be a json array", nil)
			return false
		}
	}
	return true
}

type validatePaymentRequest struct {
	Status     string `json:"status" validate:"required,oneof=approved rejected"`
	AdminNotes string `json:"admin_notes,omitempty"`
}

type orderListResponse struct {
	Orders []models.OrderWithItems `json:"orders"`
	Total  int                     `json:"total"`
	Limit  int                     `json:"limit"`
	Offset int                     `json:"offset"`
}

// Create accepts either a JSON body or a multipart form carrying the same
// fields plus an optional payment_proof file (the shop frontend submits the
// proof together with the order).
func (h *OrderHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req createOrderRequest
	multipart := strings.HasPrefix(r.Header.Get("Content-Type"), "multipart/form-data")
	if multipart {
		if ok := decodeMultipartOrder(w, r, &req); !ok {
			return
		}
	} else if ok := decodeJSON(w, r, &req); !ok {
		return
	}

	if err := validate.Struct(req); err != nil {
		writeError(w, http.StatusBadRequest, "validation_error",
			"visitor ID, items, and total amount are required", map[string]any{"error": err.Error()})
		return
	}

	var uploadedProof string
	if multipart {
		if file, header, err := r.FormFile("payment_proof"); err == nil {
			proofURL, saveErr := h.files.Save("payments", header.Filename, file)
			file.Close()
			if saveErr != nil {
				writeError(w, http.StatusBadRequest, "invalid_file", saveErr.Error(), nil)
				return
			}
			uploadedProof = proofURL
			req.PaymentProofURL = proofURL
		}
	}

	visitorID, _ := uuid.Parse(req.VisitorID)
	params := repository.CreateOrderParams{
		VisitorID:       visitorID,
		TotalAmount:     req.TotalAmount,
		PaymentProofURL: req.PaymentProofURL,
	}
	for _, item := range req.Items {
		productID, _ := uuid.Parse(item.ProductID)
		params.Items = append(params.Items, repository.CreateOrderItem{
			ProductID: productID,
			Quantity:  item.Quantity,
		})
	}

	order, err := h.repo.CreateOrder(r.Context(), params)
	if err != nil {
		// only remove blobs this request created
		if uploadedProof != "" {
			if rmErr := h.files.Remove(uploadedProof); rmErr != nil {
				slog.Warn("failed to remove orphaned payment proof", "url", uploadedProof, "err", rmErr)
			}
		}
		writeOrderError(w, err)
		return
	}

	if h.cache != nil {
		for _, item := range order.Items {
			h.cache.InvalidateProduct(r.Context(), item.ProductID)
		}
	}
	h.publisher.Publish(r.Context(), notify.EventOrderCreated, order)

	writeJSON(w, http.StatusCreated, order)
}

func (h *OrderHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_id", "invalid order id", nil)
		return
	}

	order, err := h.repo.GetWithItems(r.Context(), id)
	if err != nil {
		writeOrderError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, order)
}

func (h *OrderHandler) List(w http.ResponseWriter, r *http.Request) {
	filter := repository.OrderFilter{
		Status: r.URL.Query().Get("status"),
		Limit:  queryInt(r, "limit", 50),
		Offset: queryInt(r, "offset", 0),
	}
	if s := r.URL.Query().Get("visitor_id"); s != "" {
		visitorID, err := uuid.Parse(s)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_id", "invalid visitor id", nil)
			return
		}
		filter.VisitorID = &visitorID
	}

	orders, total, err := h.repo.List(r.Context(), filter)
	if err != nil {
		slog.Error("failed to list orders", "err", err)
		writeError(w, http.StatusInternalServerError, "internal_error", "failed to get orders", nil)
		return
	}

	writeJSON(w, http.StatusOK, orderListResponse{
		Orders: orders,
		Total:  total,
		Limit:  filter.Limit,
		Offset: filter.Offset,
	})
}

func (h *OrderHandler) ValidatePayment(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_id", "invalid order id", nil)
		return
	}

	var req validatePaymentRequest
	if ok := decodeJSON(w, r, &req); !ok {
		return
	}
	if err := validate.Struct(req); err != nil {
		writeError(w, http.StatusBadRequest, "validation_error",
			"status must be either \"approved\" or \"rejected\"", nil)
		return
	}

	order, err := h.repo.ValidatePayment(r.Context(), id, req.Status, req.AdminNotes)
	if err != nil {
		writeOrderError(w, err)
		return
	}

	h.publisher.Publish(r.Context(), notify.EventOrderValidated, order)

	writeJSON(w, http.StatusOK, map[string]any{
		"order":   order,
		"message": "Payment " + req.Status + " successfully",
	})
}

// UploadPaymentProof stores a new proof blob and deletes the one it replaces.
func (h *OrderHandler) UploadPaymentProof(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_id", "invalid order id", nil)
		return
	}

	file, header, err := r.FormFile("payment_proof")
	if err != nil {
		writeError(w, http.StatusBadRequest, "validation_error", "payment proof file is required", nil)
		return
	}
	defer file.Close()

	proofURL, err := h.files.Save("payments", header.Filename, file)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_file", err.Error(), nil)
		return
	}

	oldURL, err := h.repo.UpdatePaymentProof(r.Context(), id, proofURL)
	if err != nil {
		// The order row was not touched; drop the orphaned blob.
		if rmErr := h.files.Remove(proofURL); rmErr != nil {
			slog.Warn("failed to remove orphaned payment proof", "url", proofURL, "err", rmErr)
		}
		writeOrderError(w, err)
		return
	}

	if oldURL != "" {
		if err := h.files.Remove(oldURL); err != nil {
			slog.Warn("failed to remove replaced payment proof", "url", oldURL, "err", err)
		}
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"file_url": proofURL,
		"message":  "Payment proof uploaded successfully",
	})
}

func (h *OrderHandler) Stats(w http.ResponseWriter, r *http.Request) {
	var from, to *time.Time
	if s := r.URL.Query().Get("date_from"); s != "" {
		t, err := parseDate(s)
		if err != nil {
			writeError(w, http.StatusBadRequest, "validation_error", "invalid date_from, use YYYY-MM-DD", nil)
			return
		}
		from = &t
	}
	if s := r.URL.Query().Get("date_to"); s != "" {
		t, err := parseDate(s)
		if err != nil {
			writeError(w, http.StatusBadRequest, "validation_error", "invalid date_to, use YYYY-MM-DD", nil)
			return
		}
		to = &t
	}

	stats, err := h.repo.Stats(r.Context(), from, to)
	if err != nil {
		slog.Error("failed to get order stats", "err", err)
		writeError(w, http.StatusInternalServerError, "internal_error", "failed to get order stats", nil)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"stats": stats})
}

// writeOrderError maps repository errors from the order paths to HTTP
// responses, carrying the structured detail the dashboard renders.
func writeOrderError(w http.ResponseWriter, err error) {
	var stockErr *repository.StockError
	var mismatchErr *repository.TotalMismatchError

	switch {
	case errors.As(err, &stockErr):
		writeError(w, http.StatusConflict, "insufficient_stock", stockErr.Error(), map[string]any{
			"product":   stockErr.ProductName,
			"available": stockErr.Available,
			"requested": stockErr.Requested,
		})
	case errors.As(err, &mismatchErr):
		writeError(w, http.StatusBadRequest, "total_mismatch", mismatchErr.Error(), map[string]any{
			"calculated": mismatchErr.Calculated,
			"provided":   mismatchErr.Provided,
		})
	case errors.Is(err, repository.ErrNotFound):
		writeError(w, http.StatusNotFound, "not_found", err.Error(), nil)
	case errors.Is(err, repository.ErrInvalidState):
		writeError(w, http.StatusBadRequest, "invalid_state", err.Error(), nil)
	case errors.Is(err, repository.ErrInvalidInput):
		writeError(w, http.StatusBadRequest, "validation_error", err.Error(), nil)
	default:
		slog.Error("order operation failed", "err", err)
		writeError(w, http.StatusInternalServerError, "transaction_failure",
			"could not commit the order, safe to retry", nil)
	}
}

func queryInt(r *http.Request, key string, defaultValue int) int {
	if s := r.URL.Query().Get(key); s != "" {
		if v, err := strconv.Atoi(s); err == nil && v >= 0 {
			return v
		}
	}
	return defaultValue
}

func parseDate(s string) (time.Time, error) {
	if t, err := time.Parse("2006-01-02", s); err == nil {
		return t, nil
	}
	return time.Parse(time.RFC3339, s)
}
