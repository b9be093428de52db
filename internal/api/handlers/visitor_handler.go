package handlers

import (
	"bytes"
	"errors"
	"fmt"
	"log/slog"
	"math/rand"
	"net/http"
	"strconv"
	"time"

	"pos-service/internal/models"
	"pos-service/internal/notify"
	"pos-service/internal/repository"
	"pos-service/internal/storage"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	qrcode "github.com/skip2/go-qrcode"
)

type VisitorHandler struct {
	repo      repository.VisitorRepository
	publisher notify.Publisher
	files     *storage.Store
}

func NewVisitorHandler(repo repository.VisitorRepository, publisher notify.Publisher, files *storage.Store) *VisitorHandler {
	return &VisitorHandler{repo: repo, publisher: publisher, files: files}
}

type generateQRRequest struct {
	VisitorName    string   `json:"visitor_name" validate:"required"`
	BookingOrderID string   `json:"booking_order_id" validate:"required"`
	GuestCount     int      `json:"guest_count"`
	Phone          string   `json:"phone"`
	Email          string   `json:"email"`
	Company        string   `json:"company"`
	Purpose        string   `json:"purpose"`
	Permissions    []string `json:"permissions"`
}

type scanRequest struct {
	QRData       string `json:"qr_data" validate:"required"`
	Action       string `json:"action" validate:"required,oneof=entry exit"`
	GateLocation string `json:"gate_location"`
	ScannedBy    string `json:"scanned_by"`
}

type movementEvent struct {
	VisitorID    uuid.UUID `json:"visitor_id"`
	VisitorName  string    `json:"visitor_name"`
	Action       string    `json:"action"`
	Status       string    `json:"status"`
	Timestamp    time.Time `json:"timestamp"`
	GateLocation string    `json:"gate_location"`
	ScannedBy    string    `json:"scanned_by"`
}

func newQRData() string {
	return fmt.Sprintf("VISITOR_%d_%s", time.Now().UnixMilli(),
		strconv.FormatInt(rand.Int63n(1<<46), 36))
}

// Generate registers a visitor and renders the badge QR image.
func (h *VisitorHandler) Generate(w http.ResponseWriter, r *http.Request) {
	var req generateQRRequest
	if ok := decodeJSON(w, r, &req); !ok {
		return
	}
	if err := validate.Struct(req); err != nil {
		writeError(w, http.StatusBadRequest, "validation_error",
			"visitor name and booking order ID are required", nil)
		return
	}

	if req.GuestCount <= 0 {
		req.GuestCount = 1
	}
	if len(req.Permissions) == 0 {
		req.Permissions = []string{"gate_entry"}
	}

	qrData := newQRData()

	png, err := qrcode.Encode(qrData, qrcode.Medium, 256)
	if err != nil {
		slog.Error("failed to encode qr code", "err", err)
		writeError(w, http.StatusInternalServerError, "internal_error", "failed to generate QR code", nil)
		return
	}

	badgeURL, err := h.files.Save("badges", "badge.png", bytes.NewReader(png))
	if err != nil {
		slog.Error("failed to store badge image", "err", err)
		writeError(w, http.StatusInternalServerError, "internal_error", "failed to store badge image", nil)
		return
	}

	visitor := models.Visitor{
		QRData:      qrData,
		QRCode:      badgeURL,
		Status:      models.VisitorStatusRegistered,
		IsActive:    true,
		Permissions: req.Permissions,
		Metadata: map[string]any{
			"visitor_name":     req.VisitorName,
			"booking_order_id": req.BookingOrderID,
			"guest_count":      req.GuestCount,
			"phone":            req.Phone,
			"email":            req.Email,
			"company":          req.Company,
			"purpose":          req.Purpose,
		},
	}

	if err := h.repo.Create(r.Context(), &visitor); err != nil {
		if rmErr := h.files.Remove(badgeURL); rmErr != nil {
			slog.Warn("failed to remove orphaned badge image", "url", badgeURL, "err", rmErr)
		}
		slog.Error("failed to create visitor", "err", err)
		writeError(w, http.StatusInternalServerError, "internal_error", "failed to create visitor", nil)
		return
	}

	writeJSON(w, http.StatusCreated, map[string]any{
		"visitor_id": visitor.ID,
		"qr_data":    visitor.QRData,
		"qr_code":    visitor.QRCode,
		"message":    "QR code created successfully",
	})
}

func (h *VisitorHandler) Verify(w http.ResponseWriter, r *http.Request) {
	qrData := chi.URLParam(r, "qr_data")
	if qrData == "" {
		writeError(w, http.StatusBadRequest, "validation_error", "QR data is required", nil)
		return
	}

	visitor, err := h.repo.GetByQRData(r.Context(), qrData)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			writeError(w, http.StatusNotFound, "not_found", "QR code not found", map[string]any{"valid": false})
			return
		}
		slog.Error("failed to verify qr code", "err", err)
		writeError(w, http.StatusInternalServerError, "internal_error", "failed to verify QR code", nil)
		return
	}

	if !visitor.IsActive {
		writeError(w, http.StatusForbidden, "invalid_state", "QR code has been deactivated", map[string]any{"valid": false})
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"valid":   true,
		"visitor": visitor,
	})
}

type updateQRStatusRequest struct {
	IsActive    *bool    `json:"is_active" validate:"required"`
	Permissions []string `json:"permissions"`
}

// UpdateStatus activates or deactivates a visitor's QR code. A deactivated
// code fails verification and gate scans until reactivated.
func (h *VisitorHandler) UpdateStatus(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "visitor_id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_id", "invalid visitor id", nil)
		return
	}

	var req updateQRStatusRequest
	if ok := decodeJSON(w, r, &req); !ok {
		return
	}
	if err := validate.Struct(req); err != nil {
		writeError(w, http.StatusBadRequest, "validation_error", "is_active status is required", nil)
		return
	}

	visitor, err := h.repo.UpdateStatus(r.Context(), id, *req.IsActive, req.Permissions)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			writeError(w, http.StatusNotFound, "not_found", "visitor not found", nil)
			return
		}
		slog.Error("failed to update qr status", "err", err)
		writeError(w, http.StatusInternalServerError, "internal_error", "failed to update QR code status", nil)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"visitor": visitor,
		"message": "QR code status updated successfully",
	})
}

// Delete removes a visitor along with its badge image and movement history.
func (h *VisitorHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "visitor_id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_id", "invalid visitor id", nil)
		return
	}

	visitor, err := h.repo.GetByID(r.Context(), id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			writeError(w, http.StatusNotFound, "not_found", "visitor not found", nil)
			return
		}
		slog.Error("failed to get visitor", "err", err)
		writeError(w, http.StatusInternalServerError, "internal_error", "failed to delete QR code", nil)
		return
	}

	if err := h.repo.Delete(r.Context(), id); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			writeError(w, http.StatusNotFound, "not_found", "visitor not found", nil)
			return
		}
		slog.Error("failed to delete visitor", "err", err)
		writeError(w, http.StatusInternalServerError, "internal_error", "failed to delete QR code", nil)
		return
	}

	if visitor.QRCode != "" {
		if err := h.files.Remove(visitor.QRCode); err != nil {
			slog.Warn("failed to remove badge image", "url", visitor.QRCode, "err", err)
		}
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"message": "QR code deleted successfully",
	})
}

// Scan handles a gate entry/exit scan and broadcasts the resulting movement.
func (h *VisitorHandler) Scan(w http.ResponseWriter, r *http.Request) {
	var req scanRequest
	if ok := decodeJSON(w, r, &req); !ok {
		return
	}
	if err := validate.Struct(req); err != nil {
		writeError(w, http.StatusBadRequest, "validation_error",
			"qr_data and an action of \"entry\" or \"exit\" are required", nil)
		return
	}

	if req.GateLocation == "" {
		req.GateLocation = "Main Gate"
	}
	if req.ScannedBy == "" {
		req.ScannedBy = "Admin"
	}

	visitor, movement, message, err := h.repo.Scan(r.Context(), req.QRData, req.Action, req.GateLocation, req.ScannedBy)
	if err != nil {
		switch {
		case errors.Is(err, repository.ErrNotFound):
			writeError(w, http.StatusNotFound, "not_found", "QR code not found. Please register first.", nil)
		case errors.Is(err, repository.ErrInvalidState):
			writeError(w, http.StatusBadRequest, "invalid_state", err.Error(), nil)
		case errors.Is(err, repository.ErrInvalidInput):
			writeError(w, http.StatusBadRequest, "validation_error", err.Error(), nil)
		default:
			slog.Error("failed to process scan", "err", err)
			writeError(w, http.StatusInternalServerError, "internal_error", "failed to process scan", nil)
		}
		return
	}

	h.publisher.Publish(r.Context(), notify.EventVisitorMovement, movementEvent{
		VisitorID:    visitor.ID,
		VisitorName:  visitor.Name(),
		Action:       movement.Action,
		Status:       visitor.Status,
		Timestamp:    movement.Timestamp,
		GateLocation: movement.GateLocation,
		ScannedBy:    movement.ScannedBy,
	})

	writeJSON(w, http.StatusOK, map[string]any{
		"visitor_id":   visitor.ID,
		"visitor_name": visitor.Name(),
		"action":       movement.Action,
		"status":       visitor.Status,
		"timestamp":    movement.Timestamp,
		"message":      message,
	})
}

func (h *VisitorHandler) List(w http.ResponseWriter, r *http.Request) {
	filter := repository.VisitorFilter{
		Status: r.URL.Query().Get("status"),
		Limit:  queryInt(r, "limit", 50),
		Offset: queryInt(r, "offset", 0),
	}

	visitors, total, err := h.repo.List(r.Context(), filter)
	if err != nil {
		slog.Error("failed to list visitors", "err", err)
		writeError(w, http.StatusInternalServerError, "internal_error", "failed to get visitors", nil)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"visitors": visitors,
		"total":    total,
		"limit":    filter.Limit,
		"offset":   filter.Offset,
	})
}

func (h *VisitorHandler) Movements(w http.ResponseWriter, r *http.Request) {
	filter := repository.MovementFilter{
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

	movements, total, err := h.repo.Movements(r.Context(), filter)
	if err != nil {
		slog.Error("failed to list movements", "err", err)
		writeError(w, http.StatusInternalServerError, "internal_error", "failed to get movements", nil)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"movements": movements,
		"total":     total,
		"limit":     filter.Limit,
		"offset":    filter.Offset,
	})
}
