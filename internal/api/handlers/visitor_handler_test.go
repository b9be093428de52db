package handlers

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"pos-service/internal/models"
	"pos-service/internal/repository"
	"pos-service/internal/storage"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
)

type mockVisitorRepository struct {
	mock.Mock
}

func (m *mockVisitorRepository) Create(ctx context.Context, visitor *models.Visitor) error {
	args := m.Called(ctx, visitor)
	if args.Error(0) == nil && visitor.ID == uuid.Nil {
		visitor.ID = uuid.New()
	}
	return args.Error(0)
}

func (m *mockVisitorRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.Visitor, error) {
	args := m.Called(ctx, id)
	if v := args.Get(0); v != nil {
		return v.(*models.Visitor), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *mockVisitorRepository) GetByQRData(ctx context.Context, qrData string) (*models.Visitor, error) {
	args := m.Called(ctx, qrData)
	if v := args.Get(0); v != nil {
		return v.(*models.Visitor), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *mockVisitorRepository) List(ctx context.Context, filter repository.VisitorFilter) ([]models.Visitor, int, error) {
	args := m.Called(ctx, filter)
	var visitors []models.Visitor
	if v := args.Get(0); v != nil {
		visitors = v.([]models.Visitor)
	}
	return visitors, args.Int(1), args.Error(2)
}

func (m *mockVisitorRepository) Scan(ctx context.Context, qrData, action, gateLocation, scannedBy string) (*models.Visitor, *models.Movement, string, error) {
	args := m.Called(ctx, qrData, action, gateLocation, scannedBy)
	var visitor *models.Visitor
	var movement *models.Movement
	if v := args.Get(0); v != nil {
		visitor = v.(*models.Visitor)
	}
	if v := args.Get(1); v != nil {
		movement = v.(*models.Movement)
	}
	return visitor, movement, args.String(2), args.Error(3)
}

func (m *mockVisitorRepository) UpdateStatus(ctx context.Context, id uuid.UUID, isActive bool, permissions []string) (*models.Visitor, error) {
	args := m.Called(ctx, id, isActive, permissions)
	if v := args.Get(0); v != nil {
		return v.(*models.Visitor), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *mockVisitorRepository) Delete(ctx context.Context, id uuid.UUID) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

func (m *mockVisitorRepository) Movements(ctx context.Context, filter repository.MovementFilter) ([]models.Movement, int, error) {
	args := m.Called(ctx, filter)
	var movements []models.Movement
	if v := args.Get(0); v != nil {
		movements = v.([]models.Movement)
	}
	return movements, args.Int(1), args.Error(2)
}

func newVisitorTestHandler(t *testing.T, repo repository.VisitorRepository) (*VisitorHandler, *recordingPublisher) {
	t.Helper()
	publisher := &recordingPublisher{}
	return NewVisitorHandler(repo, publisher, storage.New(t.TempDir(), 1<<20)), publisher
}

func TestGenerateCreatesVisitorWithBadge(t *testing.T) {
	repo := new(mockVisitorRepository)
	handler, _ := newVisitorTestHandler(t, repo)

	var created *models.Visitor
	repo.On("Create", mock.Anything, mock.MatchedBy(func(v *models.Visitor) bool {
		created = v
		return v.Status == models.VisitorStatusRegistered && v.IsActive
	})).Return(nil)

	rec := postJSON(t, handler.Generate, "/api/qrcode/generate", map[string]any{
		"visitor_name":     "Jane Doe",
		"booking_order_id": "BK-1042",
		"guest_count":      2,
	})

	assert.Equal(t, http.StatusCreated, rec.Code)
	body := decodeBody(t, rec)
	assert.Contains(t, body["qr_data"], "VISITOR_")
	assert.Contains(t, body["qr_code"], "/uploads/badges/")

	assert.Equal(t, "Jane Doe", created.Name())
	assert.Equal(t, "BK-1042", created.Metadata["booking_order_id"])
	assert.Equal(t, []string{"gate_entry"}, created.Permissions)
	repo.AssertExpectations(t)
}

func TestGenerateRequiresNameAndBooking(t *testing.T) {
	repo := new(mockVisitorRepository)
	handler, _ := newVisitorTestHandler(t, repo)

	rec := postJSON(t, handler.Generate, "/api/qrcode/generate", map[string]any{
		"visitor_name": "Jane Doe",
	})

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	repo.AssertNotCalled(t, "Create")
}

func TestVerifyQRCode(t *testing.T) {
	repo := new(mockVisitorRepository)
	handler, _ := newVisitorTestHandler(t, repo)

	repo.On("GetByQRData", mock.Anything, "VISITOR_1_active").
		Return(&models.Visitor{QRData: "VISITOR_1_active", IsActive: true}, nil)
	repo.On("GetByQRData", mock.Anything, "VISITOR_2_revoked").
		Return(&models.Visitor{QRData: "VISITOR_2_revoked", IsActive: false}, nil)
	repo.On("GetByQRData", mock.Anything, "VISITOR_3_unknown").
		Return(nil, repository.ErrNotFound)

	tests := []struct {
		qrData     string
		wantStatus int
		wantValid  bool
	}{
		{qrData: "VISITOR_1_active", wantStatus: http.StatusOK, wantValid: true},
		{qrData: "VISITOR_2_revoked", wantStatus: http.StatusForbidden},
		{qrData: "VISITOR_3_unknown", wantStatus: http.StatusNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.qrData, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/api/qrcode/verify/"+tt.qrData, nil)
			req = withURLParam(req, "qr_data", tt.qrData)
			rec := httptest.NewRecorder()

			handler.Verify(rec, req)

			assert.Equal(t, tt.wantStatus, rec.Code)
			if tt.wantValid {
				assert.Equal(t, true, decodeBody(t, rec)["valid"])
			}
		})
	}
}

func TestScanEntryPublishesMovement(t *testing.T) {
	repo := new(mockVisitorRepository)
	handler, publisher := newVisitorTestHandler(t, repo)

	visitorID := uuid.New()
	visitor := &models.Visitor{
		ID:       visitorID,
		QRData:   "VISITOR_1_abc",
		Status:   models.VisitorStatusEntered,
		Metadata: map[string]any{"visitor_name": "Jane Doe"},
	}
	movement := &models.Movement{
		VisitorID:    visitorID,
		Action:       models.ActionEntry,
		Timestamp:    time.Now(),
		GateLocation: "Main Gate",
		ScannedBy:    "Admin",
	}
	repo.On("Scan", mock.Anything, "VISITOR_1_abc", "entry", "Main Gate", "Admin").
		Return(visitor, movement, "Welcome! Visitor has entered successfully.", nil)

	rec := postJSON(t, handler.Scan, "/api/entry/scan", map[string]any{
		"qr_data": "VISITOR_1_abc",
		"action":  "entry",
	})

	assert.Equal(t, http.StatusOK, rec.Code)
	body := decodeBody(t, rec)
	assert.Equal(t, "entered", body["status"])
	assert.Equal(t, "Jane Doe", body["visitor_name"])
	assert.Equal(t, "Welcome! Visitor has entered successfully.", body["message"])
	assert.Equal(t, []string{"visitor.movement"}, publisher.events)
	repo.AssertExpectations(t)
}

func TestScanRejectsDoubleEntry(t *testing.T) {
	repo := new(mockVisitorRepository)
	handler, publisher := newVisitorTestHandler(t, repo)

	repo.On("Scan", mock.Anything, "VISITOR_1_abc", "entry", "Main Gate", "Admin").
		Return(nil, nil, "", fmt.Errorf("%w: visitor is already inside", repository.ErrInvalidState))

	rec := postJSON(t, handler.Scan, "/api/entry/scan", map[string]any{
		"qr_data": "VISITOR_1_abc",
		"action":  "entry",
	})

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "invalid_state", decodeBody(t, rec)["error"])
	assert.Empty(t, publisher.events)
}

func TestScanUnknownQRCode(t *testing.T) {
	repo := new(mockVisitorRepository)
	handler, _ := newVisitorTestHandler(t, repo)

	repo.On("Scan", mock.Anything, "VISITOR_9_missing", "exit", "Main Gate", "Admin").
		Return(nil, nil, "", repository.ErrNotFound)

	rec := postJSON(t, handler.Scan, "/api/entry/scan", map[string]any{
		"qr_data": "VISITOR_9_missing",
		"action":  "exit",
	})

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestScanRejectsUnknownAction(t *testing.T) {
	repo := new(mockVisitorRepository)
	handler, _ := newVisitorTestHandler(t, repo)

	rec := postJSON(t, handler.Scan, "/api/entry/scan", map[string]any{
		"qr_data": "VISITOR_1_abc",
		"action":  "teleport",
	})

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	repo.AssertNotCalled(t, "Scan")
}

func TestUpdateQRStatusDeactivates(t *testing.T) {
	repo := new(mockVisitorRepository)
	handler, _ := newVisitorTestHandler(t, repo)

	id := uuid.New()
	deactivated := &models.Visitor{ID: id, QRData: "VISITOR_1_abc", IsActive: false}
	repo.On("UpdateStatus", mock.Anything, id, false, []string(nil)).Return(deactivated, nil)

	raw := []byte(`{"is_active": false}`)
	req := httptest.NewRequest(http.MethodPut, "/api/qrcode/"+id.String()+"/status", bytes.NewReader(raw))
	req = withURLParam(req, "visitor_id", id.String())
	rec := httptest.NewRecorder()

	handler.UpdateStatus(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	body := decodeBody(t, rec)
	assert.Equal(t, "QR code status updated successfully", body["message"])
	repo.AssertExpectations(t)
}

func TestUpdateQRStatusReplacesPermissions(t *testing.T) {
	repo := new(mockVisitorRepository)
	handler, _ := newVisitorTestHandler(t, repo)

	id := uuid.New()
	updated := &models.Visitor{ID: id, IsActive: true, Permissions: []string{"gate_entry", "parking"}}
	repo.On("UpdateStatus", mock.Anything, id, true, []string{"gate_entry", "parking"}).
		Return(updated, nil)

	raw := []byte(`{"is_active": true, "permissions": ["gate_entry", "parking"]}`)
	req := httptest.NewRequest(http.MethodPut, "/api/qrcode/"+id.String()+"/status", bytes.NewReader(raw))
	req = withURLParam(req, "visitor_id", id.String())
	rec := httptest.NewRecorder()

	handler.UpdateStatus(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	repo.AssertExpectations(t)
}

func TestUpdateQRStatusRequiresIsActive(t *testing.T) {
	repo := new(mockVisitorRepository)
	handler, _ := newVisitorTestHandler(t, repo)

	id := uuid.New()
	req := httptest.NewRequest(http.MethodPut, "/api/qrcode/"+id.String()+"/status", bytes.NewReader([]byte(`{}`)))
	req = withURLParam(req, "visitor_id", id.String())
	rec := httptest.NewRecorder()

	handler.UpdateStatus(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "is_active status is required", decodeBody(t, rec)["message"])
	repo.AssertNotCalled(t, "UpdateStatus")
}

func TestUpdateQRStatusUnknownVisitor(t *testing.T) {
	repo := new(mockVisitorRepository)
	handler, _ := newVisitorTestHandler(t, repo)

	id := uuid.New()
	repo.On("UpdateStatus", mock.Anything, id, false, []string(nil)).
		Return(nil, repository.ErrNotFound)

	req := httptest.NewRequest(http.MethodPut, "/api/qrcode/"+id.String()+"/status", bytes.NewReader([]byte(`{"is_active": false}`)))
	req = withURLParam(req, "visitor_id", id.String())
	rec := httptest.NewRecorder()

	handler.UpdateStatus(rec, req)

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestDeleteQRCode(t *testing.T) {
	repo := new(mockVisitorRepository)
	handler, _ := newVisitorTestHandler(t, repo)

	id := uuid.New()
	repo.On("GetByID", mock.Anything, id).
		Return(&models.Visitor{ID: id, QRData: "VISITOR_1_abc"}, nil)
	repo.On("Delete", mock.Anything, id).Return(nil)

	req := httptest.NewRequest(http.MethodDelete, "/api/qrcode/"+id.String(), nil)
	req = withURLParam(req, "visitor_id", id.String())
	rec := httptest.NewRecorder()

	handler.Delete(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "QR code deleted successfully", decodeBody(t, rec)["message"])
	repo.AssertExpectations(t)
}

func TestDeleteQRCodeUnknownVisitor(t *testing.T) {
	repo := new(mockVisitorRepository)
	handler, _ := newVisitorTestHandler(t, repo)

	id := uuid.New()
	repo.On("GetByID", mock.Anything, id).Return(nil, repository.ErrNotFound)

	req := httptest.NewRequest(http.MethodDelete, "/api/qrcode/"+id.String(), nil)
	req = withURLParam(req, "visitor_id", id.String())
	rec := httptest.NewRecorder()

	handler.Delete(rec, req)

	assert.Equal(t, http.StatusNotFound, rec.Code)
	repo.AssertNotCalled(t, "Delete")
}
