package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"pos-service/internal/models"
	"pos-service/internal/repository"
	"pos-service/internal/storage"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type mockOrderRepository struct {
	mock.Mock
}

func (m *mockOrderRepository) CreateOrder(ctx context.Context, params repository.CreateOrderParams) (*models.OrderWithItems, error) {
	args := m.Called(ctx, params)
	if order := args.Get(0); order != nil {
		return order.(*models.OrderWithItems), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *mockOrderRepository) GetWithItems(ctx context.Context, id uuid.UUID) (*models.OrderWithItems, error) {
	args := m.Called(ctx, id)
	if order := args.Get(0); order != nil {
		return order.(*models.OrderWithItems), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *mockOrderRepository) List(ctx context.Context, filter repository.OrderFilter) ([]models.OrderWithItems, int, error) {
	args := m.Called(ctx, filter)
	var orders []models.OrderWithItems
	if v := args.Get(0); v != nil {
		orders = v.([]models.OrderWithItems)
	}
	return orders, args.Int(1), args.Error(2)
}

func (m *mockOrderRepository) ValidatePayment(ctx context.Context, id uuid.UUID, status, notes string) (*models.Order, error) {
	args := m.Called(ctx, id, status, notes)
	if order := args.Get(0); order != nil {
		return order.(*models.Order), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *mockOrderRepository) UpdatePaymentProof(ctx context.Context, id uuid.UUID, proofURL string) (string, error) {
	args := m.Called(ctx, id, proofURL)
	return args.String(0), args.Error(1)
}

func (m *mockOrderRepository) Stats(ctx context.Context, from, to *time.Time) (*models.OrderStats, error) {
	args := m.Called(ctx, from, to)
	if stats := args.Get(0); stats != nil {
		return stats.(*models.OrderStats), args.Error(1)
	}
	return nil, args.Error(1)
}

// recordingPublisher captures events so tests can assert on delivery.
type recordingPublisher struct {
	events []string
}

func (p *recordingPublisher) Publish(ctx context.Context, eventType string, payload any) {
	p.events = append(p.events, eventType)
}

func newOrderTestHandler(t *testing.T, repo repository.OrderRepository) (*OrderHandler, *recordingPublisher) {
	t.Helper()
	publisher := &recordingPublisher{}
	return NewOrderHandler(repo, publisher, storage.New(t.TempDir(), 1024), nil), publisher
}

func postJSON(t *testing.T, handler http.HandlerFunc, target string, body any) *httptest.ResponseRecorder {
	t.Helper()
	raw, err := json.Marshal(body)
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodPost, target, bytes.NewReader(raw))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	handler(rec, req)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return body
}

func TestCreateOrderSuccess(t *testing.T) {
	repo := new(mockOrderRepository)
	handler, publisher := newOrderTestHandler(t, repo)

	visitorID := uuid.New()
	productID := uuid.New()
	created := &models.OrderWithItems{
		Order: models.Order{
			ID:            uuid.New(),
			VisitorID:     visitorID,
			TotalAmount:   29.97,
			PaymentStatus: models.PaymentStatusPending,
		},
		Items: []models.OrderItem{
			{ProductID: productID, Quantity: 3, UnitPrice: 9.99, Name: "Coffee"},
		},
	}

	repo.On("CreateOrder", mock.Anything, mock.MatchedBy(func(params repository.CreateOrderParams) bool {
		return params.VisitorID == visitorID &&
			len(params.Items) == 1 &&
			params.Items[0].ProductID == productID &&
			params.Items[0].Quantity == 3
	})).Return(created, nil)

	rec := postJSON(t, handler.Create, "/api/orders", map[string]any{
		"visitor_id":   visitorID.String(),
		"items":        []map[string]any{{"product_id": productID.String(), "quantity": 3}},
		"total_amount": 29.97,
	})

	assert.Equal(t, http.StatusCreated, rec.Code)
	body := decodeBody(t, rec)
	assert.Equal(t, models.PaymentStatusPending, body["payment_status"])
	assert.Equal(t, []string{"order.created"}, publisher.events)
	repo.AssertExpectations(t)
}

func TestCreateOrderInsufficientStock(t *testing.T) {
	repo := new(mockOrderRepository)
	handler, publisher := newOrderTestHandler(t, repo)

	repo.On("CreateOrder", mock.Anything, mock.Anything).
		Return(nil, &repository.StockError{ProductName: "Coffee", Available: 2, Requested: 5})

	rec := postJSON(t, handler.Create, "/api/orders", map[string]any{
		"visitor_id":   uuid.New().String(),
		"items":        []map[string]any{{"product_id": uuid.New().String(), "quantity": 5}},
		"total_amount": 49.95,
	})

	assert.Equal(t, http.StatusConflict, rec.Code)
	body := decodeBody(t, rec)
	assert.Equal(t, "insufficient_stock", body["error"])

	details := body["details"].(map[string]any)
	assert.Equal(t, "Coffee", details["product"])
	assert.Equal(t, float64(2), details["available"])
	assert.Equal(t, float64(5), details["requested"])

	assert.Empty(t, publisher.events, "no event is published when the transaction fails")
}

func TestCreateOrderTotalMismatch(t *testing.T) {
	repo := new(mockOrderRepository)
	handler, publisher := newOrderTestHandler(t, repo)

	repo.On("CreateOrder", mock.Anything, mock.Anything).
		Return(nil, &repository.TotalMismatchError{Calculated: 29.97, Provided: 25.00})

	rec := postJSON(t, handler.Create, "/api/orders", map[string]any{
		"visitor_id":   uuid.New().String(),
		"items":        []map[string]any{{"product_id": uuid.New().String(), "quantity": 3}},
		"total_amount": 25.00,
	})

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	body := decodeBody(t, rec)
	assert.Equal(t, "total_mismatch", body["error"])

	details := body["details"].(map[string]any)
	assert.Equal(t, 29.97, details["calculated"])
	assert.Equal(t, 25.00, details["provided"])

	assert.Empty(t, publisher.events)
}

func TestCreateOrderRejectsInvalidBody(t *testing.T) {
	repo := new(mockOrderRepository)
	handler, _ := newOrderTestHandler(t, repo)

	tests := []struct {
		name string
		body map[string]any
	}{
		{name: "missing visitor", body: map[string]any{
			"items":        []map[string]any{{"product_id": uuid.New().String(), "quantity": 1}},
			"total_amount": 9.99,
		}},
		{name: "empty items", body: map[string]any{
			"visitor_id":   uuid.New().String(),
			"items":        []map[string]any{},
			"total_amount": 9.99,
		}},
		{name: "zero quantity", body: map[string]any{
			"visitor_id":   uuid.New().String(),
			"items":        []map[string]any{{"product_id": uuid.New().String(), "quantity": 0}},
			"total_amount": 9.99,
		}},
		{name: "negative total", body: map[string]any{
			"visitor_id":   uuid.New().String(),
			"items":        []map[string]any{{"product_id": uuid.New().String(), "quantity": 1}},
			"total_amount": -5.0,
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := postJSON(t, handler.Create, "/api/orders", tt.body)
			assert.Equal(t, http.StatusBadRequest, rec.Code)
		})
	}

	repo.AssertNotCalled(t, "CreateOrder")
}

func TestCreateOrderVisitorNotFound(t *testing.T) {
	repo := new(mockOrderRepository)
	handler, _ := newOrderTestHandler(t, repo)

	repo.On("CreateOrder", mock.Anything, mock.Anything).
		Return(nil, fmt.Errorf("visitor: %w", repository.ErrNotFound))

	rec := postJSON(t, handler.Create, "/api/orders", map[string]any{
		"visitor_id":   uuid.New().String(),
		"items":        []map[string]any{{"product_id": uuid.New().String(), "quantity": 1}},
		"total_amount": 9.99,
	})

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestCreateOrderMultipartWithProof(t *testing.T) {
	repo := new(mockOrderRepository)
	handler, publisher := newOrderTestHandler(t, repo)

	visitorID := uuid.New()
	productID := uuid.New()
	created := &models.OrderWithItems{
		Order: models.Order{ID: uuid.New(), VisitorID: visitorID, PaymentStatus: models.PaymentStatusPending},
	}
	repo.On("CreateOrder", mock.Anything, mock.MatchedBy(func(params repository.CreateOrderParams) bool {
		return strings.HasPrefix(params.PaymentProofURL, "/uploads/payments/") &&
			params.VisitorID == visitorID
	})).Return(created, nil)

	var buf bytes.Buffer
	form := multipart.NewWriter(&buf)
	require.NoError(t, form.WriteField("visitor_id", visitorID.String()))
	require.NoError(t, form.WriteField("total_amount", "9.99"))
	require.NoError(t, form.WriteField("items",
		fmt.Sprintf(`[{"product_id":%q,"quantity":1}]`, productID)))
	part, err := form.CreateFormFile("payment_proof", "receipt.pdf")
	require.NoError(t, err)
	_, err = part.Write([]byte("pdf bytes"))
	require.NoError(t, err)
	require.NoError(t, form.Close())

	req := httptest.NewRequest(http.MethodPost, "/api/orders", &buf)
	req.Header.Set("Content-Type", form.FormDataContentType())
	rec := httptest.NewRecorder()

	handler.Create(rec, req)

	assert.Equal(t, http.StatusCreated, rec.Code)
	assert.Equal(t, []string{"order.created"}, publisher.events)
	repo.AssertExpectations(t)
}

func TestCreateOrderMultipartRemovesProofOnFailure(t *testing.T) {
	repo := new(mockOrderRepository)
	publisher := &recordingPublisher{}
	store := storage.New(t.TempDir(), 1024)
	handler := NewOrderHandler(repo, publisher, store, nil)

	repo.On("CreateOrder", mock.Anything, mock.Anything).
		Return(nil, &repository.StockError{ProductName: "Coffee", Available: 0, Requested: 1})

	var buf bytes.Buffer
	form := multipart.NewWriter(&buf)
	require.NoError(t, form.WriteField("visitor_id", uuid.New().String()))
	require.NoError(t, form.WriteField("total_amount", "9.99"))
	require.NoError(t, form.WriteField("items",
		fmt.Sprintf(`[{"product_id":%q,"quantity":1}]`, uuid.New())))
	part, err := form.CreateFormFile("payment_proof", "receipt.pdf")
	require.NoError(t, err)
	_, err = part.Write([]byte("pdf bytes"))
	require.NoError(t, err)
	require.NoError(t, form.Close())

	req := httptest.NewRequest(http.MethodPost, "/api/orders", &buf)
	req.Header.Set("Content-Type", form.FormDataContentType())
	rec := httptest.NewRecorder()

	handler.Create(rec, req)

	assert.Equal(t, http.StatusConflict, rec.Code)
	entries, err := os.ReadDir(filepath.Join(store.BaseDir(), "payments"))
	require.NoError(t, err)
	assert.Empty(t, entries, "the saved proof blob is removed when the transaction fails")
}

func withURLParam(req *http.Request, key, value string) *http.Request {
	rctx := chi.NewRouteContext()
	rctx.URLParams.Add(key, value)
	return req.WithContext(context.WithValue(req.Context(), chi.RouteCtxKey, rctx))
}

func TestValidatePaymentApproved(t *testing.T) {
	repo := new(mockOrderRepository)
	handler, publisher := newOrderTestHandler(t, repo)

	orderID := uuid.New()
	now := time.Now()
	validated := &models.Order{
		ID:            orderID,
		PaymentStatus: models.PaymentStatusApproved,
		ValidatedAt:   &now,
	}
	repo.On("ValidatePayment", mock.Anything, orderID, "approved", "looks good").
		Return(validated, nil)

	raw, err := json.Marshal(map[string]any{"status": "approved", "admin_notes": "looks good"})
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodPut, "/api/orders/"+orderID.String()+"/validate", bytes.NewReader(raw))
	req = withURLParam(req, "id", orderID.String())
	rec := httptest.NewRecorder()

	handler.ValidatePayment(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	body := decodeBody(t, rec)
	assert.Equal(t, "Payment approved successfully", body["message"])
	assert.Equal(t, []string{"order.validated"}, publisher.events)
	repo.AssertExpectations(t)
}

func TestValidatePaymentAlreadyValidated(t *testing.T) {
	repo := new(mockOrderRepository)
	handler, publisher := newOrderTestHandler(t, repo)

	orderID := uuid.New()
	repo.On("ValidatePayment", mock.Anything, orderID, "rejected", "").
		Return(nil, fmt.Errorf("%w: order payment has already been validated", repository.ErrInvalidState))

	raw, err := json.Marshal(map[string]any{"status": "rejected"})
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodPut, "/api/orders/"+orderID.String()+"/validate", bytes.NewReader(raw))
	req = withURLParam(req, "id", orderID.String())
	rec := httptest.NewRecorder()

	handler.ValidatePayment(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	body := decodeBody(t, rec)
	assert.Equal(t, "invalid_state", body["error"])
	assert.Empty(t, publisher.events)
}

func TestValidatePaymentRejectsUnknownStatus(t *testing.T) {
	repo := new(mockOrderRepository)
	handler, _ := newOrderTestHandler(t, repo)

	orderID := uuid.New()
	raw, err := json.Marshal(map[string]any{"status": "maybe"})
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodPut, "/api/orders/"+orderID.String()+"/validate", bytes.NewReader(raw))
	req = withURLParam(req, "id", orderID.String())
	rec := httptest.NewRecorder()

	handler.ValidatePayment(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	repo.AssertNotCalled(t, "ValidatePayment")
}

func TestGetOrderNotFound(t *testing.T) {
	repo := new(mockOrderRepository)
	handler, _ := newOrderTestHandler(t, repo)

	orderID := uuid.New()
	repo.On("GetWithItems", mock.Anything, orderID).Return(nil, repository.ErrNotFound)

	req := httptest.NewRequest(http.MethodGet, "/api/orders/"+orderID.String(), nil)
	req = withURLParam(req, "id", orderID.String())
	rec := httptest.NewRecorder()

	handler.Get(rec, req)

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestOrderStatsParsesDateRange(t *testing.T) {
	repo := new(mockOrderRepository)
	handler, _ := newOrderTestHandler(t, repo)

	repo.On("Stats", mock.Anything, mock.MatchedBy(func(from *time.Time) bool {
		return from != nil && from.Format("2006-01-02") == "2026-08-01"
	}), mock.MatchedBy(func(to *time.Time) bool {
		return to != nil && to.Format("2006-01-02") == "2026-08-30"
	})).Return(&models.OrderStats{TotalOrders: 12, ApprovedOrders: 9, TotalRevenue: 420.50}, nil)

	req := httptest.NewRequest(http.MethodGet, "/api/orders/stats/summary?date_from=2026-08-01&date_to=2026-08-30", nil)
	rec := httptest.NewRecorder()

	handler.Stats(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	body := decodeBody(t, rec)
	stats := body["stats"].(map[string]any)
	assert.Equal(t, float64(12), stats["total_orders"])
	repo.AssertExpectations(t)
}

func TestOrderStatsRejectsBadDate(t *testing.T) {
	repo := new(mockOrderRepository)
	handler, _ := newOrderTestHandler(t, repo)

	req := httptest.NewRequest(http.MethodGet, "/api/orders/stats/summary?date_from=yesterday", nil)
	rec := httptest.NewRecorder()

	handler.Stats(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	repo.AssertNotCalled(t, "Stats")
}
