package repository

import (
	"context"
	"pos-service/internal/models"
	"time"

	"github.com/google/uuid"
)

type ProductFilter struct {
	Category string
	IsActive *bool
	Search   string
	Limit    int
	Offset   int
}

type OrderFilter struct {
	Status    string
	VisitorID *uuid.UUID
	Limit     int
	Offset    int
}

type MovementFilter struct {
	VisitorID *uuid.UUID
	Limit     int
	Offset    int
}

type VisitorFilter struct {
	Status string
	Limit  int
	Offset int
}

type ProductRepository interface {
	Create(ctx context.Context, product *models.Product) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.Product, error)
	List(ctx context.Context, filter ProductFilter) ([]models.Product, int, error)
	Categories(ctx context.Context) ([]string, error)
	Update(ctx context.Context, product *models.Product) error
	Delete(ctx context.Context, id uuid.UUID) error
}

// CreateOrderItem is one requested line of a candidate order, in caller order.
type CreateOrderItem struct {
	ProductID uuid.UUID
	Quantity  int
}

type CreateOrderParams struct {
	VisitorID       uuid.UUID
	Items           []CreateOrderItem
	TotalAmount     float64
	PaymentProofURL string
}

type OrderRepository interface {
	CreateOrder(ctx context.Context, params CreateOrderParams) (*models.OrderWithItems, error)
	GetWithItems(ctx context.Context, id uuid.UUID) (*models.OrderWithItems, error)
	List(ctx context.Context, filter OrderFilter) ([]models.OrderWithItems, int, error)
	ValidatePayment(ctx context.Context, id uuid.UUID, status, notes string) (*models.Order, error)
	UpdatePaymentProof(ctx context.Context, id uuid.UUID, proofURL string) (string, error)
	Stats(ctx context.Context, from, to *time.Time) (*models.OrderStats, error)
}

type VisitorRepository interface {
	Create(ctx context.Context, visitor *models.Visitor) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.Visitor, error)
	GetByQRData(ctx context.Context, qrData string) (*models.Visitor, error)
	List(ctx context.Context, filter VisitorFilter) ([]models.Visitor, int, error)
	UpdateStatus(ctx context.Context, id uuid.UUID, isActive bool, permissions []string) (*models.Visitor, error)
	Delete(ctx context.Context, id uuid.UUID) error
	Scan(ctx context.Context, qrData, action, gateLocation, scannedBy string) (*models.Visitor, *models.Movement, string, error)
	Movements(ctx context.Context, filter MovementFilter) ([]models.Movement, int, error)
}

// UpdateAdminParams carries the admin-account fields to change. Empty fields
// are left as they are.
type UpdateAdminParams struct {
	ID           uuid.UUID
	Email        string
	Name         string
	PasswordHash string
	Role         string
}

type AdminRepository interface {
	Create(ctx context.Context, admin *models.Admin) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.Admin, error)
	GetByEmail(ctx context.Context, email string) (*models.Admin, error)
	List(ctx context.Context) ([]models.Admin, error)
	Update(ctx context.Context, params UpdateAdminParams) (*models.Admin, error)
	Delete(ctx context.Context, id uuid.UUID) error
	ToggleActive(ctx context.Context, id uuid.UUID) (*models.Admin, error)
}
