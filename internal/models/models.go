package models

import (
	"time"

	"github.com/google/uuid"
)

const (
	PaymentStatusPending  = "pending"
	PaymentStatusApproved = "approved"
	PaymentStatusRejected = "rejected"
)

const (
	VisitorStatusRegistered = "registered"
	VisitorStatusEntered    = "entered"
	VisitorStatusExited     = "exited"
)

const (
	ActionEntry = "entry"
	ActionExit  = "exit"
)

const (
	RoleAdmin    = "admin"
	RoleOperator = "operator"
	RoleSecurity = "security"
)

func ValidRole(role string) bool {
	return role == RoleAdmin || role == RoleOperator || role == RoleSecurity
}

type Product struct {
	ID        uuid.UUID `json:"id"`
	Name      string    `json:"name"`
	Price     float64   `json:"price"`
	Stock     int       `json:"stock"`
	Category  string    `json:"category"`
	ImageURL  string    `json:"image_url,omitempty"`
	IsActive  bool      `json:"is_active"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

type Visitor struct {
	ID          uuid.UUID      `json:"id"`
	QRData      string         `json:"qr_data"`
	QRCode      string         `json:"qr_code,omitempty"`
	Status      string         `json:"status"`
	EntryTime   *time.Time     `json:"entry_time,omitempty"`
	ExitTime    *time.Time     `json:"exit_time,omitempty"`
	IsActive    bool           `json:"is_active"`
	Permissions []string       `json:"permissions"`
	Metadata    map[string]any `json:"metadata"`
	CreatedAt   time.Time      `json:"created_at"`
}

type Order struct {
	ID              uuid.UUID  `json:"id"`
	VisitorID       uuid.UUID  `json:"visitor_id"`
	TotalAmount     float64    `json:"total_amount"`
	PaymentStatus   string     `json:"payment_status"`
	PaymentProofURL string     `json:"payment_proof_url,omitempty"`
	AdminNotes      string     `json:"admin_notes,omitempty"`
	CreatedAt       time.Time  `json:"created_at"`
	ValidatedAt     *time.Time `json:"validated_at,omitempty"`
}

// OrderItem carries the unit price read from the product row at order time.
// It never changes after the order commits, even if the product price does.
type OrderItem struct {
	ID        uuid.UUID `json:"id"`
	OrderID   uuid.UUID `json:"order_id"`
	ProductID uuid.UUID `json:"product_id"`
	Quantity  int       `json:"quantity"`
	UnitPrice float64   `json:"unit_price"`
	Name      string    `json:"name"`
	Category  string    `json:"category,omitempty"`
}

type OrderWithItems struct {
	Order
	Items []OrderItem `json:"items"`
}

type Movement struct {
	ID           uuid.UUID `json:"id"`
	VisitorID    uuid.UUID `json:"visitor_id"`
	Action       string    `json:"action"`
	Timestamp    time.Time `json:"timestamp"`
	GateLocation string    `json:"gate_location"`
	ScannedBy    string    `json:"scanned_by"`
}

type Admin struct {
	ID           uuid.UUID `json:"id"`
	Email        string    `json:"email"`
	PasswordHash string    `json:"-"`
	Name         string    `json:"name"`
	Role         string    `json:"role"`
	IsActive     bool      `json:"is_active"`
	CreatedAt    time.Time `json:"created_at"`
}

type OrderStats struct {
	TotalOrders       int     `json:"total_orders"`
	PendingOrders     int     `json:"pending_orders"`
	ApprovedOrders    int     `json:"approved_orders"`
	RejectedOrders    int     `json:"rejected_orders"`
	TotalRevenue      float64 `json:"total_revenue"`
	AverageOrderValue float64 `json:"average_order_value"`
}
