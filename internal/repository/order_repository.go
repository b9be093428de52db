package repository

import (
	"context"
	"errors"
	"fmt"
	"pos-service/internal/models"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

// totalTolerance absorbs floating-point rounding from client-side arithmetic
// when the claimed total is checked against the server-computed one.
var totalTolerance = decimal.NewFromFloat(0.01)

type orderRepo struct {
	db *pgxpool.Pool
}

func NewOrderRepository(db *pgxpool.Pool) OrderRepository {
	return &orderRepo{db: db}
}

// totalsMatch compares a server-computed total against the caller-claimed one
// within the absolute tolerance.
func totalsMatch(calculated decimal.Decimal, provided float64) bool {
	return calculated.Sub(decimal.NewFromFloat(provided)).Abs().LessThanOrEqual(totalTolerance)
}

// CreateOrder validates the candidate order against live product rows and
// commits the order, its items and the stock decrements in one transaction.
// Any precondition failure aborts the whole set of writes.
func (r *orderRepo) CreateOrder(ctx context.Context, params CreateOrderParams) (*models.OrderWithItems, error) {
	if params.VisitorID == uuid.Nil {
		return nil, fmt.Errorf("%w: visitor ID is required", ErrInvalidInput)
	}
	if len(params.Items) == 0 {
		return nil, fmt.Errorf("%w: items must be a non-empty array", ErrInvalidInput)
	}
	if params.TotalAmount <= 0 {
		return nil, fmt.Errorf("%w: total amount must be a positive number", ErrInvalidInput)
	}
	for _, item := range params.Items {
		if item.ProductID == uuid.Nil || item.Quantity <= 0 {
			return nil, fmt.Errorf("%w: each item must have valid product_id and quantity", ErrInvalidInput)
		}
	}

	tx, err := r.db.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	var visitorID uuid.UUID
	err = tx.QueryRow(ctx, `SELECT id FROM visitors WHERE id = $1`, params.VisitorID).Scan(&visitorID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("visitor: %w", ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get visitor: %w", err)
	}

	// Items are validated in caller order; the first failing item aborts.
	// FOR UPDATE holds the product rows until commit so a racing order
	// cannot read the same stock.
	productSQL := `
		SELECT name, price, stock, is_active, category
		FROM products
		WHERE id = $1
		FOR UPDATE
	`

	calculated := decimal.Zero
	items := make([]models.OrderItem, 0, len(params.Items))

	for _, item := range params.Items {
		var (
			name     string
			price    float64
			stock    int
			isActive bool
			category string
		)
		err := tx.QueryRow(ctx, productSQL, item.ProductID).Scan(&name, &price, &stock, &isActive, &category)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return nil, fmt.Errorf("product %s: %w", item.ProductID, ErrNotFound)
			}
			return nil, fmt.Errorf("failed to get product %s: %w", item.ProductID, err)
		}

		if !isActive {
			return nil, fmt.Errorf("%w: product %s is not available", ErrInvalidState, name)
		}
		if stock < item.Quantity {
			return nil, &StockError{ProductName: name, Available: stock, Requested: item.Quantity}
		}

		items = append(items, models.OrderItem{
			ProductID: item.ProductID,
			Quantity:  item.Quantity,
			UnitPrice: price,
			Name:      name,
			Category:  category,
		})
		calculated = calculated.Add(decimal.NewFromFloat(price).Mul(decimal.NewFromInt(int64(item.Quantity))))
	}

	if !totalsMatch(calculated, params.TotalAmount) {
		cf, _ := calculated.Float64()
		return nil, &TotalMismatchError{Calculated: cf, Provided: params.TotalAmount}
	}

	// The computed total is authoritative, not the claimed one.
	total, _ := calculated.Round(2).Float64()

	order := models.Order{
		VisitorID:       params.VisitorID,
		TotalAmount:     total,
		PaymentStatus:   models.PaymentStatusPending,
		PaymentProofURL: params.PaymentProofURL,
	}

	insertOrder := `
		INSERT INTO orders (visitor_id, total_amount, payment_proof_url)
		VALUES ($1, $2, NULLIF($3, ''))
		RETURNING id, created_at
	`
	err = tx.QueryRow(ctx, insertOrder, order.VisitorID, order.TotalAmount, order.PaymentProofURL).
		Scan(&order.ID, &order.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to create order: %w", err)
	}

	insertItem := `
		INSERT INTO order_items (order_id, product_id, quantity, unit_price)
		VALUES ($1, $2, $3, $4)
		RETURNING id
	`
	// Guard the decrement so it can never drive stock negative even if
	// another transaction slipped in between.
	updateStock := `UPDATE products SET stock = stock - $1, updated_at = NOW() WHERE id = $2 AND stock >= $1`

	for i := range items {
		items[i].OrderID = order.ID

		err = tx.QueryRow(ctx, insertItem, order.ID, items[i].ProductID, items[i].Quantity, items[i].UnitPrice).
			Scan(&items[i].ID)
		if err != nil {
			return nil, fmt.Errorf("failed to create order item: %w", err)
		}

		result, err := tx.Exec(ctx, updateStock, items[i].Quantity, items[i].ProductID)
		if err != nil {
			return nil, fmt.Errorf("failed to update stock for product %s: %w", items[i].ProductID, err)
		}
		if result.RowsAffected() == 0 {
			return nil, &StockError{ProductName: items[i].Name, Available: 0, Requested: items[i].Quantity}
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}

	return &models.OrderWithItems{Order: order, Items: items}, nil
}

// ValidatePayment moves a pending order to approved or rejected exactly once.
// The payment_status guard in the UPDATE makes the transition race-safe.
// Rejecting an order does not restock inventory.
func (r *orderRepo) ValidatePayment(ctx context.Context, id uuid.UUID, status, notes string) (*models.Order, error) {
	if status != models.PaymentStatusApproved && status != models.PaymentStatusRejected {
		return nil, fmt.Errorf("%w: status must be either \"approved\" or \"rejected\"", ErrInvalidInput)
	}

	sql := `
		UPDATE orders
		SET payment_status = $1, admin_notes = NULLIF($2, ''), validated_at = NOW()
		WHERE id = $3 AND payment_status = 'pending'
		RETURNING id, visitor_id, total_amount, payment_status,
			COALESCE(payment_proof_url, ''), COALESCE(admin_notes, ''),
			created_at, validated_at
	`

	var order models.Order
	err := r.db.QueryRow(ctx, sql, status, notes, id).Scan(
		&order.ID,
		&order.VisitorID,
		&order.TotalAmount,
		&order.PaymentStatus,
		&order.PaymentProofURL,
		&order.AdminNotes,
		&order.CreatedAt,
		&order.ValidatedAt,
	)
	if err == nil {
		return &order, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("failed to validate payment for order %s: %w", id, err)
	}

	// Distinguish a missing order from one that was already validated.
	var exists bool
	if err := r.db.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM orders WHERE id = $1)`, id).Scan(&exists); err != nil {
		return nil, fmt.Errorf("failed to check order %s: %w", id, err)
	}
	if !exists {
		return nil, fmt.Errorf("order: %w", ErrNotFound)
	}
	return nil, fmt.Errorf("%w: order payment has already been validated", ErrInvalidState)
}

func (r *orderRepo) GetWithItems(ctx context.Context, id uuid.UUID) (*models.OrderWithItems, error) {
	sql := `
		SELECT id, visitor_id, total_amount, payment_status,
			COALESCE(payment_proof_url, ''), COALESCE(admin_notes, ''),
			created_at, validated_at
		FROM orders
		WHERE id = $1
	`

	var order models.Order
	err := r.db.QueryRow(ctx, sql, id).Scan(
		&order.ID,
		&order.VisitorID,
		&order.TotalAmount,
		&order.PaymentStatus,
		&order.PaymentProofURL,
		&order.AdminNotes,
		&order.CreatedAt,
		&order.ValidatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get order %s: %w", id, err)
	}

	items, err := r.itemsForOrder(ctx, id)
	if err != nil {
		return nil, err
	}

	return &models.OrderWithItems{Order: order, Items: items}, nil
}

func (r *orderRepo) itemsForOrder(ctx context.Context, orderID uuid.UUID) ([]models.OrderItem, error) {
	sql := `
		SELECT oi.id, oi.order_id, oi.product_id, oi.quantity, oi.unit_price,
			COALESCE(p.name, ''), COALESCE(p.category, '')
		FROM order_items oi
		LEFT JOIN products p ON oi.product_id = p.id
		WHERE oi.order_id = $1
		ORDER BY oi.id
	`

	rows, err := r.db.Query(ctx, sql, orderID)
	if err != nil {
		return nil, fmt.Errorf("failed to get items for order %s: %w", orderID, err)
	}
	defer rows.Close()

	var items []models.OrderItem
	for rows.Next() {
		var item models.OrderItem
		err := rows.Scan(
			&item.ID,
			&item.OrderID,
			&item.ProductID,
			&item.Quantity,
			&item.UnitPrice,
			&item.Name,
			&item.Category,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan order item: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to complete row iteration: %w", err)
	}

	return items, nil
}

func (r *orderRepo) List(ctx context.Context, filter OrderFilter) ([]models.OrderWithItems, int, error) {
	if filter.Limit <= 0 {
		filter.Limit = 50
	}

	where := ""
	args := []any{}
	if filter.Status != "" {
		args = append(args, filter.Status)
		where = fmt.Sprintf(" WHERE payment_status = $%d", len(args))
	}
	if filter.VisitorID != nil {
		args = append(args, *filter.VisitorID)
		if where == "" {
			where = fmt.Sprintf(" WHERE visitor_id = $%d", len(args))
		} else {
			where += fmt.Sprintf(" AND visitor_id = $%d", len(args))
		}
	}

	countArgs := make([]any, len(args))
	copy(countArgs, args)

	args = append(args, filter.Limit, filter.Offset)
	sql := fmt.Sprintf(`
		SELECT id, visitor_id, total_amount, payment_status,
			COALESCE(payment_proof_url, ''), COALESCE(admin_notes, ''),
			created_at, validated_at
		FROM orders%s
		ORDER BY created_at DESC
		LIMIT $%d OFFSET $%d
	`, where, len(args)-1, len(args))

	rows, err := r.db.Query(ctx, sql, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to get orders: %w", err)
	}
	defer rows.Close()

	var orders []models.OrderWithItems
	for rows.Next() {
		var order models.Order
		err := rows.Scan(
			&order.ID,
			&order.VisitorID,
			&order.TotalAmount,
			&order.PaymentStatus,
			&order.PaymentProofURL,
			&order.AdminNotes,
			&order.CreatedAt,
			&order.ValidatedAt,
		)
		if err != nil {
			return nil, 0, fmt.Errorf("failed to scan order: %w", err)
		}
		orders = append(orders, models.OrderWithItems{Order: order})
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("failed to complete row iteration: %w", err)
	}

	for i := range orders {
		items, err := r.itemsForOrder(ctx, orders[i].ID)
		if err != nil {
			return nil, 0, err
		}
		orders[i].Items = items
	}

	var total int
	countSQL := "SELECT COUNT(*) FROM orders" + where
	if err := r.db.QueryRow(ctx, countSQL, countArgs...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("failed to count orders: %w", err)
	}

	return orders, total, nil
}

// UpdatePaymentProof replaces the stored proof reference and returns the prior
// one so the caller can delete the old blob.
func (r *orderRepo) UpdatePaymentProof(ctx context.Context, id uuid.UUID, proofURL string) (string, error) {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return "", fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	var oldURL string
	err = tx.QueryRow(ctx, `SELECT COALESCE(payment_proof_url, '') FROM orders WHERE id = $1 FOR UPDATE`, id).Scan(&oldURL)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", fmt.Errorf("order: %w", ErrNotFound)
		}
		return "", fmt.Errorf("failed to get order %s: %w", id, err)
	}

	if _, err := tx.Exec(ctx, `UPDATE orders SET payment_proof_url = $1 WHERE id = $2`, proofURL, id); err != nil {
		return "", fmt.Errorf("failed to update payment proof for order %s: %w", id, err)
	}

	if err := tx.Commit(ctx); err != nil {
		return "", fmt.Errorf("failed to commit transaction: %w", err)
	}

	return oldURL, nil
}

func (r *orderRepo) Stats(ctx context.Context, from, to *time.Time) (*models.OrderStats, error) {
	where := ""
	args := []any{}
	if from != nil {
		args = append(args, *from)
		where = fmt.Sprintf(" WHERE created_at >= $%d", len(args))
	}
	if to != nil {
		args = append(args, *to)
		if where == "" {
			where = fmt.Sprintf(" WHERE created_at <= $%d", len(args))
		} else {
			where += fmt.Sprintf(" AND created_at <= $%d", len(args))
		}
	}

	sql := fmt.Sprintf(`
		SELECT
			COUNT(*),
			COUNT(CASE WHEN payment_status = 'pending' THEN 1 END),
			COUNT(CASE WHEN payment_status = 'approved' THEN 1 END),
			COUNT(CASE WHEN payment_status = 'rejected' THEN 1 END),
			COALESCE(SUM(CASE WHEN payment_status = 'approved' THEN total_amount ELSE 0 END), 0),
			COALESCE(AVG(CASE WHEN payment_status = 'approved' THEN total_amount END), 0)
		FROM orders%s
	`, where)

	var stats models.OrderStats
	err := r.db.QueryRow(ctx, sql, args...).Scan(
		&stats.TotalOrders,
		&stats.PendingOrders,
		&stats.ApprovedOrders,
		&stats.RejectedOrders,
		&stats.TotalRevenue,
		&stats.AverageOrderValue,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to get order stats: %w", err)
	}

	return &stats, nil
}
