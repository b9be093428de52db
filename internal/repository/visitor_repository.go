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
)

type visitorRepo struct {
	db *pgxpool.Pool
}

func NewVisitorRepository(db *pgxpool.Pool) VisitorRepository {
	return &visitorRepo{db: db}
}

const visitorColumns = `
	id, qr_data, COALESCE(qr_code, ''), status, entry_time, exit_time,
	is_active, permissions, metadata, created_at
`

func scanVisitor(row pgx.Row) (*models.Visitor, error) {
	var v models.Visitor
	err := row.Scan(
		&v.ID,
		&v.QRData,
		&v.QRCode,
		&v.Status,
		&v.EntryTime,
		&v.ExitTime,
		&v.IsActive,
		&v.Permissions,
		&v.Metadata,
		&v.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &v, nil
}

func (r *visitorRepo) Create(ctx context.Context, v *models.Visitor) error {
	if v.QRData == "" {
		return fmt.Errorf("%w: qr_data required", ErrInvalidInput)
	}
	if v.Status == "" {
		v.Status = models.VisitorStatusRegistered
	}
	if v.Permissions == nil {
		v.Permissions = []string{"gate_entry"}
	}
	if v.Metadata == nil {
		v.Metadata = map[string]any{}
	}

	sql := `
		INSERT INTO visitors (qr_data, qr_code, status, is_active, permissions, metadata)
		VALUES ($1, NULLIF($2, ''), $3, $4, $5, $6)
		RETURNING id, created_at
	`

	err := r.db.QueryRow(ctx, sql,
		v.QRData,
		v.QRCode,
		v.Status,
		v.IsActive,
		v.Permissions,
		v.Metadata,
	).Scan(&v.ID, &v.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to create visitor: %w", err)
	}

	return nil
}

func (r *visitorRepo) GetByID(ctx context.Context, id uuid.UUID) (*models.Visitor, error) {
	row := r.db.QueryRow(ctx, `SELECT`+visitorColumns+`FROM visitors WHERE id = $1`, id)
	v, err := scanVisitor(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get visitor %s: %w", id, err)
	}
	return v, nil
}

func (r *visitorRepo) GetByQRData(ctx context.Context, qrData string) (*models.Visitor, error) {
	row := r.db.QueryRow(ctx, `SELECT`+visitorColumns+`FROM visitors WHERE qr_data = $1`, qrData)
	v, err := scanVisitor(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get visitor by qr data: %w", err)
	}
	return v, nil
}

func (r *visitorRepo) List(ctx context.Context, filter VisitorFilter) ([]models.Visitor, int, error) {
	if filter.Limit <= 0 {
		filter.Limit = 50
	}

	where := ""
	args := []any{}
	if filter.Status != "" {
		args = append(args, filter.Status)
		where = " WHERE status = $1"
	}

	countArgs := make([]any, len(args))
	copy(countArgs, args)

	args = append(args, filter.Limit, filter.Offset)
	sql := fmt.Sprintf(`SELECT`+visitorColumns+`FROM visitors%s
		ORDER BY created_at DESC
		LIMIT $%d OFFSET $%d`, where, len(args)-1, len(args))

	rows, err := r.db.Query(ctx, sql, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to get visitors: %w", err)
	}
	defer rows.Close()

	var visitors []models.Visitor
	for rows.Next() {
		v, err := scanVisitor(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("failed to scan visitor: %w", err)
		}
		visitors = append(visitors, *v)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("failed to complete row iteration: %w", err)
	}

	var total int
	if err := r.db.QueryRow(ctx, "SELECT COUNT(*) FROM visitors"+where, countArgs...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("failed to count visitors: %w", err)
	}

	return visitors, total, nil
}

// UpdateStatus activates or deactivates a visitor's QR code and optionally
// replaces its permission set. Nil permissions leave the stored set untouched.
func (r *visitorRepo) UpdateStatus(ctx context.Context, id uuid.UUID, isActive bool, permissions []string) (*models.Visitor, error) {
	row := r.db.QueryRow(ctx, `
		UPDATE visitors
		SET is_active = $2, permissions = COALESCE($3, permissions)
		WHERE id = $1
		RETURNING`+visitorColumns, id, isActive, permissions)
	v, err := scanVisitor(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to update visitor %s: %w", id, err)
	}
	return v, nil
}

// Delete removes a visitor; movement logs and orders cascade with the row.
func (r *visitorRepo) Delete(ctx context.Context, id uuid.UUID) error {
	result, err := r.db.Exec(ctx, `DELETE FROM visitors WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete visitor %s: %w", id, err)
	}
	if result.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// Scan resolves an entry/exit gate scan: it locks the visitor row, applies the
// status transition and appends the movement log row in one transaction.
// Returns the updated visitor, the logged movement and a display message.
func (r *visitorRepo) Scan(ctx context.Context, qrData, action, gateLocation, scannedBy string) (*models.Visitor, *models.Movement, string, error) {
	if action != models.ActionEntry && action != models.ActionExit {
		return nil, nil, "", fmt.Errorf("%w: action must be either \"entry\" or \"exit\"", ErrInvalidInput)
	}

	tx, err := r.db.Begin(ctx)
	if err != nil {
		return nil, nil, "", fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	row := tx.QueryRow(ctx, `SELECT`+visitorColumns+`FROM visitors WHERE qr_data = $1 FOR UPDATE`, qrData)
	visitor, err := scanVisitor(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil, "", fmt.Errorf("QR code: %w", ErrNotFound)
		}
		return nil, nil, "", fmt.Errorf("failed to get visitor by qr data: %w", err)
	}

	result, err := visitor.ApplyScan(action)
	if err != nil {
		return nil, nil, "", fmt.Errorf("%w: %s", ErrInvalidState, err.Error())
	}

	now := time.Now()
	visitor.Status = result.NewStatus
	if action == models.ActionEntry {
		visitor.EntryTime = &now
		if result.ClearExitTime {
			visitor.ExitTime = nil
		}
		_, err = tx.Exec(ctx,
			`UPDATE visitors SET status = $1, entry_time = $2, exit_time = $3 WHERE id = $4`,
			visitor.Status, visitor.EntryTime, visitor.ExitTime, visitor.ID)
	} else {
		visitor.ExitTime = &now
		_, err = tx.Exec(ctx,
			`UPDATE visitors SET status = $1, exit_time = $2 WHERE id = $3`,
			visitor.Status, visitor.ExitTime, visitor.ID)
	}
	if err != nil {
		return nil, nil, "", fmt.Errorf("failed to update visitor %s: %w", visitor.ID, err)
	}

	movement := models.Movement{
		VisitorID:    visitor.ID,
		Action:       action,
		Timestamp:    now,
		GateLocation: gateLocation,
		ScannedBy:    scannedBy,
	}
	err = tx.QueryRow(ctx, `
		INSERT INTO visitor_movements (visitor_id, action, timestamp, gate_location, scanned_by)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id
	`, movement.VisitorID, movement.Action, movement.Timestamp, movement.GateLocation, movement.ScannedBy).
		Scan(&movement.ID)
	if err != nil {
		return nil, nil, "", fmt.Errorf("failed to log movement: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, nil, "", fmt.Errorf("failed to commit transaction: %w", err)
	}

	return visitor, &movement, result.Message, nil
}

func (r *visitorRepo) Movements(ctx context.Context, filter MovementFilter) ([]models.Movement, int, error) {
	if filter.Limit <= 0 {
		filter.Limit = 50
	}

	where := ""
	args := []any{}
	if filter.VisitorID != nil {
		args = append(args, *filter.VisitorID)
		where = " WHERE visitor_id = $1"
	}

	countArgs := make([]any, len(args))
	copy(countArgs, args)

	args = append(args, filter.Limit, filter.Offset)
	sql := fmt.Sprintf(`
		SELECT id, visitor_id, action, timestamp, gate_location, scanned_by
		FROM visitor_movements%s
		ORDER BY timestamp DESC
		LIMIT $%d OFFSET $%d
	`, where, len(args)-1, len(args))

	rows, err := r.db.Query(ctx, sql, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to get movements: %w", err)
	}
	defer rows.Close()

	var movements []models.Movement
	for rows.Next() {
		var m models.Movement
		err := rows.Scan(&m.ID, &m.VisitorID, &m.Action, &m.Timestamp, &m.GateLocation, &m.ScannedBy)
		if err != nil {
			return nil, 0, fmt.Errorf("failed to scan movement: %w", err)
		}
		movements = append(movements, m)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("failed to complete row iteration: %w", err)
	}

	var total int
	if err := r.db.QueryRow(ctx, "SELECT COUNT(*) FROM visitor_movements"+where, countArgs...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("failed to count movements: %w", err)
	}

	return movements, total, nil
}
