package repository

import (
	"context"
	"errors"
	"fmt"
	"pos-service/internal/models"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

type adminRepo struct {
	db *pgxpool.Pool
}

var validate = validator.New()

func NewAdminRepository(db *pgxpool.Pool) AdminRepository {
	return &adminRepo{db: db}
}

type adminInput struct {
	Email        string `validate:"required,email"`
	PasswordHash string `validate:"required"`
	Name         string `validate:"required,min=2,max=150"`
}

func (r *adminRepo) Create(ctx context.Context, a *models.Admin) error {
	if a.Role == "" {
		a.Role = models.RoleAdmin
	}
	if !models.ValidRole(a.Role) {
		return fmt.Errorf("%w: role must be admin, operator, or security", ErrInvalidInput)
	}
	input := adminInput{Email: a.Email, PasswordHash: a.PasswordHash, Name: a.Name}
	if err := validate.Struct(input); err != nil {
		var validationErr validator.ValidationErrors
		if errors.As(err, &validationErr) {
			switch validationErr[0].Field() {
			case "Email":
				return fmt.Errorf("%w: invalid email format", ErrInvalidInput)
			case "Name":
				return fmt.Errorf("%w: name must be 2-150 characters", ErrInvalidInput)
			}
		}
		return fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}

	sql := `
		INSERT INTO admins (email, password_hash, name, role)
		VALUES ($1, $2, $3, $4)
		RETURNING id, is_active, created_at
	`

	err := r.db.QueryRow(ctx, sql, a.Email, a.PasswordHash, a.Name, a.Role).
		Scan(&a.ID, &a.IsActive, &a.CreatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			if strings.Contains(pgErr.ConstraintName, "email") {
				return fmt.Errorf("%w: email already exists", ErrDuplicate)
			}
		}
		return fmt.Errorf("failed to create admin: %w", err)
	}

	return nil
}

const adminColumns = `
	id, email, password_hash, name, role, is_active, created_at
`

func scanAdmin(row pgx.Row) (*models.Admin, error) {
	var admin models.Admin
	err := row.Scan(
		&admin.ID,
		&admin.Email,
		&admin.PasswordHash,
		&admin.Name,
		&admin.Role,
		&admin.IsActive,
		&admin.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &admin, nil
}

func (r *adminRepo) GetByID(ctx context.Context, id uuid.UUID) (*models.Admin, error) {
	row := r.db.QueryRow(ctx, `SELECT`+adminColumns+`FROM admins WHERE id = $1`, id)
	admin, err := scanAdmin(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get admin %s: %w", id, err)
	}
	return admin, nil
}

func (r *adminRepo) GetByEmail(ctx context.Context, email string) (*models.Admin, error) {
	row := r.db.QueryRow(ctx, `SELECT`+adminColumns+`FROM admins WHERE email = $1`, email)
	admin, err := scanAdmin(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get admin by email: %w", err)
	}
	return admin, nil
}

func (r *adminRepo) List(ctx context.Context) ([]models.Admin, error) {
	rows, err := r.db.Query(ctx, `SELECT`+adminColumns+`FROM admins ORDER BY created_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("failed to get admins: %w", err)
	}
	defer rows.Close()

	var admins []models.Admin
	for rows.Next() {
		admin, err := scanAdmin(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan admin: %w", err)
		}
		admins = append(admins, *admin)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to complete row iteration: %w", err)
	}

	return admins, nil
}

// Update changes only the fields set in params, the original's partial-update
// semantics for the user management screen.
func (r *adminRepo) Update(ctx context.Context, params UpdateAdminParams) (*models.Admin, error) {
	if params.ID == uuid.Nil {
		return nil, fmt.Errorf("%w: admin ID required", ErrInvalidInput)
	}
	if params.Role != "" && !models.ValidRole(params.Role) {
		return nil, fmt.Errorf("%w: role must be admin, operator, or security", ErrInvalidInput)
	}

	var sets []string
	args := []any{}
	addSet := func(column string, value any) {
		args = append(args, value)
		sets = append(sets, fmt.Sprintf("%s = $%d", column, len(args)))
	}

	if params.Email != "" {
		addSet("email", params.Email)
	}
	if params.Name != "" {
		addSet("name", params.Name)
	}
	if params.PasswordHash != "" {
		addSet("password_hash", params.PasswordHash)
	}
	if params.Role != "" {
		addSet("role", params.Role)
	}
	if len(sets) == 0 {
		return nil, fmt.Errorf("%w: no fields to update", ErrInvalidInput)
	}

	args = append(args, params.ID)
	sql := fmt.Sprintf(`UPDATE admins SET %s WHERE id = $%d RETURNING`+adminColumns,
		strings.Join(sets, ", "), len(args))

	admin, err := scanAdmin(r.db.QueryRow(ctx, sql, args...))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return nil, fmt.Errorf("%w: email already exists", ErrDuplicate)
		}
		return nil, fmt.Errorf("failed to update admin %s: %w", params.ID, err)
	}

	return admin, nil
}

func (r *adminRepo) Delete(ctx context.Context, id uuid.UUID) error {
	result, err := r.db.Exec(ctx, `DELETE FROM admins WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete admin %s: %w", id, err)
	}
	if result.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *adminRepo) ToggleActive(ctx context.Context, id uuid.UUID) (*models.Admin, error) {
	row := r.db.QueryRow(ctx,
		`UPDATE admins SET is_active = NOT is_active WHERE id = $1 RETURNING`+adminColumns, id)
	admin, err := scanAdmin(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to toggle admin %s: %w", id, err)
	}
	return admin, nil
}
