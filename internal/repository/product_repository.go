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

type productRepo struct {
	db *pgxpool.Pool
}

func NewProductRepository(db *pgxpool.Pool) ProductRepository {
	return &productRepo{db: db}
}

func validateProduct(p *models.Product) error {
	if p.Name == "" {
		return fmt.Errorf("%w: product name required", ErrInvalidInput)
	}
	if p.Price < 0 {
		return fmt.Errorf("%w: product price cannot be negative", ErrInvalidInput)
	}
	if p.Stock < 0 {
		return fmt.Errorf("%w: product stock cannot be negative", ErrInvalidInput)
	}
	return nil
}

func (r *productRepo) Create(ctx context.Context, p *models.Product) error {
	if err := validateProduct(p); err != nil {
		return err
	}

	sql := `
		INSERT INTO products (
			name,
			price,
			stock,
			category,
			image_url,
			is_active
		) VALUES ($1, $2, $3, $4, NULLIF($5, ''), $6)
		RETURNING id, created_at, updated_at
	`

	err := r.db.QueryRow(ctx, sql,
		p.Name,
		p.Price,
		p.Stock,
		p.Category,
		p.ImageURL,
		p.IsActive,
	).Scan(&p.ID, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to create product: %w", err)
	}

	return nil
}

func (r *productRepo) GetByID(ctx context.Context, id uuid.UUID) (*models.Product, error) {
	sql := `
		SELECT
			id,
			name,
			price,
			stock,
			category,
			COALESCE(image_url, ''),
			is_active,
			created_at,
			updated_at
		FROM products WHERE id = $1
	`

	var product models.Product
	err := r.db.QueryRow(ctx, sql, id).Scan(
		&product.ID,
		&product.Name,
		&product.Price,
		&product.Stock,
		&product.Category,
		&product.ImageURL,
		&product.IsActive,
		&product.CreatedAt,
		&product.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get product %s: %w", id, err)
	}

	return &product, nil
}

func (r *productRepo) List(ctx context.Context, filter ProductFilter) ([]models.Product, int, error) {
	if filter.Limit <= 0 {
		filter.Limit = 50
	}

	where := ""
	args := []any{}
	addCondition := func(cond string, value any) {
		args = append(args, value)
		if where == "" {
			where = fmt.Sprintf(" WHERE "+cond, len(args))
		} else {
			where += fmt.Sprintf(" AND "+cond, len(args))
		}
	}

	if filter.Category != "" {
		addCondition("category = $%d", filter.Category)
	}
	if filter.IsActive != nil {
		addCondition("is_active = $%d", *filter.IsActive)
	}
	if filter.Search != "" {
		addCondition("(name ILIKE $%[1]d OR category ILIKE $%[1]d)", "%"+filter.Search+"%")
	}

	countArgs := make([]any, len(args))
	copy(countArgs, args)

	args = append(args, filter.Limit, filter.Offset)
	sql := fmt.Sprintf(`
		SELECT
			id,
			name,
			price,
			stock,
			category,
			COALESCE(image_url, ''),
			is_active,
			created_at,
			updated_at
		FROM products%s
		ORDER BY created_at DESC
		LIMIT $%d OFFSET $%d
	`, where, len(args)-1, len(args))

	rows, err := r.db.Query(ctx, sql, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to get products: %w", err)
	}
	defer rows.Close()

	var products []models.Product
	for rows.Next() {
		var p models.Product
		err := rows.Scan(
			&p.ID,
			&p.Name,
			&p.Price,
			&p.Stock,
			&p.Category,
			&p.ImageURL,
			&p.IsActive,
			&p.CreatedAt,
			&p.UpdatedAt,
		)
		if err != nil {
			return nil, 0, fmt.Errorf("failed to scan product: %w", err)
		}
		products = append(products, p)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("failed to complete row iteration: %w", err)
	}

	var total int
	countSQL := "SELECT COUNT(*) FROM products" + where
	if err := r.db.QueryRow(ctx, countSQL, countArgs...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("failed to count products: %w", err)
	}

	return products, total, nil
}

func (r *productRepo) Update(ctx context.Context, p *models.Product) error {
	if err := validateProduct(p); err != nil {
		return err
	}
	if p.ID == uuid.Nil {
		return fmt.Errorf("%w: product ID required", ErrInvalidInput)
	}

	sql := `
		UPDATE products
		SET
			name = $1,
			price = $2,
			stock = $3,
			category = $4,
			image_url = NULLIF($5, ''),
			is_active = $6,
			updated_at = $7
		WHERE id = $8
		RETURNING updated_at
	`

	err := r.db.QueryRow(ctx, sql,
		p.Name,
		p.Price,
		p.Stock,
		p.Category,
		p.ImageURL,
		p.IsActive,
		time.Now(),
		p.ID,
	).Scan(&p.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrNotFound
		}
		return fmt.Errorf("failed to update product %s: %w", p.ID, err)
	}

	return nil
}

// Categories lists the distinct categories of active products.
func (r *productRepo) Categories(ctx context.Context) ([]string, error) {
	rows, err := r.db.Query(ctx,
		`SELECT DISTINCT category FROM products WHERE is_active = true AND category <> '' ORDER BY category`)
	if err != nil {
		return nil, fmt.Errorf("failed to get categories: %w", err)
	}
	defer rows.Close()

	var categories []string
	for rows.Next() {
		var category string
		if err := rows.Scan(&category); err != nil {
			return nil, fmt.Errorf("failed to scan category: %w", err)
		}
		categories = append(categories, category)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to complete row iteration: %w", err)
	}

	return categories, nil
}

func (r *productRepo) Delete(ctx context.Context, id uuid.UUID) error {
	result, err := r.db.Exec(ctx, `DELETE FROM products WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete product %s: %w", id, err)
	}
	if result.RowsAffected() == 0 {
		return ErrNotFound
	}

	return nil
}
