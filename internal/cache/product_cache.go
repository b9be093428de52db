package cache

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"pos-service/internal/models"
	"pos-service/internal/repository"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const listKey = "products:list"

// CachedProductRepository is a cache-aside decorator over the real product
// repository. Redis failures degrade to the database, never to an error.
type CachedProductRepository struct {
	realRepo repository.ProductRepository
	redis    *redis.Client
	ttl      time.Duration
}

func NewCachedProductRepository(realRepo repository.ProductRepository, redis *redis.Client) *CachedProductRepository {
	return &CachedProductRepository{
		realRepo: realRepo,
		redis:    redis,
		ttl:      5 * time.Minute,
	}
}

func productKey(id uuid.UUID) string {
	return "product:" + id.String()
}

func (c *CachedProductRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.Product, error) {
	key := productKey(id)

	data, err := c.redis.Get(ctx, key).Bytes()
	switch {
	case err == nil:
		if string(data) == "notfound" {
			return nil, repository.ErrNotFound
		}
		var product models.Product
		if err := json.Unmarshal(data, &product); err != nil {
			slog.Warn("failed to unmarshal cached product, falling back to DB", "err", err)
			break
		}
		return &product, nil

	case errors.Is(err, redis.Nil):

	default:
		slog.Warn("redis error, falling back to DB", "err", err)
	}

	product, err := c.realRepo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			if setErr := c.redis.Set(ctx, key, "notfound", 1*time.Minute).Err(); setErr != nil {
				slog.Warn("failed to cache notfound marker", "err", setErr)
			}
		}
		return nil, err
	}

	jsonData, err := json.Marshal(product)
	if err != nil {
		slog.Warn("failed to marshal product", "err", err)
		return product, nil
	}
	if err := c.redis.Set(ctx, key, jsonData, c.ttl).Err(); err != nil {
		slog.Warn("failed to cache product", "err", err)
	}

	return product, nil
}

type cachedList struct {
	Products []models.Product `json:"products"`
	Total    int              `json:"total"`
}

// List caches only the default unfiltered first page, which is what the shop
// front requests on every load. Filtered queries go straight to the database.
func (c *CachedProductRepository) List(ctx context.Context, filter repository.ProductFilter) ([]models.Product, int, error) {
	cacheable := filter.Category == "" && filter.IsActive == nil && filter.Search == "" && filter.Offset == 0

	if cacheable {
		data, err := c.redis.Get(ctx, listKey).Bytes()
		if err == nil {
			var cached cachedList
			if err := json.Unmarshal(data, &cached); err == nil {
				return cached.Products, cached.Total, nil
			}
		} else if !errors.Is(err, redis.Nil) {
			slog.Warn("redis error, falling back to DB", "err", err)
		}
	}

	products, total, err := c.realRepo.List(ctx, filter)
	if err != nil {
		return nil, 0, err
	}

	if cacheable {
		jsonData, err := json.Marshal(cachedList{Products: products, Total: total})
		if err != nil {
			slog.Warn("failed to marshal product list", "err", err)
		} else if err := c.redis.Set(ctx, listKey, jsonData, c.ttl).Err(); err != nil {
			slog.Warn("failed to cache product list", "err", err)
		}
	}

	return products, total, nil
}

func (c *CachedProductRepository) invalidate(ctx context.Context, id uuid.UUID) {
	if err := c.redis.Del(ctx, productKey(id), listKey).Err(); err != nil {
		slog.Warn("failed to invalidate product cache", "product_id", id, "err", err)
	}
}

func (c *CachedProductRepository) Create(ctx context.Context, product *models.Product) error {
	if err := c.realRepo.Create(ctx, product); err != nil {
		return err
	}
	if err := c.redis.Del(ctx, listKey).Err(); err != nil {
		slog.Warn("failed to invalidate product list cache", "err", err)
	}
	return nil
}

func (c *CachedProductRepository) Update(ctx context.Context, product *models.Product) error {
	c.invalidate(ctx, product.ID)
	return c.realRepo.Update(ctx, product)
}

func (c *CachedProductRepository) Delete(ctx context.Context, id uuid.UUID) error {
	c.invalidate(ctx, id)
	return c.realRepo.Delete(ctx, id)
}

// Categories is served straight from the database. The set changes only on
// product writes and the query is a cheap DISTINCT over a small table.
func (c *CachedProductRepository) Categories(ctx context.Context) ([]string, error) {
	return c.realRepo.Categories(ctx)
}

var _ repository.ProductRepository = (*CachedProductRepository)(nil)

// InvalidateProduct drops the cached row for a product whose stock was changed
// outside the product repository (the order transaction decrements stock
// directly).
func (c *CachedProductRepository) InvalidateProduct(ctx context.Context, id uuid.UUID) {
	c.invalidate(ctx, id)
}
