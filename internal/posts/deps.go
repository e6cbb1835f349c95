package posts

import (
	"context"
	"time"

	"github.com/inkwell-cms/inkwell/internal/models"
)

// Store is the durable-store boundary. Lookups return (nil, nil) when no row
// exists; counter columns are adjusted with atomic SQL expressions.
// Implemented by db.PostRepository.
type Store interface {
	FindByID(ctx context.Context, id int64) (*models.Post, error)
	FindBySlug(ctx context.Context, slug string) (*models.Post, error)
	Create(ctx context.Context, post *models.Post) error
	Update(ctx context.Context, post *models.Post) error
	Delete(ctx context.Context, id int64, soft bool) error
	IncrementColumn(ctx context.Context, id int64, column string, amount int64) error
	ListPublished(ctx context.Context, page, pageSize int) ([]models.Post, int64, error)
	ListByOwner(ctx context.Context, ownerID int64, page, pageSize int) ([]models.Post, int64, error)
	Trending(ctx context.Context, limit int) ([]models.Post, error)
	SearchByTags(ctx context.Context, tags []string) ([]models.Post, error)
}

// Cache is the fast-cache boundary. Implemented by cache.Cache; must be safe
// for concurrent use.
type Cache interface {
	Get(ctx context.Context, key string) (string, error)
	SetWithExpiry(ctx context.Context, key string, value interface{}, ttl time.Duration) error
	SetIfAbsentWithExpiry(ctx context.Context, key string, value interface{}, ttl time.Duration) (bool, error)
	Delete(ctx context.Context, keys ...string) error
	Increment(ctx context.Context, key string) (int64, error)
	Decrement(ctx context.Context, key string) (int64, error)
	KeysMatching(ctx context.Context, pattern string) ([]string, error)
}
