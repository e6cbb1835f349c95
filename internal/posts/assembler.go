package posts

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/inkwell-cms/inkwell/internal/cache"
	"github.com/inkwell-cms/inkwell/internal/models"
)

const (
	defaultPageSize = 20
	maxPageSize     = 100
	defaultTrending = 10
)

// ListPage is one page of a listing with the total matching count
type ListPage struct {
	Items      []models.Post `json:"items"`
	TotalCount int64         `json:"total_count"`
}

// Assembler computes the derived views: paginated listings, the trending
// snapshot and tag searches. All are cached with short TTLs since they are
// aggregates that tolerate staleness. Trending is ranked on persisted counts
// only; unflushed view deltas are deliberately ignored, the snapshot is
// short-lived and refreshed at every flush boundary anyway.
type Assembler struct {
	cache        Cache
	store        Store
	listTTL      time.Duration
	trendingTTL  time.Duration
	tagSearchTTL time.Duration
	trendingSize int
	logger       *zap.Logger
}

// NewAssembler creates a new list and trending assembler
func NewAssembler(c Cache, store Store, listTTL, trendingTTL, tagSearchTTL time.Duration, trendingSize int, logger *zap.Logger) *Assembler {
	return &Assembler{
		cache:        c,
		store:        store,
		listTTL:      listTTL,
		trendingTTL:  trendingTTL,
		tagSearchTTL: tagSearchTTL,
		trendingSize: trendingSize,
		logger:       logger.With(zap.String("component", "assembler")),
	}
}

// ListPublished returns one page of published posts, newest first
func (a *Assembler) ListPublished(ctx context.Context, page, pageSize int) (*ListPage, error) {
	page, pageSize = normalizePage(page, pageSize)
	key := cache.ListKey(page, pageSize)

	if cached, ok := a.cachedPage(ctx, key); ok {
		return cached, nil
	}

	items, total, err := a.store.ListPublished(ctx, page, pageSize)
	if err != nil {
		return nil, err
	}

	result := &ListPage{Items: items, TotalCount: total}
	a.populate(ctx, key, result, a.listTTL)
	return result, nil
}

// ListByOwner returns one page of a user's own posts, drafts included
func (a *Assembler) ListByOwner(ctx context.Context, ownerID int64, page, pageSize int) (*ListPage, error) {
	page, pageSize = normalizePage(page, pageSize)
	key := cache.OwnerListKey(ownerID, page, pageSize)

	if cached, ok := a.cachedPage(ctx, key); ok {
		return cached, nil
	}

	items, total, err := a.store.ListByOwner(ctx, ownerID, page, pageSize)
	if err != nil {
		return nil, err
	}

	result := &ListPage{Items: items, TotalCount: total}
	a.populate(ctx, key, result, a.listTTL)
	return result, nil
}

// Trending returns the top posts by persisted view count, then persisted
// like count. One fixed-size snapshot is cached under a single key and
// sliced to the requested limit; limits beyond the snapshot size are capped.
func (a *Assembler) Trending(ctx context.Context, limit int) ([]models.Post, error) {
	if limit <= 0 {
		limit = defaultTrending
	}
	if limit > a.trendingSize {
		limit = a.trendingSize
	}

	key := cache.TrendingKey()
	if raw, err := a.cache.Get(ctx, key); err == nil {
		var snapshot []models.Post
		if uerr := json.Unmarshal([]byte(raw), &snapshot); uerr == nil {
			return clip(snapshot, limit), nil
		}
		a.logger.Warn("corrupt trending snapshot, rebuilding")
	}

	snapshot, err := a.store.Trending(ctx, a.trendingSize)
	if err != nil {
		return nil, err
	}

	a.populate(ctx, key, snapshot, a.trendingTTL)
	return clip(snapshot, limit), nil
}

// SearchByTags returns published posts matching any of the given tags. The
// cache key is derived from the sorted, deduplicated tag set, so searches
// differing only in tag order share one entry.
func (a *Assembler) SearchByTags(ctx context.Context, tags []string) ([]models.Post, error) {
	norm := cache.NormalizeTags(tags)
	if len(norm) == 0 {
		return []models.Post{}, nil
	}

	key := cache.TagSearchKey(norm)
	if raw, err := a.cache.Get(ctx, key); err == nil {
		var items []models.Post
		if uerr := json.Unmarshal([]byte(raw), &items); uerr == nil {
			return items, nil
		}
		a.logger.Warn("corrupt tag search entry, rebuilding", zap.String("key", key))
	}

	items, err := a.store.SearchByTags(ctx, norm)
	if err != nil {
		return nil, err
	}

	a.populate(ctx, key, items, a.tagSearchTTL)
	return items, nil
}

func (a *Assembler) cachedPage(ctx context.Context, key string) (*ListPage, bool) {
	raw, err := a.cache.Get(ctx, key)
	if err != nil {
		return nil, false
	}
	var page ListPage
	if err := json.Unmarshal([]byte(raw), &page); err != nil {
		a.logger.Warn("corrupt list entry, rebuilding", zap.String("key", key))
		return nil, false
	}
	return &page, true
}

func (a *Assembler) populate(ctx context.Context, key string, value interface{}, ttl time.Duration) {
	data, err := json.Marshal(value)
	if err != nil {
		return
	}
	if err := a.cache.SetWithExpiry(ctx, key, data, ttl); err != nil && !errors.Is(err, cache.ErrCacheDisabled) {
		a.logger.Warn("list populate failed", zap.String("key", key), zap.Error(err))
	}
}

func normalizePage(page, pageSize int) (int, int) {
	if page < 1 {
		page = 1
	}
	if pageSize < 1 {
		pageSize = defaultPageSize
	}
	if pageSize > maxPageSize {
		pageSize = maxPageSize
	}
	return page, pageSize
}

func clip(items []models.Post, limit int) []models.Post {
	if len(items) > limit {
		return items[:limit]
	}
	return items
}
