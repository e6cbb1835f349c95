package posts

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"github.com/inkwell-cms/inkwell/internal/cache"
)

// Invalidator removes every cache key that could be stale after a post
// mutation. Invalidation is coarse: all listing pages, owner pages and tag
// searches are cleared, since over-invalidation is always safe and the
// listing TTLs are short anyway. Cache failures are logged and swallowed;
// invalidation never blocks durable-store correctness.
type Invalidator struct {
	cache  Cache
	logger *zap.Logger
}

// NewInvalidator creates a new invalidator
func NewInvalidator(c Cache, logger *zap.Logger) *Invalidator {
	return &Invalidator{
		cache:  c,
		logger: logger.With(zap.String("component", "invalidator")),
	}
}

// InvalidatePost deletes the post's snapshot keys, its delta counters, the
// trending snapshot and every listing entry. Slugs are passed when known;
// on a slug change both the old and new slug are passed.
func (inv *Invalidator) InvalidatePost(ctx context.Context, postID int64, slugs ...string) {
	keys := []string{
		cache.PostKey(postID),
		cache.ViewCounterKey(postID),
		cache.LikeCounterKey(postID),
		cache.TrendingKey(),
	}
	for _, slug := range slugs {
		if slug != "" {
			keys = append(keys, cache.SlugKey(slug))
		}
	}

	for _, pattern := range []string{cache.ListPattern, cache.OwnerListPattern, cache.TagSearchPattern} {
		matched, err := inv.cache.KeysMatching(ctx, pattern)
		if err != nil {
			if !errors.Is(err, cache.ErrCacheDisabled) {
				inv.logger.Warn("key enumeration failed",
					zap.Int64("post_id", postID),
					zap.String("pattern", pattern),
					zap.Error(err))
			}
			continue
		}
		keys = append(keys, matched...)
	}

	if err := inv.cache.Delete(ctx, keys...); err != nil && !errors.Is(err, cache.ErrCacheDisabled) {
		inv.logger.Warn("cache invalidation failed",
			zap.Int64("post_id", postID),
			zap.Error(err))
	}
}
