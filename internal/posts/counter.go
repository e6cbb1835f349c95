package posts

import (
	"context"
	"errors"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/inkwell-cms/inkwell/internal/cache"
	"github.com/inkwell-cms/inkwell/internal/db"
)

// Counter maintains the engagement metrics. Views accumulate in a cache
// counter and are flushed to the database in fixed-size batches, bounding
// write amplification to one durable write per batch. Likes go straight to
// the database, guarded by a per-(user, post) marker set with an atomic
// conditional set so concurrent duplicates cannot both pass the check.
type Counter struct {
	cache         Cache
	store         Store
	invalidator   *Invalidator
	flushBatch    int64
	likeMarkerTTL time.Duration
	logger        *zap.Logger
}

// NewCounter creates a new engagement counter
func NewCounter(c Cache, store Store, invalidator *Invalidator, flushBatch int, likeMarkerTTL time.Duration, logger *zap.Logger) *Counter {
	return &Counter{
		cache:         c,
		store:         store,
		invalidator:   invalidator,
		flushBatch:    int64(flushBatch),
		likeMarkerTTL: likeMarkerTTL,
		logger:        logger.With(zap.String("component", "counter")),
	}
}

// RecordView increments the post's view counter in cache. At each exact
// multiple of the flush batch the outstanding delta is committed to the
// database as one atomic increment and the post's snapshot is invalidated,
// so the next read rebuilds from the freshly flushed persisted count. The
// full counter value is flushed, not just one batch: if an earlier flush
// failed, the counter has grown past the batch size and the next boundary
// commits everything it holds.
//
// If the cache loses the counter before a flush boundary, the 0 to batch-1
// views it held are lost; acceptable for a display metric.
func (c *Counter) RecordView(ctx context.Context, postID int64) error {
	n, err := c.cache.Increment(ctx, cache.ViewCounterKey(postID))
	if err != nil {
		return err
	}

	if n%c.flushBatch != 0 {
		return nil
	}

	if err := c.store.IncrementColumn(ctx, postID, "views", n); err != nil {
		if errors.Is(err, db.ErrNoRows) {
			// Post is gone; drop the orphaned counter.
			c.invalidator.InvalidatePost(ctx, postID)
			return nil
		}
		return err
	}

	c.invalidator.InvalidatePost(ctx, postID)
	return nil
}

// UnflushedViews returns the view delta not yet committed to the database,
// or zero when the counter is absent or the cache is unreachable
func (c *Counter) UnflushedViews(ctx context.Context, postID int64) int64 {
	raw, err := c.cache.Get(ctx, cache.ViewCounterKey(postID))
	if err != nil {
		return 0
	}
	n, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0
	}
	return n
}

// Like records a like. The marker is written with an atomic set-if-absent,
// so of two concurrent calls for the same (user, post) exactly one wins.
// The marker write and the durable increment are not transactional; a crash
// between them leaves a marker without a durable increment, left to a
// reconciliation job.
func (c *Counter) Like(ctx context.Context, postID, userID int64) error {
	// The post is resolved first so its slug snapshot can be invalidated
	// along with the primary one.
	post, err := c.store.FindByID(ctx, postID)
	if err != nil {
		return err
	}
	if post == nil || post.IsDeleted {
		return ErrNotFound
	}

	marker := cache.LikeMarkerKey(postID, userID)

	set, err := c.cache.SetIfAbsentWithExpiry(ctx, marker, "1", c.likeMarkerTTL)
	if err != nil {
		// Degraded cache: proceed without the idempotency guard rather
		// than failing the like.
		c.logWriteFailure("like marker set failed", postID, err)
	} else if !set {
		return ErrAlreadyLiked
	}

	if _, err := c.cache.Increment(ctx, cache.LikeCounterKey(postID)); err != nil {
		c.logWriteFailure("like counter increment failed", postID, err)
	}

	if err := c.store.IncrementColumn(ctx, postID, "likes", 1); err != nil {
		if errors.Is(err, db.ErrNoRows) {
			// The post vanished between lookup and increment: release the
			// marker so it does not outlive this failed attempt.
			if derr := c.cache.Delete(ctx, marker); derr != nil {
				c.logWriteFailure("like marker rollback failed", postID, derr)
			}
			return ErrNotFound
		}
		return err
	}

	c.invalidator.InvalidatePost(ctx, postID, post.Slug)
	return nil
}

// Unlike removes a like. Fails with ErrNotLiked when no marker exists. The
// durable decrement is clamped at zero by the store.
func (c *Counter) Unlike(ctx context.Context, postID, userID int64) error {
	post, err := c.store.FindByID(ctx, postID)
	if err != nil {
		return err
	}
	if post == nil || post.IsDeleted {
		return ErrNotFound
	}

	marker := cache.LikeMarkerKey(postID, userID)

	if _, err := c.cache.Get(ctx, marker); err != nil {
		if errors.Is(err, cache.ErrCacheMiss) {
			return ErrNotLiked
		}
		// Degraded cache: the marker cannot be proven either way; proceed
		// like the like path does.
		c.logWriteFailure("like marker read failed", postID, err)
	}

	if err := c.cache.Delete(ctx, marker); err != nil {
		c.logWriteFailure("like marker delete failed", postID, err)
	}

	if _, err := c.cache.Decrement(ctx, cache.LikeCounterKey(postID)); err != nil {
		c.logWriteFailure("like counter decrement failed", postID, err)
	}

	if err := c.store.IncrementColumn(ctx, postID, "likes", -1); err != nil {
		if errors.Is(err, db.ErrNoRows) {
			return ErrNotFound
		}
		return err
	}

	c.invalidator.InvalidatePost(ctx, postID, post.Slug)
	return nil
}

func (c *Counter) logWriteFailure(msg string, postID int64, err error) {
	if errors.Is(err, cache.ErrCacheDisabled) {
		return
	}
	c.logger.Warn(msg, zap.Int64("post_id", postID), zap.Error(err))
}
