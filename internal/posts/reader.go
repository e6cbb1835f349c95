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

// viewRecordTimeout bounds the detached view-increment task so it cannot
// linger after its request is long gone.
const viewRecordTimeout = 2 * time.Second

// Reader resolves posts cache-aside: cache first, database on miss, snapshot
// repopulated with a medium TTL. Every successful read counts as a view; the
// increment runs detached from the read path and its failure never reaches
// the caller.
type Reader struct {
	cache   Cache
	store   Store
	counter *Counter
	postTTL time.Duration
	logger  *zap.Logger

	// runAsync dispatches the fire-and-forget view increment; replaced in
	// tests to run inline.
	runAsync func(func())
}

// NewReader creates a new cache-aside reader
func NewReader(c Cache, store Store, counter *Counter, postTTL time.Duration, logger *zap.Logger) *Reader {
	return &Reader{
		cache:    c,
		store:    store,
		counter:  counter,
		postTTL:  postTTL,
		logger:   logger.With(zap.String("component", "reader")),
		runAsync: func(f func()) { go f() },
	}
}

// GetByID resolves a post by its primary key
func (r *Reader) GetByID(ctx context.Context, id int64) (*models.Post, error) {
	return r.get(ctx, cache.PostKey(id), func(ctx context.Context) (*models.Post, error) {
		return r.store.FindByID(ctx, id)
	})
}

// GetBySlug resolves a post by its slug
func (r *Reader) GetBySlug(ctx context.Context, slug string) (*models.Post, error) {
	return r.get(ctx, cache.SlugKey(slug), func(ctx context.Context) (*models.Post, error) {
		return r.store.FindBySlug(ctx, slug)
	})
}

func (r *Reader) get(ctx context.Context, key string, fetch func(context.Context) (*models.Post, error)) (*models.Post, error) {
	raw, err := r.cache.Get(ctx, key)
	if err == nil {
		var post models.Post
		if uerr := json.Unmarshal([]byte(raw), &post); uerr != nil {
			r.logger.Warn("corrupt post snapshot, rebuilding", zap.String("key", key))
		} else if !post.IsDeleted {
			r.recordViewDetached(post.ID)
			post.Views += r.counter.UnflushedViews(ctx, post.ID)
			return &post, nil
		}
		// A snapshot flagged deleted falls through and re-resolves from the
		// store, same as a miss.
	} else if !errors.Is(err, cache.ErrCacheMiss) && !errors.Is(err, cache.ErrCacheDisabled) {
		// Cache read failures degrade to a direct database read.
		r.logger.Warn("cache read failed", zap.String("key", key), zap.Error(err))
	}

	post, err := fetch(ctx)
	if err != nil {
		return nil, err
	}
	if post == nil || post.IsDeleted {
		return nil, ErrNotFound
	}

	if data, merr := json.Marshal(post); merr == nil {
		if serr := r.cache.SetWithExpiry(ctx, key, data, r.postTTL); serr != nil && !errors.Is(serr, cache.ErrCacheDisabled) {
			r.logger.Warn("snapshot populate failed",
				zap.Int64("post_id", post.ID),
				zap.Error(serr))
		}
	}

	r.recordViewDetached(post.ID)

	// Return a copy with the unflushed delta merged in; the cached snapshot
	// keeps the canonical persisted count.
	out := *post
	out.Views += r.counter.UnflushedViews(ctx, post.ID)
	return &out, nil
}

func (r *Reader) recordViewDetached(postID int64) {
	r.runAsync(func() {
		ctx, cancel := context.WithTimeout(context.Background(), viewRecordTimeout)
		defer cancel()
		if err := r.counter.RecordView(ctx, postID); err != nil && !errors.Is(err, cache.ErrCacheDisabled) {
			r.logger.Warn("view increment failed",
				zap.Int64("post_id", postID),
				zap.Error(err))
		}
	})
}
