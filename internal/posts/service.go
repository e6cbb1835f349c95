package posts

import (
	"context"
	"encoding/json"
	"errors"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/inkwell-cms/inkwell/internal/cache"
	"github.com/inkwell-cms/inkwell/internal/db"
	"github.com/inkwell-cms/inkwell/internal/models"
)

// Service is the facade over the cache-aside reader, the engagement counter,
// the invalidator and the assembler. Mutations run durable-first: the
// database is mutated, every possibly-stale cache key is invalidated, then
// the snapshot is repopulated. A cache outage degrades latency, never
// correctness.
type Service struct {
	store       Store
	cache       Cache
	reader      *Reader
	counter     *Counter
	invalidator *Invalidator
	assembler   *Assembler
	postTTL     time.Duration
	logger      *zap.Logger
}

// Options carries the cache-layer tunables for the service
type Options struct {
	PostTTL        time.Duration
	ListTTL        time.Duration
	TrendingTTL    time.Duration
	TagSearchTTL   time.Duration
	LikeMarkerTTL  time.Duration
	ViewFlushBatch int
	TrendingSize   int
}

// NewService wires the post service from its injected dependencies
func NewService(store Store, c Cache, opts Options, logger *zap.Logger) *Service {
	invalidator := NewInvalidator(c, logger)
	counter := NewCounter(c, store, invalidator, opts.ViewFlushBatch, opts.LikeMarkerTTL, logger)
	reader := NewReader(c, store, counter, opts.PostTTL, logger)
	assembler := NewAssembler(c, store, opts.ListTTL, opts.TrendingTTL, opts.TagSearchTTL, opts.TrendingSize, logger)

	return &Service{
		store:       store,
		cache:       c,
		reader:      reader,
		counter:     counter,
		invalidator: invalidator,
		assembler:   assembler,
		postTTL:     opts.PostTTL,
		logger:      logger.With(zap.String("component", "posts")),
	}
}

// CreateInput is the payload for creating a post
type CreateInput struct {
	Slug      string   `json:"slug"`
	Title     string   `json:"title"`
	Body      string   `json:"body"`
	Tags      []string `json:"tags"`
	Published bool     `json:"published"`
	OwnerID   int64    `json:"owner_id"`
}

// UpdateInput is a partial patch; nil fields are left unchanged
type UpdateInput struct {
	Slug      *string   `json:"slug"`
	Title     *string   `json:"title"`
	Body      *string   `json:"body"`
	Tags      *[]string `json:"tags"`
	Published *bool     `json:"published"`
}

// GetPost resolves a post by numeric id or by slug. An all-numeric ref is
// tried as an id first; when no post has that id it is retried as a slug, so
// posts with numeric slugs like "2024" stay reachable.
func (s *Service) GetPost(ctx context.Context, idOrSlug string) (*models.Post, error) {
	if id, perr := strconv.ParseInt(idOrSlug, 10, 64); perr == nil {
		post, err := s.reader.GetByID(ctx, id)
		if !errors.Is(err, ErrNotFound) {
			return post, err
		}
	}
	return s.reader.GetBySlug(ctx, idOrSlug)
}

// GetPostByID resolves a post by its primary key
func (s *Service) GetPostByID(ctx context.Context, id int64) (*models.Post, error) {
	return s.reader.GetByID(ctx, id)
}

// ListPublished returns one page of published posts
func (s *Service) ListPublished(ctx context.Context, page, pageSize int) (*ListPage, error) {
	return s.assembler.ListPublished(ctx, page, pageSize)
}

// ListByOwner returns one page of a user's own posts
func (s *Service) ListByOwner(ctx context.Context, ownerID int64, page, pageSize int) (*ListPage, error) {
	return s.assembler.ListByOwner(ctx, ownerID, page, pageSize)
}

// Trending returns the current trending posts
func (s *Service) Trending(ctx context.Context, limit int) ([]models.Post, error) {
	return s.assembler.Trending(ctx, limit)
}

// SearchByTags returns published posts matching any of the given tags
func (s *Service) SearchByTags(ctx context.Context, tags []string) ([]models.Post, error) {
	return s.assembler.SearchByTags(ctx, tags)
}

// CreatePost stores a new post, clears the listings and caches the fresh
// snapshot
func (s *Service) CreatePost(ctx context.Context, in CreateInput) (*models.Post, error) {
	post := &models.Post{
		Slug:      in.Slug,
		Title:     in.Title,
		Body:      in.Body,
		Tags:      cache.NormalizeTags(in.Tags),
		Published: in.Published,
		OwnerID:   in.OwnerID,
	}

	if err := s.store.Create(ctx, post); err != nil {
		if errors.Is(err, db.ErrDuplicateSlug) {
			return nil, ErrConflict
		}
		return nil, err
	}

	s.invalidator.InvalidatePost(ctx, post.ID, post.Slug)
	s.repopulate(ctx, post)
	return post, nil
}

// UpdatePost applies a partial patch, invalidates every stale key including
// the old slug entry when the slug changed, and caches the fresh snapshot
func (s *Service) UpdatePost(ctx context.Context, id int64, patch UpdateInput) (*models.Post, error) {
	post, err := s.store.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if post == nil || post.IsDeleted {
		return nil, ErrNotFound
	}

	oldSlug := post.Slug
	if patch.Slug != nil {
		post.Slug = *patch.Slug
	}
	if patch.Title != nil {
		post.Title = *patch.Title
	}
	if patch.Body != nil {
		post.Body = *patch.Body
	}
	if patch.Tags != nil {
		post.Tags = cache.NormalizeTags(*patch.Tags)
	}
	if patch.Published != nil {
		post.Published = *patch.Published
	}

	if err := s.store.Update(ctx, post); err != nil {
		if errors.Is(err, db.ErrDuplicateSlug) {
			return nil, ErrConflict
		}
		return nil, err
	}

	if post.Slug != oldSlug {
		s.invalidator.InvalidatePost(ctx, id, oldSlug, post.Slug)
	} else {
		s.invalidator.InvalidatePost(ctx, id, post.Slug)
	}
	s.repopulate(ctx, post)
	return post, nil
}

// DeletePost removes a post, softly or hard, and clears every key that
// could still serve it. Soft-deleted posts must vanish immediately, not at
// snapshot expiry.
func (s *Service) DeletePost(ctx context.Context, id int64, soft bool) error {
	post, err := s.store.FindByID(ctx, id)
	if err != nil {
		return err
	}
	if post == nil {
		return ErrNotFound
	}

	if err := s.store.Delete(ctx, id, soft); err != nil {
		if errors.Is(err, db.ErrNoRows) {
			return ErrNotFound
		}
		return err
	}

	s.invalidator.InvalidatePost(ctx, id, post.Slug)
	return nil
}

// Like records a like for the given user
func (s *Service) Like(ctx context.Context, postID, userID int64) error {
	return s.counter.Like(ctx, postID, userID)
}

// Unlike removes the given user's like
func (s *Service) Unlike(ctx context.Context, postID, userID int64) error {
	return s.counter.Unlike(ctx, postID, userID)
}

// repopulate writes the fresh snapshot under both lookup keys; failures are
// logged and swallowed
func (s *Service) repopulate(ctx context.Context, post *models.Post) {
	data, err := json.Marshal(post)
	if err != nil {
		return
	}
	for _, key := range []string{cache.PostKey(post.ID), cache.SlugKey(post.Slug)} {
		if err := s.cache.SetWithExpiry(ctx, key, data, s.postTTL); err != nil && !errors.Is(err, cache.ErrCacheDisabled) {
			s.logger.Warn("snapshot repopulate failed",
				zap.Int64("post_id", post.ID),
				zap.String("key", key),
				zap.Error(err))
		}
	}
}
