package db

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"

	"github.com/inkwell-cms/inkwell/internal/models"
)

var (
	// ErrDuplicateSlug is returned when a create or update collides with an
	// existing slug
	ErrDuplicateSlug = errors.New("duplicate slug")

	// ErrNoRows is returned by row-targeted mutations that matched nothing
	ErrNoRows = errors.New("no rows affected")
)

// searchResultLimit bounds tag-search result sets; tag search has no
// pagination contract.
const searchResultLimit = 100

// PostRepository provides post-related database operations. Lookups return
// (nil, nil) when no row exists. Every call runs under the configured
// database operation timeout.
type PostRepository struct {
	db *DB
}

// NewPostRepository creates a new post repository
func NewPostRepository(database *DB) *PostRepository {
	return &PostRepository{db: database}
}

func (r *PostRepository) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, r.db.opTimeout)
}

// FindByID retrieves a post by ID, including its tags
func (r *PostRepository) FindByID(ctx context.Context, id int64) (*models.Post, error) {
	ctx, cancel := r.withTimeout(ctx)
	defer cancel()

	var post models.Post
	if err := r.db.WithContext(ctx).First(&post, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	if err := r.loadTags(ctx, &post); err != nil {
		return nil, err
	}
	return &post, nil
}

// FindBySlug retrieves a post by slug, including its tags
func (r *PostRepository) FindBySlug(ctx context.Context, slug string) (*models.Post, error) {
	ctx, cancel := r.withTimeout(ctx)
	defer cancel()

	var post models.Post
	if err := r.db.WithContext(ctx).Where("slug = ?", slug).First(&post).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	if err := r.loadTags(ctx, &post); err != nil {
		return nil, err
	}
	return &post, nil
}

// Create inserts a post and its tag rows in one transaction
func (r *PostRepository) Create(ctx context.Context, post *models.Post) error {
	ctx, cancel := r.withTimeout(ctx)
	defer cancel()

	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(post).Error; err != nil {
			return err
		}
		return replaceTags(tx, post.ID, post.Tags)
	})
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return ErrDuplicateSlug
	}
	return err
}

// Update saves a post and replaces its tag rows in one transaction
func (r *PostRepository) Update(ctx context.Context, post *models.Post) error {
	ctx, cancel := r.withTimeout(ctx)
	defer cancel()

	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Save(post).Error; err != nil {
			return err
		}
		if err := tx.Where("post_id = ?", post.ID).Delete(&models.PostTag{}).Error; err != nil {
			return err
		}
		return replaceTags(tx, post.ID, post.Tags)
	})
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return ErrDuplicateSlug
	}
	return err
}

// Delete removes a post. Soft deletion flips the is_deleted flag and keeps
// the row; hard deletion removes the row and its tags.
func (r *PostRepository) Delete(ctx context.Context, id int64, soft bool) error {
	ctx, cancel := r.withTimeout(ctx)
	defer cancel()

	if soft {
		tx := r.db.WithContext(ctx).Model(&models.Post{}).
			Where("id = ?", id).
			UpdateColumn("is_deleted", true)
		if tx.Error != nil {
			return tx.Error
		}
		if tx.RowsAffected == 0 {
			return ErrNoRows
		}
		return nil
	}

	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("post_id = ?", id).Delete(&models.PostTag{}).Error; err != nil {
			return err
		}
		res := tx.Delete(&models.Post{}, id)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return ErrNoRows
		}
		return nil
	})
}

// IncrementColumn atomically adjusts a counter column by amount using a SQL
// expression, never read-modify-write. The likes column is clamped at zero.
func (r *PostRepository) IncrementColumn(ctx context.Context, id int64, column string, amount int64) error {
	if column != "views" && column != "likes" {
		return fmt.Errorf("increment not supported for column %q", column)
	}

	ctx, cancel := r.withTimeout(ctx)
	defer cancel()

	expr := gorm.Expr(column+" + ?", amount)
	if column == "likes" {
		expr = gorm.Expr("GREATEST(likes + ?, 0)", amount)
	}

	tx := r.db.WithContext(ctx).Model(&models.Post{}).
		Where("id = ?", id).
		UpdateColumn(column, expr)
	if tx.Error != nil {
		return tx.Error
	}
	if tx.RowsAffected == 0 {
		return ErrNoRows
	}
	return nil
}

// ListPublished retrieves one page of published posts, newest first, with
// the total count of published posts
func (r *PostRepository) ListPublished(ctx context.Context, page, pageSize int) ([]models.Post, int64, error) {
	ctx, cancel := r.withTimeout(ctx)
	defer cancel()

	base := r.db.WithContext(ctx).Model(&models.Post{}).
		Where("published = ? AND is_deleted = ?", true, false)

	var total int64
	if err := base.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var posts []models.Post
	if err := base.
		Order("created_at DESC, id DESC").
		Offset((page - 1) * pageSize).
		Limit(pageSize).
		Find(&posts).Error; err != nil {
		return nil, 0, err
	}
	if err := r.loadTagsForAll(ctx, posts); err != nil {
		return nil, 0, err
	}
	return posts, total, nil
}

// ListByOwner retrieves one page of a user's posts, including unpublished
// drafts, newest first
func (r *PostRepository) ListByOwner(ctx context.Context, ownerID int64, page, pageSize int) ([]models.Post, int64, error) {
	ctx, cancel := r.withTimeout(ctx)
	defer cancel()

	base := r.db.WithContext(ctx).Model(&models.Post{}).
		Where("owner_id = ? AND is_deleted = ?", ownerID, false)

	var total int64
	if err := base.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var posts []models.Post
	if err := base.
		Order("created_at DESC, id DESC").
		Offset((page - 1) * pageSize).
		Limit(pageSize).
		Find(&posts).Error; err != nil {
		return nil, 0, err
	}
	if err := r.loadTagsForAll(ctx, posts); err != nil {
		return nil, 0, err
	}
	return posts, total, nil
}

// Trending retrieves the top published posts ordered by persisted view count
// then persisted like count. Ties keep the underlying query order.
func (r *PostRepository) Trending(ctx context.Context, limit int) ([]models.Post, error) {
	ctx, cancel := r.withTimeout(ctx)
	defer cancel()

	var posts []models.Post
	if err := r.db.WithContext(ctx).Model(&models.Post{}).
		Where("published = ? AND is_deleted = ?", true, false).
		Order("views DESC, likes DESC, id ASC").
		Limit(limit).
		Find(&posts).Error; err != nil {
		return nil, err
	}
	if err := r.loadTagsForAll(ctx, posts); err != nil {
		return nil, err
	}
	return posts, nil
}

// SearchByTags retrieves published posts carrying any of the given tags,
// newest first
func (r *PostRepository) SearchByTags(ctx context.Context, tags []string) ([]models.Post, error) {
	if len(tags) == 0 {
		return []models.Post{}, nil
	}

	ctx, cancel := r.withTimeout(ctx)
	defer cancel()

	var posts []models.Post
	if err := r.db.WithContext(ctx).Model(&models.Post{}).
		Where("published = ? AND is_deleted = ?", true, false).
		Where("id IN (?)", r.db.WithContext(ctx).Model(&models.PostTag{}).
			Select("post_id").
			Where("tag IN ?", tags)).
		Order("created_at DESC, id DESC").
		Limit(searchResultLimit).
		Find(&posts).Error; err != nil {
		return nil, err
	}
	if err := r.loadTagsForAll(ctx, posts); err != nil {
		return nil, err
	}
	return posts, nil
}

func (r *PostRepository) loadTags(ctx context.Context, post *models.Post) error {
	var rows []models.PostTag
	if err := r.db.WithContext(ctx).Where("post_id = ?", post.ID).Find(&rows).Error; err != nil {
		return err
	}
	post.Tags = make([]string, 0, len(rows))
	for _, row := range rows {
		post.Tags = append(post.Tags, row.Tag)
	}
	return nil
}

func (r *PostRepository) loadTagsForAll(ctx context.Context, posts []models.Post) error {
	if len(posts) == 0 {
		return nil
	}

	ids := make([]int64, len(posts))
	for i := range posts {
		ids[i] = posts[i].ID
	}

	var rows []models.PostTag
	if err := r.db.WithContext(ctx).Where("post_id IN ?", ids).Find(&rows).Error; err != nil {
		return err
	}

	byPost := make(map[int64][]string, len(posts))
	for _, row := range rows {
		byPost[row.PostID] = append(byPost[row.PostID], row.Tag)
	}
	for i := range posts {
		posts[i].Tags = byPost[posts[i].ID]
	}
	return nil
}

func replaceTags(tx *gorm.DB, postID int64, tags []string) error {
	if len(tags) == 0 {
		return nil
	}
	rows := make([]models.PostTag, 0, len(tags))
	for _, tag := range tags {
		rows = append(rows, models.PostTag{PostID: postID, Tag: tag})
	}
	return tx.Create(&rows).Error
}
