package models

import (
	"time"
)

// Post represents a content post with its engagement counters. The canonical
// copy lives in the database; the cache holds a JSON snapshot whose Views
// field may lag the true count by up to one flush batch.
type Post struct {
	ID        int64     `gorm:"primaryKey;autoIncrement;column:id" json:"id"`
	Slug      string    `gorm:"type:varchar(255);not null;uniqueIndex;column:slug" json:"slug"`
	Title     string    `gorm:"type:varchar(255);not null;column:title" json:"title"`
	Body      string    `gorm:"type:text;column:body" json:"body"`
	OwnerID   int64     `gorm:"not null;index;column:owner_id" json:"owner_id"`
	Published bool      `gorm:"not null;default:false;column:published" json:"published"`
	IsDeleted bool      `gorm:"not null;default:false;column:is_deleted" json:"is_deleted"`
	Views     int64     `gorm:"not null;default:0;column:views" json:"views"`
	Likes     int64     `gorm:"not null;default:0;column:likes" json:"likes"`
	CreatedAt time.Time `gorm:"not null;column:created_at" json:"created_at"`
	UpdatedAt time.Time `gorm:"not null;column:updated_at" json:"updated_at"`

	// Tags are stored in the join table and loaded by the repository.
	Tags []string `gorm:"-" json:"tags"`
}

// TableName specifies the table name for Post
func (Post) TableName() string {
	return "inkwell_posts"
}

// PostTag represents a post-to-tag mapping
type PostTag struct {
	PostID int64  `gorm:"primaryKey;column:post_id"`
	Tag    string `gorm:"type:varchar(32);primaryKey;column:tag"`
}

// TableName specifies the table name for PostTag
func (PostTag) TableName() string {
	return "inkwell_post_tags"
}
