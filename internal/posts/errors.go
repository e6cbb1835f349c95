package posts

import "errors"

// Error kinds surfaced to callers. Cache failures are never among them:
// cache errors on the read path fall through to the database and cache
// errors on the write path are logged and swallowed.
var (
	// ErrNotFound means the post is absent or soft-deleted
	ErrNotFound = errors.New("post not found")

	// ErrConflict means a create or update collided with an existing slug
	ErrConflict = errors.New("duplicate slug")

	// ErrAlreadyLiked means the user already liked the post within the
	// marker TTL window
	ErrAlreadyLiked = errors.New("already liked")

	// ErrNotLiked means no like marker exists for the user and post
	ErrNotLiked = errors.New("not liked")
)
