package cache

import (
	"fmt"
	"sort"
	"strings"
)

// Typed key constructors. Every cache key in the system is built here; no
// caller concatenates key strings by hand, so the key namespace can be
// audited in one place.

// PostKey is the primary snapshot key for a post
func PostKey(postID int64) string {
	return fmt.Sprintf("post:id:%d", postID)
}

// SlugKey is the snapshot key for a post looked up by slug
func SlugKey(slug string) string {
	return fmt.Sprintf("post:slug:%s", slug)
}

// ViewCounterKey holds the unflushed view delta for a post
func ViewCounterKey(postID int64) string {
	return fmt.Sprintf("post:views:%d", postID)
}

// LikeCounterKey holds the cache-side like counter for a post
func LikeCounterKey(postID int64) string {
	return fmt.Sprintf("post:like_count:%d", postID)
}

// LikeMarkerKey is the per-(user, post) idempotency guard against duplicate likes
func LikeMarkerKey(postID, userID int64) string {
	return fmt.Sprintf("post:liked:%d:%d", postID, userID)
}

// ListKey is the key for one page of the published listing
func ListKey(page, pageSize int) string {
	return fmt.Sprintf("posts:list:%d:%d", page, pageSize)
}

// OwnerListKey is the key for one page of a user's own posts
func OwnerListKey(ownerID int64, page, pageSize int) string {
	return fmt.Sprintf("posts:owner:%d:%d:%d", ownerID, page, pageSize)
}

// TrendingKey is the fixed key for the trending snapshot
func TrendingKey() string {
	return "posts:trending"
}

// TagSearchKey builds the key for a tag search. The tag set is deduplicated,
// normalized to lower case and sorted so that equivalent searches share one
// cache entry regardless of argument order.
func TagSearchKey(tags []string) string {
	return "posts:tags:" + strings.Join(NormalizeTags(tags), ",")
}

// NormalizeTags lowercases, trims, deduplicates and sorts a tag set
func NormalizeTags(tags []string) []string {
	seen := make(map[string]struct{}, len(tags))
	out := make([]string, 0, len(tags))
	for _, tag := range tags {
		tag = strings.ToLower(strings.TrimSpace(tag))
		if tag == "" {
			continue
		}
		if _, ok := seen[tag]; ok {
			continue
		}
		seen[tag] = struct{}{}
		out = append(out, tag)
	}
	sort.Strings(out)
	return out
}

// Patterns matched by the Invalidator when clearing derived listings.
const (
	ListPattern      = "posts:list:*"
	OwnerListPattern = "posts:owner:*"
	TagSearchPattern = "posts:tags:*"
)
