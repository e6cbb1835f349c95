package posts

import (
	"context"
	"errors"
	"fmt"
	"path"
	"sort"
	"strconv"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/inkwell-cms/inkwell/internal/cache"
	"github.com/inkwell-cms/inkwell/internal/db"
	"github.com/inkwell-cms/inkwell/internal/models"
)

// errCacheDown simulates an unreachable cache backend
var errCacheDown = errors.New("cache backend unreachable")

// errStoreDown simulates a transient database failure
var errStoreDown = errors.New("store backend unreachable")

type incrementCall struct {
	id     int64
	column string
	amount int64
}

// fakeStore is an in-memory Store double with call counting
type fakeStore struct {
	mu     sync.Mutex
	posts  map[int64]*models.Post
	nextID int64

	findByIDCalls   int
	findBySlugCalls int
	listCalls       int
	ownerListCalls  int
	trendingCalls   int
	searchCalls     int
	increments      []incrementCall

	// incrementFailures fails that many IncrementColumn calls before the
	// store recovers
	incrementFailures int
}

func newFakeStore() *fakeStore {
	return &fakeStore{posts: make(map[int64]*models.Post)}
}

func (s *fakeStore) seed(post models.Post) *models.Post {
	s.mu.Lock()
	defer s.mu.Unlock()
	if post.ID == 0 {
		s.nextID++
		post.ID = s.nextID
	} else if post.ID > s.nextID {
		s.nextID = post.ID
	}
	if post.CreatedAt.IsZero() {
		post.CreatedAt = time.Now().UTC()
	}
	copied := post
	s.posts[post.ID] = &copied
	return &post
}

func (s *fakeStore) get(id int64) models.Post {
	s.mu.Lock()
	defer s.mu.Unlock()
	return *s.posts[id]
}

func (s *fakeStore) FindByID(ctx context.Context, id int64) (*models.Post, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.findByIDCalls++
	post, ok := s.posts[id]
	if !ok {
		return nil, nil
	}
	copied := *post
	return &copied, nil
}

func (s *fakeStore) FindBySlug(ctx context.Context, slug string) (*models.Post, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.findBySlugCalls++
	for _, post := range s.posts {
		if post.Slug == slug {
			copied := *post
			return &copied, nil
		}
	}
	return nil, nil
}

func (s *fakeStore) Create(ctx context.Context, post *models.Post) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.posts {
		if existing.Slug == post.Slug {
			return db.ErrDuplicateSlug
		}
	}
	s.nextID++
	post.ID = s.nextID
	post.CreatedAt = time.Now().UTC()
	post.UpdatedAt = post.CreatedAt
	copied := *post
	s.posts[post.ID] = &copied
	return nil
}

func (s *fakeStore) Update(ctx context.Context, post *models.Post) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.posts[post.ID]; !ok {
		return db.ErrNoRows
	}
	for id, existing := range s.posts {
		if id != post.ID && existing.Slug == post.Slug {
			return db.ErrDuplicateSlug
		}
	}
	post.UpdatedAt = time.Now().UTC()
	copied := *post
	s.posts[post.ID] = &copied
	return nil
}

func (s *fakeStore) Delete(ctx context.Context, id int64, soft bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	post, ok := s.posts[id]
	if !ok {
		return db.ErrNoRows
	}
	if soft {
		post.IsDeleted = true
		return nil
	}
	delete(s.posts, id)
	return nil
}

func (s *fakeStore) IncrementColumn(ctx context.Context, id int64, column string, amount int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.incrementFailures > 0 {
		s.incrementFailures--
		return errStoreDown
	}
	post, ok := s.posts[id]
	if !ok {
		return db.ErrNoRows
	}
	s.increments = append(s.increments, incrementCall{id: id, column: column, amount: amount})
	switch column {
	case "views":
		post.Views += amount
	case "likes":
		post.Likes += amount
		if post.Likes < 0 {
			post.Likes = 0
		}
	default:
		return fmt.Errorf("increment not supported for column %q", column)
	}
	return nil
}

func (s *fakeStore) ListPublished(ctx context.Context, page, pageSize int) ([]models.Post, int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.listCalls++
	visible := s.visible(func(p *models.Post) bool { return p.Published })
	return paginate(visible, page, pageSize)
}

func (s *fakeStore) ListByOwner(ctx context.Context, ownerID int64, page, pageSize int) ([]models.Post, int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ownerListCalls++
	visible := s.visible(func(p *models.Post) bool { return p.OwnerID == ownerID })
	return paginate(visible, page, pageSize)
}

func (s *fakeStore) Trending(ctx context.Context, limit int) ([]models.Post, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.trendingCalls++
	visible := s.visible(func(p *models.Post) bool { return p.Published })
	sort.SliceStable(visible, func(i, j int) bool {
		if visible[i].Views != visible[j].Views {
			return visible[i].Views > visible[j].Views
		}
		if visible[i].Likes != visible[j].Likes {
			return visible[i].Likes > visible[j].Likes
		}
		return visible[i].ID < visible[j].ID
	})
	if len(visible) > limit {
		visible = visible[:limit]
	}
	return visible, nil
}

func (s *fakeStore) SearchByTags(ctx context.Context, tags []string) ([]models.Post, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.searchCalls++
	wanted := make(map[string]struct{}, len(tags))
	for _, tag := range tags {
		wanted[tag] = struct{}{}
	}
	visible := s.visible(func(p *models.Post) bool {
		if !p.Published {
			return false
		}
		for _, tag := range p.Tags {
			if _, ok := wanted[tag]; ok {
				return true
			}
		}
		return false
	})
	return visible, nil
}

// visible returns copies of non-deleted posts passing the filter, newest first
func (s *fakeStore) visible(filter func(*models.Post) bool) []models.Post {
	var out []models.Post
	for _, post := range s.posts {
		if post.IsDeleted || !filter(post) {
			continue
		}
		out = append(out, *post)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	return out
}

func paginate(items []models.Post, page, pageSize int) ([]models.Post, int64, error) {
	total := int64(len(items))
	start := (page - 1) * pageSize
	if start >= len(items) {
		return []models.Post{}, total, nil
	}
	end := start + pageSize
	if end > len(items) {
		end = len(items)
	}
	return items[start:end], total, nil
}

// fakeCache is an in-memory Cache double, safe for concurrent use, with a
// switch to fail every call
type fakeCache struct {
	mu      sync.Mutex
	data    map[string]string
	failAll bool
}

func newFakeCache() *fakeCache {
	return &fakeCache{data: make(map[string]string)}
}

func (c *fakeCache) has(key string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.data[key]
	return ok
}

func (c *fakeCache) put(key, value string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.data[key] = value
}

func (c *fakeCache) drop(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.data, key)
}

func (c *fakeCache) Get(ctx context.Context, key string) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.failAll {
		return "", errCacheDown
	}
	val, ok := c.data[key]
	if !ok {
		return "", cache.ErrCacheMiss
	}
	return val, nil
}

func (c *fakeCache) SetWithExpiry(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.failAll {
		return errCacheDown
	}
	c.data[key] = stringify(value)
	return nil
}

func (c *fakeCache) SetIfAbsentWithExpiry(ctx context.Context, key string, value interface{}, ttl time.Duration) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.failAll {
		return false, errCacheDown
	}
	if _, ok := c.data[key]; ok {
		return false, nil
	}
	c.data[key] = stringify(value)
	return true, nil
}

func (c *fakeCache) Delete(ctx context.Context, keys ...string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.failAll {
		return errCacheDown
	}
	for _, key := range keys {
		delete(c.data, key)
	}
	return nil
}

func (c *fakeCache) Increment(ctx context.Context, key string) (int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.failAll {
		return 0, errCacheDown
	}
	n, _ := strconv.ParseInt(c.data[key], 10, 64)
	n++
	c.data[key] = strconv.FormatInt(n, 10)
	return n, nil
}

func (c *fakeCache) Decrement(ctx context.Context, key string) (int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.failAll {
		return 0, errCacheDown
	}
	n, _ := strconv.ParseInt(c.data[key], 10, 64)
	n--
	c.data[key] = strconv.FormatInt(n, 10)
	return n, nil
}

func (c *fakeCache) KeysMatching(ctx context.Context, pattern string) ([]string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.failAll {
		return nil, errCacheDown
	}
	var out []string
	for key := range c.data {
		if ok, _ := path.Match(pattern, key); ok {
			out = append(out, key)
		}
	}
	return out, nil
}

func stringify(value interface{}) string {
	switch v := value.(type) {
	case string:
		return v
	case []byte:
		return string(v)
	default:
		return fmt.Sprint(v)
	}
}

func testOptions() Options {
	return Options{
		PostTTL:        time.Hour,
		ListTTL:        5 * time.Minute,
		TrendingTTL:    5 * time.Minute,
		TagSearchTTL:   5 * time.Minute,
		LikeMarkerTTL:  30 * 24 * time.Hour,
		ViewFlushBatch: 10,
		TrendingSize:   50,
	}
}

// newTestService wires a service over the fakes with the view increment
// running inline so tests are deterministic
func newTestService(store *fakeStore, c *fakeCache) *Service {
	svc := NewService(store, c, testOptions(), zap.NewNop())
	svc.reader.runAsync = func(f func()) { f() }
	return svc
}
