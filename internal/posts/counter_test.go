package posts

import (
	"context"
	"errors"
	"sync"
	"testing"

	"go.uber.org/zap"

	"github.com/inkwell-cms/inkwell/internal/cache"
	"github.com/inkwell-cms/inkwell/internal/models"
)

func newTestCounter(store *fakeStore, fc *fakeCache) *Counter {
	inv := NewInvalidator(fc, zap.NewNop())
	return NewCounter(fc, store, inv, 10, testOptions().LikeMarkerTTL, zap.NewNop())
}

func TestViewFlushBoundary(t *testing.T) {
	store := newFakeStore()
	post := store.seed(models.Post{Slug: "viral", Published: true})
	fc := newFakeCache()
	counter := newTestCounter(store, fc)
	ctx := context.Background()

	for i := 0; i < 19; i++ {
		if err := counter.RecordView(ctx, post.ID); err != nil {
			t.Fatalf("view %d failed: %v", i+1, err)
		}
	}

	// Exactly one durable increment of the full batch, issued at the 10th
	// view.
	if len(store.increments) != 1 {
		t.Fatalf("expected exactly 1 durable increment, got %d", len(store.increments))
	}
	if inc := store.increments[0]; inc.column != "views" || inc.amount != 10 {
		t.Errorf("expected views +10, got %s %+d", inc.column, inc.amount)
	}

	// Persisted plus unflushed equals the true count.
	persisted := store.get(post.ID).Views
	unflushed := counter.UnflushedViews(ctx, post.ID)
	if persisted != 10 || unflushed != 9 {
		t.Errorf("expected persisted 10 + unflushed 9, got %d + %d", persisted, unflushed)
	}
	if persisted+unflushed != 19 {
		t.Errorf("true view count should be 19, got %d", persisted+unflushed)
	}

	// The flush invalidated the snapshot so the next read rebuilds from the
	// freshly flushed persisted count.
	if fc.has(cache.PostKey(post.ID)) {
		t.Error("snapshot must be invalidated at the flush boundary")
	}
}

func TestViewFlushRecoversAfterStoreFailure(t *testing.T) {
	store := newFakeStore()
	post := store.seed(models.Post{Slug: "flaky", Published: true})
	fc := newFakeCache()
	counter := newTestCounter(store, fc)
	ctx := context.Background()

	store.incrementFailures = 1

	for i := 0; i < 9; i++ {
		if err := counter.RecordView(ctx, post.ID); err != nil {
			t.Fatalf("view %d failed: %v", i+1, err)
		}
	}
	// The 10th view hits the boundary; the durable write fails, the error
	// surfaces and the counter keeps the full delta.
	if err := counter.RecordView(ctx, post.ID); err == nil {
		t.Fatal("expected the failed flush to surface")
	}
	if unflushed := counter.UnflushedViews(ctx, post.ID); unflushed != 10 {
		t.Fatalf("failed flush must not lose the delta, got %d unflushed", unflushed)
	}

	for i := 0; i < 10; i++ {
		if err := counter.RecordView(ctx, post.ID); err != nil {
			t.Fatalf("view %d failed: %v", i+11, err)
		}
	}

	// The next boundary commits the whole outstanding delta in one write,
	// including the batch whose flush failed.
	if len(store.increments) != 1 {
		t.Fatalf("expected exactly 1 successful durable increment, got %d", len(store.increments))
	}
	if inc := store.increments[0]; inc.column != "views" || inc.amount != 20 {
		t.Errorf("expected views +20, got %s %+d", inc.column, inc.amount)
	}
	if persisted := store.get(post.ID).Views; persisted != 20 {
		t.Errorf("expected persisted 20, got %d", persisted)
	}
	// The flushed counter was invalidated along with the snapshot.
	if unflushed := counter.UnflushedViews(ctx, post.ID); unflushed != 0 {
		t.Errorf("expected no unflushed views after the catch-up flush, got %d", unflushed)
	}
}

func TestViewCounterEvictionLosesSubBatchDelta(t *testing.T) {
	// Known tradeoff: if the cache loses the counter before a flush
	// boundary, those 0-9 views are gone. Acceptable for a display metric.
	store := newFakeStore()
	post := store.seed(models.Post{Slug: "lossy", Published: true})
	fc := newFakeCache()
	counter := newTestCounter(store, fc)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		if err := counter.RecordView(ctx, post.ID); err != nil {
			t.Fatalf("view failed: %v", err)
		}
	}

	// Simulate eviction of the counter key.
	fc.drop(cache.ViewCounterKey(post.ID))

	for i := 0; i < 5; i++ {
		if err := counter.RecordView(ctx, post.ID); err != nil {
			t.Fatalf("view failed: %v", err)
		}
	}

	persisted := store.get(post.ID).Views
	unflushed := counter.UnflushedViews(ctx, post.ID)
	if persisted != 0 {
		t.Errorf("no flush boundary was crossed, persisted should be 0, got %d", persisted)
	}
	if unflushed != 5 {
		t.Errorf("counter restarted after eviction, expected 5 unflushed, got %d", unflushed)
	}
	// 10 views happened, 5 are visible: the first batch was lost with the
	// counter.
}

func TestLikeIdempotence(t *testing.T) {
	store := newFakeStore()
	post := store.seed(models.Post{Slug: "likeable", Published: true})
	fc := newFakeCache()
	counter := newTestCounter(store, fc)
	ctx := context.Background()

	if err := counter.Like(ctx, post.ID, 7); err != nil {
		t.Fatalf("first like failed: %v", err)
	}
	if err := counter.Like(ctx, post.ID, 7); !errors.Is(err, ErrAlreadyLiked) {
		t.Errorf("expected ErrAlreadyLiked, got %v", err)
	}
	if likes := store.get(post.ID).Likes; likes != 1 {
		t.Errorf("durable like count should be exactly 1, got %d", likes)
	}
}

func TestConcurrentLikesYieldOneIncrement(t *testing.T) {
	store := newFakeStore()
	post := store.seed(models.Post{Slug: "contended", Published: true})
	fc := newFakeCache()
	counter := newTestCounter(store, fc)
	ctx := context.Background()

	results := make([]error, 2)
	var wg sync.WaitGroup
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i] = counter.Like(ctx, post.ID, 7)
		}(i)
	}
	wg.Wait()

	var successes, duplicates int
	for _, err := range results {
		switch {
		case err == nil:
			successes++
		case errors.Is(err, ErrAlreadyLiked):
			duplicates++
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	if successes != 1 || duplicates != 1 {
		t.Errorf("expected exactly one success and one ErrAlreadyLiked, got %d and %d", successes, duplicates)
	}
	if likes := store.get(post.ID).Likes; likes != 1 {
		t.Errorf("durable like count should be exactly 1, got %d", likes)
	}
}

func TestUnlike(t *testing.T) {
	store := newFakeStore()
	post := store.seed(models.Post{Slug: "fickle", Published: true})
	fc := newFakeCache()
	counter := newTestCounter(store, fc)
	ctx := context.Background()

	if err := counter.Unlike(ctx, post.ID, 7); !errors.Is(err, ErrNotLiked) {
		t.Errorf("expected ErrNotLiked without a marker, got %v", err)
	}

	if err := counter.Like(ctx, post.ID, 7); err != nil {
		t.Fatalf("like failed: %v", err)
	}
	if err := counter.Unlike(ctx, post.ID, 7); err != nil {
		t.Fatalf("unlike failed: %v", err)
	}
	if likes := store.get(post.ID).Likes; likes != 0 {
		t.Errorf("like count should return to 0, got %d", likes)
	}

	// Marker is gone, so unliking again fails.
	if err := counter.Unlike(ctx, post.ID, 7); !errors.Is(err, ErrNotLiked) {
		t.Errorf("expected ErrNotLiked after unlike, got %v", err)
	}
}

func TestLikeCountNeverBelowZero(t *testing.T) {
	store := newFakeStore()
	post := store.seed(models.Post{Slug: "zeroed", Published: true})
	fc := newFakeCache()
	counter := newTestCounter(store, fc)
	ctx := context.Background()

	// Marker present but the durable count is already 0; the store clamps.
	fc.put(cache.LikeMarkerKey(post.ID, 7), "1")
	if err := counter.Unlike(ctx, post.ID, 7); err != nil {
		t.Fatalf("unlike failed: %v", err)
	}
	if likes := store.get(post.ID).Likes; likes != 0 {
		t.Errorf("like count must never go below zero, got %d", likes)
	}
}

func TestLikeMissingPostLeavesNoMarker(t *testing.T) {
	store := newFakeStore()
	fc := newFakeCache()
	counter := newTestCounter(store, fc)
	ctx := context.Background()

	if err := counter.Like(ctx, 404, 7); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if fc.has(cache.LikeMarkerKey(404, 7)) {
		t.Error("marker must not outlive a failed like")
	}
}

func TestLikeWithFailingCache(t *testing.T) {
	store := newFakeStore()
	post := store.seed(models.Post{Slug: "unguarded", Published: true})
	fc := newFakeCache()
	fc.failAll = true
	counter := newTestCounter(store, fc)

	// With the cache down the idempotency guard is unavailable, but the like
	// itself must still land in the store.
	if err := counter.Like(context.Background(), post.ID, 7); err != nil {
		t.Fatalf("like must succeed on store alone when cache is down: %v", err)
	}
	if likes := store.get(post.ID).Likes; likes != 1 {
		t.Errorf("durable like count should be 1, got %d", likes)
	}
}

func TestRecordViewWithFailingCacheSkipsDurableWrite(t *testing.T) {
	store := newFakeStore()
	post := store.seed(models.Post{Slug: "uncounted", Published: true})
	fc := newFakeCache()
	fc.failAll = true
	counter := newTestCounter(store, fc)

	if err := counter.RecordView(context.Background(), post.ID); err == nil {
		t.Error("expected an error when the counter cannot be incremented")
	}
	if len(store.increments) != 0 {
		t.Errorf("no durable write should happen without a flush boundary, got %d", len(store.increments))
	}
}
