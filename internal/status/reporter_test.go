package status_test

import (
	"context"
	"errors"
	"testing"

	"jamsplitter/internal/queue"
	"jamsplitter/internal/services"
	"jamsplitter/internal/status"
	"jamsplitter/internal/stemcache"
	"jamsplitter/internal/testsupport"
)

func newReporter(t *testing.T) (*status.Reporter, *queue.Store, *stemcache.Store, context.Context) {
	t.Helper()
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	cache := testsupport.MustOpenCache(t, cfg)
	return status.NewReporter(store, cache), store, cache, context.Background()
}

func TestStatusReflectsLatestWrite(t *testing.T) {
	reporter, store, _, ctx := newReporter(t)

	job, err := store.New(ctx, "https://example.com/track", "mp3")
	if err != nil {
		t.Fatalf("new job: %v", err)
	}

	view, err := reporter.Status(ctx, job.ID)
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	if view.Status != string(queue.StatusQueued) || view.Progress != 0 {
		t.Fatalf("unexpected initial view: %+v", view)
	}

	if err := store.MarkProcessing(ctx, job.ID, 0.1); err != nil {
		t.Fatalf("mark processing: %v", err)
	}
	if err := store.UpdateProgress(ctx, job.ID, 0.3); err != nil {
		t.Fatalf("update progress: %v", err)
	}

	view, err = reporter.Status(ctx, job.ID)
	if err != nil {
		t.Fatalf("status after update: %v", err)
	}
	if view.Status != string(queue.StatusProcessing) || view.Progress != 0.3 {
		t.Fatalf("view is stale: %+v", view)
	}
	if !view.UpdatedAt.After(view.CreatedAt) {
		t.Fatalf("updated_at did not advance: %+v", view)
	}
}

func TestStatusUnknownJobIsNotFound(t *testing.T) {
	reporter, _, _, ctx := newReporter(t)

	_, err := reporter.Status(ctx, "no-such-job")
	if !errors.Is(err, services.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestQueueSnapshotOrdering(t *testing.T) {
	reporter, store, _, ctx := newReporter(t)

	urls := []string{
		"https://example.com/one",
		"https://example.com/two",
		"https://example.com/three",
	}
	var ids []string
	for _, url := range urls {
		job, err := store.New(ctx, url, "mp3")
		if err != nil {
			t.Fatalf("new job: %v", err)
		}
		ids = append(ids, job.ID)
	}

	snapshot, err := reporter.QueueSnapshot(ctx)
	if err != nil {
		t.Fatalf("snapshot: %v", err)
	}
	if len(snapshot) != len(urls) {
		t.Fatalf("expected %d jobs, got %d", len(urls), len(snapshot))
	}
	// Most recently created first.
	if snapshot[0].ID != ids[len(ids)-1] {
		t.Fatalf("snapshot not ordered newest-first: %+v", snapshot)
	}
}

func TestCacheLookupMissReturnsNil(t *testing.T) {
	reporter, _, _, ctx := newReporter(t)

	view, err := reporter.CacheLookup(ctx, "https://example.com/unknown")
	if err != nil {
		t.Fatalf("cache lookup: %v", err)
	}
	if view != nil {
		t.Fatalf("expected nil for missing key, got %+v", view)
	}
}

func TestCacheLookupHit(t *testing.T) {
	reporter, _, cache, ctx := newReporter(t)

	stems := map[string]string{"vocals": "/out/v.mp3", "drums": "/out/d.mp3"}
	if err := cache.Store(ctx, "https://example.com/track", stems); err != nil {
		t.Fatalf("cache store: %v", err)
	}

	view, err := reporter.CacheLookup(ctx, "https://example.com/track")
	if err != nil {
		t.Fatalf("cache lookup: %v", err)
	}
	if view == nil {
		t.Fatal("expected cached view")
	}
	if len(view.Stems) != 2 || view.Stems["vocals"] != "/out/v.mp3" {
		t.Fatalf("unexpected stems: %+v", view.Stems)
	}
}
