package stemcache_test

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"jamsplitter/internal/queue"
	"jamsplitter/internal/stemcache"
)

func openCache(t *testing.T) *stemcache.Store {
	t.Helper()
	store, err := stemcache.Open(filepath.Join(t.TempDir(), "cache.db"), queue.RetryPolicy{Attempts: 1, Sleep: func(d time.Duration) {}})
	if err != nil {
		t.Fatalf("open cache: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestStoreAndLookupRoundTrip(t *testing.T) {
	store := openCache(t)
	ctx := context.Background()

	stems := map[string]string{
		"vocals": "/out/a_vocals.wav",
		"drums":  "/out/a_drums.wav",
		"bass":   "/out/a_bass.wav",
		"other":  "/out/a_other.wav",
	}
	if err := store.Store(ctx, "https://example.com/track", stems); err != nil {
		t.Fatalf("store: %v", err)
	}

	set, err := store.Lookup(ctx, "https://example.com/track")
	if err != nil {
		t.Fatalf("lookup: %v", err)
	}
	if set == nil {
		t.Fatal("expected cached entry")
	}
	if set.SourceURL != "https://example.com/track" {
		t.Fatalf("unexpected source url %q", set.SourceURL)
	}
	if len(set.Stems) != len(stems) {
		t.Fatalf("expected %d stems, got %d", len(stems), len(set.Stems))
	}
	for name, path := range stems {
		if set.Stems[name] != path {
			t.Fatalf("stem %q: expected %q, got %q", name, path, set.Stems[name])
		}
	}
	if set.CreatedAt.IsZero() {
		t.Fatal("expected created timestamp")
	}
}

func TestLookupMissReturnsNil(t *testing.T) {
	store := openCache(t)

	set, err := store.Lookup(context.Background(), "https://example.com/unknown")
	if err != nil {
		t.Fatalf("lookup miss should not error: %v", err)
	}
	if set != nil {
		t.Fatalf("expected nil for missing key, got %+v", set)
	}
}

func TestStoreReplacesWholesale(t *testing.T) {
	store := openCache(t)
	ctx := context.Background()

	first := map[string]string{"vocals": "/out/v1.wav", "drums": "/out/d1.wav"}
	if err := store.Store(ctx, "https://example.com/track", first); err != nil {
		t.Fatalf("store first: %v", err)
	}

	second := map[string]string{"vocals": "/out/v2.wav"}
	if err := store.Store(ctx, "https://example.com/track", second); err != nil {
		t.Fatalf("store second: %v", err)
	}

	set, err := store.Lookup(ctx, "https://example.com/track")
	if err != nil {
		t.Fatalf("lookup: %v", err)
	}
	if set == nil {
		t.Fatal("expected cached entry")
	}
	if len(set.Stems) != 1 {
		t.Fatalf("expected replacement, not merge: got %d stems", len(set.Stems))
	}
	if set.Stems["vocals"] != "/out/v2.wav" {
		t.Fatalf("expected replaced path, got %q", set.Stems["vocals"])
	}
	if _, ok := set.Stems["drums"]; ok {
		t.Fatal("stale stem survived replacement")
	}
}

func TestStoreRejectsEmptySet(t *testing.T) {
	store := openCache(t)

	if err := store.Store(context.Background(), "https://example.com/track", nil); err == nil {
		t.Fatal("expected error for empty artifact set")
	}
	if err := store.Store(context.Background(), "  ", map[string]string{"vocals": "/out/v.wav"}); err == nil {
		t.Fatal("expected error for blank url")
	}
}

func TestRemove(t *testing.T) {
	store := openCache(t)
	ctx := context.Background()

	if err := store.Store(ctx, "https://example.com/track", map[string]string{"vocals": "/out/v.wav"}); err != nil {
		t.Fatalf("store: %v", err)
	}

	removed, err := store.Remove(ctx, "https://example.com/track")
	if err != nil {
		t.Fatalf("remove: %v", err)
	}
	if !removed {
		t.Fatal("expected removal of existing entry")
	}

	removed, err = store.Remove(ctx, "https://example.com/track")
	if err != nil {
		t.Fatalf("remove again: %v", err)
	}
	if removed {
		t.Fatal("expected no-op for absent entry")
	}

	set, err := store.Lookup(ctx, "https://example.com/track")
	if err != nil {
		t.Fatalf("lookup after remove: %v", err)
	}
	if set != nil {
		t.Fatal("entry should be gone")
	}
}

func TestEntriesAndCount(t *testing.T) {
	store := openCache(t)
	ctx := context.Background()

	urls := []string{
		"https://example.com/one",
		"https://example.com/two",
		"https://example.com/three",
	}
	for _, url := range urls {
		if err := store.Store(ctx, url, map[string]string{"vocals": "/out/v.wav"}); err != nil {
			t.Fatalf("store %s: %v", url, err)
		}
	}

	count, err := store.Count(ctx)
	if err != nil {
		t.Fatalf("count: %v", err)
	}
	if count != len(urls) {
		t.Fatalf("expected %d entries, got %d", len(urls), count)
	}

	entries, err := store.Entries(ctx)
	if err != nil {
		t.Fatalf("entries: %v", err)
	}
	if len(entries) != len(urls) {
		t.Fatalf("expected %d entries, got %d", len(urls), len(entries))
	}

	cleared, err := store.Clear(ctx)
	if err != nil {
		t.Fatalf("clear: %v", err)
	}
	if cleared != int64(len(urls)) {
		t.Fatalf("expected %d cleared, got %d", len(urls), cleared)
	}
}
