package testsupport

import (
	"testing"
	"time"

	"jamsplitter/internal/config"
	"jamsplitter/internal/queue"
	"jamsplitter/internal/stemcache"
)

// RetryPolicy returns a retry policy that never sleeps, for fast tests.
func RetryPolicy() queue.RetryPolicy {
	return queue.RetryPolicy{Attempts: 3, Delay: time.Millisecond, Sleep: func(time.Duration) {}}
}

// MustOpenStore opens a queue.Store for tests and registers cleanup.
func MustOpenStore(t testing.TB, cfg *config.Config) *queue.Store {
	t.Helper()

	store, err := queue.Open(cfg.Storage.JobDBPath, RetryPolicy())
	if err != nil {
		t.Fatalf("queue.Open: %v", err)
	}
	t.Cleanup(func() {
		store.Close()
	})
	return store
}

// MustOpenCache opens a stemcache.Store for tests and registers cleanup.
func MustOpenCache(t testing.TB, cfg *config.Config) *stemcache.Store {
	t.Helper()

	cache, err := stemcache.Open(cfg.Storage.CacheDBPath, RetryPolicy())
	if err != nil {
		t.Fatalf("stemcache.Open: %v", err)
	}
	t.Cleanup(func() {
		cache.Close()
	})
	return cache
}
