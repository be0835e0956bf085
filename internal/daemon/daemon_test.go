package daemon_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"jamsplitter/internal/config"
	"jamsplitter/internal/daemon"
	"jamsplitter/internal/logging"
	"jamsplitter/internal/pipeline"
	"jamsplitter/internal/queue"
	"jamsplitter/internal/testsupport"
)

type stubDownloader struct{ dir string }

func (s *stubDownloader) Fetch(ctx context.Context, jobID, sourceURL string) (string, error) {
	path := filepath.Join(s.dir, "source.wav")
	return path, os.WriteFile(path, []byte("audio"), 0o644)
}

type stubSeparator struct{ dir string }

func (s *stubSeparator) Separate(ctx context.Context, jobID, sourcePath string) (map[string]string, error) {
	path := filepath.Join(s.dir, "vocals.wav")
	return map[string]string{"vocals": path}, os.WriteFile(path, []byte("vocals"), 0o644)
}

type stubConverter struct{}

func (s *stubConverter) ConvertAll(ctx context.Context, stems map[string]string, format string) (map[string]string, error) {
	converted := make(map[string]string, len(stems))
	for name, path := range stems {
		out := path[:len(path)-len(filepath.Ext(path))] + "." + format
		if err := os.WriteFile(out, []byte("converted"), 0o644); err != nil {
			return nil, err
		}
		converted[name] = out
	}
	return converted, nil
}

func newDaemon(t *testing.T, cfg *config.Config) (*daemon.Daemon, *queue.Store, *pipeline.Orchestrator) {
	t.Helper()
	store := testsupport.MustOpenStore(t, cfg)
	cache := testsupport.MustOpenCache(t, cfg)
	orch := pipeline.NewOrchestrator(cfg, store, cache, nil, pipeline.Engines{
		Downloader: &stubDownloader{dir: cfg.Paths.WorkDir},
		Separator:  &stubSeparator{dir: cfg.Paths.WorkDir},
		Converter:  &stubConverter{},
	}, logging.NewNop())
	d, err := daemon.New(cfg, store, orch, logging.NewNop())
	if err != nil {
		t.Fatalf("new daemon: %v", err)
	}
	return d, store, orch
}

func fastConfig(t *testing.T) *config.Config {
	t.Helper()
	return testsupport.NewConfig(t, func(cfg *config.Config) {
		cfg.Pipeline.QueuePollInterval = 1
		cfg.Pipeline.ReconcileInterval = 1
		cfg.Pipeline.StaleJobTimeout = 1
	})
}

func TestDaemonProcessesQueuedJobs(t *testing.T) {
	cfg := fastConfig(t)
	d, store, orch := newDaemon(t, cfg)

	ctx := context.Background()
	jobID, err := orch.Submit(ctx, "https://example.com/track", "mp3")
	if err != nil {
		t.Fatalf("submit: %v", err)
	}

	if err := d.Start(ctx); err != nil {
		t.Fatalf("start: %v", err)
	}
	defer d.Stop()

	deadline := time.Now().Add(10 * time.Second)
	for time.Now().Before(deadline) {
		job, err := store.GetByID(ctx, jobID)
		if err != nil {
			t.Fatalf("get job: %v", err)
		}
		if job.Status == queue.StatusCompleted {
			if job.Progress != 1.0 {
				t.Fatalf("completed job progress %v", job.Progress)
			}
			return
		}
		if job.Status == queue.StatusFailed {
			t.Fatalf("job failed: %s", job.ErrorMessage)
		}
		time.Sleep(100 * time.Millisecond)
	}
	t.Fatal("job was not processed before deadline")
}

type gatedDownloader struct {
	inner   stubDownloader
	blockOn string
	gate    chan struct{}
}

func (g *gatedDownloader) Fetch(ctx context.Context, jobID, sourceURL string) (string, error) {
	if sourceURL == g.blockOn {
		select {
		case <-g.gate:
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	return g.inner.Fetch(ctx, jobID, sourceURL)
}

func TestDaemonDoesNotStarveQueuedJobsBehindActiveURL(t *testing.T) {
	cfg := fastConfig(t)
	cfg.Pipeline.StaleJobTimeout = 600

	store := testsupport.MustOpenStore(t, cfg)
	cache := testsupport.MustOpenCache(t, cfg)
	gate := make(chan struct{})
	downloader := &gatedDownloader{
		inner:   stubDownloader{dir: cfg.Paths.WorkDir},
		blockOn: "https://example.com/slow",
		gate:    gate,
	}
	orch := pipeline.NewOrchestrator(cfg, store, cache, nil, pipeline.Engines{
		Downloader: downloader,
		Separator:  &stubSeparator{dir: cfg.Paths.WorkDir},
		Converter:  &stubConverter{},
	}, logging.NewNop())
	d, err := daemon.New(cfg, store, orch, logging.NewNop())
	if err != nil {
		t.Fatalf("new daemon: %v", err)
	}

	ctx := context.Background()
	slowID, err := orch.Submit(ctx, "https://example.com/slow", "mp3")
	if err != nil {
		t.Fatalf("submit slow: %v", err)
	}
	fastID, err := orch.Submit(ctx, "https://example.com/fast", "mp3")
	if err != nil {
		t.Fatalf("submit fast: %v", err)
	}

	if err := d.Start(ctx); err != nil {
		t.Fatalf("start: %v", err)
	}
	defer func() {
		close(gate)
		d.Stop()
	}()

	// The later job for the other URL must complete while the older one is
	// still blocked in its download.
	deadline := time.Now().Add(10 * time.Second)
	for time.Now().Before(deadline) {
		fast, err := store.GetByID(ctx, fastID)
		if err != nil {
			t.Fatalf("get fast job: %v", err)
		}
		if fast.Status == queue.StatusCompleted {
			slow, err := store.GetByID(ctx, slowID)
			if err != nil {
				t.Fatalf("get slow job: %v", err)
			}
			if slow.Status == queue.StatusCompleted {
				t.Fatal("slow job finished before its gate opened")
			}
			return
		}
		if fast.Status == queue.StatusFailed {
			t.Fatalf("fast job failed: %s", fast.ErrorMessage)
		}
		time.Sleep(50 * time.Millisecond)
	}
	t.Fatal("queued job starved behind an active URL")
}

func TestDaemonLockIsExclusive(t *testing.T) {
	cfg := fastConfig(t)
	first, _, _ := newDaemon(t, cfg)

	ctx := context.Background()
	if err := first.Start(ctx); err != nil {
		t.Fatalf("start first: %v", err)
	}
	defer first.Stop()

	second, _, _ := newDaemon(t, cfg)
	if err := second.Start(ctx); err == nil {
		second.Stop()
		t.Fatal("second daemon must not acquire the lock")
	}
}

func TestDaemonStartStopIdempotent(t *testing.T) {
	cfg := fastConfig(t)
	d, _, _ := newDaemon(t, cfg)

	ctx := context.Background()
	if err := d.Start(ctx); err != nil {
		t.Fatalf("start: %v", err)
	}
	if err := d.Start(ctx); err == nil {
		t.Fatal("second start should fail while running")
	}
	st := d.Status(ctx)
	if !st.Running {
		t.Fatal("status should report running")
	}
	if st.JobDBPath == "" || st.LockFilePath == "" {
		t.Fatalf("status missing paths: %+v", st)
	}
	d.Stop()
	d.Stop()
	if d.Running() {
		t.Fatal("daemon still reports running after stop")
	}

	if err := d.Start(ctx); err != nil {
		t.Fatalf("restart: %v", err)
	}
	d.Stop()
}

func TestReconcilerFailsStaleProcessing(t *testing.T) {
	cfg := fastConfig(t)
	d, store, _ := newDaemon(t, cfg)

	ctx := context.Background()
	job, err := store.New(ctx, "https://example.com/stuck", "mp3")
	if err != nil {
		t.Fatalf("new job: %v", err)
	}
	if err := store.MarkProcessing(ctx, job.ID, 0.1); err != nil {
		t.Fatalf("mark processing: %v", err)
	}

	// The one-second stale timeout makes the orphaned processing job
	// eligible for the sweep shortly after startup.
	if err := d.Start(ctx); err != nil {
		t.Fatalf("start: %v", err)
	}
	defer d.Stop()

	deadline := time.Now().Add(10 * time.Second)
	for time.Now().Before(deadline) {
		current, err := store.GetByID(ctx, job.ID)
		if err != nil {
			t.Fatalf("get job: %v", err)
		}
		if current.Status == queue.StatusFailed {
			if current.Progress != 0 {
				t.Fatalf("swept job progress %v", current.Progress)
			}
			return
		}
		time.Sleep(100 * time.Millisecond)
	}
	t.Fatal("stale job was not swept before deadline")
}
