package daemon

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"log/slog"

	"github.com/gofrs/flock"

	"jamsplitter/internal/config"
	"jamsplitter/internal/logging"
	"jamsplitter/internal/pipeline"
	"jamsplitter/internal/queue"
)

// Daemon coordinates background processing and enforces single-instance
// execution.
type Daemon struct {
	cfg    *config.Config
	logger *slog.Logger
	store  *queue.Store
	orch   *pipeline.Orchestrator

	lockPath string
	lock     *flock.Flock

	pollInterval       time.Duration
	errorRetryInterval time.Duration
	reconcileInterval  time.Duration
	staleTimeout       time.Duration

	running atomic.Bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// Status represents daemon runtime information.
type Status struct {
	Running      bool
	JobDBPath    string
	LockFilePath string
	QueueStats   map[queue.Status]int
}

// New constructs a daemon with initialized dependencies.
func New(cfg *config.Config, store *queue.Store, orch *pipeline.Orchestrator, logger *slog.Logger) (*Daemon, error) {
	if cfg == nil || store == nil || orch == nil || logger == nil {
		return nil, errors.New("daemon requires config, store, orchestrator, and logger")
	}

	lockPath := filepath.Join(cfg.Paths.LogDir, "jamsplitterd.lock")
	return &Daemon{
		cfg:                cfg,
		logger:             logging.NewComponentLogger(logger, "daemon"),
		store:              store,
		orch:               orch,
		lockPath:           lockPath,
		lock:               flock.New(lockPath),
		pollInterval:       secondsOrDefault(cfg.Pipeline.QueuePollInterval, 2*time.Second),
		errorRetryInterval: secondsOrDefault(cfg.Pipeline.ErrorRetryInterval, 5*time.Second),
		reconcileInterval:  secondsOrDefault(cfg.Pipeline.ReconcileInterval, time.Minute),
		staleTimeout:       secondsOrDefault(cfg.Pipeline.StaleJobTimeout, time.Hour),
	}, nil
}

// Start acquires the daemon lock and launches the poll and reconcile loops.
func (d *Daemon) Start(ctx context.Context) error {
	if d.running.Load() {
		return errors.New("daemon already running")
	}

	ok, err := d.lock.TryLock()
	if err != nil {
		return fmt.Errorf("acquire lock: %w", err)
	}
	if !ok {
		return errors.New("another jamsplitter daemon instance is already running")
	}

	runCtx, cancel := context.WithCancel(ctx)
	d.cancel = cancel
	d.running.Store(true)

	d.wg.Add(2)
	go d.pollLoop(runCtx)
	go d.reconcileLoop(runCtx)

	d.logger.InfoContext(ctx, "daemon started",
		logging.String("lock", d.lockPath),
		logging.Duration("poll_interval", d.pollInterval),
	)
	return nil
}

// Stop terminates background processing, waits for in-flight jobs, and
// releases the daemon lock.
func (d *Daemon) Stop() {
	if !d.running.Load() {
		return
	}

	if d.cancel != nil {
		d.cancel()
		d.cancel = nil
	}
	d.wg.Wait()
	d.orch.Wait()
	if err := d.lock.Unlock(); err != nil {
		d.logger.Warn("failed to release daemon lock", logging.Error(err))
	}
	d.running.Store(false)
	d.logger.Info("daemon stopped")
}

// Close releases resources held by the daemon.
func (d *Daemon) Close() error {
	d.Stop()
	return d.store.Close()
}

// Running reports whether the daemon loops are active.
func (d *Daemon) Running() bool {
	return d.running.Load()
}

// Status returns the current daemon status.
func (d *Daemon) Status(ctx context.Context) Status {
	stats, err := d.store.Stats(ctx)
	if err != nil {
		d.logger.Warn("failed to read queue stats", logging.Error(err))
		stats = nil
	}
	return Status{
		Running:      d.running.Load(),
		JobDBPath:    d.store.Path(),
		LockFilePath: d.lockPath,
		QueueStats:   stats,
	}
}

// pollLoop claims queued jobs and hands them to the orchestrator, one
// goroutine per job.
func (d *Daemon) pollLoop(ctx context.Context) {
	defer d.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		// Skip URLs with active runs so one claim-blocked job does not
		// starve queued work for other URLs behind it.
		job, err := d.store.NextQueued(ctx, d.orch.InflightURLs()...)
		if err != nil {
			d.logger.ErrorContext(ctx, "failed to fetch next queued job",
				logging.Error(err),
				logging.String(logging.FieldEventType, "queue_fetch_failed"),
				logging.String(logging.FieldErrorHint, "check job database access"),
			)
			d.sleep(ctx, d.errorRetryInterval)
			continue
		}
		if job == nil {
			d.sleep(ctx, d.pollInterval)
			continue
		}
		if !d.orch.Dispatch(ctx, job) {
			// The URL was claimed between the fetch and the dispatch; the
			// next fetch excludes it, so loop again without sleeping.
			continue
		}
	}
}

// reconcileLoop sweeps jobs stuck in processing past the stale timeout. The
// state machine has no transition out of an orphaned processing state, so the
// sweep fails them.
func (d *Daemon) reconcileLoop(ctx context.Context) {
	defer d.wg.Done()
	ticker := time.NewTicker(d.reconcileInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		cutoff := time.Now().UTC().Add(-d.staleTimeout)
		swept, err := d.store.FailStaleProcessing(ctx, cutoff)
		if err != nil {
			d.logger.ErrorContext(ctx, "stale job sweep failed",
				logging.Error(err),
				logging.String(logging.FieldEventType, "reconcile_failed"),
				logging.String(logging.FieldErrorHint, "check job database access"),
			)
			continue
		}
		if swept > 0 {
			d.logger.InfoContext(ctx, "failed stale processing jobs",
				logging.Int64("job_count", swept),
				logging.String(logging.FieldEventType, "reconcile_swept"),
			)
		}
	}
}

func (d *Daemon) sleep(ctx context.Context, interval time.Duration) {
	select {
	case <-ctx.Done():
	case <-time.After(interval):
	}
}

func secondsOrDefault(seconds int, fallback time.Duration) time.Duration {
	if seconds <= 0 {
		return fallback
	}
	return time.Duration(seconds) * time.Second
}
