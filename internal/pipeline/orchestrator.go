package pipeline

import (
	"context"
	"fmt"
	"net/url"
	"os"
	"strings"
	"sync"

	"log/slog"

	"jamsplitter/internal/artifacts"
	"jamsplitter/internal/config"
	"jamsplitter/internal/logging"
	"jamsplitter/internal/queue"
	"jamsplitter/internal/services"
	"jamsplitter/internal/stemcache"
)

// Checkpoint progress values written at stage boundaries.
const (
	checkpointAccepted   = 0.1
	checkpointDownloaded = 0.3
	checkpointSeparated  = 0.7
)

// Orchestrator drives the stage sequence for submitted URLs. Job records are
// the single source of truth for lifecycle state; the orchestrator holds no
// job state beyond the in-flight URL guard.
type Orchestrator struct {
	cfg       *config.Config
	store     *queue.Store
	cache     *stemcache.Store
	artifacts *artifacts.Manager
	engines   Engines
	logger    *slog.Logger

	mu       sync.Mutex
	inflight map[string]string // source URL -> active job ID
	wg       sync.WaitGroup
}

// NewOrchestrator constructs an orchestrator over the given stores and engines.
func NewOrchestrator(cfg *config.Config, store *queue.Store, cache *stemcache.Store, mgr *artifacts.Manager, engines Engines, logger *slog.Logger) *Orchestrator {
	return &Orchestrator{
		cfg:       cfg,
		store:     store,
		cache:     cache,
		artifacts: mgr,
		engines:   engines,
		logger:    logging.NewComponentLogger(logger, "pipeline"),
		inflight:  make(map[string]string),
	}
}

// Submit validates the request, resolves cache hits, and creates a queued job
// for new work. The returned job ID can be polled for outcome; Submit never
// runs stages itself.
func (o *Orchestrator) Submit(ctx context.Context, sourceURL, outputFormat string) (string, error) {
	sourceURL = strings.TrimSpace(sourceURL)
	if err := validateSourceURL(sourceURL); err != nil {
		return "", err
	}
	outputFormat, err := o.resolveFormat(outputFormat)
	if err != nil {
		return "", err
	}

	// Cache failures fall through to recompute rather than failing the
	// request.
	cached, err := o.cache.Lookup(ctx, sourceURL)
	if err != nil {
		o.logger.WarnContext(ctx, "cache lookup failed; recomputing",
			logging.String(logging.FieldSourceURL, sourceURL),
			logging.Error(err),
			logging.String(logging.FieldEventType, "cache_lookup_failed"),
		)
	}
	if cached != nil && !artifactsIntact(cached.Stems) {
		// Pruning or out-of-band deletion can orphan a cache row. A hit
		// whose files are gone must recompute, not hand out dead paths.
		o.logger.WarnContext(ctx, "cached artifacts missing on disk; recomputing",
			logging.String(logging.FieldSourceURL, sourceURL),
			logging.String(logging.FieldEventType, "cache_invalidated"),
		)
		if _, err := o.cache.Remove(ctx, sourceURL); err != nil {
			o.logger.WarnContext(ctx, "failed to drop stale cache entry",
				logging.String(logging.FieldSourceURL, sourceURL),
				logging.Error(err),
			)
		}
		cached = nil
	}
	if cached != nil {
		job, err := o.store.NewCompleted(ctx, sourceURL, outputFormat)
		if err != nil {
			return "", err
		}
		o.logger.InfoContext(ctx, "cache hit; job completed without engines",
			logging.String(logging.FieldJobID, job.ID),
			logging.String(logging.FieldSourceURL, sourceURL),
			logging.String(logging.FieldEventType, "cache_hit"),
		)
		return job.ID, nil
	}

	// One pipeline run per URL at a time: a submission for an in-flight URL
	// joins the existing job instead of starting a duplicate.
	o.mu.Lock()
	if existing, ok := o.inflight[sourceURL]; ok {
		o.mu.Unlock()
		return existing, nil
	}
	o.mu.Unlock()

	if existing, err := o.store.FindBySourceURL(ctx, sourceURL); err == nil && existing != nil && !existing.Status.IsTerminal() {
		return existing.ID, nil
	}

	job, err := o.store.New(ctx, sourceURL, outputFormat)
	if err != nil {
		return "", err
	}
	o.logger.InfoContext(ctx, "job queued",
		logging.String(logging.FieldJobID, job.ID),
		logging.String(logging.FieldSourceURL, sourceURL),
		logging.String("output_format", outputFormat),
		logging.String(logging.FieldEventType, "job_queued"),
	)
	return job.ID, nil
}

// Dispatch claims the URL for a queued job and runs its stages in a new
// goroutine. Returns false when the URL already has an active run.
func (o *Orchestrator) Dispatch(ctx context.Context, job *queue.Job) bool {
	if job == nil {
		return false
	}
	if !o.claim(job.SourceURL, job.ID) {
		return false
	}
	o.wg.Add(1)
	go func() {
		defer o.wg.Done()
		defer o.release(job.SourceURL)
		o.RunJob(ctx, job)
	}()
	return true
}

// Wait blocks until all dispatched jobs have finished.
func (o *Orchestrator) Wait() {
	o.wg.Wait()
}

// Process runs a job synchronously: submit, then execute stages inline. Used
// by the CLI's one-shot mode. The job's final state is returned.
func (o *Orchestrator) Process(ctx context.Context, sourceURL, outputFormat string) (*queue.Job, error) {
	jobID, err := o.Submit(ctx, sourceURL, outputFormat)
	if err != nil {
		return nil, err
	}
	job, err := o.store.GetByID(ctx, jobID)
	if err != nil {
		return nil, err
	}
	if job == nil {
		return nil, services.Wrap(services.ErrNotFound, "pipeline", "process", jobID, nil)
	}
	if job.Status.IsTerminal() {
		return job, nil
	}
	if o.claim(job.SourceURL, job.ID) {
		defer o.release(job.SourceURL)
		o.RunJob(ctx, job)
	}
	return o.store.GetByID(ctx, jobID)
}

// InflightURLs returns the URLs with an active pipeline run.
func (o *Orchestrator) InflightURLs() []string {
	o.mu.Lock()
	defer o.mu.Unlock()
	urls := make([]string, 0, len(o.inflight))
	for url := range o.inflight {
		urls = append(urls, url)
	}
	return urls
}

func (o *Orchestrator) claim(sourceURL, jobID string) bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	if _, ok := o.inflight[sourceURL]; ok {
		return false
	}
	o.inflight[sourceURL] = jobID
	return true
}

func (o *Orchestrator) release(sourceURL string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	delete(o.inflight, sourceURL)
}

func (o *Orchestrator) resolveFormat(format string) (string, error) {
	format = strings.ToLower(strings.TrimSpace(format))
	if format == "" {
		format = o.cfg.Pipeline.DefaultOutputFormat
	}
	if !config.ValidOutputFormat(format) {
		return "", services.Wrap(services.ErrInvalidInput, "pipeline", "submit", fmt.Sprintf("unsupported output format %q", format), nil)
	}
	return format, nil
}

// artifactsIntact reports whether every cached stem path still exists.
func artifactsIntact(stems map[string]string) bool {
	if len(stems) == 0 {
		return false
	}
	for _, path := range stems {
		if _, err := os.Stat(path); err != nil {
			return false
		}
	}
	return true
}

func validateSourceURL(sourceURL string) error {
	if sourceURL == "" {
		return services.Wrap(services.ErrInvalidInput, "pipeline", "submit", "source url is required", nil)
	}
	parsed, err := url.Parse(sourceURL)
	if err != nil {
		return services.Wrap(services.ErrInvalidInput, "pipeline", "submit", "malformed source url", err)
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return services.Wrap(services.ErrInvalidInput, "pipeline", "submit", fmt.Sprintf("unsupported url scheme %q", parsed.Scheme), nil)
	}
	if parsed.Host == "" {
		return services.Wrap(services.ErrInvalidInput, "pipeline", "submit", "source url has no host", nil)
	}
	return nil
}
