package status

import (
	"context"
	"time"

	"jamsplitter/internal/queue"
	"jamsplitter/internal/services"
	"jamsplitter/internal/stemcache"
)

// JobView is the caller-facing projection of one job record.
type JobView struct {
	ID           string    `json:"id"`
	SourceURL    string    `json:"sourceUrl"`
	Status       string    `json:"status"`
	Progress     float64   `json:"progress"`
	OutputFormat string    `json:"outputFormat"`
	ErrorMessage string    `json:"errorMessage,omitempty"`
	CreatedAt    time.Time `json:"createdAt"`
	UpdatedAt    time.Time `json:"updatedAt"`
}

// CacheView is the caller-facing projection of one cached artifact set.
type CacheView struct {
	SourceURL string            `json:"sourceUrl"`
	Stems     map[string]string `json:"stems"`
	CreatedAt time.Time         `json:"createdAt"`
}

// Reporter reads job and cache state on demand. It holds no state of its own
// and never mutates the stores.
type Reporter struct {
	store *queue.Store
	cache *stemcache.Store
}

// NewReporter builds a reporter over the given stores.
func NewReporter(store *queue.Store, cache *stemcache.Store) *Reporter {
	return &Reporter{store: store, cache: cache}
}

// Status returns the current view of one job. Unknown job IDs report
// services.ErrNotFound.
func (r *Reporter) Status(ctx context.Context, jobID string) (JobView, error) {
	job, err := r.store.GetByID(ctx, jobID)
	if err != nil {
		return JobView{}, err
	}
	if job == nil {
		return JobView{}, services.Wrap(services.ErrNotFound, "status", "lookup", jobID, nil)
	}
	return toJobView(job), nil
}

// QueueSnapshot returns a view of every known job, most recently created
// first.
func (r *Reporter) QueueSnapshot(ctx context.Context, statuses ...queue.Status) ([]JobView, error) {
	jobs, err := r.store.List(ctx, statuses...)
	if err != nil {
		return nil, err
	}
	views := make([]JobView, 0, len(jobs))
	for _, job := range jobs {
		views = append(views, toJobView(job))
	}
	return views, nil
}

// CacheLookup returns the cached artifact set for a URL, or nil when absent.
func (r *Reporter) CacheLookup(ctx context.Context, sourceURL string) (*CacheView, error) {
	set, err := r.cache.Lookup(ctx, sourceURL)
	if err != nil {
		return nil, err
	}
	if set == nil {
		return nil, nil
	}
	return &CacheView{
		SourceURL: set.SourceURL,
		Stems:     set.Stems,
		CreatedAt: set.CreatedAt,
	}, nil
}

// Stats returns per-status job counts.
func (r *Reporter) Stats(ctx context.Context) (map[queue.Status]int, error) {
	return r.store.Stats(ctx)
}

func toJobView(job *queue.Job) JobView {
	return JobView{
		ID:           job.ID,
		SourceURL:    job.SourceURL,
		Status:       string(job.Status),
		Progress:     job.Progress,
		OutputFormat: job.OutputFormat,
		ErrorMessage: job.ErrorMessage,
		CreatedAt:    job.CreatedAt,
		UpdatedAt:    job.UpdatedAt,
	}
}
