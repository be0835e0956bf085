package queue

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"jamsplitter/internal/services"
)

// Store manages job persistence backed by SQLite. The embedded *sql.DB pools
// connections, so a single Store is safe for concurrent use by multiple jobs.
type Store struct {
	db    *sql.DB
	path  string
	retry RetryPolicy
}

// Open initializes or connects to the job database. Connection establishment
// is retried per the policy; exhausting it surfaces ErrStorageUnavailable.
func Open(dbPath string, retry RetryPolicy) (*Store, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, services.Wrap(services.ErrStorageUnavailable, "jobstore", "open", dbPath, err)
	}

	connect := func() error {
		if err := db.Ping(); err != nil {
			return err
		}
		for _, pragma := range []string{
			"PRAGMA journal_mode=WAL",
			"PRAGMA busy_timeout = 5000",
		} {
			if _, execErr := db.Exec(pragma); execErr != nil {
				return fmt.Errorf("apply pragma %q: %w", pragma, execErr)
			}
		}
		return nil
	}
	if err := retry.Run(connect); err != nil {
		_ = db.Close()
		return nil, services.Wrap(services.ErrStorageUnavailable, "jobstore", "connect", dbPath, err)
	}

	store := &Store{db: db, path: dbPath, retry: retry}
	if err := store.initSchema(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return store, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Path returns the database file location.
func (s *Store) Path() string {
	if s == nil {
		return ""
	}
	return s.path
}

// New inserts a queued job for a source URL and returns the stored row.
func (s *Store) New(ctx context.Context, sourceURL, outputFormat string) (*Job, error) {
	return s.insert(ctx, sourceURL, outputFormat, StatusQueued, 0)
}

// NewCompleted inserts an already-completed job. Used on cache hits, where
// the result exists and no stage runs.
func (s *Store) NewCompleted(ctx context.Context, sourceURL, outputFormat string) (*Job, error) {
	return s.insert(ctx, sourceURL, outputFormat, StatusCompleted, 1.0)
}

func (s *Store) insert(ctx context.Context, sourceURL, outputFormat string, status Status, progress float64) (*Job, error) {
	sourceURL = strings.TrimSpace(sourceURL)
	if sourceURL == "" {
		return nil, errors.New("source url is required")
	}

	id := uuid.NewString()
	timestamp := time.Now().UTC().Format(time.RFC3339Nano)
	err := s.exec(ctx, func() error {
		_, execErr := s.db.ExecContext(
			ctx,
			`INSERT INTO jobs (id, source_url, status, progress, output_format, created_at, updated_at)
             VALUES (?, ?, ?, ?, ?, ?, ?)`,
			id, sourceURL, status, progress, outputFormat, timestamp, timestamp,
		)
		return execErr
	})
	if err != nil {
		return nil, fmt.Errorf("insert job: %w", err)
	}
	return s.GetByID(ctx, id)
}

// GetByID fetches a job by identifier. A missing row returns (nil, nil).
func (s *Store) GetByID(ctx context.Context, id string) (*Job, error) {
	var job *Job
	err := s.exec(ctx, func() error {
		row := s.db.QueryRowContext(ctx, `SELECT `+jobColumns+` FROM jobs WHERE id = ?`, id)
		scanned, scanErr := scanJob(row)
		if errors.Is(scanErr, sql.ErrNoRows) {
			job = nil
			return nil
		}
		if scanErr != nil {
			return scanErr
		}
		job = scanned
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("get job: %w", err)
	}
	return job, nil
}

// FindBySourceURL returns the most recently created job for a URL, or nil.
func (s *Store) FindBySourceURL(ctx context.Context, sourceURL string) (*Job, error) {
	var job *Job
	err := s.exec(ctx, func() error {
		row := s.db.QueryRowContext(
			ctx,
			`SELECT `+jobColumns+` FROM jobs WHERE source_url = ? ORDER BY created_at DESC, id DESC LIMIT 1`,
			sourceURL,
		)
		scanned, scanErr := scanJob(row)
		if errors.Is(scanErr, sql.ErrNoRows) {
			job = nil
			return nil
		}
		if scanErr != nil {
			return scanErr
		}
		job = scanned
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("find job by url: %w", err)
	}
	return job, nil
}

// List returns jobs filtered by status set (or all jobs when no status is
// provided), most recently created first.
func (s *Store) List(ctx context.Context, statuses ...Status) ([]*Job, error) {
	baseQuery := `SELECT ` + jobColumns + ` FROM jobs`
	orderClause := ` ORDER BY created_at DESC, id DESC`

	var jobs []*Job
	err := s.exec(ctx, func() error {
		var (
			rows     *sql.Rows
			queryErr error
		)
		if len(statuses) == 0 {
			rows, queryErr = s.db.QueryContext(ctx, baseQuery+orderClause)
		} else {
			placeholders := makePlaceholders(len(statuses))
			args := make([]any, len(statuses))
			for i, status := range statuses {
				args[i] = status
			}
			rows, queryErr = s.db.QueryContext(ctx, baseQuery+` WHERE status IN (`+placeholders+`)`+orderClause, args...)
		}
		if queryErr != nil {
			return queryErr
		}
		defer rows.Close()

		jobs = jobs[:0]
		for rows.Next() {
			job, scanErr := scanJob(rows)
			if scanErr != nil {
				return scanErr
			}
			jobs = append(jobs, job)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, fmt.Errorf("list jobs: %w", err)
	}
	return jobs, nil
}

// NextQueued returns the oldest queued job, or nil when none is waiting.
// URLs in excludeURLs are skipped so a claim-blocked job does not starve
// queued work for other URLs behind it.
func (s *Store) NextQueued(ctx context.Context, excludeURLs ...string) (*Job, error) {
	query := `SELECT ` + jobColumns + ` FROM jobs WHERE status = ?`
	args := []any{StatusQueued}
	if len(excludeURLs) > 0 {
		query += ` AND source_url NOT IN (` + makePlaceholders(len(excludeURLs)) + `)`
		for _, url := range excludeURLs {
			args = append(args, url)
		}
	}
	query += ` ORDER BY created_at, id LIMIT 1`

	var job *Job
	err := s.exec(ctx, func() error {
		row := s.db.QueryRowContext(ctx, query, args...)
		scanned, scanErr := scanJob(row)
		if errors.Is(scanErr, sql.ErrNoRows) {
			job = nil
			return nil
		}
		if scanErr != nil {
			return scanErr
		}
		job = scanned
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("next queued job: %w", err)
	}
	return job, nil
}

// MarkProcessing transitions a queued job into processing with the given
// checkpoint progress. Status and progress commit in one statement.
func (s *Store) MarkProcessing(ctx context.Context, id string, progress float64) error {
	return s.transition(ctx, id,
		`UPDATE jobs SET status = ?, progress = ?, error_message = NULL, updated_at = ?
         WHERE id = ? AND status IN (?, ?)`,
		StatusProcessing, progress, now(), id, StatusQueued, StatusProcessing,
	)
}

// UpdateProgress persists a checkpoint for a processing job. Progress is
// monotonic: a value below the stored one reports ErrProgressRegression.
func (s *Store) UpdateProgress(ctx context.Context, id string, progress float64) error {
	err := s.exec(ctx, func() error {
		res, execErr := s.db.ExecContext(
			ctx,
			`UPDATE jobs SET progress = ?, updated_at = ?
             WHERE id = ? AND status = ? AND progress <= ?`,
			progress, now(), id, StatusProcessing, progress,
		)
		if execErr != nil {
			return execErr
		}
		affected, execErr := res.RowsAffected()
		if execErr != nil {
			return execErr
		}
		if affected == 0 {
			return s.explainNoRows(ctx, id, progress)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("update progress: %w", err)
	}
	return nil
}

// MarkCompleted transitions a processing job to completed with progress 1.0.
func (s *Store) MarkCompleted(ctx context.Context, id string) error {
	return s.transition(ctx, id,
		`UPDATE jobs SET status = ?, progress = 1.0, error_message = NULL, updated_at = ?
         WHERE id = ? AND status = ?`,
		StatusCompleted, now(), id, StatusProcessing,
	)
}

// MarkFailed transitions a job to failed, resetting progress to zero. A
// failed job communicates no meaningful partial completion.
func (s *Store) MarkFailed(ctx context.Context, id, message string) error {
	return s.transition(ctx, id,
		`UPDATE jobs SET status = ?, progress = 0, error_message = ?, updated_at = ?
         WHERE id = ? AND status IN (?, ?)`,
		StatusFailed, nullableString(message), now(), id, StatusQueued, StatusProcessing,
	)
}

// FailStaleProcessing marks jobs stuck in processing with no write since the
// cutoff as failed. There is no transition back from an orphaned processing
// state, so an external sweep is the only recovery path.
func (s *Store) FailStaleProcessing(ctx context.Context, cutoff time.Time) (int64, error) {
	var affected int64
	err := s.exec(ctx, func() error {
		res, execErr := s.db.ExecContext(
			ctx,
			`UPDATE jobs SET status = ?, progress = 0, error_message = ?, updated_at = ?
             WHERE status = ? AND updated_at < ?`,
			StatusFailed,
			"abandoned: no progress past stale timeout",
			now(),
			StatusProcessing,
			cutoff.UTC().Format(time.RFC3339Nano),
		)
		if execErr != nil {
			return execErr
		}
		affected, execErr = res.RowsAffected()
		return execErr
	})
	if err != nil {
		return 0, fmt.Errorf("fail stale jobs: %w", err)
	}
	return affected, nil
}

// RetryFailed moves failed jobs back to queued for reprocessing. With no ids
// every failed job is requeued.
func (s *Store) RetryFailed(ctx context.Context, ids ...string) (int64, error) {
	var affected int64
	err := s.exec(ctx, func() error {
		var (
			res     sql.Result
			execErr error
		)
		if len(ids) == 0 {
			res, execErr = s.db.ExecContext(
				ctx,
				`UPDATE jobs SET status = ?, progress = 0, error_message = NULL, updated_at = ? WHERE status = ?`,
				StatusQueued, now(), StatusFailed,
			)
		} else {
			placeholders := makePlaceholders(len(ids))
			args := make([]any, 0, len(ids)+3)
			args = append(args, StatusQueued, now(), StatusFailed)
			for _, id := range ids {
				args = append(args, id)
			}
			res, execErr = s.db.ExecContext(
				ctx,
				`UPDATE jobs SET status = ?, progress = 0, error_message = NULL, updated_at = ?
                 WHERE status = ? AND id IN (`+placeholders+`)`,
				args...,
			)
		}
		if execErr != nil {
			return execErr
		}
		affected, execErr = res.RowsAffected()
		return execErr
	})
	if err != nil {
		return 0, fmt.Errorf("retry failed jobs: %w", err)
	}
	return affected, nil
}

// Stats returns a count of jobs grouped by status.
func (s *Store) Stats(ctx context.Context) (map[Status]int, error) {
	stats := make(map[Status]int)
	err := s.exec(ctx, func() error {
		rows, queryErr := s.db.QueryContext(ctx, `SELECT status, COUNT(1) FROM jobs GROUP BY status`)
		if queryErr != nil {
			return queryErr
		}
		defer rows.Close()

		clear(stats)
		for rows.Next() {
			var status Status
			var count int
			if scanErr := rows.Scan(&status, &count); scanErr != nil {
				return scanErr
			}
			stats[status] = count
		}
		return rows.Err()
	})
	if err != nil {
		return nil, fmt.Errorf("job stats: %w", err)
	}
	return stats, nil
}

// Health aggregates job state for diagnostic output.
func (s *Store) Health(ctx context.Context) (HealthSummary, error) {
	stats, err := s.Stats(ctx)
	if err != nil {
		return HealthSummary{}, err
	}
	health := HealthSummary{}
	for status, count := range stats {
		health.Total += count
		switch status {
		case StatusQueued:
			health.Queued += count
		case StatusProcessing:
			health.Processing += count
		case StatusCompleted:
			health.Completed += count
		case StatusFailed:
			health.Failed += count
		}
	}
	return health, nil
}

// Remove deletes a job by identifier.
func (s *Store) Remove(ctx context.Context, id string) (bool, error) {
	var removed bool
	err := s.exec(ctx, func() error {
		res, execErr := s.db.ExecContext(ctx, `DELETE FROM jobs WHERE id = ?`, id)
		if execErr != nil {
			return execErr
		}
		affected, execErr := res.RowsAffected()
		removed = affected > 0
		return execErr
	})
	if err != nil {
		return false, fmt.Errorf("delete job: %w", err)
	}
	return removed, nil
}

// Clear removes all jobs.
func (s *Store) Clear(ctx context.Context) (int64, error) {
	return s.deleteWhere(ctx, ``, nil)
}

// ClearCompleted removes only completed jobs.
func (s *Store) ClearCompleted(ctx context.Context) (int64, error) {
	return s.deleteWhere(ctx, ` WHERE status = ?`, []any{StatusCompleted})
}

// ClearFailed removes only failed jobs.
func (s *Store) ClearFailed(ctx context.Context) (int64, error) {
	return s.deleteWhere(ctx, ` WHERE status = ?`, []any{StatusFailed})
}

func (s *Store) deleteWhere(ctx context.Context, clause string, args []any) (int64, error) {
	var affected int64
	err := s.exec(ctx, func() error {
		res, execErr := s.db.ExecContext(ctx, `DELETE FROM jobs`+clause, args...)
		if execErr != nil {
			return execErr
		}
		affected, execErr = res.RowsAffected()
		return execErr
	})
	if err != nil {
		return 0, fmt.Errorf("clear jobs: %w", err)
	}
	return affected, nil
}

// CheckHealth returns diagnostic information about the job database.
func (s *Store) CheckHealth(ctx context.Context) (DatabaseHealth, error) {
	health := DatabaseHealth{DBPath: s.path}

	if s.path == "" {
		return health, errors.New("job database path is unknown")
	}

	info, err := os.Stat(s.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			health.DatabaseExists = false
			return health, nil
		}
		return health, fmt.Errorf("stat job database: %w", err)
	}
	if info.IsDir() {
		return health, fmt.Errorf("job database path %q is a directory", s.path)
	}
	health.DatabaseExists = true

	if s.db == nil {
		return health, errors.New("job database connection unavailable")
	}

	connCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	if err := s.db.PingContext(connCtx); err != nil {
		health.Error = err.Error()
		return health, fmt.Errorf("ping job database: %w", err)
	}
	health.DatabaseReadable = true

	var tableName string
	row := s.db.QueryRowContext(connCtx, "SELECT name FROM sqlite_master WHERE type = 'table' AND name = 'jobs'")
	if err := row.Scan(&tableName); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			health.TableExists = false
		} else {
			health.Error = err.Error()
			return health, fmt.Errorf("query table info: %w", err)
		}
	} else {
		health.TableExists = true
	}

	if health.TableExists {
		colsRows, err := s.db.QueryContext(connCtx, "PRAGMA table_info(jobs)")
		if err != nil {
			health.Error = err.Error()
			return health, fmt.Errorf("table info: %w", err)
		}
		defer colsRows.Close()

		var columns []string
		for colsRows.Next() {
			var (
				cid     int
				name    string
				typeStr string
				notNull int
				dflt    any
				pk      int
			)
			if err := colsRows.Scan(&cid, &name, &typeStr, &notNull, &dflt, &pk); err != nil {
				health.Error = err.Error()
				return health, fmt.Errorf("scan table info: %w", err)
			}
			columns = append(columns, name)
		}
		if err := colsRows.Err(); err != nil {
			health.Error = err.Error()
			return health, fmt.Errorf("iterate table info: %w", err)
		}
		health.ColumnsPresent = columns

		expected := []string{"id", "source_url", "status", "progress", "output_format", "error_message", "created_at", "updated_at"}
		missing := make(map[string]struct{}, len(expected))
		for _, col := range expected {
			missing[col] = struct{}{}
		}
		for _, col := range columns {
			delete(missing, col)
		}
		for col := range missing {
			health.MissingColumns = append(health.MissingColumns, col)
		}

		row = s.db.QueryRowContext(connCtx, "SELECT COUNT(*) FROM jobs")
		if err := row.Scan(&health.TotalJobs); err != nil {
			health.Error = err.Error()
			return health, fmt.Errorf("count jobs: %w", err)
		}
	}

	row = s.db.QueryRowContext(connCtx, "PRAGMA integrity_check")
	var integrityResult string
	if err := row.Scan(&integrityResult); err != nil {
		health.Error = err.Error()
		return health, fmt.Errorf("integrity check: %w", err)
	}
	health.IntegrityCheck = strings.EqualFold(integrityResult, "ok")

	return health, nil
}

// transition runs a guarded single-statement status write. Zero affected rows
// means the job is either missing or already terminal.
func (s *Store) transition(ctx context.Context, id, query string, args ...any) error {
	err := s.exec(ctx, func() error {
		res, execErr := s.db.ExecContext(ctx, query, args...)
		if execErr != nil {
			return execErr
		}
		affected, execErr := res.RowsAffected()
		if execErr != nil {
			return execErr
		}
		if affected == 0 {
			return s.classifyMissed(ctx, id)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("transition job: %w", err)
	}
	return nil
}

func (s *Store) classifyMissed(ctx context.Context, id string) error {
	var status string
	row := s.db.QueryRowContext(ctx, `SELECT status FROM jobs WHERE id = ?`, id)
	if err := row.Scan(&status); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return ErrNotFound
		}
		return err
	}
	return ErrTerminal
}

func (s *Store) explainNoRows(ctx context.Context, id string, progress float64) error {
	var status string
	var current float64
	row := s.db.QueryRowContext(ctx, `SELECT status, progress FROM jobs WHERE id = ?`, id)
	if err := row.Scan(&status, &current); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return ErrNotFound
		}
		return err
	}
	if Status(status) != StatusProcessing {
		return ErrTerminal
	}
	if current > progress {
		return ErrProgressRegression
	}
	return errors.New("progress update not applied")
}

// exec runs op, retrying once after a reconnect when the failure looks like a
// lost connection. A job whose status cannot be persisted must not be assumed
// complete, so the final error is always surfaced.
func (s *Store) exec(ctx context.Context, op func() error) error {
	err := op()
	if err == nil || !isConnError(err) {
		return err
	}
	if pingErr := s.db.PingContext(ctx); pingErr != nil {
		return services.Wrap(services.ErrStorageUnavailable, "jobstore", "reconnect", "", err)
	}
	if err = op(); err != nil && isConnError(err) {
		return services.Wrap(services.ErrStorageUnavailable, "jobstore", "retry", "", err)
	}
	return err
}

func isConnError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, sql.ErrConnDone) {
		return true
	}
	msg := strings.ToLower(err.Error())
	for _, marker := range []string{"database is locked", "database is closed", "connection", "bad file descriptor", "database disk image is malformed"} {
		if strings.Contains(msg, marker) {
			return true
		}
	}
	return false
}

const jobColumns = "id, source_url, status, progress, output_format, error_message, created_at, updated_at"

func scanJob(scanner interface{ Scan(dest ...any) error }) (*Job, error) {
	var (
		id           string
		sourceURL    string
		statusStr    string
		progress     float64
		outputFormat string
		errorMessage sql.NullString
		createdRaw   string
		updatedRaw   string
	)
	if err := scanner.Scan(&id, &sourceURL, &statusStr, &progress, &outputFormat, &errorMessage, &createdRaw, &updatedRaw); err != nil {
		return nil, err
	}

	job := &Job{
		ID:           id,
		SourceURL:    sourceURL,
		Status:       Status(statusStr),
		Progress:     progress,
		OutputFormat: outputFormat,
		ErrorMessage: errorMessage.String,
	}
	if created, err := parseTimeString(createdRaw); err == nil {
		job.CreatedAt = created
	}
	if updated, err := parseTimeString(updatedRaw); err == nil {
		job.UpdatedAt = updated
	}
	return job, nil
}

func now() string {
	return time.Now().UTC().Format(time.RFC3339Nano)
}

func nullableString(value string) any {
	if strings.TrimSpace(value) == "" {
		return nil
	}
	return value
}

func parseTimeString(value string) (time.Time, error) {
	if value == "" {
		return time.Time{}, errors.New("empty")
	}
	if t, err := time.Parse(time.RFC3339Nano, value); err == nil {
		return t, nil
	}
	return time.Parse("2006-01-02 15:04:05", value)
}

func makePlaceholders(count int) string {
	if count <= 0 {
		return ""
	}
	placeholders := make([]byte, 0, count*2)
	for i := 0; i < count; i++ {
		if i > 0 {
			placeholders = append(placeholders, ',')
		}
		placeholders = append(placeholders, '?')
	}
	return string(placeholders)
}
