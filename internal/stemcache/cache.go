package stemcache

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"jamsplitter/internal/queue"
	"jamsplitter/internal/services"
)

// ArtifactSet is the cached result for one source URL: stem name to file path.
type ArtifactSet struct {
	SourceURL string
	Stems     map[string]string
	CreatedAt time.Time
}

// Store manages the URL to artifact-set cache backed by SQLite.
type Store struct {
	db   *sql.DB
	path string
}

// Open initializes or connects to the cache database. Connection
// establishment shares the job store's retry policy semantics.
func Open(dbPath string, retry queue.RetryPolicy) (*Store, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, services.Wrap(services.ErrStorageUnavailable, "stemcache", "open", dbPath, err)
	}

	connect := func() error {
		if err := db.Ping(); err != nil {
			return err
		}
		if _, execErr := db.Exec("PRAGMA busy_timeout = 5000"); execErr != nil {
			return execErr
		}
		_, execErr := db.Exec(`CREATE TABLE IF NOT EXISTS stems (
            source_url TEXT PRIMARY KEY,
            stems_json TEXT NOT NULL,
            created_at TEXT NOT NULL
        )`)
		return execErr
	}
	if err := retry.Run(connect); err != nil {
		_ = db.Close()
		return nil, services.Wrap(services.ErrStorageUnavailable, "stemcache", "connect", dbPath, err)
	}

	return &Store{db: db, path: dbPath}, nil
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

// Lookup returns the cached artifact set for a URL, or nil when absent.
// A missing key is never an error.
func (s *Store) Lookup(ctx context.Context, sourceURL string) (*ArtifactSet, error) {
	var (
		stemsJSON  string
		createdRaw string
	)
	row := s.db.QueryRowContext(ctx, `SELECT stems_json, created_at FROM stems WHERE source_url = ?`, sourceURL)
	if err := row.Scan(&stemsJSON, &createdRaw); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, services.Wrap(services.ErrStorageUnavailable, "stemcache", "lookup", sourceURL, err)
	}

	stems := make(map[string]string)
	if err := json.Unmarshal([]byte(stemsJSON), &stems); err != nil {
		return nil, fmt.Errorf("decode cached stems for %q: %w", sourceURL, err)
	}

	set := &ArtifactSet{SourceURL: sourceURL, Stems: stems}
	if created, err := time.Parse(time.RFC3339Nano, createdRaw); err == nil {
		set.CreatedAt = created
	}
	return set, nil
}

// Store persists the artifact set for a URL, replacing any existing row
// wholesale. The write is durable before the call returns.
func (s *Store) Store(ctx context.Context, sourceURL string, stems map[string]string) error {
	if strings.TrimSpace(sourceURL) == "" {
		return errors.New("source url is required")
	}
	if len(stems) == 0 {
		return errors.New("artifact set must not be empty")
	}

	payload, err := json.Marshal(stems)
	if err != nil {
		return fmt.Errorf("encode stems: %w", err)
	}
	_, err = s.db.ExecContext(
		ctx,
		`INSERT OR REPLACE INTO stems (source_url, stems_json, created_at) VALUES (?, ?, ?)`,
		sourceURL,
		string(payload),
		time.Now().UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return services.Wrap(services.ErrStorageUnavailable, "stemcache", "store", sourceURL, err)
	}
	return nil
}

// Remove deletes the cached artifact set for a URL.
func (s *Store) Remove(ctx context.Context, sourceURL string) (bool, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM stems WHERE source_url = ?`, sourceURL)
	if err != nil {
		return false, services.Wrap(services.ErrStorageUnavailable, "stemcache", "remove", sourceURL, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected: %w", err)
	}
	return affected > 0, nil
}

// Entries returns every cached artifact set, most recently written first.
func (s *Store) Entries(ctx context.Context) ([]ArtifactSet, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT source_url, stems_json, created_at FROM stems ORDER BY created_at DESC`)
	if err != nil {
		return nil, services.Wrap(services.ErrStorageUnavailable, "stemcache", "entries", "", err)
	}
	defer rows.Close()

	var entries []ArtifactSet
	for rows.Next() {
		var (
			sourceURL  string
			stemsJSON  string
			createdRaw string
		)
		if err := rows.Scan(&sourceURL, &stemsJSON, &createdRaw); err != nil {
			return nil, err
		}
		stems := make(map[string]string)
		if err := json.Unmarshal([]byte(stemsJSON), &stems); err != nil {
			return nil, fmt.Errorf("decode cached stems for %q: %w", sourceURL, err)
		}
		entry := ArtifactSet{SourceURL: sourceURL, Stems: stems}
		if created, err := time.Parse(time.RFC3339Nano, createdRaw); err == nil {
			entry.CreatedAt = created
		}
		entries = append(entries, entry)
	}
	return entries, rows.Err()
}

// Count returns the number of cached URLs.
func (s *Store) Count(ctx context.Context) (int, error) {
	var count int
	row := s.db.QueryRowContext(ctx, `SELECT COUNT(1) FROM stems`)
	if err := row.Scan(&count); err != nil {
		return 0, services.Wrap(services.ErrStorageUnavailable, "stemcache", "count", "", err)
	}
	return count, nil
}

// Clear removes every cached entry.
func (s *Store) Clear(ctx context.Context) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM stems`)
	if err != nil {
		return 0, services.Wrap(services.ErrStorageUnavailable, "stemcache", "clear", "", err)
	}
	return res.RowsAffected()
}
