package artifacts

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"syscall"
	"time"

	"log/slog"

	"jamsplitter/internal/config"
	"jamsplitter/internal/logging"
)

const (
	// freeSpaceFloor is the minimum free-space ratio we allow before pruning (e.g., 0.20 => 80% full).
	freeSpaceFloor = 0.20
)

// statfsFunc allows tests to stub filesystem stats.
type statfsFunc func(path string) (total uint64, free uint64, err error)

// Manager places completed stem files and prunes old job directories.
type Manager struct {
	root     string
	maxBytes int64
	pruning  bool
	logger   *slog.Logger
	statfs   statfsFunc
}

// Stats describes current output-root usage.
type Stats struct {
	Entries        int            `json:"entries"`
	TotalBytes     int64          `json:"total_bytes"`
	MaxBytes       int64          `json:"max_bytes"`
	FreeBytes      uint64         `json:"free_bytes"`
	TotalFSBytes   uint64         `json:"total_fs_bytes"`
	FreeRatio      float64        `json:"free_ratio"`
	EntrySummaries []EntrySummary `json:"entry_summaries"`
}

// EntrySummary surfaces human-friendly details about a job's output directory
// so the CLI can show which jobs currently hold artifacts.
type EntrySummary struct {
	Directory   string    `json:"directory"`
	SizeBytes   int64     `json:"size_bytes"`
	ModifiedAt  time.Time `json:"modified_at"`
	PrimaryStem string    `json:"primary_stem"`
	StemCount   int       `json:"stem_count"`
}

// NewManager builds an artifact manager rooted at the configured output
// directory. Returns nil when the output directory is unset.
func NewManager(cfg *config.Config, logger *slog.Logger) *Manager {
	if cfg == nil {
		return nil
	}
	root := strings.TrimSpace(cfg.Paths.OutputDir)
	if root == "" {
		return nil
	}
	manager := &Manager{
		root:     root,
		maxBytes: int64(cfg.Pipeline.ArtifactCacheMaxGiB) * 1024 * 1024 * 1024,
		pruning:  cfg.Pipeline.ArtifactCachePruning && cfg.Pipeline.ArtifactCacheMaxGiB > 0,
		statfs:   realStatfs,
	}
	manager.SetLogger(logger)
	return manager
}

// SetLogger refreshes the manager's logging destination.
func (m *Manager) SetLogger(logger *slog.Logger) {
	if m == nil {
		return
	}
	m.logger = logging.NewComponentLogger(logger, "artifacts")
}

// Root returns the output root directory.
func (m *Manager) Root() string {
	if m == nil {
		return ""
	}
	return m.root
}

// JobDir returns the output directory for a job.
func (m *Manager) JobDir(jobID string) string {
	if m == nil {
		return ""
	}
	return filepath.Join(m.root, sanitize(jobID))
}

// Place copies stem files into the job's output directory and returns the
// final path for each stem. Any existing directory for the job is replaced.
// Pruning runs afterwards with the new entry protected.
func (m *Manager) Place(ctx context.Context, jobID string, stems map[string]string) (map[string]string, error) {
	if m == nil {
		return nil, errors.New("artifacts: manager not configured")
	}
	if strings.TrimSpace(jobID) == "" {
		return nil, errors.New("artifacts: empty job id")
	}
	if len(stems) == 0 {
		return nil, errors.New("artifacts: no stems to place")
	}

	dest := m.JobDir(jobID)
	if err := os.RemoveAll(dest); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("artifacts: remove existing entry: %w", err)
	}
	if err := os.MkdirAll(dest, 0o755); err != nil {
		return nil, fmt.Errorf("artifacts: create job dir: %w", err)
	}

	placed := make(map[string]string, len(stems))
	for name, src := range stems {
		info, err := os.Stat(src)
		if err != nil {
			return nil, fmt.Errorf("artifacts: inspect stem %q: %w", name, err)
		}
		target := filepath.Join(dest, fmt.Sprintf("%s_%s%s", sanitize(jobID), sanitize(name), filepath.Ext(src)))
		if err := copyFile(src, target, info.Mode()); err != nil {
			return nil, fmt.Errorf("artifacts: copy stem %q: %w", name, err)
		}
		placed[name] = target
	}
	now := time.Now()
	_ = os.Chtimes(dest, now, now)

	if err := m.prune(ctx, dest); err != nil {
		return nil, fmt.Errorf("artifacts: prune after place: %w", err)
	}
	m.logger.InfoContext(ctx, "placed job artifacts",
		logging.String("output_dir", dest),
		logging.Int("stem_count", len(placed)),
	)
	return placed, nil
}

// Remove deletes the output directory for a job.
func (m *Manager) Remove(ctx context.Context, jobID string) error {
	if m == nil {
		return nil
	}
	dir := m.JobDir(jobID)
	if err := os.RemoveAll(dir); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("artifacts: remove %q: %w", dir, err)
	}
	m.logger.InfoContext(ctx, "removed job artifacts", logging.String("output_dir", dir))
	return nil
}

// Prune removes entries based on size and free-space thresholds.
// keepPath, when provided, will not be deleted unless it is the sole entry and
// free-space constraints cannot be satisfied.
func (m *Manager) Prune(ctx context.Context, keepPath string) error {
	return m.prune(ctx, keepPath)
}

// Stats returns current output-root usage and filesystem free-space info.
func (m *Manager) Stats(ctx context.Context) (Stats, error) {
	var s Stats
	if m == nil {
		return s, nil
	}
	entries, totalSize, err := m.scan()
	if err != nil {
		return s, err
	}
	totalFS, freeFS, err := m.statfs(m.root)
	if err != nil {
		return s, fmt.Errorf("artifacts: statfs: %w", err)
	}
	ratio := 1.0
	if totalFS > 0 {
		ratio = float64(freeFS) / float64(totalFS)
	}
	details := make([]EntrySummary, 0, len(entries))
	for i := len(entries) - 1; i >= 0; i-- {
		entry := entries[i]
		details = append(details, EntrySummary{
			Directory:   entry.path,
			SizeBytes:   entry.sizeBytes,
			ModifiedAt:  entry.modTime,
			PrimaryStem: entry.primary,
			StemCount:   entry.stemCount,
		})
	}
	s = Stats{
		Entries:        len(entries),
		TotalBytes:     totalSize,
		MaxBytes:       m.maxBytes,
		FreeBytes:      freeFS,
		TotalFSBytes:   totalFS,
		FreeRatio:      ratio,
		EntrySummaries: details,
	}
	if len(entries) == 0 {
		m.logger.InfoContext(ctx, "output root empty")
	}
	return s, nil
}

// prune removes the oldest job directories until both size and free-space
// thresholds are satisfied. No-op when pruning is disabled.
func (m *Manager) prune(ctx context.Context, keepPath string) error {
	if !m.pruning {
		return nil
	}
	entries, totalSize, err := m.scan()
	if err != nil {
		return err
	}

	for len(entries) > 0 {
		freeOK, err := m.freeSpaceOK()
		if err != nil {
			return err
		}
		if totalSize <= m.maxBytes && freeOK {
			return nil
		}
		oldest := entries[0]
		if samePath(oldest.path, keepPath) && len(entries) == 1 {
			// Only the active entry exists; cannot prune further.
			return fmt.Errorf("artifacts: output root over limits and active entry %q cannot be pruned", keepPath)
		}
		if samePath(oldest.path, keepPath) {
			entries = entries[1:]
			continue
		}
		if err := os.RemoveAll(oldest.path); err != nil && !errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("artifacts: remove %q: %w", oldest.path, err)
		}
		m.logger.InfoContext(ctx, "pruned job artifacts",
			logging.String("output_dir", oldest.path),
			logging.Int64("entry_size_bytes", oldest.sizeBytes),
		)
		totalSize -= oldest.sizeBytes
		entries = entries[1:]
	}
	return nil
}

type outputEntry struct {
	path      string
	sizeBytes int64
	modTime   time.Time
	primary   string
	stemCount int
}

func (m *Manager) scan() ([]outputEntry, int64, error) {
	entries := make([]outputEntry, 0)
	var total int64
	rootEntries, err := os.ReadDir(m.root)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return entries, 0, nil
		}
		return nil, 0, fmt.Errorf("artifacts: list root: %w", err)
	}
	for _, entry := range rootEntries {
		if !entry.IsDir() {
			continue
		}
		path := filepath.Join(m.root, entry.Name())
		size, mtime, err := dirSizeAndTime(path)
		if err != nil {
			m.logger.Warn("artifacts: skip entry; excluded from stats and pruning",
				logging.String("output_dir", path),
				logging.Error(err),
				logging.String(logging.FieldEventType, "artifact_entry_skipped"),
				logging.String(logging.FieldErrorHint, "inspect output directory permissions or remove the corrupted entry"),
			)
			continue
		}
		primary, count := identifyPrimaryStem(path)
		total += size
		entries = append(entries, outputEntry{path: path, sizeBytes: size, modTime: mtime, primary: primary, stemCount: count})
	}
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].modTime.Before(entries[j].modTime)
	})
	return entries, total, nil
}

var audioExtensions = map[string]struct{}{
	".wav":  {},
	".mp3":  {},
	".flac": {},
	".ogg":  {},
	".m4a":  {},
}

func identifyPrimaryStem(dir string) (string, int) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return "", 0
	}
	type candidate struct {
		name string
		size int64
	}
	files := make([]candidate, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		ext := strings.ToLower(filepath.Ext(entry.Name()))
		if _, ok := audioExtensions[ext]; !ok {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		files = append(files, candidate{name: entry.Name(), size: info.Size()})
	}
	if len(files) == 0 {
		return "", 0
	}
	sort.Slice(files, func(i, j int) bool {
		if files[i].size == files[j].size {
			return files[i].name < files[j].name
		}
		return files[i].size > files[j].size
	})
	return files[0].name, len(files)
}

func (m *Manager) freeSpaceOK() (bool, error) {
	total, free, err := m.statfs(m.root)
	if err != nil {
		return false, fmt.Errorf("artifacts: statfs: %w", err)
	}
	if total == 0 {
		return true, nil
	}
	ratio := float64(free) / float64(total)
	return ratio >= freeSpaceFloor, nil
}

func samePath(a, b string) bool {
	if strings.TrimSpace(a) == "" || strings.TrimSpace(b) == "" {
		return false
	}
	ra, errA := filepath.EvalSymlinks(a)
	rb, errB := filepath.EvalSymlinks(b)
	if errA == nil {
		a = ra
	}
	if errB == nil {
		b = rb
	}
	return a == b
}

func dirSizeAndTime(path string) (int64, time.Time, error) {
	var (
		size    int64
		latest  time.Time
		visited = false
	)
	err := filepath.WalkDir(path, func(p string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		visited = true
		if !info.IsDir() {
			size += info.Size()
		}
		if info.ModTime().After(latest) {
			latest = info.ModTime()
		}
		return nil
	})
	if err != nil {
		return 0, time.Time{}, err
	}
	if !visited {
		return 0, time.Time{}, errors.New("empty output entry")
	}
	return size, latest, nil
}

func copyFile(src, dst string, mode os.FileMode) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.OpenFile(dst, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, mode)
	if err != nil {
		return err
	}
	defer out.Close()

	if _, err := io.Copy(out, in); err != nil {
		return err
	}
	return out.Close()
}

func sanitize(value string) string {
	value = strings.TrimSpace(value)
	if value == "" {
		return ""
	}
	replacer := strings.NewReplacer(
		"/", "-",
		"\\", "-",
		" ", "-",
		":", "-",
		"*", "",
		"?", "",
		"\"", "",
		"<", "",
		">", "",
		"|", "",
	)
	value = replacer.Replace(value)
	value = strings.Trim(value, "-_.")
	if value == "" {
		return "job"
	}
	return value
}

func realStatfs(path string) (uint64, uint64, error) {
	var stat syscall.Statfs_t
	if err := syscall.Statfs(path, &stat); err != nil {
		return 0, 0, err
	}
	total := stat.Blocks * uint64(stat.Bsize)
	free := stat.Bavail * uint64(stat.Bsize)
	return total, free, nil
}
