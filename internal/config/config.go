package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/pelletier/go-toml/v2"
)

//go:embed sample_config.toml
var sampleConfig string

// Paths contains directory configuration.
type Paths struct {
	WorkDir   string `toml:"work_dir"`
	OutputDir string `toml:"output_dir"`
	LogDir    string `toml:"log_dir"`
}

// Engines configures the external tools the pipeline shells out to.
type Engines struct {
	YtDlpBinary     string `toml:"ytdlp_binary"`
	DemucsBinary    string `toml:"demucs_binary"`
	DemucsModel     string `toml:"demucs_model"`
	FFmpegBinary    string `toml:"ffmpeg_binary"`
	WhisperBinary   string `toml:"whisper_binary"`
	WhisperModel    string `toml:"whisper_model"`
	DownloadTimeout int    `toml:"download_timeout"`
	SeparateTimeout int    `toml:"separate_timeout"`
	ConvertTimeout  int    `toml:"convert_timeout"`
}

// Storage configures the durable job and cache databases.
type Storage struct {
	JobDBPath         string `toml:"job_db_path"`
	CacheDBPath       string `toml:"cache_db_path"`
	ConnectAttempts   int    `toml:"connect_attempts"`
	ConnectDelayMilli int    `toml:"connect_delay_ms"`
}

// Pipeline configures orchestration behavior.
type Pipeline struct {
	NativeFormat         string `toml:"native_format"`
	DefaultOutputFormat  string `toml:"default_output_format"`
	Captions             bool   `toml:"captions"`
	StaleJobTimeout      int    `toml:"stale_job_timeout"`
	ReconcileInterval    int    `toml:"reconcile_interval"`
	QueuePollInterval    int    `toml:"queue_poll_interval"`
	ErrorRetryInterval   int    `toml:"error_retry_interval"`
	ArtifactCacheMaxGiB  int    `toml:"artifact_cache_max_gib"`
	ArtifactCachePruning bool   `toml:"artifact_cache_pruning"`
}

// Logging contains configuration for log output.
type Logging struct {
	Format string `toml:"format"`
	Level  string `toml:"level"`
}

// Config encapsulates all configuration values for jamsplitter.
//
// Sections by subsystem:
//   - Paths: scratch, artifact output, and log directories
//   - Engines: external tool binaries, models, and per-stage timeouts
//   - Storage: SQLite database locations and connect retry budget
//   - Pipeline: formats, caption generation, reconciler and poll timing
//   - Logging: log format and level
type Config struct {
	Paths    Paths    `toml:"paths"`
	Engines  Engines  `toml:"engines"`
	Storage  Storage  `toml:"storage"`
	Pipeline Pipeline `toml:"pipeline"`
	Logging  Logging  `toml:"logging"`
}

// DefaultConfigPath returns the absolute path to the default configuration file location.
func DefaultConfigPath() (string, error) {
	return expandPath("~/.config/jamsplitter/config.toml")
}

// Load locates, parses, and validates a configuration file. The returned config
// has all path fields expanded and normalized. The second return is the
// resolved path, the third reports whether a file existed there.
func Load(path string) (*Config, string, bool, error) {
	cfg := Default()

	resolvedPath, exists, err := resolveConfigPath(path)
	if err != nil {
		return nil, "", false, err
	}

	if exists {
		file, err := os.Open(resolvedPath)
		if err != nil {
			return nil, "", false, fmt.Errorf("open config: %w", err)
		}
		defer file.Close()

		decoder := toml.NewDecoder(file)
		if err := decoder.Decode(&cfg); err != nil {
			return nil, "", false, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := cfg.normalize(); err != nil {
		return nil, "", false, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, "", false, err
	}

	return &cfg, resolvedPath, exists, nil
}

func resolveConfigPath(path string) (string, bool, error) {
	if path != "" {
		expanded, err := expandPath(path)
		if err != nil {
			return "", false, err
		}
		if _, err := os.Stat(expanded); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return expanded, false, nil
			}
			return "", false, fmt.Errorf("stat config: %w", err)
		}
		return expanded, true, nil
	}

	defaultPath, err := DefaultConfigPath()
	if err != nil {
		return "", false, err
	}
	projectPath, err := filepath.Abs("jamsplitter.toml")
	if err != nil {
		return "", false, err
	}

	if info, err := os.Stat(defaultPath); err == nil && !info.IsDir() {
		return defaultPath, true, nil
	}
	if info, err := os.Stat(projectPath); err == nil && !info.IsDir() {
		return projectPath, true, nil
	}

	return defaultPath, false, nil
}

// EnsureDirectories creates the directories required for operation.
func (c *Config) EnsureDirectories() error {
	for _, dir := range []string{c.Paths.WorkDir, c.Paths.OutputDir, c.Paths.LogDir} {
		if strings.TrimSpace(dir) == "" {
			continue
		}
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %q: %w", dir, err)
		}
	}
	for _, dbPath := range []string{c.Storage.JobDBPath, c.Storage.CacheDBPath} {
		if strings.TrimSpace(dbPath) == "" {
			continue
		}
		if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
			return fmt.Errorf("create database directory for %q: %w", dbPath, err)
		}
	}
	return nil
}

// CreateSample writes a sample configuration file to the specified location.
func CreateSample(path string) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create config directory: %w", err)
		}
	}
	if err := os.WriteFile(path, []byte(sampleConfig), 0o644); err != nil {
		return fmt.Errorf("write sample config: %w", err)
	}
	return nil
}

func expandPath(pathValue string) (string, error) {
	if pathValue == "" {
		return pathValue, nil
	}
	if strings.HasPrefix(pathValue, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		if pathValue == "~" {
			pathValue = home
		} else if len(pathValue) > 1 && (pathValue[1] == '/' || pathValue[1] == '\\') {
			pathValue = filepath.Join(home, pathValue[2:])
		}
	}
	cleaned := filepath.Clean(pathValue)
	absolute, err := filepath.Abs(cleaned)
	if err != nil {
		return "", fmt.Errorf("resolve absolute path for %q: %w", cleaned, err)
	}
	return absolute, nil
}

// ExpandPath exposes the repository path expansion rules for other packages.
func ExpandPath(pathValue string) (string, error) {
	return expandPath(pathValue)
}
