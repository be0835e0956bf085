package config

import (
	"fmt"
	"strings"
)

func (c *Config) normalize() error {
	if err := c.normalizePaths(); err != nil {
		return err
	}
	c.normalizeEngines()
	c.normalizeFormats()
	c.normalizeLogging()
	return nil
}

func (c *Config) normalizePaths() error {
	var err error
	if c.Paths.WorkDir, err = expandPath(c.Paths.WorkDir); err != nil {
		return fmt.Errorf("paths.work_dir: %w", err)
	}
	if c.Paths.OutputDir, err = expandPath(c.Paths.OutputDir); err != nil {
		return fmt.Errorf("paths.output_dir: %w", err)
	}
	if c.Paths.LogDir, err = expandPath(c.Paths.LogDir); err != nil {
		return fmt.Errorf("paths.log_dir: %w", err)
	}
	if c.Storage.JobDBPath, err = expandPath(c.Storage.JobDBPath); err != nil {
		return fmt.Errorf("storage.job_db_path: %w", err)
	}
	if c.Storage.CacheDBPath, err = expandPath(c.Storage.CacheDBPath); err != nil {
		return fmt.Errorf("storage.cache_db_path: %w", err)
	}
	return nil
}

func (c *Config) normalizeEngines() {
	c.Engines.YtDlpBinary = strings.TrimSpace(c.Engines.YtDlpBinary)
	c.Engines.DemucsBinary = strings.TrimSpace(c.Engines.DemucsBinary)
	c.Engines.DemucsModel = strings.TrimSpace(c.Engines.DemucsModel)
	c.Engines.FFmpegBinary = strings.TrimSpace(c.Engines.FFmpegBinary)
	c.Engines.WhisperBinary = strings.TrimSpace(c.Engines.WhisperBinary)
	c.Engines.WhisperModel = strings.TrimSpace(c.Engines.WhisperModel)
}

func (c *Config) normalizeFormats() {
	c.Pipeline.NativeFormat = strings.ToLower(strings.TrimSpace(c.Pipeline.NativeFormat))
	c.Pipeline.DefaultOutputFormat = strings.ToLower(strings.TrimSpace(c.Pipeline.DefaultOutputFormat))
}

func (c *Config) normalizeLogging() {
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	if c.Logging.Format == "" {
		c.Logging.Format = defaultLogFormat
	}
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	if c.Logging.Level == "" {
		c.Logging.Level = defaultLogLevel
	}
}
