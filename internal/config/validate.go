package config

import (
	"errors"
	"fmt"
)

// OutputFormats lists the codecs the converter stage accepts.
var OutputFormats = []string{"wav", "mp3", "flac", "ogg", "m4a"}

// ValidOutputFormat reports whether the requested output format is supported.
func ValidOutputFormat(format string) bool {
	for _, known := range OutputFormats {
		if format == known {
			return true
		}
	}
	return false
}

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validatePaths(); err != nil {
		return err
	}
	if err := c.validateEngines(); err != nil {
		return err
	}
	if err := c.validateStorage(); err != nil {
		return err
	}
	return c.validatePipeline()
}

func (c *Config) validatePaths() error {
	if c.Paths.WorkDir == "" {
		return errors.New("paths.work_dir must be set")
	}
	if c.Paths.OutputDir == "" {
		return errors.New("paths.output_dir must be set")
	}
	return nil
}

func (c *Config) validateEngines() error {
	if c.Engines.YtDlpBinary == "" {
		return errors.New("engines.ytdlp_binary must be set")
	}
	if c.Engines.DemucsBinary == "" {
		return errors.New("engines.demucs_binary must be set")
	}
	if c.Engines.FFmpegBinary == "" {
		return errors.New("engines.ffmpeg_binary must be set")
	}
	return ensurePositiveMap(map[string]int{
		"engines.download_timeout": c.Engines.DownloadTimeout,
		"engines.separate_timeout": c.Engines.SeparateTimeout,
		"engines.convert_timeout":  c.Engines.ConvertTimeout,
	})
}

func (c *Config) validateStorage() error {
	if c.Storage.JobDBPath == "" {
		return errors.New("storage.job_db_path must be set")
	}
	if c.Storage.CacheDBPath == "" {
		return errors.New("storage.cache_db_path must be set")
	}
	return ensurePositiveMap(map[string]int{
		"storage.connect_attempts": c.Storage.ConnectAttempts,
		"storage.connect_delay_ms": c.Storage.ConnectDelayMilli,
	})
}

func (c *Config) validatePipeline() error {
	if !ValidOutputFormat(c.Pipeline.NativeFormat) {
		return fmt.Errorf("pipeline.native_format: unsupported format %q", c.Pipeline.NativeFormat)
	}
	if !ValidOutputFormat(c.Pipeline.DefaultOutputFormat) {
		return fmt.Errorf("pipeline.default_output_format: unsupported format %q", c.Pipeline.DefaultOutputFormat)
	}
	return ensurePositiveMap(map[string]int{
		"pipeline.stale_job_timeout":    c.Pipeline.StaleJobTimeout,
		"pipeline.reconcile_interval":   c.Pipeline.ReconcileInterval,
		"pipeline.queue_poll_interval":  c.Pipeline.QueuePollInterval,
		"pipeline.error_retry_interval": c.Pipeline.ErrorRetryInterval,
	})
}

func ensurePositiveMap(values map[string]int) error {
	for name, value := range values {
		if value <= 0 {
			return fmt.Errorf("%s must be greater than zero", name)
		}
	}
	return nil
}
