package main

import (
	"strings"
	"sync"
	"time"

	"jamsplitter/internal/artifacts"
	"jamsplitter/internal/config"
	"jamsplitter/internal/logging"
	"jamsplitter/internal/pipeline"
	"jamsplitter/internal/queue"
	"jamsplitter/internal/services/demucs"
	"jamsplitter/internal/services/ffmpeg"
	"jamsplitter/internal/services/whisper"
	"jamsplitter/internal/services/ytdlp"
	"jamsplitter/internal/stemcache"
)

type commandContext struct {
	configFlag *string

	configOnce sync.Once
	config     *config.Config
	configErr  error
}

func newCommandContext(configFlag *string) *commandContext {
	return &commandContext{configFlag: configFlag}
}

func (c *commandContext) ensureConfig() (*config.Config, error) {
	c.configOnce.Do(func() {
		var path string
		if c.configFlag != nil {
			path = strings.TrimSpace(*c.configFlag)
		}
		cfg, _, _, err := config.Load(path)
		if err != nil {
			c.configErr = err
			return
		}
		if err := cfg.EnsureDirectories(); err != nil {
			c.configErr = err
			return
		}
		c.config = cfg
	})
	return c.config, c.configErr
}

func (c *commandContext) configValue() *config.Config {
	cfg, _ := c.ensureConfig()
	return cfg
}

func (c *commandContext) retryPolicy() queue.RetryPolicy {
	cfg := c.configValue()
	policy := queue.DefaultRetryPolicy()
	if cfg == nil {
		return policy
	}
	if cfg.Storage.ConnectAttempts > 0 {
		policy.Attempts = cfg.Storage.ConnectAttempts
	}
	if cfg.Storage.ConnectDelayMilli > 0 {
		policy.Delay = time.Duration(cfg.Storage.ConnectDelayMilli) * time.Millisecond
	}
	return policy
}

// withStores opens the job and cache databases, runs fn, and closes them.
func (c *commandContext) withStores(fn func(cfg *config.Config, store *queue.Store, cache *stemcache.Store) error) error {
	cfg, err := c.ensureConfig()
	if err != nil {
		return err
	}
	store, err := queue.Open(cfg.Storage.JobDBPath, c.retryPolicy())
	if err != nil {
		return err
	}
	defer store.Close()

	cache, err := stemcache.Open(cfg.Storage.CacheDBPath, c.retryPolicy())
	if err != nil {
		return err
	}
	defer cache.Close()

	return fn(cfg, store, cache)
}

// withOrchestrator wires the real engines and runs fn with a ready
// orchestrator.
func (c *commandContext) withOrchestrator(fn func(cfg *config.Config, store *queue.Store, orch *pipeline.Orchestrator) error) error {
	return c.withStores(func(cfg *config.Config, store *queue.Store, cache *stemcache.Store) error {
		logger, err := logging.NewFromConfig(cfg)
		if err != nil {
			logger = logging.NewNop()
		}
		orch := pipeline.NewOrchestrator(cfg, store, cache, artifacts.NewManager(cfg, logger), buildEngines(cfg), logger)
		return fn(cfg, store, orch)
	})
}

func buildEngines(cfg *config.Config) pipeline.Engines {
	engines := pipeline.Engines{
		Downloader: ytdlp.NewService(cfg),
		Separator:  demucs.NewService(cfg),
		Converter:  ffmpeg.NewService(cfg),
	}
	if cfg.Pipeline.Captions {
		engines.Transcriber = whisper.NewService(cfg)
	}
	return engines
}
