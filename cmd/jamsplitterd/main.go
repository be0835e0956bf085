package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"jamsplitter/internal/artifacts"
	"jamsplitter/internal/config"
	"jamsplitter/internal/daemon"
	"jamsplitter/internal/logging"
	"jamsplitter/internal/pipeline"
	"jamsplitter/internal/preflight"
	"jamsplitter/internal/queue"
	"jamsplitter/internal/services/demucs"
	"jamsplitter/internal/services/ffmpeg"
	"jamsplitter/internal/services/whisper"
	"jamsplitter/internal/services/ytdlp"
	"jamsplitter/internal/stemcache"
)

func main() {
	configPath := flag.String("config", "", "Configuration file path")
	flag.Parse()

	if err := run(*configPath); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run(configPath string) error {
	signalCtx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	cfg, _, _, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if err := cfg.EnsureDirectories(); err != nil {
		return fmt.Errorf("ensure directories: %w", err)
	}

	logger, err := logging.NewFromConfig(cfg)
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}

	for _, result := range preflight.RunAll(signalCtx, cfg) {
		if result.Passed {
			logger.Info("preflight check passed",
				logging.String("check", result.Name),
				logging.String("detail", result.Detail))
			continue
		}
		logger.Warn("preflight check failed",
			logging.String("check", result.Name),
			logging.String("detail", result.Detail))
	}

	policy := retryPolicy(cfg)
	store, err := queue.Open(cfg.Storage.JobDBPath, policy)
	if err != nil {
		return fmt.Errorf("open job store: %w", err)
	}
	defer store.Close()

	cache, err := stemcache.Open(cfg.Storage.CacheDBPath, policy)
	if err != nil {
		return fmt.Errorf("open stem cache: %w", err)
	}
	defer cache.Close()

	orch := pipeline.NewOrchestrator(cfg, store, cache, artifacts.NewManager(cfg, logger), buildEngines(cfg), logger)

	d, err := daemon.New(cfg, store, orch, logger)
	if err != nil {
		return fmt.Errorf("create daemon: %w", err)
	}
	defer d.Close()

	if err := d.Start(signalCtx); err != nil {
		return fmt.Errorf("start daemon: %w", err)
	}

	logger.Info("jamsplitter daemon started",
		logging.String("job_db", store.Path()),
		logging.String("cache_db", cache.Path()))

	<-signalCtx.Done()
	logger.Info("jamsplitter daemon shutting down")
	return nil
}

func retryPolicy(cfg *config.Config) queue.RetryPolicy {
	policy := queue.DefaultRetryPolicy()
	if cfg.Storage.ConnectAttempts > 0 {
		policy.Attempts = cfg.Storage.ConnectAttempts
	}
	if cfg.Storage.ConnectDelayMilli > 0 {
		policy.Delay = time.Duration(cfg.Storage.ConnectDelayMilli) * time.Millisecond
	}
	return policy
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
