package config

const (
	defaultWorkDir           = "~/.local/share/jamsplitter/work"
	defaultOutputDir         = "~/.local/share/jamsplitter/stems"
	defaultLogDir            = "~/.local/share/jamsplitter/logs"
	defaultJobDBPath         = "~/.local/share/jamsplitter/jobs.db"
	defaultCacheDBPath       = "~/.local/share/jamsplitter/cache.db"
	defaultYtDlpBinary       = "yt-dlp"
	defaultDemucsBinary      = "demucs"
	defaultDemucsModel       = "htdemucs"
	defaultFFmpegBinary      = "ffmpeg"
	defaultWhisperBinary     = "whisper"
	defaultWhisperModel      = "base"
	defaultDownloadTimeout   = 600
	defaultSeparateTimeout   = 1800
	defaultConvertTimeout    = 300
	defaultConnectAttempts   = 3
	defaultConnectDelayMilli = 2000
	defaultNativeFormat      = "wav"
	defaultOutputFormat      = "mp3"
	defaultStaleJobTimeout   = 3600
	defaultReconcileInterval = 60
	defaultQueuePoll         = 5
	defaultErrorRetry        = 10
	defaultArtifactMaxGiB    = 20
	defaultLogFormat         = "console"
	defaultLogLevel          = "info"
)

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			WorkDir:   defaultWorkDir,
			OutputDir: defaultOutputDir,
			LogDir:    defaultLogDir,
		},
		Engines: Engines{
			YtDlpBinary:     defaultYtDlpBinary,
			DemucsBinary:    defaultDemucsBinary,
			DemucsModel:     defaultDemucsModel,
			FFmpegBinary:    defaultFFmpegBinary,
			WhisperBinary:   defaultWhisperBinary,
			WhisperModel:    defaultWhisperModel,
			DownloadTimeout: defaultDownloadTimeout,
			SeparateTimeout: defaultSeparateTimeout,
			ConvertTimeout:  defaultConvertTimeout,
		},
		Storage: Storage{
			JobDBPath:         defaultJobDBPath,
			CacheDBPath:       defaultCacheDBPath,
			ConnectAttempts:   defaultConnectAttempts,
			ConnectDelayMilli: defaultConnectDelayMilli,
		},
		Pipeline: Pipeline{
			NativeFormat:         defaultNativeFormat,
			DefaultOutputFormat:  defaultOutputFormat,
			Captions:             false,
			StaleJobTimeout:      defaultStaleJobTimeout,
			ReconcileInterval:    defaultReconcileInterval,
			QueuePollInterval:    defaultQueuePoll,
			ErrorRetryInterval:   defaultErrorRetry,
			ArtifactCacheMaxGiB:  defaultArtifactMaxGiB,
			ArtifactCachePruning: true,
		},
		Logging: Logging{
			Format: defaultLogFormat,
			Level:  defaultLogLevel,
		},
	}
}
