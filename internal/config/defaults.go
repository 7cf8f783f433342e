package config

const (
	defaultConfigPath = "~/.config/ccgen/config.toml"
	defaultUploadsDir = "~/.local/share/ccgen/uploads"
	defaultModelsDir  = "~/.local/share/ccgen/models"
	defaultLogDir     = "~/.local/share/ccgen/logs"
	defaultAPIBind    = "127.0.0.1:8000"

	defaultEngineCommand   = "mlx_whisper"
	defaultEngineOutput    = "json"
	defaultDownloaderCmd   = "hf"
	defaultDownloadTimeout = 3600
	defaultMaxChars        = 42
	defaultMaxWords        = 8
	defaultPauseThreshold  = 0.5
	defaultMaxConcurrent   = 2
	defaultCleanupDelayMS  = 1000
	defaultModel           = "large-v3-turbo"
	defaultPollIntervalMS  = 500
	minPollIntervalMS      = 10
	defaultLogFormat       = "console"
	defaultLogLevel        = "info"
)

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			UploadsDir: defaultUploadsDir,
			ModelsDir:  defaultModelsDir,
			LogDir:     defaultLogDir,
			APIBind:    defaultAPIBind,
		},
		Engine: Engine{
			Command:      defaultEngineCommand,
			OutputFormat: defaultEngineOutput,
		},
		Downloader: Downloader{
			Command:        defaultDownloaderCmd,
			TimeoutSeconds: defaultDownloadTimeout,
		},
		Captions: Captions{
			MaxChars:              defaultMaxChars,
			MaxWords:              defaultMaxWords,
			PauseThresholdSeconds: defaultPauseThreshold,
		},
		Runner: Runner{
			MaxConcurrent:  defaultMaxConcurrent,
			CleanupDelayMS: defaultCleanupDelayMS,
			DefaultModel:   defaultModel,
		},
		Progress: Progress{PollIntervalMS: defaultPollIntervalMS},
		Logging: Logging{
			Format: defaultLogFormat,
			Level:  defaultLogLevel,
		},
		Metrics: Metrics{Enabled: true},
	}
}
