package config

import (
	"fmt"
	"os"
	"strings"
)

func (c *Config) normalize() error {
	if err := c.normalizePaths(); err != nil {
		return err
	}
	c.normalizeEngine()
	c.normalizeDownloader()
	c.normalizeRunner()
	c.normalizeLogging()
	return nil
}

func (c *Config) normalizePaths() error {
	if value, ok := os.LookupEnv("CCGEN_API_BIND"); ok && strings.TrimSpace(value) != "" {
		c.Paths.APIBind = value
	}
	var err error
	if c.Paths.UploadsDir, err = expandPath(orDefault(c.Paths.UploadsDir, defaultUploadsDir)); err != nil {
		return fmt.Errorf("paths.uploads_dir: %w", err)
	}
	if c.Paths.ModelsDir, err = expandPath(orDefault(c.Paths.ModelsDir, defaultModelsDir)); err != nil {
		return fmt.Errorf("paths.models_dir: %w", err)
	}
	if c.Paths.LogDir, err = expandPath(c.Paths.LogDir); err != nil {
		return fmt.Errorf("paths.log_dir: %w", err)
	}
	c.Paths.APIBind = orDefault(c.Paths.APIBind, defaultAPIBind)
	return nil
}

func (c *Config) normalizeEngine() {
	c.Engine.Command = strings.TrimSpace(c.Engine.Command)
	c.Engine.OutputFormat = strings.ToLower(orDefault(c.Engine.OutputFormat, defaultEngineOutput))
	c.Engine.Language = strings.ToLower(strings.TrimSpace(c.Engine.Language))
	args := c.Engine.ExtraArgs[:0]
	for _, arg := range c.Engine.ExtraArgs {
		if trimmed := strings.TrimSpace(arg); trimmed != "" {
			args = append(args, trimmed)
		}
	}
	c.Engine.ExtraArgs = args
}

func (c *Config) normalizeDownloader() {
	c.Downloader.Command = orDefault(c.Downloader.Command, defaultDownloaderCmd)
	if c.Downloader.TimeoutSeconds <= 0 {
		c.Downloader.TimeoutSeconds = defaultDownloadTimeout
	}
	if c.Downloader.HFToken == "" {
		for _, key := range []string{"HF_TOKEN", "HUGGING_FACE_HUB_TOKEN"} {
			if value, ok := os.LookupEnv(key); ok && strings.TrimSpace(value) != "" {
				c.Downloader.HFToken = strings.TrimSpace(value)
				break
			}
		}
	}
}

func (c *Config) normalizeRunner() {
	c.Runner.DefaultModel = orDefault(c.Runner.DefaultModel, defaultModel)
	if c.Runner.CleanupDelayMS < 0 {
		c.Runner.CleanupDelayMS = 0
	}
}

func (c *Config) normalizeLogging() {
	c.Logging.Format = strings.ToLower(orDefault(c.Logging.Format, defaultLogFormat))
	c.Logging.Level = strings.ToLower(orDefault(c.Logging.Level, defaultLogLevel))
}

func orDefault(value, fallback string) string {
	if trimmed := strings.TrimSpace(value); trimmed != "" {
		return trimmed
	}
	return fallback
}
