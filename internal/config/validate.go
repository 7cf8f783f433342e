package config

import (
	"errors"
	"fmt"
)

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validateEngine(); err != nil {
		return err
	}
	if err := c.validateCaptions(); err != nil {
		return err
	}
	if err := c.validateRunner(); err != nil {
		return err
	}
	if c.Progress.PollIntervalMS < minPollIntervalMS {
		return fmt.Errorf("progress.poll_interval_ms must be at least %d", minPollIntervalMS)
	}
	if c.Downloader.MinFreeGiB < 0 {
		return errors.New("downloader.min_free_gib must be >= 0")
	}
	return c.validateLogging()
}

func (c *Config) validateEngine() error {
	if c.Engine.Command == "" {
		return errors.New("engine.command must be set")
	}
	switch c.Engine.OutputFormat {
	case "json":
	default:
		return fmt.Errorf("engine.output_format: unsupported value %q (only json carries word timestamps)", c.Engine.OutputFormat)
	}
	return nil
}

func (c *Config) validateCaptions() error {
	if c.Captions.MaxChars <= 0 {
		return errors.New("captions.max_chars must be positive")
	}
	if c.Captions.MaxWords <= 0 {
		return errors.New("captions.max_words must be positive")
	}
	if c.Captions.PauseThresholdSeconds <= 0 {
		return errors.New("captions.pause_threshold_seconds must be positive")
	}
	return nil
}

func (c *Config) validateRunner() error {
	if c.Runner.MaxConcurrent < 1 {
		return errors.New("runner.max_concurrent must be at least 1")
	}
	return nil
}

func (c *Config) validateLogging() error {
	switch c.Logging.Format {
	case "console", "json":
	default:
		return fmt.Errorf("logging.format: unsupported value %q", c.Logging.Format)
	}
	switch c.Logging.Level {
	case "debug", "info", "warn", "warning", "error":
	default:
		return fmt.Errorf("logging.level: unsupported value %q", c.Logging.Level)
	}
	return nil
}
