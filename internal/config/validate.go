package config

import (
	"fmt"
	"net/url"
	"strings"
)

// Validate checks the configuration for invalid values.
func Validate(cfg *Config) error {
	if cfg.Feed.URL != "" {
		if err := ValidateURL(cfg.Feed.URL); err != nil {
			return fmt.Errorf("feed.url: %w", err)
		}
	}

	if cfg.Fetcher.Type != "http" && cfg.Fetcher.Type != "browser" {
		return fmt.Errorf("fetcher.type must be 'http' or 'browser', got %q", cfg.Fetcher.Type)
	}
	if cfg.Fetcher.Timeout <= 0 {
		return fmt.Errorf("fetcher.timeout must be > 0")
	}
	if cfg.Fetcher.MaxRetries < 1 {
		return fmt.Errorf("fetcher.max_retries must be >= 1, got %d", cfg.Fetcher.MaxRetries)
	}
	if cfg.Fetcher.BackoffFactor < 0 {
		return fmt.Errorf("fetcher.backoff_factor must be >= 0, got %v", cfg.Fetcher.BackoffFactor)
	}
	for _, status := range cfg.Fetcher.NonRetryableStatuses {
		if status < 100 || status > 599 {
			return fmt.Errorf("fetcher.non_retryable_statuses: %d is not an HTTP status", status)
		}
	}
	if cfg.Fetcher.MaxBodySize <= 0 {
		return fmt.Errorf("fetcher.max_body_size must be > 0")
	}
	if cfg.Fetcher.MaxRedirects < 0 {
		return fmt.Errorf("fetcher.max_redirects must be >= 0")
	}
	if cfg.Fetcher.Type == "browser" && cfg.Fetcher.Browser.PoolSize < 1 {
		return fmt.Errorf("fetcher.browser.pool_size must be >= 1, got %d", cfg.Fetcher.Browser.PoolSize)
	}

	if cfg.Proxy.Enabled {
		if cfg.Proxy.Rotation != "round_robin" && cfg.Proxy.Rotation != "random" {
			return fmt.Errorf("proxy.rotation must be 'round_robin' or 'random', got %q", cfg.Proxy.Rotation)
		}
		for _, proxyURL := range cfg.Proxy.URLs {
			if _, err := url.Parse(proxyURL); err != nil {
				return fmt.Errorf("invalid proxy URL %q: %w", proxyURL, err)
			}
		}
	}

	if cfg.Engine.Concurrency < 1 {
		return fmt.Errorf("engine.concurrency must be >= 1, got %d", cfg.Engine.Concurrency)
	}
	if cfg.Engine.Concurrency > 256 {
		return fmt.Errorf("engine.concurrency must be <= 256, got %d", cfg.Engine.Concurrency)
	}
	if cfg.Engine.RequestsPerSecond < 0 {
		return fmt.Errorf("engine.requests_per_second must be >= 0")
	}

	validProviders := map[string]bool{"google": true, "openai": true, "ollama": true}
	for _, p := range cfg.Translate.Providers {
		if !validProviders[p] {
			return fmt.Errorf("translate.providers: unknown provider %q (valid: google, openai, ollama)", p)
		}
	}
	if cfg.Translate.Retries < 0 {
		return fmt.Errorf("translate.retries must be >= 0, got %d", cfg.Translate.Retries)
	}
	if cfg.Translate.BackoffBase < 0 {
		return fmt.Errorf("translate.backoff_base must be >= 0")
	}
	if cfg.Translate.TargetLanguage == "" {
		return fmt.Errorf("translate.target_language must not be empty")
	}

	validStorageTypes := map[string]bool{
		"json": true, "jsonl": true, "csv": true, "mongodb": true,
	}
	for _, st := range strings.Split(cfg.Storage.Type, ",") {
		st = strings.TrimSpace(st)
		if !validStorageTypes[st] {
			return fmt.Errorf("storage.type %q is not supported (valid: json, jsonl, csv, mongodb)", st)
		}
		if st == "mongodb" && cfg.Storage.Mongo.URI == "" {
			return fmt.Errorf("storage.mongo.uri is required for the mongodb backend")
		}
	}

	validLogLevels := map[string]bool{
		"debug": true, "info": true, "warn": true, "error": true,
	}
	if !validLogLevels[cfg.Logging.Level] {
		return fmt.Errorf("logging.level must be debug/info/warn/error, got %q", cfg.Logging.Level)
	}
	if cfg.Logging.Format != "text" && cfg.Logging.Format != "json" {
		return fmt.Errorf("logging.format must be 'text' or 'json', got %q", cfg.Logging.Format)
	}

	if cfg.Metrics.Enabled {
		if cfg.Metrics.Port < 1 || cfg.Metrics.Port > 65535 {
			return fmt.Errorf("metrics.port must be 1-65535, got %d", cfg.Metrics.Port)
		}
	}

	if cfg.API.Port < 1 || cfg.API.Port > 65535 {
		return fmt.Errorf("api.port must be 1-65535, got %d", cfg.API.Port)
	}
	if cfg.API.MaxJobPages < 1 {
		return fmt.Errorf("api.max_job_pages must be >= 1, got %d", cfg.API.MaxJobPages)
	}

	return nil
}

// ValidateURL checks if a URL string is an absolute http(s) URL.
func ValidateURL(rawURL string) error {
	u, err := url.Parse(rawURL)
	if err != nil {
		return fmt.Errorf("invalid URL: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("URL scheme must be http or https, got %q", u.Scheme)
	}
	if u.Host == "" {
		return fmt.Errorf("URL must have a host")
	}
	return nil
}
