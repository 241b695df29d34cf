package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// EnvPrefix prefixes every environment override, e.g. ITEMREVIEWED_FETCHER_MAX_RETRIES.
const EnvPrefix = "ITEMREVIEWED"

// Load reads configuration from file, environment, and CLI flags.
// Priority (highest to lowest): CLI flags > env vars > config file > defaults.
// A .env file in the working directory is loaded first so API keys can live there.
func Load(configPath string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env: %w", err)
	}

	cfg := DefaultConfig()

	v := viper.New()
	v.SetConfigType("yaml")

	setDefaults(v, cfg)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("itemreviewed")
		v.AddConfigPath(".")
		v.AddConfigPath("./configs")
		home, err := os.UserHomeDir()
		if err == nil {
			v.AddConfigPath(filepath.Join(home, ".itemreviewed"))
		}
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) && configPath != "" {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	// The conventional variable is honored when no prefixed key was given.
	if cfg.Translate.OpenAI.APIKey == "" {
		cfg.Translate.OpenAI.APIKey = os.Getenv("OPENAI_API_KEY")
	}

	return cfg, nil
}

// setDefaults registers default values in viper so env overrides bind to every key.
func setDefaults(v *viper.Viper, cfg *Config) {
	v.SetDefault("feed.url", cfg.Feed.URL)
	v.SetDefault("feed.translate", cfg.Feed.Translate)

	v.SetDefault("scrape.locate_links", cfg.Scrape.LocateLinks)
	v.SetDefault("scrape.translate", cfg.Scrape.Translate)
	v.SetDefault("scrape.item_reviewed_paths", cfg.Scrape.ItemReviewedPaths)

	v.SetDefault("fetcher.type", cfg.Fetcher.Type)
	v.SetDefault("fetcher.timeout", cfg.Fetcher.Timeout)
	v.SetDefault("fetcher.user_agent", cfg.Fetcher.UserAgent)
	v.SetDefault("fetcher.max_retries", cfg.Fetcher.MaxRetries)
	v.SetDefault("fetcher.backoff_factor", cfg.Fetcher.BackoffFactor)
	v.SetDefault("fetcher.non_retryable_statuses", cfg.Fetcher.NonRetryableStatuses)
	v.SetDefault("fetcher.follow_redirects", cfg.Fetcher.FollowRedirects)
	v.SetDefault("fetcher.max_redirects", cfg.Fetcher.MaxRedirects)
	v.SetDefault("fetcher.max_body_size", cfg.Fetcher.MaxBodySize)
	v.SetDefault("fetcher.tls_insecure", cfg.Fetcher.TLSInsecure)
	v.SetDefault("fetcher.idle_conn_timeout", cfg.Fetcher.IdleConnTimeout)
	v.SetDefault("fetcher.max_idle_conns", cfg.Fetcher.MaxIdleConns)
	v.SetDefault("fetcher.browser.stealth", cfg.Fetcher.Browser.Stealth)
	v.SetDefault("fetcher.browser.pool_size", cfg.Fetcher.Browser.PoolSize)
	v.SetDefault("fetcher.browser.window_size", cfg.Fetcher.Browser.WindowSize)
	v.SetDefault("fetcher.browser.wait_stable", cfg.Fetcher.Browser.WaitStable)

	v.SetDefault("proxy.enabled", cfg.Proxy.Enabled)
	v.SetDefault("proxy.rotation", cfg.Proxy.Rotation)
	v.SetDefault("proxy.urls", cfg.Proxy.URLs)

	v.SetDefault("engine.concurrency", cfg.Engine.Concurrency)
	v.SetDefault("engine.requests_per_second", cfg.Engine.RequestsPerSecond)
	v.SetDefault("engine.burst", cfg.Engine.Burst)
	v.SetDefault("engine.respect_robots_txt", cfg.Engine.RespectRobotsTxt)

	v.SetDefault("pipeline.exclude_hosts", cfg.Pipeline.ExcludeHosts)
	v.SetDefault("pipeline.keep_without_items", cfg.Pipeline.KeepWithoutItems)
	v.SetDefault("pipeline.clean_claims", cfg.Pipeline.CleanClaims)

	v.SetDefault("translate.providers", cfg.Translate.Providers)
	v.SetDefault("translate.target_language", cfg.Translate.TargetLanguage)
	v.SetDefault("translate.retries", cfg.Translate.Retries)
	v.SetDefault("translate.backoff_base", cfg.Translate.BackoffBase)
	v.SetDefault("translate.timeout", cfg.Translate.Timeout)
	v.SetDefault("translate.google_endpoint", cfg.Translate.GoogleEndpoint)
	v.SetDefault("translate.openai.api_key", cfg.Translate.OpenAI.APIKey)
	v.SetDefault("translate.openai.model", cfg.Translate.OpenAI.Model)
	v.SetDefault("translate.openai.base_url", cfg.Translate.OpenAI.BaseURL)
	v.SetDefault("translate.ollama.endpoint", cfg.Translate.Ollama.Endpoint)
	v.SetDefault("translate.ollama.model", cfg.Translate.Ollama.Model)

	v.SetDefault("storage.type", cfg.Storage.Type)
	v.SetDefault("storage.output_path", cfg.Storage.OutputPath)
	v.SetDefault("storage.mongo.uri", cfg.Storage.Mongo.URI)
	v.SetDefault("storage.mongo.database", cfg.Storage.Mongo.Database)
	v.SetDefault("storage.mongo.collection", cfg.Storage.Mongo.Collection)

	v.SetDefault("logging.level", cfg.Logging.Level)
	v.SetDefault("logging.format", cfg.Logging.Format)

	v.SetDefault("metrics.enabled", cfg.Metrics.Enabled)
	v.SetDefault("metrics.port", cfg.Metrics.Port)
	v.SetDefault("metrics.path", cfg.Metrics.Path)

	v.SetDefault("api.port", cfg.API.Port)
	v.SetDefault("api.max_job_pages", cfg.API.MaxJobPages)
	v.SetDefault("api.request_timeout", cfg.API.RequestTimeout)
}
