package config

import (
	"time"
)

// Version is set at build time via ldflags.
var Version = "dev"

// DefaultFeedURL is the public ClaimReview data feed.
const DefaultFeedURL = "https://storage.googleapis.com/datacommons-feeds/claimreview/latest/data.json"

// DefaultUserAgent is sent when no user agent is configured.
const DefaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; rv:91.0) Gecko/20100101 Firefox/91.0"

// Config is the root configuration for itemreviewed.
type Config struct {
	Feed      FeedConfig      `mapstructure:"feed"      yaml:"feed"`
	Scrape    ScrapeConfig    `mapstructure:"scrape"    yaml:"scrape"`
	Fetcher   FetcherConfig   `mapstructure:"fetcher"   yaml:"fetcher"`
	Proxy     ProxyConfig     `mapstructure:"proxy"     yaml:"proxy"`
	Engine    EngineConfig    `mapstructure:"engine"    yaml:"engine"`
	Pipeline  PipelineConfig  `mapstructure:"pipeline"  yaml:"pipeline"`
	Translate TranslateConfig `mapstructure:"translate" yaml:"translate"`
	Storage   StorageConfig   `mapstructure:"storage"   yaml:"storage"`
	Logging   LoggingConfig   `mapstructure:"logging"   yaml:"logging"`
	Metrics   MetricsConfig   `mapstructure:"metrics"   yaml:"metrics"`
	API       APIConfig       `mapstructure:"api"       yaml:"api"`
}

// FeedConfig controls the aggregator feed run.
type FeedConfig struct {
	URL       string `mapstructure:"url"       yaml:"url"`
	Translate bool   `mapstructure:"translate" yaml:"translate"`
}

// ScrapeConfig controls page-level extraction.
type ScrapeConfig struct {
	LocateLinks       bool     `mapstructure:"locate_links"        yaml:"locate_links"`
	Translate         bool     `mapstructure:"translate"           yaml:"translate"`
	ItemReviewedPaths []string `mapstructure:"item_reviewed_paths" yaml:"item_reviewed_paths"`
}

// FetcherConfig controls the resilient fetcher.
type FetcherConfig struct {
	Type                 string        `mapstructure:"type"                   yaml:"type"`
	Timeout              time.Duration `mapstructure:"timeout"                yaml:"timeout"`
	UserAgent            string        `mapstructure:"user_agent"             yaml:"user_agent"`
	MaxRetries           int           `mapstructure:"max_retries"            yaml:"max_retries"`
	BackoffFactor        float64       `mapstructure:"backoff_factor"         yaml:"backoff_factor"`
	NonRetryableStatuses []int         `mapstructure:"non_retryable_statuses" yaml:"non_retryable_statuses"`
	FollowRedirects      bool          `mapstructure:"follow_redirects"       yaml:"follow_redirects"`
	MaxRedirects         int           `mapstructure:"max_redirects"          yaml:"max_redirects"`
	MaxBodySize          int64         `mapstructure:"max_body_size"          yaml:"max_body_size"`
	TLSInsecure          bool          `mapstructure:"tls_insecure"           yaml:"tls_insecure"`
	IdleConnTimeout      time.Duration `mapstructure:"idle_conn_timeout"      yaml:"idle_conn_timeout"`
	MaxIdleConns         int           `mapstructure:"max_idle_conns"         yaml:"max_idle_conns"`
	Browser              BrowserConfig `mapstructure:"browser"                yaml:"browser"`
}

// BrowserConfig controls the headless browser fetcher.
type BrowserConfig struct {
	Stealth    bool          `mapstructure:"stealth"     yaml:"stealth"`
	PoolSize   int           `mapstructure:"pool_size"   yaml:"pool_size"`
	WindowSize string        `mapstructure:"window_size" yaml:"window_size"`
	WaitStable time.Duration `mapstructure:"wait_stable" yaml:"wait_stable"`
}

// ProxyConfig controls proxy rotation.
type ProxyConfig struct {
	Enabled  bool     `mapstructure:"enabled"  yaml:"enabled"`
	Rotation string   `mapstructure:"rotation" yaml:"rotation"`
	URLs     []string `mapstructure:"urls"     yaml:"urls"`
}

// EngineConfig controls batch processing.
type EngineConfig struct {
	Concurrency       int     `mapstructure:"concurrency"         yaml:"concurrency"`
	RequestsPerSecond float64 `mapstructure:"requests_per_second" yaml:"requests_per_second"`
	Burst             int     `mapstructure:"burst"               yaml:"burst"`
	RespectRobotsTxt  bool    `mapstructure:"respect_robots_txt"  yaml:"respect_robots_txt"`
}

// PipelineConfig controls the record chain run before storage.
type PipelineConfig struct {
	ExcludeHosts     []string `mapstructure:"exclude_hosts"      yaml:"exclude_hosts"`
	KeepWithoutItems bool     `mapstructure:"keep_without_items" yaml:"keep_without_items"`
	CleanClaims      bool     `mapstructure:"clean_claims"       yaml:"clean_claims"`
}

// TranslateConfig controls claim translation.
type TranslateConfig struct {
	Providers      []string      `mapstructure:"providers"       yaml:"providers"`
	TargetLanguage string        `mapstructure:"target_language" yaml:"target_language"`
	Retries        int           `mapstructure:"retries"         yaml:"retries"`
	BackoffBase    float64       `mapstructure:"backoff_base"    yaml:"backoff_base"`
	Timeout        time.Duration `mapstructure:"timeout"         yaml:"timeout"`
	GoogleEndpoint string        `mapstructure:"google_endpoint" yaml:"google_endpoint"`
	OpenAI         OpenAIConfig  `mapstructure:"openai"          yaml:"openai"`
	Ollama         OllamaConfig  `mapstructure:"ollama"          yaml:"ollama"`
}

// OpenAIConfig configures the OpenAI-compatible translation provider.
type OpenAIConfig struct {
	APIKey  string `mapstructure:"api_key"  yaml:"api_key"`
	Model   string `mapstructure:"model"    yaml:"model"`
	BaseURL string `mapstructure:"base_url" yaml:"base_url"`
}

// OllamaConfig configures the local Ollama translation provider.
type OllamaConfig struct {
	Endpoint string `mapstructure:"endpoint" yaml:"endpoint"`
	Model    string `mapstructure:"model"    yaml:"model"`
}

// StorageConfig controls output/storage.
type StorageConfig struct {
	Type       string      `mapstructure:"type"        yaml:"type"`
	OutputPath string      `mapstructure:"output_path" yaml:"output_path"`
	Mongo      MongoConfig `mapstructure:"mongo"       yaml:"mongo"`
}

// MongoConfig configures the MongoDB backend.
type MongoConfig struct {
	URI        string `mapstructure:"uri"        yaml:"uri"`
	Database   string `mapstructure:"database"   yaml:"database"`
	Collection string `mapstructure:"collection" yaml:"collection"`
}

// LoggingConfig controls logging behavior.
type LoggingConfig struct {
	Level  string `mapstructure:"level"  yaml:"level"`
	Format string `mapstructure:"format" yaml:"format"`
}

// MetricsConfig controls Prometheus metrics.
type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled" yaml:"enabled"`
	Port    int    `mapstructure:"port"    yaml:"port"`
	Path    string `mapstructure:"path"    yaml:"path"`
}

// APIConfig controls the HTTP extraction API.
type APIConfig struct {
	Port           int           `mapstructure:"port"            yaml:"port"`
	MaxJobPages    int           `mapstructure:"max_job_pages"   yaml:"max_job_pages"`
	RequestTimeout time.Duration `mapstructure:"request_timeout" yaml:"request_timeout"`
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Feed: FeedConfig{
			URL: DefaultFeedURL,
		},
		Scrape: ScrapeConfig{
			LocateLinks: true,
		},
		Fetcher: FetcherConfig{
			Type:                 "http",
			Timeout:              5 * time.Second,
			UserAgent:            DefaultUserAgent,
			MaxRetries:           5,
			BackoffFactor:        2,
			NonRetryableStatuses: []int{401, 403, 404, 405, 406},
			FollowRedirects:      true,
			MaxRedirects:         10,
			MaxBodySize:          50 * 1024 * 1024, // the full feed is tens of MB
			IdleConnTimeout:      90 * time.Second,
			MaxIdleConns:         100,
			Browser: BrowserConfig{
				Stealth:    true,
				PoolSize:   2,
				WindowSize: "1920,1080",
				WaitStable: 300 * time.Millisecond,
			},
		},
		Proxy: ProxyConfig{
			Rotation: "round_robin",
		},
		Engine: EngineConfig{
			Concurrency:       4,
			RequestsPerSecond: 1,
			Burst:             2,
			RespectRobotsTxt:  true,
		},
		Translate: TranslateConfig{
			Providers:      []string{"google"},
			TargetLanguage: "en",
			Retries:        5,
			BackoffBase:    1,
			Timeout:        10 * time.Second,
			GoogleEndpoint: "https://translate.googleapis.com/translate_a/single",
			OpenAI: OpenAIConfig{
				Model: "gpt-4o-mini",
			},
			Ollama: OllamaConfig{
				Endpoint: "http://localhost:11434",
				Model:    "llama3",
			},
		},
		Storage: StorageConfig{
			Type:       "json",
			OutputPath: "./data/claimreview_feed.json",
			Mongo: MongoConfig{
				URI:        "mongodb://localhost:27017",
				Database:   "itemreviewed",
				Collection: "claimreviews",
			},
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
		Metrics: MetricsConfig{
			Enabled: false,
			Port:    9090,
			Path:    "/metrics",
		},
		API: APIConfig{
			Port:           8080,
			MaxJobPages:    500,
			RequestTimeout: 60 * time.Second,
		},
	}
}
