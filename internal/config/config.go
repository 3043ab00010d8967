// Package config loads and validates service configuration via Viper.
package config

import (
	"fmt"
	"runtime"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config captures all service configuration knobs loaded via Viper.
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Logging   LoggingConfig   `mapstructure:"logging"`
	Browser   BrowserConfig   `mapstructure:"browser"`
	Crawl     CrawlConfig     `mapstructure:"crawl"`
	Visual    VisualConfig    `mapstructure:"visual"`
	Execution ExecutionConfig `mapstructure:"execution"`
	LLM       LLMConfig       `mapstructure:"llm"`
	DB        DBConfig        `mapstructure:"db"`
	Storage   StorageConfig   `mapstructure:"storage"`
	Notify    NotifyConfig    `mapstructure:"notify"`
	Worker    WorkerConfig    `mapstructure:"worker"`
}

// ServerConfig controls the HTTP API server.
type ServerConfig struct {
	Port int `mapstructure:"port"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool `mapstructure:"development"`
}

// BrowserConfig configures the headless browser subsystem.
type BrowserConfig struct {
	UserAgent      string `mapstructure:"user_agent"`
	ViewportWidth  int    `mapstructure:"viewport_width"`
	ViewportHeight int    `mapstructure:"viewport_height"`
	NavTimeoutSec  int    `mapstructure:"nav_timeout_seconds"`
	RecordVideo    bool   `mapstructure:"record_video"`
}

// CrawlConfig holds the per-project crawl rules.
type CrawlConfig struct {
	MaxDepth          int      `mapstructure:"max_depth"`
	SkipURLs          []string `mapstructure:"skip_urls"`
	ExtraDomains      []string `mapstructure:"extra_domains"`
	PageTimeoutSec    int      `mapstructure:"page_timeout_seconds"`
	MaxScrollAttempts int      `mapstructure:"max_scroll_attempts"`
	MaxNavClicks      int      `mapstructure:"max_nav_clicks"`
	APIIgnorePatterns []string `mapstructure:"api_ignore_patterns"`
}

// VisualConfig controls the visual regression comparisons.
type VisualConfig struct {
	Threshold     float64  `mapstructure:"threshold"`
	ExcludeRoutes []string `mapstructure:"exclude_routes"`
	BaselineDir   string   `mapstructure:"baseline_dir"`
	DiffDir       string   `mapstructure:"diff_dir"`
}

// SuiteConfig holds per-suite concurrency overrides.
type SuiteConfig struct {
	Mode          string `mapstructure:"mode"`
	Workers       int    `mapstructure:"workers"`
	SharedContext bool   `mapstructure:"shared_context"`
}

// ExecutionConfig governs test-suite partitioning and parallelism.
type ExecutionConfig struct {
	Mode           string                 `mapstructure:"mode"`
	MaxParallelism int                    `mapstructure:"max_parallelism"`
	Suites         map[string]SuiteConfig `mapstructure:"suites"`
}

// LLMConfig selects and tunes the text-generation provider.
type LLMConfig struct {
	Provider  string `mapstructure:"provider"`
	Model     string `mapstructure:"model"`
	MaxTokens int    `mapstructure:"max_tokens"`
}

// DBConfig controls access to the relational job store.
type DBConfig struct {
	DSN             string `mapstructure:"dsn"`
	MaxConns        int32  `mapstructure:"max_conns"`
	MinConns        int32  `mapstructure:"min_conns"`
	MaxConnLifeMins int    `mapstructure:"max_conn_life_minutes"`
}

// StorageConfig selects the artifact store backend.
type StorageConfig struct {
	Provider  string `mapstructure:"provider"`
	GCSBucket string `mapstructure:"gcs_bucket"`
	LocalDir  string `mapstructure:"local_dir"`
	Prefix    string `mapstructure:"prefix"`
}

// NotifyConfig holds metadata for run-completion notifications.
type NotifyConfig struct {
	Provider  string `mapstructure:"provider"`
	ProjectID string `mapstructure:"project_id"`
	TopicName string `mapstructure:"topic_name"`
}

// WorkerConfig tunes the distributed worker loop.
type WorkerConfig struct {
	PollIntervalSec  int `mapstructure:"poll_interval_seconds"`
	RecoverEverySec  int `mapstructure:"recover_every_seconds"`
	StaleTimeoutMins int `mapstructure:"stale_timeout_minutes"`
	MaxJobsPerTenant int `mapstructure:"max_jobs_per_tenant"`
}

// Load builds a Config from disk/environment.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("SKYHOOK")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("logging.development", true)
	v.SetDefault("browser.user_agent", "skyhook-qa-bot/0.1")
	v.SetDefault("browser.viewport_width", 1280)
	v.SetDefault("browser.viewport_height", 800)
	v.SetDefault("browser.nav_timeout_seconds", 30)
	v.SetDefault("browser.record_video", false)
	v.SetDefault("crawl.max_depth", 2)
	v.SetDefault("crawl.page_timeout_seconds", 30)
	v.SetDefault("crawl.max_scroll_attempts", 10)
	v.SetDefault("crawl.max_nav_clicks", 10)
	v.SetDefault("visual.threshold", 0.1)
	v.SetDefault("visual.baseline_dir", "artifacts/baselines")
	v.SetDefault("visual.diff_dir", "artifacts/diffs")
	v.SetDefault("execution.mode", "smart")
	v.SetDefault("execution.max_parallelism", 0)
	v.SetDefault("llm.provider", "anthropic")
	v.SetDefault("llm.max_tokens", 2048)
	v.SetDefault("storage.provider", "local")
	v.SetDefault("storage.local_dir", "artifacts")
	v.SetDefault("storage.prefix", "runs")
	v.SetDefault("notify.provider", "noop")
	v.SetDefault("worker.poll_interval_seconds", 2)
	v.SetDefault("worker.recover_every_seconds", 60)
	v.SetDefault("worker.stale_timeout_minutes", 15)
	v.SetDefault("worker.max_jobs_per_tenant", 2)
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if c.Server.Port <= 0 {
		return fmt.Errorf("server.port must be > 0")
	}
	if c.Crawl.MaxDepth < 0 {
		return fmt.Errorf("crawl.max_depth must be >= 0")
	}
	if c.Visual.Threshold < 0 || c.Visual.Threshold > 1 {
		return fmt.Errorf("visual.threshold must be in [0,1]")
	}
	switch c.Execution.Mode {
	case "sequential", "parallel", "smart":
	default:
		return fmt.Errorf("execution.mode must be sequential, parallel, or smart")
	}
	if c.Worker.MaxJobsPerTenant <= 0 {
		return fmt.Errorf("worker.max_jobs_per_tenant must be > 0")
	}
	if c.Worker.StaleTimeoutMins <= 0 {
		return fmt.Errorf("worker.stale_timeout_minutes must be > 0")
	}
	return nil
}

// MaxParallelism resolves the configured cap, defaulting to host concurrency.
func (c ExecutionConfig) Parallelism() int {
	if c.MaxParallelism > 0 {
		return c.MaxParallelism
	}
	return runtime.NumCPU()
}

// PageTimeout converts the crawl page timeout into a duration.
func (c CrawlConfig) PageTimeout() time.Duration {
	return time.Duration(c.PageTimeoutSec) * time.Second
}

// StaleTimeout converts the stale-job timeout into a duration.
func (c WorkerConfig) StaleTimeout() time.Duration {
	return time.Duration(c.StaleTimeoutMins) * time.Minute
}
