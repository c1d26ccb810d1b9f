// Package config loads the process configuration from the environment.
// A local .env file is honored when present; real deployments set variables
// directly.
package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

type Config struct {
	AppEnv      string `env:"APP_ENV" envDefault:"local"`
	PostgresDSN string `env:"POSTGRES_DSN,required"`
	HealthPort  int    `env:"HEALTH_PORT" envDefault:"8080"`

	// LLM access. The literal key "mock" selects the offline client.
	LLMAPIKey       string  `env:"LLM_API_KEY,required"`
	LLMBaseURL      string  `env:"LLM_BASE_URL"`
	PlannerModel    string  `env:"PLANNER_MODEL" envDefault:"gpt-4o"`
	EvalModel       string  `env:"EVAL_MODEL" envDefault:"gpt-4o-mini"`
	QueryModel      string  `env:"QUERY_MODEL" envDefault:"gpt-4o-mini"`
	LLMRateLimitRPS float64 `env:"LLM_RATE_LIMIT_RPS" envDefault:"5"`

	// Search backend. An empty key disables the backend; the campaign
	// continues without it.
	NewsAPIKey     string        `env:"NEWS_API_KEY"`
	NewsAPIBaseURL string        `env:"NEWS_API_BASE_URL" envDefault:"https://newsapi.org/v2"`
	NewsAPITimeout time.Duration `env:"NEWS_API_TIMEOUT" envDefault:"30s"`

	// Filing backend.
	FilingBaseURL     string        `env:"FILING_BASE_URL" envDefault:"https://www.sec.gov"`
	FilingUserAgent   string        `env:"FILING_USER_AGENT" envDefault:"SignalBridge/2.0"`
	FilingTimeout     time.Duration `env:"FILING_TIMEOUT" envDefault:"30s"`
	FilingFetchBodies bool          `env:"FILING_FETCH_BODIES" envDefault:"false"`
	FilingCompanies   []string      `env:"FILING_COMPANIES" envSeparator:","`

	// Campaign selection. Empty session means the latest strategic intent.
	SessionID string `env:"SESSION_ID"`

	// Self-test probe target. Any stable public feed works.
	SelfTestFeedURL string `env:"SELFTEST_FEED_URL" envDefault:"https://feeds.bbci.co.uk/news/rss.xml"`

	// Monitor mode.
	MonitorInterval     time.Duration `env:"MONITOR_INTERVAL" envDefault:"15m"`
	BackfillDays        int           `env:"BACKFILL_DAYS" envDefault:"30"`
	BackfillMinInterval time.Duration `env:"BACKFILL_MIN_INTERVAL" envDefault:"0s"`
	SignalRetentionDays int           `env:"SIGNAL_RETENTION_DAYS" envDefault:"30"`

	// Database pool.
	DBMaxConnections    int32         `env:"DB_MAX_CONNECTIONS" envDefault:"10"`
	DBMinConnections    int32         `env:"DB_MIN_CONNECTIONS" envDefault:"2"`
	DBMaxConnIdleTime   time.Duration `env:"DB_MAX_CONN_IDLE_TIME" envDefault:"5m"`
	DBMaxConnLifetime   time.Duration `env:"DB_MAX_CONN_LIFETIME" envDefault:"30m"`
	DBHealthCheckPeriod time.Duration `env:"DB_HEALTH_CHECK_PERIOD" envDefault:"1m"`
}

// SearchEnabled reports whether the search backend has credentials.
func (c *Config) SearchEnabled() bool {
	return c.NewsAPIKey != ""
}

// CollectionWindow is the lookback window for backfill pulls.
func (c *Config) CollectionWindow() time.Duration {
	return time.Duration(c.BackfillDays) * 24 * time.Hour
}

func Load() (*Config, error) {
	_ = godotenv.Load() //nolint:errcheck // .env file is optional, error is expected when not present

	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parsing environment config: %w", err)
	}

	return cfg, nil
}
