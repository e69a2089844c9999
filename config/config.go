package config

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/go-playground/validator/v10"

	"github.com/earningsdesk/transcript-pipeline/internal/email"
)

type Config struct {
	Env  string `env:"ENV" envDefault:"local" validate:"required,oneof=local staging production"`
	Port string `env:"PORT" envDefault:"8080" validate:"required"`

	DatabaseURL string `env:"DATABASE_URL,required" validate:"required"`

	MetricsPort string `env:"METRICS_PORT" envDefault:"9090"`
	LogLevel    string `env:"LOG_LEVEL" envDefault:"info" validate:"required,oneof=debug info warn error"`

	// JWTSecret authenticates the admin HTTP surface (HS256).
	JWTSecret string `env:"JWT_SECRET" validate:"required_if=Env production,required_if=Env staging"`

	// MagicLinkBaseURL is the public base URL embedded in sign-in emails.
	MagicLinkBaseURL string `env:"MAGIC_LINK_BASE_URL" envDefault:"http://localhost:8080"`

	// Dispatcher / window advancer

	DispatchIntervalSec int `env:"DISPATCH_INTERVAL_SEC" envDefault:"5"  validate:"min=1,max=300"`
	DispatchBatchSize   int `env:"DISPATCH_BATCH_SIZE"   envDefault:"50" validate:"min=1,max=1000"`
	WindowAdvanceSec    int `env:"WINDOW_ADVANCE_SEC"    envDefault:"3600" validate:"min=60"`

	// Fetcher pool and the oracle it calls

	OracleBaseURL       string  `env:"ORACLE_BASE_URL,required" validate:"required"`
	OracleQPS           float64 `env:"ORACLE_QPS"             envDefault:"2"  validate:"gt=0"`
	FetcherConcurrency  int     `env:"FETCHER_CONCURRENCY"    envDefault:"10" validate:"min=1,max=200"`
	FetcherPollIntervalSec int  `env:"FETCHER_POLL_INTERVAL_SEC" envDefault:"5" validate:"min=1,max=300"`

	// Analysis enqueuer and worker pool

	LLMProvider            string `env:"LLM_PROVIDER"              envDefault:"stub" validate:"required,oneof=stub openai anthropic"`
	LLMAPIKey              string `env:"LLM_API_KEY"               validate:"required_if=LLMProvider openai,required_if=LLMProvider anthropic"`
	LLMModelID             string `env:"LLM_MODEL_ID"              envDefault:"gpt-4o-mini"`
	LLMTiktokenEncoding    string `env:"LLM_TIKTOKEN_ENCODING"     envDefault:"cl100k_base"`
	LLMMaxInputTokens      int    `env:"LLM_MAX_INPUT_TOKENS"      envDefault:"12000" validate:"min=1000"`
	ContentStoreDir        string `env:"CONTENT_STORE_DIR"         envDefault:"./data/content-cache"`
	AnalysisEnqueueIntervalSec int `env:"ANALYSIS_ENQUEUE_INTERVAL_SEC" envDefault:"2" validate:"min=1,max=300"`
	AnalysisEnqueueBatchSize   int `env:"ANALYSIS_ENQUEUE_BATCH_SIZE"   envDefault:"20" validate:"min=1,max=1000"`
	AnalysisConcurrency        int `env:"ANALYSIS_CONCURRENCY"          envDefault:"2"  validate:"min=1,max=200"`
	AnalysisPollIntervalSec    int `env:"ANALYSIS_POLL_INTERVAL_SEC"    envDefault:"5"  validate:"min=1,max=300"`

	// Group research coordinator

	ResearchPollIntervalSec int `env:"RESEARCH_POLL_INTERVAL_SEC" envDefault:"5"    validate:"min=1,max=300"`
	ResearchBatchSize       int `env:"RESEARCH_BATCH_SIZE"        envDefault:"20"   validate:"min=1,max=1000"`
	ResearchSweepIntervalSec int `env:"RESEARCH_SWEEP_INTERVAL_SEC" envDefault:"900" validate:"min=60"`

	// Email worker pool and sender

	EmailProvider        string `env:"EMAIL_PROVIDER"         envDefault:"log" validate:"required,oneof=log resend smtp"`
	ResendAPIKey         string `env:"RESEND_API_KEY"         validate:"required_if=EmailProvider resend"`
	ResendFrom           string `env:"RESEND_FROM"            validate:"required_if=EmailProvider resend"`
	SMTPHost             string `env:"SMTP_HOST"              validate:"required_if=EmailProvider smtp"`
	SMTPPort             int    `env:"SMTP_PORT"              envDefault:"587"`
	SMTPUsername         string `env:"SMTP_USERNAME"`
	SMTPPassword         string `env:"SMTP_PASSWORD"`
	SMTPFrom             string `env:"SMTP_FROM"              validate:"required_if=EmailProvider smtp"`
	EmailConcurrency     int    `env:"EMAIL_CONCURRENCY"      envDefault:"10" validate:"min=1,max=200"`
	EmailPollIntervalSec int    `env:"EMAIL_POLL_INTERVAL_SEC" envDefault:"3" validate:"min=1,max=300"`

	// Queue / schedule / outbox reapers

	ReaperIntervalSec int `env:"REAPER_INTERVAL_SEC" envDefault:"30" validate:"min=5,max=600"`
	ReaperBatchSize   int `env:"REAPER_BATCH_SIZE"   envDefault:"100" validate:"min=1,max=5000"`
}

func Load() (*Config, error) {
	cfg := &Config{}

	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}

	if err := validator.New().Struct(cfg); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return cfg, nil
}

// SlogLevel converts the LOG_LEVEL string to a slog.Level.
func (c *Config) SlogLevel() slog.Level {
	switch c.LogLevel {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func (c *Config) SMTPConfig() email.SMTPConfig {
	return email.SMTPConfig{
		Host:     c.SMTPHost,
		Port:     c.SMTPPort,
		Username: c.SMTPUsername,
		Password: c.SMTPPassword,
		From:     c.SMTPFrom,
	}
}

func (c *Config) DispatchInterval() time.Duration {
	return time.Duration(c.DispatchIntervalSec) * time.Second
}

func (c *Config) WindowAdvanceInterval() time.Duration {
	return time.Duration(c.WindowAdvanceSec) * time.Second
}

func (c *Config) FetcherPollInterval() time.Duration {
	return time.Duration(c.FetcherPollIntervalSec) * time.Second
}

func (c *Config) AnalysisEnqueueInterval() time.Duration {
	return time.Duration(c.AnalysisEnqueueIntervalSec) * time.Second
}

func (c *Config) AnalysisPollInterval() time.Duration {
	return time.Duration(c.AnalysisPollIntervalSec) * time.Second
}

func (c *Config) ResearchPollInterval() time.Duration {
	return time.Duration(c.ResearchPollIntervalSec) * time.Second
}

func (c *Config) ResearchSweepInterval() time.Duration {
	return time.Duration(c.ResearchSweepIntervalSec) * time.Second
}

func (c *Config) EmailPollInterval() time.Duration {
	return time.Duration(c.EmailPollIntervalSec) * time.Second
}

func (c *Config) ReaperInterval() time.Duration {
	return time.Duration(c.ReaperIntervalSec) * time.Second
}
