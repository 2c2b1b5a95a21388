// Package config loads service configuration from an optional YAML file,
// a .env file and MICROTUTOR_* environment variables.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/abhisek/microtutor/internal/llm"
)

const envPrefix = "MICROTUTOR"

// Config holds application configuration.
type Config struct {
	Env        string     `mapstructure:"env"` // local, dev, production
	DB         DB         `mapstructure:"db"`
	HTTP       HTTP       `mapstructure:"http"`
	Auth       Auth       `mapstructure:"auth"`
	Log        Log        `mapstructure:"log"`
	Redis      Redis      `mapstructure:"redis"`
	LLM        LLM        `mapstructure:"llm"`
	Tutor      Tutor      `mapstructure:"tutor"`
	Metrics    Metrics    `mapstructure:"metrics"`
	Scheduler  Scheduler  `mapstructure:"scheduler"`
	Curriculum Curriculum `mapstructure:"curriculum"`
}

// DB configures the SQLite store.
type DB struct {
	Path string `mapstructure:"path"` // empty = XDG data dir
}

// HTTP configures the API server.
type HTTP struct {
	Addr            string        `mapstructure:"addr"`
	RateLimit       float64       `mapstructure:"rate_limit"` // requests per second per learner
	RateBurst       int           `mapstructure:"rate_burst"`
	CORSOrigins     []string      `mapstructure:"cors_origins"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// Auth configures bearer-token authentication. An empty secret disables it.
type Auth struct {
	JWTSecret string `mapstructure:"jwt_secret"`
}

// Log configures the zap logger and optional file rotation.
type Log struct {
	Level      string `mapstructure:"level"`
	File       string `mapstructure:"file"`
	MaxSizeMB  int    `mapstructure:"max_size_mb"`
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAgeDays int    `mapstructure:"max_age_days"`
}

// Redis configures the optional distributed lock and nudge channel.
// An empty Addr keeps both in-process.
type Redis struct {
	Addr        string        `mapstructure:"addr"`
	Password    string        `mapstructure:"password"`
	DB          int           `mapstructure:"db"`
	Channel     string        `mapstructure:"channel"`
	LockTTL     time.Duration `mapstructure:"lock_ttl"`
	DialTimeout time.Duration `mapstructure:"dial_timeout"`
}

// LLM mirrors llm.Config with file/env keys.
type LLM struct {
	Provider   string        `mapstructure:"provider"`
	Timeout    time.Duration `mapstructure:"timeout"`
	Anthropic  Vendor        `mapstructure:"anthropic"`
	OpenAI     Vendor        `mapstructure:"openai"`
	Gemini     Vendor        `mapstructure:"gemini"`
	OpenRouter Vendor        `mapstructure:"openrouter"`
	Retry      Retry         `mapstructure:"retry"`
}

// Vendor holds one provider's credentials and model.
type Vendor struct {
	APIKey  string `mapstructure:"api_key"`
	Model   string `mapstructure:"model"`
	BaseURL string `mapstructure:"base_url"`
}

// Retry configures transport-level retries.
type Retry struct {
	MaxAttempts int           `mapstructure:"max_attempts"`
	InitialWait time.Duration `mapstructure:"initial_wait"`
	MaxWait     time.Duration `mapstructure:"max_wait"`
	Multiplier  float64       `mapstructure:"multiplier"`
}

// Tutor configures the session engine.
type Tutor struct {
	OracleTimeout     time.Duration `mapstructure:"oracle_timeout"`
	TranscriptTail    int           `mapstructure:"transcript_tail"`
	MaxPriorQuestions int           `mapstructure:"max_prior_questions"`
	MaxTokens         int           `mapstructure:"max_tokens"`
	Temperature       float64       `mapstructure:"temperature"`
}

// Metrics configures report thresholds.
type Metrics struct {
	WeakGoalThreshold int   `mapstructure:"weak_goal_threshold"`
	StarBands         []int `mapstructure:"star_bands"` // lower bounds for 5,4,3,2 stars
}

// Scheduler configures background jobs. Specs use cron syntax, including
// descriptors such as "@every 30s".
type Scheduler struct {
	GenerationSpec string        `mapstructure:"generation_spec"`
	NudgeSpec      string        `mapstructure:"nudge_spec"`
	NudgeIdle      time.Duration `mapstructure:"nudge_idle"`
	NudgeBatch     int           `mapstructure:"nudge_batch"`
}

// Curriculum configures content generation.
type Curriculum struct {
	CallDelay  time.Duration `mapstructure:"call_delay"`
	MaxRetries int           `mapstructure:"max_retries"`
}

// Load reads configuration. path, when non-empty, names an explicit config
// file; otherwise ./config/config.yaml is used if present.
func Load(path string) (*Config, error) {
	// A missing .env file is not an error.
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	v := viper.New()
	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath("./config")
	}

	setDefaults(v)

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	// MICROTUTOR_DB is the short form of MICROTUTOR_DB_PATH. Binding it as an
	// env key would shadow the whole db section, so it is applied as an
	// override.
	if p := os.Getenv(envPrefix + "_DB"); p != "" {
		v.Set("db.path", p)
	}

	if err := v.ReadInConfig(); err != nil {
		var fileLookupErr viper.ConfigFileNotFoundError
		if !errors.As(err, &fileLookupErr) {
			return nil, fmt.Errorf("error loading config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshalling config: %w", err)
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	d := llm.DefaultConfig()

	v.SetDefault("env", "local")
	v.SetDefault("db.path", "")

	v.SetDefault("http.addr", ":8080")
	v.SetDefault("http.rate_limit", 2.0)
	v.SetDefault("http.rate_burst", 5)
	v.SetDefault("http.cors_origins", []string{"*"})
	v.SetDefault("http.shutdown_timeout", "10s")

	v.SetDefault("auth.jwt_secret", "")

	v.SetDefault("log.level", "info")
	v.SetDefault("log.file", "")
	v.SetDefault("log.max_size_mb", 50)
	v.SetDefault("log.max_backups", 5)
	v.SetDefault("log.max_age_days", 28)

	v.SetDefault("redis.addr", "")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.channel", "microtutor:nudges")
	v.SetDefault("redis.lock_ttl", "45s")
	v.SetDefault("redis.dial_timeout", "3s")

	v.SetDefault("llm.provider", d.Provider)
	v.SetDefault("llm.timeout", d.Timeout.String())
	for name, model := range map[string]string{
		"anthropic":  d.Anthropic.Model,
		"openai":     d.OpenAI.Model,
		"gemini":     d.Gemini.Model,
		"openrouter": d.OpenRouter.Model,
	} {
		v.SetDefault("llm."+name+".api_key", "")
		v.SetDefault("llm."+name+".model", model)
		v.SetDefault("llm."+name+".base_url", "")
	}
	v.SetDefault("llm.retry.max_attempts", d.Retry.MaxAttempts)
	v.SetDefault("llm.retry.initial_wait", d.Retry.InitialWait.String())
	v.SetDefault("llm.retry.max_wait", d.Retry.MaxWait.String())
	v.SetDefault("llm.retry.multiplier", d.Retry.Multiplier)

	v.SetDefault("tutor.oracle_timeout", "20s")
	v.SetDefault("tutor.transcript_tail", 10)
	v.SetDefault("tutor.max_prior_questions", 30)
	v.SetDefault("tutor.max_tokens", 1024)
	v.SetDefault("tutor.temperature", 0.4)

	v.SetDefault("metrics.weak_goal_threshold", 70)
	v.SetDefault("metrics.star_bands", []int{90, 75, 60, 40})

	v.SetDefault("scheduler.generation_spec", "@every 30s")
	v.SetDefault("scheduler.nudge_spec", "@every 1h")
	v.SetDefault("scheduler.nudge_idle", "24h")
	v.SetDefault("scheduler.nudge_batch", 100)

	v.SetDefault("curriculum.call_delay", "1s")
	v.SetDefault("curriculum.max_retries", 1)
}

func (c *Config) validate() error {
	if c.Tutor.OracleTimeout <= 0 {
		return fmt.Errorf("tutor.oracle_timeout must be positive")
	}
	if c.Tutor.TranscriptTail < 2 {
		return fmt.Errorf("tutor.transcript_tail must be at least 2")
	}
	if len(c.Metrics.StarBands) != 4 {
		return fmt.Errorf("metrics.star_bands needs 4 thresholds, got %d", len(c.Metrics.StarBands))
	}
	return nil
}

// Production reports whether the service runs in production mode.
func (c *Config) Production() bool {
	return c.Env == "production"
}

// LLMConfig converts the llm section to an llm.Config. When the selected
// provider has no key, standard vendor variables (GEMINI_API_KEY, ...) are
// probed instead.
func (c *Config) LLMConfig() llm.Config {
	out := llm.Config{
		Provider:   c.LLM.Provider,
		Timeout:    c.LLM.Timeout,
		Anthropic:  llm.VendorConfig(c.LLM.Anthropic),
		OpenAI:     llm.VendorConfig(c.LLM.OpenAI),
		Gemini:     llm.VendorConfig(c.LLM.Gemini),
		OpenRouter: llm.VendorConfig(c.LLM.OpenRouter),
		Retry: llm.RetryConfig{
			MaxAttempts: c.LLM.Retry.MaxAttempts,
			InitialWait: c.LLM.Retry.InitialWait,
			MaxWait:     c.LLM.Retry.MaxWait,
			Multiplier:  c.LLM.Retry.Multiplier,
		},
	}
	if out.Validate() == nil {
		return out
	}
	if found, ok := llm.DiscoverConfig(out); ok {
		return found
	}
	return out
}
