package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"
)

// TelegramConfig holds Telegram bot related settings that are common for all bots.
type TelegramConfig struct {
	Token   string `yaml:"token" envconfig:"BOT_TOKEN"`
	AdminID int64  `yaml:"admin_id" envconfig:"TELEGRAM_ADMIN_ID"`
	RunMode string `yaml:"run_mode" envconfig:"TELEGRAM_RUN_MODE"`
	// LongPollTimeoutSeconds defines long polling timeout; 0 -> default
	LongPollTimeoutSeconds int `yaml:"longpoll_timeout_seconds" envconfig:"TELEGRAM_LONGPOLL_TIMEOUT_SECONDS"`
}

// WebhookConfig specifies webhook settings.
type WebhookConfig struct {
	URL    string `yaml:"url" envconfig:"WEBHOOK_URL"`
	Listen string `yaml:"listen" envconfig:"WEBHOOK_LISTEN"`
	Port   int    `yaml:"port" envconfig:"WEBHOOK_PORT"`
}

// LoggingConfig defines logging related configuration.
type LoggingConfig struct {
	Level       string `yaml:"level"`
	Format      string `yaml:"format"`
	KeysOrder   string `yaml:"keys_order"`
	DebugSample string `yaml:"debug_sample"`
	Stacks      string `yaml:"stacks"`
	Dir         string `yaml:"dir"`
	BotFile     string `yaml:"bot_file"`
	ErrorsFile  string `yaml:"errors_file"`
	// Profile indicates environment profile such as "debug" or "prod".
	Profile string `yaml:"profile"`
}

const (
	// RunModeWebhook selects webhook mode for Telegram updates.
	RunModeWebhook = "webhook"
	// RunModeLongpoll selects long-polling mode for Telegram updates.
	RunModeLongpoll = "longpoll"
)

const (
	// UpdateCallback identifies callback updates for rate limit exclusions.
	UpdateCallback = "callback"
	// UpdateMessage identifies message updates for rate limit exclusions.
	UpdateMessage = "message"
	// UpdateInlineQuery identifies inline query updates for rate limit exclusions.
	UpdateInlineQuery = "inline_query"
)

// RateLimitConfig holds settings for rate limiting.
// ExcludeUpdates accepts update types to bypass limiting:
// - "callback": Telegram callback button presses
// - "message": standard text messages
// - "inline_query": inline query updates
type RateLimitConfig struct {
	IntervalMS     int      `yaml:"interval_ms" envconfig:"RATE_LIMIT_INTERVAL_MS"`
	ExcludeUpdates []string `yaml:"exclude_updates" envconfig:"RATE_LIMIT_EXCLUDE_UPDATES"`
}

const (
	// SessionMemory keeps scene state in process memory.
	SessionMemory = "memory"
	// SessionRedis keeps scene state in Redis.
	SessionRedis = "redis"
	// SessionPostgres keeps scene state in the scene_sessions table.
	SessionPostgres = "postgres"
)

const (
	defaultLockTTLMS     = 30_000
	defaultKeyPrefix     = "gostage:session:"
	defaultEventTopic    = "scene.events"
	defaultNamespace     = "gostage"
	defaultPruneInterval = 300
)

// StageConfig controls scene routing.
type StageConfig struct {
	// TTLSeconds discards scene state idle for longer; 0 never expires.
	TTLSeconds   int    `yaml:"ttl_seconds" envconfig:"STAGE_TTL_SECONDS"`
	DefaultScene string `yaml:"default_scene" envconfig:"STAGE_DEFAULT_SCENE"`
	LockTTLMS    int    `yaml:"lock_ttl_ms" envconfig:"STAGE_LOCK_TTL_MS"`
}

// TTL returns the scene TTL as a duration.
func (c StageConfig) TTL() time.Duration {
	return time.Duration(c.TTLSeconds) * time.Second
}

// LockTTL returns how long a distributed session lock may be held.
func (c StageConfig) LockTTL() time.Duration {
	return time.Duration(c.LockTTLMS) * time.Millisecond
}

// SessionConfig selects where scene state lives.
type SessionConfig struct {
	Backend   string `yaml:"backend" envconfig:"SESSION_BACKEND"`
	KeyPrefix string `yaml:"key_prefix" envconfig:"SESSION_KEY_PREFIX"`
	// TTLSeconds is a store level expiry for whole sessions. Redis expires
	// keys, postgres prunes idle rows every PruneIntervalSeconds.
	TTLSeconds           int `yaml:"ttl_seconds" envconfig:"SESSION_TTL_SECONDS"`
	PruneIntervalSeconds int `yaml:"prune_interval_seconds" envconfig:"SESSION_PRUNE_INTERVAL_SECONDS"`
	// DistributedLock serializes a session across replicas (redis only).
	DistributedLock bool `yaml:"distributed_lock" envconfig:"SESSION_DISTRIBUTED_LOCK"`
}

// TTL returns the store level expiry.
func (c SessionConfig) TTL() time.Duration {
	return time.Duration(c.TTLSeconds) * time.Second
}

// PruneInterval returns how often idle sql sessions are deleted.
func (c SessionConfig) PruneInterval() time.Duration {
	return time.Duration(c.PruneIntervalSeconds) * time.Second
}

// RedisConfig holds Redis connection settings.
type RedisConfig struct {
	Addr     string `yaml:"addr" envconfig:"REDIS_ADDR"`
	Password string `yaml:"password" envconfig:"REDIS_PASSWORD"`
	DB       int    `yaml:"db" envconfig:"REDIS_DB"`
}

// DatabaseConfig holds database connection settings shared across bots.
type DatabaseConfig struct {
	Host           string `yaml:"host" envconfig:"DB_HOST"`
	Port           string `yaml:"port" envconfig:"DB_PORT"`
	User           string `yaml:"user" envconfig:"DB_USER"`
	Password       string `yaml:"password" envconfig:"DB_PASSWORD"`
	Name           string `yaml:"name" envconfig:"DB_NAME"`
	SSLMode        string `yaml:"sslmode" envconfig:"DB_SSLMODE"`
	MaxConnections int    `yaml:"max_connections" envconfig:"DB_MAX_CONNECTIONS"`
}

// MetricsConfig controls the Prometheus endpoint.
type MetricsConfig struct {
	// Listen is the address of the /metrics server; empty disables it.
	Listen    string `yaml:"listen" envconfig:"METRICS_LISTEN"`
	Namespace string `yaml:"namespace" envconfig:"METRICS_NAMESPACE"`
}

// EventsConfig controls publishing of scene transition events.
type EventsConfig struct {
	Enabled bool   `yaml:"enabled" envconfig:"EVENTS_ENABLED"`
	Topic   string `yaml:"topic" envconfig:"EVENTS_TOPIC"`
}

// Config aggregates the configuration that belongs to the reusable core.
type Config struct {
	Telegram  TelegramConfig  `yaml:"telegram"`
	Webhook   WebhookConfig   `yaml:"webhook"`
	Logging   LoggingConfig   `yaml:"logging"`
	RateLimit RateLimitConfig `yaml:"rate_limit"`
	Stage     StageConfig     `yaml:"stage"`
	Session   SessionConfig   `yaml:"session"`
	Redis     RedisConfig     `yaml:"redis"`
	Database  DatabaseConfig  `yaml:"database"`
	Metrics   MetricsConfig   `yaml:"metrics"`
	Events    EventsConfig    `yaml:"events"`
}

// CoreConfig returns cfg itself so Config satisfies loaders expecting a carrier.
func (c *Config) CoreConfig() *Config { return c }

// Load reads configuration from a YAML file and environment variables.
func Load(path string) (*Config, error) {
	var cfg Config

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse YAML config: %w", err)
	}
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to process env: %w", err)
	}

	if err := Normalize(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Normalize performs basic validation of required configuration fields and adjusts defaults.
func Normalize(cfg *Config) error {
	if cfg == nil {
		return fmt.Errorf("nil config")
	}

	if cfg.Telegram.Token == "" {
		return fmt.Errorf("telegram token is required")
	}

	rm := strings.ToLower(strings.TrimSpace(cfg.Telegram.RunMode))
	if rm == "" {
		rm = RunModeLongpoll
	}
	if rm == "polling" { // accept alias
		rm = RunModeLongpoll
	}
	switch rm {
	case RunModeWebhook:
		if strings.TrimSpace(cfg.Webhook.URL) == "" {
			return fmt.Errorf("webhook.url is required when telegram.run_mode is 'webhook'")
		}
		if strings.TrimSpace(cfg.Webhook.Listen) == "" {
			return fmt.Errorf("webhook.listen is required when telegram.run_mode is 'webhook'")
		}
		if cfg.Webhook.Port <= 0 {
			return fmt.Errorf("webhook.port must be > 0 when telegram.run_mode is 'webhook'")
		}
	case RunModeLongpoll:
		if cfg.Telegram.LongPollTimeoutSeconds < 0 {
			return fmt.Errorf("telegram.longpoll_timeout_seconds must be >= 0")
		}
	default:
		return fmt.Errorf("invalid telegram.run_mode %q; allowed: webhook, longpoll", cfg.Telegram.RunMode)
	}
	cfg.Telegram.RunMode = rm

	allowed := map[string]struct{}{
		UpdateCallback:    {},
		UpdateMessage:     {},
		UpdateInlineQuery: {},
	}
	for i, v := range cfg.RateLimit.ExcludeUpdates {
		key := strings.ToLower(strings.TrimSpace(v))
		if key == "" {
			continue
		}
		if _, ok := allowed[key]; !ok {
			return fmt.Errorf("invalid rate_limit.exclude_updates value %q; allowed: callback, message, inline_query", v)
		}
		cfg.RateLimit.ExcludeUpdates[i] = key
	}
	if err := normalizeStage(&cfg.Stage); err != nil {
		return err
	}
	return normalizeSession(cfg)
}

func normalizeStage(st *StageConfig) error {
	if st.TTLSeconds < 0 {
		return fmt.Errorf("stage.ttl_seconds must be >= 0")
	}
	if st.LockTTLMS < 0 {
		return fmt.Errorf("stage.lock_ttl_ms must be >= 0")
	}
	if st.LockTTLMS == 0 {
		st.LockTTLMS = defaultLockTTLMS
	}
	st.DefaultScene = strings.TrimSpace(st.DefaultScene)
	return nil
}

func normalizeSession(cfg *Config) error {
	backend := strings.ToLower(strings.TrimSpace(cfg.Session.Backend))
	if backend == "" {
		backend = SessionMemory
	}
	if backend == "postgresql" || backend == "sql" {
		backend = SessionPostgres
	}
	switch backend {
	case SessionMemory:
	case SessionRedis:
		if strings.TrimSpace(cfg.Redis.Addr) == "" {
			return fmt.Errorf("redis.addr is required when session.backend is 'redis'")
		}
	case SessionPostgres:
		if strings.TrimSpace(cfg.Database.Host) == "" || strings.TrimSpace(cfg.Database.Name) == "" {
			return fmt.Errorf("database.host and database.name are required when session.backend is 'postgres'")
		}
	default:
		return fmt.Errorf("invalid session.backend %q; allowed: memory, redis, postgres", cfg.Session.Backend)
	}
	cfg.Session.Backend = backend

	if cfg.Session.DistributedLock && backend != SessionRedis {
		return fmt.Errorf("session.distributed_lock requires session.backend 'redis'")
	}
	if cfg.Session.TTLSeconds < 0 {
		return fmt.Errorf("session.ttl_seconds must be >= 0")
	}
	if cfg.Session.PruneIntervalSeconds < 0 {
		return fmt.Errorf("session.prune_interval_seconds must be >= 0")
	}
	if cfg.Session.PruneIntervalSeconds == 0 {
		cfg.Session.PruneIntervalSeconds = defaultPruneInterval
	}
	if cfg.Session.KeyPrefix == "" {
		cfg.Session.KeyPrefix = defaultKeyPrefix
	}
	if cfg.Database.Port == "" {
		cfg.Database.Port = "5432"
	}
	if cfg.Database.SSLMode == "" {
		cfg.Database.SSLMode = "disable"
	}
	if cfg.Database.MaxConnections <= 0 {
		cfg.Database.MaxConnections = 10
	}
	if cfg.Metrics.Namespace == "" {
		cfg.Metrics.Namespace = defaultNamespace
	}
	if cfg.Events.Topic == "" {
		cfg.Events.Topic = defaultEventTopic
	}
	return nil
}
