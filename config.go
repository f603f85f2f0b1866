package lakequeue

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
)

// Config holds the settings of a lakequeue deployment. Library users
// usually start from DefaultConfig; the lakequeued daemon fills it from the
// environment with LoadConfig.
type Config struct {
	// QueueType is the queue namespace this process enqueues into and
	// dequeues from.
	QueueType uint8 `env:"QUEUE_TYPE" envDefault:"0"`

	// Concurrency is the number of jobs a worker host runs at once.
	Concurrency int `env:"CONCURRENCY" envDefault:"5"`

	// HeartbeatTimeout is how long a lease survives without a KeepAlive.
	// It is also the dispatch message visibility timeout.
	HeartbeatTimeout time.Duration `env:"HEARTBEAT_TIMEOUT" envDefault:"10m"`

	// KeepAliveInterval is how often running jobs renew their lease. Zero
	// means a third of HeartbeatTimeout.
	KeepAliveInterval time.Duration `env:"KEEPALIVE_INTERVAL"`

	// PollInterval is the initial wait after an empty dequeue. Consecutive
	// empty polls back off up to MaxPollInterval.
	PollInterval    time.Duration `env:"POLL_INTERVAL" envDefault:"1s"`
	MaxPollInterval time.Duration `env:"MAX_POLL_INTERVAL" envDefault:"30s"`

	// ShutdownTimeout bounds how long Stop waits for in-flight jobs.
	ShutdownTimeout time.Duration `env:"SHUTDOWN_TIMEOUT" envDefault:"30s"`

	// JobTimeout bounds a single job body. Zero means no limit.
	JobTimeout time.Duration `env:"JOB_TIMEOUT"`

	// CancelGroupOnFailure requests cancellation of a failed job's group.
	CancelGroupOnFailure bool `env:"CANCEL_GROUP_ON_FAILURE"`

	// Audit writes an audit log line for every job lifecycle transition.
	Audit bool `env:"AUDIT"`

	// LogLevel is debug, info, warn or error.
	LogLevel string `env:"LOG_LEVEL" envDefault:"info"`

	// RecordStore selects the record store backend:
	// memory, redis, postgres, bun (PostgreSQL through Bun), sqlite or
	// badger.
	RecordStore string `env:"RECORD_STORE" envDefault:"memory"`

	// DispatchQueue selects the dispatch queue backend:
	// memory, redis or postgres.
	DispatchQueue string `env:"DISPATCH_QUEUE" envDefault:"memory"`

	// Codec selects the record serialization strategy: "schema" or "map".
	Codec string `env:"CODEC" envDefault:"schema"`

	// Backend connection settings.
	RedisAddr     string `env:"REDIS_ADDR" envDefault:"localhost:6379"`
	RedisPassword string `env:"REDIS_PASSWORD"`
	PostgresDSN   string `env:"POSTGRES_DSN"`
	SQLitePath    string `env:"SQLITE_PATH" envDefault:"lakequeue.db"`
	BadgerPath    string `env:"BADGER_PATH" envDefault:"lakequeue-badger"`

	// QueuePrefix prefixes dispatch queue names ({prefix}-{queueType}).
	QueuePrefix string `env:"QUEUE_PREFIX" envDefault:"lakequeue"`

	// APIAddr is the listen address of the admin HTTP API. Empty disables it.
	APIAddr string `env:"API_ADDR" envDefault:":8080"`

	// Schedule is an optional cron expression that periodically enqueues
	// ScheduleDefinition into ScheduleGroupID.
	Schedule           string `env:"SCHEDULE"`
	ScheduleDefinition string `env:"SCHEDULE_DEFINITION"`
	ScheduleGroupID    int64  `env:"SCHEDULE_GROUP_ID" envDefault:"0"`
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		Concurrency:      5,
		HeartbeatTimeout: 10 * time.Minute,
		PollInterval:     time.Second,
		MaxPollInterval:  30 * time.Second,
		ShutdownTimeout:  30 * time.Second,
		RecordStore:      "memory",
		DispatchQueue:    "memory",
		Codec:            "schema",
		RedisAddr:        "localhost:6379",
		SQLitePath:       "lakequeue.db",
		BadgerPath:       "lakequeue-badger",
		QueuePrefix:      "lakequeue",
		APIAddr:          ":8080",
		LogLevel:         "info",
	}
}

// EnvPrefix is prepended to every environment variable LoadConfig reads.
const EnvPrefix = "LAKEQUEUE_"

// LoadConfig reads a Config from LAKEQUEUE_* environment variables.
func LoadConfig() (Config, error) {
	return LoadConfigFrom(nil)
}

// LoadConfigFrom is LoadConfig with an explicit environment. A nil map
// reads the process environment.
func LoadConfigFrom(environ map[string]string) (Config, error) {
	var cfg Config
	opts := env.Options{Prefix: EnvPrefix}
	if environ != nil {
		opts.Environment = environ
	}
	if err := env.ParseWithOptions(&cfg, opts); err != nil {
		return Config{}, fmt.Errorf("lakequeue: load config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate reports settings that cannot work together.
func (c Config) Validate() error {
	if c.Concurrency <= 0 {
		return fmt.Errorf("lakequeue: concurrency must be positive, got %d", c.Concurrency)
	}
	if c.HeartbeatTimeout < time.Second {
		return fmt.Errorf("lakequeue: heartbeat timeout must be at least 1s, got %s", c.HeartbeatTimeout)
	}
	if c.KeepAliveInterval >= c.HeartbeatTimeout {
		return fmt.Errorf("lakequeue: keepalive interval %s must be shorter than heartbeat timeout %s",
			c.KeepAliveInterval, c.HeartbeatTimeout)
	}
	if c.ScheduleGroupID < 0 {
		return ErrInvalidGroupID
	}
	if c.JobTimeout < 0 {
		return fmt.Errorf("lakequeue: job timeout must not be negative, got %s", c.JobTimeout)
	}
	switch c.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("lakequeue: unknown log level %q", c.LogLevel)
	}
	switch c.Codec {
	case "schema", "map":
	default:
		return fmt.Errorf("lakequeue: unknown codec %q", c.Codec)
	}
	return nil
}

// KeepAlive returns the effective keep-alive interval.
func (c Config) KeepAlive() time.Duration {
	if c.KeepAliveInterval > 0 {
		return c.KeepAliveInterval
	}
	return c.HeartbeatTimeout / 3
}
