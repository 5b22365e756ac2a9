package config

import (
	"log/slog"
	"time"

	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	Database   *DBConfig
	Service    *ServiceConfig
	Workspace  *WorkspaceConfig
	Runtime    *RuntimeConfig
	Dispatcher *DispatcherConfig
	Reconcile  *ReconcileConfig
}

type DBConfig struct {
	Type     string `envconfig:"DB_TYPE" default:"sqlite"`
	Hostname string `envconfig:"DB_HOST" default:"localhost"`
	Port     string `envconfig:"DB_PORT" default:"5432"`
	Name     string `envconfig:"DB_NAME" default:"services"`
	User     string `envconfig:"DB_USER"`
	Password string `envconfig:"DB_PASS"`
}

type ServiceConfig struct {
	Address   string        `envconfig:"SVC_ADDRESS" default:":8080"`
	LogLevel  string        `envconfig:"SVC_LOG_LEVEL" default:"info"`
	APIKeys   []string      `envconfig:"SVC_API_KEYS"`
	LeaseWait time.Duration `envconfig:"SVC_LEASE_WAIT" default:"2s"`
}

type WorkspaceConfig struct {
	Dir     string `envconfig:"WORKSPACE_DIR" default:"services"`
	EnvFile string `envconfig:"WORKSPACE_ENV_FILE" default:".env"`
}

type RuntimeConfig struct {
	DockerBinary   string        `envconfig:"RUNTIME_DOCKER_BINARY" default:"docker"`
	ComposeCommand string        `envconfig:"RUNTIME_COMPOSE_COMMAND" default:"docker compose"`
	RestartPolicy  string        `envconfig:"RUNTIME_RESTART_POLICY" default:"unless-stopped"`
	StatusTimeout  time.Duration `envconfig:"RUNTIME_STATUS_TIMEOUT" default:"2s"`
}

type DispatcherConfig struct {
	Backend   string `envconfig:"DISPATCHER_BACKEND" default:"pool"`
	Workers   int    `envconfig:"DISPATCHER_WORKERS" default:"2"`
	QueueSize int    `envconfig:"DISPATCHER_QUEUE_SIZE" default:"64"`
	RedisAddr string `envconfig:"DISPATCHER_REDIS_ADDR" default:"localhost:6379"`
	MaxRetry  int    `envconfig:"DISPATCHER_MAX_RETRY" default:"3"`
	// TaskTimeout bounds a single build or redeploy; zero disables it.
	TaskTimeout time.Duration `envconfig:"DISPATCHER_TASK_TIMEOUT" default:"30m"`
}

type ReconcileConfig struct {
	Interval time.Duration `envconfig:"RECONCILE_INTERVAL" default:"30s"`
	OnGet    bool          `envconfig:"RECONCILE_ON_GET" default:"true"`
}

func Load() (*Config, error) {
	cfg := &Config{}
	if err := envconfig.Process("", cfg); err != nil {
		return nil, err
	}
	if cfg.Database.Type != "pgsql" && cfg.Database.Type != "sqlite" {
		slog.Warn("invalid DB_TYPE, defaulting to sqlite", "db_type", cfg.Database.Type)
		cfg.Database.Type = "sqlite"
	}
	if cfg.Dispatcher.Backend != "pool" && cfg.Dispatcher.Backend != "asynq" {
		slog.Warn("invalid DISPATCHER_BACKEND, defaulting to pool", "backend", cfg.Dispatcher.Backend)
		cfg.Dispatcher.Backend = "pool"
	}
	if cfg.Dispatcher.Workers < 1 {
		cfg.Dispatcher.Workers = 1
	}
	return cfg, nil
}

// SlogLevel maps SVC_LOG_LEVEL onto a slog level; unknown values mean info.
func (c *ServiceConfig) SlogLevel() slog.Level {
	var level slog.Level
	if err := level.UnmarshalText([]byte(c.LogLevel)); err != nil {
		return slog.LevelInfo
	}
	return level
}
