package config

import (
	yamlenv "github.com/ifuryst/go-yaml-env"

	"github.com/syndicatehq/syndicate/pkg/logger"
)

type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Database  DatabaseConfig  `yaml:"database"`
	Logger    logger.Config   `yaml:"logger"`
	Publisher PublisherConfig `yaml:"publisher"`
	Worker    WorkerConfig    `yaml:"worker"`
	Janitor   JanitorConfig   `yaml:"janitor"`
}

type ServerConfig struct {
	Port     int    `yaml:"port"`
	Host     string `yaml:"host"`
	Mode     string `yaml:"mode"`
	CertFile string `yaml:"cert_file"`
	KeyFile  string `yaml:"key_file"`
}

type DatabaseConfig struct {
	Type     string `yaml:"type"`
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
	Database string `yaml:"database"`
	SSLMode  string `yaml:"ssl_mode"`
	TimeZone string `yaml:"timezone"`
}

type PublisherConfig struct {
	// RequestTimeout bounds a single delivery call to an external endpoint.
	RequestTimeout string        `yaml:"request_timeout"`
	Webhook        WebhookConfig `yaml:"webhook"`
}

type WebhookConfig struct {
	Enabled   bool   `yaml:"enabled"`
	UserAgent string `yaml:"user_agent"`
}

type WorkerConfig struct {
	Enabled      bool   `yaml:"enabled"`
	Concurrency  int    `yaml:"concurrency"`
	PollInterval string `yaml:"poll_interval"`
	MaxAttempts  int    `yaml:"max_attempts"`
}

type JanitorConfig struct {
	Enabled        bool   `yaml:"enabled"`
	SweepInterval  string `yaml:"sweep_interval"`
	StuckThreshold string `yaml:"stuck_threshold"`
	RetentionDays  int    `yaml:"retention_days"`
}

func LoadConfig(configPath string) (*Config, error) {
	cfg, err := yamlenv.LoadConfig[Config](configPath)
	if err != nil {
		return nil, err
	}

	// Set default values
	if cfg.Server.Host == "" {
		cfg.Server.Host = "localhost"
	}
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 5336
	}
	if cfg.Server.Mode == "" {
		cfg.Server.Mode = "debug"
	}
	if cfg.Database.Type == "" {
		cfg.Database.Type = "postgres"
	}
	if cfg.Database.Host == "" {
		cfg.Database.Host = "localhost"
	}
	if cfg.Database.Port == 0 {
		cfg.Database.Port = 5432
	}
	if cfg.Database.SSLMode == "" {
		cfg.Database.SSLMode = "disable"
	}
	if cfg.Database.TimeZone == "" {
		cfg.Database.TimeZone = "UTC"
	}
	if cfg.Publisher.RequestTimeout == "" {
		cfg.Publisher.RequestTimeout = "30s"
	}
	if cfg.Publisher.Webhook.UserAgent == "" {
		cfg.Publisher.Webhook.UserAgent = "Syndicate-Webhook/1.0"
	}
	if cfg.Worker.Concurrency == 0 {
		cfg.Worker.Concurrency = 4
	}
	if cfg.Worker.PollInterval == "" {
		cfg.Worker.PollInterval = "2s"
	}
	if cfg.Worker.MaxAttempts == 0 {
		cfg.Worker.MaxAttempts = 3
	}
	if cfg.Janitor.SweepInterval == "" {
		cfg.Janitor.SweepInterval = "1m"
	}
	if cfg.Janitor.StuckThreshold == "" {
		cfg.Janitor.StuckThreshold = "10m"
	}
	if cfg.Janitor.RetentionDays == 0 {
		cfg.Janitor.RetentionDays = 90
	}

	return cfg, nil
}
