package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Server        ServerConfig        `mapstructure:"server"`
	Database      DatabaseConfig      `mapstructure:"database"`
	Redis         RedisConfig         `mapstructure:"redis"`
	Store         StoreConfig         `mapstructure:"store"`
	Queue         QueueConfig         `mapstructure:"queue"`
	Outbox        OutboxConfig        `mapstructure:"outbox"`
	Processor     ProcessorConfig     `mapstructure:"processor"`
	Alerts        AlertsConfig        `mapstructure:"alerts"`
	Images        ImagesConfig        `mapstructure:"images"`
	Observability ObservabilityConfig `mapstructure:"observability"`
	InstanceID    string              `mapstructure:"instance_id"`
}

type ServerConfig struct {
	Port            int           `mapstructure:"port"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	IdleTimeout     time.Duration `mapstructure:"idle_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
	CORS            CORSConfig    `mapstructure:"cors"`
}

type CORSConfig struct {
	AllowedOrigins   []string `mapstructure:"allowed_origins"`
	AllowCredentials bool     `mapstructure:"allow_credentials"`
}

type DatabaseConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	User            string        `mapstructure:"user"`
	Password        string        `mapstructure:"password"`
	Database        string        `mapstructure:"database"`
	MaxConnections  int           `mapstructure:"max_connections"`
	MinConnections  int           `mapstructure:"min_connections"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	SSLMode         string        `mapstructure:"ssl_mode"`
}

type RedisConfig struct {
	Host              string        `mapstructure:"host"`
	Port              int           `mapstructure:"port"`
	DB                int           `mapstructure:"db"`
	Password          string        `mapstructure:"password"`
	ConnectRetries    int           `mapstructure:"connect_retries"`
	ConnectRetryDelay time.Duration `mapstructure:"connect_retry_delay"`
}

type StoreConfig struct {
	OperationTimeout time.Duration `mapstructure:"operation_timeout"`
}

type QueueConfig struct {
	MaxAttempts   int           `mapstructure:"max_attempts"`
	BackoffBase   time.Duration `mapstructure:"backoff_base"`
	BackoffMax    time.Duration `mapstructure:"backoff_max"`
	BatchSize     int64         `mapstructure:"batch_size"`
	BlockDuration time.Duration `mapstructure:"block_duration"`
	ClaimMinIdle  time.Duration `mapstructure:"claim_min_idle"`
	ClaimInterval time.Duration `mapstructure:"claim_interval"`
	ConsumerGroup string        `mapstructure:"consumer_group"`
}

type OutboxConfig struct {
	PollInterval time.Duration `mapstructure:"poll_interval"`
	BatchSize    int           `mapstructure:"batch_size"`
}

type ProcessorConfig struct {
	IdempotencyTTL          time.Duration `mapstructure:"idempotency_ttl"`
	CircuitBreakerThreshold uint32        `mapstructure:"circuit_breaker_threshold"`
	CircuitBreakerTimeout   time.Duration `mapstructure:"circuit_breaker_timeout"`
}

type AlertsConfig struct {
	LowStockThreshold          int `mapstructure:"low_stock_threshold"`
	SignificantChangeThreshold int `mapstructure:"significant_change_threshold"`
}

type ImagesConfig struct {
	AllowedExtensions []string `mapstructure:"allowed_extensions"`
}

type ObservabilityConfig struct {
	LogLevel       string `mapstructure:"log_level"`
	JaegerEndpoint string `mapstructure:"jaeger_endpoint"`
	EnableMetrics  bool   `mapstructure:"enable_metrics"`
	EnableTracing  bool   `mapstructure:"enable_tracing"`
}

func Load() (*Config, error) {
	v := viper.New()

	// Set defaults
	setDefaults(v)

	// Read from environment variables
	v.SetEnvPrefix("RETAIL")
	v.AutomaticEnv()

	// Read from config file if exists
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")
	v.AddConfigPath("/etc/retailcore")

	// Config file is optional
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &cfg, nil
}

func (c *Config) Validate() error {
	var errs []error

	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Errorf("server.port must be between 1 and 65535, got %d", c.Server.Port))
	}
	if c.Server.ReadTimeout <= 0 {
		errs = append(errs, fmt.Errorf("server.read_timeout must be positive"))
	}
	if c.Server.WriteTimeout <= 0 {
		errs = append(errs, fmt.Errorf("server.write_timeout must be positive"))
	}
	if c.Database.Host == "" {
		errs = append(errs, fmt.Errorf("database.host is required"))
	}
	if c.Database.Port <= 0 {
		errs = append(errs, fmt.Errorf("database.port must be positive"))
	}
	if c.Redis.Port <= 0 {
		errs = append(errs, fmt.Errorf("redis.port must be positive"))
	}
	if c.Store.OperationTimeout <= 0 {
		errs = append(errs, fmt.Errorf("store.operation_timeout must be positive"))
	}
	if c.Queue.MaxAttempts <= 0 {
		errs = append(errs, fmt.Errorf("queue.max_attempts must be positive"))
	}
	if c.Queue.BackoffBase <= 0 {
		errs = append(errs, fmt.Errorf("queue.backoff_base must be positive"))
	}
	if c.Queue.BackoffMax < c.Queue.BackoffBase {
		errs = append(errs, fmt.Errorf("queue.backoff_max must be >= queue.backoff_base"))
	}
	if c.Queue.BatchSize <= 0 {
		errs = append(errs, fmt.Errorf("queue.batch_size must be positive"))
	}
	if c.Queue.ClaimMinIdle <= 0 {
		errs = append(errs, fmt.Errorf("queue.claim_min_idle must be positive"))
	}
	if c.Queue.ClaimInterval <= 0 {
		errs = append(errs, fmt.Errorf("queue.claim_interval must be positive"))
	}
	if c.Outbox.PollInterval <= 0 {
		errs = append(errs, fmt.Errorf("outbox.poll_interval must be positive"))
	}
	if c.Alerts.LowStockThreshold <= 0 {
		errs = append(errs, fmt.Errorf("alerts.low_stock_threshold must be positive"))
	}
	if c.Alerts.SignificantChangeThreshold <= 0 {
		errs = append(errs, fmt.Errorf("alerts.significant_change_threshold must be positive"))
	}
	if len(c.Images.AllowedExtensions) == 0 {
		errs = append(errs, fmt.Errorf("images.allowed_extensions must not be empty"))
	}

	return errors.Join(errs...)
}

func setDefaults(v *viper.Viper) {
	// Server defaults
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.read_timeout", "15s")
	v.SetDefault("server.write_timeout", "15s")
	v.SetDefault("server.idle_timeout", "120s")
	v.SetDefault("server.shutdown_timeout", "30s")
	v.SetDefault("server.cors.allowed_origins", []string{"*"})
	v.SetDefault("server.cors.allow_credentials", false)

	// Database defaults
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.user", "retailcore")
	v.SetDefault("database.database", "retailcore")
	v.SetDefault("database.max_connections", 25)
	v.SetDefault("database.min_connections", 5)
	v.SetDefault("database.conn_max_lifetime", "1h")
	v.SetDefault("database.ssl_mode", "disable")

	// Redis defaults
	v.SetDefault("redis.host", "localhost")
	v.SetDefault("redis.port", 6379)
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.connect_retries", 5)
	v.SetDefault("redis.connect_retry_delay", "1s")

	// Store defaults
	v.SetDefault("store.operation_timeout", "5s")

	// Queue defaults
	v.SetDefault("queue.max_attempts", 5)
	v.SetDefault("queue.backoff_base", "1s")
	v.SetDefault("queue.backoff_max", "30s")
	v.SetDefault("queue.batch_size", 10)
	v.SetDefault("queue.block_duration", "1s")
	v.SetDefault("queue.claim_min_idle", "1m")
	v.SetDefault("queue.claim_interval", "30s")
	v.SetDefault("queue.consumer_group", "retail-notifications")

	// Outbox defaults
	v.SetDefault("outbox.poll_interval", "2s")
	v.SetDefault("outbox.batch_size", 10)

	// Processor defaults
	v.SetDefault("processor.idempotency_ttl", "24h")
	v.SetDefault("processor.circuit_breaker_threshold", 10)
	v.SetDefault("processor.circuit_breaker_timeout", "30s")

	// Alert defaults
	v.SetDefault("alerts.low_stock_threshold", 10)
	v.SetDefault("alerts.significant_change_threshold", 50)

	// Image validation defaults
	v.SetDefault("images.allowed_extensions", []string{".jpg", ".jpeg", ".png", ".gif", ".bmp"})

	// Observability defaults
	v.SetDefault("observability.log_level", "info")
	v.SetDefault("observability.jaeger_endpoint", "http://localhost:14268/api/traces")
	v.SetDefault("observability.enable_metrics", true)
	v.SetDefault("observability.enable_tracing", true)

	// Instance ID
	v.SetDefault("instance_id", "retailcore-1")
}

func (c *DatabaseConfig) DatabaseDSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Database, c.SSLMode,
	)
}

func (c *RedisConfig) RedisAddr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}
