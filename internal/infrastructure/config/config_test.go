package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Port:            8080,
			ReadTimeout:     15 * time.Second,
			WriteTimeout:    15 * time.Second,
			ShutdownTimeout: 30 * time.Second,
		},
		Database: DatabaseConfig{
			Host:     "localhost",
			Port:     5432,
			User:     "test",
			Password: "test",
			Database: "test_db",
		},
		Redis: RedisConfig{
			Host: "localhost",
			Port: 6379,
		},
		Store: StoreConfig{
			OperationTimeout: 5 * time.Second,
		},
		Queue: QueueConfig{
			MaxAttempts:   5,
			BackoffBase:   time.Second,
			BackoffMax:    30 * time.Second,
			BatchSize:     10,
			ClaimMinIdle:  time.Minute,
			ClaimInterval: 30 * time.Second,
		},
		Outbox: OutboxConfig{
			PollInterval: 2 * time.Second,
			BatchSize:    10,
		},
		Alerts: AlertsConfig{
			LowStockThreshold:          10,
			SignificantChangeThreshold: 50,
		},
		Images: ImagesConfig{
			AllowedExtensions: []string{".jpg", ".png"},
		},
	}
}

func TestConfig_Validate_Success(t *testing.T) {
	assert.NoError(t, validConfig().Validate())
}

func TestConfig_Validate_InvalidServerPort(t *testing.T) {
	tests := []struct {
		name string
		port int
	}{
		{"port too low", 0},
		{"port negative", -1},
		{"port too high", 99999},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			cfg.Server.Port = tt.port

			err := cfg.Validate()
			assert.Error(t, err)
			assert.Contains(t, err.Error(), "server.port")
		})
	}
}

func TestConfig_Validate_InvalidTimeouts(t *testing.T) {
	cfg := validConfig()
	cfg.Server.ReadTimeout = 0
	err := cfg.Validate()
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "read_timeout")

	cfg = validConfig()
	cfg.Server.WriteTimeout = 0
	err = cfg.Validate()
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "write_timeout")

	cfg = validConfig()
	cfg.Store.OperationTimeout = 0
	err = cfg.Validate()
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "store.operation_timeout")
}

func TestConfig_Validate_MissingDatabaseHost(t *testing.T) {
	cfg := validConfig()
	cfg.Database.Host = ""

	err := cfg.Validate()
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "database.host")
}

func TestConfig_Validate_InvalidQueueSettings(t *testing.T) {
	cfg := validConfig()
	cfg.Queue.MaxAttempts = 0
	err := cfg.Validate()
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "queue.max_attempts")

	cfg = validConfig()
	cfg.Queue.BackoffMax = cfg.Queue.BackoffBase - time.Millisecond
	err = cfg.Validate()
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "queue.backoff_max")

	cfg = validConfig()
	cfg.Queue.BatchSize = 0
	err = cfg.Validate()
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "queue.batch_size")

	cfg = validConfig()
	cfg.Queue.ClaimMinIdle = 0
	err = cfg.Validate()
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "queue.claim_min_idle")

	cfg = validConfig()
	cfg.Queue.ClaimInterval = 0
	err = cfg.Validate()
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "queue.claim_interval")
}

func TestConfig_Validate_InvalidAlertThresholds(t *testing.T) {
	cfg := validConfig()
	cfg.Alerts.LowStockThreshold = 0
	err := cfg.Validate()
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "alerts.low_stock_threshold")

	cfg = validConfig()
	cfg.Alerts.SignificantChangeThreshold = 0
	err = cfg.Validate()
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "alerts.significant_change_threshold")
}

func TestConfig_Validate_EmptyAllowedExtensions(t *testing.T) {
	cfg := validConfig()
	cfg.Images.AllowedExtensions = nil

	err := cfg.Validate()
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "images.allowed_extensions")
}

func TestConfig_Validate_MultipleErrors(t *testing.T) {
	cfg := validConfig()
	cfg.Server.Port = 0
	cfg.Database.Host = ""
	cfg.Queue.MaxAttempts = 0
	cfg.Outbox.PollInterval = 0

	err := cfg.Validate()
	require.Error(t, err)

	errStr := err.Error()
	assert.Contains(t, errStr, "server.port")
	assert.Contains(t, errStr, "database.host")
	assert.Contains(t, errStr, "queue.max_attempts")
	assert.Contains(t, errStr, "outbox.poll_interval")
}

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, 5432, cfg.Database.Port)
	assert.Equal(t, 6379, cfg.Redis.Port)
	assert.Equal(t, 5, cfg.Queue.MaxAttempts)
	assert.Equal(t, time.Second, cfg.Queue.BackoffBase)
	assert.Equal(t, 30*time.Second, cfg.Queue.BackoffMax)
	assert.Equal(t, time.Minute, cfg.Queue.ClaimMinIdle)
	assert.Equal(t, 30*time.Second, cfg.Queue.ClaimInterval)
	assert.Equal(t, "retail-notifications", cfg.Queue.ConsumerGroup)
	assert.Equal(t, 2*time.Second, cfg.Outbox.PollInterval)
	assert.Equal(t, 24*time.Hour, cfg.Processor.IdempotencyTTL)
	assert.Equal(t, 10, cfg.Alerts.LowStockThreshold)
	assert.Equal(t, 50, cfg.Alerts.SignificantChangeThreshold)
	assert.Contains(t, cfg.Images.AllowedExtensions, ".jpg")
}

func TestDatabaseConfig_DatabaseDSN(t *testing.T) {
	cfg := DatabaseConfig{
		Host:     "db.example.com",
		Port:     5432,
		User:     "app_user",
		Password: "secret",
		Database: "retail_db",
		SSLMode:  "require",
	}

	assert.Equal(t,
		"host=db.example.com port=5432 user=app_user password=secret dbname=retail_db sslmode=require",
		cfg.DatabaseDSN())
}

func TestRedisConfig_RedisAddr(t *testing.T) {
	cfg := RedisConfig{Host: "redis.example.com", Port: 6379}
	assert.Equal(t, "redis.example.com:6379", cfg.RedisAddr())
}
