package config

import (
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	MySQL     MySQLConfig     `mapstructure:"mysql"`
	Redis     RedisConfig     `mapstructure:"redis"`
	Etcd      EtcdConfig      `mapstructure:"etcd"`
	Queue     QueueConfig     `mapstructure:"queue"`
	Storage   StorageConfig   `mapstructure:"storage"`
	Webhook   WebhookConfig   `mapstructure:"webhook"`
	Fetch     FetchConfig     `mapstructure:"fetch"`
	Workers   WorkersConfig   `mapstructure:"workers"`
	Auth      AuthConfig      `mapstructure:"auth"`
	RateLimit RateLimitConfig `mapstructure:"ratelimit"`
}

type ServerConfig struct {
	Environment string `mapstructure:"environment"`
	Port        string `mapstructure:"port"`
}

type MySQLConfig struct {
	DSN string `mapstructure:"dsn"`
}

type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

type EtcdConfig struct {
	Endpoints   []string      `mapstructure:"endpoints"`
	DialTimeout time.Duration `mapstructure:"dial_timeout"`
}

type QueueConfig struct {
	Name        string `mapstructure:"name"`
	Concurrency int    `mapstructure:"concurrency"`
	MaxRetry    int    `mapstructure:"max_retry"`
}

type StorageConfig struct {
	Bucket    string `mapstructure:"bucket"`
	Region    string `mapstructure:"region"`
	KeyPrefix string `mapstructure:"key_prefix"`
	AccessKey string `mapstructure:"access_key"`
	SecretKey string `mapstructure:"secret_key"`
}

type WebhookConfig struct {
	Timeout  time.Duration `mapstructure:"timeout"`
	MaxRetry int           `mapstructure:"max_retry"`
}

type FetchConfig struct {
	Timeout      time.Duration `mapstructure:"timeout"`
	MaxBodyBytes int64         `mapstructure:"max_body_bytes"`
	TaskMaxRetry int           `mapstructure:"task_max_retry"`
}

// WorkersConfig bounds every scheduled loop: a fixed batch per tick and, for
// the retry loops, a hard iteration cap. Tunable per environment.
type WorkersConfig struct {
	DispatchInterval  time.Duration `mapstructure:"dispatch_interval"`
	DispatchBatchSize int           `mapstructure:"dispatch_batch_size"`

	RecoveryInterval  time.Duration `mapstructure:"recovery_interval"`
	RecoveryBatchSize int           `mapstructure:"recovery_batch_size"`
	StaleThreshold    time.Duration `mapstructure:"stale_threshold"`
	RecoveryLockLease time.Duration `mapstructure:"recovery_lock_lease"`

	RetryInterval      time.Duration `mapstructure:"retry_interval"`
	RetryBatchSize     int           `mapstructure:"retry_batch_size"`
	RetryMaxIterations int           `mapstructure:"retry_max_iterations"`
	RetryBackoff       time.Duration `mapstructure:"retry_backoff"`

	OutboxMaxRetry int `mapstructure:"outbox_max_retry"`

	EventBufferSize int `mapstructure:"event_buffer_size"`
}

type AuthConfig struct {
	SignedKey       string        `mapstructure:"signed_key"`
	AdminUsername   string        `mapstructure:"admin_username"`
	AdminPassword   string        `mapstructure:"admin_password"`
	AccessTokenTTL  time.Duration `mapstructure:"access_token_ttl"`
	RefreshTokenTTL time.Duration `mapstructure:"refresh_token_ttl"`
}

type RateLimitConfig struct {
	RequestsPerSecond int `mapstructure:"requests_per_second"`
}

func Load() *Config {
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")
	viper.AddConfigPath("./config")

	viper.SetEnvPrefix("FETCH")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	setDefaults()

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			panic(err)
		}
	}

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		panic(err)
	}

	return &cfg
}

func setDefaults() {
	viper.SetDefault("server.environment", "development")
	viper.SetDefault("server.port", ":8080")

	viper.SetDefault("etcd.endpoints", []string{"localhost:2379"})
	viper.SetDefault("etcd.dial_timeout", 5*time.Second)

	// Dev defaults. Override signed_key and the admin credentials via
	// FETCH_AUTH_* env vars or the config file outside development.
	viper.SetDefault("auth.signed_key", "fetchflow-dev-signing-key")
	viper.SetDefault("auth.admin_username", "admin")
	viper.SetDefault("auth.admin_password", "admin123")
	viper.SetDefault("auth.access_token_ttl", 15*time.Minute)
	viper.SetDefault("auth.refresh_token_ttl", 7*24*time.Hour)

	viper.SetDefault("ratelimit.requests_per_second", 20)

	viper.SetDefault("queue.name", "fetchflow:tasks")
	viper.SetDefault("queue.concurrency", 10)
	viper.SetDefault("queue.max_retry", 5)

	viper.SetDefault("webhook.timeout", 10*time.Second)
	viper.SetDefault("webhook.max_retry", 2)

	viper.SetDefault("fetch.timeout", 60*time.Second)
	viper.SetDefault("fetch.max_body_bytes", int64(512<<20))
	viper.SetDefault("fetch.task_max_retry", 3)

	viper.SetDefault("workers.dispatch_interval", 5*time.Second)
	viper.SetDefault("workers.dispatch_batch_size", 50)
	viper.SetDefault("workers.recovery_interval", 30*time.Second)
	viper.SetDefault("workers.recovery_batch_size", 100)
	viper.SetDefault("workers.stale_threshold", 10*time.Minute)
	viper.SetDefault("workers.recovery_lock_lease", 60*time.Second)
	viper.SetDefault("workers.retry_interval", 30*time.Second)
	viper.SetDefault("workers.retry_batch_size", 50)
	viper.SetDefault("workers.retry_max_iterations", 10)
	viper.SetDefault("workers.retry_backoff", 60*time.Second)
	viper.SetDefault("workers.outbox_max_retry", 5)
	viper.SetDefault("workers.event_buffer_size", 1000)
}
