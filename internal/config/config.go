package config

import (
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"

	"cashflow-service/internal/cache"
	"cashflow-service/internal/messaging"
	"cashflow-service/internal/resilience"
)

type Config struct {
	App        AppConfig
	Database   DatabaseConfig
	RabbitMQ   RabbitMQConfig
	Redis      RedisConfig
	Cache      CacheConfig
	Resilience ResilienceConfig
	Worker     WorkerConfig
}

type AppConfig struct {
	Name            string        `envconfig:"APP_NAME" default:"cashflow"`
	LogLevel        string        `envconfig:"LOG_LEVEL" default:"info"`
	Port            int           `envconfig:"PORT" default:"8080"`
	ShutdownTimeout time.Duration `envconfig:"SHUTDOWN_TIMEOUT" default:"15s"`
}

type DatabaseConfig struct {
	Host            string        `envconfig:"DB_HOST" default:"localhost"`
	Port            int           `envconfig:"DB_PORT" default:"5432"`
	User            string        `envconfig:"DB_USER" default:"postgres"`
	Password        string        `envconfig:"DB_PASSWORD" default:"postgres"`
	DBName          string        `envconfig:"DB_NAME" default:"cashflow"`
	SSLMode         string        `envconfig:"DB_SSLMODE" default:"disable"`
	MaxOpenConns    int           `envconfig:"DB_MAX_OPEN_CONNS" default:"25"`
	MaxIdleConns    int           `envconfig:"DB_MAX_IDLE_CONNS" default:"10"`
	ConnMaxLifetime time.Duration `envconfig:"DB_CONN_MAX_LIFETIME" default:"1h"`
}

func (c DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.DBName, c.SSLMode,
	)
}

type RabbitMQConfig struct {
	Host     string `envconfig:"RABBITMQ_HOST" default:"localhost"`
	Port     int    `envconfig:"RABBITMQ_PORT" default:"5672"`
	User     string `envconfig:"RABBITMQ_USER" default:"guest"`
	Password string `envconfig:"RABBITMQ_PASSWORD" default:"guest"`
	VHost    string `envconfig:"RABBITMQ_VHOST" default:"/"`

	Exchange   string `envconfig:"RABBITMQ_EXCHANGE" default:"cashflow.events"`
	Queue      string `envconfig:"RABBITMQ_QUEUE" default:"cashflow.consolidation"`
	BindingKey string `envconfig:"RABBITMQ_BINDING_KEY" default:"entry.#"`
	QueueType  string `envconfig:"RABBITMQ_QUEUE_TYPE" default:"quorum"`

	// MaxDeliveries bounds redelivery of messages whose handler keeps failing.
	MaxDeliveries int           `envconfig:"RABBITMQ_MAX_DELIVERIES" default:"5"`
	Heartbeat     time.Duration `envconfig:"RABBITMQ_HEARTBEAT" default:"10s"`
}

func (c RabbitMQConfig) URL() string {
	u := url.URL{
		Scheme: "amqp",
		User:   url.UserPassword(c.User, c.Password),
		Host:   fmt.Sprintf("%s:%d", c.Host, c.Port),
		Path:   c.VHost,
	}

	return u.String()
}

func (c RabbitMQConfig) Topology() messaging.Topology {
	return messaging.Topology{
		Exchange:      c.Exchange,
		ExchangeKind:  "topic",
		Queue:         c.Queue,
		BindingKey:    c.BindingKey,
		QueueType:     c.QueueType,
		MaxDeliveries: c.MaxDeliveries,
	}
}

// RedisConfig is the shared cache. An empty REDIS_ADDR disables caching.
type RedisConfig struct {
	Addr     string `envconfig:"REDIS_ADDR" default:"localhost:6379"`
	Password string `envconfig:"REDIS_PASSWORD"`
	DB       int    `envconfig:"REDIS_DB" default:"0"`
	Prefix   string `envconfig:"REDIS_PREFIX" default:"cashflow:"`
}

func (c RedisConfig) Options() cache.RedisConfig {
	return cache.RedisConfig{
		Addr:     c.Addr,
		Password: c.Password,
		DB:       c.DB,
		Prefix:   c.Prefix,
	}
}

type CacheConfig struct {
	DefaultTTL time.Duration `envconfig:"CACHE_DEFAULT_TTL" default:"30m"`
	BalanceTTL time.Duration `envconfig:"CACHE_BALANCE_TTL" default:"15m"`
}

type ResilienceConfig struct {
	RetryAttempts    int           `envconfig:"RESILIENCE_RETRY_ATTEMPTS" default:"3"`
	FailureRatio     float64       `envconfig:"RESILIENCE_FAILURE_RATIO" default:"0.5"`
	SamplingDuration time.Duration `envconfig:"RESILIENCE_SAMPLING_DURATION" default:"30s"`
	BreakDuration    time.Duration `envconfig:"RESILIENCE_BREAK_DURATION" default:"30s"`
	MaxDelay         time.Duration `envconfig:"RESILIENCE_MAX_DELAY" default:"5s"`

	CacheBaseDelay         time.Duration `envconfig:"RESILIENCE_CACHE_BASE_DELAY" default:"200ms"`
	CacheTimeout           time.Duration `envconfig:"RESILIENCE_CACHE_TIMEOUT" default:"5s"`
	CacheMinimumThroughput int           `envconfig:"RESILIENCE_CACHE_MIN_THROUGHPUT" default:"5"`

	TransportBaseDelay         time.Duration `envconfig:"RESILIENCE_TRANSPORT_BASE_DELAY" default:"500ms"`
	TransportTimeout           time.Duration `envconfig:"RESILIENCE_TRANSPORT_TIMEOUT" default:"10s"`
	TransportMinimumThroughput int           `envconfig:"RESILIENCE_TRANSPORT_MIN_THROUGHPUT" default:"10"`
}

func (c ResilienceConfig) CachePolicy() resilience.Config {
	return resilience.Config{
		Name:              "cache",
		MaxAttempts:       c.RetryAttempts,
		BaseDelay:         c.CacheBaseDelay,
		MaxDelay:          c.MaxDelay,
		Timeout:           c.CacheTimeout,
		FailureRatio:      c.FailureRatio,
		MinimumThroughput: c.CacheMinimumThroughput,
		SamplingDuration:  c.SamplingDuration,
		BreakDuration:     c.BreakDuration,
	}
}

func (c ResilienceConfig) TransportPolicy() resilience.Config {
	return resilience.Config{
		Name:              "transport",
		MaxAttempts:       c.RetryAttempts,
		BaseDelay:         c.TransportBaseDelay,
		MaxDelay:          c.MaxDelay,
		Timeout:           c.TransportTimeout,
		FailureRatio:      c.FailureRatio,
		MinimumThroughput: c.TransportMinimumThroughput,
		SamplingDuration:  c.SamplingDuration,
		BreakDuration:     c.BreakDuration,
	}
}

type WorkerConfig struct {
	HandlerTimeout    time.Duration `envconfig:"WORKER_HANDLER_TIMEOUT" default:"30s"`
	ReconnectDelay    time.Duration `envconfig:"WORKER_RECONNECT_DELAY" default:"1s"`
	ReconnectMaxDelay time.Duration `envconfig:"WORKER_RECONNECT_MAX_DELAY" default:"30s"`
	HealthFile        string        `envconfig:"WORKER_HEALTH_FILE" default:"/tmp/healthy"`
	HealthInterval    time.Duration `envconfig:"WORKER_HEALTH_INTERVAL" default:"10s"`
	WarmDays          int           `envconfig:"WORKER_WARM_DAYS" default:"7"`
	WarmInterval      time.Duration `envconfig:"WORKER_WARM_INTERVAL" default:"5m"`
}

// Load reads an optional .env file and then the process environment.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("failed to read .env: %w", err)
	}

	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to process config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func (c *Config) Validate() error {
	r := c.Resilience

	switch {
	case r.RetryAttempts < 1:
		return fmt.Errorf("RESILIENCE_RETRY_ATTEMPTS must be at least 1, got %d", r.RetryAttempts)
	case r.FailureRatio <= 0 || r.FailureRatio > 1:
		return fmt.Errorf("RESILIENCE_FAILURE_RATIO must be in (0, 1], got %v", r.FailureRatio)
	case r.CacheTimeout <= 0 || r.TransportTimeout <= 0:
		return errors.New("resilience timeouts must be positive")
	case c.RabbitMQ.MaxDeliveries < 1:
		return fmt.Errorf("RABBITMQ_MAX_DELIVERIES must be at least 1, got %d", c.RabbitMQ.MaxDeliveries)
	case c.RabbitMQ.QueueType != "quorum" && c.RabbitMQ.QueueType != "classic":
		return fmt.Errorf("RABBITMQ_QUEUE_TYPE must be quorum or classic, got %q", c.RabbitMQ.QueueType)
	}

	return nil
}
