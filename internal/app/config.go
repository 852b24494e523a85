package app

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

const (
	// StorageDriverMemory хранит всё в памяти процесса.
	StorageDriverMemory = "memory"
	// StorageDriverPostgres использует PostgreSQL через pgx.
	StorageDriverPostgres = "postgres"

	// CartDriverRedis переносит корзины в Redis.
	CartDriverRedis = "redis"

	envPrefix     = "STOREFRONT"
	configFileEnv = "CONFIG_FILE"
)

// Config описывает настройки запуска приложения.
type Config struct {
	HTTPAddr    string
	GRPCAddr    string
	MetricsAddr string

	StorageDriver       string
	PostgresDSN         string
	PostgresAutoMigrate bool

	// CartDriver пустой: корзины живут в основном хранилище.
	CartDriver    string
	RedisAddr     string
	RedisPassword string
	RedisDB       int
	CartTTL       time.Duration

	// KafkaBrokers — список брокеров через запятую. Пустой отключает outbox worker.
	KafkaBrokers  string
	KafkaTopic    string
	KafkaDLQTopic string

	JWTSecret string
	JWTTTL    time.Duration
	// AdminEmails — адреса через запятую, которым при входе выдаётся роль admin.
	AdminEmails string
	Currency    string

	OutboxPollInterval time.Duration
	OutboxBatchSize    int
	OutboxMaxAttempts  int
	OutboxRetryDelay   time.Duration
	// OutboxBreakerFailures — ошибок подряд до размыкания цепи publisher.
	OutboxBreakerFailures int
	OutboxBreakerReset    time.Duration

	IdempotencyTTL              time.Duration
	IdempotencyCleanupInterval  time.Duration
	IdempotencyCleanupBatchSize int

	LogLevel  string
	LogFormat string
}

// DefaultConfig возвращает настройки для локального запуска.
func DefaultConfig() Config {
	return Config{
		HTTPAddr:                    ":5000",
		GRPCAddr:                    ":50051",
		MetricsAddr:                 ":9090",
		StorageDriver:               StorageDriverMemory,
		PostgresAutoMigrate:         true,
		RedisAddr:                   "localhost:6379",
		CartTTL:                     7 * 24 * time.Hour,
		JWTTTL:                      2 * time.Hour,
		Currency:                    "THB",
		OutboxPollInterval:          time.Second,
		OutboxBatchSize:             100,
		OutboxMaxAttempts:           3,
		OutboxRetryDelay:            100 * time.Millisecond,
		OutboxBreakerFailures:       5,
		OutboxBreakerReset:          30 * time.Second,
		IdempotencyTTL:              24 * time.Hour,
		IdempotencyCleanupInterval:  time.Minute,
		IdempotencyCleanupBatchSize: 500,
		LogLevel:                    "info",
		LogFormat:                   "text",
	}
}

// LoadConfig читает переменные окружения STOREFRONT_* и, если задан
// STOREFRONT_CONFIG_FILE, файл конфигурации. Окружение важнее файла.
func LoadConfig() (Config, error) {
	return loadConfig(viper.New())
}

func loadConfig(v *viper.Viper) (Config, error) {
	def := DefaultConfig()

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetDefault("http_addr", def.HTTPAddr)
	v.SetDefault("grpc_addr", def.GRPCAddr)
	v.SetDefault("metrics_addr", def.MetricsAddr)
	v.SetDefault("storage_driver", def.StorageDriver)
	v.SetDefault("postgres_dsn", def.PostgresDSN)
	v.SetDefault("postgres_auto_migrate", def.PostgresAutoMigrate)
	v.SetDefault("cart_driver", def.CartDriver)
	v.SetDefault("redis_addr", def.RedisAddr)
	v.SetDefault("redis_password", def.RedisPassword)
	v.SetDefault("redis_db", def.RedisDB)
	v.SetDefault("cart_ttl", def.CartTTL)
	v.SetDefault("kafka_brokers", def.KafkaBrokers)
	v.SetDefault("kafka_topic", def.KafkaTopic)
	v.SetDefault("kafka_dlq_topic", def.KafkaDLQTopic)
	v.SetDefault("jwt_secret", def.JWTSecret)
	v.SetDefault("jwt_ttl", def.JWTTTL)
	v.SetDefault("admin_emails", def.AdminEmails)
	v.SetDefault("currency", def.Currency)
	v.SetDefault("outbox_poll_interval", def.OutboxPollInterval)
	v.SetDefault("outbox_batch_size", def.OutboxBatchSize)
	v.SetDefault("outbox_max_attempts", def.OutboxMaxAttempts)
	v.SetDefault("outbox_retry_delay", def.OutboxRetryDelay)
	v.SetDefault("outbox_breaker_failures", def.OutboxBreakerFailures)
	v.SetDefault("outbox_breaker_reset", def.OutboxBreakerReset)
	v.SetDefault("idempotency_ttl", def.IdempotencyTTL)
	v.SetDefault("idempotency_cleanup_interval", def.IdempotencyCleanupInterval)
	v.SetDefault("idempotency_cleanup_batch_size", def.IdempotencyCleanupBatchSize)
	v.SetDefault("log_level", def.LogLevel)
	v.SetDefault("log_format", def.LogFormat)

	if path := v.GetString(configFileEnv); path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config file %s: %w", path, err)
		}
	}

	cfg := Config{
		HTTPAddr:                    v.GetString("http_addr"),
		GRPCAddr:                    v.GetString("grpc_addr"),
		MetricsAddr:                 v.GetString("metrics_addr"),
		StorageDriver:               strings.ToLower(strings.TrimSpace(v.GetString("storage_driver"))),
		PostgresDSN:                 v.GetString("postgres_dsn"),
		PostgresAutoMigrate:         v.GetBool("postgres_auto_migrate"),
		CartDriver:                  strings.ToLower(strings.TrimSpace(v.GetString("cart_driver"))),
		RedisAddr:                   v.GetString("redis_addr"),
		RedisPassword:               v.GetString("redis_password"),
		RedisDB:                     v.GetInt("redis_db"),
		CartTTL:                     v.GetDuration("cart_ttl"),
		KafkaBrokers:                v.GetString("kafka_brokers"),
		KafkaTopic:                  v.GetString("kafka_topic"),
		KafkaDLQTopic:               v.GetString("kafka_dlq_topic"),
		JWTSecret:                   v.GetString("jwt_secret"),
		JWTTTL:                      v.GetDuration("jwt_ttl"),
		AdminEmails:                 v.GetString("admin_emails"),
		Currency:                    strings.ToUpper(strings.TrimSpace(v.GetString("currency"))),
		OutboxPollInterval:          v.GetDuration("outbox_poll_interval"),
		OutboxBatchSize:             v.GetInt("outbox_batch_size"),
		OutboxMaxAttempts:           v.GetInt("outbox_max_attempts"),
		OutboxRetryDelay:            v.GetDuration("outbox_retry_delay"),
		OutboxBreakerFailures:       v.GetInt("outbox_breaker_failures"),
		OutboxBreakerReset:          v.GetDuration("outbox_breaker_reset"),
		IdempotencyTTL:              v.GetDuration("idempotency_ttl"),
		IdempotencyCleanupInterval:  v.GetDuration("idempotency_cleanup_interval"),
		IdempotencyCleanupBatchSize: v.GetInt("idempotency_cleanup_batch_size"),
		LogLevel:                    v.GetString("log_level"),
		LogFormat:                   v.GetString("log_format"),
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate проверяет согласованность настроек.
func (c Config) Validate() error {
	var errs []error

	switch c.StorageDriver {
	case StorageDriverMemory:
	case StorageDriverPostgres:
		if strings.TrimSpace(c.PostgresDSN) == "" {
			errs = append(errs, errors.New("postgres dsn is required for postgres storage"))
		}
	default:
		errs = append(errs, fmt.Errorf("unsupported storage driver %q", c.StorageDriver))
	}

	switch c.CartDriver {
	case "":
	case CartDriverRedis:
		if strings.TrimSpace(c.RedisAddr) == "" {
			errs = append(errs, errors.New("redis addr is required for redis carts"))
		}
	default:
		errs = append(errs, fmt.Errorf("unsupported cart driver %q", c.CartDriver))
	}

	if c.JWTSecret == "" {
		errs = append(errs, errors.New("jwt secret is required"))
	}
	if c.Currency == "" {
		errs = append(errs, errors.New("currency is required"))
	}
	if c.OutboxBatchSize <= 0 {
		errs = append(errs, errors.New("outbox batch size must be positive"))
	}
	if c.OutboxMaxAttempts <= 0 {
		errs = append(errs, errors.New("outbox max attempts must be positive"))
	}
	if c.IdempotencyCleanupBatchSize <= 0 {
		errs = append(errs, errors.New("idempotency cleanup batch size must be positive"))
	}

	return errors.Join(errs...)
}

// kafkaBrokerList разбирает KafkaBrokers, отбрасывая пустые элементы.
func (c Config) kafkaBrokerList() []string {
	return splitList(c.KafkaBrokers)
}

func (c Config) adminEmailList() []string {
	return splitList(c.AdminEmails)
}

func splitList(raw string) []string {
	var items []string
	for _, item := range strings.Split(raw, ",") {
		if item = strings.TrimSpace(item); item != "" {
			items = append(items, item)
		}
	}
	return items
}
