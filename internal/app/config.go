package app

import (
	"fmt"
	"strings"
	"time"
	_ "time/tzdata"

	"github.com/kelseyhightower/envconfig"
	"golang.org/x/text/language"
)

// Драйверы хранилища заказов.
const (
	StorageDriverMemory   = "memory"
	StorageDriverPostgres = "postgres"
)

// envPrefix — префикс переменных окружения: PEDIDOS_STORAGE_DRIVER и т.д.
const envPrefix = "PEDIDOS"

// Config описывает настройки запуска процессов pedidos.
type Config struct {
	MetricsAddr string `envconfig:"METRICS_ADDR" default:":9090"`
	LogLevel    string `envconfig:"LOG_LEVEL" default:"info"`
	LogFormat   string `envconfig:"LOG_FORMAT" default:"json"`

	StorageDriver       string `envconfig:"STORAGE_DRIVER" default:"memory"`
	PostgresDSN         string `envconfig:"POSTGRES_DSN"`
	PostgresAutoMigrate bool   `envconfig:"POSTGRES_AUTO_MIGRATE" default:"true"`

	KafkaBrokers      []string `envconfig:"KAFKA_BROKERS"`
	KafkaClientID     string   `envconfig:"KAFKA_CLIENT_ID" default:"outbox-relay"`
	KafkaOrderTopic   string   `envconfig:"KAFKA_ORDER_TOPIC" default:"pedidos.order.events"`
	KafkaCatalogTopic string   `envconfig:"KAFKA_CATALOG_TOPIC" default:"pedidos.catalog.events"`
	KafkaDLQTopic     string   `envconfig:"KAFKA_DLQ_TOPIC" default:"pedidos.dlq"`

	OutboxPollInterval time.Duration `envconfig:"OUTBOX_POLL_INTERVAL" default:"1s"`
	OutboxBatchSize    int           `envconfig:"OUTBOX_BATCH_SIZE" default:"100"`
	OutboxMaxAttempts  int           `envconfig:"OUTBOX_MAX_ATTEMPTS" default:"3"`
	OutboxRetryDelay   time.Duration `envconfig:"OUTBOX_RETRY_DELAY" default:"50ms"`
	// После OutboxMaxPending сообщений или возраста OutboxMaxAge /healthz отвечает degraded.
	OutboxMaxPending int           `envconfig:"OUTBOX_MAX_PENDING" default:"1000"`
	OutboxMaxAge     time.Duration `envconfig:"OUTBOX_MAX_AGE" default:"5m"`
	// Отправленные сообщения удаляются после OutboxRetention.
	OutboxRetention       time.Duration `envconfig:"OUTBOX_RETENTION" default:"72h"`
	OutboxCleanupInterval time.Duration `envconfig:"OUTBOX_CLEANUP_INTERVAL" default:"10m"`

	LookupQuietPeriod  time.Duration `envconfig:"LOOKUP_QUIET_PERIOD" default:"300ms"`
	LookupFetchTimeout time.Duration `envconfig:"LOOKUP_FETCH_TIMEOUT" default:"5s"`

	AuditLocale   string `envconfig:"AUDIT_LOCALE" default:"es"`
	AuditTimeZone string `envconfig:"AUDIT_TIME_ZONE" default:"UTC"`
	AuditCurrency string `envconfig:"AUDIT_CURRENCY" default:"$"`
}

// DefaultConfig возвращает настройки по умолчанию без чтения окружения.
func DefaultConfig() Config {
	return Config{
		MetricsAddr:           ":9090",
		LogLevel:              "info",
		LogFormat:             "json",
		StorageDriver:         StorageDriverMemory,
		PostgresAutoMigrate:   true,
		KafkaClientID:         "outbox-relay",
		KafkaOrderTopic:       "pedidos.order.events",
		KafkaCatalogTopic:     "pedidos.catalog.events",
		KafkaDLQTopic:         "pedidos.dlq",
		OutboxPollInterval:    time.Second,
		OutboxBatchSize:       100,
		OutboxMaxAttempts:     3,
		OutboxRetryDelay:      50 * time.Millisecond,
		OutboxMaxPending:      1000,
		OutboxMaxAge:          5 * time.Minute,
		OutboxRetention:       72 * time.Hour,
		OutboxCleanupInterval: 10 * time.Minute,
		LookupQuietPeriod:     300 * time.Millisecond,
		LookupFetchTimeout:    5 * time.Second,
		AuditLocale:           "es",
		AuditTimeZone:         "UTC",
		AuditCurrency:         "$",
	}
}

// LoadConfig читает настройки из переменных окружения с префиксом PEDIDOS_.
func LoadConfig() (Config, error) {
	var cfg Config
	if err := envconfig.Process(envPrefix, &cfg); err != nil {
		return Config{}, fmt.Errorf("load config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate проверяет согласованность настроек.
func (c Config) Validate() error {
	switch strings.ToLower(c.StorageDriver) {
	case StorageDriverMemory:
	case StorageDriverPostgres:
		if strings.TrimSpace(c.PostgresDSN) == "" {
			return fmt.Errorf("PEDIDOS_POSTGRES_DSN is required for storage driver %q", c.StorageDriver)
		}
	default:
		return fmt.Errorf("unsupported storage driver %q", c.StorageDriver)
	}
	if c.OutboxBatchSize <= 0 {
		return fmt.Errorf("outbox batch size must be positive, got %d", c.OutboxBatchSize)
	}
	if c.OutboxMaxAttempts <= 0 {
		return fmt.Errorf("outbox max attempts must be positive, got %d", c.OutboxMaxAttempts)
	}
	if c.OutboxRetention <= 0 {
		return fmt.Errorf("outbox retention must be positive, got %s", c.OutboxRetention)
	}
	if _, err := c.auditLanguage(); err != nil {
		return err
	}
	if _, err := c.auditLocation(); err != nil {
		return err
	}
	return nil
}

// KafkaEnabled сообщает, настроены ли брокеры.
func (c Config) KafkaEnabled() bool {
	for _, b := range c.KafkaBrokers {
		if strings.TrimSpace(b) != "" {
			return true
		}
	}
	return false
}

func (c Config) auditLanguage() (language.Tag, error) {
	tag, err := language.Parse(c.AuditLocale)
	if err != nil {
		return language.Und, fmt.Errorf("invalid audit locale %q: %w", c.AuditLocale, err)
	}
	return tag, nil
}

func (c Config) auditLocation() (*time.Location, error) {
	if c.AuditTimeZone == "" {
		return time.UTC, nil
	}
	loc, err := time.LoadLocation(c.AuditTimeZone)
	if err != nil {
		return nil, fmt.Errorf("invalid audit time zone %q: %w", c.AuditTimeZone, err)
	}
	return loc, nil
}
