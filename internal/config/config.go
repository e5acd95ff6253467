// Package config loads process settings: built-in defaults, then an optional YAML file,
// then an optional .env file, then the process environment. Later layers win.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

const (
	DriverMemory   = "memory"
	DriverPostgres = "postgres"

	defaultConfigFile = "config.yaml"
)

type Config struct {
	Service   Service   `yaml:"service"`
	HTTP      HTTP      `yaml:"http"`
	Log       Log       `yaml:"log"`
	Store     Store     `yaml:"store"`
	Postgres  Postgres  `yaml:"postgres"`
	Redis     Redis     `yaml:"redis"`
	Kafka     Kafka     `yaml:"kafka"`
	RabbitMQ  RabbitMQ  `yaml:"rabbitmq"`
	OTel      OTel      `yaml:"otel"`
	Inventory Inventory `yaml:"inventory"`
	Catalog   Catalog   `yaml:"catalog"`
	Kitchen   Kitchen   `yaml:"kitchen"`
}

type Service struct {
	Name    string `yaml:"name"`
	Env     string `yaml:"env"`
	Version string `yaml:"version"`
}

type HTTP struct {
	Addr            string        `yaml:"addr"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
	RequestTimeout  time.Duration `yaml:"request_timeout"`
}

type Log struct {
	Level string `yaml:"level"`
}

type Store struct {
	Driver string `yaml:"driver"`
}

type Postgres struct {
	DSN string `yaml:"dsn"`
}

// Redis is optional; an empty Addr disables the order status cache.
type Redis struct {
	Addr      string        `yaml:"addr"`
	StatusTTL time.Duration `yaml:"status_ttl"`
}

// Kafka is optional; no brokers disables the event relay.
type Kafka struct {
	Brokers []string `yaml:"brokers"`
	Topic   string   `yaml:"topic"`
}

// RabbitMQ is optional; an empty URL disables the kitchen queue.
type RabbitMQ struct {
	URL      string `yaml:"url"`
	Exchange string `yaml:"exchange"`
}

// OTel is optional; an empty Endpoint keeps tracing in-process only.
type OTel struct {
	Endpoint string `yaml:"endpoint"`
	Insecure bool   `yaml:"insecure"`
}

type Inventory struct {
	LowStockThreshold int `yaml:"low_stock_threshold"`
	AutoRestockQty    int `yaml:"auto_restock_qty"`
}

type Catalog struct {
	Seed bool `yaml:"seed"`
}

type Kitchen struct {
	AutoStart bool `yaml:"auto_start"`
}

func Default() Config {
	return Config{
		Service:   Service{Name: "cafeteria", Env: "dev", Version: "dev"},
		HTTP:      HTTP{Addr: ":8080", ShutdownTimeout: 10 * time.Second, RequestTimeout: 15 * time.Second},
		Log:       Log{Level: "info"},
		Store:     Store{Driver: DriverMemory},
		Redis:     Redis{StatusTTL: 10 * time.Minute},
		Kafka:     Kafka{Topic: "cafeteria.events"},
		RabbitMQ:  RabbitMQ{Exchange: "cafeteria.kitchen"},
		OTel:      OTel{Insecure: true},
		Inventory: Inventory{LowStockThreshold: 5},
		Catalog:   Catalog{Seed: true},
	}
}

// Load builds the configuration. An empty path means $CONFIG_FILE or config.yaml;
// a missing file is not an error, a malformed one is.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path == "" {
		path = os.Getenv("CONFIG_FILE")
	}
	if path == "" {
		path = defaultConfigFile
	}
	if err := cfg.mergeFile(path); err != nil {
		return nil, err
	}

	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("config: load .env: %w", err)
	}
	if err := cfg.mergeEnv(os.LookupEnv); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) mergeFile(path string) error {
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("config: read %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("config: parse %s: %w", path, err)
	}
	return nil
}

func (c *Config) mergeEnv(lookup func(string) (string, bool)) error {
	str := func(key string, dst *string) {
		if v, ok := lookup(key); ok && v != "" {
			*dst = v
		}
	}
	var errs []error
	integer := func(key string, dst *int) {
		if v, ok := lookup(key); ok && v != "" {
			n, err := strconv.Atoi(v)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", key, err))
				return
			}
			*dst = n
		}
	}
	boolean := func(key string, dst *bool) {
		if v, ok := lookup(key); ok && v != "" {
			b, err := strconv.ParseBool(v)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", key, err))
				return
			}
			*dst = b
		}
	}
	duration := func(key string, dst *time.Duration) {
		if v, ok := lookup(key); ok && v != "" {
			d, err := time.ParseDuration(v)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", key, err))
				return
			}
			*dst = d
		}
	}

	str("SERVICE_NAME", &c.Service.Name)
	str("ENV", &c.Service.Env)
	str("SERVICE_VERSION", &c.Service.Version)
	str("HTTP_ADDR", &c.HTTP.Addr)
	duration("HTTP_SHUTDOWN_TIMEOUT", &c.HTTP.ShutdownTimeout)
	duration("HTTP_REQUEST_TIMEOUT", &c.HTTP.RequestTimeout)
	str("LOG_LEVEL", &c.Log.Level)
	str("STORE_DRIVER", &c.Store.Driver)
	str("POSTGRES_DSN", &c.Postgres.DSN)
	str("REDIS_ADDR", &c.Redis.Addr)
	duration("REDIS_STATUS_TTL", &c.Redis.StatusTTL)
	if v, ok := lookup("KAFKA_BROKERS"); ok && v != "" {
		c.Kafka.Brokers = splitCSV(v)
	}
	str("KAFKA_TOPIC", &c.Kafka.Topic)
	str("RABBITMQ_URL", &c.RabbitMQ.URL)
	str("RABBITMQ_EXCHANGE", &c.RabbitMQ.Exchange)
	str("OTEL_EXPORTER_OTLP_ENDPOINT", &c.OTel.Endpoint)
	boolean("OTEL_EXPORTER_OTLP_INSECURE", &c.OTel.Insecure)
	integer("LOW_STOCK_THRESHOLD", &c.Inventory.LowStockThreshold)
	integer("AUTO_RESTOCK_QTY", &c.Inventory.AutoRestockQty)
	boolean("CATALOG_SEED", &c.Catalog.Seed)
	boolean("KITCHEN_AUTO_START", &c.Kitchen.AutoStart)

	if len(errs) > 0 {
		return fmt.Errorf("config: environment: %w", errors.Join(errs...))
	}
	return nil
}

func (c *Config) Validate() error {
	switch c.Store.Driver {
	case DriverMemory:
	case DriverPostgres:
		if strings.TrimSpace(c.Postgres.DSN) == "" {
			return errors.New("config: postgres.dsn is required when store.driver is postgres")
		}
	default:
		return fmt.Errorf("config: unknown store.driver %q", c.Store.Driver)
	}
	if c.HTTP.Addr == "" {
		return errors.New("config: http.addr is required")
	}
	if c.Inventory.LowStockThreshold <= 0 {
		return errors.New("config: inventory.low_stock_threshold must be greater than zero")
	}
	if c.Inventory.AutoRestockQty < 0 {
		return errors.New("config: inventory.auto_restock_qty cannot be negative")
	}
	if len(c.Kafka.Brokers) > 0 && c.Kafka.Topic == "" {
		return errors.New("config: kafka.topic is required when brokers are set")
	}
	return nil
}

func splitCSV(s string) []string {
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if t := strings.TrimSpace(p); t != "" {
			out = append(out, t)
		}
	}
	return out
}
