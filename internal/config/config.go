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
)

const (
	StoreMemory   = "memory"
	StorePostgres = "postgres"

	BrokerMemory   = "memory"
	BrokerRabbitMQ = "rabbitmq"
	BrokerKafka    = "kafka"
)

type Config struct {
	ServiceName string
	Env         string
	LogLevel    string
	LogFile     string
	HTTPAddr    string

	StoreBackend string
	DatabaseURL  string
	DBMigrate    bool
	SeedDemoData bool

	RedisAddr        string
	CustomerCacheTTL time.Duration

	EventBroker  string
	RabbitMQURL  string
	KafkaBrokers []string

	OTELEndpoint string
	OTELInsecure bool

	CommitTimeout     time.Duration
	ReconcileAttempts int
	ReconcileBackoff  time.Duration
	ShutdownTimeout   time.Duration
}

// Load reads the given dotenv files (".env" when none are named) into the
// process environment without overriding variables that are already set,
// then builds and validates a Config. Missing dotenv files are ignored.
func Load(files ...string) (*Config, error) {
	if len(files) == 0 {
		files = []string{".env"}
	}
	for _, f := range files {
		if err := godotenv.Load(f); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("load %s: %w", f, err)
		}
	}
	return fromEnv(os.Getenv)
}

func fromEnv(getenv func(string) string) (*Config, error) {
	p := parser{getenv: getenv}

	cfg := &Config{
		ServiceName: p.str("SERVICE_NAME", "minishop-checkout"),
		Env:         p.str("ENV", "dev"),
		LogLevel:    p.str("LOG_LEVEL", "info"),
		LogFile:     p.str("LOG_FILE", ""),
		HTTPAddr:    p.str("HTTP_ADDR", ":8080"),

		StoreBackend: strings.ToLower(p.str("STORE_BACKEND", StoreMemory)),
		DatabaseURL:  p.str("DATABASE_URL", ""),
		DBMigrate:    p.boolean("DB_MIGRATE", false),
		SeedDemoData: p.boolean("SEED_DEMO_DATA", true),

		RedisAddr:        p.str("REDIS_ADDR", ""),
		CustomerCacheTTL: p.duration("CUSTOMER_CACHE_TTL", time.Minute),

		EventBroker:  strings.ToLower(p.str("EVENT_BROKER", BrokerMemory)),
		RabbitMQURL:  p.str("RABBITMQ_URL", ""),
		KafkaBrokers: p.list("KAFKA_BROKERS"),

		OTELEndpoint: p.str("OTEL_ENDPOINT", ""),
		OTELInsecure: p.boolean("OTEL_INSECURE", true),

		CommitTimeout:     p.duration("COMMIT_TIMEOUT", 10*time.Second),
		ReconcileAttempts: p.integer("RECONCILE_ATTEMPTS", 5),
		ReconcileBackoff:  p.duration("RECONCILE_BACKOFF", 200*time.Millisecond),
		ShutdownTimeout:   p.duration("SHUTDOWN_TIMEOUT", 10*time.Second),
	}

	if err := errors.Join(append(p.errs, cfg.validate()...)...); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() []error {
	var errs []error
	switch c.StoreBackend {
	case StoreMemory:
	case StorePostgres:
		if c.DatabaseURL == "" {
			errs = append(errs, errors.New("DATABASE_URL is required when STORE_BACKEND=postgres"))
		}
	default:
		errs = append(errs, fmt.Errorf("STORE_BACKEND: unknown backend %q", c.StoreBackend))
	}

	switch c.EventBroker {
	case BrokerMemory:
	case BrokerRabbitMQ:
		if c.RabbitMQURL == "" {
			errs = append(errs, errors.New("RABBITMQ_URL is required when EVENT_BROKER=rabbitmq"))
		}
	case BrokerKafka:
		if len(c.KafkaBrokers) == 0 {
			errs = append(errs, errors.New("KAFKA_BROKERS is required when EVENT_BROKER=kafka"))
		}
	default:
		errs = append(errs, fmt.Errorf("EVENT_BROKER: unknown broker %q", c.EventBroker))
	}

	if c.CommitTimeout <= 0 {
		errs = append(errs, errors.New("COMMIT_TIMEOUT must be positive"))
	}
	if c.ReconcileAttempts < 1 {
		errs = append(errs, errors.New("RECONCILE_ATTEMPTS must be at least 1"))
	}
	return errs
}

type parser struct {
	getenv func(string) string
	errs   []error
}

func (p *parser) str(key, def string) string {
	if v := strings.TrimSpace(p.getenv(key)); v != "" {
		return v
	}
	return def
}

func (p *parser) duration(key string, def time.Duration) time.Duration {
	v := p.str(key, "")
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		p.errs = append(p.errs, fmt.Errorf("%s: %w", key, err))
		return def
	}
	return d
}

func (p *parser) integer(key string, def int) int {
	v := p.str(key, "")
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		p.errs = append(p.errs, fmt.Errorf("%s: %w", key, err))
		return def
	}
	return n
}

func (p *parser) boolean(key string, def bool) bool {
	v := p.str(key, "")
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		p.errs = append(p.errs, fmt.Errorf("%s: %w", key, err))
		return def
	}
	return b
}

func (p *parser) list(key string) []string {
	var out []string
	for _, part := range strings.Split(p.str(key, ""), ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
