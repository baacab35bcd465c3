package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	App         AppConfig
	Postgres    PostgresConfig
	Redis       RedisConfig
	Kafka       KafkaConfig
	Auth        AuthConfig
	Payment     PaymentConfig
	Shipping    ShippingConfig
	Idempotency IdempotencyConfig
}

type AppConfig struct {
	Port     string
	Env      string
	LogLevel string
}

type PostgresConfig struct {
	Host            string
	Port            string
	User            string
	Password        string `json:"-"`
	DBName          string
	SSLMode         string
	MaxConns        int32
	MinConns        int32
	MaxConnLifetime time.Duration
	MigrationsPath  string
}

// DSN returns a keyword/value connection string understood by pgx and lib/pq.
func (c PostgresConfig) DSN() string {
	return fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.DBName, c.SSLMode)
}

type RedisConfig struct {
	Addr     string
	Password string `json:"-"`
	DB       int
}

// Enabled reports whether a Redis address was configured. Without one the
// service keeps idempotency keys in process memory.
func (c RedisConfig) Enabled() bool {
	return c.Addr != ""
}

type KafkaConfig struct {
	Brokers []string
	Topic   string
}

func (c KafkaConfig) Enabled() bool {
	return len(c.Brokers) > 0
}

type AuthConfig struct {
	JWTSecret string `json:"-"`
	Issuer    string
	Audience  string
}

type PaymentConfig struct {
	CardMode      string
	MomoSecret    string `json:"-"`
	ZaloPaySecret string `json:"-"`
	MomoURL       string
	ZaloPayURL    string
}

type ShippingConfig struct {
	RatesFile string
}

type IdempotencyConfig struct {
	TTL time.Duration
}

// NewConfig reads configuration from the environment. A .env file in the
// working directory (or the one named by ENV_FILE) is loaded first when present.
func NewConfig() (*Config, error) {
	envFile := getEnv("ENV_FILE", ".env")
	if err := godotenv.Load(envFile); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("failed to load %s: %w", envFile, err)
	}

	cfg := &Config{}

	cfg.App.Port = getEnv("APP_PORT", "8080")
	cfg.App.Env = getEnv("APP_ENV", "development")
	cfg.App.LogLevel = getEnv("LOG_LEVEL", "debug")

	var missing []string
	required := func(key string) string {
		v := os.Getenv(key)
		if v == "" {
			missing = append(missing, key)
		}
		return v
	}

	cfg.Postgres.Host = required("DB_HOST")
	cfg.Postgres.Port = getEnv("DB_PORT", "5432")
	cfg.Postgres.User = required("DB_USER")
	cfg.Postgres.Password = required("DB_PASSWORD")
	cfg.Postgres.DBName = required("DB_NAME")
	cfg.Postgres.SSLMode = getEnv("DB_SSLMODE", "disable")
	cfg.Postgres.MigrationsPath = getEnv("DB_MIGRATIONS_PATH", "migrations")

	cfg.Auth.JWTSecret = required("JWT_SECRET")
	cfg.Auth.Issuer = getEnv("JWT_ISSUER", "")
	cfg.Auth.Audience = getEnv("JWT_AUDIENCE", "")

	if len(missing) > 0 {
		return nil, fmt.Errorf("missing required environment variables: %s", strings.Join(missing, ", "))
	}

	var err error
	if cfg.Postgres.MaxConns, err = getInt32("DB_MAX_CONNS", 10); err != nil {
		return nil, err
	}
	if cfg.Postgres.MinConns, err = getInt32("DB_MIN_CONNS", 2); err != nil {
		return nil, err
	}
	if cfg.Postgres.MaxConnLifetime, err = getDuration("DB_MAX_CONN_LIFETIME", 30*time.Minute); err != nil {
		return nil, err
	}

	cfg.Redis.Addr = getEnv("REDIS_ADDR", "")
	cfg.Redis.Password = getEnv("REDIS_PASSWORD", "")
	redisDB, err := getInt32("REDIS_DB", 0)
	if err != nil {
		return nil, err
	}
	cfg.Redis.DB = int(redisDB)

	cfg.Kafka.Brokers = splitCSV(getEnv("KAFKA_BROKERS", ""))
	cfg.Kafka.Topic = getEnv("KAFKA_ORDER_TOPIC", "order-events")

	cfg.Payment.CardMode = getEnv("PAYMENT_CARD_MODE", "approve")
	cfg.Payment.MomoSecret = getEnv("MOMO_SECRET_KEY", "")
	cfg.Payment.ZaloPaySecret = getEnv("ZALOPAY_SECRET_KEY", "")
	cfg.Payment.MomoURL = getEnv("MOMO_PAYMENT_URL", "https://test-payment.momo.vn/gw_payment/transactionProcessor")
	cfg.Payment.ZaloPayURL = getEnv("ZALOPAY_PAYMENT_URL", "https://sandbox.zalopay.vn/order")

	cfg.Shipping.RatesFile = getEnv("SHIPPING_RATES_FILE", "")

	if cfg.Idempotency.TTL, err = getDuration("IDEMPOTENCY_TTL", 24*time.Hour); err != nil {
		return nil, err
	}

	return cfg, nil
}

func getEnv(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return fallback
}

func getInt32(key string, fallback int32) (int32, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.ParseInt(v, 10, 32)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", key, v, err)
	}
	return int32(n), nil
}

func getDuration(key string, fallback time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", key, v, err)
	}
	return d, nil
}

func splitCSV(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part != "" {
			out = append(out, part)
		}
	}
	return out
}
