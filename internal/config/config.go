package config

import (
	"log/slog"
	"os"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
	"github.com/joho/godotenv"
)

type Config struct {
	Env        string `env:"ENV" env-default:"local"`
	GRPC       GRPCConfig
	HTTP       HTTPConfig
	Database   DBConfig
	Redis      RedisConfig
	Kafka      KafkaConfig
	Security   SecConfig
	MarketData MarketDataConfig
}

type GRPCConfig struct {
	Port             uint16        `env:"GRPC_PORT" env-default:"50053"`
	EnableReflection bool          `env:"GRPC_ENABLE_REFLECTION" env-default:"true"`
	HealthInterval   time.Duration `env:"GRPC_HEALTH_INTERVAL" env-default:"15s"`
}

type HTTPConfig struct {
	Port    uint16        `env:"HTTP_PORT" env-default:"8080"`
	Timeout time.Duration `env:"HTTP_TIMEOUT" env-default:"30s"`
}

type DBConfig struct {
	Host     string `env:"POSTGRES_HOST" env-default:"localhost"`
	Port     uint16 `env:"POSTGRES_PORT" env-default:"5432"`
	User     string `env:"POSTGRES_USER" env-default:"postgres"`
	Password string `env:"POSTGRES_PASSWORD" env-default:"postgres"`
	DBName   string `env:"POSTGRES_DB" env-default:"portfolio_db"`
}

type RedisConfig struct {
	Addr     string `env:"REDIS_ADDR" env-default:"localhost:6379"`
	Password string `env:"REDIS_PASSWORD" env-default:""`
	DB       int    `env:"REDIS_DB" env-default:"0"`
}

// KafkaConfig is optional; with no brokers the audit stream is disabled.
type KafkaConfig struct {
	Brokers      []string      `env:"KAFKA_BROKERS" env-separator:","`
	Topic        string        `env:"KAFKA_TOPIC" env-default:"portfolio.events"`
	BatchTimeout time.Duration `env:"KAFKA_BATCH_TIMEOUT" env-default:"1s"`
	RequiredAcks int           `env:"KAFKA_REQUIRED_ACKS" env-default:"1"`
	MaxAttempts  int           `env:"KAFKA_MAX_ATTEMPTS" env-default:"3"`
	WriteTimeout time.Duration `env:"KAFKA_WRITE_TIMEOUT" env-default:"10s"`
}

type SecConfig struct {
	JWTSecret      string        `env:"JWT_SECRET" env-required:"true"`
	AccessTokenTTL time.Duration `env:"ACCESS_TOKEN_TTL" env-default:"24h"`
}

type MarketDataConfig struct {
	BaseURL  string        `env:"COINGECKO_BASE_URL" env-default:"https://api.coingecko.com/api/v3"`
	APIKey   string        `env:"COINGECKO_API_KEY" env-default:""`
	Timeout  time.Duration `env:"COINGECKO_TIMEOUT" env-default:"10s"`
	CacheTTL time.Duration `env:"MARKET_CACHE_TTL" env-default:"60s"`
}

func MustLoad() *Config {
	if err := godotenv.Load(); err != nil {
		slog.Info("no .env file found, reading from environment variables")
	}

	cfg, err := Load()
	if err != nil {
		slog.Error("failed to read environment variables", "error", err)
		os.Exit(1)
	}

	return cfg
}

func Load() (*Config, error) {
	var cfg Config

	if err := cleanenv.ReadEnv(&cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}
