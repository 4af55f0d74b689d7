package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Server captures process level configuration.
type Server struct {
	Addr      string
	LogLevel  string
	LogFormat string

	DatabaseURL string
	Redis       RedisConfig
	Kafka       KafkaConfig
	Registry    RegistryConfig

	// ReceiptsTable selects the DynamoDB receipts backend when set.
	ReceiptsTable    string
	DynamoDBEndpoint string

	// VerifyCompany rejects destinations whose account is not verified.
	VerifyCompany bool
	// LookupConcurrency bounds the registry lookups of one validation.
	LookupConcurrency int
}

// RedisConfig configures the company record cache client.
type RedisConfig struct {
	URL          string
	PoolSize     int
	MinIdleConns int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// KafkaConfig configures the signature event publisher.
type KafkaConfig struct {
	Brokers []string
	Topic   string
}

// RegistryConfig tunes company registry lookups.
type RegistryConfig struct {
	CacheTTL         time.Duration
	Timeout          time.Duration
	BreakerThreshold int
	BreakerCooldown  time.Duration
}

// RegistryCacheTTL bounds how long a company record is served from cache.
var RegistryCacheTTL = 5 * time.Minute

// FromEnv builds a Server config from environment variables so main stays lean.
func FromEnv() Server {
	return Server{
		Addr:        stringEnv("BORDEREAU_ADDR", ":8080"),
		LogLevel:    stringEnv("LOG_LEVEL", "info"),
		LogFormat:   stringEnv("LOG_FORMAT", "json"),
		DatabaseURL: os.Getenv("DATABASE_URL"),
		Redis: RedisConfig{
			URL:          os.Getenv("REDIS_URL"),
			PoolSize:     intEnv("REDIS_POOL_SIZE", 10),
			MinIdleConns: intEnv("REDIS_MIN_IDLE_CONNS", 2),
			DialTimeout:  durationEnv("REDIS_DIAL_TIMEOUT", 5*time.Second),
			ReadTimeout:  durationEnv("REDIS_READ_TIMEOUT", 3*time.Second),
			WriteTimeout: durationEnv("REDIS_WRITE_TIMEOUT", 3*time.Second),
		},
		Kafka: KafkaConfig{
			Brokers: listEnv("KAFKA_BROKERS"),
			Topic:   stringEnv("SIGNATURE_EVENTS_TOPIC", "bordereau.signatures"),
		},
		Registry: RegistryConfig{
			CacheTTL:         durationEnv("REGISTRY_CACHE_TTL", RegistryCacheTTL),
			Timeout:          durationEnv("REGISTRY_TIMEOUT", 2*time.Second),
			BreakerThreshold: intEnv("REGISTRY_BREAKER_THRESHOLD", 5),
			BreakerCooldown:  durationEnv("REGISTRY_BREAKER_COOLDOWN", 30*time.Second),
		},
		ReceiptsTable:     os.Getenv("RECEIPTS_TABLE"),
		DynamoDBEndpoint:  os.Getenv("DYNAMODB_ENDPOINT"),
		VerifyCompany:     os.Getenv("VERIFY_COMPANY") == "true",
		LookupConcurrency: intEnv("LOOKUP_CONCURRENCY", 4),
	}
}

func stringEnv(key, fallback string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return fallback
}

func intEnv(key string, fallback int) int {
	n, err := strconv.Atoi(os.Getenv(key))
	if err != nil || n <= 0 {
		return fallback
	}
	return n
}

func durationEnv(key string, fallback time.Duration) time.Duration {
	d, err := time.ParseDuration(os.Getenv(key))
	if err != nil || d <= 0 {
		return fallback
	}
	return d
}

func listEnv(key string) []string {
	var out []string
	for _, part := range strings.Split(os.Getenv(key), ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
