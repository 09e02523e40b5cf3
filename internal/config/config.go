package config

import (
	"time"

	"github.com/jsimoes215/AI-Content-Automation-sub005/pkg/config"
)

// Config stores environment configuration for Almanac.
type Config struct {
	Port        string
	DatabaseURL string

	KafkaEnabled bool
	KafkaBrokers string
	KafkaGroupID string
	KafkaClient  string

	RedisURL string

	ClickHouseEnabled bool
	ClickHouseAddr    string
	ClickHouseDB      string
	ClickHouseUser    string
	ClickHousePass    string

	OptimizeConcurrency int
	DefaultDeadline     time.Duration
	WatchdogInterval    time.Duration
}

// LoadConfig loads the Almanac configuration from environment variables.
func LoadConfig() Config {
	return Config{
		Port:        config.GetEnv("PORT", "18030"),
		DatabaseURL: config.RequireEnv("DATABASE_URL"),

		KafkaEnabled: config.GetEnvBool("KAFKA_ENABLED", true),
		KafkaBrokers: config.GetEnv("KAFKA_BROKERS", "localhost:9092"),
		KafkaGroupID: config.GetEnv("KAFKA_GROUP_ID", "almanac-group"),
		KafkaClient:  config.GetEnv("KAFKA_CLIENT_ID", "almanac"),

		RedisURL: config.GetEnv("REDIS_URL", ""),

		ClickHouseEnabled: config.GetEnvBool("CLICKHOUSE_ENABLED", false),
		ClickHouseAddr:    config.GetEnv("CLICKHOUSE_ADDR", "127.0.0.1:9000"),
		ClickHouseDB:      config.GetEnv("CLICKHOUSE_DB", "default"),
		ClickHouseUser:    config.GetEnv("CLICKHOUSE_USER", "default"),
		ClickHousePass:    config.GetEnv("CLICKHOUSE_PASSWORD", ""),

		OptimizeConcurrency: config.GetEnvInt("OPTIMIZE_CONCURRENCY", 0),
		DefaultDeadline:     config.GetEnvDuration("SCHEDULE_DEFAULT_DEADLINE", 24*time.Hour),
		WatchdogInterval:    config.GetEnvDuration("DEADLINE_WATCHDOG_INTERVAL", time.Minute),
	}
}
