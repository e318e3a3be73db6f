// Package config loads the gateway's startup configuration from the
// environment, following the same getEnv-with-default convention the rest
// of this codebase's ancestry uses.
package config

import (
	"os"

	"github.com/rs/zerolog"

	"github.com/swecc-uw/swecc-sockets/internal/logger"
)

// Config holds everything read from the environment at startup.
type Config struct {
	ListenHost string
	ListenPort string

	JWTSecret string

	RabbitUser  string
	RabbitPass  string
	RabbitHost  string
	RabbitPort  string
	RabbitVHost string

	// Reserved: not used by the core gateway, kept for parity with the
	// wider deployment's environment contract (§6).
	DBHost     string
	DBPort     string
	DBName     string
	DBUser     string
	DBPassword string
	RedisHost  string
	RedisPort  string
}

// Load reads the environment, logging a line for every value that falls
// back to its default.
func Load() *Config {
	log := logger.GetLogger()

	cfg := &Config{
		ListenHost: getEnv(log, "LISTEN_HOST", "0.0.0.0"),
		ListenPort: getEnv(log, "LISTEN_PORT", "8004"),

		JWTSecret: os.Getenv("JWT_SECRET"),

		RabbitUser:  getEnv(log, "SOCKET_RABBIT_USER", "guest"),
		RabbitPass:  getEnv(log, "SOCKET_RABBIT_PASS", "guest"),
		RabbitHost:  getEnv(log, "RABBIT_HOST", "localhost"),
		RabbitPort:  getEnv(log, "RABBIT_PORT", "5672"),
		RabbitVHost: getEnv(log, "RABBIT_VHOST", "/"),

		DBHost:     getEnv(log, "DB_HOST", "localhost"),
		DBPort:     getEnv(log, "DB_PORT", "5432"),
		DBName:     getEnv(log, "DB_NAME", "swecc"),
		DBUser:     getEnv(log, "DB_USER", "swecc"),
		DBPassword: os.Getenv("DB_PASSWORD"),
		RedisHost:  getEnv(log, "REDIS_HOST", "localhost"),
		RedisPort:  getEnv(log, "REDIS_PORT", "6379"),
	}

	if cfg.JWTSecret == "" {
		log.Warn().Msg("JWT_SECRET is not set; token verification will reject every token")
	}

	return cfg
}

// AMQPURL builds the amqp:// connection string (§6).
func (c *Config) AMQPURL() string {
	return "amqp://" + c.RabbitUser + ":" + c.RabbitPass + "@" + c.RabbitHost + ":" + c.RabbitPort + c.vhostPath()
}

func (c *Config) vhostPath() string {
	if c.RabbitVHost == "" || c.RabbitVHost == "/" {
		return "/"
	}
	return "/" + c.RabbitVHost
}

func getEnv(log *zerolog.Logger, key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	log.Debug().Str("var", key).Str("default", defaultValue).Msg("environment variable unset, using default")
	return defaultValue
}

