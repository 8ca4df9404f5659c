// Package config loads server settings from the environment, with optional
// .env file support for local development.
package config

import (
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

// Config holds all chat server settings. Every field has a sensible default
// so the server runs with an empty environment.
type Config struct {
	// CHAT_LISTEN_ADDR is the TCP address the server listens on.
	ListenAddr string `envconfig:"CHAT_LISTEN_ADDR" default:":12345"`
	// CHAT_SERVICE_NAME names the service in log entries and log file names.
	ServiceName string `envconfig:"CHAT_SERVICE_NAME" default:"chatserver"`
	// CHAT_LOG_LEVEL is the minimum log level (debug, info, warn, error).
	LogLevel string `envconfig:"CHAT_LOG_LEVEL" default:"info"`
	// CHAT_LOG_DIR enables file logging when set; empty means stdout only.
	LogDir string `envconfig:"CHAT_LOG_DIR"`
	// CHAT_REDIS_ADDR selects the Redis history backend when set; empty
	// keeps group history in memory.
	RedisAddr string `envconfig:"CHAT_REDIS_ADDR"`
	// CHAT_HISTORY_DEPTH is the number of lines replayed on /join_group.
	HistoryDepth int `envconfig:"CHAT_HISTORY_DEPTH" default:"50"`
	// CHAT_HISTORY_TTL is how long a silent group's history is retained.
	HistoryTTL time.Duration `envconfig:"CHAT_HISTORY_TTL" default:"1h"`
	// CHAT_SHUTDOWN_TIMEOUT bounds the wait for sessions to drain on stop.
	ShutdownTimeout time.Duration `envconfig:"CHAT_SHUTDOWN_TIMEOUT" default:"5s"`
}

// Load reads the configuration from the environment. A .env file in the
// working directory is loaded first if present; real environment variables
// win over .env entries.
//
// Returns:
//   - The populated Config
//   - An error if a variable cannot be parsed into its field type
func Load() (Config, error) {
	_ = godotenv.Load()

	var cfg Config
	err := envconfig.Process("", &cfg)
	return cfg, err
}
