// Package config loads matcher settings from the environment, following the
// same getEnv*-helper shape the rest of the codebase uses for its own
// ambient configuration.
package config

import (
	"os"
	"strconv"
	"time"
)

// Config holds every tunable named by the component design.
type Config struct {
	// Placement pipeline
	MaxActiveOrders int

	// Websocket diff stream
	WsMessagesInterval time.Duration

	// Batch cancel sub-actor
	BatchCancelTimeout time.Duration

	// Expiry firing tolerance; fixed at 50ms by design, not configurable,
	// kept here only so callers have a single place to read it from.
	ExpirationThreshold time.Duration

	// BalanceOracle / GetTradableBalance ask timeout
	BalanceAskTimeout time.Duration

	// Collaborators
	ChainNodeRPCURL string
	OrderDBDSN      string
	EventLogDSN     string

	// Operational notifier (optional; empty token disables it)
	TelegramBotToken string
	TelegramChatID   int64

	// Logging
	Debug     bool
	LogFormat string // "console" or "json"
}

// Load reads Config from the environment, applying the defaults named in the
// component design (MaxActiveOrders=200, WsMessagesInterval=100ms,
// BatchCancelTimeout=20s, BalanceAskTimeout=5s).
func Load() (*Config, error) {
	cfg := &Config{
		MaxActiveOrders:     getEnvInt("MAX_ACTIVE_ORDERS", 200),
		WsMessagesInterval:  getEnvDuration("WS_MESSAGES_INTERVAL", 100*time.Millisecond),
		BatchCancelTimeout:  getEnvDuration("BATCH_CANCEL_TIMEOUT", 20*time.Second),
		ExpirationThreshold: 50 * time.Millisecond,
		BalanceAskTimeout:   getEnvDuration("BALANCE_ASK_TIMEOUT", 5*time.Second),

		ChainNodeRPCURL: getEnv("CHAIN_NODE_RPC_URL", "http://localhost:8545"),
		OrderDBDSN:      getEnv("ORDER_DB_DSN", "data/orders.db"),
		EventLogDSN:     os.Getenv("EVENT_LOG_DATABASE_URL"),

		TelegramBotToken: os.Getenv("TELEGRAM_BOT_TOKEN"),

		Debug:     getEnvBool("DEBUG", false),
		LogFormat: getEnv("LOG_FORMAT", "console"),
	}

	if chatID := os.Getenv("TELEGRAM_CHAT_ID"); chatID != "" {
		if id, err := strconv.ParseInt(chatID, 10, 64); err == nil {
			cfg.TelegramChatID = id
		}
	}

	return cfg, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		return value == "true" || value == "1" || value == "yes"
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
