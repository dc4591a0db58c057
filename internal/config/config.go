package config

import (
	"os"      // For environment variables
	"strconv" // For string to number conversion
	"time"    // For durations

	"github.com/joho/godotenv"      // For loading .env files
	"github.com/shopspring/decimal" // For rate conversion settings
)

// Config holds the application configuration
type Config struct {
	AppPort    string // Application port
	DBDriver   string // mysql, postgres or sqlite
	DBUser     string // Database user
	DBPassword string // Database password
	DBHost     string // Database host
	DBPort     string // Database port
	DBName     string // Database name
	DBPath     string // SQLite file path
	JWTSecret  string // JWT secret key
	RedisAddr  string // Redis server address, empty disables caching and pub/sub
	RedisPass  string // Redis password
	RedisDB    int    // Redis database number
	IsProd     bool   // Is production environment

	GoldAPIKey     string          // goldapi.io access token
	GoldAPIURL     string          // Feed base URL
	GoldAPITimeout time.Duration   // Hard timeout on the feed call
	USDToINR       decimal.Decimal // Fixed exchange rate
	GoldMargin     decimal.Decimal // Symmetric buy/sell margin
	PriceInterval  time.Duration   // Broadcast interval
	RateStrategy   string          // live_with_fallback, stored_only or live_only
	RateBootstrap  bool            // Allow the seed rate when no feed is configured
	SettleLive     bool            // Ledger prefers a live rate when settling

	AMQPURL      string // RabbitMQ URL, empty disables AMQP publishing
	AMQPExchange string // Topic exchange for price and trade events
}

// LoadConfig loads configuration from environment variables
func LoadConfig() *Config {
	_ = godotenv.Load() // Load .env file if present
	redisDB, _ := strconv.Atoi(os.Getenv("REDIS_DB"))
	return &Config{
		AppPort:    getEnv("APP_PORT", "8080"),        // Application port
		DBDriver:   getEnv("DB_DRIVER", "mysql"),      // Database driver
		DBUser:     os.Getenv("DB_USER"),              // Database user
		DBPassword: os.Getenv("DB_PASSWORD"),          // Database password
		DBHost:     os.Getenv("DB_HOST"),              // Database host
		DBPort:     os.Getenv("DB_PORT"),              // Database port
		DBName:     os.Getenv("DB_NAME"),              // Database name
		DBPath:     getEnv("DB_PATH", "gold.db"),      // SQLite file
		JWTSecret:  os.Getenv("JWT_SECRET"),           // JWT secret key
		RedisAddr:  os.Getenv("REDIS_ADDR"),           // Redis server address
		RedisPass:  os.Getenv("REDIS_PASS"),           // Redis password
		RedisDB:    redisDB,                           // Redis database number
		IsProd:     os.Getenv("IS_PROD") == "true",    // Is production environment

		GoldAPIKey:     os.Getenv("GOLD_API_KEY"),                                    // Feed token
		GoldAPIURL:     os.Getenv("GOLD_API_URL"),                                    // Feed base URL
		GoldAPITimeout: getDuration("GOLD_API_TIMEOUT", 10*time.Second),              // Feed timeout
		USDToINR:       getDecimal("USD_TO_INR", decimal.RequireFromString("83.5")),  // Exchange rate
		GoldMargin:     getDecimal("GOLD_MARGIN", decimal.RequireFromString("0.02")), // Margin
		PriceInterval:  getDuration("PRICE_INTERVAL", 30*time.Second),                // Broadcast interval
		RateStrategy:   getEnv("RATE_STRATEGY", "live_with_fallback"),                // Resolution strategy
		RateBootstrap:  getEnv("RATE_BOOTSTRAP", "true") == "true",                   // Seed rate allowed
		SettleLive:     getEnv("SETTLE_PREFER_LIVE", "true") == "true",               // Live rate on settle

		AMQPURL:      os.Getenv("AMQP_URL"),                  // RabbitMQ URL
		AMQPExchange: getEnv("AMQP_EXCHANGE", "gold.events"), // Exchange name
	}
}

// getEnv returns the variable or a fallback when unset
func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// getDuration parses a Go duration such as "30s", falling back on error
func getDuration(key string, fallback time.Duration) time.Duration {
	if d, err := time.ParseDuration(os.Getenv(key)); err == nil && d > 0 {
		return d
	}
	return fallback
}

// getDecimal parses a decimal, falling back on error
func getDecimal(key string, fallback decimal.Decimal) decimal.Decimal {
	if d, err := decimal.NewFromString(os.Getenv(key)); err == nil {
		return d
	}
	return fallback
}
