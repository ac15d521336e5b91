package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	LoggingConfig      LoggingConfig      `json:"logging"`
	LearningConfig     LearningConfig     `json:"learning"`
	ServerConfig       ServerConfig       `json:"server"`
	AuthConfig         AuthConfig         `json:"auth"`
	RedisConfig        RedisConfig        `json:"redis"`
	DatabaseConfig     DatabaseConfig     `json:"database"`
	NotificationConfig NotificationConfig `json:"notifications"`
}

type LoggingConfig struct {
	Level       string `json:"level"`        // DEBUG, INFO, WARN, ERROR
	Output      string `json:"output"`       // stdout, stderr, or file path
	JSONFormat  bool   `json:"json_format"`  // Output as JSON
	IncludeFile bool   `json:"include_file"` // Include file and line number
}

// LearningConfig holds the self-improving strategy configuration
type LearningConfig struct {
	BotID                  string  `json:"bot_id"`
	LogDir                 string  `json:"log_dir"`      // one process per directory
	OutcomeFile            string  `json:"outcome_file"` // relative to LogDir
	FilterFile             string  `json:"filter_file"`  // relative to LogDir
	ReviewInterval         int     `json:"review_interval"`
	MinTradesForAnalysis   int     `json:"min_trades_for_analysis"`
	RollingWindow          int     `json:"rolling_window"`
	AutoApplyFilters       bool    `json:"auto_apply_filters"`
	DefaultPositionSizeUSD float64 `json:"default_position_size_usd"`
	FilterExpiryTrades     int     `json:"filter_expiry_trades"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Enabled         bool   `json:"enabled"`
	Port            int    `json:"port"`
	Host            string `json:"host"`
	AllowedOrigins  string `json:"allowed_origins"`  // CORS allowed origins
	ReadTimeout     int    `json:"read_timeout"`     // Seconds
	WriteTimeout    int    `json:"write_timeout"`    // Seconds
	ShutdownTimeout int    `json:"shutdown_timeout"` // Seconds
}

// AuthConfig holds admin token configuration
type AuthConfig struct {
	Enabled             bool          `json:"enabled"`
	JWTSecret           string        `json:"jwt_secret"`
	AccessTokenDuration time.Duration `json:"access_token_duration"`
}

// RedisConfig holds Redis configuration for the filter snapshot cache
type RedisConfig struct {
	Enabled  bool   `json:"enabled"`
	Address  string `json:"address"`
	Password string `json:"password"`
	DB       int    `json:"db"`
	PoolSize int    `json:"pool_size"`
}

// NotificationConfig holds chat alert settings for learning events
type NotificationConfig struct {
	Enabled           bool   `json:"enabled"`
	TelegramBotToken  string `json:"telegram_bot_token"`
	TelegramChatID    string `json:"telegram_chat_id"`
	DiscordWebhookURL string `json:"discord_webhook_url"`
}

// DatabaseConfig holds Postgres configuration for the closed-trade archive
type DatabaseConfig struct {
	Enabled  bool   `json:"enabled"`
	Host     string `json:"host"`
	Port     int    `json:"port"`
	User     string `json:"user"`
	Password string `json:"password"`
	DBName   string `json:"dbname"`
	SSLMode  string `json:"sslmode"`
	MaxConns int    `json:"max_conns"`
}

// DSN builds the postgres connection URL
func (c DatabaseConfig) DSN() string {
	u := url.URL{
		Scheme: "postgres",
		User:   url.UserPassword(c.User, c.Password),
		Host:   fmt.Sprintf("%s:%d", c.Host, c.Port),
		Path:   "/" + c.DBName,
	}
	q := url.Values{}
	q.Set("sslmode", c.SSLMode)
	if c.MaxConns > 0 {
		q.Set("pool_max_conns", strconv.Itoa(c.MaxConns))
	}
	u.RawQuery = q.Encode()
	return u.String()
}

// Load reads .env (if present), then config.json (if present), then applies
// environment overrides
func Load() (*Config, error) {
	return LoadFrom("config.json")
}

// LoadFrom is Load with an explicit config file
func LoadFrom(filename string) (*Config, error) {
	_ = godotenv.Load()

	cfg, err := loadFromFile(filename)
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			return nil, err
		}
		// no config file: defaults and environment only
		cfg = defaultConfig()
	}

	// Environment variables take precedence
	applyEnvOverrides(cfg)

	return cfg, nil
}

func defaultConfig() *Config {
	return &Config{
		LoggingConfig: LoggingConfig{
			Level:      "INFO",
			Output:     "stdout",
			JSONFormat: true,
		},
		LearningConfig: LearningConfig{
			BotID:                  "default",
			LogDir:                 "learning_logs",
			OutcomeFile:            "trade_outcomes.json",
			FilterFile:             "strategy_filters.json",
			ReviewInterval:         10,
			MinTradesForAnalysis:   10,
			RollingWindow:          50,
			AutoApplyFilters:       true,
			DefaultPositionSizeUSD: 100,
			FilterExpiryTrades:     20,
		},
		ServerConfig: ServerConfig{
			Enabled:         true,
			Port:            8090,
			Host:            "0.0.0.0",
			AllowedOrigins:  "*",
			ReadTimeout:     30,
			WriteTimeout:    30,
			ShutdownTimeout: 10,
		},
		AuthConfig: AuthConfig{
			AccessTokenDuration: 24 * time.Hour,
		},
		RedisConfig: RedisConfig{
			Address:  "localhost:6379",
			PoolSize: 10,
		},
		DatabaseConfig: DatabaseConfig{
			Host:     "localhost",
			Port:     5432,
			User:     "postgres",
			DBName:   "perp_bot",
			SSLMode:  "disable",
			MaxConns: 5,
		},
	}
}

// applyEnvOverrides applies environment variable overrides to the config.
// File values act as the defaults for their variables.
func applyEnvOverrides(cfg *Config) {
	// Logging config
	cfg.LoggingConfig.Level = getEnvOrDefault("LOG_LEVEL", cfg.LoggingConfig.Level)
	cfg.LoggingConfig.Output = getEnvOrDefault("LOG_OUTPUT", cfg.LoggingConfig.Output)
	cfg.LoggingConfig.JSONFormat = getEnvBoolOrDefault("LOG_JSON", cfg.LoggingConfig.JSONFormat)
	cfg.LoggingConfig.IncludeFile = getEnvBoolOrDefault("LOG_INCLUDE_FILE", cfg.LoggingConfig.IncludeFile)

	// Learning config
	l := &cfg.LearningConfig
	l.BotID = getEnvOrDefault("LEARNING_BOT_ID", l.BotID)
	l.LogDir = getEnvOrDefault("LEARNING_LOG_DIR", l.LogDir)
	l.OutcomeFile = getEnvOrDefault("LEARNING_OUTCOME_FILE", l.OutcomeFile)
	l.FilterFile = getEnvOrDefault("LEARNING_FILTER_FILE", l.FilterFile)
	l.ReviewInterval = getEnvIntOrDefault("LEARNING_REVIEW_INTERVAL", l.ReviewInterval)
	l.MinTradesForAnalysis = getEnvIntOrDefault("LEARNING_MIN_TRADES", l.MinTradesForAnalysis)
	l.RollingWindow = getEnvIntOrDefault("LEARNING_ROLLING_WINDOW", l.RollingWindow)
	l.AutoApplyFilters = getEnvBoolOrDefault("LEARNING_AUTO_APPLY", l.AutoApplyFilters)
	l.DefaultPositionSizeUSD = getEnvFloatOrDefault("LEARNING_DEFAULT_POSITION_USD", l.DefaultPositionSizeUSD)
	l.FilterExpiryTrades = getEnvIntOrDefault("LEARNING_FILTER_EXPIRY_TRADES", l.FilterExpiryTrades)

	// Server config
	cfg.ServerConfig.Enabled = getEnvBoolOrDefault("WEB_ENABLED", cfg.ServerConfig.Enabled)
	cfg.ServerConfig.Port = getEnvIntOrDefault("WEB_PORT", cfg.ServerConfig.Port)
	cfg.ServerConfig.Host = getEnvOrDefault("WEB_HOST", cfg.ServerConfig.Host)
	cfg.ServerConfig.AllowedOrigins = getEnvOrDefault("SERVER_ALLOWED_ORIGINS", cfg.ServerConfig.AllowedOrigins)
	cfg.ServerConfig.ReadTimeout = getEnvIntOrDefault("SERVER_READ_TIMEOUT", cfg.ServerConfig.ReadTimeout)
	cfg.ServerConfig.WriteTimeout = getEnvIntOrDefault("SERVER_WRITE_TIMEOUT", cfg.ServerConfig.WriteTimeout)
	cfg.ServerConfig.ShutdownTimeout = getEnvIntOrDefault("SERVER_SHUTDOWN_TIMEOUT", cfg.ServerConfig.ShutdownTimeout)

	// Auth config
	cfg.AuthConfig.Enabled = getEnvBoolOrDefault("AUTH_ENABLED", cfg.AuthConfig.Enabled)
	cfg.AuthConfig.JWTSecret = getEnvOrDefault("AUTH_JWT_SECRET", cfg.AuthConfig.JWTSecret)
	cfg.AuthConfig.AccessTokenDuration = getEnvDurationOrDefault("AUTH_ACCESS_TOKEN_DURATION", cfg.AuthConfig.AccessTokenDuration)

	// Redis config
	cfg.RedisConfig.Enabled = getEnvBoolOrDefault("REDIS_ENABLED", cfg.RedisConfig.Enabled)
	cfg.RedisConfig.Address = getEnvOrDefault("REDIS_ADDRESS", cfg.RedisConfig.Address)
	cfg.RedisConfig.Password = getEnvOrDefault("REDIS_PASSWORD", cfg.RedisConfig.Password)
	cfg.RedisConfig.DB = getEnvIntOrDefault("REDIS_DB", cfg.RedisConfig.DB)
	cfg.RedisConfig.PoolSize = getEnvIntOrDefault("REDIS_POOL_SIZE", cfg.RedisConfig.PoolSize)

	// Database config
	cfg.DatabaseConfig.Enabled = getEnvBoolOrDefault("DB_ENABLED", cfg.DatabaseConfig.Enabled)
	cfg.DatabaseConfig.Host = getEnvOrDefault("DB_HOST", cfg.DatabaseConfig.Host)
	cfg.DatabaseConfig.Port = getEnvIntOrDefault("DB_PORT", cfg.DatabaseConfig.Port)
	cfg.DatabaseConfig.User = getEnvOrDefault("DB_USER", cfg.DatabaseConfig.User)
	cfg.DatabaseConfig.Password = getEnvOrDefault("DB_PASSWORD", cfg.DatabaseConfig.Password)
	cfg.DatabaseConfig.DBName = getEnvOrDefault("DB_NAME", cfg.DatabaseConfig.DBName)
	cfg.DatabaseConfig.SSLMode = getEnvOrDefault("DB_SSLMODE", cfg.DatabaseConfig.SSLMode)
	cfg.DatabaseConfig.MaxConns = getEnvIntOrDefault("DB_MAX_CONNS", cfg.DatabaseConfig.MaxConns)

	// Notification config
	n := &cfg.NotificationConfig
	n.Enabled = getEnvBoolOrDefault("NOTIFY_ENABLED", n.Enabled)
	n.TelegramBotToken = getEnvOrDefault("TELEGRAM_BOT_TOKEN", n.TelegramBotToken)
	n.TelegramChatID = getEnvOrDefault("TELEGRAM_CHAT_ID", n.TelegramChatID)
	n.DiscordWebhookURL = getEnvOrDefault("DISCORD_WEBHOOK_URL", n.DiscordWebhookURL)
}

// loadFromFile overlays the file onto the defaults, so a partial file keeps
// defaults for everything it omits
func loadFromFile(filename string) (*Config, error) {
	file, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("error reading config file: %w", err)
	}

	config := defaultConfig()
	if err := json.Unmarshal(file, config); err != nil {
		return nil, fmt.Errorf("error parsing config file: %w", err)
	}

	return config, nil
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvIntOrDefault(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvFloatOrDefault(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatVal, err := strconv.ParseFloat(value, 64); err == nil {
			return floatVal
		}
	}
	return defaultValue
}

func getEnvBoolOrDefault(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolVal, err := strconv.ParseBool(value); err == nil {
			return boolVal
		}
	}
	return defaultValue
}

func getEnvDurationOrDefault(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}

// GenerateSampleConfig creates a sample configuration file
func GenerateSampleConfig(filename string) error {
	config := defaultConfig()
	config.AuthConfig.JWTSecret = "change-me"
	config.DatabaseConfig.Password = "your_db_password_here"

	data, err := json.MarshalIndent(config, "", "  ")
	if err != nil {
		return err
	}

	return os.WriteFile(filename, data, 0644)
}
