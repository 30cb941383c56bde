package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config represents the application configuration
type Config struct {
	Server    ServerConfig    `json:"server"`
	Database  DatabaseConfig  `json:"database"`
	Cache     CacheConfig     `json:"cache"`
	RabbitMQ  RabbitMQConfig  `json:"rabbitmq"`
	Scheduler SchedulerConfig `json:"scheduler"`
	Logger    LoggerConfig    `json:"logger"`
	Analytics AnalyticsConfig `json:"analytics"`
}

// ServerConfig represents HTTP server configuration
type ServerConfig struct {
	Port           int    `json:"port"`
	Host           string `json:"host"`
	Environment    string `json:"environment"`
	ReadTimeout    int    `json:"read_timeout"`
	WriteTimeout   int    `json:"write_timeout"`
	MaxHeaderBytes int    `json:"max_header_bytes"`
}

// DatabaseConfig represents MongoDB configuration
type DatabaseConfig struct {
	URI            string `json:"uri"`
	Database       string `json:"database"`
	MaxPoolSize    int    `json:"max_pool_size"`
	MinPoolSize    int    `json:"min_pool_size"`
	MaxIdleTime    int    `json:"max_idle_time"`
	ConnectTimeout int    `json:"connect_timeout"`
	SocketTimeout  int    `json:"socket_timeout"`
}

// CacheConfig represents Redis cache configuration
type CacheConfig struct {
	Host               string        `json:"host"`
	Port               int           `json:"port"`
	Password           string        `json:"password"`
	DB                 int           `json:"db"`
	MaxRetries         int           `json:"max_retries"`
	PoolSize           int           `json:"pool_size"`
	MinIdleConnections int           `json:"min_idle_connections"`
	DialTimeout        time.Duration `json:"dial_timeout"`
	ReadTimeout        time.Duration `json:"read_timeout"`
	WriteTimeout       time.Duration `json:"write_timeout"`
	PoolTimeout        time.Duration `json:"pool_timeout"`
	IdleTimeout        time.Duration `json:"idle_timeout"`

	// TTL settings
	PortfolioTTL time.Duration `json:"portfolio_ttl"`
	ReportTTL    time.Duration `json:"report_ttl"`
}

// RabbitMQConfig represents RabbitMQ configuration
type RabbitMQConfig struct {
	Enabled  bool   `json:"enabled"`
	URL      string `json:"url"`
	Host     string `json:"host"`
	Port     int    `json:"port"`
	Username string `json:"username"`
	Password string `json:"password"`
	VHost    string `json:"vhost"`

	// Exchanges and queues
	UpdateExchange  string `json:"update_exchange"`
	UpdateQueue     string `json:"update_queue"`
	AlertExchange   string `json:"alert_exchange"`
	AlertRoutingKey string `json:"alert_routing_key"`
}

// SchedulerConfig represents background job scheduling configuration
type SchedulerConfig struct {
	Enabled       bool          `json:"enabled"`
	SweepSchedule string        `json:"sweep_schedule"` // Cron expression
	JobTimeout    time.Duration `json:"job_timeout"`
}

// LoggerConfig represents logging configuration
type LoggerConfig struct {
	Level      string `json:"level"`
	Format     string `json:"format"`
	Output     string `json:"output"`
	Filename   string `json:"filename"`
	MaxSize    int    `json:"max_size"`
	MaxAge     int    `json:"max_age"`
	MaxBackups int    `json:"max_backups"`
	Compress   bool   `json:"compress"`
}

// AnalyticsConfig represents engine defaults and report thresholds
type AnalyticsConfig struct {
	TopExposures          int     `json:"top_exposures"`
	TopSingleNames        int     `json:"top_single_names"`
	TopRiskiestLoans      int     `json:"top_riskiest_loans"`
	SingleNameLimitPct    float64 `json:"single_name_limit_pct"`
	WatchListThresholdPct float64 `json:"watch_list_threshold_pct"`
	HighRiskPDFloor       float64 `json:"high_risk_pd_floor"`
	MajorDowngradeNotches int     `json:"major_downgrade_notches"`
	MaxCashFlowHorizon    int     `json:"max_cash_flow_horizon"`
	MaxAmortizationPeriods int    `json:"max_amortization_periods"`
}

// Load loads configuration from environment variables
func Load() *Config {
	// Load .env file if exists
	godotenv.Load()

	config := &Config{
		Server: ServerConfig{
			Port:           getEnvInt("SERVER_PORT", 8084),
			Host:           getEnv("SERVER_HOST", "0.0.0.0"),
			Environment:    getEnv("ENVIRONMENT", "development"),
			ReadTimeout:    getEnvInt("SERVER_READ_TIMEOUT", 30),
			WriteTimeout:   getEnvInt("SERVER_WRITE_TIMEOUT", 30),
			MaxHeaderBytes: getEnvInt("SERVER_MAX_HEADER_BYTES", 1048576),
		},

		Database: DatabaseConfig{
			URI:            getEnv("MONGODB_URI", "mongodb://localhost:27017"),
			Database:       getEnv("MONGODB_DATABASE", "creditrisk"),
			MaxPoolSize:    getEnvInt("MONGODB_MAX_POOL_SIZE", 100),
			MinPoolSize:    getEnvInt("MONGODB_MIN_POOL_SIZE", 5),
			MaxIdleTime:    getEnvInt("MONGODB_MAX_IDLE_TIME", 300),
			ConnectTimeout: getEnvInt("MONGODB_CONNECT_TIMEOUT", 10),
			SocketTimeout:  getEnvInt("MONGODB_SOCKET_TIMEOUT", 30),
		},

		Cache: CacheConfig{
			Host:               getEnv("REDIS_HOST", "localhost"),
			Port:               getEnvInt("REDIS_PORT", 6379),
			Password:           getEnv("REDIS_PASSWORD", ""),
			DB:                 getEnvInt("REDIS_DB", 0),
			MaxRetries:         getEnvInt("REDIS_MAX_RETRIES", 3),
			PoolSize:           getEnvInt("REDIS_POOL_SIZE", 10),
			MinIdleConnections: getEnvInt("REDIS_MIN_IDLE_CONNECTIONS", 5),
			DialTimeout:        getEnvDuration("REDIS_DIAL_TIMEOUT", 5*time.Second),
			ReadTimeout:        getEnvDuration("REDIS_READ_TIMEOUT", 3*time.Second),
			WriteTimeout:       getEnvDuration("REDIS_WRITE_TIMEOUT", 3*time.Second),
			PoolTimeout:        getEnvDuration("REDIS_POOL_TIMEOUT", 4*time.Second),
			IdleTimeout:        getEnvDuration("REDIS_IDLE_TIMEOUT", 5*time.Minute),
			PortfolioTTL:       getEnvDuration("CACHE_PORTFOLIO_TTL", 15*time.Minute),
			ReportTTL:          getEnvDuration("CACHE_REPORT_TTL", 5*time.Minute),
		},

		RabbitMQ: RabbitMQConfig{
			Enabled:         getEnvBool("RABBITMQ_ENABLED", true),
			URL:             getEnv("RABBITMQ_URL", ""),
			Host:            getEnv("RABBITMQ_HOST", "localhost"),
			Port:            getEnvInt("RABBITMQ_PORT", 5672),
			Username:        getEnv("RABBITMQ_USERNAME", "guest"),
			Password:        getEnv("RABBITMQ_PASSWORD", "guest"),
			VHost:           getEnv("RABBITMQ_VHOST", "/"),
			UpdateExchange:  getEnv("RABBITMQ_UPDATE_EXCHANGE", "portfolios"),
			UpdateQueue:     getEnv("RABBITMQ_UPDATE_QUEUE", "creditrisk.portfolio.updates"),
			AlertExchange:   getEnv("RABBITMQ_ALERT_EXCHANGE", "creditrisk.alerts"),
			AlertRoutingKey: getEnv("RABBITMQ_ALERT_ROUTING_KEY", "covenant.breach"),
		},

		Scheduler: SchedulerConfig{
			Enabled:       getEnvBool("SCHEDULER_ENABLED", true),
			SweepSchedule: getEnv("SCHEDULER_SWEEP_SCHEDULE", "0 2 * * *"), // Daily at 2 AM
			JobTimeout:    getEnvDuration("SCHEDULER_JOB_TIMEOUT", 30*time.Minute),
		},

		Logger: LoggerConfig{
			Level:      getEnv("LOG_LEVEL", "info"),
			Format:     getEnv("LOG_FORMAT", "json"),
			Output:     getEnv("LOG_OUTPUT", "stdout"),
			Filename:   getEnv("LOG_FILENAME", ""),
			MaxSize:    getEnvInt("LOG_MAX_SIZE", 100),
			MaxAge:     getEnvInt("LOG_MAX_AGE", 28),
			MaxBackups: getEnvInt("LOG_MAX_BACKUPS", 3),
			Compress:   getEnvBool("LOG_COMPRESS", true),
		},

		Analytics: AnalyticsConfig{
			TopExposures:           getEnvInt("ANALYTICS_TOP_EXPOSURES", 5),
			TopSingleNames:         getEnvInt("ANALYTICS_TOP_SINGLE_NAMES", 10),
			TopRiskiestLoans:       getEnvInt("ANALYTICS_TOP_RISKIEST_LOANS", 10),
			SingleNameLimitPct:     getEnvFloat("ANALYTICS_SINGLE_NAME_LIMIT_PCT", 10.0),
			WatchListThresholdPct:  getEnvFloat("ANALYTICS_WATCH_LIST_THRESHOLD_PCT", 10.0),
			HighRiskPDFloor:        getEnvFloat("ANALYTICS_HIGH_RISK_PD_FLOOR", 0.05),
			MajorDowngradeNotches:  getEnvInt("ANALYTICS_MAJOR_DOWNGRADE_NOTCHES", 3),
			MaxCashFlowHorizon:     getEnvInt("ANALYTICS_MAX_CASH_FLOW_HORIZON", 600),
			MaxAmortizationPeriods: getEnvInt("ANALYTICS_MAX_AMORTIZATION_PERIODS", 10000),
		},
	}

	return config
}

// GetRabbitMQURL builds the connection URL unless one was given directly.
func (c *RabbitMQConfig) GetRabbitMQURL() string {
	if c.URL != "" {
		return c.URL
	}
	return fmt.Sprintf("amqp://%s:%s@%s:%d%s", c.Username, c.Password, c.Host, c.Port, c.VHost)
}

// Helper functions for environment variable parsing

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolValue, err := strconv.ParseBool(value); err == nil {
			return boolValue
		}
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatValue, err := strconv.ParseFloat(value, 64); err == nil {
			return floatValue
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.Database.URI == "" {
		return fmt.Errorf("database URI is required")
	}
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port %d", c.Server.Port)
	}
	if c.Analytics.MaxCashFlowHorizon <= 0 {
		return fmt.Errorf("max cash flow horizon must be positive")
	}
	return nil
}
