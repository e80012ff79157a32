package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config holds all service configuration
type Config struct {
	Service   ServiceConfig
	Database  DatabaseConfig
	Redis     RedisConfig
	Queue     QueueConfig
	Engine    EngineConfig
	Executors ExecutorConfig
	Limits    LimitsConfig
	Telemetry TelemetryConfig
}

// ServiceConfig holds service-specific settings
type ServiceConfig struct {
	Name        string
	Port        int
	Environment string
	LogLevel    string
	LogFormat   string
}

// DatabaseConfig holds Postgres connection settings
type DatabaseConfig struct {
	Host        string
	Port        int
	Database    string
	User        string
	Password    string
	MaxConns    int
	MinConns    int
	MaxIdleTime time.Duration
	MaxLifetime time.Duration
}

// RedisConfig holds Redis connection settings
type RedisConfig struct {
	Host     string
	Port     int
	Password string
	DB       int
}

// QueueConfig holds task queue settings
type QueueConfig struct {
	TaskQueue    string
	EventChannel string
	PopTimeout   time.Duration
}

// EngineConfig holds graph engine worker settings
type EngineConfig struct {
	Workers     int
	SeedPending bool
}

// ExecutorConfig holds downstream executor endpoints
type ExecutorConfig struct {
	AgentServiceURL string
	ToolServiceURL  string
	RequestTimeout  time.Duration
}

// LimitsConfig holds blueprint and rate limit settings
type LimitsConfig struct {
	MaxBlueprintTasks  int
	MaxBlueprintEdges  int
	RateLimitEnabled   bool
	SubmitsPerMinute   int64
	GlobalPerMinute    int64
}

// TelemetryConfig holds observability settings
type TelemetryConfig struct {
	EnablePprof bool
	PprofPort   int
}

// Load loads configuration from environment variables
func Load(serviceName string) (*Config, error) {
	cfg := &Config{
		Service: ServiceConfig{
			Name:        serviceName,
			Port:        getEnvInt("PORT", 8080),
			Environment: getEnv("ENVIRONMENT", "development"),
			LogLevel:    getEnv("LOG_LEVEL", "info"),
			LogFormat:   getEnv("LOG_FORMAT", "text"), // Default to text for development
		},
		Database: DatabaseConfig{
			Host:        getEnv("POSTGRES_HOST", "localhost"),
			Port:        getEnvInt("POSTGRES_PORT", 5432),
			Database:    getEnv("POSTGRES_DB", "orchestrator"),
			User:        getEnv("POSTGRES_USER", "orchestrator"),
			Password:    getEnv("POSTGRES_PASSWORD", "orchestrator"),
			MaxConns:    getEnvInt("POSTGRES_MAX_CONNS", 50),
			MinConns:    getEnvInt("POSTGRES_MIN_CONNS", 10),
			MaxIdleTime: getEnvDuration("POSTGRES_MAX_IDLE_TIME", 30*time.Minute),
			MaxLifetime: getEnvDuration("POSTGRES_MAX_LIFETIME", 1*time.Hour),
		},
		Redis: RedisConfig{
			Host:     getEnv("REDIS_HOST", "localhost"),
			Port:     getEnvInt("REDIS_PORT", 6379),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getEnvInt("REDIS_DB", 0),
		},
		Queue: QueueConfig{
			TaskQueue:    getEnv("TASK_QUEUE_NAME", "task_execution_queue"),
			EventChannel: getEnv("TASK_EVENT_CHANNEL", "task-events"),
			PopTimeout:   getEnvDuration("QUEUE_POP_TIMEOUT", 5*time.Second),
		},
		Engine: EngineConfig{
			Workers:     getEnvInt("ENGINE_WORKERS", 4),
			SeedPending: getEnvBool("ENGINE_SEED_PENDING", true),
		},
		Executors: ExecutorConfig{
			AgentServiceURL: getEnv("AGENT_SERVICE_URL", "http://localhost:9001"),
			ToolServiceURL:  getEnv("TOOL_SERVICE_URL", "http://localhost:9002"),
			RequestTimeout:  getEnvDuration("EXECUTOR_REQUEST_TIMEOUT", 120*time.Second),
		},
		Limits: LimitsConfig{
			MaxBlueprintTasks: getEnvInt("MAX_BLUEPRINT_TASKS", 200),
			MaxBlueprintEdges: getEnvInt("MAX_BLUEPRINT_EDGES", 400),
			RateLimitEnabled:  getEnvBool("RATE_LIMIT_ENABLED", true),
			SubmitsPerMinute:  int64(getEnvInt("RATE_LIMIT_SUBMITS_PER_MINUTE", 120)),
			GlobalPerMinute:   int64(getEnvInt("RATE_LIMIT_GLOBAL_PER_MINUTE", 2000)),
		},
		Telemetry: TelemetryConfig{
			EnablePprof: getEnvBool("ENABLE_PPROF", true),
			PprofPort:   getEnvInt("PPROF_PORT", 6060),
		},
	}

	return cfg, cfg.Validate()
}

// Validate checks if configuration is valid
func (c *Config) Validate() error {
	if c.Service.Port < 1 || c.Service.Port > 65535 {
		return fmt.Errorf("invalid port: %d", c.Service.Port)
	}

	if c.Database.Host == "" {
		return fmt.Errorf("database host is required")
	}

	if c.Database.MaxConns < c.Database.MinConns {
		return fmt.Errorf("max_conns must be >= min_conns")
	}

	if c.Queue.TaskQueue == "" {
		return fmt.Errorf("task queue name is required")
	}

	if c.Engine.Workers < 1 {
		return fmt.Errorf("engine workers must be >= 1")
	}

	return nil
}

// DatabaseURL returns the PostgreSQL connection string
func (c *Config) DatabaseURL() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=disable",
		c.Database.User,
		c.Database.Password,
		c.Database.Host,
		c.Database.Port,
		c.Database.Database,
	)
}

// RedisAddr returns the Redis host:port address
func (c *Config) RedisAddr() string {
	return fmt.Sprintf("%s:%d", c.Redis.Host, c.Redis.Port)
}

// Helper functions

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolVal, err := strconv.ParseBool(value); err == nil {
			return boolVal
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
