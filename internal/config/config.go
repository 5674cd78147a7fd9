package config

import "time"

// Config holds all application configuration.
// It organizes settings into logical groups for better maintainability.
type Config struct {
	Server   ServerConfig   `mapstructure:"server" validate:"required"`
	Database DatabaseConfig `mapstructure:"database" validate:"required"`
	Auth     AuthConfig     `mapstructure:"auth" validate:"required"`
	LLM      LLMConfig      `mapstructure:"llm" validate:"required"`
	Task     TaskConfig     `mapstructure:"task" validate:"required"`
	Redis    RedisConfig    `mapstructure:"redis"`
}

// ServerConfig contains all server-related configuration settings.
type ServerConfig struct {
	Port     int    `mapstructure:"port" validate:"required,gt=0,lt=65536"`
	LogLevel string `mapstructure:"log_level" validate:"required,oneof=debug info warn error"`
}

// Supported values for DatabaseConfig.Driver.
const (
	DriverMemory   = "memory"
	DriverPostgres = "postgres"
	DriverMongoDB  = "mongodb"
)

// DatabaseConfig selects and locates the job store.
type DatabaseConfig struct {
	Driver string `mapstructure:"driver" validate:"required,oneof=memory postgres mongodb"`
	URL    string `mapstructure:"url" validate:"required_unless=Driver memory"`
	// Name is the MongoDB database name.
	Name string `mapstructure:"name" validate:"required"`
}

// AuthConfig contains all authentication and authorization settings.
type AuthConfig struct {
	JWTSecret            string `mapstructure:"jwt_secret" validate:"required,min=32"`
	TokenLifetimeMinutes int    `mapstructure:"token_lifetime_minutes" validate:"required,gt=0"`
}

// TokenLifetime returns the access token lifetime.
func (c AuthConfig) TokenLifetime() time.Duration {
	return time.Duration(c.TokenLifetimeMinutes) * time.Minute
}

// LLMConfig contains all LLM integration related settings. The AI task
// handlers are only registered when GeminiAPIKey is set.
type LLMConfig struct {
	GeminiAPIKey      string `mapstructure:"gemini_api_key"`
	ModelName         string `mapstructure:"model_name" validate:"required"`
	ImageModelName    string `mapstructure:"image_model_name" validate:"required"`
	MaxRetries        int    `mapstructure:"max_retries" validate:"gte=0,lte=10"`
	RetryDelaySeconds int    `mapstructure:"retry_delay_seconds" validate:"gte=1,lte=60"`
}

// Enabled reports whether an API key is configured.
func (c LLMConfig) Enabled() bool {
	return c.GeminiAPIKey != ""
}

// TaskConfig controls job retention and shutdown.
type TaskConfig struct {
	RetentionHours         int `mapstructure:"retention_hours" validate:"required,gt=0"`
	CleanupIntervalMinutes int `mapstructure:"cleanup_interval_minutes" validate:"required,gt=0"`
	ShutdownTimeoutSeconds int `mapstructure:"shutdown_timeout_seconds" validate:"required,gt=0"`
}

// Retention returns how long terminal jobs are kept.
func (c TaskConfig) Retention() time.Duration {
	return time.Duration(c.RetentionHours) * time.Hour
}

// CleanupInterval returns how often old jobs are swept.
func (c TaskConfig) CleanupInterval() time.Duration {
	return time.Duration(c.CleanupIntervalMinutes) * time.Minute
}

// ShutdownTimeout returns how long shutdown waits for running jobs.
func (c TaskConfig) ShutdownTimeout() time.Duration {
	return time.Duration(c.ShutdownTimeoutSeconds) * time.Second
}

// RedisConfig configures the optional job event publisher.
type RedisConfig struct {
	URL     string `mapstructure:"url" validate:"omitempty,url"`
	Channel string `mapstructure:"channel" validate:"required"`
}
