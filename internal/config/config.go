package config

import "time"

// Config holds all application configuration.
// It organizes settings into logical groups for better maintainability.
type Config struct {
	Server   ServerConfig   `mapstructure:"server" validate:"required"`
	Database DatabaseConfig `mapstructure:"database" validate:"required"`
	Auth     AuthConfig     `mapstructure:"auth" validate:"required"`
	LLM      LLMConfig      `mapstructure:"llm" validate:"required"`
	Broker   BrokerConfig   `mapstructure:"broker" validate:"required"`
	Redis    RedisConfig    `mapstructure:"redis"`
	Worker   WorkerConfig   `mapstructure:"worker" validate:"required"`
	Notifier NotifierConfig `mapstructure:"notifier" validate:"required"`
	Storage  StorageConfig  `mapstructure:"storage" validate:"required"`
}

// ServerConfig contains all server-related configuration settings.
type ServerConfig struct {
	Port     int    `mapstructure:"port" validate:"required,gt=0,lt=65536"`
	LogLevel string `mapstructure:"log_level" validate:"required,oneof=debug info warn error"`
}

// DatabaseConfig contains all database-related configuration settings.
type DatabaseConfig struct {
	URL string `mapstructure:"url" validate:"required,url"`
}

// AuthConfig contains all authentication and authorization settings.
type AuthConfig struct {
	JWTSecret            string `mapstructure:"jwt_secret" validate:"required,min=32"`
	TokenLifetimeMinutes int    `mapstructure:"token_lifetime_minutes" validate:"required,gt=0"`
}

// LLMConfig contains the transcription and analysis provider settings.
type LLMConfig struct {
	// Provider selects the capability implementation: "gemini" or "mock".
	Provider           string        `mapstructure:"provider" validate:"required,oneof=gemini mock"`
	GeminiAPIKey       string        `mapstructure:"gemini_api_key" validate:"required_if=Provider gemini"`
	TranscriptionModel string        `mapstructure:"transcription_model" validate:"required"`
	AnalysisModel      string        `mapstructure:"analysis_model" validate:"required"`
	MaxRetries         int           `mapstructure:"max_retries" validate:"gte=0,lte=10"`
	RetryDelay         time.Duration `mapstructure:"retry_delay" validate:"gt=0"`
}

// BrokerConfig describes the message broker topology.
type BrokerConfig struct {
	// Provider selects the broker: "rabbitmq" or "memory".
	Provider      string        `mapstructure:"provider" validate:"required,oneof=rabbitmq memory"`
	URL           string        `mapstructure:"url" validate:"required_if=Provider rabbitmq"`
	Exchange      string        `mapstructure:"exchange" validate:"required"`
	Queue         string        `mapstructure:"queue" validate:"required"`
	RoutingKey    string        `mapstructure:"routing_key" validate:"required"`
	DLQ           string        `mapstructure:"dlq" validate:"required"`
	DLQRoutingKey string        `mapstructure:"dlq_routing_key" validate:"required"`
	MessageTTL    time.Duration `mapstructure:"message_ttl" validate:"gt=0"`
	MaxLength     int           `mapstructure:"max_length" validate:"gt=0"`
}

// RedisConfig enables the per-resource processing claim. An empty URL
// disables it.
type RedisConfig struct {
	URL      string        `mapstructure:"url" validate:"omitempty,url"`
	ClaimTTL time.Duration `mapstructure:"claim_ttl" validate:"gt=0"`
}

// WorkerConfig controls the consumer pool.
type WorkerConfig struct {
	WorkerCount int `mapstructure:"worker_count" validate:"gt=0"`
	MaxRetries  int `mapstructure:"max_retries" validate:"gt=0"`

	// StuckTaskAge is how long a task may sit in processing before it is
	// treated as a failed attempt. Zero disables the check.
	StuckTaskAge           time.Duration `mapstructure:"stuck_task_age" validate:"gte=0"`
	StuckTaskCheckInterval time.Duration `mapstructure:"stuck_task_check_interval" validate:"gte=0"`

	// PendingRequeueAge is how long a task may stay pending before its
	// message is re-published. Zero disables the check.
	PendingRequeueAge    time.Duration `mapstructure:"pending_requeue_age" validate:"gte=0"`
	PendingCheckInterval time.Duration `mapstructure:"pending_check_interval" validate:"gte=0"`
}

// NotifierConfig controls the status push loop.
type NotifierConfig struct {
	PollInterval time.Duration `mapstructure:"poll_interval" validate:"gt=0"`
	MaxLifetime  time.Duration `mapstructure:"max_lifetime" validate:"gt=0"`
	WriteTimeout time.Duration `mapstructure:"write_timeout" validate:"gt=0"`
}

// StorageConfig locates uploaded audio files.
type StorageConfig struct {
	AudioPath string `mapstructure:"audio_path" validate:"required"`
}
