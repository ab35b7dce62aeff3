package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
)

// EnvPrefix is prepended to every environment variable name, e.g.
// SCRIBE_SERVER_PORT for server.port.
const EnvPrefix = "SCRIBE"

// keys without defaults still need binding so AutomaticEnv can see them
// during Unmarshal.
var boundKeys = []string{
	"database.url",
	"auth.jwt_secret",
	"llm.gemini_api_key",
	"broker.url",
	"redis.url",
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.log_level", "info")

	v.SetDefault("auth.token_lifetime_minutes", 60)

	v.SetDefault("llm.provider", "gemini")
	v.SetDefault("llm.transcription_model", "gemini-2.0-flash")
	v.SetDefault("llm.analysis_model", "gemini-2.0-flash")
	v.SetDefault("llm.max_retries", 3)
	v.SetDefault("llm.retry_delay", 2*time.Second)

	v.SetDefault("broker.provider", "rabbitmq")
	v.SetDefault("broker.exchange", "audio.exchange")
	v.SetDefault("broker.queue", "audio.processing.queue")
	v.SetDefault("broker.routing_key", "audio.process")
	v.SetDefault("broker.dlq", "audio.processing.dlq")
	v.SetDefault("broker.dlq_routing_key", "audio.process.dlq")
	v.SetDefault("broker.message_ttl", 24*time.Hour)
	v.SetDefault("broker.max_length", 1000)

	v.SetDefault("redis.claim_ttl", 10*time.Minute)

	v.SetDefault("worker.worker_count", 4)
	v.SetDefault("worker.max_retries", 3)
	v.SetDefault("worker.stuck_task_age", 30*time.Minute)
	v.SetDefault("worker.stuck_task_check_interval", 5*time.Minute)
	v.SetDefault("worker.pending_requeue_age", time.Minute)
	v.SetDefault("worker.pending_check_interval", 15*time.Second)

	v.SetDefault("notifier.poll_interval", 2*time.Second)
	v.SetDefault("notifier.max_lifetime", 30*time.Minute)
	v.SetDefault("notifier.write_timeout", 10*time.Second)

	v.SetDefault("storage.audio_path", "./data/audio")
}

// Load configuration from environment variables and optionally config files.
// Environment variables take precedence over values from config files.
// Returns a populated Config struct or an error if loading/validation fails.
func Load() (*Config, error) {
	return LoadFrom("")
}

// LoadFrom is Load with an explicit config file. An empty path searches the
// working directory for an optional config.yaml.
func LoadFrom(path string) (*Config, error) {
	cfg, err := read(path)
	if err != nil {
		return nil, err
	}
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadAuth reads the same sources as LoadFrom but validates only the auth
// section, for tools that mint tokens without the rest of the stack.
func LoadAuth(path string) (AuthConfig, error) {
	cfg, err := read(path)
	if err != nil {
		return AuthConfig{}, err
	}
	if err := validator.New().Struct(cfg.Auth); err != nil {
		return AuthConfig{}, fmt.Errorf("auth config validation failed: %w", err)
	}
	return cfg.Auth, nil
}

func read(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	for _, key := range boundKeys {
		if err := v.BindEnv(key); err != nil {
			return nil, fmt.Errorf("error binding env for %s: %w", key, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshalling config: %w", err)
	}
	return &cfg, nil
}

// Validate checks the struct tags of cfg.
func Validate(cfg *Config) error {
	validate := validator.New()
	if err := validate.Struct(cfg); err != nil {
		return fmt.Errorf("config validation failed: %w", err)
	}
	return nil
}
