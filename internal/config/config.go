// Copyright 2025 Consent DocGen Project
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
)

// Config represents the complete application configuration
type Config struct {
	OpenAI     OpenAIConfig     `mapstructure:"openai"`
	Chroma     ChromaConfig     `mapstructure:"chroma"`
	Metadata   MetadataConfig   `mapstructure:"metadata"`
	Retrieval  RetrievalConfig  `mapstructure:"retrieval"`
	Generation GenerationConfig `mapstructure:"generation"`
	Server     ServerConfig     `mapstructure:"server"`
	Logging    LoggingConfig    `mapstructure:"logging"`
}

// OpenAIConfig contains OpenAI API configuration
type OpenAIConfig struct {
	APIKey   string `mapstructure:"apikey"`
	Endpoint string `mapstructure:"endpoint"`
}

// ChromaConfig contains ChromaDB configuration
type ChromaConfig struct {
	URL              string `mapstructure:"url"`
	CollectionPrefix string `mapstructure:"collection_prefix"`
}

// MetadataConfig contains the protocol metadata store configuration
type MetadataConfig struct {
	DBPath string `mapstructure:"db_path"`
}

// RetrievalConfig contains retrieval-specific settings
type RetrievalConfig struct {
	ChunksPerSection int `mapstructure:"chunks_per_section"`
	MinChunks        int `mapstructure:"min_chunks"`
	MaxChunks        int `mapstructure:"max_chunks"`
}

// GenerationConfig contains section generation settings
type GenerationConfig struct {
	PrimaryModel     string        `mapstructure:"primary_model"`
	FallbackModel    string        `mapstructure:"fallback_model"`
	MaxTokens        int           `mapstructure:"max_tokens"`
	Temperature      float64       `mapstructure:"temperature"`
	FallbackPolicy   string        `mapstructure:"fallback_policy"`
	FeedbackStrategy string        `mapstructure:"feedback_strategy"`
	SinkBuffer       int           `mapstructure:"sink_buffer"`
	SinkSendTimeout  time.Duration `mapstructure:"sink_send_timeout"`
	ModelTimeout     time.Duration `mapstructure:"model_timeout"`
}

// ServerConfig contains HTTP server configuration
type ServerConfig struct {
	Port int `mapstructure:"port"`
}

// LoggingConfig contains logging configuration
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
	Output string `mapstructure:"output"`
}

// ValidationError represents a configuration validation error
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("configuration validation failed for field '%s': %s", e.Field, e.Message)
}

// LoadOptions contains options for configuration loading
type LoadOptions struct {
	ConfigPath       string
	Environment      string
	ValidateRequired bool
}

// Load loads configuration from file and environment variables.
// Environment variables take precedence over config file values.
func Load(configPath string) (*Config, error) {
	return LoadWithOptions(LoadOptions{
		ConfigPath:       configPath,
		Environment:      getEnvironment(),
		ValidateRequired: true,
	})
}

// LoadWithOptions loads configuration with additional options
func LoadWithOptions(opts LoadOptions) (*Config, error) {
	v := viper.New()

	setDefaults(v)

	if err := setConfigFile(v, opts.ConfigPath); err != nil {
		return nil, fmt.Errorf("failed to set config file: %w", err)
	}

	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.SetEnvPrefix("DOCGEN")

	if err := v.ReadInConfig(); err != nil {
		// Config file not found is not an error if env vars are set
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	setEnvironmentMappings(v)

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if opts.ValidateRequired {
		if err := validateConfig(&config); err != nil {
			return nil, fmt.Errorf("configuration validation failed: %w", err)
		}
	}

	return &config, nil
}

// setDefaults sets default configuration values
func setDefaults(v *viper.Viper) {
	// OpenAI defaults
	v.SetDefault("openai.endpoint", "https://api.openai.com/v1")

	// ChromaDB defaults
	v.SetDefault("chroma.url", "http://chromadb:8000")
	v.SetDefault("chroma.collection_prefix", "protocol")

	// Metadata defaults
	v.SetDefault("metadata.db_path", "./protocols.db")

	// Retrieval defaults
	v.SetDefault("retrieval.chunks_per_section", 5)
	v.SetDefault("retrieval.min_chunks", 3)
	v.SetDefault("retrieval.max_chunks", 10)

	// Generation defaults
	v.SetDefault("generation.primary_model", "gpt-4o")
	v.SetDefault("generation.fallback_model", "gpt-4o-mini")
	v.SetDefault("generation.max_tokens", 2000)
	v.SetDefault("generation.temperature", 0.3)
	v.SetDefault("generation.fallback_policy", "restart")
	v.SetDefault("generation.feedback_strategy", "append")
	v.SetDefault("generation.sink_buffer", 64)
	v.SetDefault("generation.sink_send_timeout", 5*time.Second)
	v.SetDefault("generation.model_timeout", 120*time.Second)

	// Server defaults
	v.SetDefault("server.port", 8080)

	// Logging defaults
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
	v.SetDefault("logging.output", "stdout")
}

// setConfigFile sets the configuration file path with fallback logic
func setConfigFile(v *viper.Viper, configPath string) error {
	// Check for CONFIG_PATH environment variable
	if envPath := os.Getenv("CONFIG_PATH"); envPath != "" {
		if _, err := os.Stat(envPath); err != nil {
			return fmt.Errorf("config file specified by CONFIG_PATH does not exist: %s", envPath)
		}
		v.SetConfigFile(envPath)
		return nil
	}

	if configPath != "" {
		if _, err := os.Stat(configPath); err != nil {
			return fmt.Errorf("config file does not exist: %s", configPath)
		}
		v.SetConfigFile(configPath)
		return nil
	}

	// Default fallback locations
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath("./configs")
	v.AddConfigPath(".")

	return nil
}

// setEnvironmentMappings sets explicit environment variable mappings
func setEnvironmentMappings(v *viper.Viper) {
	envMappings := map[string]string{
		"OPENAI_API_KEY":   "openai.apikey",
		"OPENAI_ENDPOINT":  "openai.endpoint",
		"CHROMA_URL":       "chroma.url",
		"METADATA_DB_PATH": "metadata.db_path",
		"LOG_LEVEL":        "logging.level",
		"LOG_FORMAT":       "logging.format",
		"LOG_OUTPUT":       "logging.output",
	}

	for envVar, configKey := range envMappings {
		if value := os.Getenv(envVar); value != "" {
			v.Set(configKey, value)
		}
	}
}

// validateConfig validates the configuration for required fields and valid values
func validateConfig(config *Config) error {
	var errors []ValidationError

	if config.OpenAI.APIKey == "" {
		errors = append(errors, ValidationError{
			Field:   "openai.apikey",
			Message: "OpenAI API key is required. Set via config file or OPENAI_API_KEY environment variable",
		})
	}

	if config.Chroma.URL == "" {
		errors = append(errors, ValidationError{
			Field:   "chroma.url",
			Message: "ChromaDB URL is required",
		})
	}

	if config.Retrieval.MinChunks <= 0 {
		errors = append(errors, ValidationError{
			Field:   "retrieval.min_chunks",
			Message: "min_chunks must be greater than 0",
		})
	}

	if config.Retrieval.MaxChunks < config.Retrieval.MinChunks {
		errors = append(errors, ValidationError{
			Field:   "retrieval.max_chunks",
			Message: "max_chunks must be greater than or equal to min_chunks",
		})
	}

	if config.Retrieval.ChunksPerSection <= 0 {
		errors = append(errors, ValidationError{
			Field:   "retrieval.chunks_per_section",
			Message: "chunks_per_section must be greater than 0",
		})
	}

	if config.Generation.PrimaryModel == "" {
		errors = append(errors, ValidationError{
			Field:   "generation.primary_model",
			Message: "primary_model is required",
		})
	}

	if config.Generation.MaxTokens <= 0 {
		errors = append(errors, ValidationError{
			Field:   "generation.max_tokens",
			Message: "max_tokens must be greater than 0",
		})
	}

	if config.Generation.Temperature < 0 || config.Generation.Temperature > 2 {
		errors = append(errors, ValidationError{
			Field:   "generation.temperature",
			Message: "temperature must be between 0 and 2",
		})
	}

	validFallbackPolicies := []string{"restart", "resume"}
	if !contains(validFallbackPolicies, config.Generation.FallbackPolicy) {
		errors = append(errors, ValidationError{
			Field:   "generation.fallback_policy",
			Message: fmt.Sprintf("fallback policy must be one of: %s", strings.Join(validFallbackPolicies, ", ")),
		})
	}

	validFeedbackStrategies := []string{"append", "replace"}
	if !contains(validFeedbackStrategies, config.Generation.FeedbackStrategy) {
		errors = append(errors, ValidationError{
			Field:   "generation.feedback_strategy",
			Message: fmt.Sprintf("feedback strategy must be one of: %s", strings.Join(validFeedbackStrategies, ", ")),
		})
	}

	if config.Generation.SinkBuffer <= 0 {
		errors = append(errors, ValidationError{
			Field:   "generation.sink_buffer",
			Message: "sink_buffer must be greater than 0",
		})
	}

	if config.Generation.SinkSendTimeout <= 0 {
		errors = append(errors, ValidationError{
			Field:   "generation.sink_send_timeout",
			Message: "sink_send_timeout must be greater than 0",
		})
	}

	validLogLevels := []string{"debug", "info", "warn", "error"}
	if !contains(validLogLevels, config.Logging.Level) {
		errors = append(errors, ValidationError{
			Field:   "logging.level",
			Message: fmt.Sprintf("log level must be one of: %s", strings.Join(validLogLevels, ", ")),
		})
	}

	validLogFormats := []string{"json", "text"}
	if !contains(validLogFormats, config.Logging.Format) {
		errors = append(errors, ValidationError{
			Field:   "logging.format",
			Message: fmt.Sprintf("log format must be one of: %s", strings.Join(validLogFormats, ", ")),
		})
	}

	if config.Metadata.DBPath == "" {
		errors = append(errors, ValidationError{
			Field:   "metadata.db_path",
			Message: "metadata database path is required",
		})
	}

	if config.Metadata.DBPath != "" {
		if err := validateDirectoryExists(filepath.Dir(config.Metadata.DBPath)); err != nil {
			errors = append(errors, ValidationError{
				Field:   "metadata.db_path",
				Message: fmt.Sprintf("metadata database directory does not exist: %s", filepath.Dir(config.Metadata.DBPath)),
			})
		}
	}

	if len(errors) > 0 {
		var errorMessages []string
		for _, err := range errors {
			errorMessages = append(errorMessages, err.Error())
		}
		return fmt.Errorf("configuration validation failed:\n%s", strings.Join(errorMessages, "\n"))
	}

	return nil
}

// MaskSensitiveValues returns a copy of the config with sensitive values masked
func (c *Config) MaskSensitiveValues() *Config {
	masked := *c

	if masked.OpenAI.APIKey != "" {
		masked.OpenAI.APIKey = maskValue(masked.OpenAI.APIKey)
	}

	return &masked
}

// maskValue masks sensitive values, showing only the first 8 characters
func maskValue(value string) string {
	if len(value) <= 8 {
		return strings.Repeat("*", len(value))
	}
	return value[:8] + strings.Repeat("*", len(value)-8)
}

// contains checks if a slice contains a specific string
func contains(slice []string, item string) bool {
	for _, s := range slice {
		if s == item {
			return true
		}
	}
	return false
}

// validateDirectoryExists checks if a directory exists
func validateDirectoryExists(path string) error {
	if path == "" || path == "." {
		return nil
	}

	info, err := os.Stat(path)
	if err != nil {
		return err
	}

	if !info.IsDir() {
		return fmt.Errorf("path is not a directory: %s", path)
	}

	return nil
}

// getEnvironment returns the current environment (development, production, etc.)
func getEnvironment() string {
	if env := os.Getenv("ENVIRONMENT"); env != "" {
		return env
	}
	if env := os.Getenv("ENV"); env != "" {
		return env
	}
	return "development"
}

// WatchConfig enables configuration hot-reloading for development
func WatchConfig(configPath string, callback func(*Config)) error {
	v := viper.New()

	if err := setConfigFile(v, configPath); err != nil {
		return err
	}

	v.WatchConfig()
	v.OnConfigChange(func(e fsnotify.Event) {
		fmt.Printf("Config file changed: %s\n", e.Name)

		config, err := LoadWithOptions(LoadOptions{
			ConfigPath:       configPath,
			Environment:      getEnvironment(),
			ValidateRequired: true,
		})
		if err != nil {
			fmt.Printf("Failed to reload config: %v\n", err)
			return
		}

		callback(config)
	})

	return nil
}
