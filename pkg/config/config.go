package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/caarlos0/env/v11"
)

const (
	defaultWorkers       = 4
	defaultOutputMarker  = "/z"
	defaultGatewayHost   = "127.0.0.1"
	defaultGatewayPort   = 18791
	defaultAssistantName = "gpt-4.1-mini"
)

// Config is the root runtime configuration loaded from config.json.
type Config struct {
	BaseDir   string          `json:"base_dir"  env:"SIMPLEBOT_BASE_DIR"`
	Channels  ChannelsConfig  `json:"channels"`
	Dispatch  DispatchConfig  `json:"dispatch"`
	Plugins   PluginsConfig   `json:"plugins"`
	Assistant AssistantConfig `json:"assistant,omitempty"`
	Gateway   GatewayConfig   `json:"gateway"`
	Logging   LoggingConfig   `json:"logging,omitempty"`
}

// LoggingConfig controls structured log output format and verbosity.
type LoggingConfig struct {
	Format    string `json:"format,omitempty"`
	Level     string `json:"level,omitempty"`
	AddSource bool   `json:"add_source,omitempty"`
}

// ChannelsConfig stores transport adapter settings.
type ChannelsConfig struct {
	Telegram TelegramConfig `json:"telegram"`
	WhatsApp WhatsAppConfig `json:"whatsapp"`
	Console  ConsoleConfig  `json:"console"`
}

// TelegramConfig configures Telegram channel integration.
type TelegramConfig struct {
	Enabled   bool     `json:"enabled"`
	Token     string   `json:"token"      env:"TELEGRAM_BOT_TOKEN"`
	AllowFrom []string `json:"allow_from" env:"TELEGRAM_ALLOW_FROM"`
}

// WhatsAppConfig configures the WhatsApp multi-device session.
type WhatsAppConfig struct {
	Enabled    bool   `json:"enabled"`
	SessionDSN string `json:"session_dsn" env:"WHATSAPP_SESSION_DSN"`
}

// ConsoleConfig configures the local stdin/stdout channel.
type ConsoleConfig struct {
	Enabled  bool   `json:"enabled"`
	SenderID string `json:"sender_id"`
}

// DispatchConfig tunes the inbound dispatch pipeline.
type DispatchConfig struct {
	Workers                int    `json:"workers"`
	CallbackTimeoutSeconds int    `json:"callback_timeout_seconds" env:"SIMPLEBOT_CALLBACK_TIMEOUT_SECONDS"`
	OutputMarker           string `json:"output_marker"`
}

// PluginsConfig controls plugin discovery and activation policy.
type PluginsConfig struct {
	Disabled   []string `json:"disabled"    env:"SIMPLEBOT_PLUGINS_DISABLED"`
	SkipFailed bool     `json:"skip_failed"`
}

// AssistantConfig configures the OpenAI-backed assistant plugin.
type AssistantConfig struct {
	APIKey                string `json:"-"        env:"OPENAI_API_KEY"`
	BaseURL               string `json:"base_url" env:"OPENAI_BASE_URL"`
	Model                 string `json:"model"`
	Instructions          string `json:"instructions"`
	RequestTimeoutSeconds int    `json:"request_timeout_seconds"`
}

// GatewayConfig configures the status server bind settings.
type GatewayConfig struct {
	Host string `json:"host"`
	Port int    `json:"port"`
}

// Default returns the configuration used when config.json omits a value.
func Default() Config {
	return Config{
		BaseDir: defaultBaseDir(),
		Channels: ChannelsConfig{
			WhatsApp: WhatsAppConfig{SessionDSN: "file:simplebot_whatsapp.db?_foreign_keys=on"},
			Console:  ConsoleConfig{SenderID: "console"},
		},
		Dispatch: DispatchConfig{
			Workers:      defaultWorkers,
			OutputMarker: defaultOutputMarker,
		},
		Assistant: AssistantConfig{Model: defaultAssistantName},
		Gateway: GatewayConfig{
			Host: defaultGatewayHost,
			Port: defaultGatewayPort,
		},
	}
}

// LoadConfig resolves config.json, unmarshals it, and applies environment overrides.
func LoadConfig() (*Config, error) {
	configPath, err := findConfigPath()
	if err != nil {
		return nil, err
	}

	return LoadConfigFile(configPath)
}

// LoadConfigFile reads one config file on top of Default and applies env overrides.
func LoadConfigFile(path string) (*Config, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	cfg := Default()
	if err := json.Unmarshal(content, &cfg); err != nil {
		return nil, fmt.Errorf("parse config file: %w", err)
	}

	if err := applyEnvOverrides(&cfg); err != nil {
		return nil, err
	}
	cfg.normalize()

	return &cfg, nil
}

// applyEnvOverrides injects env-driven settings on top of file config.
func applyEnvOverrides(cfg *Config) error {
	if cfg == nil {
		return nil
	}

	if err := env.Parse(cfg); err != nil {
		return fmt.Errorf("parse environment overrides: %w", err)
	}

	return nil
}

// normalize trims list values and restores defaults for zeroed tunables.
func (c *Config) normalize() {
	defaults := Default()

	c.BaseDir = strings.TrimSpace(c.BaseDir)
	if c.BaseDir == "" {
		c.BaseDir = defaults.BaseDir
	}
	if c.Dispatch.Workers <= 0 {
		c.Dispatch.Workers = defaults.Dispatch.Workers
	}
	if c.Dispatch.CallbackTimeoutSeconds < 0 {
		c.Dispatch.CallbackTimeoutSeconds = 0
	}
	c.Dispatch.OutputMarker = strings.TrimSpace(c.Dispatch.OutputMarker)
	if c.Dispatch.OutputMarker == "" {
		c.Dispatch.OutputMarker = defaults.Dispatch.OutputMarker
	}
	if strings.TrimSpace(c.Assistant.Model) == "" {
		c.Assistant.Model = defaults.Assistant.Model
	}

	c.Channels.Telegram.AllowFrom = compact(c.Channels.Telegram.AllowFrom)
	c.Plugins.Disabled = compact(c.Plugins.Disabled)
}

// compact trims values and drops empty entries.
func compact(values []string) []string {
	if len(values) == 0 {
		return nil
	}

	clean := make([]string, 0, len(values))
	for _, value := range values {
		trimmed := strings.TrimSpace(value)
		if trimmed == "" {
			continue
		}
		clean = append(clean, trimmed)
	}

	if len(clean) == 0 {
		return nil
	}
	return clean
}

func defaultBaseDir() string {
	home, err := os.UserHomeDir()
	if err != nil || home == "" {
		return ".simplebot"
	}
	return filepath.Join(home, ".simplebot")
}

// findConfigPath resolves the active config file location.
//
// Precedence is SIMPLEBOT_CONFIG first, then cwd-local fallback paths.
func findConfigPath() (string, error) {
	if value := strings.TrimSpace(os.Getenv("SIMPLEBOT_CONFIG")); value != "" {
		if info, err := os.Stat(value); err == nil && !info.IsDir() {
			return value, nil
		}
		return "", fmt.Errorf("SIMPLEBOT_CONFIG does not point to a file: %s", value)
	}

	cwd, err := os.Getwd()
	if err != nil {
		return "", fmt.Errorf("get current working directory: %w", err)
	}

	candidates := []string{
		filepath.Join(cwd, "config.json"),
		filepath.Join(cwd, "config", "config.json"),
	}

	for _, candidate := range candidates {
		if info, err := os.Stat(candidate); err == nil && !info.IsDir() {
			return candidate, nil
		}
	}

	return "", errors.New("config.json not found (checked " + candidates[0] + " and " + candidates[1] + ")")
}
