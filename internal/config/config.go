// Package config provides configuration management for the sketch repair tool.
package config

import (
	"bytes"
	"os"
	"path/filepath"
	"time"

	"github.com/BurntSushi/toml"

	"sketch-repair/internal/logger"
	"sketch-repair/internal/types"
)

const (
	// DefaultConfigFileName is the default configuration file name
	DefaultConfigFileName = "config.toml"
	// EnvOpenAIAPIKey is the environment variable name for OpenAI API key
	EnvOpenAIAPIKey = "OPENAI_API_KEY"
	// EnvOpenAIBaseURL is the environment variable name for OpenAI base URL
	EnvOpenAIBaseURL = "OPENAI_BASE_URL"
	// EnvModel overrides the suggestion model
	EnvModel = "SKETCH_REPAIR_MODEL"
	// DefaultBaseURL is the default OpenAI API base URL
	DefaultBaseURL = "https://api.openai.com/v1"
	// DefaultModel is the default OpenAI model to use
	DefaultModel = "gpt-4o"
	// DefaultMaxTokens bounds each suggestion response
	DefaultMaxTokens = 2048
	// DefaultSuggestTimeout bounds a single suggestion request
	DefaultSuggestTimeout = 60
	// DefaultBrowserMaxWait bounds a whole page execution
	DefaultBrowserMaxWait = 30
	// DefaultSettleMillis is how long errors are collected after page load
	DefaultSettleMillis = 1500
	// DefaultBackupSuffix is appended to the document path for the backup copy
	DefaultBackupSuffix = ".backup"
	// DefaultLogMaxSizeMB is the log file size that triggers rotation
	DefaultLogMaxSizeMB = 10
	// DefaultLogMaxBackups is the number of rotated log files kept
	DefaultLogMaxBackups = 5
)

// ConfigManager manages application configuration
type ConfigManager struct {
	configPath string
	config     *types.Config
}

// NewConfigManager creates a new ConfigManager with the specified config path.
// If configPath is empty, it uses the default path in user's home directory.
func NewConfigManager(configPath string) (*ConfigManager, error) {
	if configPath == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			logger.Error("failed to get user home directory", err)
			return nil, types.NewAppError(types.ErrConfig, "failed to get user home directory", err)
		}
		configPath = filepath.Join(homeDir, ".config", "sketch-repair", DefaultConfigFileName)
	}

	logger.Debug("ConfigManager initialized", logger.String("configPath", configPath))
	return &ConfigManager{
		configPath: configPath,
		config:     DefaultConfig(),
	}, nil
}

// DefaultConfig returns a Config with default values
func DefaultConfig() *types.Config {
	return &types.Config{
		Suggest: types.SuggestConfig{
			Enabled:        true,
			BaseURL:        DefaultBaseURL,
			Model:          DefaultModel,
			MaxTokens:      DefaultMaxTokens,
			TimeoutSeconds: DefaultSuggestTimeout,
		},
		Browser: types.BrowserConfig{
			Enabled:        true,
			MaxWaitSeconds: DefaultBrowserMaxWait,
			SettleMillis:   DefaultSettleMillis,
		},
		Log: types.LogConfig{
			Level:      "info",
			MaxSizeMB:  DefaultLogMaxSizeMB,
			MaxBackups: DefaultLogMaxBackups,
		},
		Repair: types.RepairConfig{
			BackupSuffix: DefaultBackupSuffix,
			Lock:         true,
		},
	}
}

// Load loads configuration from the config file.
// If the file doesn't exist, it uses default values.
// Environment variables fill the API key, base URL and model when the file leaves them empty.
func (m *ConfigManager) Load() error {
	logger.Debug("loading configuration", logger.String("path", m.configPath))

	data, err := os.ReadFile(m.configPath)
	if err != nil {
		if os.IsNotExist(err) {
			logger.Debug("config file not found, using defaults", logger.String("path", m.configPath))
			m.config = DefaultConfig()
		} else {
			logger.Error("failed to read config file", err, logger.String("path", m.configPath))
			return types.NewAppError(types.ErrConfig, "failed to read config file", err)
		}
	} else {
		// Decode over the defaults so omitted keys keep their default values.
		config := DefaultConfig()
		if err := toml.Unmarshal(data, config); err != nil {
			logger.Warn("invalid config file format, using defaults", logger.String("path", m.configPath), logger.Err(err))
			m.config = DefaultConfig()
		} else {
			logger.Debug("configuration loaded successfully",
				logger.String("path", m.configPath),
				logger.Int("apiKeyLength", len(config.Suggest.APIKey)),
				logger.String("model", config.Suggest.Model),
				logger.Bool("browser", config.Browser.Enabled))
			m.config = config
		}
	}

	m.applyDefaults()
	m.applyEnv()
	return nil
}

func (m *ConfigManager) applyDefaults() {
	c := m.config
	if c.Suggest.Model == "" {
		c.Suggest.Model = DefaultModel
	}
	if c.Suggest.MaxTokens <= 0 {
		c.Suggest.MaxTokens = DefaultMaxTokens
	}
	if c.Suggest.TimeoutSeconds <= 0 {
		c.Suggest.TimeoutSeconds = DefaultSuggestTimeout
	}
	if c.Browser.MaxWaitSeconds <= 0 {
		c.Browser.MaxWaitSeconds = DefaultBrowserMaxWait
	}
	if c.Browser.SettleMillis < 0 {
		c.Browser.SettleMillis = DefaultSettleMillis
	}
	if c.Repair.BackupSuffix == "" {
		c.Repair.BackupSuffix = DefaultBackupSuffix
	}
}

func (m *ConfigManager) applyEnv() {
	c := m.config
	if c.Suggest.APIKey == "" {
		c.Suggest.APIKey = os.Getenv(EnvOpenAIAPIKey)
	}
	if c.Suggest.BaseURL == "" {
		if env := os.Getenv(EnvOpenAIBaseURL); env != "" {
			c.Suggest.BaseURL = env
		} else {
			c.Suggest.BaseURL = DefaultBaseURL
		}
	}
	if env := os.Getenv(EnvModel); env != "" {
		c.Suggest.Model = env
	}
}

// Save saves the current configuration to the config file.
func (m *ConfigManager) Save() error {
	logger.Debug("saving configuration", logger.String("path", m.configPath))

	dir := filepath.Dir(m.configPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		logger.Error("failed to create config directory", err, logger.String("dir", dir))
		return types.NewAppError(types.ErrConfig, "failed to create config directory", err)
	}

	var buf bytes.Buffer
	if err := toml.NewEncoder(&buf).Encode(m.GetConfig()); err != nil {
		logger.Error("failed to encode config", err)
		return types.NewAppError(types.ErrConfig, "failed to encode config", err)
	}

	if err := os.WriteFile(m.configPath, buf.Bytes(), 0600); err != nil {
		logger.Error("failed to write config file", err, logger.String("path", m.configPath))
		return types.NewAppError(types.ErrConfig, "failed to write config file", err)
	}

	logger.Info("configuration saved successfully", logger.String("path", m.configPath))
	return nil
}

// GetConfig returns the current configuration.
func (m *ConfigManager) GetConfig() *types.Config {
	if m.config == nil {
		return DefaultConfig()
	}
	return m.config
}

// SetConfig sets the entire configuration.
func (m *ConfigManager) SetConfig(config *types.Config) {
	m.config = config
}

// GetConfigPath returns the path to the config file.
func (m *ConfigManager) GetConfigPath() string {
	return m.configPath
}

// GetAPIKey returns the OpenAI API key.
// It first checks the config file value, then falls back to the environment variable.
func (m *ConfigManager) GetAPIKey() string {
	if m.config != nil && m.config.Suggest.APIKey != "" {
		return m.config.Suggest.APIKey
	}
	return os.Getenv(EnvOpenAIAPIKey)
}

// GetBaseURL returns the OpenAI API base URL.
func (m *ConfigManager) GetBaseURL() string {
	if m.config != nil && m.config.Suggest.BaseURL != "" {
		return m.config.Suggest.BaseURL
	}
	if envURL := os.Getenv(EnvOpenAIBaseURL); envURL != "" {
		return envURL
	}
	return DefaultBaseURL
}

// GetModel returns the OpenAI model to use.
func (m *ConfigManager) GetModel() string {
	if m.config != nil && m.config.Suggest.Model != "" {
		return m.config.Suggest.Model
	}
	return DefaultModel
}

// SuggestTimeout returns the per-request timeout of the suggestion oracle.
func (m *ConfigManager) SuggestTimeout() time.Duration {
	return time.Duration(m.GetConfig().Suggest.TimeoutSeconds) * time.Second
}

// BrowserMaxWait returns the bound on a whole page execution.
func (m *ConfigManager) BrowserMaxWait() time.Duration {
	return time.Duration(m.GetConfig().Browser.MaxWaitSeconds) * time.Second
}

// SettleDelay returns how long runtime errors are collected after page load.
func (m *ConfigManager) SettleDelay() time.Duration {
	return time.Duration(m.GetConfig().Browser.SettleMillis) * time.Millisecond
}
