package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config is the root configuration for sigbridge.
type Config struct {
	General     GeneralConfig     `json:"general" yaml:"general"`
	Gateway     GatewayConfig     `json:"gateway" yaml:"gateway"`
	Accounts    []AccountConfig   `json:"accounts" yaml:"accounts"`
	History     HistoryConfig     `json:"history" yaml:"history"`
	Attachments AttachmentsConfig `json:"attachments" yaml:"attachments"`
	Nats        NatsConfig        `json:"nats" yaml:"nats"`
	Web         WebConfig         `json:"web" yaml:"web"`
	Metrics     MetricsConfig     `json:"metrics" yaml:"metrics"`
}

type GeneralConfig struct {
	LogLevel string `json:"logLevel" yaml:"logLevel"` // debug | info | warn | error
	LogFile  string `json:"logFile,omitempty" yaml:"logFile,omitempty"`
}

// GatewayConfig points sigbridge at a signal-cli-rest-api instance.
type GatewayConfig struct {
	APIURL                   string `json:"apiUrl" yaml:"apiUrl"`
	ReconnectIntervalSeconds int    `json:"reconnectIntervalSeconds" yaml:"reconnectIntervalSeconds"`
	MaxReconnectDelaySeconds int    `json:"maxReconnectDelaySeconds" yaml:"maxReconnectDelaySeconds"`
	RequestTimeoutSeconds    int    `json:"requestTimeoutSeconds" yaml:"requestTimeoutSeconds"`
}

// AccountConfig scopes one receive stream to a phone number.
type AccountConfig struct {
	ID          string `json:"id" yaml:"id"`
	PhoneNumber string `json:"phoneNumber" yaml:"phoneNumber"`
	Enabled     bool   `json:"enabled" yaml:"enabled"`
}

type HistoryConfig struct {
	MaxMessages int `json:"maxMessages" yaml:"maxMessages"`
}

type AttachmentsConfig struct {
	Dir           string `json:"dir" yaml:"dir"`
	PublicBaseURL string `json:"publicBaseUrl,omitempty" yaml:"publicBaseUrl,omitempty"`
}

// NatsConfig enables republishing of normalized events to a NATS subject.
type NatsConfig struct {
	Enabled bool   `json:"enabled" yaml:"enabled"`
	URL     string `json:"url" yaml:"url"`
	Subject string `json:"subject" yaml:"subject"`
}

// WebConfig configures the HTTP status/metrics server.
type WebConfig struct {
	Enabled bool   `json:"enabled" yaml:"enabled"`
	Host    string `json:"host" yaml:"host"`
	Port    int    `json:"port" yaml:"port"`
}

type MetricsConfig struct {
	Enabled  bool   `json:"enabled" yaml:"enabled"`
	Endpoint string `json:"endpoint" yaml:"endpoint"`
}

// DefaultConfigDir returns the default config directory (~/.sigbridge).
func DefaultConfigDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".sigbridge"
	}
	return filepath.Join(home, ".sigbridge")
}

func DefaultConfigPath() string {
	return filepath.Join(DefaultConfigDir(), "config.json")
}

// Load reads, env-expands, and validates a config file. Both JSON and YAML
// are accepted, selected by file extension.
func Load(path string) (*Config, error) {
	path = ExpandPath(path)

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("cannot read config file %s: %w", path, err)
	}

	// Substitute environment variables: ${VAR} and ${VAR:-default}
	data = []byte(ExpandEnvVars(string(data)))

	cfg := Defaults()
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("cannot parse config file %s: %w", path, err)
		}
	default:
		if err := json.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("cannot parse config file %s: %w", path, err)
		}
	}

	cfg.Attachments.Dir = ExpandPath(cfg.Attachments.Dir)
	cfg.General.LogFile = ExpandPath(cfg.General.LogFile)
	cfg.Gateway.APIURL = strings.TrimRight(cfg.Gateway.APIURL, "/")

	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("config validation: %w", err)
	}

	return cfg, nil
}

// envVarPattern matches ${VAR} and ${VAR:-default} patterns in config strings.
var envVarPattern = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)(?::-(.*?))?\}`)

// ExpandEnvVars replaces ${VAR} with the environment variable value.
// Supports default values: ${VAR:-default} uses "default" when VAR is unset or empty.
func ExpandEnvVars(input string) string {
	return envVarPattern.ReplaceAllStringFunc(input, func(match string) string {
		groups := envVarPattern.FindStringSubmatch(match)
		if len(groups) < 2 {
			return match
		}
		varName := groups[1]
		defaultVal := ""
		hasDefault := len(groups) >= 3 && groups[2] != ""
		if hasDefault {
			defaultVal = groups[2]
		}

		val, exists := os.LookupEnv(varName)
		if !exists || val == "" {
			if hasDefault {
				return defaultVal
			}
			return match // Keep original if no env var and no default
		}
		return val
	})
}

func Save(path string, cfg *Config) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("cannot create config directory: %w", err)
	}

	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return fmt.Errorf("cannot marshal config: %w", err)
	}

	return os.WriteFile(path, data, 0o644)
}

// phoneNumberPattern validates E.164-style numbers: + followed by 1-15 digits.
var phoneNumberPattern = regexp.MustCompile(`^\+\d{1,15}$`)

// Validate checks that the config has valid values.
func Validate(cfg *Config) error {
	var errs []string

	switch cfg.General.LogLevel {
	case "", "debug", "info", "warn", "error":
		// valid
	default:
		errs = append(errs, "general.logLevel must be one of: debug, info, warn, error")
	}

	if !strings.HasPrefix(cfg.Gateway.APIURL, "http://") && !strings.HasPrefix(cfg.Gateway.APIURL, "https://") {
		errs = append(errs, "gateway.apiUrl must start with http:// or https://")
	}
	if cfg.Gateway.ReconnectIntervalSeconds < 1 {
		errs = append(errs, "gateway.reconnectIntervalSeconds must be >= 1")
	}
	if cfg.Gateway.MaxReconnectDelaySeconds < cfg.Gateway.ReconnectIntervalSeconds {
		errs = append(errs, "gateway.maxReconnectDelaySeconds must be >= reconnectIntervalSeconds")
	}
	if cfg.Gateway.RequestTimeoutSeconds < 1 {
		errs = append(errs, "gateway.requestTimeoutSeconds must be >= 1")
	}

	seen := make(map[string]bool)
	for i, acct := range cfg.Accounts {
		if acct.ID == "" {
			errs = append(errs, fmt.Sprintf("accounts[%d]: id is required", i))
		} else if seen[acct.ID] {
			errs = append(errs, fmt.Sprintf("accounts[%d]: duplicate id %q", i, acct.ID))
		}
		seen[acct.ID] = true
		if !phoneNumberPattern.MatchString(acct.PhoneNumber) {
			errs = append(errs, fmt.Sprintf("accounts[%d]: phoneNumber must be + followed by 1-15 digits", i))
		}
	}

	if cfg.History.MaxMessages < 1 {
		errs = append(errs, "history.maxMessages must be >= 1")
	}

	if cfg.Web.Port < 0 || cfg.Web.Port > 65535 {
		errs = append(errs, "web.port must be between 0 and 65535")
	}

	if cfg.Nats.Enabled {
		if cfg.Nats.URL == "" {
			errs = append(errs, "nats.url is required when nats is enabled")
		}
		if cfg.Nats.Subject == "" {
			errs = append(errs, "nats.subject is required when nats is enabled")
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation errors:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}

// ExpandPath resolves ~/ to the user's home directory.
func ExpandPath(path string) string {
	if strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return path
		}
		return filepath.Join(home, path[2:])
	}
	return path
}
