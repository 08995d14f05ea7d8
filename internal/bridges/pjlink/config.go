package pjlink

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the root configuration for the PJLink bridge.
// Loaded from YAML with environment variable overrides.
type Config struct {
	Bridge     BridgeConfig      `yaml:"bridge"`
	Defaults   ProjectorDefaults `yaml:"defaults"`
	Projectors []ProjectorConfig `yaml:"projectors"`
}

// BridgeConfig contains bridge identity and operational settings.
type BridgeConfig struct {
	// ID uniquely identifies this bridge instance in health reports.
	ID string `yaml:"id"`

	// HealthInterval is how often to publish health status (seconds).
	// Default: 30 seconds.
	HealthInterval int `yaml:"health_interval"`
}

// ProjectorDefaults apply to every projector that does not override them.
type ProjectorDefaults struct {
	// Port is the PJLink TCP port. Default: 4352.
	Port int `yaml:"port"`

	// Deadline bounds one command exchange (seconds). Default: 4.
	Deadline int `yaml:"deadline"`

	// PollInterval is the time between status cycles (seconds). Default: 5.
	PollInterval int `yaml:"poll_interval"`

	// DisablePolling turns off status polling for all projectors.
	DisablePolling bool `yaml:"disable_polling"`
}

// ProjectorConfig defines one projector.
type ProjectorConfig struct {
	// ID names the projector in MQTT topics, the API and history.
	// Must not contain MQTT wildcard or separator characters.
	ID string `yaml:"id"`

	// Name is a display name.
	Name string `yaml:"name"`

	// Address is the projector host name or IP. Empty leaves it idle.
	Address string `yaml:"address"`

	// Port overrides defaults.port.
	Port int `yaml:"port"`

	// Password answers authentication challenges.
	// WARNING: Never log this value. Use String() method for safe logging.
	Password string `yaml:"password"`

	// PollInterval overrides defaults.poll_interval (seconds).
	PollInterval int `yaml:"poll_interval"`

	// Deadline overrides defaults.deadline (seconds).
	Deadline int `yaml:"deadline"`

	// DisablePolling overrides defaults.disable_polling when set.
	DisablePolling *bool `yaml:"disable_polling"`

	// Debug enables wire tracing for this projector.
	Debug bool `yaml:"debug"`
}

// String returns a string representation with password masked.
func (p ProjectorConfig) String() string {
	password := ""
	if p.Password != "" {
		password = "[REDACTED]"
	}
	return fmt.Sprintf("ProjectorConfig{ID:%q, Name:%q, Address:%q, Port:%d, Password:%s}",
		p.ID, p.Name, p.Address, p.Port, password)
}

// MarshalJSON implements json.Marshaler to redact the password.
func (p ProjectorConfig) MarshalJSON() ([]byte, error) {
	type redacted ProjectorConfig
	safe := redacted(p)
	if safe.Password != "" {
		safe.Password = "[REDACTED]"
	}
	return json.Marshal(safe)
}

// LoadConfig reads configuration from a YAML file.
//
// The configuration loading order is:
//  1. Default values (hardcoded)
//  2. YAML file values (override defaults)
//  3. Environment variables (override file values)
//
// Environment variables follow the pattern PJLINK_BRIDGE_KEY, for example
// PJLINK_BRIDGE_ID or PJLINK_BRIDGE_POLL_INTERVAL.
//
// Parameters:
//   - path: Path to the YAML configuration file
//
// Returns:
//   - *Config: Loaded and validated configuration
//   - error: If file cannot be read, parsed, or validation fails
func LoadConfig(path string) (*Config, error) {
	cfg := defaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

func defaultConfig() *Config {
	return &Config{
		Bridge: BridgeConfig{
			ID:             "pjlink-bridge-01",
			HealthInterval: 30,
		},
		Defaults: ProjectorDefaults{
			Port:         DefaultPort,
			Deadline:     int(DefaultDeadline / time.Second),
			PollInterval: int(DefaultPollInterval / time.Second),
		},
		Projectors: []ProjectorConfig{},
	}
}

// applyEnvOverrides applies PJLINK_BRIDGE_* environment overrides.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("PJLINK_BRIDGE_ID"); v != "" {
		cfg.Bridge.ID = v
	}
	if v := os.Getenv("PJLINK_BRIDGE_HEALTH_INTERVAL"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Bridge.HealthInterval = n
		}
	}
	if v := os.Getenv("PJLINK_BRIDGE_POLL_INTERVAL"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Defaults.PollInterval = n
		}
	}
	if v := os.Getenv("PJLINK_BRIDGE_DEADLINE"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Defaults.Deadline = n
		}
	}
	if v := os.Getenv("PJLINK_BRIDGE_DISABLE_POLLING"); v != "" {
		cfg.Defaults.DisablePolling = v == "true" || v == "1"
	}
}

// Validate checks the configuration for errors.
//
// Returns:
//   - error: Description of validation failure, or nil if valid
func (c *Config) Validate() error {
	var errs []string

	errs = append(errs, c.validateBridge()...)
	errs = append(errs, c.validateDefaults()...)
	errs = append(errs, c.validateProjectors()...)

	if len(errs) > 0 {
		return fmt.Errorf("configuration errors: %s", strings.Join(errs, "; "))
	}

	return nil
}

func (c *Config) validateBridge() []string {
	var errs []string
	if c.Bridge.ID == "" {
		errs = append(errs, "bridge.id is required")
	}
	if c.Bridge.HealthInterval < 1 {
		errs = append(errs, "bridge.health_interval must be at least 1 second")
	}
	return errs
}

func (c *Config) validateDefaults() []string {
	var errs []string
	if !validPort(c.Defaults.Port) {
		errs = append(errs, fmt.Sprintf("defaults.port %d is out of range", c.Defaults.Port))
	}
	if c.Defaults.Deadline < 1 {
		errs = append(errs, "defaults.deadline must be at least 1 second")
	}
	if c.Defaults.PollInterval < 1 {
		errs = append(errs, "defaults.poll_interval must be at least 1 second")
	}
	return errs
}

func (c *Config) validateProjectors() []string {
	var errs []string
	seen := make(map[string]bool)

	for i, p := range c.Projectors {
		if p.ID == "" {
			errs = append(errs, fmt.Sprintf("projectors[%d].id is required", i))
			continue
		}
		if strings.ContainsAny(p.ID, "/+#") {
			errs = append(errs, fmt.Sprintf("projectors[%d].id %q must not contain '/', '+' or '#'", i, p.ID))
		}
		if seen[p.ID] {
			errs = append(errs, fmt.Sprintf("projectors[%d].id %q is duplicate", i, p.ID))
		}
		seen[p.ID] = true

		if p.Port != 0 && !validPort(p.Port) {
			errs = append(errs, fmt.Sprintf("projectors[%d].port %d is out of range", i, p.Port))
		}
		if p.Deadline < 0 {
			errs = append(errs, fmt.Sprintf("projectors[%d].deadline must not be negative", i))
		}
		if p.PollInterval < 0 {
			errs = append(errs, fmt.Sprintf("projectors[%d].poll_interval must not be negative", i))
		}
	}

	return errs
}

func validPort(port int) bool {
	return port >= 1 && port <= 65535
}

// GetHealthInterval returns the health reporting interval as a Duration.
func (c *Config) GetHealthInterval() time.Duration {
	return time.Duration(c.Bridge.HealthInterval) * time.Second
}

// ProjectorOptions merges a projector entry with the defaults.
func (c *Config) ProjectorOptions(p ProjectorConfig) Options {
	opts := Options{
		ID:             p.ID,
		Address:        p.Address,
		Port:           c.Defaults.Port,
		Password:       p.Password,
		Deadline:       time.Duration(c.Defaults.Deadline) * time.Second,
		PollInterval:   time.Duration(c.Defaults.PollInterval) * time.Second,
		DisablePolling: c.Defaults.DisablePolling,
		Debug:          p.Debug,
	}
	if p.Port != 0 {
		opts.Port = p.Port
	}
	if p.Deadline > 0 {
		opts.Deadline = time.Duration(p.Deadline) * time.Second
	}
	if p.PollInterval > 0 {
		opts.PollInterval = time.Duration(p.PollInterval) * time.Second
	}
	if p.DisablePolling != nil {
		opts.DisablePolling = *p.DisablePolling
	}
	return opts
}
