package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Config represents the netwatch configuration shared by all components.
// Values are resolved in order: built-in defaults, then an optional YAML
// file, then environment variables (highest precedence).
type Config struct {
	Logging    LoggingConfig    `yaml:"logging"`
	Agent      AgentConfig      `yaml:"agent"`
	Rack       RackConfig       `yaml:"rack"`
	DC         DCConfig         `yaml:"dc"`
	Prometheus PrometheusConfig `yaml:"prometheus"`
}

// LoggingConfig contains logger settings
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// AgentConfig contains server-agent settings
type AgentConfig struct {
	RackID         int     `yaml:"rack_id"`
	ServerID       int     `yaml:"server_id"`
	ControllerHost string  `yaml:"controller_host"`
	ControllerPort int     `yaml:"controller_port"`
	SampleRateHz   float64 `yaml:"sample_rate_hz"`
	Amplitude      float64 `yaml:"amplitude"`
}

// RackConfig contains rack-controller settings
type RackConfig struct {
	RackID           int           `yaml:"rack_id"`
	UDPListenPort    int           `yaml:"udp_listen_port"` // 0 means 9999 + rack_id
	MetricsPort      int           `yaml:"metrics_port"`    // 0 means 8000 + rack_id
	DCHost           string        `yaml:"dc_host"`
	DCPort           int           `yaml:"dc_port"`
	SampleRateHz     float64       `yaml:"sample_rate_hz"`
	AnalysisInterval time.Duration `yaml:"analysis_interval"`
	WindowSize       int           `yaml:"window_size"`
	MinSamples       int           `yaml:"min_samples"`
}

// DCConfig contains dc-controller settings
type DCConfig struct {
	DCID            int           `yaml:"dc_id"`
	ListenPort      int           `yaml:"listen_port"`
	MetricsPort     int           `yaml:"metrics_port"`
	SummaryInterval time.Duration `yaml:"summary_interval"`
	StalenessWindow time.Duration `yaml:"staleness_window"`
}

// PrometheusConfig contains Prometheus connection settings for the check command
type PrometheusConfig struct {
	URL     string        `yaml:"url"`
	Timeout time.Duration `yaml:"timeout"`
}

// DefaultConfig returns a default configuration. Required identifiers
// default to -1 so Validate can tell "unset" from a legitimate zero.
func DefaultConfig() *Config {
	return &Config{
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
		Agent: AgentConfig{
			RackID:         -1,
			ServerID:       -1,
			ControllerHost: "localhost",
			ControllerPort: 0,
			SampleRateHz:   20,
			Amplitude:      1.0,
		},
		Rack: RackConfig{
			RackID:           -1,
			UDPListenPort:    0,
			MetricsPort:      0,
			DCHost:           "localhost",
			DCPort:           9990,
			SampleRateHz:     20,
			AnalysisInterval: 5 * time.Second,
			WindowSize:       128,
			MinSamples:       32,
		},
		DC: DCConfig{
			DCID:            0,
			ListenPort:      9990,
			MetricsPort:     8100,
			SummaryInterval: 10 * time.Second,
			StalenessWindow: 30 * time.Second,
		},
		Prometheus: PrometheusConfig{
			URL:     "http://localhost:9090",
			Timeout: 30 * time.Second,
		},
	}
}

// Load loads configuration from an optional YAML file and the environment.
// Environment variables take priority over file values.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// applyEnv overlays the documented environment variables onto the config.
func (c *Config) applyEnv() error {
	var err error

	if err = envInt("RACK_ID", &c.Agent.RackID); err != nil {
		return err
	}
	if err = envInt("RACK_ID", &c.Rack.RackID); err != nil {
		return err
	}
	if err = envInt("SERVER_ID", &c.Agent.ServerID); err != nil {
		return err
	}
	if v := os.Getenv("RACK_CONTROLLER_HOST"); v != "" {
		c.Agent.ControllerHost = v
	}
	if err = envInt("RACK_CONTROLLER_PORT", &c.Agent.ControllerPort); err != nil {
		return err
	}
	if err = envInt("UDP_LISTEN_PORT", &c.Rack.UDPListenPort); err != nil {
		return err
	}
	if err = envInt("METRICS_PORT", &c.Rack.MetricsPort); err != nil {
		return err
	}
	if err = envInt("METRICS_PORT", &c.DC.MetricsPort); err != nil {
		return err
	}
	if v := os.Getenv("DC_HOST"); v != "" {
		c.Rack.DCHost = v
	}
	if err = envInt("DC_PORT", &c.Rack.DCPort); err != nil {
		return err
	}
	if err = envInt("DC_PORT", &c.DC.ListenPort); err != nil {
		return err
	}
	if err = envInt("DC_ID", &c.DC.DCID); err != nil {
		return err
	}
	if err = envFloat("SAMPLE_RATE_HZ", &c.Agent.SampleRateHz); err != nil {
		return err
	}
	if err = envFloat("SAMPLE_RATE_HZ", &c.Rack.SampleRateHz); err != nil {
		return err
	}
	if err = envSeconds("ANALYSIS_INTERVAL_SEC", &c.Rack.AnalysisInterval); err != nil {
		return err
	}
	if err = envSeconds("DC_SUMMARY_INTERVAL_SEC", &c.DC.SummaryInterval); err != nil {
		return err
	}
	if v := os.Getenv("PROMETHEUS_URL"); v != "" {
		c.Prometheus.URL = v
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		c.Logging.Level = v
	}
	if v := os.Getenv("LOG_FORMAT"); v != "" {
		c.Logging.Format = v
	}

	return nil
}

func envInt(name string, dst *int) error {
	v := os.Getenv(name)
	if v == "" {
		return nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fmt.Errorf("invalid %s %q: %w", name, v, err)
	}
	*dst = n
	return nil
}

func envFloat(name string, dst *float64) error {
	v := os.Getenv(name)
	if v == "" {
		return nil
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return fmt.Errorf("invalid %s %q: %w", name, v, err)
	}
	*dst = f
	return nil
}

func envSeconds(name string, dst *time.Duration) error {
	v := os.Getenv(name)
	if v == "" {
		return nil
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return fmt.Errorf("invalid %s %q: %w", name, v, err)
	}
	*dst = time.Duration(f * float64(time.Second))
	return nil
}

// Save writes the resolved configuration to a YAML file
func (c *Config) Save(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// Validate validates the agent configuration
func (a AgentConfig) Validate() error {
	if a.RackID < 0 {
		return fmt.Errorf("RACK_ID is required and must be non-negative")
	}
	if a.ServerID < 0 {
		return fmt.Errorf("SERVER_ID is required and must be non-negative")
	}
	if a.ControllerHost == "" {
		return fmt.Errorf("RACK_CONTROLLER_HOST must not be empty")
	}
	if a.ControllerPort < 1 || a.ControllerPort > 65535 {
		return fmt.Errorf("RACK_CONTROLLER_PORT is required and must be in 1..65535")
	}
	if a.SampleRateHz <= 0 {
		return fmt.Errorf("SAMPLE_RATE_HZ must be positive")
	}
	if a.Amplitude <= 0 || a.Amplitude > 1 {
		return fmt.Errorf("amplitude must be in (0, 1]")
	}
	return nil
}

// Validate validates the rack-controller configuration
func (r RackConfig) Validate() error {
	if r.RackID < 0 {
		return fmt.Errorf("RACK_ID is required and must be non-negative")
	}
	if p := r.ListenPort(); p < 1 || p > 65535 {
		return fmt.Errorf("UDP_LISTEN_PORT %d out of range", p)
	}
	if p := r.ScrapePort(); p < 1 || p > 65535 {
		return fmt.Errorf("METRICS_PORT %d out of range", p)
	}
	if r.DCHost == "" {
		return fmt.Errorf("DC_HOST must not be empty")
	}
	if r.DCPort < 1 || r.DCPort > 65535 {
		return fmt.Errorf("DC_PORT %d out of range", r.DCPort)
	}
	if r.SampleRateHz <= 0 {
		return fmt.Errorf("SAMPLE_RATE_HZ must be positive")
	}
	if r.AnalysisInterval <= 0 {
		return fmt.Errorf("ANALYSIS_INTERVAL_SEC must be positive")
	}
	if r.MinSamples < 2 {
		return fmt.Errorf("min_samples must be at least 2")
	}
	if r.WindowSize < r.MinSamples {
		return fmt.Errorf("window_size %d smaller than min_samples %d", r.WindowSize, r.MinSamples)
	}
	return nil
}

// ListenPort returns the effective UDP port (9999 + rack_id when unset)
func (r RackConfig) ListenPort() int {
	if r.UDPListenPort != 0 {
		return r.UDPListenPort
	}
	return 9999 + r.RackID
}

// ScrapePort returns the effective metrics port (8000 + rack_id when unset)
func (r RackConfig) ScrapePort() int {
	if r.MetricsPort != 0 {
		return r.MetricsPort
	}
	return 8000 + r.RackID
}

// Validate validates the dc-controller configuration
func (d DCConfig) Validate() error {
	if d.DCID < 0 {
		return fmt.Errorf("DC_ID must be non-negative")
	}
	if d.ListenPort < 1 || d.ListenPort > 65535 {
		return fmt.Errorf("DC_PORT %d out of range", d.ListenPort)
	}
	if d.MetricsPort < 1 || d.MetricsPort > 65535 {
		return fmt.Errorf("METRICS_PORT %d out of range", d.MetricsPort)
	}
	if d.SummaryInterval <= 0 {
		return fmt.Errorf("DC_SUMMARY_INTERVAL_SEC must be positive")
	}
	if d.StalenessWindow <= 0 {
		return fmt.Errorf("staleness_window must be positive")
	}
	return nil
}
