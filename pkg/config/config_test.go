package config

import (
	"path/filepath"
	"testing"
	"time"
)

func TestDefaults(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.Agent.SampleRateHz != 20 {
		t.Errorf("agent sample rate = %v, want 20", cfg.Agent.SampleRateHz)
	}
	if cfg.Rack.AnalysisInterval != 5*time.Second {
		t.Errorf("analysis interval = %v, want 5s", cfg.Rack.AnalysisInterval)
	}
	if cfg.DC.SummaryInterval != 10*time.Second {
		t.Errorf("summary interval = %v, want 10s", cfg.DC.SummaryInterval)
	}
	if cfg.DC.StalenessWindow != 30*time.Second {
		t.Errorf("staleness window = %v, want 30s", cfg.DC.StalenessWindow)
	}
	if cfg.Agent.RackID != -1 || cfg.Agent.ServerID != -1 {
		t.Error("required identifiers must default to unset")
	}
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("RACK_ID", "2")
	t.Setenv("SERVER_ID", "5")
	t.Setenv("RACK_CONTROLLER_PORT", "10001")
	t.Setenv("SAMPLE_RATE_HZ", "40")
	t.Setenv("ANALYSIS_INTERVAL_SEC", "2.5")
	t.Setenv("DC_HOST", "dc.internal")
	t.Setenv("LOG_LEVEL", "debug")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Agent.RackID != 2 || cfg.Rack.RackID != 2 {
		t.Errorf("RACK_ID not applied: agent=%d rack=%d", cfg.Agent.RackID, cfg.Rack.RackID)
	}
	if cfg.Agent.ServerID != 5 {
		t.Errorf("SERVER_ID not applied: %d", cfg.Agent.ServerID)
	}
	if cfg.Agent.ControllerPort != 10001 {
		t.Errorf("RACK_CONTROLLER_PORT not applied: %d", cfg.Agent.ControllerPort)
	}
	if cfg.Agent.SampleRateHz != 40 || cfg.Rack.SampleRateHz != 40 {
		t.Error("SAMPLE_RATE_HZ not applied to both scopes")
	}
	if cfg.Rack.AnalysisInterval != 2500*time.Millisecond {
		t.Errorf("ANALYSIS_INTERVAL_SEC not applied: %v", cfg.Rack.AnalysisInterval)
	}
	if cfg.Rack.DCHost != "dc.internal" {
		t.Errorf("DC_HOST not applied: %q", cfg.Rack.DCHost)
	}
	if cfg.Logging.Level != "debug" {
		t.Errorf("LOG_LEVEL not applied: %q", cfg.Logging.Level)
	}
}

func TestEnvRejectsGarbage(t *testing.T) {
	t.Setenv("RACK_ID", "not-a-number")

	if _, err := Load(""); err == nil {
		t.Fatal("Load() accepted a non-numeric RACK_ID")
	}
}

func TestDerivedPorts(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Rack.RackID = 3

	if got := cfg.Rack.ListenPort(); got != 10002 {
		t.Errorf("ListenPort() = %d, want 9999+3", got)
	}
	if got := cfg.Rack.ScrapePort(); got != 8003 {
		t.Errorf("ScrapePort() = %d, want 8000+3", got)
	}

	cfg.Rack.UDPListenPort = 12000
	cfg.Rack.MetricsPort = 12001
	if got := cfg.Rack.ListenPort(); got != 12000 {
		t.Errorf("explicit ListenPort() = %d, want 12000", got)
	}
	if got := cfg.Rack.ScrapePort(); got != 12001 {
		t.Errorf("explicit ScrapePort() = %d, want 12001", got)
	}
}

func TestAgentValidation(t *testing.T) {
	valid := AgentConfig{
		RackID:         0,
		ServerID:       0,
		ControllerHost: "localhost",
		ControllerPort: 10000,
		SampleRateHz:   20,
		Amplitude:      1.0,
	}
	if err := valid.Validate(); err != nil {
		t.Fatalf("valid config rejected: %v", err)
	}

	tests := []struct {
		name   string
		mutate func(*AgentConfig)
	}{
		{"missing rack id", func(c *AgentConfig) { c.RackID = -1 }},
		{"missing server id", func(c *AgentConfig) { c.ServerID = -1 }},
		{"missing port", func(c *AgentConfig) { c.ControllerPort = 0 }},
		{"port out of range", func(c *AgentConfig) { c.ControllerPort = 70000 }},
		{"zero sample rate", func(c *AgentConfig) { c.SampleRateHz = 0 }},
		{"amplitude above one", func(c *AgentConfig) { c.Amplitude = 1.5 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid
			tt.mutate(&cfg)
			if err := cfg.Validate(); err == nil {
				t.Error("Validate() accepted an invalid config")
			}
		})
	}
}

func TestRackValidation(t *testing.T) {
	cfg := DefaultConfig().Rack
	if err := cfg.Validate(); err == nil {
		t.Error("Validate() accepted a rack config without RACK_ID")
	}

	cfg.RackID = 0
	if err := cfg.Validate(); err != nil {
		t.Errorf("Validate() rejected a complete rack config: %v", err)
	}

	cfg.MinSamples = 256
	if err := cfg.Validate(); err == nil {
		t.Error("Validate() accepted min_samples above window_size")
	}
}

func TestDCValidation(t *testing.T) {
	cfg := DefaultConfig().DC
	if err := cfg.Validate(); err != nil {
		t.Errorf("Validate() rejected the default dc config: %v", err)
	}

	cfg.ListenPort = 0
	if err := cfg.Validate(); err == nil {
		t.Error("Validate() accepted a zero listen port")
	}
}

func TestSaveLoadRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")

	cfg := DefaultConfig()
	cfg.Rack.RackID = 7
	cfg.Rack.DCHost = "dc0.example.com"
	if err := cfg.Save(path); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	loaded, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if loaded.Rack.RackID != 7 {
		t.Errorf("loaded rack id = %d, want 7", loaded.Rack.RackID)
	}
	if loaded.Rack.DCHost != "dc0.example.com" {
		t.Errorf("loaded dc host = %q", loaded.Rack.DCHost)
	}
}
