package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	App          AppConfig                 `json:"app" yaml:"app"`
	Gateways     map[string]GatewayConfig  `json:"gateways" yaml:"gateways"`
	Providers    map[string]ProviderConfig `json:"providers" yaml:"providers"`
	Browser      BrowserConfig             `json:"browser" yaml:"browser"`
	Orchestrator OrchestratorConfig        `json:"orchestrator" yaml:"orchestrator"`
	Journal      JournalConfig             `json:"journal" yaml:"journal"`
	Governance   GovernanceConfig          `json:"governance" yaml:"governance"`
}

type AppConfig struct {
	Name      string `json:"name" yaml:"name"`
	Workspace string `json:"workspace" yaml:"workspace"`
}

type GatewayConfig struct {
	Token   string `json:"token" yaml:"token"`
	Enabled bool   `json:"enabled" yaml:"enabled"`
}

type ProviderConfig struct {
	APIKey  string `json:"api_key" yaml:"api_key"`
	Model   string `json:"model" yaml:"model"`
	BaseURL string `json:"base_url,omitempty" yaml:"base_url,omitempty"`
	Enabled bool   `json:"enabled" yaml:"enabled"`
}

type BrowserConfig struct {
	Headless bool `json:"headless" yaml:"headless"`
}

// OrchestratorConfig holds the run policy knobs. Durations are seconds.
type OrchestratorConfig struct {
	RunTimeoutSeconds     int      `json:"run_timeout_seconds" yaml:"run_timeout_seconds"`
	StepTimeoutSeconds    int      `json:"step_timeout_seconds" yaml:"step_timeout_seconds"`
	PlanningRetries       *int     `json:"planning_retries,omitempty" yaml:"planning_retries,omitempty"`
	StepRetries           *int     `json:"step_retries,omitempty" yaml:"step_retries,omitempty"`
	MaxReplanCycles       *int     `json:"max_replan_cycles,omitempty" yaml:"max_replan_cycles,omitempty"`
	CompletenessThreshold float64  `json:"completeness_threshold" yaml:"completeness_threshold"`
	CriticalActions       []string `json:"critical_actions" yaml:"critical_actions"`
	TimeoutFailsRun       bool     `json:"timeout_fails_run" yaml:"timeout_fails_run"`
	FallbackDirectAnswer  *bool    `json:"fallback_direct_answer,omitempty" yaml:"fallback_direct_answer,omitempty"`
}

type JournalConfig struct {
	Path string `json:"path" yaml:"path"`
}

type GovernanceConfig struct {
	DenyActions []string `json:"deny_actions" yaml:"deny_actions"`
	DenyTargets []string `json:"deny_targets" yaml:"deny_targets"`
}

// LoadConfig reads a JSON or YAML config file, picked by extension.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var cfg Config
	switch filepath.Ext(path) {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, &cfg)
	default:
		err = json.Unmarshal(data, &cfg)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to decode config file: %w", err)
	}

	cfg.applyDefaults()
	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.App.Name == "" {
		c.App.Name = "webpilot"
	}
	if c.App.Workspace == "" {
		c.App.Workspace = "."
	}
	if c.Journal.Path == "" {
		c.Journal.Path = filepath.Join(c.App.Workspace, "webpilot.db")
	}

	o := &c.Orchestrator
	if o.RunTimeoutSeconds <= 0 {
		o.RunTimeoutSeconds = 300
	}
	if o.StepTimeoutSeconds <= 0 {
		o.StepTimeoutSeconds = 60
	}
	if o.PlanningRetries == nil {
		o.PlanningRetries = intPtr(2)
	}
	if o.StepRetries == nil {
		o.StepRetries = intPtr(1)
	}
	if o.MaxReplanCycles == nil {
		o.MaxReplanCycles = intPtr(2)
	}
	if o.CompletenessThreshold <= 0 {
		o.CompletenessThreshold = 0.7
	}
	if o.CriticalActions == nil {
		o.CriticalActions = []string{"navigate"}
	}
	if o.FallbackDirectAnswer == nil {
		o.FallbackDirectAnswer = boolPtr(true)
	}
}

func intPtr(n int) *int    { return &n }
func boolPtr(b bool) *bool { return &b }

// RunTimeout and friends convert the wire representation to durations.
func (o OrchestratorConfig) RunTimeout() time.Duration {
	return time.Duration(o.RunTimeoutSeconds) * time.Second
}

func (o OrchestratorConfig) StepTimeout() time.Duration {
	return time.Duration(o.StepTimeoutSeconds) * time.Second
}

// GetDefaultProvider returns the first enabled provider
func (c *Config) GetDefaultProvider() (string, ProviderConfig) {
	for name, p := range c.Providers {
		if p.Enabled {
			return name, p
		}
	}
	return "", ProviderConfig{}
}

// GetTelegramConfig returns telegram config if enabled
func (c *Config) GetTelegramConfig() (GatewayConfig, bool) {
	return c.gateway("telegram")
}

// GetDiscordConfig returns discord config if enabled
func (c *Config) GetDiscordConfig() (GatewayConfig, bool) {
	return c.gateway("discord")
}

func (c *Config) gateway(name string) (GatewayConfig, bool) {
	g, ok := c.Gateways[name]
	if ok && g.Enabled {
		return g, true
	}
	return GatewayConfig{}, false
}
