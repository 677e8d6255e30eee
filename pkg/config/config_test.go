package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeConfig(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoadConfigJSON(t *testing.T) {
	path := writeConfig(t, "config.json", `{
		"app": {"name": "pilot", "workspace": "/tmp/ws"},
		"gateways": {"telegram": {"token": "tg-token", "enabled": true}},
		"providers": {"openai": {"api_key": "sk-test", "model": "gpt-4o", "enabled": true}},
		"orchestrator": {"run_timeout_seconds": 120, "completeness_threshold": 0.8}
	}`)

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}

	if cfg.App.Name != "pilot" {
		t.Errorf("App.Name = %q, want pilot", cfg.App.Name)
	}
	tg, ok := cfg.GetTelegramConfig()
	if !ok || tg.Token != "tg-token" {
		t.Errorf("GetTelegramConfig = %+v, %v", tg, ok)
	}
	if _, ok := cfg.GetDiscordConfig(); ok {
		t.Error("GetDiscordConfig reported an unconfigured gateway as enabled")
	}
	name, p := cfg.GetDefaultProvider()
	if name != "openai" || p.Model != "gpt-4o" {
		t.Errorf("GetDefaultProvider = %q, %+v", name, p)
	}
	if got := cfg.Orchestrator.RunTimeout(); got != 2*time.Minute {
		t.Errorf("RunTimeout = %v, want 2m", got)
	}
	if cfg.Orchestrator.CompletenessThreshold != 0.8 {
		t.Errorf("CompletenessThreshold = %v, want 0.8", cfg.Orchestrator.CompletenessThreshold)
	}
}

func TestLoadConfigYAML(t *testing.T) {
	path := writeConfig(t, "config.yaml", `
app:
  name: pilot
gateways:
  discord:
    token: dc-token
    enabled: true
orchestrator:
  step_timeout_seconds: 30
  critical_actions: [navigate, click]
`)

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}

	dc, ok := cfg.GetDiscordConfig()
	if !ok || dc.Token != "dc-token" {
		t.Errorf("GetDiscordConfig = %+v, %v", dc, ok)
	}
	if got := cfg.Orchestrator.StepTimeout(); got != 30*time.Second {
		t.Errorf("StepTimeout = %v, want 30s", got)
	}
	if len(cfg.Orchestrator.CriticalActions) != 2 {
		t.Errorf("CriticalActions = %v", cfg.Orchestrator.CriticalActions)
	}
}

func TestLoadConfigDefaults(t *testing.T) {
	path := writeConfig(t, "config.json", `{}`)

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}

	o := cfg.Orchestrator
	if o.RunTimeout() != 5*time.Minute {
		t.Errorf("RunTimeout = %v, want 5m", o.RunTimeout())
	}
	if o.StepTimeout() != time.Minute {
		t.Errorf("StepTimeout = %v, want 1m", o.StepTimeout())
	}
	if *o.PlanningRetries != 2 || *o.StepRetries != 1 || *o.MaxReplanCycles != 2 {
		t.Errorf("retry defaults = %d/%d/%d", *o.PlanningRetries, *o.StepRetries, *o.MaxReplanCycles)
	}
	if o.CompletenessThreshold != 0.7 {
		t.Errorf("CompletenessThreshold = %v, want 0.7", o.CompletenessThreshold)
	}
	if len(o.CriticalActions) != 1 || o.CriticalActions[0] != "navigate" {
		t.Errorf("CriticalActions = %v", o.CriticalActions)
	}
	if o.TimeoutFailsRun {
		t.Error("TimeoutFailsRun should default to false")
	}
	if !*o.FallbackDirectAnswer {
		t.Error("FallbackDirectAnswer should default to true")
	}
}

func TestLoadConfigMissingFile(t *testing.T) {
	if _, err := LoadConfig("/nonexistent/config.json"); err == nil {
		t.Fatal("expected error for missing file")
	}
}
