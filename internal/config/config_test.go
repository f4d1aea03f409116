package config

import (
	"os"
	"testing"
	"time"
)

func TestDefaultSocketPathsAndAppType(t *testing.T) {
	cfg := Default()
	if cfg.ReportSocketPath != "/tmp/flowctld-report.sock" {
		t.Errorf("ReportSocketPath = %q", cfg.ReportSocketPath)
	}
	if cfg.AgentSocketPath != "/tmp/flowctld-agent.sock" {
		t.Errorf("AgentSocketPath = %q", cfg.AgentSocketPath)
	}
	if cfg.AppType != AppFile {
		t.Errorf("AppType = %q, want FILE", cfg.AppType)
	}
	if cfg.LogLevel != "INFO" {
		t.Errorf("LogLevel = %q, want INFO", cfg.LogLevel)
	}
}

func TestFromEnvOverrides(t *testing.T) {
	t.Setenv("FLOWCTLD_REPORT_SOCKET", "/tmp/custom-report.sock")
	t.Setenv("FLOWCTLD_APP_TYPE", "STREAMING")
	t.Setenv("FLOWCTLD_DASHBOARD_INTERVAL", "5s")

	cfg := FromEnv()
	if cfg.ReportSocketPath != "/tmp/custom-report.sock" {
		t.Errorf("ReportSocketPath = %q", cfg.ReportSocketPath)
	}
	if cfg.AppType != AppStreaming {
		t.Errorf("AppType = %q, want STREAMING", cfg.AppType)
	}
	if cfg.DashboardInterval != 5*time.Second {
		t.Errorf("DashboardInterval = %v", cfg.DashboardInterval)
	}
}

func TestFromEnvFallsBackToBareLogLevel(t *testing.T) {
	os.Unsetenv("FLOWCTLD_LOG_LEVEL")
	t.Setenv("LOG_LEVEL", "DEBUG")

	cfg := FromEnv()
	if cfg.LogLevel != "DEBUG" {
		t.Errorf("LogLevel = %q, want DEBUG", cfg.LogLevel)
	}
}
