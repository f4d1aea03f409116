// Package config describes flowctld's process configuration.
package config

import (
	"os"
	"strconv"
	"time"
)

// Version is the service's release identifier, surfaced in telemetry
// resource attributes.
const Version = "0.1.0"

// AppType selects which QoE preference model a flow is scored against.
type AppType string

const (
	// AppFile scores flows against the bulk-transfer, response-size-aware
	// QoE model.
	AppFile AppType = "FILE"
	// AppStreaming scores flows against the chunk-rate QoE model.
	AppStreaming AppType = "STREAMING"
)

// Config is the flat set of knobs the service reads at startup. Socket
// paths and the app type were build-time constants upstream; here they are
// plain fields with fixed defaults (see Default), and overriding them never
// changes the frame formats on either socket.
type Config struct {
	// ReportSocketPath is the local stream socket the agent connects to
	// and sends Connect/Disconnect/report frames on.
	ReportSocketPath string
	// AgentSocketPath is the local stream socket each flow worker dials
	// to deliver SkStgMapUpdate commands back to the agent.
	AgentSocketPath string
	// AppType is the QoE model applied to every flow.
	AppType AppType
	// LogLevel is a zap level name (debug, info, warn, error).
	LogLevel string

	// MetricsAddr is the listen address for the Prometheus /metrics
	// endpoint. Empty disables it.
	MetricsAddr string
	// PprofAddr is the listen address for the debug pprof endpoint.
	// Empty disables it.
	PprofAddr string
	// OTLPEndpoint is the OTLP/HTTP collector endpoint for trace export.
	// Empty disables export: spans are still created but not exported.
	OTLPEndpoint string
	// TraceSampleRatio is the fraction of decision spans sampled, [0,1].
	TraceSampleRatio float64
	// DashboardInterval is how often the textual flow table is logged.
	// Zero disables the dashboard.
	DashboardInterval time.Duration
}

// Default returns the baseline configuration when no environment
// overrides are present.
func Default() Config {
	return Config{
		ReportSocketPath:  "/tmp/flowctld-report.sock",
		AgentSocketPath:   "/tmp/flowctld-agent.sock",
		AppType:           AppFile,
		LogLevel:          "INFO",
		MetricsAddr:       ":9464",
		PprofAddr:         "",
		OTLPEndpoint:      "",
		TraceSampleRatio:  1.0,
		DashboardInterval: 10 * time.Second,
	}
}

// FromEnv overlays FLOWCTLD_* environment variables (falling back to the
// spec's bare LOG_LEVEL for the log level) onto Default().
func FromEnv() Config {
	cfg := Default()

	if v, ok := lookupEnv("FLOWCTLD_REPORT_SOCKET"); ok {
		cfg.ReportSocketPath = v
	}
	if v, ok := lookupEnv("FLOWCTLD_AGENT_SOCKET"); ok {
		cfg.AgentSocketPath = v
	}
	if v, ok := lookupEnv("FLOWCTLD_APP_TYPE"); ok {
		cfg.AppType = AppType(v)
	}
	if v, ok := lookupEnv("FLOWCTLD_LOG_LEVEL"); ok {
		cfg.LogLevel = v
	} else if v, ok := lookupEnv("LOG_LEVEL"); ok {
		cfg.LogLevel = v
	}
	if v, ok := lookupEnv("FLOWCTLD_METRICS_ADDR"); ok {
		cfg.MetricsAddr = v
	}
	if v, ok := lookupEnv("FLOWCTLD_PPROF_ADDR"); ok {
		cfg.PprofAddr = v
	}
	if v, ok := lookupEnv("FLOWCTLD_OTLP_ENDPOINT"); ok {
		cfg.OTLPEndpoint = v
	}
	if v, ok := lookupEnv("FLOWCTLD_TRACE_SAMPLE_RATIO"); ok {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			cfg.TraceSampleRatio = f
		}
	}
	if v, ok := lookupEnv("FLOWCTLD_DASHBOARD_INTERVAL"); ok {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.DashboardInterval = d
		}
	}

	return cfg
}

func lookupEnv(key string) (string, bool) {
	v := os.Getenv(key)
	if v == "" {
		return "", false
	}
	return v, true
}
