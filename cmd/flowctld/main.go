package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/fatih/color"
	"go.uber.org/zap"

	"flowctld/internal/config"
	"flowctld/internal/dashboard"
	"flowctld/internal/demux"
	"flowctld/internal/logging"
	"flowctld/internal/metrics"
	"flowctld/internal/profiling"
	"flowctld/internal/telemetry"
)

func main() {
	color.Cyan("==============================")
	color.Cyan("  flowctld - Copa delta co-tuner")
	color.Cyan("==============================")

	cfg := config.FromEnv()

	reportSocket := flag.String("report-socket", cfg.ReportSocketPath, "Unix socket the agent reports on")
	agentSocket := flag.String("agent-socket", cfg.AgentSocketPath, "Unix socket flow workers dial to deliver commands")
	appType := flag.String("app-type", string(cfg.AppType), "QoE model: FILE or STREAMING")
	logLevel := flag.String("log-level", cfg.LogLevel, "zap log level")
	metricsAddr := flag.String("metrics-addr", cfg.MetricsAddr, "Prometheus /metrics listen address (empty disables)")
	pprofAddr := flag.String("pprof-addr", cfg.PprofAddr, "debug pprof listen address (empty disables)")
	otlpEndpoint := flag.String("otlp-endpoint", cfg.OTLPEndpoint, "OTLP/HTTP trace collector endpoint (empty disables export)")
	traceSampleRatio := flag.Float64("trace-sample-ratio", cfg.TraceSampleRatio, "fraction of spans sampled, [0,1]")
	dashboardInterval := flag.Duration("dashboard-interval", cfg.DashboardInterval, "textual flow table render interval (0 disables)")
	flag.Parse()

	cfg.ReportSocketPath = *reportSocket
	cfg.AgentSocketPath = *agentSocket
	cfg.AppType = config.AppType(*appType)
	cfg.LogLevel = *logLevel
	cfg.MetricsAddr = *metricsAddr
	cfg.PprofAddr = *pprofAddr
	cfg.OTLPEndpoint = *otlpEndpoint
	cfg.TraceSampleRatio = *traceSampleRatio
	cfg.DashboardInterval = *dashboardInterval

	log := logging.New(cfg.LogLevel)
	defer log.Sync()

	metricsReg := metrics.New()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	tel, err := telemetry.New(ctx, cfg, metricsReg.Registerer())
	if err != nil {
		log.Fatal("failed to build telemetry manager", zap.Error(err))
	}
	defer func() {
		if err := tel.Shutdown(context.Background()); err != nil {
			log.Warn("telemetry shutdown error", zap.Error(err))
		}
	}()

	pprofSrv := profiling.New(cfg.PprofAddr)
	pprofSrv.Start()
	defer pprofSrv.Stop(context.Background())

	var metricsSrv *http.Server
	if cfg.MetricsAddr != "" {
		metricsSrv = &http.Server{Addr: cfg.MetricsAddr, Handler: metricsReg.Handler()}
		go func() {
			log.Info("serving metrics", zap.String("addr", cfg.MetricsAddr))
			if err := metricsSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				log.Error("metrics server error", zap.Error(err))
			}
		}()
	}

	server := demux.New(cfg, log, metricsReg, tel)

	dash := dashboard.New(server, log, cfg.DashboardInterval)
	go dash.Run(ctx)

	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigs
		fmt.Println()
		log.Info("received shutdown signal")
		cancel()
	}()

	log.Info("starting flowctld",
		zap.String("report_socket", cfg.ReportSocketPath),
		zap.String("agent_socket", cfg.AgentSocketPath),
		zap.String("app_type", string(cfg.AppType)),
	)

	if err := server.Run(ctx); err != nil {
		log.Fatal("demultiplexer exited with error", zap.Error(err))
	}

	if metricsSrv != nil {
		_ = metricsSrv.Shutdown(context.Background())
	}
	log.Info("flowctld stopped")
}
