package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/coreos/go-systemd/v22/daemon"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"benchd.sh/internal/config"
	"benchd.sh/internal/discovery"
	"benchd.sh/internal/observability"
	"benchd.sh/internal/server"
	"benchd.sh/internal/stream"
	"benchd.sh/internal/tracing"
	"benchd.sh/internal/version"
)

func newServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the health API and snapshot stream",
		Long: `Start the HTTP server exposing the health snapshot API, the WebSocket
snapshot stream and Prometheus metrics.

Under systemd the service reports readiness and answers the watchdog.
With --mdns the bench is advertised on the local network. With
--tls-self-signed or a --tls-cert/--tls-key pair it serves HTTPS and WSS.`,
		RunE: runServe,
	}

	cmd.Flags().String("host", "", "listen host (default 0.0.0.0)")
	cmd.Flags().Int("port", 0, "listen port (default 8000)")
	cmd.Flags().Duration("interval", 0, "stream interval (default 2s)")
	cmd.Flags().Bool("mdns", false, "advertise the bench over mDNS")
	cmd.Flags().String("tls-cert", "", "TLS certificate file")
	cmd.Flags().String("tls-key", "", "TLS private key file")
	cmd.Flags().Bool("tls-self-signed", false, "serve TLS with a generated self-signed certificate")

	_ = v.BindPFlag("server.host", cmd.Flags().Lookup("host"))
	_ = v.BindPFlag("server.port", cmd.Flags().Lookup("port"))
	_ = v.BindPFlag("stream.interval", cmd.Flags().Lookup("interval"))
	_ = v.BindPFlag("discovery.enabled", cmd.Flags().Lookup("mdns"))
	_ = v.BindPFlag("tls.cert_file", cmd.Flags().Lookup("tls-cert"))
	_ = v.BindPFlag("tls.key_file", cmd.Flags().Lookup("tls-key"))
	_ = v.BindPFlag("tls.self_signed", cmd.Flags().Lookup("tls-self-signed"))

	return cmd
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	logCfg := cfg.LoggerConfig(version.Version)
	logger := observability.NewLogger(logCfg)
	defer logger.Sync()

	slogger := observability.NewSlogLogger(logCfg)
	slog.SetDefault(slogger)
	p := newPipeline(cfg, slogger)

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := tracing.Initialize(ctx, cfg.TracingConfig(version.Version))
	if err != nil {
		return fmt.Errorf("failed to initialize tracing: %w", err)
	}
	defer func() {
		flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTracing(flushCtx); err != nil {
			logger.WithError(err).Warn("Failed to flush traces")
		}
	}()

	tlsConfig, err := cfg.TLSServerConfig().ServerConfig()
	if err != nil {
		return fmt.Errorf("failed to configure TLS: %w", err)
	}

	// Warm the CPU sampler off the request path
	go func() {
		if err := p.sampler.EnsureInitialized(ctx); err != nil {
			logger.WithError(err).Warn("CPU sampler warm-up failed")
		}
	}()

	broadcaster := stream.New(p.assembler, stream.Config{
		Interval:     cfg.Stream.Interval,
		WriteTimeout: cfg.Stream.WriteTimeout,
	}, logger)

	srvCfg := server.Config{
		Addr:            cfg.Addr(),
		APIPrefix:       cfg.Server.APIPrefix,
		ShutdownTimeout: cfg.Server.ShutdownTimeout,
		Version:         version.Version,
		CORS:            cfg.CORSMiddlewareConfig(),
		TLS:             tlsConfig,
	}
	if rl, ok := cfg.RateLimiterConfig(); ok {
		srvCfg.RateLimit = &rl
	}

	srv, err := server.New(srvCfg, p.assembler, p.assessor, broadcaster, logger)
	if err != nil {
		return fmt.Errorf("failed to create server: %w", err)
	}

	var advertiser *discovery.Advertiser
	ready := func(addr net.Addr) {
		if cfg.Discovery.Enabled {
			advertiser = startAdvertiser(cfg, addr, logger)
		}
		notifySystemd(logger, daemon.SdNotifyReady)
		go systemdWatchdog(ctx, logger)

		logger.Info("benchd ready",
			zap.String("addr", addr.String()),
			zap.String("scheme", scheme(cfg)),
			zap.Duration("stream_interval", cfg.Stream.Interval),
			zap.String("version", version.Version),
		)
	}

	stopNotify := context.AfterFunc(ctx, func() {
		notifySystemd(logger, daemon.SdNotifyStopping)
	})
	defer stopNotify()

	err = srv.Start(ctx, ready)

	if advertiser != nil {
		if stopErr := advertiser.Stop(); stopErr != nil {
			logger.WithError(stopErr).Warn("Failed to stop mDNS advertisement")
		}
	}

	logger.Info("benchd stopped", zap.Any("command_breakers", p.runner.Breakers()))
	return err
}

func startAdvertiser(cfg *config.Config, addr net.Addr, logger *observability.Logger) *discovery.Advertiser {
	port := cfg.Server.Port
	if tcp, ok := addr.(*net.TCPAddr); ok {
		port = tcp.Port
	}

	a := discovery.NewAdvertiser(cfg.Discovery.Service, port, map[string]string{
		"version": version.Version,
		"api":     cfg.Server.APIPrefix,
		"stream":  server.StreamPath,
		"scheme":  scheme(cfg),
	})
	if err := a.Start(); err != nil {
		logger.WithError(err).Warn("mDNS advertisement disabled")
		return nil
	}

	logger.Info("Advertising bench over mDNS",
		zap.String("service", cfg.Discovery.Service),
		zap.String("instance", a.Instance()),
		zap.Int("port", port),
	)
	return a
}

func scheme(cfg *config.Config) string {
	if cfg.TLSServerConfig().Enabled() {
		return "https"
	}
	return "http"
}

// notifySystemd is a no-op outside systemd
func notifySystemd(logger *observability.Logger, state string) {
	if _, err := daemon.SdNotify(false, state); err != nil {
		logger.WithError(err).Warn("Failed to notify systemd", zap.String("state", state))
	}
}

// systemdWatchdog sends keepalives at half the configured watchdog interval
func systemdWatchdog(ctx context.Context, logger *observability.Logger) {
	interval, err := daemon.SdWatchdogEnabled(false)
	if err != nil || interval == 0 {
		return
	}

	ticker := time.NewTicker(interval / 2)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			notifySystemd(logger, daemon.SdNotifyWatchdog)
		}
	}
}
