package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/charmbracelet/log"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/zhouzirui/z-relay/backend/internal/config"
	"github.com/zhouzirui/z-relay/backend/internal/handler"
	"github.com/zhouzirui/z-relay/backend/internal/logging"
	"github.com/zhouzirui/z-relay/backend/internal/metrics"
	"github.com/zhouzirui/z-relay/backend/internal/service/session"
	"github.com/zhouzirui/z-relay/backend/internal/service/speech"
)

func main() {
	if err := newRootCmd(viper.New()).ExecuteContext(context.Background()); err != nil {
		os.Exit(1)
	}
}

func newRootCmd(v *viper.Viper) *cobra.Command {
	var envFile string

	cmd := &cobra.Command{
		Use:          "z-relay",
		Short:        "Realtime speech-to-text relay",
		Long:         `z-relay accepts audio from mobile clients over WebSocket, streams it to the transcription provider and relays transcripts back.`,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd.Context(), v, envFile)
		},
	}

	flags := cmd.Flags()
	flags.StringVar(&envFile, "env-file", ".env", "Path of the .env file to load before reading the environment")
	flags.String("addr", "", "Listen port or address (overrides PORT)")
	flags.String("log-level", "", "Log level: debug, info, warn, error (overrides LOG_LEVEL)")
	flags.String("log-format", "", "Log format: text, json, logfmt (overrides LOG_FORMAT)")
	flags.String("provider-url", "", "Transcription provider WebSocket URL (overrides PROVIDER_URL)")

	// Bind flags to viper
	_ = v.BindPFlag("PORT", flags.Lookup("addr"))
	_ = v.BindPFlag("LOG_LEVEL", flags.Lookup("log-level"))
	_ = v.BindPFlag("LOG_FORMAT", flags.Lookup("log-format"))
	_ = v.BindPFlag("PROVIDER_URL", flags.Lookup("provider-url"))

	return cmd
}

func run(ctx context.Context, v *viper.Viper, envFile string) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	bootLogger := log.NewWithOptions(os.Stderr, log.Options{ReportTimestamp: true})

	// Load .env file
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil {
			bootLogger.Warn("failed to load env file, continuing with system environment variables only", "file", envFile, "err", err)
		}
	}

	cfg, err := config.Load(v)
	if err != nil {
		bootLogger.Error("failed to load configuration", "err", err)
		return err
	}

	logger, err := logging.New(cfg.Logging, os.Stderr)
	if err != nil {
		bootLogger.Error("failed to build logger", "err", err)
		return err
	}

	if !cfg.Provider.Enabled() {
		logger.Warn("provider api key not configured, sessions will fail to start transcription")
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	m := metrics.New(reg)

	registry := session.NewRegistry(cfg.Relay.MaxSessions)
	speechService := speech.NewService(cfg, logger)
	logger.Info("speech relay initialized", "provider", cfg.Provider.URL, "model", cfg.Provider.Model, "max_sessions", cfg.Relay.MaxSessions)

	router := handler.NewRouter(registry, speechService, m, reg, logger)

	return startServer(ctx, cfg.Server, router, registry, logger)
}

func startServer(ctx context.Context, serverCfg config.ServerConfig, router http.Handler, registry *session.Registry, logger *log.Logger) error {
	addr := serverCfg.Addr
	srv := &http.Server{
		Addr:              addr,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       120 * time.Second,
		// 会话的生命周期跟随进程信号
		BaseContext: func(net.Listener) context.Context {
			return ctx
		},
	}

	logger.Info("Z Relay backend listening", "addr", addr)
	if err := runServer(ctx, srv, registry); err != nil {
		logger.Error("server error", "err", err)
		return fmt.Errorf("serve: %w", err)
	}
	logger.Info("server stopped")
	return nil
}

func runServer(ctx context.Context, srv *http.Server, registry *session.Registry) error {
	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
		// Shutdown 不跟踪已升级的 WebSocket 连接
		registry.CloseAll()
		err := <-errCh
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case err := <-errCh:
		registry.CloseAll()
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}
