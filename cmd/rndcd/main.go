// rndcd is a reference stub daemon that accepts RNDC v1 connections and
// answers them using the server role of the session state machine. It
// does not front an actual BIND name server: the command dispatcher is a
// small canned table, not a zone engine.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/coreos/go-systemd/v22/daemon"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"github.com/isccctl/gornd/internal/config"
	"github.com/isccctl/gornd/internal/iscc"
	rndcmetrics "github.com/isccctl/gornd/internal/metrics"
	"github.com/isccctl/gornd/internal/rndc"
	appversion "github.com/isccctl/gornd/internal/version"
)

// shutdownTimeout bounds how long the metrics HTTP server gets to drain
// on graceful shutdown.
const shutdownTimeout = 10 * time.Second

func main() {
	os.Exit(run())
}

func run() int {
	configPath := flag.String("config", "", "path to configuration file (YAML)")
	flag.Parse()

	cfg, err := loadConfig(*configPath)
	if err != nil {
		slog.New(slog.NewTextHandler(os.Stderr, nil)).Error("failed to load configuration",
			slog.String("error", err.Error()))
		return 1
	}

	logLevel := new(slog.LevelVar)
	logLevel.Set(config.ParseLogLevel(cfg.Log.Level))
	logger := newLoggerWithLevel(cfg.Log, logLevel)

	logger.Info("rndcd starting",
		slog.String("version", appversion.Version),
		slog.String("listen_addr", fmt.Sprintf("%s:%d", cfg.Default.Host, cfg.Default.Port)),
		slog.String("metrics_addr", cfg.Metrics.Addr),
	)

	reg := prometheus.NewRegistry()
	collector := rndcmetrics.NewCollector(reg)

	key := iscc.NewKey(cfg.Keys[cfg.Default.Key])

	if err := runServers(cfg, key, collector, reg, logger); err != nil {
		logger.Error("rndcd exited with error", slog.String("error", err.Error()))
		return 1
	}

	logger.Info("rndcd stopped")
	return 0
}

// runServers starts the RNDC listener and the metrics HTTP server under a
// shared errgroup and signal-aware context, and shuts both down together.
func runServers(
	cfg *config.Config,
	key *iscc.Key,
	collector *rndcmetrics.Collector,
	reg *prometheus.Registry,
	logger *slog.Logger,
) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, gCtx := errgroup.WithContext(ctx)

	metricsSrv := newMetricsServer(cfg.Metrics, reg)

	addr := fmt.Sprintf("%s:%d", cfg.Default.Host, cfg.Default.Port)
	ln, err := (&net.ListenConfig{}).Listen(gCtx, "tcp", addr)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", addr, err)
	}

	g.Go(func() error {
		return serveRNDC(gCtx, ln, key, collector, logger)
	})

	g.Go(func() error {
		logger.Info("metrics server listening",
			slog.String("addr", cfg.Metrics.Addr),
			slog.String("path", cfg.Metrics.Path),
		)
		return listenAndServe(gCtx, metricsSrv, cfg.Metrics.Addr)
	})

	g.Go(func() error {
		return runWatchdog(gCtx, logger)
	})

	notifyReady(logger)

	g.Go(func() error {
		<-gCtx.Done()
		return gracefulShutdown(gCtx, ln, logger, metricsSrv)
	})

	if err := g.Wait(); err != nil {
		return fmt.Errorf("run servers: %w", err)
	}
	return nil
}

// serveRNDC accepts connections on ln and hands each to its own
// rndc.ServerSession, closing when ctx is cancelled.
func serveRNDC(
	ctx context.Context,
	ln net.Listener,
	key *iscc.Key,
	collector *rndcmetrics.Collector,
	logger *slog.Logger,
) error {
	go func() {
		<-ctx.Done()
		_ = ln.Close()
	}()

	for {
		conn, err := ln.Accept()
		if err != nil {
			if errors.Is(ctx.Err(), context.Canceled) {
				return nil
			}
			return fmt.Errorf("accept: %w", err)
		}

		go handleConnection(conn, key, collector, logger)
	}
}

// handleConnection drives one server-role session to completion over a
// single accepted connection.
func handleConnection(conn net.Conn, key *iscc.Key, collector *rndcmetrics.Collector, logger *slog.Logger) {
	defer conn.Close()

	collector.SessionOpened()
	defer collector.SessionClosed()

	sock := rndc.NewSocket(conn)
	ctx := context.Background()
	done := make(chan struct{})

	var sess *rndc.ServerSession
	sess = rndc.NewServerSession(key, dispatch, rndc.ServerCallbacks{
		WantRead: func() {
			frame, err := sock.ReadFrame(ctx)
			if err != nil {
				logger.Warn("read frame", slog.String("error", err.Error()))
				close(done)
				return
			}
			sess.NextRead(frame)
		},
		WantWrite: func(_ *rndc.Packet, data []byte) {
			if err := sock.WriteFrame(ctx, data); err != nil {
				logger.Warn("write frame", slog.String("error", err.Error()))
				close(done)
				return
			}
			collector.ObservePacketSigned()
			sess.Next()
		},
		WantFinish: func() {
			close(done)
		},
		WantError: func(err error) {
			logger.Info("session ended in error", slog.String("error", err.Error()))
			close(done)
		},
	})

	sess.Start()
	<-done
}

// dispatch is the daemon's canned command table: it does not front an
// actual name server, so only status returns a meaningful answer.
func dispatch(command string) (string, error) {
	switch command {
	case "status":
		return "server is up and running", nil
	case "reload", "refresh", "notify":
		return "command success", nil
	case "stop", "halt":
		return "server stopping", nil
	default:
		return "", fmt.Errorf("rndcd: unknown command %q", command)
	}
}

// -------------------------------------------------------------------------
// Systemd Integration
// -------------------------------------------------------------------------

func notifyReady(logger *slog.Logger) {
	sent, err := daemon.SdNotify(false, daemon.SdNotifyReady)
	if err != nil {
		logger.Warn("failed to notify systemd readiness", slog.String("error", err.Error()))
		return
	}
	if sent {
		logger.Info("notified systemd: READY")
	}
}

func notifyStopping(logger *slog.Logger) {
	sent, err := daemon.SdNotify(false, daemon.SdNotifyStopping)
	if err != nil {
		logger.Warn("failed to notify systemd stopping", slog.String("error", err.Error()))
		return
	}
	if sent {
		logger.Info("notified systemd: STOPPING")
	}
}

func runWatchdog(ctx context.Context, logger *slog.Logger) error {
	interval, err := daemon.SdWatchdogEnabled(false)
	if err != nil {
		logger.Warn("failed to check systemd watchdog", slog.String("error", err.Error()))
		return nil
	}
	if interval == 0 {
		logger.Debug("systemd watchdog not configured, skipping keepalive")
		return nil
	}

	tickInterval := interval / 2
	logger.Info("systemd watchdog enabled",
		slog.Duration("watchdog_sec", interval),
		slog.Duration("keepalive_interval", tickInterval),
	)

	ticker := time.NewTicker(tickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if _, wdErr := daemon.SdNotify(false, daemon.SdNotifyWatchdog); wdErr != nil {
				logger.Warn("failed to send watchdog keepalive", slog.String("error", wdErr.Error()))
			}
		}
	}
}

// -------------------------------------------------------------------------
// Graceful Shutdown
// -------------------------------------------------------------------------

func gracefulShutdown(ctx context.Context, ln net.Listener, logger *slog.Logger, metricsSrv *http.Server) error {
	logger.Info("initiating graceful shutdown")
	notifyStopping(logger)

	_ = ln.Close()

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
	defer cancel()

	if err := metricsSrv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown metrics server: %w", err)
	}
	return nil
}

// -------------------------------------------------------------------------
// Server Setup
// -------------------------------------------------------------------------

func listenAndServe(ctx context.Context, srv *http.Server, addr string) error {
	ln, err := (&net.ListenConfig{}).Listen(ctx, "tcp", addr)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", addr, err)
	}
	if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("serve on %s: %w", addr, err)
	}
	return nil
}

func newMetricsServer(cfg config.MetricsConfig, reg *prometheus.Registry) *http.Server {
	mux := http.NewServeMux()
	mux.Handle(cfg.Path, promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	return &http.Server{
		Addr:              cfg.Addr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}
}

func loadConfig(path string) (*config.Config, error) {
	if path != "" {
		cfg, err := config.Load(path)
		if err != nil {
			return nil, fmt.Errorf("load config from %s: %w", path, err)
		}
		return cfg, nil
	}
	return config.DefaultConfigValues(), nil
}

func newLoggerWithLevel(cfg config.LogConfig, level *slog.LevelVar) *slog.Logger {
	opts := &slog.HandlerOptions{Level: level}

	var handler slog.Handler
	switch cfg.Format {
	case "text":
		handler = slog.NewTextHandler(os.Stdout, opts)
	default:
		handler = slog.NewJSONHandler(os.Stdout, opts)
	}

	return slog.New(handler)
}
