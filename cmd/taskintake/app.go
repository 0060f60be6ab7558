package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/nats-io/nats-server/v2/server"
	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/c360studio/taskintake/config"
	"github.com/c360studio/taskintake/intake"
	"github.com/c360studio/taskintake/metrics"
	"github.com/c360studio/taskintake/storage"
	"github.com/c360studio/taskintake/transport"
)

// App wires together the store, the intake engine, and the transport
// adapter over a single NATS connection.
type App struct {
	cfg    *config.Config
	logger *slog.Logger

	embeddedServer *server.Server
	natsConn       *nats.Conn
	js             jetstream.JetStream

	store    *storage.Store
	sessions *intake.Registry
	engine   *intake.Engine
	adapter  *transport.Adapter

	metricsServer *http.Server
	sweepCancel   context.CancelFunc
}

// NewApp creates a new application instance.
func NewApp(cfg *config.Config, logger *slog.Logger) *App {
	if logger == nil {
		logger = slog.Default()
	}
	return &App{cfg: cfg, logger: logger}
}

// Start initializes and starts all components.
func (a *App) Start(ctx context.Context) error {
	if err := a.startNATS(); err != nil {
		return fmt.Errorf("start NATS: %w", err)
	}

	a.store = storage.NewStore(a.js)
	if err := a.store.Initialize(ctx); err != nil {
		return fmt.Errorf("initialize storage: %w", err)
	}

	promReg := prometheus.NewRegistry()
	promReg.MustRegister(collectors.NewGoCollector())
	m := metrics.New(promReg)

	a.sessions = intake.NewRegistry(a.logger, m)
	a.engine = intake.NewEngine(a.store, a.sessions, a.logger, m)

	sweepCtx, cancel := context.WithCancel(context.Background())
	a.sweepCancel = cancel
	go a.sessions.RunSweeper(sweepCtx,
		a.cfg.Intake.SweepInterval.Std(),
		a.cfg.Intake.SessionTimeout.Std())

	a.adapter = transport.NewAdapter(a.natsConn, a.engine, a.logger)
	if err := a.adapter.Start(); err != nil {
		return fmt.Errorf("start transport: %w", err)
	}

	if a.cfg.Metrics.Enabled {
		a.startMetrics(promReg)
	}

	a.logger.Info("taskintake started")
	return nil
}

func (a *App) startNATS() error {
	if !a.cfg.NATS.Embedded {
		a.logger.Info("connecting to NATS", "url", a.cfg.NATS.URL)
		conn, err := nats.Connect(a.cfg.NATS.URL)
		if err != nil {
			return fmt.Errorf("connect to NATS: %w", err)
		}
		a.natsConn = conn
	} else {
		a.logger.Info("starting embedded NATS server",
			"port", a.cfg.NATS.Port,
			"store_dir", a.cfg.NATS.StoreDir)
		opts := &server.Options{
			Port:      a.cfg.NATS.Port,
			JetStream: true,
			StoreDir:  a.cfg.NATS.StoreDir,
			NoLog:     true,
			NoSigs:    true,
		}

		ns, err := server.NewServer(opts)
		if err != nil {
			return fmt.Errorf("create embedded NATS server: %w", err)
		}

		go ns.Start()
		if !ns.ReadyForConnections(5 * time.Second) {
			ns.Shutdown()
			return fmt.Errorf("embedded NATS server failed to start")
		}
		a.embeddedServer = ns

		conn, err := nats.Connect(ns.ClientURL())
		if err != nil {
			ns.Shutdown()
			return fmt.Errorf("connect to embedded NATS: %w", err)
		}
		a.natsConn = conn
	}

	js, err := jetstream.New(a.natsConn)
	if err != nil {
		return fmt.Errorf("create JetStream context: %w", err)
	}
	a.js = js
	return nil
}

func (a *App) startMetrics(reg *prometheus.Registry) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	a.metricsServer = &http.Server{Addr: a.cfg.Metrics.Addr, Handler: mux}

	go func() {
		a.logger.Info("metrics endpoint listening", "addr", a.cfg.Metrics.Addr)
		if err := a.metricsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			a.logger.Error("metrics endpoint failed", "error", err)
		}
	}()
}

// Shutdown gracefully stops all components.
func (a *App) Shutdown(timeout time.Duration) {
	a.logger.Info("shutting down")

	if a.sweepCancel != nil {
		a.sweepCancel()
	}
	if a.adapter != nil {
		a.adapter.Stop()
	}

	if a.metricsServer != nil {
		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()
		if err := a.metricsServer.Shutdown(ctx); err != nil {
			a.logger.Warn("metrics endpoint shutdown", "error", err)
		}
	}

	if a.natsConn != nil {
		if err := a.natsConn.Drain(); err != nil {
			a.logger.Warn("drain NATS connection", "error", err)
		}
		a.natsConn.Close()
	}

	if a.embeddedServer != nil {
		a.embeddedServer.Shutdown()
		a.embeddedServer.WaitForShutdown()
	}

	a.logger.Info("shutdown complete")
}
