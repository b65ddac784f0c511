package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"faultline-go/internal/config"
	"faultline-go/internal/constants"
	"faultline-go/internal/errorlog"
	"faultline-go/internal/errorstore"
	"faultline-go/internal/events"
	"faultline-go/internal/logging"
	tracing "faultline-go/internal/monitoring/tracing"
	"faultline-go/internal/recovery"
	rt "faultline-go/internal/runtime"
	srv "faultline-go/internal/server"
	store "faultline-go/internal/storage"
	"faultline-go/internal/uistate"
	log "github.com/sirupsen/logrus"
)

func main() {
	configPath := flag.String("config", "", "Path to configuration file (yaml, json or toml)")
	debug := flag.Bool("debug", false, "Enable debug mode")
	demo := flag.Duration("demo", 0, "Emit synthetic client errors at this interval (0 disables)")
	flag.Parse()

	cm, err := config.NewConfigManager(*configPath)
	if err != nil {
		log.WithError(err).Fatal("failed to load configuration")
	}
	defer cm.Close()
	cfg := cm.GetConfig()
	if *debug {
		cfg.Logging.Debug = true
	}
	if err := logging.Setup(cfg.Logging); err != nil {
		log.WithError(err).Fatal("failed to configure logging")
	}

	traceShutdown, err := tracing.Init(context.Background())
	if err != nil {
		log.WithError(err).Warn("failed to initialize tracing")
	}
	if traceShutdown != nil {
		defer func() {
			if err := traceShutdown(context.Background()); err != nil {
				log.WithError(err).Warn("failed to shutdown tracing")
			}
		}()
	}
	log.WithFields(log.Fields{
		"version": constants.Version,
		"commit":  constants.GitCommit,
	}).Infof("Starting faultline collector (config: %s)", cm.Path())

	eventHub := events.NewHub()
	cm.SetEventPublisher(eventHub)
	cm.OnChange(func(next *config.Config) {
		if *debug {
			next.Logging.Debug = true
		}
		if err := logging.Setup(next.Logging); err != nil {
			log.WithError(err).Warn("failed to apply reloaded logging settings")
		}
		log.Info("configuration reloaded; server, storage and archive settings apply on restart")
	})
	if cfg.Logging.Debug {
		eventHub.Subscribe(events.TopicConfigUpdated, func(_ context.Context, evt events.Event) {
			log.WithField("topic", evt.Topic).Debugf("config event: %v", evt.Metadata)
		})
	}

	// clientCtx bounds the client-side pipeline; it is cancelled before the
	// HTTP server stops so final flushes can still reach it.
	clientCtx, cancelClient := context.WithCancel(context.Background())
	defer cancelClient()

	backend, err := store.NewWithFallback(clientCtx, cfg.Storage)
	if err != nil {
		log.WithError(err).Error("storage unavailable; UI state is kept in memory only")
		backend = store.NewMemoryBackend()
	}
	backendLabel := store.DetectBackendLabel(cfg.Storage.Backend, backend)
	backend = store.WithInstrumentation(backend, backendLabel)
	defer func() { _ = backend.Close() }()
	log.WithField("backend", backendLabel).Info("storage backend ready")

	ui := uistate.New(uistate.Options{Backend: backend, Events: eventHub})
	if err := ui.Load(clientCtx); err != nil {
		log.WithError(err).Warn("failed to load persisted UI state; using defaults")
	}
	defer ui.Close()
	stopConnectivity := ui.WatchConnectivity(eventHub)
	defer stopConnectivity()

	archive, err := errorstore.Open(clientCtx, errorstore.Options{
		Path:          cfg.Archive.Path,
		RetentionDays: cfg.Archive.RetentionDays,
		SlowThreshold: config.Millis(cfg.Archive.SlowQueryMs, 200*time.Millisecond),
	})
	if err != nil {
		log.WithError(err).Fatal("failed to open error archive")
	}
	defer func() { _ = archive.Close() }()

	errLogger := errorlog.New(errorlog.Options{
		Endpoint:        cfg.ErrorLog.Endpoint,
		Headers:         cfg.ErrorLog.Headers,
		BufferSize:      cfg.ErrorLog.BufferSize,
		RetryQueueSize:  cfg.ErrorLog.RetryQueueSize,
		DeliveryTimeout: config.Seconds(cfg.ErrorLog.DeliveryTimeoutSec, constants.DeliveryTimeout),
		RetryInterval:   config.Millis(cfg.ErrorLog.RetryIntervalMs, constants.RetryDrainInterval),
		Defaults:        errorlog.Context{UserAgent: constants.UserAgent()},
		Events:          eventHub,
	})
	if !errLogger.Remote() {
		log.Info("error logger running local-only (no error_log.endpoint)")
	}

	handler := recovery.New(recovery.Options{
		Endpoint: cfg.Handler.Endpoint,
		Headers:  cfg.ErrorLog.Headers,
		Logger:   errLogger,
		Notifier: ui,
		Sampling: recovery.NewSamplingRegistry(
			config.Seconds(cfg.Handler.NotificationWindowSec, constants.NotificationSampleWindow),
			time.Duration(cfg.Handler.NotificationRetentionHrs)*time.Hour,
		),
		Events:        eventHub,
		QueueSize:     cfg.Handler.QueueSize,
		FlushInterval: config.Seconds(cfg.Handler.FlushIntervalSec, constants.FlushInterval),
		FlushTimeout:  config.Seconds(cfg.Handler.FlushTimeoutSec, constants.FlushTimeout),
	})
	tasks := rt.NewTaskManager(clientCtx, handler)
	if err := tasks.Start("report-flush", func(ctx context.Context) error {
		handler.Run(ctx)
		return nil
	}); err != nil {
		log.WithError(err).Fatal("failed to start report flush")
	}
	if cfg.Health.Enabled {
		monitor := newHealthMonitor(cfg.Health, ui, archive, backend)
		if err := tasks.Start("health-monitor", func(ctx context.Context) error {
			monitor.Run(ctx)
			return nil
		}); err != nil {
			log.WithError(err).Warn("failed to start health monitor")
		}
	}

	errStream := logging.NewStreamer(cfg.Stream.HistorySize)
	errStream.Start()
	defer errStream.Stop()
	logStream := logging.NewStreamer(cfg.Stream.HistorySize)
	logStream.Start()
	logging.InstallStreamHook(logStream)
	defer logStream.Stop()

	retention, err := srv.NewRetentionScheduler(cfg.Archive.CleanupSchedule, archive, handler)
	if err != nil {
		log.WithError(err).Fatal("failed to schedule retention cleanup")
	}
	retention.Start()
	defer retention.Stop()

	engine := srv.BuildEngine(cfg, srv.Dependencies{
		Archive:     archive,
		Handler:     handler,
		UI:          ui,
		Events:      eventHub,
		ErrorStream: errStream,
		LogStream:   logStream,
		Tasks:       tasks,
	})
	httpSrv := &http.Server{
		Addr:              cfg.Addr(),
		Handler:           engine,
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		log.Infof("Collector listening on %s", cfg.Addr())
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			// 端口异常不直接退出；记录错误并等待关停信号
			log.Errorf("collector server: %v", err)
		}
	}()

	if *demo > 0 {
		log.WithField("interval", demo.String()).Info("demo client enabled")
		d := &demoClient{logger: errLogger, handler: handler, events: eventHub}
		if err := tasks.Start("demo-client", func(ctx context.Context) error {
			d.run(ctx, *demo)
			return nil
		}); err != nil {
			log.WithError(err).Warn("failed to start demo client")
		}
	}

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig
	log.Info("Shutdown signal received")

	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), constants.ServerShutdownTimeout)
	defer cancelShutdown()

	cancelClient()
	if err := tasks.Wait(shutdownCtx); err != nil {
		log.WithError(err).Warn("background tasks did not finish in time")
	}
	errLogger.Close()
	ui.WaitIdle()

	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		log.WithError(err).Warn("collector server shutdown incomplete")
	}
	log.Info("Collector stopped")
}
