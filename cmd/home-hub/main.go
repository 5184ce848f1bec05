package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"home-hub/internal/assistant"
	"home-hub/internal/home"
	"home-hub/internal/metrics"
	"home-hub/internal/store"
	"home-hub/internal/web"
)

// version is set at build time via -ldflags "-X main.version=..."
var version = "dev"

// feature is an optional subsystem that build tags can compile out.
type feature interface {
	Stop()
}

type noFeature struct{}

func (noFeature) Stop() {}

func main() {
	bootLogger := slog.New(slog.NewTextHandler(os.Stderr, nil))

	cfgPath := "config.yaml"
	if len(os.Args) > 1 {
		cfgPath = os.Args[1]
	}
	cfg, err := loadConfig(cfgPath)
	if err == nil {
		err = cfg.validate()
	}
	if err != nil {
		bootLogger.Error("config", "path", cfgPath, "err", err)
		os.Exit(1)
	}

	logger := newLogger(cfg)
	slog.SetDefault(logger)
	logger.Info("home-hub starting", "version", version)

	if err := run(cfg, logger); err != nil {
		logger.Error("fatal", "err", err)
		os.Exit(1)
	}
	logger.Info("goodbye")
}

// run wires the hub and its front ends, then blocks until SIGINT or SIGTERM.
func run(cfg *Config, logger *slog.Logger) error {
	metrics.Init()

	db, err := store.NewBoltStore(cfg.Store.Path)
	if err != nil {
		return err
	}
	defer db.Close()

	hub := home.NewHub(db, home.NewEventBus(logger), logger, home.WithAcceleration(cfg.Home.Acceleration))
	defer hub.Close()

	if err := seedRooms(hub, cfg, logger); err != nil {
		return err
	}
	// Appliances left running by the previous process get fresh timers.
	if n, err := hub.ResumeCycles(); err != nil {
		logger.Error("resume appliance cycles", "err", err)
	} else if n > 0 {
		logger.Info("resumed appliance cycles", "count", n)
	}

	auto, autoOpts, err := startAutomation(hub, cfg, logger)
	if err != nil {
		logger.Error("automation disabled", "err", err)
		auto = noFeature{}
	}
	defer auto.Stop()

	webServer := web.NewServer(hub, logger, append(webOptions(cfg, logger), autoOpts...)...)
	defer webServer.Stop()

	httpServer := &http.Server{
		Addr:         cfg.Web.Listen,
		Handler:      webServer,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  120 * time.Second,
	}
	serveErr := make(chan error, 1)
	go func() {
		logger.Info("web server starting", "addr", cfg.Web.Listen)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
	}()

	bridge, err := startMQTT(hub, cfg, logger)
	if err != nil {
		logger.Error("mqtt disabled", "err", err)
		bridge = noFeature{}
	}
	defer bridge.Stop()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	select {
	case <-ctx.Done():
		logger.Info("shutting down")
	case err := <-serveErr:
		return err
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown", "err", err)
	}
	return nil
}

func webOptions(cfg *Config, logger *slog.Logger) []web.ServerOption {
	opts := []web.ServerOption{web.WithVersion(version)}
	if cfg.Web.APIKey != "" {
		opts = append(opts, web.WithAPIKey(cfg.Web.APIKey))
	}
	if len(cfg.Web.AllowedOrigins) > 0 {
		opts = append(opts, web.WithAllowedOrigins(cfg.Web.AllowedOrigins))
	}
	if cfg.Assistant.Command != "" {
		opts = append(opts, web.WithAssistant(assistant.New(assistant.Config{
			Command: cfg.Assistant.Command,
			Args:    cfg.Assistant.Args,
			HomeDir: cfg.Assistant.HomeDir,
			Timeout: time.Duration(cfg.Assistant.Timeout),
		}, logger)))
	}
	return opts
}

// seedRooms stores the initial room-set on first start: the configured seed
// file if any, otherwise the built-in default.
func seedRooms(hub *home.Hub, cfg *Config, logger *slog.Logger) error {
	doc := home.DefaultDocument()
	if cfg.Home.SeedFile != "" {
		var err error
		if doc, err = home.LoadSeedFile(cfg.Home.SeedFile); err != nil {
			return err
		}
	}
	seeded, err := hub.Seed(doc)
	if err != nil {
		return err
	}
	if seeded {
		logger.Info("seeded room-set", "rooms", len(doc.Rooms), "file", cfg.Home.SeedFile)
	}
	return nil
}

func newLogger(cfg *Config) *slog.Logger {
	var level slog.Level
	if err := level.UnmarshalText([]byte(cfg.Log.Level)); err != nil {
		level = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: level}
	if cfg.Log.Format == "json" {
		return slog.New(slog.NewJSONHandler(os.Stdout, opts))
	}
	return slog.New(slog.NewTextHandler(os.Stdout, opts))
}
