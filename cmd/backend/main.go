package main

import (
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	audioimpl "github.com/lingora-app/lingora/external/audio"
	configloader "github.com/lingora-app/lingora/external/config"
	"github.com/lingora-app/lingora/external/gateway"
	identityimpl "github.com/lingora-app/lingora/external/identity"
	repositoryimpl "github.com/lingora-app/lingora/external/repository"
	rtcimpl "github.com/lingora-app/lingora/external/rtc"
	tokenimpl "github.com/lingora-app/lingora/external/token"
	"github.com/lingora-app/lingora/internal/config"
	"github.com/lingora-app/lingora/internal/session"
	"github.com/samber/do/v2"
)

func main() {
	slog.Info("startup: loading configuration")
	cfg := mustLoadConfig()
	initLogger(cfg)
	slog.Info("startup: configuration loaded", "env", cfg.Env)

	slog.Info("startup: building dependency graph")
	injector := setupDI(cfg)

	slog.Info("startup: launching gateway")
	runGateway(cfg, injector)
}

func mustLoadConfig() *config.Config {
	cfg, err := configloader.Load()
	if err != nil {
		slog.Error("config validation failed", "error", err)
		os.Exit(1)
	}
	return cfg
}

func initLogger(cfg *config.Config) {
	logLevel := slog.LevelInfo
	if cfg.IsDevelopment() {
		logLevel = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: logLevel})))
}

func setupDI(cfg *config.Config) do.Injector {
	injector := do.New()

	do.ProvideValue(injector, cfg)
	repositoryimpl.RegisterDI(injector)
	identityimpl.RegisterDI(injector)
	tokenimpl.RegisterDI(injector)
	rtcimpl.RegisterDI(injector)
	audioimpl.RegisterDI(injector)
	session.RegisterDI(injector)
	gateway.RegisterDI(injector)

	return injector
}

func runGateway(cfg *config.Config, injector do.Injector) {
	server, err := do.Invoke[*gateway.Server](injector)
	if err != nil {
		slog.Error("failed to resolve gateway server", "error", err)
		os.Exit(1)
	}

	done := make(chan struct{})
	go func() {
		slog.Info("startup: listening", "addr", cfg.HTTPListenAddr)
		if err := server.Listen(); err != nil {
			slog.Error("gateway listen failed", "error", err)
		}
		close(done)
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-sigCh:
		slog.Info("shutting down")
		if err := server.Shutdown(); err != nil {
			slog.Error("gateway shutdown failed", "error", err)
		}
	case <-done:
	}
}
