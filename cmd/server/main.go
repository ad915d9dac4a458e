package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/nickyhof/GitDB"
	"github.com/nickyhof/GitDB/config"
	"github.com/nickyhof/GitDB/logger"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"
)

// Version is set at build time via -ldflags
var Version = "dev"

func main() {
	configPath := flag.String("config", config.DefaultPath(), "Path to the configuration file")
	backend := flag.String("backend", "", "Backing store: github, git, memory or s3 (overrides config)")
	port := flag.Int("port", 0, "TCP port to listen on (overrides config)")
	showVersion := flag.Bool("version", false, "Show version and exit")
	flag.Parse()

	if *showVersion {
		fmt.Printf("GitDB Server v%s\n", Version)
		return
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}
	if *backend != "" {
		cfg.Backend = config.Backend(*backend)
	}
	if *port != 0 {
		cfg.Server.Port = *port
	}

	log := logger.New(cfg.Log.Level, logger.ParseFormat(cfg.Log.Format))
	defer log.Sync() //nolint:errcheck

	if err := run(cfg, log); err != nil {
		log.Fatal("Server failed", zap.Error(err))
	}
}

func run(cfg *config.Config, log *zap.Logger) error {
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	instance, err := GitDB.Open(cfg, GitDB.WithLogger(log), GitDB.WithRegisterer(registry))
	if err != nil {
		return err
	}

	var authConfig *AuthConfig
	if cfg.Server.JWTSecret != "" {
		authConfig = &AuthConfig{
			Enabled:   true,
			JWTSecret: cfg.Server.JWTSecret,
			Issuer:    cfg.Server.Issuer,
			Audience:  cfg.Server.Audience,
		}
	}

	server := NewServer(instance, authConfig, registry, log)
	if err := server.Start(cfg.Server.Addr()); err != nil {
		return err
	}

	log.Info("GitDB server started",
		zap.String("version", Version),
		zap.String("backend", string(cfg.Backend)),
		zap.String("addr", server.Addr()),
		zap.Bool("auth", authConfig != nil))

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan

	log.Info("Shutting down")
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := server.Stop(ctx); err != nil {
		return err
	}
	log.Info("Server stopped")
	return nil
}
