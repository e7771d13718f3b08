// File: cmd/controller/main.go
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"gpu-notebook-bridge/internal/config"
	"gpu-notebook-bridge/internal/console"
	aiAdapters "gpu-notebook-bridge/internal/infra/adapters/ai"
	"gpu-notebook-bridge/internal/infra/adapters/nodeclient"
	"gpu-notebook-bridge/internal/infra/idgen"
	"gpu-notebook-bridge/internal/infra/logging"
	"gpu-notebook-bridge/internal/infra/memory"
	"gpu-notebook-bridge/internal/infra/metrics"
	"gpu-notebook-bridge/internal/infra/security"
	"gpu-notebook-bridge/internal/usecase"

	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	version = "dev"
	commit  = "none"
)

func main() {
	// ---- CLI flags ----
	cfgPath := flag.String("config", "", "path to YAML config file (defaults when empty)")
	devMode := flag.Bool("dev", false, "enable developer mode (console logs)")
	connect := flag.String("connect", "", "comma separated worker URLs to connect at startup")
	flag.Parse()

	cfg, err := config.LoadConfig(*cfgPath, *devMode)
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}
	// stdout belongs to the console
	logger := logging.NewWithWriter(os.Stderr, cfg.Log, cfg.Runtime.Dev)
	metrics.MustRegister()
	metrics.SetBuildInfo(version, commit, "controller")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if cfg.Metrics.Addr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())
		ms := &http.Server{Addr: cfg.Metrics.Addr, Handler: mux, ReadHeaderTimeout: 10 * time.Second}
		go func() {
			if err := ms.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error().Err(err).Msg("metrics server")
			}
		}()
		defer ms.Close()
	}

	// ---- Cluster ----
	tokens := security.NewTokenManager(cfg.Auth.Secret, cfg.Auth.TTL)
	cluster := usecase.NewClusterUseCase(
		memory.NewNodeRegistry(),
		memory.NewJobRegistry(),
		nodeclient.New(&http.Client{}, tokens),
		idgen.NewULIDGenerator(),
		cfg.Controller,
		logging.Component(logger, "cluster"),
	)

	// ---- Assistant ----
	ai, err := aiAdapters.New(ctx, cfg.AI)
	if err != nil {
		logger.Fatal().Err(err).Msg("ai adapter")
	}
	assistant := usecase.NewAssistantUseCase(ai, cluster, cfg.AI.DefaultModel, cfg.AI.MaxContextTokens, logging.Component(logger, "assistant"))

	con := console.New(cluster, assistant, os.Stdout,
		console.WithPrompt(console.IsTerminal(os.Stdin)),
		console.WithLogger(logging.Component(logger, "console")),
	)
	for _, u := range strings.Split(*connect, ",") {
		if u = strings.TrimSpace(u); u == "" {
			continue
		}
		if _, err := con.Execute(ctx, "connect "+u); err != nil {
			fmt.Fprintf(os.Stdout, "error: %v\n", err)
		}
	}

	if err := con.Run(ctx, os.Stdin); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error().Err(err).Msg("console")
		os.Exit(1)
	}
}
