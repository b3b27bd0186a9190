// apiserver serves the dataset and research search endpoints.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	pclient "github.com/prometheus/client_golang/prometheus"

	"github.com/nbdc/humandbs-pipeline/internal/config"
	"github.com/nbdc/humandbs-pipeline/internal/domain/auth"
	"github.com/nbdc/humandbs-pipeline/internal/interfaces/httpapi"
	"github.com/nbdc/humandbs-pipeline/internal/monitoring/logging"
	"github.com/nbdc/humandbs-pipeline/internal/monitoring/prometheus"
	"github.com/nbdc/humandbs-pipeline/internal/search/es"
)

func main() {
	configPath := flag.String("config", "", "path to configuration file (default: environment only)")
	flag.Parse()

	if err := run(*configPath); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run(configPath string) error {
	var cfg *config.Config
	var err error
	if configPath != "" {
		cfg, err = config.Load(configPath)
	} else {
		cfg, err = config.LoadFromEnv()
	}
	if err != nil {
		return err
	}

	logger, err := logging.NewLogger(cfg.Log)
	if err != nil {
		return err
	}

	registry := pclient.NewRegistry()
	registry.MustRegister(pclient.NewGoCollector())
	metrics := prometheus.New(registry)

	client, err := es.NewClient(cfg.Search, logger)
	if err != nil {
		return err
	}
	querier := es.NewQuerier(client, metrics, logger)

	adminUIDs, err := auth.LoadAdminUIDs(cfg.AdminUIDFile)
	if err != nil {
		return err
	}

	srv := httpapi.New(cfg.Server, querier, adminUIDs, registry, logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logger.Info("starting search API server",
		logging.Int("port", cfg.Server.Port),
		logging.Int("adminUids", len(adminUIDs)))
	return srv.Run(ctx)
}
