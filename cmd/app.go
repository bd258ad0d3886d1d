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

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/sirupsen/logrus"
	"google.golang.org/grpc"

	"github.com/sparks1372/octopus-consumption-exporter/internal/api"
	"github.com/sparks1372/octopus-consumption-exporter/internal/config"
	"github.com/sparks1372/octopus-consumption-exporter/internal/database"
	server "github.com/sparks1372/octopus-consumption-exporter/internal/grpc"
	"github.com/sparks1372/octopus-consumption-exporter/internal/ingest"
	"github.com/sparks1372/octopus-consumption-exporter/internal/metrics"
	"github.com/sparks1372/octopus-consumption-exporter/internal/publisher"
)

// app holds every long-lived component of the exporter.
type app struct {
	cfg          *config.Config
	logger       *logrus.Logger
	store        database.SeriesStore
	registry     *prometheus.Registry
	metrics      *metrics.Metrics
	health       *server.HealthChecker
	publisher    *publisher.Publisher
	orchestrator *ingest.Orchestrator
}

func newApp(cfg *config.Config, logger *logrus.Logger) (*app, error) {
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	a := &app{
		cfg:      cfg,
		logger:   logger,
		registry: registry,
		metrics:  metrics.New(registry),
		health:   server.NewHealthChecker(),
	}

	store, err := database.Open(cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s store: %w", cfg.Database.Driver, err)
	}
	a.store = store

	opts := []ingest.Option{ingest.WithHealth(a.health)}
	if cfg.MQTT.Enabled {
		pub, err := publisher.New(cfg.MQTT)
		if err != nil {
			a.Close()
			return nil, err
		}
		a.publisher = pub
		opts = append(opts, ingest.WithNotifier(pub))
	}

	fetcher := api.NewConsumptionFetcher(cfg.API, logger)
	a.orchestrator, err = ingest.NewOrchestrator(cfg, a.store, fetcher, logger, a.metrics, opts...)
	if err != nil {
		a.Close()
		return nil, err
	}

	return a, nil
}

// serveMetrics serves /metrics until ctx is done. It is a no-op when no listen
// address is configured.
func (a *app) serveMetrics(ctx context.Context, errChan chan<- error) {
	if a.cfg.Metrics.Listen == "" {
		return
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler(a.registry))
	srv := &http.Server{
		Addr:              a.cfg.Metrics.Listen,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		a.logger.WithField("listen", a.cfg.Metrics.Listen).Info("Starting metrics server")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errChan <- fmt.Errorf("metrics server error: %w", err)
		}
	}()

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		srv.Shutdown(shutdownCtx)
	}()
}

// serveHealth serves the gRPC health service until ctx is done. It is a no-op
// when no listen address is configured.
func (a *app) serveHealth(ctx context.Context, errChan chan<- error) error {
	if a.cfg.Health.Listen == "" {
		return nil
	}

	lis, err := net.Listen("tcp", a.cfg.Health.Listen)
	if err != nil {
		return fmt.Errorf("failed to listen: %w", err)
	}

	srv := server.SetupServer(a.health, a.logger, a.metrics, server.DefaultServerConfig())

	go func() {
		a.logger.WithField("listen", a.cfg.Health.Listen).Info("Starting gRPC health server")
		if err := srv.Serve(lis); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
			errChan <- fmt.Errorf("server error: %w", err)
		}
	}()

	go func() {
		<-ctx.Done()
		a.logger.Info("Gracefully stopping gRPC server...")
		srv.GracefulStop()
	}()

	return nil
}

func (a *app) Close() {
	if a.publisher != nil {
		a.publisher.Close()
	}
	if a.store != nil {
		if err := a.store.Close(); err != nil {
			a.logger.WithError(err).Warn("Failed to close store")
		}
	}
}

// handleShutdown cancels the run once SIGINT or SIGTERM arrives.
func handleShutdown(ctx context.Context, cancel context.CancelFunc, logger *logrus.Logger) {
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	select {
	case <-ctx.Done():
	case sig := <-sigChan:
		logger.WithField("signal", sig.String()).Info("Received signal, initiating shutdown")
		cancel()
	}
}
