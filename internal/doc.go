// Package internal holds the building blocks of the Octopus consumption
// exporter.
//
// # Architecture
//
// The exporter is structured into several key packages:
//   - api: paginated client for the Octopus Energy consumption endpoints
//   - database: PostgreSQL/TimescaleDB and SQLite series stores
//   - ingest: window resolution, point normalization and the sync cycle
//   - scheduler: daily trigger loop around the sync cycle
//   - grpc: health checking service reporting per-series sync status
//   - metrics: Prometheus collectors for fetches, writes and resets
//   - publisher: optional MQTT announcements of finished syncs
//   - config: YAML and environment configuration
//   - models: shared data structures and sentinel errors
//
// Key Features
//
//   - Incremental sync:
//     Each series resumes from its newest stored point. A series with no data
//     starts one day back, or at the configured start date.
//
//   - Self-healing store:
//     A series whose newest row cannot be read is dropped and rebuilt. When
//     the store refuses the drop the exporter stops and asks for manual
//     intervention.
//
//   - Idempotent writes:
//     Points are upserted on their interval end, so an overlapping window
//     never duplicates readings.
//
// Example Usage
//
//	store, _ := database.Open(cfg.Database)
//	fetcher := api.NewConsumptionFetcher(cfg.API, logger)
//	orch, _ := ingest.NewOrchestrator(cfg, store, fetcher, logger, metrics.New(registry))
//	err := orch.RunCycle(ctx)
package internal
