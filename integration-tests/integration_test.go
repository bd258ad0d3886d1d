//go:build integration
// +build integration

package integration_test

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"net/http/httptest"
	"os"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	_ "github.com/lib/pq"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/test/bufconn"

	"github.com/sparks1372/octopus-consumption-exporter/internal/api"
	"github.com/sparks1372/octopus-consumption-exporter/internal/config"
	"github.com/sparks1372/octopus-consumption-exporter/internal/database"
	server "github.com/sparks1372/octopus-consumption-exporter/internal/grpc"
	"github.com/sparks1372/octopus-consumption-exporter/internal/ingest"
	"github.com/sparks1372/octopus-consumption-exporter/internal/metrics"
	"github.com/sparks1372/octopus-consumption-exporter/internal/models"
)

const bufSize = 1024 * 1024

var logger *logrus.Logger

func init() {
	logger = logrus.New()
	logger.SetLevel(logrus.DebugLevel)
}

// Helper function to get environment variables with defaults
func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func testDatabaseConfig(t *testing.T) config.DatabaseConfig {
	port, err := strconv.Atoi(getEnvOrDefault("DB_PORT", "5432"))
	require.NoError(t, err)

	return config.DatabaseConfig{
		Driver:            "postgres",
		Host:              getEnvOrDefault("DB_HOST", "db"),
		Port:              port,
		User:              getEnvOrDefault("DB_USER", "energy"),
		Password:          getEnvOrDefault("DB_PASSWORD", "energy"),
		Name:              getEnvOrDefault("DB_NAME", "energy"),
		SSLMode:           "disable",
		ConnectionTimeout: 5,
	}
}

// setupTestDB opens the store and drops every series table left over from a
// previous run.
func setupTestDB(t *testing.T) (database.SeriesStore, *sql.DB) {
	cfg := testDatabaseConfig(t)

	store, err := database.Open(cfg)
	require.NoError(t, err)

	db, err := sql.Open("postgres", cfg.DSN())
	require.NoError(t, err)

	for _, series := range models.AllSeries {
		_, err := db.Exec(fmt.Sprintf("DROP TABLE IF EXISTS %s", series))
		require.NoError(t, err)
	}

	t.Cleanup(func() {
		db.Close()
		store.Close()
	})
	return store, db
}

type reading struct {
	Consumption   float64 `json:"consumption"`
	IntervalStart string  `json:"interval_start"`
	IntervalEnd   string  `json:"interval_end"`
}

type page struct {
	Count   int       `json:"count"`
	Next    *string   `json:"next"`
	Results []reading `json:"results"`
}

// setupMockAPIServer serves half-hourly readings for the requested window,
// newest first, pageSize readings per page.
func setupMockAPIServer(t *testing.T, pageSize int) (*httptest.Server, *sync.Map) {
	requested := &sync.Map{}

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if user, _, ok := r.BasicAuth(); !ok || user != "sk_integration" {
			http.Error(w, `{"detail":"Authentication credentials were not provided."}`, http.StatusUnauthorized)
			return
		}

		from, err := time.Parse(time.RFC3339, r.URL.Query().Get("period_from"))
		require.NoError(t, err)
		to, err := time.Parse(time.RFC3339, r.URL.Query().Get("period_to"))
		require.NoError(t, err)
		requested.Store(r.URL.Path, from)

		var all []reading
		for end := to.Truncate(30 * time.Minute); end.After(from); end = end.Add(-30 * time.Minute) {
			all = append(all, reading{
				Consumption:   0.25,
				IntervalStart: end.Add(-30 * time.Minute).Format(time.RFC3339),
				IntervalEnd:   end.Format(time.RFC3339),
			})
		}
		// export meters report nothing
		if strings.Contains(r.URL.Path, "1900000000000") {
			all = nil
		}

		pageNum := 1
		if p := r.URL.Query().Get("page"); p != "" {
			pageNum, err = strconv.Atoi(p)
			require.NoError(t, err)
		}

		start := (pageNum - 1) * pageSize
		end := start + pageSize
		if start > len(all) {
			start = len(all)
		}
		if end > len(all) {
			end = len(all)
		}

		resp := page{Count: len(all), Results: all[start:end]}
		if end < len(all) {
			next := fmt.Sprintf("http://%s%s?page=%d", r.Host, r.URL.Path, pageNum+1)
			resp.Next = &next
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(resp)
	}))

	return srv, requested
}

func testConfig(apiURL string, db config.DatabaseConfig) *config.Config {
	return &config.Config{
		API: config.APIConfig{
			Key:       "sk_integration",
			BaseURL:   apiURL,
			Timeout:   5 * time.Second,
			RateLimit: 100,
			RateBurst: 10,
		},
		Meters: config.MetersConfig{
			Electricity: config.MeterConfig{MPAN: "1200000000000", Serial: "21L0000000"},
			Export:      config.MeterConfig{MPAN: "1900000000000", Serial: "21L0000000"},
			Gas: config.GasMeterConfig{
				MPRN:                   "3000000000",
				Serial:                 "E6S00000000000",
				VolumeCorrectionFactor: 1.02264,
			},
		},
		Database: db,
	}
}

func setupHealthClient(t *testing.T, health *server.HealthChecker, m *metrics.Metrics) grpc_health_v1.HealthClient {
	lis := bufconn.Listen(bufSize)
	srv := server.SetupServer(health, logger, m, server.DefaultServerConfig())

	go func() {
		if err := srv.Serve(lis); err != nil {
			logger.Errorf("Error serving: %v", err)
		}
	}()

	conn, err := grpc.NewClient("passthrough:///bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
			return lis.DialContext(ctx)
		}),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	require.NoError(t, err)

	t.Cleanup(func() {
		conn.Close()
		srv.Stop()
		lis.Close()
	})
	return grpc_health_v1.NewHealthClient(conn)
}

func TestSyncCycleE2E(t *testing.T) {
	store, db := setupTestDB(t)
	mockAPI, _ := setupMockAPIServer(t, 10)
	defer mockAPI.Close()

	cfg := testConfig(mockAPI.URL, testDatabaseConfig(t))
	m := metrics.New(prometheus.NewRegistry())
	health := server.NewHealthChecker()
	client := setupHealthClient(t, health, m)

	fetcher := api.NewConsumptionFetcher(cfg.API, logger)
	orch, err := ingest.NewOrchestrator(cfg, store, fetcher, logger, m, ingest.WithHealth(health))
	require.NoError(t, err)

	ctx := context.Background()
	require.NoError(t, orch.RunCycle(ctx))

	var count int
	require.NoError(t, db.QueryRow("SELECT count(*) FROM electricity").Scan(&count))
	assert.GreaterOrEqual(t, count, 47)

	var consumption, raw float64
	require.NoError(t, db.QueryRow(
		"SELECT consumption, raw_consumption FROM gas ORDER BY time DESC LIMIT 1",
	).Scan(&consumption, &raw))
	assert.InDelta(t, 0.25*1.02264, consumption, 1e-9)
	assert.Equal(t, 0.25, raw)

	// empty export leaves no table behind
	latest, err := store.Latest(ctx, models.ElectricityExport)
	require.NoError(t, err)
	assert.Equal(t, models.SeriesNotFound, latest.State)

	resp, err := client.Check(ctx, &grpc_health_v1.HealthCheckRequest{Service: "gas"})
	require.NoError(t, err)
	assert.Equal(t, grpc_health_v1.HealthCheckResponse_SERVING, resp.Status)

	// a second cycle only adds what is new and never duplicates
	require.NoError(t, orch.RunCycle(ctx))
	var recount int
	require.NoError(t, db.QueryRow("SELECT count(*) FROM electricity").Scan(&recount))
	assert.LessOrEqual(t, recount-count, 1)
}

func TestSyncCycleResumesFromLatest(t *testing.T) {
	store, _ := setupTestDB(t)
	mockAPI, requested := setupMockAPIServer(t, 100)
	defer mockAPI.Close()

	cfg := testConfig(mockAPI.URL, testDatabaseConfig(t))
	cfg.Meters.Export = config.MeterConfig{}

	latest := time.Now().UTC().Add(-3 * time.Hour).Truncate(time.Second)
	require.NoError(t, store.WritePoints(context.Background(), []models.StoredPoint{{
		Measurement: models.Electricity,
		Time:        latest,
		Fields:      models.PointFields{Consumption: 0.1, RawConsumption: 0.1},
	}}))

	fetcher := api.NewConsumptionFetcher(cfg.API, logger)
	orch, err := ingest.NewOrchestrator(cfg, store, fetcher, logger, metrics.New(prometheus.NewRegistry()))
	require.NoError(t, err)
	require.NoError(t, orch.RunCycle(context.Background()))

	from, ok := requested.Load(api.ElectricityEndpoint("", "1200000000000", "21L0000000"))
	require.True(t, ok)
	assert.True(t, from.(time.Time).Equal(latest), "resumed from %s, want %s", from, latest)
}

func TestCorruptedSeriesIsRebuilt(t *testing.T) {
	store, db := setupTestDB(t)
	mockAPI, _ := setupMockAPIServer(t, 100)
	defer mockAPI.Close()

	_, err := db.Exec("CREATE TABLE gas (time TIMESTAMPTZ PRIMARY KEY, reading TEXT)")
	require.NoError(t, err)
	_, err = db.Exec("INSERT INTO gas (time, reading) VALUES (now(), 'garbage')")
	require.NoError(t, err)

	cfg := testConfig(mockAPI.URL, testDatabaseConfig(t))
	m := metrics.New(prometheus.NewRegistry())
	fetcher := api.NewConsumptionFetcher(cfg.API, logger)
	orch, err := ingest.NewOrchestrator(cfg, store, fetcher, logger, m)
	require.NoError(t, err)
	require.NoError(t, orch.RunCycle(context.Background()))

	latest, err := store.Latest(context.Background(), models.Gas)
	require.NoError(t, err)
	assert.Equal(t, models.SeriesFound, latest.State)
}
