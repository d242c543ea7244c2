// Package config loads the service's environment-variable configuration
// and wires up the concrete stores it names, mirroring
// original_source/src/config.rs's Config::from_env and AppState::new.
package config

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/gridwalk-io/gridwalk/internal/chunkstore"
	"github.com/gridwalk-io/gridwalk/internal/feature"
	"github.com/gridwalk-io/gridwalk/internal/ingest"
	"github.com/gridwalk-io/gridwalk/internal/layer"
	"github.com/gridwalk-io/gridwalk/internal/metrics"
	"github.com/gridwalk-io/gridwalk/internal/spatial"
	"github.com/gridwalk-io/gridwalk/internal/tilehandler"
	"github.com/gridwalk-io/gridwalk/internal/upload"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
)

// Config is every environment-variable-driven setting the service reads
// at startup. Field names follow the env var they come from.
type Config struct {
	DatabaseUser           string
	DatabasePassword       string
	DatabaseHost           string
	DatabasePort           int
	DatabaseName           string
	DatabaseSchema         string
	DatabaseMaxConnections int
	DatabaseDisableSSL     bool
	PostGISMaxConnections  int
	LayerSchema            string
	TempDataPath           string
	RedisAddr              string
	TileCacheSize          int
	TileCacheTTL           time.Duration
	ListenAddr             string
	MetricsPath            string
}

// FromEnv reads Config from the process environment, applying the same
// defaults as config.rs (DATABASE_PORT 5432, DATABASE_MAX_CONNECTIONS 20,
// POSTGIS_MAX_CONNECTIONS 10, DATABASE_SCHEMA "public", LAYER_SCHEMA
// "gridwalk_layer_data", TEMP_DATA_PATH "/tmp").
func FromEnv() (*Config, error) {
	cfg := &Config{
		DatabaseUser:     os.Getenv("DATABASE_USER"),
		DatabasePassword: os.Getenv("DATABASE_PASSWORD"),
		DatabaseHost:     os.Getenv("DATABASE_HOST"),
		DatabaseName:     os.Getenv("DATABASE_NAME"),
		DatabaseSchema:   getenvDefault("DATABASE_SCHEMA", "public"),
		LayerSchema:      getenvDefault("LAYER_SCHEMA", "gridwalk_layer_data"),
		TempDataPath:     getenvDefault("TEMP_DATA_PATH", "/tmp"),
		RedisAddr:        os.Getenv("REDIS_ADDR"),
		ListenAddr:       getenvDefault("LISTEN_ADDR", ":8080"),
		MetricsPath:      getenvDefault("METRICS_PATH", "/metrics"),
	}

	for name, required := range map[string]*string{
		"DATABASE_USER":     &cfg.DatabaseUser,
		"DATABASE_PASSWORD": &cfg.DatabasePassword,
		"DATABASE_HOST":     &cfg.DatabaseHost,
		"DATABASE_NAME":     &cfg.DatabaseName,
	} {
		if *required == "" {
			return nil, fmt.Errorf("config: missing environment variable: %s", name)
		}
	}

	port, err := intEnvDefault("DATABASE_PORT", 5432)
	if err != nil {
		return nil, err
	}
	cfg.DatabasePort = port

	maxAppConns, err := intEnvDefault("DATABASE_MAX_CONNECTIONS", 20)
	if err != nil {
		return nil, err
	}
	cfg.DatabaseMaxConnections = maxAppConns

	maxPostGISConns, err := intEnvDefault("POSTGIS_MAX_CONNECTIONS", 10)
	if err != nil {
		return nil, err
	}
	cfg.PostGISMaxConnections = maxPostGISConns

	cacheSize, err := intEnvDefault("TILE_CACHE_SIZE", 10000)
	if err != nil {
		return nil, err
	}
	cfg.TileCacheSize = cacheSize

	cfg.DatabaseDisableSSL = getenvDefault("DATABASE_DISABLE_SSL", "false") == "true"
	cfg.TileCacheTTL = time.Hour

	if err := os.MkdirAll(cfg.TempDataPath, 0755); err != nil {
		return nil, fmt.Errorf("config: create TEMP_DATA_PATH %q: %w", cfg.TempDataPath, err)
	}

	return cfg, nil
}

func getenvDefault(name, def string) string {
	if v := os.Getenv(name); v != "" {
		return v
	}
	return def
}

func intEnvDefault(name string, def int) (int, error) {
	v := os.Getenv(name)
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("config: invalid value for %s: %w", name, err)
	}
	return n, nil
}

// MetadataDSN builds the lib/pq connection string for the MetadataStore.
func (c *Config) MetadataDSN() string {
	return c.dsn(c.DatabaseSchema)
}

// SpatialDSN builds the pgx connection string for the SpatialStore.
func (c *Config) SpatialDSN() string {
	return c.dsn(c.LayerSchema)
}

func (c *Config) dsn(schema string) string {
	sslmode := "require"
	if c.DatabaseDisableSSL {
		sslmode = "disable"
	}
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s&search_path=%s",
		c.DatabaseUser, c.DatabasePassword, c.DatabaseHost, c.DatabasePort, c.DatabaseName, sslmode, schema)
}

// App bundles every wired-up component the HTTP layer needs.
type App struct {
	Layers       layer.Store
	Spatial      spatial.Store
	Chunks       *chunkstore.Store
	Locker       *chunkstore.Locker
	StateMachine *upload.StateMachine
	TileHandler  *tilehandler.Handler
	Metrics      *metrics.Metrics
}

// Build wires stores, the upload state machine, the ingestion pipeline,
// and the tile handler into a ready-to-serve App, the Go analogue of
// AppState::new.
func Build(ctx context.Context, cfg *Config) (*App, error) {
	metadataStore, err := layer.OpenPostgresStore(ctx, cfg.MetadataDSN(), cfg.DatabaseMaxConnections, cfg.DatabaseSchema)
	if err != nil {
		return nil, err
	}

	spatialStore, err := spatial.Open(ctx, spatial.Config{
		DSN:         cfg.SpatialDSN(),
		MaxConns:    int32(cfg.PostGISMaxConnections),
		LayerSchema: cfg.LayerSchema,
	})
	if err != nil {
		return nil, err
	}

	var redisClient *redis.Client
	if cfg.RedisAddr != "" {
		redisClient = redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		if err := redisClient.Ping(ctx).Err(); err != nil {
			return nil, fmt.Errorf("config: redis ping: %w", err)
		}
	}
	cache, err := spatial.NewTileCache(cfg.TileCacheSize, redisClient, cfg.TileCacheTTL)
	if err != nil {
		return nil, err
	}

	chunks := chunkstore.New(cfg.TempDataPath)
	locker := chunkstore.NewLocker()

	readers := feature.NewRegistry(
		feature.NewGeoPackageReader(),
		feature.NewGeoJSONReader(),
	)

	metricsCollector := metrics.New()
	if err := metricsCollector.Register(prometheus.DefaultRegisterer); err != nil {
		return nil, fmt.Errorf("config: register metrics: %w", err)
	}

	pipeline := &ingest.Pipeline{
		Readers: readers,
		Spatial: spatialStore,
		Chunks:  chunks,
		Layers:  metadataStore,
		Metrics: metricsCollector,
	}

	sm := &upload.StateMachine{
		Layers: metadataStore,
		Chunks: chunks,
		Locker: locker,
		Ingest: pipeline,
	}

	return &App{
		Layers:       metadataStore,
		Spatial:      spatialStore,
		Chunks:       chunks,
		Locker:       locker,
		StateMachine: sm,
		TileHandler:  &tilehandler.Handler{Spatial: spatialStore, Cache: cache, Metrics: metricsCollector},
		Metrics:      metricsCollector,
	}, nil
}
