package spatial

import (
	"context"
	"fmt"
	"strings"

	"github.com/go-spatial/geom"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// webMercatorSRID is the projection PostGIS stores and renders tiles in.
// Geometries are reprojected into it at insert time so GetTile never has
// to transform on read.
const webMercatorSRID = 3857

// tileExtentPx is the pixel extent ST_AsMVTGeom quantizes coordinates
// into, matching the Mapbox Vector Tile spec default.
const tileExtentPx = 4096

// PostGIS is a Store backed by a PostGIS database. Each layer gets its
// own table in layerSchema named "layer_<id>" so that DropLayer is a
// single DROP TABLE and GetTile never has to filter a shared table by
// layer id.
type PostGIS struct {
	pool        *pgxpool.Pool
	layerSchema string
}

// Config bounds PostGIS's pool, independent from the MetadataStore's pool
// sizing (POSTGIS_MAX_CONNECTIONS vs DATABASE_MAX_CONNECTIONS).
type Config struct {
	DSN         string
	MaxConns    int32
	LayerSchema string
}

// Open establishes a pgx connection pool against cfg.DSN.
func Open(ctx context.Context, cfg Config) (*PostGIS, error) {
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("spatial: parse dsn: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("spatial: connect: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("spatial: ping: %w", err)
	}

	schema := cfg.LayerSchema
	if schema == "" {
		schema = "gridwalk_layer_data"
	}
	if _, err := pool.Exec(ctx, fmt.Sprintf(`CREATE SCHEMA IF NOT EXISTS %s`, pgx.Identifier{schema}.Sanitize())); err != nil {
		pool.Close()
		return nil, fmt.Errorf("spatial: ensure schema: %w", err)
	}

	return &PostGIS{pool: pool, layerSchema: schema}, nil
}

func (p *PostGIS) tableIdent(id uuid.UUID) pgx.Identifier {
	return pgx.Identifier{p.layerSchema, tableName(id)}
}

// tableName derives the feature table's bare name from a layer id.
// Hyphens are stripped since they are not valid in an unquoted Postgres
// identifier and quoting consistently is simpler than allowing them.
func tableName(id uuid.UUID) string {
	return "layer_" + strings.ReplaceAll(id.String(), "-", "_")
}

func columnType(t FieldType) string {
	switch t {
	case FieldInt:
		return "bigint"
	case FieldFloat:
		return "double precision"
	case FieldBool:
		return "boolean"
	default:
		return "text"
	}
}

func (p *PostGIS) CreateLayer(ctx context.Context, id uuid.UUID, fields []FieldDef) error {
	table := p.tableIdent(id).Sanitize()

	var cols strings.Builder
	for _, f := range fields {
		fmt.Fprintf(&cols, ", %s %s", pgx.Identifier{f.Name}.Sanitize(), columnType(f.Type))
	}

	query := fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %s (
			fid bigserial PRIMARY KEY,
			geom geometry(Geometry, %d) NOT NULL%s
		)`, table, webMercatorSRID, cols.String())

	if _, err := p.pool.Exec(ctx, query); err != nil {
		return fmt.Errorf("spatial: create layer table: %w", err)
	}

	idx := fmt.Sprintf(`CREATE INDEX IF NOT EXISTS %s ON %s USING GIST (geom)`,
		pgx.Identifier{tableName(id) + "_geom_idx"}.Sanitize(), table)
	if _, err := p.pool.Exec(ctx, idx); err != nil {
		return fmt.Errorf("spatial: create geom index: %w", err)
	}
	return nil
}

func (p *PostGIS) DropLayer(ctx context.Context, id uuid.UUID) error {
	query := fmt.Sprintf(`DROP TABLE IF EXISTS %s`, p.tableIdent(id).Sanitize())
	if _, err := p.pool.Exec(ctx, query); err != nil {
		return fmt.Errorf("spatial: drop layer: %w", err)
	}
	return nil
}

func (p *PostGIS) BeginTx(ctx context.Context, id uuid.UUID) (Tx, error) {
	tx, err := p.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("spatial: begin tx: %w", err)
	}
	return &postgisTx{tx: tx, table: p.tableIdent(id).Sanitize()}, nil
}

func (p *PostGIS) GetTile(ctx context.Context, id uuid.UUID, z, x, y int) ([]byte, error) {
	if !validTile(z, x, y) {
		return nil, fmt.Errorf("spatial: invalid tile %d/%d/%d", z, x, y)
	}
	ext := tileExtent(z, x, y)
	table := p.tableIdent(id).Sanitize()
	layerName := tableName(id)

	query := fmt.Sprintf(`
		SELECT ST_AsMVT(q, '%s', %d, 'geom')
		FROM (
			SELECT ST_AsMVTGeom(geom, ST_MakeEnvelope($1, $2, $3, $4, %d), %d, 0, false) AS geom, %s
			FROM %s
			WHERE geom && ST_MakeEnvelope($1, $2, $3, $4, %d)
		) AS q`,
		layerName, tileExtentPx, webMercatorSRID, tileExtentPx, "fid", table, webMercatorSRID)

	var tile []byte
	err := p.pool.QueryRow(ctx, query, ext[0], ext[1], ext[2], ext[3]).Scan(&tile)
	if err != nil {
		if isUndefinedTable(err) {
			return nil, ErrLayerNotFound
		}
		return nil, fmt.Errorf("spatial: get tile: %w", err)
	}
	return tile, nil
}

func (p *PostGIS) Extent(ctx context.Context, id uuid.UUID) (geom.Extent, error) {
	table := p.tableIdent(id).Sanitize()
	query := fmt.Sprintf(`SELECT ST_XMin(e), ST_YMin(e), ST_XMax(e), ST_YMax(e) FROM (SELECT ST_Extent(geom) AS e FROM %s) AS q`, table)

	var ext geom.Extent
	err := p.pool.QueryRow(ctx, query).Scan(&ext[0], &ext[1], &ext[2], &ext[3])
	if err != nil {
		if isUndefinedTable(err) {
			return geom.Extent{}, ErrLayerNotFound
		}
		return geom.Extent{}, fmt.Errorf("spatial: extent: %w", err)
	}
	return ext, nil
}

func (p *PostGIS) Close() error {
	p.pool.Close()
	return nil
}

// isUndefinedTable reports whether err is Postgres's 42P01 (the table for
// a layer that was never successfully ingested, or was already dropped).
func isUndefinedTable(err error) bool {
	return strings.Contains(err.Error(), "42P01") || strings.Contains(err.Error(), "does not exist")
}

type postgisTx struct {
	tx    pgx.Tx
	table string

	batch   *pgx.Batch
	pending int
}

const insertBatchSize = 500

func (t *postgisTx) InsertFeature(ctx context.Context, wkb []byte, attrs map[string]any) error {
	if t.batch == nil {
		t.batch = &pgx.Batch{}
	}

	cols := []string{"geom"}
	placeholders := []string{fmt.Sprintf("ST_Transform(ST_SetSRID(ST_GeomFromWKB($1), 4326), %d)", webMercatorSRID)}
	args := []any{wkb}

	i := 2
	for name, val := range attrs {
		cols = append(cols, pgx.Identifier{name}.Sanitize())
		placeholders = append(placeholders, fmt.Sprintf("$%d", i))
		args = append(args, val)
		i++
	}

	query := fmt.Sprintf(`INSERT INTO %s (%s) VALUES (%s)`,
		t.table, strings.Join(cols, ", "), strings.Join(placeholders, ", "))
	t.batch.Queue(query, args...)
	t.pending++

	if t.pending >= insertBatchSize {
		return t.flush(ctx)
	}
	return nil
}

func (t *postgisTx) flush(ctx context.Context) error {
	if t.batch == nil || t.pending == 0 {
		return nil
	}
	results := t.tx.SendBatch(ctx, t.batch)
	for i := 0; i < t.pending; i++ {
		if _, err := results.Exec(); err != nil {
			results.Close()
			return fmt.Errorf("spatial: batch insert: %w", err)
		}
	}
	if err := results.Close(); err != nil {
		return fmt.Errorf("spatial: close batch: %w", err)
	}
	t.batch = nil
	t.pending = 0
	return nil
}

func (t *postgisTx) Commit(ctx context.Context) error {
	if err := t.flush(ctx); err != nil {
		_ = t.tx.Rollback(ctx)
		return err
	}
	if err := t.tx.Commit(ctx); err != nil {
		return fmt.Errorf("spatial: commit: %w", err)
	}
	return nil
}

func (t *postgisTx) Rollback(ctx context.Context) error {
	err := t.tx.Rollback(ctx)
	if err != nil && err != pgx.ErrTxClosed {
		return fmt.Errorf("spatial: rollback: %w", err)
	}
	return nil
}
