package layer

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
)

// PostgresStore is a Store backed by a Postgres table in the configured
// metadata schema, named "layers". Rows are scanned with sqlx using the
// db struct tags on Layer, the Go analogue of the sqlx::FromRow
// implementation this type is grounded on.
type PostgresStore struct {
	db     *sqlx.DB
	schema string
}

// OpenPostgresStore opens a connection pool against dsn and bounds it to
// maxConns. schema names the namespace the "layers" table lives in
// (DATABASE_SCHEMA, default "public").
func OpenPostgresStore(ctx context.Context, dsn string, maxConns int, schema string) (*PostgresStore, error) {
	db, err := sqlx.ConnectContext(ctx, "postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("layer: connect: %w", err)
	}
	db.SetMaxOpenConns(maxConns)

	store := &PostgresStore{db: db, schema: schema}
	if err := store.ensureSchema(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return store, nil
}

func (s *PostgresStore) qualifiedTable() string {
	return fmt.Sprintf("%q.layers", s.schema)
}

// ensureSchema creates the layers table if it does not already exist. Full
// migration execution is out of scope (spec.md §1); this is the minimal
// bootstrap the core needs to be runnable standalone.
func (s *PostgresStore) ensureSchema(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, fmt.Sprintf(`
		CREATE SCHEMA IF NOT EXISTS %q;
		CREATE TABLE IF NOT EXISTS %s (
			id uuid PRIMARY KEY,
			status text NOT NULL,
			name text NOT NULL,
			upload_type text,
			total_size bigint,
			current_offset bigint NOT NULL,
			created_at timestamptz NOT NULL,
			updated_at timestamptz NOT NULL
		)`, s.schema, s.qualifiedTable()))
	if err != nil {
		return fmt.Errorf("layer: ensure schema: %w", err)
	}
	return nil
}

func (s *PostgresStore) Save(ctx context.Context, l *Layer) error {
	query := fmt.Sprintf(`
		INSERT INTO %s (id, status, name, upload_type, total_size, current_offset, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (id) DO UPDATE SET
			status = EXCLUDED.status,
			name = EXCLUDED.name,
			upload_type = EXCLUDED.upload_type,
			total_size = EXCLUDED.total_size,
			current_offset = EXCLUDED.current_offset,
			updated_at = EXCLUDED.updated_at`, s.qualifiedTable())

	_, err := s.db.ExecContext(ctx, query,
		l.ID, string(l.Status), l.Name, l.UploadType, l.TotalSize, l.CurrentOffset, l.CreatedAt, l.UpdatedAt)
	if err != nil {
		return fmt.Errorf("layer: save: %w", err)
	}
	return nil
}

func (s *PostgresStore) Get(ctx context.Context, id uuid.UUID) (*Layer, error) {
	query := fmt.Sprintf(`SELECT * FROM %s WHERE id = $1`, s.qualifiedTable())

	var row layerRow
	if err := s.db.GetContext(ctx, &row, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("layer: get: %w", err)
	}
	return row.toLayer()
}

func (s *PostgresStore) List(ctx context.Context, limit, offset int) ([]*Layer, error) {
	if limit <= 0 {
		limit = 50
	}
	query := fmt.Sprintf(`SELECT * FROM %s ORDER BY created_at DESC, id DESC LIMIT $1 OFFSET $2`, s.qualifiedTable())

	var rows []layerRow
	if err := s.db.SelectContext(ctx, &rows, query, limit, offset); err != nil {
		return nil, fmt.Errorf("layer: list: %w", err)
	}

	layers := make([]*Layer, 0, len(rows))
	for _, r := range rows {
		l, err := r.toLayer()
		if err != nil {
			return nil, err
		}
		layers = append(layers, l)
	}
	return layers, nil
}

// layerRow is the sqlx scan target. Status is scanned as a raw string so
// an unrecognized value surfaces as ErrDecode instead of a zero Status.
type layerRow struct {
	ID            uuid.UUID `db:"id"`
	Status        string    `db:"status"`
	Name          string    `db:"name"`
	UploadType    *string   `db:"upload_type"`
	TotalSize     *int64    `db:"total_size"`
	CurrentOffset int64     `db:"current_offset"`
	CreatedAt     time.Time `db:"created_at"`
	UpdatedAt     time.Time `db:"updated_at"`
}

func (r layerRow) toLayer() (*Layer, error) {
	status := Status(r.Status)
	if !status.Valid() {
		return nil, fmt.Errorf("%w: unrecognized status %q", ErrDecode, r.Status)
	}
	return &Layer{
		ID:            r.ID,
		Status:        status,
		Name:          r.Name,
		UploadType:    r.UploadType,
		TotalSize:     r.TotalSize,
		CurrentOffset: r.CurrentOffset,
		CreatedAt:     r.CreatedAt,
		UpdatedAt:     r.UpdatedAt,
	}, nil
}
