package feature

import (
	"context"
	"database/sql"
	"fmt"
	"sync"

	"github.com/go-spatial/geom/encoding/gpkg"
	"github.com/go-spatial/geom/encoding/wkb"
	"github.com/gridwalk-io/gridwalk/internal/spatial"
	"github.com/jmoiron/sqlx"
	_ "github.com/mattn/go-sqlite3"
)

// sqliteDriverName is the database/sql driver name that the blank import
// of mattn/go-sqlite3 registers; no driver is registered under any other
// name.
const sqliteDriverName = "sqlite3"

// GeoPackageReader opens OGC GeoPackage (.gpkg) files, a profile of
// SQLite that stores geometry as WKB wrapped in a small GeoPackage
// binary header (GP magic, version, envelope, SRS id).
type GeoPackageReader struct{}

// NewGeoPackageReader returns a Reader for the "geopackage" upload type.
func NewGeoPackageReader() *GeoPackageReader {
	return &GeoPackageReader{}
}

func (r *GeoPackageReader) Accepts(uploadType string) bool {
	return uploadType == "geopackage" || uploadType == "gpkg"
}

func (r *GeoPackageReader) Open(ctx context.Context, path string) (Dataset, error) {
	db, err := sqlx.ConnectContext(ctx, sqliteDriverName, path)
	if err != nil {
		return nil, fmt.Errorf("feature: open geopackage: %w", err)
	}
	return &gpkgDataset{db: db}, nil
}

type gpkgDataset struct {
	db *sqlx.DB
}

// featureTableRow mirrors gpkg_contents joined with gpkg_geometry_columns,
// the GeoPackage catalog tables every conformant file carries.
type featureTableRow struct {
	TableName    string `db:"table_name"`
	ColumnName   string `db:"column_name"`
	GeometryType string `db:"geometry_type_name"`
}

func (d *gpkgDataset) Layers(ctx context.Context) ([]Layer, error) {
	var rows []featureTableRow
	query := `
		SELECT c.table_name AS table_name, g.column_name AS column_name, g.geometry_type_name AS geometry_type_name
		FROM gpkg_contents c
		JOIN gpkg_geometry_columns g ON g.table_name = c.table_name
		WHERE c.data_type = 'features'`
	if err := d.db.SelectContext(ctx, &rows, query); err != nil {
		return nil, fmt.Errorf("feature: read gpkg_contents: %w", err)
	}

	layers := make([]Layer, 0, len(rows))
	for _, row := range rows {
		fields, err := d.readFields(ctx, row.TableName, row.ColumnName)
		if err != nil {
			return nil, err
		}
		layers = append(layers, &gpkgLayer{db: d.db, table: row.TableName, geomCol: row.ColumnName, fields: fields})
	}
	return layers, nil
}

func (d *gpkgDataset) readFields(ctx context.Context, table, geomCol string) ([]spatial.FieldDef, error) {
	rows, err := d.db.QueryxContext(ctx, fmt.Sprintf(`PRAGMA table_info(%q)`, table))
	if err != nil {
		return nil, fmt.Errorf("feature: read table_info(%s): %w", table, err)
	}
	defer rows.Close()

	var fields []spatial.FieldDef
	for rows.Next() {
		var (
			cid        int
			name       string
			colType    string
			notNull    int
			defaultVal sql.NullString
			pk         int
		)
		if err := rows.Scan(&cid, &name, &colType, &notNull, &defaultVal, &pk); err != nil {
			return nil, fmt.Errorf("feature: scan table_info: %w", err)
		}
		if name == geomCol || pk == 1 {
			continue
		}
		fields = append(fields, spatial.FieldDef{Name: name, Type: sqliteColumnFieldType(colType)})
	}
	return fields, rows.Err()
}

func sqliteColumnFieldType(colType string) spatial.FieldType {
	switch colType {
	case "INTEGER", "BIGINT", "MEDIUMINT", "SMALLINT", "TINYINT":
		return spatial.FieldInt
	case "REAL", "DOUBLE", "FLOAT":
		return spatial.FieldFloat
	case "BOOLEAN", "BOOL":
		return spatial.FieldBool
	default:
		return spatial.FieldString
	}
}

func (d *gpkgDataset) Close() error {
	return d.db.Close()
}

type gpkgLayer struct {
	db      *sqlx.DB
	table   string
	geomCol string
	fields  []spatial.FieldDef

	once sync.Once
	rows *sqlx.Rows
	err  error
}

func (l *gpkgLayer) Name() string {
	return l.table
}

func (l *gpkgLayer) Fields() []spatial.FieldDef {
	return l.fields
}

func (l *gpkgLayer) openRows(ctx context.Context) {
	cols := make([]string, 0, len(l.fields)+1)
	cols = append(cols, fmt.Sprintf("%q", l.geomCol))
	for _, f := range l.fields {
		cols = append(cols, fmt.Sprintf("%q", f.Name))
	}
	query := fmt.Sprintf(`SELECT %s FROM %q`, joinColumns(cols), l.table)
	l.rows, l.err = l.db.QueryxContext(ctx, query)
}

func joinColumns(cols []string) string {
	out := cols[0]
	for _, c := range cols[1:] {
		out += ", " + c
	}
	return out
}

// Next decodes the GeoPackage binary envelope header off the front of
// the geometry blob before handing the remaining bytes to the WKB
// decoder, per the GeoPackage spec's geometry encoding (GP-prefixed
// header, then standard WKB).
func (l *gpkgLayer) Next(ctx context.Context) (*Feature, error) {
	l.once.Do(func() { l.openRows(ctx) })
	if l.err != nil {
		return nil, fmt.Errorf("feature: query %s: %w", l.table, l.err)
	}

	if !l.rows.Next() {
		if err := l.rows.Err(); err != nil {
			return nil, fmt.Errorf("feature: iterate %s: %w", l.table, err)
		}
		return nil, l.rows.Close()
	}

	cols, err := l.rows.Columns()
	if err != nil {
		return nil, fmt.Errorf("feature: columns: %w", err)
	}
	vals := make([]any, len(cols))
	ptrs := make([]any, len(cols))
	for i := range vals {
		ptrs[i] = &vals[i]
	}
	if err := l.rows.Scan(ptrs...); err != nil {
		return nil, fmt.Errorf("feature: scan: %w", err)
	}

	geomBlob, ok := vals[0].([]byte)
	if !ok {
		return nil, fmt.Errorf("feature: %s.%s: expected blob geometry", l.table, l.geomCol)
	}
	header, err := gpkg.NewBinaryHeader(geomBlob)
	if err != nil {
		return nil, fmt.Errorf("feature: decode gpkg header: %w", err)
	}
	geo, err := wkb.DecodeBytes(geomBlob[header.Size():])
	if err != nil {
		return nil, fmt.Errorf("feature: decode wkb: %w", err)
	}

	var wkbOut []byte
	if wkbOut, err = encodeWKB(geo); err != nil {
		return nil, err
	}

	attrs := make(map[string]any, len(l.fields))
	for i, f := range l.fields {
		attrs[f.Name] = vals[i+1]
	}
	return &Feature{WKB: wkbOut, Attrs: attrs}, nil
}
