package feature

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/go-spatial/geom"
	"github.com/gridwalk-io/gridwalk/internal/spatial"
)

// GeoJSONReader opens a single GeoJSON FeatureCollection file, streaming
// its "features" array token by token rather than unmarshaling the whole
// document: multi-gigabyte exports are common and the ingestion pipeline
// only ever needs one feature in memory at a time.
type GeoJSONReader struct{}

// NewGeoJSONReader returns a Reader for the "geojson" upload type.
func NewGeoJSONReader() *GeoJSONReader {
	return &GeoJSONReader{}
}

func (r *GeoJSONReader) Accepts(uploadType string) bool {
	return uploadType == "geojson"
}

func (r *GeoJSONReader) Open(ctx context.Context, path string) (Dataset, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("feature: open geojson: %w", err)
	}
	return &geojsonDataset{file: f}, nil
}

type geojsonDataset struct {
	file *os.File
}

func (d *geojsonDataset) Layers(ctx context.Context) ([]Layer, error) {
	dec := json.NewDecoder(d.file)

	if err := expectObjectStart(dec); err != nil {
		return nil, err
	}
	for {
		tok, err := dec.Token()
		if err != nil {
			return nil, fmt.Errorf("feature: geojson: %w", err)
		}
		key, ok := tok.(string)
		if !ok {
			return nil, fmt.Errorf("feature: geojson: expected object key, got %v", tok)
		}
		if key == "features" {
			if err := expectArrayStart(dec); err != nil {
				return nil, err
			}
			layer := &geojsonLayer{dec: dec, file: d.file}
			return []Layer{layer}, nil
		}
		// Skip any sibling value (type, crs, bbox, name, ...) we don't need.
		var discard json.RawMessage
		if err := dec.Decode(&discard); err != nil {
			return nil, fmt.Errorf("feature: geojson: skip %q: %w", key, err)
		}
	}
}

func (d *geojsonDataset) Close() error {
	return d.file.Close()
}

func expectObjectStart(dec *json.Decoder) error {
	tok, err := dec.Token()
	if err != nil {
		return fmt.Errorf("feature: geojson: %w", err)
	}
	if d, ok := tok.(json.Delim); !ok || d != '{' {
		return fmt.Errorf("feature: geojson: expected top-level object, got %v", tok)
	}
	return nil
}

func expectArrayStart(dec *json.Decoder) error {
	tok, err := dec.Token()
	if err != nil {
		return fmt.Errorf("feature: geojson: %w", err)
	}
	if d, ok := tok.(json.Delim); !ok || d != '[' {
		return fmt.Errorf("feature: geojson: expected \"features\" array, got %v", tok)
	}
	return nil
}

// geojsonFeature mirrors one GeoJSON Feature object, decoded one at a
// time off the streaming array.
type geojsonFeature struct {
	Geometry   geojsonGeometry        `json:"geometry"`
	Properties map[string]interface{} `json:"properties"`
}

type geojsonGeometry struct {
	Type        string          `json:"type"`
	Coordinates json.RawMessage `json:"coordinates"`
}

// geojsonLayer presents the single feature collection in a GeoJSON file
// as a Layer. Its field schema is inferred from the first feature's
// properties, since GeoJSON (unlike GeoPackage) carries no catalog.
type geojsonLayer struct {
	dec  *json.Decoder
	file *os.File

	fields    []spatial.FieldDef
	fieldsSet bool
}

func (l *geojsonLayer) Name() string {
	return "features"
}

func (l *geojsonLayer) Fields() []spatial.FieldDef {
	return l.fields
}

func (l *geojsonLayer) Next(ctx context.Context) (*Feature, error) {
	if !l.dec.More() {
		return nil, nil
	}

	var gf geojsonFeature
	if err := l.dec.Decode(&gf); err != nil {
		if err == io.EOF {
			return nil, nil
		}
		return nil, fmt.Errorf("feature: geojson: decode feature: %w", err)
	}

	if !l.fieldsSet {
		l.fields = inferFields(gf.Properties)
		l.fieldsSet = true
	}

	geo, err := decodeGeoJSONGeometry(gf.Geometry.Type, gf.Geometry.Coordinates)
	if err != nil {
		return nil, err
	}
	wkbBytes, err := encodeWKB(geo)
	if err != nil {
		return nil, err
	}

	return &Feature{WKB: wkbBytes, Attrs: gf.Properties}, nil
}

func inferFields(props map[string]interface{}) []spatial.FieldDef {
	fields := make([]spatial.FieldDef, 0, len(props))
	for name, val := range props {
		fields = append(fields, spatial.FieldDef{Name: name, Type: jsonValueFieldType(val)})
	}
	return fields
}

func jsonValueFieldType(val interface{}) spatial.FieldType {
	switch v := val.(type) {
	case bool:
		return spatial.FieldBool
	case float64:
		if v == float64(int64(v)) {
			return spatial.FieldInt
		}
		return spatial.FieldFloat
	default:
		return spatial.FieldString
	}
}

type point2 [2]float64

func decodeGeoJSONGeometry(geomType string, raw json.RawMessage) (geom.Geometry, error) {
	switch geomType {
	case "Point":
		var c point2
		if err := json.Unmarshal(raw, &c); err != nil {
			return nil, fmt.Errorf("feature: geojson: point coordinates: %w", err)
		}
		return geom.Point{c[0], c[1]}, nil

	case "LineString":
		var c []point2
		if err := json.Unmarshal(raw, &c); err != nil {
			return nil, fmt.Errorf("feature: geojson: linestring coordinates: %w", err)
		}
		return geom.LineString(toLine(c)), nil

	case "Polygon":
		var c [][]point2
		if err := json.Unmarshal(raw, &c); err != nil {
			return nil, fmt.Errorf("feature: geojson: polygon coordinates: %w", err)
		}
		return geom.Polygon(toRings(c)), nil

	case "MultiPoint":
		var c []point2
		if err := json.Unmarshal(raw, &c); err != nil {
			return nil, fmt.Errorf("feature: geojson: multipoint coordinates: %w", err)
		}
		return geom.MultiPoint(toLine(c)), nil

	case "MultiLineString":
		var c [][]point2
		if err := json.Unmarshal(raw, &c); err != nil {
			return nil, fmt.Errorf("feature: geojson: multilinestring coordinates: %w", err)
		}
		return geom.MultiLineString(toRings(c)), nil

	case "MultiPolygon":
		var c [][][]point2
		if err := json.Unmarshal(raw, &c); err != nil {
			return nil, fmt.Errorf("feature: geojson: multipolygon coordinates: %w", err)
		}
		polys := make([][][][2]float64, len(c))
		for i, poly := range c {
			polys[i] = toRings(poly)
		}
		return geom.MultiPolygon(polys), nil

	default:
		return nil, fmt.Errorf("feature: geojson: unsupported geometry type %q", geomType)
	}
}

// toLine converts a single ring/line's points into geom's flat point form.
func toLine(points []point2) [][2]float64 {
	out := make([][2]float64, len(points))
	for i, p := range points {
		out[i] = [2]float64{p[0], p[1]}
	}
	return out
}

// toRings converts a list of rings/lines (Polygon's rings, or
// MultiLineString's lines) into geom's nested flat point form.
func toRings(rings [][]point2) [][][2]float64 {
	out := make([][][2]float64, len(rings))
	for i, ring := range rings {
		out[i] = toLine(ring)
	}
	return out
}
