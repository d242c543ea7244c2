package feature

import (
	"bytes"
	"encoding/binary"
	"fmt"

	"github.com/go-spatial/geom"
	"github.com/go-spatial/geom/encoding/wkb"
)

// encodeWKB serializes geo as little-endian WKB, the form spatial.Tx
// expects to hand to ST_GeomFromWKB.
func encodeWKB(geo geom.Geometry) ([]byte, error) {
	var buf bytes.Buffer
	if err := wkb.Encode(&buf, binary.LittleEndian, geo); err != nil {
		return nil, fmt.Errorf("feature: encode wkb: %w", err)
	}
	return buf.Bytes(), nil
}
