package wkb

import (
	"encoding/binary"
	"math"
)

// WKB geometry type constants (ISO SQL/MM specification)
const (
	wkbPoint           = 1
	wkbLineString      = 2
	wkbPolygon         = 3
	wkbMultiLineString = 5
	wkbMultiPolygon    = 6

	// SRID flag for EWKB (PostGIS extended WKB)
	wkbSRIDFlag = 0x20000000
)

// Common SRID constants
const (
	SRID4326 = 4326 // WGS84
	SRID3857 = 3857 // Web Mercator
)

// Encoder encodes assembled relation geometries to EWKB: little-endian
// with the SRID embedded in the top-level geometry. The buffer is reused
// across calls, so callers must copy the returned bytes before the next
// Encode call.
type Encoder struct {
	buf  []byte
	srid uint32
}

// NewEncoder creates an encoder with the given SRID and a pre-allocated
// buffer.
func NewEncoder(srid int, initialSize int) *Encoder {
	return &Encoder{
		buf:  make([]byte, 0, initialSize),
		srid: uint32(srid),
	}
}

// SRID returns the encoder's SRID.
func (e *Encoder) SRID() int {
	return int(e.srid)
}

// EncodePoint encodes a single point.
func (e *Encoder) EncodePoint(lon, lat float64) []byte {
	e.reset(25)
	e.header(wkbPoint)
	e.appendFloat64(lon)
	e.appendFloat64(lat)
	return e.buf
}

// EncodeMultiLineString encodes one linestring per member line. Each line
// is a flat [lon1, lat1, lon2, lat2, ...] array. Used for route relations.
func (e *Encoder) EncodeMultiLineString(lines [][]float64) []byte {
	if len(lines) == 0 {
		return nil
	}

	total := 0
	for _, line := range lines {
		total += len(line) / 2
	}
	e.reset(13 + len(lines)*9 + total*16)

	e.header(wkbMultiLineString)
	e.appendUint32(uint32(len(lines)))
	for _, line := range lines {
		// Embedded geometries carry no SRID of their own.
		e.buf = append(e.buf, 0x01)
		e.appendUint32(wkbLineString)
		e.appendCoords(line)
	}
	return e.buf
}

// EncodePolygon encodes a polygon from its rings. rings[0] is the outer
// ring, the rest are holes. Rings must be closed (first point == last).
func (e *Encoder) EncodePolygon(rings [][]float64) []byte {
	if len(rings) == 0 {
		return nil
	}

	total := 0
	for _, ring := range rings {
		total += len(ring) / 2
	}
	e.reset(13 + len(rings)*4 + total*16)

	e.header(wkbPolygon)
	e.appendRings(rings)
	return e.buf
}

// EncodeMultiPolygon encodes a multipolygon. Each polygon is a ring set as
// in EncodePolygon. Used for multipolygon and boundary relations.
func (e *Encoder) EncodeMultiPolygon(polygons [][][]float64) []byte {
	if len(polygons) == 0 {
		return nil
	}

	totalRings, totalPoints := 0, 0
	for _, poly := range polygons {
		totalRings += len(poly)
		for _, ring := range poly {
			totalPoints += len(ring) / 2
		}
	}
	e.reset(13 + len(polygons)*9 + totalRings*4 + totalPoints*16)

	e.header(wkbMultiPolygon)
	e.appendUint32(uint32(len(polygons)))
	for _, poly := range polygons {
		e.buf = append(e.buf, 0x01)
		e.appendUint32(wkbPolygon)
		e.appendRings(poly)
	}
	return e.buf
}

func (e *Encoder) reset(capNeeded int) {
	if cap(e.buf) < capNeeded {
		e.buf = make([]byte, 0, capNeeded)
	}
	e.buf = e.buf[:0]
}

// header writes byte order, the SRID-flagged geometry type and the SRID.
func (e *Encoder) header(geomType uint32) {
	e.buf = append(e.buf, 0x01) // little-endian
	e.appendUint32(geomType | wkbSRIDFlag)
	e.appendUint32(e.srid)
}

func (e *Encoder) appendRings(rings [][]float64) {
	e.appendUint32(uint32(len(rings)))
	for _, ring := range rings {
		e.appendCoords(ring)
	}
}

// appendCoords writes a point count followed by (lon, lat) pairs from a
// flat coordinate array.
func (e *Encoder) appendCoords(coords []float64) {
	e.appendUint32(uint32(len(coords) / 2))
	for i := 0; i+1 < len(coords); i += 2 {
		e.appendFloat64(coords[i])
		e.appendFloat64(coords[i+1])
	}
}

func (e *Encoder) appendUint32(v uint32) {
	e.buf = binary.LittleEndian.AppendUint32(e.buf, v)
}

func (e *Encoder) appendFloat64(v float64) {
	e.buf = binary.LittleEndian.AppendUint64(e.buf, math.Float64bits(v))
}
