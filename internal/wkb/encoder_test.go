package wkb

import (
	"encoding/binary"
	"math"
	"testing"
)

func TestEncodePoint(t *testing.T) {
	e := NewEncoder(SRID4326, 64)
	b := e.EncodePoint(7.4246, 43.7384)

	if len(b) != 25 {
		t.Fatalf("point length = %d, want 25", len(b))
	}
	if b[0] != 0x01 {
		t.Error("byte order must be little-endian")
	}
	if got := binary.LittleEndian.Uint32(b[1:]); got != wkbPoint|wkbSRIDFlag {
		t.Errorf("type = 0x%x, want SRID-flagged point", got)
	}
	if got := binary.LittleEndian.Uint32(b[5:]); got != SRID4326 {
		t.Errorf("srid = %d, want %d", got, SRID4326)
	}
	lon := math.Float64frombits(binary.LittleEndian.Uint64(b[9:]))
	lat := math.Float64frombits(binary.LittleEndian.Uint64(b[17:]))
	if lon != 7.4246 || lat != 43.7384 {
		t.Errorf("coords = (%f, %f), want (7.4246, 43.7384)", lon, lat)
	}
}

func TestEncodePolygonWithHole(t *testing.T) {
	e := NewEncoder(SRID4326, 256)
	outer := []float64{0, 0, 4, 0, 4, 4, 0, 4, 0, 0}
	hole := []float64{1, 1, 2, 1, 2, 2, 1, 2, 1, 1}

	b := e.EncodePolygon([][]float64{outer, hole})

	if got := binary.LittleEndian.Uint32(b[1:]); got != wkbPolygon|wkbSRIDFlag {
		t.Errorf("type = 0x%x, want SRID-flagged polygon", got)
	}
	if got := binary.LittleEndian.Uint32(b[9:]); got != 2 {
		t.Errorf("ring count = %d, want 2", got)
	}
	if got := binary.LittleEndian.Uint32(b[13:]); got != 5 {
		t.Errorf("outer ring point count = %d, want 5", got)
	}
	// 1 + 4 + 4 + 4 + (4 + 5*16) + (4 + 5*16) bytes total
	if want := 13 + 2*(4+5*16); len(b) != want {
		t.Errorf("polygon length = %d, want %d", len(b), want)
	}
}

func TestEncodeMultiPolygon(t *testing.T) {
	e := NewEncoder(SRID3857, 256)
	ring := []float64{0, 0, 1, 0, 1, 1, 0, 0}

	b := e.EncodeMultiPolygon([][][]float64{{ring}, {ring}})

	if got := binary.LittleEndian.Uint32(b[1:]); got != wkbMultiPolygon|wkbSRIDFlag {
		t.Errorf("type = 0x%x, want SRID-flagged multipolygon", got)
	}
	if got := binary.LittleEndian.Uint32(b[5:]); got != SRID3857 {
		t.Errorf("srid = %d, want %d", got, SRID3857)
	}
	if got := binary.LittleEndian.Uint32(b[9:]); got != 2 {
		t.Errorf("polygon count = %d, want 2", got)
	}
	// Embedded polygon headers must not carry the SRID flag.
	if got := binary.LittleEndian.Uint32(b[14:]); got != wkbPolygon {
		t.Errorf("embedded type = 0x%x, want plain polygon", got)
	}
}

func TestEncodeMultiLineString(t *testing.T) {
	e := NewEncoder(SRID4326, 128)
	b := e.EncodeMultiLineString([][]float64{
		{0, 0, 1, 1},
		{1, 1, 2, 2, 3, 3},
	})

	if got := binary.LittleEndian.Uint32(b[1:]); got != wkbMultiLineString|wkbSRIDFlag {
		t.Errorf("type = 0x%x, want SRID-flagged multilinestring", got)
	}
	if got := binary.LittleEndian.Uint32(b[9:]); got != 2 {
		t.Errorf("line count = %d, want 2", got)
	}
	if got := binary.LittleEndian.Uint32(b[18:]); got != 2 {
		t.Errorf("first line point count = %d, want 2", got)
	}
}

func TestEmptyGeometries(t *testing.T) {
	e := NewEncoder(SRID4326, 16)
	if b := e.EncodeMultiPolygon(nil); b != nil {
		t.Error("empty multipolygon should encode to nil")
	}
	if b := e.EncodePolygon(nil); b != nil {
		t.Error("empty polygon should encode to nil")
	}
	if b := e.EncodeMultiLineString(nil); b != nil {
		t.Error("empty multilinestring should encode to nil")
	}
}
