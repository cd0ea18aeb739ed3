package assembler

import (
	"math"
	"testing"
)

func TestBuildRingsSingleClosedWay(t *testing.T) {
	rings, unclosed := BuildRings([][]int64{{1, 2, 3, 1}})
	if unclosed != 0 {
		t.Errorf("unclosed = %d, want 0", unclosed)
	}
	if len(rings) != 1 {
		t.Fatalf("ring count = %d, want 1", len(rings))
	}
	want := []int64{1, 2, 3, 1}
	for i, id := range want {
		if rings[0][i] != id {
			t.Fatalf("ring = %v, want %v", rings[0], want)
		}
	}
}

func TestBuildRingsJoinsSegments(t *testing.T) {
	// Two half-rings sharing endpoints 1 and 3.
	rings, unclosed := BuildRings([][]int64{
		{1, 2, 3},
		{3, 4, 1},
	})
	if unclosed != 0 {
		t.Errorf("unclosed = %d, want 0", unclosed)
	}
	if len(rings) != 1 {
		t.Fatalf("ring count = %d, want 1", len(rings))
	}
	if got := rings[0]; len(got) != 5 || got[0] != got[len(got)-1] {
		t.Errorf("joined ring = %v, want closed ring of 5 ids", got)
	}
}

func TestBuildRingsReversesSegments(t *testing.T) {
	// Second segment runs 1->4->3, so it must be walked backwards.
	rings, unclosed := BuildRings([][]int64{
		{1, 2, 3},
		{1, 4, 3},
	})
	if unclosed != 0 {
		t.Errorf("unclosed = %d, want 0", unclosed)
	}
	if len(rings) != 1 {
		t.Fatalf("ring count = %d, want 1", len(rings))
	}
	want := []int64{1, 2, 3, 4, 1}
	got := rings[0]
	if len(got) != len(want) {
		t.Fatalf("ring = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("ring = %v, want %v", got, want)
		}
	}
}

func TestBuildRingsMultipleRings(t *testing.T) {
	rings, unclosed := BuildRings([][]int64{
		{1, 2, 3, 1},
		{10, 11, 12, 10},
	})
	if unclosed != 0 {
		t.Errorf("unclosed = %d, want 0", unclosed)
	}
	if len(rings) != 2 {
		t.Errorf("ring count = %d, want 2", len(rings))
	}
}

func TestBuildRingsUnclosed(t *testing.T) {
	rings, unclosed := BuildRings([][]int64{
		{1, 2, 3}, // no segment closes this
		{7, 8, 9, 7},
	})
	if len(rings) != 1 {
		t.Errorf("ring count = %d, want 1", len(rings))
	}
	if unclosed != 1 {
		t.Errorf("unclosed = %d, want 1", unclosed)
	}
}

func TestBuildRingsDegenerate(t *testing.T) {
	// A way that immediately returns closes but spans no area.
	rings, unclosed := BuildRings([][]int64{{1, 2, 1}})
	if len(rings) != 0 {
		t.Errorf("ring count = %d, want 0", len(rings))
	}
	if unclosed != 1 {
		t.Errorf("unclosed = %d, want 1", unclosed)
	}
}

func TestAssemblePolygonsHoleAssignment(t *testing.T) {
	big := []float64{0, 0, 10, 0, 10, 10, 0, 10, 0, 0}
	far := []float64{100, 100, 110, 100, 110, 110, 100, 110, 100, 100}
	hole := []float64{4, 4, 6, 4, 6, 6, 4, 6, 4, 4}

	polygons := assemblePolygons([][]float64{big, far}, [][]float64{hole})
	if len(polygons) != 2 {
		t.Fatalf("polygon count = %d, want 2", len(polygons))
	}
	if len(polygons[0]) != 2 {
		t.Errorf("first polygon ring count = %d, want 2 (outer + hole)", len(polygons[0]))
	}
	if len(polygons[1]) != 1 {
		t.Errorf("second polygon ring count = %d, want 1", len(polygons[1]))
	}
}

func TestAssemblePolygonsDropsOrphanHole(t *testing.T) {
	outer := []float64{0, 0, 1, 0, 1, 1, 0, 1, 0, 0}
	orphan := []float64{50, 50, 60, 50, 60, 60, 50, 60, 50, 50}

	polygons := assemblePolygons([][]float64{outer}, [][]float64{orphan})
	if len(polygons) != 1 || len(polygons[0]) != 1 {
		t.Errorf("orphan hole must be dropped, got %d rings", len(polygons[0]))
	}
}

func TestAssemblePolygonsNoOuter(t *testing.T) {
	if got := assemblePolygons(nil, [][]float64{{0, 0, 1, 1}}); got != nil {
		t.Errorf("no outer rings should yield nil, got %v", got)
	}
}

func TestProjectCoords(t *testing.T) {
	coords := []float64{0, 0}
	projectCoords(coords)
	if math.Abs(coords[0]) > 1e-6 || math.Abs(coords[1]) > 1e-6 {
		t.Errorf("origin should project to (0, 0), got (%f, %f)", coords[0], coords[1])
	}

	coords = []float64{180, 0}
	projectCoords(coords)
	if math.Abs(coords[0]-20037508.342789244) > 1 {
		t.Errorf("lon 180 should project to max extent, got %f", coords[0])
	}

	// Latitudes beyond the cutoff are clamped, not infinite.
	coords = []float64{0, 89.9}
	projectCoords(coords)
	if math.IsInf(coords[1], 0) || math.IsNaN(coords[1]) {
		t.Errorf("polar latitude must clamp, got %f", coords[1])
	}
}
