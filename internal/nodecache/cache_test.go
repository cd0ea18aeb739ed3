package nodecache

import (
	"math"
	"path/filepath"
	"testing"
)

func newTestCache(t *testing.T) *Cache {
	t.Helper()
	c, err := Create(filepath.Join(t.TempDir(), "nodes.bin"), 1_000_000)
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	t.Cleanup(func() { c.Close() })
	return c
}

func TestPutGet(t *testing.T) {
	c := newTestCache(t)

	c.Put(42, 51.5074, -0.1278)
	lat, lon, ok := c.Get(42)
	if !ok {
		t.Fatal("node 42 should be present")
	}
	if math.Abs(lat-51.5074) > 1e-6 || math.Abs(lon-(-0.1278)) > 1e-6 {
		t.Errorf("got (%f, %f), want (51.5074, -0.1278)", lat, lon)
	}
}

func TestGetMissing(t *testing.T) {
	c := newTestCache(t)

	if _, _, ok := c.Get(7); ok {
		t.Error("unwritten node should be absent")
	}
}

func TestOutOfRangeIgnored(t *testing.T) {
	c := newTestCache(t)

	c.Put(-1, 1, 1)
	c.Put(2_000_000, 1, 1)

	if _, _, ok := c.Get(-1); ok {
		t.Error("negative ID should be absent")
	}
	if _, _, ok := c.Get(2_000_000); ok {
		t.Error("out-of-range ID should be absent")
	}
}

func TestNegativeCoordinates(t *testing.T) {
	c := newTestCache(t)

	c.Put(1, -43.7384, -7.4246)
	lat, lon, ok := c.Get(1)
	if !ok {
		t.Fatal("node 1 should be present")
	}
	if math.Abs(lat-(-43.7384)) > 1e-6 || math.Abs(lon-(-7.4246)) > 1e-6 {
		t.Errorf("got (%f, %f), want (-43.7384, -7.4246)", lat, lon)
	}
}

func TestOverwrite(t *testing.T) {
	c := newTestCache(t)

	c.Put(9, 10, 20)
	c.Put(9, 30, 40)
	lat, lon, _ := c.Get(9)
	if math.Abs(lat-30) > 1e-6 || math.Abs(lon-40) > 1e-6 {
		t.Errorf("got (%f, %f), want (30, 40)", lat, lon)
	}
}
