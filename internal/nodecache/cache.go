package nodecache

import (
	"encoding/binary"
	"fmt"
	"os"

	"github.com/edsrzf/mmap-go"
)

// Each entry holds lat and lon as fixed-point int32 (value * 1e7), 8 bytes.
const entrySize = 8

// DefaultMaxNodeID covers current planet extracts with room to grow. The
// backing file is sparse, so address space is cheap and disk is only used
// for pages that are actually written.
const DefaultMaxNodeID = 10_000_000_000

// Cache is a memory-mapped node coordinate store. Coordinates live at
// offset nodeID*8, giving O(1) access for any node ID without hashing.
type Cache struct {
	path string
	file *os.File
	data mmap.MMap
}

// Create creates a cache file at path sized for node IDs below maxNodeID
// and maps it read-write. An existing file at path is truncated.
func Create(path string, maxNodeID int64) (*Cache, error) {
	if maxNodeID <= 0 {
		maxNodeID = DefaultMaxNodeID
	}
	size := maxNodeID * entrySize

	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return nil, fmt.Errorf("failed to create node cache: %w", err)
	}

	// Sparse on Linux: only written pages hit the disk.
	if err := f.Truncate(size); err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to size node cache: %w", err)
	}

	data, err := mmap.MapRegion(f, int(size), mmap.RDWR, 0, 0)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to mmap node cache: %w", err)
	}

	return &Cache{path: path, file: f, data: data}, nil
}

// Put stores a node's coordinates. Node IDs outside the cache range are
// silently ignored, matching the lossy-index behavior expected by callers.
func (c *Cache) Put(nodeID int64, lat, lon float64) {
	offset := nodeID * entrySize
	if nodeID < 0 || offset+entrySize > int64(len(c.data)) {
		return
	}

	binary.LittleEndian.PutUint32(c.data[offset:], uint32(int32(lat*1e7)))
	binary.LittleEndian.PutUint32(c.data[offset+4:], uint32(int32(lon*1e7)))
}

// Get retrieves a node's coordinates. ok is false if the node was never
// stored. A node at exactly (0, 0) is indistinguishable from an absent one;
// real data does not place nodes on Null Island, so the trade is accepted.
func (c *Cache) Get(nodeID int64) (lat, lon float64, ok bool) {
	offset := nodeID * entrySize
	if nodeID < 0 || offset+entrySize > int64(len(c.data)) {
		return 0, 0, false
	}

	latInt := int32(binary.LittleEndian.Uint32(c.data[offset:]))
	lonInt := int32(binary.LittleEndian.Uint32(c.data[offset+4:]))
	if latInt == 0 && lonInt == 0 {
		return 0, 0, false
	}

	return float64(latInt) / 1e7, float64(lonInt) / 1e7, true
}

// Flush forces dirty pages out to the backing file.
func (c *Cache) Flush() error {
	return c.data.Flush()
}

// Close unmaps the cache and deletes the backing file; the cache only
// exists for the duration of one assembly pass.
func (c *Cache) Close() error {
	if err := c.data.Unmap(); err != nil {
		c.file.Close()
		return err
	}
	if err := c.file.Close(); err != nil {
		return err
	}
	return os.Remove(c.path)
}
