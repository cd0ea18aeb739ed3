package assembler

import "math"

// BuildRings joins way segments (node-ID lists) end to end into closed
// rings. Segments are matched by endpoint node ID and reversed as needed.
// Returns the closed rings plus the number of segments that ended up in an
// open or degenerate ring.
func BuildRings(segs [][]int64) (rings [][]int64, unclosed int) {
	used := make([]bool, len(segs))

	for i := range segs {
		if used[i] {
			continue
		}
		used[i] = true
		if len(segs[i]) < 2 {
			unclosed++
			continue
		}

		ring := append([]int64(nil), segs[i]...)
		joined := 1
		for ring[0] != ring[len(ring)-1] {
			extended := false
			for j := range segs {
				if used[j] || len(segs[j]) < 2 {
					continue
				}
				s := segs[j]
				switch ring[len(ring)-1] {
				case s[0]:
					ring = append(ring, s[1:]...)
				case s[len(s)-1]:
					for k := len(s) - 2; k >= 0; k-- {
						ring = append(ring, s[k])
					}
				default:
					continue
				}
				used[j] = true
				joined++
				extended = true
				break
			}
			if !extended {
				break
			}
		}

		// A closed ring has at least 3 distinct points.
		if len(ring) >= 4 && ring[0] == ring[len(ring)-1] {
			rings = append(rings, ring)
		} else {
			unclosed += joined
		}
	}

	return rings, unclosed
}

// ringBounds is an axis-aligned bounding box over flat [lon, lat, ...]
// coordinates, used to assign holes to their outer rings.
type ringBounds struct {
	minLon, minLat, maxLon, maxLat float64
}

func boundsOf(coords []float64) ringBounds {
	b := ringBounds{
		minLon: math.Inf(1), minLat: math.Inf(1),
		maxLon: math.Inf(-1), maxLat: math.Inf(-1),
	}
	for i := 0; i+1 < len(coords); i += 2 {
		b.minLon = math.Min(b.minLon, coords[i])
		b.maxLon = math.Max(b.maxLon, coords[i])
		b.minLat = math.Min(b.minLat, coords[i+1])
		b.maxLat = math.Max(b.maxLat, coords[i+1])
	}
	return b
}

func (b ringBounds) contains(other ringBounds) bool {
	return other.minLon >= b.minLon && other.maxLon <= b.maxLon &&
		other.minLat >= b.minLat && other.maxLat <= b.maxLat
}

// assemblePolygons turns outer and inner rings into a multipolygon ring
// set. Each outer ring starts a polygon; every hole goes to the first
// outer ring whose bounding box contains it. Holes that fit no outer ring
// are dropped.
func assemblePolygons(outers, inners [][]float64) [][][]float64 {
	if len(outers) == 0 {
		return nil
	}

	polygons := make([][][]float64, len(outers))
	outerBounds := make([]ringBounds, len(outers))
	for i, ring := range outers {
		polygons[i] = [][]float64{ring}
		outerBounds[i] = boundsOf(ring)
	}

	for _, hole := range inners {
		hb := boundsOf(hole)
		for i := range outers {
			if outerBounds[i].contains(hb) {
				polygons[i] = append(polygons[i], hole)
				break
			}
		}
	}

	return polygons
}

// Web Mercator constants
const (
	earthRadius = 6378137.0
	maxLatitude = 85.0511287798 // Web Mercator latitude cutoff
)

// projectCoords converts flat [lon, lat, ...] WGS84 coordinates to Web
// Mercator (EPSG:3857) in place.
func projectCoords(coords []float64) {
	for i := 0; i+1 < len(coords); i += 2 {
		lon := coords[i]
		lat := math.Max(-maxLatitude, math.Min(maxLatitude, coords[i+1]))
		coords[i] = earthRadius * lon * math.Pi / 180
		coords[i+1] = earthRadius * math.Log(math.Tan(math.Pi/4+lat*math.Pi/360))
	}
}
