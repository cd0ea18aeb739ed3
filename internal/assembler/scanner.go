package assembler

import (
	"context"
	"os"
	"strings"

	"github.com/paulmach/osm"
	"github.com/paulmach/osm/osmpbf"
	"github.com/paulmach/osm/osmxml"
)

// objectScanner is the part of the osmpbf/osmxml scanners the assembler
// consumes.
type objectScanner interface {
	Scan() bool
	Object() osm.Object
	Err() error
	Close() error
}

// openScanner picks the decoder from the file extension: .osm and .xml
// are parsed as OSM XML, everything else as PBF.
func openScanner(ctx context.Context, f *os.File, path string, workers int) objectScanner {
	if strings.HasSuffix(path, ".osm") || strings.HasSuffix(path, ".xml") {
		return osmxml.New(ctx, f)
	}
	return osmpbf.New(ctx, f, workers)
}
