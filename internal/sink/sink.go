package sink

import "context"

// Record is one assembled relation ready for output.
type Record struct {
	OSMID      int64
	RelType    string // value of the relation's "type" tag
	Tags       string // all tags as a JSON object
	NumMembers int    // members the relation listed
	GeomWKB    []byte // EWKB geometry, nil when none could be built
}

// Sink consumes assembled relations. Implementations are not required to
// be safe for concurrent use; the assembler writes from one goroutine.
type Sink interface {
	Write(ctx context.Context, rec Record) error
	Close(ctx context.Context) error
}
