package assembler

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync/atomic"
	"time"

	"github.com/paulmach/osm"
	"go.uber.org/zap"

	"github.com/wegman-software/osm-assembler-go/internal/config"
	"github.com/wegman-software/osm-assembler-go/internal/filter"
	"github.com/wegman-software/osm-assembler-go/internal/logger"
	"github.com/wegman-software/osm-assembler-go/internal/members"
	"github.com/wegman-software/osm-assembler-go/internal/nodecache"
	"github.com/wegman-software/osm-assembler-go/internal/reltable"
	"github.com/wegman-software/osm-assembler-go/internal/sink"
	"github.com/wegman-software/osm-assembler-go/internal/stash"
	"github.com/wegman-software/osm-assembler-go/internal/wkb"
)

// Stats holds assembly counters.
type Stats struct {
	NodesScanned     atomic.Int64
	WaysScanned      atomic.Int64
	RelationsScanned atomic.Int64
	Selected         atomic.Int64
	Assembled        atomic.Int64
	NoGeometry       atomic.Int64 // assembled without a usable geometry
	OutsideBBox      atomic.Int64
	Incomplete       atomic.Int64 // still pending members at end of input
}

// Assembler brings relations and their members together in two streaming
// passes over one input file. Pass 1 collects the relations the profile
// selects into the relation table and registers every tracked member in
// the members index. Pass 2 streams nodes and ways; each arrival
// decrements the pending counters of the relations waiting on it, and a
// relation whose counter reaches zero is assembled, written to the sink
// and removed from the table.
//
// One Assembler owns one relation table, one stash and one members index;
// none of them are shared across goroutines (sharding across files means
// one Assembler per file).
type Assembler struct {
	cfg     *config.Config
	profile *config.Profile
	hook    *filter.Runtime // optional Lua selection hook
	out     sink.Sink

	st    *stash.Stash[osm.Relation]
	table *reltable.Table
	idx   *members.Index
	nodes *nodecache.Cache
	enc   *wkb.Encoder

	// Node lists of member ways collected in pass 2, and the rule that
	// selected each table position.
	ways  map[osm.WayID][]int64
	rules map[int]*config.Rule

	// Relations already streamed past in pass 1; relation-type members in
	// this set can never arrive again and are not waited on.
	seenRels map[osm.RelationID]struct{}

	stats Stats

	// memGauge holds the latest UsedMemory sample. The core is
	// single-goroutine; the gauge exists so the metrics collector can read
	// the estimate from its own goroutine without touching table state.
	memGauge atomic.Int64
}

// New creates an assembler. The sink is borrowed; the caller closes it.
func New(cfg *config.Config, profile *config.Profile, hook *filter.Runtime, out sink.Sink) (*Assembler, error) {
	if err := os.MkdirAll(cfg.OutputDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create output directory: %w", err)
	}
	if cfg.BBox == nil {
		cfg.BBox = &config.BBox{}
	}

	nodes, err := nodecache.Create(filepath.Join(cfg.OutputDir, "nodes.cache"), cfg.MaxNodeID)
	if err != nil {
		return nil, err
	}

	st := stash.New[osm.Relation]()
	return &Assembler{
		cfg:      cfg,
		profile:  profile,
		hook:     hook,
		out:      out,
		st:       st,
		table:    reltable.New(st),
		idx:      members.New(),
		nodes:    nodes,
		enc:      wkb.NewEncoder(profile.SRID, 1024),
		ways:     make(map[osm.WayID][]int64),
		rules:    make(map[int]*config.Rule),
		seenRels: make(map[osm.RelationID]struct{}),
	}, nil
}

// Close releases the node cache.
func (a *Assembler) Close() error {
	return a.nodes.Close()
}

// UsedMemory estimates the memory held by the relation tracking state:
// slot array, stash and members index. The node cache is file-backed and
// not counted.
func (a *Assembler) UsedMemory() int64 {
	return int64(a.table.UsedMemory() + a.st.UsedMemory() + a.idx.UsedMemory())
}

// MemoryEstimate returns the last sampled UsedMemory value. Safe to call
// from other goroutines.
func (a *Assembler) MemoryEstimate() int64 {
	return a.memGauge.Load()
}

// Stats returns the assembly counters.
func (a *Assembler) Stats() *Stats {
	return &a.stats
}

// Run executes both passes over the input file.
func (a *Assembler) Run(ctx context.Context) error {
	log := logger.Get()

	f, err := os.Open(a.cfg.InputFile)
	if err != nil {
		return err
	}
	defer f.Close()

	log.Info("Pass 1: Collecting relations")
	start := time.Now()
	if err := a.collectRelations(ctx, f); err != nil {
		return err
	}
	log.Info("Pass 1 complete",
		zap.Int64("relations", a.stats.RelationsScanned.Load()),
		zap.Int64("selected", a.stats.Selected.Load()),
		zap.Int("waiting_on", a.idx.Pending()),
		zap.Duration("duration", time.Since(start).Round(time.Second)))

	if _, err := f.Seek(0, io.SeekStart); err != nil {
		return err
	}

	log.Info("Pass 2: Matching members and assembling")
	start = time.Now()
	if err := a.matchMembers(ctx, f); err != nil {
		return err
	}

	a.sweepIncomplete(ctx)

	log.Info("Pass 2 complete",
		zap.Int64("nodes", a.stats.NodesScanned.Load()),
		zap.Int64("ways", a.stats.WaysScanned.Load()),
		zap.Int64("assembled", a.stats.Assembled.Load()),
		zap.Int64("incomplete", a.stats.Incomplete.Load()),
		zap.Duration("duration", time.Since(start).Round(time.Second)))

	return nil
}

// collectRelations is pass 1: only relations are of interest, but the
// whole file is scanned since relations sort last.
func (a *Assembler) collectRelations(ctx context.Context, f *os.File) error {
	scanner := openScanner(ctx, f, a.cfg.InputFile, a.cfg.Workers)
	defer scanner.Close()

	stop := a.startProgress(ctx, "Relation collection progress")
	defer stop()

	for scanner.Scan() {
		rel, ok := scanner.Object().(*osm.Relation)
		if !ok {
			continue
		}
		if err := a.handleRelation(ctx, rel); err != nil {
			return err
		}
	}
	if err := scanner.Err(); err != nil && err != io.EOF {
		return err
	}
	return nil
}

// matchMembers is pass 2: nodes and ways stream in; relations sort after
// them, so scanning stops at the first one.
func (a *Assembler) matchMembers(ctx context.Context, f *os.File) error {
	scanner := openScanner(ctx, f, a.cfg.InputFile, a.cfg.Workers)
	defer scanner.Close()

	stop := a.startProgress(ctx, "Member matching progress")
	defer stop()

	for scanner.Scan() {
		switch o := scanner.Object().(type) {
		case *osm.Node:
			a.stats.NodesScanned.Add(1)
			a.nodes.Put(int64(o.ID), o.Lat, o.Lon)
			if err := a.memberSeen(ctx, o.FeatureID()); err != nil {
				return err
			}
		case *osm.Way:
			a.stats.WaysScanned.Add(1)
			if err := a.handleWay(ctx, o); err != nil {
				return err
			}
		case *osm.Relation:
			return scanner.Err()
		}
	}
	if err := scanner.Err(); err != nil && err != io.EOF {
		return err
	}
	return nil
}

func (a *Assembler) handleRelation(ctx context.Context, rel *osm.Relation) error {
	if a.stats.RelationsScanned.Add(1)%8192 == 1 {
		a.memGauge.Store(a.UsedMemory())
	}

	// Parents registered earlier may be waiting on this relation.
	if err := a.memberSeen(ctx, rel.FeatureID()); err != nil {
		return err
	}
	a.seenRels[rel.ID] = struct{}{}

	rule := a.profile.RuleFor(rel.Tags.Find("type"))
	if rule == nil {
		return nil
	}
	if a.hook != nil {
		ok, err := a.hook.SelectRelation(rel)
		if err != nil {
			return err
		}
		if !ok {
			return nil
		}
	}

	ref := a.table.Add(rel)
	a.rules[ref.Pos()] = rule
	a.stats.Selected.Add(1)

	tracked := 0
	for _, m := range rel.Members {
		if !rule.Tracks(string(m.Type), m.Role) {
			continue
		}
		// A relation member that already streamed past (including a
		// self-reference) will not come again; don't wait for it.
		if m.Type == osm.TypeRelation {
			if _, seen := a.seenRels[osm.RelationID(m.Ref)]; seen {
				continue
			}
		}
		a.idx.Want(m.FeatureID(), ref.Pos())
		tracked++
	}
	ref.SetMembers(tracked)

	if ref.HasAllMembers() {
		return a.processComplete(ctx, ref)
	}
	return nil
}

func (a *Assembler) handleWay(ctx context.Context, way *osm.Way) error {
	positions := a.idx.Seen(way.FeatureID())
	if positions == nil {
		return nil
	}

	nodeIDs := make([]int64, len(way.Nodes))
	for i, n := range way.Nodes {
		nodeIDs[i] = int64(n.ID)
	}
	a.ways[way.ID] = nodeIDs

	return a.decrementAll(ctx, positions)
}

// memberSeen notifies the waiters of a member that arrived with no
// payload the assembler keeps (nodes live in the cache, relations carry
// no geometry here).
func (a *Assembler) memberSeen(ctx context.Context, fid osm.FeatureID) error {
	return a.decrementAll(ctx, a.idx.Seen(fid))
}

// decrementAll records one member arrival per waiting occurrence. A
// relation listing the same member n times is registered n times, so it
// only completes on the final occurrence; processing completions eagerly
// is therefore safe.
func (a *Assembler) decrementAll(ctx context.Context, positions []int) error {
	for _, pos := range positions {
		ref := a.table.Get(pos)
		ref.DecrementMembers()
		if ref.HasAllMembers() {
			if err := a.processComplete(ctx, ref); err != nil {
				return err
			}
		}
	}
	return nil
}

// processComplete assembles a completed relation, writes it to the sink
// and removes it from the table.
func (a *Assembler) processComplete(ctx context.Context, ref reltable.Ref) error {
	rel := ref.Relation()
	rule := a.rules[ref.Pos()]

	geom, inBBox := a.buildGeometry(rel, rule)
	if geom == nil {
		a.stats.NoGeometry.Add(1)
	}

	if inBBox {
		rec := sink.Record{
			OSMID:      int64(rel.ID),
			RelType:    rel.Tags.Find("type"),
			Tags:       tagsToJSON(rel.Tags),
			NumMembers: len(rel.Members),
			GeomWKB:    geom,
		}
		if err := a.out.Write(ctx, rec); err != nil {
			return fmt.Errorf("failed to write relation %d: %w", rel.ID, err)
		}
		a.stats.Assembled.Add(1)
	} else {
		a.stats.OutsideBBox.Add(1)
	}

	delete(a.rules, ref.Pos())
	ref.Remove()
	return nil
}

// buildGeometry turns the collected member ways into EWKB. The bool is
// false when a bbox filter is set and no vertex falls inside it.
func (a *Assembler) buildGeometry(rel *osm.Relation, rule *config.Rule) ([]byte, bool) {
	var outers, inners, lines [][]int64
	for _, m := range rel.Members {
		if m.Type != osm.TypeWay || !rule.Tracks(string(m.Type), m.Role) {
			continue
		}
		nodeIDs, ok := a.ways[osm.WayID(m.Ref)]
		if !ok {
			continue
		}
		switch rule.Geometry {
		case config.GeomMultiLineString:
			lines = append(lines, nodeIDs)
		default:
			if m.Role == "inner" {
				inners = append(inners, nodeIDs)
			} else {
				outers = append(outers, nodeIDs)
			}
		}
	}

	switch rule.Geometry {
	case config.GeomMultiLineString:
		return a.buildMultiLineString(lines)
	default:
		return a.buildMultiPolygon(rel, outers, inners)
	}
}

func (a *Assembler) buildMultiLineString(lines [][]int64) ([]byte, bool) {
	coords := make([][]float64, 0, len(lines))
	inBBox := !a.cfg.BBox.IsSet
	for _, nodeIDs := range lines {
		line, hit := a.resolveCoords(nodeIDs)
		if len(line) < 4 {
			continue
		}
		inBBox = inBBox || hit
		if a.profile.SRID == wkb.SRID3857 {
			projectCoords(line)
		}
		coords = append(coords, line)
	}
	if len(coords) == 0 {
		return nil, inBBox
	}
	return copyWKB(a.enc.EncodeMultiLineString(coords)), inBBox
}

func (a *Assembler) buildMultiPolygon(rel *osm.Relation, outerSegs, innerSegs [][]int64) ([]byte, bool) {
	log := logger.Get()

	outerRings, unclosedOuter := BuildRings(outerSegs)
	innerRings, unclosedInner := BuildRings(innerSegs)
	if unclosedOuter > 0 || unclosedInner > 0 {
		log.Debug("Relation has unclosed rings",
			zap.Int64("id", int64(rel.ID)),
			zap.Int("outer", unclosedOuter),
			zap.Int("inner", unclosedInner))
	}

	inBBox := !a.cfg.BBox.IsSet
	toCoords := func(rings [][]int64) [][]float64 {
		out := make([][]float64, 0, len(rings))
		for _, ring := range rings {
			coords, hit := a.resolveCoords(ring)
			if len(coords) < 8 { // a closed triangle
				continue
			}
			inBBox = inBBox || hit
			out = append(out, coords)
		}
		return out
	}

	polygons := assemblePolygons(toCoords(outerRings), toCoords(innerRings))
	if len(polygons) == 0 {
		return nil, inBBox
	}
	if a.profile.SRID == wkb.SRID3857 {
		for _, poly := range polygons {
			for _, ring := range poly {
				projectCoords(ring)
			}
		}
	}
	return copyWKB(a.enc.EncodeMultiPolygon(polygons)), inBBox
}

// resolveCoords looks up node coordinates from the cache. Nodes the cache
// never saw are skipped. hit reports whether any vertex falls inside the
// configured bbox.
func (a *Assembler) resolveCoords(nodeIDs []int64) (coords []float64, hit bool) {
	coords = make([]float64, 0, len(nodeIDs)*2)
	for _, id := range nodeIDs {
		lat, lon, ok := a.nodes.Get(id)
		if !ok {
			continue
		}
		if a.cfg.BBox.Contains(lat, lon) {
			hit = true
		}
		coords = append(coords, lon, lat)
	}
	return coords, hit
}

// sweepIncomplete counts the relations still waiting after the input is
// exhausted. They stay in the table so a caller can inspect them.
func (a *Assembler) sweepIncomplete(ctx context.Context) {
	log := logger.Get()

	a.table.ForEachRelation(func(ref reltable.Ref) {
		a.stats.Incomplete.Add(1)
		log.Debug("Relation missing members at end of input",
			zap.Int64("id", int64(ref.Relation().ID)),
			zap.Int("position", ref.Pos()))
	})

	if n := a.stats.Incomplete.Load(); n > 0 {
		log.Warn("Input ended with incomplete relations",
			zap.Int64("count", n),
			zap.Int("features_waiting", a.idx.Pending()))
	}
}

// startProgress logs counters periodically until the returned stop
// function is called.
func (a *Assembler) startProgress(ctx context.Context, msg string) func() {
	log := logger.Get()
	ctx, cancel := context.WithCancel(ctx)

	go func() {
		ticker := time.NewTicker(5 * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				log.Debug(msg,
					zap.Int64("nodes", a.stats.NodesScanned.Load()),
					zap.Int64("ways", a.stats.WaysScanned.Load()),
					zap.Int64("relations", a.stats.RelationsScanned.Load()),
					zap.Int64("assembled", a.stats.Assembled.Load()))
			}
		}
	}()

	return cancel
}

func copyWKB(b []byte) []byte {
	if b == nil {
		return nil
	}
	return append([]byte(nil), b...)
}

// tagsToJSON converts OSM tags to a JSON object string
func tagsToJSON(tags osm.Tags) string {
	if len(tags) == 0 {
		return "{}"
	}
	m := make(map[string]string, len(tags))
	for _, tag := range tags {
		m[tag.Key] = tag.Value
	}
	b, _ := json.Marshal(m)
	return string(b)
}
