package cmd

import (
	"context"
	"path/filepath"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/wegman-software/osm-assembler-go/internal/assembler"
	"github.com/wegman-software/osm-assembler-go/internal/config"
	"github.com/wegman-software/osm-assembler-go/internal/filter"
	"github.com/wegman-software/osm-assembler-go/internal/logger"
	"github.com/wegman-software/osm-assembler-go/internal/metrics"
	"github.com/wegman-software/osm-assembler-go/internal/sink"
)

var bboxStr string

var assembleCmd = &cobra.Command{
	Use:   "assemble [input file]",
	Short: "Assemble relations from an OSM extract",
	Long: `Assemble runs two streaming passes over the input: the first collects
the relations the profile selects, the second matches their members and
writes every completed relation to the configured sink.`,
	Args: cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		cfg.InputFile = args[0]

		bbox, err := config.ParseBBox(bboxStr)
		if err != nil {
			exitWithError("Invalid bounding box", err)
		}
		cfg.BBox = bbox

		if err := cfg.Validate(); err != nil {
			exitWithError("Invalid configuration", err)
		}
		runAssemble()
	},
}

func init() {
	assembleCmd.Flags().StringVarP(&cfg.ProfileFile, "profile", "p", "", "Assembly profile YAML (default: multipolygon/boundary relations)")
	assembleCmd.Flags().StringVar(&cfg.LuaFile, "lua-script", "", "Lua relation selection script")
	assembleCmd.Flags().StringVarP(&bboxStr, "bbox", "b", "", "Bounding box filter: minlon,minlat,maxlon,maxlat")
	assembleCmd.Flags().StringVar(&cfg.Sink, "sink", cfg.Sink, "Output sink: parquet or postgres")
	assembleCmd.Flags().IntVar(&cfg.BatchSize, "batch-size", cfg.BatchSize, "Rows per output batch")
	assembleCmd.Flags().Int64Var(&cfg.MaxNodeID, "max-node-id", cfg.MaxNodeID, "Node cache capacity (0 = default)")
	rootCmd.AddCommand(assembleCmd)
}

func runAssemble() {
	log := logger.Get()
	ctx := context.Background()

	profile := config.DefaultProfile()
	if cfg.ProfileFile != "" {
		var err error
		profile, err = config.LoadProfile(cfg.ProfileFile)
		if err != nil {
			exitWithError("Failed to load profile", err)
		}
	}

	var hook *filter.Runtime
	if cfg.LuaFile != "" {
		hook = filter.NewRuntime()
		defer hook.Close()
		if err := hook.LoadFile(cfg.LuaFile); err != nil {
			exitWithError("Failed to load Lua script", err)
		}
		if !hook.HasSelectRelation() {
			exitWithError("Lua script defines no osmassembler.select_relation", nil)
		}
	}

	out, cleanup, err := openSink(ctx)
	if err != nil {
		exitWithError("Failed to open sink", err)
	}
	defer cleanup()

	asm, err := assembler.New(cfg, profile, hook, out)
	if err != nil {
		exitWithError("Failed to initialize assembler", err)
	}
	defer asm.Close()

	collector := metrics.NewCollector(cfg.MetricsInterval, log)
	collector.TableMemory = asm.MemoryEstimate

	g, gctx := errgroup.WithContext(ctx)
	collectorCtx, stopCollector := context.WithCancel(gctx)
	g.Go(func() error {
		collector.Start(collectorCtx)
		return nil
	})
	g.Go(func() error {
		defer stopCollector()
		return asm.Run(gctx)
	})
	if err := g.Wait(); err != nil {
		exitWithError("Assembly failed", err)
	}

	if err := out.Close(ctx); err != nil {
		exitWithError("Failed to finalize sink", err)
	}

	stats := asm.Stats()
	log.Info("Assembly complete",
		zap.Int64("selected", stats.Selected.Load()),
		zap.Int64("assembled", stats.Assembled.Load()),
		zap.Int64("no_geometry", stats.NoGeometry.Load()),
		zap.Int64("outside_bbox", stats.OutsideBBox.Load()),
		zap.Int64("incomplete", stats.Incomplete.Load()))
	logger.Sync()
}

// openSink builds the configured sink. The cleanup function releases
// resources the sink borrows (the connection pool); Close on the sink
// itself finalizes the output.
func openSink(ctx context.Context) (sink.Sink, func(), error) {
	switch cfg.Sink {
	case "postgres":
		pool, err := pgxpool.New(ctx, cfg.ConnectionString())
		if err != nil {
			return nil, nil, err
		}
		if err := pool.Ping(ctx); err != nil {
			pool.Close()
			return nil, nil, err
		}
		ps := sink.NewPostgresSink(pool, cfg.DBSchema, cfg.BatchSize)
		if err := ps.EnsureTable(ctx, true); err != nil {
			pool.Close()
			return nil, nil, err
		}
		return ps, pool.Close, nil
	default:
		path := filepath.Join(cfg.OutputDir, "relations.parquet")
		pq, err := sink.NewParquetSink(path, cfg.BatchSize)
		if err != nil {
			return nil, nil, err
		}
		return pq, func() {}, nil
	}
}
