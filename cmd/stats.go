package cmd

import (
	"context"
	"io"
	"os"
	"sort"
	"time"

	"github.com/paulmach/osm"
	"github.com/paulmach/osm/osmpbf"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/wegman-software/osm-assembler-go/internal/logger"
)

var statsCmd = &cobra.Command{
	Use:   "stats [input file]",
	Short: "Print a relation census for an OSM PBF extract",
	Long: `Stats makes a single pass over the input and reports how many nodes,
ways and relations it contains, plus a breakdown of relations by the value
of their type tag. Useful for sizing an assembly profile before a run.`,
	Args: cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		runStats(args[0])
	},
}

func init() {
	rootCmd.AddCommand(statsCmd)
}

func runStats(path string) {
	log := logger.Get()

	f, err := os.Open(path)
	if err != nil {
		exitWithError("Failed to open input", err)
	}
	defer f.Close()

	start := time.Now()
	scanner := osmpbf.New(context.Background(), f, cfg.Workers)
	defer scanner.Close()

	var nodes, ways, relations, totalMembers int64
	byType := make(map[string]int64)

	for scanner.Scan() {
		switch o := scanner.Object().(type) {
		case *osm.Node:
			nodes++
		case *osm.Way:
			ways++
		case *osm.Relation:
			relations++
			totalMembers += int64(len(o.Members))
			typeTag := o.Tags.Find("type")
			if typeTag == "" {
				typeTag = "(untagged)"
			}
			byType[typeTag]++
		}
	}
	if err := scanner.Err(); err != nil && err != io.EOF {
		exitWithError("Scan failed", err)
	}

	log.Info("Input census",
		zap.Int64("nodes", nodes),
		zap.Int64("ways", ways),
		zap.Int64("relations", relations),
		zap.Int64("relation_members", totalMembers),
		zap.Duration("duration", time.Since(start).Round(time.Second)))

	types := make([]string, 0, len(byType))
	for t := range byType {
		types = append(types, t)
	}
	sort.Slice(types, func(i, j int) bool { return byType[types[i]] > byType[types[j]] })
	for _, t := range types {
		log.Info("Relation type", zap.String("type", t), zap.Int64("count", byType[t]))
	}
	logger.Sync()
}
