package sink

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/wegman-software/osm-assembler-go/internal/logger"
)

const assembledTable = "assembled_rels"

// PostgresSink writes assembled relations into an unlogged staging table
// via COPY, batching rows in memory between flushes.
type PostgresSink struct {
	pool      *pgxpool.Pool
	schema    string
	batchSize int
	rows      [][]interface{}
	written   int64
}

// NewPostgresSink creates a sink writing into schema.assembled_rels on the
// given pool. The pool is borrowed, not owned.
func NewPostgresSink(pool *pgxpool.Pool, schema string, batchSize int) *PostgresSink {
	return &PostgresSink{
		pool:      pool,
		schema:    schema,
		batchSize: batchSize,
		rows:      make([][]interface{}, 0, batchSize),
	}
}

// EnsureTable creates the output table, dropping any previous one when
// dropExisting is set.
func (s *PostgresSink) EnsureTable(ctx context.Context, dropExisting bool) error {
	log := logger.Get()
	fullName := fmt.Sprintf("%s.%s", s.schema, assembledTable)

	if dropExisting {
		log.Info("Dropping output table", zap.String("table", fullName))
		if _, err := s.pool.Exec(ctx, fmt.Sprintf("DROP TABLE IF EXISTS %s CASCADE", fullName)); err != nil {
			return fmt.Errorf("failed to drop table %s: %w", fullName, err)
		}
	}

	log.Info("Creating output table", zap.String("table", fullName))
	sql := fmt.Sprintf(`
		CREATE UNLOGGED TABLE IF NOT EXISTS %s (
			osm_id BIGINT PRIMARY KEY,
			rel_type TEXT NOT NULL,
			tags JSONB,
			n_members INTEGER NOT NULL,
			geom BYTEA
		)`, fullName)
	if _, err := s.pool.Exec(ctx, sql); err != nil {
		return fmt.Errorf("failed to create table %s: %w", fullName, err)
	}
	return nil
}

// Write buffers one assembled relation, flushing via COPY when the batch
// is full.
func (s *PostgresSink) Write(ctx context.Context, rec Record) error {
	var tags interface{}
	if rec.Tags != "" && rec.Tags != "{}" {
		tags = []byte(rec.Tags)
	}
	s.rows = append(s.rows, []interface{}{
		rec.OSMID, rec.RelType, tags, int32(rec.NumMembers), rec.GeomWKB,
	})
	if len(s.rows) >= s.batchSize {
		return s.Flush(ctx)
	}
	return nil
}

// Flush COPYs the buffered rows into the output table.
func (s *PostgresSink) Flush(ctx context.Context) error {
	if len(s.rows) == 0 {
		return nil
	}

	conn, err := s.pool.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("failed to acquire connection: %w", err)
	}
	defer conn.Release()

	count, err := conn.Conn().CopyFrom(
		ctx,
		pgx.Identifier{s.schema, assembledTable},
		[]string{"osm_id", "rel_type", "tags", "n_members", "geom"},
		pgx.CopyFromRows(s.rows),
	)
	if err != nil {
		return fmt.Errorf("COPY to %s failed: %w", assembledTable, err)
	}

	s.written += count
	s.rows = s.rows[:0]
	return nil
}

// Written returns the number of rows copied so far.
func (s *PostgresSink) Written() int64 {
	return s.written
}

// Close flushes remaining rows, converts the staging table to logged and
// analyzes it.
func (s *PostgresSink) Close(ctx context.Context) error {
	if err := s.Flush(ctx); err != nil {
		return err
	}

	log := logger.Get()
	fullName := fmt.Sprintf("%s.%s", s.schema, assembledTable)

	if _, err := s.pool.Exec(ctx, fmt.Sprintf("ALTER TABLE %s SET LOGGED", fullName)); err != nil {
		// Non-fatal: the data is already in place.
		log.Warn("Failed to set table logged", zap.String("table", fullName), zap.Error(err))
	}
	if _, err := s.pool.Exec(ctx, fmt.Sprintf("ANALYZE %s", fullName)); err != nil {
		return fmt.Errorf("failed to analyze %s: %w", fullName, err)
	}

	log.Info("Output table complete", zap.String("table", fullName), zap.Int64("rows", s.written))
	return nil
}
