package sink

import (
	"context"
	"os"

	"github.com/apache/arrow/go/v14/arrow"
	"github.com/apache/arrow/go/v14/arrow/array"
	"github.com/apache/arrow/go/v14/arrow/memory"
	"github.com/apache/arrow/go/v14/parquet"
	"github.com/apache/arrow/go/v14/parquet/compress"
	"github.com/apache/arrow/go/v14/parquet/pqarrow"
)

// ParquetSink writes assembled relations to a Zstd-compressed Parquet
// file, batching rows in an Arrow record builder.
type ParquetSink struct {
	file      *os.File
	writer    *pqarrow.FileWriter
	builder   *array.RecordBuilder
	batchSize int
	count     int
}

// NewParquetSink creates a Parquet sink writing to path.
func NewParquetSink(path string, batchSize int) (*ParquetSink, error) {
	schema := arrow.NewSchema([]arrow.Field{
		{Name: "osm_id", Type: arrow.PrimitiveTypes.Int64, Nullable: false},
		{Name: "rel_type", Type: arrow.BinaryTypes.String, Nullable: false},
		{Name: "tags", Type: arrow.BinaryTypes.String, Nullable: false},
		{Name: "n_members", Type: arrow.PrimitiveTypes.Int32, Nullable: false},
		{Name: "geom", Type: arrow.BinaryTypes.Binary, Nullable: true},
	}, nil)

	f, err := os.Create(path)
	if err != nil {
		return nil, err
	}

	writerProps := parquet.NewWriterProperties(
		parquet.WithCompression(compress.Codecs.Zstd),
		parquet.WithDictionaryDefault(false),
	)

	writer, err := pqarrow.NewFileWriter(schema, f, writerProps, pqarrow.DefaultWriterProps())
	if err != nil {
		f.Close()
		return nil, err
	}

	return &ParquetSink{
		file:      f,
		writer:    writer,
		builder:   array.NewRecordBuilder(memory.DefaultAllocator, schema),
		batchSize: batchSize,
	}, nil
}

// Write appends one assembled relation, flushing a row group whenever the
// batch fills up.
func (s *ParquetSink) Write(_ context.Context, rec Record) error {
	s.builder.Field(0).(*array.Int64Builder).Append(rec.OSMID)
	s.builder.Field(1).(*array.StringBuilder).Append(rec.RelType)
	s.builder.Field(2).(*array.StringBuilder).Append(rec.Tags)
	s.builder.Field(3).(*array.Int32Builder).Append(int32(rec.NumMembers))
	geom := s.builder.Field(4).(*array.BinaryBuilder)
	if rec.GeomWKB == nil {
		geom.AppendNull()
	} else {
		geom.Append(rec.GeomWKB)
	}

	s.count++
	if s.count >= s.batchSize {
		return s.flush()
	}
	return nil
}

func (s *ParquetSink) flush() error {
	if s.count == 0 {
		return nil
	}
	rec := s.builder.NewRecord()
	defer rec.Release()
	err := s.writer.Write(rec)
	s.count = 0
	return err
}

// Close flushes the final batch and closes the file.
func (s *ParquetSink) Close(_ context.Context) error {
	if err := s.flush(); err != nil {
		return err
	}
	if err := s.writer.Close(); err != nil {
		return err
	}
	return s.file.Close()
}
