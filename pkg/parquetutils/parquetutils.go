package parquetutils

import (
	"github.com/cockroachdb/errors"
	"github.com/xitongsys/parquet-go/parquet"
	"github.com/xitongsys/parquet-go/reader"
	"github.com/xitongsys/parquet-go/source"
	"github.com/xitongsys/parquet-go/writer"
)

var (
	// ReaderConcurrency parallel number of file readers.
	ReaderConcurrency int64 = 8

	// WriterConcurrency parallel number of column writers.
	WriterConcurrency int64 = 4
)

// ReadAll reads all records from the parquet file.
func ReadAll[T any](sourceFile source.ParquetFile) ([]T, error) {
	r, err := reader.NewParquetReader(sourceFile, new(T), ReaderConcurrency)
	if err != nil {
		return nil, errors.Wrap(err, "can't create parquet reader")
	}
	defer r.ReadStop()

	data := make([]T, r.GetNumRows())
	if err = r.Read(&data); err != nil {
		return nil, errors.Wrap(err, "failed to read parquet data")
	}

	return data, nil
}

// ReadInBatches reads the file batchSize records at a time, so whole files never sit in memory.
func ReadInBatches[T any](sourceFile source.ParquetFile, batchSize int, fn func([]T) error) error {
	r, err := reader.NewParquetReader(sourceFile, new(T), ReaderConcurrency)
	if err != nil {
		return errors.Wrap(err, "can't create parquet reader")
	}
	defer r.ReadStop()

	for remaining := int(r.GetNumRows()); remaining > 0; {
		data := make([]T, min(batchSize, remaining))
		if err := r.Read(&data); err != nil {
			return errors.Wrap(err, "failed to read parquet data")
		}
		if err := fn(data); err != nil {
			return errors.WithStack(err)
		}
		remaining -= len(data)
	}
	return nil
}

// Writer writes records of type T.
type Writer[T any] struct {
	pw *writer.ParquetWriter
}

func NewWriter[T any](file source.ParquetFile) (*Writer[T], error) {
	pw, err := writer.NewParquetWriter(file, new(T), WriterConcurrency)
	if err != nil {
		return nil, errors.Wrap(err, "can't create parquet writer")
	}
	pw.CompressionType = parquet.CompressionCodec_SNAPPY
	return &Writer[T]{pw: pw}, nil
}

func (w *Writer[T]) Write(record T) error {
	return errors.Wrap(w.pw.Write(record), "can't write parquet record")
}

// Close flushes the footer. It doesn't close the underlying file.
func (w *Writer[T]) Close() error {
	return errors.Wrap(w.pw.WriteStop(), "can't flush parquet writer")
}
