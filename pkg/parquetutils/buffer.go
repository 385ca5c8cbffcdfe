package parquetutils

import (
	parquetbuffer "github.com/xitongsys/parquet-go-source/buffer"
	"github.com/xitongsys/parquet-go/source"
)

// Make sure to implement the ParquetFile interface
var _ source.ParquetFile = (*Buffer)(nil)

// Buffer is a parquet file held in memory.
type Buffer struct {
	*parquetbuffer.BufferFile
}

// NewBuffer reads the parquet file in data. data is shared, not copied.
func NewBuffer(data []byte) *Buffer {
	return &Buffer{BufferFile: parquetbuffer.NewBufferFileFromBytesNoAlloc(data)}
}

// NewWriteBuffer returns an empty buffer to write a parquet file into.
func NewWriteBuffer() *Buffer {
	return &Buffer{BufferFile: parquetbuffer.NewBufferFile()}
}

// Open returns a reader of its own over the same bytes. The parquet reader opens one per column.
func (b *Buffer) Open(string) (source.ParquetFile, error) {
	return NewBuffer(b.Bytes()), nil
}

func (b *Buffer) Create(string) (source.ParquetFile, error) {
	return NewWriteBuffer(), nil
}
