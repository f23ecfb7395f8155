package common

import (
	"context"
	"io"
)

// StreamConverter defines the interface for converting data streams to SQL output
type StreamConverter interface {
	ConvertToSQL(ctx context.Context, writer io.Writer) error
}

// RecordProvider defines the interface for providing records to be inserted into SQLite.
// Records are fully materialized when the provider is opened.
type RecordProvider interface {
	// SourceName identifies where the records came from (usually a file name).
	SourceName() string
	Records() []Record
}

// Driver defines the interface that must be implemented by a converter package.
type Driver interface {
	// Open decodes the whole input and returns a RecordProvider for it.
	Open(source io.Reader, config *ConversionConfig) (RecordProvider, error)
}

// FileDriver is implemented by drivers that read better from a path than
// from a stream, e.g. formats with a footer that need random access.
type FileDriver interface {
	Driver
	OpenFile(path string, config *ConversionConfig) (RecordProvider, error)
}

// Progress receives tick-based progress for one phase of work at a time.
type Progress interface {
	Start(total int64, status string)
	Tick(current int64)
	Finish(status string)
}

// NopProgress discards all progress.
type NopProgress struct{}

func (NopProgress) Start(int64, string) {}
func (NopProgress) Tick(int64)          {}
func (NopProgress) Finish(string)       {}
