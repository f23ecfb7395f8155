package converters

import (
	"fmt"
)

// InvalidInputError reports an input path that does not exist or is neither
// a supported file nor a directory. Nothing has been written when it is returned.
type InvalidInputError struct {
	Path string
	Err  error
}

func (e *InvalidInputError) Error() string {
	return fmt.Sprintf("invalid input %s: %v", e.Path, e.Err)
}

func (e *InvalidInputError) Unwrap() error { return e.Err }

// NoInputError reports a directory without any file matching the extension.
type NoInputError struct {
	Dir string
	Ext string
}

func (e *NoInputError) Error() string {
	return fmt.Sprintf("no %s files found in %s", e.Ext, e.Dir)
}

// ReadError reports a file that could not be decoded. It aborts that file only.
type ReadError struct {
	File string
	Err  error
}

func (e *ReadError) Error() string {
	return fmt.Sprintf("failed to read %s: %v", e.File, e.Err)
}

func (e *ReadError) Unwrap() error { return e.Err }

// RowInsertError reports a single row the database rejected.
// Row is the 0-based position of the record within its file.
type RowInsertError struct {
	File string
	Row  int
	Err  error
}

func (e *RowInsertError) Error() string {
	return fmt.Sprintf("failed to insert row %d of %s: %v", e.Row, e.File, e.Err)
}

func (e *RowInsertError) Unwrap() error { return e.Err }
