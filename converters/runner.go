package converters

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"time"

	"github.com/darianmavgo/parquet2sqlite/converters/common"
	"github.com/darianmavgo/parquet2sqlite/converters/filesystem"
	"github.com/darianmavgo/parquet2sqlite/metrics"
)

const (
	DefaultTable     = "parquet_records"
	DefaultExtension = ".parquet"
)

// RunOptions configures Run.
type RunOptions struct {
	ImportOptions
	TableName string // Destination table, sanitized before use
	Extension string // Extension of input files in directory mode; selects the driver
}

// FileResult is the outcome of converting one input file.
type FileResult struct {
	Path     string
	Records  int
	Inserted int
	Failed   int
	Failures []*RowInsertError
	Duration time.Duration
	Err      error // read or insert failure; nil when the file was processed
}

// Summary aggregates a whole run.
type Summary struct {
	Table          string
	OutputPath     string
	FilesAttempted int
	FilesSucceeded int
	RowsInserted   int
	RowErrors      int
	Files          []FileResult
}

// FilesFailed is the number of files that could not be read or inserted.
func (s *Summary) FilesFailed() int {
	return s.FilesAttempted - s.FilesSucceeded
}

// OK reports whether every attempted file was processed.
func (s *Summary) OK() bool {
	return s.FilesFailed() == 0
}

func (s *Summary) add(res FileResult) {
	s.Files = append(s.Files, res)
	s.FilesAttempted++
	if res.Err == nil {
		s.FilesSucceeded++
	}
	s.RowsInserted += res.Inserted
	s.RowErrors += res.Failed
}

// Run converts inputPath into the SQLite database at outputPath.
//
// inputPath is either a single file or a directory whose immediate children
// with the configured extension are converted in name order. Invalid input
// and empty directories are reported before the database is touched. A file
// that fails to read or insert is recorded in the summary and the run moves
// on to the next one; only failures to open or initialize the destination
// abort the run.
func Run(ctx context.Context, inputPath, outputPath string, opts *RunOptions) (*Summary, error) {
	if opts == nil {
		opts = &RunOptions{}
	}

	table := opts.TableName
	if table == "" {
		table = DefaultTable
	}
	table = common.GenTableName(table)

	ext := opts.Extension
	if ext == "" {
		ext = DefaultExtension
	}

	files, driverName, err := resolveInputs(inputPath, ext)
	if err != nil {
		return nil, err
	}

	if opts.Verbose {
		log.Printf("[PARQUET2SQLITE] Converting %d file(s) into %s (table %s)", len(files), outputPath, table)
	}

	db, err := OpenDB(ctx, outputPath)
	if err != nil {
		return nil, err
	}
	defer db.Close()

	if err := EnsureSchema(ctx, db, table, &opts.ImportOptions); err != nil {
		return nil, err
	}

	summary := &Summary{Table: table, OutputPath: outputPath}
	for _, path := range files {
		res := processFile(ctx, db, table, driverName, path, opts)
		summary.add(res)
		if err := ctx.Err(); err != nil {
			return summary, err
		}
	}
	return summary, nil
}

// resolveInputs validates inputPath and returns the files to convert along
// with the driver that decodes them.
func resolveInputs(inputPath, ext string) ([]string, string, error) {
	info, err := os.Stat(inputPath)
	if err != nil {
		return nil, "", &InvalidInputError{Path: inputPath, Err: err}
	}

	switch {
	case info.IsDir():
		driverName, err := DriverForPath("input" + ext)
		if err != nil {
			return nil, "", &InvalidInputError{Path: inputPath, Err: err}
		}
		listed, err := filesystem.ListFiles(inputPath, ext)
		if err != nil {
			return nil, "", &InvalidInputError{Path: inputPath, Err: err}
		}
		if len(listed) == 0 {
			return nil, "", &NoInputError{Dir: inputPath, Ext: ext}
		}
		files := make([]string, len(listed))
		for i, f := range listed {
			files[i] = f.Path
		}
		return files, driverName, nil

	case info.Mode().IsRegular():
		driverName, err := DriverForPath(inputPath)
		if err != nil {
			return nil, "", &InvalidInputError{Path: inputPath, Err: err}
		}
		return []string{inputPath}, driverName, nil

	default:
		return nil, "", &InvalidInputError{Path: inputPath, Err: errors.New("not a regular file or directory")}
	}
}

func processFile(ctx context.Context, db *sql.DB, table, driverName, path string, opts *RunOptions) (res FileResult) {
	start := time.Now()
	res.Path = path
	defer func() {
		res.Duration = time.Since(start)
		metrics.RecordFile(res.Err, res.Duration)
		metrics.RecordRows("read", int64(res.Records))
		metrics.RecordRows("inserted", int64(res.Inserted))
		metrics.RecordRows("failed", int64(res.Failed))
		if res.Err != nil {
			log.Printf("[PARQUET2SQLITE] Skipping %s: %v", path, res.Err)
		}
	}()

	label := filepath.Base(path)

	provider, err := OpenFile(driverName, path, &common.ConversionConfig{
		TableName: table,
		Verbose:   opts.Verbose,
		InputPath: path,
		Progress:  opts.Progress,
	})
	if err != nil {
		var readErr *ReadError
		if !errors.As(err, &readErr) {
			err = &ReadError{File: path, Err: err}
		}
		res.Err = err
		return res
	}

	records := provider.Records()
	res.Records = len(records)

	ins, err := InsertAll(ctx, db, table, records, label, &opts.ImportOptions)
	if err != nil {
		res.Err = fmt.Errorf("failed to insert %s: %w", label, err)
		return res
	}
	res.Inserted = ins.Inserted
	res.Failed = ins.Failed
	res.Failures = ins.Failures

	if opts.RecordFiles {
		if err := recordManifest(ctx, db, path, res); err != nil {
			log.Printf("[PARQUET2SQLITE] %v", err)
		}
	}
	return res
}

func recordManifest(ctx context.Context, db *sql.DB, path string, res FileResult) error {
	info, err := filesystem.Describe(path)
	if err != nil {
		return err
	}
	sum, err := filesystem.Checksum(path)
	if err != nil {
		return err
	}
	return RecordFile(ctx, db, FileEntry{
		SourceFile:   info.Name,
		Path:         path,
		Size:         info.Size,
		ModTime:      info.ModTime,
		CreateTime:   info.CreateTime,
		Checksum:     sum,
		RowsInserted: res.Inserted,
		RowsFailed:   res.Failed,
	})
}
