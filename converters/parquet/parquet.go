// Package parquet reads speech corpus records from Parquet files.
package parquet

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/darianmavgo/parquet2sqlite/converters"
	"github.com/darianmavgo/parquet2sqlite/converters/common"

	"github.com/parquet-go/parquet-go"
)

const (
	DriverName = "parquet"
	Extension  = ".parquet"

	// ReadChunkSize is the number of rows decoded between progress ticks.
	ReadChunkSize = 1024
)

func init() {
	converters.Register(DriverName, &parquetDriver{}, Extension)
}

type parquetDriver struct{}

// Ensure parquetDriver can open files by path
var _ common.FileDriver = (*parquetDriver)(nil)

func (d *parquetDriver) Open(source io.Reader, config *common.ConversionConfig) (common.RecordProvider, error) {
	return NewParquetConverterWithConfig(source, config)
}

// OpenFile implements common.FileDriver so files are read in place.
func (d *parquetDriver) OpenFile(path string, config *common.ConversionConfig) (common.RecordProvider, error) {
	if config == nil {
		config = &common.ConversionConfig{}
	}
	records, err := ReadFile(path, config.ProgressOrNop())
	if err != nil {
		return nil, err
	}
	return &ParquetConverter{
		name:    path,
		records: records,
		Config:  *config,
	}, nil
}

// ParquetConverter holds the fully decoded records of one Parquet file.
type ParquetConverter struct {
	name    string
	records []common.Record
	Config  common.ConversionConfig
}

// Ensure ParquetConverter implements RecordProvider
var _ common.RecordProvider = (*ParquetConverter)(nil)

// Ensure ParquetConverter implements StreamConverter
var _ common.StreamConverter = (*ParquetConverter)(nil)

// NewParquetConverter decodes every record readable from r.
func NewParquetConverter(r io.Reader) (*ParquetConverter, error) {
	return NewParquetConverterWithConfig(r, nil)
}

// NewParquetConverterWithConfig decodes every record readable from r with optional config.
// Files are read in place; any other reader is buffered in memory first since
// the Parquet footer sits at the end of the stream.
func NewParquetConverterWithConfig(r io.Reader, config *common.ConversionConfig) (*ParquetConverter, error) {
	if config == nil {
		config = &common.ConversionConfig{}
	}

	name := config.InputPath
	if name == "" {
		if f, ok := r.(*os.File); ok {
			name = f.Name()
		}
	}

	ra, size, err := readerAt(r)
	if err != nil {
		return nil, &converters.ReadError{File: name, Err: err}
	}

	records, err := readRecords(ra, size, filepath.Base(name), config.ProgressOrNop())
	if err != nil {
		return nil, &converters.ReadError{File: name, Err: err}
	}

	return &ParquetConverter{
		name:    name,
		records: records,
		Config:  *config,
	}, nil
}

// ReadFile loads every record of the Parquet file at path, in file order.
// Any failure is a *converters.ReadError and no records are returned.
func ReadFile(path string, progress common.Progress) ([]common.Record, error) {
	if progress == nil {
		progress = common.NopProgress{}
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, &converters.ReadError{File: path, Err: err}
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return nil, &converters.ReadError{File: path, Err: err}
	}

	records, err := readRecords(f, info.Size(), filepath.Base(path), progress)
	if err != nil {
		return nil, &converters.ReadError{File: path, Err: err}
	}
	return records, nil
}

// SourceName implements RecordProvider
func (c *ParquetConverter) SourceName() string {
	return c.name
}

// Records implements RecordProvider
func (c *ParquetConverter) Records() []common.Record {
	return c.records
}

// ConvertToSQL implements StreamConverter. It writes an idempotent CREATE TABLE
// followed by one INSERT per record, tagged with the source file name.
func (c *ParquetConverter) ConvertToSQL(ctx context.Context, writer io.Writer) error {
	table := c.Config.TableName
	if table == "" {
		return fmt.Errorf("ParquetConverter has no table name configured")
	}

	bw := bufio.NewWriterSize(writer, 65536)

	createTableSQL := common.GenCreateTableSQL(table, converters.DestinationColumns())
	if _, err := fmt.Fprintf(bw, "%s;\n\n", createTableSQL); err != nil {
		return fmt.Errorf("failed to write CREATE TABLE: %w", err)
	}

	fields := append(common.RecordColumns(), converters.SourceFileColumn)
	var label *string
	if c.name != "" {
		label = common.Str(filepath.Base(c.name))
	}

	values := make([]*string, len(fields))
	for i := range c.records {
		if i%ReadChunkSize == 0 {
			if err := ctx.Err(); err != nil {
				return err
			}
		}

		for j, f := range common.Fields {
			values[j] = f.Value(&c.records[i])
		}
		values[len(values)-1] = label

		stmt, err := common.GenInsertLiteralSQL(table, fields, values)
		if err != nil {
			return err
		}
		if _, err := bw.WriteString(stmt); err != nil {
			return fmt.Errorf("failed to write INSERT: %w", err)
		}
		if err := bw.WriteByte('\n'); err != nil {
			return fmt.Errorf("failed to write statement end: %w", err)
		}
	}

	if err := bw.Flush(); err != nil {
		return fmt.Errorf("failed to flush SQL output: %w", err)
	}
	return nil
}

func readerAt(r io.Reader) (io.ReaderAt, int64, error) {
	if f, ok := r.(*os.File); ok {
		info, err := f.Stat()
		if err != nil {
			return nil, 0, fmt.Errorf("failed to stat input: %w", err)
		}
		if info.Mode().IsRegular() {
			return f, info.Size(), nil
		}
	}

	// bytes.Reader, strings.Reader and io.SectionReader all report a size.
	if sized, ok := r.(interface {
		io.ReaderAt
		Size() int64
	}); ok {
		return sized, sized.Size(), nil
	}

	data, err := io.ReadAll(r)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to buffer input: %w", err)
	}
	return bytes.NewReader(data), int64(len(data)), nil
}

func readRecords(ra io.ReaderAt, size int64, name string, progress common.Progress) (records []common.Record, err error) {
	// parquet-go panics when the file schema cannot be converted to Record.
	defer func() {
		if r := recover(); r != nil {
			records = nil
			err = fmt.Errorf("incompatible schema: %v", r)
		}
	}()

	pf, err := parquet.OpenFile(ra, size)
	if err != nil {
		return nil, fmt.Errorf("failed to open parquet file: %w", err)
	}
	if err := checkSchema(pf.Schema()); err != nil {
		return nil, err
	}

	reader := parquet.NewGenericReader[common.Record](pf)
	defer reader.Close()

	total := reader.NumRows()
	records = make([]common.Record, total)
	progress.Start(total, "Reading "+name)

	var done int64
	for done < total {
		end := min(done+ReadChunkSize, total)
		n, err := reader.Read(records[done:end])
		done += int64(n)
		progress.Tick(done)
		if err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			return nil, fmt.Errorf("failed to read rows: %w", err)
		}
		if n == 0 {
			break
		}
	}

	if done != total {
		return nil, fmt.Errorf("read %d of %d rows", done, total)
	}

	progress.Finish(fmt.Sprintf("Read %d records from %s", total, name))
	return records, nil
}

// checkSchema requires every record column to be a non-repeated BYTE_ARRAY
// leaf. Columns the record does not know about are ignored.
func checkSchema(schema *parquet.Schema) error {
	var problems []string
	for _, f := range common.Fields {
		leaf, ok := schema.Lookup(f.Column)
		if !ok {
			problems = append(problems, "missing column "+f.Column)
			continue
		}
		if leaf.Node.Repeated() {
			problems = append(problems, "column "+f.Column+" is repeated")
			continue
		}
		if kind := leaf.Node.Type().Kind(); kind != parquet.ByteArray {
			problems = append(problems, fmt.Sprintf("column %s is %s, want BYTE_ARRAY", f.Column, kind))
		}
	}
	if len(problems) > 0 {
		return fmt.Errorf("incompatible schema: %s", strings.Join(problems, "; "))
	}
	return nil
}
