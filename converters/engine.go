package converters

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"time"

	"github.com/darianmavgo/parquet2sqlite/converters/common"

	_ "modernc.org/sqlite"
)

const (
	// SourceFileColumn tags each destination row with the file it came from.
	SourceFileColumn = "source_file"

	ErrorLogTable = "_parquet2sqlite_errors"
	FileLogTable  = "_parquet2sqlite_files"

	rowSavepoint = "parquet2sqlite_row"
)

// ImportOptions defines configuration for the import process.
type ImportOptions struct {
	LogErrors   bool            // If true, rejected rows are also written to the error log table.
	RecordFiles bool            // If true, each imported file is appended to the file manifest table.
	Verbose     bool            // If true, enables detailed logging.
	Progress    common.Progress // Receives insert ticks; nil means silent.
}

func (o *ImportOptions) logErrors() bool   { return o != nil && o.LogErrors }
func (o *ImportOptions) recordFiles() bool { return o != nil && o.RecordFiles }
func (o *ImportOptions) verbose() bool     { return o != nil && o.Verbose }

func (o *ImportOptions) progress() common.Progress {
	if o == nil || o.Progress == nil {
		return common.NopProgress{}
	}
	return o.Progress
}

// DestinationColumns describes the data table: the record columns plus a
// generated key, the source file tag and a creation timestamp.
func DestinationColumns() []common.ColumnDef {
	cols := []common.ColumnDef{{Name: "id", Type: "INTEGER PRIMARY KEY AUTOINCREMENT"}}
	cols = append(cols, common.TextColumns(common.RecordColumns())...)
	cols = append(cols,
		common.ColumnDef{Name: SourceFileColumn, Type: "TEXT"},
		common.ColumnDef{Name: "created_at", Type: "DATETIME DEFAULT CURRENT_TIMESTAMP"},
	)
	return cols
}

// OpenDB opens (creating if needed) the SQLite database at dbPath.
func OpenDB(ctx context.Context, dbPath string) (*sql.DB, error) {
	if dir := filepath.Dir(dbPath); dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create output directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// One connection: the run is sequential and tx.Prepare stays on it.
	db.SetMaxOpenConns(1)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to open database %s: %w", dbPath, err)
	}

	if _, err := db.ExecContext(ctx, "PRAGMA busy_timeout = 5000; PRAGMA cache_size = -2000;"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to set PRAGMAs: %w", err)
	}
	return db, nil
}

// EnsureSchema creates the destination table if it does not exist yet.
// It never alters or validates an existing table.
func EnsureSchema(ctx context.Context, db *sql.DB, table string, opts *ImportOptions) error {
	if _, err := db.ExecContext(ctx, common.GenCreateTableSQL(table, DestinationColumns())); err != nil {
		return fmt.Errorf("failed to create table %s: %w", table, err)
	}

	if opts.logErrors() {
		_, err := db.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS `+ErrorLogTable+` (
			timestamp DATETIME DEFAULT CURRENT_TIMESTAMP,
			message TEXT,
			table_name TEXT,
			source_file TEXT,
			row_index INTEGER,
			row_data TEXT
		)`)
		if err != nil {
			return fmt.Errorf("failed to create error log table: %w", err)
		}
	}

	if opts.recordFiles() {
		_, err := db.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS `+FileLogTable+` (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			source_file TEXT,
			path TEXT,
			size INTEGER,
			mod_time TEXT,
			create_time TEXT,
			checksum TEXT,
			rows_inserted INTEGER,
			rows_failed INTEGER,
			imported_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)`)
		if err != nil {
			return fmt.Errorf("failed to create file log table: %w", err)
		}
	}
	return nil
}

// InsertResult tallies one InsertAll call.
type InsertResult struct {
	Inserted int
	Failed   int
	Failures []*RowInsertError
}

// InsertAll inserts every record inside a single transaction.
//
// Each row runs under its own savepoint. A row the database rejects is rolled
// back to that savepoint, counted and skipped. The transaction is committed
// once all rows were attempted, so the rows that succeeded are kept even when
// Failed > 0. If a rejected row takes the whole transaction with it (RAISE
// ROLLBACK, disk full) nothing of the file is kept and an error is returned,
// as it is when the transaction cannot be started or committed.
func InsertAll(ctx context.Context, db *sql.DB, table string, records []common.Record, sourceLabel string, opts *ImportOptions) (InsertResult, error) {
	var res InsertResult

	fields := append(common.RecordColumns(), SourceFileColumn)
	insertSQL, err := common.GenInsertStmt(table, fields)
	if err != nil {
		return res, fmt.Errorf("failed to generate insert statement for table %s: %w", table, err)
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return res, fmt.Errorf("failed to begin transaction: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, insertSQL)
	if err != nil {
		tx.Rollback()
		return res, fmt.Errorf("failed to prepare insert statement for table %s: %w", table, err)
	}
	defer stmt.Close()

	savepoint, err := tx.PrepareContext(ctx, "SAVEPOINT "+rowSavepoint)
	if err != nil {
		tx.Rollback()
		return res, fmt.Errorf("failed to prepare savepoint: %w", err)
	}
	defer savepoint.Close()

	release, err := tx.PrepareContext(ctx, "RELEASE "+rowSavepoint)
	if err != nil {
		tx.Rollback()
		return res, fmt.Errorf("failed to prepare savepoint release: %w", err)
	}
	defer release.Close()

	var logStmt *sql.Stmt
	if opts.logErrors() {
		logStmt, err = tx.PrepareContext(ctx, `INSERT INTO `+ErrorLogTable+` (message, table_name, source_file, row_index, row_data) VALUES (?, ?, ?, ?, ?)`)
		if err != nil {
			tx.Rollback()
			return res, fmt.Errorf("failed to prepare log statement: %w", err)
		}
		defer logStmt.Close()
	}

	var label interface{}
	if sourceLabel != "" {
		label = sourceLabel
	}

	progress := opts.progress()
	progress.Start(int64(len(records)), "Inserting "+displayName(sourceLabel))

	for i := range records {
		if err := ctx.Err(); err != nil {
			tx.Rollback()
			return InsertResult{}, err
		}

		if _, err := savepoint.ExecContext(ctx); err != nil {
			tx.Rollback()
			return InsertResult{}, fmt.Errorf("failed to set savepoint for row %d: %w", i, err)
		}

		args := append(records[i].Values(), label)
		if _, err := stmt.ExecContext(ctx, args...); err != nil {
			rowErr := &RowInsertError{File: sourceLabel, Row: i, Err: err}
			// The savepoint is gone when the error ended the transaction.
			if _, rbErr := tx.ExecContext(ctx, "ROLLBACK TO "+rowSavepoint); rbErr != nil {
				tx.Rollback()
				return InsertResult{}, fmt.Errorf("transaction aborted: %w", rowErr)
			}
			res.Failed++
			res.Failures = append(res.Failures, rowErr)
			if opts.verbose() {
				log.Printf("[PARQUET2SQLITE] %v", rowErr)
			}
			if logStmt != nil {
				if _, err := logStmt.ExecContext(ctx, rowErr.Err.Error(), table, label, i, rowData(&records[i])); err != nil {
					log.Printf("[PARQUET2SQLITE] failed to log insert error: %v", err)
				}
			}
		} else {
			res.Inserted++
		}
		if _, err := release.ExecContext(ctx); err != nil {
			tx.Rollback()
			return InsertResult{}, fmt.Errorf("failed to release savepoint for row %d: %w", i, err)
		}
		progress.Tick(int64(i + 1))
	}

	if err := tx.Commit(); err != nil {
		return InsertResult{}, fmt.Errorf("failed to commit transaction for table %s: %w", table, err)
	}

	progress.Finish(fmt.Sprintf("Inserted %d rows from %s (%d failed)", res.Inserted, displayName(sourceLabel), res.Failed))
	if opts.verbose() {
		log.Printf("[PARQUET2SQLITE] Finished %s into %s: %d inserted, %d failed", displayName(sourceLabel), table, res.Inserted, res.Failed)
	}
	return res, nil
}

// rowData renders a record as a JSON object for the error log.
func rowData(r *common.Record) string {
	m := make(map[string]*string, len(common.Fields))
	for _, f := range common.Fields {
		m[f.Column] = f.Value(r)
	}
	b, err := json.Marshal(m)
	if err != nil {
		return ""
	}
	return string(b)
}

// FileEntry is one row of the file manifest table.
type FileEntry struct {
	SourceFile   string
	Path         string
	Size         int64
	ModTime      time.Time
	CreateTime   time.Time
	Checksum     string
	RowsInserted int
	RowsFailed   int
}

// RecordFile appends an entry to the file manifest table.
// EnsureSchema must have been called with RecordFiles set.
func RecordFile(ctx context.Context, db *sql.DB, entry FileEntry) error {
	_, err := db.ExecContext(ctx, `INSERT INTO `+FileLogTable+` (source_file, path, size, mod_time, create_time, checksum, rows_inserted, rows_failed) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		entry.SourceFile,
		entry.Path,
		entry.Size,
		entry.ModTime.Format(time.RFC3339),
		entry.CreateTime.Format(time.RFC3339),
		entry.Checksum,
		entry.RowsInserted,
		entry.RowsFailed,
	)
	if err != nil {
		return fmt.Errorf("failed to record file %s: %w", entry.SourceFile, err)
	}
	return nil
}

func displayName(label string) string {
	if label == "" {
		return "records"
	}
	return label
}
