package converters_test

import (
	"context"
	"database/sql"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/darianmavgo/parquet2sqlite/converters"
	"github.com/darianmavgo/parquet2sqlite/converters/common"
	_ "github.com/darianmavgo/parquet2sqlite/converters/parquet"

	"github.com/parquet-go/parquet-go"
)

func writeRecords(t *testing.T, path string, n int, language string) {
	t.Helper()
	records := make([]common.Record, n)
	for i := range records {
		records[i].Language = common.Str(language)
		if i%2 == 0 {
			records[i].RawText = common.Str("row text")
		}
	}
	if err := parquet.WriteFile(path, records); err != nil {
		t.Fatalf("failed to write parquet fixture: %v", err)
	}
}

func queryInt(t *testing.T, dbPath, query string) int {
	t.Helper()
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		t.Fatalf("failed to open %s: %v", dbPath, err)
	}
	defer db.Close()

	var n int
	if err := db.QueryRow(query).Scan(&n); err != nil {
		t.Fatalf("query %q failed: %v", query, err)
	}
	return n
}

func TestRunSingleFile(t *testing.T) {
	dir := t.TempDir()
	input := filepath.Join(dir, "speech.parquet")
	output := filepath.Join(dir, "out.db")
	writeRecords(t, input, 3, "eng")

	summary, err := converters.Run(context.Background(), input, output, nil)
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if summary.FilesAttempted != 1 || summary.FilesSucceeded != 1 || summary.RowsInserted != 3 || summary.RowErrors != 0 {
		t.Errorf("unexpected summary: %+v", summary)
	}
	if !summary.OK() {
		t.Error("expected OK summary")
	}
	if summary.Table != converters.DefaultTable {
		t.Errorf("Table = %s, want %s", summary.Table, converters.DefaultTable)
	}

	if got := queryInt(t, output, "SELECT count(*) FROM parquet_records WHERE source_file = 'speech.parquet'"); got != 3 {
		t.Errorf("expected 3 tagged rows, got %d", got)
	}
	if got := queryInt(t, output, "SELECT count(*) FROM parquet_records WHERE raw_text IS NULL"); got != 1 {
		t.Errorf("expected 1 NULL raw_text, got %d", got)
	}
}

func TestRunAppends(t *testing.T) {
	dir := t.TempDir()
	input := filepath.Join(dir, "speech.parquet")
	output := filepath.Join(dir, "out.db")
	writeRecords(t, input, 4, "eng")

	for i := 0; i < 2; i++ {
		if _, err := converters.Run(context.Background(), input, output, nil); err != nil {
			t.Fatalf("Run %d failed: %v", i+1, err)
		}
	}
	if got := queryInt(t, output, "SELECT count(*) FROM parquet_records"); got != 8 {
		t.Errorf("expected rerun to append to 8 rows, got %d", got)
	}
	if got := queryInt(t, output, "SELECT count(DISTINCT id) FROM parquet_records"); got != 8 {
		t.Errorf("expected 8 distinct ids, got %d", got)
	}
}

func TestRunDirectory(t *testing.T) {
	dir := t.TempDir()
	writeRecords(t, filepath.Join(dir, "b.parquet"), 2, "mya")
	writeRecords(t, filepath.Join(dir, "a.parquet"), 3, "eng")
	writeRecords(t, filepath.Join(dir, "C.PARQUET"), 1, "fra")
	if err := os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("ignore me"), 0644); err != nil {
		t.Fatal(err)
	}
	if err := os.Mkdir(filepath.Join(dir, "nested.parquet"), 0755); err != nil {
		t.Fatal(err)
	}
	output := filepath.Join(t.TempDir(), "db", "out.db")

	summary, err := converters.Run(context.Background(), dir, output, &converters.RunOptions{TableName: "Speech Data"})
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if summary.Table != "speech_data" {
		t.Errorf("Table = %s, want speech_data", summary.Table)
	}
	if summary.FilesAttempted != 3 || summary.FilesSucceeded != 3 || summary.RowsInserted != 6 {
		t.Errorf("unexpected summary: %+v", summary)
	}

	wantOrder := []string{"C.PARQUET", "a.parquet", "b.parquet"}
	for i, f := range summary.Files {
		if filepath.Base(f.Path) != wantOrder[i] {
			t.Errorf("file %d = %s, want %s", i, filepath.Base(f.Path), wantOrder[i])
		}
	}

	for name, want := range map[string]int{"a.parquet": 3, "b.parquet": 2, "C.PARQUET": 1} {
		got := queryInt(t, output, "SELECT count(*) FROM speech_data WHERE source_file = '"+name+"'")
		if got != want {
			t.Errorf("source_file %s: got %d rows, want %d", name, got, want)
		}
	}
}

func TestRunEmptyDirectory(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "readme.md"), []byte("# nothing"), 0644); err != nil {
		t.Fatal(err)
	}
	output := filepath.Join(t.TempDir(), "out.db")

	_, err := converters.Run(context.Background(), dir, output, nil)
	var noInput *converters.NoInputError
	if !errors.As(err, &noInput) {
		t.Fatalf("expected *converters.NoInputError, got %T: %v", err, err)
	}
	if noInput.Ext != converters.DefaultExtension {
		t.Errorf("Ext = %s, want %s", noInput.Ext, converters.DefaultExtension)
	}
	if _, err := os.Stat(output); !os.IsNotExist(err) {
		t.Errorf("expected no database to be created, stat err = %v", err)
	}
}

func TestRunInvalidInput(t *testing.T) {
	dir := t.TempDir()
	output := filepath.Join(dir, "out.db")

	_, err := converters.Run(context.Background(), filepath.Join(dir, "missing.parquet"), output, nil)
	var invalid *converters.InvalidInputError
	if !errors.As(err, &invalid) {
		t.Fatalf("expected *converters.InvalidInputError, got %T: %v", err, err)
	}
	if !errors.Is(err, os.ErrNotExist) {
		t.Errorf("expected the stat error to be preserved, got %v", err)
	}

	txt := filepath.Join(dir, "data.txt")
	if err := os.WriteFile(txt, []byte("hello"), 0644); err != nil {
		t.Fatal(err)
	}
	_, err = converters.Run(context.Background(), txt, output, nil)
	if !errors.As(err, &invalid) {
		t.Fatalf("expected *converters.InvalidInputError for unsupported file, got %T: %v", err, err)
	}

	_, err = converters.Run(context.Background(), dir, output, &converters.RunOptions{Extension: ".txt"})
	if !errors.As(err, &invalid) {
		t.Fatalf("expected *converters.InvalidInputError for unsupported extension, got %T: %v", err, err)
	}

	if _, err := os.Stat(output); !os.IsNotExist(err) {
		t.Errorf("expected no database to be created, stat err = %v", err)
	}
}

func TestRunSkipsMalformedFile(t *testing.T) {
	dir := t.TempDir()
	writeRecords(t, filepath.Join(dir, "a.parquet"), 2, "eng")
	if err := os.WriteFile(filepath.Join(dir, "b.parquet"), []byte("not parquet"), 0644); err != nil {
		t.Fatal(err)
	}
	writeRecords(t, filepath.Join(dir, "c.parquet"), 3, "mya")
	output := filepath.Join(dir, "out.db")

	summary, err := converters.Run(context.Background(), dir, output, nil)
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if summary.FilesAttempted != 3 || summary.FilesSucceeded != 2 || summary.FilesFailed() != 1 {
		t.Errorf("unexpected summary: %+v", summary)
	}
	if summary.OK() {
		t.Error("expected summary to report the failed file")
	}
	if summary.RowsInserted != 5 {
		t.Errorf("RowsInserted = %d, want 5", summary.RowsInserted)
	}

	var readErr *converters.ReadError
	if !errors.As(summary.Files[1].Err, &readErr) {
		t.Errorf("expected *converters.ReadError for b.parquet, got %T: %v", summary.Files[1].Err, summary.Files[1].Err)
	}

	if got := queryInt(t, output, "SELECT count(*) FROM parquet_records WHERE source_file = 'b.parquet'"); got != 0 {
		t.Errorf("expected no rows from the malformed file, got %d", got)
	}
	if got := queryInt(t, output, "SELECT count(*) FROM parquet_records"); got != 5 {
		t.Errorf("expected 5 rows, got %d", got)
	}
}

func TestRunCountsRowErrors(t *testing.T) {
	dir := t.TempDir()
	output := filepath.Join(dir, "out.db")
	ctx := context.Background()

	// Prepare the destination with a trigger that rejects some rows.
	db, err := converters.OpenDB(ctx, output)
	if err != nil {
		t.Fatalf("OpenDB failed: %v", err)
	}
	if err := converters.EnsureSchema(ctx, db, converters.DefaultTable, nil); err != nil {
		t.Fatalf("EnsureSchema failed: %v", err)
	}
	_, err = db.Exec(`CREATE TRIGGER reject_rows BEFORE INSERT ON parquet_records
		WHEN NEW.language = 'reject'
		BEGIN SELECT RAISE(ABORT, 'rejected by trigger'); END`)
	db.Close()
	if err != nil {
		t.Fatalf("failed to create trigger: %v", err)
	}

	input := filepath.Join(dir, "in")
	if err := os.Mkdir(input, 0755); err != nil {
		t.Fatal(err)
	}
	writeRecords(t, filepath.Join(input, "good.parquet"), 3, "eng")
	writeRecords(t, filepath.Join(input, "bad.parquet"), 2, "reject")

	summary, err := converters.Run(ctx, input, output, &converters.RunOptions{
		ImportOptions: converters.ImportOptions{LogErrors: true},
	})
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if summary.FilesSucceeded != 2 || summary.RowsInserted != 3 || summary.RowErrors != 2 {
		t.Errorf("unexpected summary: %+v", summary)
	}
	if !summary.OK() {
		t.Error("row errors must not fail the file")
	}
	if got := len(summary.Files[0].Failures); got != 2 {
		t.Errorf("expected 2 failures on bad.parquet, got %d", got)
	}
	if got := queryInt(t, output, "SELECT count(*) FROM "+converters.ErrorLogTable+" WHERE source_file = 'bad.parquet'"); got != 2 {
		t.Errorf("expected 2 logged errors, got %d", got)
	}
}

func TestRunRecordsFiles(t *testing.T) {
	dir := t.TempDir()
	input := filepath.Join(dir, "speech.parquet")
	output := filepath.Join(dir, "out.db")
	writeRecords(t, input, 2, "eng")

	_, err := converters.Run(context.Background(), input, output, &converters.RunOptions{
		ImportOptions: converters.ImportOptions{RecordFiles: true},
	})
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	if got := queryInt(t, output, "SELECT count(*) FROM "+converters.FileLogTable+" WHERE source_file = 'speech.parquet' AND rows_inserted = 2 AND length(checksum) = 16"); got != 1 {
		t.Errorf("expected one manifest entry, got %d", got)
	}
	info, err := os.Stat(input)
	if err != nil {
		t.Fatal(err)
	}
	if got := queryInt(t, output, "SELECT size FROM "+converters.FileLogTable); int64(got) != info.Size() {
		t.Errorf("manifest size = %d, want %d", got, info.Size())
	}
}

func TestRunCancelled(t *testing.T) {
	dir := t.TempDir()
	input := filepath.Join(dir, "speech.parquet")
	writeRecords(t, input, 2, "eng")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := converters.Run(ctx, input, filepath.Join(dir, "out.db"), nil); err == nil {
		t.Fatal("expected error for cancelled context")
	}
}

type foreignRow struct {
	Amount int64  `parquet:"amount"`
	City   string `parquet:"city"`
}

func TestRunSkipsForeignSchema(t *testing.T) {
	dir := t.TempDir()
	writeRecords(t, filepath.Join(dir, "a.parquet"), 2, "eng")
	if err := parquet.WriteFile(filepath.Join(dir, "b.parquet"), []foreignRow{{Amount: 1, City: "Lima"}, {Amount: 2, City: "Oslo"}}); err != nil {
		t.Fatalf("failed to write fixture: %v", err)
	}
	output := filepath.Join(dir, "out.db")

	summary, err := converters.Run(context.Background(), dir, output, nil)
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if summary.FilesSucceeded != 1 || summary.FilesFailed() != 1 || summary.RowsInserted != 2 {
		t.Errorf("unexpected summary: %+v", summary)
	}
	var readErr *converters.ReadError
	if !errors.As(summary.Files[1].Err, &readErr) {
		t.Errorf("expected *converters.ReadError for b.parquet, got %T: %v", summary.Files[1].Err, summary.Files[1].Err)
	}
	if got := queryInt(t, output, "SELECT count(*) FROM parquet_records WHERE source_file = 'b.parquet'"); got != 0 {
		t.Errorf("expected no rows from the foreign file, got %d", got)
	}
}

func TestRunReportsDanglingSymlink(t *testing.T) {
	dir := t.TempDir()
	writeRecords(t, filepath.Join(dir, "a.parquet"), 2, "eng")
	if err := os.Symlink(filepath.Join(dir, "gone.parquet"), filepath.Join(dir, "b.parquet")); err != nil {
		t.Skipf("symlinks not supported: %v", err)
	}

	summary, err := converters.Run(context.Background(), dir, filepath.Join(dir, "out.db"), nil)
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if summary.FilesAttempted != 2 || summary.FilesFailed() != 1 {
		t.Fatalf("unexpected summary: %+v", summary)
	}
	var readErr *converters.ReadError
	if !errors.As(summary.Files[1].Err, &readErr) || !errors.Is(summary.Files[1].Err, os.ErrNotExist) {
		t.Errorf("expected a not-exist ReadError for b.parquet, got %v", summary.Files[1].Err)
	}
}

func TestRunFileEndingTransaction(t *testing.T) {
	dir := t.TempDir()
	output := filepath.Join(dir, "out.db")
	ctx := context.Background()

	db, err := converters.OpenDB(ctx, output)
	if err != nil {
		t.Fatalf("OpenDB failed: %v", err)
	}
	if err := converters.EnsureSchema(ctx, db, converters.DefaultTable, nil); err != nil {
		t.Fatalf("EnsureSchema failed: %v", err)
	}
	_, err = db.Exec(`CREATE TRIGGER end_tx BEFORE INSERT ON parquet_records
		WHEN NEW.language = 'fatal'
		BEGIN SELECT RAISE(ROLLBACK, 'transaction ended by trigger'); END`)
	db.Close()
	if err != nil {
		t.Fatalf("failed to create trigger: %v", err)
	}

	input := filepath.Join(dir, "in")
	if err := os.Mkdir(input, 0755); err != nil {
		t.Fatal(err)
	}
	writeRecords(t, filepath.Join(input, "a.parquet"), 3, "eng")
	records := []common.Record{
		{Language: common.Str("eng")},
		{Language: common.Str("fatal")},
		{Language: common.Str("eng")},
		{Language: common.Str("eng")},
	}
	if err := parquet.WriteFile(filepath.Join(input, "b.parquet"), records); err != nil {
		t.Fatalf("failed to write fixture: %v", err)
	}

	summary, err := converters.Run(ctx, input, output, nil)
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if summary.FilesSucceeded != 1 || summary.FilesFailed() != 1 {
		t.Errorf("unexpected summary: %+v", summary)
	}
	if summary.Files[1].Inserted != 0 || summary.Files[1].Err == nil {
		t.Errorf("expected b.parquet to fail without inserts, got %+v", summary.Files[1])
	}
	total := queryInt(t, output, "SELECT count(*) FROM parquet_records")
	if total != summary.RowsInserted || total != 3 {
		t.Errorf("table holds %d rows, summary reports %d", total, summary.RowsInserted)
	}
}
