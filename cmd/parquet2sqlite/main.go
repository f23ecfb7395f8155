package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"time"

	"github.com/darianmavgo/parquet2sqlite/config"
	"github.com/darianmavgo/parquet2sqlite/converters"
	_ "github.com/darianmavgo/parquet2sqlite/converters/all"
	"github.com/darianmavgo/parquet2sqlite/converters/common"
	"github.com/darianmavgo/parquet2sqlite/metrics"
	"github.com/darianmavgo/parquet2sqlite/metrics/promfile"
	"github.com/darianmavgo/parquet2sqlite/progress"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
)

const inputPrompt = "Enter the path to a parquet file or folder: "

// errFilesFailed makes the process exit non-zero after the summary was printed.
var errFilesFailed = errors.New("one or more files failed to convert")

type cliFlags struct {
	output      string
	table       string
	ext         string
	configFile  string
	envFile     string
	logErrors   bool
	recordFiles bool
	verbose     bool
	sqlMode     bool
	metricsFile string
	noWait      bool
}

func newRootCmd() *cobra.Command {
	var flags cliFlags

	cmd := &cobra.Command{
		Use:   "parquet2sqlite [input]",
		Short: "load parquet speech records into a SQLite database",
		Long: `
Reads a Parquet file, or every file with the configured extension directly
inside a folder, and appends its records to one SQLite table. Each row is
tagged with the name of the file it came from.

When no input is given the path is read from stdin.

Settings are taken from the HCL file named by --config, then PARQUET2SQLITE_*
variables (from --env-file and the environment), then flags.
`,
		Args:          cobra.MaximumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd, args, &flags)
		},
	}

	f := cmd.Flags()
	f.StringVarP(&flags.output, "output", "o", config.DefaultOutput, "SQLite database to write (SQL file in --sql mode)")
	f.StringVarP(&flags.table, "table", "t", config.DefaultTable, "destination table name")
	f.StringVar(&flags.ext, "ext", config.DefaultExtension, "extension of input files when converting a folder")
	f.StringVarP(&flags.configFile, "config", "c", "", "HCL configuration file")
	f.StringVar(&flags.envFile, "env-file", "", "dotenv file with PARQUET2SQLITE_* settings")
	f.BoolVar(&flags.logErrors, "log", false, "record rejected rows in the "+converters.ErrorLogTable+" table")
	f.BoolVar(&flags.recordFiles, "record-files", false, "record each imported file in the "+converters.FileLogTable+" table")
	f.BoolVarP(&flags.verbose, "verbose", "v", false, "log every rejected row and file")
	f.BoolVar(&flags.sqlMode, "sql", false, "write SQL statements instead of a database")
	f.StringVar(&flags.metricsFile, "metrics-file", "", "write Prometheus metrics to this .prom file")
	f.BoolVar(&flags.noWait, "no-wait", false, "do not wait for Enter before exiting")

	return cmd
}

// loadConfig merges the config file, the environment and the flags that were
// set explicitly, in that order.
func loadConfig(cmd *cobra.Command, flags *cliFlags) (*config.Config, error) {
	cfg := config.DefaultConfig()
	if flags.configFile != "" {
		loaded, err := config.Load(flags.configFile)
		if err != nil {
			return nil, err
		}
		cfg = loaded
	}

	if err := config.ApplyEnv(cfg, flags.envFile); err != nil {
		return nil, err
	}

	changed := cmd.Flags().Changed
	if changed("output") {
		cfg.OutputPath = flags.output
	}
	if changed("table") {
		cfg.TableName = flags.table
	}
	if changed("ext") {
		cfg.Extension = flags.ext
	}
	if changed("log") {
		cfg.LogErrors = flags.logErrors
	}
	if changed("record-files") {
		cfg.RecordFiles = flags.recordFiles
	}
	if changed("verbose") {
		cfg.Verbose = flags.verbose
	}
	if changed("metrics-file") {
		cfg.MetricsFile = flags.metricsFile
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

func run(cmd *cobra.Command, args []string, flags *cliFlags) error {
	cfg, err := loadConfig(cmd, flags)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	stdin := cmd.InOrStdin()
	stdout := cmd.OutOrStdout()
	stderr := cmd.ErrOrStderr()

	var inputPath string
	if len(args) > 0 {
		inputPath = args[0]
	} else {
		inputPath, err = readInputPath(stdin, stdout)
		if err != nil {
			return err
		}
	}

	if cfg.MetricsFile != "" {
		backend, err := promfile.NewBackend(cfg.MetricsFile)
		if err != nil {
			return err
		}
		metrics.SetBackend(backend)
		defer func() {
			if err := metrics.Flush(); err != nil {
				log.Printf("[PARQUET2SQLITE] %v", err)
			}
			metrics.SetBackend(nil)
		}()
	}

	if flags.sqlMode {
		var sqlOut string
		if cmd.Flags().Changed("output") {
			sqlOut = cfg.OutputPath
		}
		return exportToSQL(ctx, inputPath, sqlOut, cfg.TableName, stdout)
	}

	summary, err := converters.Run(ctx, inputPath, cfg.OutputPath, &converters.RunOptions{
		ImportOptions: converters.ImportOptions{
			LogErrors:   cfg.LogErrors,
			RecordFiles: cfg.RecordFiles,
			Verbose:     cfg.Verbose,
			Progress:    progress.New(stderr),
		},
		TableName: cfg.TableName,
		Extension: cfg.Extension,
	})
	if summary != nil {
		printSummary(stdout, summary)
	}
	if err == nil && !summary.OK() {
		err = errFilesFailed
	}

	if !flags.noWait && progress.IsTerminal(stdin) {
		waitForEnter(ctx, stdin, stdout)
	}
	return err
}

// readInputPath prompts for the input path and reads one line from r.
// Surrounding quotes, as left by dragging a file into a terminal, are removed.
func readInputPath(r io.Reader, w io.Writer) (string, error) {
	fmt.Fprint(w, inputPrompt)

	line, err := bufio.NewReader(r).ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return "", fmt.Errorf("failed to read input path: %w", err)
	}

	path := strings.TrimSpace(line)
	path = strings.Trim(path, `"'`)
	if path == "" {
		return "", errors.New("no input path given")
	}
	return path, nil
}

// exportToSQL writes the statements for a single file to outputPath, or to
// stdout when outputPath is empty.
func exportToSQL(ctx context.Context, inputPath, outputPath, table string, stdout io.Writer) error {
	driverName, err := converters.DriverForPath(inputPath)
	if err != nil {
		return err
	}

	file, err := os.Open(inputPath)
	if err != nil {
		return fmt.Errorf("failed to open input file: %w", err)
	}
	defer file.Close()

	converter, err := converters.Open(driverName, file, &common.ConversionConfig{
		TableName: common.GenTableName(table),
		InputPath: inputPath,
	})
	if err != nil {
		return fmt.Errorf("failed to initialize converter: %w", err)
	}

	streamConv, ok := converter.(common.StreamConverter)
	if !ok {
		return fmt.Errorf("converter for %s does not support SQL export", driverName)
	}

	writer := stdout
	if outputPath != "" {
		f, err := os.Create(outputPath)
		if err != nil {
			return fmt.Errorf("failed to create output file: %w", err)
		}
		defer f.Close()
		writer = f
	}

	return streamConv.ConvertToSQL(ctx, writer)
}

func printSummary(w io.Writer, s *converters.Summary) {
	fmt.Fprintln(w)
	for _, f := range s.Files {
		name := filepath.Base(f.Path)
		if f.Err != nil {
			fmt.Fprintf(w, "  %s: FAILED: %v\n", name, f.Err)
			continue
		}
		fmt.Fprintf(w, "  %s: %s rows inserted, %s failed (%s)\n",
			name, humanize.Comma(int64(f.Inserted)), humanize.Comma(int64(f.Failed)), f.Duration.Round(time.Millisecond))
	}

	fmt.Fprintf(w, "\nConverted %d of %d file(s) into %s, table %s\n",
		s.FilesSucceeded, s.FilesAttempted, s.OutputPath, s.Table)
	fmt.Fprintf(w, "Rows inserted: %s\n", humanize.Comma(int64(s.RowsInserted)))
	fmt.Fprintf(w, "Row errors:    %s\n", humanize.Comma(int64(s.RowErrors)))
	if info, err := os.Stat(s.OutputPath); err == nil {
		fmt.Fprintf(w, "Database size: %s\n", humanize.Bytes(uint64(info.Size())))
	}
}

// waitForEnter keeps a double-clicked console window open until the user
// presses Enter or interrupts.
func waitForEnter(ctx context.Context, r io.Reader, w io.Writer) {
	fmt.Fprint(w, "\nPress Enter to exit...")
	done := make(chan struct{})
	go func() {
		bufio.NewReader(r).ReadString('\n')
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		fmt.Fprintln(w)
	}
}

func main() {
	cmd := newRootCmd()
	if err := cmd.Execute(); err != nil {
		fmt.Fprintf(cmd.ErrOrStderr(), "Error: %v\n", err)
		os.Exit(1)
	}
}
