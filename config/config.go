package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/hashicorp/hcl/v2/gohcl"
	"github.com/hashicorp/hcl/v2/hclparse"
	"github.com/hashicorp/hcl/v2/hclwrite"
	"github.com/joho/godotenv"
	"github.com/zclconf/go-cty/cty"
)

const (
	DefaultOutput    = "output.db"
	DefaultTable     = "parquet_records"
	DefaultExtension = ".parquet"

	// EnvPrefix prefixes every environment override.
	EnvPrefix = "PARQUET2SQLITE_"
)

// Config represents the application configuration.
type Config struct {
	OutputPath  string `hcl:"output,optional"`
	TableName   string `hcl:"table,optional"`
	Extension   string `hcl:"extension,optional"`
	LogErrors   bool   `hcl:"log_errors,optional"`
	RecordFiles bool   `hcl:"record_files,optional"`
	Verbose     bool   `hcl:"verbose,optional"`
	MetricsFile string `hcl:"metrics_file,optional"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		OutputPath: DefaultOutput,
		TableName:  DefaultTable,
		Extension:  DefaultExtension,
	}
}

// Load reads the configuration from the given HCL file.
func Load(path string) (*Config, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	parser := hclparse.NewParser()
	file, diags := parser.ParseHCL(content, path)
	if diags.HasErrors() {
		return nil, fmt.Errorf("failed to parse config file: %s", diags.Error())
	}

	cfg := DefaultConfig()
	diags = gohcl.DecodeBody(file.Body, nil, cfg)
	if diags.HasErrors() {
		return nil, fmt.Errorf("failed to decode config: %s", diags.Error())
	}

	return cfg, nil
}

// Export writes the configuration to the specified file in HCL format.
func Export(path string, cfg *Config) error {
	f := hclwrite.NewEmptyFile()
	root := f.Body()

	root.SetAttributeValue("output", cty.StringVal(cfg.OutputPath))
	root.SetAttributeValue("table", cty.StringVal(cfg.TableName))
	root.SetAttributeValue("extension", cty.StringVal(cfg.Extension))
	root.SetAttributeValue("log_errors", cty.BoolVal(cfg.LogErrors))
	root.SetAttributeValue("record_files", cty.BoolVal(cfg.RecordFiles))
	root.SetAttributeValue("verbose", cty.BoolVal(cfg.Verbose))
	if cfg.MetricsFile != "" {
		root.SetAttributeValue("metrics_file", cty.StringVal(cfg.MetricsFile))
	}

	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create config file: %w", err)
	}
	defer file.Close()

	_, err = file.Write(f.Bytes())
	if err != nil {
		return fmt.Errorf("failed to write config to file: %w", err)
	}

	return nil
}

// ApplyEnv overrides cfg with PARQUET2SQLITE_* variables. Values from
// envFile are read first; the process environment takes precedence over
// them. A missing envFile is an error only when one was named explicitly.
func ApplyEnv(cfg *Config, envFile string) error {
	fileEnv := map[string]string{}
	if envFile != "" {
		var err error
		fileEnv, err = godotenv.Read(envFile)
		if err != nil {
			return fmt.Errorf("failed to read env file: %w", err)
		}
	}

	lookup := func(key string) string {
		if v, ok := os.LookupEnv(EnvPrefix + key); ok {
			return v
		}
		return fileEnv[EnvPrefix+key]
	}

	if v := lookup("OUTPUT"); v != "" {
		cfg.OutputPath = v
	}
	if v := lookup("TABLE"); v != "" {
		cfg.TableName = v
	}
	if v := lookup("EXTENSION"); v != "" {
		cfg.Extension = v
	}
	if v := lookup("METRICS_FILE"); v != "" {
		cfg.MetricsFile = v
	}

	var err error
	if cfg.LogErrors, err = getEnvAsBool(lookup, "LOG_ERRORS", cfg.LogErrors); err != nil {
		return err
	}
	if cfg.RecordFiles, err = getEnvAsBool(lookup, "RECORD_FILES", cfg.RecordFiles); err != nil {
		return err
	}
	if cfg.Verbose, err = getEnvAsBool(lookup, "VERBOSE", cfg.Verbose); err != nil {
		return err
	}
	return nil
}

func getEnvAsBool(lookup func(string) string, key string, defaultValue bool) (bool, error) {
	valueStr := lookup(key)
	if valueStr == "" {
		return defaultValue, nil
	}

	value, err := strconv.ParseBool(valueStr)
	if err != nil {
		return false, fmt.Errorf("invalid value for %s%s: expected a boolean, got '%s'", EnvPrefix, key, valueStr)
	}

	return value, nil
}

// Validate rejects unusable settings and normalizes the extension to start
// with a dot.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.OutputPath) == "" {
		return errors.New("output path must not be empty")
	}
	if strings.TrimSpace(c.TableName) == "" {
		return errors.New("table name must not be empty")
	}

	ext := strings.TrimSpace(c.Extension)
	if ext == "" || ext == "." {
		return errors.New("extension must not be empty")
	}
	if !strings.HasPrefix(ext, ".") {
		ext = "." + ext
	}
	c.Extension = ext
	return nil
}
