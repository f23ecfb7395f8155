package common

// ConversionConfig stores configuration options for the conversion process.
type ConversionConfig struct {
	TableName string   // Name of the destination table
	Verbose   bool     // Enable detailed logging
	InputPath string   // Path to the input file, used for error messages
	Progress  Progress // Receives read ticks; nil means silent
}

// ProgressOrNop returns the configured reporter or a silent one.
func (c *ConversionConfig) ProgressOrNop() Progress {
	if c == nil || c.Progress == nil {
		return NopProgress{}
	}
	return c.Progress
}
