package conf

// Level is the log severity level.
type Level string

const (
	TraceLevel Level = "trace"
	DebugLevel Level = "debug"
	InfoLevel  Level = "info"
	WarnLevel  Level = "warn"
	ErrorLevel Level = "error"
	FatalLevel Level = "fatal"
)

// LogConfig configures the logging backend.
type LogConfig struct {
	// Level is the minimum severity emitted.
	Level Level

	// Format selects the output encoding.
	Format Formatter

	// File is the optional log file path. Empty means stderr only.
	File string

	// Rotation settings, only used when File is set.
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
}

// DefaultConfig returns the configuration used when none is supplied.
func DefaultConfig() *LogConfig {
	return &LogConfig{
		Level:      InfoLevel,
		Format:     ConsoleFormater,
		MaxSizeMB:  100,
		MaxBackups: 3,
		MaxAgeDays: 28,
	}
}
