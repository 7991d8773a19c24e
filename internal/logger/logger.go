package logger

// Log levels used across the application.
const (
	DebugLevel = "debug"
	InfoLevel  = "info"
	WarnLevel  = "warn"
	ErrorLevel = "error"
)

// New returns a console logger at the given level. Each component receives the
// logger explicitly and derives its own name with Named.
func New(level string) *Logger {
	return newZapLogger(level)
}

// Nop returns a logger that discards everything; used by tests and tools.
func Nop() *Logger {
	return newNopLogger()
}
