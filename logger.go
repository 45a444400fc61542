package fymodules

// Logger defines the interface used for all registry and lifecycle logging.
// Messages are structured with key-value pairs:
//
//	logger.Info("Module enabled", "module", "hour-tracker", "actor", "u-42")
//
// The shape matches log/slog, so a *slog.Logger satisfies it directly.
type Logger interface {
	// Info logs normal lifecycle events such as a module being enabled.
	Info(msg string, args ...any)

	// Error logs failures that were handled, for example a deactivation hook
	// that returned an error.
	Error(msg string, args ...any)

	// Warn logs conditions that need operator attention, such as a module
	// quarantined after its activation hook failed.
	Warn(msg string, args ...any)

	// Debug logs detailed diagnostic information.
	Debug(msg string, args ...any)
}

type nopLogger struct{}

func (nopLogger) Info(string, ...any)  {}
func (nopLogger) Error(string, ...any) {}
func (nopLogger) Warn(string, ...any)  {}
func (nopLogger) Debug(string, ...any) {}

// NopLogger returns a Logger that discards everything.
func NopLogger() Logger {
	return nopLogger{}
}
