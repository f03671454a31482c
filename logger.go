package lockcache

// Fields carries structured context for a log line. Keys used by the cache
// are "cache", "key", "wait" and "err".
type Fields map[string]any

// Logger is the leveled sink the cache writes to. Adapters for zap, logrus
// and log/slog live under log/. A nil Options.Logger disables logging.
type Logger interface {
	Debug(msg string, f Fields)
	Info(msg string, f Fields)
	Warn(msg string, f Fields)
	Error(msg string, f Fields)
}

type NopLogger struct{}

func (NopLogger) Debug(string, Fields) {}
func (NopLogger) Info(string, Fields)  {}
func (NopLogger) Warn(string, Fields)  {}
func (NopLogger) Error(string, Fields) {}

// orDefault returns def when v is unset.
func orDefault[T comparable](v, def T) T {
	var zero T
	if v == zero {
		return def
	}
	return v
}
