package logger

type nopLogger struct{}

// NewNop returns a Logger that discards every message.
func NewNop() Logger {
	return nopLogger{}
}

func (nopLogger) Debug(string, ...any) {}
func (nopLogger) Info(string, ...any)  {}
func (nopLogger) Warn(string, ...any)  {}
func (nopLogger) Error(string, ...any) {}
func (nopLogger) Fatal(string, ...any) {}

func (n nopLogger) With(...any) Logger { return n }

func (nopLogger) Level() LogLevel { return FatalLevel }

func (nopLogger) SetLevel(LogLevel) {}
