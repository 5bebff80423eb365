package logger

import (
	"github.com/stretchr/testify/mock"
)

// MockLogger is a testify mock of Logger.
//
// Log calls are recorded as (msg, keysAndValues), so an expectation looks like
// m.On("Error", "board session ended", mock.Anything). With records its arguments and returns the
// mock itself, so expectations set on a parent also match child loggers.
type MockLogger struct {
	mock.Mock
}

var _ Logger = (*MockLogger)(nil)

// NewMockLogger creates a MockLogger that accepts With calls without an expectation.
func NewMockLogger() *MockLogger {
	m := &MockLogger{}
	m.On("With", mock.Anything).Return().Maybe()

	return m
}

func (m *MockLogger) Debug(msg string, keysAndValues ...any) {
	m.MethodCalled("Debug", msg, keysAndValues)
}

func (m *MockLogger) Info(msg string, keysAndValues ...any) {
	m.MethodCalled("Info", msg, keysAndValues)
}

func (m *MockLogger) Warn(msg string, keysAndValues ...any) {
	m.MethodCalled("Warn", msg, keysAndValues)
}

func (m *MockLogger) Error(msg string, keysAndValues ...any) {
	m.MethodCalled("Error", msg, keysAndValues)
}

func (m *MockLogger) Fatal(msg string, keysAndValues ...any) {
	m.MethodCalled("Fatal", msg, keysAndValues)
}

func (m *MockLogger) SetLevel(level LogLevel) {
	m.MethodCalled("SetLevel", level)
}

func (m *MockLogger) Level() LogLevel {
	args := m.MethodCalled("Level")
	return args.Get(0).(LogLevel)
}

func (m *MockLogger) With(keyValues ...any) Logger {
	m.MethodCalled("With", keyValues)
	return m
}
