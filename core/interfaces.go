package core

// Logger interface - minimal logging interface
type Logger interface {
	Info(msg string, fields map[string]interface{})
	Error(msg string, fields map[string]interface{})
	Warn(msg string, fields map[string]interface{})
	Debug(msg string, fields map[string]interface{})
}

// ComponentAwareLogger is implemented by loggers that can tag every entry
// with the component that produced it ("registry", "telemetry/redis", ...).
type ComponentAwareLogger interface {
	Logger
	WithComponent(component string) Logger
}

// ForComponent returns logger tagged with component when it supports it,
// the logger itself otherwise. A nil logger yields a NoOpLogger.
func ForComponent(logger Logger, component string) Logger {
	if logger == nil {
		return &NoOpLogger{}
	}
	if cal, ok := logger.(ComponentAwareLogger); ok {
		return cal.WithComponent(component)
	}
	return logger
}

// NoOpLogger provides a no-op logger implementation
type NoOpLogger struct{}

func (n *NoOpLogger) Info(msg string, fields map[string]interface{})  {}
func (n *NoOpLogger) Error(msg string, fields map[string]interface{}) {}
func (n *NoOpLogger) Warn(msg string, fields map[string]interface{})  {}
func (n *NoOpLogger) Debug(msg string, fields map[string]interface{}) {}
