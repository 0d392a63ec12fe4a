package asynchost

import (
	"sync"

	"go.uber.org/zap"
)

var (
	logger     *zap.Logger
	loggerOnce sync.Once
)

// Logger returns this package's logger. It is a no-op logger by default;
// see SetLogger to wire one up.
func Logger() *zap.Logger {
	loggerOnce.Do(func() {
		if logger == nil {
			logger = zap.NewNop()
		}
	})
	return logger
}

// SetLogger installs l as the package logger. Call before driving any
// instance; it is not safe to call concurrently with RunAsync.
func SetLogger(l *zap.Logger) {
	loggerOnce.Do(func() {})
	logger = l
}
