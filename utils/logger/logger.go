package logger

import (
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var (
	mu   sync.RWMutex
	base = zap.NewNop().Sugar()
)

// Init builds the process logger. Production uses JSON output at info level,
// anything else a console encoder at debug level.
func Init(goEnv string) error {
	var config zap.Config
	if goEnv == "production" {
		config = zap.NewProductionConfig()
	} else {
		config = zap.NewDevelopmentConfig()
		config.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
	}

	l, err := config.Build()
	if err != nil {
		return err
	}

	Set(l)
	return nil
}

// Set replaces the process logger (tests use zaptest or zap.NewNop)
func Set(l *zap.Logger) {
	mu.Lock()
	base = l.Sugar()
	mu.Unlock()
}

// L returns the shared sugared logger
func L() *zap.SugaredLogger {
	mu.RLock()
	defer mu.RUnlock()
	return base
}

// Named returns a child logger for a component, e.g. logger.Named("extraction")
func Named(name string) *zap.SugaredLogger {
	return L().Named(name)
}

// Sync flushes buffered entries
func Sync() {
	_ = L().Sync()
}

func Debugw(msg string, keysAndValues ...interface{}) { L().Debugw(msg, keysAndValues...) }
func Infow(msg string, keysAndValues ...interface{})  { L().Infow(msg, keysAndValues...) }
func Warnw(msg string, keysAndValues ...interface{})  { L().Warnw(msg, keysAndValues...) }
func Errorw(msg string, keysAndValues ...interface{}) { L().Errorw(msg, keysAndValues...) }
