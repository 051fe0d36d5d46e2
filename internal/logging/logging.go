package logging

import (
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var (
	mu     sync.RWMutex
	logger = zap.NewNop().Sugar()
)

// Configure installs the process logger. Until it is called, logging is a
// no-op, which keeps package tests quiet.
func Configure(verbose bool) error {
	config := zap.NewProductionConfig()
	config.Encoding = "console"
	config.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	config.DisableStacktrace = true
	if verbose {
		config.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
	}
	built, err := config.Build()
	if err != nil {
		return err
	}
	Set(built.Sugar())
	return nil
}

func Set(l *zap.SugaredLogger) {
	mu.Lock()
	logger = l
	mu.Unlock()
}

func L() *zap.SugaredLogger {
	mu.RLock()
	defer mu.RUnlock()
	return logger
}

func Sync() {
	_ = L().Sync()
}
