package logutil

import (
	"os"
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var (
	mu     sync.RWMutex
	logger = zap.NewNop()
	level  = zap.NewAtomicLevelAt(zap.InfoLevel)
)

// InitLogger builds the process logger. PERFVIEW_LOG_DEV selects the
// console encoder, PERFVIEW_LOG_LEVEL the initial level.
func InitLogger() {
	if lvl := os.Getenv("PERFVIEW_LOG_LEVEL"); lvl != "" {
		_ = SetLevel(lvl)
	}

	var cfg zap.Config
	if os.Getenv("PERFVIEW_LOG_DEV") != "" {
		cfg = zap.NewDevelopmentConfig()
	} else {
		cfg = zap.NewProductionConfig()
		cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	}
	cfg.Level = level

	l, err := cfg.Build()
	if err != nil {
		l = zap.NewExample()
		l.Warn("falling back to example logger", zap.Error(err))
	}
	SetLogger(l)
}

// SetLevel changes the level of the process logger at runtime.
func SetLevel(lvl string) error {
	parsed, err := zapcore.ParseLevel(lvl)
	if err != nil {
		return err
	}
	level.SetLevel(parsed)
	return nil
}

func SetLogger(l *zap.Logger) {
	mu.Lock()
	defer mu.Unlock()
	logger = l
}

func GetLogger() *zap.Logger {
	mu.RLock()
	defer mu.RUnlock()
	return logger
}
