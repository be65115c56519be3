// Package logging provides the process-wide logger.
package logging

import (
	"strings"
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var (
	mu     sync.RWMutex
	sugar  = zap.NewNop().Sugar()
	level  = zap.NewAtomicLevelAt(zapcore.InfoLevel)
	logger *zap.Logger
)

// Init builds the global logger at the named level (debug, info, warn, error)
func Init(levelName string, development bool) error {
	lvl, err := ParseLevel(levelName)
	if err != nil {
		return err
	}
	level.SetLevel(lvl)

	cfg := zap.NewProductionConfig()
	if development {
		cfg = zap.NewDevelopmentConfig()
	}
	cfg.Level = level
	cfg.EncoderConfig.TimeKey = "ts"
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	l, err := cfg.Build()
	if err != nil {
		return err
	}
	Set(l)
	return nil
}

// Set replaces the global logger
func Set(l *zap.Logger) {
	mu.Lock()
	defer mu.Unlock()
	logger = l
	sugar = l.Sugar()
}

func sugared() *zap.SugaredLogger {
	mu.RLock()
	defer mu.RUnlock()
	return sugar
}

// SetLevel changes the level of the logger built by Init without rebuilding it
func SetLevel(name string) error {
	lvl, err := ParseLevel(name)
	if err != nil {
		return err
	}
	level.SetLevel(lvl)
	return nil
}

// ParseLevel maps a level name to a zap level. An empty name is info.
func ParseLevel(name string) (zapcore.Level, error) {
	if strings.TrimSpace(name) == "" {
		return zapcore.InfoLevel, nil
	}
	return zapcore.ParseLevel(strings.ToLower(name))
}

// Sync flushes buffered entries
func Sync() {
	mu.RLock()
	l := logger
	mu.RUnlock()
	if l != nil {
		_ = l.Sync()
	}
}

func Debugf(format string, args ...interface{}) { sugared().Debugf(format, args...) }
func Infof(format string, args ...interface{})  { sugared().Infof(format, args...) }
func Warnf(format string, args ...interface{})  { sugared().Warnf(format, args...) }
func Errorf(format string, args ...interface{}) { sugared().Errorf(format, args...) }
