// Package loggertest captures log entries for assertions in tests.
package loggertest

import (
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
	"go.uber.org/zap/zapcore"

	"github.com/mind-engage/mindengage-obe/internal/logger"
)

// Observed returns a logger whose entries are captured for inspection.
func Observed() (*logger.Logger, *observer.ObservedLogs) {
	core, logs := observer.New(zapcore.DebugLevel)
	return &logger.Logger{SugaredLogger: zap.New(core).Sugar()}, logs
}
