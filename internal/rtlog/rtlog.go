// Package rtlog is the runtime's internal diagnostic logger: leveled,
// cheap when disabled, never on the hot dispatch path unless Debug is on.
package rtlog

import (
	"log"
	"os"
	"sync/atomic"
)

var debugEnabled atomic.Bool

var logger = log.New(os.Stderr, "lumen: ", log.LstdFlags)

// SetDebug toggles verbose diagnostics; called once from Config at
// startup, and may be flipped at runtime from a signal handler.
func SetDebug(v bool) { debugEnabled.Store(v) }

func Debugf(format string, args ...interface{}) {
	if debugEnabled.Load() {
		logger.Printf("debug: "+format, args...)
	}
}

func Warnf(format string, args ...interface{}) {
	logger.Printf("warn: "+format, args...)
}

func Errorf(format string, args ...interface{}) {
	logger.Printf("error: "+format, args...)
}
