package util

import (
	"time"

	"go.uber.org/zap"
)

// Trace logs how long a stage took. Use as `defer util.Trace("stage")()`.
func Trace(msg string) func() {
	start := time.Now()
	return func() {
		zap.L().Debug(msg, zap.Duration("elapsed", time.Since(start)))
	}
}
