package cache

import (
	"runtime/debug"

	"github.com/civicpulse/smartcache/pkg/observability"
)

// RecoverMiddleware wraps functions with panic recovery
func RecoverMiddleware(logger observability.Logger, operation string) func(func()) {
	return func(fn func()) {
		defer func() {
			if r := recover(); r != nil {
				logger.Error("Panic recovered", map[string]interface{}{
					"operation": operation,
					"panic":     r,
					"stack":     string(debug.Stack()),
				})
			}
		}()

		fn()
	}
}

// RecoverWithMetrics wraps functions with panic recovery and metrics recording
func RecoverWithMetrics(logger observability.Logger, metrics observability.MetricsClient, operation string) func(func()) {
	return func(fn func()) {
		defer func() {
			if r := recover(); r != nil {
				logger.Error("Panic recovered", map[string]interface{}{
					"operation": operation,
					"panic":     r,
					"stack":     string(debug.Stack()),
				})

				// Record metric
				if metrics != nil {
					metrics.IncrementCounterWithLabels("cache_panic_recovered_total", 1, map[string]string{
						"operation": operation,
					})
				}
			}
		}()

		fn()
	}
}

// SafeGo runs a goroutine with panic recovery
func SafeGo(logger observability.Logger, operation string, fn func()) {
	go func() {
		defer func() {
			if r := recover(); r != nil {
				logger.Error("Panic recovered in goroutine", map[string]interface{}{
					"operation": operation,
					"panic":     r,
					"stack":     string(debug.Stack()),
				})
			}
		}()

		fn()
	}()
}
