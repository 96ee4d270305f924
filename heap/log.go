package heap

import "go.uber.org/zap"

// noopLogger is used when no *zap.Logger is supplied via WithLogger, so
// that collection-cycle logging calls never need a nil check.
func noopLogger() *zap.Logger {
	return zap.NewNop()
}
