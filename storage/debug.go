package storage

import (
	"sync/atomic"

	"go.uber.org/zap"
)

var queryLogger atomic.Pointer[zap.Logger]

// SetLogger installs the logger used by DebugLog. A nil logger silences it.
func SetLogger(l *zap.Logger) {
	queryLogger.Store(l)
}

// DebugLog records a statement at debug level. Argument values are not
// logged since they may carry page bodies or attachment bytes.
func DebugLog(query string, args ...any) {
	l := queryLogger.Load()
	if l == nil {
		return
	}
	l.Debug("storage query", zap.String("query", query), zap.Int("args", len(args)))
}
