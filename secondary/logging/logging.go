// Package logging is the manager's small logging facade. It keeps the
// teacher repo's printf-style call convention (Infof/Errorf/...) while
// delegating the actual write to a go-kit/log logger so records come out
// structured.
package logging

import (
	"fmt"
	"os"
	"sync"

	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
)

var (
	mu      sync.RWMutex
	base    log.Logger = log.NewLogfmtLogger(log.NewSyncWriter(os.Stderr))
	current log.Logger = level.NewFilter(base, level.AllowAll())
)

// SetLogger replaces the package-wide backing logger. Intended for tests
// and for cmd/vectorindexd to redirect output.
func SetLogger(l log.Logger) {
	mu.Lock()
	defer mu.Unlock()
	base = l
	current = l
}

// Logger is a fielded logger returned by With; every call site can carry
// its own context (region_id, run_id, ...) without threading it through
// every function signature.
type Logger struct {
	kv []interface{}
}

// With returns a child logger tagging every subsequent line with kv pairs.
func With(kv ...interface{}) *Logger {
	return &Logger{kv: kv}
}

func get() log.Logger {
	mu.RLock()
	defer mu.RUnlock()
	return current
}

func logf(l log.Logger, lvl level.Value, format string, args ...interface{}) {
	_ = level.Log(l, lvl, "msg", fmt.Sprintf(format, args...))
}

func (l *Logger) with(base log.Logger) log.Logger {
	if len(l.kv) == 0 {
		return base
	}
	return log.With(base, l.kv...)
}

func (l *Logger) Tracef(format string, args ...interface{}) { logf(l.with(get()), level.DebugValue(), format, args...) }
func (l *Logger) Debugf(format string, args ...interface{}) { logf(l.with(get()), level.DebugValue(), format, args...) }
func (l *Logger) Infof(format string, args ...interface{})  { logf(l.with(get()), level.InfoValue(), format, args...) }
func (l *Logger) Warnf(format string, args ...interface{})  { logf(l.with(get()), level.WarnValue(), format, args...) }
func (l *Logger) Errorf(format string, args ...interface{}) { logf(l.with(get()), level.ErrorValue(), format, args...) }

// Package-level convenience functions (logging.Infof("...: %v", err)) for
// call sites that have no per-call fields.

func Tracef(format string, args ...interface{}) { logf(get(), level.DebugValue(), format, args...) }
func Debugf(format string, args ...interface{}) { logf(get(), level.DebugValue(), format, args...) }
func Infof(format string, args ...interface{})  { logf(get(), level.InfoValue(), format, args...) }
func Warnf(format string, args ...interface{})  { logf(get(), level.WarnValue(), format, args...) }
func Errorf(format string, args ...interface{}) { logf(get(), level.ErrorValue(), format, args...) }

func Fatalf(format string, args ...interface{}) {
	logf(get(), level.ErrorValue(), format, args...)
	os.Exit(1)
}
