package monitoring

import (
	"log"
	"sync"
)

var (
	mu     sync.RWMutex
	logger = log.Printf
)

// Logf writes a diagnostic line through the current logger, log.Printf
// unless SetLogger replaced it. Safe for concurrent use.
func Logf(format string, v ...interface{}) {
	mu.RLock()
	f := logger
	mu.RUnlock()
	f(format, v...)
}

// SetLogger replaces the logger and returns a func restoring the previous
// one. A nil f mutes logging.
func SetLogger(f func(format string, v ...interface{})) (restore func()) {
	if f == nil {
		f = func(string, ...interface{}) {}
	}
	mu.Lock()
	prev := logger
	logger = f
	mu.Unlock()
	return func() {
		mu.Lock()
		logger = prev
		mu.Unlock()
	}
}
