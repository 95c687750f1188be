package crogger

import (
	"sync"

	"github.com/orgoj/crogger/internal/logger"
)

var (
	defaultMu     sync.RWMutex
	defaultLogger *Logger
)

// Init builds a Logger from cfg and stores it as the process-wide Logger,
// replacing any previous one. The previous Logger is not closed.
func Init(cfg Config) (*Logger, error) {
	l, err := New(cfg)
	if err != nil {
		return nil, err
	}

	defaultMu.Lock()
	defaultLogger = l
	defaultMu.Unlock()
	return l, nil
}

// Default returns the Logger stored by Init. Before Init it logs a warning
// and returns nil.
func Default() *Logger {
	defaultMu.RLock()
	l := defaultLogger
	defaultMu.RUnlock()

	if l == nil {
		logger.GetAppLogger().Warn("crogger: logger not initialized, call crogger.Init first")
	}
	return l
}
