// Package logging provides a category-based zap logger registry, one
// *zap.Logger per pipeline subsystem. Categories can be selectively
// enabled via IsoCrates_LOG_CATEGORIES (comma-separated) so a noisy
// subsystem can be silenced without touching the others.
package logging

import (
	"os"
	"strings"
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Category identifies a pipeline subsystem for logging purposes.
type Category string

const (
	CategoryAnalyzer     Category = "analyzer"
	CategoryPartitioner  Category = "partitioner"
	CategoryBreaker      Category = "breaker"
	CategoryScout        Category = "scout"
	CategoryPlanner      Category = "planner"
	CategoryWriter       Category = "writer"
	CategoryProvenance   Category = "provenance"
	CategoryRegen        Category = "regen"
	CategoryStore        Category = "store"
	CategoryJobQueue     Category = "jobqueue"
	CategoryOrchestrator Category = "orchestrator"
	CategoryWebhook      Category = "webhook"
	CategoryLLM          Category = "llm"
)

var (
	mu          sync.RWMutex
	loggers     = make(map[Category]*zap.Logger)
	enabled     = make(map[Category]bool)
	allEnabled  = true
	baseBuilt   bool
	base        *zap.Logger
)

func buildBase() *zap.Logger {
	mu.Lock()
	defer mu.Unlock()
	if baseBuilt {
		return base
	}
	cfg := zap.NewProductionConfig()
	if os.Getenv("IsoCrates_DEBUG") == "1" {
		cfg = zap.NewDevelopmentConfig()
		cfg.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
	}
	l, err := cfg.Build()
	if err != nil {
		l = zap.NewNop()
	}
	base = l
	baseBuilt = true

	if list := os.Getenv("IsoCrates_LOG_CATEGORIES"); list != "" {
		allEnabled = false
		for _, c := range strings.Split(list, ",") {
			enabled[Category(strings.TrimSpace(c))] = true
		}
	}
	return base
}

// Enabled reports whether a category is configured to emit logs.
func Enabled(cat Category) bool {
	mu.RLock()
	defer mu.RUnlock()
	if allEnabled {
		return true
	}
	return enabled[cat]
}

// Get returns the logger for a category, building it (and the shared base
// zap logger) on first use. When the category is disabled, returns a no-op
// logger so call sites never need to branch on Enabled themselves.
func Get(cat Category) *zap.Logger {
	buildBase()
	mu.RLock()
	l, ok := loggers[cat]
	mu.RUnlock()
	if ok {
		return l
	}

	mu.Lock()
	defer mu.Unlock()
	if l, ok = loggers[cat]; ok {
		return l
	}
	if !allEnabled && !enabled[cat] {
		l = zap.NewNop()
	} else {
		l = base.With(zap.String("category", string(cat)))
	}
	loggers[cat] = l
	return l
}

// Sync flushes every constructed logger. Safe to call even if nothing was
// ever constructed.
func Sync() {
	mu.RLock()
	defer mu.RUnlock()
	for _, l := range loggers {
		_ = l.Sync()
	}
	if base != nil {
		_ = base.Sync()
	}
}

// ResetForTest clears the registry; intended only for tests that exercise
// category enable/disable behavior.
func ResetForTest() {
	mu.Lock()
	defer mu.Unlock()
	loggers = make(map[Category]*zap.Logger)
	enabled = make(map[Category]bool)
	allEnabled = true
	baseBuilt = false
	base = nil
}
