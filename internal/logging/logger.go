// Package logging provides categorized logging for forgeloop.
// Each subsystem logs under its own category so a single build run can be
// filtered down to the layer being debugged. Categories can be disabled
// individually; when a category is off its helpers are silent no-ops.
package logging

import (
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Category represents a log category/subsystem.
type Category string

const (
	CategoryBoot         Category = "boot"         // Startup and config loading
	CategoryHierarchy    Category = "hierarchy"    // Layer topology, validation, escalation
	CategoryIntent       Category = "intent"       // L0 intent parsing and clarification
	CategorySandbox      Category = "sandbox"      // L3 sandboxed tool execution
	CategoryGates        Category = "gates"        // Gate runner verdicts
	CategoryLifecycle    Category = "lifecycle"    // Adapter wiring and hook dispatch
	CategoryLLM          Category = "llm"          // LLM API calls
	CategoryOrchestrator Category = "orchestrator" // Build loop dispatch
)

// Config controls log level and per-category filtering.
type Config struct {
	Level string `yaml:"level"` // debug, info, warn, error
	// Categories maps category name -> enabled. Empty means all enabled.
	Categories map[string]bool `yaml:"categories"`
	// Development switches to the human-readable console encoder.
	Development bool `yaml:"development"`
}

var (
	mu         sync.RWMutex
	base       = zap.NewNop().Sugar()
	categories map[string]bool
)

// Initialize builds the process-wide logger from config.
// Before Initialize is called all logging is a silent no-op, which keeps
// library consumers and tests quiet by default.
func Initialize(cfg Config) error {
	level := zapcore.InfoLevel
	switch cfg.Level {
	case "debug":
		level = zapcore.DebugLevel
	case "warn", "warning":
		level = zapcore.WarnLevel
	case "error":
		level = zapcore.ErrorLevel
	}

	zc := zap.NewProductionConfig()
	if cfg.Development {
		zc = zap.NewDevelopmentConfig()
	}
	zc.Level = zap.NewAtomicLevelAt(level)

	logger, err := zc.Build(zap.AddCallerSkip(2))
	if err != nil {
		return err
	}

	mu.Lock()
	base = logger.Sugar()
	categories = cfg.Categories
	mu.Unlock()
	return nil
}

// SetLogger replaces the backing logger directly. Used by tests and by
// embedders that already own a zap instance.
func SetLogger(l *zap.Logger) {
	mu.Lock()
	base = l.Sugar()
	mu.Unlock()
}

// Sync flushes buffered log entries.
func Sync() {
	mu.RLock()
	l := base
	mu.RUnlock()
	_ = l.Sync()
}

func enabled(cat Category) bool {
	mu.RLock()
	defer mu.RUnlock()
	if len(categories) == 0 {
		return true
	}
	on, known := categories[string(cat)]
	return !known || on
}

func get(cat Category) *zap.SugaredLogger {
	mu.RLock()
	defer mu.RUnlock()
	return base.Named(string(cat))
}

func logf(cat Category, level zapcore.Level, format string, args ...any) {
	if !enabled(cat) {
		return
	}
	l := get(cat)
	switch level {
	case zapcore.DebugLevel:
		l.Debugf(format, args...)
	case zapcore.InfoLevel:
		l.Infof(format, args...)
	case zapcore.WarnLevel:
		l.Warnf(format, args...)
	case zapcore.ErrorLevel:
		l.Errorf(format, args...)
	}
}

// Boot logs startup events at info level.
func Boot(format string, args ...any) { logf(CategoryBoot, zapcore.InfoLevel, format, args...) }

// Hierarchy helpers.
func Hierarchy(format string, args ...any) {
	logf(CategoryHierarchy, zapcore.InfoLevel, format, args...)
}
func HierarchyDebug(format string, args ...any) {
	logf(CategoryHierarchy, zapcore.DebugLevel, format, args...)
}
func HierarchyWarn(format string, args ...any) {
	logf(CategoryHierarchy, zapcore.WarnLevel, format, args...)
}

// Intent helpers.
func Intent(format string, args ...any) { logf(CategoryIntent, zapcore.InfoLevel, format, args...) }
func IntentDebug(format string, args ...any) {
	logf(CategoryIntent, zapcore.DebugLevel, format, args...)
}

// Sandbox helpers.
func Sandbox(format string, args ...any) { logf(CategorySandbox, zapcore.InfoLevel, format, args...) }
func SandboxDebug(format string, args ...any) {
	logf(CategorySandbox, zapcore.DebugLevel, format, args...)
}
func SandboxWarn(format string, args ...any) {
	logf(CategorySandbox, zapcore.WarnLevel, format, args...)
}

// Gates helpers.
func Gates(format string, args ...any) { logf(CategoryGates, zapcore.InfoLevel, format, args...) }
func GatesDebug(format string, args ...any) {
	logf(CategoryGates, zapcore.DebugLevel, format, args...)
}
func GatesWarn(format string, args ...any) { logf(CategoryGates, zapcore.WarnLevel, format, args...) }

// Lifecycle helpers.
func Lifecycle(format string, args ...any) {
	logf(CategoryLifecycle, zapcore.InfoLevel, format, args...)
}
func LifecycleDebug(format string, args ...any) {
	logf(CategoryLifecycle, zapcore.DebugLevel, format, args...)
}
func LifecycleWarn(format string, args ...any) {
	logf(CategoryLifecycle, zapcore.WarnLevel, format, args...)
}
func LifecycleError(format string, args ...any) {
	logf(CategoryLifecycle, zapcore.ErrorLevel, format, args...)
}

// LLM helpers.
func LLM(format string, args ...any) { logf(CategoryLLM, zapcore.InfoLevel, format, args...) }
func LLMWarn(format string, args ...any) {
	logf(CategoryLLM, zapcore.WarnLevel, format, args...)
}

// Orchestrator helpers.
func Orchestrator(format string, args ...any) {
	logf(CategoryOrchestrator, zapcore.InfoLevel, format, args...)
}
func OrchestratorDebug(format string, args ...any) {
	logf(CategoryOrchestrator, zapcore.DebugLevel, format, args...)
}
func OrchestratorWarn(format string, args ...any) {
	logf(CategoryOrchestrator, zapcore.WarnLevel, format, args...)
}
