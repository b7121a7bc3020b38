package logger

import (
	"fmt"
	"sync"
	"time"
)

// ProgressTracker logs periodic progress for batch work such as scoring a
// large staged batch.
type ProgressTracker struct {
	logger      Logger
	operation   string
	total       int64
	current     int64
	startTime   time.Time
	lastLogTime time.Time
	logInterval time.Duration
	mutex       sync.Mutex
}

// ProgressConfig configures progress tracking behavior
type ProgressConfig struct {
	Operation   string
	Total       int64
	LogInterval time.Duration
	Logger      Logger
}

// NewProgressTracker creates a new progress tracker
func NewProgressTracker(config ProgressConfig) *ProgressTracker {
	if config.Logger == nil {
		config.Logger = GetGlobalLogger()
	}
	if config.LogInterval == 0 {
		config.LogInterval = 2 * time.Second
	}

	now := time.Now()
	return &ProgressTracker{
		logger:      config.Logger.WithComponent("progress"),
		operation:   config.Operation,
		total:       config.Total,
		startTime:   now,
		lastLogTime: now,
		logInterval: config.LogInterval,
	}
}

// Increment advances the counter by one and logs if the interval elapsed
func (p *ProgressTracker) Increment() {
	p.mutex.Lock()
	defer p.mutex.Unlock()

	p.current++
	now := time.Now()
	if now.Sub(p.lastLogTime) >= p.logInterval {
		p.logger.WithFields(Fields{
			"operation":  p.operation,
			"processed":  p.current,
			"total":      p.total,
			"percentage": fmt.Sprintf("%.1f%%", p.percentage()),
		}).Info("Progress update")
		p.lastLogTime = now
	}
}

// Complete logs final statistics
func (p *ProgressTracker) Complete() {
	p.mutex.Lock()
	defer p.mutex.Unlock()

	p.logger.WithFields(Fields{
		"operation": p.operation,
		"processed": p.current,
		"duration":  time.Since(p.startTime).String(),
	}).Debug("Operation completed")
}

// Current returns the number of processed items
func (p *ProgressTracker) Current() int64 {
	p.mutex.Lock()
	defer p.mutex.Unlock()
	return p.current
}

func (p *ProgressTracker) percentage() float64 {
	if p.total <= 0 {
		return 0
	}
	return float64(p.current) / float64(p.total) * 100
}

// OperationLogger provides structured logging for a multi-step operation
type OperationLogger struct {
	logger    Logger
	operation string
	fields    Fields
	startTime time.Time
}

// NewOperationLogger creates a new operation logger
func NewOperationLogger(operation string, logger Logger) *OperationLogger {
	if logger == nil {
		logger = GetGlobalLogger()
	}

	ol := &OperationLogger{
		logger:    logger,
		operation: operation,
		fields:    Fields{"operation": operation},
		startTime: time.Now(),
	}

	ol.logger.WithFields(ol.fields).Info("Starting operation")
	return ol
}

// WithField adds a field to the operation context
func (ol *OperationLogger) WithField(key string, value interface{}) *OperationLogger {
	ol.fields[key] = value
	return ol
}

func (ol *OperationLogger) with(extra Fields) Logger {
	fields := make(Fields, len(ol.fields)+len(extra))
	for k, v := range ol.fields {
		fields[k] = v
	}
	for k, v := range extra {
		fields[k] = v
	}
	return ol.logger.WithFields(fields)
}

// Step logs the completion of a named step with its duration
func (ol *OperationLogger) Step(step string, took time.Duration) {
	ol.with(Fields{"step": step, "took": took.String()}).Info("Operation step")
}

// StepFailed logs a failed step. Fatal failures log at error level,
// soft ones at warn.
func (ol *OperationLogger) StepFailed(step string, fatal bool, err error) {
	l := ol.with(Fields{"step": step, "fatal": fatal}).WithError(err)
	if fatal {
		l.Error("Operation step failed")
		return
	}
	l.Warn("Operation step failed, continuing")
}

// Success completes the operation successfully
func (ol *OperationLogger) Success(message string) {
	ol.with(Fields{
		"duration": time.Since(ol.startTime).String(),
		"status":   "success",
	}).Info(message)
}

// Error completes the operation with an error
func (ol *OperationLogger) Error(err error, message string) {
	ol.with(Fields{
		"duration": time.Since(ol.startTime).String(),
		"status":   "error",
	}).WithError(err).Error(message)
}
