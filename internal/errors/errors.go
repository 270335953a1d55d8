// Package errors defines the build error model shared by the asset tasks and
// the preview server: located build errors, a thread-safe collector keyed by
// task, and the browser error overlay.
package errors

import (
	"fmt"
	"sort"
	"sync"
	"time"
)

// BuildError represents a located transform error
type BuildError struct {
	Task      string        `json:"task"`
	File      string        `json:"file"`
	Line      int           `json:"line"`
	Column    int           `json:"column"`
	Message   string        `json:"message"`
	Severity  ErrorSeverity `json:"severity"`
	Timestamp time.Time     `json:"timestamp"`
}

// ErrorSeverity represents the severity of an error
type ErrorSeverity int

const (
	ErrorSeverityInfo ErrorSeverity = iota
	ErrorSeverityWarning
	ErrorSeverityError
	ErrorSeverityFatal
)

// String returns the string representation of the severity
func (s ErrorSeverity) String() string {
	switch s {
	case ErrorSeverityInfo:
		return "info"
	case ErrorSeverityWarning:
		return "warning"
	case ErrorSeverityError:
		return "error"
	case ErrorSeverityFatal:
		return "fatal"
	default:
		return "unknown"
	}
}

// Error implements the error interface
func (be *BuildError) Error() string {
	if be.File == "" {
		return fmt.Sprintf("%s: %s", be.Severity, be.Message)
	}
	if be.Line == 0 {
		return fmt.Sprintf("%s: %s: %s", be.File, be.Severity, be.Message)
	}
	return fmt.Sprintf("%s:%d:%d: %s: %s", be.File, be.Line, be.Column, be.Severity, be.Message)
}

// ErrorCollector keeps the latest build errors of every task. A new run of a
// task replaces that task's errors and leaves other tasks' errors alone.
type ErrorCollector struct {
	byTask map[string][]BuildError
	mutex  sync.RWMutex
}

// NewErrorCollector creates a new error collector
func NewErrorCollector() *ErrorCollector {
	return &ErrorCollector{
		byTask: make(map[string][]BuildError),
	}
}

// Replace sets the errors recorded for task. An empty slice clears them.
func (ec *ErrorCollector) Replace(task string, errs []BuildError) {
	ec.mutex.Lock()
	defer ec.mutex.Unlock()

	if len(errs) == 0 {
		delete(ec.byTask, task)
		return
	}

	now := time.Now()
	stored := make([]BuildError, len(errs))
	for i, err := range errs {
		err.Task = task
		if err.Timestamp.IsZero() {
			err.Timestamp = now
		}
		stored[i] = err
	}
	ec.byTask[task] = stored
}

// GetErrors returns all collected errors ordered by task name
func (ec *ErrorCollector) GetErrors() []BuildError {
	ec.mutex.RLock()
	defer ec.mutex.RUnlock()

	tasks := make([]string, 0, len(ec.byTask))
	for task := range ec.byTask {
		tasks = append(tasks, task)
	}
	sort.Strings(tasks)

	result := make([]BuildError, 0)
	for _, task := range tasks {
		result = append(result, ec.byTask[task]...)
	}
	return result
}

// GetErrorsByTask returns errors for a specific task
func (ec *ErrorCollector) GetErrorsByTask(task string) []BuildError {
	ec.mutex.RLock()
	defer ec.mutex.RUnlock()
	return append([]BuildError(nil), ec.byTask[task]...)
}

// HasErrors returns true if there are any errors
func (ec *ErrorCollector) HasErrors() bool {
	ec.mutex.RLock()
	defer ec.mutex.RUnlock()
	return len(ec.byTask) > 0
}

// Clear clears all errors
func (ec *ErrorCollector) Clear() {
	ec.mutex.Lock()
	defer ec.mutex.Unlock()
	ec.byTask = make(map[string][]BuildError)
}
