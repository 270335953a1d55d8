// Package tasks implements the asset transform tasks and the clean and deploy
// steps. Every task reads from the project directory, writes under the output
// root and reports a Result; tasks never call each other.
package tasks

import (
	"fmt"
	"time"
)

// Status classifies how a task run ended.
type Status int

const (
	// StatusSucceeded means every input was processed.
	StatusSucceeded Status = iota
	// StatusRecovered means a transform rejected some input. The error was
	// logged and reported, and the run still counts as done.
	StatusRecovered
	// StatusFailed means an I/O or infrastructure error aborted the run.
	StatusFailed
)

// String returns the string representation of the Status
func (s Status) String() string {
	switch s {
	case StatusSucceeded:
		return "succeeded"
	case StatusRecovered:
		return "recovered"
	case StatusFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Result is the outcome of a single task run.
type Result struct {
	Task     string
	Status   Status
	Err      error
	Outputs  []string
	Duration time.Duration
	RunID    string
}

// Failed reports whether the run aborted.
func (r Result) Failed() bool {
	return r.Status == StatusFailed
}

func (r Result) String() string {
	if r.Err != nil {
		return fmt.Sprintf("%s %s: %v", r.Task, r.Status, r.Err)
	}
	return fmt.Sprintf("%s %s (%d outputs)", r.Task, r.Status, len(r.Outputs))
}

// Succeeded returns a successful result.
func Succeeded(task string, outputs []string) Result {
	return Result{Task: task, Status: StatusSucceeded, Outputs: outputs}
}

// Failed returns an aborted result wrapping err.
func Failed(task string, outputs []string, err error) Result {
	return Result{Task: task, Status: StatusFailed, Outputs: outputs, Err: err}
}
