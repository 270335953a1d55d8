// Package metrics provides task and live-reload metrics.
//
// Components receive a Recorder and never check for nil: NoopRecorder is the
// default and the Prometheus recorder is swapped in when the preview server
// exposes /metrics.
package metrics

import "time"

// Recorder defines observability hooks for task runs and live reload.
type Recorder interface {
	ObserveTaskDuration(task string, d time.Duration)
	IncTaskResult(task string, status string)
	IncWatchTrigger(task string)
	IncReloadBroadcast(kind string)
	SetReloadClients(n int)
}

// NoopRecorder is a Recorder that does nothing (default when metrics not configured).
type NoopRecorder struct{}

func (NoopRecorder) ObserveTaskDuration(string, time.Duration) {}
func (NoopRecorder) IncTaskResult(string, string)              {}
func (NoopRecorder) IncWatchTrigger(string)                    {}
func (NoopRecorder) IncReloadBroadcast(string)                 {}
func (NoopRecorder) SetReloadClients(int)                      {}
