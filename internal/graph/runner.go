package graph

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/conneroisu/sitegraph/internal/logging"
	"github.com/conneroisu/sitegraph/internal/metrics"
	"github.com/conneroisu/sitegraph/internal/tasks"
)

// Runner executes graph nodes. A node's dependencies run concurrently and a
// failing dependency does not cancel its siblings.
type Runner struct {
	graph    *Graph
	logger   logging.Logger
	recorder metrics.Recorder
	newID    func() string
}

// NewRunner validates g and returns a runner for it.
func NewRunner(g *Graph, logger logging.Logger, recorder metrics.Recorder) (*Runner, error) {
	if err := g.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = logging.NewNop()
	}
	if recorder == nil {
		recorder = metrics.NoopRecorder{}
	}
	return &Runner{
		graph:    g,
		logger:   logger.WithComponent("runner"),
		recorder: recorder,
		newID:    uuid.NewString,
	}, nil
}

// Graph returns the graph the runner executes.
func (r *Runner) Graph() *Graph {
	return r.graph
}

// Run executes name after its dependencies. Every node reachable from name
// runs at most once per call. Results are returned in completion order; the
// error joins the errors of every failed node.
func (r *Runner) Run(ctx context.Context, name string) ([]tasks.Result, error) {
	if _, ok := r.graph.Node(name); !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownTask, name)
	}

	rn := &run{
		runner: r,
		id:     r.newID(),
		calls:  make(map[string]*call),
	}

	r.logger.Debug(ctx, "Run started", "task", name, "run_id", rn.id)
	rn.exec(ctx, name)

	var errs []error
	for _, res := range rn.results {
		if res.Failed() {
			errs = append(errs, fmt.Errorf("%s: %w", res.Task, res.Err))
		}
	}
	return rn.results, errors.Join(errs...)
}

// run is the state of one Run call.
type run struct {
	runner *Runner
	id     string

	mu      sync.Mutex
	calls   map[string]*call
	results []tasks.Result
}

type call struct {
	done chan struct{}
	res  tasks.Result
}

// exec runs name once per run. Concurrent callers for the same node wait for
// the first one.
func (rn *run) exec(ctx context.Context, name string) tasks.Result {
	rn.mu.Lock()
	if c, ok := rn.calls[name]; ok {
		rn.mu.Unlock()
		<-c.done
		return c.res
	}
	c := &call{done: make(chan struct{})}
	rn.calls[name] = c
	rn.mu.Unlock()

	c.res = rn.execNode(ctx, name)
	close(c.done)
	return c.res
}

func (rn *run) execNode(ctx context.Context, name string) tasks.Result {
	node, _ := rn.runner.graph.Node(name)

	var group errgroup.Group
	for _, dep := range node.Deps {
		group.Go(func() error {
			if res := rn.exec(ctx, dep); res.Failed() {
				return fmt.Errorf("%s: %w", dep, res.Err)
			}
			return nil
		})
	}
	if err := group.Wait(); err != nil {
		res := tasks.Failed(name, nil, fmt.Errorf("%w: %w", ErrDependencyFailed, err))
		if node.Run != nil {
			rn.runner.logger.Warn(ctx, err, "Task skipped", "task", name, "run_id", rn.id)
			rn.record(ctx, res)
		}
		return res
	}

	if node.Run == nil {
		return tasks.Succeeded(name, nil)
	}
	if err := ctx.Err(); err != nil {
		res := tasks.Failed(name, nil, err)
		rn.record(ctx, res)
		return res
	}

	start := time.Now()
	res := node.Run(ctx)
	res.Task = name
	res.Duration = time.Since(start)
	res.RunID = rn.id

	rn.record(ctx, res)
	return res
}

func (rn *run) record(ctx context.Context, res tasks.Result) {
	res.RunID = rn.id

	rn.mu.Lock()
	rn.results = append(rn.results, res)
	rn.mu.Unlock()

	r := rn.runner
	r.recorder.IncTaskResult(res.Task, res.Status.String())
	r.recorder.ObserveTaskDuration(res.Task, res.Duration)

	kv := []interface{}{
		"task", res.Task,
		"run_id", res.RunID,
		"status", res.Status.String(),
		"duration", res.Duration,
		"outputs", len(res.Outputs),
	}
	switch res.Status {
	case tasks.StatusFailed:
		r.logger.Error(ctx, res.Err, "Task failed", kv...)
	case tasks.StatusRecovered:
		r.logger.Warn(ctx, res.Err, "Task finished with errors", kv...)
	default:
		r.logger.Info(ctx, "Task finished", kv...)
	}
}
