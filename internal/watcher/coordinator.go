package watcher

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/conneroisu/sitegraph/internal/fsutil"
	"github.com/conneroisu/sitegraph/internal/logging"
	"github.com/conneroisu/sitegraph/internal/metrics"
	"github.com/conneroisu/sitegraph/internal/tasks"
)

// DefaultDebounce is the delay scheduled registrations wait for changes to
// settle.
const DefaultDebounce = 300 * time.Millisecond

// Trigger runs a named graph node. The graph runner implements it.
type Trigger interface {
	Run(ctx context.Context, name string) ([]tasks.Result, error)
}

// TaskFunc is a task invoked directly, without the graph.
type TaskFunc func(ctx context.Context) tasks.Result

// Options configures a Coordinator.
type Options struct {
	// Debounce applies to scheduled registrations. Zero means DefaultDebounce.
	Debounce time.Duration
	// Ignore lists glob patterns whose changes are dropped.
	Ignore []string
	// SkipPaths are root-relative directories never watched, typically the
	// output root.
	SkipPaths []string
}

// Coordinator maps source changes to task runs. While a task is running,
// further changes for it collapse into a single follow-up run.
type Coordinator struct {
	watcher  *FileWatcher
	trigger  Trigger
	logger   logging.Logger
	recorder metrics.Recorder
	debounce time.Duration

	mu         sync.Mutex
	coalescers map[string]*coalescer
	inflight   sync.WaitGroup
	started    bool
}

// NewCoordinator creates a coordinator watching dir.
func NewCoordinator(dir string, opts Options, trigger Trigger, logger logging.Logger, recorder metrics.Recorder) (*Coordinator, error) {
	if logger == nil {
		logger = logging.NewNop()
	}
	if recorder == nil {
		recorder = metrics.NoopRecorder{}
	}

	fw, err := NewFileWatcher(dir, logger)
	if err != nil {
		return nil, err
	}
	fw.AddFilter(NoGitFilter)
	fw.AddFilter(NoEditorFilter)
	fw.AddFilter(IgnoreFilter(opts.Ignore))
	fw.SkipDir(".git")
	fw.SkipDir("node_modules")
	for _, skip := range opts.SkipPaths {
		fw.SkipPath(skip)
	}

	debounce := opts.Debounce
	if debounce <= 0 {
		debounce = DefaultDebounce
	}

	return &Coordinator{
		watcher:    fw,
		trigger:    trigger,
		logger:     logger.WithComponent("watch"),
		recorder:   recorder,
		debounce:   debounce,
		coalescers: make(map[string]*coalescer),
	}, nil
}

// Immediate runs fn as soon as a file matching patterns changes.
func (c *Coordinator) Immediate(name string, patterns []string, fn TaskFunc) {
	c.register(name, patterns, 0, func(ctx context.Context) {
		res := fn(ctx)
		if res.Failed() {
			c.logger.Error(ctx, res.Err, "Watch-triggered task failed", "task", name)
			return
		}
		c.logger.Info(ctx, "Watch-triggered task finished", "task", name, "status", res.Status.String(), "outputs", len(res.Outputs))
	})
}

// Schedule runs the graph node task once changes matching patterns settle.
func (c *Coordinator) Schedule(task string, patterns []string) {
	c.register(task, patterns, c.debounce, func(ctx context.Context) {
		if _, err := c.trigger.Run(ctx, task); err != nil {
			// The runner already logged each failed node
			c.logger.Debug(ctx, "Watch-triggered run failed", "task", task, "error", err)
		}
	})
}

func (c *Coordinator) register(name string, patterns []string, delay time.Duration, run func(ctx context.Context)) {
	c.mu.Lock()
	co, ok := c.coalescers[name]
	if !ok {
		co = &coalescer{run: run, inflight: &c.inflight}
		c.coalescers[name] = co
	}
	c.mu.Unlock()

	patterns = append([]string(nil), patterns...)
	c.watcher.AddHandler(delay, func(ctx context.Context, events []ChangeEvent) error {
		for _, ev := range events {
			if fsutil.MatchAny(patterns, ev.Path) {
				c.recorder.IncWatchTrigger(name)
				c.logger.Debug(ctx, "Change detected", "task", name, "path", ev.Path, "type", ev.Type.String())
				co.trigger(ctx)
				return nil
			}
		}
		return nil
	})
}

// Start begins watching. Registrations made after Start are ignored.
func (c *Coordinator) Start(ctx context.Context) error {
	c.mu.Lock()
	if c.started {
		c.mu.Unlock()
		return fmt.Errorf("watcher already started")
	}
	c.started = true
	registered := len(c.coalescers)
	c.mu.Unlock()

	if err := c.watcher.AddRecursive(c.watcher.root); err != nil {
		return fmt.Errorf("watching %s: %w", c.watcher.root, err)
	}
	if err := c.watcher.Start(ctx); err != nil {
		return err
	}

	c.logger.Info(ctx, "Watching for changes", "dir", c.watcher.root, "tasks", registered)
	return nil
}

// Stop closes the watcher and waits for in-flight runs to finish.
func (c *Coordinator) Stop() error {
	err := c.watcher.Stop()
	c.inflight.Wait()
	return err
}

// coalescer runs a task at most once at a time. A trigger during a run sets a
// pending flag that starts exactly one more run when the current one ends.
type coalescer struct {
	run      func(ctx context.Context)
	inflight *sync.WaitGroup

	mu      sync.Mutex
	running bool
	pending bool
}

func (co *coalescer) trigger(ctx context.Context) {
	co.mu.Lock()
	if co.running {
		co.pending = true
		co.mu.Unlock()
		return
	}
	co.running = true
	co.mu.Unlock()

	co.inflight.Add(1)
	go co.loop(ctx)
}

func (co *coalescer) loop(ctx context.Context) {
	defer co.inflight.Done()
	for {
		co.run(ctx)

		co.mu.Lock()
		if !co.pending || ctx.Err() != nil {
			co.running = false
			co.pending = false
			co.mu.Unlock()
			return
		}
		co.pending = false
		co.mu.Unlock()
	}
}
