package graph

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/conneroisu/sitegraph/internal/paths"
	"github.com/conneroisu/sitegraph/internal/tasks"
)

// trace records the order nodes start and finish in.
type trace struct {
	mu     sync.Mutex
	events []string
	runs   map[string]int
}

func newTrace() *trace {
	return &trace{runs: make(map[string]int)}
}

func (tr *trace) node(name string, status tasks.Status, deps ...string) Node {
	return Node{
		Name: name,
		Deps: deps,
		Run: func(ctx context.Context) tasks.Result {
			tr.mu.Lock()
			tr.events = append(tr.events, "start:"+name)
			tr.runs[name]++
			tr.mu.Unlock()

			time.Sleep(time.Millisecond)

			tr.mu.Lock()
			tr.events = append(tr.events, "end:"+name)
			tr.mu.Unlock()

			switch status {
			case tasks.StatusFailed:
				return tasks.Failed(name, nil, fmt.Errorf("%s broke", name))
			case tasks.StatusRecovered:
				return tasks.Result{Status: tasks.StatusRecovered, Err: fmt.Errorf("%s recovered", name)}
			default:
				return tasks.Succeeded(name, []string{name + ".out"})
			}
		},
	}
}

func (tr *trace) index(event string) int {
	tr.mu.Lock()
	defer tr.mu.Unlock()
	for i, e := range tr.events {
		if e == event {
			return i
		}
	}
	return -1
}

func buildGraph(t *testing.T, nodes ...Node) *Graph {
	t.Helper()
	g := New()
	for _, n := range nodes {
		require.NoError(t, g.Add(n))
	}
	return g
}

func newRunner(t *testing.T, g *Graph) *Runner {
	t.Helper()
	r, err := NewRunner(g, nil, nil)
	require.NoError(t, err)
	return r
}

func statuses(results []tasks.Result) map[string]tasks.Status {
	out := make(map[string]tasks.Status, len(results))
	for _, res := range results {
		out[res.Task] = res.Status
	}
	return out
}

func TestAddRejectsDuplicates(t *testing.T) {
	g := New()
	require.NoError(t, g.Add(Node{Name: "a"}))
	assert.ErrorIs(t, g.Add(Node{Name: "a"}), ErrDuplicateTask)
	assert.Error(t, g.Add(Node{}))
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		nodes   []Node
		wantErr error
	}{
		{
			name:  "valid",
			nodes: []Node{{Name: "a"}, {Name: "b", Deps: []string{"a"}}},
		},
		{
			name:    "unknown dependency",
			nodes:   []Node{{Name: "a", Deps: []string{"missing"}}},
			wantErr: ErrUnknownTask,
		},
		{
			name:    "self cycle",
			nodes:   []Node{{Name: "a", Deps: []string{"a"}}},
			wantErr: ErrCycle,
		},
		{
			name: "long cycle",
			nodes: []Node{
				{Name: "a", Deps: []string{"b"}},
				{Name: "b", Deps: []string{"c"}},
				{Name: "c", Deps: []string{"a"}},
			},
			wantErr: ErrCycle,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := buildGraph(t, tt.nodes...).Validate()
			if tt.wantErr == nil {
				assert.NoError(t, err)
				return
			}
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestClosure(t *testing.T) {
	g := buildGraph(t,
		Node{Name: "a"},
		Node{Name: "b", Deps: []string{"a"}},
		Node{Name: "c", Deps: []string{"a"}},
		Node{Name: "d", Deps: []string{"b", "c"}},
		Node{Name: "unrelated"},
	)

	order, err := g.Closure("d")
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b", "c", "d"}, order)

	_, err = g.Closure("nope")
	assert.ErrorIs(t, err, ErrUnknownTask)
}

func TestNodeKind(t *testing.T) {
	run := func(context.Context) tasks.Result { return tasks.Result{} }
	assert.Equal(t, "one-shot", Node{Run: run}.Kind())
	assert.Equal(t, "service", Node{Run: run, Service: true}.Kind())
	assert.Equal(t, "group", Node{}.Kind())
}

func TestRunnerRejectsInvalidGraph(t *testing.T) {
	_, err := NewRunner(buildGraph(t, Node{Name: "a", Deps: []string{"a"}}), nil, nil)
	assert.ErrorIs(t, err, ErrCycle)
}

func TestRunUnknownTask(t *testing.T) {
	r := newRunner(t, buildGraph(t, Node{Name: "a"}))
	_, err := r.Run(context.Background(), "b")
	assert.ErrorIs(t, err, ErrUnknownTask)
}

func TestRunOrdersDependencies(t *testing.T) {
	tr := newTrace()
	g := buildGraph(t,
		tr.node("base", tasks.StatusSucceeded),
		tr.node("left", tasks.StatusSucceeded, "base"),
		tr.node("right", tasks.StatusSucceeded, "base"),
		tr.node("top", tasks.StatusSucceeded, "left", "right"),
	)

	results, err := newRunner(t, g).Run(context.Background(), "top")
	require.NoError(t, err)
	require.Len(t, results, 4)

	assert.Equal(t, 1, tr.runs["base"])
	assert.Less(t, tr.index("end:base"), tr.index("start:left"))
	assert.Less(t, tr.index("end:base"), tr.index("start:right"))
	assert.Less(t, tr.index("end:left"), tr.index("start:top"))
	assert.Less(t, tr.index("end:right"), tr.index("start:top"))
	assert.Equal(t, "top", results[len(results)-1].Task)
}

func TestRunAssignsRunID(t *testing.T) {
	tr := newTrace()
	r := newRunner(t, buildGraph(t,
		tr.node("a", tasks.StatusSucceeded),
		tr.node("b", tasks.StatusSucceeded, "a"),
	))

	first, err := r.Run(context.Background(), "b")
	require.NoError(t, err)
	second, err := r.Run(context.Background(), "b")
	require.NoError(t, err)

	_, err = uuid.Parse(first[0].RunID)
	require.NoError(t, err)
	assert.Equal(t, first[0].RunID, first[1].RunID)
	assert.NotEqual(t, first[0].RunID, second[0].RunID)
	assert.Equal(t, 2, tr.runs["a"])
	for _, res := range first {
		assert.Positive(t, res.Duration)
	}
}

func TestRunSkipsDependentsOfFailure(t *testing.T) {
	tr := newTrace()
	g := buildGraph(t,
		tr.node("broken", tasks.StatusFailed),
		tr.node("sibling", tasks.StatusSucceeded),
		tr.node("after", tasks.StatusSucceeded, "broken", "sibling"),
	)

	results, err := newRunner(t, g).Run(context.Background(), "after")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrDependencyFailed)
	assert.Contains(t, err.Error(), "broken broke")

	got := statuses(results)
	assert.Equal(t, tasks.StatusFailed, got["broken"])
	assert.Equal(t, tasks.StatusSucceeded, got["sibling"])
	assert.Equal(t, tasks.StatusFailed, got["after"])
	assert.Zero(t, tr.runs["after"])
}

func TestRunRecoveredDoesNotSkip(t *testing.T) {
	tr := newTrace()
	g := buildGraph(t,
		tr.node("flaky", tasks.StatusRecovered),
		tr.node("after", tasks.StatusSucceeded, "flaky"),
	)

	results, err := newRunner(t, g).Run(context.Background(), "after")
	require.NoError(t, err)
	got := statuses(results)
	assert.Equal(t, tasks.StatusRecovered, got["flaky"])
	assert.Equal(t, tasks.StatusSucceeded, got["after"])
}

func TestRunGroupNode(t *testing.T) {
	tr := newTrace()
	g := buildGraph(t,
		tr.node("a", tasks.StatusSucceeded),
		tr.node("b", tasks.StatusSucceeded),
		Node{Name: "all", Deps: []string{"a", "b"}},
	)

	results, err := newRunner(t, g).Run(context.Background(), "all")
	require.NoError(t, err)
	assert.Len(t, results, 2)
	assert.NotContains(t, statuses(results), "all")
}

func TestRunCancelled(t *testing.T) {
	var ran atomic.Bool
	g := buildGraph(t, Node{Name: "a", Run: func(context.Context) tasks.Result {
		ran.Store(true)
		return tasks.Result{}
	}})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	results, err := newRunner(t, g).Run(ctx, "a")
	assert.ErrorIs(t, err, context.Canceled)
	require.Len(t, results, 1)
	assert.True(t, results[0].Failed())
	assert.False(t, ran.Load())
}

type countingRecorder struct {
	mu      sync.Mutex
	results map[string]int
}

func (c *countingRecorder) ObserveTaskDuration(string, time.Duration) {}
func (c *countingRecorder) IncWatchTrigger(string)                    {}
func (c *countingRecorder) IncReloadBroadcast(string)                 {}
func (c *countingRecorder) SetReloadClients(int)                      {}

func (c *countingRecorder) IncTaskResult(task, status string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.results[task+"/"+status]++
}

func TestRunRecordsMetrics(t *testing.T) {
	tr := newTrace()
	rec := &countingRecorder{results: make(map[string]int)}
	r, err := NewRunner(buildGraph(t,
		tr.node("a", tasks.StatusSucceeded),
		tr.node("b", tasks.StatusFailed, "a"),
	), nil, rec)
	require.NoError(t, err)

	_, _ = r.Run(context.Background(), "b")
	assert.Equal(t, 1, rec.results["a/succeeded"])
	assert.Equal(t, 1, rec.results["b/failed"])
}

func TestSite(t *testing.T) {
	env := &tasks.Env{Dir: t.TempDir(), Paths: paths.Resolve(paths.DefaultRoots())}
	service := func(context.Context) tasks.Result { return tasks.Succeeded("", nil) }

	g, err := Site(env, service, service)
	require.NoError(t, err)

	assert.ElementsMatch(t, []string{
		"clean", "cname", "default", "deploy", "files", "images",
		"scripts", "serve", "styles", "templates", "watch",
	}, g.Names())

	def, ok := g.Node(NameDefault)
	require.True(t, ok)
	assert.ElementsMatch(t, []string{"watch", "serve", "images", "files", "styles", "scripts", "templates", "cname"}, def.Deps)
	assert.NotContains(t, def.Deps, tasks.NameDeploy)
	assert.NotContains(t, def.Deps, tasks.NameClean)

	serve, _ := g.Node(NameServe)
	assert.True(t, serve.Service)
}
