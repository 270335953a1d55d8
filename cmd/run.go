package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/conneroisu/sitegraph/internal/errors"
	"github.com/conneroisu/sitegraph/internal/graph"
	"github.com/conneroisu/sitegraph/internal/tasks"
)

// ExitError carries the process exit code for a finished run.
type ExitError struct {
	Code int
	Err  error
}

func (e *ExitError) Error() string {
	return e.Err.Error()
}

func (e *ExitError) Unwrap() error {
	return e.Err
}

// Exit codes.
const (
	ExitFailed    = 1
	ExitRecovered = 2
)

// siteGraph describes every node without wiring any component. It backs the
// per-task commands and the tasks listing.
func siteGraph() *graph.Graph {
	g, err := graph.Site(&tasks.Env{}, nil, nil)
	if err != nil {
		panic(err)
	}
	return g
}

func init() {
	g := siteGraph()
	for _, name := range g.Names() {
		if name == graph.NameDefault {
			continue
		}
		node, _ := g.Node(name)
		rootCmd.AddCommand(newTaskCommand(node))
	}

	rootCmd.AddCommand(&cobra.Command{
		Use:   graph.NameDefault,
		Short: "Build everything, serve and watch",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTask(cmd, graph.NameDefault)
		},
	})
}

func newTaskCommand(node graph.Node) *cobra.Command {
	cmd := &cobra.Command{
		Use:   node.Name,
		Short: upperFirst(node.Description),
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTask(cmd, node.Name)
		},
	}
	if node.Name == graph.NameServe {
		cmd.Flags().IntP("port", "p", 3000, "Port to serve on")
		cmd.Flags().String("host", "localhost", "Host to bind to")
		cmd.Flags().Bool("open", false, "Open the browser once the server is up")
		bindServerFlags(cmd)
	}
	return cmd
}

// runTask runs name through the graph. When the run started a service it
// keeps running until interrupted.
func runTask(cmd *cobra.Command, name string) error {
	a, err := newApp(cmd)
	if err != nil {
		return err
	}
	defer a.Close()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	results, runErr := a.runner.Run(ctx, name)

	if runErr == nil && startsService(a.runner.Graph(), name) {
		if addr := a.server.Addr(); addr != "" {
			fmt.Fprintf(cmd.OutOrStdout(), "Serving %s at http://%s (Ctrl+C to stop)\n", a.paths.OutputRoot(), addr)
		} else {
			fmt.Fprintln(cmd.OutOrStdout(), "Watching for changes (Ctrl+C to stop)")
		}
		<-ctx.Done()
		a.logger.Info(context.Background(), "Shutting down")
		select {
		case <-a.serverStopped():
		case <-time.After(10 * time.Second):
		}
	}

	return exitPolicy(name, results, runErr, strictMode, a)
}

// serverStopped is closed once the preview server has shut down. A server
// that was never started counts as stopped.
func (a *app) serverStopped() <-chan struct{} {
	if a.server.Addr() == "" {
		stopped := make(chan struct{})
		close(stopped)
		return stopped
	}
	return a.server.Done()
}

func startsService(g *graph.Graph, name string) bool {
	order, err := g.Closure(name)
	if err != nil {
		return false
	}
	for _, n := range order {
		if node, _ := g.Node(n); node.Service && node.Run != nil {
			return true
		}
	}
	return false
}

// exitPolicy turns a run into the command error: failures always exit
// non-zero, recovered transform errors only in strict mode.
func exitPolicy(name string, results []tasks.Result, runErr error, strict bool, a *app) error {
	if runErr != nil {
		if name == tasks.NameDeploy && a != nil {
			runErr = errors.NewEnhancedError("Deploy failed", runErr,
				errors.DeployError(runErr, a.cfg.Deploy.Remote, a.cfg.Deploy.Branch))
		}
		return &ExitError{Code: ExitFailed, Err: runErr}
	}

	if strict {
		for _, res := range results {
			if res.Status == tasks.StatusRecovered {
				return &ExitError{Code: ExitRecovered, Err: fmt.Errorf("%s reported errors: %w", res.Task, res.Err)}
			}
		}
	}
	return nil
}

func bindServerFlags(cmd *cobra.Command) {
	_ = viper.BindPFlag("server.port", cmd.Flags().Lookup("port"))
	_ = viper.BindPFlag("server.host", cmd.Flags().Lookup("host"))
	_ = viper.BindPFlag("server.open", cmd.Flags().Lookup("open"))
}

func upperFirst(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}
