package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/conneroisu/sitegraph/internal/config"
	"github.com/conneroisu/sitegraph/internal/deploy"
	"github.com/conneroisu/sitegraph/internal/errors"
	"github.com/conneroisu/sitegraph/internal/graph"
	"github.com/conneroisu/sitegraph/internal/logging"
	"github.com/conneroisu/sitegraph/internal/metrics"
	"github.com/conneroisu/sitegraph/internal/paths"
	"github.com/conneroisu/sitegraph/internal/server"
	"github.com/conneroisu/sitegraph/internal/tasks"
	"github.com/conneroisu/sitegraph/internal/transform"
	"github.com/conneroisu/sitegraph/internal/watcher"
)

// app wires every component for one CLI invocation.
type app struct {
	dir     string
	cfg     *config.Config
	logger  logging.Logger
	paths   *paths.Paths
	env     *tasks.Env
	server  *server.PreviewServer
	watch   *watcher.Coordinator
	runner  *graph.Runner
	closers []io.Closer
}

// loadConfig loads the effective configuration, wrapping failures with
// suggestions.
func loadConfig() (*config.Config, error) {
	configPath := ".sitegraph.yml"
	if cfgFile != "" {
		configPath = cfgFile
	}

	err := configErr
	var cfg *config.Config
	if err == nil {
		cfg, err = config.Load()
	}
	if err != nil {
		return nil, errors.NewEnhancedError(
			"Failed to load configuration",
			err,
			errors.ConfigurationError(err.Error(), configPath),
		)
	}
	return cfg, nil
}

func newLogger(cfg *config.Config, out io.Writer) (logging.Logger, io.Closer, error) {
	level, err := logging.ParseLevel(cfg.Log.Level)
	if err != nil {
		return nil, nil, err
	}

	var closer io.Closer
	if cfg.Log.File != "" {
		file := logging.NewFileWriter(logging.FileConfig{
			Path:       cfg.Log.File,
			MaxSizeMB:  cfg.Log.MaxSizeMB,
			MaxBackups: cfg.Log.MaxBackups,
			MaxAgeDays: cfg.Log.MaxAgeDays,
		})
		out = io.MultiWriter(out, file)
		closer = file
	}

	return logging.NewLogger(&logging.LoggerConfig{
		Level:  level,
		Format: cfg.Log.Format,
		Output: out,
	}), closer, nil
}

// deployToken returns the token for HTTPS deploy remotes.
func deployToken() string {
	if token := os.Getenv(config.EnvPrefix + "_DEPLOY_TOKEN"); token != "" {
		return token
	}
	return os.Getenv("GITHUB_TOKEN")
}

func newApp(cmd *cobra.Command) (*app, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}

	dir, err := filepath.Abs(projectDir)
	if err != nil {
		return nil, fmt.Errorf("resolving project directory: %w", err)
	}

	logger, logCloser, err := newLogger(cfg, cmd.ErrOrStderr())
	if err != nil {
		return nil, err
	}

	a := &app{dir: dir, cfg: cfg, logger: logger, paths: paths.Resolve(cfg.Paths)}
	if logCloser != nil {
		a.closers = append(a.closers, logCloser)
	}

	js, err := transform.NewScripts(cfg.Scripts.Target)
	if err != nil {
		return nil, err
	}

	recorder := metrics.NewPrometheusRecorder(nil)

	a.server = server.New(server.Options{
		Host:           cfg.Server.Host,
		Port:           cfg.Server.Port,
		Root:           filepath.Join(dir, filepath.FromSlash(a.paths.OutputRoot())),
		Open:           cfg.Server.Open,
		AllowedOrigins: cfg.Server.AllowedOrigins,
	}, logger, recorder).WithMetricsHandler(recorder.Handler())

	compiler := transform.NewDartSass("", 0)
	a.closers = append(a.closers, compiler)

	markup := transform.NewMarkup()
	a.env = &tasks.Env{
		Dir:       dir,
		Paths:     a.paths,
		Logger:    logger,
		Compiler:  compiler,
		JS:        js,
		Markup:    markup,
		Optimizer: transform.NewImages(markup),
		Reloader:  a.server,
		Errors:    errors.NewErrorCollector(),
		Publisher: deploy.New(dir, deploy.Options{
			Remote:      cfg.Deploy.Remote,
			Branch:      cfg.Deploy.Branch,
			Message:     cfg.Deploy.Message,
			AuthorName:  cfg.Deploy.AuthorName,
			AuthorEmail: cfg.Deploy.AuthorEmail,
			Token:       deployToken(),
		}, logger),
	}

	g, err := graph.Site(a.env, a.serve, a.startWatch)
	if err != nil {
		return nil, err
	}
	if a.runner, err = graph.NewRunner(g, logger, recorder); err != nil {
		return nil, err
	}

	a.watch, err = watcher.NewCoordinator(dir, watcher.Options{
		Debounce:  cfg.Watch.Debounce,
		Ignore:    cfg.Watch.Ignore,
		SkipPaths: []string{a.paths.OutputRoot()},
	}, a.runner, logger, recorder)
	if err != nil {
		return nil, err
	}
	a.registerWatches()

	return a, nil
}

// registerWatches binds source patterns to tasks. Images and static files
// are copied straight away; everything else goes through the graph after the
// debounce.
func (a *app) registerWatches() {
	p := a.paths

	a.watch.Immediate(tasks.NameImages, p.Source(paths.KindImages), a.env.Images)
	a.watch.Immediate(tasks.NameFiles, p.Source(paths.KindStaticFiles), a.env.Files)

	a.watch.Schedule(tasks.NameStyles, append([]string{p.StyleWatch()}, p.Source(paths.KindStyleLibraries)...))
	a.watch.Schedule(tasks.NameScripts, append(p.Source(paths.KindScripts), p.Source(paths.KindScriptLibraries)...))
	a.watch.Schedule(tasks.NameTemplates, append(p.Source(paths.KindTemplates), p.TemplateDataFiles()...))
	a.watch.Schedule(tasks.NameCNAME, p.Source(paths.KindDomainMarker))
}

// serve is the serve node: it binds the preview server and returns.
func (a *app) serve(ctx context.Context) tasks.Result {
	if err := a.server.Start(ctx); err != nil {
		return tasks.Failed(graph.NameServe, nil, err)
	}
	return tasks.Succeeded(graph.NameServe, []string{"http://" + a.server.Addr()})
}

// startWatch is the watch node: it starts the coordinator and returns.
func (a *app) startWatch(ctx context.Context) tasks.Result {
	if err := a.watch.Start(ctx); err != nil {
		return tasks.Failed(graph.NameWatch, nil, err)
	}
	return tasks.Succeeded(graph.NameWatch, nil)
}

func (a *app) Close() error {
	var firstErr error
	if err := a.watch.Stop(); err != nil {
		firstErr = err
	}
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i].Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
