package tasks

import (
	"context"
	stderrors "errors"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/conneroisu/sitegraph/internal/errors"
	"github.com/conneroisu/sitegraph/internal/fsutil"
	"github.com/conneroisu/sitegraph/internal/logging"
	"github.com/conneroisu/sitegraph/internal/paths"
	"github.com/conneroisu/sitegraph/internal/server"
	"github.com/conneroisu/sitegraph/internal/transform"
)

// Task names.
const (
	NameStyles    = "styles"
	NameTemplates = "templates"
	NameScripts   = "scripts"
	NameImages    = "images"
	NameFiles     = "files"
	NameCNAME     = "cname"
	NameClean     = "clean"
	NameDeploy    = "deploy"
)

// Reloader notifies connected browsers after outputs change.
type Reloader interface {
	Reload(ctx context.Context, req server.ReloadRequest)
	ReportErrors(ctx context.Context, errs []errors.BuildError)
}

type nopReloader struct{}

func (nopReloader) Reload(context.Context, server.ReloadRequest)        {}
func (nopReloader) ReportErrors(context.Context, []errors.BuildError) {}

// Env carries everything the tasks share. It is built once at startup.
type Env struct {
	// Dir is the project directory every path is relative to.
	Dir   string
	Paths *paths.Paths

	Logger    logging.Logger
	Compiler  transform.StyleCompiler
	JS        *transform.Scripts
	Markup    *transform.Markup
	Optimizer *transform.Images
	Reloader  Reloader
	Errors    *errors.ErrorCollector
	Publisher Publisher
}

func (e *Env) reloader() Reloader {
	if e.Reloader == nil {
		return nopReloader{}
	}
	return e.Reloader
}

func (e *Env) logger(task string) logging.Logger {
	if e.Logger == nil {
		return logging.NewNop()
	}
	return e.Logger.WithComponent(task)
}

// abs maps a slash-separated project path to a filesystem path.
func (e *Env) abs(rel string) string {
	return filepath.Join(e.Dir, filepath.FromSlash(rel))
}

func (e *Env) expand(kind paths.Kind) ([]fsutil.Match, error) {
	matches, err := fsutil.Expand(e.Dir, e.Paths.Source(kind))
	if err != nil {
		return nil, fmt.Errorf("listing %s sources: %w", kind, err)
	}
	return matches, nil
}

// outputs accumulates the files a run wrote.
type outputs []string

// write stores data at the slash-separated project path rel.
func (e *Env) write(out *outputs, rel string, data []byte) error {
	if _, err := fsutil.WriteFile(e.abs(rel), data); err != nil {
		return fmt.Errorf("writing %s: %w", rel, err)
	}
	*out = append(*out, rel)
	return nil
}

// copyAll copies every match of kind verbatim to its destination.
func (e *Env) copyAll(ctx context.Context, out *outputs, kind paths.Kind) error {
	matches, err := e.expand(kind)
	if err != nil {
		return err
	}

	dest := e.Paths.Dest(kind)
	for _, m := range matches {
		if err := ctx.Err(); err != nil {
			return err
		}
		rel := path.Join(dest, m.Rel)
		if err := fsutil.CopyFile(e.abs(m.Path), e.abs(rel)); err != nil {
			return fmt.Errorf("copying %s: %w", m.Path, err)
		}
		*out = append(*out, rel)
	}
	return nil
}

// urlPath maps an output path to the URL the preview server serves it at.
func (e *Env) urlPath(rel string) string {
	return "/" + strings.TrimPrefix(strings.TrimPrefix(rel, e.Paths.OutputRoot()), "/")
}

func (e *Env) read(rel string) ([]byte, error) {
	data, err := os.ReadFile(e.abs(rel))
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", rel, err)
	}
	return data, nil
}

// diagnostics extracts located errors from a transform failure. Anything else
// is reported against file as a single error.
func diagnostics(file string, err error) []errors.BuildError {
	var ce *transform.CompileError
	if stderrors.As(err, &ce) && len(ce.Diagnostics) > 0 {
		return ce.Diagnostics
	}
	return []errors.BuildError{{File: file, Message: err.Error(), Severity: errors.ErrorSeverityError}}
}

// report records the task's diagnostics and pushes the overlay state to
// browsers when it changed.
func (e *Env) report(ctx context.Context, task string, diags []errors.BuildError) {
	if e.Errors == nil {
		return
	}
	had := len(e.Errors.GetErrorsByTask(task)) > 0
	e.Errors.Replace(task, diags)
	if had || len(diags) > 0 {
		e.reloader().ReportErrors(ctx, e.Errors.GetErrors())
	}
}

// finish turns the diagnostics of a run into its result.
func (e *Env) finish(ctx context.Context, task string, out outputs, diags []errors.BuildError) Result {
	e.report(ctx, task, diags)

	res := Succeeded(task, out)
	if len(diags) > 0 {
		res.Status = StatusRecovered
		res.Err = fmt.Errorf("%s: %d file(s) failed to transform: %s", task, len(diags), diags[0].Error())
	}
	return res
}
