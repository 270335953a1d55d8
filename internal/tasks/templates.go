package tasks

import (
	"context"
	stderrors "errors"
	"fmt"
	"io/fs"
	"os"
	"path"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/conneroisu/sitegraph/internal/errors"
	"github.com/conneroisu/sitegraph/internal/fsutil"
	"github.com/conneroisu/sitegraph/internal/paths"
	"github.com/conneroisu/sitegraph/internal/server"
	"github.com/conneroisu/sitegraph/internal/transform"
)

// Templates renders every Handlebars page outside the partial directories to
// minified HTML. A page that fails to render is reported and skipped.
func (e *Env) Templates(ctx context.Context) Result {
	log := e.logger(NameTemplates)
	var out outputs
	var diags []errors.BuildError

	partials, err := e.loadPartials()
	if err != nil {
		return Failed(NameTemplates, out, err)
	}

	var data interface{}
	if d, err := e.loadTemplateData(); err != nil {
		log.Error(ctx, err, "Template data could not be parsed")
		diags = append(diags, diagnostics("", err)...)
	} else if d != nil {
		data = d
	}

	matches, err := e.expand(paths.KindTemplates)
	if err != nil {
		return Failed(NameTemplates, out, err)
	}

	renderer := transform.NewTemplates(partials)
	dest := e.Paths.Dest(paths.KindTemplates)

	for _, m := range matches {
		if err := ctx.Err(); err != nil {
			return Failed(NameTemplates, out, err)
		}
		if e.Paths.IsPartial(m.Path) {
			continue
		}

		source, err := e.read(m.Path)
		if err != nil {
			return Failed(NameTemplates, out, err)
		}

		html, err := renderer.Render(m.Path, string(source), data)
		if err != nil {
			log.Error(ctx, err, "Template rendering failed", "file", m.Path)
			diags = append(diags, diagnostics(m.Path, err)...)
			continue
		}

		minified, err := e.Markup.HTML(m.Path, []byte(html))
		if err != nil {
			log.Error(ctx, err, "HTML minification failed", "file", m.Path)
			diags = append(diags, diagnostics(m.Path, err)...)
			continue
		}

		rel := path.Join(dest, strings.TrimSuffix(m.Rel, path.Ext(m.Rel))+".html")
		if err := e.write(&out, rel, minified); err != nil {
			return Failed(NameTemplates, out, err)
		}
	}

	res := e.finish(ctx, NameTemplates, out, diags)
	e.reloader().Reload(ctx, server.ReloadRequest{Kind: server.ReloadFull})
	return res
}

// loadPartials reads every template under the partial directories, keyed by
// its path relative to that directory without the extension.
func (e *Env) loadPartials() (map[string]string, error) {
	partials := make(map[string]string)
	for _, dir := range e.Paths.PartialDirs() {
		matches, err := fsutil.Expand(e.Dir, []string{path.Join(dir, "**/*.hbs")})
		if err != nil {
			return nil, fmt.Errorf("listing partials: %w", err)
		}
		for _, m := range matches {
			source, err := e.read(m.Path)
			if err != nil {
				return nil, err
			}
			partials[strings.TrimSuffix(m.Rel, path.Ext(m.Rel))] = string(source)
		}
	}
	return partials, nil
}

// loadTemplateData returns the context shared by every page: the first data
// file found, or nil when there is none.
func (e *Env) loadTemplateData() (map[string]interface{}, error) {
	for _, rel := range e.Paths.TemplateDataFiles() {
		raw, err := os.ReadFile(e.abs(rel))
		if stderrors.Is(err, fs.ErrNotExist) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("reading %s: %w", rel, err)
		}

		var data map[string]interface{}
		if err := yaml.Unmarshal(raw, &data); err != nil {
			return nil, &transform.CompileError{
				Tool: "data",
				Diagnostics: []errors.BuildError{{
					File:     rel,
					Message:  err.Error(),
					Severity: errors.ErrorSeverityError,
				}},
			}
		}
		return data, nil
	}
	return nil, nil
}
