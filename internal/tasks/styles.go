package tasks

import (
	"context"
	stderrors "errors"
	"fmt"
	"io/fs"
	"os"
	"path"

	"github.com/conneroisu/sitegraph/internal/errors"
	"github.com/conneroisu/sitegraph/internal/paths"
	"github.com/conneroisu/sitegraph/internal/server"
	"github.com/conneroisu/sitegraph/internal/transform"
)

// Styles compiles the entry stylesheet into main.css and main.min.css, each
// with an external source map, and copies the style libraries. A compile
// error leaves every previous output in place.
func (e *Env) Styles(ctx context.Context) Result {
	log := e.logger(NameStyles)
	var out outputs

	entry := e.Paths.StyleEntry()
	if _, err := os.Stat(e.abs(entry)); stderrors.Is(err, fs.ErrNotExist) {
		log.Debug(ctx, "no entry stylesheet", "entry", entry)
		if err := e.copyAll(ctx, &out, paths.KindStyleLibraries); err != nil {
			return Failed(NameStyles, out, err)
		}
		return e.finish(ctx, NameStyles, out, nil)
	}

	compiled, err := e.Compiler.Compile(ctx, transform.StyleRequest{
		Entry:        e.abs(entry),
		IncludePaths: []string{e.abs(e.Paths.StyleRoot())},
	})
	if err != nil {
		var ce *transform.CompileError
		if !stderrors.As(err, &ce) {
			return Failed(NameStyles, out, fmt.Errorf("compiling %s: %w", entry, err))
		}
		log.Error(ctx, err, "Stylesheet compilation failed", "entry", entry)
		return e.finish(ctx, NameStyles, out, diagnostics(entry, err))
	}

	dest := e.Paths.Dest(paths.KindStyles)
	base := stem(entry)

	cssName := base + ".css"
	css := []byte(compiled.CSS + transform.SourceMapComment(".css", cssName+".map"))
	if err := e.write(&out, path.Join(dest, cssName), css); err != nil {
		return Failed(NameStyles, out, err)
	}
	if err := e.write(&out, path.Join(dest, cssName+".map"), []byte(compiled.SourceMap)); err != nil {
		return Failed(NameStyles, out, err)
	}

	var diags []errors.BuildError
	minName := base + ".min.css"
	minified, err := transform.MinifyCSS(cssName, minName, []byte(compiled.CSS))
	if err != nil {
		log.Error(ctx, err, "Stylesheet minification failed", "file", cssName)
		diags = append(diags, diagnostics(path.Join(dest, cssName), err)...)
	} else {
		if err := e.write(&out, path.Join(dest, minName), minified.Code); err != nil {
			return Failed(NameStyles, out, err)
		}
		if err := e.write(&out, path.Join(dest, minName+".map"), minified.Map); err != nil {
			return Failed(NameStyles, out, err)
		}
	}

	if err := e.copyAll(ctx, &out, paths.KindStyleLibraries); err != nil {
		return Failed(NameStyles, out, err)
	}

	res := e.finish(ctx, NameStyles, out, diags)
	e.reloader().Reload(ctx, server.ReloadRequest{Kind: server.ReloadCSS, Target: e.urlPath(path.Join(dest, cssName))})
	return res
}

// stem returns the file name of p without its extension.
func stem(p string) string {
	base := path.Base(p)
	return base[:len(base)-len(path.Ext(base))]
}
