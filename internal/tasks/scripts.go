package tasks

import (
	"context"
	"path"
	"strings"

	"github.com/conneroisu/sitegraph/internal/errors"
	"github.com/conneroisu/sitegraph/internal/paths"
	"github.com/conneroisu/sitegraph/internal/server"
)

// Scripts transpiles every script to the configured target and writes it
// next to a minified .min.js copy, both with external source maps. Script
// libraries are copied verbatim.
func (e *Env) Scripts(ctx context.Context) Result {
	log := e.logger(NameScripts)
	var out outputs
	var diags []errors.BuildError

	matches, err := e.expand(paths.KindScripts)
	if err != nil {
		return Failed(NameScripts, out, err)
	}

	dest := e.Paths.Dest(paths.KindScripts)
	for _, m := range matches {
		if err := ctx.Err(); err != nil {
			return Failed(NameScripts, out, err)
		}

		source, err := e.read(m.Path)
		if err != nil {
			return Failed(NameScripts, out, err)
		}

		rel := path.Join(dest, m.Rel)
		name := path.Base(rel)

		transpiled, err := e.JS.Transpile(m.Path, name, source)
		if err != nil {
			log.Error(ctx, err, "Script transpiling failed", "file", m.Path)
			diags = append(diags, diagnostics(m.Path, err)...)
			continue
		}
		if err := e.write(&out, rel, transpiled.Code); err != nil {
			return Failed(NameScripts, out, err)
		}
		if err := e.write(&out, rel+".map", transpiled.Map); err != nil {
			return Failed(NameScripts, out, err)
		}

		minRel := strings.TrimSuffix(rel, ".js") + ".min.js"
		minified, err := e.JS.Minify(name, path.Base(minRel), stripMapComment(transpiled.Code))
		if err != nil {
			log.Error(ctx, err, "Script minification failed", "file", m.Path)
			diags = append(diags, diagnostics(m.Path, err)...)
			continue
		}
		if err := e.write(&out, minRel, minified.Code); err != nil {
			return Failed(NameScripts, out, err)
		}
		if err := e.write(&out, minRel+".map", minified.Map); err != nil {
			return Failed(NameScripts, out, err)
		}
	}

	if err := e.copyAll(ctx, &out, paths.KindScriptLibraries); err != nil {
		return Failed(NameScripts, out, err)
	}

	res := e.finish(ctx, NameScripts, out, diags)
	e.reloader().Reload(ctx, server.ReloadRequest{Kind: server.ReloadFull})
	return res
}

func stripMapComment(code []byte) []byte {
	s := string(code)
	if i := strings.LastIndex(s, "\n//# sourceMappingURL="); i >= 0 {
		return []byte(s[:i+1])
	}
	return code
}
