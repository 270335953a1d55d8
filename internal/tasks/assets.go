package tasks

import (
	"context"
	"path"

	"github.com/conneroisu/sitegraph/internal/errors"
	"github.com/conneroisu/sitegraph/internal/fsutil"
	"github.com/conneroisu/sitegraph/internal/paths"
)

// Images writes an optimized copy of every image. An image the optimizer
// rejects is reported and copied unchanged.
func (e *Env) Images(ctx context.Context) Result {
	log := e.logger(NameImages)
	var out outputs
	var diags []errors.BuildError

	matches, err := e.expand(paths.KindImages)
	if err != nil {
		return Failed(NameImages, out, err)
	}

	dest := e.Paths.Dest(paths.KindImages)
	for _, m := range matches {
		if err := ctx.Err(); err != nil {
			return Failed(NameImages, out, err)
		}

		source, err := e.read(m.Path)
		if err != nil {
			return Failed(NameImages, out, err)
		}

		optimized, err := e.Optimizer.Optimize(m.Path, source)
		if err != nil {
			log.Warn(ctx, err, "Image optimization failed, copying original", "file", m.Path)
			diags = append(diags, diagnostics(m.Path, err)...)
			optimized = source
		}

		if err := e.write(&out, path.Join(dest, m.Rel), optimized); err != nil {
			return Failed(NameImages, out, err)
		}
	}

	return e.finish(ctx, NameImages, out, diags)
}

// Files copies the static files verbatim to the output root.
func (e *Env) Files(ctx context.Context) Result {
	var out outputs
	if err := e.copyAll(ctx, &out, paths.KindStaticFiles); err != nil {
		return Failed(NameFiles, out, err)
	}
	return Succeeded(NameFiles, out)
}

// CNAME copies the domain marker byte for byte. A missing marker copies
// nothing.
func (e *Env) CNAME(ctx context.Context) Result {
	var out outputs
	if err := e.copyAll(ctx, &out, paths.KindDomainMarker); err != nil {
		return Failed(NameCNAME, out, err)
	}
	return Succeeded(NameCNAME, out)
}

// Clean removes everything inside the output root. The root itself is kept
// and a missing root is not an error.
func (e *Env) Clean(ctx context.Context) Result {
	root := e.Paths.OutputRoot()
	removed, err := fsutil.CleanDir(e.abs(root))
	if err != nil {
		return Failed(NameClean, nil, err)
	}
	e.logger(NameClean).Info(ctx, "Cleaned output root", "root", root, "removed", removed)
	return Succeeded(NameClean, nil)
}
