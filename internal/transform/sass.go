package transform

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/bep/godartsass/v2"
)

// StyleRequest describes one stylesheet compilation.
type StyleRequest struct {
	// Entry is the path of the entry stylesheet.
	Entry string
	// IncludePaths are searched for @use and @import targets.
	IncludePaths []string
}

// StyleResult holds the compiled stylesheet and its source map.
type StyleResult struct {
	CSS       string
	SourceMap string
}

// StyleCompiler compiles an entry stylesheet to CSS.
type StyleCompiler interface {
	Compile(ctx context.Context, req StyleRequest) (StyleResult, error)
	Close() error
}

// DartSass compiles SCSS through an embedded Dart Sass process. The process is
// started on first use and reused until Close.
type DartSass struct {
	binary  string
	timeout time.Duration

	mu         sync.Mutex
	transpiler *godartsass.Transpiler
}

// NewDartSass creates a compiler using the given dart-sass binary. An empty
// binary lets godartsass look up "sass" on PATH.
func NewDartSass(binary string, timeout time.Duration) *DartSass {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &DartSass{binary: binary, timeout: timeout}
}

func (d *DartSass) start() (*godartsass.Transpiler, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.transpiler != nil {
		return d.transpiler, nil
	}

	t, err := godartsass.Start(godartsass.Options{
		DartSassEmbeddedFilename: d.binary,
		Timeout:                  d.timeout,
	})
	if err != nil {
		return nil, fmt.Errorf("starting dart sass: %w", err)
	}
	d.transpiler = t
	return t, nil
}

// Compile reads req.Entry and compiles it with an expanded output style and
// an embedded-sources map.
func (d *DartSass) Compile(ctx context.Context, req StyleRequest) (StyleResult, error) {
	if err := ctx.Err(); err != nil {
		return StyleResult{}, err
	}

	source, err := os.ReadFile(req.Entry)
	if err != nil {
		return StyleResult{}, fmt.Errorf("reading %s: %w", req.Entry, err)
	}

	t, err := d.start()
	if err != nil {
		return StyleResult{}, err
	}

	abs, err := filepath.Abs(req.Entry)
	if err != nil {
		return StyleResult{}, err
	}

	res, err := t.Execute(godartsass.Args{
		Source:                  string(source),
		URL:                     "file://" + filepath.ToSlash(abs),
		OutputStyle:             godartsass.OutputStyleExpanded,
		SourceSyntax:            godartsass.SourceSyntaxSCSS,
		IncludePaths:            req.IncludePaths,
		EnableSourceMap:         true,
		SourceMapIncludeSources: true,
	})
	if err != nil {
		return StyleResult{}, compileError("sass", req.Entry, err)
	}

	return StyleResult{CSS: res.CSS, SourceMap: res.SourceMap}, nil
}

// Close stops the Dart Sass process if it was started.
func (d *DartSass) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.transpiler == nil {
		return nil
	}
	err := d.transpiler.Close()
	d.transpiler = nil
	return err
}
