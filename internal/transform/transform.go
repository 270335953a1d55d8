// Package transform wraps the third-party asset transforms: SCSS compilation,
// script transpiling and minification, Handlebars rendering, HTML and SVG
// minification and lossless image optimization.
//
// Every transform works on in-memory content. Reading sources and writing
// outputs is left to the tasks.
package transform

import (
	"fmt"
	"strings"

	"github.com/conneroisu/sitegraph/internal/errors"
)

// CompileError is returned when a transform rejects its input. It carries
// located diagnostics so callers can record them and show them in the
// browser overlay.
type CompileError struct {
	Tool        string
	Diagnostics []errors.BuildError
}

func (e *CompileError) Error() string {
	if len(e.Diagnostics) == 0 {
		return e.Tool + ": compile failed"
	}
	msgs := make([]string, 0, len(e.Diagnostics))
	for i := range e.Diagnostics {
		msgs = append(msgs, e.Diagnostics[i].Error())
	}
	return fmt.Sprintf("%s: %s", e.Tool, strings.Join(msgs, "; "))
}

func compileError(tool, file string, err error) *CompileError {
	return &CompileError{
		Tool: tool,
		Diagnostics: []errors.BuildError{{
			File:     file,
			Message:  err.Error(),
			Severity: errors.ErrorSeverityError,
		}},
	}
}

// SourceMapComment returns the trailing comment linking a CSS or JS output to
// its external map file.
func SourceMapComment(ext, mapName string) string {
	if ext == ".css" {
		return "\n/*# sourceMappingURL=" + mapName + " */\n"
	}
	return "\n//# sourceMappingURL=" + mapName + "\n"
}
