package transform

import (
	"fmt"
	"strings"

	"github.com/evanw/esbuild/pkg/api"

	"github.com/conneroisu/sitegraph/internal/errors"
)

var targets = map[string]api.Target{
	"es5":    api.ES5,
	"es2015": api.ES2015,
	"es2016": api.ES2016,
	"es2017": api.ES2017,
	"es2018": api.ES2018,
	"es2019": api.ES2019,
	"es2020": api.ES2020,
	"es2021": api.ES2021,
	"es2022": api.ES2022,
	"es2023": api.ES2023,
	"es2024": api.ES2024,
	"esnext": api.ESNext,
}

// Output is a transformed file and its external source map.
type Output struct {
	Code []byte
	Map  []byte
}

// Scripts transpiles and minifies JavaScript with esbuild.
type Scripts struct {
	target api.Target
}

// NewScripts returns a script transform for the named language target such
// as "es2015".
func NewScripts(target string) (*Scripts, error) {
	t, ok := targets[strings.ToLower(target)]
	if !ok {
		return nil, fmt.Errorf("unsupported script target %q", target)
	}
	return &Scripts{target: t}, nil
}

// Transpile lowers source to the configured target. name is the output file
// name the source map comment points from.
func (s *Scripts) Transpile(file, name string, source []byte) (Output, error) {
	result := api.Transform(string(source), api.TransformOptions{
		Loader:     api.LoaderJS,
		Target:     s.target,
		Sourcemap:  api.SourceMapExternal,
		Sourcefile: file,
	})
	if len(result.Errors) > 0 {
		return Output{}, diagnostics("esbuild", file, result.Errors)
	}
	return withMapComment(result, ".js", name), nil
}

// Minify minifies already transpiled code.
func (s *Scripts) Minify(file, name string, source []byte) (Output, error) {
	result := api.Transform(string(source), api.TransformOptions{
		Loader:            api.LoaderJS,
		Target:            s.target,
		MinifyWhitespace:  true,
		MinifyIdentifiers: true,
		MinifySyntax:      true,
		Sourcemap:         api.SourceMapExternal,
		Sourcefile:        file,
	})
	if len(result.Errors) > 0 {
		return Output{}, diagnostics("esbuild", file, result.Errors)
	}
	return withMapComment(result, ".js", name), nil
}

// MinifyCSS minifies a compiled stylesheet.
func MinifyCSS(file, name string, source []byte) (Output, error) {
	result := api.Transform(string(source), api.TransformOptions{
		Loader:            api.LoaderCSS,
		MinifyWhitespace:  true,
		MinifyIdentifiers: true,
		MinifySyntax:      true,
		Sourcemap:         api.SourceMapExternal,
		Sourcefile:        file,
	})
	if len(result.Errors) > 0 {
		return Output{}, diagnostics("esbuild", file, result.Errors)
	}
	return withMapComment(result, ".css", name), nil
}

func withMapComment(result api.TransformResult, ext, name string) Output {
	code := append(result.Code, SourceMapComment(ext, name+".map")...)
	return Output{Code: code, Map: result.Map}
}

func diagnostics(tool, file string, msgs []api.Message) *CompileError {
	ce := &CompileError{Tool: tool}
	for _, msg := range msgs {
		be := errors.BuildError{
			File:     file,
			Message:  msg.Text,
			Severity: errors.ErrorSeverityError,
		}
		if msg.Location != nil {
			if msg.Location.File != "" {
				be.File = msg.Location.File
			}
			be.Line = msg.Location.Line
			be.Column = msg.Location.Column + 1
		}
		ce.Diagnostics = append(ce.Diagnostics, be)
	}
	return ce
}
