package tasks

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/conneroisu/sitegraph/internal/errors"
	"github.com/conneroisu/sitegraph/internal/paths"
	"github.com/conneroisu/sitegraph/internal/server"
	"github.com/conneroisu/sitegraph/internal/transform"
)

// fakeCompiler "compiles" an entry by echoing it, and rejects any entry
// containing the word ERROR.
type fakeCompiler struct{}

func (fakeCompiler) Compile(_ context.Context, req transform.StyleRequest) (transform.StyleResult, error) {
	src, err := os.ReadFile(req.Entry)
	if err != nil {
		return transform.StyleResult{}, err
	}
	if col := bytes.Index(src, []byte("ERROR")); col >= 0 {
		return transform.StyleResult{}, &transform.CompileError{
			Tool: "sass",
			Diagnostics: []errors.BuildError{{
				File:     req.Entry,
				Line:     1,
				Column:   col + 1,
				Message:  "expected \"}\"",
				Severity: errors.ErrorSeverityError,
			}},
		}
	}
	return transform.StyleResult{
		CSS:       strings.TrimSpace(string(src)),
		SourceMap: `{"version":3,"sources":["main.scss"],"mappings":""}`,
	}, nil
}

func (fakeCompiler) Close() error { return nil }

type recordingReloader struct {
	mu       sync.Mutex
	reloads  []server.ReloadRequest
	reported [][]errors.BuildError
}

func (r *recordingReloader) Reload(_ context.Context, req server.ReloadRequest) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.reloads = append(r.reloads, req)
}

func (r *recordingReloader) ReportErrors(_ context.Context, errs []errors.BuildError) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.reported = append(r.reported, errs)
}

type fakePublisher struct {
	dir string
	err error
}

func (p *fakePublisher) Publish(_ context.Context, dir string) (string, error) {
	p.dir = dir
	if p.err != nil {
		return "", p.err
	}
	return "abc123", nil
}

func newTestEnv(t *testing.T, files map[string]string) (*Env, *recordingReloader) {
	t.Helper()

	dir := t.TempDir()
	for name, content := range files {
		writeFile(t, dir, name, content)
	}

	js, err := transform.NewScripts("es2015")
	require.NoError(t, err)
	markup := transform.NewMarkup()
	reloader := &recordingReloader{}

	return &Env{
		Dir:       dir,
		Paths:     paths.Resolve(paths.DefaultRoots()),
		Compiler:  fakeCompiler{},
		JS:        js,
		Markup:    markup,
		Optimizer: transform.NewImages(markup),
		Reloader:  reloader,
		Errors:    errors.NewErrorCollector(),
	}, reloader
}

func writeFile(t *testing.T, dir, name, content string) {
	t.Helper()
	full := filepath.Join(dir, filepath.FromSlash(name))
	require.NoError(t, os.MkdirAll(filepath.Dir(full), 0o755))
	require.NoError(t, os.WriteFile(full, []byte(content), 0o644))
}

func readFile(t *testing.T, dir, name string) string {
	t.Helper()
	data, err := os.ReadFile(filepath.Join(dir, filepath.FromSlash(name)))
	require.NoError(t, err)
	return string(data)
}

// snapshot returns every file under the output root keyed by its relative path.
func snapshot(t *testing.T, dir string) map[string]string {
	t.Helper()
	out := make(map[string]string)
	root := filepath.Join(dir, "dist")
	err := filepath.Walk(root, func(p string, info os.FileInfo, err error) error {
		if err != nil {
			if os.IsNotExist(err) {
				return nil
			}
			return err
		}
		if info.IsDir() {
			return nil
		}
		rel, _ := filepath.Rel(root, p)
		data, err := os.ReadFile(p)
		if err != nil {
			return err
		}
		out[filepath.ToSlash(rel)] = string(data)
		return nil
	})
	require.NoError(t, err)
	return out
}

func TestStyles(t *testing.T) {
	env, reloader := newTestEnv(t, map[string]string{
		"css/main.scss":          "body { color: red; }",
		"css/libs/normalize.css": "html{}",
	})

	res := env.Styles(context.Background())
	require.NoError(t, res.Err)
	assert.Equal(t, StatusSucceeded, res.Status)

	css := readFile(t, env.Dir, "dist/css/main.css")
	assert.True(t, strings.HasPrefix(css, "body { color: red; }"))
	assert.Contains(t, css, "/*# sourceMappingURL=main.css.map */")
	assert.Contains(t, readFile(t, env.Dir, "dist/css/main.css.map"), `"version":3`)

	minified := readFile(t, env.Dir, "dist/css/main.min.css")
	assert.Contains(t, minified, "body{color:red}")
	assert.Contains(t, minified, "sourceMappingURL=main.min.css.map")
	assert.FileExists(t, filepath.Join(env.Dir, "dist/css/main.min.css.map"))
	assert.Equal(t, "html{}", readFile(t, env.Dir, "dist/css/libs/normalize.css"))

	require.Len(t, reloader.reloads, 1)
	assert.Equal(t, server.ReloadRequest{Kind: server.ReloadCSS, Target: "/css/main.css"}, reloader.reloads[0])
}

func TestStylesIdempotent(t *testing.T) {
	env, _ := newTestEnv(t, map[string]string{"css/main.scss": "a { b: c; }"})

	require.False(t, env.Styles(context.Background()).Failed())
	first := snapshot(t, env.Dir)
	require.False(t, env.Styles(context.Background()).Failed())

	assert.Equal(t, first, snapshot(t, env.Dir))
}

func TestStylesSyntaxErrorKeepsPreviousOutput(t *testing.T) {
	env, reloader := newTestEnv(t, map[string]string{"css/main.scss": "a { b: c; }"})

	require.Equal(t, StatusSucceeded, env.Styles(context.Background()).Status)
	before := snapshot(t, env.Dir)

	writeFile(t, env.Dir, "css/main.scss", "a { ERROR")
	res := env.Styles(context.Background())
	assert.Equal(t, StatusRecovered, res.Status)
	assert.Error(t, res.Err)
	assert.Equal(t, before, snapshot(t, env.Dir))

	errs := env.Errors.GetErrorsByTask(NameStyles)
	require.Len(t, errs, 1)
	assert.Equal(t, NameStyles, errs[0].Task)
	require.NotEmpty(t, reloader.reported)
	assert.Len(t, reloader.reported[len(reloader.reported)-1], 1)

	writeFile(t, env.Dir, "css/main.scss", "a { b: d; }")
	require.Equal(t, StatusSucceeded, env.Styles(context.Background()).Status)
	assert.False(t, env.Errors.HasErrors())
	assert.Empty(t, reloader.reported[len(reloader.reported)-1])
}

func TestStylesWithoutEntry(t *testing.T) {
	env, _ := newTestEnv(t, map[string]string{"css/libs/grid.css": ".g{}"})

	res := env.Styles(context.Background())
	assert.Equal(t, StatusSucceeded, res.Status)
	assert.Equal(t, []string{"dist/css/libs/grid.css"}, res.Outputs)
}

func TestCleanThenStyles(t *testing.T) {
	files := map[string]string{"css/main.scss": "p { q: r; }"}

	fresh, _ := newTestEnv(t, files)
	require.False(t, fresh.Styles(context.Background()).Failed())

	env, _ := newTestEnv(t, files)
	writeFile(t, env.Dir, "dist/stale.txt", "old")
	require.False(t, env.Clean(context.Background()).Failed())
	require.False(t, env.Styles(context.Background()).Failed())

	assert.Equal(t, snapshot(t, fresh.Dir), snapshot(t, env.Dir))
}

func TestTemplates(t *testing.T) {
	env, reloader := newTestEnv(t, map[string]string{
		"views/index.hbs":           "<html><body>{{> header}}<p>{{title}}</p>{{> missing}}</body></html>",
		"views/blog/post.hbs":       "<div>  {{author.name}}  </div>",
		"views/partials/header.hbs": "<header>{{site}}</header>",
		"views/components/card.hbs": "<div class=\"card\"></div>",
		"views/data.yaml":           "title: Hello\nsite: Example\nauthor:\n  name: Ada\n",
	})

	res := env.Templates(context.Background())
	require.NoError(t, res.Err)
	assert.Equal(t, StatusSucceeded, res.Status)
	assert.ElementsMatch(t, []string{"dist/index.html", "dist/blog/post.html"}, res.Outputs)

	index := readFile(t, env.Dir, "dist/index.html")
	assert.Contains(t, index, "<header>Example</header>")
	assert.Contains(t, index, "<p>Hello</p>")
	assert.Contains(t, readFile(t, env.Dir, "dist/blog/post.html"), "Ada")

	assert.NoFileExists(t, filepath.Join(env.Dir, "dist/partials/header.html"))
	assert.NoFileExists(t, filepath.Join(env.Dir, "dist/components/card.html"))

	require.Len(t, reloader.reloads, 1)
	assert.Equal(t, server.ReloadFull, reloader.reloads[0].Kind)
}

func TestTemplatesRenderErrorSkipsPage(t *testing.T) {
	env, _ := newTestEnv(t, map[string]string{
		"views/good.hbs": "<p>ok</p>",
		"views/bad.hbs":  "<p>{{#if}}</p>",
	})

	res := env.Templates(context.Background())
	assert.Equal(t, StatusRecovered, res.Status)
	assert.Equal(t, []string{"dist/good.html"}, res.Outputs)

	errs := env.Errors.GetErrorsByTask(NameTemplates)
	require.Len(t, errs, 1)
	assert.Equal(t, "views/bad.hbs", errs[0].File)
}

func TestTemplatesBadData(t *testing.T) {
	env, _ := newTestEnv(t, map[string]string{
		"views/index.hbs": "<p>{{title}}</p>",
		"views/data.yaml": "title: [unterminated",
	})

	res := env.Templates(context.Background())
	assert.Equal(t, StatusRecovered, res.Status)
	assert.Equal(t, []string{"dist/index.html"}, res.Outputs)
	assert.Equal(t, "views/data.yaml", env.Errors.GetErrorsByTask(NameTemplates)[0].File)
}

func TestScripts(t *testing.T) {
	env, reloader := newTestEnv(t, map[string]string{
		"js/app.js":          "const opts = window.opts ?? {};\nconsole.log(opts?.name, 2 ** 8);\n",
		"js/util/math.js":    "export const add = (a, b) => a + b;\n",
		"js/libs/vendor.js":  "var vendor = 1;",
		"js/libs/vendor.map": "{}",
	})

	res := env.Scripts(context.Background())
	require.NoError(t, res.Err)
	assert.Equal(t, StatusSucceeded, res.Status)

	app := readFile(t, env.Dir, "dist/js/app.js")
	assert.NotContains(t, app, "??")
	assert.NotContains(t, app, "?.")
	assert.NotContains(t, app, "**")
	assert.Contains(t, app, "//# sourceMappingURL=app.js.map")
	assert.FileExists(t, filepath.Join(env.Dir, "dist/js/app.js.map"))

	minified := readFile(t, env.Dir, "dist/js/app.min.js")
	assert.Contains(t, minified, "//# sourceMappingURL=app.min.js.map")
	assert.Less(t, len(minified), len(app))
	assert.FileExists(t, filepath.Join(env.Dir, "dist/js/util/math.min.js"))

	assert.Equal(t, "var vendor = 1;", readFile(t, env.Dir, "dist/js/libs/vendor.js"))
	assert.NoFileExists(t, filepath.Join(env.Dir, "dist/js/libs/vendor.min.js"))

	require.Len(t, reloader.reloads, 1)
	assert.Equal(t, server.ReloadFull, reloader.reloads[0].Kind)
}

func TestScriptsSyntaxError(t *testing.T) {
	env, _ := newTestEnv(t, map[string]string{
		"js/ok.js":     "var a = 1;",
		"js/broken.js": "var = ;",
	})

	res := env.Scripts(context.Background())
	assert.Equal(t, StatusRecovered, res.Status)
	assert.FileExists(t, filepath.Join(env.Dir, "dist/js/ok.js"))
	assert.NoFileExists(t, filepath.Join(env.Dir, "dist/js/broken.js"))

	errs := env.Errors.GetErrorsByTask(NameScripts)
	require.NotEmpty(t, errs)
	assert.Equal(t, "js/broken.js", errs[0].File)
	assert.Positive(t, errs[0].Line)
}

func TestImages(t *testing.T) {
	var pngData bytes.Buffer
	img := image.NewRGBA(image.Rect(0, 0, 64, 64))
	for x := 0; x < 64; x++ {
		for y := 0; y < 64; y++ {
			img.Set(x, y, color.RGBA{R: 200, A: 255})
		}
	}
	require.NoError(t, (&png.Encoder{CompressionLevel: png.NoCompression}).Encode(&pngData, img))

	env, _ := newTestEnv(t, map[string]string{
		"img/logo.svg":      "<svg xmlns=\"http://www.w3.org/2000/svg\">  <!-- c -->  <rect width=\"10\" height=\"10\"/>  </svg>",
		"img/photo.jpg":     "not really a jpeg",
		"img/icons/dot.png": pngData.String(),
		"img/broken.png":    "garbage",
		"img/readme.txt":    "ignored",
	})

	res := env.Images(context.Background())
	assert.Equal(t, StatusRecovered, res.Status)
	assert.ElementsMatch(t, []string{
		"dist/img/broken.png",
		"dist/img/icons/dot.png",
		"dist/img/logo.svg",
		"dist/img/photo.jpg",
	}, res.Outputs)

	assert.NotContains(t, readFile(t, env.Dir, "dist/img/logo.svg"), "<!--")
	assert.Equal(t, "not really a jpeg", readFile(t, env.Dir, "dist/img/photo.jpg"))
	assert.Less(t, len(readFile(t, env.Dir, "dist/img/icons/dot.png")), pngData.Len())
	assert.Equal(t, "garbage", readFile(t, env.Dir, "dist/img/broken.png"))
}

func TestFiles(t *testing.T) {
	env, _ := newTestEnv(t, map[string]string{
		"public/robots.txt":    "User-agent: *",
		"public/fonts/a.woff2": "font",
	})

	res := env.Files(context.Background())
	require.NoError(t, res.Err)
	assert.Equal(t, "User-agent: *", readFile(t, env.Dir, "dist/robots.txt"))
	assert.Equal(t, "font", readFile(t, env.Dir, "dist/fonts/a.woff2"))
}

func TestCNAME(t *testing.T) {
	env, _ := newTestEnv(t, map[string]string{"CNAME": "example.com\n"})

	res := env.CNAME(context.Background())
	require.NoError(t, res.Err)
	assert.Equal(t, []string{"dist/CNAME"}, res.Outputs)
	assert.Equal(t, "example.com\n", readFile(t, env.Dir, "dist/CNAME"))
}

func TestCNAMEMissing(t *testing.T) {
	env, _ := newTestEnv(t, nil)

	res := env.CNAME(context.Background())
	assert.Equal(t, StatusSucceeded, res.Status)
	assert.Empty(t, res.Outputs)
}

func TestClean(t *testing.T) {
	env, _ := newTestEnv(t, map[string]string{
		"dist/index.html":   "x",
		"dist/css/main.css": "y",
		"views/index.hbs":   "z",
	})

	res := env.Clean(context.Background())
	require.NoError(t, res.Err)

	entries, err := os.ReadDir(filepath.Join(env.Dir, "dist"))
	require.NoError(t, err)
	assert.Empty(t, entries)
	assert.FileExists(t, filepath.Join(env.Dir, "views/index.hbs"))

	missing, _ := newTestEnv(t, nil)
	assert.Equal(t, StatusSucceeded, missing.Clean(context.Background()).Status)
}

func TestDeploy(t *testing.T) {
	env, _ := newTestEnv(t, nil)

	pub := &fakePublisher{}
	env.Publisher = pub
	res := env.Deploy(context.Background())
	require.NoError(t, res.Err)
	assert.Equal(t, []string{"abc123"}, res.Outputs)
	assert.Equal(t, filepath.Join(env.Dir, "dist"), pub.dir)

	env.Publisher = &fakePublisher{err: fmt.Errorf("rejected")}
	res = env.Deploy(context.Background())
	assert.True(t, res.Failed())
	assert.Contains(t, res.Err.Error(), "rejected")

	env.Publisher = nil
	assert.True(t, env.Deploy(context.Background()).Failed())
}

func TestCancelledContext(t *testing.T) {
	env, _ := newTestEnv(t, map[string]string{"public/a.txt": "a"})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	res := env.Files(ctx)
	assert.True(t, res.Failed())
	assert.ErrorIs(t, res.Err, context.Canceled)
}
