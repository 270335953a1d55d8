// Package paths derives the source glob patterns and destination directories
// for every asset kind from a handful of root directory names.
//
// The resulting Paths value is built once at startup and handed to every task
// that needs it. It is never mutated after Resolve returns.
package paths

import (
	"path"
	"strings"
)

// Kind identifies one category of source files sharing a transform and a
// destination.
type Kind int

const (
	KindStyles Kind = iota
	KindStyleLibraries
	KindTemplates
	KindScripts
	KindScriptLibraries
	KindImages
	KindStaticFiles
	KindDomainMarker
)

// Kinds lists every asset kind in a stable order.
var Kinds = []Kind{
	KindStyles,
	KindStyleLibraries,
	KindTemplates,
	KindScripts,
	KindScriptLibraries,
	KindImages,
	KindStaticFiles,
	KindDomainMarker,
}

// String returns the string representation of the Kind
func (k Kind) String() string {
	switch k {
	case KindStyles:
		return "styles"
	case KindStyleLibraries:
		return "style-libraries"
	case KindTemplates:
		return "templates"
	case KindScripts:
		return "scripts"
	case KindScriptLibraries:
		return "script-libraries"
	case KindImages:
		return "images"
	case KindStaticFiles:
		return "static-files"
	case KindDomainMarker:
		return "domain-marker"
	default:
		return "unknown"
	}
}

// ImageExtensions are the file extensions picked up by the images kind.
var ImageExtensions = []string{"jpg", "jpeg", "svg", "png", "gif"}

// Roots holds the root directory names everything else is derived from.
// All values are slash-separated and relative to the project directory.
type Roots struct {
	Templates    string `yaml:"templates" mapstructure:"templates"`
	Scripts      string `yaml:"scripts" mapstructure:"scripts"`
	Styles       string `yaml:"styles" mapstructure:"styles"`
	StyleEntry   string `yaml:"style_entry" mapstructure:"style_entry"`
	Images       string `yaml:"images" mapstructure:"images"`
	Files        string `yaml:"files" mapstructure:"files"`
	Output       string `yaml:"output" mapstructure:"output"`
	DomainMarker string `yaml:"domain_marker" mapstructure:"domain_marker"`
}

// DefaultRoots returns the conventional project layout.
func DefaultRoots() Roots {
	return Roots{
		Templates:    "views",
		Scripts:      "js",
		Styles:       "css",
		StyleEntry:   "main.scss",
		Images:       "img",
		Files:        "public",
		Output:       "dist",
		DomainMarker: "CNAME",
	}
}

// Paths is the resolved, read-only path configuration.
type Paths struct {
	roots Roots
	src   map[Kind][]string
	dist  map[Kind]string

	styleWatch   string
	partialDirs  []string
	templateData []string
}

// Resolve builds the full path configuration from roots. It performs no I/O;
// missing directories surface later when tasks read or write.
func Resolve(roots Roots) *Paths {
	r := Roots{
		Templates:    clean(roots.Templates),
		Scripts:      clean(roots.Scripts),
		Styles:       clean(roots.Styles),
		StyleEntry:   clean(roots.StyleEntry),
		Images:       clean(roots.Images),
		Files:        clean(roots.Files),
		Output:       clean(roots.Output),
		DomainMarker: clean(roots.DomainMarker),
	}

	p := &Paths{
		roots: r,
		src:   make(map[Kind][]string, len(Kinds)),
		dist:  make(map[Kind]string, len(Kinds)),
	}

	p.src[KindStyles] = []string{join(r.Styles, r.StyleEntry)}
	p.src[KindStyleLibraries] = []string{join(r.Styles, "libs/**/*")}
	p.src[KindTemplates] = []string{join(r.Templates, "**/*.hbs")}
	p.src[KindScripts] = []string{join(r.Scripts, "**/*.js"), "!" + join(r.Scripts, "libs/*.js")}
	p.src[KindScriptLibraries] = []string{join(r.Scripts, "libs/*.{js,map}")}
	p.src[KindImages] = []string{join(r.Images, "**/*.{"+strings.Join(ImageExtensions, ",")+"}")}
	p.src[KindStaticFiles] = []string{join(r.Files, "**/*")}
	p.src[KindDomainMarker] = []string{r.DomainMarker}

	p.dist[KindStyles] = join(r.Output, "css")
	p.dist[KindStyleLibraries] = join(r.Output, "css/libs")
	p.dist[KindTemplates] = r.Output
	p.dist[KindScripts] = join(r.Output, "js")
	p.dist[KindScriptLibraries] = join(r.Output, "js/libs")
	p.dist[KindImages] = join(r.Output, "img")
	p.dist[KindStaticFiles] = r.Output
	p.dist[KindDomainMarker] = r.Output

	p.styleWatch = join(r.Styles, "**/*.scss")
	p.partialDirs = []string{join(r.Templates, "partials"), join(r.Templates, "components")}
	p.templateData = []string{join(r.Templates, "data.yaml"), join(r.Templates, "data.yml"), join(r.Templates, "data.json")}

	return p
}

// Roots returns the cleaned roots the configuration was built from.
func (p *Paths) Roots() Roots {
	return p.roots
}

// Source returns the glob patterns for kind. Patterns starting with "!"
// exclude matches of the patterns before them.
func (p *Paths) Source(kind Kind) []string {
	return append([]string(nil), p.src[kind]...)
}

// Dest returns the destination directory for kind.
func (p *Paths) Dest(kind Kind) string {
	return p.dist[kind]
}

// OutputRoot returns the single directory every destination lives under.
func (p *Paths) OutputRoot() string {
	return p.roots.Output
}

// StyleEntry returns the path of the entry stylesheet.
func (p *Paths) StyleEntry() string {
	return p.src[KindStyles][0]
}

// StyleRoot returns the styles root, used as the compiler include path.
func (p *Paths) StyleRoot() string {
	return p.roots.Styles
}

// StyleWatch returns the pattern matching every stylesheet the entry may include.
func (p *Paths) StyleWatch() string {
	return p.styleWatch
}

// PartialDirs returns the directories whose templates are registered as partials.
func (p *Paths) PartialDirs() []string {
	return append([]string(nil), p.partialDirs...)
}

// TemplateDataFiles returns the candidate template context files, in lookup order.
func (p *Paths) TemplateDataFiles() []string {
	return append([]string(nil), p.templateData...)
}

// IsPartial reports whether the slash-separated path lives in a partial directory.
func (p *Paths) IsPartial(file string) bool {
	file = clean(file)
	for _, dir := range p.partialDirs {
		if strings.HasPrefix(file, dir+"/") {
			return true
		}
	}
	return false
}

// Base returns the static prefix of a glob pattern: the directory relative
// paths of its matches are computed against. A pattern without meta
// characters is a single file whose base is its parent directory.
func Base(pattern string) string {
	pattern = strings.TrimPrefix(pattern, "!")
	parts := strings.Split(pattern, "/")
	for i, part := range parts {
		if strings.ContainsAny(part, "*?[{") {
			if i == 0 {
				return "."
			}
			return path.Join(parts[:i]...)
		}
	}
	return path.Dir(pattern)
}

func join(elem ...string) string {
	return path.Join(elem...)
}

func clean(p string) string {
	p = strings.ReplaceAll(p, "\\", "/")
	if p == "" {
		return "."
	}
	return strings.TrimPrefix(path.Clean(p), "./")
}
