package transform

import (
	"github.com/tdewolff/minify/v2"
	"github.com/tdewolff/minify/v2/html"
	"github.com/tdewolff/minify/v2/svg"
)

const (
	mediaHTML = "text/html"
	mediaSVG  = "image/svg+xml"
)

// Markup minifies rendered HTML pages and SVG images.
type Markup struct {
	m *minify.M
}

// NewMarkup returns a minifier that collapses whitespace and strips comments
// while keeping document structure intact.
func NewMarkup() *Markup {
	m := minify.New()
	m.Add(mediaHTML, &html.Minifier{
		KeepDocumentTags: true,
		KeepEndTags:      true,
		KeepQuotes:       true,
	})
	m.Add(mediaSVG, &svg.Minifier{})
	return &Markup{m: m}
}

// HTML minifies an HTML document.
func (mk *Markup) HTML(file string, src []byte) ([]byte, error) {
	out, err := mk.m.Bytes(mediaHTML, src)
	if err != nil {
		return nil, compileError("minify", file, err)
	}
	return out, nil
}

// SVG minifies an SVG image.
func (mk *Markup) SVG(file string, src []byte) ([]byte, error) {
	out, err := mk.m.Bytes(mediaSVG, src)
	if err != nil {
		return nil, compileError("minify", file, err)
	}
	return out, nil
}
