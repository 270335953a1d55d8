package transform

import (
	"bytes"
	"image/png"
	"path"
	"strings"
)

// Images applies lossless optimization per image format.
type Images struct {
	markup *Markup
}

// NewImages returns an image optimizer sharing markup's SVG minifier.
func NewImages(markup *Markup) *Images {
	return &Images{markup: markup}
}

// Optimize returns the optimized bytes for the image at file. SVG is
// minified. PNG is re-encoded at best compression and kept only when smaller.
// JPEG and GIF are returned unchanged since every re-encode would be lossy.
func (im *Images) Optimize(file string, src []byte) ([]byte, error) {
	switch strings.ToLower(path.Ext(file)) {
	case ".svg":
		return im.markup.SVG(file, src)
	case ".png":
		return optimizePNG(file, src)
	default:
		return src, nil
	}
}

func optimizePNG(file string, src []byte) ([]byte, error) {
	img, err := png.Decode(bytes.NewReader(src))
	if err != nil {
		return nil, compileError("png", file, err)
	}

	var buf bytes.Buffer
	enc := &png.Encoder{CompressionLevel: png.BestCompression}
	if err := enc.Encode(&buf, img); err != nil {
		return nil, compileError("png", file, err)
	}

	if buf.Len() >= len(src) {
		return src, nil
	}
	return buf.Bytes(), nil
}
