package errors

import (
	"bytes"
	"context"
	"fmt"
	"io"

	"github.com/a-h/templ"
)

const overlayID = "sitegraph-error-overlay"

// Overlay returns the error overlay component for errs. It renders nothing
// when errs is empty.
func Overlay(errs []BuildError) templ.Component {
	return templ.ComponentFunc(func(ctx context.Context, w io.Writer) error {
		if len(errs) == 0 {
			return nil
		}

		if _, err := fmt.Fprintf(w, `<div id="%s" style="position:fixed;inset:0;background:rgba(0,0,0,.85);color:#fff;font:14px Menlo,Monaco,monospace;z-index:2147483647;padding:20px;overflow:auto">`, overlayID); err != nil {
			return err
		}
		if _, err := fmt.Fprintf(w, `<div style="max-width:1000px;margin:0 auto"><div style="display:flex;justify-content:space-between;align-items:center"><h2 style="margin:0;color:#ff6b6b">Build Errors</h2><button onclick="document.getElementById('%s').remove()" style="background:none;border:1px solid #ccc;color:#fff;padding:5px 10px;cursor:pointer">Close</button></div>`, overlayID); err != nil {
			return err
		}

		for _, be := range errs {
			if err := overlayEntry(w, be); err != nil {
				return err
			}
		}

		_, err := io.WriteString(w, `</div></div>`)
		return err
	})
}

func overlayEntry(w io.Writer, be BuildError) error {
	color := "#ff6b6b"
	switch be.Severity {
	case ErrorSeverityWarning:
		color = "#feca57"
	case ErrorSeverityInfo:
		color = "#48dbfb"
	}

	location := be.File
	if be.Line > 0 {
		location = fmt.Sprintf("%s:%d:%d", be.File, be.Line, be.Column)
	}

	_, err := fmt.Fprintf(w,
		`<div style="background:#2d3748;padding:15px;margin:15px 0;border-radius:4px;border-left:4px solid %s"><div style="color:%s;font-weight:bold">%s &middot; %s</div><pre style="white-space:pre-wrap;color:#e2e8f0">%s</pre><div style="color:#a0aec0;font-size:12px">%s</div></div>`,
		color,
		color,
		templ.EscapeString(be.Task),
		be.Severity.String(),
		templ.EscapeString(be.Message),
		templ.EscapeString(location),
	)
	return err
}

// RenderOverlay renders the overlay for errs into a string.
func RenderOverlay(ctx context.Context, errs []BuildError) (string, error) {
	var buf bytes.Buffer
	if err := Overlay(errs).Render(ctx, &buf); err != nil {
		return "", err
	}
	return buf.String(), nil
}
