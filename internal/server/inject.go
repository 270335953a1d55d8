package server

import (
	"bytes"
	"net/http"
	"strings"

	"golang.org/x/net/html"
)

// maxInjectSize is the largest HTML body buffered for script injection.
// Larger pages are passed through untouched.
const maxInjectSize = 512 * 1024

var scriptTag = []byte(`<script src="` + ScriptPath + `"></script>`)

// injectReloadScript wraps next so HTML responses load the reload client.
func injectReloadScript(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet || r.Header.Get("Range") != "" {
			next.ServeHTTP(w, r)
			return
		}

		inj := &reloadInjector{ResponseWriter: w, statusCode: http.StatusOK}
		next.ServeHTTP(inj, r)
		inj.finalize()
	})
}

// reloadInjector buffers HTML responses so the script tag can be inserted
// before the closing body tag.
type reloadInjector struct {
	http.ResponseWriter
	statusCode    int
	buffer        []byte
	buffering     bool
	headerWritten bool
	passthrough   bool
}

func (l *reloadInjector) WriteHeader(code int) {
	l.statusCode = code
	if l.passthrough {
		l.ResponseWriter.WriteHeader(code)
		l.headerWritten = true
	}
}

func (l *reloadInjector) Write(data []byte) (int, error) {
	// Check Content-Type on first write
	if !l.headerWritten && !l.passthrough && !l.buffering {
		contentType := l.Header().Get("Content-Type")
		if l.statusCode != http.StatusOK || !strings.Contains(contentType, "text/html") {
			l.startPassthrough()
			return l.ResponseWriter.Write(data)
		}
		l.buffering = true
	}

	if l.passthrough {
		return l.ResponseWriter.Write(data)
	}

	if len(l.buffer)+len(data) > maxInjectSize {
		// Too large, flush what we have and stream the rest
		l.startPassthrough()
		if len(l.buffer) > 0 {
			if _, err := l.ResponseWriter.Write(l.buffer); err != nil {
				return 0, err
			}
			l.buffer = nil
		}
		return l.ResponseWriter.Write(data)
	}

	l.buffer = append(l.buffer, data...)
	return len(data), nil
}

func (l *reloadInjector) startPassthrough() {
	l.passthrough = true
	l.ResponseWriter.WriteHeader(l.statusCode)
	l.headerWritten = true
}

// finalize must be called after the handler completes to inject the script.
func (l *reloadInjector) finalize() {
	if l.passthrough {
		return
	}
	if !l.buffering {
		if !l.headerWritten {
			l.ResponseWriter.WriteHeader(l.statusCode)
		}
		return
	}

	body := InjectScript(l.buffer)
	l.Header().Del("Content-Length")
	l.ResponseWriter.WriteHeader(l.statusCode)
	_, _ = l.ResponseWriter.Write(body)
}

// InjectScript inserts the reload script tag before the last closing body
// tag of page, or appends it when the page has none. Tags inside comments,
// scripts and attribute values are not mistaken for the body end.
func InjectScript(page []byte) []byte {
	at := -1
	offset := 0

	z := html.NewTokenizer(bytes.NewReader(page))
	for {
		tt := z.Next()
		if tt == html.ErrorToken {
			break
		}
		raw := len(z.Raw())
		if tt == html.EndTagToken {
			if name, _ := z.TagName(); string(name) == "body" {
				at = offset
			}
		}
		offset += raw
	}

	out := make([]byte, 0, len(page)+len(scriptTag))
	if at < 0 {
		out = append(out, page...)
		return append(out, scriptTag...)
	}
	out = append(out, page[:at]...)
	out = append(out, scriptTag...)
	return append(out, page[at:]...)
}
