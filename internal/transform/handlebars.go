package transform

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/aymerick/raymond"
)

// maxMissingPartials bounds how many unknown partials one template may
// reference before rendering gives up.
const maxMissingPartials = 64

var missingPartial = regexp.MustCompile(`Partial not found: "?([^"\s]+)"?`)

// Templates renders Handlebars templates against a shared set of partials.
// Partials that are referenced but not registered render as empty strings.
type Templates struct {
	partials map[string]string
}

// NewTemplates returns a renderer with the given partial sources keyed by name.
func NewTemplates(partials map[string]string) *Templates {
	p := make(map[string]string, len(partials))
	for name, source := range partials {
		p[name] = source
	}
	return &Templates{partials: p}
}

// Partials returns the registered partial names.
func (t *Templates) Partials() []string {
	names := make([]string, 0, len(t.partials))
	for name := range t.partials {
		names = append(names, name)
	}
	return names
}

// Render renders source with data as its context. file is only used to
// locate errors.
func (t *Templates) Render(file, source string, data interface{}) (string, error) {
	if data == nil {
		data = map[string]interface{}{}
	}
	missing := map[string]bool{}

	for attempt := 0; attempt <= maxMissingPartials; attempt++ {
		tpl, err := raymond.Parse(source)
		if err != nil {
			return "", compileError("handlebars", file, err)
		}

		tpl.RegisterPartials(t.partials)
		for name := range missing {
			tpl.RegisterPartial(name, "")
		}

		out, err := tpl.Exec(data)
		if err == nil {
			return out, nil
		}

		name, ok := missingPartialName(err)
		if _, registered := t.partials[name]; !ok || registered || missing[name] {
			return "", compileError("handlebars", file, err)
		}
		missing[name] = true
	}

	return "", compileError("handlebars", file, fmt.Errorf("more than %d missing partials", maxMissingPartials))
}

func missingPartialName(err error) (string, bool) {
	m := missingPartial.FindStringSubmatch(err.Error())
	if m == nil {
		return "", false
	}
	return strings.TrimSpace(m[1]), true
}
