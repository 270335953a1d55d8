package paths

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKindString(t *testing.T) {
	testCases := []struct {
		kind     Kind
		expected string
	}{
		{KindStyles, "styles"},
		{KindStyleLibraries, "style-libraries"},
		{KindTemplates, "templates"},
		{KindScripts, "scripts"},
		{KindScriptLibraries, "script-libraries"},
		{KindImages, "images"},
		{KindStaticFiles, "static-files"},
		{KindDomainMarker, "domain-marker"},
		{Kind(99), "unknown"},
	}

	for _, tc := range testCases {
		t.Run(tc.expected, func(t *testing.T) {
			assert.Equal(t, tc.expected, tc.kind.String())
		})
	}
}

func TestResolveDefaultLayout(t *testing.T) {
	p := Resolve(DefaultRoots())

	tests := []struct {
		kind Kind
		src  []string
		dist string
	}{
		{KindStyles, []string{"css/main.scss"}, "dist/css"},
		{KindStyleLibraries, []string{"css/libs/**/*"}, "dist/css/libs"},
		{KindTemplates, []string{"views/**/*.hbs"}, "dist"},
		{KindScripts, []string{"js/**/*.js", "!js/libs/*.js"}, "dist/js"},
		{KindScriptLibraries, []string{"js/libs/*.{js,map}"}, "dist/js/libs"},
		{KindImages, []string{"img/**/*.{jpg,jpeg,svg,png,gif}"}, "dist/img"},
		{KindStaticFiles, []string{"public/**/*"}, "dist"},
		{KindDomainMarker, []string{"CNAME"}, "dist"},
	}

	for _, tt := range tests {
		t.Run(tt.kind.String(), func(t *testing.T) {
			assert.Equal(t, tt.src, p.Source(tt.kind))
			assert.Equal(t, tt.dist, p.Dest(tt.kind))
		})
	}

	assert.Equal(t, "dist", p.OutputRoot())
	assert.Equal(t, "css/main.scss", p.StyleEntry())
	assert.Equal(t, "css/**/*.scss", p.StyleWatch())
	assert.Equal(t, []string{"views/partials", "views/components"}, p.PartialDirs())
}

func TestResolveEveryKindHasSourceAndDest(t *testing.T) {
	p := Resolve(DefaultRoots())
	for _, kind := range Kinds {
		assert.NotEmpty(t, p.Source(kind), kind.String())
		assert.NotEmpty(t, p.Dest(kind), kind.String())
	}
}

func TestResolveCleansRoots(t *testing.T) {
	roots := DefaultRoots()
	roots.Output = "./build/"
	roots.Styles = "assets//styles"

	p := Resolve(roots)

	assert.Equal(t, "build", p.OutputRoot())
	assert.Equal(t, "build/css", p.Dest(KindStyles))
	assert.Equal(t, "assets/styles/main.scss", p.StyleEntry())
}

func TestSourceReturnsCopy(t *testing.T) {
	p := Resolve(DefaultRoots())
	src := p.Source(KindScripts)
	src[0] = "mutated"

	assert.Equal(t, "js/**/*.js", p.Source(KindScripts)[0])
}

func TestIsPartial(t *testing.T) {
	p := Resolve(DefaultRoots())

	assert.True(t, p.IsPartial("views/partials/header.hbs"))
	assert.True(t, p.IsPartial("views/components/nav/item.hbs"))
	assert.False(t, p.IsPartial("views/index.hbs"))
	assert.False(t, p.IsPartial("views/partials-old.hbs"))
}

func TestBase(t *testing.T) {
	tests := []struct {
		pattern string
		want    string
	}{
		{"public/**/*", "public"},
		{"css/libs/**/*", "css/libs"},
		{"js/libs/*.{js,map}", "js/libs"},
		{"!js/libs/*.js", "js/libs"},
		{"css/main.scss", "css"},
		{"CNAME", "."},
		{"*.hbs", "."},
	}

	for _, tt := range tests {
		t.Run(tt.pattern, func(t *testing.T) {
			require.Equal(t, tt.want, Base(tt.pattern))
		})
	}
}
