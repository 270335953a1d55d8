package graph

import (
	"github.com/conneroisu/sitegraph/internal/tasks"
)

// Node names that are not asset tasks.
const (
	NameServe   = "serve"
	NameWatch   = "watch"
	NameDefault = "default"
)

// DefaultDeps are the nodes the default composition runs.
var DefaultDeps = []string{
	NameWatch,
	NameServe,
	tasks.NameImages,
	tasks.NameFiles,
	tasks.NameStyles,
	tasks.NameScripts,
	tasks.NameTemplates,
	tasks.NameCNAME,
}

// Site builds the site graph: one node per asset task, clean and deploy,
// the serve and watch services and the default composition.
func Site(env *tasks.Env, serve, watch RunFunc) (*Graph, error) {
	nodes := []Node{
		{Name: tasks.NameStyles, Description: "compile the entry stylesheet and copy style libraries", Run: env.Styles},
		{Name: tasks.NameTemplates, Description: "render handlebars pages to minified HTML", Run: env.Templates},
		{Name: tasks.NameScripts, Description: "transpile and minify scripts, copy script libraries", Run: env.Scripts},
		{Name: tasks.NameImages, Description: "optimize images", Run: env.Images},
		{Name: tasks.NameFiles, Description: "copy static files to the output root", Run: env.Files},
		{Name: tasks.NameCNAME, Description: "copy the domain marker to the output root", Run: env.CNAME},
		{Name: tasks.NameClean, Description: "delete the contents of the output root", Run: env.Clean},
		{Name: tasks.NameDeploy, Description: "publish the output root to the hosting branch", Run: env.Deploy},
		{Name: NameServe, Description: "serve the output root with live reload", Service: true, Run: serve},
		{Name: NameWatch, Description: "rebuild on source changes", Service: true, Run: watch},
		{Name: NameDefault, Description: "build everything, serve and watch", Deps: DefaultDeps},
	}

	g := New()
	for _, n := range nodes {
		if err := g.Add(n); err != nil {
			return nil, err
		}
	}
	return g, g.Validate()
}
