// Package cmd provides the command-line interface for sitegraph.
//
// Every node of the site graph is exposed as a subcommand of the same name.
// Running a subcommand runs the node's dependencies first, each at most once.
//
// # Available Commands
//
//   - styles: Compile the entry stylesheet and copy style libraries
//   - templates: Render handlebars pages to minified HTML
//   - scripts: Transpile and minify scripts, copy script libraries
//   - images: Optimize images
//   - files: Copy static files to the output root
//   - cname: Copy the domain marker to the output root
//   - clean: Delete the contents of the output root
//   - deploy: Publish the output root to the hosting branch
//   - serve: Serve the output root with live reload
//   - watch: Rebuild on source changes
//   - default: Build everything, serve and watch (also the bare command)
//   - tasks: List the graph
//   - config: Print the effective configuration
//   - version: Print build information
//
// # Command Examples
//
//	// Build, serve and watch the project in the current directory
//	sitegraph
//
//	// Rebuild only the stylesheets of another project
//	sitegraph styles -C ./site
//
//	// Serve on a different port
//	sitegraph serve --port 8080
//
//	// Fail the run when a template or stylesheet does not compile
//	sitegraph templates --strict
//
// # Exit Codes
//
//	0: every task succeeded or recovered from a compile error
//	1: a task failed
//	2: a task recovered from a compile error and --strict was set
package cmd
