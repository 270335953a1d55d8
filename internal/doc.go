// Package internal contains the core implementation packages for sitegraph.
//
// # Package Organization
//
// The internal packages are organized by functional domain:
//
//   - paths: Source patterns and destinations derived from the root directories
//   - fsutil: Glob expansion and file copies shared by the tasks
//   - transform: Sass, handlebars, esbuild, minify and image transforms
//   - tasks: The asset tasks plus clean and deploy
//   - graph: Task graph, dependency runner and the site composition
//   - watcher: File system monitoring with debouncing and rebuild coalescing
//   - server: Preview HTTP server with live reload over WebSocket
//   - deploy: Publishing the output root to a git branch
//   - config: Configuration loading and validation
//   - errors: Build errors, suggestions and the browser overlay
//   - logging: Structured logging
//   - metrics: Task and reload counters exported to Prometheus
//   - version: Build information
//
// # Design Principles
//
// Tasks never stop the process on a compile error. They log it, report it to
// connected browsers and leave the previous output in place. I/O errors fail
// the task and every task depending on it.
package internal
