// Package watcher turns filesystem notifications under the project directory
// into debounced batches of changes and routes them to the tasks that consume
// those files.
package watcher

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/conneroisu/sitegraph/internal/fsutil"
	"github.com/conneroisu/sitegraph/internal/logging"
)

// FileWatcher watches a project directory tree. Every handler has its own
// debouncer so a slow consumer never delays a fast one.
type FileWatcher struct {
	watcher  *fsnotify.Watcher
	root     string
	logger   logging.Logger
	filters   []FileFilter
	skipNames []string
	skipPaths []string
	handlers  []*registration
	mutex     sync.RWMutex
	stopOnce  sync.Once
}

type registration struct {
	debouncer *Debouncer
	handler   ChangeHandler
}

// ChangeEvent represents a file change event
type ChangeEvent struct {
	Type EventType
	// Path is slash-separated and relative to the watched root.
	Path    string
	ModTime time.Time
	Size    int64
}

// EventType represents the type of file change
type EventType int

const (
	EventTypeCreated EventType = iota
	EventTypeModified
	EventTypeDeleted
	EventTypeRenamed
)

// String returns the string representation of the EventType
func (e EventType) String() string {
	switch e {
	case EventTypeCreated:
		return "created"
	case EventTypeModified:
		return "modified"
	case EventTypeDeleted:
		return "deleted"
	case EventTypeRenamed:
		return "renamed"
	default:
		return "unknown"
	}
}

// FileFilter reports whether a root-relative path should be delivered.
type FileFilter func(path string) bool

// ChangeHandler handles a debounced batch of changes.
type ChangeHandler func(ctx context.Context, events []ChangeEvent) error

// Debouncer groups rapid file changes together
type Debouncer struct {
	delay   time.Duration
	events  chan ChangeEvent
	output  chan []ChangeEvent
	timer   *time.Timer
	pending []ChangeEvent
	mutex   sync.Mutex
}

// NewDebouncer returns a debouncer that emits a batch once delay has passed
// without a new event.
func NewDebouncer(delay time.Duration) *Debouncer {
	return &Debouncer{
		delay:   delay,
		events:  make(chan ChangeEvent, 100),
		output:  make(chan []ChangeEvent, 10),
		pending: make([]ChangeEvent, 0),
	}
}

// NewFileWatcher creates a watcher for the tree under root.
func NewFileWatcher(root string, logger logging.Logger) (*FileWatcher, error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("creating watcher: %w", err)
	}

	absRoot, err := filepath.Abs(root)
	if err != nil {
		watcher.Close()
		return nil, fmt.Errorf("resolving %s: %w", root, err)
	}

	if logger == nil {
		logger = logging.NewNop()
	}

	return &FileWatcher{
		watcher:  watcher,
		root:     absRoot,
		logger:   logger.WithComponent("watcher"),
		filters:  make([]FileFilter, 0),
		handlers: make([]*registration, 0),
	}, nil
}

// AddFilter adds a file filter
func (fw *FileWatcher) AddFilter(filter FileFilter) {
	fw.mutex.Lock()
	defer fw.mutex.Unlock()
	fw.filters = append(fw.filters, filter)
}

// SkipDir ignores every directory called name, at any depth.
func (fw *FileWatcher) SkipDir(name string) {
	fw.mutex.Lock()
	defer fw.mutex.Unlock()
	fw.skipNames = append(fw.skipNames, name)
}

// SkipPath ignores the directory at the root-relative path rel and everything
// below it. Directories elsewhere sharing its name are still watched.
func (fw *FileWatcher) SkipPath(rel string) {
	fw.mutex.Lock()
	defer fw.mutex.Unlock()
	fw.skipPaths = append(fw.skipPaths, strings.Trim(filepath.ToSlash(rel), "/"))
}

// AddHandler registers handler behind its own debouncer. A zero delay
// delivers every change as soon as it arrives.
func (fw *FileWatcher) AddHandler(delay time.Duration, handler ChangeHandler) {
	fw.mutex.Lock()
	defer fw.mutex.Unlock()
	fw.handlers = append(fw.handlers, &registration{
		debouncer: NewDebouncer(delay),
		handler:   handler,
	})
}

// AddRecursive adds a directory and all subdirectories to watch
func (fw *FileWatcher) AddRecursive(dir string) error {
	cleanRoot, err := fw.validatePath(dir)
	if err != nil {
		return fmt.Errorf("invalid root path: %w", err)
	}

	return filepath.WalkDir(cleanRoot, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			return nil
		}
		if path != fw.root && fw.skipped(fw.rel(path)) {
			return filepath.SkipDir
		}
		if err := fw.watcher.Add(path); err != nil {
			return fmt.Errorf("watching %s: %w", path, err)
		}
		return nil
	})
}

// validatePath resolves path against the root and rejects anything outside it.
func (fw *FileWatcher) validatePath(path string) (string, error) {
	if !filepath.IsAbs(path) {
		path = filepath.Join(fw.root, path)
	}
	cleanPath := filepath.Clean(path)

	rel, err := filepath.Rel(fw.root, cleanPath)
	if err != nil {
		return "", fmt.Errorf("resolving %s: %w", path, err)
	}
	if rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("path %s is outside the watched root", path)
	}
	return cleanPath, nil
}

func (fw *FileWatcher) rel(path string) string {
	rel, err := filepath.Rel(fw.root, path)
	if err != nil {
		return filepath.ToSlash(path)
	}
	return filepath.ToSlash(rel)
}

func (fw *FileWatcher) skipped(rel string) bool {
	fw.mutex.RLock()
	defer fw.mutex.RUnlock()

	for _, skip := range fw.skipPaths {
		if rel == skip || strings.HasPrefix(rel, skip+"/") {
			return true
		}
	}
	for _, segment := range strings.Split(rel, "/") {
		for _, name := range fw.skipNames {
			if segment == name {
				return true
			}
		}
	}
	return false
}

// Start starts the file watcher
func (fw *FileWatcher) Start(ctx context.Context) error {
	fw.mutex.RLock()
	handlers := fw.handlers
	fw.mutex.RUnlock()

	for _, reg := range handlers {
		go reg.debouncer.start(ctx)
		go fw.processEvents(ctx, reg)
	}

	go fw.watchLoop(ctx)

	return nil
}

// Stop stops the file watcher and cleans up resources
func (fw *FileWatcher) Stop() error {
	var err error
	fw.stopOnce.Do(func() {
		fw.mutex.RLock()
		for _, reg := range fw.handlers {
			reg.debouncer.stop()
		}
		fw.mutex.RUnlock()

		err = fw.watcher.Close()
	})
	return err
}

func (fw *FileWatcher) watchLoop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-fw.watcher.Events:
			if !ok {
				return
			}
			fw.handleFsnotifyEvent(ctx, event)
		case err, ok := <-fw.watcher.Errors:
			if !ok {
				return
			}
			// Log error but continue watching
			fw.logger.Warn(ctx, err, "File watcher error")
		}
	}
}

func (fw *FileWatcher) handleFsnotifyEvent(ctx context.Context, event fsnotify.Event) {
	rel := fw.rel(event.Name)

	info, err := os.Stat(event.Name)
	var modTime time.Time
	var size int64

	if err == nil {
		if info.IsDir() {
			// New directories need their own watches
			if event.Op&fsnotify.Create == fsnotify.Create && !fw.skipped(rel) {
				if err := fw.AddRecursive(event.Name); err != nil {
					fw.logger.Warn(ctx, err, "Failed to watch new directory", "dir", rel)
				}
			}
			return
		}
		modTime = info.ModTime()
		size = info.Size()
	}

	if fw.skipped(rel) {
		return
	}

	fw.mutex.RLock()
	filters := fw.filters
	handlers := fw.handlers
	fw.mutex.RUnlock()

	for _, filter := range filters {
		if !filter(rel) {
			return
		}
	}

	// Convert to our event type
	var eventType EventType
	switch {
	case event.Op&fsnotify.Create == fsnotify.Create:
		eventType = EventTypeCreated
	case event.Op&fsnotify.Write == fsnotify.Write:
		eventType = EventTypeModified
	case event.Op&fsnotify.Remove == fsnotify.Remove:
		eventType = EventTypeDeleted
	case event.Op&fsnotify.Rename == fsnotify.Rename:
		eventType = EventTypeRenamed
	case event.Op&fsnotify.Chmod == fsnotify.Chmod:
		return
	default:
		eventType = EventTypeModified
	}

	changeEvent := ChangeEvent{
		Type:    eventType,
		Path:    rel,
		ModTime: modTime,
		Size:    size,
	}

	for _, reg := range handlers {
		select {
		case reg.debouncer.events <- changeEvent:
		default:
			fw.logger.Warn(ctx, nil, "Dropped file change, debouncer full", "path", rel)
		}
	}
}

func (fw *FileWatcher) processEvents(ctx context.Context, reg *registration) {
	for {
		select {
		case <-ctx.Done():
			return
		case events := <-reg.debouncer.output:
			if err := reg.handler(ctx, events); err != nil {
				// Log error but continue processing
				fw.logger.Error(ctx, err, "File watcher handler error")
			}
		}
	}
}

// Debouncer implementation
func (d *Debouncer) start(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			d.stop()
			return
		case event := <-d.events:
			d.addEvent(event)
		}
	}
}

func (d *Debouncer) addEvent(event ChangeEvent) {
	d.mutex.Lock()
	defer d.mutex.Unlock()

	// Add event to pending list
	d.pending = append(d.pending, event)

	// Reset timer
	if d.timer != nil {
		d.timer.Stop()
	}

	d.timer = time.AfterFunc(d.delay, func() {
		d.flush()
	})
}

func (d *Debouncer) stop() {
	d.mutex.Lock()
	defer d.mutex.Unlock()
	if d.timer != nil {
		d.timer.Stop()
	}
}

func (d *Debouncer) flush() {
	d.mutex.Lock()
	defer d.mutex.Unlock()

	if len(d.pending) == 0 {
		return
	}

	// Deduplicate events by path, the latest event wins
	eventMap := make(map[string]ChangeEvent)
	for _, event := range d.pending {
		eventMap[event.Path] = event
	}

	events := make([]ChangeEvent, 0, len(eventMap))
	for _, event := range eventMap {
		events = append(events, event)
	}
	sort.Slice(events, func(i, j int) bool { return events[i].Path < events[j].Path })

	// Send debounced events
	select {
	case d.output <- events:
	default:
		// Channel full, skip
	}

	// Clear pending events
	d.pending = d.pending[:0]
}

// NoGitFilter drops changes inside .git directories.
func NoGitFilter(path string) bool {
	return !strings.HasPrefix(path, ".git/") && !strings.Contains(path, "/.git/")
}

// NoEditorFilter drops editor swap and backup files.
func NoEditorFilter(path string) bool {
	base := path[strings.LastIndex(path, "/")+1:]
	return !strings.HasSuffix(base, "~") &&
		!strings.HasSuffix(base, ".swp") &&
		!strings.HasSuffix(base, ".swx") &&
		!strings.HasPrefix(base, ".#")
}

// IgnoreFilter drops changes matching any of the glob patterns.
func IgnoreFilter(patterns []string) FileFilter {
	return func(path string) bool {
		return len(patterns) == 0 || !fsutil.MatchAny(patterns, path)
	}
}
