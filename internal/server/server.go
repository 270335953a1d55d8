// Package server implements the live preview server: a static file server
// rooted at the output directory with a websocket endpoint that pushes reload
// and build status messages to every connected browser.
package server

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"os/exec"
	"runtime"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/coder/websocket"

	"github.com/conneroisu/sitegraph/internal/errors"
	"github.com/conneroisu/sitegraph/internal/logging"
	"github.com/conneroisu/sitegraph/internal/metrics"
	"github.com/conneroisu/sitegraph/internal/version"
)

// Paths served by the preview server itself.
const (
	WebSocketPath = "/ws"
	ScriptPath    = "/_sitegraph/reload.js"
	HealthPath    = "/health"
	MetricsPath   = "/metrics"
)

// ReloadKind selects how browsers refresh.
type ReloadKind string

const (
	// ReloadCSS swaps stylesheets without reloading the page.
	ReloadCSS ReloadKind = "css_reload"
	// ReloadFull reloads the page.
	ReloadFull ReloadKind = "full_reload"
)

// Message types for build status.
const (
	MessageBuildError   = "build_error"
	MessageBuildSuccess = "build_success"
)

// ReloadRequest asks every connected browser to refresh.
type ReloadRequest struct {
	Kind ReloadKind
	// Target is the URL path of the changed file, if known.
	Target string
}

// UpdateMessage represents a message sent to the browser
type UpdateMessage struct {
	Type      string    `json:"type"`
	Target    string    `json:"target,omitempty"`
	Content   string    `json:"content,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// Options configures the preview server.
type Options struct {
	Host string
	Port int
	// Root is the directory served, normally the output root.
	Root           string
	Open           bool
	AllowedOrigins []string
}

// Client represents a WebSocket client
type Client struct {
	conn   *websocket.Conn
	send   chan []byte
	server *PreviewServer
}

// PreviewServer serves the output tree with live reload capability
type PreviewServer struct {
	opts     Options
	logger   logging.Logger
	recorder metrics.Recorder
	metrics  http.Handler

	httpServer  *http.Server
	listener    net.Listener
	serverMutex sync.RWMutex

	clients      map[*websocket.Conn]*Client
	clientsMutex sync.RWMutex
	broadcast    chan []byte
	register     chan *Client
	unregister   chan *websocket.Conn
	hubRunning   atomic.Bool

	lastErrors  []errors.BuildError
	errorsMutex sync.RWMutex

	shutdownOnce sync.Once
	done         chan struct{}
}

// New creates a new preview server. It does not listen until Start.
func New(opts Options, logger logging.Logger, recorder metrics.Recorder) *PreviewServer {
	if logger == nil {
		logger = logging.NewNop()
	}
	if recorder == nil {
		recorder = metrics.NoopRecorder{}
	}
	return &PreviewServer{
		opts:       opts,
		logger:     logger.WithComponent("server"),
		recorder:   recorder,
		clients:    make(map[*websocket.Conn]*Client),
		broadcast:  make(chan []byte, 16),
		register:   make(chan *Client),
		unregister: make(chan *websocket.Conn),
		done:       make(chan struct{}),
	}
}

// WithMetricsHandler exposes h on /metrics.
func (s *PreviewServer) WithMetricsHandler(h http.Handler) *PreviewServer {
	s.metrics = h
	return s
}

// Handler returns the HTTP handler with every route installed.
func (s *PreviewServer) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc(WebSocketPath, s.handleWebSocket)
	mux.HandleFunc(ScriptPath, s.handleScript)
	mux.HandleFunc(HealthPath, s.handleHealth)
	if s.metrics != nil {
		mux.Handle(MetricsPath, s.metrics)
	}
	mux.Handle("/", injectReloadScript(http.FileServer(http.Dir(s.opts.Root))))

	return s.addMiddleware(mux)
}

// Start binds the listener and serves in the background until ctx is done.
// Bind errors are returned directly.
func (s *PreviewServer) Start(ctx context.Context) error {
	addr := net.JoinHostPort(s.opts.Host, strconv.Itoa(s.opts.Port))
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return errors.NewEnhancedError("Failed to start preview server", err, errors.ServerStartError(err, s.opts.Port))
	}

	s.startHub(ctx)

	s.serverMutex.Lock()
	s.listener = ln
	s.httpServer = &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	server := s.httpServer
	s.serverMutex.Unlock()

	go func() {
		if err := server.Serve(ln); err != nil && err != http.ErrServerClosed {
			s.logger.Error(ctx, err, "Preview server stopped")
		}
	}()

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.Shutdown(shutdownCtx); err != nil {
			s.logger.Warn(shutdownCtx, err, "Preview server shutdown")
		}
	}()

	url := "http://" + ln.Addr().String()
	s.logger.Info(ctx, "Preview server listening", "url", url, "root", s.opts.Root)

	if s.opts.Open {
		go s.openBrowser(ctx, url)
	}

	return nil
}

// Addr returns the bound address, or "" before Start.
func (s *PreviewServer) Addr() string {
	s.serverMutex.RLock()
	defer s.serverMutex.RUnlock()
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

// Done is closed once the server has shut down.
func (s *PreviewServer) Done() <-chan struct{} {
	return s.done
}

// Reload tells every connected browser to refresh. It is a no-op while the
// server is not running.
func (s *PreviewServer) Reload(ctx context.Context, req ReloadRequest) {
	kind := req.Kind
	if kind == "" {
		kind = ReloadFull
	}
	s.broadcastMessage(ctx, UpdateMessage{
		Type:      string(kind),
		Target:    req.Target,
		Timestamp: time.Now(),
	})
}

// ReportErrors publishes the current build errors. A non-empty list shows the
// error overlay and an empty one clears it.
func (s *PreviewServer) ReportErrors(ctx context.Context, errs []errors.BuildError) {
	s.errorsMutex.Lock()
	s.lastErrors = append([]errors.BuildError(nil), errs...)
	s.errorsMutex.Unlock()

	if len(errs) == 0 {
		s.broadcastMessage(ctx, UpdateMessage{Type: MessageBuildSuccess, Timestamp: time.Now()})
		return
	}

	overlay, err := errors.RenderOverlay(ctx, errs)
	if err != nil {
		s.logger.Error(ctx, err, "Failed to render error overlay")
		return
	}
	s.broadcastMessage(ctx, UpdateMessage{Type: MessageBuildError, Content: overlay, Timestamp: time.Now()})
}

// LastErrors returns the errors last passed to ReportErrors.
func (s *PreviewServer) LastErrors() []errors.BuildError {
	s.errorsMutex.RLock()
	defer s.errorsMutex.RUnlock()
	return append([]errors.BuildError(nil), s.lastErrors...)
}

// ClientCount returns the number of connected browsers.
func (s *PreviewServer) ClientCount() int {
	s.clientsMutex.RLock()
	defer s.clientsMutex.RUnlock()
	return len(s.clients)
}

func (s *PreviewServer) broadcastMessage(ctx context.Context, msg UpdateMessage) {
	if !s.hubRunning.Load() {
		return
	}

	jsonData, err := json.Marshal(msg)
	if err != nil {
		s.logger.Error(ctx, err, "Failed to marshal message")
		jsonData = []byte(`{"type":"full_reload"}`)
	}

	select {
	case s.broadcast <- jsonData:
		s.recorder.IncReloadBroadcast(msg.Type)
	case <-ctx.Done():
	case <-s.done:
	}
}

// Shutdown gracefully shuts down the server and closes every client.
func (s *PreviewServer) Shutdown(ctx context.Context) error {
	var shutdownErr error

	s.shutdownOnce.Do(func() {
		s.logger.Info(ctx, "Shutting down preview server")
		s.hubRunning.Store(false)

		s.serverMutex.RLock()
		server := s.httpServer
		s.serverMutex.RUnlock()

		if server != nil {
			shutdownErr = server.Shutdown(ctx)
		}

		s.clientsMutex.Lock()
		for conn, client := range s.clients {
			close(client.send)
			conn.Close(websocket.StatusGoingAway, "server shutting down")
		}
		s.clients = make(map[*websocket.Conn]*Client)
		s.clientsMutex.Unlock()
		s.recorder.SetReloadClients(0)

		close(s.done)
	})

	return shutdownErr
}

func (s *PreviewServer) addMiddleware(handler http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// Previews always reflect the latest build
		w.Header().Set("Cache-Control", "no-cache, no-store, must-revalidate")
		w.Header().Set("X-Content-Type-Options", "nosniff")

		start := time.Now()
		handler.ServeHTTP(w, r)
		s.logger.Debug(r.Context(), "Request served", "method", r.Method, "path", r.URL.Path, "duration", time.Since(start))
	})
}

// handleHealth returns the server health status for health checks
func (s *PreviewServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	health := map[string]interface{}{
		"status":     "healthy",
		"timestamp":  time.Now().UTC(),
		"version":    version.GetShortVersion(),
		"build_info": version.GetBuildInfo(),
		"clients":    s.ClientCount(),
		"errors":     len(s.LastErrors()),
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)

	if err := json.NewEncoder(w).Encode(health); err != nil {
		s.logger.Error(r.Context(), err, "Failed to encode health response")
	}
}

func (s *PreviewServer) handleScript(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/javascript; charset=utf-8")
	_, _ = w.Write([]byte(reloadScript))
}

func (s *PreviewServer) openBrowser(ctx context.Context, url string) {
	time.Sleep(100 * time.Millisecond) // Give server time to start

	var err error
	switch runtime.GOOS {
	case "linux":
		err = exec.Command("xdg-open", url).Start()
	case "windows":
		err = exec.Command("rundll32", "url.dll,FileProtocolHandler", url).Start()
	case "darwin":
		err = exec.Command("open", url).Start()
	default:
		err = fmt.Errorf("unsupported platform %s", runtime.GOOS)
	}

	if err != nil {
		s.logger.Warn(ctx, err, "Failed to open browser", "url", url)
	}
}
