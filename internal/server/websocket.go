package server

import (
	"context"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/coder/websocket"
)

const (
	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// Send pings to peer with this period.
	pingPeriod = 54 * time.Second

	// Maximum message size allowed from peer.
	maxMessageSize = 512

	// Messages buffered per client before it counts as slow and is dropped.
	clientBuffer = 256
)

func (s *PreviewServer) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	// Validate origin before accepting connection
	originHost, ok := s.checkOrigin(r)
	if !ok {
		http.Error(w, "Origin not allowed", http.StatusForbidden)
		return
	}

	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: []string{originHost},
	})
	if err != nil {
		s.logger.Warn(r.Context(), err, "WebSocket upgrade failed")
		return
	}
	conn.SetReadLimit(maxMessageSize)

	client := &Client{
		conn:   conn,
		send:   make(chan []byte, clientBuffer),
		server: s,
	}

	go client.writePump()
	go client.readPump()

	select {
	case s.register <- client:
	case <-s.done:
		conn.Close(websocket.StatusGoingAway, "server shutting down")
	}
}

// checkOrigin validates the request origin. Browsers on the preview page send
// the server's own host; anything else must be configured explicitly.
func (s *PreviewServer) checkOrigin(r *http.Request) (string, bool) {
	origin := r.Header.Get("Origin")
	if origin == "" {
		// Reject connections without origin header for security
		return "", false
	}

	originURL, err := url.Parse(origin)
	if err != nil {
		return "", false
	}

	// Only allow http/https
	if originURL.Scheme != "http" && originURL.Scheme != "https" {
		return "", false
	}

	port := strconv.Itoa(s.opts.Port)
	allowedHosts := []string{
		r.Host,
		"localhost:" + port,
		"127.0.0.1:" + port,
	}
	if s.opts.Host != "" {
		allowedHosts = append(allowedHosts, s.opts.Host+":"+port)
	}

	for _, allowed := range allowedHosts {
		if originURL.Host == allowed {
			return originURL.Host, true
		}
	}

	for _, allowed := range s.opts.AllowedOrigins {
		if origin == allowed {
			return originURL.Host, true
		}
	}

	return "", false
}

// startHub runs the client hub until ctx is done.
func (s *PreviewServer) startHub(ctx context.Context) {
	s.hubRunning.Store(true)
	go s.runWebSocketHub(ctx)
}

func (s *PreviewServer) runWebSocketHub(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-s.done:
			return

		case client := <-s.register:
			s.clientsMutex.Lock()
			s.clients[client.conn] = client
			clientCount := len(s.clients)
			s.clientsMutex.Unlock()
			s.recorder.SetReloadClients(clientCount)
			s.logger.Debug(ctx, "Client connected", "clients", clientCount)

		case conn := <-s.unregister:
			s.clientsMutex.Lock()
			if client, ok := s.clients[conn]; ok {
				delete(s.clients, conn)
				close(client.send)
			}
			clientCount := len(s.clients)
			s.clientsMutex.Unlock()
			s.recorder.SetReloadClients(clientCount)
			s.logger.Debug(ctx, "Client disconnected", "clients", clientCount)

		case message := <-s.broadcast:
			s.clientsMutex.RLock()
			var failedClients []*websocket.Conn
			for conn, client := range s.clients {
				select {
				case client.send <- message:
				default:
					// Client's send channel is full, mark for removal
					failedClients = append(failedClients, conn)
				}
			}
			s.clientsMutex.RUnlock()

			// Clean up failed clients outside the read lock
			if len(failedClients) > 0 {
				s.clientsMutex.Lock()
				for _, conn := range failedClients {
					if client, ok := s.clients[conn]; ok {
						delete(s.clients, conn)
						close(client.send)
					}
				}
				clientCount := len(s.clients)
				s.clientsMutex.Unlock()
				s.recorder.SetReloadClients(clientCount)
				s.logger.Debug(ctx, "Dropped slow clients", "dropped", len(failedClients))
			}
		}
	}
}

// readPump waits for the browser to disconnect. Browsers never send data,
// so CloseRead handles control frames until the connection closes.
func (c *Client) readPump() {
	ctx := c.conn.CloseRead(context.Background())
	<-ctx.Done()

	select {
	case c.server.unregister <- c.conn:
	case <-c.server.done:
	}
	c.conn.Close(websocket.StatusNormalClosure, "")
}

// writePump pumps messages to the websocket connection
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close(websocket.StatusNormalClosure, "")
	}()

	ctx := context.Background()

	for {
		select {
		case message, ok := <-c.send:
			if !ok {
				return
			}

			writeCtx, cancel := context.WithTimeout(ctx, writeWait)
			err := c.conn.Write(writeCtx, websocket.MessageText, message)
			cancel()
			if err != nil {
				return
			}

		case <-ticker.C:
			pingCtx, cancel := context.WithTimeout(ctx, writeWait)
			err := c.conn.Ping(pingCtx)
			cancel()
			if err != nil {
				return
			}
		}
	}
}
