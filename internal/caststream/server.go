// File: internal/caststream/server.go
// Brief: HTTP and WebSocket server mirroring deployment progress to browsers.

// Package caststream hosts the lightweight web mirror used by `nephelios deploy
// --ui`. It mirrors the deploy console to browser and raw WebSocket clients so
// teammates can follow the same deployment without running the CLI themselves.
package caststream

import (
	"bytes"
	"context"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"html/template"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/go-logr/logr"
	"github.com/gorilla/websocket"

	"github.com/example/nephelios/internal/progress"
)

// Option configures the caststream server.
type Option func(*Server)

// WithTitle overrides the page header of the deploy viewer.
func WithTitle(title string) Option {
	return func(s *Server) {
		if s == nil {
			return
		}
		s.title = title
	}
}

// Server exposes an HTML + WebSocket view of a deployment's progress.
type Server struct {
	addr      string
	logger    logr.Logger
	hub       *hub
	upgrader  websocket.Upgrader
	title     string
	subtitle  string
	state     *deployState
	publishMu sync.Mutex
	template  *template.Template
	listening chan struct{}
	boundAddr string
}

// New builds a server for addr. subtitle is shown under the page title.
func New(addr, subtitle string, logger logr.Logger, opts ...Option) *Server {
	server := &Server{
		addr:     addr,
		logger:   logger,
		hub:      newHub(logger),
		title:    "Nephelios Deployment",
		subtitle: subtitle,
		state:    newDeployState(),
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		template:  template.Must(template.New("deploy_viewer").Parse(deployViewerHTML)),
		listening: make(chan struct{}),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(server)
		}
	}
	return server
}

// Handler returns the HTTP routes served by the mirror.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/", s.handleIndex)
	mux.HandleFunc("/ws", s.handleWS)
	mux.HandleFunc("/api/snapshot", s.handleSnapshot)
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/plain")
		_, _ = fmt.Fprint(w, "ok")
	})
	return mux
}

// Run serves until ctx is done.
func (s *Server) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", s.addr, err)
	}
	s.boundAddr = ln.Addr().String()
	close(s.listening)
	srv := &http.Server{Handler: s.Handler(), ReadHeaderTimeout: 10 * time.Second}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
		s.hub.Close()
	}()
	s.logger.V(1).Info("cast listener ready", "addr", s.boundAddr)
	if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Addr blocks until the listener is bound and returns its address.
func (s *Server) Addr(ctx context.Context) (string, error) {
	select {
	case <-s.listening:
		return s.boundAddr, nil
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

// HandleSnapshot satisfies deploy.Observer so deployments can mirror progress.
func (s *Server) HandleSnapshot(snap progress.Snapshot) {
	if s == nil {
		return
	}
	s.publish(frame{Kind: frameSnapshot, Snapshot: &snap})
}

// HandleResult announces the deployed application to connected viewers.
func (s *Server) HandleResult(app progress.DeployedApplication) {
	if s == nil {
		return
	}
	s.publish(frame{Kind: frameResult, Result: &app})
}

func (s *Server) publish(f frame) {
	f.Timestamp = time.Now().UTC().Format(time.RFC3339Nano)
	payload, err := json.Marshal(f)
	if err != nil {
		s.logger.Error(err, "encode cast payload")
		return
	}
	s.publishMu.Lock()
	defer s.publishMu.Unlock()
	s.state.Record(f)
	s.hub.Broadcast(payload)
}

// attach replays the cached state to c and registers it for live frames.
// Holding publishMu keeps replayed frames ahead of any newer broadcast.
func (s *Server) attach(c *client) {
	s.publishMu.Lock()
	defer s.publishMu.Unlock()
	s.state.Replay(c.send)
	s.hub.Register(c)
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}
	var buf bytes.Buffer
	if err := s.template.Execute(&buf, viewerData{Title: s.title, Subtitle: s.subtitle}); err != nil {
		s.logger.Error(err, "render cast template")
		http.Error(w, "render failed", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = w.Write(buf.Bytes())
}

func (s *Server) handleSnapshot(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	snap, ok := s.state.Latest()
	if !ok {
		_ = json.NewEncoder(w).Encode(nil)
		return
	}
	_ = json.NewEncoder(w).Encode(snap)
}

func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Error(err, "upgrade cast websocket")
		return
	}
	c := newClient(conn, s.logger)
	s.attach(c)
	go c.writeLoop()
	c.readLoop(func() {
		s.hub.Unregister(c)
	})
}

type viewerData struct {
	Title    string
	Subtitle string
}

type frameKind string

const (
	frameSnapshot frameKind = "snapshot"
	frameResult   frameKind = "result"
)

// frame is the envelope sent to viewers over /ws.
type frame struct {
	Kind      frameKind                     `json:"kind"`
	Timestamp string                        `json:"ts"`
	Snapshot  *progress.Snapshot            `json:"snapshot,omitempty"`
	Result    *progress.DeployedApplication `json:"result,omitempty"`
}

type hub struct {
	mu      sync.RWMutex
	clients map[*client]struct{}
	logger  logr.Logger
}

func newHub(logger logr.Logger) *hub {
	return &hub{clients: make(map[*client]struct{}), logger: logger}
}

func (h *hub) Register(c *client) {
	h.mu.Lock()
	h.clients[c] = struct{}{}
	h.mu.Unlock()
}

func (h *hub) Unregister(c *client) {
	h.mu.Lock()
	delete(h.clients, c)
	h.mu.Unlock()
	c.Close()
}

func (h *hub) Broadcast(msg []byte) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for c := range h.clients {
		select {
		case c.send <- msg:
		default:
			h.logger.Info("dropping cast client for slow reader")
			go h.Unregister(c)
		}
	}
}

func (h *hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.clients {
		c.Close()
		delete(h.clients, c)
	}
}

const (
	writeWait = 10 * time.Second
	pongWait  = 60 * time.Second
)

type client struct {
	conn   *websocket.Conn
	send   chan []byte
	logger logr.Logger
	once   sync.Once
}

func newClient(conn *websocket.Conn, logger logr.Logger) *client {
	return &client{
		conn:   conn,
		send:   make(chan []byte, 64),
		logger: logger,
	}
}

func (c *client) writeLoop() {
	for msg := range c.send {
		_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
		if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
			c.logger.Error(err, "write cast websocket message")
			return
		}
	}
}

func (c *client) readLoop(onClose func()) {
	defer func() {
		if onClose != nil {
			onClose()
		}
	}()
	c.conn.SetReadLimit(1024)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (c *client) Close() {
	c.once.Do(func() {
		close(c.send)
		if c.conn != nil {
			_ = c.conn.Close()
		}
	})
}

//go:embed templates/deploy_viewer.html
var deployViewerHTML string
