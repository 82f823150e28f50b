package main

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/gorilla/websocket"
)

// fakeBackend serves /create, /get-apps, and a progress stream that replays frames
// once the deployment is submitted.
type fakeBackend struct {
	t        *testing.T
	frames   []string
	closeEnd bool
	apps     string

	mu      sync.Mutex
	created []map[string]string
	conns   chan *websocket.Conn
}

func newFakeBackend(t *testing.T, frames []string) *fakeBackend {
	return &fakeBackend{t: t, frames: frames, conns: make(chan *websocket.Conn, 1), apps: `{"apps":[]}`}
}

func (f *fakeBackend) start() *httptest.Server {
	upgrader := websocket.Upgrader{}
	mux := http.NewServeMux()
	mux.HandleFunc("/ws", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("app_name") == "" {
			http.Error(w, "missing app_name", http.StatusBadRequest)
			return
		}
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		f.conns <- conn
	})
	mux.HandleFunc("/create", func(w http.ResponseWriter, r *http.Request) {
		var body map[string]string
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		f.mu.Lock()
		f.created = append(f.created, body)
		f.mu.Unlock()
		_, _ = w.Write([]byte(`{"message":"Deployment started"}`))
		go f.replay()
	})
	mux.HandleFunc("/get-apps", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(f.apps))
	})
	srv := httptest.NewServer(mux)
	f.t.Cleanup(srv.Close)
	return srv
}

func (f *fakeBackend) replay() {
	conn := <-f.conns
	defer conn.Close()
	for _, frame := range f.frames {
		if err := conn.WriteMessage(websocket.TextMessage, []byte(frame)); err != nil {
			return
		}
	}
	if f.closeEnd {
		_ = conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	}
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (f *fakeBackend) requests() []map[string]string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]map[string]string(nil), f.created...)
}
