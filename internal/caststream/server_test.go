package caststream

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-logr/logr"
	"github.com/gorilla/websocket"

	"github.com/example/nephelios/internal/progress"
)

func TestHubBroadcastDeliversMessages(t *testing.T) {
	h := newHub(logr.Discard())
	c := &client{send: make(chan []byte, 1), logger: logr.Discard()}
	h.Register(c)

	msg := []byte("hello")
	h.Broadcast(msg)

	select {
	case got := <-c.send:
		if string(got) != string(msg) {
			t.Fatalf("unexpected payload: %q", got)
		}
	case <-time.After(time.Second):
		t.Fatalf("timed out waiting for broadcast")
	}
}

func TestHubBroadcastDropsSlowClients(t *testing.T) {
	h := newHub(logr.Discard())
	c := &client{send: make(chan []byte, 1), logger: logr.Discard()}
	h.Register(c)
	c.send <- []byte("backlog")

	h.Broadcast([]byte("next"))

	waitForCondition(t, func() bool {
		h.mu.RLock()
		defer h.mu.RUnlock()
		_, ok := h.clients[c]
		return !ok
	})
}

func TestAttachKeepsFramesInOrder(t *testing.T) {
	srv := New("127.0.0.1:0", "", logr.Discard())
	const frames = 50
	started := make(chan struct{})
	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 1; i <= frames; i++ {
			srv.HandleSnapshot(progress.Snapshot{Total: i})
			if i == frames/2 {
				close(started)
			}
		}
	}()
	<-started
	c := &client{send: make(chan []byte, frames+2), logger: logr.Discard()}
	srv.attach(c)
	<-done

	last := 0
	for len(c.send) > 0 {
		var f frame
		if err := json.Unmarshal(<-c.send, &f); err != nil {
			t.Fatalf("decode frame: %v", err)
		}
		if f.Snapshot == nil {
			t.Fatalf("expected snapshot frame, got %+v", f)
		}
		if f.Snapshot.Total <= last {
			t.Fatalf("frame %d delivered after %d", f.Snapshot.Total, last)
		}
		last = f.Snapshot.Total
	}
	if last != frames {
		t.Fatalf("expected to end on frame %d, got %d", frames, last)
	}
}

func TestSnapshotEndpoint(t *testing.T) {
	s := New("127.0.0.1:0", "demo", logr.Discard())
	srv := httptest.NewServer(s.Handler())
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/api/snapshot")
	if err != nil {
		t.Fatalf("get snapshot: %v", err)
	}
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	if strings.TrimSpace(string(body)) != "null" {
		t.Fatalf("expected null before any snapshot, got %s", body)
	}

	s.HandleSnapshot(progress.Snapshot{
		Steps:     []progress.StepView{{Name: progress.StepCloneRepository, State: progress.StateCompleted}},
		Completed: []string{progress.StepCloneRepository},
		Total:     3,
		Ratio:     1.0 / 3.0,
	})
	resp, err = http.Get(srv.URL + "/api/snapshot")
	if err != nil {
		t.Fatalf("get snapshot: %v", err)
	}
	defer resp.Body.Close()
	var snap progress.Snapshot
	if err := json.NewDecoder(resp.Body).Decode(&snap); err != nil {
		t.Fatalf("decode snapshot: %v", err)
	}
	if snap.Total != 3 || len(snap.Completed) != 1 {
		t.Fatalf("unexpected snapshot %+v", snap)
	}
}

func TestIndexRendersTitle(t *testing.T) {
	s := New("127.0.0.1:0", "demo from github.com/acme/demo", logr.Discard(), WithTitle("Deploying demo"))
	srv := httptest.NewServer(s.Handler())
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/")
	if err != nil {
		t.Fatalf("get index: %v", err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	if !strings.Contains(string(body), "Deploying demo") || !strings.Contains(string(body), "github.com/acme/demo") {
		t.Fatalf("index missing title or subtitle")
	}
	missing, err := http.Get(srv.URL + "/nope")
	if err != nil {
		t.Fatalf("get missing: %v", err)
	}
	missing.Body.Close()
	if missing.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", missing.StatusCode)
	}
}

func TestWebSocketReplaysLatestState(t *testing.T) {
	s := New("127.0.0.1:0", "", logr.Discard())
	s.HandleSnapshot(progress.Snapshot{Total: 3, Terminal: true})
	s.HandleResult(progress.DeployedApplication{AppName: "demo", Status: "running"})

	srv := httptest.NewServer(s.Handler())
	defer srv.Close()
	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http")+"/ws", nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()
	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))

	var kinds []frameKind
	for i := 0; i < 2; i++ {
		_, payload, err := conn.ReadMessage()
		if err != nil {
			t.Fatalf("read: %v", err)
		}
		var f frame
		if err := json.Unmarshal(payload, &f); err != nil {
			t.Fatalf("decode frame: %v", err)
		}
		kinds = append(kinds, f.Kind)
		if f.Kind == frameResult && f.Result.AppName != "demo" {
			t.Fatalf("unexpected result %+v", f.Result)
		}
	}
	if kinds[0] != frameSnapshot || kinds[1] != frameResult {
		t.Fatalf("unexpected replay order %v", kinds)
	}
}

func TestRunBindsAndShutsDown(t *testing.T) {
	s := New("127.0.0.1:0", "", logr.Discard())
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()

	addrCtx, addrCancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer addrCancel()
	addr, err := s.Addr(addrCtx)
	if err != nil {
		t.Fatalf("addr: %v", err)
	}
	resp, err := http.Get("http://" + addr + "/healthz")
	if err != nil {
		t.Fatalf("healthz: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("unexpected healthz status %d", resp.StatusCode)
	}
	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("run returned %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatalf("server did not shut down")
	}
}

func waitForCondition(t *testing.T, ok func() bool) {
	t.Helper()
	deadline := time.After(500 * time.Millisecond)
	ticker := time.NewTicker(10 * time.Millisecond)
	defer ticker.Stop()
	for {
		select {
		case <-deadline:
			t.Fatalf("condition not met before timeout")
		case <-ticker.C:
			if ok() {
				return
			}
		}
	}
}
