package backend

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-logr/logr"
	"github.com/gorilla/websocket"
)

func newStreamServer(t *testing.T, serve func(*websocket.Conn)) string {
	t.Helper()
	upgrader := websocket.Upgrader{CheckOrigin: func(*http.Request) bool { return true }}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("app_name") == "" {
			http.Error(w, "missing app_name", http.StatusBadRequest)
			return
		}
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Errorf("upgrade: %v", err)
			return
		}
		defer conn.Close()
		serve(conn)
	}))
	t.Cleanup(srv.Close)
	return "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws?app_name=demo"
}

func TestStreamDeliversFramesThenEOF(t *testing.T) {
	url := newStreamServer(t, func(conn *websocket.Conn) {
		_ = conn.WriteMessage(websocket.TextMessage, []byte(`{"status":"in_progress","step":"Cloning repository"}`))
		_ = conn.WriteMessage(websocket.TextMessage, []byte(`{"status":"success","step":"Cloning repository"}`))
		_ = conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
		_, _, _ = conn.ReadMessage()
	})
	ctx := context.Background()
	stream, err := DialStream(ctx, url, logr.Discard())
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer stream.Close()

	for _, want := range []string{"in_progress", "success"} {
		frame, err := stream.Next(ctx)
		if err != nil {
			t.Fatalf("next: %v", err)
		}
		if !strings.Contains(string(frame), want) {
			t.Fatalf("expected %q frame, got %s", want, frame)
		}
	}
	if _, err := stream.Next(ctx); !errors.Is(err, io.EOF) {
		t.Fatalf("expected io.EOF after close frame, got %v", err)
	}
}

func TestStreamNextHonorsContext(t *testing.T) {
	url := newStreamServer(t, func(conn *websocket.Conn) {
		_, _, _ = conn.ReadMessage()
	})
	stream, err := DialStream(context.Background(), url, logr.Discard())
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer stream.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	if _, err := stream.Next(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline exceeded, got %v", err)
	}
}

func TestDialStreamHandshakeFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"
	if _, err := DialStream(context.Background(), url, logr.Discard()); !errors.Is(err, ErrServerUnreachable) {
		t.Fatalf("expected ErrServerUnreachable, got %v", err)
	}
}

func TestStreamCloseIsIdempotent(t *testing.T) {
	url := newStreamServer(t, func(conn *websocket.Conn) {
		_, _, _ = conn.ReadMessage()
	})
	stream, err := DialStream(context.Background(), url, logr.Discard())
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	first := stream.Close()
	if second := stream.Close(); second != first {
		t.Fatalf("second close returned a different result: %v vs %v", first, second)
	}
}
