// File: internal/backend/stream.go
// Brief: WebSocket client for the deployment progress stream.

package backend

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/go-logr/logr"
	"github.com/gorilla/websocket"
)

const (
	handshakeTimeout = 10 * time.Second
	closeGrace       = time.Second
	maxFrameSize     = 1 << 20
)

// Stream is an open progress stream scoped to one deployment.
type Stream struct {
	conn   *websocket.Conn
	log    logr.Logger
	closed sync.Once
	err    error
}

// DialStream connects to the progress stream at rawURL.
func DialStream(ctx context.Context, rawURL string, log logr.Logger) (*Stream, error) {
	dialer := websocket.Dialer{
		Proxy:            http.ProxyFromEnvironment,
		HandshakeTimeout: handshakeTimeout,
	}
	conn, resp, err := dialer.DialContext(ctx, rawURL, nil)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		if resp != nil {
			return nil, fmt.Errorf("%w: progress stream handshake returned %s", ErrServerUnreachable, resp.Status)
		}
		return nil, fmt.Errorf("%w: dial progress stream: %v", ErrServerUnreachable, err)
	}
	conn.SetReadLimit(maxFrameSize)
	log.V(1).Info("progress stream connected", "url", rawURL)
	return &Stream{conn: conn, log: log}, nil
}

// Next blocks until the next data frame arrives. A closed stream yields io.EOF.
func (s *Stream) Next(ctx context.Context) ([]byte, error) {
	stop := context.AfterFunc(ctx, func() {
		_ = s.conn.SetReadDeadline(time.Now())
	})
	defer stop()
	_, data, err := s.conn.ReadMessage()
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) || errors.Is(err, io.EOF) {
			return nil, io.EOF
		}
		return nil, fmt.Errorf("read progress stream: %w", err)
	}
	return data, nil
}

// Close sends a normal closure frame and releases the connection.
func (s *Stream) Close() error {
	s.closed.Do(func() {
		msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
		_ = s.conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(closeGrace))
		s.err = s.conn.Close()
		s.log.V(1).Info("progress stream closed")
	})
	return s.err
}
