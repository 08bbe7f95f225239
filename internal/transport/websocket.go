package transport

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log"
	"net"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// WebSocketTransport bridges browser clients: each text or binary message is
// one command, exactly like one RFCOMM receive. The embedded control page is
// served on the same listener.
type WebSocketTransport struct {
	addr  string
	webFS fs.FS
}

// NewWebSocketTransport creates a WebSocket transport on addr. webFS may be nil.
func NewWebSocketTransport(addr string, webFS fs.FS) *WebSocketTransport {
	return &WebSocketTransport{addr: addr, webFS: webFS}
}

func (t *WebSocketTransport) Name() string { return "websocket" }

func (t *WebSocketTransport) Listen(ctx context.Context) (Listener, error) {
	var lc net.ListenConfig
	ln, err := lc.Listen(ctx, "tcp", t.addr)
	if err != nil {
		return nil, fmt.Errorf("ws: listen %s: %w", t.addr, err)
	}

	l := &wsListener{
		ln:    ln,
		conns: make(chan Conn, 1),
		done:  make(chan struct{}),
		upgrader: websocket.Upgrader{
			CheckOrigin: sameOrigin,
		},
	}

	mux := http.NewServeMux()
	if t.webFS != nil {
		mux.Handle("/", http.FileServer(http.FS(t.webFS)))
	}
	mux.HandleFunc("/ws", l.handleWS)
	l.srv = &http.Server{Handler: mux}

	go func() {
		if err := l.srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Printf("[ws] serve: %v", err)
		}
	}()
	return l, nil
}

// sameOrigin only lets pages served by this listener drive the launcher.
// Clients that send no Origin (phones, scripts) are allowed.
func sameOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	u, err := url.Parse(origin)
	if err != nil {
		return false
	}
	return strings.EqualFold(u.Host, r.Host)
}

type wsListener struct {
	ln       net.Listener
	srv      *http.Server
	upgrader websocket.Upgrader

	mu     sync.Mutex
	taken  bool
	closed bool
	conns  chan Conn
	once   sync.Once
	done   chan struct{}
}

func (l *wsListener) Addr() string { return l.ln.Addr().String() }

func (l *wsListener) handleWS(w http.ResponseWriter, r *http.Request) {
	l.mu.Lock()
	if l.taken || l.closed {
		l.mu.Unlock()
		http.Error(w, ErrBusy.Error(), http.StatusServiceUnavailable)
		return
	}
	l.taken = true
	l.mu.Unlock()

	conn, err := l.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("[ws] upgrade error: %v", err)
		l.mu.Lock()
		l.taken = false
		l.mu.Unlock()
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		conn.Close()
		return
	}
	// The hijacked connection outlives this handler.
	l.conns <- &wsConn{conn: conn, remote: r.RemoteAddr}
}

func (l *wsListener) Accept(ctx context.Context) (Conn, error) {
	select {
	case c := <-l.conns:
		return c, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-l.done:
		return nil, ErrClosed
	}
}

func (l *wsListener) Close() error {
	var err error
	l.once.Do(func() {
		close(l.done)

		l.mu.Lock()
		l.closed = true
		select {
		case c := <-l.conns:
			c.Close()
		default:
		}
		l.mu.Unlock()

		shutCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		err = l.srv.Shutdown(shutCtx)
	})
	return err
}

type wsConn struct {
	conn    *websocket.Conn
	remote  string
	pending []byte
}

// Read returns one message per call. A message longer than p is delivered
// over several reads, as from a stream socket. A close frame reads as io.EOF.
func (c *wsConn) Read(p []byte) (int, error) {
	if len(c.pending) > 0 {
		n := copy(p, c.pending)
		c.pending = c.pending[n:]
		return n, nil
	}
	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway, websocket.CloseNoStatusReceived) {
				return 0, io.EOF
			}
			return 0, err
		}
		if len(data) == 0 {
			continue
		}
		n := copy(p, data)
		c.pending = data[n:]
		return n, nil
	}
}

func (c *wsConn) Write(p []byte) (int, error) {
	if err := c.conn.WriteMessage(websocket.TextMessage, p); err != nil {
		return 0, err
	}
	return len(p), nil
}

func (c *wsConn) Close() error       { return c.conn.Close() }
func (c *wsConn) RemoteAddr() string { return c.remote }
