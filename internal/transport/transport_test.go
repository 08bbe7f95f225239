package transport

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strings"
	"testing"
	"testing/fstest"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.bug.st/serial"
)

func TestFormatBDAddr(t *testing.T) {
	addr := [6]byte{0x13, 0x71, 0xDA, 0x7D, 0x1A, 0x00}
	assert.Equal(t, "00:1A:7D:DA:71:13", formatBDAddr(addr))
}

func TestDevicePathMAC(t *testing.T) {
	assert.Equal(t, "00:1A:7D:DA:71:13", devicePathMAC("/org/bluez/hci0/dev_00_1A_7D_DA_71_13"))
	assert.Equal(t, "/some/other", devicePathMAC("/some/other"))
}

func TestSDPRecord(t *testing.T) {
	rec := sdpRecord(ProfileConfig{
		Name:    "Phone<Demo>",
		UUID:    "94f39d29-7d6d-437d-973b-fba39e49d4ee",
		Channel: 3,
	})
	assert.Contains(t, rec, `<uuid value="94f39d29-7d6d-437d-973b-fba39e49d4ee" />`)
	assert.Equal(t, 2, strings.Count(rec, `<uuid value="0x1101" />`))
	assert.Contains(t, rec, `<uint8 value="0x03" />`)
	assert.Contains(t, rec, `<text value="Phone&lt;Demo&gt;" />`)
}

func dialWS(t *testing.T, l Listener) (*websocket.Conn, *http.Response, error) {
	t.Helper()
	return websocket.DefaultDialer.Dial("ws://"+l.Addr()+"/ws", nil)
}

func TestWebSocket_OneClientPerListener(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	tr := NewWebSocketTransport("127.0.0.1:0", nil)
	l, err := tr.Listen(ctx)
	require.NoError(t, err)
	defer l.Close()

	client, _, err := dialWS(t, l)
	require.NoError(t, err)
	defer client.Close()

	conn, err := l.Accept(ctx)
	require.NoError(t, err)
	defer conn.Close()

	_, resp, err := dialWS(t, l)
	require.ErrorIs(t, err, websocket.ErrBadHandshake)
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)

	require.NoError(t, client.WriteMessage(websocket.TextMessage, []byte("UP")))
	buf := make([]byte, 1024)
	n, err := conn.Read(buf)
	require.NoError(t, err)
	assert.Equal(t, "UP", string(buf[:n]))

	// Messages longer than the buffer continue on the next read.
	require.NoError(t, client.WriteMessage(websocket.TextMessage, []byte("disconnect-now")))
	n, err = conn.Read(buf[:10])
	require.NoError(t, err)
	assert.Equal(t, "disconnect", string(buf[:n]))
	n, err = conn.Read(buf)
	require.NoError(t, err)
	assert.Equal(t, "-now", string(buf[:n]))

	require.NoError(t, client.WriteMessage(websocket.TextMessage, []byte("down")))
	n, err = conn.Read(buf)
	require.NoError(t, err)
	assert.Equal(t, "down", string(buf[:n]))

	require.NoError(t, client.WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")))
	n, err = conn.Read(buf)
	assert.Equal(t, 0, n)
	assert.ErrorIs(t, err, io.EOF)
}

func TestWebSocket_RejectsForeignOrigin(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	l, err := NewWebSocketTransport("127.0.0.1:0", nil).Listen(ctx)
	require.NoError(t, err)
	defer l.Close()

	hdr := http.Header{"Origin": {"http://evil.example"}}
	_, resp, err := websocket.DefaultDialer.Dial("ws://"+l.Addr()+"/ws", hdr)
	require.ErrorIs(t, err, websocket.ErrBadHandshake)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	// The rejected handshake does not use up the single client slot.
	hdr = http.Header{"Origin": {"http://" + l.Addr()}}
	client, _, err := websocket.DefaultDialer.Dial("ws://"+l.Addr()+"/ws", hdr)
	require.NoError(t, err)
	defer client.Close()

	conn, err := l.Accept(ctx)
	require.NoError(t, err)
	conn.Close()
}

func TestWebSocket_ServesControlPage(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	webFS := fstest.MapFS{"index.html": {Data: []byte("<html>launcher</html>")}}
	l, err := NewWebSocketTransport("127.0.0.1:0", webFS).Listen(ctx)
	require.NoError(t, err)
	defer l.Close()

	resp, err := http.Get("http://" + l.Addr() + "/")
	require.NoError(t, err)
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	assert.Contains(t, string(body), "launcher")
}

func TestWebSocket_AcceptAfterClose(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	l, err := NewWebSocketTransport("127.0.0.1:0", nil).Listen(ctx)
	require.NoError(t, err)
	require.NoError(t, l.Close())
	assert.NoError(t, l.Close())

	_, err = l.Accept(ctx)
	assert.ErrorIs(t, err, ErrClosed)
}

// fakePort overrides the serial.Port methods the transport uses.
type fakePort struct {
	serial.Port
	data   []string
	closed bool
}

func (p *fakePort) Read(b []byte) (int, error) {
	if len(p.data) == 0 {
		return 0, nil
	}
	n := copy(b, p.data[0])
	p.data = p.data[1:]
	return n, nil
}

func (p *fakePort) Close() error { p.closed = true; return nil }

func TestSerial_AcceptWaitsForPort(t *testing.T) {
	port := &fakePort{data: []string{"left"}}
	attempts := 0

	tr := NewSerialTransport(SerialConfig{PortPath: "/dev/rfcomm0"})
	tr.poll = time.Millisecond
	tr.open = func(path string, mode *serial.Mode) (serial.Port, error) {
		attempts++
		assert.Equal(t, "/dev/rfcomm0", path)
		assert.Equal(t, 9600, mode.BaudRate)
		if attempts < 3 {
			return nil, errors.New("no such file or directory")
		}
		return port, nil
	}

	ctx := context.Background()
	l, err := tr.Listen(ctx)
	require.NoError(t, err)
	conn, err := l.Accept(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, attempts)
	assert.Equal(t, "/dev/rfcomm0", conn.RemoteAddr())

	buf := make([]byte, 1024)
	n, err := conn.Read(buf)
	require.NoError(t, err)
	assert.Equal(t, "left", string(buf[:n]))

	n, err = conn.Read(buf)
	require.NoError(t, err)
	assert.Zero(t, n)

	require.NoError(t, conn.Close())
	assert.True(t, port.closed)
}

func TestSerial_AcceptCancelled(t *testing.T) {
	tr := NewSerialTransport(SerialConfig{PortPath: "/dev/rfcomm0"})
	tr.poll = time.Millisecond
	tr.open = func(string, *serial.Mode) (serial.Port, error) {
		return nil, errors.New("absent")
	}

	ctx, cancel := context.WithCancel(context.Background())
	l, err := tr.Listen(ctx)
	require.NoError(t, err)
	cancel()

	_, err = l.Accept(ctx)
	assert.ErrorIs(t, err, context.Canceled)

	require.NoError(t, l.Close())
	_, err = l.Accept(context.Background())
	assert.ErrorIs(t, err, ErrClosed)
}

func TestSerial_RequiresPortPath(t *testing.T) {
	_, err := NewSerialTransport(SerialConfig{}).Listen(context.Background())
	assert.Error(t, err)
}
