package session

import (
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	network "github.com/lk2023060901/danmu-chat-relay/internal/network"
	"github.com/lk2023060901/danmu-chat-relay/pkg/util/merr"
)

func TestIDGenerator(t *testing.T) {
	var g IDGenerator
	var wg sync.WaitGroup
	seen := sync.Map{}
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				_, dup := seen.LoadOrStore(g.Next(), struct{}{})
				assert.False(t, dup)
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, uint64(801), g.Next())
}

func TestStreamConn_ReadWrite(t *testing.T) {
	server, client := net.Pipe()
	conn := NewStreamConn(7, server, WithMaxLineSize(16), WithWriteTimeout(time.Second))
	defer conn.Close()

	assert.Equal(t, uint64(7), conn.ID())
	assert.Equal(t, TransportTCP, conn.Transport())

	go func() {
		_, _ = io.WriteString(client, "alice\r\n#join dev\n")
	}()
	line, err := conn.ReadLine()
	require.NoError(t, err)
	assert.Equal(t, "alice", line)
	line, err = conn.ReadLine()
	require.NoError(t, err)
	assert.Equal(t, "#join dev", line)

	got := make(chan string, 1)
	go func() {
		buf := make([]byte, 64)
		n, _ := client.Read(buf)
		got <- string(buf[:n])
	}()
	require.NoError(t, conn.WriteLine("[bob] >> hi\r\n"))
	assert.Equal(t, "[bob] >> hi\r\n", <-got)

	_ = client.Close()
	_, err = conn.ReadLine()
	assert.ErrorIs(t, err, io.EOF)
}

func TestStreamConn_Close(t *testing.T) {
	server, client := net.Pipe()
	defer client.Close()
	conn := NewStreamConn(1, server)

	readErr := make(chan error, 1)
	go func() {
		_, err := conn.ReadLine()
		readErr <- err
	}()

	require.NoError(t, conn.Close())
	assert.NoError(t, conn.Close())
	assert.ErrorIs(t, <-readErr, network.ErrConnClosed)
	assert.ErrorIs(t, conn.WriteLine("x\r\n"), network.ErrConnClosed)
}

func TestStreamConn_WriteTimeout(t *testing.T) {
	server, client := net.Pipe()
	defer client.Close()
	conn := NewStreamConn(1, server, WithWriteTimeout(20*time.Millisecond))
	defer conn.Close()

	// 对端不读取，net.Pipe 的写会一直阻塞直到超时。
	err := conn.WriteLine("stuck\r\n")
	assert.ErrorIs(t, err, network.ErrSendFailed)
}

func TestWSConn_ReadWrite(t *testing.T) {
	accepted := make(chan *WSConn, 1)
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ws, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		accepted <- NewWSConn(3, ws, WithMaxLineSize(8))
	}))
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	client, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer client.Close()

	conn := <-accepted
	defer conn.Close()
	assert.Equal(t, TransportWebSocket, conn.Transport())

	require.NoError(t, client.WriteMessage(websocket.TextMessage, []byte("alice\r\n")))
	line, err := conn.ReadLine()
	require.NoError(t, err)
	assert.Equal(t, "alice", line)

	require.NoError(t, conn.WriteLine("[bob] >> hi\r\n"))
	mt, data, err := client.ReadMessage()
	require.NoError(t, err)
	assert.Equal(t, websocket.TextMessage, mt)
	assert.Equal(t, "[bob] >> hi\r\n", string(data))

	require.NoError(t, client.WriteMessage(websocket.TextMessage, []byte("0123456789abcdef")))
	_, err = conn.ReadLine()
	assert.ErrorIs(t, err, network.ErrLineTooLong)
}

func TestWSConn_CloseFrameIsEOF(t *testing.T) {
	accepted := make(chan *WSConn, 1)
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ws, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		accepted <- NewWSConn(4, ws)
	}))
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	client, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer client.Close()

	conn := <-accepted
	defer conn.Close()

	msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "bye")
	require.NoError(t, client.WriteMessage(websocket.CloseMessage, msg))
	_, err = conn.ReadLine()
	assert.ErrorIs(t, err, io.EOF)
}

type stubConn struct {
	Conn
	id     uint64
	closed bool
}

func (c *stubConn) ID() uint64   { return c.id }
func (c *stubConn) Close() error { c.closed = true; return nil }

func TestBaseManager(t *testing.T) {
	m := NewBaseManager()
	a, b := &stubConn{id: 1}, &stubConn{id: 2}

	require.NoError(t, m.Register(a))
	require.NoError(t, m.Register(b))
	assert.ErrorIs(t, m.Register(&stubConn{id: 1}), merr.ErrSessionExists)
	assert.ErrorIs(t, m.Register(nil), merr.ErrParameterMissing)
	assert.Equal(t, 2, m.Count())

	got, ok := m.Get(2)
	assert.True(t, ok)
	assert.Same(t, b, got)

	visited := 0
	m.Range(func(Conn) bool {
		visited++
		return false
	})
	assert.Equal(t, 1, visited)

	require.NoError(t, m.Unregister(1))
	assert.ErrorIs(t, m.Unregister(1), merr.ErrSessionNotFound)
	_, ok = m.Get(1)
	assert.False(t, ok)
	assert.Equal(t, 1, m.Count())
}
