package session

import (
	"io"
	"net"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/gorilla/websocket"
	"go.uber.org/atomic"

	network "github.com/lk2023060901/danmu-chat-relay/internal/network"
	"github.com/lk2023060901/danmu-chat-relay/internal/network/framer"
)

const defaultMaxLineSize = 4096

// WSConn 是基于 gorilla/websocket 的 Conn 实现。
//
// 约定：
//   - 每个文本帧（或二进制帧）对应一行，帧尾的 "\r\n" 会被去掉；
//   - 写出时每行一个文本帧，内容与 TCP 上的字节完全一致（含 "\r\n"）；
//   - 对端发送的 Close 帧视为正常结束，ReadLine 返回 io.EOF。
type WSConn struct {
	id uint64

	ws *websocket.Conn

	writeTimeout time.Duration
	writeMu      sync.Mutex

	closed    atomic.Bool
	closeOnce sync.Once
	closeErr  error
}

// 确保 WSConn 实现了 Conn 接口。
var _ Conn = (*WSConn)(nil)

// NewWSConn 基于已完成升级的 websocket.Conn 创建一个行连接。
func NewWSConn(id uint64, ws *websocket.Conn, opts ...Option) *WSConn {
	opt := defaultConnOption()
	for _, o := range opts {
		o(opt)
	}
	maxLineSize := opt.maxLineSize
	if maxLineSize <= 0 {
		maxLineSize = defaultMaxLineSize
	}
	// 为帧尾的 "\r\n" 留出空间。
	ws.SetReadLimit(int64(maxLineSize) + 2)

	return &WSConn{
		id:           id,
		ws:           ws,
		writeTimeout: opt.writeTimeout,
	}
}

// ID 实现 Conn.ID。
func (c *WSConn) ID() uint64 {
	return c.id
}

// Transport 实现 Conn.Transport。
func (c *WSConn) Transport() string {
	return TransportWebSocket
}

// RemoteAddr 实现 Conn.RemoteAddr。
func (c *WSConn) RemoteAddr() net.Addr {
	return c.ws.RemoteAddr()
}

// LocalAddr 实现 Conn.LocalAddr。
func (c *WSConn) LocalAddr() net.Addr {
	return c.ws.LocalAddr()
}

// ReadLine 实现 Conn.ReadLine。
func (c *WSConn) ReadLine() (string, error) {
	for {
		mt, data, err := c.ws.ReadMessage()
		if err != nil {
			if websocket.IsCloseError(err,
				websocket.CloseNormalClosure,
				websocket.CloseGoingAway,
				websocket.CloseNoStatusReceived) {
				return "", io.EOF
			}
			if errors.Is(err, websocket.ErrReadLimit) {
				return "", errors.Wrap(network.ErrLineTooLong, err.Error())
			}
			if c.closed.Load() {
				return "", network.Wrap(network.ErrConnClosed, err)
			}
			return "", network.Wrap(network.ErrRecvFailed, err)
		}
		if mt != websocket.TextMessage && mt != websocket.BinaryMessage {
			continue
		}
		return framer.TrimLineEnd(string(data)), nil
	}
}

// WriteLine 实现 Conn.WriteLine。
func (c *WSConn) WriteLine(line string) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	if c.closed.Load() {
		return network.ErrConnClosed
	}
	if c.writeTimeout > 0 {
		if err := c.ws.SetWriteDeadline(time.Now().Add(c.writeTimeout)); err != nil {
			return network.Wrap(network.ErrSendFailed, err)
		}
	}
	if err := c.ws.WriteMessage(websocket.TextMessage, []byte(line)); err != nil {
		return network.Wrap(network.ErrSendFailed, err)
	}
	return nil
}

// Close 实现 Conn.Close。
func (c *WSConn) Close() error {
	c.closeOnce.Do(func() {
		c.closed.Store(true)
		c.closeErr = c.ws.Close()
	})
	return c.closeErr
}
