package session

import (
	"bufio"
	"io"
	"net"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	"go.uber.org/atomic"

	network "github.com/lk2023060901/danmu-chat-relay/internal/network"
	"github.com/lk2023060901/danmu-chat-relay/internal/network/framer"
)

// StreamConn 是基于 net.Conn 字节流的 Conn 实现。
//
// 说明：
//   - 读路径使用 bufio.Reader + LineFramer 切分文本行；
//   - 写路径串行化，避免多 goroutine 并发写 conn 导致的报文交叉。
type StreamConn struct {
	id uint64

	conn   net.Conn
	reader *bufio.Reader
	framer framer.Framer

	writeTimeout time.Duration
	writeMu      sync.Mutex

	closed    atomic.Bool
	closeOnce sync.Once
	closeErr  error
}

// 确保 StreamConn 实现了 Conn 接口。
var _ Conn = (*StreamConn)(nil)

// NewStreamConn 创建一个基于 net.Conn 的行连接。
//
// 参数：
//   - id  ：连接 ID，应在调用侧保证全局唯一；
//   - conn：底层网络连接；
//   - opts：单行上限、写超时等。
func NewStreamConn(id uint64, conn net.Conn, opts ...Option) *StreamConn {
	opt := defaultConnOption()
	for _, o := range opts {
		o(opt)
	}

	return &StreamConn{
		id:           id,
		conn:         conn,
		reader:       bufio.NewReader(conn),
		framer:       framer.NewLineFramer(opt.maxLineSize),
		writeTimeout: opt.writeTimeout,
	}
}

// ID 实现 Conn.ID。
func (c *StreamConn) ID() uint64 {
	return c.id
}

// Transport 实现 Conn.Transport。
func (c *StreamConn) Transport() string {
	return TransportTCP
}

// RemoteAddr 实现 Conn.RemoteAddr。
func (c *StreamConn) RemoteAddr() net.Addr {
	return c.conn.RemoteAddr()
}

// LocalAddr 实现 Conn.LocalAddr。
func (c *StreamConn) LocalAddr() net.Addr {
	return c.conn.LocalAddr()
}

// ReadLine 实现 Conn.ReadLine。
func (c *StreamConn) ReadLine() (string, error) {
	line, err := c.framer.ReadFrame(c.reader)
	if err != nil {
		if errors.Is(err, io.EOF) {
			return "", io.EOF
		}
		if c.closed.Load() {
			return "", network.Wrap(network.ErrConnClosed, err)
		}
		return "", err
	}
	return line, nil
}

// WriteLine 实现 Conn.WriteLine。
func (c *StreamConn) WriteLine(line string) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	if c.closed.Load() {
		return network.ErrConnClosed
	}
	if c.writeTimeout > 0 {
		if err := c.conn.SetWriteDeadline(time.Now().Add(c.writeTimeout)); err != nil {
			return network.Wrap(network.ErrSendFailed, err)
		}
	}
	return c.framer.WriteFrame(c.conn, line)
}

// Close 实现 Conn.Close。
func (c *StreamConn) Close() error {
	c.closeOnce.Do(func() {
		c.closed.Store(true)
		c.closeErr = c.conn.Close()
	})
	return c.closeErr
}
