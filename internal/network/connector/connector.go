package connector

import (
	"context"
	"net"
	"net/http"
	"net/url"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/gorilla/websocket"

	network "github.com/lk2023060901/danmu-chat-relay/internal/network"
	"github.com/lk2023060901/danmu-chat-relay/internal/network/session"
	"github.com/lk2023060901/danmu-chat-relay/pkg/util/merr"
	"github.com/lk2023060901/danmu-chat-relay/pkg/util/retry"
)

// Config 描述客户端连接的基础配置。
type Config struct {
	// DialTimeout 为单次拨号超时，0 表示仅受 ctx 控制。
	DialTimeout time.Duration

	// Attempts 为拨号尝试次数，0 表示使用默认值 3。
	Attempts uint

	MaxLineSize  int
	WriteTimeout time.Duration

	// Header 为 WebSocket 握手时附带的 HTTP 头。
	Header http.Header
}

func defaultConfig() Config {
	return Config{
		Attempts: 3,
	}
}

func (cfg Config) withDefaults() Config {
	if cfg.Attempts == 0 {
		cfg.Attempts = defaultConfig().Attempts
	}
	return cfg
}

func (cfg Config) connOptions() []session.Option {
	return []session.Option{
		session.WithMaxLineSize(cfg.MaxLineSize),
		session.WithWriteTimeout(cfg.WriteTimeout),
	}
}

// Connector 抽象了客户端的拨号器，拨号成功后返回与服务端相同的行连接抽象。
//
// 注意：客户端连接的 ID 仅在本进程内有意义，与服务端分配的会话 ID 无关。
type Connector interface {
	Dial(ctx context.Context, target string) (session.Conn, error)
}

// New 按 target 的形式选择拨号器：
//   - "ws://" 或 "wss://" 前缀使用 WebSocket；
//   - 其他视为 TCP 地址 "host:port"。
func New(target string, cfg Config) Connector {
	if u, err := url.Parse(target); err == nil && (u.Scheme == "ws" || u.Scheme == "wss") {
		return NewWSConnector(cfg)
	}
	return NewTCPConnector(cfg)
}

// Dial 是 New(target, cfg).Dial 的快捷方式。
func Dial(ctx context.Context, target string, cfg Config) (session.Conn, error) {
	return New(target, cfg).Dial(ctx, target)
}

// tcpConnector 基于 net.Dialer 拨号，并用 session.StreamConn 封装。
type tcpConnector struct {
	cfg Config
	ids session.IDGenerator
}

// NewTCPConnector 创建一个基于 TCP 的 Connector。
func NewTCPConnector(cfg Config) Connector {
	return &tcpConnector{cfg: cfg.withDefaults()}
}

func (c *tcpConnector) Dial(ctx context.Context, target string) (session.Conn, error) {
	if target == "" {
		return nil, merr.WrapErrParameterMissing("target")
	}
	var conn net.Conn
	err := dialWithRetry(ctx, c.cfg, func(dctx context.Context) error {
		d := net.Dialer{}
		var err error
		conn, err = d.DialContext(dctx, "tcp", target)
		return err
	})
	if err != nil {
		return nil, network.Wrap(network.ErrHandshakeFailed, merr.WrapErrIoFailed(target, err))
	}
	return session.NewStreamConn(c.ids.Next(), conn, c.cfg.connOptions()...), nil
}

// wsConnector 是基于 gorilla/websocket 的 Connector 实现。
type wsConnector struct {
	cfg Config
	ids session.IDGenerator
}

// NewWSConnector 创建一个基于 WebSocket 的 Connector。
func NewWSConnector(cfg Config) Connector {
	return &wsConnector{cfg: cfg.withDefaults()}
}

func (c *wsConnector) Dial(ctx context.Context, target string) (session.Conn, error) {
	if target == "" {
		return nil, merr.WrapErrParameterMissing("target")
	}
	var ws *websocket.Conn
	err := dialWithRetry(ctx, c.cfg, func(dctx context.Context) error {
		conn, resp, err := websocket.DefaultDialer.DialContext(dctx, target, c.cfg.Header)
		if resp != nil && resp.Body != nil {
			_ = resp.Body.Close()
		}
		if err != nil {
			// 握手被拒绝（例如路径错误）时重试无意义。
			if errors.Is(err, websocket.ErrBadHandshake) {
				return retry.Unrecoverable(err)
			}
			return err
		}
		ws = conn
		return nil
	})
	if err != nil {
		return nil, network.Wrap(network.ErrHandshakeFailed, merr.WrapErrIoFailed(target, err))
	}
	return session.NewWSConn(c.ids.Next(), ws, c.cfg.connOptions()...), nil
}

func dialWithRetry(ctx context.Context, cfg Config, dial func(ctx context.Context) error) error {
	return retry.Do(ctx, func() error {
		dctx := ctx
		if cfg.DialTimeout > 0 {
			var cancel context.CancelFunc
			dctx, cancel = context.WithTimeout(ctx, cfg.DialTimeout)
			defer cancel()
		}
		return dial(dctx)
	}, retry.Attempts(cfg.Attempts), retry.Sleep(50*time.Millisecond))
}
