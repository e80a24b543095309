package acceptor

import (
	"context"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	network "github.com/lk2023060901/danmu-chat-relay/internal/network"
	"github.com/lk2023060901/danmu-chat-relay/internal/network/session"
	"github.com/lk2023060901/danmu-chat-relay/pkg/log"
	"github.com/lk2023060901/danmu-chat-relay/pkg/util/merr"
)

// WSAcceptor 是 Acceptor 接口的 WebSocket 实现。
//
// 说明：
//   - 在 cfg.Path 上处理 HTTP 升级，每个升级成功的连接包装为 session.WSConn；
//   - 同时实现 http.Handler，可挂载到已有的 ServeMux 上（此时 Serve 可不调用）。
type WSAcceptor struct {
	ln       net.Listener
	cfg      Config
	d        *dispatcher
	upgrader *websocket.Upgrader
	srv      *http.Server

	// serveCtx 为 Serve 的上下文，在 srv 开始接受连接前写入。
	serveCtx context.Context

	closeOnce sync.Once
	closeErr  error
}

// 确保 WSAcceptor 实现了 Acceptor 与 http.Handler 接口。
var (
	_ Acceptor     = (*WSAcceptor)(nil)
	_ http.Handler = (*WSAcceptor)(nil)
)

// NewWSAcceptor 使用已有的 Listener 创建一个 WebSocket 接入器。
// ln 可为 nil，此时只能作为 http.Handler 使用。
func NewWSAcceptor(ln net.Listener, h Handler, cfg Config) (*WSAcceptor, error) {
	if h == nil {
		return nil, merr.WrapErrParameterMissing("handler")
	}
	cfg = cfg.withDefaults()

	upgrader := cfg.Upgrader
	if upgrader == nil {
		upgrader = &websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin:     func(*http.Request) bool { return true },
		}
	}

	a := &WSAcceptor{
		ln:       ln,
		cfg:      cfg,
		d:        newDispatcher(session.TransportWebSocket, h, cfg),
		upgrader: upgrader,
		serveCtx: context.Background(),
	}

	mux := http.NewServeMux()
	mux.Handle(cfg.Path, a)
	a.srv = &http.Server{
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return a, nil
}

// NewWSListenAcceptor 在给定地址上监听 TCP，并创建一个 WebSocket 接入器。
func NewWSListenAcceptor(ctx context.Context, addr string, h Handler, cfg Config) (*WSAcceptor, error) {
	if addr == "" {
		return nil, merr.WrapErrParameterMissing("addr")
	}
	ln, err := listen(ctx, "tcp", addr)
	if err != nil {
		return nil, err
	}
	a, err := NewWSAcceptor(ln, h, cfg)
	if err != nil {
		_ = ln.Close()
		return nil, err
	}
	return a, nil
}

// ServeHTTP 完成 WebSocket 升级，并将连接交给 Handler。
func (a *WSAcceptor) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ws, err := a.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade 失败时已向客户端写回 HTTP 错误。
		a.d.Logger().RatedWarn(1, "websocket upgrade failed",
			zap.String("stage", string(network.StageHandshake)),
			zap.String("remote", r.RemoteAddr),
			zap.Error(err))
		return
	}
	conn := session.NewWSConn(a.d.ids.Next(), ws, a.cfg.connOptions()...)
	_ = a.d.dispatch(a.serveCtx, conn)
}

// Serve 实现 Acceptor.Serve。
func (a *WSAcceptor) Serve(ctx context.Context) error {
	if a.ln == nil {
		return merr.WrapErrParameterMissing("listener")
	}
	a.serveCtx = ctx

	stop := context.AfterFunc(ctx, func() {
		_ = a.Close()
	})
	defer stop()

	logger := a.d.Logger()
	logger.Info("websocket acceptor serving",
		zap.Stringer("addr", a.ln.Addr()),
		zap.String("path", a.cfg.Path))

	err := a.srv.Serve(a.ln)
	_ = a.Close()
	a.d.shutdown()

	if errors.Is(err, http.ErrServerClosed) {
		logger.Info("websocket acceptor stopped")
		return nil
	}
	return network.Wrap(network.ErrAcceptFailed, err)
}

// Close 实现 Acceptor.Close。
//
// 说明：升级后的连接已脱离 http.Server 的管理，需要单独关闭。
func (a *WSAcceptor) Close() error {
	a.closeOnce.Do(func() {
		a.closeErr = a.srv.Close()
		if a.ln != nil {
			// Serve 未被调用时 srv 不持有 ln。
			_ = a.ln.Close()
		}
		a.d.closeAll()
	})
	return a.closeErr
}

// Addr 实现 Acceptor.Addr。
func (a *WSAcceptor) Addr() net.Addr {
	if a.ln == nil {
		return nil
	}
	return a.ln.Addr()
}

// Count 实现 Acceptor.Count。
func (a *WSAcceptor) Count() int {
	return a.d.conns.Count()
}

// SetLogger 替换接入器使用的 Logger。
func (a *WSAcceptor) SetLogger(logger *log.MLogger) {
	a.d.SetLogger(logger)
}
