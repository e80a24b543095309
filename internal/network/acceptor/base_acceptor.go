package acceptor

import (
	"context"
	"net"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/cockroachdb/errors"
	"go.uber.org/atomic"
	"go.uber.org/zap"

	network "github.com/lk2023060901/danmu-chat-relay/internal/network"
	"github.com/lk2023060901/danmu-chat-relay/internal/network/session"
	"github.com/lk2023060901/danmu-chat-relay/pkg/log"
	"github.com/lk2023060901/danmu-chat-relay/pkg/util/merr"
	"github.com/lk2023060901/danmu-chat-relay/pkg/util/retry"
)

// BaseAcceptor 是 Acceptor 接口的 TCP 实现。
//
// 设计目标：
//   - 对外只暴露 Acceptor 接口和 Handler 回调，不绑定具体业务逻辑；
//   - 内部负责：接受连接、创建 StreamConn、提交到协程池并回调 Handler；
//   - 每个连接由独立的任务处理，连接数受协程池容量限制。
type BaseAcceptor struct {
	ln  net.Listener
	cfg Config
	d   *dispatcher

	closed    atomic.Bool
	closeOnce sync.Once
	closeErr  error
}

// 确保 BaseAcceptor 实现了 Acceptor 接口。
var _ Acceptor = (*BaseAcceptor)(nil)

// NewBaseAcceptor 使用已有的 Listener 创建一个 TCP 接入器。
//
// 参数：
//   - ln ：已创建好的 net.Listener；
//   - h  ：连接处理器；
//   - cfg：连接上限、单行上限等配置，零值字段使用默认值。
func NewBaseAcceptor(ln net.Listener, h Handler, cfg Config) (*BaseAcceptor, error) {
	if ln == nil {
		return nil, merr.WrapErrParameterMissing("listener")
	}
	if h == nil {
		return nil, merr.WrapErrParameterMissing("handler")
	}
	cfg = cfg.withDefaults()
	return &BaseAcceptor{
		ln:  ln,
		cfg: cfg,
		d:   newDispatcher(session.TransportTCP, h, cfg),
	}, nil
}

// NewTCPAcceptor 在给定地址上监听 TCP，并创建一个接入器。
// 监听失败（例如端口暂时被占用）时按指数退避重试，直至 ctx 结束。
func NewTCPAcceptor(ctx context.Context, addr string, h Handler, cfg Config) (*BaseAcceptor, error) {
	if addr == "" {
		return nil, merr.WrapErrParameterMissing("addr")
	}
	ln, err := listen(ctx, "tcp", addr)
	if err != nil {
		return nil, err
	}
	a, err := NewBaseAcceptor(ln, h, cfg)
	if err != nil {
		_ = ln.Close()
		return nil, err
	}
	return a, nil
}

func listen(ctx context.Context, proto, addr string) (net.Listener, error) {
	var ln net.Listener
	err := retry.Do(ctx, func() error {
		var err error
		var lc net.ListenConfig
		ln, err = lc.Listen(ctx, proto, addr)
		return err
	}, retry.Attempts(5), retry.Sleep(100*time.Millisecond))
	if err != nil {
		return nil, merr.WrapErrIoFailed(addr, err)
	}
	return ln, nil
}

// Serve 实现 Acceptor.Serve。
func (a *BaseAcceptor) Serve(ctx context.Context) error {
	stop := context.AfterFunc(ctx, func() {
		_ = a.Close()
	})
	defer stop()
	defer func() {
		_ = a.Close()
		a.d.shutdown()
	}()

	logger := a.d.Logger()
	logger.Info("tcp acceptor serving", zap.Stringer("addr", a.ln.Addr()))

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = 5 * time.Millisecond
	bo.MaxInterval = time.Second
	bo.MaxElapsedTime = 0

	for {
		conn, err := a.ln.Accept()
		if err != nil {
			if a.closed.Load() || ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				logger.Info("tcp acceptor stopped")
				return nil
			}
			if isTemporary(err) {
				delay := bo.NextBackOff()
				logger.RatedWarn(1, "accept failed, retrying",
					zap.Error(err),
					zap.Duration("delay", delay))
				select {
				case <-time.After(delay):
				case <-ctx.Done():
					return nil
				}
				continue
			}
			logger.Error("accept failed", zap.Error(err))
			return network.Wrap(network.ErrAcceptFailed, err)
		}
		bo.Reset()

		sc := session.NewStreamConn(a.d.ids.Next(), conn, a.cfg.connOptions()...)
		_ = a.d.dispatch(ctx, sc)
	}
}

// Close 实现 Acceptor.Close。
func (a *BaseAcceptor) Close() error {
	a.closeOnce.Do(func() {
		a.closed.Store(true)
		a.closeErr = a.ln.Close()
		a.d.closeAll()
	})
	return a.closeErr
}

// Addr 实现 Acceptor.Addr。
func (a *BaseAcceptor) Addr() net.Addr {
	return a.ln.Addr()
}

// Count 实现 Acceptor.Count。
func (a *BaseAcceptor) Count() int {
	return a.d.conns.Count()
}

// isTemporary 判断 Accept 错误是否可以退避后重试（例如文件描述符耗尽）。
func isTemporary(err error) bool {
	var ne net.Error
	if errors.As(err, &ne) && ne.Timeout() {
		return true
	}
	var te interface{ Temporary() bool }
	return errors.As(err, &te) && te.Temporary()
}

// SetLogger 替换接入器使用的 Logger。
func (a *BaseAcceptor) SetLogger(logger *log.MLogger) {
	a.d.SetLogger(logger)
}
