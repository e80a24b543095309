package acceptor

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"github.com/lk2023060901/danmu-chat-relay/internal/network/session"
	"github.com/lk2023060901/danmu-chat-relay/pkg/log"
	"github.com/lk2023060901/danmu-chat-relay/pkg/metrics"
	"github.com/lk2023060901/danmu-chat-relay/pkg/util/conc"
	"github.com/lk2023060901/danmu-chat-relay/pkg/util/merr"
)

// dispatcher 是 TCP 与 WebSocket 接入器共用的连接分发逻辑：
// 登记连接、提交到协程池、在处理结束后注销并关闭连接。
type dispatcher struct {
	log.Binder

	transport string
	handler   Handler
	ids       *session.IDGenerator
	conns     session.Manager

	pool     *conc.Pool
	ownsPool bool

	// mu 保证 closed 置位之后不再有 wg.Add，shutdown 的 Wait 因而不会与 Add 重叠。
	mu     sync.Mutex
	closed bool

	wg sync.WaitGroup
}

func newDispatcher(transport string, h Handler, cfg Config) *dispatcher {
	d := &dispatcher{
		transport: transport,
		handler:   h,
		ids:       cfg.IDs,
		conns:     session.NewBaseManager(),
		pool:      cfg.Pool,
	}
	if d.ids == nil {
		d.ids = &session.IDGenerator{}
	}
	if d.pool == nil {
		d.pool = conc.NewPool(cfg.MaxConnections,
			conc.WithNonBlocking(true),
			conc.WithConcealPanic(true))
		d.ownsPool = true
	}
	d.SetLogger(log.With(log.FieldComponent("acceptor"), zap.String("transport", transport)))
	return d
}

// dispatch 将连接交给 Handler 处理。协程池已满时连接被关闭并返回
// merr.ErrServiceTooManyRequests。
func (d *dispatcher) dispatch(ctx context.Context, conn session.Conn) error {
	logger := d.Logger().With(log.FieldSession(conn.ID()), log.FieldRemote(conn.RemoteAddr().String()))

	if err := d.conns.Register(conn); err != nil {
		logger.Warn("register conn failed", zap.Error(err))
		_ = conn.Close()
		return err
	}
	// closeAll 与登记并发时，二者至少有一方会关闭该连接。
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		_ = d.conns.Unregister(conn.ID())
		_ = conn.Close()
		return merr.WrapErrServiceNotReady(d.transport+" acceptor", "closed")
	}
	d.wg.Add(1)
	d.mu.Unlock()

	err := d.pool.Submit(func() {
		defer d.wg.Done()
		defer func() {
			_ = d.conns.Unregister(conn.ID())
			_ = conn.Close()
		}()
		d.handler.ServeConn(ctx, conn)
	})
	if err != nil {
		d.wg.Done()
		_ = d.conns.Unregister(conn.ID())
		_ = conn.Close()
		metrics.RejectedConnections.WithLabelValues(d.transport).Inc()
		logger.RatedWarn(1, "connection rejected", zap.Error(err))
		return err
	}

	metrics.AcceptedConnections.WithLabelValues(d.transport).Inc()
	logger.Debug("connection accepted")
	return nil
}

// closeAll 关闭所有活跃连接，使各 Handler 的读操作返回。
func (d *dispatcher) closeAll() {
	d.mu.Lock()
	d.closed = true
	d.mu.Unlock()
	d.conns.Range(func(conn session.Conn) bool {
		_ = conn.Close()
		return true
	})
}

// shutdown 等待所有 Handler 结束，并释放私有协程池。须在 closeAll 之后调用。
func (d *dispatcher) shutdown() {
	d.wg.Wait()
	if d.ownsPool {
		d.pool.Release()
	}
}
