package chat

import (
	"context"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	network "github.com/lk2023060901/danmu-chat-relay/internal/network"
	"github.com/lk2023060901/danmu-chat-relay/internal/network/acceptor"
	"github.com/lk2023060901/danmu-chat-relay/internal/network/session"
	"github.com/lk2023060901/danmu-chat-relay/pkg/log"
	"github.com/lk2023060901/danmu-chat-relay/pkg/metrics"
	"github.com/lk2023060901/danmu-chat-relay/pkg/util/typeutil"
)

// DefaultRoom 为会话命名后自动加入的房间。
const DefaultRoom = "public"

// Config 描述会话层面的配置。
type Config struct {
	// DefaultRoom 为命名后自动加入的房间。
	DefaultRoom string `mapstructure:"default_room"`
	// MailboxSize 为每个会话收件箱的容量。
	MailboxSize int `mapstructure:"mailbox_size"`
	// DrainTimeout 为输入结束后输出协程写完剩余消息的时限，超时后连接被关闭。
	DrainTimeout time.Duration `mapstructure:"drain_timeout"`
}

// DefaultDrainTimeout 为 Config.DrainTimeout 的默认值。
const DefaultDrainTimeout = 5 * time.Second

// DefaultConfig 返回默认配置。
func DefaultConfig() Config {
	return Config{
		DefaultRoom:  DefaultRoom,
		MailboxSize:  DefaultMailboxSize,
		DrainTimeout: DefaultDrainTimeout,
	}
}

// Handler 为每条连接运行一个聊天会话，实现 acceptor.Handler。
//
// 会话流程：
//  1. 创建未命名的 Session 并登记到 Registry；
//  2. 启动输入、输出两个协程，二者在启动屏障处会合后才开始使用连接；
//  3. 输入协程把第一行当作名字，随后加入默认房间并循环处理命令与广播；
//  4. 输入结束（EOF、读错误或 ctx 取消）后离开所有房间并注销，
//     再通知输出协程把剩余消息写完后退出，最后关闭连接。
type Handler struct {
	log.Binder

	registry *Registry
	cfg      Config
	commands *commandTable
}

var _ acceptor.Handler = (*Handler)(nil)

// NewHandler 创建一个绑定到 registry 的会话处理器，cfg 的零值字段使用默认值。
func NewHandler(registry *Registry, cfg Config) *Handler {
	def := DefaultConfig()
	if cfg.DefaultRoom == "" {
		cfg.DefaultRoom = def.DefaultRoom
	}
	if cfg.MailboxSize <= 0 {
		cfg.MailboxSize = def.MailboxSize
	}
	if cfg.DrainTimeout <= 0 {
		cfg.DrainTimeout = def.DrainTimeout
	}
	h := &Handler{
		registry: registry,
		cfg:      cfg,
		commands: newCommandTable(),
	}
	h.SetLogger(log.With(log.FieldComponent("chat")))
	return h
}

// Registry 返回处理器使用的 Registry。
func (h *Handler) Registry() *Registry {
	return h.registry
}

// ServeConn 实现 acceptor.Handler，阻塞直到会话结束。
func (h *Handler) ServeConn(ctx context.Context, conn session.Conn) {
	s := NewSession(conn.ID(), h.cfg.MailboxSize)
	if err := h.Serve(ctx, s, conn); err != nil {
		h.Logger().Warn("session ended with error",
			log.FieldSession(conn.ID()),
			zap.Error(err))
	}
}

// Serve 在 conn 上运行会话 s，返回导致会话结束的错误；
// 对端正常关闭或 ctx 取消时返回 nil。
func (h *Handler) Serve(ctx context.Context, s *Session, conn session.Conn) error {
	ctx, span := log.NewIntentContext(log.WithLogger(ctx, h.Logger()), "chat", "session")
	defer span.End()
	ctx = log.WithFields(ctx,
		log.FieldSession(s.id),
		log.FieldRemote(conn.RemoteAddr().String()),
		zap.String("transport", conn.Transport()))
	logger := log.Ctx(ctx)

	s.setState(StateConnecting)
	if err := h.registry.Register(s); err != nil {
		_ = conn.Close()
		return err
	}
	metrics.ActiveSessions.WithLabelValues(conn.Transport()).Inc()
	defer func() {
		metrics.ActiveSessions.WithLabelValues(conn.Transport()).Dec()
		metrics.SessionDuration.WithLabelValues(conn.Transport()).Observe(time.Since(s.createdAt).Seconds())
	}()
	logger.Info("session connected")

	// 服务关闭时关闭连接，使阻塞的读返回。
	stop := context.AfterFunc(ctx, func() {
		_ = conn.Close()
	})
	defer stop()

	var (
		ready     sync.WaitGroup
		inputDone = make(chan struct{})
		lingering *time.Timer
		g         errgroup.Group

		recvErr, sendErr error
	)
	ready.Add(2)

	g.Go(func() error {
		ready.Done()
		ready.Wait()
		sendErr = h.drain(s, conn, inputDone)
		return sendErr
	})

	g.Go(func() error {
		defer func() {
			s.setState(StateClosing)
			left := h.registry.Release(s)
			// 对端不再读取时，输出协程最多再等待 DrainTimeout。
			lingering = time.AfterFunc(h.cfg.DrainTimeout, func() {
				_ = conn.Close()
			})
			close(inputDone)
			logger.Info("session released", zap.Strings("rooms", left))
		}()
		ready.Done()
		ready.Wait()
		recvErr = h.receive(ctx, s, conn)
		return recvErr
	})

	err := g.Wait()
	lingering.Stop()
	_ = conn.Close()
	s.setState(StateClosed)

	switch {
	case recvErr == nil && isPeerGone(sendErr):
		// 对端在剩余消息写完前断开，属于正常结束。
		logger.Debug("peer left with output pending", zap.Error(sendErr))
		err = nil
	case ctx.Err() != nil && errors.Is(err, network.ErrConnClosed):
		err = nil
	}
	logger.Info("session closed", zap.Error(err))
	return err
}

func isPeerGone(err error) bool {
	return err != nil && errors.IsAny(err, network.ErrSendFailed, network.ErrConnClosed)
}

// receive 为输入协程：读名字、加入默认房间、循环处理后续各行。
func (h *Handler) receive(ctx context.Context, s *Session, conn session.Conn) error {
	s.setState(StateNaming)
	line, err := conn.ReadLine()
	if err != nil {
		return ignoreEOF(err)
	}
	h.commands.dispatch(ctx, h, s, cmdSetMyName+" "+line)

	s.setState(StateActive)
	h.registry.Join(h.cfg.DefaultRoom, s)

	for {
		line, err := conn.ReadLine()
		if err != nil {
			return ignoreEOF(err)
		}
		h.handleLine(ctx, s, line)
	}
}

// handleLine 处理一行输入：命令交给命令表，其他内容广播到会话所在的每个房间。
func (h *Handler) handleLine(ctx context.Context, s *Session, line string) {
	if strings.HasPrefix(line, commandPrefix) {
		h.commands.dispatch(ctx, h, s, strings.TrimPrefix(line, commandPrefix))
		return
	}
	metrics.CommandsTotal.WithLabelValues("broadcast").Inc()
	entry := formatChat(s.Label(), line)
	for _, room := range typeutil.Sorted(h.registry.RoomsFor(s)) {
		_ = h.registry.Broadcast(s, room, entry)
	}
}

// drain 为输出协程：按 FIFO 顺序写出收件箱中的消息。
// 输入结束后写完剩余消息再退出；写失败时关闭连接，使输入协程随之结束。
func (h *Handler) drain(s *Session, conn session.Conn, inputDone <-chan struct{}) error {
	for {
		entry, ok := s.mailbox.Take(inputDone)
		if !ok {
			return nil
		}
		if err := conn.WriteLine(entry); err != nil {
			_ = conn.Close()
			return err
		}
	}
}

func ignoreEOF(err error) error {
	if errors.Is(err, io.EOF) {
		return nil
	}
	return err
}
