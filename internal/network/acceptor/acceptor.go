package acceptor

import (
	"context"
	"net"
	"time"

	"github.com/gorilla/websocket"

	"github.com/lk2023060901/danmu-chat-relay/internal/network/session"
	"github.com/lk2023060901/danmu-chat-relay/pkg/util/conc"
)

// Config 描述 Acceptor 在连接层面的配置。
//
// 说明：
//   - MaxConnections 为同时处理的连接上限，超出时新连接被拒绝并关闭；
//   - MaxLineSize/WriteTimeout 透传给每条连接（为 0 表示使用默认值/不设置 deadline）；
//   - Path 控制 WebSocket 的升级路径（如 "/ws"）。
type Config struct {
	MaxConnections int

	MaxLineSize  int
	WriteTimeout time.Duration

	Path string

	// Upgrader 允许调用方自定义 gorilla/websocket 的升级行为。
	// 若为 nil，则使用内部默认的 Upgrader。
	Upgrader *websocket.Upgrader

	// IDs 为连接 ID 生成器。多个接入器共享同一个 Handler 时应共享同一个生成器，
	// 以保证连接 ID 在进程内唯一。为 nil 时使用接入器私有的生成器。
	IDs *session.IDGenerator

	// Pool 为执行连接处理的协程池。多个接入器共享时连接上限对全体生效。
	// 为 nil 时按 MaxConnections 创建接入器私有的非阻塞协程池。
	Pool *conc.Pool
}

// 默认配置。
func defaultConfig() Config {
	return Config{
		MaxConnections: 1024,
		Path:           "/ws",
	}
}

func (cfg Config) withDefaults() Config {
	def := defaultConfig()
	if cfg.MaxConnections <= 0 {
		cfg.MaxConnections = def.MaxConnections
	}
	if cfg.Path == "" {
		cfg.Path = def.Path
	}
	return cfg
}

func (cfg Config) connOptions() []session.Option {
	return []session.Option{
		session.WithMaxLineSize(cfg.MaxLineSize),
		session.WithWriteTimeout(cfg.WriteTimeout),
	}
}

// Handler 由使用者实现，负责一条连接的完整生命周期。
//
// 说明：
//   - ServeConn 在协程池中执行，返回即表示该连接处理结束；
//   - 返回后接入层会关闭连接，实现中无需重复关闭（重复关闭也是安全的）；
//   - ctx 为接入器 Serve 的上下文，取消时实现应尽快返回。
type Handler interface {
	ServeConn(ctx context.Context, conn session.Conn)
}

// HandlerFunc 将普通函数适配为 Handler。
type HandlerFunc func(ctx context.Context, conn session.Conn)

// ServeConn 实现 Handler。
func (f HandlerFunc) ServeConn(ctx context.Context, conn session.Conn) {
	f(ctx, conn)
}

// Acceptor 抽象了服务器侧的接入层。
//
// 职责：
//   - 在 listener 上接受连接（TCP 或 WebSocket 升级）；
//   - 为每个连接创建 session.Conn，并在协程池中调用 Handler；
//   - 维护当前活跃连接，Close 时统一关闭。
type Acceptor interface {
	// Serve 启动服务，阻塞直至 ctx 取消、Close 被调用或出现致命错误。
	// 返回前会等待所有连接处理结束。
	Serve(ctx context.Context) error

	// Close 关闭监听器以及所有活跃连接。
	Close() error

	// Addr 返回监听地址。
	Addr() net.Addr

	// Count 返回当前活跃连接数量。
	Count() int
}
