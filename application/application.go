package application

import (
	"context"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/uber/jaeger-client-go/utils"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/lk2023060901/danmu-chat-relay/internal/chat"
	"github.com/lk2023060901/danmu-chat-relay/internal/network/acceptor"
	"github.com/lk2023060901/danmu-chat-relay/internal/network/session"
	zlog "github.com/lk2023060901/danmu-chat-relay/pkg/log"
	"github.com/lk2023060901/danmu-chat-relay/pkg/metrics"
	"github.com/lk2023060901/danmu-chat-relay/pkg/util/conc"
	"github.com/lk2023060901/danmu-chat-relay/pkg/util/merr"
)

const shutdownTimeout = 5 * time.Second

// Application is the runtime container of the chat relay.
// It owns configuration, loggers and the serving components.
type Application struct {
	cfg     *Config
	loggers map[string]*zlog.MLogger

	registry *chat.Registry

	mu        sync.Mutex
	addrs     map[string]net.Addr
	ready     chan struct{}
	readyOnce sync.Once
}

// New creates a new Application instance.
func New() *Application {
	return &Application{
		addrs: make(map[string]net.Addr),
		ready: make(chan struct{}),
	}
}

// Run is the entry of the chat relay.
// It loads configuration from os.Args and serves until SIGINT or SIGTERM.
func (a *Application) Run() error {
	if err := a.Init(os.Args[1:]); err != nil {
		return err
	}
	defer func() {
		_ = zlog.Sync()
	}()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return a.Serve(ctx)
}

// Init loads configuration and initializes loggers.
func (a *Application) Init(args []string) error {
	cfg, err := LoadConfig(args)
	if err != nil {
		return err
	}
	a.cfg = cfg

	return a.initLogging()
}

// Config returns the loaded configuration, if any.
func (a *Application) Config() *Config {
	return a.cfg
}

// Registry returns the chat registry once Serve has started.
func (a *Application) Registry() *chat.Registry {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.registry
}

// Ready is closed once every listener is bound.
func (a *Application) Ready() <-chan struct{} {
	return a.ready
}

// Addr returns the bound address of a listener: "tcp", "websocket" or "metrics".
func (a *Application) Addr(name string) net.Addr {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.addrs[name]
}

// Logger returns a named logger created from configuration.
// If the name is unknown, it falls back to the global logger.
func (a *Application) Logger(name string) *zlog.MLogger {
	if lg, ok := a.loggers[name]; ok && lg != nil {
		return lg
	}
	return zlog.With(zlog.FieldModule(name))
}

// Serve binds all configured listeners and blocks until ctx is done
// or one of the servers fails.
func (a *Application) Serve(ctx context.Context) error {
	if a.cfg == nil {
		return merr.WrapErrServiceNotReady("application", "not initialized")
	}
	cfg := a.cfg.Chat
	logger := a.Logger("app")

	promRegistry := prometheus.NewRegistry()
	promRegistry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	metrics.Register(promRegistry)

	registry := chat.NewRegistry()
	registry.SetLogger(a.Logger("chat").With(zlog.FieldComponent("registry")))
	handler := chat.NewHandler(registry, chat.Config{
		DefaultRoom:  cfg.DefaultRoom,
		MailboxSize:  cfg.MailboxSize,
		DrainTimeout: cfg.DrainTimeout,
	})
	handler.SetLogger(a.Logger("chat").With(zlog.FieldComponent("chat")))
	a.mu.Lock()
	a.registry = registry
	a.mu.Unlock()

	pool := conc.NewPool(cfg.MaxConnections,
		conc.WithNonBlocking(true),
		conc.WithPanicHandler(panicHandler(a.Logger("acceptor").With(zlog.FieldComponent("acceptor")))))
	defer pool.Release()

	acfg := acceptor.Config{
		MaxConnections: cfg.MaxConnections,
		MaxLineSize:    cfg.MaxLineBytes,
		WriteTimeout:   cfg.WriteTimeout,
		Path:           cfg.WSPath,
		IDs:            &session.IDGenerator{},
		Pool:           pool,
	}

	acceptors, err := a.bindAcceptors(ctx, handler, acfg)
	if err != nil {
		return err
	}

	g, gctx := errgroup.WithContext(ctx)
	for _, acc := range acceptors {
		acc := acc
		g.Go(func() error {
			return acc.Serve(gctx)
		})
	}

	if listen := a.cfg.Metrics.Listen; listen != "" {
		ln, err := net.Listen("tcp", listen)
		if err != nil {
			for _, acc := range acceptors {
				_ = acc.Close()
			}
			_ = g.Wait()
			return merr.WrapErrIoFailed(listen, err)
		}
		a.setAddr("metrics", ln.Addr())
		srv := &http.Server{
			Handler:           newOpsHandler(promRegistry, registry),
			ReadHeaderTimeout: 10 * time.Second,
		}
		g.Go(func() error {
			logger.Info("ops server serving", zap.Stringer("addr", ln.Addr()))
			if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		})
		g.Go(func() error {
			<-gctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		})
	}

	a.readyOnce.Do(func() { close(a.ready) })
	logger.Info("chat relay started",
		zap.String("defaultRoom", cfg.DefaultRoom),
		zap.Int("mailboxSize", cfg.MailboxSize),
		zap.Int("maxConnections", cfg.MaxConnections))

	err = g.Wait()
	logger.Info("chat relay stopped", zap.Error(err))
	return err
}

func (a *Application) bindAcceptors(ctx context.Context, h acceptor.Handler, acfg acceptor.Config) ([]acceptor.Acceptor, error) {
	var (
		result []acceptor.Acceptor
		errs   []error
	)
	if listen := a.cfg.Chat.Listen; listen != "" {
		tcp, err := acceptor.NewTCPAcceptor(ctx, listen, h, acfg)
		if err != nil {
			errs = append(errs, err)
		} else {
			tcp.SetLogger(a.Logger("acceptor").With(zlog.FieldComponent("acceptor"), zap.String("transport", session.TransportTCP)))
			a.setAddr(session.TransportTCP, tcp.Addr())
			result = append(result, tcp)
		}
	}
	if listen := a.cfg.Chat.WSListen; listen != "" {
		ws, err := acceptor.NewWSListenAcceptor(ctx, listen, h, acfg)
		if err != nil {
			errs = append(errs, err)
		} else {
			ws.SetLogger(a.Logger("acceptor").With(zlog.FieldComponent("acceptor"), zap.String("transport", session.TransportWebSocket)))
			a.setAddr(session.TransportWebSocket, ws.Addr())
			result = append(result, ws)
		}
	}
	if err := merr.Combine(errs...); err != nil {
		for _, acc := range result {
			_ = acc.Close()
		}
		return nil, err
	}
	return result, nil
}

// panicHandler logs a panicking connection task and keeps the pool worker alive.
func panicHandler(logger *zlog.MLogger) func(any) {
	return func(v any) {
		logger.Error("connection handler panicked", zap.Any("panic", v), zap.Stack("stack"))
	}
}

func (a *Application) setAddr(name string, addr net.Addr) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.addrs[name] = addr
}

// initLogging initializes global and module-level loggers.
func (a *Application) initLogging() error {
	if err := a.initGlobalLoggerFromEnv(); err != nil {
		return err
	}
	return a.initModuleLoggersFromConfig()
}

// initGlobalLoggerFromEnv configures the process-wide logger based on CHAT_LOG_* env vars.
//
// Priority:
//   - CHAT_LOG_ENABLE: "1"/"true" to enable outputs; others treated as disabled.
//   - CHAT_LOG_LEVEL: log level (default "info").
//   - CHAT_LOG_STDOUT: whether to log to stdout (default false).
//   - CHAT_LOG_FILE_DIR: log directory.
//   - CHAT_LOG_FILE: log file name (empty means no file).
//   - CHAT_LOG_FORMAT: log format ("text" or "json", default "text").
//   - CHAT_LOG_RATE: credits per second shared by rated logs without a rate group (default 10, 0 disables limiting).
func (a *Application) initGlobalLoggerFromEnv() error {
	enabled := getenvBool("CHAT_LOG_ENABLE", false)

	cfg := &zlog.Config{
		Level:             getenvDefault("CHAT_LOG_LEVEL", "info"),
		Format:            getenvDefault("CHAT_LOG_FORMAT", "text"),
		DisableTimestamp:  false,
		Stdout:            getenvBool("CHAT_LOG_STDOUT", false),
		DisableCaller:     false,
		DisableStacktrace: false,
		File: zlog.FileLogConfig{
			RootPath: getenvDefault("CHAT_LOG_FILE_DIR", ""),
			Filename: getenvDefault("CHAT_LOG_FILE", ""),
		},
	}

	// When not enabled, direct all outputs to a discarded sink.
	if !enabled {
		cfg.Stdout = false
		cfg.File.Filename = ""
	}

	logger, props, err := zlog.InitLogger(cfg)
	if err != nil {
		return errors.Wrap(err, "init global logger from env")
	}
	zlog.ReplaceGlobals(logger, props)

	rate, err := strconv.ParseFloat(getenvDefault("CHAT_LOG_RATE", "10"), 64)
	if err != nil || rate < 0 {
		return errors.Newf("invalid CHAT_LOG_RATE %q", os.Getenv("CHAT_LOG_RATE"))
	}
	if rate == 0 {
		zlog.SetRateLimiter(nil)
	} else {
		zlog.SetRateLimiter(utils.NewRateLimiter(rate, rate))
	}
	return nil
}

// initModuleLoggersFromConfig creates named loggers from the "logging" section.
//
// Example:
//
//	logging:
//	  chat:
//	    level: debug
//	    stdout: true
//	    file:
//	      rootpath: ./logs
//	      filename: chat.log
//
// Recognized names: app, chat, acceptor.
func (a *Application) initModuleLoggersFromConfig() error {
	if a.cfg == nil || len(a.cfg.Logging) == 0 {
		return nil
	}

	a.loggers = make(map[string]*zlog.MLogger, len(a.cfg.Logging))
	for name, lc := range a.cfg.Logging {
		cfgCopy := lc
		logger, _, err := zlog.InitLogger(&cfgCopy)
		if err != nil {
			return errors.Wrapf(err, "init module logger %q", name)
		}
		a.loggers[name] = &zlog.MLogger{Logger: logger.With(zlog.FieldModule(name))}
	}

	return nil
}

func getenvDefault(key, def string) string {
	val := strings.TrimSpace(os.Getenv(key))
	if val == "" {
		return def
	}
	return val
}

func getenvBool(key string, def bool) bool {
	val := strings.TrimSpace(os.Getenv(key))
	if val == "" {
		return def
	}
	switch strings.ToLower(val) {
	case "1", "true", "yes", "on":
		return true
	case "0", "false", "no", "off":
		return false
	default:
		return def
	}
}
