package chat

import (
	"context"
	"strings"

	"github.com/cockroachdb/errors"
	"go.uber.org/zap"

	"github.com/lk2023060901/danmu-chat-relay/pkg/log"
	"github.com/lk2023060901/danmu-chat-relay/pkg/metrics"
	"github.com/lk2023060901/danmu-chat-relay/pkg/util/merr"
	"github.com/lk2023060901/danmu-chat-relay/pkg/util/typeutil"
)

// commandPrefix 标记一行输入为命令。
const commandPrefix = "#"

// 命令名。
const (
	cmdSetMyName   = "setMyName"
	cmdSendPrivate = "sendPrivate"
	cmdJoin        = "join"
	cmdLeave       = "leave"
	cmdGroups      = "groups"
)

// commandFunc 为命令处理函数，args 长度不小于对应 route 的 minArgs。
type commandFunc func(ctx context.Context, h *Handler, s *Session, args []string)

// route 描述一条命令：最少参数个数 + 处理函数。
type route struct {
	minArgs int
	handle  commandFunc
}

// commandTable 维护命令名到 route 的映射。
type commandTable struct {
	routes map[string]route
}

func newCommandTable() *commandTable {
	t := &commandTable{routes: make(map[string]route)}
	builtin := []struct {
		name string
		r    route
	}{
		{cmdSetMyName, route{minArgs: 1, handle: handleSetMyName}},
		{cmdSendPrivate, route{minArgs: 2, handle: handleSendPrivate}},
		{cmdJoin, route{minArgs: 1, handle: handleJoin}},
		{cmdLeave, route{minArgs: 1, handle: handleLeave}},
		{cmdGroups, route{minArgs: 0, handle: handleGroups}},
	}
	for _, item := range builtin {
		if err := t.register(item.name, item.r); err != nil {
			panic(err)
		}
	}
	return t
}

func (t *commandTable) register(name string, r route) error {
	if name == "" || r.handle == nil {
		return merr.WrapErrParameterInvalidMsg("invalid command route %q", name)
	}
	if _, exists := t.routes[name]; exists {
		return errors.Newf("command %q already registered", name)
	}
	t.routes[name] = r
	return nil
}

// parseCommand 将去掉前缀后的命令行按单个空格切分为最多三段：命令名与至多两个参数。
// 最后一个参数保留其中的空格，例如私聊正文。
func parseCommand(line string) (name string, args []string) {
	fields := strings.SplitN(line, " ", 3)
	return fields[0], fields[1:]
}

// dispatch 执行一条命令，返回是否被执行。
// 未知命令或参数个数不足时静默忽略；空字符串是合法参数，例如空名字或空正文。
func (t *commandTable) dispatch(ctx context.Context, h *Handler, s *Session, line string) bool {
	name, args := parseCommand(line)
	r, ok := t.routes[name]
	if !ok || len(args) < r.minArgs {
		return false
	}
	metrics.CommandsTotal.WithLabelValues(name).Inc()
	r.handle(ctx, h, s, args)
	return true
}

func handleSetMyName(ctx context.Context, h *Handler, s *Session, args []string) {
	name := args[0]
	err := h.registry.Rename(s, name)
	switch {
	case err == nil:
		log.Ctx(ctx).Info("session renamed", zap.String("name", name))
	case errors.Is(err, merr.ErrNameInUse):
		h.registry.Notify(s, noticeNameInUse(name))
	default:
		log.Ctx(ctx).Warn("rename failed", zap.String("name", name), zap.Error(err))
	}
}

func handleSendPrivate(ctx context.Context, h *Handler, s *Session, args []string) {
	if err := h.registry.SendPrivate(s, args[0], args[1]); err != nil {
		log.Ctx(ctx).Debug("private message not delivered",
			zap.String("target", args[0]),
			zap.Error(err))
	}
}

func handleJoin(ctx context.Context, h *Handler, s *Session, args []string) {
	if h.registry.Join(args[0], s) {
		log.Ctx(ctx).Debug("joined room", log.FieldRoom(args[0]))
	}
}

func handleLeave(ctx context.Context, h *Handler, s *Session, args []string) {
	if h.registry.Leave(args[0], s) {
		log.Ctx(ctx).Debug("left room", log.FieldRoom(args[0]))
	}
}

func handleGroups(_ context.Context, h *Handler, s *Session, _ []string) {
	h.registry.Notify(s, formatGroups(typeutil.Sorted(h.registry.RoomsFor(s))))
}
