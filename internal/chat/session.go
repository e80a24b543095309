package chat

import (
	"strconv"
	"time"

	"go.uber.org/atomic"

	"github.com/lk2023060901/danmu-chat-relay/pkg/util/typeutil"
)

// State 表示会话所处的生命周期阶段。
type State int32

const (
	StateConnecting State = iota
	StateNaming
	StateActive
	StateClosing
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateNaming:
		return "naming"
	case StateActive:
		return "active"
	case StateClosing:
		return "closing"
	case StateClosed:
		return "closed"
	default:
		return "unknown(" + strconv.Itoa(int(s)) + ")"
	}
}

// guestPrefix 为未命名会话在消息中使用的标签前缀。
const guestPrefix = "guest-"

// Session 是一条客户端连接在服务端的状态。
//
// 说明：
//   - id 在连接生命周期内不变，是 Registry 中的身份键；
//   - name 为 nil 表示尚未命名，与空字符串是不同的状态；
//   - rooms 只在持有 Registry 锁时读写，二者由 Registry 同步维护。
type Session struct {
	id        uint64
	createdAt time.Time

	name    atomic.Pointer[string]
	rooms   typeutil.Set[string]
	mailbox *Mailbox
	state   atomic.Int32
}

// NewSession 创建一个未命名的会话。
func NewSession(id uint64, mailboxSize int) *Session {
	return &Session{
		id:        id,
		createdAt: time.Now(),
		rooms:     typeutil.NewSet[string](),
		mailbox:   NewMailbox(mailboxSize),
	}
}

// ID 返回会话身份。
func (s *Session) ID() uint64 {
	return s.id
}

// Name 返回显示名，未命名时 ok 为 false。
func (s *Session) Name() (name string, ok bool) {
	if p := s.name.Load(); p != nil {
		return *p, true
	}
	return "", false
}

// Label 返回消息中使用的发送者标签：显示名，或未命名时的 "guest-<id>"。
func (s *Session) Label() string {
	if name, ok := s.Name(); ok {
		return name
	}
	return guestPrefix + strconv.FormatUint(s.id, 10)
}

// Mailbox 返回会话的收件箱。
func (s *Session) Mailbox() *Mailbox {
	return s.mailbox
}

// State 返回当前生命周期阶段。
func (s *Session) State() State {
	return State(s.state.Load())
}

func (s *Session) setState(state State) {
	s.state.Store(int32(state))
}
