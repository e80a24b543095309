package chat

import (
	"slices"
	"sync"

	"github.com/samber/lo"
	"go.uber.org/zap"

	"github.com/lk2023060901/danmu-chat-relay/pkg/log"
	"github.com/lk2023060901/danmu-chat-relay/pkg/metrics"
	"github.com/lk2023060901/danmu-chat-relay/pkg/util/merr"
	"github.com/lk2023060901/danmu-chat-relay/pkg/util/typeutil"
)

const dropRateGroup = "chat.registry.drop"

// Registry 持有所有在线会话与房间，是跨会话状态的唯一修改者。
//
// 说明：
//   - 所有操作都在同一把互斥锁下执行，可被任意数量的会话并发调用；
//   - 加入/离开房间时，房间成员集合与会话自身的房间记录在同一临界区内更新；
//   - 投递使用非阻塞入队，目标收件箱已满时丢弃，不会阻塞调用方；
//   - 锁内不做任何 I/O。
type Registry struct {
	log.Binder

	mu       sync.Mutex
	sessions map[uint64]*Session
	names    map[string]*Session
	rooms    map[string]typeutil.Set[*Session]
}

// NewRegistry 创建一个空的 Registry。
func NewRegistry() *Registry {
	r := &Registry{
		sessions: make(map[uint64]*Session),
		names:    make(map[string]*Session),
		rooms:    make(map[string]typeutil.Set[*Session]),
	}
	r.SetLogger(log.With(log.FieldComponent("registry")))
	return r
}

// Register 登记一个会话。相同身份重复登记返回 merr.ErrSessionExists，不做修改。
func (r *Registry) Register(s *Session) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.sessions[s.id]; ok {
		return merr.WrapErrSessionExists(s.id)
	}
	r.sessions[s.id] = s
	if name, ok := s.Name(); ok {
		r.names[name] = s
	}
	return nil
}

// Deregister 将会话从在线集合与名字索引中移除。
//
// 注意：不会把会话移出它所在的房间，房间中仍保留对它的引用。
// 连接关闭时应使用 Release。
func (r *Registry) Deregister(s *Session) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.sessions[s.id]; !ok {
		return merr.WrapErrSessionNotFound(s.id)
	}
	r.removeLocked(s)
	return nil
}

// Release 在一个临界区内让会话离开所有房间并注销，返回离开的房间（已排序）。
// 会话未登记时也会清理其房间记录。
func (r *Registry) Release(s *Session) []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	left := typeutil.Sorted(s.rooms)
	for _, room := range left {
		r.leaveLocked(room, s)
	}
	r.removeLocked(s)
	return left
}

func (r *Registry) removeLocked(s *Session) {
	delete(r.sessions, s.id)
	if name, ok := s.Name(); ok && r.names[name] == s {
		delete(r.names, name)
	}
}

// IsNameAvailable 当且仅当没有在线会话使用 name 时返回 true。
func (r *Registry) IsNameAvailable(name string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	_, taken := r.names[name]
	return !taken
}

// Rename 原子地检查名字是否可用并设置。
//
// 空字符串是合法的名字，与未命名状态不同。
//
// 返回：
//   - merr.ErrSessionNotFound：会话未登记；
//   - merr.ErrNameInUse：名字已被任一在线会话（包括自己）占用，不做修改。
func (r *Registry) Rename(s *Session, name string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.sessions[s.id]; !ok {
		return merr.WrapErrSessionNotFound(s.id, "rename")
	}
	if _, taken := r.names[name]; taken {
		return merr.WrapErrNameInUse(name)
	}
	if old, ok := s.Name(); ok {
		delete(r.names, old)
	}
	s.name.Store(&name)
	r.names[name] = s
	return nil
}

// Lookup 按显示名查找在线会话。
func (r *Registry) Lookup(name string) (*Session, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.names[name]
	return s, ok
}

// RoomsFor 返回会话所在房间的快照，调用方可以随意修改。
func (r *Registry) RoomsFor(s *Session) typeutil.Set[string] {
	r.mu.Lock()
	defer r.mu.Unlock()

	return s.rooms.Clone()
}

// Join 将会话加入房间，房间不存在时创建。
// 已是成员或会话未登记时返回 false。
func (r *Registry) Join(room string, s *Session) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.sessions[s.id]; !ok {
		return false
	}
	members, ok := r.rooms[room]
	if !ok {
		members = typeutil.NewSet[*Session]()
		r.rooms[room] = members
	}
	if !members.TryInsert(s) {
		return false
	}
	s.rooms.Insert(room)
	metrics.ActiveRooms.Set(float64(len(r.rooms)))
	return true
}

// Leave 将会话移出房间，房间变空时删除。不是成员时返回 false。
func (r *Registry) Leave(room string, s *Session) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	return r.leaveLocked(room, s)
}

func (r *Registry) leaveLocked(room string, s *Session) bool {
	members, ok := r.rooms[room]
	if !ok || !members.TryRemove(s) {
		s.rooms.Remove(room)
		return false
	}
	if members.Len() == 0 {
		delete(r.rooms, room)
	}
	s.rooms.Remove(room)
	metrics.ActiveRooms.Set(float64(len(r.rooms)))
	return true
}

// Broadcast 将 entry 投递给房间内除 sender 以外的每个成员。
//
// 说明：
//   - entry 应为完整的一行（见 formatChat）；
//   - 某个成员收件箱已满时，该成员的这条消息被丢弃，其他成员不受影响；
//   - 房间不存在时向 sender 投递 "Room ... does not exist." 并返回 merr.ErrRoomNotFound。
func (r *Registry) Broadcast(sender *Session, room string, entry string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	members, ok := r.rooms[room]
	if !ok {
		r.deliver(sender, noticeRoomNotFound(room), metrics.DeliveryKindNotice)
		return merr.WrapErrRoomNotFound(room)
	}
	members.Range(func(member *Session) bool {
		if member != sender {
			r.deliver(member, entry, metrics.DeliveryKindRoom)
		}
		return true
	})
	return nil
}

// SendPrivate 将 "[sender] >> text" 投递给显示名为 target 的会话。
//
// 返回：
//   - merr.ErrUserNotFound：target 不在线，sender 收到 "User ... does not exist."；
//   - merr.ErrMailboxFull：target 收件箱已满，消息丢弃，sender 收到一次队列已满通知。
func (r *Registry) SendPrivate(sender *Session, target string, text string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	to, ok := r.names[target]
	if !ok {
		r.deliver(sender, noticeUserNotFound(target), metrics.DeliveryKindNotice)
		return merr.WrapErrUserNotFound(target)
	}
	if !r.deliver(to, formatChat(sender.Label(), text), metrics.DeliveryKindPrivate) {
		// 通知本身也可能被丢弃，不再重试。
		r.deliver(sender, noticeQueueFull(target), metrics.DeliveryKindNotice)
		return merr.WrapErrMailboxFull(target, to.mailbox.Cap())
	}
	return nil
}

// Notify 向会话自己的收件箱投递一条通知，满时丢弃。
func (r *Registry) Notify(s *Session, entry string) bool {
	if entry == "" {
		return false
	}
	return r.deliver(s, entry, metrics.DeliveryKindNotice)
}

func (r *Registry) deliver(s *Session, entry string, kind string) bool {
	if s.mailbox.Offer(entry) {
		metrics.DeliveredTotal.WithLabelValues(kind).Inc()
		return true
	}
	metrics.DroppedTotal.WithLabelValues(kind, metrics.DropReasonMailboxFull).Inc()
	r.Logger().With(log.FieldSession(s.id), zap.String("kind", kind)).
		WithRateGroup(dropRateGroup, 1, 30).
		RatedWarn(1, "mailbox full, message dropped", zap.Int("capacity", s.mailbox.Cap()))
	return false
}

// RoomExists 判断房间是否存在（即至少有一个成员）。
func (r *Registry) RoomExists(room string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	_, ok := r.rooms[room]
	return ok
}

// Members 返回房间成员的标签（已排序），房间不存在时返回 nil。
func (r *Registry) Members(room string) []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	members, ok := r.rooms[room]
	if !ok {
		return nil
	}
	return labels(members)
}

// Count 返回在线会话数量。
func (r *Registry) Count() int {
	r.mu.Lock()
	defer r.mu.Unlock()

	return len(r.sessions)
}

// Snapshot 是 Registry 的只读视图，用于调试接口。
type Snapshot struct {
	Sessions int                 `json:"sessions"`
	Names    []string            `json:"names"`
	Rooms    map[string][]string `json:"rooms"`
}

// Snapshot 返回当前在线会话与房间的快照。
func (r *Registry) Snapshot() Snapshot {
	r.mu.Lock()
	defer r.mu.Unlock()

	names := lo.Keys(r.names)
	slices.Sort(names)
	return Snapshot{
		Sessions: len(r.sessions),
		Names:    names,
		Rooms: lo.MapValues(r.rooms, func(members typeutil.Set[*Session], _ string) []string {
			return labels(members)
		}),
	}
}

func labels(members typeutil.Set[*Session]) []string {
	result := lo.Map(members.Collect(), func(s *Session, _ int) string {
		return s.Label()
	})
	slices.Sort(result)
	return result
}
