package chat

// DefaultMailboxSize 为每个会话收件箱的默认容量。
const DefaultMailboxSize = 20

// Mailbox 是固定容量的 FIFO 收件箱。
//
// 说明：
//   - 任意 goroutine 都可以调用 Offer，Offer 从不阻塞，满时丢弃新条目；
//   - 只有会话的输出协程调用 Take。
type Mailbox struct {
	ch chan string
}

// NewMailbox 创建容量为 capacity 的收件箱，capacity 不大于 0 时使用默认容量。
func NewMailbox(capacity int) *Mailbox {
	if capacity <= 0 {
		capacity = DefaultMailboxSize
	}
	return &Mailbox{
		ch: make(chan string, capacity),
	}
}

// Offer 尝试放入一条消息，收件箱已满时返回 false。
func (m *Mailbox) Offer(entry string) bool {
	select {
	case m.ch <- entry:
		return true
	default:
		return false
	}
}

// Take 取出下一条消息。
//
// 行为：
//   - 收件箱为空时阻塞，直到有新消息或 done 关闭；
//   - done 关闭后不再阻塞，依次返回剩余消息，取尽后返回 ok=false。
func (m *Mailbox) Take(done <-chan struct{}) (entry string, ok bool) {
	select {
	case entry = <-m.ch:
		return entry, true
	case <-done:
	}
	select {
	case entry = <-m.ch:
		return entry, true
	default:
		return "", false
	}
}

// Len 返回当前待发送的消息数量。
func (m *Mailbox) Len() int {
	return len(m.ch)
}

// Cap 返回收件箱容量。
func (m *Mailbox) Cap() int {
	return cap(m.ch)
}
