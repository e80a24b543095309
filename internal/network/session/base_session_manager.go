package session

import (
	"sync"

	"github.com/lk2023060901/danmu-chat-relay/pkg/util/merr"
)

// BaseManager 提供了基于内存 map 的 Manager 实现。
//
// 特性：
//   - 使用读写锁保证并发安全；
//   - Register 在遇到重复 ID 时返回错误，避免覆盖旧连接；
//   - Range 在遍历前复制一份连接切片，避免在持锁情况下执行用户回调。
type BaseManager struct {
	mu    sync.RWMutex
	conns map[uint64]Conn
}

// 确保 BaseManager 实现了 Manager 接口。
var _ Manager = (*BaseManager)(nil)

// NewBaseManager 创建一个空的 BaseManager。
func NewBaseManager() *BaseManager {
	return &BaseManager{
		conns: make(map[uint64]Conn),
	}
}

// Register 实现 Manager.Register。
func (m *BaseManager) Register(conn Conn) error {
	if conn == nil {
		return merr.WrapErrParameterMissing("conn")
	}
	id := conn.ID()

	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.conns[id]; exists {
		return merr.WrapErrSessionExists(id)
	}
	m.conns[id] = conn
	return nil
}

// Get 实现 Manager.Get。
func (m *BaseManager) Get(id uint64) (Conn, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	conn, ok := m.conns[id]
	return conn, ok
}

// Unregister 实现 Manager.Unregister。
func (m *BaseManager) Unregister(id uint64) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.conns[id]; !exists {
		return merr.WrapErrSessionNotFound(id)
	}
	delete(m.conns, id)
	return nil
}

// Range 实现 Manager.Range。
func (m *BaseManager) Range(fn func(conn Conn) bool) {
	if fn == nil {
		return
	}

	m.mu.RLock()
	snapshot := make([]Conn, 0, len(m.conns))
	for _, conn := range m.conns {
		snapshot = append(snapshot, conn)
	}
	m.mu.RUnlock()

	for _, conn := range snapshot {
		if !fn(conn) {
			return
		}
	}
}

// Count 实现 Manager.Count。
func (m *BaseManager) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.conns)
}
