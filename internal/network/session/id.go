package session

import "go.uber.org/atomic"

// IDGenerator 生成进程内单调递增的连接 ID，首个 ID 为 1。
type IDGenerator struct {
	last atomic.Uint64
}

// Next 返回下一个 ID，可并发调用。
func (g *IDGenerator) Next() uint64 {
	return g.last.Inc()
}
