package session

// Manager 维护当前所有在线连接的索引。
//
// 职责说明：
//   - 只负责连接的注册、查询和移除，不直接创建底层连接；
//   - 连接的具体生命周期由上层的 acceptor 决定；
//   - 接入层关闭时通过 Range 关闭仍在线的连接。
type Manager interface {
	// Register 将一个已创建好的 Conn 注册到管理器中。
	//
	// 要求：
	//   - conn.ID() 必须在进程内唯一；
	//   - 当存在相同 ID 的连接时返回 merr.ErrSessionExists，不覆盖旧连接。
	Register(conn Conn) error

	// Get 根据连接 ID 查找连接。
	Get(id uint64) (conn Conn, ok bool)

	// Unregister 从管理器中移除指定 id 的连接。
	//
	// 说明：
	//   - 仅删除索引，不负责调用 conn.Close()；
	//   - id 不存在时返回 merr.ErrSessionNotFound。
	Unregister(id uint64) error

	// Range 遍历当前所有在线连接。
	//
	// 参数：
	//   - fn：回调函数，当 fn 返回 false 时中断遍历。
	Range(fn func(conn Conn) bool)

	// Count 返回当前已注册的连接数量。
	Count() int
}
