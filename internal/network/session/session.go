package session

import (
	"net"
)

// 传输类型。
const (
	TransportTCP       = "tcp"
	TransportWebSocket = "websocket"
)

// Conn 抽象了一条基于文本行的网络连接。
//
// 约定：
//   - 每个 Conn 对应一条底层连接（例如一个 TCP 连接或 WebSocket 会话）；
//   - Conn ID 使用 64 位无符号整型，在进程内应保持全局唯一；
//   - 传输层只关心行的收发，不关心名字、房间等业务概念。
type Conn interface {
	// ID 返回该连接在进程内的唯一标识。
	//
	// 说明：
	//   - 一般由接入层在接入连接时分配（见 IDGenerator）；
	//   - 业务层以此作为会话身份，而非显示名。
	ID() uint64

	// Transport 返回传输类型，例如 "tcp"、"websocket"。
	Transport() string

	// RemoteAddr 返回远端地址（客户端地址）。
	//
	// 说明：
	//   - 对于 TCP 连接，通常为 "ip:port"；
	//   - 主要用于日志记录与审计。
	RemoteAddr() net.Addr

	// LocalAddr 返回本端地址（服务器监听地址）。
	LocalAddr() net.Addr

	// ReadLine 阻塞读取下一行文本，返回值不含行尾。
	//
	// 说明：
	//   - 对端正常关闭时返回 io.EOF；
	//   - 只允许一个 goroutine 调用。
	ReadLine() (string, error)

	// WriteLine 将一行文本原样写出，调用方负责行尾 "\r\n"。
	//
	// 说明：
	//   - 并发调用是安全的，各行不会交叉；
	//   - 配置了写超时时，单次写超过超时返回错误。
	WriteLine(line string) error

	// Close 关闭底层连接。
	//
	// 说明：
	//   - 阻塞中的 ReadLine/WriteLine 会随之返回错误；
	//   - 多次调用是幂等的。
	Close() error
}
