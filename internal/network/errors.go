package network

import "github.com/cockroachdb/errors"

// Stage 表示网络收发链路中的处理阶段。
//
// 主要用于在日志中标记错误发生的位置，便于监控与排查。
type Stage string

const (
	StageAccept    Stage = "accept"
	StageHandshake Stage = "handshake" // WebSocket 升级
	StageRecv      Stage = "recv"      // 读取并切分出一行
	StageDispatch  Stage = "dispatch"  // 行 -> 命令处理
	StageSend      Stage = "send"      // 写出一行
)

// 统一的错误码常量。
//
// 注意：这些是用于日志/监控的稳定字符串，真正的 error 对象在下面通过 errors.New 构造。
const (
	ErrCodeAcceptFailed    = "network:accept_failed"
	ErrCodeHandshakeFailed = "network:handshake_failed"
	ErrCodeRecvFailed      = "network:recv_failed"
	ErrCodeSendFailed      = "network:send_failed"
	ErrCodeLineTooLong     = "network:line_too_long"
	ErrCodeConnClosed      = "network:conn_closed"
)

var (
	// ErrAcceptFailed 表示监听器 Accept 出现不可恢复的错误。
	ErrAcceptFailed = errors.New(ErrCodeAcceptFailed)

	// ErrHandshakeFailed 表示握手阶段失败（例如 WebSocket 升级失败）。
	ErrHandshakeFailed = errors.New(ErrCodeHandshakeFailed)

	// ErrRecvFailed 表示在读取底层连接数据时发生错误。
	ErrRecvFailed = errors.New(ErrCodeRecvFailed)

	// ErrSendFailed 表示在发送数据到对端时发生错误。
	ErrSendFailed = errors.New(ErrCodeSendFailed)

	// ErrLineTooLong 表示单行长度超过上限。
	ErrLineTooLong = errors.New(ErrCodeLineTooLong)

	// ErrConnClosed 表示连接已被本端关闭。
	ErrConnClosed = errors.New(ErrCodeConnClosed)
)

// Wrap 将 cause 标记为 sentinel 对应的阶段错误，保留原始错误信息。
//
// 返回值同时满足 errors.Is(err, sentinel) 与 errors.Is(err, cause)。
// cause 为 nil 时返回 nil。
func Wrap(sentinel error, cause error) error {
	if cause == nil {
		return nil
	}
	return errors.Mark(errors.Wrap(cause, sentinel.Error()), sentinel)
}
