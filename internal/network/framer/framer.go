package framer

import (
	"bufio"
	"io"
	"strings"

	"github.com/cockroachdb/errors"

	network "github.com/lk2023060901/danmu-chat-relay/internal/network"
)

// Framer 抽象了基于文本行的打包/解包能力。
//
// 约定：
//   - 输入以 '\n' 作为行边界，行尾的 '\r' 会被去掉；
//   - 输出按调用方给出的文本原样写出，调用方负责保证以 "\r\n" 结尾。
type Framer interface {
	// WriteFrame 将一行文本写入 w。
	WriteFrame(w io.Writer, line string) error

	// ReadFrame 从 r 中读取一行文本（不含行尾）。
	ReadFrame(r *bufio.Reader) (string, error)
}

// LineFramer 使用换行符作为帧边界。
// 适用于基于流的连接（如 TCP）。
type LineFramer struct {
	// MaxLineSize 为允许的最大行长度（不含行尾），单位字节。
	// 为 0 时使用默认值 defaultMaxLineSize。
	MaxLineSize int
}

const defaultMaxLineSize = 4096

// CRLF 为输出行的结束符。
const CRLF = "\r\n"

var _ Framer = (*LineFramer)(nil)

// NewLineFramer 创建一个行帧编码器。
// maxLineSize 不大于 0 时使用默认值。
func NewLineFramer(maxLineSize int) *LineFramer {
	if maxLineSize <= 0 {
		maxLineSize = defaultMaxLineSize
	}
	return &LineFramer{
		MaxLineSize: maxLineSize,
	}
}

// WriteFrame 原样写出 line。
func (f *LineFramer) WriteFrame(w io.Writer, line string) error {
	if _, err := io.WriteString(w, line); err != nil {
		return network.Wrap(network.ErrSendFailed, err)
	}
	return nil
}

// ReadFrame 读取一行文本。
//
// 说明：
//   - EOF 前未以换行结尾的最后一行仍会被返回，下一次调用返回 io.EOF；
//   - 行长度超过上限时返回 network.ErrLineTooLong；
//   - 其他读取错误被标记为 network.ErrRecvFailed。
func (f *LineFramer) ReadFrame(r *bufio.Reader) (string, error) {
	limit := f.effectiveMaxSize()

	var line []byte
	for {
		frag, err := r.ReadSlice('\n')
		line = append(line, frag...)
		// 多留出 "\r\n" 两个字节。
		if len(line) > limit+2 {
			return "", errors.Wrapf(network.ErrLineTooLong, "line exceeds %d bytes", limit)
		}
		if err == nil {
			break
		}
		if errors.Is(err, bufio.ErrBufferFull) {
			continue
		}
		if errors.Is(err, io.EOF) {
			if len(line) == 0 {
				return "", io.EOF
			}
			break
		}
		return "", network.Wrap(network.ErrRecvFailed, err)
	}

	text := TrimLineEnd(string(line))
	if len(text) > limit {
		return "", errors.Wrapf(network.ErrLineTooLong, "line exceeds %d bytes", limit)
	}
	return text, nil
}

func (f *LineFramer) effectiveMaxSize() int {
	if f == nil || f.MaxLineSize <= 0 {
		return defaultMaxLineSize
	}
	return f.MaxLineSize
}

// TrimLineEnd 去掉一个行尾 "\n" 以及其前面的一个 "\r"。
func TrimLineEnd(s string) string {
	s = strings.TrimSuffix(s, "\n")
	return strings.TrimSuffix(s, "\r")
}
