package framer

import (
	"bufio"
	"bytes"
	"io"
	"strings"
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	network "github.com/lk2023060901/danmu-chat-relay/internal/network"
)

func readAll(t *testing.T, f *LineFramer, input string) []string {
	t.Helper()
	r := bufio.NewReaderSize(strings.NewReader(input), 16)
	var lines []string
	for {
		line, err := f.ReadFrame(r)
		if errors.Is(err, io.EOF) {
			return lines
		}
		require.NoError(t, err)
		lines = append(lines, line)
	}
}

func TestLineFramer_ReadFrame(t *testing.T) {
	f := NewLineFramer(0)
	assert.Equal(t, defaultMaxLineSize, f.MaxLineSize)

	lines := readAll(t, f, "alice\r\n#join dev\nhi team\r\n\r\nlast")
	assert.Equal(t, []string{"alice", "#join dev", "hi team", "", "last"}, lines)
}

func TestLineFramer_LongLineAcrossBuffer(t *testing.T) {
	f := NewLineFramer(64)
	long := strings.Repeat("x", 40)
	lines := readAll(t, f, long+"\r\n"+long+"\n")
	assert.Equal(t, []string{long, long}, lines)
}

func TestLineFramer_LineTooLong(t *testing.T) {
	f := NewLineFramer(8)
	r := bufio.NewReaderSize(strings.NewReader("short\r\n0123456789abcdef\r\n"), 16)

	line, err := f.ReadFrame(r)
	require.NoError(t, err)
	assert.Equal(t, "short", line)

	_, err = f.ReadFrame(r)
	assert.ErrorIs(t, err, network.ErrLineTooLong)
}

func TestLineFramer_ExactLimit(t *testing.T) {
	f := NewLineFramer(4)
	lines := readAll(t, f, "abcd\r\nabc\n")
	assert.Equal(t, []string{"abcd", "abc"}, lines)
}

type failingReader struct{}

func (failingReader) Read([]byte) (int, error) { return 0, errors.New("reset by peer") }

func TestLineFramer_ReadError(t *testing.T) {
	f := NewLineFramer(0)
	_, err := f.ReadFrame(bufio.NewReader(failingReader{}))
	assert.ErrorIs(t, err, network.ErrRecvFailed)
}

func TestLineFramer_WriteFrame(t *testing.T) {
	f := NewLineFramer(0)
	var buf bytes.Buffer
	require.NoError(t, f.WriteFrame(&buf, "[alice] >> hello"+CRLF))
	assert.Equal(t, "[alice] >> hello\r\n", buf.String())
	assert.Equal(t, "x", TrimLineEnd("x\r\n"))
	assert.Equal(t, "x\r", TrimLineEnd("x\r\r\n"))
}
