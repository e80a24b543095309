package network

import (
	"io"
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
)

func TestWrap(t *testing.T) {
	assert.Nil(t, Wrap(ErrRecvFailed, nil))

	err := Wrap(ErrRecvFailed, io.ErrUnexpectedEOF)
	assert.True(t, errors.Is(err, ErrRecvFailed))
	assert.True(t, errors.Is(err, io.ErrUnexpectedEOF))
	assert.False(t, errors.Is(err, ErrSendFailed))
	assert.Contains(t, err.Error(), ErrCodeRecvFailed)
}
