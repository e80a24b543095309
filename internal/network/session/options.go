package session

import (
	"time"
)

type connOption struct {
	// maxLineSize 为单行最大字节数（不含行尾），0 表示使用默认值。
	maxLineSize int
	// writeTimeout 为单次写超时，0 表示不设置 deadline。
	writeTimeout time.Duration
}

// Option 用于配置连接行为的选项函数。
type Option func(opt *connOption)

func defaultConnOption() *connOption {
	return &connOption{}
}

func WithMaxLineSize(n int) Option {
	return func(opt *connOption) {
		opt.maxLineSize = n
	}
}

func WithWriteTimeout(d time.Duration) Option {
	return func(opt *connOption) {
		opt.writeTimeout = d
	}
}
