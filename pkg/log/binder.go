package log

import "go.uber.org/atomic"

// Binder 为 Registry、Handler、接入器等长生命周期组件保存各自的 Logger，
// 零值可用。
type Binder struct {
	logger atomic.Pointer[MLogger]
}

// SetLogger 绑定组件 Logger，传入 nil 恢复为全局 Logger。
func (b *Binder) SetLogger(logger *MLogger) {
	b.logger.Store(logger)
}

// Logger 返回已绑定的 Logger；未绑定时每次取当前全局 Logger，
// 因此 ReplaceGlobals 之后仍然生效。
func (b *Binder) Logger() *MLogger {
	if l := b.logger.Load(); l != nil {
		return l
	}
	return With()
}
