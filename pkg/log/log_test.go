package log

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func TestInitLogger_LevelParsing(t *testing.T) {
	lg, props, err := InitLogger(&Config{Level: "warn"})
	require.NoError(t, err)
	require.NotNil(t, lg)
	assert.Equal(t, zapcore.WarnLevel, props.Level.Level())

	_, props, err = InitLogger(&Config{Level: "trace"})
	require.NoError(t, err)
	assert.Equal(t, zapcore.DebugLevel, props.Level.Level())

	_, _, err = InitLogger(&Config{Level: "nope"})
	assert.Error(t, err)
}

func TestCtx_WithFields(t *testing.T) {
	assert.NotNil(t, Ctx(nil))
	assert.NotNil(t, Ctx(context.Background()))

	ctx := WithFields(context.Background(), zap.String("k", "v"))
	l1 := Ctx(ctx)
	assert.Same(t, l1, Ctx(ctx))

	ctx = WithModule(ctx, "chat")
	assert.NotSame(t, l1, Ctx(ctx))
}

func TestNewIntentContext(t *testing.T) {
	ctx, span := NewIntentContext(context.Background(), "chat", "session")
	defer span.End()
	_, ok := ctx.Value(CtxLogKey).(*MLogger)
	assert.True(t, ok)
}

func TestMLogger_RatedWarn(t *testing.T) {
	l := NewTestLogger(t)
	l.WithRateGroup(fmt.Sprintf("log_test_%d", time.Now().UnixNano()), 1, 1)

	assert.True(t, l.RatedWarn(1, "first"))
	assert.False(t, l.RatedWarn(1, "second"))

	child := l.With(zap.String("child", "1"))
	assert.False(t, child.RatedWarn(1, "shared limiter"))
}

func TestBinder_FallsBackToGlobal(t *testing.T) {
	var b Binder
	assert.NotNil(t, b.Logger())

	l := NewTestLogger(t)
	b.SetLogger(l)
	assert.Same(t, l, b.Logger())

	b.SetLogger(nil)
	assert.NotSame(t, l, b.Logger())
}

type denyLimiter struct{ calls int }

func (d *denyLimiter) CheckCredit(float64) bool {
	d.calls++
	return false
}

func TestMLogger_RatedWarnUsesGlobalLimiter(t *testing.T) {
	t.Cleanup(func() { SetRateLimiter(nil) })
	l := NewTestLogger(t)
	assert.True(t, l.RatedWarn(1, "unlimited"))

	deny := &denyLimiter{}
	SetRateLimiter(deny)
	assert.False(t, l.RatedWarn(1, "dropped"))
	assert.Equal(t, 1, deny.calls)

	grouped := NewTestLogger(t).WithRateGroup(fmt.Sprintf("log_test_%d", time.Now().UnixNano()), 1, 1)
	assert.True(t, grouped.RatedWarn(1, "own group"))
	assert.Equal(t, 1, deny.calls)
}

func TestReplaceGlobals_SetLevel(t *testing.T) {
	oldL, oldP := L(), _globalP.Load().(*ZapProperties)
	defer ReplaceGlobals(oldL, oldP)

	// 无任何输出时日志被丢弃。
	lg, props, err := InitLogger(&Config{Level: "info"})
	require.NoError(t, err)
	ReplaceGlobals(lg, props)
	assert.Same(t, lg, L())
	assert.False(t, Ctx(context.Background()).Core().Enabled(zapcore.DebugLevel))

	SetLevel(zapcore.DebugLevel)
	assert.Equal(t, zapcore.DebugLevel, props.Level.Level())
	assert.True(t, Ctx(context.Background()).Core().Enabled(zapcore.DebugLevel))
	assert.NoError(t, Sync())
}

func TestWithLogger(t *testing.T) {
	l := NewTestLogger(t)
	ctx := WithLogger(context.Background(), l)
	assert.Same(t, l, Ctx(ctx))

	// 后续附加的字段以绑定的 logger 为基础。
	ctx = WithFields(ctx, zap.String("k", "v"))
	assert.NotSame(t, l, Ctx(ctx))

	assert.Same(t, Ctx(ctx), Ctx(WithLogger(ctx, nil)))
}
