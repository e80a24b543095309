package log

import (
	"go.uber.org/zap"
)

const (
	FieldNameModule    = "module"
	FieldNameComponent = "component"
	FieldNameSession   = "sessionID"
	FieldNameRoom      = "room"
	FieldNameRemote    = "remote"
)

// FieldModule 返回一个包含模块名的 zap 字段。
func FieldModule(module string) zap.Field {
	return zap.String(FieldNameModule, module)
}

// FieldComponent 返回一个包含组件名的 zap 字段。
func FieldComponent(component string) zap.Field {
	return zap.String(FieldNameComponent, component)
}

// FieldSession 返回一个包含会话 ID 的 zap 字段。
func FieldSession(id uint64) zap.Field {
	return zap.Uint64(FieldNameSession, id)
}

// FieldRoom 返回一个包含房间名的 zap 字段。
func FieldRoom(room string) zap.Field {
	return zap.String(FieldNameRoom, room)
}

// FieldRemote 返回一个包含对端地址的 zap 字段。
func FieldRemote(addr string) zap.Field {
	return zap.String(FieldNameRemote, addr)
}
