// Package json 是基于 bytedance/sonic 的 JSON 编解码门面，行为与标准库兼容。
package json

import (
	"github.com/bytedance/sonic"
)

var api = sonic.ConfigStd

// Marshal 将 v 编码为 JSON。
func Marshal(v any) ([]byte, error) {
	return api.Marshal(v)
}

// MarshalIndent 将 v 编码为带缩进的 JSON。
func MarshalIndent(v any, prefix, indent string) ([]byte, error) {
	return api.MarshalIndent(v, prefix, indent)
}

// Unmarshal 将 JSON 解码到 v。
func Unmarshal(data []byte, v any) error {
	return api.Unmarshal(data, v)
}
