package chat

import (
	"fmt"
	"strings"

	"github.com/lk2023060901/danmu-chat-relay/internal/network/framer"
)

// 以下函数生成写入收件箱的完整行，均以 "\r\n" 结尾，输出侧原样写出。

func noticeRoomNotFound(room string) string {
	return fmt.Sprintf("Room %s does not exist."+framer.CRLF, room)
}

func noticeNameInUse(name string) string {
	return fmt.Sprintf("The name %s is already in use."+framer.CRLF, name)
}

func noticeQueueFull(name string) string {
	return fmt.Sprintf("The message queue for %s is full. Message not sent."+framer.CRLF, name)
}

func noticeUserNotFound(name string) string {
	return fmt.Sprintf("User %s does not exist."+framer.CRLF, name)
}

// formatChat 生成广播与私聊消息行。
func formatChat(sender, text string) string {
	return "[" + sender + "] >> " + text + framer.CRLF
}

// formatGroups 生成 #groups 的应答行，rooms 为空时返回空串（不发送）。
func formatGroups(rooms []string) string {
	if len(rooms) == 0 {
		return ""
	}
	return strings.Join(rooms, ", ") + framer.CRLF
}
