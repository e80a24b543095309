package application

import (
	"os"
	"strings"
	"time"

	"github.com/cockroachdb/errors"

	zlog "github.com/lk2023060901/danmu-chat-relay/pkg/log"
	"github.com/lk2023060901/danmu-chat-relay/pkg/util/merr"
	zviper "github.com/lk2023060901/danmu-chat-relay/pkg/util/viper"
)

const (
	envPrefix         = "CHAT"
	envConfigFilePath = "CHAT_CONFIG_FILE_PATH"
	defaultConfigPath = "./config.yaml"
)

// Config 为服务的完整配置。
type Config struct {
	Chat    ChatConfig             `mapstructure:"chat"`
	Metrics MetricsConfig          `mapstructure:"metrics"`
	Logging map[string]zlog.Config `mapstructure:"logging"`
}

// ChatConfig 为聊天接入相关配置。
type ChatConfig struct {
	// Listen 为 TCP 监听地址，为空表示不启用。
	Listen string `mapstructure:"listen"`
	// WSListen 为 WebSocket 监听地址，为空表示不启用。
	WSListen string `mapstructure:"ws_listen"`
	// WSPath 为 WebSocket 升级路径。
	WSPath string `mapstructure:"ws_path"`

	DefaultRoom    string        `mapstructure:"default_room"`
	MailboxSize    int           `mapstructure:"mailbox_size"`
	MaxConnections int           `mapstructure:"max_connections"`
	MaxLineBytes   int           `mapstructure:"max_line_bytes"`
	WriteTimeout   time.Duration `mapstructure:"write_timeout"`
	// DrainTimeout 为输入结束后写完剩余消息的时限。
	DrainTimeout time.Duration `mapstructure:"drain_timeout"`
}

// MetricsConfig 为运维 HTTP 服务配置（/metrics、/debug/chat、/debug/pprof）。
type MetricsConfig struct {
	// Listen 为监听地址，为空表示不启用。
	Listen string `mapstructure:"listen"`
}

var defaults = map[string]any{
	"chat.listen":          "0.0.0.0:9000",
	"chat.ws_listen":       "",
	"chat.ws_path":         "/ws",
	"chat.default_room":    "public",
	"chat.mailbox_size":    20,
	"chat.max_connections": 1024,
	"chat.max_line_bytes":  4096,
	"chat.write_timeout":   "10s",
	"chat.drain_timeout":   "5s",
	"metrics.listen":       "",
}

// LoadConfig 解析配置文件路径并加载配置。
//
// 路径优先级（后者覆盖前者）：
//  1. 默认：./config.yaml（不存在时仅使用默认值与环境变量）
//  2. 环境变量：CHAT_CONFIG_FILE_PATH
//  3. 命令行：--config <path> 或 --config=<path>
//
// 各配置项可由 CHAT_ 前缀的环境变量覆盖，例如 CHAT_CHAT_LISTEN。
func LoadConfig(args []string) (*Config, error) {
	path, explicit, err := resolveConfigPath(args)
	if err != nil {
		return nil, err
	}

	v := zviper.New()
	for key, value := range defaults {
		v.SetDefault(key, value)
	}
	v.BindEnv(envPrefix)

	if explicit {
		if err := v.LoadFile(path); err != nil {
			return nil, errors.Wrapf(err, "failed to load config file %q", path)
		}
	} else if _, err := v.LoadFileIfExists(path); err != nil {
		return nil, errors.Wrapf(err, "failed to load config file %q", path)
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, errors.Wrap(err, "failed to decode config")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func resolveConfigPath(args []string) (path string, explicit bool, err error) {
	path = defaultConfigPath
	if envPath := os.Getenv(envConfigFilePath); envPath != "" {
		path = envPath
		explicit = true
	}

	for i := 0; i < len(args); i++ {
		arg := args[i]
		if arg == "--config" {
			if i+1 >= len(args) {
				return "", false, merr.WrapErrParameterMissing("--config")
			}
			path = args[i+1]
			explicit = true
			i++
			continue
		}
		if strings.HasPrefix(arg, "--config=") {
			if val := strings.TrimPrefix(arg, "--config="); val != "" {
				path = val
				explicit = true
			}
			continue
		}
	}
	return path, explicit, nil
}

// Validate 检查配置取值，非法时返回 merr.ErrParameterInvalid。
func (c *Config) Validate() error {
	chat := c.Chat
	if chat.Listen == "" && chat.WSListen == "" {
		return merr.WrapErrParameterInvalidMsg("at least one of chat.listen and chat.ws_listen must be set")
	}
	if chat.WSListen != "" && !strings.HasPrefix(chat.WSPath, "/") {
		return merr.WrapErrParameterInvalidMsg("chat.ws_path must start with '/', got %q", chat.WSPath)
	}
	if chat.DefaultRoom == "" || strings.Contains(chat.DefaultRoom, " ") {
		return merr.WrapErrParameterInvalidMsg("chat.default_room must be a single non-empty word, got %q", chat.DefaultRoom)
	}
	if chat.MailboxSize <= 0 {
		return merr.WrapErrParameterInvalidMsg("chat.mailbox_size must be positive, got %d", chat.MailboxSize)
	}
	if chat.MaxConnections <= 0 {
		return merr.WrapErrParameterInvalidMsg("chat.max_connections must be positive, got %d", chat.MaxConnections)
	}
	if chat.MaxLineBytes <= 0 {
		return merr.WrapErrParameterInvalidMsg("chat.max_line_bytes must be positive, got %d", chat.MaxLineBytes)
	}
	if chat.WriteTimeout < 0 {
		return merr.WrapErrParameterInvalidMsg("chat.write_timeout must not be negative, got %s", chat.WriteTimeout)
	}
	if chat.DrainTimeout <= 0 {
		return merr.WrapErrParameterInvalidMsg("chat.drain_timeout must be positive, got %s", chat.DrainTimeout)
	}
	return nil
}
