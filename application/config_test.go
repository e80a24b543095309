package application

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lk2023060901/danmu-chat-relay/pkg/util/merr"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoadConfig_Defaults(t *testing.T) {
	t.Setenv(envConfigFilePath, "")

	cfg, err := LoadConfig(nil)
	require.NoError(t, err)
	assert.Equal(t, "0.0.0.0:9000", cfg.Chat.Listen)
	assert.Empty(t, cfg.Chat.WSListen)
	assert.Equal(t, "/ws", cfg.Chat.WSPath)
	assert.Equal(t, "public", cfg.Chat.DefaultRoom)
	assert.Equal(t, 20, cfg.Chat.MailboxSize)
	assert.Equal(t, 1024, cfg.Chat.MaxConnections)
	assert.Equal(t, 4096, cfg.Chat.MaxLineBytes)
	assert.Equal(t, 10*time.Second, cfg.Chat.WriteTimeout)
	assert.Equal(t, 5*time.Second, cfg.Chat.DrainTimeout)
	assert.Empty(t, cfg.Metrics.Listen)
}

func TestLoadConfig_EnvOverride(t *testing.T) {
	t.Setenv(envConfigFilePath, "")
	t.Setenv("CHAT_CHAT_MAILBOX_SIZE", "5")
	t.Setenv("CHAT_CHAT_DEFAULT_ROOM", "lobby")

	cfg, err := LoadConfig(nil)
	require.NoError(t, err)
	assert.Equal(t, 5, cfg.Chat.MailboxSize)
	assert.Equal(t, "lobby", cfg.Chat.DefaultRoom)
}

func TestLoadConfig_File(t *testing.T) {
	path := writeConfig(t, `
chat:
  listen: 127.0.0.1:7000
  ws_listen: 127.0.0.1:7001
  ws_path: /chat
  write_timeout: 2s
metrics:
  listen: 127.0.0.1:7002
logging:
  chat:
    level: debug
    stdout: false
`)

	for _, args := range [][]string{
		{"--config", path},
		{"--config=" + path},
	} {
		t.Setenv(envConfigFilePath, "")
		cfg, err := LoadConfig(args)
		require.NoError(t, err)
		assert.Equal(t, "127.0.0.1:7000", cfg.Chat.Listen)
		assert.Equal(t, "127.0.0.1:7001", cfg.Chat.WSListen)
		assert.Equal(t, "/chat", cfg.Chat.WSPath)
		assert.Equal(t, 2*time.Second, cfg.Chat.WriteTimeout)
		assert.Equal(t, "127.0.0.1:7002", cfg.Metrics.Listen)
		// 未在文件中出现的键保持默认值。
		assert.Equal(t, 20, cfg.Chat.MailboxSize)
		require.Contains(t, cfg.Logging, "chat")
		assert.Equal(t, "debug", cfg.Logging["chat"].Level)
	}

	t.Setenv(envConfigFilePath, path)
	cfg, err := LoadConfig(nil)
	require.NoError(t, err)
	assert.Equal(t, "127.0.0.1:7000", cfg.Chat.Listen)
}

func TestLoadConfig_MissingExplicitFile(t *testing.T) {
	t.Setenv(envConfigFilePath, "")
	missing := filepath.Join(t.TempDir(), "nope.yaml")

	_, err := LoadConfig([]string{"--config", missing})
	assert.Error(t, err)

	_, err = LoadConfig([]string{"--config"})
	assert.ErrorIs(t, err, merr.ErrParameterMissing)
}

func TestConfig_Validate(t *testing.T) {
	valid := func() *Config {
		return &Config{Chat: ChatConfig{
			Listen:         "127.0.0.1:0",
			WSPath:         "/ws",
			DefaultRoom:    "public",
			MailboxSize:    20,
			MaxConnections: 10,
			MaxLineBytes:   4096,
			DrainTimeout:   time.Second,
		}}
	}
	require.NoError(t, valid().Validate())

	cases := map[string]func(c *Config){
		"no listener":      func(c *Config) { c.Chat.Listen = "" },
		"bad ws path":      func(c *Config) { c.Chat.WSListen = "127.0.0.1:0"; c.Chat.WSPath = "ws" },
		"empty room":       func(c *Config) { c.Chat.DefaultRoom = "" },
		"two-word room":    func(c *Config) { c.Chat.DefaultRoom = "main hall" },
		"zero mailbox":     func(c *Config) { c.Chat.MailboxSize = 0 },
		"zero connections": func(c *Config) { c.Chat.MaxConnections = 0 },
		"zero line bytes":  func(c *Config) { c.Chat.MaxLineBytes = 0 },
		"negative timeout": func(c *Config) { c.Chat.WriteTimeout = -time.Second },
		"zero drain":       func(c *Config) { c.Chat.DrainTimeout = 0 },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			cfg := valid()
			mutate(cfg)
			assert.ErrorIs(t, cfg.Validate(), merr.ErrParameterInvalid)
		})
	}

	// 仅启用 WebSocket 也是合法的。
	cfg := valid()
	cfg.Chat.Listen = ""
	cfg.Chat.WSListen = "127.0.0.1:0"
	assert.NoError(t, cfg.Validate())
}

func TestGetenvHelpers(t *testing.T) {
	t.Setenv("CHAT_TEST_BOOL", " yes ")
	t.Setenv("CHAT_TEST_STR", "")
	assert.True(t, getenvBool("CHAT_TEST_BOOL", false))
	assert.True(t, getenvBool("CHAT_TEST_UNSET", true))
	assert.Equal(t, "info", getenvDefault("CHAT_TEST_STR", "info"))

	t.Setenv("CHAT_TEST_BOOL", "maybe")
	assert.False(t, getenvBool("CHAT_TEST_BOOL", false))
}
