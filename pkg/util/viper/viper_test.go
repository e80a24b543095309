package viper

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type section struct {
	Listen  string        `mapstructure:"listen"`
	Size    int           `mapstructure:"size"`
	Timeout time.Duration `mapstructure:"timeout"`
}

func TestConfig_DefaultsFileAndEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "relay.yaml")
	require.NoError(t, os.WriteFile(path, []byte("demo:\n  listen: 127.0.0.1:1\n  size: 3\n"), 0o600))

	t.Setenv("VIPERTEST_DEMO_SIZE", "7")

	c := New()
	c.BindEnv("VIPERTEST")
	c.SetDefault("demo.listen", "0.0.0.0:9000")
	c.SetDefault("demo.size", 1)
	c.SetDefault("demo.timeout", "2s")

	loaded, err := c.LoadFileIfExists(path)
	require.NoError(t, err)
	assert.True(t, loaded)

	assert.Equal(t, "127.0.0.1:1", c.GetString("demo.listen"))
	assert.Equal(t, 7, c.GetInt("demo.size"))
	assert.Equal(t, 2*time.Second, c.GetDuration("demo.timeout"))

	var s section
	require.NoError(t, c.UnmarshalKey("demo", &s))
	assert.Equal(t, "127.0.0.1:1", s.Listen)
	assert.Equal(t, 2*time.Second, s.Timeout)
}

func TestConfig_MissingFile(t *testing.T) {
	c := New()
	loaded, err := c.LoadFileIfExists(filepath.Join(t.TempDir(), "absent.yaml"))
	assert.NoError(t, err)
	assert.False(t, loaded)

	assert.Error(t, c.LoadFile(filepath.Join(t.TempDir(), "absent.yaml")))
}
