package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/srg/g1ctl/pkg/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaults(t *testing.T) {
	cfg := config.DefaultConfig()

	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, 8*time.Second, cfg.HeartbeatInterval)
	assert.Equal(t, 3, cfg.ReconnectAttempts)
	assert.Equal(t, time.Second, cfg.ReconnectDelay)
	assert.Equal(t, 20*time.Second, cfg.ConnectTimeout)
	assert.Equal(t, "_L_", cfg.LeftNamePattern)
	assert.Equal(t, "_R_", cfg.RightNamePattern)
	assert.False(t, cfg.Left.Bound())
	assert.False(t, cfg.Right.Bound())
}

func TestLoadCreatesDefaultFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")

	cfg, err := config.Load(path)
	require.NoError(t, err)
	assert.Equal(t, "info", cfg.LogLevel)

	_, err = os.Stat(path)
	assert.NoError(t, err, "Load should persist a defaulted file")
}

func TestSaveLoadRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")

	cfg, err := config.Load(path)
	require.NoError(t, err)

	cfg.Left = config.SideConfig{Address: "AA:BB:CC:DD:EE:01", Name: "G1_45_L_AF1", Paired: true}
	cfg.Right = config.SideConfig{Address: "AA:BB:CC:DD:EE:02", Name: "G1_45_R_AF1", Paired: true}
	cfg.HeartbeatInterval = 5 * time.Second
	require.NoError(t, cfg.Save())

	loaded, err := config.Load(path)
	require.NoError(t, err)
	assert.Equal(t, cfg.Left, loaded.Left)
	assert.Equal(t, cfg.Right, loaded.Right)
	assert.Equal(t, 5*time.Second, loaded.HeartbeatInterval)
	assert.True(t, loaded.Left.Bound())
}

func TestClearBinding(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Left = config.SideConfig{Address: "AA:BB:CC:DD:EE:01", Paired: true}
	cfg.Right = config.SideConfig{Address: "AA:BB:CC:DD:EE:02", Paired: true}

	cfg.ClearBinding()
	assert.False(t, cfg.Left.Bound())
	assert.False(t, cfg.Right.Bound())
	assert.False(t, cfg.Left.Paired)
}

func TestNewLogger(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.LogLevel = "debug"
	assert.Equal(t, logrus.DebugLevel, cfg.NewLogger().GetLevel())

	cfg.LogLevel = "not-a-level"
	assert.Equal(t, logrus.InfoLevel, cfg.NewLogger().GetLevel())
}
