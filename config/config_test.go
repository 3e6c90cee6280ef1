package config

import (
	"os"
	"path/filepath"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fpsync/protocol"
)

func TestLoad_DefaultValues(t *testing.T) {
	cfg, err := Load("", "")
	require.NoError(t, err)

	assert.Equal(t, "0.0.0.0", cfg.Server.Host)
	assert.Equal(t, 8003, cfg.Server.Port)
	assert.Equal(t, 100*time.Millisecond, cfg.Server.TickPeriod)
	assert.Equal(t, 5*time.Second, cfg.Server.LivenessTimeout)
	assert.Equal(t, 32, cfg.Server.MaxPlayers)
	assert.Equal(t, time.Millisecond, cfg.Server.IdleSleep)
	assert.Equal(t, ":8080", cfg.Admin.Addr)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.False(t, cfg.Journal.Enabled)
	assert.Equal(t, "sqlite", cfg.Journal.Driver)
	assert.Equal(t, "127.0.0.1:8003", cfg.Client.Server)
	assert.Equal(t, 60, cfg.Client.FrameRate)
}

func TestLoad_WithConfigFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "fpsync.json")
	body := `{
		"server": { "port": 9000, "tickPeriod": "50ms", "maxPlayers": 8 },
		"journal": { "enabled": true, "dsn": "/tmp/x.db" }
	}`
	require.NoError(t, os.WriteFile(path, []byte(body), 0644))

	cfg, err := Load(path, "")
	require.NoError(t, err)

	assert.Equal(t, 9000, cfg.Server.Port)
	assert.Equal(t, 50*time.Millisecond, cfg.Server.TickPeriod)
	assert.Equal(t, 8, cfg.Server.MaxPlayers)
	assert.Equal(t, 5*time.Second, cfg.Server.LivenessTimeout)
	assert.True(t, cfg.Journal.Enabled)
	assert.Equal(t, "/tmp/x.db", cfg.Journal.DSN)
}

func TestLoad_EnvOverridesFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "fpsync.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"server": {"port": 9000}}`), 0644))
	t.Setenv("FPSYNC_SERVER_PORT", "9100")
	t.Setenv("FPSYNC_SERVER_LIVENESSTIMEOUT", "2s")

	cfg, err := Load(path, "")
	require.NoError(t, err)
	assert.Equal(t, 9100, cfg.Server.Port)
	assert.Equal(t, 2*time.Second, cfg.Server.LivenessTimeout)
}

func TestLoad_DotEnvFile(t *testing.T) {
	envFile := filepath.Join(t.TempDir(), ".env")
	require.NoError(t, os.WriteFile(envFile, []byte("FPSYNC_SERVER_MAXPLAYERS=4\n"), 0644))
	t.Cleanup(func() { os.Unsetenv("FPSYNC_SERVER_MAXPLAYERS") })

	cfg, err := Load("", envFile)
	require.NoError(t, err)
	assert.Equal(t, 4, cfg.Server.MaxPlayers)
}

func TestLoad_MissingDotEnvIgnored(t *testing.T) {
	_, err := Load("", filepath.Join(t.TempDir(), "absent.env"))
	assert.NoError(t, err)
}

func TestLoad_MissingConfigFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.json"), "")
	assert.Error(t, err)
}

func TestLoad_InvalidValues(t *testing.T) {
	t.Setenv("FPSYNC_SERVER_TICKPERIOD", "0s")
	_, err := Load("", "")
	assert.Error(t, err)
}

func TestLoad_MaxPlayersBoundedByDatagram(t *testing.T) {
	t.Setenv("FPSYNC_SERVER_MAXPLAYERS", strconv.Itoa(protocol.MaxSnapshotPlayers))
	cfg, err := Load("", "")
	require.NoError(t, err)
	assert.Equal(t, protocol.MaxSnapshotPlayers, cfg.Server.MaxPlayers)

	t.Setenv("FPSYNC_SERVER_MAXPLAYERS", strconv.Itoa(protocol.MaxSnapshotPlayers+1))
	_, err = Load("", "")
	assert.ErrorContains(t, err, "maxPlayers")
}
