package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadRequiresConnectionSettings(t *testing.T) {
	t.Setenv("ZBX_URL", "")
	t.Setenv("ZBX_USER", "")
	t.Setenv("ZBX_PASSWORD", "")

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "ZBX_URL")
}

func TestLoadDefaults(t *testing.T) {
	t.Setenv("ZBX_URL", "https://zabbix.example/api_jsonrpc.php")
	t.Setenv("ZBX_USER", "Admin")
	t.Setenv("ZBX_PASSWORD", "secret")
	t.Setenv("ZBX_TIMEOUT", "")
	t.Setenv("ZBX_OFFLINE_GROUP", "")
	t.Setenv("ZBX_OUTPUT_DIR", "")
	t.Setenv("LOG_LEVEL", "")
	t.Setenv("LOG_FORMAT", "")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 30*time.Second, cfg.Timeout)
	assert.Equal(t, DefaultOfflineGroup, cfg.OfflineGroup)
	assert.Equal(t, "./output", cfg.OutputDir)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, "auto", cfg.LogFormat)
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("ZBX_URL", "https://zabbix.example/api_jsonrpc.php")
	t.Setenv("ZBX_USER", "Admin")
	t.Setenv("ZBX_PASSWORD", "secret")
	t.Setenv("ZBX_TIMEOUT", "90")
	t.Setenv("ZBX_OFFLINE_GROUP", "Offline")
	t.Setenv("ZBX_OUTPUT_DIR", "/tmp/reports")
	t.Setenv("LOG_LEVEL", "debug")
	t.Setenv("LOG_FORMAT", "json")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 90*time.Second, cfg.Timeout)
	assert.Equal(t, "Offline", cfg.OfflineGroup)
	assert.Equal(t, "/tmp/reports", cfg.OutputDir)
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, "json", cfg.LogFormat)
}

func TestLoadRejectsBadTimeout(t *testing.T) {
	t.Setenv("ZBX_URL", "https://zabbix.example/api_jsonrpc.php")
	t.Setenv("ZBX_USER", "Admin")
	t.Setenv("ZBX_PASSWORD", "secret")

	for _, bad := range []string{"abc", "0", "-5"} {
		t.Setenv("ZBX_TIMEOUT", bad)
		_, err := Load()
		assert.Error(t, err, "timeout %q", bad)
	}
}

func TestValidate(t *testing.T) {
	base := Config{
		URL:          "https://z.example",
		Username:     "u",
		Password:     "p",
		Timeout:      time.Second,
		OfflineGroup: "Decommissioned",
	}
	assert.NoError(t, base.Validate())

	noSentinel := base
	noSentinel.OfflineGroup = ""
	assert.Error(t, noSentinel.Validate())

	noCreds := base
	noCreds.Password = ""
	assert.Error(t, noCreds.Validate())
}
