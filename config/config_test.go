package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/marcelsud/dmz-exchange/message"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetConfig(t *testing.T) {
	t.Run("success - defaults", func(t *testing.T) {
		t.Chdir(t.TempDir())
		t.Setenv("CONFIG_FILE", "")

		cfg, err := GetConfig()
		require.NoError(t, err)
		assert.Equal(t, "8000", cfg.Port)
		assert.Equal(t, "./data/messages", cfg.MasterDir)
		assert.Equal(t, 30*time.Second, cfg.GatewayTimeout)
		assert.Equal(t, int64(1<<20), cfg.MaxBodyBytes)

		v, err := cfg.Variant()
		require.NoError(t, err)
		assert.Equal(t, message.Strict, v)
	})

	t.Run("success - environment beats file beats defaults", func(t *testing.T) {
		dir := t.TempDir()
		file := filepath.Join(dir, "node.json")
		require.NoError(t, os.WriteFile(file, []byte(`{
			"PORT": "9000",
			"NODE_VARIANT": "lowside",
			"GATEWAY_URL": "http://file-gateway:8080"
		}`), 0o600))
		t.Setenv("CONFIG_FILE", file)
		t.Setenv("GATEWAY_URL", "http://env-gateway:8080")
		t.Setenv("GATEWAY_TIMEOUT", "5s")

		cfg, err := GetConfig()
		require.NoError(t, err)
		assert.Equal(t, "9000", cfg.Port)
		assert.Equal(t, "http://env-gateway:8080", cfg.GatewayURL)
		assert.Equal(t, 5*time.Second, cfg.GatewayTimeout)

		v, err := cfg.Variant()
		require.NoError(t, err)
		assert.Equal(t, message.Permissive, v)
	})

	t.Run("error - missing config file", func(t *testing.T) {
		t.Setenv("CONFIG_FILE", filepath.Join(t.TempDir(), "missing.json"))
		_, err := GetConfig()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "reading config file")
	})

	t.Run("error - unknown variant", func(t *testing.T) {
		t.Chdir(t.TempDir())
		t.Setenv("CONFIG_FILE", "")
		t.Setenv("NODE_VARIANT", "dmz")
		_, err := GetConfig()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "validating config")
	})
}
