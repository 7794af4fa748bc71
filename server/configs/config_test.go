package configs

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInitConfig(t *testing.T) {
	viper.Reset()
	t.Cleanup(viper.Reset)
	file := filepath.Join(t.TempDir(), "vocall-server.toml")

	require.NoError(t, InitConfig(file))
	_, err := os.Stat(file)
	require.NoError(t, err, "the default config is written on first run")

	assert.Equal(t, 8080, viper.GetInt(KeyPort))
	assert.Equal(t, 50.0, viper.GetFloat64(KeySignalRate))
	assert.Equal(t, 200, viper.GetInt(KeySignalBurst))
	assert.Contains(t, viper.GetStringSlice(KeyAllowedOrigins), "app://vocall")
	assert.Equal(t, "vocall-server.sqlite", filepath.Base(DatabasePath()))

	viper.Reset()
	t.Setenv("VOCALL_SERVER_PORT", "9090")
	t.Setenv("VOCALL_SERVER_DATABASE_PATH", "/tmp/x.sqlite")
	require.NoError(t, InitConfig(file))
	assert.Equal(t, 9090, viper.GetInt(KeyPort))
	assert.Equal(t, "/tmp/x.sqlite", DatabasePath())
}
