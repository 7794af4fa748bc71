// Package configs contains the logic to obtain app configuration from a file or the environment
package configs

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	_ "embed" // used to embed the default application config file.

	"github.com/adrg/xdg"
	logging "github.com/ipfs/go-log/v2"
	"github.com/spf13/viper"
)

var log = logging.Logger("configs")

//go:embed vocall-server.toml
var defaultConfigFile []byte

// config keys
const (
	KeyHost           = "host"
	KeyPort           = "port"
	KeyDatabasePath   = "database.path"
	KeyAllowedOrigins = "cors.allowed-origins"
	KeySignalRate     = "signaling.rate"
	KeySignalBurst    = "signaling.burst"
	KeyLogLevel       = "log-level"
	KeyDebug          = "debug"
)

// InitConfig initializes the app config with Viper from the environment, a specified file, or a default file.
func InitConfig(file string) error {
	if file == "" {
		panic("dev error, InitConfig should always be passed a valid config filepath")
	}
	viper.SetConfigName("vocall-server")
	viper.SetConfigType("toml")

	// allow env vars to override config file, VOCALL_SERVER_SIGNALING_RATE sets signaling.rate
	viper.SetEnvPrefix("vocall_server")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_", ".", "_"))
	viper.AutomaticEnv()
	viper.SetConfigFile(file)

	// if config file does not exist, create it with the embedded default config
	if _, err := os.Stat(file); err != nil {
		log.Infof("config file not found (%s)", file)
		if err := viper.ReadConfig(bytes.NewBuffer(defaultConfigFile)); err != nil {
			return fmt.Errorf("error reading default embedded config file: %w", err)
		}
		log.Infof("writing new config file (%s)", file)
		if err := os.WriteFile(file, defaultConfigFile, 0o600); err != nil {
			return fmt.Errorf("error writing default config: %w", err)
		}
		return nil
	}

	if err := viper.ReadInConfig(); err != nil {
		return fmt.Errorf("error reading config file: %w", err)
	}
	return nil
}

// GetConfigDir obtains the configuration directory in a cross-platform manner,
// always respecting the XDG_CONFIG_HOME env var, using standard defaults on all OS's,
// but overriding to ~/.config on macOS
func GetConfigDir() string {
	var xdgConfigHome string
	if envVar := os.Getenv("XDG_CONFIG_HOME"); envVar != "" {
		xdgConfigHome = envVar
	} else if runtime.GOOS == "darwin" {
		home, _ := os.UserHomeDir()
		xdgConfigHome = filepath.Join(home, ".config") // override for mac
	} else {
		xdgConfigHome = xdg.ConfigHome
	}

	appConfigDir := filepath.Join(xdgConfigHome, "vocall-server")
	if err := os.MkdirAll(appConfigDir, 0o750); err != nil {
		log.Fatalf("error creating application config directory (%s): %v", appConfigDir, err)
	}
	return appConfigDir
}

// DatabasePath is the configured sqlite file, defaulting to the XDG data dir.
// Note: xdg.DataHome is ~/Library/Application Support by default on macOS
func DatabasePath() string {
	if path := viper.GetString(KeyDatabasePath); path != "" {
		return path
	}
	return filepath.Join(xdg.DataHome, "vocall-server", "vocall-server.sqlite")
}
