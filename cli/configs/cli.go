// Package configs contains the logic to obtain app configuration from a file or the environment
package configs

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	_ "embed" // used to embed the default application config file.

	"github.com/adrg/xdg"
	logging "github.com/ipfs/go-log/v2"
	"github.com/pelletier/go-toml/v2"
	"github.com/spf13/viper"
)

var log = logging.Logger("configs")

//go:embed vocall.toml
var defaultConfigFile []byte

// config keys
const (
	KeyUserID   = "user.id"
	KeyUserName = "user.name"

	KeyServer      = "servers.vocall"
	KeySTUNOrigins = "servers.stun-origins"

	KeyRingTimeout = "call.ring-timeout"
	KeyNullMedia   = "call.null-media"

	KeyReceiveMTU             = "webrtc.receive-mtu"
	KeyICEDisconnectedTimeout = "webrtc.ice-disconnected-timeout"
	KeyICEFailedTimeout       = "webrtc.ice-failed-timeout"
	KeyICEKeepalive           = "webrtc.ice-keepalive"

	KeyLogLevel = "log-level"
)

// InitConfig initializes the app config with Viper from the environment, a specified file, or a default file.
// A missing file is created from the embedded default.
func InitConfig(file string) error {
	if file == "" {
		panic("dev error, InitConfig should always be passed a valid config filepath")
	}
	viper.SetConfigName("vocall")
	viper.SetConfigType("toml")

	// allow env vars to override config file, VOCALL_CALL_RING_TIMEOUT sets call.ring-timeout
	viper.SetEnvPrefix("vocall")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_", ".", "_"))
	viper.AutomaticEnv()
	viper.SetConfigFile(file)

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
	if runtime.GOOS == "darwin" && os.Getenv("XDG_CONFIG_HOME") == "" {
		home, _ := os.UserHomeDir()
		xdgConfigHome = filepath.Join(home, ".config") // override for mac
	} else {
		xdgConfigHome = xdg.ConfigHome
	}

	appConfigDir := filepath.Join(xdgConfigHome, "vocall")
	if err := os.MkdirAll(appConfigDir, 0o750); err != nil {
		log.Fatalf("error creating application config directory (%s): %v", appConfigDir, err)
	}
	return appConfigDir
}

// PersistIdentityToConfig records the local user's id and display name in the config file,
// keeping every other setting.
func PersistIdentityToConfig(filename, userID, name string) error {
	data, err := os.ReadFile(filename)
	if err != nil {
		return errors.New("config file not found! developer error")
	}

	// loads entire config
	var config map[string]any
	if err := toml.Unmarshal(data, &config); err != nil {
		return fmt.Errorf("error parsing config file: %w", err)
	}
	if config == nil {
		config = make(map[string]any)
	}
	user, _ := config["user"].(map[string]any)
	if user == nil {
		user = make(map[string]any)
	}
	user["id"] = userID
	user["name"] = name
	config["user"] = user

	data, err = toml.Marshal(config)
	if err != nil {
		return fmt.Errorf("marshaling error: %w", err)
	}
	return os.WriteFile(filename, data, 0o600)
}
