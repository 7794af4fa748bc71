// Package cmd contains the CLI setup and commands exposed to the user
package cmd

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/gregriff/vocall/server/configs"
	logging "github.com/ipfs/go-log/v2"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var log = logging.Logger("cmd")

var ConfigFile string

// rootCmd represents the base command when called without any subcommands.
var rootCmd = &cobra.Command{
	Use:          "vocall-server",
	Short:        "Rings vocall users and relays the WebRTC signals of their calls",
	SilenceUsage: true,
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}

func init() {
	// deferring this allows user to override config path with cli option
	cobra.OnInitialize(func() {
		if err := configs.InitConfig(ConfigFile); err != nil {
			fmt.Println(err)
			os.Exit(1)
		}
		level := viper.GetString(configs.KeyLogLevel)
		if viper.GetBool(configs.KeyDebug) {
			level = "debug"
		} else if level == "" {
			level = "info"
		}
		if err := logging.SetLogLevel("*", level); err != nil {
			fmt.Printf("invalid log level %q: %v\n", level, err)
		}
		log.Infof("using config file: %s", ConfigFile)
	})

	defaultConfigFilePath := filepath.Join(configs.GetConfigDir(), "vocall-server.toml")
	rootCmd.PersistentFlags().StringVar(&ConfigFile, "config", defaultConfigFilePath, "config file")
	rootCmd.PersistentFlags().String("log-level", "", "log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().Bool("debug", false, "log every request")
	rootCmd.PersistentFlags().String("database", "", "path of the sqlite user directory")

	_ = viper.BindPFlag(configs.KeyLogLevel, rootCmd.PersistentFlags().Lookup("log-level"))
	_ = viper.BindPFlag(configs.KeyDebug, rootCmd.PersistentFlags().Lookup("debug"))
	_ = viper.BindPFlag(configs.KeyDatabasePath, rootCmd.PersistentFlags().Lookup("database"))
}
