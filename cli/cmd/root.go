// Package cmd contains the CLI setup and commands exposed to the user
package cmd

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/gregriff/vocall/cli/configs"
	logging "github.com/ipfs/go-log/v2"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var log = logging.Logger("cmd")

var ConfigFile string

// rootCmd represents the base command when called without any subcommands.
var rootCmd = &cobra.Command{
	Use:   "vocall",
	Short: "Client for P2P voice and video calls via WebRTC",
	Long: `vocall places and answers calls between users of a vocall server.
The server rings participants and relays signaling; media flows peer to peer.`,
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
		if viper.GetBool("debug") {
			level = "debug"
		}
		if err := logging.SetLogLevel("*", level); err != nil {
			fmt.Printf("invalid log level %q: %v\n", level, err)
		}
		log.Debugf("using config file: %s", ConfigFile)
	})

	defaultConfigFilePath := filepath.Join(configs.GetConfigDir(), "vocall.toml")
	rootCmd.PersistentFlags().StringVar(&ConfigFile, "config", defaultConfigFilePath, "config file")

	rootCmd.PersistentFlags().StringSlice("stun-server", nil, "STUN server origins")
	rootCmd.PersistentFlags().String("server", "", "vocall server address")
	rootCmd.PersistentFlags().String("log-level", "", "log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().Bool("debug", false, "print debugging information")
	rootCmd.PersistentFlags().Bool("null-media", false, "send silent tracks instead of opening the microphone and camera")

	// expose to application via viper
	_ = viper.BindPFlag("debug", rootCmd.PersistentFlags().Lookup("debug"))
	_ = viper.BindPFlag(configs.KeySTUNOrigins, rootCmd.PersistentFlags().Lookup("stun-server"))
	_ = viper.BindPFlag(configs.KeyServer, rootCmd.PersistentFlags().Lookup("server"))
	_ = viper.BindPFlag(configs.KeyLogLevel, rootCmd.PersistentFlags().Lookup("log-level"))
	_ = viper.BindPFlag(configs.KeyNullMedia, rootCmd.PersistentFlags().Lookup("null-media"))
}
