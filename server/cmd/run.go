package cmd

import (
	server "github.com/gregriff/vocall/server/internal"
	"github.com/gregriff/vocall/server/configs"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// runCmd represents the run command.
var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the vocall server",
	Args:  cobra.NoArgs,
	RunE:  runServer,
}

func init() {
	rootCmd.AddCommand(runCmd)

	runCmd.Flags().String("host", "", "interface to listen on")
	runCmd.Flags().Int("port", 8080, "port to listen on")
	_ = viper.BindPFlag(configs.KeyHost, runCmd.Flags().Lookup("host"))
	_ = viper.BindPFlag(configs.KeyPort, runCmd.Flags().Lookup("port"))
}

func runServer(_ *cobra.Command, _ []string) error {
	host, port := viper.GetString(configs.KeyHost), viper.GetInt(configs.KeyPort)

	return server.CreateAndListen(configs.DatabasePath(), host, port, server.Options{
		Debug:          viper.GetBool(configs.KeyDebug),
		AllowedOrigins: viper.GetStringSlice(configs.KeyAllowedOrigins),
		SignalRate:     viper.GetFloat64(configs.KeySignalRate),
		SignalBurst:    viper.GetInt(configs.KeySignalBurst),
	})
}
