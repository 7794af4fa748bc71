package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/gregriff/vocall/cli/configs"
	"github.com/gregriff/vocall/cli/internal/services/vocall"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var identifyCmd = &cobra.Command{
	Use:   "identify <user-id>",
	Short: "Set the user this client calls as",
	Long:  "Looks the user up on the vocall server and saves its id and name to the config file.",
	Args:  cobra.ExactArgs(1),
	RunE:  identify,
}

func init() {
	rootCmd.AddCommand(identifyCmd)
}

func identify(cmd *cobra.Command, args []string) error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	server := viper.GetString(configs.KeyServer)
	user, err := vocall.NewClient(server, args[0]).GetUser(ctx, args[0])
	if err != nil {
		return fmt.Errorf("error looking up %s on %s: %w", args[0], server, err)
	}

	if err := configs.PersistIdentityToConfig(ConfigFile, user.ID, user.Name); err != nil {
		return fmt.Errorf("error saving identity: %w", err)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "calling as %s (%s)\n", user.Name, user.ID)
	return nil
}
