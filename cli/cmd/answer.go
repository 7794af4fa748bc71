package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/gregriff/vocall/cli/configs"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var answerCmd = &cobra.Command{
	Use:   "answer",
	Short: "Wait for a call and answer it",
	Args:  cobra.NoArgs,
	RunE:  waitForCall,
}

func init() {
	answerCmd.Flags().Bool("auto-accept", false, "accept the first incoming call without asking")
	rootCmd.AddCommand(answerCmd)
}

func waitForCall(cmd *cobra.Command, _ []string) error {
	autoAccept, _ := cmd.Flags().GetBool("auto-accept")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	c, err := connect(ctx)
	if err != nil {
		return err
	}
	defer c.Close()

	updates, unsubscribe := c.machine.Subscribe()
	defer unsubscribe()
	fmt.Fprintf(cmd.OutOrStdout(), "waiting for calls to %s\n", c.self.Label())

	p := newPresenter(c.machine, cmd.OutOrStdout(), !viper.GetBool(configs.KeyNullMedia))
	p.autoAccept = autoAccept
	return p.run(ctx, updates, readCommands(cmd.InOrStdin()))
}
