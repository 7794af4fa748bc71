package cmd

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/gregriff/vocall/cli/configs"
	"github.com/gregriff/vocall/cli/internal/call"
	"github.com/gregriff/vocall/internal/public"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var callCmd = &cobra.Command{
	Use:   "call <user-id> [user-id...]",
	Short: "Call a user, or several as a group",
	Args:  cobra.MinimumNArgs(1),
	PreRunE: func(cmd *cobra.Command, args []string) error {
		group, _ := cmd.Flags().GetString("group")
		if len(args) > 1 && group == "" {
			return errors.New("calling several users needs a --group id")
		}
		return nil
	},
	RunE: placeCall,
}

func init() {
	callCmd.Flags().Bool("video", false, "make a video call")
	callCmd.Flags().String("group", "", "group id, makes this a group call")
	rootCmd.AddCommand(callCmd)
}

func placeCall(cmd *cobra.Command, args []string) error {
	video, _ := cmd.Flags().GetBool("video")
	group, _ := cmd.Flags().GetString("group")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	c, err := connect(ctx)
	if err != nil {
		return err
	}
	defer c.Close()

	req := call.CallRequest{
		Target:         call.Participant{ID: args[0]},
		Type:           public.CallAudio,
		IsGroup:        group != "",
		GroupID:        group,
		ParticipantIDs: args,
	}
	if video {
		req.Type = public.CallVideo
	}
	if req.IsGroup {
		req.Target = call.Participant{ID: group, Name: "group " + group}
	} else if user, err := c.sessions.GetUser(ctx, args[0]); err == nil {
		req.Target.Name = user.Name
	} else {
		log.Debugf("cannot look up %s: %v", args[0], err)
	}

	updates, unsubscribe := c.machine.Subscribe()
	defer unsubscribe()
	if err := c.machine.InitiateCall(req); err != nil {
		return err
	}

	p := newPresenter(c.machine, cmd.OutOrStdout(), !viper.GetBool(configs.KeyNullMedia))
	return p.run(ctx, updates, readCommands(cmd.InOrStdin()))
}
