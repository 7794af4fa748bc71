package cmd

import (
	"context"
	"errors"
	"fmt"

	"github.com/gregriff/vocall/cli/configs"
	"github.com/gregriff/vocall/cli/internal/call"
	"github.com/gregriff/vocall/cli/internal/capture"
	"github.com/gregriff/vocall/cli/internal/services/signaling"
	"github.com/gregriff/vocall/cli/internal/services/vocall"
	"github.com/gregriff/vocall/cli/internal/wrtc"
	"github.com/spf13/viper"
)

// client is everything a running call command holds on to.
type client struct {
	self     call.Participant
	sessions *vocall.Client
	ws       *signaling.Websocket
	engine   *wrtc.Engine
	machine  *call.Machine
}

// connect dials the signaling channel and starts a call machine for the configured user.
func connect(ctx context.Context) (*client, error) {
	self := configs.Identity()
	if self.ID == "" {
		return nil, fmt.Errorf("user id not found. run `vocall identify` or set it in %s", ConfigFile)
	}
	server := viper.GetString(configs.KeyServer)
	if server == "" {
		return nil, errors.New("vocall server address not set")
	}

	ws, err := signaling.Dial(ctx, server, self.ID)
	if err != nil {
		return nil, err
	}

	var devices wrtc.Devices = capture.Devices{StreamID: self.ID}
	if viper.GetBool(configs.KeyNullMedia) {
		devices = &wrtc.NullDevices{}
	}
	engine, err := wrtc.NewEngine(configs.WebRTC(), self.ID, ws, devices)
	if err != nil {
		ws.Close()
		return nil, fmt.Errorf("error creating media engine: %w", err)
	}

	sessions := vocall.NewClient(server, self.ID)
	return &client{
		self:     self,
		sessions: sessions,
		ws:       ws,
		engine:   engine,
		machine:  call.New(configs.Call(), self, engine, sessions, ws),
	}, nil
}

// Close hangs up and releases everything.
func (c *client) Close() {
	c.machine.Close()
	c.engine.Close()
	if err := c.ws.Close(); err != nil {
		log.Debugf("error closing websocket: %v", err)
	}
}
