package cmd

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/gregriff/vocall/cli/internal/audio"
	"github.com/gregriff/vocall/cli/internal/call"
	"github.com/pion/webrtc/v4"
)

// command is a line typed by the user during a call.
type command string

const (
	cmdAccept  command = "a"
	cmdDecline command = "d"
	cmdHangUp  command = "e"
	cmdMute    command = "m"
	cmdVideo   command = "v"
)

const keyHelp = "[a]ccept [d]ecline [e]nd [m]ute [v]ideo"

// machine is the part of *call.Machine the presenter drives.
type machine interface {
	AcceptCall() error
	DeclineCall() error
	EndCall() error
	ToggleMute() error
	ToggleVideo() error
}

// presenter renders call state to a terminal, plays remote audio and turns typed
// commands into call intents.
type presenter struct {
	m   machine
	out io.Writer

	autoAccept bool
	// whether remote audio is played on the output device
	playback bool

	last     call.State
	inCall   bool
	playing  map[*webrtc.TrackRemote]context.CancelFunc
	players  sync.WaitGroup
	accepted string
}

func newPresenter(m machine, out io.Writer, playback bool) *presenter {
	return &presenter{m: m, out: out, playback: playback, playing: make(map[*webrtc.TrackRemote]context.CancelFunc)}
}

// run renders updates until a call has come and gone, or ctx is done. A call still
// in progress when ctx is done is ended.
func (p *presenter) run(ctx context.Context, updates <-chan call.Update, commands <-chan command) error {
	defer p.stopPlayback()
	for {
		select {
		case <-ctx.Done():
			if p.inCall {
				fmt.Fprintln(p.out, "hanging up")
				return p.m.EndCall()
			}
			return nil
		case c, ok := <-commands:
			if !ok {
				commands = nil
				continue
			}
			if err := p.handle(c); err != nil {
				return err
			}
		case u, ok := <-updates:
			if !ok {
				return nil
			}
			if done := p.render(ctx, u); done {
				return nil
			}
		}
	}
}

// render prints what changed and reports whether the call is over.
func (p *presenter) render(ctx context.Context, u call.Update) bool {
	s := u.State
	if s.Phase != p.last.Phase {
		if cue := ringCue(s); cue != "" {
			fmt.Fprintln(p.out, cue)
		}
	}
	if s.Phase != call.PhaseIdle {
		p.inCall = true
	}
	if s.Phase == call.PhaseActive && (s.Muted != p.last.Muted || s.VideoEnabled != p.last.VideoEnabled) && p.last.Phase == call.PhaseActive {
		fmt.Fprintf(p.out, "muted: %t, video: %t\n", s.Muted, s.VideoEnabled)
	}
	if u.Notice != nil {
		fmt.Fprintln(p.out, u.Notice.Message)
	}

	if p.autoAccept && s.Phase == call.PhaseRinging && s.Session != nil && p.accepted != s.Session.ID {
		p.accepted = s.Session.ID
		if err := p.m.AcceptCall(); err != nil {
			log.Warnf("error accepting call: %v", err)
		}
	}
	if p.playback {
		p.playRemoteAudio(ctx, s.RemoteStreams)
	}

	p.last = s
	if s.Phase == call.PhaseIdle && p.inCall {
		p.stopPlayback()
		return true
	}
	return false
}

// ringCue is the line printed when the call enters the phase of s.
func ringCue(s call.State) string {
	switch s.Phase {
	case call.PhaseOutgoing:
		return fmt.Sprintf("calling %s...", s.Remote.Label())
	case call.PhaseRinging:
		what := "call"
		if s.Session != nil {
			what = strings.ToLower(string(s.Session.Type)) + " call"
		}
		from := s.Remote.Label()
		if s.Session != nil && s.Session.IsGroup {
			from = s.Session.Initiator.Label() + " in " + s.Remote.Label()
		}
		return fmt.Sprintf("\aincoming %s from %s  %s", what, from, keyHelp)
	case call.PhaseActive:
		return fmt.Sprintf("in call with %s  %s", s.Remote.Label(), keyHelp)
	case call.PhaseIdle:
		return "call ended"
	}
	return ""
}

func (p *presenter) handle(c command) error {
	switch c {
	case cmdAccept:
		return p.m.AcceptCall()
	case cmdDecline:
		return p.m.DeclineCall()
	case cmdHangUp:
		return p.m.EndCall()
	case cmdMute:
		return p.m.ToggleMute()
	case cmdVideo:
		return p.m.ToggleVideo()
	}
	fmt.Fprintln(p.out, keyHelp)
	return nil
}

func (p *presenter) playRemoteAudio(ctx context.Context, streams map[string]call.RemoteStream) {
	for peer, rs := range streams {
		for _, track := range rs.Tracks {
			if _, ok := p.playing[track]; ok || track.Kind() != webrtc.RTPCodecTypeAudio {
				continue
			}
			player, err := audio.NewPlayer(peer)
			if err != nil {
				log.Errorf("cannot play audio of %s: %v", peer, err)
				p.playing[track] = func() {}
				continue
			}
			playCtx, cancel := context.WithCancel(ctx)
			p.playing[track] = cancel
			p.players.Go(func() {
				defer player.Close()
				if err := player.Play(playCtx, track); err != nil && playCtx.Err() == nil {
					log.Warnf("playback of %s stopped: %v", peer, err)
				}
			})
		}
	}
}

// stopPlayback stops every player. The track reads themselves end when the engine closes the connections.
func (p *presenter) stopPlayback() {
	for track, cancel := range p.playing {
		cancel()
		delete(p.playing, track)
	}
	p.players.Wait()
}

// readCommands turns lines of r into commands until r ends.
func readCommands(r io.Reader) <-chan command {
	out := make(chan command)
	go func() {
		defer close(out)
		scanner := bufio.NewScanner(r)
		for scanner.Scan() {
			line := strings.ToLower(strings.TrimSpace(scanner.Text()))
			if line == "" {
				continue
			}
			out <- command(line[:1])
		}
	}()
	return out
}
