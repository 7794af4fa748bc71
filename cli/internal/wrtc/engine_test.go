package wrtc

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/gregriff/vocall/internal/public"
	"github.com/pion/webrtc/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const hostCandidate = "candidate:1 1 udp 2130706431 127.0.0.1 50000 typ host"

type recordingSender struct {
	mu   sync.Mutex
	sent []*public.Envelope
	err  error
}

func (s *recordingSender) Send(_ string, env *public.Envelope) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	cp := *env
	s.sent = append(s.sent, &cp)
	return nil
}

func (s *recordingSender) ofType(t public.SignalType) []*public.Envelope {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*public.Envelope
	for _, env := range s.sent {
		if env.Type == t {
			out = append(out, env)
		}
	}
	return out
}

// gatedDevices blocks Open until release is closed.
type gatedDevices struct {
	NullDevices
	release chan struct{}
	last    *NullStream
	mu      sync.Mutex
}

func (d *gatedDevices) Open(ctx context.Context, video bool) (LocalStream, error) {
	select {
	case <-d.release:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	s, err := d.NullDevices.Open(ctx, video)
	if err != nil {
		return nil, err
	}
	d.mu.Lock()
	d.last = s.(*NullStream)
	d.mu.Unlock()
	return s, nil
}

type deniedDevices struct{}

func (deniedDevices) Open(context.Context, bool) (LocalStream, error) {
	return nil, errors.New("permission denied")
}

func newTestEngine(t *testing.T, self string, devices Devices) (*Engine, *recordingSender) {
	t.Helper()
	out := &recordingSender{}
	e, err := NewEngine(Config{}, self, out, devices)
	require.NoError(t, err)
	t.Cleanup(e.Close)
	return e, out
}

// negotiate runs a full offer/answer between a and b for session s1.
func negotiate(t *testing.T, a *Engine, aOut *recordingSender, b *Engine) {
	t.Helper()
	ctx := context.Background()

	require.NoError(t, a.CreateOffer(ctx, "bob", "s1"))
	offers := aOut.ofType(public.SignalOffer)
	require.Len(t, offers, 1)

	var offer webrtc.SessionDescription
	ok, err := offers[0].DecodeData(&offer)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, webrtc.SDPTypeOffer, offer.Type)

	answer, stream, err := b.HandleOffer(ctx, offer, "alice", "s1")
	require.NoError(t, err)
	require.NotNil(t, stream)
	require.Equal(t, webrtc.SDPTypeAnswer, answer.Type)

	require.NoError(t, a.HandleAnswer(answer, "bob"))
}

func TestLocalStreamIsSharedAcrossCallers(t *testing.T) {
	devices := &gatedDevices{release: make(chan struct{})}
	e, _ := newTestEngine(t, "alice", devices)

	const callers = 5
	var (
		wg      sync.WaitGroup
		streams = make([]LocalStream, callers)
		errs    = make([]error, callers)
	)
	for i := range callers {
		wg.Go(func() {
			streams[i], errs[i] = e.LocalStream(context.Background(), false)
		})
	}
	time.Sleep(50 * time.Millisecond)
	close(devices.release)
	wg.Wait()

	for i := range callers {
		require.NoError(t, errs[i])
		assert.Same(t, streams[0], streams[i])
	}
	assert.Equal(t, 1, devices.Opened())

	again, err := e.LocalStream(context.Background(), true)
	require.NoError(t, err)
	assert.Same(t, streams[0], again, "cached stream is returned even if video is asked for later")
	assert.Equal(t, 1, devices.Opened())
}

func TestLocalStreamResolvingAfterCloseAllIsStopped(t *testing.T) {
	devices := &gatedDevices{release: make(chan struct{})}
	e, _ := newTestEngine(t, "alice", devices)

	done := make(chan error, 1)
	go func() {
		_, err := e.LocalStream(context.Background(), false)
		done <- err
	}()
	time.Sleep(50 * time.Millisecond)

	e.CloseAll()
	close(devices.release)

	err := <-done
	require.ErrorIs(t, err, ErrStale)
	assert.False(t, e.HasLocalStream())

	devices.mu.Lock()
	defer devices.mu.Unlock()
	require.NotNil(t, devices.last)
	assert.True(t, devices.last.Stopped(), "a stream opened after teardown must not outlive it")
}

func TestLocalStreamMediaAccessError(t *testing.T) {
	e, _ := newTestEngine(t, "alice", deniedDevices{})

	_, err := e.LocalStream(context.Background(), true)
	require.ErrorIs(t, err, ErrMediaAccess)
	assert.Contains(t, err.Error(), "permission denied")
	assert.False(t, e.HasLocalStream())

	err = e.CreateOffer(context.Background(), "bob", "s1")
	assert.ErrorIs(t, err, ErrMediaAccess)
	assert.Empty(t, e.Peers(), "no connection is registered without media")
}

func TestOfferAnswer(t *testing.T) {
	a, aOut := newTestEngine(t, "alice", &NullDevices{})
	b, _ := newTestEngine(t, "bob", &NullDevices{})

	negotiate(t, a, aOut, b)

	assert.Equal(t, []string{"bob"}, a.Peers())
	assert.Equal(t, []string{"alice"}, b.Peers())
	assert.True(t, a.HasLocalStream())
	assert.True(t, b.HasLocalStream())

	offer := aOut.ofType(public.SignalOffer)[0]
	assert.Equal(t, "s1", offer.SessionID)
	assert.Equal(t, "alice", offer.SenderID)
	assert.Equal(t, "bob", offer.TargetID)

	aOut.mu.Lock()
	first := aOut.sent[0].Type
	aOut.mu.Unlock()
	assert.Equal(t, public.SignalOffer, first, "no candidate may precede the offer")
}

func TestDuplicateCandidate(t *testing.T) {
	a, aOut := newTestEngine(t, "alice", &NullDevices{})
	b, _ := newTestEngine(t, "bob", &NullDevices{})
	negotiate(t, a, aOut, b)

	c := &webrtc.ICECandidateInit{Candidate: hostCandidate}
	require.NoError(t, a.HandleCandidate(c, "bob"))
	require.NoError(t, a.HandleCandidate(c, "bob"))
	assert.Equal(t, []string{"bob"}, a.Peers(), "no second entry for the same peer")
}

func TestCandidateBeforeAnswerIsQueued(t *testing.T) {
	a, aOut := newTestEngine(t, "alice", &NullDevices{})
	b, _ := newTestEngine(t, "bob", &NullDevices{})

	require.NoError(t, a.CreateOffer(context.Background(), "bob", "s1"))
	require.NoError(t, a.HandleCandidate(&webrtc.ICECandidateInit{Candidate: hostCandidate}, "bob"))

	var offer webrtc.SessionDescription
	_, err := aOut.ofType(public.SignalOffer)[0].DecodeData(&offer)
	require.NoError(t, err)
	answer, _, err := b.HandleOffer(context.Background(), offer, "alice", "s1")
	require.NoError(t, err)
	require.NoError(t, a.HandleAnswer(answer, "bob"))

	p := a.lookup("bob")
	require.NotNil(t, p)
	p.mu.Lock()
	defer p.mu.Unlock()
	assert.True(t, p.remoteSet)
	assert.Empty(t, p.pending, "queued candidates are applied once the answer lands")
}

func TestEndOfCandidatesAndUnregisteredPeers(t *testing.T) {
	e, _ := newTestEngine(t, "alice", &NullDevices{})

	assert.NoError(t, e.HandleCandidate(nil, "bob"))
	assert.NoError(t, e.HandleCandidate(&webrtc.ICECandidateInit{}, "bob"))
	assert.NoError(t, e.HandleCandidate(&webrtc.ICECandidateInit{Candidate: hostCandidate}, "bob"))
	assert.NoError(t, e.HandleAnswer(webrtc.SessionDescription{Type: webrtc.SDPTypeAnswer}, "bob"))
	assert.Empty(t, e.Peers())
}

func TestRenegotiationReplacesEntry(t *testing.T) {
	a, _ := newTestEngine(t, "alice", &NullDevices{})

	require.NoError(t, a.CreateOffer(context.Background(), "bob", "s1"))
	first := a.lookup("bob")
	require.NoError(t, a.CreateOffer(context.Background(), "bob", "s1"))

	assert.Equal(t, []string{"bob"}, a.Peers())
	assert.NotSame(t, first, a.lookup("bob"))
	assert.Equal(t, webrtc.PeerConnectionStateClosed, first.pc.ConnectionState())
}

func TestCloseAll(t *testing.T) {
	devices := &gatedDevices{release: make(chan struct{})}
	close(devices.release)
	a, aOut := newTestEngine(t, "alice", devices)
	b, _ := newTestEngine(t, "bob", &NullDevices{})
	negotiate(t, a, aOut, b)

	a.CloseAll()
	assert.Empty(t, a.Peers())
	assert.False(t, a.HasLocalStream())
	devices.mu.Lock()
	assert.True(t, devices.last.Stopped())
	devices.mu.Unlock()

	a.CloseAll()
	assert.Empty(t, a.Peers())

	assert.NoError(t, a.HandleAnswer(webrtc.SessionDescription{Type: webrtc.SDPTypeAnswer}, "bob"),
		"a late answer after teardown is dropped")
}

func TestCreateOfferTransportError(t *testing.T) {
	a, aOut := newTestEngine(t, "alice", &NullDevices{})
	sendErr := errors.New("not connected")
	aOut.err = sendErr

	err := a.CreateOffer(context.Background(), "bob", "s1")
	assert.ErrorIs(t, err, sendErr)
}

// senderTrack returns the track currently bound to the sender of kind.
func senderTrack(t *testing.T, p *peer, kind webrtc.RTPCodecType) webrtc.TrackLocal {
	t.Helper()
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, s := range p.senders {
		if s.track.Kind() == kind {
			return s.sender.Track()
		}
	}
	t.Fatalf("no %s sender", kind)
	return nil
}

func TestSetEnabled(t *testing.T) {
	a, aOut := newTestEngine(t, "alice", &NullDevices{})
	b, _ := newTestEngine(t, "bob", &NullDevices{})

	_, err := a.LocalStream(context.Background(), true)
	require.NoError(t, err)
	_, err = b.LocalStream(context.Background(), true)
	require.NoError(t, err)
	a.SetEnabled(webrtc.RTPCodecTypeAudio, false)
	b.SetEnabled(webrtc.RTPCodecTypeVideo, false)
	negotiate(t, a, aOut, b)

	p := a.lookup("bob")
	require.NotNil(t, p)
	assert.Nil(t, senderTrack(t, p, webrtc.RTPCodecTypeAudio), "muted before the connection existed")
	assert.NotNil(t, senderTrack(t, p, webrtc.RTPCodecTypeVideo))

	q := b.lookup("alice")
	require.NotNil(t, q)
	assert.NotNil(t, senderTrack(t, q, webrtc.RTPCodecTypeAudio))
	assert.Nil(t, senderTrack(t, q, webrtc.RTPCodecTypeVideo), "camera off before answering")

	a.SetEnabled(webrtc.RTPCodecTypeAudio, true)
	a.SetEnabled(webrtc.RTPCodecTypeVideo, false)
	assert.NotNil(t, senderTrack(t, p, webrtc.RTPCodecTypeAudio))
	assert.Nil(t, senderTrack(t, p, webrtc.RTPCodecTypeVideo))
}

func TestSetEnabledBeforeAnswer(t *testing.T) {
	a, aOut := newTestEngine(t, "alice", &NullDevices{})
	b, _ := newTestEngine(t, "bob", &NullDevices{})
	ctx := context.Background()

	require.NoError(t, a.CreateOffer(ctx, "bob", "s1"))
	a.SetEnabled(webrtc.RTPCodecTypeAudio, false)

	p := a.lookup("bob")
	require.NotNil(t, p)
	assert.NotNil(t, senderTrack(t, p, webrtc.RTPCodecTypeAudio), "senders keep their track until started")

	var offer webrtc.SessionDescription
	_, err := aOut.ofType(public.SignalOffer)[0].DecodeData(&offer)
	require.NoError(t, err)
	answer, _, err := b.HandleOffer(ctx, offer, "alice", "s1")
	require.NoError(t, err)
	require.NoError(t, a.HandleAnswer(answer, "bob"), "muting while the offer is out must not break the answer")

	assert.Nil(t, senderTrack(t, p, webrtc.RTPCodecTypeAudio))
	a.SetEnabled(webrtc.RTPCodecTypeAudio, true)
	assert.NotNil(t, senderTrack(t, p, webrtc.RTPCodecTypeAudio))
}
