// package wrtc wraps pion webrtc capabilities. Its Engine owns every peer connection
// of a call and the local capture stream they share.
package wrtc

import (
	"fmt"
	"time"

	"github.com/pion/interceptor"
	"github.com/pion/webrtc/v4"
)

// OpusCodec is the audio codec every local audio track is encoded with.
var OpusCodec = webrtc.RTPCodecCapability{
	MimeType:    webrtc.MimeTypeOpus,
	ClockRate:   48_000,
	Channels:    2,
	SDPFmtpLine: "minptime=10;useinbandfec=1",
}

// VP8Codec is the video codec every local video track is encoded with.
var VP8Codec = webrtc.RTPCodecCapability{
	MimeType:  webrtc.MimeTypeVP8,
	ClockRate: 90_000,
	RTCPFeedback: []webrtc.RTCPFeedback{
		{Type: "goog-remb"},
		{Type: "ccm", Parameter: "fir"},
		{Type: "nack"},
		{Type: "nack", Parameter: "pli"},
	},
}

// Config holds what is needed to build peer connections.
type Config struct {
	ICEServers []string

	// receive MTU of each connection, 0 keeps pion's default
	ReceiveMTU uint

	// ICE timeouts, zero values keep pion's defaults
	ICEDisconnectedTimeout,
	ICEFailedTimeout,
	ICEKeepalive time.Duration
}

// NewAPI builds a webrtc.API registering the opus and VP8 codecs and the default
// interceptors (NACK, RTCP reports, TWCC).
func NewAPI(cfg Config) (*webrtc.API, error) {
	mediaEngine := &webrtc.MediaEngine{}
	audio := webrtc.RTPCodecParameters{
		RTPCodecCapability: OpusCodec,
		PayloadType:        111,
	}
	if err := mediaEngine.RegisterCodec(audio, webrtc.RTPCodecTypeAudio); err != nil {
		return nil, fmt.Errorf("error registering opus codec: %w", err)
	}
	video := webrtc.RTPCodecParameters{
		RTPCodecCapability: VP8Codec,
		PayloadType:        96,
	}
	if err := mediaEngine.RegisterCodec(video, webrtc.RTPCodecTypeVideo); err != nil {
		return nil, fmt.Errorf("error registering vp8 codec: %w", err)
	}

	interceptorRegistry := &interceptor.Registry{}
	if err := webrtc.RegisterDefaultInterceptors(mediaEngine, interceptorRegistry); err != nil {
		return nil, fmt.Errorf("error registering interceptors: %w", err)
	}

	settingEngine := webrtc.SettingEngine{}
	if cfg.ReceiveMTU > 0 {
		// prevents packet size overruns
		settingEngine.SetReceiveMTU(cfg.ReceiveMTU)
	}
	if cfg.ICEDisconnectedTimeout > 0 || cfg.ICEFailedTimeout > 0 || cfg.ICEKeepalive > 0 {
		disconnected, failed, keepalive := cfg.ICEDisconnectedTimeout, cfg.ICEFailedTimeout, cfg.ICEKeepalive
		if disconnected == 0 {
			disconnected = 5 * time.Second
		}
		if failed == 0 {
			failed = 25 * time.Second
		}
		if keepalive == 0 {
			keepalive = 2 * time.Second
		}
		settingEngine.SetICETimeouts(disconnected, failed, keepalive)
	}

	return webrtc.NewAPI(
		webrtc.WithMediaEngine(mediaEngine),
		webrtc.WithInterceptorRegistry(interceptorRegistry),
		webrtc.WithSettingEngine(settingEngine),
	), nil
}

// configuration returns the per-connection configuration for cfg.
func (cfg Config) configuration() webrtc.Configuration {
	var servers []webrtc.ICEServer
	for _, url := range cfg.ICEServers {
		if url == "" {
			continue
		}
		servers = append(servers, webrtc.ICEServer{URLs: []string{url}})
	}
	return webrtc.Configuration{ICEServers: servers}
}
