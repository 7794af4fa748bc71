package configs

import (
	"github.com/gregriff/vocall/cli/internal/call"
	"github.com/gregriff/vocall/cli/internal/wrtc"
	"github.com/spf13/viper"
)

// WebRTC returns the peer connection settings.
func WebRTC() wrtc.Config {
	return wrtc.Config{
		ICEServers:             viper.GetStringSlice(KeySTUNOrigins),
		ReceiveMTU:             viper.GetUint(KeyReceiveMTU),
		ICEDisconnectedTimeout: viper.GetDuration(KeyICEDisconnectedTimeout),
		ICEFailedTimeout:       viper.GetDuration(KeyICEFailedTimeout),
		ICEKeepalive:           viper.GetDuration(KeyICEKeepalive),
	}
}

// Call returns the call state machine settings.
func Call() call.Config {
	return call.Config{RingTimeout: viper.GetDuration(KeyRingTimeout)}
}

// Identity returns the configured local user.
func Identity() call.Participant {
	return call.Participant{ID: viper.GetString(KeyUserID), Name: viper.GetString(KeyUserName)}
}
