// package audio captures and plays PCM with miniaudio, and encodes it to and from opus.
package audio

import (
	"encoding/binary"
	"fmt"

	"github.com/gen2brain/malgo"
	logging "github.com/ipfs/go-log/v2"
)

var log = logging.Logger("audio")

// openDevice initializes a malgo context and starts a device of kind feeding or draining onData.
func openDevice(kind malgo.DeviceType, onData malgo.DataProc) (*malgo.AllocatedContext, *malgo.Device, error) {
	ctx, err := malgo.InitContext(nil, malgo.ContextConfig{}, nil)
	if err != nil {
		return nil, nil, fmt.Errorf("error initializing device context: %w", err)
	}

	deviceConfig := malgo.DefaultDeviceConfig(kind)
	deviceConfig.SampleRate = SampleRate
	deviceConfig.PeriodSizeInMilliseconds = frameDurationMs
	switch kind {
	case malgo.Capture:
		deviceConfig.Capture.Format = AudioFormat
		deviceConfig.Capture.Channels = NumChannels
	case malgo.Playback:
		deviceConfig.Playback.Format = AudioFormat
		deviceConfig.Playback.Channels = NumChannels
		deviceConfig.Alsa.NoMMap = 1
	}

	device, err := malgo.InitDevice(ctx.Context, deviceConfig, malgo.DeviceCallbacks{Data: onData})
	if err != nil {
		releaseDevice(ctx, nil, kind)
		return nil, nil, fmt.Errorf("error creating %s device: %w", deviceName(kind), err)
	}
	if err := device.Start(); err != nil {
		releaseDevice(ctx, device, kind)
		return nil, nil, fmt.Errorf("error starting %s device: %w", deviceName(kind), err)
	}
	return ctx, device, nil
}

func releaseDevice(ctx *malgo.AllocatedContext, device *malgo.Device, kind malgo.DeviceType) {
	if device != nil {
		device.Uninit()
	}
	if err := ctx.Uninit(); err != nil {
		log.Warnf("error uninitializing %s device context: %v", deviceName(kind), err)
	}
	ctx.Free()
	log.Debugf("uninit and freed %s device", deviceName(kind))
}

func deviceName(kind malgo.DeviceType) string {
	if kind == malgo.Capture {
		return "capture"
	}
	return "playback"
}

// bytesToInt16 turns a byte slice of PCM audio into an int16 slice for the opus encoder to use.
func bytesToInt16(b []byte) []int16 {
	result := make([]int16, len(b)/2)
	for i := range result {
		result[i] = int16(binary.LittleEndian.Uint16(b[i*2:]))
	}
	return result
}
