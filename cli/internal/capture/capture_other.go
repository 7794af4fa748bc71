//go:build !linux

package capture

import "errors"

// openCamera fails: camera capture is only wired for V4L2.
func openCamera(string) (camera, error) {
	return nil, errors.New("camera capture is not supported on this platform")
}
