//go:build !linux

package gpio

import "errors"

// CdevDriver is not available on non-Linux platforms.
type CdevDriver struct {
	Consumer string
}

func NewCdevDriver(consumer string) *CdevDriver {
	return &CdevDriver{Consumer: consumer}
}

// Open always fails on non-Linux platforms.
func (d *CdevDriver) Open(path string) (Device, error) {
	return nil, errors.New("gpio: not supported on this platform (requires Linux)")
}
