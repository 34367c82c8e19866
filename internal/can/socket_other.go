//go:build !linux

package can

import "errors"

// OpenSocket is only supported on linux.
func OpenSocket(iface string) (Bus, error) {
	return nil, errors.New("raw CAN sockets require linux")
}
