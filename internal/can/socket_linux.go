//go:build linux

package can

import (
	"fmt"
	"net"
	"sync"

	"golang.org/x/sys/unix"
)

// Socket is a raw CAN socket bound to one interface.
type Socket struct {
	mu    sync.Mutex
	fd    int
	iface string
}

// OpenSocket binds a CAN_RAW socket to iface.
func OpenSocket(iface string) (Bus, error) {
	ifi, err := net.InterfaceByName(iface)
	if err != nil {
		return nil, fmt.Errorf("lookup interface: %w", err)
	}
	fd, err := unix.Socket(unix.AF_CAN, unix.SOCK_RAW, unix.CAN_RAW)
	if err != nil {
		return nil, fmt.Errorf("socket: %w", err)
	}
	if err := unix.Bind(fd, &unix.SockaddrCAN{Ifindex: ifi.Index}); err != nil {
		_ = unix.Close(fd)
		return nil, fmt.Errorf("bind: %w", err)
	}
	return &Socket{fd: fd, iface: iface}, nil
}

func (s *Socket) Write(f Frame) error {
	buf, err := f.Marshal()
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fd < 0 {
		return fmt.Errorf("write %s: %w", s.iface, net.ErrClosed)
	}
	n, err := unix.Write(s.fd, buf)
	if err != nil {
		return fmt.Errorf("write %s: %w", s.iface, err)
	}
	if n != len(buf) {
		return fmt.Errorf("write %s: short write (%d of %d bytes)", s.iface, n, len(buf))
	}
	return nil
}

func (s *Socket) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fd < 0 {
		return nil
	}
	err := unix.Close(s.fd)
	s.fd = -1
	return err
}
