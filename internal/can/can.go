// Package can writes classic CAN frames to raw sockets. One socket is kept
// per interface and shared by every output on it.
package can

import (
	"encoding/binary"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/rs/zerolog/log"
)

const (
	// MaxData is the payload size of a classic CAN frame.
	MaxData = 8
	// FrameSize is the size of struct can_frame.
	FrameSize = 16

	maxStandardID = 0x7FF
	maxExtendedID = 0x1FFFFFFF
	effFlag       = 0x80000000
)

var (
	ErrPoolClosed = errors.New("can pool closed")
	ErrFrameSize  = errors.New("can payload longer than 8 bytes")
	ErrIdentifier = errors.New("can identifier out of range")
)

// Frame is one classic CAN frame.
type Frame struct {
	ID   uint32
	Data []byte
}

// Marshal encodes f as struct can_frame. Identifiers above 0x7FF are sent
// in extended format.
func (f Frame) Marshal() ([]byte, error) {
	if len(f.Data) > MaxData {
		return nil, ErrFrameSize
	}
	if f.ID > maxExtendedID {
		return nil, fmt.Errorf("%w: 0x%X", ErrIdentifier, f.ID)
	}
	id := f.ID
	if id > maxStandardID {
		id |= effFlag
	}
	buf := make([]byte, FrameSize)
	binary.LittleEndian.PutUint32(buf[0:4], id)
	buf[4] = byte(len(f.Data))
	copy(buf[8:], f.Data)
	return buf, nil
}

// Unmarshal decodes a struct can_frame.
func Unmarshal(buf []byte) (Frame, error) {
	if len(buf) != FrameSize {
		return Frame{}, fmt.Errorf("can frame is %d bytes, want %d", len(buf), FrameSize)
	}
	n := int(buf[4])
	if n > MaxData {
		return Frame{}, ErrFrameSize
	}
	id := binary.LittleEndian.Uint32(buf[0:4]) &^ effFlag
	return Frame{ID: id, Data: append([]byte(nil), buf[8:8+n]...)}, nil
}

// Bus is a socket bound to one interface.
type Bus interface {
	Write(f Frame) error
	Close() error
}

// OpenFunc binds a socket to the named interface.
type OpenFunc func(iface string) (Bus, error)

// Pool hands out one shared Bus per interface.
type Pool struct {
	mu     sync.Mutex
	open   OpenFunc
	buses  map[string]Bus
	closed bool
}

func NewPool(open OpenFunc) *Pool {
	return &Pool{open: open, buses: make(map[string]Bus)}
}

// Get returns the socket for iface, binding it on first use.
func (p *Pool) Get(iface string) (Bus, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return nil, ErrPoolClosed
	}
	if b, ok := p.buses[iface]; ok {
		return b, nil
	}
	b, err := p.open(iface)
	if err != nil {
		return nil, fmt.Errorf("open can interface %s: %w", iface, err)
	}
	p.buses[iface] = b
	log.Info().Str("interface", iface).Msg("Opened CAN socket")
	return b, nil
}

// Close closes every socket. Later Get calls fail.
func (p *Pool) Close() error {
	p.mu.Lock()
	buses := p.buses
	p.buses = make(map[string]Bus)
	p.closed = true
	p.mu.Unlock()

	names := make([]string, 0, len(buses))
	for n := range buses {
		names = append(names, n)
	}
	sort.Strings(names)

	var errs []error
	for _, n := range names {
		if err := buses[n].Close(); err != nil {
			errs = append(errs, fmt.Errorf("close can interface %s: %w", n, err))
		}
	}
	return errors.Join(errs...)
}
