package can

import "sync"

// FakeBus records written frames for test assertions.
type FakeBus struct {
	mu     sync.Mutex
	Iface  string
	Frames []Frame
	// WriteError, if set, will be returned by Write.
	WriteError error
	Closed     bool
}

func (b *FakeBus) Write(f Frame) error {
	if _, err := f.Marshal(); err != nil {
		return err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.WriteError != nil {
		return b.WriteError
	}
	b.Frames = append(b.Frames, Frame{ID: f.ID, Data: append([]byte(nil), f.Data...)})
	return nil
}

func (b *FakeBus) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.Closed = true
	return nil
}

// Written returns a copy of the recorded frames.
func (b *FakeBus) Written() []Frame {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]Frame(nil), b.Frames...)
}

func (b *FakeBus) SetWriteError(err error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.WriteError = err
}

// FakeOpener hands out FakeBuses and remembers them by interface.
type FakeOpener struct {
	mu    sync.Mutex
	Buses map[string]*FakeBus
	Opens int
	// Err, if set, fails every open.
	Err error
}

func NewFakeOpener() *FakeOpener {
	return &FakeOpener{Buses: make(map[string]*FakeBus)}
}

func (o *FakeOpener) Open(iface string) (Bus, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.Err != nil {
		return nil, o.Err
	}
	o.Opens++
	b := &FakeBus{Iface: iface}
	o.Buses[iface] = b
	return b, nil
}

func (o *FakeOpener) Bus(iface string) *FakeBus {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.Buses[iface]
}
