package gpio

import (
	"errors"
	"fmt"
	"sync"
)

// ErrLineBusy is returned by the fake driver for lines already requested.
var ErrLineBusy = errors.New("line busy")

// FakeDriver keeps controllers and lines in memory. It backs tests and the
// safe mode, where nothing may touch the hardware.
type FakeDriver struct {
	mu sync.Mutex

	// Devices holds every controller opened so far, by path.
	Devices map[string]*FakeDevice

	// OpenErrors makes Open fail for the given paths.
	OpenErrors map[string]error

	// Opens counts successful Open calls.
	Opens int

	// NumLines bounds valid offsets of newly opened devices.
	NumLines int
}

func NewFakeDriver() *FakeDriver {
	return &FakeDriver{
		Devices:    make(map[string]*FakeDevice),
		OpenErrors: make(map[string]error),
		NumLines:   54,
	}
}

func (d *FakeDriver) Open(path string) (Device, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if err, ok := d.OpenErrors[path]; ok {
		return nil, err
	}
	dev := &FakeDevice{
		Path:     path,
		NumLines: d.NumLines,
		Busy:     make(map[int]bool),
		Lines:    make(map[int]*FakeLine),
	}
	d.Devices[path] = dev
	d.Opens++
	return dev, nil
}

// Device returns the controller opened for path, if any.
func (d *FakeDriver) Device(path string) *FakeDevice {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.Devices[path]
}

type FakeDevice struct {
	mu sync.Mutex

	Path     string
	NumLines int

	// Busy marks lines claimed by another process.
	Busy map[int]bool

	Lines    map[int]*FakeLine
	Requests int
	Closed   bool

	// OpenLinesAtClose counts lines still open when Close was called.
	OpenLinesAtClose int
}

func (d *FakeDevice) RequestOutput(offset int, activeLow bool) (Line, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.Closed {
		return nil, errors.New("device closed")
	}
	if offset < 0 || offset >= d.NumLines {
		return nil, fmt.Errorf("invalid offset %d", offset)
	}
	if d.Busy[offset] {
		return nil, ErrLineBusy
	}
	if l, ok := d.Lines[offset]; ok && !l.isClosed() {
		return nil, ErrLineBusy
	}

	l := &FakeLine{Offset: offset, ActiveLow: activeLow}
	d.Lines[offset] = l
	d.Requests++
	return l, nil
}

// Line returns the line requested at offset, if any.
func (d *FakeDevice) Line(offset int) *FakeLine {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.Lines[offset]
}

func (d *FakeDevice) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	for _, l := range d.Lines {
		if !l.isClosed() {
			d.OpenLinesAtClose++
		}
	}
	d.Closed = true
	return nil
}

type FakeLine struct {
	mu sync.Mutex

	Offset    int
	ActiveLow bool
	Closed    bool

	level  int
	Writes int

	// ReadError and WriteError, when set, fail Value and SetValue.
	ReadError  error
	WriteError error
}

func (l *FakeLine) Value() (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.Closed {
		return 0, errors.New("line closed")
	}
	if l.ReadError != nil {
		return 0, l.ReadError
	}
	return l.level, nil
}

func (l *FakeLine) SetValue(level int) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.Closed {
		return errors.New("line closed")
	}
	if l.WriteError != nil {
		return l.WriteError
	}
	l.level = level
	l.Writes++
	return nil
}

func (l *FakeLine) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.Closed = true
	return nil
}

// Level returns the logical level last written.
func (l *FakeLine) Level() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.level
}

// SetFailures sets read and write errors under the line lock.
func (l *FakeLine) SetFailures(readErr, writeErr error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.ReadError = readErr
	l.WriteError = writeErr
}

// WriteCount returns the number of successful writes.
func (l *FakeLine) WriteCount() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.Writes
}

func (l *FakeLine) isClosed() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.Closed
}
