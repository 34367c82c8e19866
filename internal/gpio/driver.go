// Package gpio owns the GPIO controllers and lines of the process. Each chip
// path is opened at most once and each line of a chip is requested at most
// once; outputs share the reserved handles through the Chips registry.
// The real driver uses the Linux GPIO character device. The fake driver
// keeps lines in memory for tests and safe mode.
package gpio

// Line is one requested output line.
type Line interface {
	// Value returns the logical level, 1 meaning active.
	Value() (int, error)
	SetValue(level int) error
	Close() error
}

// Device is one opened GPIO controller.
type Device interface {
	// RequestOutput claims a line as an output. activeLow inverts the
	// logical level at the pin.
	RequestOutput(offset int, activeLow bool) (Line, error)
	Close() error
}

// Driver opens GPIO controllers by device path.
type Driver interface {
	Open(path string) (Device, error)
}
