//go:build linux

package gpio

import (
	"fmt"

	"github.com/warthog618/go-gpiocdev"
)

// CdevDriver opens controllers through the GPIO character device.
type CdevDriver struct {
	// Consumer labels the requested lines, visible in gpioinfo.
	Consumer string
}

func NewCdevDriver(consumer string) *CdevDriver {
	return &CdevDriver{Consumer: consumer}
}

func (d *CdevDriver) Open(path string) (Device, error) {
	chip, err := gpiocdev.NewChip(path, gpiocdev.WithConsumer(d.Consumer))
	if err != nil {
		return nil, fmt.Errorf("open gpio chip: %w", err)
	}
	return &cdevDevice{chip: chip, consumer: d.Consumer}, nil
}

type cdevDevice struct {
	chip     *gpiocdev.Chip
	consumer string
}

// RequestOutput requests the line driven inactive. An active-low request
// keeps "on" meaning active regardless of relay board polarity.
func (d *cdevDevice) RequestOutput(offset int, activeLow bool) (Line, error) {
	opts := []gpiocdev.LineReqOption{
		gpiocdev.AsOutput(0),
		gpiocdev.WithConsumer(d.consumer),
	}
	if activeLow {
		opts = append(opts, gpiocdev.AsActiveLow)
	}
	line, err := d.chip.RequestLine(offset, opts...)
	if err != nil {
		return nil, fmt.Errorf("request line %d: %w", offset, err)
	}
	return line, nil
}

func (d *cdevDevice) Close() error {
	return d.chip.Close()
}
