package gpio

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testChip = "/dev/gpiochip0"

func newTestChips(t *testing.T) (*Chips, *FakeDriver) {
	t.Helper()
	driver := NewFakeDriver()
	return NewChips(driver, false), driver
}

func TestInstance_SamePathSameChip(t *testing.T) {
	chips, driver := newTestChips(t)

	a, err := chips.Instance(testChip)
	require.NoError(t, err)
	b, err := chips.Instance(testChip)
	require.NoError(t, err)

	assert.Same(t, a, b)
	assert.Equal(t, 1, driver.Opens)

	other, err := chips.Instance("/dev/gpiochip1")
	require.NoError(t, err)
	assert.NotSame(t, a, other)
	assert.Equal(t, 2, driver.Opens)
}

func TestInstance_OpenFailure(t *testing.T) {
	chips, driver := newTestChips(t)
	driver.OpenErrors["/dev/nope"] = errors.New("no such device")

	ch, err := chips.Instance("/dev/nope")
	assert.Error(t, err)
	assert.Nil(t, ch)
	assert.Nil(t, chips.lookup("/dev/nope"))
}

func TestOpenPin_ReservedOnce(t *testing.T) {
	chips, driver := newTestChips(t)
	ch, err := chips.Instance(testChip)
	require.NoError(t, err)

	a, err := ch.OpenPin(17)
	require.NoError(t, err)
	b, err := ch.OpenPin(17)
	require.NoError(t, err)

	assert.Same(t, a, b)
	assert.Equal(t, 1, driver.Device(testChip).Requests)
}

func TestOpenPin_BusyAndInvalid(t *testing.T) {
	chips, driver := newTestChips(t)
	ch, err := chips.Instance(testChip)
	require.NoError(t, err)
	driver.Device(testChip).Busy[4] = true

	_, err = ch.OpenPin(4)
	assert.ErrorIs(t, err, ErrLineBusy)

	_, err = ch.OpenPin(99)
	assert.Error(t, err)
}

func TestOpenPin_InvertOutput(t *testing.T) {
	driver := NewFakeDriver()
	chips := NewChips(driver, true)
	ch, err := chips.Instance(testChip)
	require.NoError(t, err)

	_, err = ch.OpenPin(5)
	require.NoError(t, err)
	assert.True(t, driver.Device(testChip).Line(5).ActiveLow)
}

func TestControl_SkipsIdempotentWrites(t *testing.T) {
	chips, driver := newTestChips(t)
	ch, _ := chips.Instance(testChip)
	pin, err := ch.OpenPin(17)
	require.NoError(t, err)
	line := driver.Device(testChip).Line(17)

	require.NoError(t, pin.Control(On))
	require.NoError(t, pin.Control(On))
	assert.Equal(t, 1, line.WriteCount())
	assert.Equal(t, 1, line.Level())

	require.NoError(t, pin.Control(Off))
	assert.Equal(t, 2, line.WriteCount())
	assert.Equal(t, Off, pin.State())
}

func TestControl_Toggle(t *testing.T) {
	chips, driver := newTestChips(t)
	ch, _ := chips.Instance(testChip)
	pin, _ := ch.OpenPin(6)
	line := driver.Device(testChip).Line(6)

	require.NoError(t, pin.Control(Toggle))
	assert.Equal(t, 1, line.Level())
	assert.Equal(t, On, pin.State())

	require.NoError(t, pin.Control(Toggle))
	assert.Equal(t, 0, line.Level())
	assert.Equal(t, Off, pin.State())
}

func TestControl_RecordsCommandWhenWriteFails(t *testing.T) {
	chips, driver := newTestChips(t)
	ch, _ := chips.Instance(testChip)
	pin, _ := ch.OpenPin(6)
	line := driver.Device(testChip).Line(6)

	line.SetFailures(nil, errors.New("io error"))
	assert.Error(t, pin.Control(On))
	assert.Equal(t, On, pin.State())

	line.SetFailures(nil, nil)
	require.NoError(t, pin.Control(On))
	assert.Equal(t, 1, line.Level())
}

func TestOverride_ShadowsAndRestores(t *testing.T) {
	chips, driver := newTestChips(t)
	ch, _ := chips.Instance(testChip)
	pin, _ := ch.OpenPin(22)
	line := driver.Device(testChip).Line(22)

	require.NoError(t, pin.Control(On))
	require.NoError(t, pin.OverrideWith(Off))
	assert.Equal(t, 0, line.Level())
	assert.Equal(t, Off, pin.State())

	// commands while overridden are recorded, not written
	require.NoError(t, pin.Control(Off))
	require.NoError(t, pin.Control(On))
	assert.Equal(t, 0, line.Level())
	o, ok := pin.Override()
	assert.True(t, ok)
	assert.Equal(t, Off, o)

	require.NoError(t, pin.RestoreControl())
	assert.Equal(t, 1, line.Level())
	assert.Equal(t, On, pin.State())
	_, ok = pin.Override()
	assert.False(t, ok)
}

func TestRelease_PinsBeforeChip(t *testing.T) {
	chips, driver := newTestChips(t)
	ch, _ := chips.Instance(testChip)
	p1, _ := ch.OpenPin(1)
	_, _ = ch.OpenPin(2)

	require.NoError(t, chips.Release(testChip))

	dev := driver.Device(testChip)
	assert.True(t, dev.Closed)
	assert.Equal(t, 0, dev.OpenLinesAtClose)
	assert.True(t, dev.Line(1).Closed)
	assert.True(t, dev.Line(2).Closed)

	assert.ErrorIs(t, p1.Control(On), ErrPinClosed)
	_, err := ch.OpenPin(3)
	assert.ErrorIs(t, err, ErrChipReleased)

	// a fresh instance re-opens the hardware
	again, err := chips.Instance(testChip)
	require.NoError(t, err)
	assert.NotSame(t, ch, again)
	assert.Equal(t, 2, driver.Opens)
}

func TestPinRelease(t *testing.T) {
	chips, driver := newTestChips(t)
	ch, _ := chips.Instance(testChip)
	pin, err := ch.OpenPin(8)
	require.NoError(t, err)

	require.NoError(t, pin.Release())
	assert.True(t, driver.Device(testChip).Line(8).Closed)
	assert.ErrorIs(t, pin.Control(On), ErrPinClosed)

	again, err := ch.OpenPin(8)
	require.NoError(t, err)
	assert.NotSame(t, pin, again)
	assert.Equal(t, 2, driver.Device(testChip).Requests)
	require.NoError(t, again.Control(On))
}

func TestClose_ReleasesEverything(t *testing.T) {
	chips, driver := newTestChips(t)
	for _, path := range []string{"/dev/gpiochip0", "/dev/gpiochip1"} {
		ch, err := chips.Instance(path)
		require.NoError(t, err)
		_, err = ch.OpenPin(3)
		require.NoError(t, err)
	}

	require.NoError(t, chips.Close())
	for _, dev := range driver.Devices {
		assert.True(t, dev.Closed)
		assert.Equal(t, 0, dev.OpenLinesAtClose)
	}
}
