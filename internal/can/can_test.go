package can

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFrame_Marshal(t *testing.T) {
	buf, err := Frame{ID: 0x123, Data: []byte{1, 2, 3}}.Marshal()
	require.NoError(t, err)
	assert.Equal(t, []byte{
		0x23, 0x01, 0x00, 0x00,
		3, 0, 0, 0,
		1, 2, 3, 0, 0, 0, 0, 0,
	}, buf)

	f, err := Unmarshal(buf)
	require.NoError(t, err)
	assert.Equal(t, uint32(0x123), f.ID)
	assert.Equal(t, []byte{1, 2, 3}, f.Data)
}

func TestFrame_ExtendedID(t *testing.T) {
	buf, err := Frame{ID: 0x18FF50E5, Data: []byte{1}}.Marshal()
	require.NoError(t, err)
	assert.Equal(t, byte(0x98), buf[3])

	f, err := Unmarshal(buf)
	require.NoError(t, err)
	assert.Equal(t, uint32(0x18FF50E5), f.ID)
}

func TestFrame_Invalid(t *testing.T) {
	_, err := Frame{ID: 1, Data: make([]byte, 9)}.Marshal()
	assert.ErrorIs(t, err, ErrFrameSize)

	_, err = Frame{ID: 0x20000000}.Marshal()
	assert.ErrorIs(t, err, ErrIdentifier)

	_, err = Unmarshal([]byte{1, 2})
	assert.Error(t, err)
}

func TestPool_OneSocketPerInterface(t *testing.T) {
	opener := NewFakeOpener()
	pool := NewPool(opener.Open)

	a, err := pool.Get("can0")
	require.NoError(t, err)
	b, err := pool.Get("can0")
	require.NoError(t, err)
	assert.Same(t, a, b)

	_, err = pool.Get("can1")
	require.NoError(t, err)
	assert.Equal(t, 2, opener.Opens)

	require.NoError(t, pool.Close())
	assert.True(t, opener.Bus("can0").Closed)
	assert.True(t, opener.Bus("can1").Closed)

	_, err = pool.Get("can0")
	assert.ErrorIs(t, err, ErrPoolClosed)
}

func TestPool_OpenFailure(t *testing.T) {
	opener := NewFakeOpener()
	opener.Err = errors.New("no such device")
	pool := NewPool(opener.Open)

	_, err := pool.Get("can0")
	assert.Error(t, err)

	opener.Err = nil
	_, err = pool.Get("can0")
	assert.NoError(t, err)
}
