package output

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/thatsimonsguy/aquactl/internal/value"
)

func TestAccept_ResolvesToggle(t *testing.T) {
	next, err := Accept(value.NewSwitch(value.Off), value.NewSwitch(value.Toggle))
	require.NoError(t, err)
	assert.True(t, value.NewSwitch(value.On).Equal(next))

	next, err = Accept(value.NewSwitch(value.On), value.NewSwitch(value.Toggle))
	require.NoError(t, err)
	assert.True(t, value.NewSwitch(value.Off).Equal(next))
}

func TestAccept_KindAndRange(t *testing.T) {
	bounded, err := value.NewSigned(20).WithRange(value.NewSigned(10), value.NewSigned(30))
	require.NoError(t, err)

	next, err := Accept(bounded, value.NewSigned(25))
	require.NoError(t, err)
	assert.True(t, value.NewSigned(25).Equal(next))
	assert.True(t, next.HasRange())

	_, err = Accept(bounded, value.NewSigned(31))
	assert.ErrorIs(t, err, ErrIncompatibleValue)

	_, err = Accept(bounded, value.NewUnsigned(25))
	assert.ErrorIs(t, err, ErrIncompatibleValue)
}

func TestState_OverrideShadowsCommand(t *testing.T) {
	s := NewState(value.NewSwitch(value.Off))

	_, overridden, err := s.Command(value.NewSwitch(value.On))
	require.NoError(t, err)
	assert.False(t, overridden)

	// toggles an override relative to the effective value
	ov, err := s.Override(value.NewSwitch(value.Toggle))
	require.NoError(t, err)
	assert.True(t, value.NewSwitch(value.Off).Equal(ov))

	_, overridden, err = s.Command(value.NewSwitch(value.On))
	require.NoError(t, err)
	assert.True(t, overridden)
	assert.True(t, value.NewSwitch(value.Off).Equal(s.Current()))

	assert.True(t, value.NewSwitch(value.On).Equal(s.Restore()))
	_, ok := s.Overridden()
	assert.False(t, ok)
}
