package shutdown

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recorder struct {
	calls []string
}

type step struct {
	name string
	rec  *recorder
	err  error
}

func (s step) Stop()                          { s.rec.calls = append(s.rec.calls, s.name) }
func (s step) Wait()                          { s.rec.calls = append(s.rec.calls, s.name) }
func (s step) Shutdown(context.Context) error { s.rec.calls = append(s.rec.calls, s.name); return s.err }
func (s step) Close() error                   { s.rec.calls = append(s.rec.calls, s.name); return s.err }

func TestTeardown_Order(t *testing.T) {
	rec := &recorder{}
	sys := &System{
		Scheduler: step{name: "scheduler", rec: rec},
		API:       step{name: "api", rec: rec},
		Outputs:   step{name: "outputs", rec: rec},
		MQTT:      step{name: "mqtt", rec: rec},
		CAN:       step{name: "can", rec: rec},
		Chips:     step{name: "gpio", rec: rec},
		Events:    step{name: "events", rec: rec},
		Notifier:  step{name: "notifier", rec: rec},
		Metrics:   step{name: "metrics", rec: rec},
	}

	require.NoError(t, sys.Teardown(context.Background()))
	assert.Equal(t, []string{"scheduler", "api", "outputs", "mqtt", "can", "gpio", "events", "notifier", "metrics"}, rec.calls)
}

func TestTeardown_ContinuesAfterFailure(t *testing.T) {
	rec := &recorder{}
	busErr := errors.New("bus stuck")
	sys := &System{
		Outputs: step{name: "outputs", rec: rec},
		CAN:     step{name: "can", rec: rec, err: busErr},
		Events:  step{name: "events", rec: rec},
	}

	err := sys.Teardown(context.Background())
	assert.ErrorIs(t, err, busErr)
	assert.Equal(t, []string{"outputs", "can", "events"}, rec.calls)
}

func TestTeardown_Empty(t *testing.T) {
	assert.NoError(t, (&System{}).Teardown(context.Background()))
}
