package backend

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/thatsimonsguy/aquactl/internal/mqtt"
	"github.com/thatsimonsguy/aquactl/internal/output"
	"github.com/thatsimonsguy/aquactl/internal/transition"
	"github.com/thatsimonsguy/aquactl/internal/value"
)

var ErrDisconnected = errors.New("mqtt broker not connected")

type mqttDescription struct {
	URL        string          `json:"url"`
	Port       int             `json:"port"`
	Topic      string          `json:"topic"`
	Default    json.RawMessage `json:"default"`
	Transition *struct {
		Velocity float64 `json:"velocity"`
		Step     uint64  `json:"step"`
	} `json:"transition"`
}

// MQTTOutput publishes its value to a topic. Writes set the target of a
// transitioner and every step it takes is published.
type MQTTOutput struct {
	*output.State
	id     string
	topic  string
	client mqtt.Client
	trans  *transition.Transitioner[value.Value]
}

func newMQTTConstructor(pool *mqtt.Pool, tick time.Duration) output.Constructor {
	return func(id string, raw json.RawMessage) (output.Output, error) {
		var d mqttDescription
		if err := json.Unmarshal(raw, &d); err != nil {
			return nil, fmt.Errorf("decode mqtt description: %w", err)
		}
		switch {
		case d.URL == "":
			return nil, fmt.Errorf("mqtt description has no url")
		case d.Port <= 0 || d.Port > 65535:
			return nil, fmt.Errorf("mqtt description has invalid port %d", d.Port)
		case d.Topic == "":
			return nil, fmt.Errorf("mqtt description has no topic")
		case len(d.Default) == 0:
			return nil, fmt.Errorf("mqtt description has no default")
		}
		initial, err := value.Parse(d.Default, value.KindInvalid)
		if err != nil {
			return nil, fmt.Errorf("mqtt default: %w", err)
		}
		client, err := pool.Get(d.URL, d.Port)
		if err != nil {
			return nil, err
		}

		o := &MQTTOutput{State: output.NewState(initial), id: id, topic: d.Topic, client: client}
		step := transition.Instant[value.Value]()
		if d.Transition != nil {
			step = transition.LinearValue(d.Transition.Velocity, d.Transition.Step)
		}
		o.trans = transition.New(transition.Config[value.Value]{
			Initial: initial,
			Step:    step,
			Equal:   transition.EqualValues,
			OnStep:  o.publish,
			Tick:    tick,
		})
		return o, nil
	}
}

// ControlOutput fails when the broker is unreachable. The command is still
// recorded and published once the next write goes through.
func (o *MQTTOutput) ControlOutput(v value.Value) error {
	next, overridden, err := o.Command(v)
	if err != nil || overridden {
		return err
	}
	return o.apply(next)
}

func (o *MQTTOutput) OverrideWith(v value.Value) error {
	next, err := o.Override(v)
	if err != nil {
		return err
	}
	return o.apply(next)
}

func (o *MQTTOutput) RestoreControl() error {
	return o.apply(o.Restore())
}

func (o *MQTTOutput) IsOverridden() (value.Value, bool) { return o.Overridden() }

func (o *MQTTOutput) CurrentState() value.Value { return o.Current() }

// Close stops the transitioner. The connection belongs to the pool.
func (o *MQTTOutput) Close() error {
	o.trans.Close()
	return nil
}

func (o *MQTTOutput) apply(v value.Value) error {
	o.trans.SetTarget(v)
	if !o.client.IsConnected() {
		return fmt.Errorf("%w: topic %s", ErrDisconnected, o.topic)
	}
	return nil
}

func (o *MQTTOutput) publish(v value.Value) {
	if err := o.client.Publish(o.topic, []byte(v.Serialize())); err != nil {
		log.Warn().Err(err).Str("output", o.id).Str("topic", o.topic).Msg("MQTT publish failed")
	}
}
