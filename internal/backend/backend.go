// Package backend provides the output types a controller can drive: gpio
// lines, CAN signals, MQTT topics and remote HTTP functions.
package backend

import (
	"net/http"
	"time"

	"github.com/thatsimonsguy/aquactl/internal/can"
	"github.com/thatsimonsguy/aquactl/internal/gpio"
	"github.com/thatsimonsguy/aquactl/internal/mqtt"
	"github.com/thatsimonsguy/aquactl/internal/output"
)

const (
	TypeGPIO           = "gpio"
	TypeCAN            = "can"
	TypeMQTT           = "mqtt"
	TypeRemoteFunction = "remote_function"
)

// Deps are the process-wide resources backends are built on.
type Deps struct {
	Chips       *gpio.Chips
	DefaultChip string
	CAN         *can.Pool
	MQTT        *mqtt.Pool
	HTTP        *http.Client
	// TransitionTick overrides the step interval of mqtt transitions.
	TransitionTick time.Duration
}

// Register adds every backend type whose resource is present in deps.
func Register(f *output.Factory, deps Deps) {
	if deps.Chips != nil {
		f.RegisterInterface(TypeGPIO, newGPIOConstructor(deps.Chips, deps.DefaultChip))
	}
	if deps.CAN != nil {
		f.RegisterInterface(TypeCAN, newCANConstructor(deps.CAN))
	}
	if deps.MQTT != nil {
		f.RegisterInterface(TypeMQTT, newMQTTConstructor(deps.MQTT, deps.TransitionTick))
	}
	client := deps.HTTP
	if client == nil {
		client = &http.Client{Timeout: 5 * time.Second}
	}
	f.RegisterInterface(TypeRemoteFunction, newRemoteConstructor(client))
}
