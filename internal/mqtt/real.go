package mqtt

import (
	"fmt"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
	"github.com/rs/zerolog/log"
)

// RealClient publishes to an actual MQTT broker.
type RealClient struct {
	client paho.Client
}

// Dialer returns a DialFunc connecting with the given client id prefix.
func Dialer(clientID string) DialFunc {
	return func(address string) (Client, error) {
		return NewRealClient(address, clientID)
	}
}

// NewRealClient creates a client for the given broker. It does not wait for
// the connection: paho keeps retrying in the background and writes made
// while disconnected fail with IsConnected false.
func NewRealClient(broker, clientID string) (*RealClient, error) {
	opts := paho.NewClientOptions().
		AddBroker(broker).
		SetClientID(clientID).
		SetAutoReconnect(true).
		SetConnectRetry(true).
		SetConnectRetryInterval(5 * time.Second).
		SetConnectionLostHandler(func(_ paho.Client, err error) {
			log.Warn().Err(err).Str("broker", broker).Msg("MQTT connection lost")
		}).
		SetOnConnectHandler(func(_ paho.Client) {
			log.Info().Str("broker", broker).Msg("MQTT connected")
		})

	client := paho.NewClient(opts)
	client.Connect()

	return &RealClient{client: client}, nil
}

// Publish sends payload with QoS 0, not retained.
func (c *RealClient) Publish(topic string, payload []byte) error {
	token := c.client.Publish(topic, 0, false, payload)
	if !token.WaitTimeout(5 * time.Second) {
		return fmt.Errorf("publish timeout")
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("publish: %w", err)
	}
	return nil
}

func (c *RealClient) IsConnected() bool {
	return c.client.IsConnectionOpen()
}

// Close disconnects from the broker.
func (c *RealClient) Close() error {
	c.client.Disconnect(1000) // 1 second timeout
	return nil
}
