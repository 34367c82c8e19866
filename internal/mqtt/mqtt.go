// Package mqtt shares broker connections between outputs. One connection is
// kept per host:port for the whole process.
package mqtt

import (
	"errors"
	"fmt"
	"net"
	"sort"
	"strconv"
	"sync"

	"github.com/rs/zerolog/log"
)

var ErrPoolClosed = errors.New("mqtt pool closed")

// Client is a connection to one broker.
type Client interface {
	// Publish sends payload to topic. Returns error if publishing fails
	// (should not crash the process).
	Publish(topic string, payload []byte) error
	IsConnected() bool
	Close() error
}

// DialFunc opens a connection to the broker at address (host:port).
type DialFunc func(address string) (Client, error)

// Pool hands out one shared Client per broker address.
type Pool struct {
	mu      sync.Mutex
	dial    DialFunc
	clients map[string]Client
	closed  bool
}

func NewPool(dial DialFunc) *Pool {
	return &Pool{dial: dial, clients: make(map[string]Client)}
}

// Address normalizes a broker url and port into the pool key. A url carrying
// a scheme keeps it, a bare host gets tcp://.
func Address(url string, port int) string {
	hostPort := net.JoinHostPort(url, strconv.Itoa(port))
	for _, scheme := range []string{"tcp://", "ssl://", "ws://", "wss://", "mqtt://"} {
		if len(url) > len(scheme) && url[:len(scheme)] == scheme {
			return scheme + net.JoinHostPort(url[len(scheme):], strconv.Itoa(port))
		}
	}
	return "tcp://" + hostPort
}

// Get returns the connection for url:port, dialing it on first use. Dialing
// happens outside the pool lock; when two callers race, the first stored
// connection wins and the other is closed.
func (p *Pool) Get(url string, port int) (Client, error) {
	address := Address(url, port)

	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil, ErrPoolClosed
	}
	if c, ok := p.clients[address]; ok {
		p.mu.Unlock()
		return c, nil
	}
	p.mu.Unlock()

	c, err := p.dial(address)
	if err != nil {
		return nil, fmt.Errorf("connect to broker %s: %w", address, err)
	}

	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		c.Close()
		return nil, ErrPoolClosed
	}
	if existing, ok := p.clients[address]; ok {
		p.mu.Unlock()
		c.Close()
		return existing, nil
	}
	p.clients[address] = c
	p.mu.Unlock()

	log.Info().Str("broker", address).Msg("Added MQTT broker")
	return c, nil
}

// Len is the number of open connections.
func (p *Pool) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.clients)
}

// Close disconnects every broker. Later Get calls fail.
func (p *Pool) Close() error {
	p.mu.Lock()
	clients := p.clients
	p.clients = make(map[string]Client)
	p.closed = true
	p.mu.Unlock()

	addresses := make([]string, 0, len(clients))
	for a := range clients {
		addresses = append(addresses, a)
	}
	sort.Strings(addresses)

	var errs []error
	for _, a := range addresses {
		if err := clients[a].Close(); err != nil {
			errs = append(errs, fmt.Errorf("disconnect %s: %w", a, err))
		}
	}
	return errors.Join(errs...)
}
