package mqtt

import "sync"

// Message is one publish recorded by FakeClient.
type Message struct {
	Topic   string
	Payload string
}

// FakeClient records published messages for test assertions.
type FakeClient struct {
	mu       sync.Mutex
	Address  string
	Messages []Message
	// PublishError, if set, will be returned by Publish.
	PublishError error
	Connected    bool
	Closed       bool
}

func NewFakeClient(address string) *FakeClient {
	return &FakeClient{Address: address, Connected: true}
}

func (f *FakeClient) Publish(topic string, payload []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.PublishError != nil {
		return f.PublishError
	}
	f.Messages = append(f.Messages, Message{Topic: topic, Payload: string(payload)})
	return nil
}

func (f *FakeClient) IsConnected() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.Connected
}

func (f *FakeClient) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Closed = true
	f.Connected = false
	return nil
}

// Published returns a copy of the recorded messages.
func (f *FakeClient) Published() []Message {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]Message(nil), f.Messages...)
}

func (f *FakeClient) SetConnected(connected bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Connected = connected
}

// FakeDialer hands out FakeClients and remembers them by address.
type FakeDialer struct {
	mu      sync.Mutex
	Clients map[string]*FakeClient
	Dials   int
	// Err, if set, fails every dial.
	Err error
}

func NewFakeDialer() *FakeDialer {
	return &FakeDialer{Clients: make(map[string]*FakeClient)}
}

func (d *FakeDialer) Dial(address string) (Client, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.Err != nil {
		return nil, d.Err
	}
	d.Dials++
	c := NewFakeClient(address)
	d.Clients[address] = c
	return c, nil
}

func (d *FakeDialer) Client(address string) *FakeClient {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.Clients[address]
}
