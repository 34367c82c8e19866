package mqtt

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAddress(t *testing.T) {
	assert.Equal(t, "tcp://broker.local:1883", Address("broker.local", 1883))
	assert.Equal(t, "ssl://broker.local:8883", Address("ssl://broker.local", 8883))
	assert.Equal(t, "tcp://[::1]:1883", Address("::1", 1883))
}

func TestPool_OneConnectionPerAddress(t *testing.T) {
	dialer := NewFakeDialer()
	pool := NewPool(dialer.Dial)

	a, err := pool.Get("broker.local", 1883)
	require.NoError(t, err)
	b, err := pool.Get("broker.local", 1883)
	require.NoError(t, err)
	assert.Same(t, a, b)

	c, err := pool.Get("broker.local", 1884)
	require.NoError(t, err)
	assert.NotSame(t, a, c)

	assert.Equal(t, 2, dialer.Dials)
	assert.Equal(t, 2, pool.Len())
}

func TestPool_DialFailureNotCached(t *testing.T) {
	dialer := NewFakeDialer()
	dialer.Err = errors.New("refused")
	pool := NewPool(dialer.Dial)

	_, err := pool.Get("broker.local", 1883)
	assert.Error(t, err)
	assert.Equal(t, 0, pool.Len())

	dialer.Err = nil
	_, err = pool.Get("broker.local", 1883)
	assert.NoError(t, err)
}

func TestPool_Close(t *testing.T) {
	dialer := NewFakeDialer()
	pool := NewPool(dialer.Dial)
	_, err := pool.Get("a", 1883)
	require.NoError(t, err)
	_, err = pool.Get("b", 1883)
	require.NoError(t, err)

	require.NoError(t, pool.Close())
	assert.True(t, dialer.Client("tcp://a:1883").Closed)
	assert.True(t, dialer.Client("tcp://b:1883").Closed)

	_, err = pool.Get("a", 1883)
	assert.ErrorIs(t, err, ErrPoolClosed)
}

func TestPool_SlowDialDoesNotBlockOtherBrokers(t *testing.T) {
	release := make(chan struct{})
	dialer := NewFakeDialer()
	pool := NewPool(func(address string) (Client, error) {
		if address == "tcp://down.local:1883" {
			<-release
		}
		return dialer.Dial(address)
	})

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		_, err := pool.Get("down.local", 1883)
		assert.NoError(t, err)
	}()

	done := make(chan error, 1)
	go func() {
		_, err := pool.Get("up.local", 1883)
		done <- err
	}()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Get of a second broker blocked behind a pending dial")
	}

	close(release)
	wg.Wait()
	assert.Equal(t, 2, pool.Len())
}

func TestPool_RacingDialsKeepOneClient(t *testing.T) {
	dialer := NewFakeDialer()
	var mu sync.Mutex
	var dialed []*FakeClient
	start := make(chan struct{})
	pool := NewPool(func(address string) (Client, error) {
		<-start
		c, err := dialer.Dial(address)
		mu.Lock()
		dialed = append(dialed, c.(*FakeClient))
		mu.Unlock()
		return c, err
	})

	var wg sync.WaitGroup
	got := make([]Client, 2)
	for i := range got {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			c, err := pool.Get("broker.local", 1883)
			assert.NoError(t, err)
			got[i] = c
		}(i)
	}
	close(start)
	wg.Wait()

	assert.Same(t, got[0], got[1])
	assert.Equal(t, 1, pool.Len())
	closed := 0
	for _, c := range dialed {
		c.mu.Lock()
		if c.Closed {
			closed++
		}
		c.mu.Unlock()
	}
	assert.Equal(t, len(dialed)-1, closed)
}

func TestRealClient_UnreachableBrokerDoesNotBlock(t *testing.T) {
	start := time.Now()
	c, err := NewRealClient("tcp://127.0.0.1:1", "aquactl-test")
	require.NoError(t, err)
	assert.Less(t, time.Since(start), 2*time.Second)
	assert.False(t, c.IsConnected())
	require.NoError(t, c.Close())
}
