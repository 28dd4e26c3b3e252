package core

import (
	"sync"

	"github.com/google/uuid"
)

// DefaultSendBuffer is the outbound queue length used when none is given.
const DefaultSendBuffer = 64

// MinSendBuffer is the smallest outbound queue a client gets. Attach alone
// queues six events before the writer starts.
const MinSendBuffer = 16

// Client is an authenticated session as seen by the core layer.
// Its current room is owned by the Hub and only touched under the Hub lock.
type Client struct {
	ID     string
	Name   string
	Addr   string
	Events chan *Event

	room      string
	done      chan struct{}
	closeOnce sync.Once
}

// NewClient constructs a client with an opaque session id and a bounded
// outbound queue of at least MinSendBuffer.
func NewClient(name, addr string, buffer int) *Client {
	switch {
	case buffer <= 0:
		buffer = DefaultSendBuffer
	case buffer < MinSendBuffer:
		buffer = MinSendBuffer
	}
	return &Client{
		ID:     uuid.NewString(),
		Name:   name,
		Addr:   addr,
		Events: make(chan *Event, buffer),
		done:   make(chan struct{}),
	}
}

// Done is closed once the Hub has dropped the client (disconnect, eviction,
// shutdown). Transports should stop writing and close the connection.
func (c *Client) Done() <-chan struct{} {
	return c.done
}

func (c *Client) close() {
	c.closeOnce.Do(func() { close(c.done) })
}
