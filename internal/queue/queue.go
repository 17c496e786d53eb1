// Package queue provides the unbounded multi-producer, single-consumer
// channel that carries commands into the bridge.
package queue

import (
	"context"
	"sync"
)

// Channel is an unbounded FIFO. Push never blocks; Next blocks until at
// least one item is queued and then takes everything that is ready.
type Channel[T any] struct {
	mu      sync.Mutex
	entries []T
	closed  bool
	notify  chan struct{}
}

// New creates an empty Channel.
func New[T any]() *Channel[T] {
	return &Channel[T]{
		entries: make([]T, 0),
		notify:  make(chan struct{}, 1),
	}
}

// Push appends v to the back of the channel. It reports false if the
// channel is closed, in which case v is dropped.
func (c *Channel[T]) Push(v T) bool {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return false
	}
	c.entries = append(c.entries, v)
	c.mu.Unlock()

	select {
	case c.notify <- struct{}{}:
	default:
	}
	return true
}

// Next waits until at least one item is available and returns every item
// queued at that moment, in push order. It returns (nil, false) when ctx
// is done or the channel is closed and empty.
func (c *Channel[T]) Next(ctx context.Context) ([]T, bool) {
	for {
		if batch, ok := c.take(); ok {
			return batch, true
		}
		c.mu.Lock()
		closed := c.closed
		c.mu.Unlock()
		if closed {
			return nil, false
		}

		select {
		case <-ctx.Done():
			return nil, false
		case <-c.notify:
		}
	}
}

// TryNext returns everything queued without waiting.
func (c *Channel[T]) TryNext() ([]T, bool) {
	return c.take()
}

func (c *Channel[T]) take() ([]T, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if len(c.entries) == 0 {
		return nil, false
	}
	batch := c.entries
	c.entries = make([]T, 0, cap(batch)/2)
	return batch, true
}

// Len returns the number of queued items.
func (c *Channel[T]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// Close stops accepting pushes and wakes a waiting consumer. Items already
// queued can still be taken.
func (c *Channel[T]) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	c.mu.Unlock()

	select {
	case c.notify <- struct{}{}:
	default:
	}
}

// Closed reports whether Close has been called.
func (c *Channel[T]) Closed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}
