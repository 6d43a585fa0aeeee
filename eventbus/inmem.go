package eventbus

import (
	"context"
	"errors"
	"sync"
)

var _ Bus = (*InMem)(nil)

// ErrClosed is returned when publishing to a closed bus
var ErrClosed = errors.New("eventbus: closed")

// InMem dispatches messages to subscribers of the same topic, each on its own goroutine.
type InMem struct {
	mu     sync.RWMutex
	subs   map[string][]chan any
	buffer int
	closed bool
	wg     sync.WaitGroup
}

func NewInMemBus() *InMem {
	return &InMem{
		subs:   make(map[string][]chan any),
		buffer: 100,
	}
}

// Publish hands msg to every subscriber of topic. Messages to a topic
// without subscribers are dropped.
func (b *InMem) Publish(topic string, msg any) error {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		return ErrClosed
	}
	for _, ch := range b.subs[topic] {
		ch <- msg
	}
	return nil
}

func (b *InMem) Subscribe(topic string, handler MessageReceiver) {
	ch := make(chan any, b.buffer)

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.subs[topic] = append(b.subs[topic], ch)

	b.wg.Add(1)
	go func() {
		defer b.wg.Done()
		for m := range ch {
			handler.Receive(context.Background(), m)
		}
	}()
}

// Close stops accepting messages and waits until subscribers have handled
// everything already published.
func (b *InMem) Close() error {
	b.mu.Lock()
	if !b.closed {
		b.closed = true
		for _, chans := range b.subs {
			for _, ch := range chans {
				close(ch)
			}
		}
	}
	b.mu.Unlock()
	b.wg.Wait()
	return nil
}
