// Package pubsub fans values out from one sender to any number of channel subscribers.
package pubsub

import (
	"errors"
	"sync"
)

const DefaultSubscriberBufSize = 16

var (
	ErrPublisherClosed = errors.New("publisher closed")
)

// Publisher delivers every sent value to every current subscriber, in send order.
type Publisher[T any] struct {
	mu          sync.RWMutex
	subscribers map[*Subscription[T]]struct{}
	closed      bool
}

func NewPublisher[T any]() *Publisher[T] {
	return &Publisher[T]{subscribers: make(map[*Subscription[T]]struct{})}
}

// Subscription receives values from a Publisher until either side is closed.
type Subscription[T any] struct {
	pub  *Publisher[T]
	ch   chan T
	done chan struct{}
	once sync.Once
}

// Receive returns the channel to read values from; it is closed when the subscription ends.
func (s *Subscription[T]) Receive() <-chan T {
	return s.ch
}

// Close idempotently unsubscribes. Any value being delivered to this subscriber is dropped.
func (s *Subscription[T]) Close() {
	s.once.Do(func() {
		close(s.done)
		s.pub.remove(s)
	})
}

func (p *Publisher[T]) Subscribe() (*Subscription[T], error) {
	return p.SubscribeBufSize(DefaultSubscriberBufSize)
}

func (p *Publisher[T]) SubscribeBufSize(bufSize int) (*Subscription[T], error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return nil, ErrPublisherClosed
	}
	s := &Subscription[T]{
		pub:  p,
		ch:   make(chan T, bufSize),
		done: make(chan struct{}),
	}
	p.subscribers[s] = struct{}{}
	return s, nil
}

// Send delivers msg to all subscribers, blocking while a subscriber's buffer is full. Returns false if the publisher
// is closed.
func (p *Publisher[T]) Send(msg T) bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		return false
	}
	for s := range p.subscribers {
		select {
		case s.ch <- msg:
		case <-s.done:
		}
	}
	return true
}

func (p *Publisher[T]) remove(s *Subscription[T]) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if _, ok := p.subscribers[s]; ok {
		delete(p.subscribers, s)
		close(s.ch)
	}
}

// Close idempotently shuts down the publisher, closing all subscriptions.
func (p *Publisher[T]) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return
	}
	p.closed = true
	for s := range p.subscribers {
		delete(p.subscribers, s)
		close(s.ch)
	}
}
