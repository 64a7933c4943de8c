package pubsub

import (
	"sync"
	"testing"

	assert_ "github.com/stretchr/testify/assert"
)

func TestPublisher(t *testing.T) {
	assert := assert_.New(t)
	pub := NewPublisher[int]()

	// Sending with no subscribers should just succeed
	assert.True(pub.Send(1))

	s1, err := pub.Subscribe()
	assert.Nil(err)
	select {
	case <-s1.Receive():
		assert.Fail("subscriber should be waiting")
	default:
	}
	assert.True(pub.Send(2))
	assert.Equal(2, <-s1.Receive())

	// Both subscribers get the same values, in order
	s2, err := pub.Subscribe()
	assert.Nil(err)
	assert.True(pub.Send(3))
	assert.True(pub.Send(4))
	assert.Equal(3, <-s1.Receive())
	assert.Equal(4, <-s1.Receive())
	assert.Equal(3, <-s2.Receive())
	assert.Equal(4, <-s2.Receive())

	// A closed subscriber stops receiving, the other continues
	s1.Close()
	_, ok := <-s1.Receive()
	assert.False(ok, "expected closed subscriber to return closed channel")
	assert.True(pub.Send(5))
	assert.Equal(5, <-s2.Receive())
	// Closing should be idempotent
	s1.Close()

	pub.Close()
	_, err = pub.Subscribe()
	assert.Equal(ErrPublisherClosed, err)
	assert.False(pub.Send(6))
	_, ok = <-s2.Receive()
	assert.False(ok, "expected subscriber to be closed by publisher")
	pub.Close()
	// Closing a subscription after the publisher is closed is harmless
	s2.Close()
}

func TestPublisher_SlowSubscriberClose(t *testing.T) {
	assert := assert_.New(t)
	pub := NewPublisher[int]()
	s, err := pub.SubscribeBufSize(0)
	assert.Nil(err)

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		// Blocks until the subscriber either reads or closes
		assert.True(pub.Send(1))
	}()
	s.Close()
	wg.Wait()
	pub.Close()
}

func TestPublisher_RangeUntilClose(t *testing.T) {
	assert := assert_.New(t)
	pub := NewPublisher[int]()
	s, err := pub.Subscribe()
	assert.Nil(err)

	var got []int
	done := make(chan struct{})
	go func() {
		defer close(done)
		for v := range s.Receive() {
			got = append(got, v)
		}
	}()
	for i := 0; i < 100; i++ {
		pub.Send(i)
	}
	pub.Close()
	<-done
	assert.Len(got, 100)
	assert.Equal(0, got[0])
	assert.Equal(99, got[99])
}
